// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"sync"
	"time"
)

// TempoClock derives a musical beat position from a monotonic reference
// instant and a BPM. The beat position is computed on read, never stored.
type TempoClock struct {
	mu        sync.Mutex
	bpm       float64
	reference time.Time
}

// NewTempoClock creates a clock anchored at now.
func NewTempoClock(bpm float64) *TempoClock {
	if bpm <= 0 {
		bpm = 120
	}
	return &TempoClock{bpm: bpm, reference: time.Now()}
}

// SetBPM updates the tempo and re-anchors the reference instant.
// Non-positive tempos are rejected.
func (c *TempoClock) SetBPM(bpm float64) error {
	if bpm <= 0 {
		return fmt.Errorf("bpm must be positive, got %f", bpm)
	}
	c.mu.Lock()
	c.bpm = bpm
	c.reference = time.Now()
	c.mu.Unlock()
	return nil
}

// BPM returns the current tempo.
func (c *TempoClock) BPM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

// BeatPosition returns elapsed beats since the last tempo set or reset.
// time.Since reads the monotonic clock, so wall-clock jumps don't skew it.
func (c *TempoClock) BeatPosition() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.reference).Seconds() * c.bpm / 60
}

// Reset re-anchors the reference instant without changing the tempo.
func (c *TempoClock) Reset() {
	c.mu.Lock()
	c.reference = time.Now()
	c.mu.Unlock()
}
