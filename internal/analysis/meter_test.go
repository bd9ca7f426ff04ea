// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sync"
	"testing"
)

// captureTransport records every frame pushed through it.
type captureTransport struct {
	mu     sync.Mutex
	frames []map[string]interface{}
}

func (c *captureTransport) Send(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data.(map[string]interface{}))
	return nil
}

func (c *captureTransport) Close() error { return nil }

func (c *captureTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func constantFrame(busCount, frames int, value float64) *Frame {
	f := &Frame{
		SampleRate: 44100,
		BusNames:   make([]string, busCount),
		BusLevels:  make([]float64, busCount),
		BusChunks:  make([][2][]float64, busCount),
	}
	for i := 0; i < busCount; i++ {
		f.BusNames[i] = string(rune('A' + i))
		f.BusLevels[i] = 1.0
		for ch := 0; ch < 2; ch++ {
			f.BusChunks[i][ch] = make([]float64, frames)
			for n := range f.BusChunks[i][ch] {
				f.BusChunks[i][ch][n] = value
			}
		}
	}
	f.Master[0] = make([]float64, frames)
	f.Master[1] = make([]float64, frames)
	return f
}

func TestMeterMeasurement(t *testing.T) {
	t.Parallel()
	m := NewMeterProcessor(1, nil)
	m.Process(constantFrame(1, 256, 0.5))

	// Constant 0.5 on both channels: peak and RMS both 0.5, silent master.
	dst := make([]float64, m.MeterCount())
	n, err := m.MetersInto(dst)
	if err != nil {
		t.Fatalf("MetersInto: %v", err)
	}
	if n != 4 {
		t.Fatalf("meter count: got %d, want 4 (bus peak/rms + master peak/rms)", n)
	}
	if math.Abs(dst[0]-0.5) > 1e-12 || math.Abs(dst[1]-0.5) > 1e-12 {
		t.Errorf("bus meters: got peak %g rms %g, want 0.5/0.5", dst[0], dst[1])
	}
	if dst[2] != 0 || dst[3] != 0 {
		t.Errorf("master meters: got peak %g rms %g, want 0/0", dst[2], dst[3])
	}
}

func TestMetersIntoRejectsShortBuffer(t *testing.T) {
	t.Parallel()
	m := NewMeterProcessor(4, nil)
	if _, err := m.MetersInto(make([]float64, 3)); err == nil {
		t.Error("expected error for undersized meter buffer")
	}
}

func TestMeterPublishRateLimit(t *testing.T) {
	t.Parallel()
	sink := &captureTransport{}
	m := NewMeterProcessor(1, sink)
	frame := constantFrame(1, 256, 0.25)

	// Back-to-back cycles inside the send interval: one frame goes out.
	m.Process(frame)
	m.Process(frame)

	if got := sink.count(); got != 1 {
		t.Errorf("published meter frames: got %d, want 1 (rate limited)", got)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.frames[0]["type"] != "meters" {
		t.Errorf("frame type: got %v, want meters", sink.frames[0]["type"])
	}
}
