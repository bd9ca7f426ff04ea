// SPDX-License-Identifier: MIT
package engine

import (
	"math"
	"testing"
	"time"
)

func TestTempoAccuracy(t *testing.T) {
	t.Parallel()
	clock := NewTempoClock(120)
	if err := clock.SetBPM(140); err != nil {
		t.Fatalf("SetBPM(140): %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	// 140 BPM for 1.5s is 3.5 beats. ±0.05 beat covers sleep jitter.
	got := clock.BeatPosition()
	if math.Abs(got-3.5) > 0.05 {
		t.Errorf("beat position after 1.5s at 140 BPM: got %.3f, want 3.5±0.05", got)
	}
}

func TestSetBPMRejectsNonPositive(t *testing.T) {
	t.Parallel()
	clock := NewTempoClock(120)
	if err := clock.SetBPM(0); err == nil {
		t.Error("expected error for bpm=0")
	}
	if err := clock.SetBPM(-10); err == nil {
		t.Error("expected error for negative bpm")
	}
	if clock.BPM() != 120 {
		t.Errorf("rejected SetBPM must not change tempo, got %.1f", clock.BPM())
	}
}

func TestSetBPMReanchors(t *testing.T) {
	t.Parallel()
	clock := NewTempoClock(120)
	time.Sleep(100 * time.Millisecond)
	if err := clock.SetBPM(90); err != nil {
		t.Fatalf("SetBPM: %v", err)
	}
	// Reference re-anchored at the tempo change, so position restarts near 0.
	if pos := clock.BeatPosition(); pos > 0.1 {
		t.Errorf("beat position just after SetBPM: got %.3f, want ~0", pos)
	}
}

func TestResetKeepsTempo(t *testing.T) {
	t.Parallel()
	clock := NewTempoClock(150)
	time.Sleep(50 * time.Millisecond)
	clock.Reset()
	if clock.BPM() != 150 {
		t.Errorf("reset must not change tempo, got %.1f", clock.BPM())
	}
	if pos := clock.BeatPosition(); pos > 0.1 {
		t.Errorf("beat position just after reset: got %.3f, want ~0", pos)
	}
}
