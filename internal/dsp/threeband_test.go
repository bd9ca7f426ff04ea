// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"math/rand"
	"testing"
)

func whiteNoise(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	buf := make([]float64, n)
	for i := range buf {
		buf[i] = rng.Float64()*2 - 1
	}
	return buf
}

// TestScalarBlockEquivalence holds the reference and block implementations
// to the same output for white noise across several gain triples. This is
// a correctness contract: the block path must be usable interchangeably
// with the reference on a live stream.
func TestScalarBlockEquivalence(t *testing.T) {
	t.Parallel()
	gainTriples := [][3]float64{
		{1, 1, 1},
		{0, 0, 0},
		{2, 0.5, 1.3},
		{0.02, 1.7, 0},
	}

	for _, gains := range gainTriples {
		input := whiteNoise(4096, 42)

		ref := NewThreeBand(44100, 200, 2000)
		ref.SetGains(gains[0], gains[1], gains[2])
		blk := NewThreeBand(44100, 200, 2000)
		blk.SetGains(gains[0], gains[1], gains[2])

		// Process in uneven chunk sizes to exercise state carry.
		chunkSizes := []int{256, 1, 511, 64, 3000, 264}

		maxDiff := 0.0
		pos := 0
		for _, size := range chunkSizes {
			if pos+size > len(input) {
				size = len(input) - pos
			}
			chunk := make([]float64, size)
			copy(chunk, input[pos:pos+size])

			blk.ProcessBlock(0, chunk)
			for i := 0; i < size; i++ {
				want := ref.ProcessSample(0, input[pos+i])
				if d := math.Abs(chunk[i] - want); d > maxDiff {
					maxDiff = d
				}
			}
			pos += size
		}

		if maxDiff > 1e-3 {
			t.Errorf("gains %v: max abs difference %g exceeds 1e-3", gains, maxDiff)
		}
	}
}

// TestStateCarriedAcrossChunks verifies that splitting a stream into chunks
// produces the same output as processing it in one call. A reset between
// chunks would show up as a boundary discontinuity here.
func TestStateCarriedAcrossChunks(t *testing.T) {
	t.Parallel()
	input := whiteNoise(2048, 7)

	whole := NewThreeBand(44100, 200, 2000)
	wholeOut := make([]float64, len(input))
	copy(wholeOut, input)
	whole.ProcessBlock(0, wholeOut)

	split := NewThreeBand(44100, 200, 2000)
	splitOut := make([]float64, len(input))
	copy(splitOut, input)
	for pos := 0; pos < len(splitOut); pos += 256 {
		split.ProcessBlock(0, splitOut[pos:pos+256])
	}

	for i := range wholeOut {
		if math.Abs(wholeOut[i]-splitOut[i]) > 1e-9 {
			t.Fatalf("sample %d: chunked output %g != whole output %g", i, splitOut[i], wholeOut[i])
		}
	}
}

func TestChannelStateIsIndependent(t *testing.T) {
	t.Parallel()
	f := NewThreeBand(44100, 200, 2000)

	// Drive channel 0 hard, leave channel 1 silent.
	for i := 0; i < 1000; i++ {
		f.ProcessSample(0, 1.0)
	}
	if out := f.ProcessSample(1, 0.0); out != 0 {
		t.Errorf("channel 1 output %g contaminated by channel 0 state", out)
	}
}

// TestZeroGainsSilence implements the silence property: all three gains at
// zero force the output to exactly zero regardless of input.
func TestZeroGainsSilence(t *testing.T) {
	t.Parallel()
	f := NewThreeBand(44100, 200, 2000)
	f.SetGains(0, 0, 0)

	chunk := whiteNoise(1024, 99)
	f.ProcessBlock(0, chunk)
	for i, v := range chunk {
		if v != 0 {
			t.Fatalf("sample %d: got %g, want exactly 0 with all gains cut", i, v)
		}
	}
}

func TestUnityGainsIdentity(t *testing.T) {
	t.Parallel()
	// At unity gains the recombination telescopes:
	// lp + (x - lp - hp) + hp == x, so the filter is a bit-near identity.
	f := NewThreeBand(44100, 200, 2000)
	var maxErr float64
	for i := 0; i < 44100; i++ {
		x := math.Sin(2 * math.Pi * 50 * float64(i) / 44100)
		y := f.ProcessSample(0, x)
		if d := math.Abs(y - x); d > maxErr {
			maxErr = d
		}
	}
	if maxErr > 1e-9 {
		t.Errorf("unity EQ should be identity, max error %g", maxErr)
	}
}

func TestSetGain(t *testing.T) {
	t.Parallel()
	f := NewThreeBand(44100, 200, 2000)

	if err := f.SetGain(BandLow, 0.5); err != nil {
		t.Errorf("low: unexpected error %v", err)
	}
	if err := f.SetGain(BandMid, 1.5); err != nil {
		t.Errorf("mid: unexpected error %v", err)
	}
	if err := f.SetGain(BandHigh, 2.0); err != nil {
		t.Errorf("high: unexpected error %v", err)
	}
	low, mid, high := f.Gains()
	if low != 0.5 || mid != 1.5 || high != 2.0 {
		t.Errorf("gains: got %g/%g/%g, want 0.5/1.5/2.0", low, mid, high)
	}

	if err := f.SetGain("presence", 1.0); err == nil {
		t.Error("expected error for unknown band name")
	}

	// Negative gains clamp to zero rather than inverting phase.
	if err := f.SetGain(BandLow, -3); err != nil {
		t.Errorf("negative gain: unexpected error %v", err)
	}
	if low, _, _ := f.Gains(); low != 0 {
		t.Errorf("negative gain should clamp to 0, got %g", low)
	}
}

// TestResetClearsCarriedState verifies a fresh-stream reset: after Reset,
// silence in is exactly silence out on both channels.
func TestResetClearsCarriedState(t *testing.T) {
	t.Parallel()
	f := NewThreeBand(44100, 200, 2000)
	f.SetGains(2, 0.5, 1.5)
	for i := 0; i < 1000; i++ {
		f.ProcessSample(0, 1.0)
		f.ProcessSample(1, -1.0)
	}

	f.Reset()

	for ch := 0; ch < 2; ch++ {
		if out := f.ProcessSample(ch, 0); out != 0 {
			t.Errorf("channel %d after reset: got %g, want exactly 0", ch, out)
		}
	}
}

func TestSoftLimitBounds(t *testing.T) {
	t.Parallel()
	buf := []float64{-100, -2, -1, -0.5, 0, 0.5, 1, 2, 100}
	SoftLimit(buf)
	for i, v := range buf {
		if math.Abs(v) >= 0.9+1e-12 {
			t.Errorf("sample %d: |%g| not bounded by 0.9", i, v)
		}
	}
	if buf[4] != 0 {
		t.Errorf("limiter must map 0 to 0, got %g", buf[4])
	}
	// Small signals pass nearly unchanged.
	if math.Abs(SoftLimitSample(0.1)-0.1*0.9*0.9) > 0.01 {
		t.Errorf("limiter too aggressive on small signal: %g", SoftLimitSample(0.1))
	}
}

// BenchmarkProcessBlock measures the block path on one render chunk.
func BenchmarkProcessBlock(b *testing.B) {
	f := NewThreeBand(44100, 200, 2000)
	chunk := whiteNoise(256, 1)
	buf := make([]float64, len(chunk))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(buf, chunk)
		f.ProcessBlock(0, buf)
	}
}

// TestProcessBlockAllocations keeps the render hot path allocation-free
// once scratch buffers are warm.
func TestProcessBlockAllocations(t *testing.T) {
	f := NewThreeBand(44100, 200, 2000)
	buf := whiteNoise(256, 3)
	f.ProcessBlock(0, buf) // warm scratch

	allocs := testing.AllocsPerRun(100, func() {
		f.ProcessBlock(0, buf)
	})
	if allocs > 0 {
		t.Errorf("expected zero allocations in ProcessBlock, got %.1f", allocs)
	}
}
