// SPDX-License-Identifier: MIT
/*
Package dsp implements the streaming three-band equalizer and the master
soft limiter.

The equalizer is a cascade of one-pole sections sharing carried state:

	lp[n]  = (1-aLow)*x[n] + aLow*lp[n-1]
	hp[n]  = aHigh*(hp[n-1] + x[n] - x[n-1])
	mid[n] = x[n] - lp[n] - hp[n]
	out[n] = lowGain*lp[n] + midGain*mid[n] + highGain*hp[n]

State persists across every call; it is never cleared between chunks, a
discontinuity there is an audible click. Two process paths share that
state: ProcessSample is the scalar reference, ProcessBlock is the batched
form used on the render path. Both produce the same output (the block path
runs the same recurrences, only the gain combine is vectorized) and the
tests hold them to a 1e-3 max absolute difference.
*/
package dsp

import (
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// Band gain identifiers accepted by SetGain.
const (
	BandLow  = "low"
	BandMid  = "mid"
	BandHigh = "high"
)

type bandState struct {
	lpPrev float64
	hpPrev float64
	xPrev  float64
}

// ThreeBandFilter splits a stereo stream into low/mid/high bands and
// recombines them with independent gains. One instance per deck bus; the
// render thread is its only caller once the bus is live.
type ThreeBandFilter struct {
	aLow  float64
	aHigh float64

	lowGain  float64
	midGain  float64
	highGain float64

	state [2]bandState

	// Scratch for the block path, grown on demand. Not goroutine-safe,
	// which is fine: a filter belongs to exactly one bus.
	lp  []float64
	hp  []float64
	mid []float64
	tmp []float64
}

// NewThreeBand creates a filter for the given sample rate with band splits
// at lowHz and highHz. All gains start at unity.
func NewThreeBand(sampleRate, lowHz, highHz float64) *ThreeBandFilter {
	return &ThreeBandFilter{
		aLow:     math.Exp(-2 * math.Pi * lowHz / sampleRate),
		aHigh:    math.Exp(-2 * math.Pi * highHz / sampleRate),
		lowGain:  1.0,
		midGain:  1.0,
		highGain: 1.0,
	}
}

// SetGain updates one band gain. Unknown band names are an error so the
// protocol layer can reject them; negative gains are clamped to zero.
func (f *ThreeBandFilter) SetGain(band string, gain float64) error {
	if gain < 0 {
		gain = 0
	}
	switch band {
	case BandLow:
		f.lowGain = gain
	case BandMid:
		f.midGain = gain
	case BandHigh:
		f.highGain = gain
	default:
		return fmt.Errorf("unknown EQ band %q", band)
	}
	return nil
}

// SetGains updates all three band gains at once.
func (f *ThreeBandFilter) SetGains(low, mid, high float64) {
	f.lowGain = math.Max(low, 0)
	f.midGain = math.Max(mid, 0)
	f.highGain = math.Max(high, 0)
}

// Gains returns the current low, mid and high gains.
func (f *ThreeBandFilter) Gains() (low, mid, high float64) {
	return f.lowGain, f.midGain, f.highGain
}

// ProcessSample filters one sample on the given channel (0 or 1) and
// returns the recombined output. This is the reference implementation.
func (f *ThreeBandFilter) ProcessSample(ch int, x float64) float64 {
	s := &f.state[ch]

	lp := (1-f.aLow)*x + f.aLow*s.lpPrev
	hp := f.aHigh * (s.hpPrev + x - s.xPrev)
	mid := x - lp - hp

	s.lpPrev = lp
	s.hpPrev = hp
	s.xPrev = x

	return f.lowGain*lp + f.midGain*mid + f.highGain*hp
}

// ProcessBlock filters one channel's block in place. The band recurrences
// are inherently sequential; the gain combine over the band buffers is
// where the block path wins.
func (f *ThreeBandFilter) ProcessBlock(ch int, buf []float64) {
	n := len(buf)
	if n == 0 {
		return
	}
	f.ensureScratch(n)

	s := &f.state[ch]
	lpPrev, hpPrev, xPrev := s.lpPrev, s.hpPrev, s.xPrev

	lp := f.lp[:n]
	hp := f.hp[:n]
	mid := f.mid[:n]
	for i := 0; i < n; i++ {
		x := buf[i]
		lpPrev = (1-f.aLow)*x + f.aLow*lpPrev
		hpPrev = f.aHigh * (hpPrev + x - xPrev)
		xPrev = x
		lp[i] = lpPrev
		hp[i] = hpPrev
		mid[i] = x - lpPrev - hpPrev
	}

	s.lpPrev = lpPrev
	s.hpPrev = hpPrev
	s.xPrev = xPrev

	tmp := f.tmp[:n]
	vecmath.ScaleBlock(buf, lp, f.lowGain)
	vecmath.ScaleBlock(tmp, mid, f.midGain)
	vecmath.AddBlockInPlace(buf, tmp)
	vecmath.ScaleBlock(tmp, hp, f.highGain)
	vecmath.AddBlockInPlace(buf, tmp)
}

// Reset clears the carried filter state on both channels. Only for teardown
// or reuse on a fresh stream, never between chunks of a live one.
func (f *ThreeBandFilter) Reset() {
	f.state[0] = bandState{}
	f.state[1] = bandState{}
}

func (f *ThreeBandFilter) ensureScratch(n int) {
	if len(f.lp) >= n {
		return
	}
	f.lp = make([]float64, n)
	f.hp = make([]float64, n)
	f.mid = make([]float64, n)
	f.tmp = make([]float64, n)
}
