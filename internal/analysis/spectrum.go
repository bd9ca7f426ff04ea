// SPDX-License-Identifier: MIT
package analysis

import (
	"math/cmplx"
	"time"

	applog "stemmix/internal/log"
	"stemmix/internal/transport"
	"stemmix/pkg/bitint"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// SpectrumProcessor computes a Hann-windowed magnitude spectrum of the
// master mono mix and sends it over a Transport, rate limited. The FFT
// size is the next power of two at or above the render chunk; shorter
// chunks are zero padded.
type SpectrumProcessor struct {
	fft        *fourier.FFT
	fftSize    int
	sampleRate float64
	transport  transport.Transport

	// Pre-allocated workspace; Process runs on the render thread.
	input     []float64
	coeffs    []complex128
	magnitude []float64
	hann      []float64

	lastSend     time.Time
	sendInterval time.Duration
}

// NewSpectrumProcessor creates a spectrum stage for the given chunk size.
func NewSpectrumProcessor(chunkFrames int, sampleRate float64, t transport.Transport) *SpectrumProcessor {
	fftSize := bitint.NextPowerOfTwo(chunkFrames)

	hann := make([]float64, fftSize)
	for i := range hann {
		hann[i] = 1
	}
	window.Hann(hann)

	applog.Infof("Analysis: Initializing SpectrumProcessor (size: %d, sample rate: %.1f Hz)", fftSize, sampleRate)

	return &SpectrumProcessor{
		fft:          fourier.NewFFT(fftSize),
		fftSize:      fftSize,
		sampleRate:   sampleRate,
		transport:    t,
		input:        make([]float64, fftSize),
		coeffs:       make([]complex128, fftSize/2+1),
		magnitude:    make([]float64, fftSize/2+1),
		hann:         hann,
		sendInterval: 50 * time.Millisecond,
	}
}

// Process folds the master chunk to mono, windows it, and publishes the
// magnitude spectrum if the rate limit allows.
func (p *SpectrumProcessor) Process(f *Frame) {
	if p.transport == nil {
		return
	}
	now := time.Now()
	if now.Sub(p.lastSend) < p.sendInterval {
		return
	}
	p.lastSend = now

	n := len(f.Master[0])
	if n > p.fftSize {
		n = p.fftSize
	}
	for i := 0; i < n; i++ {
		p.input[i] = (f.Master[0][i] + f.Master[1][i]) * 0.5
	}
	for i := n; i < p.fftSize; i++ {
		p.input[i] = 0
	}
	vecmath.MulBlockInPlace(p.input, p.hann)

	p.fft.Coefficients(p.coeffs, p.input)
	peakBin := 0
	for i, c := range p.coeffs {
		p.magnitude[i] = cmplx.Abs(c) / float64(p.fftSize)
		if p.magnitude[i] > p.magnitude[peakBin] {
			peakBin = i
		}
	}

	frame := map[string]interface{}{
		"type":        "spectrum",
		"sample_rate": p.sampleRate,
		"peak_hz":     p.FrequencyForBin(peakBin),
		"bins":        p.magnitude,
	}
	if err := p.transport.Send(frame); err != nil {
		applog.Warnf("Analysis: error sending spectrum frame: %v", err)
	}
}

// FrequencyForBin returns the center frequency (Hz) for an FFT bin index.
func (p *SpectrumProcessor) FrequencyForBin(binIndex int) float64 {
	return float64(binIndex) * p.sampleRate / float64(p.fftSize)
}

// Close releases nothing; the transport is owned by the caller.
func (p *SpectrumProcessor) Close() error { return nil }

var _ Processor = (*SpectrumProcessor)(nil)
