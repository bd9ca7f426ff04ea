// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"sync"
	"time"

	applog "stemmix/internal/log"
	"stemmix/internal/transport"
)

// busMeter holds the latest measured levels for one bus.
type busMeter struct {
	Name string
	Peak float64
	RMS  float64
}

// MeterProcessor measures per-bus and master peak/RMS each render cycle.
// Results go out two ways: pushed to an optional Transport (rate limited)
// and pulled by publishers through the MeterProvider interface.
type MeterProcessor struct {
	transport transport.Transport

	mu     sync.RWMutex
	buses  []busMeter
	master busMeter

	lastSend     time.Time
	sendInterval time.Duration
}

// NewMeterProcessor creates a meter stage for busCount buses. transport
// may be nil; the processor then only serves pull-based consumers.
func NewMeterProcessor(busCount int, t transport.Transport) *MeterProcessor {
	applog.Infof("Analysis: Initializing MeterProcessor (%d buses)", busCount)
	return &MeterProcessor{
		transport:    t,
		buses:        make([]busMeter, busCount),
		sendInterval: 50 * time.Millisecond,
	}
}

// Process measures the frame's bus chunks and master mix.
func (m *MeterProcessor) Process(f *Frame) {
	m.mu.Lock()
	for i := range f.BusChunks {
		if i >= len(m.buses) {
			break
		}
		peak, rms := measureStereo(&f.BusChunks[i])
		m.buses[i] = busMeter{Name: f.BusNames[i], Peak: peak, RMS: rms}
	}
	peak, rms := measureStereo(&f.Master)
	m.master = busMeter{Name: "master", Peak: peak, RMS: rms}
	m.mu.Unlock()

	m.maybePublish()
}

// maybePublish pushes a meter frame to the transport, rate limited so the
// render cadence (~172Hz at 256/44100) doesn't flood dashboards.
func (m *MeterProcessor) maybePublish() {
	if m.transport == nil {
		return
	}
	now := time.Now()
	if now.Sub(m.lastSend) < m.sendInterval {
		return
	}
	m.lastSend = now

	m.mu.RLock()
	frame := map[string]interface{}{"type": "meters"}
	for _, b := range m.buses {
		frame[b.Name] = map[string]float64{"peak": b.Peak, "rms": b.RMS}
	}
	frame["master"] = map[string]float64{"peak": m.master.Peak, "rms": m.master.RMS}
	m.mu.RUnlock()

	if err := m.transport.Send(frame); err != nil {
		applog.Warnf("Analysis: error sending meter frame: %v", err)
	}
}

// MeterCount returns the number of values MetersInto writes:
// peak and RMS per bus, then peak and RMS for the master.
func (m *MeterProcessor) MeterCount() int {
	return len(m.buses)*2 + 2
}

// MetersInto copies the latest meter values into dst in bus order
// (peak, rms pairs), master last.
func (m *MeterProcessor) MetersInto(dst []float64) (int, error) {
	need := m.MeterCount()
	if len(dst) < need {
		return 0, fmt.Errorf("meter buffer too small: %d < %d", len(dst), need)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	i := 0
	for _, b := range m.buses {
		dst[i] = b.Peak
		dst[i+1] = b.RMS
		i += 2
	}
	dst[i] = m.master.Peak
	dst[i+1] = m.master.RMS
	return need, nil
}

// Close releases nothing; the transport is owned by the caller.
func (m *MeterProcessor) Close() error { return nil }

var _ Processor = (*MeterProcessor)(nil)
var _ transport.MeterProvider = (*MeterProcessor)(nil)

// measureStereo returns the peak and RMS over both channels of a chunk.
func measureStereo(chunk *[2][]float64) (peak, rms float64) {
	n := len(chunk[0]) + len(chunk[1])
	if n == 0 {
		return 0, 0
	}
	var sumSq float64
	for ch := 0; ch < 2; ch++ {
		for _, v := range chunk[ch] {
			if a := math.Abs(v); a > peak {
				peak = a
			}
			sumSq += v * v
		}
	}
	return peak, math.Sqrt(sumSq / float64(n))
}
