// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	applog "stemmix/internal/log"
	"stemmix/internal/transport"
)

// Publisher periodically pulls the latest bus meter values from a
// MeterProvider, packs them into a binary packet, and sends them over UDP.
// It runs in its own goroutine managed by Start and Stop.
//
// Packet layout (BigEndian):
//
//	| Sequence Number | Timestamp       | Value Count | Values        |
//	| uint32, 4 bytes | int64, 8 bytes  | uint16, 2B  | N * float32   |
//
// The header mirrors the wire format the dashboards already consume for
// analysis frames; only the payload semantics changed (meters, not FFT).
type Publisher struct {
	sender   *Sender
	provider transport.MeterProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop

	sequenceNum uint32

	// Pre-allocated buffers so the publish tick stays allocation-free.
	meterBuffer  []float64
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher creates a Publisher. An interval <= 0 defaults to 33ms.
func NewPublisher(interval time.Duration, sender *Sender, provider transport.MeterProvider) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("meter publisher: UDP sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("meter publisher: meter provider cannot be nil")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		applog.Warnf("Meter publisher: invalid interval provided, defaulting to %s", interval)
	}

	count := provider.MeterCount()
	applog.Infof("Meter publisher: initializing (interval: %s, values: %d)", interval, count)

	return &Publisher{
		sender:       sender,
		provider:     provider,
		interval:     interval,
		meterBuffer:  make([]float64, count),
		f32Buffer:    make([]float32, count),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing goroutine. Safe to call more than
// once; subsequent calls are no-ops while running.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Meter publisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Capture locals so the goroutine never races Start/Stop on the fields.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("Meter publisher: goroutine started (interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
// Safe to call more than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Publisher) buildAndSendPacket() {
	n, err := p.provider.MetersInto(p.meterBuffer)
	if err != nil {
		applog.Errorf("Meter publisher: error getting meters: %v", err)
		return
	}

	for i := 0; i < n; i++ {
		p.f32Buffer[i] = float32(p.meterBuffer[i])
	}

	p.sequenceNum++
	timestamp := time.Now().UnixNano()
	valueCount := uint16(n)

	p.packetBuffer.Reset()
	err = binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, valueCount)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer[:n])
	}
	if err != nil {
		applog.Errorf("Meter publisher: error packing packet: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		applog.Debugf("Meter publisher: sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	}
}

// Close gracefully stops the publisher goroutine.
func (p *Publisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*Publisher)(nil)
