// SPDX-License-Identifier: MIT
/*
Package engine implements the multi-deck mixing core: stem players, deck
buses with three-band EQ, the tempo clock, and the render loop.

Concurrency model:
  - The render callback runs on PortAudio's audio thread at one chunk per
    cadence (framesPerBuffer / sampleRate). It takes the engine mutex only
    at chunk boundaries, to snapshot player cursors and commit bus gains;
    the per-sample DSP runs unlocked on render-thread-owned buffers.
  - Control handlers mutate players, levels and gains under the same mutex.
    Changes land at the next chunk boundary, a bounded staleness of one
    chunk period (~5.8ms at the defaults).
  - Filter state is owned by the render thread exclusively; control writes
    pending gain values on the bus, never the filter.
*/
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"stemmix/internal/analysis"
	"stemmix/internal/asset"
	"stemmix/internal/config"
	"stemmix/internal/device"
	"stemmix/internal/dsp"
	applog "stemmix/internal/log"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// Engine lifecycle states.
const (
	StateIdle int32 = iota
	StateRunning
	StateStopped
)

// Status is a point-in-time snapshot of engine state for /get_status and
// the status hub.
type Status struct {
	SampleRate      float64            `json:"sample_rate"`
	FramesPerBuffer int                `json:"frames_per_buffer"`
	BPM             float64            `json:"bpm"`
	BeatPosition    float64            `json:"beat_position"`
	BufferCount     int                `json:"buffer_count"`
	BufferIDs       []int              `json:"buffer_ids"`
	PlayerCount     int                `json:"player_count"`
	ActiveCount     int                `json:"active_count"`
	MasterVolume    float64            `json:"master_volume"`
	Levels          map[string]float64 `json:"levels"`
	Running         bool               `json:"running"`
}

// cursorSlot pairs a player with its render-pass cursor copy.
type cursorSlot struct {
	player *StemPlayer
	cur    cursor
}

// Engine owns all players, buses and the render loop.
type Engine struct {
	cfg   *config.Config
	store *asset.Store
	clock *TempoClock

	mu           sync.Mutex
	players      map[int]*StemPlayer
	buses        [NumDecks]*MixBus
	masterVolume float64

	state  atomic.Int32
	stream *device.OutputStream

	// Render-thread scratch, pre-allocated to the chunk size.
	master  [2][]float64
	tmp     []float64
	cursors []cursorSlot

	processors []analysis.Processor
	frame      analysis.Frame
}

// New creates an engine with four neutral buses and no players.
func New(cfg *config.Config, store *asset.Store, clock *TempoClock) *Engine {
	frames := cfg.Audio.FramesPerBuffer
	e := &Engine{
		cfg:          cfg,
		store:        store,
		clock:        clock,
		players:      make(map[int]*StemPlayer),
		masterVolume: cfg.Mixer.MasterVolume,
		tmp:          make([]float64, frames),
		cursors:      make([]cursorSlot, 0, 16),
	}
	e.master[0] = make([]float64, frames)
	e.master[1] = make([]float64, frames)

	for i := 0; i < NumDecks; i++ {
		e.buses[i] = newMixBus(DeckName(i), cfg.Audio.SampleRate,
			cfg.Mixer.LowCrossoverHz, cfg.Mixer.HighCrossoverHz, frames)
	}

	e.frame = analysis.Frame{
		SampleRate: cfg.Audio.SampleRate,
		BusNames:   make([]string, NumDecks),
		BusLevels:  make([]float64, NumDecks),
		BusChunks:  make([][2][]float64, NumDecks),
	}
	for i := 0; i < NumDecks; i++ {
		e.frame.BusNames[i] = e.buses[i].name
	}

	return e
}

// AddProcessor registers a render-cycle observer. Must be called before
// Start; the processor list is not guarded after the stream is live.
func (e *Engine) AddProcessor(p analysis.Processor) {
	e.processors = append(e.processors, p)
}

// Start opens the output stream and begins rendering. Device failure here
// is the caller's one fatal error path.
func (e *Engine) Start() error {
	if e.state.Load() == StateRunning {
		return fmt.Errorf("engine already running")
	}

	stream, err := device.Open(&e.cfg.Audio, e.renderCallback)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		return err
	}
	e.stream = stream
	e.state.Store(StateRunning)
	applog.Infof("Engine: Running (%.0f Hz, %d frames/chunk, %d buses)",
		e.cfg.Audio.SampleRate, e.cfg.Audio.FramesPerBuffer, NumDecks)
	return nil
}

// Stop halts the output stream, releases the device, and closes any
// registered processors that hold resources.
func (e *Engine) Stop() error {
	if e.state.Load() == StateRunning {
		e.state.Store(StateStopped)
		if e.stream != nil {
			if err := e.stream.Close(); err != nil {
				return err
			}
			e.stream = nil
		}
	}
	for _, p := range e.processors {
		if c, ok := p.(analysis.ClosableProcessor); ok {
			if err := c.Close(); err != nil {
				applog.Warnf("Engine: error closing processor: %v", err)
			}
		}
	}
	return nil
}

// renderCallback is the PortAudio output callback: render one chunk and
// interleave it into the device buffer. The device's own pacing is the
// loop's backpressure.
func (e *Engine) renderCallback(out []float32) {
	frames := len(out) / config.DefaultChannels
	if frames > len(e.master[0]) {
		frames = len(e.master[0])
	}

	e.RenderChunk(frames)

	for i := 0; i < frames; i++ {
		out[2*i] = float32(e.master[0][i])
		out[2*i+1] = float32(e.master[1][i])
	}
}

// RenderChunk produces one chunk of the master mix into the engine's
// master buffers. Exposed for the render callback and for tests, which
// drive it directly instead of opening a device.
func (e *Engine) RenderChunk(frames int) {
	// Zero accumulators.
	for i := 0; i < NumDecks; i++ {
		zero(e.buses[i].chunk[0][:frames])
		zero(e.buses[i].chunk[1][:frames])
	}
	zero(e.master[0][:frames])
	zero(e.master[1][:frames])

	// Chunk-boundary critical section: snapshot cursors, commit bus gains,
	// copy levels. No per-sample math happens under the lock.
	e.mu.Lock()
	e.cursors = e.cursors[:0]
	for _, p := range e.players {
		if p.playing {
			e.cursors = append(e.cursors, cursorSlot{player: p, cur: p.snapshot()})
		}
	}
	var levels [NumDecks]float64
	for i, b := range e.buses {
		levels[i] = b.level
		if b.resetFilter {
			b.filter.Reset()
			b.resetFilter = false
		}
		b.filter.SetGains(b.lowGain, b.midGain, b.highGain)
	}
	masterVolume := e.masterVolume
	e.mu.Unlock()

	// Render each player into its bus, isolating per-player failures.
	for i := range e.cursors {
		slot := &e.cursors[i]
		e.renderPlayer(slot, frames)
	}

	// Per bus: EQ, then scale by level into the master sum. The filter
	// always runs, even on a muted bus, so its state stays continuous for
	// when the level comes back.
	for i, b := range e.buses {
		b.filter.ProcessBlock(0, b.chunk[0][:frames])
		b.filter.ProcessBlock(1, b.chunk[1][:frames])
		if levels[i] == 0 {
			continue
		}
		for ch := 0; ch < 2; ch++ {
			vecmath.ScaleBlock(e.tmp[:frames], b.chunk[ch][:frames], levels[i])
			vecmath.AddBlockInPlace(e.master[ch][:frames], e.tmp[:frames])
		}
	}

	// Master gain, then soft limit.
	for ch := 0; ch < 2; ch++ {
		if masterVolume != 1.0 {
			vecmath.ScaleBlock(e.master[ch][:frames], e.master[ch][:frames], masterVolume)
		}
		dsp.SoftLimit(e.master[ch][:frames])
	}

	// Commit cursor positions back, skipping players that were replaced
	// or removed mid-chunk.
	e.mu.Lock()
	for i := range e.cursors {
		slot := &e.cursors[i]
		if current, ok := e.players[slot.player.bufferID]; ok && current == slot.player {
			slot.player.commit(slot.cur)
		}
	}
	e.mu.Unlock()

	e.notifyProcessors(frames, &levels)
}

// renderPlayer runs one player's render with panic isolation: a fault in
// one stem stops that stem, never the loop.
func (e *Engine) renderPlayer(slot *cursorSlot, frames int) {
	defer func() {
		if r := recover(); r != nil {
			applog.Errorf("Engine: player %d render panic: %v; stopping it", slot.player.bufferID, r)
			slot.cur.playing = false
		}
	}()
	dst := &e.buses[slot.player.deck].chunk
	slot.cur.renderInto(dst, frames)
}

func (e *Engine) notifyProcessors(frames int, levels *[NumDecks]float64) {
	if len(e.processors) == 0 {
		return
	}
	for i, b := range e.buses {
		e.frame.BusChunks[i] = [2][]float64{b.chunk[0][:frames], b.chunk[1][:frames]}
		e.frame.BusLevels[i] = levels[i]
	}
	e.frame.Master = [2][]float64{e.master[0][:frames], e.master[1][:frames]}
	for _, p := range e.processors {
		p.Process(&e.frame)
	}
}

// Master exposes the last rendered master chunk for tests.
func (e *Engine) Master() *[2][]float64 {
	return &e.master
}

func zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}
