// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"path/filepath"
	"time"

	applog "stemmix/internal/log"
)

// The operations in this file are the engine's control surface, called by
// the protocol layer. Each runs a short critical section over the player
// and bus tables; buffer decode (Load/Cue) blocks the calling goroutine
// on file I/O but never the render thread.

// LoadBuffer decodes the file at path into the asset store under id,
// replacing any existing buffer with that id.
func (e *Engine) LoadBuffer(id int, path, name string) error {
	return e.store.Load(id, path, name)
}

// PlayStem creates (or replaces) the player bound to buffer id and starts
// it. Referencing an unloaded buffer is an error and mutates nothing.
func (e *Engine) PlayStem(id int, rate, volume float64, loop bool, startPos float64) error {
	buf, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("buffer %d not loaded", id)
	}

	p := newStemPlayer(buf, id, DeckForID(id), rate, volume, loop, startPos)
	p.playing = true

	e.mu.Lock()
	e.players[id] = p
	e.mu.Unlock()

	applog.Debugf("Engine: play stem %d (deck %s, rate %.2f, vol %.2f, loop %v, pos %.1f)",
		id, DeckName(p.deck), p.rate, p.volume, loop, p.position)
	return nil
}

// StopStem stops and removes the player bound to id. Unknown ids are a
// no-op by design; schedulers fire redundant stops.
func (e *Engine) StopStem(id int) {
	e.mu.Lock()
	if p, ok := e.players[id]; ok {
		p.playing = false
		delete(e.players, id)
	}
	e.mu.Unlock()
}

// SetStemVolume updates the volume of an existing player.
func (e *Engine) SetStemVolume(id int, volume float64) error {
	if volume < 0 {
		volume = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[id]
	if !ok {
		return fmt.Errorf("no player for id %d", id)
	}
	p.volume = volume
	return nil
}

// SetBusLevels sets crossfade levels for the first len(levels) buses.
// Negative levels clamp to zero.
func (e *Engine) SetBusLevels(levels ...float64) {
	e.mu.Lock()
	for i, l := range levels {
		if i >= NumDecks {
			break
		}
		if l < 0 {
			l = 0
		}
		e.buses[i].level = l
	}
	e.mu.Unlock()
}

// SetDeckEQ sets one band gain on a deck's filter. The gain is already in
// linear form (the protocol layer maps control values to gains).
func (e *Engine) SetDeckEQ(deck, band string, gain float64) error {
	idx, ok := DeckIndex(deck)
	if !ok {
		return fmt.Errorf("unknown deck %q", deck)
	}
	if gain < 0 {
		gain = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.buses[idx]
	switch band {
	case "low":
		b.lowGain = gain
	case "mid":
		b.midGain = gain
	case "high":
		b.highGain = gain
	default:
		return fmt.Errorf("unknown EQ band %q", band)
	}
	return nil
}

// SetDeckEQAll sets all three band gains on a deck's filter.
func (e *Engine) SetDeckEQAll(deck string, low, mid, high float64) error {
	idx, ok := DeckIndex(deck)
	if !ok {
		return fmt.Errorf("unknown deck %q", deck)
	}

	e.mu.Lock()
	b := e.buses[idx]
	b.lowGain = clampGain(low)
	b.midGain = clampGain(mid)
	b.highGain = clampGain(high)
	e.mu.Unlock()
	return nil
}

func clampGain(g float64) float64 {
	if g < 0 {
		return 0
	}
	return g
}

// Cue loads the file at path into the deck's reserved cue slot and parks a
// paused, looping player at position. A later /start_group (or deck start)
// sets it playing.
func (e *Engine) Cue(deck, path string, position float64) error {
	idx, ok := DeckIndex(deck)
	if !ok {
		return fmt.Errorf("unknown deck %q", deck)
	}

	id := cueBufferID(idx)
	name := filepath.Base(path)
	if err := e.store.Load(id, path, name); err != nil {
		return err
	}
	buf, _ := e.store.Get(id)

	p := newStemPlayer(buf, id, idx, 1.0, 0.8, true, position)

	e.mu.Lock()
	e.players[id] = p
	e.mu.Unlock()

	applog.Debugf("Engine: cued %s on deck %s at %.1f frames", name, deck, position)
	return nil
}

// StartDeck sets every player assigned to the deck playing.
func (e *Engine) StartDeck(deck string) error {
	idx, ok := DeckIndex(deck)
	if !ok {
		return fmt.Errorf("unknown deck %q", deck)
	}

	e.mu.Lock()
	started := 0
	for _, p := range e.players {
		if p.deck == idx && !p.playing {
			p.playing = true
			started++
		}
	}
	e.mu.Unlock()

	applog.Debugf("Engine: started deck %s (%d players)", deck, started)
	return nil
}

// StartGroupAfter schedules a deck start after offset seconds. The offset
// anchors at receipt; sample-accurate cross-deck sync is the external
// scheduler's job. Offsets <= 0 start the deck immediately.
func (e *Engine) StartGroupAfter(offset float64, deck string) error {
	if _, ok := DeckIndex(deck); !ok {
		return fmt.Errorf("unknown deck %q", deck)
	}
	if offset <= 0 {
		return e.StartDeck(deck)
	}

	time.AfterFunc(time.Duration(offset*float64(time.Second)), func() {
		if err := e.StartDeck(deck); err != nil {
			applog.Errorf("Engine: scheduled deck start failed: %v", err)
		}
	})
	return nil
}

// SetTempo updates the tempo clock.
func (e *Engine) SetTempo(bpm float64) error {
	return e.clock.SetBPM(bpm)
}

// SetMasterVolume updates the master gain applied before the limiter.
func (e *Engine) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	e.mu.Lock()
	e.masterVolume = volume
	e.mu.Unlock()
}

// Reset clears all buffers and players and restores neutral levels and
// flat EQ on every bus; the render thread clears the EQ filter state at
// the next chunk, since a reset begins a fresh stream. Tempo is left
// alone; /set_tempo owns it.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.players = make(map[int]*StemPlayer)
	for _, b := range e.buses {
		b.setNeutral()
	}
	e.masterVolume = e.cfg.Mixer.MasterVolume
	e.mu.Unlock()

	e.store.Reset()
	applog.Infof("Engine: reset (buffers/players cleared, levels and EQ neutral)")
}

// Cleanup stops every player and frees all buffers. Levels and EQ are left
// as-is: cleanup is "free the memory", reset is "back to neutral".
func (e *Engine) Cleanup() {
	e.mu.Lock()
	for _, p := range e.players {
		p.playing = false
	}
	e.players = make(map[int]*StemPlayer)
	e.mu.Unlock()

	e.store.Reset()
	applog.Infof("Engine: cleanup (players stopped, buffers freed)")
}

// Snapshot captures current engine state for status reporting.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	levels := make(map[string]float64, NumDecks)
	for _, b := range e.buses {
		levels[b.name] = b.level
	}
	playerCount := len(e.players)
	active := 0
	for _, p := range e.players {
		if p.playing {
			active++
		}
	}
	masterVolume := e.masterVolume
	e.mu.Unlock()

	return Status{
		SampleRate:      e.cfg.Audio.SampleRate,
		FramesPerBuffer: e.cfg.Audio.FramesPerBuffer,
		BPM:             e.clock.BPM(),
		BeatPosition:    e.clock.BeatPosition(),
		BufferCount:     e.store.Count(),
		BufferIDs:       e.store.IDs(),
		PlayerCount:     playerCount,
		ActiveCount:     active,
		MasterVolume:    masterVolume,
		Levels:          levels,
		Running:         e.state.Load() == StateRunning,
	}
}

// PlayerPosition reports the playback position of the player bound to id.
func (e *Engine) PlayerPosition(id int) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[id]
	if !ok {
		return 0, false
	}
	return p.position, true
}

// PlayerCount returns the number of players (playing or parked).
func (e *Engine) PlayerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.players)
}
