// SPDX-License-Identifier: MIT
package engine

import (
	"stemmix/internal/dsp"
)

// Deck labels. A deck is an addressing convention over a bus: external
// senders talk about decks, the engine mixes buses.
var deckNames = [NumDecks]string{"A", "B", "C", "D"}

// NumDecks is the number of mix buses the engine runs.
const NumDecks = 4

// Numeric stem ids are grouped into hundreds-wide ranges starting at 1000:
// 1000–1099 play on deck A, 1100–1199 on B, and so on. Ids outside the
// deck ranges land on deck A.
const (
	deckIDBase  = 1000
	deckIDWidth = 100
)

// MixBus is one named mixing channel: a crossfade level, a three-band EQ,
// and a pre-allocated stereo accumulation chunk.
//
// level and the pending gains are committed under the engine mutex; the
// filter itself is owned by the render thread, which applies the pending
// gains at chunk start. That keeps control writes and per-sample DSP off
// the same memory.
type MixBus struct {
	name  string
	level float64

	lowGain  float64
	midGain  float64
	highGain float64

	// resetFilter asks the render thread to clear the filter's carried
	// state at the next chunk start. Set on /reset, which begins a fresh
	// stream; the control thread never touches the filter directly.
	resetFilter bool

	filter *dsp.ThreeBandFilter
	chunk  [2][]float64
}

func newMixBus(name string, sampleRate, lowHz, highHz float64, chunkFrames int) *MixBus {
	b := &MixBus{
		name:     name,
		level:    1.0,
		lowGain:  1.0,
		midGain:  1.0,
		highGain: 1.0,
		filter:   dsp.NewThreeBand(sampleRate, lowHz, highHz),
	}
	b.chunk[0] = make([]float64, chunkFrames)
	b.chunk[1] = make([]float64, chunkFrames)
	return b
}

// setNeutral restores unity level and flat EQ, and schedules a filter
// state clear for the next chunk.
func (b *MixBus) setNeutral() {
	b.level = 1.0
	b.lowGain = 1.0
	b.midGain = 1.0
	b.highGain = 1.0
	b.resetFilter = true
}

// DeckForID maps a numeric stem id to its deck index.
func DeckForID(id int) int {
	idx := (id - deckIDBase) / deckIDWidth
	if idx < 0 || idx >= NumDecks {
		return 0
	}
	return idx
}

// DeckIndex resolves a deck label ("A".."D", case-sensitive single letter)
// to a bus index.
func DeckIndex(label string) (int, bool) {
	for i, name := range deckNames {
		if label == name {
			return i, true
		}
	}
	return 0, false
}

// DeckName returns the label for a bus index.
func DeckName(idx int) string {
	if idx < 0 || idx >= NumDecks {
		return deckNames[0]
	}
	return deckNames[idx]
}

// cueBufferID reserves the top slot of each deck's id range for /cue loads.
func cueBufferID(deck int) int {
	return deckIDBase + deck*deckIDWidth + deckIDWidth - 1
}
