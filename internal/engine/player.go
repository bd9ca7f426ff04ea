// SPDX-License-Identifier: MIT
package engine

import (
	"stemmix/internal/asset"
)

// minRate guards the step division against rates close enough to zero to
// blow up the per-chunk math.
const minRate = 0.01

// StemPlayer is a playback cursor over a shared immutable buffer. All
// fields are guarded by the owning engine's mutex; the render thread works
// on a cursor copy taken at chunk start and commits position/playing back
// afterwards, so control mutations land with at most one chunk of latency.
type StemPlayer struct {
	buffer   *asset.AudioBuffer
	bufferID int
	deck     int

	position float64 // fractional frame index into the buffer
	rate     float64
	volume   float64
	loop     bool
	playing  bool
}

func newStemPlayer(buf *asset.AudioBuffer, id, deck int, rate, volume float64, loop bool, startPos float64) *StemPlayer {
	if rate < minRate {
		rate = minRate
	}
	if volume < 0 {
		volume = 0
	}
	if startPos < 0 || startPos >= float64(buf.FrameCount) {
		startPos = 0
	}
	return &StemPlayer{
		buffer:   buf,
		bufferID: id,
		deck:     deck,
		position: startPos,
		rate:     rate,
		volume:   volume,
		loop:     loop,
		playing:  false,
	}
}

// cursor is the render thread's private copy of one player's state for a
// single chunk. It keeps the per-sample loop off the engine lock.
type cursor struct {
	buffer   *asset.AudioBuffer
	position float64
	rate     float64
	volume   float64
	loop     bool
	playing  bool
}

func (p *StemPlayer) snapshot() cursor {
	return cursor{
		buffer:   p.buffer,
		position: p.position,
		rate:     p.rate,
		volume:   p.volume,
		loop:     p.loop,
		playing:  p.playing,
	}
}

// commit writes back the fields the render pass is allowed to change.
func (p *StemPlayer) commit(c cursor) {
	p.position = c.position
	p.playing = c.playing
}

// renderInto accumulates up to frames samples into dst, advancing the
// cursor at its playback rate with linear interpolation between source
// frames. Playback that runs out of material either wraps (loop) or stops
// and leaves the rest of the chunk untouched (the bus chunk is pre-zeroed).
func (c *cursor) renderInto(dst *[2][]float64, frames int) {
	buf := c.buffer
	if buf == nil || buf.FrameCount <= 0 {
		c.playing = false
		return
	}

	rate := c.rate
	if rate < minRate {
		rate = minRate
	}
	frameCount := float64(buf.FrameCount)
	lastIdx := buf.FrameCount - 1

	filled := 0
	for filled < frames && c.playing {
		available := frameCount - c.position
		if available <= 0 {
			if c.loop {
				c.position = 0
				continue
			}
			c.playing = false
			break
		}

		step := int(available / rate)
		if step > frames-filled {
			step = frames - filled
		}
		if step <= 0 {
			// Less than one output sample of material left at this rate:
			// push the cursor to the end so the wrap/stop branch decides.
			c.position = frameCount
			continue
		}

		for i := 0; i < step; i++ {
			srcPos := c.position + float64(i)*rate
			idx := int(srcPos)
			if idx > lastIdx {
				idx = lastIdx
			}
			next := idx + 1
			if next > lastIdx {
				next = lastIdx
			}
			frac := srcPos - float64(idx)

			out := filled + i
			dst[0][out] += (buf.Samples[0][idx] + frac*(buf.Samples[0][next]-buf.Samples[0][idx])) * c.volume
			dst[1][out] += (buf.Samples[1][idx] + frac*(buf.Samples[1][next]-buf.Samples[1][idx])) * c.volume
		}

		c.position += float64(step) * rate
		filled += step
	}
}
