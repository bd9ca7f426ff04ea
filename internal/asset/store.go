// SPDX-License-Identifier: MIT
/*
Package asset owns the decoded sample buffers the mixing engine plays from.

Buffers are immutable after load: players hold read-only references and the
store is the only writer of the id→buffer map. Loading the same id again
replaces the old buffer; players bound to the old one keep rendering it
until they are restarted (the slices stay valid, the map entry does not).
*/
package asset

import (
	"fmt"
	"os"
	"sync"

	applog "stemmix/internal/log"

	"github.com/go-audio/wav"
)

// AudioBuffer is an immutable stereo sample buffer. Samples are stored
// planar as float64 in [-1, 1]; mono sources are duplicated to both
// channels at load time, wider sources are reduced to their first two.
type AudioBuffer struct {
	ID         int
	Name       string
	SampleRate int
	FrameCount int
	Samples    [2][]float64
}

// LoadError describes a failed buffer load. The store guarantees that no
// buffer exists under the requested id after a failed load.
type LoadError struct {
	ID   int
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load buffer %d from %q: %v", e.ID, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Store is the exclusive owner of the id→buffer map.
type Store struct {
	mu      sync.Mutex
	buffers map[int]*AudioBuffer
}

// NewStore creates an empty buffer store.
func NewStore() *Store {
	return &Store{buffers: make(map[int]*AudioBuffer)}
}

// Load decodes the WAV file at path into a stereo buffer under id,
// replacing any existing buffer with that id. On failure the store is left
// without a buffer under id and a *LoadError is returned; the caller logs
// it and carries on.
func (s *Store) Load(id int, path, name string) error {
	buf, err := decodeWAV(path)
	if err != nil {
		// Drop any previous buffer under this id: a replace that fails must
		// not leave the stale content addressable.
		s.mu.Lock()
		delete(s.buffers, id)
		s.mu.Unlock()
		return &LoadError{ID: id, Path: path, Err: err}
	}

	buf.ID = id
	buf.Name = name

	s.mu.Lock()
	s.buffers[id] = buf
	s.mu.Unlock()

	applog.Infof("Asset: Loaded buffer %d (%q, %d frames @ %d Hz) from %s",
		id, name, buf.FrameCount, buf.SampleRate, path)
	return nil
}

// Get returns the buffer under id, if any.
func (s *Store) Get(id int) (*AudioBuffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.buffers[id]
	return buf, ok
}

// Evict removes the buffer under id. The caller is responsible for stopping
// any player bound to it first.
func (s *Store) Evict(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buffers[id]; ok {
		delete(s.buffers, id)
		applog.Debugf("Asset: Evicted buffer %d", id)
	}
}

// Reset drops every buffer.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = make(map[int]*AudioBuffer)
}

// Count returns the number of loaded buffers.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers)
}

// IDs returns the loaded buffer ids in no particular order.
func (s *Store) IDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	return ids
}

// decodeWAV reads a whole WAV file into a normalized stereo buffer.
// Decode happens on the control path, never on the render thread, so
// blocking on file I/O here is fine.
func decodeWAV(path string) (*AudioBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode PCM: %w", err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("missing format information")
	}

	channels := pcm.Format.NumChannels
	frames := len(pcm.Data) / channels
	if frames == 0 {
		return nil, fmt.Errorf("file contains no audio frames")
	}

	// Scale integer PCM to [-1, 1] based on the source bit depth.
	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	buf := &AudioBuffer{
		SampleRate: pcm.Format.SampleRate,
		FrameCount: frames,
	}
	buf.Samples[0] = make([]float64, frames)
	buf.Samples[1] = make([]float64, frames)

	for i := 0; i < frames; i++ {
		left := float64(pcm.Data[i*channels]) * scale
		right := left
		if channels >= 2 {
			right = float64(pcm.Data[i*channels+1]) * scale
		}
		buf.Samples[0][i] = left
		buf.Samples[1][i] = right
	}

	return buf, nil
}
