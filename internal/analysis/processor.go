// SPDX-License-Identifier: MIT
package analysis

// Frame is one render cycle's worth of observable mix state. The slices
// are borrowed from the engine's pre-allocated chunks and are only valid
// for the duration of the Process call; processors that need the data
// afterwards must copy it.
type Frame struct {
	SampleRate float64
	BusNames   []string
	BusLevels  []float64
	BusChunks  [][2][]float64
	Master     [2][]float64
}

// Processor consumes frames on the render thread. Implementations must be
// cheap and non-blocking; anything expensive belongs behind a rate limit
// or a pull-based publisher.
type Processor interface {
	Process(f *Frame)
}

// ClosableProcessor combines Processor with a Close method for cleanup.
type ClosableProcessor interface {
	Processor
	Close() error
}
