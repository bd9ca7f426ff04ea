// SPDX-License-Identifier: MIT
/*
Package device wraps the PortAudio output side: subsystem lifecycle,
device lookup, device listing, and opening the paced output stream the
render loop runs on.
*/
package device

import (
	"fmt"
	"time"

	"stemmix/internal/config"

	"github.com/gordonklaus/portaudio"
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// This should be deferred immediately after Initialize().
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// OutputDevice retrieves the audio output device for the given device ID.
// If deviceID is config.MinDeviceID (-1), returns the system default output
// device. Returns an error if the device ID is invalid or no such device exists.
func OutputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	if deviceID == config.MinDeviceID {
		device, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, err
		}
		return device, nil
	}

	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	if devices[deviceID].MaxOutputChannels < config.DefaultChannels {
		return nil, fmt.Errorf("device %d (%s) has no stereo output", deviceID, devices[deviceID].Name)
	}
	return devices[deviceID], nil
}

// OutputStream is an open PortAudio output stream. The callback passed to
// Open runs on PortAudio's audio thread at the stream's chunk cadence; it
// is the render loop's pacing mechanism.
type OutputStream struct {
	stream *portaudio.Stream
}

// Open opens (but does not start) a stereo float32 output stream on the
// configured device. Failure here is the one fatal error class in the
// engine: without an output device there is nothing to pace the loop.
func Open(cfg *config.AudioConfig, callback func(out []float32)) (*OutputStream, error) {
	dev, err := OutputDevice(cfg.OutputDevice)
	if err != nil {
		return nil, fmt.Errorf("output device: %w", err)
	}

	var latency time.Duration
	if cfg.LowLatency {
		latency = dev.DefaultLowOutputLatency
	} else {
		latency = dev.DefaultHighOutputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: config.DefaultChannels,
			Device:   dev,
			Latency:  latency,
		},
		FramesPerBuffer: cfg.FramesPerBuffer,
		SampleRate:      cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	return &OutputStream{stream: stream}, nil
}

// Start begins playback; PortAudio starts invoking the callback.
func (s *OutputStream) Start() error {
	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}
	return nil
}

// Close stops and closes the stream.
func (s *OutputStream) Close() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return err
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	s.stream = nil
	return nil
}
