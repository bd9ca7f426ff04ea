// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Core constants that bound the mixing engine configuration.
const (
	DefaultSampleRate      = 44100 // CD-quality audio
	DefaultFramesPerBuffer = 256   // One render chunk (~5.8ms at 44.1kHz)
	DefaultChannels        = 2     // The mix bus is always stereo
	DefaultMasterVolume    = 1.0
	DefaultListenAddress   = "127.0.0.1:9000"

	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug    bool          `yaml:"debug"`             // Enable debug mode (verbose logging).
	LogLevel string        `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	Command  string        `yaml:"command,omitempty"` // A one-off command to execute instead of running the engine (e.g., "list").
	Audio    AudioConfig   `yaml:"audio"`             // Output device and render cadence settings.
	Mixer    MixerConfig   `yaml:"mixer"`             // EQ crossover points and master level.
	Control  ControlConfig `yaml:"control"`           // OSC control protocol settings.
	Status   StatusConfig  `yaml:"status"`            // Meter/status publishing settings.
}

// AudioConfig holds settings for the output device and the render loop.
type AudioConfig struct {
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for audio output (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per render chunk (affects latency and control staleness).
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from the PortAudio device.
}

// MixerConfig holds DSP settings shared by all deck buses.
type MixerConfig struct {
	LowCrossoverHz  float64 `yaml:"low_crossover_hz"`  // Low/mid EQ band split frequency.
	HighCrossoverHz float64 `yaml:"high_crossover_hz"` // Mid/high EQ band split frequency.
	MasterVolume    float64 `yaml:"master_volume"`     // Gain applied to the summed mix before the limiter.
}

// ControlConfig holds settings for the OSC control listener.
type ControlConfig struct {
	ListenAddress string `yaml:"listen_address"` // UDP address the OSC server binds to.
	ReplyAddress  string `yaml:"reply_address"`  // Optional OSC target for /status replies ("" disables).
}

// StatusConfig holds settings for publishing meter and status frames.
type StatusConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"` // Enable the websocket status hub.
	WebSocketPort    string        `yaml:"websocket_port"`    // Port for the websocket status hub.
	UDPEnabled       bool          `yaml:"udp_enabled"`       // Enable sending binary meter packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address for meter packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"` // Interval between meter packets.
}

// LoadConfig loads configuration from a YAML file specified by path. If path is
// empty, it searches default locations ("config.yaml"). If no file is found, it
// uses built-in defaults. After loading, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			OutputDevice:    MinDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      false,
		},
		Mixer: MixerConfig{
			LowCrossoverHz:  200,
			HighCrossoverHz: 2000,
			MasterVolume:    DefaultMasterVolume,
		},
		Control: ControlConfig{
			ListenAddress: DefaultListenAddress,
			ReplyAddress:  "",
		},
		Status: StatusConfig{
			WebSocketEnabled: false,
			WebSocketPort:    "8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30Hz
		},
	}

	if path == "" {
		candidates := []string{
			"config.yaml",
		}
		found := false
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				found = true
				break
			}
		}
		if !found {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the loaded configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]",
			c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside (0, %d]",
			c.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if c.Mixer.LowCrossoverHz <= 0 || c.Mixer.HighCrossoverHz <= c.Mixer.LowCrossoverHz {
		return fmt.Errorf("mixer crossover points must satisfy 0 < low (%.1f) < high (%.1f)",
			c.Mixer.LowCrossoverHz, c.Mixer.HighCrossoverHz)
	}
	if c.Mixer.HighCrossoverHz >= c.Audio.SampleRate/2 {
		return fmt.Errorf("mixer.high_crossover_hz %.1f must be below Nyquist (%.1f)",
			c.Mixer.HighCrossoverHz, c.Audio.SampleRate/2)
	}
	if c.Mixer.MasterVolume < 0 {
		return fmt.Errorf("mixer.master_volume must be non-negative, got %f", c.Mixer.MasterVolume)
	}
	if c.Control.ListenAddress == "" {
		return fmt.Errorf("control.listen_address must be set")
	}
	if c.Status.UDPEnabled && c.Status.UDPSendInterval <= 0 {
		return fmt.Errorf("status.udp_send_interval must be positive when UDP is enabled")
	}
	return nil
}

func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
		}
	}

	// ENV_CONTROL_LISTEN_ADDRESS
	if val, ok := os.LookupEnv("ENV_CONTROL_LISTEN_ADDRESS"); ok {
		cfg.Control.ListenAddress = val
	}
	// ENV_CONTROL_REPLY_ADDRESS
	if val, ok := os.LookupEnv("ENV_CONTROL_REPLY_ADDRESS"); ok {
		cfg.Control.ReplyAddress = val
	}

	// ENV_STATUS_{...}
	// These are specific to the status publishing layer.

	// ENV_STATUS_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_STATUS_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Status.UDPEnabled = bVal
		}
	}
	// ENV_STATUS_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_STATUS_UDP_TARGET_ADDRESS"); ok {
		cfg.Status.UDPTargetAddress = val
	}
	// ENV_STATUS_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_STATUS_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Status.UDPSendInterval = dur
		}
	}
}
