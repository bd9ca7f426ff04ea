// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Audio.SampleRate != DefaultSampleRate {
		t.Errorf("default sample rate: got %.0f, want %d", cfg.Audio.SampleRate, DefaultSampleRate)
	}
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("default frames per buffer: got %d, want %d", cfg.Audio.FramesPerBuffer, DefaultFramesPerBuffer)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
audio:
  sample_rate: 48000
  frames_per_buffer: 512
control:
  listen_address: "127.0.0.1:9005"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("sample rate: got %.0f, want 48000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("frames per buffer: got %d, want 512", cfg.Audio.FramesPerBuffer)
	}
	if cfg.Control.ListenAddress != "127.0.0.1:9005" {
		t.Errorf("listen address: got %q, want 127.0.0.1:9005", cfg.Control.ListenAddress)
	}
	// Untouched sections keep their defaults.
	if cfg.Mixer.LowCrossoverHz != 200 {
		t.Errorf("low crossover: got %.1f, want 200", cfg.Mixer.LowCrossoverHz)
	}
}

func TestValidate_Rejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sample rate too low", func(c *Config) { c.Audio.SampleRate = 100 }},
		{"zero frames per buffer", func(c *Config) { c.Audio.FramesPerBuffer = 0 }},
		{"inverted crossovers", func(c *Config) { c.Mixer.LowCrossoverHz = 5000; c.Mixer.HighCrossoverHz = 200 }},
		{"crossover above nyquist", func(c *Config) { c.Mixer.HighCrossoverHz = 40000 }},
		{"negative master volume", func(c *Config) { c.Mixer.MasterVolume = -1 }},
		{"empty listen address", func(c *Config) { c.Control.ListenAddress = "" }},
		{"udp enabled without interval", func(c *Config) { c.Status.UDPEnabled = true; c.Status.UDPSendInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			if err != nil {
				t.Fatalf("default config should be valid: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_CONTROL_LISTEN_ADDRESS", "0.0.0.0:9111")
	t.Setenv("ENV_STATUS_UDP_ENABLED", "true")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Control.ListenAddress != "0.0.0.0:9111" {
		t.Errorf("listen address override: got %q", cfg.Control.ListenAddress)
	}
	if !cfg.Status.UDPEnabled {
		t.Error("expected udp_enabled override to apply")
	}
}
