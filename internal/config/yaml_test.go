// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
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
	if cfg.Input.Kind != DefaultInputKind {
		t.Errorf("Input.Kind = %q, want %q", cfg.Input.Kind, DefaultInputKind)
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
input:
  kind: wav
  path: /tmp/in.wav
analysis:
  fft_size: 2048
transport:
  udp_enabled: true
  udp_send_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Input.Kind != InputWAV || cfg.Input.Path != "/tmp/in.wav" {
		t.Errorf("input = %+v", cfg.Input)
	}
	if cfg.Analysis.FFTSize != 2048 {
		t.Errorf("fft_size = %d, want 2048", cfg.Analysis.FFTSize)
	}
	if cfg.Analysis.FFTWindow != DefaultFFTWindow {
		t.Errorf("fft_window = %q, want the default", cfg.Analysis.FFTWindow)
	}
	if cfg.Transport.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("udp_send_interval = %s", cfg.Transport.UDPSendInterval)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_INPUT_KIND", "mic")
	t.Setenv("ENV_INPUT_DEVICE", "3")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "10ms")
	t.Setenv("ENV_METRICS_ENABLED", "not-a-bool") // ignored

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Debug {
		t.Error("ENV_DEBUG not applied")
	}
	if cfg.Input.Kind != InputMic || cfg.Input.Device != 3 {
		t.Errorf("input = %+v", cfg.Input)
	}
	if cfg.Transport.UDPSendInterval != 10*time.Millisecond {
		t.Errorf("udp_send_interval = %s", cfg.Transport.UDPSendInterval)
	}
	if cfg.Metrics.Enabled {
		t.Error("invalid boolean should be ignored")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown kind", func(c *Config) { c.Input.Kind = "ogg" }, "input.kind"},
		{"file without path", func(c *Config) { c.Input.Kind = InputFLAC }, "input.path"},
		{"low sample rate", func(c *Config) { c.Input.SampleRate = 4000 }, "input.sample_rate"},
		{"stdin 12 bit", func(c *Config) { c.Input.Kind = InputStdin; c.Input.BitsPerSample = 12 }, "bits_per_sample"},
		{"mic huge buffer", func(c *Config) { c.Input.Kind = InputMic; c.Input.FramesPerBuffer = MaxBufferFrames + 1 }, "frames_per_buffer"},
		{"fft not power of two", func(c *Config) { c.Analysis.FFTSize = 1000 }, "fft_size"},
		{"fft ignored when disabled", func(c *Config) { c.Analysis.Enabled = false; c.Analysis.FFTSize = 1000 }, ""},
		{"gate above one", func(c *Config) { c.Analysis.GateThreshold = 2 }, "gate_threshold"},
		{"recording mp3", func(c *Config) { c.Recording.Enabled = true; c.Recording.Format = "mp3" }, "recording.format"},
		{"udp no port", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPTargetAddress = "localhost" }, "udp_target_address"},
		{"mqtt no topic", func(c *Config) { c.Transport.MQTTEnabled = true; c.Transport.MQTTTopic = "" }, "mqtt"},
		{"metrics no addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestFileInput(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{InputWAV, InputFLAC, InputMP3} {
		if !FileInput(kind) {
			t.Errorf("FileInput(%q) = false", kind)
		}
	}
	if FileInput(InputMic) {
		t.Error("FileInput(mic) = true")
	}
}
