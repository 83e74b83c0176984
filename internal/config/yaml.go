// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"streampump/pkg/bitint"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (verbose logging, development log encoder).
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	LogJSON   bool            `yaml:"log_json"`  // Emit JSON log lines instead of console output.
	PumpName  string          `yaml:"pump_name"` // Label for logs and metrics; random when empty.
	TUI       bool            `yaml:"tui"`       // Show the live status view instead of log output.
	Input     InputConfig     `yaml:"input"`     // Where audio comes from.
	Recording RecordingConfig `yaml:"recording"` // Audio recording settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Spectrum analysis settings.
	Transport TransportConfig `yaml:"transport"` // Data transport settings.
	Metrics   MetricsConfig   `yaml:"metrics"`   // Prometheus endpoint.
}

// InputConfig selects and shapes the pump's source.
type InputConfig struct {
	Kind            string  `yaml:"kind"`              // wav, flac, mp3, mic, tone or stdin.
	Path            string  `yaml:"path"`              // File to read for wav, flac and mp3.
	Realtime        bool    `yaml:"realtime"`          // Pace file and tone input at its natural rate.
	Device          int     `yaml:"device"`            // PortAudio device index for mic input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz for mic, tone and stdin.
	Channels        int     `yaml:"channels"`          // Channels for mic and stdin.
	BitsPerSample   int     `yaml:"bits_per_sample"`   // Sample width for stdin.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // PortAudio buffer size in frames.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	ToneHz          float64 `yaml:"tone_hz"`           // Tone frequency.
	ToneSeconds     float64 `yaml:"tone_seconds"`      // Tone length; 0 for endless.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Enable audio recording to file.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	Prefix    string `yaml:"prefix"`     // File name prefix.
	Format    string `yaml:"format"`     // File format for recordings (only "wav").
}

// AnalysisConfig holds settings for the spectrum analyzer chain.
type AnalysisConfig struct {
	Enabled           bool    `yaml:"enabled"`
	FFTSize           int     `yaml:"fft_size"`           // Power of two.
	FFTWindow         string  `yaml:"fft_window"`         // Name of the window function for FFT analysis (e.g., "Hann", "Hamming").
	GateThreshold     float64 `yaml:"gate_threshold"`     // 0.0-1.0; 0 disables the gate.
	QueueDepth        int     `yaml:"queue_depth"`        // Frames buffered ahead of the analyzer.
	IncludeMagnitudes bool    `yaml:"include_magnitudes"` // Send the full spectrum, not just bands.
	OnsetThreshold    float64 `yaml:"onset_threshold"`    // RMS level for onset events.
}

// TransportConfig holds settings related to sending processed data over the network.
type TransportConfig struct {
	Log              bool          `yaml:"log"`                // Log every payload at debug level.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve spectra on ws://<addr>/ws.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address, e.g. ":8080".
	WebSocketMinGap  time.Duration `yaml:"websocket_min_gap"`  // Minimum time between broadcasts.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending FFT data over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
	MQTTEnabled      bool          `yaml:"mqtt_enabled"`       // Publish spectra to an MQTT broker.
	MQTTBroker       string        `yaml:"mqtt_broker"`        // e.g. "tcp://localhost:1883".
	MQTTTopic        string        `yaml:"mqtt_topic"`
	MQTTClientID     string        `yaml:"mqtt_client_id"`
	MQTTUsername     string        `yaml:"mqtt_username"`
	MQTTPassword     string        `yaml:"mqtt_password"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // e.g. ":2112".
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: "info",
		Input: InputConfig{
			Kind:            DefaultInputKind,
			Device:          DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			Channels:        DefaultChannels,
			BitsPerSample:   DefaultBitsPerSample,
			FramesPerBuffer: DefaultFramesPerBuffer,
			ToneHz:          DefaultToneHz,
			ToneSeconds:     5,
			Realtime:        true,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			Prefix:    "recording",
			Format:    DefaultFormat,
		},
		Analysis: AnalysisConfig{
			Enabled:        true,
			FFTSize:        DefaultFFTSize,
			FFTWindow:      DefaultFFTWindow,
			GateThreshold:  0.001, // ~0.1% of max value
			QueueDepth:     DefaultQueueDepth,
			OnsetThreshold: 0.1,
		},
		Transport: TransportConfig{
			Log:              false,
			WebSocketEnabled: false,
			WebSocketAddr:    ":8080",
			UDPEnabled:       false, // Default UDP to false.
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // Default ~30Hz.
			MQTTBroker:       "tcp://localhost:1883",
			MQTTTopic:        "streampump/spectrum",
			MQTTClientID:     "streampump",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":2112",
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. A .env file in the working directory is loaded into the environment first,
// then environment variable overrides are applied and the final configuration is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	// A missing .env is normal; variables already set take precedence.
	_ = godotenv.Load()

	if path == "" {
		// Define potential locations for the config file.
		candidates := []string{"config.yaml"}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".config", "streampump", "config.yaml"))
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings the pump cannot run with.
func (c *Config) Validate() error {
	in := c.Input
	switch in.Kind {
	case InputWAV, InputFLAC, InputMP3:
		if in.Path == "" {
			return fmt.Errorf("input.path must be set for %s input", in.Kind)
		}
	case InputMic, InputTone, InputStdin:
		if in.SampleRate < MinSampleRate || in.SampleRate > MaxSampleRate {
			return fmt.Errorf("input.sample_rate %.0f outside [%d, %d]", in.SampleRate, MinSampleRate, MaxSampleRate)
		}
	default:
		return fmt.Errorf("input.kind %q is not one of wav, flac, mp3, mic, tone, stdin", in.Kind)
	}

	if in.Kind == InputMic || in.Kind == InputStdin {
		if in.Channels < 1 {
			return fmt.Errorf("input.channels must be at least 1")
		}
		if in.Device < MinDeviceID {
			return fmt.Errorf("input.device %d is invalid", in.Device)
		}
	}
	if in.Kind == InputMic && (in.FramesPerBuffer < 1 || in.FramesPerBuffer > MaxBufferFrames) {
		return fmt.Errorf("input.frames_per_buffer must be within [1, %d]", MaxBufferFrames)
	}
	if in.Kind == InputStdin && (in.BitsPerSample == 0 || in.BitsPerSample%8 != 0 || in.BitsPerSample > 32) {
		return fmt.Errorf("input.bits_per_sample %d is not 8, 16, 24 or 32", in.BitsPerSample)
	}
	if in.Kind == InputTone && in.ToneHz <= 0 {
		return fmt.Errorf("input.tone_hz must be positive")
	}

	if c.Recording.Enabled {
		if c.Recording.OutputDir == "" {
			return fmt.Errorf("recording.output_dir must be set when recording is enabled")
		}
		if !strings.EqualFold(c.Recording.Format, DefaultFormat) {
			return fmt.Errorf("recording.format %q is not supported", c.Recording.Format)
		}
	}

	if c.Analysis.Enabled {
		if !bitint.IsPowerOfTwo(c.Analysis.FFTSize) || c.Analysis.FFTSize > MaxFFTSize {
			return fmt.Errorf("analysis.fft_size %d must be a power of two up to %d (nearest: %d)",
				c.Analysis.FFTSize, MaxFFTSize, min(bitint.NextPowerOfTwo(c.Analysis.FFTSize), MaxFFTSize))
		}
		if c.Analysis.GateThreshold < 0 || c.Analysis.GateThreshold > 1 {
			return fmt.Errorf("analysis.gate_threshold must be within [0, 1]")
		}
	}

	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.MQTTEnabled && (c.Transport.MQTTBroker == "" || c.Transport.MQTTTopic == "") {
		return fmt.Errorf("transport.mqtt_broker and transport.mqtt_topic must be set when MQTT is enabled")
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddr == "" {
		return fmt.Errorf("transport.websocket_addr must be set when the WebSocket server is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the file settings.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.
	envBool("ENV_DEBUG", &cfg.Debug)
	envString("ENV_LOG_LEVEL", &cfg.LogLevel)
	envBool("ENV_LOG_JSON", &cfg.LogJSON)

	// ENV_INPUT_{...}
	envString("ENV_INPUT_KIND", &cfg.Input.Kind)
	envString("ENV_INPUT_PATH", &cfg.Input.Path)
	if val, ok := os.LookupEnv("ENV_INPUT_DEVICE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Input.Device = n
		}
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.
	envBool("ENV_UDP_ENABLED", &cfg.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", &cfg.Transport.UDPTargetAddress)
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
		}
	}

	// ENV_MQTT_{...}
	envBool("ENV_MQTT_ENABLED", &cfg.Transport.MQTTEnabled)
	envString("ENV_MQTT_BROKER", &cfg.Transport.MQTTBroker)
	envString("ENV_MQTT_USERNAME", &cfg.Transport.MQTTUsername)
	envString("ENV_MQTT_PASSWORD", &cfg.Transport.MQTTPassword)

	// ENV_METRICS_{...}
	envBool("ENV_METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString("ENV_METRICS_ADDR", &cfg.Metrics.Addr)
}

func envBool(key string, dst *bool) {
	if val, ok := os.LookupEnv(key); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			*dst = bVal
		}
	}
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
	}
}
