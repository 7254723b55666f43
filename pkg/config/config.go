// Package config loads the voxcore YAML configuration file, with environment
// variable overrides applied after load.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
)

// Config is the full voxcore runtime configuration.
type Config struct {
	// Cloud holds the cloud session and activation endpoints.
	Cloud CloudConfig `yaml:"cloud"`

	// IdentityPath is the path to the persisted device identity file.
	IdentityPath string `yaml:"identity_path"`

	// Audio holds capture/playback device and sample-rate settings.
	Audio AudioConfig `yaml:"audio"`

	// MCP holds the tool gateway's registry configuration.
	MCP MCPConfig `yaml:"mcp"`

	// Bridge holds the GUI/IoT UDP bridge ports.
	Bridge BridgeConfig `yaml:"bridge"`
}

// CloudConfig describes the cloud endpoints and protocol parameters.
type CloudConfig struct {
	WebSocketURL    string `yaml:"websocket_url"`
	ActivationURL   string `yaml:"activation_url"`
	AuthToken       string `yaml:"auth_token,omitempty"`
	ProtocolVersion int    `yaml:"protocol_version"`
}

// AudioConfig describes capture/playback device selection and sample rates.
type AudioConfig struct {
	CaptureDevice    string `yaml:"capture_device"`
	PlaybackDevice   string `yaml:"playback_device"`
	CaptureSampleHz  int    `yaml:"capture_sample_hz"`
	PlaybackSampleHz int    `yaml:"playback_sample_hz"`
	FrameDurationMs  int    `yaml:"frame_duration_ms"`
}

// MCPConfig describes the tool gateway's static tool list.
type MCPConfig struct {
	Enabled bool        `yaml:"enabled"`
	Tools   []ToolEntry `yaml:"tools"`
}

// ToolEntry is one statically-configured tool descriptor, as loaded from YAML.
type ToolEntry struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Transport    string            `yaml:"transport"` // "subprocess" | "http" | "tcp"
	Executable   string            `yaml:"executable,omitempty"`
	Args         []string          `yaml:"args,omitempty"`
	URL          string            `yaml:"url,omitempty"`
	Method       string            `yaml:"method,omitempty"`
	Address      string            `yaml:"address,omitempty"`
	Mode         string            `yaml:"mode"` // "sync" | "background"
	TimeoutMs    int               `yaml:"timeout_ms,omitempty"`
	InputSchema  map[string]any    `yaml:"input_schema,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Notify       string            `yaml:"notify,omitempty"`
}

// BridgeConfig describes the local UDP ports used for GUI/IoT passthrough.
type BridgeConfig struct {
	GUIOutAddr string `yaml:"gui_out_addr"`
	GUIInAddr  string `yaml:"gui_in_addr"`
	IoTOutAddr string `yaml:"iot_out_addr"`
}

func defaults() Config {
	return Config{
		IdentityPath: "identity.json",
		Cloud: CloudConfig{
			ProtocolVersion: 1,
		},
		Audio: AudioConfig{
			CaptureDevice:    "default",
			PlaybackDevice:   "default",
			CaptureSampleHz:  16000,
			PlaybackSampleHz: 24000,
			FrameDurationMs:  60,
		},
		Bridge: BridgeConfig{
			GUIOutAddr: "127.0.0.1:7781",
			GUIInAddr:  "127.0.0.1:7782",
			IoTOutAddr: "127.0.0.1:7783",
		},
	}
}

// Load reads and parses the YAML config file at path, applying VOXCORE_*
// environment variable overrides on top of the parsed values.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("VOXCORE_WEBSOCKET_URL"); ok {
		cfg.Cloud.WebSocketURL = v
	}
	if v, ok := os.LookupEnv("VOXCORE_ACTIVATION_URL"); ok {
		cfg.Cloud.ActivationURL = v
	}
	if v, ok := os.LookupEnv("VOXCORE_AUTH_TOKEN"); ok {
		cfg.Cloud.AuthToken = v
	}
	if v, ok := os.LookupEnv("VOXCORE_IDENTITY_PATH"); ok {
		cfg.IdentityPath = v
	}
	if v, ok := os.LookupEnv("VOXCORE_CAPTURE_DEVICE"); ok {
		cfg.Audio.CaptureDevice = v
	}
	if v, ok := os.LookupEnv("VOXCORE_PLAYBACK_DEVICE"); ok {
		cfg.Audio.PlaybackDevice = v
	}
	if v, ok := os.LookupEnv("VOXCORE_PROTOCOL_VERSION"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cloud.ProtocolVersion = n
		}
	}
}
