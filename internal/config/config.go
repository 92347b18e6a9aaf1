// Package config holds the YAML configuration shared by relayd and
// relaypeer. Command-line flags override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"
)

// Role represents the user's chosen role in a session.
type Role string

const (
	RoleHost Role = "host"
	RoleJoin Role = "join"
)

// Config is the root configuration.
type Config struct {
	Broker     BrokerConfig `yaml:"broker"`
	ICEServers []ICEServer  `yaml:"ice_servers"`
	Log        LogConfig    `yaml:"log"`
}

// BrokerConfig locates the signaling broker. Listen is only used by relayd.
type BrokerConfig struct {
	URL    string `yaml:"url"`
	PIN    string `yaml:"pin"`
	Listen string `yaml:"listen"`
}

// ICEServer is one STUN or TURN server.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`
	// Format: console or json
	Format string `yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `yaml:"outputs"`
	Rotation    RotationConfig `yaml:"rotation"`
	Development bool           `yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `yaml:"enable"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:    "ws://localhost:7420/ws",
			Listen: ":7420",
		},
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				Filename:   "logs/relayd.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// DefaultPath returns ~/.relaypeer/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".relaypeer", "config.yaml")
	}
	return filepath.Join(home, ".relaypeer", "config.yaml")
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults with no error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "":
		c.Log.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	if !strings.HasPrefix(c.Broker.URL, "ws://") && !strings.HasPrefix(c.Broker.URL, "wss://") {
		return fmt.Errorf("invalid broker.url: %q (want ws:// or wss://)", c.Broker.URL)
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d]: no urls", i)
		}
	}
	return nil
}

// WebRTCICEServers converts the configured servers for pion.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}
