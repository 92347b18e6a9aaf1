package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
broker:
  url: wss://relay.example.com/ws
  pin: "1234"
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: alice
    credential: secret
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://relay.example.com/ws", cfg.Broker.URL)
	assert.Equal(t, "1234", cfg.Broker.PIN)
	assert.Equal(t, ":7420", cfg.Broker.Listen, "unset keys keep their default")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.Outputs)

	servers := cfg.WebRTCICEServers()
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, servers[0].URLs)
	assert.Equal(t, "alice", servers[0].Username)
	assert.Equal(t, "secret", servers[0].Credential)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"log level":  "log:\n  level: loud\n",
		"log format": "log:\n  format: xml\n",
		"broker url": "broker:\n  url: http://example.com\n",
		"ice urls":   "ice_servers:\n  - username: bob\n",
		"yaml":       "broker: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
