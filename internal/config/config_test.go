package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	f := Flags()
	require.NoError(t, f.Parse(nil))

	cfg, err := Load(f)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8765", cfg.Anki.URL)
	assert.Equal(t, 30*time.Second, cfg.Anki.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFlagsWin(t *testing.T) {
	f := Flags()
	require.NoError(t, f.Parse([]string{
		"--anki.url", "http://10.0.0.5:8765",
		"--anki.timeout", "5s",
		"--log.level", "debug",
	}))

	cfg, err := Load(f)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:8765", cfg.Anki.URL)
	assert.Equal(t, 5*time.Second, cfg.Anki.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ANKI_MCP_ANKI_URL", "http://envhost:8765")
	t.Setenv("ANKI_MCP_LOG_LEVEL", "warn")

	f := Flags()
	require.NoError(t, f.Parse(nil))

	cfg, err := Load(f)
	require.NoError(t, err)

	assert.Equal(t, "http://envhost:8765", cfg.Anki.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Anki.Timeout)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("ANKI_MCP_LOG_LEVEL", "warn")

	f := Flags()
	require.NoError(t, f.Parse([]string{"--log.level", "error"}))

	cfg, err := Load(f)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "anki:\n  url: http://filehost:8765\n  timeout: 10s\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	f := Flags()
	require.NoError(t, f.Parse([]string{"--config", path}))

	cfg, err := Load(f)
	require.NoError(t, err)

	assert.Equal(t, "http://filehost:8765", cfg.Anki.URL)
	assert.Equal(t, 10*time.Second, cfg.Anki.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	f := Flags()
	require.NoError(t, f.Parse([]string{"--config", "/no/such/file.yaml"}))

	_, err := Load(f)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad log level", []string{"--log.level", "loud"}},
		{"bad url", []string{"--anki.url", "not-a-url"}},
		{"zero timeout", []string{"--anki.timeout", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Flags()
			require.NoError(t, f.Parse(tt.args))
			_, err := Load(f)
			assert.Error(t, err, "expected %v to be rejected", tt.args)
		})
	}
}
