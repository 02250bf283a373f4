package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	t.Run("loads from -config", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{"server_addr": "www.example:9000", "timeout": "10s"})

		cfg := &Config{}
		parseJson(cfg, []string{"-config", path})

		assert.Equal(t, "www.example:9000", cfg.ServerAddr)
		assert.Equal(t, 10*time.Second, cfg.Timeout)
	})

	t.Run("missing fields keep current values", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{"timeout": 2000000000})

		cfg := &Config{ServerAddr: "defaults:1234"}
		parseJson(cfg, []string{"-c", path})

		assert.Equal(t, "defaults:1234", cfg.ServerAddr)
		assert.Equal(t, 2*time.Second, cfg.Timeout)
	})

	t.Run("no flag, no changes", func(t *testing.T) {
		cfg := &Config{ServerAddr: "defaults:1234", Timeout: 42 * time.Second}
		parseJson(cfg, nil)

		assert.Equal(t, "defaults:1234", cfg.ServerAddr)
		assert.Equal(t, 42*time.Second, cfg.Timeout)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		require.Panics(t, func() { parseJson(&Config{}, []string{"-config", bad}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		require.Panics(t, func() { parseJson(&Config{}, []string{"-c", filepath.Join(t.TempDir(), "nope.json")}) })
	})
}
