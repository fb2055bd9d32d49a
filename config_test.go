package flowplugin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.toml")
	writeFile(t, path, `
[log]
path = "logs/plugin.log"
level = "debug"
format = "zap"

[store]
driver = "sqlite"
path = "items.db"

[rpc]
maxConcurrentHandlers = 8
requestTimeout = "5s"
handlerTimeout = "30s"
replyOnCancel = true
updateInterval = "250ms"

[metrics]
addr = "127.0.0.1:9464"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, LogConfig{Path: "logs/plugin.log", Level: "debug", Format: "zap"}, cfg.Log)
	assert.Equal(t, StoreConfig{Driver: StoreDriverSQLite, Path: "items.db"}, cfg.Store)
	assert.Equal(t, int64(8), cfg.RPC.MaxConcurrentHandlers)
	assert.Equal(t, 5*time.Second, cfg.RPC.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.RPC.HandlerTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RPC.UpdateInterval)
	assert.True(t, cfg.RPC.ReplyOnCancel)
	assert.Equal(t, jsonrpc.DefaultMaxFrameBytes, cfg.RPC.MaxFrameBytes)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
	assert.Len(t, cfg.ConnOptions(), 5)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.toml")
	writeFile(t, path, `
[log]
level = "info"
`)
	writeFile(t, filepath.Join(dir, ".env"), "FLOWPLUGIN_LOG_LEVEL=warn\nFLOWPLUGIN_LOG_FORMAT=slog\n")

	// Real environment wins over .env.
	t.Setenv("FLOWPLUGIN_LOG_FORMAT", "logrus")
	t.Setenv("FLOWPLUGIN_REQUEST_TIMEOUT", "2s")
	t.Setenv("FLOWPLUGIN_MAX_CONCURRENT_HANDLERS", "3")
	t.Setenv("FLOWPLUGIN_REPLY_ON_CANCEL", "true")

	// godotenv sets variables process-wide.
	t.Cleanup(func() { os.Unsetenv("FLOWPLUGIN_LOG_LEVEL") })

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "logrus", cfg.Log.Format)
	assert.Equal(t, 2*time.Second, cfg.RPC.RequestTimeout)
	assert.Equal(t, int64(3), cfg.RPC.MaxConcurrentHandlers)
	assert.True(t, cfg.RPC.ReplyOnCancel)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		env  map[string]string
	}{
		{name: "bad toml", toml: `[log`},
		{name: "unknown driver", toml: "[store]\ndriver = \"redis\""},
		{name: "sqlite without path", toml: "[store]\ndriver = \"sqlite\""},
		{name: "unknown log format", toml: "[log]\nformat = \"xml\""},
		{name: "negative handlers", toml: "[rpc]\nmaxConcurrentHandlers = -1"},
		{name: "bad env duration", env: map[string]string{"FLOWPLUGIN_HANDLER_TIMEOUT": "soon"}},
		{name: "bad env bool", env: map[string]string{"FLOWPLUGIN_REPLY_ON_CANCEL": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "plugin.toml")
			writeFile(t, path, tt.toml)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestConfig_OpenStore(t *testing.T) {
	cfg := DefaultConfig()
	store, err := cfg.OpenStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, store)

	cfg.Store = StoreConfig{Driver: StoreDriverSQLite, Path: filepath.Join(t.TempDir(), "items.db")}
	store, err = cfg.OpenStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	assert.NoError(t, store.Close())
}
