package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8000/rpc", cfg.SurrealDBURL)
	assert.Equal(t, "chartbracket", cfg.SurrealDBNamespace)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.MetadataTTL)
	assert.Equal(t, "https://api.dexscreener.com", cfg.DexScreenerURL)
	assert.Equal(t, "8001", cfg.ServerPort)
	assert.Equal(t, "1h", cfg.ChartInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadFile_OverlayAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chartbracket.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
surrealdb:
  url: ws://db.internal:8000/rpc
  namespace: prod
redis:
  addr: cache:6379
  db: "2"
  metadata_ttl: 1h
server:
  port: "9000"
log:
  level: debug
`), 0o600))

	t.Setenv("SURREALDB_NAMESPACE", "from-env")
	t.Setenv("CHARTBRACKET_SOURCE_RPS", "not-a-number")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://db.internal:8000/rpc", cfg.SurrealDBURL)
	assert.Equal(t, "from-env", cfg.SurrealDBNamespace, "env must win over the file")
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, time.Hour, cfg.MetadataTTL)
	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 4.0, cfg.SourceRPS, "bad numbers fall back to the default")
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("surrealdb: [unclosed"), 0o600))
	cfg, err := LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, "8001", cfg.ServerPort, "defaults survive a bad file")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("session created", "session_id", "abc")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "session_id=abc")
	assert.Contains(t, file.String(), `"session_id":"abc"`)
}

func TestSetupLogger_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo, "server")
	logger.Info("ready")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"server"`)
	assert.Contains(t, string(data), `"msg":"ready"`)
}

func TestSetupLogger_FallsBackToStderr(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	logger, cleanup := SetupLogger(filepath.Join(blocker, "x.log"), slog.LevelInfo, "server")
	require.NotNil(t, logger)
	assert.NoError(t, cleanup())
}
