package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progression-ledger/internal/domain/progression"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("AUTH_JWT_SECRET", "dev-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.App.Debug)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.RebuildLeaderboardInterval)
	assert.Equal(t, progression.LevelPolicyQuizOnly, cfg.Ledger.LevelPolicy())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	isolate(t)
	t.Setenv("AUTH_JWT_SECRET", "dev-secret")
	t.Setenv("LEDGER_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("LEDGER_RECOMPUTE_LEVEL_ON_AWARD", "true")
	t.Setenv("AUTH_API_KEY_HASHES", "h1,h2")
	t.Setenv("HTTP_RATE_LIMIT_WINDOW", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Ledger.Backend)
	assert.Equal(t, progression.LevelPolicyAlways, cfg.Ledger.LevelPolicy())
	assert.Equal(t, []string{"h1", "h2"}, cfg.Auth.APIKeyHashes)
	assert.Equal(t, 30*time.Second, cfg.HTTP.RateLimitWindow)
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AUTH_JWT_SECRET=from-file\nHTTP_ADDR=:9999\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("HTTP_ADDR", ":7000")
	t.Cleanup(func() { os.Unsetenv("AUTH_JWT_SECRET") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, ":7000", cfg.HTTP.Addr, "process env wins over the file")
}

func TestValidate_Aggregates(t *testing.T) {
	isolate(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("AUTH_JWT_SECRET", "short")
	t.Setenv("TRACING_SAMPLE_RATIO", "2")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "at least 32 bytes")
	assert.Contains(t, err.Error(), "TRACING_SAMPLE_RATIO")
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := &Config{
		Ledger:    LedgerConfig{Backend: "mongo"},
		Auth:      AuthConfig{JWTSecret: "x"},
		Scheduler: SchedulerConfig{LeaderboardSize: 1},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"mongo"`)
}
