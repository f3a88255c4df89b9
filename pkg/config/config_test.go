package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxp-audit/gxa/pkg/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, int64(1), cfg.NodeID)
	assert.Equal(t, 3, cfg.Webhooks.MaxRetries)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NotExists(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), config.FileName))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", config.FileName)
	cfg := config.Default()
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = "host=db user=gxa dbname=gxa"
	cfg.Webhooks.RetryDelay = 2 * time.Second

	require.NoError(t, config.Save(path, cfg))
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_Partial(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: 127.0.0.1:9000\n"), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("database: [unclosed"), 0644))
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GXA_DATABASE_DRIVER": "POSTGRES",
		"GXA_DATABASE_DSN":    "postgres://gxa@db/gxa",
		"GXA_NODE_ID":         "7",
		"GXA_LOG_LEVEL":       "debug",
	}
	cfg := config.Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://gxa@db/gxa", cfg.Database.DSN)
	assert.Equal(t, int64(7), cfg.NodeID)
	assert.Equal(t, "debug", cfg.Logging.Level)

	bad := config.Default()
	assert.Error(t, bad.ApplyEnv(func(k string) string {
		if k == "GXA_NODE_ID" {
			return "seven"
		}
		return ""
	}))
}

func TestLoadAll_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GXA_HTTP_ADDR=:9191\n"), 0644))
	t.Setenv("GXA_HTTP_ADDR", "")
	require.NoError(t, os.Unsetenv("GXA_HTTP_ADDR"))

	cfg, err := config.LoadAll(filepath.Join(dir, config.FileName), envFile)
	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.HTTP.Addr)
}

func TestLoadAll_MissingEnvFileIsFine(t *testing.T) {
	dir := t.TempDir()
	_, err := config.LoadAll(filepath.Join(dir, config.FileName), filepath.Join(dir, ".env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = ""
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.NodeID = 4096
	assert.Error(t, cfg.Validate())
}

func TestGetSet(t *testing.T) {
	cfg := config.Default()
	for _, key := range config.Keys() {
		v, err := cfg.Get(key)
		require.NoError(t, err, key)
		require.NoError(t, cfg.Set(key, v), key)
	}

	require.NoError(t, cfg.Set("webhooks.retry_delay", "250ms"))
	v, err := cfg.Get("webhooks.retry_delay")
	require.NoError(t, err)
	assert.Equal(t, "250ms", v)

	assert.Error(t, cfg.Set("webhooks.max_retries", "many"))
	assert.Error(t, cfg.Set("nope", "x"))
	_, err = cfg.Get("nope")
	assert.Error(t, err)
}
