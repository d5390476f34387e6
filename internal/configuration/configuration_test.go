package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"underwriting/internal/rule"
	"underwriting/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: info
server:
  address: ":9090"
store:
  backend: sqlite
  path: /var/lib/underwriting/rules.db
  history_limit: 20
engine:
  cache_ttl: 5m
journal:
  file: /var/log/underwriting/journal.jsonl
backup:
  schedule: "0 2 * * *"
  dir: /var/backups/underwriting
  format: YML
  keep: 7
seed:
  risk: configs/rules/risk.yaml
  decision: configs/rules/decision.yaml
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", config.Server.Address)
	assert.Equal(t, store.BackendSQLite, config.Store.Backend)
	assert.Equal(t, 20, config.Store.HistoryLimit)
	assert.Equal(t, store.DefaultDebounce, config.Store.Debounce)
	assert.Equal(t, 5*time.Minute, config.Engine.CacheTTL)
	assert.Equal(t, 100, config.Journal.Size)
	assert.Equal(t, 20, config.Journal.Amount)
	assert.Equal(t, "yaml", config.Backup.Format)
	assert.Equal(t, 7, config.Backup.Keep)
	assert.Equal(t, map[rule.Category]string{
		rule.CategoryRisk:     "configs/rules/risk.yaml",
		rule.CategoryDecision: "configs/rules/decision.yaml",
	}, config.Seed.Files())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: info
store:
  backend: memory
`)
	t.Setenv("LOGGER_LEVEL", "debug")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", config.Logger.Level)
	assert.Equal(t, rule.MaxHistory, config.Store.HistoryLimit)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestAppConfig_Validate(t *testing.T) {
	valid := func() AppConfig {
		return AppConfig{
			Logger: LoggerConfig{Level: "INFO"},
			Store:  StoreConfig{Backend: store.BackendFile, Path: "rules"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "missing level", mutate: func(c *AppConfig) { c.Logger.Level = "" }, wantErr: "logger.level"},
		{name: "unknown level", mutate: func(c *AppConfig) { c.Logger.Level = "trace" }, wantErr: "logger.level"},
		{name: "default backend needs a path", mutate: func(c *AppConfig) { c.Store = StoreConfig{} }, wantErr: "store.path"},
		{name: "unknown backend", mutate: func(c *AppConfig) { c.Store.Backend = "redis" }, wantErr: "store.backend"},
		{name: "history above maximum", mutate: func(c *AppConfig) { c.Store.HistoryLimit = 51 }, wantErr: "store.history_limit"},
		{name: "watch needs files", mutate: func(c *AppConfig) {
			c.Store.Backend = store.BackendMemory
			c.Store.Watch = true
		}, wantErr: "store.watch"},
		{name: "negative ttl", mutate: func(c *AppConfig) { c.Engine.CacheTTL = -time.Second }, wantErr: "engine.cache_ttl"},
		{name: "backup without dir", mutate: func(c *AppConfig) { c.Backup.Schedule = "@daily" }, wantErr: "backup.dir"},
		{name: "backup format", mutate: func(c *AppConfig) {
			c.Backup = BackupConfig{Schedule: "@daily", Dir: "backups", Format: "xml"}
		}, wantErr: "backup.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
