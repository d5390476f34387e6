package configuration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"underwriting/internal/rule"
	"underwriting/internal/store"

	"github.com/spf13/viper"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Journal JournalConfig `mapstructure:"journal"`
	Backup  BackupConfig  `mapstructure:"backup"`
	Seed    SeedConfig    `mapstructure:"seed"`
}

// LoggerConfig defines logging settings.
type LoggerConfig struct {
	// Level is one of debug, info, warn, warning, error (case-insensitive).
	Level string `mapstructure:"level"`
}

// ServerConfig contains the parameters of the operational HTTP endpoint.
type ServerConfig struct {
	// Address is where the server listens, e.g. ":9090".
	// Empty disables the server.
	Address string `mapstructure:"address"`
}

// StoreConfig selects and configures the rule store backend.
type StoreConfig struct {
	// Backend is file, sqlite or memory (default file).
	Backend string `mapstructure:"backend"`
	// Path is the rules directory of the file backend or the database file
	// of the sqlite backend.
	Path string `mapstructure:"path"`
	// HistoryLimit caps the history entries kept per category (default and
	// maximum 50).
	HistoryLimit int `mapstructure:"history_limit"`
	// Watch reports external edits of the file backend to subscribers.
	Watch bool `mapstructure:"watch"`
	// Debounce is the quiet period before an external edit is reported.
	Debounce time.Duration `mapstructure:"debounce"`
}

// EngineConfig tunes rule loading of the derivation engine.
type EngineConfig struct {
	// CacheTTL bounds how long enabled rules are cached. 0 caches until the
	// store reports a change.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// JournalConfig defines the audit journal of rule changes.
type JournalConfig struct {
	// File is the journal path (optional, no journal when empty).
	File string `mapstructure:"file"`
	// Size is the maximal file size in megabytes before rotation (default 100).
	Size int `mapstructure:"size"`
	// Amount is the number of rotated files kept (default 20).
	Amount int `mapstructure:"amount"`
}

// BackupConfig defines scheduled exports of the rule documents.
type BackupConfig struct {
	// Schedule is a standard cron expression; empty disables backups.
	Schedule string `mapstructure:"schedule"`
	Dir      string `mapstructure:"dir"`
	// Format is json or yaml (default json).
	Format string `mapstructure:"format"`
	// Keep is the number of backups kept per category, 0 keeps all.
	Keep int `mapstructure:"keep"`
}

// SeedConfig points at rule files imported into empty categories at startup.
type SeedConfig struct {
	Risk          string `mapstructure:"risk"`
	TestProtocols string `mapstructure:"test_protocols"`
	Decision      string `mapstructure:"decision"`
}

// Files maps every configured seed file to its category.
func (s SeedConfig) Files() map[rule.Category]string {
	files := make(map[rule.Category]string, 3)
	for category, path := range map[rule.Category]string{
		rule.CategoryRisk:         s.Risk,
		rule.CategoryTestProtocol: s.TestProtocols,
		rule.CategoryDecision:     s.Decision,
	} {
		if path != "" {
			files[category] = path
		}
	}
	return files
}

// Validate checks the correctness of the entire application configuration
// and fills in defaults. It returns the first detected error.
func (c *AppConfig) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Journal.Validate(); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate verifies that the log level is set and supported.
func (l *LoggerConfig) Validate() error {
	if l.Level == "" {
		return errors.New("logger.level: must be specified")
	}

	valid := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !valid[strings.ToLower(l.Level)] {
		return fmt.Errorf("logger.level: unsupported level '%s'", l.Level)
	}

	return nil
}

// Validate checks the store backend and its path.
func (s *StoreConfig) Validate() error {
	if s.Backend == "" {
		s.Backend = store.BackendFile
	}
	switch s.Backend {
	case store.BackendFile, store.BackendSQLite:
		if s.Path == "" {
			return fmt.Errorf("store.path: must be specified for the %s backend", s.Backend)
		}
	case store.BackendMemory:
	default:
		return fmt.Errorf("store.backend: unsupported backend '%s'", s.Backend)
	}

	if s.HistoryLimit < 0 || s.HistoryLimit > rule.MaxHistory {
		return fmt.Errorf("store.history_limit: must be between 0 and %d", rule.MaxHistory)
	}
	if s.HistoryLimit == 0 {
		s.HistoryLimit = rule.MaxHistory
	}

	if s.Watch && s.Backend != store.BackendFile {
		return errors.New("store.watch: only supported by the file backend")
	}
	if s.Debounce <= 0 {
		s.Debounce = store.DefaultDebounce
	}

	return nil
}

func (e *EngineConfig) Validate() error {
	if e.CacheTTL < 0 {
		return errors.New("engine.cache_ttl: must not be negative")
	}
	return nil
}

// Validate journal parameters
func (j *JournalConfig) Validate() error {
	if j.Amount == 0 {
		j.Amount = 20
	}

	if j.Size == 0 {
		j.Size = 100
	}

	return nil
}

// Validate checks the backup schedule settings. The cron expression itself
// is checked when the scheduler starts.
func (b *BackupConfig) Validate() error {
	if b.Schedule == "" {
		return nil
	}
	if b.Dir == "" {
		return errors.New("backup.dir: must be specified when a schedule is set")
	}
	format, err := store.ParseFormat(b.Format)
	if err != nil {
		return fmt.Errorf("backup.format: %w", err)
	}
	b.Format = string(format)
	if b.Keep < 0 {
		return errors.New("backup.keep: must not be negative")
	}
	return nil
}

// LoadConfig loads the YAML configuration at configPath. Environment
// variables override file values (AutomaticEnv).
func LoadConfig(configPath string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
