package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"underwriting/internal/backup"
	"underwriting/internal/casedata"
	"underwriting/internal/configuration"
	"underwriting/internal/derive"
	"underwriting/internal/journal"
	"underwriting/internal/metrics"
	"underwriting/internal/rule"
	"underwriting/internal/server"
	"underwriting/internal/store"
	"underwriting/internal/validation"
)

// prepareLogger installs a JSON slog logger on stdout as the default.
// Unknown levels fall back to info.
func prepareLogger(level string) {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// The binary runs in one of three modes:
//
//	underwriting -validate rules.yaml [-category risk]   check a rules file
//	underwriting -config config.yaml -case case.json     derive once and print
//	underwriting -config config.yaml                     serve
//
// Startup failures exit with code 1.
func main() {
	configPath := flag.String("config", "/etc/underwriting/config.yaml", "configuration file")
	casePath := flag.String("case", "", "case JSON file to evaluate once")
	validatePath := flag.String("validate", "", "rules file to validate")
	categoryName := flag.String("category", "", "rule category of the -validate file (default: from the file name)")
	flag.Parse()

	if *validatePath != "" {
		prepareLogger("warn")
		os.Exit(validateFile(*validatePath, *categoryName))
	}

	config, err := configuration.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Unable to load configuration", "error", err)
		os.Exit(1)
	}
	prepareLogger(config.Logger.Level)

	appCtx, appCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer appCancel()

	if *casePath != "" {
		err = evaluateCase(appCtx, config, *casePath)
	} else {
		err = serve(appCtx, config)
	}
	if err != nil {
		slog.Error("Stopped with error", "error", err)
		os.Exit(1)
	}
}

// openStore opens the configured backend and seeds empty categories.
func openStore(ctx context.Context, config *configuration.AppConfig, m *metrics.Metrics) (*store.Store, store.Backend, error) {
	backend, err := store.Open(ctx, config.Store.Backend, config.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open %s store: %w", config.Store.Backend, err)
	}
	s := store.New(backend,
		store.WithMetrics(m),
		store.WithHistoryLimit(config.Store.HistoryLimit),
	)

	for category, path := range config.Seed.Files() {
		data, err := os.ReadFile(path)
		if err != nil {
			backend.Close()
			return nil, nil, fmt.Errorf("unable to read %s seed: %w", category, err)
		}
		seeded, err := s.Seed(ctx, category, data, store.FormatOf(path))
		if err != nil {
			backend.Close()
			return nil, nil, fmt.Errorf("unable to seed %s rules: %w", category, err)
		}
		if seeded {
			slog.Info("Rules seeded", "category", category, "file", path)
		}
	}
	return s, backend, nil
}

func evaluateCase(ctx context.Context, config *configuration.AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read case: %w", err)
	}
	var c casedata.Case
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("unable to parse case: %w", err)
	}

	s, backend, err := openStore(ctx, config, nil)
	if err != nil {
		return err
	}
	defer backend.Close()

	engine := derive.NewEngine(s, derive.WithCacheTTL(config.Engine.CacheTTL))
	d, err := engine.Derive(ctx, &c)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func serve(ctx context.Context, config *configuration.AppConfig) error {
	m := metrics.New()
	s, backend, err := openStore(ctx, config, m)
	if err != nil {
		return err
	}
	defer backend.Close()

	if config.Journal.File != "" {
		j := journal.New(config.Journal.File, config.Journal.Size, config.Journal.Amount)
		defer j.Close()
		s.Subscribe(j.Record)
	}

	engine := derive.NewEngine(s, derive.WithMetrics(m), derive.WithCacheTTL(config.Engine.CacheTTL))
	s.Subscribe(engine.Invalidate)
	for _, category := range rule.Categories {
		rules, version, err := engine.Rules(ctx, category)
		if err != nil {
			return err
		}
		slog.Info("Rules loaded", "category", category, "version", version, "enabled", len(rules))
	}

	if config.Store.Watch {
		files, ok := backend.(*store.FileBackend)
		if !ok {
			return errors.New("store.watch requires the file backend")
		}
		watcher := store.NewWatcher(files, s, config.Store.Debounce, nil)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Error("File watcher failed", "error", err)
			}
		}()
	}

	if config.Backup.Schedule != "" {
		b := backup.New(s, backup.Config{
			Schedule: config.Backup.Schedule,
			Dir:      config.Backup.Dir,
			Format:   store.Format(config.Backup.Format),
			Keep:     config.Backup.Keep,
		}, m)
		scheduler := backup.NewScheduler(b)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	if config.Server.Address == "" {
		slog.Info("Server disabled")
		<-ctx.Done()
		return nil
	}

	srv := server.NewServer(config.Server.Address, s, m.Handler())
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
		}
	}()
	slog.Info("Server listening " + config.Server.Address)
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown", "error", err)
	}
	slog.Info("Server stopped")
	return nil
}

// validateFile prints the validation result of a rules file as JSON and
// returns the exit code.
func validateFile(path, categoryName string) int {
	if categoryName == "" {
		categoryName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	category, err := rule.ParseCategory(categoryName)
	if err != nil {
		slog.Error("Unable to determine rule category", "error", err)
		return 1
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Unable to read rules", "error", err)
		return 1
	}

	res, err := validation.New(nil).ValidateRulesFile(category, data)
	if err != nil {
		slog.Error("Unable to validate rules", "error", err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return 1
	}
	if !res.Valid {
		return 1
	}
	return 0
}
