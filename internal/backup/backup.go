// Package backup periodically exports every rule category to a directory.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"underwriting/internal/metrics"
	"underwriting/internal/rule"
	"underwriting/internal/store"
)

const stampFormat = "20060102T150405Z"

// Exporter exports the rule document of a category.
type Exporter interface {
	Export(ctx context.Context, category rule.Category, format store.Format) ([]byte, error)
}

// Config controls where and how backups are written.
type Config struct {
	Schedule string
	Dir      string
	Format   store.Format
	// Keep is the number of backups kept per category, 0 keeps all.
	Keep int
}

// Backup writes one export file per category named
// <category>-<UTC timestamp>.<format>.
type Backup struct {
	exporter Exporter
	config   Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a backup of exporter's categories.
func New(exporter Exporter, config Config, m *metrics.Metrics) *Backup {
	if config.Format == "" {
		config.Format = store.FormatJSON
	}
	return &Backup{
		exporter: exporter,
		config:   config,
		metrics:  m,
		logger:   slog.Default().With("component", "backup"),
		now:      time.Now,
	}
}

// Run exports all categories once and prunes old files. It returns the
// written paths. A failing category does not stop the others.
func (b *Backup) Run(ctx context.Context) (paths []string, err error) {
	defer func() { b.metrics.RecordBackup(err) }()

	if err := os.MkdirAll(b.config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	stamp := b.now().UTC().Format(stampFormat)
	var errs []error
	for _, category := range rule.Categories {
		path, err := b.write(ctx, category, stamp)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", category, err))
			continue
		}
		paths = append(paths, path)
		if err := b.prune(category); err != nil {
			b.logger.Warn("Unable to prune old backups", "category", category, "error", err)
		}
	}
	return paths, errors.Join(errs...)
}

func (b *Backup) write(ctx context.Context, category rule.Category, stamp string) (string, error) {
	data, err := b.exporter.Export(ctx, category, b.config.Format)
	if err != nil {
		return "", err
	}
	path := filepath.Join(b.config.Dir, fmt.Sprintf("%s-%s.%s", category, stamp, b.config.Format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Files lists the backups of category, oldest first.
func (b *Backup) Files(category rule.Category) ([]string, error) {
	pattern := filepath.Join(b.config.Dir, fmt.Sprintf("%s-*.%s", category, b.config.Format))
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (b *Backup) prune(category rule.Category) error {
	if b.config.Keep <= 0 {
		return nil
	}
	files, err := b.Files(category)
	if err != nil {
		return err
	}
	for len(files) > b.config.Keep {
		if err := os.Remove(files[0]); err != nil {
			return err
		}
		files = files[1:]
	}
	return nil
}
