package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"underwriting/internal/rule"
	"underwriting/migrations"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

// SQLiteBackend keeps documents and histories in a SQLite database, one row
// per category in each of two tables.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens the database at path and applies the embedded
// migrations.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("sqlite backend: db path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: open database: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) LoadDocument(ctx context.Context, category rule.Category) ([]byte, error) {
	return s.load(ctx, "SELECT body FROM rule_documents WHERE category = ?", category)
}

const (
	upsertDocument = `INSERT INTO rule_documents (category, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(category) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	upsertHistory = `INSERT INTO rule_history (category, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(category) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
)

func (s *SQLiteBackend) SaveDocument(ctx context.Context, category rule.Category, data []byte) error {
	return s.save(ctx, upsertDocument, category, data)
}

func (s *SQLiteBackend) LoadHistory(ctx context.Context, category rule.Category) ([]byte, error) {
	return s.load(ctx, "SELECT body FROM rule_history WHERE category = ?", category)
}

func (s *SQLiteBackend) SaveHistory(ctx context.Context, category rule.Category, data []byte) error {
	return s.save(ctx, upsertHistory, category, data)
}

// SaveAll writes the document and history rows of category in one
// transaction.
func (s *SQLiteBackend) SaveAll(ctx context.Context, category rule.Category, document, history []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save %s: begin: %w", category, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertHistory, string(category), history); err != nil {
		return fmt.Errorf("save %s history: %w", category, err)
	}
	if _, err := tx.ExecContext(ctx, upsertDocument, string(category), document); err != nil {
		return fmt.Errorf("save %s document: %w", category, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save %s: commit: %w", category, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) load(ctx context.Context, query string, category rule.Category) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, query, string(category)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", category, err)
	}
	return body, nil
}

func (s *SQLiteBackend) save(ctx context.Context, query string, category rule.Category, data []byte) error {
	if _, err := s.db.ExecContext(ctx, query, string(category), data); err != nil {
		return fmt.Errorf("save %s: %w", category, err)
	}
	return nil
}
