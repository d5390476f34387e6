package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"underwriting/internal/rule"
)

// Backend persists the serialised document and history of each category.
// Loads of keys that were never saved return ErrNoData.
type Backend interface {
	LoadDocument(ctx context.Context, category rule.Category) ([]byte, error)
	SaveDocument(ctx context.Context, category rule.Category, data []byte) error
	LoadHistory(ctx context.Context, category rule.Category) ([]byte, error)
	SaveHistory(ctx context.Context, category rule.Category, data []byte) error
	Close() error
}

// AtomicSaver is implemented by backends that can write a document and its
// history in a single transaction.
type AtomicSaver interface {
	SaveAll(ctx context.Context, category rule.Category, document, history []byte) error
}

// Backend kinds accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the backend of the given kind. path is a directory for the
// file backend and a database file for SQLite; memory ignores it.
func Open(ctx context.Context, kind, path string) (Backend, error) {
	switch kind {
	case BackendFile:
		return NewFileBackend(path)
	case BackendSQLite:
		return NewSQLiteBackend(ctx, path)
	case BackendMemory, "":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

// MemoryBackend keeps everything in process memory.
type MemoryBackend struct {
	mu        sync.RWMutex
	documents map[rule.Category][]byte
	histories map[rule.Category][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		documents: make(map[rule.Category][]byte),
		histories: make(map[rule.Category][]byte),
	}
}

func (m *MemoryBackend) LoadDocument(_ context.Context, category rule.Category) ([]byte, error) {
	return m.load(m.documents, category)
}

func (m *MemoryBackend) SaveDocument(_ context.Context, category rule.Category, data []byte) error {
	return m.save(m.documents, category, data)
}

func (m *MemoryBackend) LoadHistory(_ context.Context, category rule.Category) ([]byte, error) {
	return m.load(m.histories, category)
}

func (m *MemoryBackend) SaveHistory(_ context.Context, category rule.Category, data []byte) error {
	return m.save(m.histories, category, data)
}

func (m *MemoryBackend) Close() error {
	return nil
}

func (m *MemoryBackend) load(from map[rule.Category][]byte, category rule.Category) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := from[category]
	if !ok {
		return nil, ErrNoData
	}
	return slices.Clone(data), nil
}

func (m *MemoryBackend) save(to map[rule.Category][]byte, category rule.Category, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	to[category] = slices.Clone(data)
	return nil
}
