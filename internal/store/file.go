package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"underwriting/internal/rule"
)

const historySuffix = ".history.json"

// FileBackend keeps one JSON file per category document and one per history
// in a directory. Writes go through a temporary file and a rename so readers
// never see a partial document.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("file backend: directory must be specified")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file backend: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the directory holding the files.
func (f *FileBackend) Dir() string {
	return f.dir
}

func (f *FileBackend) documentPath(category rule.Category) string {
	return filepath.Join(f.dir, string(category)+".json")
}

func (f *FileBackend) historyPath(category rule.Category) string {
	return filepath.Join(f.dir, string(category)+historySuffix)
}

// CategoryOf maps a file name of the directory back to its category.
func (f *FileBackend) CategoryOf(path string) (rule.Category, bool) {
	name := filepath.Base(path)
	if strings.HasSuffix(name, historySuffix) {
		name = strings.TrimSuffix(name, historySuffix)
	} else if strings.HasSuffix(name, ".json") {
		name = strings.TrimSuffix(name, ".json")
	} else {
		return "", false
	}
	category, err := rule.ParseCategory(name)
	return category, err == nil
}

func (f *FileBackend) LoadDocument(_ context.Context, category rule.Category) ([]byte, error) {
	return readFile(f.documentPath(category))
}

func (f *FileBackend) SaveDocument(_ context.Context, category rule.Category, data []byte) error {
	return writeFile(f.documentPath(category), data)
}

func (f *FileBackend) LoadHistory(_ context.Context, category rule.Category) ([]byte, error) {
	return readFile(f.historyPath(category))
}

func (f *FileBackend) SaveHistory(_ context.Context, category rule.Category, data []byte) error {
	return writeFile(f.historyPath(category), data)
}

func (f *FileBackend) Close() error {
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoData
	}
	return data, err
}

func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
