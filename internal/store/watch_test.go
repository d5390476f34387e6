package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"underwriting/internal/rule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_CategoryOf(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	c, ok := b.CategoryOf(filepath.Join(b.Dir(), "test-protocols.json"))
	assert.True(t, ok)
	assert.Equal(t, rule.CategoryTestProtocol, c)

	c, ok = b.CategoryOf("risk.history.json")
	assert.True(t, ok)
	assert.Equal(t, rule.CategoryRisk, c)

	_, ok = b.CategoryOf(".risk.json.123456")
	assert.False(t, ok)
	_, ok = b.CategoryOf("notes.txt")
	assert.False(t, ok)
}

func TestWatcher_ExternalEdit(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	s := New(b)

	var mu sync.Mutex
	var external []Change
	s.Subscribe(func(c Change) {
		if c.Operation != OpExternal {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		external = append(external, c)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWatcher(b, s, 20*time.Millisecond, nil)
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	doc := `{"version": "7.0.0", "rules": []}`
	require.NoError(t, os.WriteFile(filepath.Join(b.Dir(), "decision.json"), []byte(doc), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(external) > 0
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, rule.CategoryDecision, external[0].Category)
	assert.Equal(t, "7.0.0", external[0].Version)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestStore_NotifyExternalIgnoresOwnWrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, rule.CategoryRisk, riskRule("RISK_001", 1), Meta{})
	require.NoError(t, err)

	var external int
	s.Subscribe(func(c Change) {
		if c.Operation == OpExternal {
			external++
		}
	})
	s.NotifyExternal(ctx, rule.CategoryRisk)
	assert.Zero(t, external)

	s.NotifyExternal(ctx, rule.CategoryDecision)
	assert.Equal(t, 1, external, "documents never written by the store are reported")
}
