package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"underwriting/internal/condition"
	"underwriting/internal/rule"
	"underwriting/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_Record(t *testing.T) {
	var buf bytes.Buffer
	j := NewWithWriter(&buf)

	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	j.Record(store.Change{
		Category:        rule.CategoryRisk,
		Operation:       store.OpToggle,
		RuleID:          "RISK_001",
		PreviousVersion: "1.0.4",
		Version:         "1.0.5",
		Rules:           7,
		ModifiedBy:      "alice",
		Timestamp:       at,
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "toggle", line["event"])
	assert.Equal(t, "risk", line["category"])
	assert.Equal(t, "RISK_001", line["rule"])
	assert.Equal(t, "1.0.5", line["version"])
	assert.Equal(t, float64(7), line["rules"])
	assert.Equal(t, "alice", line["modifiedBy"])
	assert.NotContains(t, line, "description", "empty attributes are dropped")
	assert.NotContains(t, line, "level")
	assert.Contains(t, line, "time")
	assert.NoError(t, j.Close())
}

func TestJournal_SubscribedToStore(t *testing.T) {
	file := filepath.Join(t.TempDir(), "audit", "journal.jsonl")
	j := New(file, 1, 2)

	s := store.New(store.NewMemoryBackend())
	s.Subscribe(j.Record)

	ctx := context.Background()
	_, err := s.Create(ctx, rule.CategoryDecision, rule.Rule{
		ID:           "DEC_001",
		Name:         "Standard",
		Enabled:      true,
		Priority:     10,
		Conditions:   condition.Leaf("applicant.age", condition.OpLess, 60),
		DecisionType: rule.DecisionAcceptStandard,
		Output:       &rule.DecisionOutput{Name: "Standard", Description: "Standard terms"},
	}, store.Meta{ModifiedBy: "bob"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, rule.CategoryDecision, "DEC_001", store.Meta{}))
	require.NoError(t, j.Close())

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()

	var events []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		events = append(events, line["event"].(string))
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"create", "delete"}, events)
}
