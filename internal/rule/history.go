package rule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxHistory is the retention cap of a category history.
const MaxHistory = 50

// HistoryEntry is a snapshot of a document taken right before a mutation.
type HistoryEntry struct {
	ID                string          `json:"id,omitempty"`
	Version           string          `json:"version"`
	Timestamp         time.Time       `json:"timestamp"`
	ModifiedBy        string          `json:"modifiedBy,omitempty"`
	ChangeDescription string          `json:"changeDescription,omitempty"`
	Snapshot          json.RawMessage `json:"snapshot"`
}

// NewHistoryEntry serialises doc into a history entry.
func NewHistoryEntry(doc Document, at time.Time, modifiedBy, description string) (HistoryEntry, error) {
	snapshot, err := json.Marshal(doc)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("snapshot %s %s: %w", doc.Category, doc.Version, err)
	}
	return HistoryEntry{
		ID:                uuid.NewString(),
		Version:           doc.Version,
		Timestamp:         at,
		ModifiedBy:        modifiedBy,
		ChangeDescription: description,
		Snapshot:          snapshot,
	}, nil
}

// Document decodes the snapshot of the entry as a document of category.
func (e HistoryEntry) Document(category Category) (Document, error) {
	doc := Document{Category: category}
	if err := json.Unmarshal(e.Snapshot, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot %s: %w", e.Version, err)
	}
	if doc.Rules == nil {
		doc.Rules = []Rule{}
	}
	return doc, nil
}
