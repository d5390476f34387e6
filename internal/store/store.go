// Package store keeps the versioned rule document of each category.
//
// Every mutation runs under the lock of its category and follows the same
// sequence: load the current document, snapshot it into the history, apply
// the change, bump the patch version, stamp lastModified and persist. Reads
// take no lock. Missing or corrupt documents read as an empty 1.0.0 document.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"underwriting/internal/metrics"
	"underwriting/internal/rule"
	"underwriting/internal/utils"
	"underwriting/internal/validation"
)

// Mutation operations reported in Change events.
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpToggle   = "toggle"
	OpReorder  = "reorder"
	OpImport   = "import"
	OpRollback = "rollback"
	// OpExternal reports a document changed outside the store, e.g. an
	// edited file picked up by the Watcher.
	OpExternal = "external"
)

// Meta describes who made a change and why. It is recorded on the history
// entry of the snapshot taken before the change.
type Meta struct {
	ModifiedBy  string
	Description string
}

// Change is delivered to subscribers after a mutation is persisted.
type Change struct {
	Category        rule.Category `json:"category"`
	Operation       string        `json:"operation"`
	RuleID          string        `json:"ruleId,omitempty"`
	PreviousVersion string        `json:"previousVersion,omitempty"`
	Version         string        `json:"version"`
	Rules           int           `json:"rules"`
	ModifiedBy      string        `json:"modifiedBy,omitempty"`
	Description     string        `json:"description,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Store is the rule store of all categories.
type Store struct {
	backend      Backend
	validator    *validation.Validator
	metrics      *metrics.Metrics
	logger       *slog.Logger
	historyLimit int
	now          func() time.Time

	locks map[rule.Category]*sync.Mutex

	subsMu sync.RWMutex
	subs   map[int]func(Change)
	nextID int

	// fingerprints of the documents last written by this store
	writtenMu sync.Mutex
	written   map[rule.Category]string
}

// Option configures a Store.
type Option func(*Store)

// WithValidator replaces the default validator.
func WithValidator(v *validation.Validator) Option {
	return func(s *Store) { s.validator = v }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithHistoryLimit caps the history below rule.MaxHistory. Values outside
// (0, rule.MaxHistory] are ignored.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 && n <= rule.MaxHistory {
			s.historyLimit = n
		}
	}
}

// WithClock sets the time source of lastModified and history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store on top of backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:      backend,
		historyLimit: rule.MaxHistory,
		now:          time.Now,
		locks:        make(map[rule.Category]*sync.Mutex, len(rule.Categories)),
		subs:         make(map[int]func(Change)),
		written:      make(map[rule.Category]string),
	}
	for _, c := range rule.Categories {
		s.locks[c] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = validation.New(s.metrics)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "store")
	return s
}

// Validator returns the validator gating writes.
func (s *Store) Validator() *validation.Validator {
	return s.validator
}

// Subscribe registers fn to receive every Change. fn runs synchronously
// while the category is locked, so it must not call mutating methods of
// the store. The returned function cancels the subscription.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(c Change) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, fn := range s.subs {
		fn(c)
	}
}

// NotifyExternal reports a change made outside the store. Documents that
// are still the ones this store wrote last are ignored.
func (s *Store) NotifyExternal(ctx context.Context, category rule.Category) {
	doc, err := s.Document(ctx, category)
	if err != nil {
		s.logger.Warn("Unable to reload externally changed document", "category", category, "error", err)
		return
	}
	s.writtenMu.Lock()
	own := s.written[category] == fingerprint(doc)
	s.writtenMu.Unlock()
	if own {
		return
	}
	s.logger.Info("Rules changed externally", "category", category, "version", doc.Version)
	s.metrics.SetRulesCount(string(category), len(doc.Rules))
	s.notify(Change{
		Category:  category,
		Operation: OpExternal,
		Version:   doc.Version,
		Rules:     len(doc.Rules),
		Timestamp: s.now(),
	})
}

func checkCategory(category rule.Category) error {
	switch category {
	case rule.CategoryRisk, rule.CategoryTestProtocol, rule.CategoryDecision:
		return nil
	default:
		return fmt.Errorf("%q: %w", category, ErrUnknownCategory)
	}
}

// Document returns the current document of category.
func (s *Store) Document(ctx context.Context, category rule.Category) (rule.Document, error) {
	if err := checkCategory(category); err != nil {
		return rule.Document{}, err
	}
	return s.load(ctx, category)
}

// List returns the rules of category ordered by descending priority.
func (s *Store) List(ctx context.Context, category rule.Category) ([]rule.Rule, error) {
	doc, err := s.Document(ctx, category)
	if err != nil {
		return nil, err
	}
	rules := doc.Rules
	rule.SortByPriority(rules)
	return rules, nil
}

// Enabled returns the enabled rules of category ordered by descending
// priority.
func (s *Store) Enabled(ctx context.Context, category rule.Category) ([]rule.Rule, error) {
	doc, err := s.Document(ctx, category)
	if err != nil {
		return nil, err
	}
	return doc.Enabled(), nil
}

// Get returns the rule with the given id.
func (s *Store) Get(ctx context.Context, category rule.Category, id string) (rule.Rule, error) {
	doc, err := s.Document(ctx, category)
	if err != nil {
		return rule.Rule{}, err
	}
	i := doc.Index(id)
	if i < 0 {
		return rule.Rule{}, fmt.Errorf("rule %q in %s: %w", id, category, ErrNotFound)
	}
	return doc.Rules[i], nil
}

// History returns the snapshots of category, oldest first.
func (s *Store) History(ctx context.Context, category rule.Category) ([]rule.HistoryEntry, error) {
	if err := checkCategory(category); err != nil {
		return nil, err
	}
	h, err := s.loadHistory(ctx, category)
	if err != nil {
		return nil, err
	}
	return h.ToSlice(), nil
}

// Create adds r to category after validating it.
func (s *Store) Create(ctx context.Context, category rule.Category, r rule.Rule, meta Meta) (rule.Rule, error) {
	_, err := s.mutate(ctx, category, OpCreate, r.ID, meta, true, func(doc *rule.Document, _ []rule.HistoryEntry) error {
		if err := s.validator.ValidateOrError(category, r); err != nil {
			return err
		}
		if doc.Index(r.ID) >= 0 {
			return fmt.Errorf("rule %q in %s: %w", r.ID, category, ErrConflict)
		}
		doc.Rules = append(doc.Rules, r)
		return nil
	})
	if err != nil {
		return rule.Rule{}, err
	}
	return r, nil
}

// Update replaces the rule with the given id. The id itself cannot change;
// an empty r.ID is taken to mean id.
func (s *Store) Update(ctx context.Context, category rule.Category, id string, r rule.Rule, meta Meta) (rule.Rule, error) {
	if r.ID == "" {
		r.ID = id
	}
	_, err := s.mutate(ctx, category, OpUpdate, id, meta, true, func(doc *rule.Document, _ []rule.HistoryEntry) error {
		i := doc.Index(id)
		if i < 0 {
			return fmt.Errorf("rule %q in %s: %w", id, category, ErrNotFound)
		}
		if r.ID != id {
			return &validation.Error{Category: category, Result: validation.Result{
				Errors:   []validation.Issue{{Field: "id", Message: fmt.Sprintf("cannot be changed from %q to %q", id, r.ID)}},
				Warnings: []validation.Issue{},
			}}
		}
		if err := s.validator.ValidateOrError(category, r); err != nil {
			return err
		}
		doc.Rules[i] = r
		return nil
	})
	if err != nil {
		return rule.Rule{}, err
	}
	return r, nil
}

// Delete removes the rule with the given id.
func (s *Store) Delete(ctx context.Context, category rule.Category, id string, meta Meta) error {
	_, err := s.mutate(ctx, category, OpDelete, id, meta, true, func(doc *rule.Document, _ []rule.HistoryEntry) error {
		i := doc.Index(id)
		if i < 0 {
			return fmt.Errorf("rule %q in %s: %w", id, category, ErrNotFound)
		}
		doc.Rules = append(doc.Rules[:i], doc.Rules[i+1:]...)
		return nil
	})
	return err
}

// Toggle flips the enabled flag of a rule and returns the updated rule.
func (s *Store) Toggle(ctx context.Context, category rule.Category, id string, meta Meta) (rule.Rule, error) {
	var toggled rule.Rule
	_, err := s.mutate(ctx, category, OpToggle, id, meta, true, func(doc *rule.Document, _ []rule.HistoryEntry) error {
		i := doc.Index(id)
		if i < 0 {
			return fmt.Errorf("rule %q in %s: %w", id, category, ErrNotFound)
		}
		doc.Rules[i].Enabled = !doc.Rules[i].Enabled
		toggled = doc.Rules[i]
		return nil
	})
	return toggled, err
}

// ReorderStep is the priority gap between consecutive reordered rules.
const ReorderStep = 10

// Reorder assigns descending priorities to the listed rules: the i-th of n
// ids gets (n-i)*ReorderStep. Rules not listed keep their priority.
func (s *Store) Reorder(ctx context.Context, category rule.Category, ids []string, meta Meta) (rule.Document, error) {
	return s.mutate(ctx, category, OpReorder, "", meta, true, func(doc *rule.Document, _ []rule.HistoryEntry) error {
		seen := make(map[string]bool, len(ids))
		var issues []validation.Issue
		for i, id := range ids {
			if seen[id] {
				issues = append(issues, validation.Issue{Field: fmt.Sprintf("[%d]", i), Message: fmt.Sprintf("duplicate id %q", id)})
			}
			seen[id] = true
		}
		if len(issues) > 0 {
			return &validation.Error{Category: category, Result: validation.Result{Errors: issues, Warnings: []validation.Issue{}}}
		}

		positions := make([]int, len(ids))
		for i, id := range ids {
			positions[i] = doc.Index(id)
			if positions[i] < 0 {
				return fmt.Errorf("rule %q in %s: %w", id, category, ErrNotFound)
			}
		}
		for i, pos := range positions {
			doc.Rules[pos].Priority = (len(ids) - i) * ReorderStep
		}
		return nil
	})
}

// Import replaces the rules of category with the rules of an exported
// document. The payload must carry a version and a rule list; every rule is
// validated and ids must be unique. The stored version becomes the patch
// bump of the current one.
func (s *Store) Import(ctx context.Context, category rule.Category, data []byte, format Format, meta Meta) (rule.Document, error) {
	incoming, err := decodeDocument(category, data, format)
	if err != nil {
		s.metrics.RecordMutation(string(category), OpImport, err)
		return rule.Document{}, err
	}
	raw, err := rawRules(data, format)
	if err != nil {
		s.metrics.RecordMutation(string(category), OpImport, err)
		return rule.Document{}, err
	}

	return s.mutate(ctx, category, OpImport, "", meta, true, func(doc *rule.Document, _ []rule.HistoryEntry) error {
		// the raw list still tells absent fields from zero values
		res := s.validator.ValidateBatch(category, raw)
		if !res.Valid {
			return &validation.Error{Category: category, Result: res}
		}
		doc.Rules = incoming.Rules
		return nil
	})
}

// Export serialises the current document of category.
func (s *Store) Export(ctx context.Context, category rule.Category, format Format) ([]byte, error) {
	doc, err := s.Document(ctx, category)
	if err != nil {
		return nil, err
	}
	return encodeDocument(doc, format)
}

// Rollback restores the most recent snapshot recorded with version. The
// current document is snapshotted first. The restored document is not
// version-bumped, and a snapshot that no longer validates is restored with
// a warning rather than refused.
func (s *Store) Rollback(ctx context.Context, category rule.Category, version string, meta Meta) (rule.Document, error) {
	return s.mutate(ctx, category, OpRollback, "", meta, false, func(doc *rule.Document, entries []rule.HistoryEntry) error {
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Version != version {
				continue
			}
			restored, err := entries[i].Document(category)
			if err != nil {
				return fmt.Errorf("rollback %s to %s: %w", category, version, err)
			}
			*doc = restored
			if res := s.validator.ValidateDocument(restored); !res.Valid {
				s.logger.Warn("Restored rules fail validation",
					"category", category,
					"version", version,
					"errors", len(res.Errors),
					"first", res.Errors[0].String(),
				)
			}
			return nil
		}
		return fmt.Errorf("version %q of %s: %w", version, category, ErrNotFound)
	})
}

// Seed imports data into category when the category holds no rules yet.
// It reports whether the seed was applied.
func (s *Store) Seed(ctx context.Context, category rule.Category, data []byte, format Format) (bool, error) {
	doc, err := s.Document(ctx, category)
	if err != nil {
		return false, err
	}
	if len(doc.Rules) > 0 {
		return false, nil
	}
	if _, err := s.Import(ctx, category, data, format, Meta{ModifiedBy: "seed", Description: "initial rule set"}); err != nil {
		return false, err
	}
	return true, nil
}

// mutate runs fn against a copy of the current document under the category
// lock and persists the result together with a snapshot of the previous
// document. fn also receives the history as it was before the snapshot.
func (s *Store) mutate(ctx context.Context, category rule.Category, op, ruleID string, meta Meta, bump bool, fn func(doc *rule.Document, history []rule.HistoryEntry) error) (_ rule.Document, err error) {
	defer func() { s.metrics.RecordMutation(string(category), op, err) }()

	if err := checkCategory(category); err != nil {
		return rule.Document{}, err
	}

	lock := s.locks[category]
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.load(ctx, category)
	if err != nil {
		return rule.Document{}, err
	}
	history, err := s.loadHistory(ctx, category)
	if err != nil {
		return rule.Document{}, err
	}

	now := s.now()
	snapshot, err := rule.NewHistoryEntry(doc, now, meta.ModifiedBy, describe(op, ruleID, meta))
	if err != nil {
		return rule.Document{}, err
	}
	previous := doc.Version

	prior := history.ToSlice()
	next := doc
	next.Rules = append([]rule.Rule(nil), doc.Rules...)
	if err := fn(&next, prior); err != nil {
		return rule.Document{}, err
	}
	next.Category = category
	if next.Rules == nil {
		next.Rules = []rule.Rule{}
	}
	if bump {
		next.Version = rule.BumpPatch(previous)
		next.LastModified = now
	}

	history.Push(snapshot)
	if err := s.persist(ctx, next, history.ToSlice(), prior); err != nil {
		return rule.Document{}, err
	}
	s.writtenMu.Lock()
	s.written[category] = fingerprint(next)
	s.writtenMu.Unlock()

	s.logger.Info("Rules changed",
		"category", category,
		"operation", op,
		"rule", ruleID,
		"from", previous,
		"to", next.Version,
		"modified_by", meta.ModifiedBy,
	)
	s.metrics.SetRulesCount(string(category), len(next.Rules))
	s.notify(Change{
		Category:        category,
		Operation:       op,
		RuleID:          ruleID,
		PreviousVersion: previous,
		Version:         next.Version,
		Rules:           len(next.Rules),
		ModifiedBy:      meta.ModifiedBy,
		Description:     meta.Description,
		Timestamp:       now,
	})
	return next, nil
}

func fingerprint(doc rule.Document) string {
	data, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func describe(op, ruleID string, meta Meta) string {
	if meta.Description != "" {
		return meta.Description
	}
	if ruleID != "" {
		return "before " + op + " " + ruleID
	}
	return "before " + op
}

// persist writes doc and history. Backends implementing AtomicSaver write
// both at once; on the others a failed document write puts prior back as
// the history.
func (s *Store) persist(ctx context.Context, doc rule.Document, history, prior []rule.HistoryEntry) error {
	historyData, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode %s history: %w", doc.Category, err)
	}
	docData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s document: %w", doc.Category, err)
	}

	if saver, ok := s.backend.(AtomicSaver); ok {
		if err := saver.SaveAll(ctx, doc.Category, docData, historyData); err != nil {
			return unavailable("save "+string(doc.Category), err)
		}
		return nil
	}

	if err := s.backend.SaveHistory(ctx, doc.Category, historyData); err != nil {
		return unavailable("save "+string(doc.Category)+" history", err)
	}
	if err := s.backend.SaveDocument(ctx, doc.Category, docData); err != nil {
		s.restoreHistory(ctx, doc.Category, prior)
		return unavailable("save "+string(doc.Category)+" document", err)
	}
	return nil
}

func (s *Store) restoreHistory(ctx context.Context, category rule.Category, prior []rule.HistoryEntry) {
	data, err := json.Marshal(prior)
	if err == nil {
		err = s.backend.SaveHistory(ctx, category, data)
	}
	if err != nil {
		s.logger.Warn("Unable to restore history after failed write", "category", category, "error", err)
	}
}

func (s *Store) load(ctx context.Context, category rule.Category) (rule.Document, error) {
	data, err := s.backend.LoadDocument(ctx, category)
	if errors.Is(err, ErrNoData) {
		return rule.NewDocument(category), nil
	}
	if err != nil {
		return rule.Document{}, unavailable("load "+string(category)+" document", err)
	}

	doc := rule.Document{Category: category}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("Corrupt rule document, using empty default", "category", category, "error", err)
		return rule.NewDocument(category), nil
	}
	doc.Category = category
	if doc.Version == "" {
		doc.Version = rule.InitialVersion
	}
	if doc.Rules == nil {
		doc.Rules = []rule.Rule{}
	}
	return doc, nil
}

func (s *Store) loadHistory(ctx context.Context, category rule.Category) (*utils.RingBuffer[rule.HistoryEntry], error) {
	data, err := s.backend.LoadHistory(ctx, category)
	if errors.Is(err, ErrNoData) {
		return utils.NewRingBuffer[rule.HistoryEntry](s.historyLimit), nil
	}
	if err != nil {
		return nil, unavailable("load "+string(category)+" history", err)
	}

	var entries []rule.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("Corrupt rule history, starting a new one", "category", category, "error", err)
		entries = nil
	}
	return utils.NewRingBufferFrom(s.historyLimit, entries), nil
}
