package derive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"underwriting/internal/casedata"
	"underwriting/internal/metrics"
	"underwriting/internal/rule"
	"underwriting/internal/store"

	"github.com/google/uuid"
)

// RuleSource supplies the current rule document of a category.
type RuleSource interface {
	Document(ctx context.Context, category rule.Category) (rule.Document, error)
}

// Derivation bundles the outputs of one run over a case.
type Derivation struct {
	RunID       string                   `json:"runId"`
	CaseID      string                   `json:"caseId,omitempty"`
	EvaluatedAt time.Time                `json:"evaluatedAt"`
	Versions    map[rule.Category]string `json:"ruleVersions"`
	RiskFactors []RiskFactorData         `json:"riskFactors"`
	Tests       []TestRecommendationData `json:"testRecommendations"`
	Options     []DecisionOption         `json:"decisionOptions"`
}

type cachedRules struct {
	version  string
	rules    []rule.Rule
	loadedAt time.Time
}

// Engine runs the pipelines against the enabled rules of a RuleSource.
// Enabled rules are cached per category until Invalidate is called for it,
// typically from a store subscription, or until the TTL elapses.
type Engine struct {
	source  RuleSource
	builder *casedata.Builder
	metrics *metrics.Metrics
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache map[rule.Category]cachedRules
	// gen counts invalidations so a load racing with a change is not cached.
	gen map[rule.Category]uint64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBuilder sets the context builder.
func WithBuilder(b *casedata.Builder) EngineOption {
	return func(e *Engine) { e.builder = b }
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithCacheTTL bounds how long cached rules are used. Zero means until
// invalidated.
func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.ttl = ttl }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine reading rules from source.
func NewEngine(source RuleSource, opts ...EngineOption) *Engine {
	e := &Engine{
		source: source,
		logger: slog.Default(),
		now:    time.Now,
		cache:  make(map[rule.Category]cachedRules),
		gen:    make(map[rule.Category]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.builder == nil {
		e.builder = casedata.NewBuilderWithClock(e.now)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// Invalidate drops the cached rules of the changed category. Its signature
// matches store subscribers.
func (e *Engine) Invalidate(c store.Change) {
	e.mu.Lock()
	_, cached := e.cache[c.Category]
	delete(e.cache, c.Category)
	e.gen[c.Category]++
	e.mu.Unlock()
	if cached {
		e.metrics.IncCacheInvalidations()
		e.logger.Debug("Rules cache invalidated", "category", c.Category, "operation", c.Operation, "version", c.Version)
	}
}

// Rules returns the enabled rules of category by descending priority and
// the version of the document they come from.
func (e *Engine) Rules(ctx context.Context, category rule.Category) ([]rule.Rule, string, error) {
	e.mu.RLock()
	c, ok := e.cache[category]
	gen := e.gen[category]
	e.mu.RUnlock()
	if ok && (e.ttl <= 0 || e.now().Sub(c.loadedAt) < e.ttl) {
		return c.rules, c.version, nil
	}

	doc, err := e.source.Document(ctx, category)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load %s rules: %w", category, err)
	}
	c = cachedRules{version: doc.Version, rules: doc.Enabled(), loadedAt: e.now()}
	e.metrics.IncCacheLoads(string(category))

	e.mu.Lock()
	if e.gen[category] == gen {
		e.cache[category] = c
	}
	e.mu.Unlock()
	return c.rules, c.version, nil
}

// Derive runs the three pipelines over a case.
func (e *Engine) Derive(ctx context.Context, c *casedata.Case) (Derivation, error) {
	started := e.now()
	d := Derivation{
		RunID:       uuid.NewString(),
		EvaluatedAt: started,
		Versions:    make(map[rule.Category]string, len(rule.Categories)),
	}
	if c != nil {
		d.CaseID = c.ID
	}

	rules := make(map[rule.Category][]rule.Rule, len(rule.Categories))
	for _, category := range rule.Categories {
		rs, version, err := e.Rules(ctx, category)
		if err != nil {
			return Derivation{}, err
		}
		rules[category] = rs
		d.Versions[category] = version
	}

	evalCtx := e.builder.Build(c)
	d.RiskFactors = RiskFactors(rules[rule.CategoryRisk], evalCtx)
	d.Tests = TestRecommendations(rules[rule.CategoryTestProtocol], evalCtx)
	d.Options = DecisionOptions(rules[rule.CategoryDecision], evalCtx)

	e.metrics.RecordDerivation(started, len(d.RiskFactors), len(d.Tests), len(d.Options))
	e.logger.Info("Case evaluated",
		"run", d.RunID,
		"case", d.CaseID,
		"risk_factors", len(d.RiskFactors),
		"tests", len(d.Tests),
		"options", len(d.Options),
	)
	return d, nil
}
