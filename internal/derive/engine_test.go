package derive

import (
	"context"
	"errors"
	"testing"
	"time"

	"underwriting/internal/casedata"
	"underwriting/internal/metrics"
	"underwriting/internal/rule"
	"underwriting/internal/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.NewMemoryBackend())
	ctx := context.Background()

	_, err := s.Create(ctx, rule.CategoryRisk, ageRiskRule(), store.Meta{})
	require.NoError(t, err)
	_, err = s.Create(ctx, rule.CategoryTestProtocol, protocol("TEST_001", "HBA1C", rule.RequirementSuggested, false), store.Meta{})
	require.NoError(t, err)
	_, err = s.Create(ctx, rule.CategoryDecision, decisionRule("DEC_001", rule.DecisionOutput{
		Name:        "Standard terms",
		Description: "Accept {{applicant.firstName}} at standard rates",
		Recommended: ptr(true),
	}), store.Meta{})
	require.NoError(t, err)
	return s
}

func sampleCase(age int) *casedata.Case {
	return &casedata.Case{
		ID:         "CASE-1",
		SumAssured: 500000,
		Applicant: casedata.Applicant{
			FirstName: "Sam",
			Age:       &age,
			HeightCm:  ptr(170.0),
			WeightKg:  ptr(95.0),
		},
	}
}

func TestEngine_Derive(t *testing.T) {
	s := seededStore(t)
	m := metrics.New()
	e := NewEngine(s, WithMetrics(m))

	d, err := e.Derive(context.Background(), sampleCase(70))
	require.NoError(t, err)

	assert.NotEmpty(t, d.RunID)
	assert.Equal(t, "CASE-1", d.CaseID)
	assert.Equal(t, map[rule.Category]string{
		rule.CategoryRisk:         "1.0.1",
		rule.CategoryTestProtocol: "1.0.1",
		rule.CategoryDecision:     "1.0.1",
	}, d.Versions)

	require.Len(t, d.RiskFactors, 1)
	assert.Equal(t, rule.SeverityHigh, d.RiskFactors[0].Severity)
	require.Len(t, d.Tests, 1, "BMI 32.9 is above 30")
	assert.Equal(t, "HBA1C", d.Tests[0].TestCode)
	assert.Empty(t, d.Options, "the decision rule needs age below 65")

	d, err = e.Derive(context.Background(), sampleCase(40))
	require.NoError(t, err)
	require.Len(t, d.Options, 1)
	assert.Equal(t, "Accept Sam at standard rates", d.Options[0].Description)
	assert.True(t, d.Options[0].Recommended)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.DerivationsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLoadsTotal.WithLabelValues("risk")), "rules are loaded once")
}

func TestEngine_InvalidatedByStoreChanges(t *testing.T) {
	s := seededStore(t)
	m := metrics.New()
	e := NewEngine(s, WithMetrics(m))
	s.Subscribe(e.Invalidate)
	ctx := context.Background()

	d, err := e.Derive(ctx, sampleCase(70))
	require.NoError(t, err)
	require.Len(t, d.RiskFactors, 1)

	_, err = s.Toggle(ctx, rule.CategoryRisk, "RISK_AGE_001", store.Meta{})
	require.NoError(t, err)

	d, err = e.Derive(ctx, sampleCase(70))
	require.NoError(t, err)
	assert.Empty(t, d.RiskFactors, "the disabled rule is no longer evaluated")
	assert.Equal(t, "1.0.2", d.Versions[rule.CategoryRisk])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheInvalidations))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheLoadsTotal.WithLabelValues("risk")))
}

func TestEngine_CacheTTL(t *testing.T) {
	s := seededStore(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	e := NewEngine(s, WithCacheTTL(time.Minute), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	rules, version, err := e.Rules(ctx, rule.CategoryRisk)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "1.0.1", version)

	// not subscribed: the cache only expires
	_, err = s.Toggle(ctx, rule.CategoryRisk, "RISK_AGE_001", store.Meta{})
	require.NoError(t, err)

	rules, _, err = e.Rules(ctx, rule.CategoryRisk)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	now = now.Add(2 * time.Minute)
	rules, version, err = e.Rules(ctx, rule.CategoryRisk)
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Equal(t, "1.0.2", version)
}

type failingSource struct{}

func (failingSource) Document(context.Context, rule.Category) (rule.Document, error) {
	return rule.Document{}, store.ErrUnavailable
}

func TestEngine_SourceError(t *testing.T) {
	e := NewEngine(failingSource{})
	_, err := e.Derive(context.Background(), sampleCase(40))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}
