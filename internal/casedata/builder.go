package casedata

import (
	"log/slog"
	"math"
	"time"

	"underwriting/internal/evalctx"

	"github.com/spf13/cast"
)

const (
	// DefaultAge is used when neither age nor date of birth is known.
	DefaultAge = 35
	// DefaultBMI is used when height or weight is missing.
	DefaultBMI = 24.0
)

// Builder assembles evaluation contexts from case aggregates.
// It holds no per-case state and may be shared between goroutines.
type Builder struct {
	now func() time.Time
}

// NewBuilder returns a builder that computes ages against the wall clock.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// NewBuilderWithClock returns a builder that computes ages against now().
func NewBuilderWithClock(now func() time.Time) *Builder {
	return &Builder{now: now}
}

// Build returns the evaluation context of c. Missing derived fields are filled
// in: applicant.age from dateOfBirth (default 35) and applicant.bmi from
// heightCm/weightKg (default 24). The input is not validated; a nil case
// yields a context made of defaults only.
func (b *Builder) Build(c *Case) evalctx.Context {
	root := map[string]any{}
	if c != nil {
		normalized, err := evalctx.Normalize(c)
		if err != nil {
			slog.Warn("Unable to normalize case data", "case", c.ID, "error", err)
		} else if m, ok := normalized.(map[string]any); ok {
			root = m
		}
	}

	applicant, _ := root[evalctx.KeyApplicant].(map[string]any)
	if applicant == nil {
		applicant = map[string]any{}
	}
	if v, ok := applicant["age"]; !ok || v == nil {
		applicant["age"] = float64(b.age(applicant["dateOfBirth"]))
	}
	if v, ok := applicant["bmi"]; !ok || v == nil {
		applicant["bmi"] = bmi(applicant["heightCm"], applicant["weightKg"])
	}

	ctx := evalctx.Context{
		evalctx.KeyApplicant:          applicant,
		evalctx.KeyMedicalDisclosures: list(root[evalctx.KeyMedicalDisclosures]),
		evalctx.KeyRiskFactors:        list(root[evalctx.KeyRiskFactors]),
		evalctx.KeyTestResults:        list(root[evalctx.KeyTestResults]),
	}

	caseFields := make(map[string]any, len(root))
	for k, v := range root {
		switch k {
		case evalctx.KeyApplicant, evalctx.KeyMedicalDisclosures, evalctx.KeyRiskFactors, evalctx.KeyTestResults:
			continue
		}
		caseFields[k] = v
	}
	ctx[evalctx.KeyCase] = caseFields

	return ctx
}

// age returns the number of whole years between dob and the builder clock.
func (b *Builder) age(dob any) int {
	if dob == nil {
		return DefaultAge
	}
	born, err := cast.ToTimeE(dob)
	if err != nil || born.IsZero() {
		return DefaultAge
	}
	return WholeYears(born, b.now())
}

// WholeYears is the calendar-aware number of full years from born to at.
func WholeYears(born, at time.Time) int {
	years := at.Year() - born.Year()
	if at.Month() < born.Month() || (at.Month() == born.Month() && at.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

func bmi(heightCm, weightKg any) float64 {
	h, errH := cast.ToFloat64E(heightCm)
	w, errW := cast.ToFloat64E(weightKg)
	if heightCm == nil || weightKg == nil || errH != nil || errW != nil || h <= 0 || w <= 0 {
		return DefaultBMI
	}
	meters := h / 100
	return math.Round(w/(meters*meters)*10) / 10
}

func list(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	return []any{}
}
