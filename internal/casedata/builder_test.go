package casedata

import (
	"testing"
	"time"

	"underwriting/internal/evalctx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func applicantOf(t *testing.T, ctx evalctx.Context) map[string]any {
	t.Helper()
	applicant, ok := ctx[evalctx.KeyApplicant].(map[string]any)
	require.True(t, ok, "applicant should be a map")
	return applicant
}

func TestBuild_AgeFromDateOfBirth(t *testing.T) {
	b := NewBuilderWithClock(fixedClock)

	tests := []struct {
		dob  string
		want float64
	}{
		{"1970-06-16", 55},
		{"1970-06-15", 56},
		{"1970-01-01", 56},
		{"2000-12-31", 25},
	}
	for _, tt := range tests {
		ctx := b.Build(&Case{Applicant: Applicant{DateOfBirth: tt.dob}})
		assert.Equal(t, tt.want, applicantOf(t, ctx)["age"], "dob %s", tt.dob)
	}
}

func TestBuild_VerbatimValuesWin(t *testing.T) {
	b := NewBuilderWithClock(fixedClock)
	c := &Case{Applicant: Applicant{
		DateOfBirth: "1970-01-01",
		Age:         ptr(44),
		HeightCm:    ptr(180.0),
		WeightKg:    ptr(120.0),
		BMI:         ptr(31.5),
	}}

	applicant := applicantOf(t, b.Build(c))
	assert.Equal(t, float64(44), applicant["age"])
	assert.Equal(t, 31.5, applicant["bmi"])
}

func TestBuild_BMI(t *testing.T) {
	b := NewBuilderWithClock(fixedClock)

	ctx := b.Build(&Case{Applicant: Applicant{HeightCm: ptr(180.0), WeightKg: ptr(81.0)}})
	assert.Equal(t, 25.0, applicantOf(t, ctx)["bmi"])

	ctx = b.Build(&Case{Applicant: Applicant{HeightCm: ptr(165.0), WeightKg: ptr(72.0)}})
	assert.Equal(t, 26.4, applicantOf(t, ctx)["bmi"])

	ctx = b.Build(&Case{Applicant: Applicant{HeightCm: ptr(165.0)}})
	assert.Equal(t, DefaultBMI, applicantOf(t, ctx)["bmi"])
}

func TestBuild_Defaults(t *testing.T) {
	b := NewBuilderWithClock(fixedClock)

	ctx := b.Build(&Case{Applicant: Applicant{DateOfBirth: "not a date"}})
	assert.Equal(t, float64(DefaultAge), applicantOf(t, ctx)["age"])

	ctx = b.Build(nil)
	applicant := applicantOf(t, ctx)
	assert.Equal(t, float64(DefaultAge), applicant["age"])
	assert.Equal(t, DefaultBMI, applicant["bmi"])
	assert.Equal(t, []any{}, ctx[evalctx.KeyMedicalDisclosures])
	assert.Equal(t, []any{}, ctx[evalctx.KeyRiskFactors])
	assert.Equal(t, []any{}, ctx[evalctx.KeyTestResults])
}

func TestBuild_Sections(t *testing.T) {
	b := NewBuilderWithClock(fixedClock)
	c := &Case{
		ID:          "case-1",
		SumAssured:  500000,
		Status:      "IN_REVIEW",
		ProductType: "TERM_LIFE",
		MedicalDisclosures: []MedicalDisclosure{
			{DisclosureType: "condition", ConditionName: "Hypertension", ConditionStatus: "active"},
		},
		TestResults: []TestResult{{TestCode: "HBA1C", Value: 7.1, IsAbnormal: true}},
	}

	ctx := b.Build(c)

	caseFields, ok := ctx[evalctx.KeyCase].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(500000), caseFields["sumAssured"])
	assert.Equal(t, "TERM_LIFE", caseFields["productType"])
	assert.NotContains(t, caseFields, evalctx.KeyApplicant)

	v, ok := evalctx.Resolve(ctx, "medicalDisclosures[0].conditionName")
	assert.True(t, ok)
	assert.Equal(t, "Hypertension", v)

	v, ok = evalctx.Resolve(ctx, "testResults[0].value")
	assert.True(t, ok)
	assert.Equal(t, 7.1, v)

	assert.Nil(t, c.Applicant.Age, "input case must not be modified")
}

func TestWholeYears(t *testing.T) {
	born := time.Date(1980, time.February, 29, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 45, WholeYears(born, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 46, WholeYears(born, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, WholeYears(born, time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)))
}
