package rule

import (
	"fmt"

	"underwriting/internal/condition"
)

// Category is the rule family discriminator. Each category has its own store
// document, validation checks and derivation pipeline.
type Category string

const (
	CategoryRisk         Category = "risk"
	CategoryTestProtocol Category = "test-protocols"
	CategoryDecision     Category = "decision"
)

// Categories lists every category in pipeline order.
var Categories = []Category{CategoryRisk, CategoryTestProtocol, CategoryDecision}

// ParseCategory maps a discriminator string onto a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryRisk, CategoryTestProtocol, CategoryDecision:
		return Category(s), nil
	case "test-protocol", "tests":
		return CategoryTestProtocol, nil
	default:
		return "", fmt.Errorf("unknown rule category %q", s)
	}
}

// Risk categories.
const (
	RiskMedical       = "MEDICAL"
	RiskLifestyle     = "LIFESTYLE"
	RiskFamilyHistory = "FAMILY_HISTORY"
	RiskFinancial     = "FINANCIAL"
	RiskOccupational  = "OCCUPATIONAL"
	RiskAvocation     = "AVOCATION"
	RiskBuild         = "BUILD"
)

// RiskCategories is the closed set of risk category tags.
var RiskCategories = []string{RiskMedical, RiskLifestyle, RiskFamilyHistory, RiskFinancial, RiskOccupational, RiskAvocation, RiskBuild}

// Severities.
const (
	SeverityLow      = "LOW"
	SeverityModerate = "MODERATE"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Severities is the closed set of risk factor severities.
var Severities = []string{SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical}

// Test requirement types.
const (
	RequirementMandatory   = "MANDATORY"
	RequirementConditional = "CONDITIONAL"
	RequirementSuggested   = "SUGGESTED"
	RequirementAdditional  = "ADDITIONAL"
)

// RequirementTypes is the closed set of requirement types, strongest first.
var RequirementTypes = []string{RequirementMandatory, RequirementConditional, RequirementSuggested, RequirementAdditional}

// RequirementRank orders requirement types; unknown types rank 0.
func RequirementRank(requirementType string) int {
	switch requirementType {
	case RequirementMandatory:
		return 4
	case RequirementConditional:
		return 3
	case RequirementSuggested:
		return 2
	case RequirementAdditional:
		return 1
	default:
		return 0
	}
}

// Decision types.
const (
	DecisionAcceptStandard  = "ACCEPT_STANDARD"
	DecisionAcceptLoaded    = "ACCEPT_LOADED"
	DecisionAcceptExclusion = "ACCEPT_EXCLUSION"
	DecisionPostpone        = "POSTPONE"
	DecisionDecline         = "DECLINE"
	DecisionRefer           = "REFER"
)

// DecisionTypes is the closed set of decision types.
var DecisionTypes = []string{DecisionAcceptStandard, DecisionAcceptLoaded, DecisionAcceptExclusion, DecisionPostpone, DecisionDecline, DecisionRefer}

// Weighing factor impacts.
const (
	ImpactPositive = "POSITIVE"
	ImpactNegative = "NEGATIVE"
	ImpactNeutral  = "NEUTRAL"
)

// Impacts is the closed set of weighing factor impacts.
var Impacts = []string{ImpactPositive, ImpactNegative, ImpactNeutral}

// Rule is a named, prioritised unit pairing a condition tree with a payload.
// The payload fields in use depend on the category of the document holding
// the rule: Actions/SeverityRules for risk, Tests for test protocols and
// DecisionType/Output/AlwaysInclude for decisions.
type Rule struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool                `json:"enabled" yaml:"enabled"`
	Priority    int                 `json:"priority" yaml:"priority"`
	Conditions  condition.Condition `json:"conditions" yaml:"conditions"`

	// Risk
	Category      string         `json:"category,omitempty" yaml:"category,omitempty"`
	Actions       *RiskActions   `json:"actions,omitempty" yaml:"actions,omitempty"`
	SeverityRules []SeverityRule `json:"severityRules,omitempty" yaml:"severityRules,omitempty"`

	// Test protocol
	Tests []TestEntry `json:"tests,omitempty" yaml:"tests,omitempty"`

	// Decision
	DecisionType  string          `json:"decisionType,omitempty" yaml:"decisionType,omitempty"`
	Output        *DecisionOutput `json:"output,omitempty" yaml:"output,omitempty"`
	AlwaysInclude bool            `json:"alwaysInclude,omitempty" yaml:"alwaysInclude,omitempty"`
}

// RiskActions is the action block of a risk rule.
type RiskActions struct {
	CreateRiskFactor *CreateRiskFactor `json:"createRiskFactor,omitempty" yaml:"createRiskFactor,omitempty"`
}

// CreateRiskFactor describes the risk factor emitted for every match.
type CreateRiskFactor struct {
	FactorName                  string   `json:"factorName" yaml:"factorName"`
	Category                    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Severity                    string   `json:"severity,omitempty" yaml:"severity,omitempty"`
	ComplexityWeight            *float64 `json:"complexityWeight,omitempty" yaml:"complexityWeight,omitempty"`
	FactorDescriptionTemplate   string   `json:"factorDescriptionTemplate" yaml:"factorDescriptionTemplate"`
	SupportingEvidenceTemplates []string `json:"supportingEvidenceTemplates,omitempty" yaml:"supportingEvidenceTemplates,omitempty"`
}

// SeverityRule selects a severity for a matched risk factor. An entry with a
// condition applies when it matches; an entry without one is the default.
type SeverityRule struct {
	Condition               *condition.Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
	Severity                string               `json:"severity,omitempty" yaml:"severity,omitempty"`
	ComplexityWeight        *float64             `json:"complexityWeight,omitempty" yaml:"complexityWeight,omitempty"`
	DefaultSeverity         string               `json:"defaultSeverity,omitempty" yaml:"defaultSeverity,omitempty"`
	DefaultComplexityWeight *float64             `json:"defaultComplexityWeight,omitempty" yaml:"defaultComplexityWeight,omitempty"`
}

// IsDefault reports whether the entry carries no condition.
func (s SeverityRule) IsDefault() bool {
	return s.Condition == nil
}

// TestEntry is one diagnostic test recommended by a protocol.
type TestEntry struct {
	TestCode        string   `json:"testCode" yaml:"testCode"`
	TestName        string   `json:"testName" yaml:"testName"`
	RequirementType string   `json:"requirementType" yaml:"requirementType"`
	ReasonTemplate  string   `json:"reasonTemplate,omitempty" yaml:"reasonTemplate,omitempty"`
	EstimatedCost   *float64 `json:"estimatedCost,omitempty" yaml:"estimatedCost,omitempty"`
	TurnaroundDays  *int     `json:"turnaroundDays,omitempty" yaml:"turnaroundDays,omitempty"`
	SkipIfExists    bool     `json:"skipIfExists,omitempty" yaml:"skipIfExists,omitempty"`
}

// DecisionOutput is the option a decision rule contributes.
type DecisionOutput struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	Recommended          *bool                 `json:"recommended,omitempty" yaml:"recommended,omitempty"`
	RecommendedCondition *RecommendedCondition `json:"recommendedCondition,omitempty" yaml:"recommendedCondition,omitempty"`

	WeighingFactors            []WeighingFactor          `json:"weighingFactors,omitempty" yaml:"weighingFactors,omitempty"`
	WeighingFactorTemplates    []WeighingFactorTemplate  `json:"weighingFactorTemplates,omitempty" yaml:"weighingFactorTemplates,omitempty"`
	ConditionalWeighingFactors *ConditionalWeighingFactors `json:"conditionalWeighingFactors,omitempty" yaml:"conditionalWeighingFactors,omitempty"`

	GuidelineReference string   `json:"guidelineReference,omitempty" yaml:"guidelineReference,omitempty"`
	AuthorityRequired  string   `json:"authorityRequired,omitempty" yaml:"authorityRequired,omitempty"`
	PremiumLoading     *float64 `json:"premiumLoading,omitempty" yaml:"premiumLoading,omitempty"`
	Exclusions         []string `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`
}

// RecommendedCondition overrides the recommended flag when Condition matches.
type RecommendedCondition struct {
	Condition   condition.Condition `json:"condition" yaml:"condition"`
	Recommended bool                `json:"recommended" yaml:"recommended"`
}

// WeighingFactor is a consideration presented with a decision option.
type WeighingFactor struct {
	Factor      string `json:"factor" yaml:"factor"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Impact      string `json:"impact,omitempty" yaml:"impact,omitempty"`
}

// WeighingFactorTemplate is a weighing factor whose description is rendered
// against the case context.
type WeighingFactorTemplate struct {
	Factor              string `json:"factor" yaml:"factor"`
	DescriptionTemplate string `json:"descriptionTemplate" yaml:"descriptionTemplate"`
	Impact              string `json:"impact,omitempty" yaml:"impact,omitempty"`
}

// ConditionalWeighingFactors applies Factors only when Condition matches.
type ConditionalWeighingFactors struct {
	Condition condition.Condition `json:"condition" yaml:"condition"`
	Factors   []WeighingFactor    `json:"factors" yaml:"factors"`
}
