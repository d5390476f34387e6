package derive

import (
	"sort"

	"underwriting/internal/condition"
	"underwriting/internal/evalctx"
	"underwriting/internal/rule"
	"underwriting/internal/template"
)

// Severity used when a rule resolves none.
const (
	FallbackSeverity         = rule.SeverityModerate
	FallbackComplexityWeight = 0.2
)

// RiskFactorData is a risk factor derived from a matched risk rule.
type RiskFactorData struct {
	RuleID             string   `json:"ruleId"`
	FactorName         string   `json:"factorName"`
	Category           string   `json:"category"`
	Severity           string   `json:"severity"`
	ComplexityWeight   float64  `json:"complexityWeight"`
	Description        string   `json:"description"`
	SupportingEvidence []string `json:"supportingEvidence"`
	// Source is the array element the factor was derived from, if any.
	Source *evalctx.MatchedItem `json:"source,omitempty"`
}

// RiskFactors derives one risk factor per augmentation of every matched risk
// rule. Factor names may hold placeholders and are rendered per augmentation;
// each rendered name is emitted once and the first match wins.
func RiskFactors(rules []rule.Rule, ctx evalctx.Context) []RiskFactorData {
	out := []RiskFactorData{}
	seen := make(map[string]struct{})
	for _, res := range Evaluate(rules, ctx) {
		if !res.Matched {
			continue
		}
		action := createRiskFactor(res.Rule)
		if action == nil {
			continue
		}
		for _, item := range res.items() {
			itemCtx := ctx.With(item)
			name := template.Render(action.FactorName, itemCtx)
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}

			severity, weight := resolveSeverity(res.Rule, action, itemCtx)
			rf := RiskFactorData{
				RuleID:             res.Rule.ID,
				FactorName:         name,
				Category:           action.Category,
				Severity:           severity,
				ComplexityWeight:   weight,
				Description:        template.Render(action.FactorDescriptionTemplate, itemCtx),
				SupportingEvidence: template.RenderAll(action.SupportingEvidenceTemplates, itemCtx),
			}
			if rf.Category == "" {
				rf.Category = res.Rule.Category
			}
			if !item.IsEmpty() {
				src := item
				rf.Source = &src
			}
			out = append(out, rf)
		}
	}
	return out
}

func createRiskFactor(r rule.Rule) *rule.CreateRiskFactor {
	if r.Actions == nil {
		return nil
	}
	return r.Actions.CreateRiskFactor
}

// resolveSeverity picks the severity of a factor. With severity rules, the
// first conditioned entry matching ctx wins, then the default entry, then the
// fallback. Without them the static action values apply.
func resolveSeverity(r rule.Rule, action *rule.CreateRiskFactor, ctx evalctx.Context) (string, float64) {
	if len(r.SeverityRules) == 0 {
		severity := action.Severity
		if severity == "" {
			severity = FallbackSeverity
		}
		return severity, weightOr(action.ComplexityWeight, FallbackComplexityWeight)
	}

	entries := make([]rule.SeverityRule, len(r.SeverityRules))
	copy(entries, r.SeverityRules)
	sort.SliceStable(entries, func(i, j int) bool {
		return !entries[i].IsDefault() && entries[j].IsDefault()
	})

	for _, e := range entries {
		if e.IsDefault() {
			severity := e.DefaultSeverity
			if severity == "" {
				severity = e.Severity
			}
			if severity == "" {
				break
			}
			weight := e.DefaultComplexityWeight
			if weight == nil {
				weight = e.ComplexityWeight
			}
			return severity, weightOr(weight, FallbackComplexityWeight)
		}
		if condition.Matches(*e.Condition, ctx) && e.Severity != "" {
			return e.Severity, weightOr(e.ComplexityWeight, FallbackComplexityWeight)
		}
	}
	return FallbackSeverity, FallbackComplexityWeight
}

func weightOr(w *float64, fallback float64) float64 {
	if w == nil {
		return fallback
	}
	return *w
}
