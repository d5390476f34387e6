package derive

import (
	"underwriting/internal/condition"
	"underwriting/internal/evalctx"
	"underwriting/internal/rule"
	"underwriting/internal/template"
)

// DecisionOption is an underwriting decision offered for a case.
type DecisionOption struct {
	RuleID             string                `json:"ruleId"`
	DecisionType       string                `json:"decisionType"`
	Name               string                `json:"name"`
	Description        string                `json:"description"`
	Recommended        bool                  `json:"recommended"`
	Matched            bool                  `json:"matched"`
	WeighingFactors    []rule.WeighingFactor `json:"weighingFactors"`
	GuidelineReference string                `json:"guidelineReference,omitempty"`
	AuthorityRequired  string                `json:"authorityRequired,omitempty"`
	PremiumLoading     *float64              `json:"premiumLoading,omitempty"`
	Exclusions         []string              `json:"exclusions,omitempty"`
}

// DecisionOptions returns the output of every enabled decision rule that
// matched or is marked alwaysInclude. Disabling a rule drops its option even
// when it is marked alwaysInclude.
func DecisionOptions(rules []rule.Rule, ctx evalctx.Context) []DecisionOption {
	out := []DecisionOption{}
	for _, res := range Evaluate(rules, ctx) {
		if !res.Matched && !res.Rule.AlwaysInclude {
			continue
		}
		o := res.Rule.Output
		if o == nil {
			continue
		}
		optCtx := res.primary(ctx)
		out = append(out, DecisionOption{
			RuleID:             res.Rule.ID,
			DecisionType:       res.Rule.DecisionType,
			Name:               o.Name,
			Description:        template.Render(o.Description, optCtx),
			Recommended:        recommended(o, optCtx),
			Matched:            res.Matched,
			WeighingFactors:    weighingFactors(o, optCtx),
			GuidelineReference: o.GuidelineReference,
			AuthorityRequired:  o.AuthorityRequired,
			PremiumLoading:     o.PremiumLoading,
			Exclusions:         o.Exclusions,
		})
	}
	return out
}

// weighingFactors prefers literal factors, then templated ones, then the
// conditional list.
func weighingFactors(o *rule.DecisionOutput, ctx evalctx.Context) []rule.WeighingFactor {
	switch {
	case len(o.WeighingFactors) > 0:
		out := make([]rule.WeighingFactor, len(o.WeighingFactors))
		copy(out, o.WeighingFactors)
		return out
	case len(o.WeighingFactorTemplates) > 0:
		out := make([]rule.WeighingFactor, 0, len(o.WeighingFactorTemplates))
		for _, t := range o.WeighingFactorTemplates {
			out = append(out, rule.WeighingFactor{
				Factor:      t.Factor,
				Description: template.Render(t.DescriptionTemplate, ctx),
				Impact:      t.Impact,
			})
		}
		return out
	case o.ConditionalWeighingFactors != nil:
		cw := o.ConditionalWeighingFactors
		if condition.Matches(cw.Condition, ctx) {
			out := make([]rule.WeighingFactor, len(cw.Factors))
			copy(out, cw.Factors)
			return out
		}
	}
	return []rule.WeighingFactor{}
}

func recommended(o *rule.DecisionOutput, ctx evalctx.Context) bool {
	value := o.Recommended != nil && *o.Recommended
	if rc := o.RecommendedCondition; rc != nil && condition.Matches(rc.Condition, ctx) {
		value = rc.Recommended
	}
	return value
}
