package derive

import (
	"underwriting/internal/evalctx"
	"underwriting/internal/rule"
	"underwriting/internal/template"
)

// TestRecommendationData is a diagnostic test recommended by a protocol.
type TestRecommendationData struct {
	RuleID          string   `json:"ruleId"`
	TestCode        string   `json:"testCode"`
	TestName        string   `json:"testName"`
	RequirementType string   `json:"requirementType"`
	Reason          string   `json:"reason,omitempty"`
	EstimatedCost   *float64 `json:"estimatedCost,omitempty"`
	TurnaroundDays  *int     `json:"turnaroundDays,omitempty"`
}

// TestRecommendations collects the tests of every matched protocol, one per
// test code. A later entry for a code already recommended is dropped when it
// sets skipIfExists; otherwise it replaces the recommendation only if its
// requirement type ranks strictly higher. The first recommendation of a code
// fixes its position in the result.
func TestRecommendations(rules []rule.Rule, ctx evalctx.Context) []TestRecommendationData {
	out := []TestRecommendationData{}
	position := make(map[string]int)
	for _, res := range Evaluate(rules, ctx) {
		if !res.Matched {
			continue
		}
		reasonCtx := res.primary(ctx)
		for _, t := range res.Rule.Tests {
			rec := TestRecommendationData{
				RuleID:          res.Rule.ID,
				TestCode:        t.TestCode,
				TestName:        t.TestName,
				RequirementType: t.RequirementType,
				Reason:          template.Render(t.ReasonTemplate, reasonCtx),
				EstimatedCost:   t.EstimatedCost,
				TurnaroundDays:  t.TurnaroundDays,
			}
			i, exists := position[t.TestCode]
			if !exists {
				position[t.TestCode] = len(out)
				out = append(out, rec)
				continue
			}
			if t.SkipIfExists {
				continue
			}
			if rule.RequirementRank(t.RequirementType) > rule.RequirementRank(out[i].RequirementType) {
				out[i] = rec
			}
		}
	}
	return out
}
