package validation

import (
	"errors"
	"fmt"

	"underwriting/internal/rule"

	"gopkg.in/yaml.v3"
)

// ValidateRulesFile validates the rules held in a JSON or YAML file, given
// either as a whole rule document or as a bare list of rules.
func (v *Validator) ValidateRulesFile(category rule.Category, data []byte) (Result, error) {
	rules, err := ruleList(data)
	if err != nil {
		return Result{}, err
	}
	return v.ValidateBatch(category, rules), nil
}

func ruleList(data []byte) ([]any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unable to parse rules: %w", err)
	}
	switch x := raw.(type) {
	case []any:
		return x, nil
	case map[string]any:
		for _, key := range []string{"rules", "protocols"} {
			list, ok := x[key]
			if !ok {
				continue
			}
			if list == nil {
				return []any{}, nil
			}
			rules, ok := list.([]any)
			if !ok {
				return nil, fmt.Errorf("%q must be a list", key)
			}
			return rules, nil
		}
		return nil, errors.New("document has no rules or protocols list")
	default:
		return nil, errors.New("rules file must hold a document or a list of rules")
	}
}
