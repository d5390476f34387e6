// Package validation checks rule candidates before they are written to the
// rule store.
//
// Candidates are checked in their JSON shape, so a missing field can be told
// apart from a zero value. A candidate may be a rule.Rule, a decoded
// map[string]any or raw JSON. Errors block a write; warnings never do.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"underwriting/internal/condition"
	"underwriting/internal/evalctx"
	"underwriting/internal/metrics"
	"underwriting/internal/rule"
)

var idPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*(_[A-Z0-9]+)*_\d{3,}$`)

// Issue is a single error or warning attached to a field of the candidate.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

// Result is the outcome of a validation.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Error is returned by ValidateOrError for an invalid candidate.
type Error struct {
	Category rule.Category
	Result   Result
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Result.Errors))
	for i, issue := range e.Result.Errors {
		msgs[i] = issue.String()
	}
	return fmt.Sprintf("invalid %s rule: %s", e.Category, strings.Join(msgs, "; "))
}

// Validator validates rule candidates of every category.
type Validator struct {
	metrics *metrics.Metrics
}

// New creates a validator. m may be nil.
func New(m *metrics.Metrics) *Validator {
	return &Validator{metrics: m}
}

// Validate runs the common and category checks against candidate.
func (v *Validator) Validate(category rule.Category, candidate any) Result {
	r := &report{}
	obj, ok := toObject(candidate)
	if !ok {
		r.errorf("", "rule must be a JSON object")
	} else {
		checkRule(r, "", category, obj)
	}
	res := r.result()
	v.metrics.RecordValidation(string(category), res.Valid)
	return res
}

// ValidateOrError is Validate returning a *Error when the candidate has errors.
func (v *Validator) ValidateOrError(category rule.Category, candidate any) error {
	res := v.Validate(category, candidate)
	if !res.Valid {
		return &Error{Category: category, Result: res}
	}
	return nil
}

// ValidateBatch validates a list of candidates. Issues are prefixed with the
// index of the candidate, and ids repeated across the batch are errors.
func (v *Validator) ValidateBatch(category rule.Category, candidates any) Result {
	r := &report{}
	items, ok := toArray(candidates)
	if !ok {
		r.errorf("", "batch must be a JSON array")
		res := r.result()
		v.metrics.RecordValidation(string(category), res.Valid)
		return res
	}

	firstSeen := make(map[string]int)
	for i, item := range items {
		prefix := fmt.Sprintf("[%d]", i)
		obj, ok := item.(map[string]any)
		if !ok {
			r.errorf(prefix, "rule must be a JSON object")
			continue
		}
		checkRule(r, prefix, category, obj)

		id, _ := obj["id"].(string)
		if id == "" {
			continue
		}
		if j, dup := firstSeen[id]; dup {
			r.errorf(join(prefix, "id"), "duplicate id %q (first used at [%d])", id, j)
			continue
		}
		firstSeen[id] = i
	}

	res := r.result()
	v.metrics.RecordValidation(string(category), res.Valid)
	return res
}

// ValidateDocument validates every rule of doc as a batch.
func (v *Validator) ValidateDocument(doc rule.Document) Result {
	return v.ValidateBatch(doc.Category, doc.Rules)
}

type report struct {
	errors   []Issue
	warnings []Issue
}

func (r *report) errorf(field, format string, args ...any) {
	r.errors = append(r.errors, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *report) warnf(field, format string, args ...any) {
	r.warnings = append(r.warnings, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *report) result() Result {
	res := Result{Valid: len(r.errors) == 0, Errors: r.errors, Warnings: r.warnings}
	if res.Errors == nil {
		res.Errors = []Issue{}
	}
	if res.Warnings == nil {
		res.Warnings = []Issue{}
	}
	return res
}

func join(prefix, field string) string {
	switch {
	case prefix == "":
		return field
	case field == "":
		return prefix
	case strings.HasPrefix(field, "["):
		return prefix + field
	default:
		return prefix + "." + field
	}
}

func checkRule(r *report, prefix string, category rule.Category, obj map[string]any) {
	checkCommon(r, prefix, obj)

	switch category {
	case rule.CategoryRisk:
		checkRisk(r, prefix, obj)
	case rule.CategoryTestProtocol:
		checkTestProtocol(r, prefix, obj)
	case rule.CategoryDecision:
		checkDecision(r, prefix, obj)
	default:
		r.errorf(join(prefix, "category"), "unknown rule category %q", category)
	}
}

func checkCommon(r *report, prefix string, obj map[string]any) {
	if id, ok := requireString(r, prefix, obj, "id"); ok && !idPattern.MatchString(id) {
		r.warnf(join(prefix, "id"), "%q does not follow the PREFIX_NNN convention", id)
	}
	requireString(r, prefix, obj, "name")

	switch enabled, present := obj["enabled"]; {
	case !present:
		r.errorf(join(prefix, "enabled"), "is required")
	case !isBool(enabled):
		r.errorf(join(prefix, "enabled"), "must be a boolean")
	}

	switch priority, present := obj["priority"]; {
	case !present:
		r.errorf(join(prefix, "priority"), "is required")
	default:
		n, ok := priority.(float64)
		if !ok || n < 0 || n != float64(int(n)) {
			r.errorf(join(prefix, "priority"), "must be a non-negative integer")
		}
	}

	conditions, present := obj["conditions"]
	if !present || conditions == nil {
		r.errorf(join(prefix, "conditions"), "is required")
		return
	}
	checkCondition(r, join(prefix, "conditions"), conditions)
}

// checkCondition validates a condition tree node by node.
func checkCondition(r *report, field string, node any) {
	obj, ok := node.(map[string]any)
	if !ok {
		r.errorf(field, "must be an object")
		return
	}

	op, _ := obj["operator"].(string)
	_, hasChildren := obj["conditions"]
	if hasChildren || condition.Operator(op).IsLogical() {
		checkCompound(r, field, obj, condition.Operator(op))
		return
	}
	checkLeaf(r, field, obj, condition.Operator(op))
}

func checkCompound(r *report, field string, obj map[string]any, op condition.Operator) {
	if !op.IsLogical() {
		r.errorf(join(field, "operator"), "compound operator must be AND or OR, got %q", op)
	}
	children, ok := obj["conditions"].([]any)
	if !ok {
		r.errorf(join(field, "conditions"), "must be an array")
		return
	}
	if len(children) == 0 {
		r.errorf(join(field, "conditions"), "must contain at least one condition")
		return
	}
	for i, child := range children {
		checkCondition(r, fmt.Sprintf("%s[%d]", join(field, "conditions"), i), child)
	}
}

func checkLeaf(r *report, field string, obj map[string]any, op condition.Operator) {
	if path, ok := requireString(r, field, obj, "field"); ok && !evalctx.ValidPath(path) {
		r.warnf(join(field, "field"), "%q is not a valid field path", path)
	}

	if _, present := obj["operator"]; !present {
		r.errorf(join(field, "operator"), "is required")
		return
	}
	if !op.IsLeaf() {
		r.errorf(join(field, "operator"), "unsupported operator %q", op)
		return
	}

	value, present := obj["value"]
	if op.NeedsValue() && (!present || value == nil) {
		r.errorf(join(field, "value"), "is required for operator %q", op)
		return
	}

	switch op {
	case condition.OpMatches:
		pattern, ok := value.(string)
		if !ok {
			r.errorf(join(field, "value"), "must be a regular expression string")
			return
		}
		if _, err := regexp.Compile(pattern); err != nil {
			r.errorf(join(field, "value"), "invalid regular expression: %v", err)
		}
	case condition.OpIn:
		if _, ok := value.([]any); !ok {
			r.warnf(join(field, "value"), "operator in expects an array and never matches otherwise")
		}
	}
}

func checkRisk(r *report, prefix string, obj map[string]any) {
	checkEnum(r, prefix, obj, "category", rule.RiskCategories, true)

	actions, _ := obj["actions"].(map[string]any)
	create, ok := actions["createRiskFactor"].(map[string]any)
	if !ok {
		r.errorf(join(prefix, "actions.createRiskFactor"), "is required")
	} else {
		at := join(prefix, "actions.createRiskFactor")
		requireString(r, at, create, "factorName")
		requireString(r, at, create, "factorDescriptionTemplate")
		checkEnum(r, at, create, "category", rule.RiskCategories, false)
		checkEnum(r, at, create, "severity", rule.Severities, false)
		checkNumber(r, at, create, "complexityWeight", false)
		checkStrings(r, at, create, "supportingEvidenceTemplates")
	}

	raw, present := obj["severityRules"]
	if !present || raw == nil {
		return
	}
	entries, ok := raw.([]any)
	if !ok {
		r.errorf(join(prefix, "severityRules"), "must be an array")
		return
	}
	defaults := 0
	for i, e := range entries {
		at := fmt.Sprintf("%s[%d]", join(prefix, "severityRules"), i)
		entry, ok := e.(map[string]any)
		if !ok {
			r.errorf(at, "must be an object")
			continue
		}
		if c, has := entry["condition"]; has && c != nil {
			checkCondition(r, join(at, "condition"), c)
			checkEnum(r, at, entry, "severity", rule.Severities, true)
			checkNumber(r, at, entry, "complexityWeight", false)
		} else {
			defaults++
			if _, has := entry["defaultSeverity"]; !has {
				if _, hasSeverity := entry["severity"]; !hasSeverity {
					r.warnf(at, "default entry names no severity; MODERATE applies")
				}
			}
			checkEnum(r, at, entry, "defaultSeverity", rule.Severities, false)
			checkEnum(r, at, entry, "severity", rule.Severities, false)
			checkNumber(r, at, entry, "defaultComplexityWeight", false)
		}
	}
	if defaults > 1 {
		r.warnf(join(prefix, "severityRules"), "%d default entries; only the first applies", defaults)
	}
}

func checkTestProtocol(r *report, prefix string, obj map[string]any) {
	tests, ok := obj["tests"].([]any)
	if !ok || len(tests) == 0 {
		r.errorf(join(prefix, "tests"), "must contain at least one test")
		return
	}
	for i, t := range tests {
		at := fmt.Sprintf("%s[%d]", join(prefix, "tests"), i)
		entry, ok := t.(map[string]any)
		if !ok {
			r.errorf(at, "must be an object")
			continue
		}
		requireString(r, at, entry, "testCode")
		requireString(r, at, entry, "testName")
		checkEnum(r, at, entry, "requirementType", rule.RequirementTypes, true)

		for _, key := range []string{"estimatedCost", "turnaroundDays"} {
			v, present := entry[key]
			if !present || v == nil {
				continue
			}
			if n, ok := v.(float64); !ok || n < 0 {
				r.warnf(join(at, key), "should be a non-negative number")
			}
		}
	}
}

func checkDecision(r *report, prefix string, obj map[string]any) {
	checkEnum(r, prefix, obj, "decisionType", rule.DecisionTypes, true)

	if v, present := obj["alwaysInclude"]; present && !isBool(v) {
		r.errorf(join(prefix, "alwaysInclude"), "must be a boolean")
	}

	output, ok := obj["output"].(map[string]any)
	if !ok {
		r.errorf(join(prefix, "output"), "is required")
		return
	}
	at := join(prefix, "output")
	requireString(r, at, output, "name")
	requireString(r, at, output, "description")

	if s, _ := output["guidelineReference"].(string); s == "" {
		r.warnf(join(at, "guidelineReference"), "is missing")
	}
	if s, _ := output["authorityRequired"].(string); s == "" {
		r.warnf(join(at, "authorityRequired"), "is missing")
	}
	if v, present := output["recommended"]; present && !isBool(v) {
		r.errorf(join(at, "recommended"), "must be a boolean")
	}
	checkNumber(r, at, output, "premiumLoading", false)
	checkStrings(r, at, output, "exclusions")

	if raw, present := output["recommendedCondition"]; present && raw != nil {
		rc, ok := raw.(map[string]any)
		rcAt := join(at, "recommendedCondition")
		if !ok {
			r.errorf(rcAt, "must be an object")
		} else {
			if c, has := rc["condition"]; has && c != nil {
				checkCondition(r, join(rcAt, "condition"), c)
			} else {
				r.errorf(join(rcAt, "condition"), "is required")
			}
			if v, has := rc["recommended"]; !has || !isBool(v) {
				r.errorf(join(rcAt, "recommended"), "must be a boolean")
			}
		}
	}

	checkWeighingFactors(r, join(at, "weighingFactors"), output["weighingFactors"])

	if raw, present := output["weighingFactorTemplates"]; present && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			r.errorf(join(at, "weighingFactorTemplates"), "must be an array")
		}
		for i, item := range list {
			tAt := fmt.Sprintf("%s[%d]", join(at, "weighingFactorTemplates"), i)
			entry, ok := item.(map[string]any)
			if !ok {
				r.errorf(tAt, "must be an object")
				continue
			}
			requireString(r, tAt, entry, "factor")
			requireString(r, tAt, entry, "descriptionTemplate")
			checkEnum(r, tAt, entry, "impact", rule.Impacts, false)
		}
	}

	if raw, present := output["conditionalWeighingFactors"]; present && raw != nil {
		cw, ok := raw.(map[string]any)
		cwAt := join(at, "conditionalWeighingFactors")
		if !ok {
			r.errorf(cwAt, "must be an object")
			return
		}
		if c, has := cw["condition"]; has && c != nil {
			checkCondition(r, join(cwAt, "condition"), c)
		} else {
			r.errorf(join(cwAt, "condition"), "is required")
		}
		checkWeighingFactors(r, join(cwAt, "factors"), cw["factors"])
	}
}

func checkWeighingFactors(r *report, field string, raw any) {
	if raw == nil {
		return
	}
	list, ok := raw.([]any)
	if !ok {
		r.errorf(field, "must be an array")
		return
	}
	for i, item := range list {
		at := fmt.Sprintf("%s[%d]", field, i)
		entry, ok := item.(map[string]any)
		if !ok {
			r.errorf(at, "must be an object")
			continue
		}
		requireString(r, at, entry, "factor")
		checkEnum(r, at, entry, "impact", rule.Impacts, false)
	}
}

func requireString(r *report, prefix string, obj map[string]any, key string) (string, bool) {
	v, present := obj[key]
	if !present || v == nil {
		r.errorf(join(prefix, key), "is required")
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		r.errorf(join(prefix, key), "must be a string")
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		r.errorf(join(prefix, key), "must not be empty")
		return "", false
	}
	return s, true
}

func checkEnum(r *report, prefix string, obj map[string]any, key string, allowed []string, required bool) {
	v, present := obj[key]
	if !present || v == nil {
		if required {
			r.errorf(join(prefix, key), "is required")
		}
		return
	}
	s, ok := v.(string)
	if !ok || !slices.Contains(allowed, s) {
		r.errorf(join(prefix, key), "must be one of %s, got %v", strings.Join(allowed, ", "), v)
	}
}

func checkNumber(r *report, prefix string, obj map[string]any, key string, required bool) {
	v, present := obj[key]
	if !present || v == nil {
		if required {
			r.errorf(join(prefix, key), "is required")
		}
		return
	}
	if _, ok := v.(float64); !ok {
		r.errorf(join(prefix, key), "must be a number")
	}
}

func checkStrings(r *report, prefix string, obj map[string]any, key string) {
	v, present := obj[key]
	if !present || v == nil {
		return
	}
	list, ok := v.([]any)
	if !ok {
		r.errorf(join(prefix, key), "must be an array of strings")
		return
	}
	for i, item := range list {
		if _, ok := item.(string); !ok {
			r.errorf(fmt.Sprintf("%s[%d]", join(prefix, key), i), "must be a string")
		}
	}
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

// toObject brings a candidate into its decoded JSON shape.
func toObject(candidate any) (map[string]any, bool) {
	v, ok := decode(candidate)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func toArray(candidates any) ([]any, bool) {
	v, ok := decode(candidates)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

func decode(candidate any) (any, bool) {
	var data []byte
	switch c := candidate.(type) {
	case nil:
		return nil, false
	case json.RawMessage:
		data = c
	case []byte:
		data = c
	case string:
		data = []byte(c)
	default:
		normalized, err := evalctx.Normalize(c)
		if err != nil {
			return nil, false
		}
		return normalized, true
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return v, true
}
