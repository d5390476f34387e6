// Package template renders description and evidence strings of rules.
//
// Placeholders have the form {{path}} where path follows the field path
// grammar of the condition language, for example
//
//	"{{matchedDisclosure.conditionName}} disclosed at age {{applicant.age}}"
//
// Placeholders are resolved, never evaluated: there are no functions, filters
// or expressions. A placeholder that does not resolve renders as an empty
// string, so Render never fails.
package template

import (
	"regexp"
	"strings"

	"underwriting/internal/evalctx"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// Render substitutes every placeholder of tmpl with the formatted value at its
// path in ctx.
func Render(tmpl string, ctx evalctx.Context) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		path := placeholder.FindStringSubmatch(m)[1]
		v, ok := evalctx.Resolve(ctx, path)
		if !ok {
			return ""
		}
		return evalctx.Format(v)
	})
}

// RenderAll renders each template of tmpls and drops results that are blank.
func RenderAll(tmpls []string, ctx evalctx.Context) []string {
	out := make([]string, 0, len(tmpls))
	for _, t := range tmpls {
		if s := strings.TrimSpace(Render(t, ctx)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
