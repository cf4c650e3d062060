package rules

import (
	"regexp"
	"sort"
	"strings"
)

// RemarkSchema maps verdict labels to remark templates.
type RemarkSchema map[Verdict]string

// RemarkContext supplies values for template tokens.
type RemarkContext map[string]string

// RemarkTokens is the closed whitelist of tokens a remark template may use.
// Anything outside this set is rejected when the schema is published.
var RemarkTokens = map[string]bool{
	"indicator_code": true,
	"indicator_name": true,
	"verdict":        true,
	"barangay":       true,
	"period":         true,
	"area":           true,
}

// RemarkForVerdict looks the verdict up directly in the remark schema.
func RemarkForVerdict(schema RemarkSchema, v Verdict) (string, bool) {
	if schema == nil {
		return "", false
	}
	remark, ok := schema[v]
	return remark, ok
}

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderRemark substitutes {{ token }} occurrences from ctx. Tokens without a
// context value are left verbatim; publication-time validation is what keeps
// unknown tokens out of templates, rendering never fails.
func RenderRemark(template string, ctx RemarkContext) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := tokenPattern.FindStringSubmatch(m)[1]
		if v, ok := ctx[name]; ok {
			return v
		}
		return m
	})
}

// ExtractTokens lists the distinct token names a template references, sorted.
func ExtractTokens(template string) []string {
	seen := map[string]bool{}
	for _, m := range tokenPattern.FindAllStringSubmatch(template, -1) {
		seen[m[1]] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// UnknownTokens reports template tokens outside the whitelist, sorted.
func UnknownTokens(template string) []string {
	var bad []string
	for _, t := range ExtractTokens(template) {
		if !RemarkTokens[t] {
			bad = append(bad, t)
		}
	}
	return bad
}

// NormalizeRemark collapses runs of whitespace left behind by empty
// substitutions.
func NormalizeRemark(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
