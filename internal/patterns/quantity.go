package patterns

import (
	"strings"

	"github.com/dlclark/regexp2"
)

var explicitQty = compile(`\b(?:qty|quantity|no\.?\s*off)\s*[:=]?\s*(\d+(?:[.,]\d+)?)\b(?:\s*(nos?|no\.|ea|each|pcs?|pieces?|units?|sets?|off|m|lm|metres?|meters?)\b)?`)

var countQty = compile(`\b(\d+(?:[.,]\d+)?)\s*(nos?|no\.|ea|each|pcs?|pieces?|units?|sets?|off)(?=\W|$)`)

var metreQty = compile(`(?<![x×]\s*)\b(\d+(?:[.,]\d+)?)\s*(m|lm|metres?|meters?|lin\.?\s*m)\b(?!\s*(?:long|lg|length|lengths)\b)`)

// unitQty is ordered: count units before metre units.
var unitQty = []*regexp2.Regexp{countQty, metreQty}

var unitExpr = compile(`^\s*(nos?|no\.|ea|each|pcs?|pieces?|units?|sets?|off|item|m|lm|metres?|meters?|lin\.?\s*m|m1)\s*\.?\s*$`)

// NormalizeUnit maps a unit token to ea, set or m.
func NormalizeUnit(s string) (string, bool) {
	gs := groups(unitExpr, s)
	if gs == nil {
		return "", false
	}
	return canonicalUnit(gs[1]), true
}

func canonicalUnit(u string) string {
	u = strings.ToLower(strings.Join(strings.Fields(u), ""))
	switch {
	case strings.HasPrefix(u, "set"):
		return "set"
	case u == "m" || u == "lm" || u == "m1" || strings.HasPrefix(u, "metre") ||
		strings.HasPrefix(u, "meter") || strings.HasPrefix(u, "lin"):
		return "m"
	}
	return "ea"
}

// Quantity returns a quantity and unit found in text. Explicit labels win
// over count units, which win over metre units. found is false when no
// quantity cue is present.
func Quantity(text string) (qty float64, unit string, found bool) {
	if gs := groups(explicitQty, text); gs != nil {
		if v, ok := parseNumber(gs[1]); ok {
			unit = "ea"
			if gs[2] != "" {
				unit = canonicalUnit(gs[2])
			}
			return v, unit, true
		}
	}
	for _, re := range unitQty {
		gs := groups(re, text)
		if gs == nil {
			continue
		}
		if v, ok := parseNumber(gs[1]); ok {
			return v, canonicalUnit(gs[2]), true
		}
	}
	return 0, "", false
}

// HasUnit reports whether text carries a quantity or unit cue.
func HasUnit(text string) bool {
	_, _, ok := Quantity(text)
	return ok
}
