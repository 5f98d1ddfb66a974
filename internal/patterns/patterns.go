// Package patterns holds the ordered regular-expression libraries used to
// classify and measure piping line items and specification blocks.
//
// Every library is an ordered slice evaluated first-match-wins. Order
// encodes disambiguation and must not be collapsed into a best-match scan.
package patterns

import (
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// matchTimeout bounds a single evaluation against pathological input.
const matchTimeout = 250 * time.Millisecond

// Rule pairs a matcher with the classification it yields.
type Rule[T any] struct {
	Name  string
	Expr  *regexp2.Regexp
	Value T
}

// compile compiles a case-insensitive expression.
func compile(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.IgnoreCase)
	re.MatchTimeout = matchTimeout
	return re
}

// compileExact compiles a case-sensitive expression.
func compileExact(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.None)
	re.MatchTimeout = matchTimeout
	return re
}

func matches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}

// groups returns the capture groups of the first match, or nil.
// Index 0 is the whole match; non-participating groups are empty.
func groups(re *regexp2.Regexp, s string) []string {
	m, err := re.FindStringMatch(s)
	if err != nil || m == nil {
		return nil
	}
	gs := m.Groups()
	out := make([]string, len(gs))
	for i, g := range gs {
		if len(g.Captures) > 0 {
			out[i] = g.String()
		}
	}
	return out
}

// firstGroup returns the first non-empty capture group (1..n).
func firstGroup(gs []string) string {
	for _, g := range gs[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// first evaluates rules in order and returns the first matching rule.
func first[T any](rules []Rule[T], s string) (Rule[T], bool) {
	for _, r := range rules {
		if matches(r.Expr, s) {
			return r, true
		}
	}
	var zero Rule[T]
	return zero, false
}

// parseNumber parses a decimal that may use a comma separator.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	// A lone comma is a decimal separator unless three digits follow it.
	if i := strings.IndexByte(s, ','); i >= 0 && strings.Count(s, ",") == 1 &&
		!strings.Contains(s, ".") && len(s)-i-1 != 3 {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseNumber exposes the lenient numeric parser for cell values.
func ParseNumber(s string) (float64, bool) {
	return parseNumber(s)
}

// LeadingNumber parses the numeric prefix of s, so "200mm" yields 200.
func LeadingNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || c == ',' || (end == 0 && c == '-') {
			end++
			continue
		}
		break
	}
	return parseNumber(strings.TrimRight(s[:end], ".,"))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
