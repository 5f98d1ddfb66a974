package patterns

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Nominal diameter bounds in millimetres.
const (
	minDiameter = 10
	maxDiameter = 4000
)

// sizeTail rejects pairs that describe a length or wall rather than a bore.
const sizeTail = `(?!\s*(?:long|lg|length|wall|thick|thk)\b)(?!\s*m\b)`

// diameterPair captures "400x300" style primary/secondary sizes.
var diameterPair = compile(`(?:\b(?:DN|NB)\s*)?(?<![\d.])(\d{2,4})\s*(?:mm|NB|DN)?\s*[x×]\s*(?:DN\s*)?(\d{2,4})\s*(?:mm|NB|DN)?\b` + sizeTail)

// diameterRange captures "300 to 200NB", "300/200mm", "250-150NB" and
// "DN300/DN200". Only the outlet size needs a unit or DN prefix.
var diameterRange = compile(`(?:\b(?:DN|NB)\s*)?(?<![\d.])(\d{2,4})\s*(?:mm|NB|DN)?\s*(?:to|/|-)\s*(?:DN\s*(\d{2,4})\b|(\d{2,4})\s*(?:mm|NB|DN)\b)` + sizeTail)

// Diameters is ordered from most to least specific. Each captures the
// diameter in one of its groups.
var Diameters = []Rule[struct{}]{
	{Name: "nominal bore", Expr: compile(`\b(\d{2,4})\s*(?:mm\s*)?(?:NB|N\.B\.|DN)\b|\b(?:DN|NB)\s*(\d{2,4})\b`)},
	{Name: "dia", Expr: compile(`(?:Ø|⌀|\bdia(?:meter)?\.?|\bOD|\bID)\s*[:=]?\s*(\d{2,4}(?:\.\d+)?)\b|\b(\d{2,4}(?:\.\d+)?)\s*(?:mm)?\s*(?:Ø|⌀|dia(?:meter)?\b|OD\b|ID\b)`)},
	{Name: "millimetre", Expr: compile(`(?<!(?:thick(?:ness)?|thk|w\.?t\.?|wall|long|length|lg)\s*[:=]?\s*)\b(\d{2,4}(?:\.\d+)?)\s*mm\b(?!\s*(?:wall|w\.?t\b|thick|thk|long|lg|length))`)},
}

func inDiameterRange(v float64) bool {
	return v >= minDiameter && v <= maxDiameter
}

// Diameter returns the primary diameter and, when text has a size pair,
// the secondary diameter. Either may be nil. A pair whose leading size is
// the smaller one is not a reducer pair: "10 x 200NB" is a count.
func Diameter(text string) (primary, secondary *float64) {
	for _, re := range []*regexp2.Regexp{diameterPair, diameterRange} {
		gs := groups(re, text)
		if gs == nil {
			continue
		}
		a, okA := parseNumber(gs[1])
		b, okB := parseNumber(firstGroup(gs[1:]))
		if okA && okB && a >= b && inDiameterRange(a) && inDiameterRange(b) {
			return &a, &b
		}
	}
	for _, r := range Diameters {
		if v := capture(r.Expr, text); v != nil && inDiameterRange(*v) {
			return v, nil
		}
	}
	return nil, nil
}

// HasDiameter reports whether any diameter pattern resolves.
func HasDiameter(text string) bool {
	d, _ := Diameter(text)
	return d != nil
}

// SecondaryDiameter resolves the outlet size of a reducer or tee.
func SecondaryDiameter(text string) *float64 {
	_, s := Diameter(text)
	return s
}

var angleExpr = compile(`\b(\d{1,3}(?:\.\d+)?)\s*(?:°|deg(?:ree)?s?\b)`)

// Angle returns a bend angle in degrees within (0, 180].
func Angle(text string) *float64 {
	v := capture(angleExpr, text)
	if v == nil || *v <= 0 || *v > 180 {
		return nil
	}
	return v
}

var lengthExprs = []*regexp2.Regexp{
	compile(`\b(\d+(?:[.,]\d+)?)\s*(mm|m|metres?|meters?)\s*(?:long|lg|length|lengths)\b`),
	compile(`\b(?:length|long|lg|L)\s*[:=]?\s*(\d+(?:[.,]\d+)?)\s*(mm|m|metres?|meters?)\b`),
}

// Length returns a component length in millimetres.
func Length(text string) *float64 {
	for _, re := range lengthExprs {
		gs := groups(re, text)
		if gs == nil {
			continue
		}
		v, ok := parseNumber(gs[1])
		if !ok || v <= 0 {
			continue
		}
		if !strings.EqualFold(gs[2], "mm") {
			v *= 1000
		}
		return &v
	}
	return nil
}

var wallThicknessExprs = []*regexp2.Regexp{
	compile(`\b(?:wall\s*thickness|wall\s*thk|w\.?t\.?|thk|thickness)\s*[:=]?\s*(?:of\s+)?(\d{1,2}(?:[.,]\d+)?)\s*(?:mm)?\b`),
	compile(`\b(\d{1,2}(?:[.,]\d+)?)\s*mm\s*(?:wall|w\.?t\b|thick|thk)`),
}

// WallThickness returns a stated wall thickness in millimetres.
func WallThickness(text string) *float64 {
	for _, re := range wallThicknessExprs {
		if v := capture(re, text); v != nil && *v > 0 {
			return v
		}
	}
	return nil
}

// capture parses the first non-empty group of the first match.
func capture(re *regexp2.Regexp, text string) *float64 {
	gs := groups(re, text)
	if gs == nil {
		return nil
	}
	v, ok := parseNumber(firstGroup(gs))
	if !ok {
		return nil
	}
	return &v
}
