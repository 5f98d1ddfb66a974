package patterns

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// HeaderPhrases mark a line as a specification block on their own.
var HeaderPhrases = []*regexp2.Regexp{
	compile(`\b(?:pipe|piping|pipework|material|project|technical)\s+spec(?:ification)?s?\b`),
	compile(`^\s*spec(?:ification)?s?\s*[:\-]`),
	compile(`\bgeneral\s+notes?\b`),
	compile(`\ball\s+(?:pipes?|pipework|fittings?|specials?)\s+(?:shall|to)\s+be\b`),
	compile(`\bunless\s+otherwise\s+(?:stated|specified|noted)\b`),
}

var standardExpr = compile(`\b(SA[BN]S\s*\d{2,5}(?:[-:]\d+)?|API\s*5L|ASTM\s*A\s*\d{2,4}|AWWA\s*C\d{3}|BS\s*EN\s*\d{3,5}|EN\s*\d{3,5}|BS\s*\d{3,5}|ISO\s*\d{3,5}|DIN\s*\d{3,5}|ASME\s*B\s*\d{2}(?:\.\d+)?)\b`)

var scheduleExpr = compile(`\bsch(?:edule|ed)?\.?\s*(\d{1,3}S?|STD|XS|XXS)\b`)

// Linings and Coatings map vocabulary to canonical names.
var Linings = []Rule[string]{
	{Name: "cml", Expr: compile(`\bCML\b|\bcement\s*(?:mortar\s*)?lin(?:ed|ing)\b|\blin(?:ed|ing)\s*[:\-]?\s*(?:with\s+)?cement(?:\s+mortar)?\b`), Value: "cement mortar"},
	{Name: "epoxy", Expr: compile(`\bepoxy\s+lin(?:ed|ing)\b|\blin(?:ed|ing)\s*[:\-]?\s*(?:with\s+)?(?:liquid\s+)?epoxy\b|\binternal(?:ly)?\s+(?:coated\s+with\s+)?epoxy\b`), Value: "epoxy"},
	{Name: "polyurethane", Expr: compile(`\bpolyurethane\s+lin(?:ed|ing)\b|\blin(?:ed|ing)\s*[:\-]?\s*(?:with\s+)?polyurethane\b|\bPU\s+lin(?:ed|ing)\b`), Value: "polyurethane"},
	{Name: "rubber", Expr: compile(`\brubber\s+lin(?:ed|ing)\b|\blin(?:ed|ing)\s*[:\-]?\s*(?:with\s+)?rubber\b`), Value: "rubber"},
	{Name: "ptfe", Expr: compile(`\bPTFE\s+lin(?:ed|ing)\b|\blin(?:ed|ing)\s*[:\-]?\s*(?:with\s+)?PTFE\b`), Value: "PTFE"},
	{Name: "glass", Expr: compile(`\bglass\s+lin(?:ed|ing)\b`), Value: "glass"},
	{Name: "unlined", Expr: compile(`\bunlined\b`), Value: "none"},
}

var Coatings = []Rule[string]{
	{Name: "fbe", Expr: compile(`\bfusion\s+bonded\s+epoxy\b|\bFBE\b`), Value: "fusion bonded epoxy"},
	{Name: "3lpe", Expr: compile(`\b3\s*LPE\b|\b3\s*-?\s*layer\s+polyethylene\b`), Value: "3LPE"},
	{Name: "3lpp", Expr: compile(`\b3\s*LPP\b|\b3\s*-?\s*layer\s+polypropylene\b`), Value: "3LPP"},
	{Name: "galvanised", Expr: compile(`\b(?:hot\s*[- ]?dip(?:ped)?\s+)?galvani[sz](?:ed|ing)\b|\bHDG\b`), Value: "galvanised"},
	{Name: "polyurethane", Expr: compile(`\b(?:external(?:ly)?\s+)?(?:coat(?:ed|ing))\s*[:\-]?\s*(?:with\s+)?polyurethane\b|\bpolyurethane\s+coat(?:ed|ing)\b`), Value: "polyurethane"},
	{Name: "bitumen", Expr: compile(`\bbitum(?:en|inous)\b|\bcoal\s+tar\s+enamel\b`), Value: "bitumen"},
	{Name: "epoxy", Expr: compile(`\bexternal(?:ly)?\s+(?:coated\s+with\s+)?epoxy\b|\bepoxy\s+(?:paint|coat(?:ed|ing))\b(?!\s+lin)`), Value: "epoxy"},
	{Name: "wrap", Expr: compile(`\b(?:polymeric|petrolatum|denso)\s+(?:tape\s+)?wrap(?:ped|ping)?\b`), Value: "tape wrap"},
}

// IsHeaderPhrase reports whether text contains an explicit header phrase.
func IsHeaderPhrase(text string) bool {
	for _, re := range HeaderPhrases {
		if matches(re, text) {
			return true
		}
	}
	return false
}

// Standard returns the governing standard, upper-cased with single spaces.
func Standard(text string) (string, bool) {
	gs := groups(standardExpr, text)
	if gs == nil {
		return "", false
	}
	return strings.ToUpper(collapse(gs[1])), true
}

// Schedule returns the pipe schedule, for example "40" or "STD".
func Schedule(text string) (string, bool) {
	gs := groups(scheduleExpr, text)
	if gs == nil {
		return "", false
	}
	return strings.ToUpper(gs[1]), true
}

// Lining returns the canonical internal lining named in text.
func Lining(text string) (string, bool) {
	r, ok := first(Linings, text)
	return r.Value, ok
}

// Coating returns the canonical external coating named in text.
func Coating(text string) (string, bool) {
	r, ok := first(Coatings, text)
	return r.Value, ok
}

// SpecSignals counts independent specification-data matches: standard,
// grade, wall thickness phrase and schedule.
func SpecSignals(text string) int {
	n := 0
	if _, ok := Standard(text); ok {
		n++
	}
	if _, ok := Grade(text); ok {
		n++
	}
	if WallThickness(text) != nil {
		n++
	}
	if _, ok := Schedule(text); ok {
		n++
	}
	return n
}

// IsSpecHeader applies the two-tier header test: an explicit phrase, or
// at least two independent specification signals.
func IsSpecHeader(text string) bool {
	return IsHeaderPhrase(text) || SpecSignals(text) >= 2
}
