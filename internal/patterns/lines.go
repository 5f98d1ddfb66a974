package patterns

import (
	"strings"
	"unicode"
)

// cellRef matches a cell holding only an item reference such as "1.2",
// "12", "A3" or "B1.4".
var cellRef = compileExact(`^\s*(\d{1,3}(?:\.\d{1,3}){0,3}|[A-Z]{1,2}\d{1,3}(?:\.\d{1,3})*)[.)]?\s*$`)

// lineRef matches a leading item reference on a text line.
var lineRef = compileExact(`^\s*(\d{1,3}(?:\.\d{1,3}){1,3}|[A-Z]{1,2}\d{1,3}(?:\.\d{1,3})*|\d{1,3}[.)])(?=\s)`)

var continuation = compile(`\b(?:carried|brought)\s+(?:forward|fwd|over)\b|\b[cb]/f\b|\bto\s+collection\b|\b(?:page|sub)[\s-]?total\b`)

var tableHeaderWords = []string{"item", "description", "unit", "qty", "quantity", "rate", "amount", "no.", "ref", "uom"}

var sectionHeading = compile(`^\s*(?:bill|section|part|division)\s+(?:no\.?\s*)?[\dA-Z]{1,3}\b\s*[:\-.]?`)

// CellItemRef reports whether a cell holds only an item reference.
func CellItemRef(cell string) (string, bool) {
	gs := groups(cellRef, cell)
	if gs == nil {
		return "", false
	}
	return gs[1], true
}

// LineItemRef returns the leading item reference of a line, if any.
func LineItemRef(line string) (string, bool) {
	gs := groups(lineRef, line)
	if gs == nil {
		return "", false
	}
	return strings.TrimRight(gs[1], ".)"), true
}

// HasItemRef reports whether text leads with an item reference.
func HasItemRef(text string) bool {
	if _, ok := CellItemRef(text); ok {
		return true
	}
	_, ok := LineItemRef(text)
	return ok
}

// IsContinuation reports carried/brought forward and total lines.
func IsContinuation(line string) bool {
	return matches(continuation, line)
}

// IsHeaderLike reports table-header rows, section headings and all-caps
// lines without digits.
func IsHeaderLike(line string) bool {
	lower := strings.ToLower(line)
	hits := 0
	for _, w := range tableHeaderWords {
		if containsWord(lower, w) {
			hits++
		}
	}
	if hits >= 2 && !strings.ContainsFunc(line, unicode.IsDigit) {
		return true
	}
	if matches(sectionHeading, line) && !HasDiameter(line) {
		return true
	}
	return isShouting(line)
}

func isShouting(line string) bool {
	letters := 0
	for _, r := range line {
		if unicode.IsDigit(r) {
			return false
		}
		if unicode.IsLetter(r) {
			if unicode.IsLower(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}

func containsWord(s, w string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '|' || r == ',' || r == ':' || r == '/'
	}) {
		if f == w {
			return true
		}
	}
	return false
}
