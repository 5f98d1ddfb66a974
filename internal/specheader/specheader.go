// Package specheader detects document-level specification blocks and folds
// them into a single defaults record.
package specheader

import (
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/patterns"
)

// IsHeader applies the two-tier header test to a unit of text.
func IsHeader(text string) bool {
	return patterns.IsSpecHeader(text)
}

// ParseFields extracts every specification field present in text.
func ParseFields(text string) model.ParsedSpec {
	var p model.ParsedSpec
	if v, ok := patterns.Grade(text); ok {
		p.MaterialGrade = &v
	}
	p.WallThickness = patterns.WallThickness(text)
	if v, ok := patterns.Lining(text); ok {
		p.Lining = &v
	}
	if v, ok := patterns.Coating(text); ok {
		p.ExternalCoating = &v
	}
	if v, ok := patterns.Standard(text); ok {
		p.Standard = &v
	}
	if v, ok := patterns.Schedule(text); ok {
		p.Schedule = &v
	}
	return p
}

// Parse returns a SpecificationCell when text is a header and at least one
// field parses. rawText is truncated to maxRaw runes when maxRaw > 0.
func Parse(ref, text string, maxRaw int) (model.SpecificationCell, bool) {
	if !IsHeader(text) {
		return model.SpecificationCell{}, false
	}
	parsed := ParseFields(text)
	if parsed.Empty() {
		return model.SpecificationCell{}, false
	}
	return model.SpecificationCell{
		LocationRef: ref,
		RawText:     Truncate(text, maxRaw),
		ParsedData:  parsed,
	}, true
}

// Consolidate folds cells into one record, first non-null wins per field.
func Consolidate(cells []model.SpecificationCell) model.ParsedSpec {
	var out model.ParsedSpec
	for _, c := range cells {
		d := c.ParsedData
		if out.MaterialGrade == nil {
			out.MaterialGrade = d.MaterialGrade
		}
		if out.WallThickness == nil {
			out.WallThickness = d.WallThickness
		}
		if out.Lining == nil {
			out.Lining = d.Lining
		}
		if out.ExternalCoating == nil {
			out.ExternalCoating = d.ExternalCoating
		}
		if out.Standard == nil {
			out.Standard = d.Standard
		}
		if out.Schedule == nil {
			out.Schedule = d.Schedule
		}
	}
	return out
}

// ConsolidatedCell wraps the consolidated record as a cell anchored at the
// first contributing cell. ok is false when there are no cells.
func ConsolidatedCell(cells []model.SpecificationCell) (model.SpecificationCell, bool) {
	if len(cells) == 0 {
		return model.SpecificationCell{}, false
	}
	return model.SpecificationCell{
		LocationRef: cells[0].LocationRef,
		RawText:     cells[0].RawText,
		ParsedData:  Consolidate(cells),
	}, true
}

// Truncate shortens s to at most n runes. n <= 0 disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
