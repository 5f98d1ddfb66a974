// Package clarify generates the questions raised for unresolved
// specification fields and line items.
package clarify

import (
	"fmt"
	"strings"

	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/specheader"
)

// DefaultMaxItems bounds item-level questions per extraction.
const DefaultMaxItems = 10

// Fields named by item-level questions.
const (
	FieldMaterial          = "material"
	FieldDiameter          = "diameter"
	FieldAngle             = "angle"
	FieldSecondaryDiameter = "secondary_diameter"
	FieldSpecification     = "specification"
)

// Options bounds generated output.
type Options struct {
	MaxItems      int
	RawTextMaxLen int
}

func (o Options) withDefaults() Options {
	if o.MaxItems <= 0 {
		o.MaxItems = DefaultMaxItems
	}
	if o.RawTextMaxLen <= 0 {
		o.RawTextMaxLen = 200
	}
	return o
}

// Generate runs the specification pass over the consolidated cell and then
// the item pass. Returned clarifications are pending and unsaved.
func Generate(extractionID string, cells []model.SpecificationCell, items []model.ExtractedItem, opts Options) []model.Clarification {
	opts = opts.withDefaults()
	var out []model.Clarification
	if cell, ok := specheader.ConsolidatedCell(cells); ok {
		if c, ok := ForSpec(extractionID, cell, opts.RawTextMaxLen); ok {
			out = append(out, c)
		}
	}
	return append(out, ForItems(extractionID, items, opts.MaxItems)...)
}

// ForSpec raises one missing_info question listing the unresolved
// specification fields of cell. ok is false when nothing is missing.
func ForSpec(extractionID string, cell model.SpecificationCell, rawMax int) (model.Clarification, bool) {
	missing := cell.ParsedData.Missing()
	if len(missing) == 0 {
		return model.Clarification{}, false
	}
	raw := specheader.Truncate(cell.RawText, rawMax)
	resolved := cell.ParsedData.Resolved()

	q := fmt.Sprintf("The specification %q does not state the %s. Please provide the missing values.",
		raw, joinList(missing))
	if len(resolved) > 0 {
		q = fmt.Sprintf("The specification %q states %s but not the %s. Please provide the missing values.",
			raw, describeResolved(cell.ParsedData), joinList(missing))
	}

	return model.Clarification{
		ExtractionID: extractionID,
		Type:         model.ClarifyMissingInfo,
		Status:       model.ClarificationPending,
		Question:     q,
		Context: map[string]any{
			"locationRef":    cell.LocationRef,
			"rawText":        raw,
			"missingFields":  missing,
			"resolvedFields": resolved,
		},
		Subject: raw,
		Field:   FieldSpecification,
	}, true
}

// ForItems raises at most max questions for items flagged for
// clarification. Items that already have material and diameter are
// skipped whatever their flag says.
func ForItems(extractionID string, items []model.ExtractedItem, max int) []model.Clarification {
	var out []model.Clarification
	for i, it := range items {
		if len(out) >= max {
			break
		}
		if !it.NeedsClarification || (it.HasMaterial() && it.HasDiameter()) {
			continue
		}
		c, ok := forItem(it)
		if !ok {
			continue
		}
		idx := i
		c.ExtractionID = extractionID
		c.Status = model.ClarificationPending
		c.ItemIndex = &idx
		c.Subject = it.Description
		c.Context = itemContext(it)
		out = append(out, c)
	}
	return out
}

// forItem picks the question in priority order: material, diameter, then
// the first stated reason.
func forItem(it model.ExtractedItem) (model.Clarification, bool) {
	name := itemName(it)
	switch {
	case !it.HasMaterial():
		return model.Clarification{
			Type:     model.ClarifyMissingInfo,
			Field:    FieldMaterial,
			Question: fmt.Sprintf("What material is specified for %s?", name),
		}, true
	case !it.HasDiameter():
		return model.Clarification{
			Type:     model.ClarifyMissingInfo,
			Field:    FieldDiameter,
			Question: fmt.Sprintf("What is the nominal diameter (mm) of %s?", name),
		}, true
	case it.ClarificationReason != nil && strings.TrimSpace(*it.ClarificationReason) != "":
		reason := strings.TrimSpace(*it.ClarificationReason)
		return model.Clarification{
			Type:     model.ClarifyAmbiguous,
			Field:    reasonField(reason),
			Question: fmt.Sprintf("Please clarify %s: %s.", name, reason),
		}, true
	}
	return model.Clarification{}, false
}

func itemName(it model.ExtractedItem) string {
	desc := specheader.Truncate(it.Description, 120)
	if it.ItemLabel == "" {
		return fmt.Sprintf("%q", desc)
	}
	return fmt.Sprintf("item %s %q", it.ItemLabel, desc)
}

func reasonField(reason string) string {
	switch {
	case strings.Contains(reason, "angle"):
		return FieldAngle
	case strings.Contains(reason, "outlet"):
		return FieldSecondaryDiameter
	}
	return ""
}

func itemContext(it model.ExtractedItem) map[string]any {
	ctx := map[string]any{
		"itemLabel":   it.ItemLabel,
		"description": it.Description,
		"rowIndex":    it.RowIndex,
		"itemType":    string(it.ItemType),
		"confidence":  it.Confidence,
	}
	if it.ClarificationReason != nil {
		ctx["reason"] = *it.ClarificationReason
	}
	if it.Material != nil {
		ctx["material"] = *it.Material
	}
	if it.Diameter != nil {
		ctx["diameter"] = *it.Diameter
	}
	return ctx
}

func describeResolved(p model.ParsedSpec) string {
	var parts []string
	if p.MaterialGrade != nil {
		parts = append(parts, "material grade "+*p.MaterialGrade)
	}
	if p.WallThickness != nil {
		parts = append(parts, fmt.Sprintf("wall thickness %gmm", *p.WallThickness))
	}
	if p.Lining != nil {
		parts = append(parts, "lining "+*p.Lining)
	}
	if p.ExternalCoating != nil {
		parts = append(parts, "coating "+*p.ExternalCoating)
	}
	if p.Standard != nil {
		parts = append(parts, "standard "+*p.Standard)
	}
	if p.Schedule != nil {
		parts = append(parts, "schedule "+*p.Schedule)
	}
	return joinList(parts)
}

// joinList renders "a", "a and b", "a, b and c".
func joinList(xs []string) string {
	switch len(xs) {
	case 0:
		return ""
	case 1:
		return xs[0]
	}
	return strings.Join(xs[:len(xs)-1], ", ") + " and " + xs[len(xs)-1]
}
