package extract

import (
	"math"
	"strings"

	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/patterns"
)

// Confidence weights for resolved and unresolved fields.
const (
	baseConfidence = 0.5
	weightMaterial = 0.15
	weightDiameter = 0.15
	weightType     = 0.10
	weightQuantity = 0.10
	penaltyMissing = 0.2
	minConfidence  = 0.1
	maxConfidence  = 1.0
)

const (
	defaultUnit     = "ea"
	defaultQuantity = 1.0
)

// Clarification reason phrases, joined with "; ".
const (
	reasonMaterial    = "material not specified"
	reasonDiameter    = "diameter not specified"
	reasonBendAngle   = "bend angle not specified"
	reasonReducerSize = "reducer outlet diameter not specified"
)

// fields are the values resolved for one line item before scoring.
type fields struct {
	label       string
	description string
	text        string // text the patterns run over

	material *string
	diameter *float64
	length   *float64

	qty      float64
	unit     string
	qtyFound bool
}

// build resolves the remaining fields of f against ctx and scores the item.
func build(rowIndex int, f fields, ctx Context) model.ExtractedItem {
	itemType, typeKnown := patterns.ItemType(f.text)

	it := model.ExtractedItem{
		RowIndex:    rowIndex,
		ItemLabel:   f.label,
		Description: f.description,
		ItemType:    itemType,
		Quantity:    defaultQuantity,
		Unit:        defaultUnit,
	}

	it.Material = f.material
	if it.Material == nil {
		if m, ok := patterns.Material(f.text); ok {
			it.Material = &m
		} else {
			it.Material = ctx.Material
		}
	}
	if g, ok := patterns.Grade(f.text); ok {
		it.MaterialGrade = &g
	} else {
		it.MaterialGrade = ctx.MaterialGrade
	}

	primary, secondary := patterns.Diameter(f.text)
	it.Diameter = f.diameter
	if it.Diameter == nil {
		it.Diameter = primary
	}
	if itemType == model.ItemReducer || itemType == model.ItemTee {
		it.SecondaryDiameter = secondary
		if it.SecondaryDiameter == nil {
			it.SecondaryDiameter = patterns.SecondaryDiameter(f.text)
		}
	}
	if itemType == model.ItemBend {
		it.Angle = patterns.Angle(f.text)
	}

	it.Length = f.length
	if it.Length == nil {
		it.Length = patterns.Length(f.text)
	}
	if wt := patterns.WallThickness(f.text); wt != nil {
		it.WallThickness = wt
	} else {
		it.WallThickness = ctx.WallThickness
	}
	it.FlangeConfig = patterns.FlangeConfig(f.text)

	if f.qtyFound && f.qty > 0 {
		it.Quantity = f.qty
	}
	if f.unit != "" {
		it.Unit = f.unit
	}

	it.Confidence = Score(it, typeKnown, f.qtyFound && f.qty > 0)
	Flag(&it)
	return it
}

// Score applies the per-field confidence weights, clamped to [0.1, 1.0].
func Score(it model.ExtractedItem, typeKnown, qtyFound bool) float64 {
	c := baseConfidence
	if it.HasMaterial() {
		c += weightMaterial
	} else {
		c -= penaltyMissing
	}
	if it.HasDiameter() {
		c += weightDiameter
	} else {
		c -= penaltyMissing
	}
	if typeKnown && it.ItemType != model.ItemUnknown {
		c += weightType
	}
	if qtyFound {
		c += weightQuantity
	}
	return clamp(c)
}

func clamp(c float64) float64 {
	c = math.Round(c*100) / 100
	return math.Max(minConfidence, math.Min(maxConfidence, c))
}

// Reasons lists every unmet clarification condition of an item.
func Reasons(it model.ExtractedItem) []string {
	var out []string
	if !it.HasMaterial() {
		out = append(out, reasonMaterial)
	}
	if !it.HasDiameter() {
		out = append(out, reasonDiameter)
	}
	switch it.ItemType {
	case model.ItemBend:
		if it.Angle == nil {
			out = append(out, reasonBendAngle)
		}
	case model.ItemReducer:
		if it.SecondaryDiameter == nil {
			out = append(out, reasonReducerSize)
		}
	}
	return out
}

// Flag recomputes NeedsClarification and ClarificationReason in place.
func Flag(it *model.ExtractedItem) {
	reasons := Reasons(*it)
	it.NeedsClarification = len(reasons) > 0
	it.ClarificationReason = nil
	if len(reasons) > 0 {
		r := strings.Join(reasons, "; ")
		it.ClarificationReason = &r
	}
}
