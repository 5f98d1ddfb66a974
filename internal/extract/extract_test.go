package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/boq-extractor/internal/document"
	"github.com/sells-group/boq-extractor/internal/model"
)

func lines(t model.DocumentType, texts ...string) *document.Parsed {
	doc := &document.Parsed{Type: t}
	for i, text := range texts {
		doc.Units = append(doc.Units, document.Unit{Index: i + 1, Ref: "L" + string(rune('0'+i+1)), Text: text})
	}
	return doc
}

func row(index int, header bool, cells ...string) document.Unit {
	var nonEmpty []string
	for _, c := range cells {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	return document.Unit{Index: index, Ref: "Sheet1!R" + string(rune('0'+index)), Cells: cells, Text: strings.Join(nonEmpty, " "), Header: header}
}

func TestExtract_PDFLines(t *testing.T) {
	doc := lines(model.DocPDF,
		"PIPE SPECIFICATION",
		"All pipes to be API 5L Gr B, 8mm WT",
		"1.1 200NB Pipe 120 m",
		"1.2 300NB 45 degree bend 4 No",
		"1.3 400x300mm Reducer 2 No",
		"1.4 200mm dia reducing tee 1 No",
		"1.5 Bend 150NB 3 No",
		"Carried forward",
	)

	res := New(Options{}).Extract(doc)

	require.Len(t, res.Cells, 1)
	assert.Equal(t, "L2", res.Cells[0].LocationRef)
	assert.Equal(t, "API 5L", *res.Consolidated.Standard)
	assert.Equal(t, 8.0, *res.Consolidated.WallThickness)

	require.Len(t, res.Items, 5)

	pipe := res.Items[0]
	assert.Equal(t, "1.1", pipe.ItemLabel)
	assert.Equal(t, 3, pipe.RowIndex)
	assert.Equal(t, model.ItemPipe, pipe.ItemType)
	assert.Equal(t, 200.0, *pipe.Diameter)
	assert.Equal(t, "carbon steel", *pipe.Material)
	assert.Equal(t, "Grade B", *pipe.MaterialGrade)
	assert.Equal(t, 8.0, *pipe.WallThickness)
	assert.Equal(t, 120.0, pipe.Quantity)
	assert.Equal(t, "m", pipe.Unit)
	assert.Equal(t, 1.0, pipe.Confidence)
	assert.False(t, pipe.NeedsClarification)
	assert.Nil(t, pipe.ClarificationReason)

	bend := res.Items[1]
	assert.Equal(t, model.ItemBend, bend.ItemType)
	assert.Equal(t, 45.0, *bend.Angle)
	assert.Equal(t, 300.0, *bend.Diameter)
	assert.Equal(t, 4.0, bend.Quantity)
	assert.Equal(t, "ea", bend.Unit)

	reducer := res.Items[2]
	assert.Equal(t, model.ItemReducer, reducer.ItemType)
	assert.Equal(t, 400.0, *reducer.Diameter)
	assert.Equal(t, 300.0, *reducer.SecondaryDiameter)
	assert.False(t, reducer.NeedsClarification)

	tee := res.Items[3]
	assert.Equal(t, model.ItemTee, tee.ItemType)
	assert.Equal(t, 200.0, *tee.Diameter)

	bare := res.Items[4]
	assert.Equal(t, model.ItemBend, bare.ItemType)
	assert.True(t, bare.NeedsClarification)
	require.NotNil(t, bare.ClarificationReason)
	assert.Equal(t, "bend angle not specified", *bare.ClarificationReason)
}

func TestExtract_WordLabelsAndReasons(t *testing.T) {
	doc := lines(model.DocWord,
		"Supply and deliver the following",
		"Tee piece",
	)

	res := New(Options{}).Extract(doc)
	require.Len(t, res.Items, 1)

	it := res.Items[0]
	assert.Equal(t, "WORD-2", it.ItemLabel)
	assert.Equal(t, model.ItemTee, it.ItemType)
	assert.Equal(t, 1.0, it.Quantity)
	assert.Equal(t, "ea", it.Unit)
	assert.True(t, it.NeedsClarification)
	assert.Equal(t, "material not specified; diameter not specified", *it.ClarificationReason)
	// 0.5 - 0.2 - 0.2 + 0.1
	assert.InDelta(t, 0.2, it.Confidence, 1e-9)
}

func TestExtract_NoLineItemCues(t *testing.T) {
	doc := lines(model.DocPDF,
		"Tender for the supply of goods",
		"Closing date 12 March",
		"Enquiries to the project office",
	)

	res := New(Options{}).Extract(doc)
	assert.Empty(t, res.Items)
	assert.Empty(t, res.Cells)
}

func TestExtract_ContextInheritance(t *testing.T) {
	doc := lines(model.DocPDF,
		"200NB bend 90°",
		"Section 2: ductile iron",
		"200NB bend 90°",
	)

	res := New(Options{}).Extract(doc)
	require.Len(t, res.Items, 2)

	assert.Nil(t, res.Items[0].Material)
	assert.True(t, res.Items[0].NeedsClarification)
	assert.Equal(t, "material not specified", *res.Items[0].ClarificationReason)

	require.NotNil(t, res.Items[1].Material)
	assert.Equal(t, "ductile iron", *res.Items[1].Material)
	assert.False(t, res.Items[1].NeedsClarification)
}

func TestExtract_SeededWallThicknessReachesEarlyItems(t *testing.T) {
	doc := lines(model.DocPDF,
		"1.1 mild steel pipe 250NB 30 m",
		"Pipe specification: SANS 719, wall thickness 6mm",
	)

	res := New(Options{}).Extract(doc)
	require.Len(t, res.Items, 1)
	require.NotNil(t, res.Items[0].WallThickness)
	assert.Equal(t, 6.0, *res.Items[0].WallThickness)
}

func TestExtract_TruncatesDescription(t *testing.T) {
	doc := lines(model.DocPDF, "200NB carbon steel pipe with a very long description")
	res := New(Options{DescriptionMaxLen: 10}).Extract(doc)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "200NB carb", res.Items[0].Description)
}

func TestExtract_ExcelHeaderColumns(t *testing.T) {
	doc := &document.Parsed{Type: model.DocExcel, Units: []document.Unit{
		row(1, true, "Item", "Description", "Unit", "Qty", "Rate", "Amount"),
		row(2, false, "1", "Stainless steel 316L pipe 150NB", "m", "24", "", ""),
		row(3, false, "2", "Elbow 90° 150NB", "No", "6", "", ""),
		row(4, false, "", "Supply only", "", "", "", ""),
		row(5, false, "3", "Blind flange", "No", "2", "", ""),
		row(6, false, "Carried forward", "", "", "", "", "1200"),
	}}

	res := New(Options{}).Extract(doc)
	require.Len(t, res.Items, 3)

	p := res.Items[0]
	assert.Equal(t, "1", p.ItemLabel)
	assert.Equal(t, "Stainless steel 316L pipe 150NB", p.Description)
	assert.Equal(t, "stainless steel", *p.Material)
	assert.Equal(t, "316L", *p.MaterialGrade)
	assert.Equal(t, 150.0, *p.Diameter)
	assert.Equal(t, 24.0, p.Quantity)
	assert.Equal(t, "m", p.Unit)
	assert.Equal(t, 1.0, p.Confidence)

	e := res.Items[1]
	assert.Equal(t, model.ItemBend, e.ItemType)
	assert.Equal(t, 90.0, *e.Angle)
	assert.Equal(t, 6.0, e.Quantity)
	assert.Equal(t, "ea", e.Unit)

	f := res.Items[2]
	assert.Equal(t, model.ItemFlange, f.ItemType)
	assert.Equal(t, "stainless steel", *f.Material)
	assert.Nil(t, f.Diameter)
	assert.True(t, f.NeedsClarification)
	assert.Equal(t, "diameter not specified", *f.ClarificationReason)
	// 0.5 + 0.15 - 0.2 + 0.1 + 0.1
	assert.InDelta(t, 0.65, f.Confidence, 1e-9)
}

func TestExtract_ExcelDiameterAndMaterialColumns(t *testing.T) {
	doc := &document.Parsed{Type: model.DocExcel, Units: []document.Unit{
		row(1, true, "No.", "Description", "Size", "Material", "Length (m)", "Qty"),
		row(2, false, "A1", "Straight pipe", "300", "HDPE PE100", "6", "10"),
	}}

	res := New(Options{}).Extract(doc)
	require.Len(t, res.Items, 1)

	it := res.Items[0]
	assert.Equal(t, "A1", it.ItemLabel)
	assert.Equal(t, 300.0, *it.Diameter)
	assert.Equal(t, "HDPE", *it.Material)
	assert.Equal(t, 6000.0, *it.Length)
	assert.Equal(t, 10.0, it.Quantity)
}

func TestExtract_ExcelPositional(t *testing.T) {
	doc := &document.Parsed{Type: model.DocExcel, Units: []document.Unit{
		row(1, true, "BILL OF QUANTITIES"),
		row(2, false, "1.1", "200NB pipe", "m", "120"),
		row(3, false, "", "200NB pipe offcuts"),
	}}

	res := New(Options{}).Extract(doc)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "1.1", res.Items[0].ItemLabel)
	assert.Equal(t, 120.0, res.Items[0].Quantity)
	assert.Equal(t, "m", res.Items[0].Unit)
}

func TestExtract_ExcelHeaderBelowTitle(t *testing.T) {
	doc := &document.Parsed{Type: model.DocExcel, Units: []document.Unit{
		row(1, true, "Bill of Quantities - Pump Station 3"),
		row(2, false, "Section 1: Pipework"),
		row(3, false, "Item", "Description", "Unit", "Qty"),
		row(4, false, "1.1", "Carbon steel pipe 200NB", "m", "10"),
		row(5, false, "1.2", "Carbon steel reducer 300 to 200NB", "No", "2"),
	}}

	res := New(Options{}).Extract(doc)
	require.Len(t, res.Items, 2)

	pipe := res.Items[0]
	assert.Equal(t, "1.1", pipe.ItemLabel)
	assert.Equal(t, "Carbon steel pipe 200NB", pipe.Description)
	assert.Equal(t, 10.0, pipe.Quantity)
	assert.Equal(t, "m", pipe.Unit)

	red := res.Items[1]
	assert.Equal(t, "Carbon steel reducer 300 to 200NB", red.Description)
	assert.Equal(t, 2.0, red.Quantity)
	assert.Equal(t, 300.0, *red.Diameter)
	assert.Equal(t, 200.0, *red.SecondaryDiameter)
}

func TestExtract_ExcelSyntheticLabel(t *testing.T) {
	doc := &document.Parsed{Type: model.DocExcel, Units: []document.Unit{
		row(1, true, "Description", "Qty"),
		row(4, false, "250NB carbon steel pipe", "8"),
	}}

	res := New(Options{}).Extract(doc)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "ROW-4", res.Items[0].ItemLabel)
}

func TestContextObserveIsImmutable(t *testing.T) {
	start := Seed(model.ParsedSpec{Standard: model.Ptr("SANS 719"), WallThickness: model.Ptr(6.0)})
	require.NotNil(t, start.Material)
	assert.Equal(t, "carbon steel", *start.Material)

	next := start.Observe("stainless steel 316L, 3mm wall")
	assert.Equal(t, "carbon steel", *start.Material)
	assert.Equal(t, 6.0, *start.WallThickness)
	assert.Nil(t, start.MaterialGrade)

	assert.Equal(t, "stainless steel", *next.Material)
	assert.Equal(t, "316L", *next.MaterialGrade)
	assert.Equal(t, 3.0, *next.WallThickness)

	// No cues: unchanged.
	assert.Equal(t, next, next.Observe("supply only"))
}

func TestScoreClamped(t *testing.T) {
	it := model.ExtractedItem{ItemType: model.ItemUnknown}
	assert.InDelta(t, 0.1, Score(it, false, false), 1e-9)

	it = model.ExtractedItem{ItemType: model.ItemPipe, Material: model.Ptr("steel"), Diameter: model.Ptr(100.0)}
	assert.InDelta(t, 1.0, Score(it, true, true), 1e-9)
	assert.InDelta(t, 0.9, Score(it, true, false), 1e-9)
}

func TestReasons_ReducerWithoutOutlet(t *testing.T) {
	it := model.ExtractedItem{ItemType: model.ItemReducer, Material: model.Ptr("steel"), Diameter: model.Ptr(300.0)}
	Flag(&it)
	assert.True(t, it.NeedsClarification)
	assert.Equal(t, "reducer outlet diameter not specified", *it.ClarificationReason)

	it.SecondaryDiameter = model.Ptr(200.0)
	Flag(&it)
	assert.False(t, it.NeedsClarification)
	assert.Nil(t, it.ClarificationReason)
}

func TestExtract_ReducerSizeNotations(t *testing.T) {
	doc := lines(model.DocPDF,
		"1.1 Carbon steel reducer 300 to 200NB",
		"1.2 Carbon steel reducer 300/200mm",
		"1.3 Carbon steel concentric reducer 250-150NB",
		"1.4 Carbon steel reducer 300NB to 200NB",
		"1.5 Carbon steel reducer 200 to 300NB",
	)

	res := New(Options{}).Extract(doc)
	require.Len(t, res.Items, 5)

	want := [][2]float64{{300, 200}, {300, 200}, {250, 150}, {300, 200}}
	for i, w := range want {
		it := res.Items[i]
		assert.Equal(t, model.ItemReducer, it.ItemType, it.Description)
		require.NotNil(t, it.Diameter, it.Description)
		require.NotNil(t, it.SecondaryDiameter, it.Description)
		assert.Equal(t, w[0], *it.Diameter, it.Description)
		assert.Equal(t, w[1], *it.SecondaryDiameter, it.Description)
		assert.False(t, it.NeedsClarification, it.Description)
	}

	// A leading size smaller than the unit-bearing one is not an outlet.
	expanding := res.Items[4]
	assert.Equal(t, 300.0, *expanding.Diameter)
	assert.Nil(t, expanding.SecondaryDiameter)
	assert.True(t, expanding.NeedsClarification)
	assert.Equal(t, "reducer outlet diameter not specified", *expanding.ClarificationReason)
}

func TestExtract_PuddleFlange(t *testing.T) {
	res := New(Options{}).Extract(lines(model.DocPDF,
		"2.1 Carbon steel puddle flange 300NB",
		"2.2 Carbon steel puddle flange pipe 300NB",
	))
	require.Len(t, res.Items, 2)
	assert.Equal(t, model.ItemFlange, res.Items[0].ItemType)
	require.NotNil(t, res.Items[0].FlangeConfig)
	assert.Equal(t, model.FlangePuddle, *res.Items[0].FlangeConfig)
	assert.Equal(t, model.ItemPipe, res.Items[1].ItemType)
}

func TestIsLineItem(t *testing.T) {
	assert.True(t, IsLineItem("200NB Pipe"))
	assert.True(t, IsLineItem("Tee piece"))
	assert.False(t, IsLineItem("Item Description Unit Qty"))
	assert.False(t, IsLineItem("Brought forward 200NB"))
	assert.False(t, IsLineItem("All pipes shall be cement mortar lined"))
	assert.False(t, IsLineItem("Tender closing date"))
}
