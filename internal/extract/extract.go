// Package extract turns document units into scored line items and
// specification cells using the pattern libraries.
package extract

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/document"
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/patterns"
	"github.com/sells-group/boq-extractor/internal/specheader"
)

// Options bounds extractor output.
type Options struct {
	DescriptionMaxLen int
	SpecRawTextMaxLen int
}

// Result is the outcome of one deterministic pass.
type Result struct {
	Items        []model.ExtractedItem
	Cells        []model.SpecificationCell
	Consolidated model.ParsedSpec
}

// Extractor runs the format-specific heuristics over parsed documents.
type Extractor struct {
	opts Options
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	if opts.DescriptionMaxLen <= 0 {
		opts.DescriptionMaxLen = 500
	}
	if opts.SpecRawTextMaxLen <= 0 {
		opts.SpecRawTextMaxLen = 200
	}
	return &Extractor{opts: opts}
}

// SpecCells collects the specification cells of a document in order.
// Spreadsheet header rows are skipped.
func (e *Extractor) SpecCells(doc *document.Parsed) []model.SpecificationCell {
	var cells []model.SpecificationCell
	for _, u := range doc.Units {
		if u.Header {
			continue
		}
		if c, ok := specheader.Parse(u.Ref, u.Text, e.opts.SpecRawTextMaxLen); ok {
			cells = append(cells, c)
		}
	}
	return cells
}

// Extract runs the deterministic pass: specification cells are collected
// and consolidated first, then units are folded through a running context
// seeded from the consolidated record.
func (e *Extractor) Extract(doc *document.Parsed) Result {
	cells := e.SpecCells(doc)
	consolidated := specheader.Consolidate(cells)

	var items []model.ExtractedItem
	switch doc.Type {
	case model.DocExcel:
		items = e.extractRows(doc.Units, Seed(consolidated))
	default:
		items = e.extractLines(doc.Type, doc.Units, Seed(consolidated))
	}

	zap.L().Debug("extract: deterministic pass complete",
		zap.String("document_type", string(doc.Type)),
		zap.Int("units", len(doc.Units)),
		zap.Int("items", len(items)),
		zap.Int("spec_cells", len(cells)),
	)

	return Result{Items: items, Cells: cells, Consolidated: consolidated}
}

func labelPrefix(t model.DocumentType) string {
	switch t {
	case model.DocPDF:
		return "PDF"
	case model.DocWord:
		return "WORD"
	}
	return "ROW"
}

// IsLineItem applies the PDF and Word line test: a diameter or type keyword,
// excluding header-like, continuation and diameter-less specification lines.
func IsLineItem(text string) bool {
	hasDiameter := patterns.HasDiameter(text)
	if !hasDiameter && !patterns.HasTypeKeyword(text) {
		return false
	}
	if patterns.IsContinuation(text) {
		return false
	}
	if specheader.IsHeader(text) && !hasDiameter {
		return false
	}
	return !patterns.IsHeaderLike(text)
}

func (e *Extractor) extractLines(t model.DocumentType, units []document.Unit, ctx Context) []model.ExtractedItem {
	var items []model.ExtractedItem
	prefix := labelPrefix(t)
	for _, u := range units {
		ctx = ctx.Observe(u.Text)
		if !IsLineItem(u.Text) {
			continue
		}

		label, ok := patterns.LineItemRef(u.Text)
		if !ok {
			label = fmt.Sprintf("%s-%d", prefix, u.Index)
		}
		qty, unit, found := patterns.Quantity(u.Text)
		items = append(items, build(u.Index, fields{
			label:       label,
			description: specheader.Truncate(u.Text, e.opts.DescriptionMaxLen),
			text:        u.Text,
			qty:         qty,
			unit:        unit,
			qtyFound:    found,
		}, ctx))
	}
	return items
}
