package extract

import (
	"fmt"
	"strings"

	"github.com/sells-group/boq-extractor/internal/document"
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/patterns"
	"github.com/sells-group/boq-extractor/internal/specheader"
)

type column int

const (
	colDescription column = iota
	colQty
	colUnit
	colDiameter
	colMaterial
	colLength
	colRef
)

// columnKeywords is ordered: description before ref so "item description"
// maps to the description column.
var columnKeywords = []struct {
	col   column
	words []string
}{
	{colDescription, []string{"description", "desc", "particulars", "item description", "details"}},
	{colQty, []string{"qty", "quantity", "quant", "no. off", "no off", "qnty"}},
	{colUnit, []string{"unit", "units", "uom", "u/m"}},
	{colDiameter, []string{"dia", "diameter", "size", "nb", "dn", "nominal bore", "od"}},
	{colMaterial, []string{"material", "mat", "matl", "material type"}},
	{colLength, []string{"length", "len", "lg"}},
	{colRef, []string{"item", "item no", "item no.", "no", "no.", "ref", "ref.", "#", "code"}},
}

var priceWords = []string{"rate", "amount", "price", "total", "cost"}

// columns maps a header row to column positions.
type columns struct {
	idx        map[column]int
	lengthInM  bool
	recognised bool
}

func mapColumns(cells []string) columns {
	c := columns{idx: map[column]int{}}
	for i, cell := range cells {
		h := strings.ToLower(strings.TrimSpace(cell))
		if h == "" || containsAny(h, priceWords) {
			continue
		}
		for _, ck := range columnKeywords {
			if _, taken := c.idx[ck.col]; taken {
				continue
			}
			if headerMatches(h, ck.words) {
				c.idx[ck.col] = i
				if ck.col == colLength && strings.Contains(h, "(m") && !strings.Contains(h, "(mm") {
					c.lengthInM = true
				}
				break
			}
		}
	}
	_, hasDesc := c.idx[colDescription]
	_, hasQty := c.idx[colQty]
	c.recognised = len(c.idx) >= 2 && (hasDesc || hasQty)
	return c
}

func headerMatches(h string, words []string) bool {
	for _, w := range words {
		if h == w || strings.HasPrefix(h, w+" ") || strings.HasPrefix(h, w+"(") {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func (c columns) cell(cells []string, col column) string {
	i, ok := c.idx[col]
	if !ok || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// rowCues are the line-item signals of one spreadsheet row.
type rowCues struct {
	ref         string
	hasRef      bool
	description string
	text        string
	qty         float64
	unit        string
	qtyFound    bool
	diameter    *float64
	material    *string
	length      *float64
}

func (c columns) cues(u document.Unit) rowCues {
	r := rowCues{text: u.Text, description: u.Text}
	if !c.recognised {
		return positionalCues(u, r)
	}

	if d := c.cell(u.Cells, colDescription); d != "" {
		r.description = d
	}
	if ref := c.cell(u.Cells, colRef); ref != "" {
		r.ref, r.hasRef = patterns.CellItemRef(ref)
	}
	if !r.hasRef {
		r.ref, r.hasRef = firstCellRef(u.Cells)
	}
	if q := c.cell(u.Cells, colQty); q != "" {
		if v, ok := patterns.ParseNumber(q); ok {
			r.qty, r.qtyFound = v, true
		}
	}
	if un := c.cell(u.Cells, colUnit); un != "" {
		if v, ok := patterns.NormalizeUnit(un); ok {
			r.unit = v
		}
	}
	if !r.qtyFound && r.unit == "" {
		r.qty, r.unit, r.qtyFound = patterns.Quantity(r.description)
	}
	if d := c.cell(u.Cells, colDiameter); d != "" {
		if v, ok := patterns.ParseNumber(d); ok && v > 0 {
			r.diameter = &v
		} else if p, _ := patterns.Diameter(d); p != nil {
			r.diameter = p
		}
	}
	if m := c.cell(u.Cells, colMaterial); m != "" {
		if v, ok := patterns.Material(m); ok {
			r.material = &v
		} else {
			r.material = &m
		}
	}
	if l := c.cell(u.Cells, colLength); l != "" {
		if v, ok := patterns.ParseNumber(l); ok && v > 0 {
			if c.lengthInM {
				v *= 1000
			}
			r.length = &v
		}
	}
	r.text = r.description
	return r
}

// positionalCues reads a row without a recognised header: a leading item
// reference, a unit token cell and the first numeric cell after it.
func positionalCues(u document.Unit, r rowCues) rowCues {
	r.ref, r.hasRef = firstCellRef(u.Cells)

	unitAt := -1
	for i, cell := range u.Cells {
		if v, ok := patterns.NormalizeUnit(cell); ok {
			r.unit, unitAt = v, i
			break
		}
	}
	if unitAt >= 0 {
		for _, cell := range u.Cells[unitAt+1:] {
			if v, ok := patterns.ParseNumber(cell); ok {
				r.qty, r.qtyFound = v, true
				break
			}
		}
		return r
	}
	r.qty, r.unit, r.qtyFound = patterns.Quantity(u.Text)
	return r
}

func firstCellRef(cells []string) (string, bool) {
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		return patterns.CellItemRef(cell)
	}
	return "", false
}

// isRowItem applies the spreadsheet test: quantity or unit, and diameter
// or item reference.
func isRowItem(r rowCues) bool {
	hasQtyOrUnit := r.qtyFound || r.unit != ""
	hasDiameter := r.diameter != nil || patterns.HasDiameter(r.text)
	if !hasQtyOrUnit || !(hasDiameter || r.hasRef) {
		return false
	}
	if patterns.IsContinuation(r.text) {
		return false
	}
	return !(specheader.IsHeader(r.text) && !hasDiameter)
}

// headerScanRows is how many leading rows of a sheet may hold the column
// header. Title rows such as "Bill of Quantities" often come first.
const headerScanRows = 5

// isColumnHeader reports whether a row within the opening rows of a sheet
// names the columns. A row carrying a diameter is data.
func isColumnHeader(u document.Unit, sheetRow int, cols columns) bool {
	if cols.recognised || sheetRow > headerScanRows {
		return false
	}
	return mapColumns(u.Cells).recognised && !patterns.HasDiameter(u.Text)
}

func (e *Extractor) extractRows(units []document.Unit, ctx Context) []model.ExtractedItem {
	var (
		items    []model.ExtractedItem
		cols     columns
		sheetRow int
	)
	for _, u := range units {
		sheetRow++
		if u.Header {
			// First row of a sheet: a column header or a title.
			cols = mapColumns(u.Cells)
			sheetRow = 1
			continue
		}
		if isColumnHeader(u, sheetRow, cols) {
			cols = mapColumns(u.Cells)
			continue
		}
		ctx = ctx.Observe(u.Text)

		r := cols.cues(u)
		if !isRowItem(r) {
			continue
		}
		label := r.ref
		if !r.hasRef {
			label = fmt.Sprintf("ROW-%d", u.Index)
		}
		items = append(items, build(u.Index, fields{
			label:       label,
			description: specheader.Truncate(r.description, e.opts.DescriptionMaxLen),
			text:        r.text,
			material:    r.material,
			diameter:    r.diameter,
			length:      r.length,
			qty:         r.qty,
			unit:        r.unit,
			qtyFound:    r.qtyFound,
		}, ctx))
	}
	return items
}
