package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/boq-extractor/internal/extract"
	"github.com/sells-group/boq-extractor/internal/model"
	"github.com/sells-group/boq-extractor/internal/patterns"
	"github.com/sells-group/boq-extractor/internal/specheader"
)

// ParseOptions bounds normalised output.
type ParseOptions struct {
	DescriptionMaxLen int
	SpecRawTextMaxLen int
}

// FindJSON returns the first balanced top-level {...} block in text.
// Braces inside JSON strings are ignored.
func FindJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// Parse locates the JSON block in a model response and normalises it
// into items and specification cells.
func Parse(raw string, opts ParseOptions) (*Result, error) {
	block, ok := FindJSON(raw)
	if !ok {
		return nil, eris.Wrap(ErrInvalidResponse, "ai: no json object in response")
	}
	var w wireResponse
	if err := json.Unmarshal([]byte(block), &w); err != nil {
		return nil, eris.Wrapf(ErrInvalidResponse, "ai: decode response: %v", err)
	}

	res := &Result{}
	for i, wi := range w.Items {
		res.Items = append(res.Items, wi.item(i, opts.DescriptionMaxLen))
	}
	for i, wc := range w.SpecificationCells {
		if c, ok := wc.cell(i, opts.SpecRawTextMaxLen); ok {
			res.Cells = append(res.Cells, c)
		}
	}
	if w.OverallScore.Valid {
		v := clamp01(w.OverallScore.V)
		res.OverallScore = &v
	}
	return res, nil
}

type wireResponse struct {
	Items              []wireItem `json:"items"`
	SpecificationCells []wireCell `json:"specificationCells"`
	OverallScore       number     `json:"overallScore"`
}

type wireItem struct {
	RowIndex          number `json:"rowIndex"`
	ItemLabel         text   `json:"itemLabel"`
	Description       text   `json:"description"`
	ItemType          text   `json:"itemType"`
	Material          text   `json:"material"`
	MaterialGrade     text   `json:"materialGrade"`
	Diameter          number `json:"diameter"`
	SecondaryDiameter number `json:"secondaryDiameter"`
	Length            number `json:"length"`
	WallThickness     number `json:"wallThickness"`
	Angle             number `json:"angle"`
	FlangeConfig      text   `json:"flangeConfig"`
	Quantity          number `json:"quantity"`
	Unit              text   `json:"unit"`
	Confidence        number `json:"confidence"`
}

type wireCell struct {
	LocationRef text `json:"locationRef"`
	RawText     text `json:"rawText"`
	ParsedData  struct {
		MaterialGrade   text   `json:"materialGrade"`
		WallThickness   number `json:"wallThickness"`
		Lining          text   `json:"lining"`
		ExternalCoating text   `json:"externalCoating"`
		Standard        text   `json:"standard"`
		Schedule        text   `json:"schedule"`
	} `json:"parsedData"`
}

func (w wireItem) item(i, descMax int) model.ExtractedItem {
	it := model.ExtractedItem{
		RowIndex:    i + 1,
		ItemLabel:   fmt.Sprintf("AI-%d", i+1),
		Description: specheader.Truncate(w.Description.V, descMax),
		ItemType:    model.ParseItemType(w.ItemType.V),
		Quantity:    1,
		Unit:        "ea",
	}
	if w.RowIndex.Valid && w.RowIndex.V >= 1 {
		it.RowIndex = int(w.RowIndex.V)
	}
	if w.ItemLabel.Valid {
		it.ItemLabel = w.ItemLabel.V
	}
	if w.Material.Valid {
		m := w.Material.V
		if canon, ok := patterns.Material(m); ok {
			m = canon
		}
		it.Material = &m
	}
	if w.MaterialGrade.Valid {
		it.MaterialGrade = model.Ptr(w.MaterialGrade.V)
	}
	it.Diameter = w.Diameter.positive()
	it.SecondaryDiameter = w.SecondaryDiameter.positive()
	it.Length = w.Length.positive()
	it.WallThickness = w.WallThickness.positive()
	if a := w.Angle.positive(); a != nil && *a <= 180 {
		it.Angle = a
	}
	if w.FlangeConfig.Valid {
		it.FlangeConfig = model.ParseFlangeConfig(w.FlangeConfig.V)
	}
	qtyFound := false
	if q := w.Quantity.positive(); q != nil {
		it.Quantity, qtyFound = *q, true
	}
	if w.Unit.Valid {
		if u, ok := patterns.NormalizeUnit(w.Unit.V); ok {
			it.Unit = u
		} else {
			it.Unit = strings.ToLower(w.Unit.V)
		}
	}

	if w.Confidence.Valid {
		it.Confidence = clamp01(w.Confidence.V)
	} else {
		it.Confidence = extract.Score(it, it.ItemType != model.ItemUnknown, qtyFound)
	}
	extract.Flag(&it)
	return it
}

func (w wireCell) cell(i, rawMax int) (model.SpecificationCell, bool) {
	p := w.ParsedData
	spec := model.ParsedSpec{
		MaterialGrade:   p.MaterialGrade.ptr(),
		WallThickness:   p.WallThickness.positive(),
		Lining:          p.Lining.ptr(),
		ExternalCoating: p.ExternalCoating.ptr(),
		Standard:        p.Standard.ptr(),
		Schedule:        p.Schedule.ptr(),
	}
	if spec.Empty() {
		return model.SpecificationCell{}, false
	}
	ref := fmt.Sprintf("AI-SPEC-%d", i+1)
	if w.LocationRef.Valid {
		ref = w.LocationRef.V
	}
	return model.SpecificationCell{
		LocationRef: ref,
		RawText:     specheader.Truncate(w.RawText.V, rawMax),
		ParsedData:  spec,
	}, true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// number accepts a JSON number, a numeric string such as "200" or "200mm",
// or null.
type number struct {
	V     float64
	Valid bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n.V, n.Valid = patterns.LeadingNumber(s)
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		// Booleans and objects carry no number.
		return nil
	}
	n.V, n.Valid = v, true
	return nil
}

func (n number) positive() *float64 {
	if !n.Valid || n.V <= 0 {
		return nil
	}
	v := n.V
	return &v
}

// text accepts a JSON string, number or boolean. Empty and "null"
// strings are invalid.
type text struct {
	V     string
	Valid bool
}

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else if b[0] == '{' || b[0] == '[' {
		return nil
	} else {
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
		return nil
	}
	t.V, t.Valid = s, true
	return nil
}

func (t text) ptr() *string {
	if !t.Valid {
		return nil
	}
	v := t.V
	return &v
}
