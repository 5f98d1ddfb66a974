package document

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// readXLSX reads every sheet in order. tealeg/xlsx cannot read legacy .xls
// binaries, which therefore fail as parse errors.
func readXLSX(data []byte) ([]Unit, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, parseErr(err, "xlsx: open workbook")
	}

	var units []Unit
	for _, sheet := range f.Sheets {
		first := true
		for i, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := rowToStrings(row)
			u, ok := rowUnit(fmt.Sprintf("%s!R%d", sheet.Name, i+1), i+1, cells)
			if !ok {
				continue
			}
			u.Header = first
			first = false
			units = append(units, u)
		}
	}
	return units, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// rowUnit normalises a row. ok is false for rows with no text.
func rowUnit(ref string, index int, cells []string) (Unit, bool) {
	out := make([]string, len(cells))
	var nonEmpty []string
	for i, c := range cells {
		out[i] = Normalize(c)
		if out[i] != "" {
			nonEmpty = append(nonEmpty, out[i])
		}
	}
	if len(nonEmpty) == 0 {
		return Unit{}, false
	}
	return Unit{Index: index, Ref: ref, Cells: out, Text: joinCells(nonEmpty)}, true
}

func joinCells(cells []string) string {
	var b bytes.Buffer
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c)
	}
	return b.String()
}

// readCSV reads UTF-8 (with or without BOM) or UTF-16 with BOM. Anything
// else is decoded as Windows-1252.
func readCSV(data []byte) ([]Unit, error) {
	var r io.Reader
	if utf8.Valid(data) || hasUTF16BOM(data) {
		r = transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	} else {
		r = transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var units []Unit
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseErr(err, "csv: read row")
		}
		line, _ := reader.FieldPos(0)
		u, ok := rowUnit(fmt.Sprintf("R%d", line), line, record)
		if !ok {
			continue
		}
		u.Header = first
		first = false
		units = append(units, u)
	}
	return units, nil
}

func hasUTF16BOM(b []byte) bool {
	return len(b) >= 2 && ((b[0] == 0xFE && b[1] == 0xFF) || (b[0] == 0xFF && b[1] == 0xFE))
}
