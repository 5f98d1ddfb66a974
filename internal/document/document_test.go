package document

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/boq-extractor/internal/model"
)

func TestDetectType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want model.DocumentType
	}{
		{"tender.pdf", model.DocPDF},
		{"BOQ.XLSX", model.DocExcel},
		{"legacy.xls", model.DocExcel},
		{"export.csv", model.DocExcel},
		{"spec.docx", model.DocWord},
		{"spec.doc", model.DocWord},
		{"/drawings/layout.dwg", model.DocCAD},
		{"layout.dxf", model.DocCAD},
		{"part.SLDPRT", model.DocSolidworks},
		{"assy.sldasm", model.DocSolidworks},
		{"photo.jpeg", model.DocImage},
		{"scan.tiff", model.DocImage},
		{"notes.txt", model.DocUnknown},
		{"noext", model.DocUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectType(tt.name))
		})
	}
}

func TestParse_Unsupported(t *testing.T) {
	p := NewParser()
	for _, name := range []string{"a.dwg", "b.sldprt", "c.png", "d.txt"} {
		_, err := p.Parse(context.Background(), name, []byte("anything"))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrUnsupportedFormat), name)
	}
}

func xlsxBytes(t *testing.T, names []string, rows map[string][][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for _, name := range names {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows[name] {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParse_XLSX(t *testing.T) {
	data := xlsxBytes(t, []string{"Pipework", "Fittings"}, map[string][][]string{
		"Pipework": {
			{"Item", "Description", "Unit", "Qty"},
			{"1.1", "200NB  Pipe", "m", "120"},
		},
		"Fittings": {
			{"Item", "Description", "Unit", "Qty"},
			{"2.1", "300NB 45º bend", "No", "4"},
		},
	})

	parsed, err := NewParser().Parse(context.Background(), "boq.xlsx", data)
	require.NoError(t, err)
	assert.Equal(t, model.DocExcel, parsed.Type)
	require.Len(t, parsed.Units, 4)

	assert.True(t, parsed.Units[0].Header)
	assert.Equal(t, "Pipework!R1", parsed.Units[0].Ref)
	assert.False(t, parsed.Units[1].Header)
	assert.Equal(t, "1.1 200NB Pipe m 120", parsed.Units[1].Text)
	assert.Equal(t, []string{"1.1", "200NB Pipe", "m", "120"}, parsed.Units[1].Cells)
	assert.Equal(t, 2, parsed.Units[1].Index)

	// Second sheet has its own header; º is folded to °.
	assert.True(t, parsed.Units[2].Header)
	assert.Equal(t, "Fittings!R2", parsed.Units[3].Ref)
	assert.Equal(t, "2.1 300NB 45° bend No 4", parsed.Units[3].Text)
}

func TestParse_XLSXMalformed(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), "boq.xlsx", []byte("not a workbook"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestParse_LegacyXLS(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), "old.xls", []byte{0xD0, 0xCF, 0x11, 0xE0})
	assert.True(t, errors.Is(err, ErrParse))
}

func TestParse_CSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBFItem,Description,Qty\n\n1,200NB Pipe,12\n")
	parsed, err := NewParser().Parse(context.Background(), "boq.csv", data)
	require.NoError(t, err)
	require.Len(t, parsed.Units, 2)
	assert.Equal(t, "Item", parsed.Units[0].Cells[0])
	assert.True(t, parsed.Units[0].Header)
	assert.Equal(t, "R3", parsed.Units[1].Ref)
	assert.Equal(t, "1 200NB Pipe 12", parsed.Units[1].Text)
}

func TestParse_CSVWindows1252(t *testing.T) {
	// 0xD8 is Ø in Windows-1252.
	data := []byte("Item,Description\n1,\xD8250 pipe\n")
	parsed, err := NewParser().Parse(context.Background(), "boq.csv", data)
	require.NoError(t, err)
	require.Len(t, parsed.Units, 2)
	assert.Equal(t, "1 Ø250 pipe", parsed.Units[1].Text)
}

func docxBytes(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParse_Docx(t *testing.T) {
	body := `<w:p><w:r><w:t>PIPE SPECIFICATION</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>All pipes to be</w:t></w:r><w:r><w:t xml:space="preserve"> API 5L Gr B</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`<w:tbl>` +
		`<w:tr><w:tc><w:p><w:r><w:t>1.1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>200NB pipe</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>12 m</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p/></w:tc><w:tc><w:p/></w:tc></w:tr>` +
		`</w:tbl>` +
		`<w:p><w:r><w:t>line one</w:t><w:br/><w:t>line two</w:t></w:r></w:p>`

	parsed, err := NewParser().Parse(context.Background(), "spec.docx", docxBytes(t, body))
	require.NoError(t, err)
	assert.Equal(t, model.DocWord, parsed.Type)
	require.Len(t, parsed.Units, 5)

	assert.Equal(t, "PIPE SPECIFICATION", parsed.Units[0].Text)
	assert.Equal(t, "All pipes to be API 5L Gr B", parsed.Units[1].Text)
	assert.Equal(t, "T1R1", parsed.Units[2].Ref)
	assert.Equal(t, []string{"1.1", "200NB pipe", "12 m"}, parsed.Units[2].Cells)
	assert.Equal(t, "1.1 200NB pipe 12 m", parsed.Units[2].Text)
	assert.Equal(t, "line one", parsed.Units[3].Text)
	assert.Equal(t, "line two", parsed.Units[4].Text)
	assert.Equal(t, 5, parsed.Units[4].Index)
	assert.Contains(t, parsed.RawText, "200NB pipe")
}

func TestParse_DocxMissingBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = NewParser().Parse(context.Background(), "spec.docx", buf.Bytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.Contains(t, err.Error(), "word/document.xml not found")
}

func TestParse_LegacyDoc(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), "spec.doc", []byte("binary word 97"))
	assert.True(t, errors.Is(err, ErrParse))
}

type stubExtractor struct {
	text string
	err  error
	path string
}

func (s *stubExtractor) ExtractText(_ context.Context, pdfPath string) (string, error) {
	s.path = pdfPath
	return s.text, s.err
}

func TestParse_PDFMalformed(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), "tender.pdf", []byte("garbage"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestParse_PDFFallback(t *testing.T) {
	stub := &stubExtractor{text: "PIPE SCHEDULE\n  200NB pipe   12 m\n\f1.2 300NB bend\n"}
	p := NewParser(WithPDFFallback(stub))

	parsed, err := p.Parse(context.Background(), "tender.pdf", []byte("garbage"))
	require.NoError(t, err)
	require.Len(t, parsed.Units, 3)
	assert.Equal(t, "200NB pipe 12 m", parsed.Units[1].Text)
	assert.Equal(t, "P1L2", parsed.Units[1].Ref)
	assert.Equal(t, "P2L1", parsed.Units[2].Ref)
	assert.Equal(t, 3, parsed.Units[2].Index)

	// Temp file is removed after extraction.
	_, statErr := os.Stat(stub.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestParse_PDFFallbackFails(t *testing.T) {
	stub := &stubExtractor{err: errors.New("exec: not found")}
	_, err := NewParser(WithPDFFallback(stub)).Parse(context.Background(), "tender.pdf", []byte("garbage"))
	assert.True(t, errors.Is(err, ErrParse))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "200 NB pipe", Normalize("  200 NB\tpipe  "))
	assert.Equal(t, "45° bend", Normalize("45º bend"))
	assert.Equal(t, "200NB", Normalize("２００NB"))
}

func TestFileReader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x"), 0o644))

	data, err := FileReader{Root: dir}.Read(context.Background(), "a.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	_, err = FileReader{Root: dir}.Read(context.Background(), "missing.csv")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FileReader{}.Read(ctx, filepath.Join(dir, "a.csv"))
	assert.Error(t, err)
}
