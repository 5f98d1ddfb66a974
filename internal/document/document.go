// Package document routes input files by type and splits them into ordered
// textual units: spreadsheet rows, or non-empty PDF and Word lines.
package document

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/boq-extractor/internal/model"
)

var (
	// ErrUnsupportedFormat is returned for document types the pipeline
	// does not extract from.
	ErrUnsupportedFormat = eris.New("document: unsupported document type")
	// ErrParse is returned when a supported document cannot be read.
	ErrParse = eris.New("document: parse failure")
)

var extensionTypes = map[string]model.DocumentType{
	"pdf":    model.DocPDF,
	"xlsx":   model.DocExcel,
	"xls":    model.DocExcel,
	"csv":    model.DocExcel,
	"doc":    model.DocWord,
	"docx":   model.DocWord,
	"dwg":    model.DocCAD,
	"dxf":    model.DocCAD,
	"sldprt": model.DocSolidworks,
	"sldasm": model.DocSolidworks,
	"png":    model.DocImage,
	"jpg":    model.DocImage,
	"jpeg":   model.DocImage,
	"tiff":   model.DocImage,
}

// DetectType maps a filename or path to a document type by extension.
func DetectType(name string) model.DocumentType {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return model.DocUnknown
}

// Unit is one ordered piece of document text.
type Unit struct {
	Index  int      // 1-based row or line number
	Ref    string   // location reference, e.g. "Sheet1!R3" or "P2L14"
	Cells  []string // spreadsheet and table cells, if any
	Text   string   // normalised text of the unit
	Header bool     // first non-empty row of a sheet
}

// Parsed is the unit sequence of one document.
type Parsed struct {
	Type    model.DocumentType
	Units   []Unit
	RawText string
}

// TextExtractor extracts text from a PDF on disk.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Parser splits documents into units.
type Parser struct {
	pdfFallback TextExtractor
	log         *zap.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithPDFFallback sets the extractor used when the built-in PDF reader
// recovers no text.
func WithPDFFallback(te TextExtractor) Option {
	return func(p *Parser) { p.pdfFallback = te }
}

// NewParser creates a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{log: zap.L().Named("document")}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse routes data by the type of name and returns its units. Unsupported
// types return ErrUnsupportedFormat. Malformed content returns ErrParse.
func (p *Parser) Parse(ctx context.Context, name string, data []byte) (*Parsed, error) {
	docType := DetectType(name)
	if !docType.Supported() {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "%s (%s)", docType, filepath.Base(name))
	}

	var (
		units []Unit
		err   error
	)
	switch docType {
	case model.DocExcel:
		if strings.EqualFold(filepath.Ext(name), ".csv") {
			units, err = readCSV(data)
		} else {
			units, err = readXLSX(data)
		}
	case model.DocPDF:
		units, err = p.readPDF(ctx, data)
	case model.DocWord:
		units, err = readDocx(data)
	}
	if err != nil {
		return nil, err
	}

	p.log.Debug("document: parsed",
		zap.String("name", filepath.Base(name)),
		zap.String("document_type", string(docType)),
		zap.Int("units", len(units)),
	)

	return &Parsed{Type: docType, Units: units, RawText: rawText(units)}, nil
}

func rawText(units []Unit) string {
	var b strings.Builder
	for i, u := range units {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(u.Text)
	}
	return b.String()
}

var preNormalize = strings.NewReplacer("º", "°", "\u00a0", " ", "\t", " ")

// Normalize applies NFKC and collapses whitespace.
func Normalize(s string) string {
	s = norm.NFKC.String(preNormalize.Replace(s))
	return strings.Join(strings.Fields(s), " ")
}

func parseErr(err error, msg string) error {
	if err == nil {
		return eris.Wrap(ErrParse, msg)
	}
	return eris.Wrapf(ErrParse, "%s: %v", msg, err)
}
