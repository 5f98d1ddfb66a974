package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

func (p *Parser) readPDF(ctx context.Context, data []byte) ([]Unit, error) {
	pages, err := readPDFPages(data)
	if err == nil && hasText(pages) {
		return pdfUnits(pages), nil
	}
	if p.pdfFallback == nil {
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	p.log.Debug("document: pdf reader recovered no text, trying fallback", zap.Error(err))
	text, ferr := p.extractWithFallback(ctx, data)
	if ferr != nil {
		if err != nil {
			return nil, err
		}
		p.log.Warn("document: pdf fallback failed", zap.Error(ferr))
		return nil, nil
	}
	return pdfUnits(strings.Split(text, "\f")), nil
}

// readPDFPages returns the plain text of each page. The underlying reader
// panics on some malformed inputs; those surface as parse errors.
func readPDFPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, parseErr(nil, fmt.Sprintf("pdf: malformed document: %v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, parseErr(err, "pdf: open")
	}
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, parseErr(err, fmt.Sprintf("pdf: page %d text", i))
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

func pdfUnits(pages []string) []Unit {
	var units []Unit
	n := 0
	for pi, page := range pages {
		for li, line := range strings.Split(page, "\n") {
			text := Normalize(line)
			if text == "" {
				continue
			}
			n++
			units = append(units, Unit{
				Index: n,
				Ref:   fmt.Sprintf("P%dL%d", pi+1, li+1),
				Text:  text,
			})
		}
	}
	return units
}

func (p *Parser) extractWithFallback(ctx context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "boq-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "document: create temp pdf")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return "", eris.Wrap(err, "document: write temp pdf")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "document: close temp pdf")
	}
	return p.pdfFallback.ExtractText(ctx, tmp.Name())
}
