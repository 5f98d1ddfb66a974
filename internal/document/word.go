package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// readDocx reads word/document.xml from the OOXML archive. Paragraphs
// become one unit per line; each table row becomes one unit with its cells.
func readDocx(data []byte) ([]Unit, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, parseErr(err, "docx: not an OOXML document")
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, parseErr(nil, "docx: word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, parseErr(err, "docx: open document.xml")
	}
	defer rc.Close() //nolint:errcheck

	w := &docxWalker{}
	if err := w.walk(xml.NewDecoder(rc)); err != nil {
		return nil, parseErr(err, "docx: decode document.xml")
	}
	return w.units, nil
}

type docxWalker struct {
	units []Unit

	para     strings.Builder
	cell     strings.Builder
	row      []string
	inText   bool
	tblDepth int
	nPara    int
	nTable   int
	nRow     int
}

func (w *docxWalker) walk(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				w.tblDepth++
				if w.tblDepth == 1 {
					w.nTable++
					w.nRow = 0
				}
			case "tr":
				if w.tblDepth == 1 {
					w.row = w.row[:0]
				}
			case "tc":
				if w.tblDepth == 1 {
					w.cell.Reset()
				}
			case "p":
				w.para.Reset()
			case "t":
				w.inText = true
			case "tab":
				w.para.WriteByte(' ')
			case "br", "cr":
				w.para.WriteByte('\n')
			}

		case xml.CharData:
			if w.inText {
				w.para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				w.inText = false
			case "p":
				w.endParagraph()
			case "tc":
				if w.tblDepth == 1 {
					w.row = append(w.row, Normalize(w.cell.String()))
				}
			case "tr":
				if w.tblDepth == 1 {
					w.endRow()
				}
			case "tbl":
				w.tblDepth--
			}
		}
	}
}

func (w *docxWalker) endParagraph() {
	text := w.para.String()
	w.para.Reset()
	if w.tblDepth > 0 {
		if w.cell.Len() > 0 {
			w.cell.WriteByte(' ')
		}
		w.cell.WriteString(text)
		return
	}
	for _, line := range strings.Split(text, "\n") {
		line = Normalize(line)
		if line == "" {
			continue
		}
		w.nPara++
		w.units = append(w.units, Unit{
			Index: len(w.units) + 1,
			Ref:   fmt.Sprintf("P%d", w.nPara),
			Text:  line,
		})
	}
}

func (w *docxWalker) endRow() {
	w.nRow++
	cells := append([]string(nil), w.row...)
	var nonEmpty []string
	for _, c := range cells {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) == 0 {
		return
	}
	w.units = append(w.units, Unit{
		Index: len(w.units) + 1,
		Ref:   fmt.Sprintf("T%dR%d", w.nTable, w.nRow),
		Cells: cells,
		Text:  joinCells(nonEmpty),
	})
}
