package extractors

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// DocxDecoder parses word/document.xml from the docx ZIP container.
// Heading-styled paragraphs become the title metadata; w:tbl grids become
// Tables. The XML walk is token-based, so a truncated document.xml keeps
// whatever paragraphs were decoded before the fault.
type DocxDecoder struct{}

func (d *DocxDecoder) Name() string { return "docx" }

func (d *DocxDecoder) Formats() []format.Format {
	return []format.Format{format.Docx}
}

func (d *DocxDecoder) Extract(ctx context.Context, src *textract.Source, _ format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
	zr, err := zip.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	return walkWordML(ctx, rc)
}

func walkWordML(ctx context.Context, r io.Reader) (*textract.RawOutcome, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var tables []textract.Table
	var title string

	var currentText strings.Builder
	var inParagraph bool
	var paragraphStyle string

	var inTable bool
	var tableCells [][]string
	var rowCells []string
	var cellText strings.Builder
	var inCell bool

	var walkErr error

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			walkErr = err
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				inTable = true
				tableCells = nil
			case "tr":
				if inTable {
					rowCells = nil
				}
			case "tc":
				if inTable {
					inCell = true
					cellText.Reset()
				}
			case "p":
				if !inTable {
					inParagraph = true
					currentText.Reset()
					paragraphStyle = ""
				}
			case "pStyle":
				if inParagraph {
					for _, attr := range t.Attr {
						if attr.Name.Local == "val" {
							paragraphStyle = attr.Value
						}
					}
				}
			}
		case xml.CharData:
			if inCell {
				cellText.Write(t)
			} else if inParagraph {
				currentText.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tc":
				if inTable {
					rowCells = append(rowCells, strings.TrimSpace(cellText.String()))
					inCell = false
				}
			case "tr":
				if inTable && len(rowCells) > 0 {
					tableCells = append(tableCells, rowCells)
				}
			case "tbl":
				if len(tableCells) > 0 {
					tables = append(tables, textract.Table{Cells: tableCells})
				}
				inTable = false
			case "p":
				if inParagraph {
					text := strings.TrimSpace(currentText.String())
					if text != "" {
						paragraphs = append(paragraphs, text)
						if title == "" && strings.HasPrefix(strings.ToLower(paragraphStyle), "heading") {
							title = text
						}
					}
					inParagraph = false
				}
			}
		}
	}

	outcome := &textract.RawOutcome{
		Content:  strings.Join(paragraphs, "\n"),
		Tables:   tables,
		Metadata: textract.Metadata{"paragraphs": len(paragraphs)},
	}
	if title == "" && len(paragraphs) > 0 {
		title = firstLine(paragraphs[0])
	}
	if title != "" {
		outcome.Metadata["title"] = title
	}
	if walkErr != nil {
		return outcome, &textract.StreamError{Offset: decoder.InputOffset(), Err: walkErr}
	}
	return outcome, nil
}
