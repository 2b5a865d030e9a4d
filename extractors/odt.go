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

// ODTDecoder parses content.xml from the OpenDocument ZIP container.
// The first <text:h> heading becomes the title.
type ODTDecoder struct{}

func (d *ODTDecoder) Name() string { return "odt" }

func (d *ODTDecoder) Formats() []format.Format {
	return []format.Format{format.ODT}
}

func (d *ODTDecoder) Extract(ctx context.Context, src *textract.Source, _ format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
	zr, err := zip.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var contentFile *zip.File
	for _, f := range zr.File {
		if f.Name == "content.xml" {
			contentFile = f
			break
		}
	}
	if contentFile == nil {
		return nil, fmt.Errorf("content.xml not found in archive")
	}

	rc, err := contentFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open content.xml: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)

	var blocks []string
	var title string
	var currentText strings.Builder
	var inHeading, inParagraph bool
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
			case "h": // <text:h>
				inHeading = true
				currentText.Reset()
			case "p": // <text:p>
				inParagraph = true
				currentText.Reset()
			case "tab":
				if inHeading || inParagraph {
					currentText.WriteByte('\t')
				}
			case "line-break":
				if inHeading || inParagraph {
					currentText.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inHeading || inParagraph {
				currentText.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "h":
				text := strings.TrimSpace(currentText.String())
				if text != "" {
					blocks = append(blocks, text)
					if title == "" {
						title = text
					}
				}
				inHeading = false
			case "p":
				if text := strings.TrimSpace(currentText.String()); text != "" {
					blocks = append(blocks, text)
				}
				inParagraph = false
			}
		}
	}

	outcome := &textract.RawOutcome{
		Content:  strings.Join(blocks, "\n"),
		Metadata: textract.Metadata{"paragraphs": len(blocks)},
	}
	if title != "" {
		outcome.Metadata["title"] = title
	}
	if walkErr != nil {
		return outcome, &textract.StreamError{Offset: decoder.InputOffset(), Err: walkErr}
	}
	return outcome, nil
}
