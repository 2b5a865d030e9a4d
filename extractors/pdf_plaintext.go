package extractors

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// PDFTextDecoder is an alternative PDF engine built on ledongthuc/pdf.
// It registers at default priority under the same format as PDFDecoder,
// so it only runs when a caller re-registers it with a higher priority or
// unregisters the preferred engine. Keeping two engines bound to one
// format also exercises the registry's priority resolution.
type PDFTextDecoder struct{}

func (d *PDFTextDecoder) Name() string { return "pdf-plaintext" }

func (d *PDFTextDecoder) Formats() []format.Format {
	return []format.Format{format.PDF}
}

func (d *PDFTextDecoder) Extract(ctx context.Context, src *textract.Source, _ format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
	reader, err := pdf.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		if isEncryptedErr(err) {
			return &textract.RawOutcome{
				Metadata: textract.Metadata{"is_encrypted": true},
			}, textract.ErrPasswordRequired
		}
		return nil, err
	}

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.TrimSpace(text))
	}

	content := sb.String()
	meta := textract.Metadata{"page_count": pages}
	if title := firstLine(content); title != "" {
		meta["title"] = title
	}
	return &textract.RawOutcome{Content: content, Metadata: meta}, nil
}
