package extractors

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
	"github.com/hazyhaar/textract/quality"
)

// PDFDecoder extracts text from PDF bytes using pdfcpu cross-reference and
// content-stream parsing. It is the preferred PDF decoder; PDFTextDecoder
// registers at default priority as an alternative engine.
//
// Page extraction is incremental: a fault on one page keeps the text of
// the pages already parsed.
type PDFDecoder struct{}

func (d *PDFDecoder) Name() string { return "pdfcpu" }

func (d *PDFDecoder) Formats() []format.Format {
	return []format.Format{format.PDF}
}

func (d *PDFDecoder) Extract(ctx context.Context, src *textract.Source, _ format.Format, cfg *textract.Config) (*textract.RawOutcome, error) {
	conf := model.NewDefaultConfiguration()
	if cfg != nil && cfg.PDF.Password != "" {
		conf.UserPW = cfg.PDF.Password
		conf.OwnerPW = cfg.PDF.Password
	}

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(src.Data), conf)
	if err != nil {
		if isEncryptedErr(err) {
			outcome := &textract.RawOutcome{
				Metadata: textract.Metadata{"is_encrypted": true},
			}
			return outcome, textract.ErrPasswordRequired
		}
		return nil, err
	}

	maxPages := pdfCtx.PageCount
	if cfg != nil && cfg.PDF.MaxPages > 0 && cfg.PDF.MaxPages < maxPages {
		maxPages = cfg.PDF.MaxPages
	}

	var allText strings.Builder
	var title string
	totalChars := 0
	pagesRead := 0

	for pageNr := 1; pageNr <= maxPages; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageText := extractPageText(pdfCtx, pageNr)
		pagesRead++
		if pageText == "" {
			continue
		}
		totalChars += len([]rune(pageText))
		if title == "" {
			title = firstLine(pageText)
		}
		if allText.Len() > 0 {
			allText.WriteByte('\n')
		}
		allText.WriteString(pageText)
	}

	fullText := allText.String()
	var charsPerPage float64
	if pagesRead > 0 {
		charsPerPage = float64(totalChars) / float64(pagesRead)
	}

	meta := textract.Metadata{
		"page_count":        pdfCtx.PageCount,
		"chars_per_page":    charsPerPage,
		"printable_ratio":   quality.PrintableRatio(fullText),
		"has_image_streams": detectImageStreams(pdfCtx),
	}
	if title != "" {
		meta["title"] = title
	}

	return &textract.RawOutcome{Content: fullText, Metadata: meta}, nil
}

// isEncryptedErr matches pdfcpu's password/encryption failures.
func isEncryptedErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}

// extractPageText extracts text from a single PDF page content stream.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	// Fallback: scan the xref table for image subtype objects.
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// extractTextFromStream parses PDF content stream operators for text.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	lines := bytes.Split(data, []byte{'\n'})
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		// Tj operator: (text) Tj — and TJ arrays: [(a) -100 (b)] TJ
		if bytes.HasSuffix(line, []byte("Tj")) || bytes.HasSuffix(line, []byte("TJ")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		}

		// ' operator (move to next line and show text): (text) '
		if bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteByte('\n')
					sb.WriteString(text)
				}
			}
		}

		// Td/TD operator (text positioning).
		if bytes.HasSuffix(line, []byte("Td")) || bytes.HasSuffix(line, []byte("TD")) {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}

		// T* operator (move to start of next line).
		if bytes.Equal(line, []byte("T*")) {
			sb.WriteByte('\n')
		}
	}

	return cleanPDFText(sb.String())
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '(':
				sb.WriteByte('(')
			case ')':
				sb.WriteByte(')')
			default:
				// Octal escape (e.g. \040 for space).
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
						i++
						val = val*8 + int(raw[i]-'0')
						if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
							i++
							val = val*8 + int(raw[i]-'0')
						}
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// cleanPDFText normalizes whitespace in extracted PDF text.
func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
