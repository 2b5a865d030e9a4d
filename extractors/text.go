package extractors

import (
	"context"
	"strings"
	"unicode"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// TextDecoder handles plain text and markdown. Markdown gets heading
// detection so the first top-level heading becomes the document title.
type TextDecoder struct{}

func (d *TextDecoder) Name() string { return "text" }

func (d *TextDecoder) Formats() []format.Format {
	return []format.Format{format.Text, format.Markdown}
}

func (d *TextDecoder) Extract(_ context.Context, src *textract.Source, f format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
	text := string(src.Data)
	meta := textract.Metadata{}

	if f == format.Markdown {
		if title := firstHeading(text); title != "" {
			meta["title"] = title
		}
	} else {
		text = normalizeWhitespace(text)
		if line := firstLine(text); line != "" {
			meta["title"] = line
		}
	}

	return &textract.RawOutcome{Content: text, Metadata: meta}, nil
}

// firstHeading returns the text of the first ATX heading.
func firstHeading(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 200 {
				line = line[:200]
			}
			return line
		}
	}
	return ""
}

// normalizeWhitespace collapses runs of spaces and tabs but preserves
// newlines, trimming trailing space per line.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		var sb strings.Builder
		prevSpace := false
		for _, r := range line {
			if r == ' ' || r == '\t' || unicode.IsSpace(r) {
				if !prevSpace && sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				prevSpace = true
				continue
			}
			prevSpace = false
			sb.WriteRune(r)
		}
		out = append(out, strings.TrimRight(sb.String(), " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
