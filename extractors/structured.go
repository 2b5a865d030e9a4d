package extractors

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// StructuredDecoder flattens JSON, YAML and XML documents into readable
// "path: value" text so downstream chunking and search see prose instead
// of syntax.
type StructuredDecoder struct{}

func (d *StructuredDecoder) Name() string { return "structured" }

func (d *StructuredDecoder) Formats() []format.Format {
	return []format.Format{format.JSON, format.YAML, format.XML}
}

func (d *StructuredDecoder) Extract(ctx context.Context, src *textract.Source, f format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch f {
	case format.JSON:
		var root any
		if err := json.Unmarshal(src.Data, &root); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return flattenedOutcome(root, "json")
	case format.YAML:
		var root any
		if err := yaml.Unmarshal(src.Data, &root); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return flattenedOutcome(root, "yaml")
	case format.XML:
		return extractXMLText(src.Data)
	default:
		return nil, fmt.Errorf("structured decoder cannot handle %s", f)
	}
}

func flattenedOutcome(root any, kind string) (*textract.RawOutcome, error) {
	lines := make(map[string]string)
	flattenValue("", root, lines)

	keys := make([]string, 0, len(lines))
	for k := range lines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		if k == "" {
			sb.WriteString(lines[k])
		} else {
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(lines[k])
		}
	}

	return &textract.RawOutcome{
		Content:  sb.String(),
		Metadata: textract.Metadata{"fields": len(lines), "kind": kind},
	}, nil
}

func flattenValue(path string, v any, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			flattenValue(joinPath(path, k), child, out)
		}
	case map[any]any: // yaml.v2-style maps, defensive
		for k, child := range val {
			flattenValue(joinPath(path, fmt.Sprint(k)), child, out)
		}
	case []any:
		for i, child := range val {
			flattenValue(fmt.Sprintf("%s[%d]", path, i), child, out)
		}
	case nil:
		out[path] = "null"
	default:
		out[path] = fmt.Sprint(val)
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// extractXMLText walks XML tokens collecting character data under element
// paths. A mid-stream fault keeps the fields decoded so far.
func extractXMLText(data []byte) (*textract.RawOutcome, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var sb strings.Builder
	var stack []string
	fields := 0
	var walkErr error

	for {
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
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(strings.Join(stack, "."))
			sb.WriteString(": ")
			sb.WriteString(text)
			fields++
		}
	}

	outcome := &textract.RawOutcome{
		Content:  sb.String(),
		Metadata: textract.Metadata{"fields": fields, "kind": "xml"},
	}
	if walkErr != nil {
		return outcome, &textract.StreamError{Offset: decoder.InputOffset(), Err: walkErr}
	}
	return outcome, nil
}
