// Package textract defines the shared types of the extraction pipeline:
// sources, results, plugin contracts and the error taxonomy.
//
// The orchestration itself lives in the pipeline package; concrete format
// decoders live in extractors. A typical caller does:
//
//	cfg := textract.DefaultConfig()
//	pipe := pipeline.New(cfg)
//	res, err := pipe.Extract(ctx, textract.FromBytes(data), nil)
package textract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/textract/format"
)

// Source is the input to an extraction request: a byte buffer plus optional
// declared hints. It is immutable once constructed; decoders borrow it
// read-only.
type Source struct {
	// Data holds the full content bytes.
	Data []byte
	// Filename is an optional name whose extension serves as a format hint.
	Filename string
	// MIMEType is an optional declared media type hint.
	MIMEType string
}

// FromBytes wraps a byte buffer as a Source.
func FromBytes(data []byte) *Source {
	return &Source{Data: data}
}

// FromFile reads path into memory and returns a Source carrying the
// filename as a hint.
func FromFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &Source{Data: data, Filename: filepath.Base(path)}, nil
}

// Metadata carries arbitrary key/value facts about an extraction.
type Metadata map[string]any

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Warning records a non-fatal condition encountered during a pipeline
// stage. Warnings accumulate; stages never remove prior warnings.
type Warning struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Table is a rectangular grid of extracted cells.
type Table struct {
	Cells   [][]string `json:"cells"`
	Caption string     `json:"caption,omitempty"`
	Page    int        `json:"page,omitempty"`
}

// Markdown renders the table as a GitHub-style markdown table. The first
// row is treated as the header.
func (t *Table) Markdown() string {
	if len(t.Cells) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, row := range t.Cells {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString(" |\n")
		if i == 0 {
			sb.WriteString("|")
			sb.WriteString(strings.Repeat(" --- |", len(row)))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Chunk is one overlapping window of the extracted content.
type Chunk struct {
	Index   int    `json:"index"`
	Start   int    `json:"start"` // rune offset in Content
	End     int    `json:"end"`
	Overlap int    `json:"overlap"` // runes shared with the previous chunk
	Text    string `json:"text"`
}

// Result is the final output of an extraction request. Pipeline stages
// build it incrementally: each stage may replace Content or append to
// Metadata/Warnings, but never silently drops prior-stage data.
//
// Cached results are shared between callers and must be treated as
// immutable snapshots.
type Result struct {
	Content  string    `json:"content"`
	Metadata Metadata  `json:"metadata,omitempty"`
	Tables   []Table   `json:"tables,omitempty"`
	Chunks   []Chunk   `json:"chunks,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`

	// Children holds per-entry results of a nested container when the
	// caller asked to keep the hierarchy instead of flattening it.
	Children []*Result `json:"children,omitempty"`
}

// AddWarning appends a formatted warning for the given stage.
func (r *Result) AddWarning(stage, msg string, args ...any) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	r.Warnings = append(r.Warnings, Warning{Stage: stage, Message: msg})
}

// SetMeta sets a metadata key, allocating the map on first use.
func (r *Result) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(Metadata)
	}
	r.Metadata[key] = value
}

// RawOutcome is what a decoder produces before post-processing. For
// container formats, Entries lists the contained sources for the
// orchestrator to descend into; decoders never recurse themselves.
type RawOutcome struct {
	Content  string
	Metadata Metadata
	Tables   []Table

	// Entries are nested sources found inside a container format.
	Entries []*Source
}

// Decoder extracts a raw outcome from a source. One implementation per
// format family, registered into the plugin registry. Implementations are
// external collaborators: they must honor ctx cancellation on long work
// and treat the source as read-only. The detected format is passed in
// because a decoder may serve several formats and because the verdict is
// computed exactly once per request, by the pipeline.
type Decoder interface {
	Name() string
	Formats() []format.Format
	Extract(ctx context.Context, src *Source, f format.Format, cfg *Config) (*RawOutcome, error)
}

// ValidateFunc inspects a result after extraction and may fail the whole
// request by returning an error. Validators are the only post-extraction
// stage allowed to abort.
type ValidateFunc func(ctx context.Context, res *Result) error

// ProcessFunc mutates a result during the post-processing stage. An error
// returned here is recorded as a warning and never aborts the request.
type ProcessFunc func(ctx context.Context, res *Result) error

// OcrResult is the output of an OCR backend.
type OcrResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Tables     []Table `json:"tables,omitempty"`
}

// OcrBackend recognizes text in image bytes.
type OcrBackend interface {
	Name() string
	Recognize(ctx context.Context, image []byte, language string) (*OcrResult, error)
}
