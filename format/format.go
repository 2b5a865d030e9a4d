// Package format classifies raw document bytes into a concrete format.
//
// Detection combines two independent signals: magic-byte signatures found
// in a bounded prefix of the content, and a declared hint (filename
// extension or media type). The two signals are merged into a Verdict
// carrying a confidence level and, when they disagree, the mismatch pair.
// Signature wins on disagreement so that a spoofed extension cannot route
// bytes to the wrong decoder.
package format

import (
	"archive/zip"
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

// Format identifies a document type.
type Format string

const (
	PDF      Format = "pdf"
	Docx     Format = "docx"
	ODT      Format = "odt"
	XLSX     Format = "xlsx"
	PPTX     Format = "pptx"
	HTML     Format = "html"
	Markdown Format = "md"
	Text     Format = "txt"
	CSV      Format = "csv"
	JSON     Format = "json"
	YAML     Format = "yaml"
	XML      Format = "xml"
	Zip      Format = "zip"
	Tar      Format = "tar"
	Gzip     Format = "gz"
	PNG      Format = "png"
	JPEG     Format = "jpg"
	GIF      Format = "gif"
	TIFF     Format = "tiff"
	BMP      Format = "bmp"
	WebP     Format = "webp"
)

// ErrUnknown is returned when neither signature nor hint resolves a format.
var ErrUnknown = errors.New("unknown format")

// Confidence expresses how certain the detector is about its verdict.
type Confidence int

const (
	// Certain means signature and hint agree.
	Certain Confidence = iota
	// Inferred means only one signal resolved.
	Inferred
	// Ambiguous means signature and hint disagree. The signature wins
	// except for text-family disagreements, where the hint does; either
	// way the verdict carries the mismatch pair.
	Ambiguous
)

// MarshalJSON encodes the confidence as its string name.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

func (c Confidence) String() string {
	switch c {
	case Certain:
		return "certain"
	case Inferred:
		return "inferred"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Mismatch records a disagreement between the declared hint and the
// detected signature.
type Mismatch struct {
	Declared Format `json:"declared"`
	Detected Format `json:"detected"`
}

// Verdict is the detector's classification outcome. It is computed at most
// once per request and never mutated afterwards.
type Verdict struct {
	Format     Format     `json:"format"`
	Confidence Confidence `json:"confidence"`
	Mismatch   *Mismatch  `json:"mismatch,omitempty"`
}

// signatureScanLimit bounds how far into the content magic-byte scanning
// looks. Tar's magic sits at offset 257, so the limit must exceed that.
const signatureScanLimit = 512

// IsImage reports whether f is a raster image format.
func (f Format) IsImage() bool {
	switch f {
	case PNG, JPEG, GIF, TIFF, BMP, WebP:
		return true
	}
	return false
}

// IsContainer reports whether f is an archive that may hold nested entries.
func (f Format) IsContainer() bool {
	switch f {
	case Zip, Tar, Gzip:
		return true
	}
	return false
}

// Detect classifies data using its magic bytes and the declared hint.
// filename and declaredMIME may be empty. Zero-length input always fails
// with ErrUnknown, never a guessed format.
func Detect(data []byte, filename, declaredMIME string) (Verdict, error) {
	if len(data) == 0 {
		return Verdict{}, ErrUnknown
	}

	detected, sigOK := detectSignature(data)
	hinted, hintOK := detectHint(filename, declaredMIME)

	switch {
	case sigOK && hintOK:
		if detected == hinted {
			return Verdict{Format: detected, Confidence: Certain}, nil
		}
		// A generic container signature refined by a container-carried
		// hint is agreement, not a spoofing attempt: docx and friends
		// are zip files by construction.
		if detected == Zip && carriedByZip(hinted) {
			return Verdict{Format: hinted, Confidence: Inferred}, nil
		}
		// Text-family disagreements trust the hint (prose legitimately
		// sniffs as HTML/JSON/XML) but still carry the pair, so callers
		// see the disagreement in the verdict.
		if compatibleText(detected, hinted) {
			return Verdict{
				Format:     hinted,
				Confidence: Ambiguous,
				Mismatch:   &Mismatch{Declared: hinted, Detected: detected},
			}, nil
		}
		return Verdict{
			Format:     detected,
			Confidence: Ambiguous,
			Mismatch:   &Mismatch{Declared: hinted, Detected: detected},
		}, nil
	case sigOK:
		return Verdict{Format: detected, Confidence: Inferred}, nil
	case hintOK:
		return Verdict{Format: hinted, Confidence: Inferred}, nil
	default:
		return Verdict{}, ErrUnknown
	}
}

// carriedByZip reports whether f is an office format physically stored as
// a zip archive.
func carriedByZip(f Format) bool {
	switch f {
	case Docx, ODT, XLSX, PPTX:
		return true
	}
	return false
}

// compatibleText reports whether a text-family signature is consistent
// with a more specific text-family hint (an .md file legitimately sniffs
// as JSON-ish or XML-ish prose never does, but HTML/XML prefixes inside
// markdown or CSV hints are common enough to trust the hint).
func compatibleText(detected, hinted Format) bool {
	textual := map[Format]bool{Markdown: true, Text: true, CSV: true, YAML: true}
	switch detected {
	case JSON, XML, HTML:
		return textual[hinted]
	}
	return false
}

func detectSignature(data []byte) (Format, bool) {
	prefix := data
	if len(prefix) > signatureScanLimit {
		prefix = prefix[:signatureScanLimit]
	}

	switch {
	case bytes.HasPrefix(prefix, []byte("%PDF-")):
		return PDF, true
	case bytes.HasPrefix(prefix, []byte{0x50, 0x4B, 0x03, 0x04}),
		bytes.HasPrefix(prefix, []byte{0x50, 0x4B, 0x05, 0x06}):
		return refineZip(data), true
	case bytes.HasPrefix(prefix, []byte{0x1F, 0x8B}):
		return Gzip, true
	case bytes.HasPrefix(prefix, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return PNG, true
	case bytes.HasPrefix(prefix, []byte{0xFF, 0xD8, 0xFF}):
		return JPEG, true
	case bytes.HasPrefix(prefix, []byte("GIF87a")), bytes.HasPrefix(prefix, []byte("GIF89a")):
		return GIF, true
	case bytes.HasPrefix(prefix, []byte{0x49, 0x49, 0x2A, 0x00}),
		bytes.HasPrefix(prefix, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return TIFF, true
	case bytes.HasPrefix(prefix, []byte("BM")) && len(prefix) > 14:
		return BMP, true
	case bytes.HasPrefix(prefix, []byte("RIFF")) && len(prefix) >= 12 && bytes.Equal(prefix[8:12], []byte("WEBP")):
		return WebP, true
	}

	// Tar stores its magic at offset 257.
	if len(prefix) >= 263 && bytes.Equal(prefix[257:262], []byte("ustar")) {
		return Tar, true
	}

	trimmed := bytes.TrimLeft(prefix, " \t\r\n\xef\xbb\xbf")
	lower := bytes.ToLower(trimmed)
	switch {
	case bytes.HasPrefix(lower, []byte("<!doctype html")), bytes.HasPrefix(lower, []byte("<html")):
		return HTML, true
	case bytes.HasPrefix(lower, []byte("<?xml")):
		return XML, true
	case len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['):
		return JSON, true
	}

	return "", false
}

// refineZip distinguishes office formats from plain zip archives by
// inspecting entry names. Falls back to generic Zip when the archive
// cannot be opened from the given bytes (e.g. a truncated prefix).
func refineZip(data []byte) Format {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Zip
	}
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml" || strings.HasPrefix(f.Name, "word/"):
			return Docx
		case strings.HasPrefix(f.Name, "xl/"):
			return XLSX
		case strings.HasPrefix(f.Name, "ppt/"):
			return PPTX
		case f.Name == "mimetype":
			rc, err := f.Open()
			if err != nil {
				continue
			}
			buf := make([]byte, 64)
			n, _ := rc.Read(buf)
			rc.Close()
			if strings.Contains(string(buf[:n]), "opendocument.text") {
				return ODT
			}
		}
	}
	return Zip
}

var extensions = map[string]Format{
	".pdf":      PDF,
	".docx":     Docx,
	".odt":      ODT,
	".xlsx":     XLSX,
	".pptx":     PPTX,
	".html":     HTML,
	".htm":      HTML,
	".md":       Markdown,
	".markdown": Markdown,
	".txt":      Text,
	".text":     Text,
	".csv":      CSV,
	".json":     JSON,
	".yaml":     YAML,
	".yml":      YAML,
	".xml":      XML,
	".zip":      Zip,
	".tar":      Tar,
	".gz":       Gzip,
	".tgz":      Gzip,
	".png":      PNG,
	".jpg":      JPEG,
	".jpeg":     JPEG,
	".gif":      GIF,
	".tif":      TIFF,
	".tiff":     TIFF,
	".bmp":      BMP,
	".webp":     WebP,
}

var mimeTypes = map[string]Format{
	"application/pdf": PDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": Docx,
	"application/vnd.oasis.opendocument.text":                                 ODT,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       XLSX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": PPTX,
	"text/html":                HTML,
	"text/markdown":            Markdown,
	"text/plain":               Text,
	"text/csv":                 CSV,
	"application/json":         JSON,
	"application/yaml":         YAML,
	"text/yaml":                YAML,
	"application/xml":          XML,
	"text/xml":                 XML,
	"application/zip":          Zip,
	"application/x-tar":        Tar,
	"application/gzip":         Gzip,
	"image/png":                PNG,
	"image/jpeg":               JPEG,
	"image/gif":                GIF,
	"image/tiff":               TIFF,
	"image/bmp":                BMP,
	"image/webp":               WebP,
}

// FromExtension maps a filename to a format via its extension.
func FromExtension(name string) (Format, bool) {
	f, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return f, ok
}

// FromMIME maps a declared media type to a format. Parameters after ";"
// are ignored.
func FromMIME(mime string) (Format, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	f, ok := mimeTypes[mime]
	return f, ok
}

func detectHint(filename, declaredMIME string) (Format, bool) {
	if declaredMIME != "" {
		if f, ok := FromMIME(declaredMIME); ok {
			return f, true
		}
	}
	if filename != "" {
		if f, ok := FromExtension(filename); ok {
			return f, true
		}
	}
	return "", false
}

// Supported returns all format identifiers the detector can produce.
func Supported() []Format {
	return []Format{
		PDF, Docx, ODT, XLSX, PPTX, HTML, Markdown, Text, CSV,
		JSON, YAML, XML, Zip, Tar, Gzip, PNG, JPEG, GIF, TIFF, BMP, WebP,
	}
}
