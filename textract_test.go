package textract

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if string(src.Data) != "hello" {
		t.Errorf("data = %q", src.Data)
	}
	if src.Filename != "note.txt" {
		t.Errorf("filename = %q, want base name only", src.Filename)
	}

	if _, err := FromFile(filepath.Join(dir, "absent.txt")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestTableMarkdown(t *testing.T) {
	tbl := Table{Cells: [][]string{{"Name", "Age"}, {"ada", "36"}}}
	want := "| Name | Age |\n| --- | --- |\n| ada | 36 |\n"
	if got := tbl.Markdown(); got != want {
		t.Errorf("Markdown() = %q, want %q", got, want)
	}
	empty := Table{}
	if empty.Markdown() != "" {
		t.Error("empty table should render empty")
	}
}

func TestResultAddWarning(t *testing.T) {
	var r Result
	r.AddWarning("detect", "declared %s disagrees with %s", "txt", "pdf")
	r.AddWarning("ocr", "plain message")
	if len(r.Warnings) != 2 {
		t.Fatalf("warnings = %d", len(r.Warnings))
	}
	if r.Warnings[0].Stage != "detect" || r.Warnings[0].Message != "declared txt disagrees with pdf" {
		t.Errorf("warning = %+v", r.Warnings[0])
	}
}

func TestMetadataClone(t *testing.T) {
	m := Metadata{"k": "v"}
	c := m.Clone()
	c["k"] = "changed"
	if m["k"] != "v" {
		t.Error("clone must not alias the original")
	}
	if Metadata(nil).Clone() != nil {
		t.Error("nil metadata clones to nil")
	}
}

func TestConfigCloneIsolation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Passwords = []string{"a", "b"}
	clone := cfg.Clone()
	clone.Passwords[0] = "mutated"
	clone.PDF.Password = "secret"

	if cfg.Passwords[0] != "a" {
		t.Error("clone must deep-copy password slices")
	}
	if cfg.PDF.Password != "" {
		t.Error("clone must not share nested structs")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.Enabled = true
	cfg.Chunking.MaxChars = 100
	cfg.Chunking.MaxOverlap = 100

	err := cfg.Validate()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Field != "chunking.max_overlap" {
		t.Errorf("field = %q", cfgErr.Field)
	}

	cfg.Chunking.MaxOverlap = 20
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestConfigFingerprint(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if !bytes.Equal(a.Fingerprint(), b.Fingerprint()) {
		t.Error("identical configs must fingerprint identically")
	}

	b.Quality.Enabled = true
	if bytes.Equal(a.Fingerprint(), b.Fingerprint()) {
		t.Error("output-affecting change must change the fingerprint")
	}

	// Fields that do not affect output stay out of the fingerprint.
	c := DefaultConfig()
	c.ItemTimeout = 5 * time.Minute
	c.MaxConcurrency = 99
	c.Cache.Capacity = 1
	if !bytes.Equal(a.Fingerprint(), c.Fingerprint()) {
		t.Error("execution-only fields must not affect the fingerprint")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	ext := &ExtractionError{Format: "pdf", Err: ErrPasswordRequired}
	if !errors.Is(ext, ErrPasswordRequired) {
		t.Error("ExtractionError must unwrap to its cause")
	}

	stream := &StreamError{Offset: 42, Err: errors.New("torn page")}
	if stream.Error() != "stream corrupted at byte 42: torn page" {
		t.Errorf("message = %q", stream.Error())
	}

	val := &ValidationError{Validator: "length", Reason: "too short"}
	if val.Error() != "validation failed (length): too short" {
		t.Errorf("message = %q", val.Error())
	}
}
