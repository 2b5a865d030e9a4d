package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
	"github.com/hazyhaar/textract/plugin"
)

// stubDecoder lets tests script decoder behavior per format.
type stubDecoder struct {
	name    string
	formats []format.Format
	fn      func(ctx context.Context, src *textract.Source, f format.Format, cfg *textract.Config) (*textract.RawOutcome, error)
}

func (d *stubDecoder) Name() string             { return d.name }
func (d *stubDecoder) Formats() []format.Format { return d.formats }
func (d *stubDecoder) Extract(ctx context.Context, src *textract.Source, f format.Format, cfg *textract.Config) (*textract.RawOutcome, error) {
	return d.fn(ctx, src, f, cfg)
}

func echoDecoder(formats ...format.Format) *stubDecoder {
	return &stubDecoder{
		name:    "echo",
		formats: formats,
		fn: func(_ context.Context, src *textract.Source, _ format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
			return &textract.RawOutcome{Content: string(src.Data)}, nil
		},
	}
}

func newStubPipeline(cfg *textract.Config, decoders ...textract.Decoder) *Pipeline {
	reg := plugin.NewRegistry()
	for _, d := range decoders {
		reg.RegisterDecoder(d, 0)
	}
	return New(cfg, WithRegistry(reg))
}

func TestExtractEmptyInput(t *testing.T) {
	p := New(nil)
	_, err := p.Extract(context.Background(), &textract.Source{}, nil)
	if !errors.Is(err, textract.ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if _, err := p.Extract(context.Background(), nil, nil); !errors.Is(err, textract.ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat for nil source, got %v", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	// Registry with no PDF decoder: detection succeeds, dispatch fails.
	p := newStubPipeline(nil, echoDecoder(format.Text))
	_, err := p.Extract(context.Background(), &textract.Source{Data: []byte("%PDF-1.7\n")}, nil)
	if !errors.Is(err, textract.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtractIdempotentViaCache(t *testing.T) {
	calls := 0
	dec := &stubDecoder{
		name:    "counting",
		formats: []format.Format{format.Text},
		fn: func(context.Context, *textract.Source, format.Format, *textract.Config) (*textract.RawOutcome, error) {
			calls++
			return &textract.RawOutcome{Content: "stable"}, nil
		},
	}
	p := newStubPipeline(nil, dec)
	src := &textract.Source{Data: []byte("same bytes"), Filename: "a.txt"}

	first, err := p.Extract(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := p.Extract(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if calls != 1 {
		t.Fatalf("decoder ran %d times, want 1 (second call served from cache)", calls)
	}
	if first != second {
		t.Fatal("cached call must return the shared snapshot")
	}
	st := p.CacheStats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss", st)
	}
}

func TestExtractDifferentConfigMissesCache(t *testing.T) {
	calls := 0
	dec := &stubDecoder{
		name:    "counting",
		formats: []format.Format{format.Text},
		fn: func(context.Context, *textract.Source, format.Format, *textract.Config) (*textract.RawOutcome, error) {
			calls++
			return &textract.RawOutcome{Content: "v"}, nil
		},
	}
	p := newStubPipeline(nil, dec)
	src := &textract.Source{Data: []byte("same bytes"), Filename: "a.txt"}

	if _, err := p.Extract(context.Background(), src, nil); err != nil {
		t.Fatal(err)
	}
	cfg := textract.DefaultConfig()
	cfg.Quality.Enabled = true
	if _, err := p.Extract(context.Background(), src, cfg); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("decoder ran %d times, want 2: changed config must change the cache key", calls)
	}
}

func TestExtractDifferentHintsMissCache(t *testing.T) {
	p := New(nil)
	data := []byte("name,age\nalice,30\nbob,25")

	asCSV, err := p.Extract(context.Background(), &textract.Source{Data: data, Filename: "people.csv"}, nil)
	if err != nil {
		t.Fatalf("csv extract: %v", err)
	}
	asText, err := p.Extract(context.Background(), &textract.Source{Data: data, Filename: "people.txt"}, nil)
	if err != nil {
		t.Fatalf("txt extract: %v", err)
	}

	if asCSV.Metadata["format"] != "csv" {
		t.Fatalf("csv-hinted format = %v", asCSV.Metadata["format"])
	}
	if len(asCSV.Tables) != 1 {
		t.Fatalf("csv-hinted tables = %d, want 1", len(asCSV.Tables))
	}
	if asText.Metadata["format"] != "txt" {
		t.Errorf("txt-hinted format = %v, want txt: identical bytes under a different name must not share a cache entry", asText.Metadata["format"])
	}
	if len(asText.Tables) != 0 {
		t.Errorf("txt-hinted tables = %d, want none", len(asText.Tables))
	}
	if st := p.CacheStats(); st.Misses != 2 || st.Entries != 2 {
		t.Errorf("stats = %+v, want 2 misses / 2 entries", st)
	}
}

func TestExtractCacheDisabled(t *testing.T) {
	calls := 0
	dec := &stubDecoder{
		name:    "counting",
		formats: []format.Format{format.Text},
		fn: func(context.Context, *textract.Source, format.Format, *textract.Config) (*textract.RawOutcome, error) {
			calls++
			return &textract.RawOutcome{Content: "v"}, nil
		},
	}
	cfg := textract.DefaultConfig()
	cfg.Cache.Disabled = true
	p := newStubPipeline(cfg, dec)
	src := &textract.Source{Data: []byte("bytes"), Filename: "a.txt"}

	for i := 0; i < 2; i++ {
		if _, err := p.Extract(context.Background(), src, nil); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Fatalf("decoder ran %d times, want 2 with the cache disabled", calls)
	}
}

func TestExtractMismatchWarning(t *testing.T) {
	p := newStubPipeline(nil, echoDecoder(format.PDF, format.Text))
	// PDF magic bytes declared as plain text.
	src := &textract.Source{Data: []byte("%PDF-1.5 payload"), Filename: "letter.txt"}

	res, err := p.Extract(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Metadata["format"] != "pdf" {
		t.Errorf("format = %v, want the detected format to win", res.Metadata["format"])
	}
	if res.Metadata["detection_confidence"] != "ambiguous" {
		t.Errorf("confidence = %v", res.Metadata["detection_confidence"])
	}
	if _, ok := res.Metadata["format_mismatch"]; !ok {
		t.Error("format_mismatch metadata missing")
	}
	found := false
	for _, w := range res.Warnings {
		if w.Stage == "detect" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a detect-stage warning, got %+v", res.Warnings)
	}
}

func TestExtractChunkingGeometryFailsFast(t *testing.T) {
	calls := 0
	dec := &stubDecoder{
		name:    "counting",
		formats: []format.Format{format.Text},
		fn: func(context.Context, *textract.Source, format.Format, *textract.Config) (*textract.RawOutcome, error) {
			calls++
			return &textract.RawOutcome{Content: "v"}, nil
		},
	}
	p := newStubPipeline(nil, dec)

	cfg := textract.DefaultConfig()
	cfg.Chunking.Enabled = true
	cfg.Chunking.MaxChars = 10
	cfg.Chunking.MaxOverlap = 10

	_, err := p.Extract(context.Background(), &textract.Source{Data: []byte("text"), Filename: "a.txt"}, cfg)
	var cfgErr *textract.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("decoder ran %d times: invalid geometry must fail before extraction", calls)
	}
}

func TestExtractChunking(t *testing.T) {
	p := newStubPipeline(nil, echoDecoder(format.Text))

	cfg := textract.DefaultConfig()
	cfg.Chunking.Enabled = true
	cfg.Chunking.MaxChars = 10
	cfg.Chunking.MaxOverlap = 2

	// 25 unstructured runes: exactly three windows.
	src := &textract.Source{Data: []byte("abcdefghijklmnopqrstuvwxy"), Filename: "a.txt"}
	res, err := p.Extract(context.Background(), src, cfg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(res.Chunks))
	}
	for i, c := range res.Chunks {
		if c.Index != i {
			t.Errorf("chunk %d carries index %d", i, c.Index)
		}
		if i > 0 && c.Overlap != 2 {
			t.Errorf("chunk %d overlap = %d, want 2", i, c.Overlap)
		}
	}
}

func TestExtractQualityScore(t *testing.T) {
	p := newStubPipeline(nil, echoDecoder(format.Text))
	cfg := textract.DefaultConfig()
	cfg.Quality.Enabled = true

	src := &textract.Source{Data: []byte("a normal readable sentence of words"), Filename: "a.txt"}
	res, err := p.Extract(context.Background(), src, cfg)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	score, ok := res.Metadata["quality_score"].(float64)
	if !ok {
		t.Fatalf("quality_score missing or wrong type: %v", res.Metadata["quality_score"])
	}
	if score <= 0 || score > 1 {
		t.Errorf("score = %v, want (0,1]", score)
	}
}

func TestValidatorAborts(t *testing.T) {
	p := newStubPipeline(nil, echoDecoder(format.Text))
	p.Registry().RegisterValidator("min-length", 0, func(_ context.Context, res *textract.Result) error {
		if len(res.Content) < 100 {
			return fmt.Errorf("content too short: %d chars", len(res.Content))
		}
		return nil
	})

	_, err := p.Extract(context.Background(), &textract.Source{Data: []byte("tiny"), Filename: "a.txt"}, nil)
	var vErr *textract.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Validator != "min-length" {
		t.Errorf("validator = %q", vErr.Validator)
	}
}

func TestDisabledValidatorSkipped(t *testing.T) {
	p := newStubPipeline(nil, echoDecoder(format.Text))
	p.Registry().RegisterValidator("strict", 0, func(context.Context, *textract.Result) error {
		return errors.New("always fails")
	})

	cfg := textract.DefaultConfig()
	cfg.DisabledValidators = []string{"strict"}
	if _, err := p.Extract(context.Background(), &textract.Source{Data: []byte("body"), Filename: "a.txt"}, cfg); err != nil {
		t.Fatalf("disabled validator must not run, got %v", err)
	}
}

func TestProcessorFaultIsolation(t *testing.T) {
	p := newStubPipeline(nil, echoDecoder(format.Text))
	p.Registry().RegisterProcessor("broken", plugin.StageEarly, func(context.Context, *textract.Result) error {
		return errors.New("processor exploded")
	})
	p.Registry().RegisterProcessor("panicky", plugin.StageMiddle, func(context.Context, *textract.Result) error {
		panic("boom")
	})
	ran := false
	p.Registry().RegisterProcessor("survivor", plugin.StageLate, func(_ context.Context, res *textract.Result) error {
		ran = true
		res.Content = strings.ToUpper(res.Content)
		return nil
	})

	res, err := p.Extract(context.Background(), &textract.Source{Data: []byte("body"), Filename: "a.txt"}, nil)
	if err != nil {
		t.Fatalf("processor faults must not abort the request, got %v", err)
	}
	if !ran {
		t.Error("later processors must still run after earlier faults")
	}
	if res.Content != "BODY" {
		t.Errorf("content = %q", res.Content)
	}
	faults := 0
	for _, w := range res.Warnings {
		if w.Stage == "postprocess" {
			faults++
		}
	}
	if faults != 2 {
		t.Errorf("postprocess warnings = %d, want 2", faults)
	}
}

func TestDecoderPanicBecomesError(t *testing.T) {
	dec := &stubDecoder{
		name:    "panicky",
		formats: []format.Format{format.Text},
		fn: func(context.Context, *textract.Source, format.Format, *textract.Config) (*textract.RawOutcome, error) {
			panic("decoder bug")
		},
	}
	p := newStubPipeline(nil, dec)
	_, err := p.Extract(context.Background(), &textract.Source{Data: []byte("x"), Filename: "a.txt"}, nil)
	var extErr *textract.ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extErr.Format != format.Text {
		t.Errorf("format = %s", extErr.Format)
	}
}

func TestExtractTimeout(t *testing.T) {
	dec := &stubDecoder{
		name:    "slow",
		formats: []format.Format{format.Text},
		fn: func(ctx context.Context, _ *textract.Source, _ format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
			select {
			case <-time.After(5 * time.Second):
				return &textract.RawOutcome{Content: "late"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	cfg := textract.DefaultConfig()
	cfg.ItemTimeout = 30 * time.Millisecond
	p := newStubPipeline(cfg, dec)

	_, err := p.Extract(context.Background(), &textract.Source{Data: []byte("x"), Filename: "a.txt"}, nil)
	if !errors.Is(err, textract.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestClearCache(t *testing.T) {
	p := newStubPipeline(nil, echoDecoder(format.Text))
	src := &textract.Source{Data: []byte("cached"), Filename: "a.txt"}
	if _, err := p.Extract(context.Background(), src, nil); err != nil {
		t.Fatal(err)
	}
	if st := p.CacheStats(); st.Entries != 1 {
		t.Fatalf("entries = %d, want 1", st.Entries)
	}
	p.ClearCache()
	if st := p.CacheStats(); st.Entries != 0 || st.Hits != 0 || st.Misses != 0 {
		t.Fatalf("stats after clear = %+v", st)
	}
}

func TestDetect(t *testing.T) {
	p := New(nil)
	v, err := p.Detect(&textract.Source{Data: []byte("%PDF-1.7"), Filename: "r.pdf"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if v.Format != format.PDF || v.Confidence != format.Certain {
		t.Errorf("verdict = %+v", v)
	}
	if _, err := p.Detect(nil); !errors.Is(err, textract.ErrUnknownFormat) {
		t.Errorf("nil source: %v", err)
	}
}

func TestSupportedFormatsDefaultRegistry(t *testing.T) {
	p := New(nil)
	formats := p.SupportedFormats()
	want := map[format.Format]bool{
		format.PDF: true, format.Docx: true, format.HTML: true,
		format.CSV: true, format.Zip: true, format.PNG: true,
	}
	have := map[format.Format]bool{}
	for _, f := range formats {
		have[f] = true
	}
	for f := range want {
		if !have[f] {
			t.Errorf("format %s missing from default registry", f)
		}
	}
}
