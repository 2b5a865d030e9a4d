package textract

import (
	"encoding/json"
	"log/slog"
	"runtime"
	"time"
)

// Config is an immutable snapshot of extraction settings. Callers build it
// once per request family; pipeline stages only ever read it. Derived
// sub-requests (e.g. a password retry) work on a Clone, never on the
// original.
type Config struct {
	// Cache controls the content-addressed result cache.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// MaxConcurrency bounds in-flight extractions for batch requests.
	// Zero means runtime.NumCPU()+1.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`

	// ItemTimeout aborts a single extraction after this duration. Zero
	// means no per-item deadline.
	ItemTimeout time.Duration `json:"item_timeout" yaml:"item_timeout"`

	// Passwords are tried in order when a decoder reports that the
	// document is encrypted.
	Passwords []string `json:"passwords,omitempty" yaml:"passwords,omitempty"`

	OCR      OCRConfig      `json:"ocr" yaml:"ocr"`
	Archive  ArchiveConfig  `json:"archive" yaml:"archive"`
	Chunking ChunkingConfig `json:"chunking" yaml:"chunking"`
	Quality  QualityConfig  `json:"quality" yaml:"quality"`
	PDF      PDFConfig      `json:"pdf" yaml:"pdf"`
	HTML     HTMLConfig     `json:"html" yaml:"html"`

	// DisabledValidators and DisabledProcessors skip registered plugins
	// by name for this request.
	DisabledValidators []string `json:"disabled_validators,omitempty" yaml:"disabled_validators,omitempty"`
	DisabledProcessors []string `json:"disabled_processors,omitempty" yaml:"disabled_processors,omitempty"`

	// Logger for per-request traces. Not part of the cache key.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	// Disabled bypasses the cache entirely for this request.
	Disabled bool `json:"disabled" yaml:"disabled"`
	// Capacity is the maximum number of cached entries before LRU
	// eviction. Zero means 256.
	Capacity int `json:"capacity" yaml:"capacity"`
}

// OCRConfig controls the low-confidence-text fallback.
type OCRConfig struct {
	// Backend names a registered OCR backend. Empty disables OCR.
	Backend string `json:"backend" yaml:"backend"`
	// Language passed through to the backend (default "eng").
	Language string `json:"language" yaml:"language"`
	// MinChars triggers OCR when extracted text is shorter. Zero means 40.
	MinChars int `json:"min_chars" yaml:"min_chars"`
	// MinPrintableRatio triggers OCR when the printable-character ratio
	// of extracted text falls below it. Zero means 0.85.
	MinPrintableRatio float64 `json:"min_printable_ratio" yaml:"min_printable_ratio"`
}

// ArchiveConfig controls nested-container recursion.
type ArchiveConfig struct {
	// MaxDepth bounds recursion into archives inside archives. Zero
	// means 3.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
	// KeepStructure keeps per-entry results on Result.Children instead
	// of flattening contents into one Content string. Flattened is the
	// default; changing it is a breaking-change surface for callers.
	KeepStructure bool `json:"keep_structure" yaml:"keep_structure"`
}

// ChunkingConfig controls the optional chunking stage.
type ChunkingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// MaxChars is the window size in runes. Zero means 2000.
	MaxChars int `json:"max_chars" yaml:"max_chars"`
	// MaxOverlap is the maximum rune overlap between consecutive chunks.
	// Must be strictly less than MaxChars.
	MaxOverlap int `json:"max_overlap" yaml:"max_overlap"`
}

// QualityConfig controls the optional quality-scoring stage.
type QualityConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// PDFConfig holds PDF decoder settings.
type PDFConfig struct {
	// Password opens an encrypted document. The fallback orchestrator
	// fills it on retries from Config.Passwords.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// MaxPages bounds how many pages are extracted. Zero means all.
	MaxPages int `json:"max_pages" yaml:"max_pages"`
}

// HTMLConfig holds HTML decoder settings.
type HTMLConfig struct {
	// SkipTables disables <table> extraction into Result.Tables.
	SkipTables bool `json:"skip_tables" yaml:"skip_tables"`
	// SkipSanitize disables the bluemonday pass before conversion.
	SkipSanitize bool `json:"skip_sanitize" yaml:"skip_sanitize"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills zero fields with defaults. Safe to call repeatedly.
func (c *Config) Normalize() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = runtime.NumCPU() + 1
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 256
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.OCR.MinChars <= 0 {
		c.OCR.MinChars = 40
	}
	if c.OCR.MinPrintableRatio <= 0 {
		c.OCR.MinPrintableRatio = 0.85
	}
	if c.Archive.MaxDepth <= 0 {
		c.Archive.MaxDepth = 3
	}
	if c.Chunking.MaxChars <= 0 {
		c.Chunking.MaxChars = 2000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate fails fast with a ConfigError before any extraction work runs.
func (c *Config) Validate() error {
	if c.Chunking.Enabled && c.Chunking.MaxOverlap >= c.Chunking.MaxChars {
		return &ConfigError{
			Field:  "chunking.max_overlap",
			Reason: "must be strictly less than chunking.max_chars",
		}
	}
	if c.Chunking.MaxOverlap < 0 {
		return &ConfigError{Field: "chunking.max_overlap", Reason: "must not be negative"}
	}
	if c.OCR.MinPrintableRatio > 1 {
		return &ConfigError{Field: "ocr.min_printable_ratio", Reason: "must be in [0,1]"}
	}
	return nil
}

// Clone returns a deep copy. Derived sub-requests mutate the clone, never
// the original.
func (c *Config) Clone() *Config {
	out := *c
	out.Passwords = append([]string(nil), c.Passwords...)
	out.DisabledValidators = append([]string(nil), c.DisabledValidators...)
	out.DisabledProcessors = append([]string(nil), c.DisabledProcessors...)
	return &out
}

// fingerprintView holds exactly the fields that influence extraction
// output. Cache keys are derived from it: two configs that differ in any
// of these fields must never collide.
type fingerprintView struct {
	Passwords          []string       `json:"passwords,omitempty"`
	OCR                OCRConfig      `json:"ocr"`
	Archive            ArchiveConfig  `json:"archive"`
	Chunking           ChunkingConfig `json:"chunking"`
	Quality            QualityConfig  `json:"quality"`
	PDF                PDFConfig      `json:"pdf"`
	HTML               HTMLConfig     `json:"html"`
	DisabledValidators []string       `json:"disabled_validators,omitempty"`
	DisabledProcessors []string       `json:"disabled_processors,omitempty"`
}

// Fingerprint returns a deterministic encoding of the output-affecting
// config fields, for use in cache keys.
func (c *Config) Fingerprint() []byte {
	view := fingerprintView{
		Passwords:          c.Passwords,
		OCR:                c.OCR,
		Archive:            c.Archive,
		Chunking:           c.Chunking,
		Quality:            c.Quality,
		PDF:                c.PDF,
		HTML:               c.HTML,
		DisabledValidators: c.DisabledValidators,
		DisabledProcessors: c.DisabledProcessors,
	}
	data, err := json.Marshal(view)
	if err != nil {
		// Marshal of a plain struct cannot fail; guard anyway.
		return []byte("fingerprint-error")
	}
	return data
}
