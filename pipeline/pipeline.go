// Package pipeline orchestrates extraction: format detection, decoder
// dispatch, fallback recovery, post-processing and result caching.
//
// A Pipeline is the context value of the whole system (decoder registry,
// OCR backends, cache, base config), constructed once at process start —
// or per test — and passed explicitly. There is no hidden global state.
//
// Usage:
//
//	pipe := pipeline.New(textract.DefaultConfig())
//	res, err := pipe.Extract(ctx, textract.FromBytes(data), nil)
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/cache"
	"github.com/hazyhaar/textract/extractors"
	"github.com/hazyhaar/textract/format"
	"github.com/hazyhaar/textract/plugin"
)

// Pipeline is the extraction engine.
type Pipeline struct {
	cfg    *textract.Config
	reg    *plugin.Registry
	cache  *cache.Cache
	logger *slog.Logger
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithRegistry replaces the default registry (built-ins registered via
// extractors.RegisterAll). Tests use it to run with isolated registries.
func WithRegistry(reg *plugin.Registry) Option {
	return func(p *Pipeline) { p.reg = reg }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline with cfg as the base configuration for requests
// that pass a nil per-request config. A nil cfg means defaults.
func New(cfg *textract.Config, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = textract.DefaultConfig()
	} else {
		cfg = cfg.Clone()
		cfg.Normalize()
	}

	p := &Pipeline{cfg: cfg, logger: cfg.Logger}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.reg == nil {
		p.reg = plugin.NewRegistry()
		extractors.RegisterAll(p.reg)
	}
	p.cache = cache.New(cfg.Cache.Capacity)
	return p
}

// Registry exposes the plugin registry for startup-time registration of
// overrides, validators, post-processors and OCR backends. Registration
// after requests have begun is undefined behavior.
func (p *Pipeline) Registry() *plugin.Registry { return p.reg }

// CacheStats returns the result-cache counters.
func (p *Pipeline) CacheStats() cache.Stats { return p.cache.Stats() }

// ClearCache empties the result cache and resets its counters.
func (p *Pipeline) ClearCache() { p.cache.Clear() }

// SupportedFormats lists formats with a registered decoder.
func (p *Pipeline) SupportedFormats() []format.Format { return p.reg.SupportedFormats() }

// Detect classifies a source without extracting it.
func (p *Pipeline) Detect(src *textract.Source) (format.Verdict, error) {
	if src == nil {
		return format.Verdict{}, textract.ErrUnknownFormat
	}
	return format.Detect(src.Data, src.Filename, src.MIMEType)
}

// Extract runs the full single-item flow: cache lookup, detection,
// dispatch with fallback, post-processing, cache store.
//
// Results served from the cache are shared snapshots; callers must not
// mutate them.
func (p *Pipeline) Extract(ctx context.Context, src *textract.Source, cfg *textract.Config) (*textract.Result, error) {
	cfg = p.requestConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil || len(src.Data) == 0 {
		return nil, textract.ErrUnknownFormat
	}

	if cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ItemTimeout)
		defer cancel()
	}

	if cfg.Cache.Disabled {
		res, err := p.run(ctx, src, cfg)
		return res, p.mapTimeout(err)
	}

	// Hints steer detection and therefore the decoder, so identical bytes
	// under different names must not share a snapshot.
	key := cache.Key(src.Data, []byte(src.Filename), []byte(src.MIMEType), cfg.Fingerprint())
	res, err := p.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*textract.Result, error) {
		return p.run(ctx, src, cfg)
	})
	return res, p.mapTimeout(err)
}

// run is the uncached single-item flow.
func (p *Pipeline) run(ctx context.Context, src *textract.Source, cfg *textract.Config) (*textract.Result, error) {
	verdict, err := format.Detect(src.Data, src.Filename, src.MIMEType)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("extracting",
		"format", verdict.Format,
		"confidence", verdict.Confidence.String(),
		"bytes", len(src.Data),
		"filename", src.Filename)

	res, err := p.orchestrate(ctx, src, verdict, cfg, 0)
	if err != nil {
		return nil, err
	}

	res.SetMeta("format", string(verdict.Format))
	res.SetMeta("detection_confidence", verdict.Confidence.String())
	if verdict.Mismatch != nil {
		res.SetMeta("format_mismatch", fmt.Sprintf("declared %s, detected %s",
			verdict.Mismatch.Declared, verdict.Mismatch.Detected))
		res.AddWarning("detect", "declared format %s disagrees with detected %s; using detected",
			verdict.Mismatch.Declared, verdict.Mismatch.Detected)
	}

	if err := p.postProcess(ctx, res, cfg); err != nil {
		return nil, err
	}
	return res, nil
}

// requestConfig resolves the effective config for one request.
func (p *Pipeline) requestConfig(cfg *textract.Config) *textract.Config {
	if cfg == nil {
		return p.cfg
	}
	out := cfg.Clone()
	out.Normalize()
	return out
}

// mapTimeout converts context deadline errors into the public ErrTimeout.
func (p *Pipeline) mapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", textract.ErrTimeout, err)
	}
	return err
}
