package pipeline

import (
	"context"
	"errors"
	"slices"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/chunk"
	"github.com/hazyhaar/textract/plugin"
	"github.com/hazyhaar/textract/quality"
)

// postProcess runs the mandatory post-extraction chain: validators first
// (the only stage that may abort after a successful extraction, run
// before the expensive stages on purpose), then quality scoring, then
// chunking, then the staged post-processors whose faults are isolated as
// warnings.
func (p *Pipeline) postProcess(ctx context.Context, res *textract.Result, cfg *textract.Config) error {
	for _, v := range p.reg.Validators() {
		if slices.Contains(cfg.DisabledValidators, v.Name) {
			continue
		}
		if err := v.Fn(ctx, res); err != nil {
			var vErr *textract.ValidationError
			if errors.As(err, &vErr) {
				return vErr
			}
			return &textract.ValidationError{Validator: v.Name, Reason: err.Error()}
		}
	}

	if cfg.Quality.Enabled {
		res.SetMeta("quality_score", quality.Score(res.Content))
	}

	if cfg.Chunking.Enabled {
		chunks, err := chunk.Split(res.Content, chunk.Options{
			MaxChars:   cfg.Chunking.MaxChars,
			MaxOverlap: cfg.Chunking.MaxOverlap,
		})
		if err != nil {
			// Geometry is validated before extraction starts; reaching
			// this is a bug, surfaced as a config error regardless.
			return &textract.ConfigError{Field: "chunking", Reason: err.Error()}
		}
		res.Chunks = make([]textract.Chunk, len(chunks))
		for i, c := range chunks {
			res.Chunks[i] = textract.Chunk{
				Index:   c.Index,
				Start:   c.Start,
				End:     c.End,
				Overlap: c.OverlapPrev,
				Text:    c.Text,
			}
		}
	}

	for _, proc := range p.reg.Processors() {
		if slices.Contains(cfg.DisabledProcessors, proc.Name) {
			continue
		}
		p.runProcessor(ctx, proc, res)
	}
	return nil
}

// runProcessor executes one post-processor, isolating errors and panics
// into warnings. Post-processors never abort a request.
func (p *Pipeline) runProcessor(ctx context.Context, proc plugin.ProcessorEntry, res *textract.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("post-processor panic", "processor", proc.Name, "panic", r)
			res.AddWarning("postprocess", "processor %s panicked: %v", proc.Name, r)
		}
	}()
	if err := proc.Fn(ctx, res); err != nil {
		p.logger.Warn("post-processor failed", "processor", proc.Name, "error", err)
		res.AddWarning("postprocess", "processor %s: %v", proc.Name, err)
	}
}
