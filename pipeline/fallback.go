package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
	"github.com/hazyhaar/textract/quality"
)

// orchestrate wraps a dispatch attempt with the per-format recovery
// strategies: password retry, mid-stream corruption salvage, nested
// container descent and the low-confidence OCR supplement.
//
// Only unknown/unsupported formats and unrecoverable faults surface as
// hard errors; every other condition degrades to a partial result with
// warnings. depth is the explicit container-recursion counter.
func (p *Pipeline) orchestrate(ctx context.Context, src *textract.Source, verdict format.Verdict, cfg *textract.Config, depth int) (*textract.Result, error) {
	f := verdict.Format

	outcome, err := p.dispatch(ctx, src, f, cfg)

	res := &textract.Result{}

	if errors.Is(err, textract.ErrPasswordRequired) {
		outcome, err = p.retryPasswords(ctx, src, f, cfg, outcome)
		if errors.Is(err, textract.ErrPasswordRequired) {
			// Soft failure: partial metadata is still valuable. Hard
			// failure only when the attempt yielded nothing at all.
			if outcome == nil || (outcome.Content == "" && len(outcome.Metadata) == 0) {
				return nil, &textract.ExtractionError{Format: f, Err: err}
			}
			mergeOutcome(res, outcome)
			res.SetMeta("is_encrypted", true)
			res.AddWarning("fallback", "document is encrypted and no configured password opened it")
			return res, nil
		}
	}

	var streamErr *textract.StreamError
	if err != nil && errors.As(err, &streamErr) && outcome != nil {
		mergeOutcome(res, outcome)
		res.SetMeta("corruption_offset", streamErr.Offset)
		res.AddWarning("fallback", "stream corrupted at byte %d: %v; returning partial content", streamErr.Offset, streamErr.Err)
		err = nil
		p.descend(ctx, res, outcome.Entries, cfg, depth)
		return res, nil
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var extErr *textract.ExtractionError
		if errors.As(err, &extErr) || errors.Is(err, textract.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, &textract.ExtractionError{Format: f, Err: err}
	}

	mergeOutcome(res, outcome)
	p.descend(ctx, res, outcome.Entries, cfg, depth)
	p.supplementWithOCR(ctx, res, src, f, cfg)
	return res, nil
}

// retryPasswords re-dispatches with each configured password in order.
// The returned error is ErrPasswordRequired when all candidates fail; the
// best outcome seen (typically metadata-only) is kept.
func (p *Pipeline) retryPasswords(ctx context.Context, src *textract.Source, f format.Format, cfg *textract.Config, best *textract.RawOutcome) (*textract.RawOutcome, error) {
	for _, pw := range cfg.Passwords {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		retryCfg := cfg.Clone()
		retryCfg.PDF.Password = pw
		outcome, err := p.dispatch(ctx, src, f, retryCfg)
		if err == nil {
			if outcome.Metadata == nil {
				outcome.Metadata = textract.Metadata{}
			}
			outcome.Metadata["is_encrypted"] = true
			return outcome, nil
		}
		if !errors.Is(err, textract.ErrPasswordRequired) {
			return best, err
		}
		if best == nil && outcome != nil {
			best = outcome
		}
	}
	return best, textract.ErrPasswordRequired
}

// descend recurses into nested container entries, bounded by the explicit
// depth counter. On depth exhaustion it stops descending with a warning
// instead of failing the request. Child results are flattened into the
// parent by default; Archive.KeepStructure keeps them on Children.
func (p *Pipeline) descend(ctx context.Context, res *textract.Result, entries []*textract.Source, cfg *textract.Config, depth int) {
	if len(entries) == 0 {
		return
	}
	if depth >= cfg.Archive.MaxDepth {
		res.AddWarning("archive", "nesting depth limit %d reached, entries not extracted", cfg.Archive.MaxDepth)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			res.AddWarning("archive", "aborted before entry %s: %v", entry.Filename, ctx.Err())
			return
		}
		verdict, err := format.Detect(entry.Data, entry.Filename, entry.MIMEType)
		if err != nil {
			res.AddWarning("archive", "entry %s: format not recognized, skipped", entry.Filename)
			continue
		}
		child, err := p.orchestrate(ctx, entry, verdict, cfg, depth+1)
		if err != nil {
			res.AddWarning("archive", "entry %s: %v", entry.Filename, err)
			continue
		}
		child.SetMeta("entry_name", entry.Filename)

		if cfg.Archive.KeepStructure {
			res.Children = append(res.Children, child)
			continue
		}
		// Flatten: contents concatenate with an entry header; tables and
		// warnings merge into the parent.
		if child.Content != "" {
			if res.Content != "" {
				res.Content += "\n\n"
			}
			res.Content += "=== " + entry.Filename + " ===\n" + child.Content
		}
		res.Tables = append(res.Tables, child.Tables...)
		res.Warnings = append(res.Warnings, child.Warnings...)
	}
}

// supplementWithOCR invokes the configured OCR backend when extracted
// text is too short or too noisy for an image-bearing format. OCR text
// supplements the extracted text, never replaces it; both confidence
// signals stay in metadata for the caller.
func (p *Pipeline) supplementWithOCR(ctx context.Context, res *textract.Result, src *textract.Source, f format.Format, cfg *textract.Config) {
	if cfg.OCR.Backend == "" {
		return
	}
	if !f.IsImage() && f != format.PDF {
		return
	}

	textLen := len([]rune(res.Content))
	printable := quality.PrintableRatio(res.Content)
	if textLen >= cfg.OCR.MinChars && printable >= cfg.OCR.MinPrintableRatio {
		return
	}

	backend, ok := p.reg.OCR(cfg.OCR.Backend)
	if !ok {
		res.AddWarning("ocr", "backend %q not registered", cfg.OCR.Backend)
		return
	}

	p.logger.Debug("low-confidence text, invoking ocr",
		"backend", cfg.OCR.Backend, "chars", textLen, "printable_ratio", printable)

	ocrRes, err := backend.Recognize(ctx, src.Data, cfg.OCR.Language)
	if err != nil {
		res.AddWarning("ocr", "recognize failed: %v", err)
		return
	}

	res.SetMeta("text_confidence", quality.Score(res.Content))
	res.SetMeta("ocr_confidence", ocrRes.Confidence)
	if text := strings.TrimSpace(ocrRes.Text); text != "" {
		if res.Content != "" {
			res.Content += "\n"
		}
		res.Content += text
		res.SetMeta("ocr_applied", true)
	}
	res.Tables = append(res.Tables, ocrRes.Tables...)
}

// mergeOutcome copies a raw decoder outcome into the in-progress result.
func mergeOutcome(res *textract.Result, outcome *textract.RawOutcome) {
	if outcome == nil {
		return
	}
	res.Content = outcome.Content
	res.Tables = append(res.Tables, outcome.Tables...)
	for k, v := range outcome.Metadata {
		res.SetMeta(k, v)
	}
}
