package pipeline

import (
	"context"
	"fmt"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// dispatch resolves the highest-priority decoder for f and invokes it. A
// decoder panic is converted into an ExtractionError carrying the format;
// an unclassified fault never propagates past this point as a panic.
// Decoder errors themselves pass through untouched so the fallback
// orchestrator can classify them (password, stream corruption, ...).
func (p *Pipeline) dispatch(ctx context.Context, src *textract.Source, f format.Format, cfg *textract.Config) (outcome *textract.RawOutcome, err error) {
	dec, err := p.reg.ResolveDecoder(f)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("decoder panic", "decoder", dec.Name(), "format", f, "panic", r)
			outcome = nil
			err = &textract.ExtractionError{
				Format: f,
				Err:    fmt.Errorf("decoder %s panicked: %v", dec.Name(), r),
			}
		}
	}()

	return dec.Extract(ctx, src, f, cfg)
}
