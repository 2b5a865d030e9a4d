package pipeline

import (
	"context"
	"sync"

	"github.com/hazyhaar/textract"
)

// BatchItem is one slot of a batch outcome: either a result or an error,
// at the index of the source that produced it.
type BatchItem struct {
	Result *textract.Result `json:"result,omitempty"`
	Err    error            `json:"-"`
}

// ExtractBatch fans srcs out over a bounded pool of workers and returns
// one slot per source, in input order regardless of completion order.
// A failing item never cancels its siblings: each slot captures its own
// success or error independently. Concurrency is bounded by
// cfg.MaxConcurrency via a semaphore channel.
func (p *Pipeline) ExtractBatch(ctx context.Context, srcs []*textract.Source, cfg *textract.Config) []BatchItem {
	cfg = p.requestConfig(cfg)

	results := make([]BatchItem, len(srcs))
	sem := make(chan struct{}, cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for i, src := range srcs {
		wg.Add(1)
		go func(i int, src *textract.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := p.Extract(ctx, src, cfg)
			results[i] = BatchItem{Result: res, Err: err}
		}(i, src)
	}

	wg.Wait()
	return results
}
