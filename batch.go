package filings

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers keeps aggregate request pressure comfortably under the
	// archive's rate ceiling even with retry bursts.
	DefaultWorkers = 2
	maxWorkers     = 3
)

// BatchResult collects the outcome of processing many filings. Failed
// filings are reported, never retried; a failure on one filing does not
// stop the rest.
type BatchResult struct {
	Results []*Result
	Errors  []error
}

// ProcessBatch runs the pipeline over many filings with a bounded worker
// pool. Workers share the pipeline's fetch client, so the archive sees one
// rate-limited request stream regardless of worker count.
func (p *Pipeline) ProcessBatch(ctx context.Context, refs []FilingRef, workers int) *BatchResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	batch := &BatchResult{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			res, err := p.Process(ctx, ref)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Error("filing failed",
					"ticker", ref.Ticker, "accession", ref.AccessionNumber, "err", err)
				batch.Errors = append(batch.Errors,
					fmt.Errorf("%s %s: %w", ref.Ticker, ref.AccessionNumber, err))
				return nil // abandon this filing, keep the batch going
			}
			batch.Results = append(batch.Results, res)
			return nil
		})
	}
	g.Wait()

	return batch
}
