package ai

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// BatchProgress reports batch completion status to an optional observer.
// Callbacks are purely observational; a nil callback is always legal.
type BatchProgress struct {
	Completed int
	Total     int
	Failed    int
}

// BatchItem is one request in a batch submission, matched back to its
// result by ID.
type BatchItem struct {
	ID     string
	Prompt string
}

// BatchResult is the per-item outcome of a batch submission. A missing or
// malformed result for an item means the caller falls back to its
// deterministic path for that item only.
type BatchResult struct {
	ID     string
	Output string
	Err    error
}

// BatchFacility is the optional bulk-invocation capability used by the
// verifier's batched strategy. Implementations wrap a provider batch API;
// the pipeline only requires an availability check plus submit-and-wait.
type BatchFacility interface {
	// Available reports whether the facility can currently accept work.
	Available() bool

	// SubmitAndWait submits all items as one request set and blocks until
	// every item has a result or the context is done. The returned slice
	// need not be ordered; callers match results by ID. progress may be nil.
	SubmitAndWait(ctx context.Context, task Task, items []BatchItem, progress func(BatchProgress)) ([]BatchResult, error)
}

// InvokerBatch implements BatchFacility as a concurrent fan-out over an
// Invoker. Per-item failures land in the item's BatchResult.Err; only a
// cancelled context fails the whole submission.
type InvokerBatch struct {
	invoker     Invoker
	concurrency int
}

var _ BatchFacility = (*InvokerBatch)(nil)

// NewInvokerBatch wraps invoker as a batch facility. concurrency bounds
// in-flight calls; values below 1 default to 4.
func NewInvokerBatch(invoker Invoker, concurrency int) *InvokerBatch {
	if concurrency < 1 {
		concurrency = 4
	}
	return &InvokerBatch{invoker: invoker, concurrency: concurrency}
}

// Available implements BatchFacility.
func (b *InvokerBatch) Available() bool {
	return b.invoker != nil
}

// SubmitAndWait implements BatchFacility.
func (b *InvokerBatch) SubmitAndWait(ctx context.Context, task Task, items []BatchItem, progress func(BatchProgress)) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	var completed, failed atomic.Int64
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := b.invoker.Invoke(gctx, Request{
				Messages: []Message{{Role: "user", Content: item.Prompt}},
				Task:     task,
			})
			results[i] = BatchResult{ID: item.ID, Output: out, Err: err}
			completed.Add(1)
			if err != nil {
				failed.Add(1)
			}
			if progress != nil {
				progressMu.Lock()
				progress(BatchProgress{
					Completed: int(completed.Load()),
					Total:     len(items),
					Failed:    int(failed.Load()),
				})
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
