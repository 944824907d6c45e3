// Package scanpool implements the repair engine's two fixed-size worker pools of spec.md §5: the
// initial AG scan (one task per group, a mutex-guarded slab insertion point for cross-AG
// evidence) and the parent-pointer verifier's pass-2 pool (one worker per AG, process-wide mutex
// for inode-cluster buffer acquisition when prefetch is disabled).
//
// Grounded on the teacher's fixed-worker-count downloadBlobs/worker pattern in
// pkg/vconvert/handler.go (a bounded pool draining a job channel with sync.WaitGroup), generalized
// from that pattern's log.Fatalf/os.Exit-on-error handling to golang.org/x/sync/errgroup's
// first-error-wins cancellation, since a repair run must report a typed failure rather than abort
// the process outright.
package scanpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunPerGroup runs task once for every group number in groups, across at most workers concurrent
// goroutines (workers <= 0 means "one goroutine per group"). It returns the first error any task
// returns; per errgroup's contract, ctx passed to every task is cancelled as soon as one task
// fails, so sibling tasks mid-flight can stop early at their next blocking I/O.
func RunPerGroup(ctx context.Context, groups []int64, workers int, task func(ctx context.Context, seqNo int64) error) error {
	if workers <= 0 || workers > len(groups) {
		workers = len(groups)
	}
	if workers == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)

	for _, seqNo := range groups {
		seqNo := seqNo
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			return task(gctx, seqNo)
		})
	}

	return g.Wait()
}
