package scanpool

import (
	"context"
	"sync"
)

// RunPass2Pool drives the parent-pointer verifier's pass 2 (spec.md §4.8/§5): one worker per AG,
// each owning its per-AG state exclusively, with no shared mutable state between workers except
// whatever gate is threaded through via ctx or closed over by task (the global name store is
// read-only once frozen and needs no lock here; see pkg/pptr.RunPass2's names parameter).
//
// This is RunPerGroup with workers left unbounded (one goroutine per AG), named separately because
// spec.md draws a hard line between the AG-scan pool (bounded, evidence-sharing) and the pass-2
// pool (unbounded, exclusive-per-AG) even though both reduce to the same bounded-fan-out
// primitive.
func RunPass2Pool(ctx context.Context, ags []int64, task func(ctx context.Context, ag int64) error) error {
	return RunPerGroup(ctx, ags, len(ags), task)
}

// InodeClusterGate is the process-wide mutex spec.md §5 requires around inode-cluster buffer
// acquisition when prefetch is disabled ("the userspace buffer cache is not otherwise re-entrant
// safe for the same cluster"). When prefetch is enabled, Acquire is a no-op: the prefetch
// subsystem's buffer-cache API is responsible for its own synchronization per spec.md §5 point 3.
type InodeClusterGate struct {
	prefetchEnabled bool
	mu              sync.Mutex
}

// NewInodeClusterGate builds a gate; prefetchEnabled disables the mutex entirely, since pass 2
// only needs it as a stand-in for the prefetch subsystem's own concurrency control.
func NewInodeClusterGate(prefetchEnabled bool) *InodeClusterGate {
	return &InodeClusterGate{prefetchEnabled: prefetchEnabled}
}

// Acquire runs fn with the process-wide inode-cluster mutex held, unless prefetch is enabled.
func (g *InodeClusterGate) Acquire(fn func() error) error {
	if g.prefetchEnabled {
		return fn()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}
