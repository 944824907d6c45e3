package scanpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPerGroupVisitsEveryGroupExactlyOnce(t *testing.T) {
	groups := GroupRange(8)
	var mu sync.Mutex
	seen := map[int64]int{}

	err := RunPerGroup(context.Background(), groups, 3, func(ctx context.Context, seqNo int64) error {
		mu.Lock()
		seen[seqNo]++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 8)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestRunPerGroupBoundsConcurrency(t *testing.T) {
	groups := GroupRange(20)
	var inFlight int32
	var maxSeen int32

	err := RunPerGroup(context.Background(), groups, 4, func(ctx context.Context, seqNo int64) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 4)
}

func TestRunPerGroupPropagatesFirstError(t *testing.T) {
	groups := GroupRange(5)
	boom := errors.New("group 3 exploded")

	err := RunPerGroup(context.Background(), groups, 0, func(ctx context.Context, seqNo int64) error {
		if seqNo == 3 {
			return boom
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exploded")
}

func TestRunPerGroupEmptyGroupsIsNoop(t *testing.T) {
	called := false
	err := RunPerGroup(context.Background(), nil, 4, func(ctx context.Context, seqNo int64) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRunPass2PoolRunsOneWorkerPerAG(t *testing.T) {
	ags := GroupRange(6)
	var mu sync.Mutex
	seen := map[int64]bool{}

	err := RunPass2Pool(context.Background(), ags, func(ctx context.Context, ag int64) error {
		mu.Lock()
		seen[ag] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 6)
}

func TestInodeClusterGateSerializesWhenPrefetchDisabled(t *testing.T) {
	gate := NewInodeClusterGate(false)
	var active int32
	var maxSeen int32

	err := RunPerGroup(context.Background(), GroupRange(10), 10, func(ctx context.Context, seqNo int64) error {
		return gate.Acquire(func() error {
			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxSeen)
				if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
					break
				}
			}
			atomic.AddInt32(&active, -1)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), maxSeen)
}

func TestInodeClusterGateBypassesLockWhenPrefetchEnabled(t *testing.T) {
	gate := NewInodeClusterGate(true)
	called := false
	err := gate.Acquire(func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
