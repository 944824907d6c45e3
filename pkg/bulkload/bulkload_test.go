package bulkload

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrepair/xrepair/pkg/geometry"
	"github.com/xrepair/xrepair/pkg/membuf"
	"github.com/xrepair/xrepair/pkg/rmap"
	"github.com/xrepair/xrepair/pkg/slab"
	"github.com/xrepair/xrepair/pkg/xfbtree"
	"github.com/xrepair/xrepair/pkg/xfile"
)

func lostCfg() slab.Config { return slab.Config{} }

func encodeU64Rec(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func newTestTree(t *testing.T) *xfbtree.Tree {
	store, err := xfile.Create("test-bulkload")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Destroy() })
	target := membuf.NewTarget(store, xfile.BlockSize)
	return xfbtree.New(xfbtree.Config{
		Target: target, BlockSize: xfile.BlockSize, OwnerTag: 1,
		Pointer: xfbtree.ShortPointer, KeySize: 8, RecSize: 8,
		KeyOf:       func(rec []byte) []byte { return rec },
		MinRecsLeaf: 2, MaxRecsLeaf: 4, MinRecsNode: 2, MaxRecsNode: 4,
	})
}

// TestLoadScenarioCGeometry mirrors spec.md Scenario C (100 leaf blocks, 2 node blocks, 102 total,
// height 3) by wiring geometry.ComputeGeometry straight into the bulk loader and checking the
// claimer consumes exactly nr_blocks blocks while the tree still ends up at the right height.
func TestLoadScenarioCGeometry(t *testing.T) {
	cfg := geometry.Config{
		LeafMaxRecs: 100, LeafMinRecs: 50,
		NodeMaxRecs: 50, NodeMinRecs: 25,
		LeafSlack: zero(), NodeSlack: zero(),
	}
	geo, err := geometry.ComputeGeometry(cfg, 10000)
	require.NoError(t, err)
	require.Equal(t, int64(102), geo.NrBlocks)
	require.Equal(t, 3, geo.Height)

	tree := newTestTree(t)

	var recs [][]byte
	for i := uint64(0); i < 10000; i++ {
		recs = append(recs, encodeU64Rec(i))
	}
	src := NewSliceSource(recs)

	claimed := make([]int64, 0, geo.NrBlocks)
	var next int64 = 1000
	claimer := BlockClaimerFunc(func() (int64, error) {
		off := next
		next++
		claimed = append(claimed, off)
		return off, nil
	})

	require.NoError(t, Load(tree, geo, src, claimer, func(rec []byte) []byte { return rec }))
	assert.Len(t, claimed, int(geo.NrBlocks))
	assert.Equal(t, 3, tree.Height())
	assert.NotZero(t, tree.Root())

	got, ok, err := tree.Lookup(xfbtree.OpEQ, encodeU64Rec(0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, encodeU64Rec(0), got)
}

func zero() *int64 { z := int64(0); return &z }

// TestReserveConvergesOnStableDemand exercises the feedback case from spec.md §4.3: claiming
// blocks reduces the remaining free-space record count, and the loop must converge once
// compute_geometry stops shrinking.
func TestReserveConvergesOnStableDemand(t *testing.T) {
	fs := NewInMemoryFreeSpace([]struct{ Start, Length int64 }{
		{Start: 0, Length: 5}, {Start: 100, Length: 50},
	})

	cfg := geometry.Config{LeafMaxRecs: 4, LeafMinRecs: 2, NodeMaxRecs: 4, NodeMinRecs: 2}

	// Each reserved block removes one free-space record from the tracked count, but never below 1.
	counter := func(reserved int64) int64 {
		remaining := int64(55) - reserved
		if remaining < 1 {
			remaining = 1
		}
		return remaining
	}

	res, err := Reserve(cfg, fs, counter, nil, rmap.Owner{})
	require.NoError(t, err)
	// 55 records need 19+7+3 blocks (root excluded); claiming those 29 leaves 26 records, which
	// need 9+3. Claimed blocks are not given back, so 17 of them are surplus.
	assert.Equal(t, int64(12), res.Geometry.NrBlocks)
	assert.Len(t, res.Blocks, 29)
	assert.Len(t, Surplus(res), 17)
}

func TestReserveAccountsOwnAGRmaps(t *testing.T) {
	fs := NewInMemoryFreeSpace([]struct{ Start, Length int64 }{{Start: 0, Length: 20}})
	cfg := geometry.Config{LeafMaxRecs: 4, LeafMinRecs: 2, NodeMaxRecs: 4, NodeMinRecs: 2}
	counter := func(reserved int64) int64 { return 8 }

	store, err := xfile.Create("test-reserve-rmap")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Destroy() })
	target := membuf.NewTarget(store, xfile.BlockSize)
	idx := rmap.NewIndex(target)

	res, err := Reserve(cfg, fs, counter, idx, rmap.Owner{Kind: rmap.OwnerAG})
	require.NoError(t, err)

	all, err := idx.All()
	require.NoError(t, err)
	// The claimed blocks are contiguous with one owner, so the index merges them into one record.
	var claimed int64
	for _, r := range all {
		claimed += r.BlockCount
	}
	assert.Equal(t, res.Geometry.NrBlocks, claimed)
	assert.Len(t, all, 1)
}

func TestReserveErrorsOnInsufficientFreeSpace(t *testing.T) {
	fs := NewInMemoryFreeSpace([]struct{ Start, Length int64 }{{Start: 0, Length: 2}})
	cfg := geometry.Config{LeafMaxRecs: 4, LeafMinRecs: 2, NodeMaxRecs: 4, NodeMinRecs: 2}
	counter := func(reserved int64) int64 { return 1000 }

	_, err := Reserve(cfg, fs, counter, nil, rmap.Owner{})
	assert.Error(t, err)
}

func TestDistributeSurplusFillsAGFLThenLost(t *testing.T) {
	agfl := NewAGFL(2)
	lost := NewLostBlocks(lostCfg())

	require.NoError(t, DistributeSurplus([]int64{1, 2, 3, 4}, agfl, lost))
	assert.Equal(t, []int64{1, 2}, agfl.Blocks())
	assert.Equal(t, int64(2), lost.Len())
}

func TestLostBlocksDrainInOrder(t *testing.T) {
	lost := NewLostBlocks(lostCfg())
	require.NoError(t, lost.Add(5))
	require.NoError(t, lost.Add(9))

	var freed []int64
	require.NoError(t, lost.Drain(func(b int64) error {
		freed = append(freed, b)
		return nil
	}))
	assert.Equal(t, []int64{5, 9}, freed)
}
