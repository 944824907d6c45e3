package rebuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrepair/xrepair/pkg/rmap"
	"github.com/xrepair/xrepair/pkg/xfbtree"
)

func smallGroup() GroupInput {
	return GroupInput{
		SeqNo:  0,
		Length: 10000,
		FreeExtents: []FreeExtent{
			{Start: 1000, Length: 4000},
		},
		InodeChunks: []InodeChunk{
			{StartIno: 0, FreeCount: 64, FreeMask: 0xffffffffffffffff},
			{StartIno: 64, FreeCount: 10, FreeMask: 0x3ff},
		},
		RmapRecords: []rmap.Record{
			{StartBlock: 5000, BlockCount: 4, Owner: rmap.Owner{Kind: rmap.OwnerInode, Ino: 128}},
			{StartBlock: 5010, BlockCount: 2, Owner: rmap.Owner{Kind: rmap.OwnerInode, Ino: 129}},
		},
		Refcounts: []rmap.RefcountRecord{
			{StartBlock: 5000, BlockCount: 4, Refcount: 2},
		},
	}
}

// TestRebuildGroupBuildsAllTrees exercises spec.md §4.7 steps 1-6: every tree comes back with a
// nonzero root and the AGF/AGI headers point at them.
func TestRebuildGroupBuildsAllTrees(t *testing.T) {
	res, err := RebuildGroup(smallGroup())
	require.NoError(t, err)

	assert.NotZero(t, res.Bno.Root)
	assert.NotZero(t, res.Cnt.Root)
	assert.NotZero(t, res.Ino.Root)
	assert.NotZero(t, res.Rmap.Root)
	assert.NotZero(t, res.Refcount.Root)

	assert.Equal(t, uint32(res.Bno.Root), res.AGF.Roots[0])
	assert.Equal(t, uint32(res.Cnt.Root), res.AGF.Roots[1])
	assert.Equal(t, uint32(res.Ino.Root), res.AGI.Root)
	assert.Equal(t, uint32(res.Rmap.Root), res.AGF.RmapRoot)
	assert.Equal(t, uint32(res.Refcount.Root), res.AGF.RefcountRoot)
}

// finobt is built only from chunks that still have free inodes; a fully-used chunk (FreeCount 0)
// must not appear in it, per spec.md §4.7 step 2.
func TestRebuildGroupFinobtExcludesFullChunks(t *testing.T) {
	in := smallGroup()
	in.InodeChunks = append(in.InodeChunks, InodeChunk{StartIno: 128, FreeCount: 0, FreeMask: 0})

	res, err := RebuildGroup(in)
	require.NoError(t, err)

	assert.NotZero(t, res.Fino.Root)
	// AGI.Count covers every allocated chunk, the full one included.
	assert.Equal(t, uint32(3*64), res.AGI.Count)

	finoRecs := 0
	require.NoError(t, res.Fino.Tree.VisitBlocks(xfbtree.VisitRecords, func(p [][]byte) error {
		finoRecs += len(p)
		return nil
	}))
	assert.Equal(t, 2, finoRecs)
}

// TestRebuildGroupFillsFreelistToCapacity covers spec.md §4.7 step 7: the AGFL comes back at
// exactly the requested capacity, each slot claimed out of the group's free space.
func TestRebuildGroupFillsFreelistToCapacity(t *testing.T) {
	in := smallGroup()
	in.AGFLCapacity = 3

	res, err := RebuildGroup(in)
	require.NoError(t, err)

	assert.Len(t, res.AGFL.Bnos, 3)
	assert.Equal(t, uint32(3), res.AGF.FLCount)
	assert.Equal(t, uint32(0), res.AGF.FLFirst)
	assert.Equal(t, uint32(3), res.AGF.FLLast)
}

// TestRebuildGroupDefaultsFreelistCapacity covers the zero-value AGFLCapacity fallback.
func TestRebuildGroupDefaultsFreelistCapacity(t *testing.T) {
	res, err := RebuildGroup(smallGroup())
	require.NoError(t, err)
	assert.Len(t, res.AGFL.Bnos, defaultAGFLCapacity)
}

// TestRebuildGroupRecordsOwnAGRmaps covers spec.md §4.7 step 3's "agbtree-block rmaps recorded
// during the earlier allocations" — every tree but rmapbt threads the shared owner index, so its
// own storage draw shows up in OwnAGRmaps once the group is built.
func TestRebuildGroupRecordsOwnAGRmaps(t *testing.T) {
	res, err := RebuildGroup(smallGroup())
	require.NoError(t, err)
	assert.NotEmpty(t, res.OwnAGRmaps)

	var claimed int64
	for _, r := range res.OwnAGRmaps {
		claimed += r.BlockCount
	}
	wantBlocks := res.Bno.NrBlocks + res.Cnt.NrBlocks + res.Ino.NrBlocks + res.Fino.NrBlocks + res.Refcount.NrBlocks
	assert.Equal(t, wantBlocks, claimed)
}

// TestRebuildGroupErrorsWhenFreeSpaceExhausted covers the case where the group's free extents
// can't cover even the btree builds, let alone the freelist top-up.
func TestRebuildGroupErrorsWhenFreeSpaceExhausted(t *testing.T) {
	in := smallGroup()
	in.FreeExtents = []FreeExtent{{Start: 1000, Length: 1}}

	_, err := RebuildGroup(in)
	assert.Error(t, err)
}
