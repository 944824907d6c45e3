package rebuild

import (
	"sort"

	"github.com/xrepair/xrepair/pkg/bulkload"
	"github.com/xrepair/xrepair/pkg/rmap"
	"github.com/xrepair/xrepair/pkg/xfile"
)

// treeFillConfig mirrors the fill targets newInMemoryTree's xfbtree.Config uses, so the geometry
// the bulk loader plans against matches the actual split thresholds of the tree it loads into.
const (
	treeMaxRecs = 32
	treeMinRecs = 16
)

// buildFreeSpaceTree builds the bno btree: keyed by starting block, its content is whatever free
// space remains in the shared index once its own storage has been carved out of it — the
// self-referential free-space-tree-describes-itself-after-its-own-cost convention spec.md §4.3's
// reservation protocol exists for.
func buildFreeSpaceTree(ctx *rebuildCtx) (BuiltTree, error) {
	counter := func(int64) int64 { return int64(ctx.fs.Count()) }
	res, err := bulkload.Reserve(geomConfig(ctx, treeMaxRecs, treeMinRecs), ctx.fs, counter, ctx.ownAGIdx, ctx.owner)
	if err != nil {
		return BuiltTree{}, err
	}

	extents := ctx.fs.Extents() // already start-sorted
	recs := make([][]byte, len(extents))
	for i, e := range extents {
		recs[i] = encodeAllocRec(e.Start, e.Length)
	}

	return loadTree("rebuild-bnobt", 8, allocRecSize, allocRecKey, recs, res)
}

// buildFreeSpaceTreeCnt builds the cnt btree: keyed by (length, start), same records as bno but
// resorted, captured after its own (separate) storage cost has further shrunk the shared index.
func buildFreeSpaceTreeCnt(ctx *rebuildCtx) (BuiltTree, error) {
	counter := func(int64) int64 { return int64(ctx.fs.Count()) }
	res, err := bulkload.Reserve(geomConfig(ctx, treeMaxRecs, treeMinRecs), ctx.fs, counter, ctx.ownAGIdx, ctx.owner)
	if err != nil {
		return BuiltTree{}, err
	}

	extents := ctx.fs.Extents()
	sort.Slice(extents, func(i, j int) bool {
		if extents[i].Length != extents[j].Length {
			return extents[i].Length < extents[j].Length
		}
		return extents[i].Start < extents[j].Start
	})
	recs := make([][]byte, len(extents))
	for i, e := range extents {
		recs[i] = encodeAllocRecCnt(e.Start, e.Length)
	}

	return loadTree("rebuild-cntbt", 8, allocRecSize, allocRecCntKey, recs, res)
}

// buildInodeTree builds inobt (finoOnly == false) or finobt (finoOnly == true) from the in-core
// inode tracking chunks, per spec.md §4.7 step 2.
func buildInodeTree(ctx *rebuildCtx, chunks []InodeChunk, finoOnly bool) (BuiltTree, error) {
	var filtered []InodeChunk
	for _, c := range chunks {
		if finoOnly && c.FreeCount == 0 {
			continue
		}
		filtered = append(filtered, c)
	}

	counter := func(int64) int64 { return int64(len(filtered)) }
	res, err := bulkload.Reserve(geomConfig(ctx, treeMaxRecs, treeMinRecs), ctx.fs, counter, ctx.ownAGIdx, ctx.owner)
	if err != nil {
		return BuiltTree{}, err
	}

	recs := make([][]byte, len(filtered))
	for i, c := range filtered {
		recs[i] = encodeInodeChunk(c)
	}

	descr := "rebuild-inobt"
	if finoOnly {
		descr = "rebuild-finobt"
	}
	return loadTree(descr, 8, inodeChunkRecSize, inodeChunkKey, recs, res)
}

// buildRmapTree builds rmapbt from the incore rmap index's non-agbtree records plus the
// agbtree-block rmaps recorded while building bno/cnt/ino/fino (spec.md §4.7 step 3). Its own
// storage draw is not itself rmap-tracked (rmapIdx is nil), so the rmapbt's records do not describe
// its own blocks; rmap_commit_agbtree_mappings later adds rmaps for AGFL blocks only.
func buildRmapTree(ctx *rebuildCtx, nonAGBtree []rmap.Record) (BuiltTree, error) {
	ownAG, err := ctx.ownAGIdx.All()
	if err != nil {
		return BuiltTree{}, err
	}

	combined := make([]rmap.Record, 0, len(nonAGBtree)+len(ownAG))
	combined = append(combined, nonAGBtree...)
	combined = append(combined, ownAG...)
	sort.Slice(combined, func(i, j int) bool { return combined[i].StartBlock < combined[j].StartBlock })

	counter := func(int64) int64 { return int64(len(combined)) }
	res, err := bulkload.Reserve(geomConfig(ctx, treeMaxRecs, treeMinRecs), ctx.fs, counter, nil, rmap.Owner{})
	if err != nil {
		return BuiltTree{}, err
	}

	recs := make([][]byte, len(combined))
	for i, r := range combined {
		recs[i] = encodeRmapRec(r)
	}

	return loadTree("rebuild-rmapbt", 8, rmapRecSize, rmapRecKey, recs, res)
}

// buildRefcountTree builds refcountbt from the derived refcount slab, per spec.md §4.7 step 4.
func buildRefcountTree(ctx *rebuildCtx, in []rmap.RefcountRecord) (BuiltTree, error) {
	sorted := make([]rmap.RefcountRecord, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartBlock < sorted[j].StartBlock })

	counter := func(int64) int64 { return int64(len(sorted)) }
	res, err := bulkload.Reserve(geomConfig(ctx, treeMaxRecs, treeMinRecs), ctx.fs, counter, ctx.ownAGIdx, ctx.owner)
	if err != nil {
		return BuiltTree{}, err
	}

	recs := make([][]byte, len(sorted))
	for i, r := range sorted {
		recs[i] = encodeRefcountRec(r)
	}

	return loadTree("rebuild-refcountbt", 4, refcountRecSize, refcountRecKey, recs, res)
}

// loadTree runs the bulk loader against an already-converged reservation and wraps the outcome as
// a BuiltTree.
func loadTree(descr string, keySize, recSize int, keyOf func([]byte) []byte, recs [][]byte, res bulkload.Reservation) (BuiltTree, error) {
	tree, err := newInMemoryTree(xfile.Descr(descr), keySize, recSize, keyOf)
	if err != nil {
		return BuiltTree{}, err
	}

	claimer := bulkload.NewReservationClaimer(res.Blocks)
	src := bulkload.NewSliceSource(recs)
	if err := bulkload.Load(tree, res.Geometry, src, claimer, keyOf); err != nil {
		return BuiltTree{}, err
	}

	return BuiltTree{Tree: tree, Root: tree.Root(), Height: tree.Height(), NrBlocks: res.Geometry.NrBlocks}, nil
}
