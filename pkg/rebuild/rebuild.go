// Package rebuild implements the AG/RTG rebuild driver of spec.md §4.7: given everything the
// scanner reconstructed in-core for one group — its free-space extents, inode tracking chunks,
// rmap records, and derived refcounts — build every per-group btree fresh via the bulk loader and
// write the AGF/AGI/AGFL headers that point at them.
//
// Grounded on the teacher's per-group orchestration in pkg/xfs/xfs.go's writeAllocGroups loop
// (the same "for each group, lay out this group's metadata, then write its header" shape), with
// the five btree builds per group replacing the teacher's fixed bitmap/inode-btree layout.
package rebuild

import (
	"github.com/xrepair/xrepair/internal/xferrors"
	"github.com/xrepair/xrepair/pkg/bulkload"
	"github.com/xrepair/xrepair/pkg/geometry"
	"github.com/xrepair/xrepair/pkg/membuf"
	"github.com/xrepair/xrepair/pkg/rmap"
	"github.com/xrepair/xrepair/pkg/xfbtree"
	"github.com/xrepair/xrepair/pkg/xfile"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// GroupInput is everything the scanner produced in-core for one group, the input to a rebuild.
type GroupInput struct {
	SeqNo       int64
	Length      int64 // group length in blocks, for AGF.Length/AGI.Length
	FreeExtents []FreeExtent
	InodeChunks []InodeChunk
	RmapRecords []rmap.Record // the incore rmap index's non-agbtree-block records for this group
	Refcounts   []rmap.RefcountRecord

	AGFLCapacity int // spec.md §4.1's per-AG freelist slot budget

	// LowSpace forces every tree in this group to pack tight (spec.md §4.3), when free blocks
	// fall under 10% of group length.
	LowSpace bool
}

// BuiltTree is one rebuilt per-group btree: its in-memory tree plus the header fields an AGF/AGI
// entry needs.
type BuiltTree struct {
	Tree     *xfbtree.Tree
	Root     int64
	Height   int
	NrBlocks int64
}

// GroupResult is the outcome of rebuilding one group: the five btrees, the headers ready to
// write, and the blocks still owed to free-space after the freelist fixup.
type GroupResult struct {
	SeqNo int64

	Bno, Cnt, Ino, Fino, Rmap, Refcount BuiltTree

	AGF  xfsfmt.AGF
	AGI  xfsfmt.AGI
	AGFL xfsfmt.AGFL

	// OwnAGRmaps are the rmaps recorded for bno/cnt/ino/fino/refcount's own storage blocks,
	// spec.md §4.7's "agbtree-block rmaps recorded during the earlier allocations". Those of
	// bno/cnt/ino/fino are fed into the rmapbt build; refcount's are recorded after rmapbt is
	// built and are not in it. All of them are later diffed against the AGFL by
	// rmap_commit_agbtree_mappings.
	OwnAGRmaps []rmap.Record

	// LostBlocks is left for the filesystem-wide driver to populate: once every group is rebuilt,
	// rmap_commit_agbtree_mappings may find blocks no surviving rmap claims, and those get drained
	// into free-space as the final step of spec.md §4.7's paragraph 2. RebuildGroup never finds any
	// on its own — a single group's reservation protocol claims exactly what its geometry converged
	// on, nothing more.
	LostBlocks []int64
}

// rebuildCtx carries the one shared free-space index, the shared own-AG rmap accumulator, and the
// owner tag through a group's build, so each tree's reservation depletes the same free-space pool
// the next tree draws from, per spec.md §4.7's ordering: bno/cnt, then ino/fino, then rmapbt, then
// refcountbt. ownAGIdx is populated automatically by bulkload.Reserve (spec.md §4.3's reservation
// protocol already records an rmap per claimed block when handed an index); rmapbt's own build
// passes a nil index instead, since a fresh rmapbt's own storage is not recorded as an rmap of
// itself (spec.md §4.7: "fresh and must not be logically edited through allocator paths").
type rebuildCtx struct {
	fs       *bulkload.InMemoryFreeSpace
	ownAGIdx *rmap.Index
	owner    rmap.Owner
	lowSpace bool
}

// RebuildGroup runs spec.md §4.7 steps 1-7 for one group: builds bnobt, cntbt, inobt, finobt,
// rmapbt, and refcountbt via compute_geometry/reserve_blocks convergence and the bulk loader, tops
// up the AGFL out of whatever free space is left, and assembles the AGF/AGI/AGFL headers.
// rmap_commit_agbtree_mappings and the final lost-blocks drain run once every group in the
// filesystem has been rebuilt, outside RebuildGroup.
func RebuildGroup(in GroupInput) (GroupResult, error) {
	fs := bulkload.NewInMemoryFreeSpace(toStructSlice(in.FreeExtents))

	ownAGStore, err := xfile.Create("rebuild-own-ag-rmaps")
	if err != nil {
		return GroupResult{}, err
	}
	ownAGIdx := rmap.NewIndex(membuf.NewTarget(ownAGStore, xfile.BlockSize))

	ctx := &rebuildCtx{fs: fs, ownAGIdx: ownAGIdx, owner: rmap.Owner{Kind: rmap.OwnerAG}, lowSpace: in.LowSpace}

	bno, err := buildFreeSpaceTree(ctx)
	if err != nil {
		return GroupResult{}, xferrors.Wrap(xferrors.KindCorruption, "rebuild: bnobt", err)
	}
	cnt, err := buildFreeSpaceTreeCnt(ctx)
	if err != nil {
		return GroupResult{}, xferrors.Wrap(xferrors.KindCorruption, "rebuild: cntbt", err)
	}

	ino, err := buildInodeTree(ctx, in.InodeChunks, false)
	if err != nil {
		return GroupResult{}, xferrors.Wrap(xferrors.KindCorruption, "rebuild: inobt", err)
	}
	fino, err := buildInodeTree(ctx, in.InodeChunks, true)
	if err != nil {
		return GroupResult{}, xferrors.Wrap(xferrors.KindCorruption, "rebuild: finobt", err)
	}

	rmapTree, err := buildRmapTree(ctx, in.RmapRecords)
	if err != nil {
		return GroupResult{}, xferrors.Wrap(xferrors.KindCorruption, "rebuild: rmapbt", err)
	}

	refcTree, err := buildRefcountTree(ctx, in.Refcounts)
	if err != nil {
		return GroupResult{}, xferrors.Wrap(xferrors.KindCorruption, "rebuild: refcountbt", err)
	}

	agflCapacity := in.AGFLCapacity
	if agflCapacity == 0 {
		agflCapacity = defaultAGFLCapacity
	}
	agflBlocks, err := fixFreelist(fs, agflCapacity)
	if err != nil {
		return GroupResult{}, xferrors.Wrap(xferrors.KindCorruption, "rebuild: freelist fixup", err)
	}

	freeBlocks := fs.Remaining()
	btreeBlocks := uint32(bno.NrBlocks + cnt.NrBlocks + ino.NrBlocks + fino.NrBlocks)
	var longest int64
	for _, e := range fs.Extents() {
		if e.Length > longest {
			longest = e.Length
		}
	}

	ownAGRmaps, err := ownAGIdx.All()
	if err != nil {
		return GroupResult{}, err
	}

	agf := xfsfmt.AGF{
		Magic: xfsfmt.AGFMagicNumber, Version: xfsfmt.AGFVersion, SeqNo: uint32(in.SeqNo),
		Length:         uint32(in.Length),
		Roots:          [2]uint32{uint32(bno.Root), uint32(cnt.Root)},
		Levels:         [2]uint32{uint32(bno.Height), uint32(cnt.Height)},
		FreeBlocks:     uint32(freeBlocks),
		Longest:        uint32(longest),
		BTreeBlocks:    btreeBlocks,
		RmapRoot:       uint32(rmapTree.Root),
		RmapLevel:      uint32(rmapTree.Height),
		RmapBlocks:     uint32(rmapTree.NrBlocks),
		RefcountRoot:   uint32(refcTree.Root),
		RefcountLevel:  uint32(refcTree.Height),
		RefcountBlocks: uint32(refcTree.NrBlocks),
	}

	agi := xfsfmt.AGI{
		Magic: xfsfmt.AGIMagicNumber, Version: xfsfmt.AGIVersion, SeqNo: uint32(in.SeqNo),
		Length: uint32(in.Length),
		Root:   uint32(ino.Root), Level: uint32(ino.Height),
		FreeRoot: uint32(fino.Root), FreeLevel: uint32(fino.Height),
		Count:     uint32(len(in.InodeChunks) * 64),
		FreeCount: sumFree(in.InodeChunks),
	}
	for i := range agi.Unlinked {
		agi.Unlinked[i] = 0xffffffff // NULLAGINO: no unlinked-inode bucket populated by a rebuild
	}

	agfl := xfsfmt.AGFL{SeqNo: uint32(in.SeqNo)}
	agfl.Bnos = make([]uint32, len(agflBlocks))
	for i, b := range agflBlocks {
		agfl.Bnos[i] = uint32(b)
	}
	agf.FLFirst, agf.FLLast, agf.FLCount = 0, uint32(len(agflBlocks)), uint32(len(agflBlocks))

	return GroupResult{
		SeqNo: in.SeqNo,
		Bno: bno, Cnt: cnt, Ino: ino, Fino: fino, Rmap: rmapTree, Refcount: refcTree,
		AGF: agf, AGI: agi, AGFL: agfl,
		OwnAGRmaps: ownAGRmaps,
	}, nil
}

// defaultAGFLCapacity is the per-AG freelist slot budget spec.md §4.1 leaves up to the
// implementation; 4 blocks matches the minimum XFS_MIN_FREELIST a single-level bno/cnt btree pair
// ever needs for forward progress.
const defaultAGFLCapacity = 4

func toStructSlice(exts []FreeExtent) []struct{ Start, Length int64 } {
	out := make([]struct{ Start, Length int64 }, len(exts))
	for i, e := range exts {
		out[i] = struct{ Start, Length int64 }{Start: e.Start, Length: e.Length}
	}
	return out
}

func sumFree(chunks []InodeChunk) uint32 {
	var n int64
	for _, c := range chunks {
		n += c.FreeCount
	}
	return uint32(n)
}

func newInMemoryTree(descr xfile.Descr, keySize, recSize int, keyOf func([]byte) []byte) (*xfbtree.Tree, error) {
	store, err := xfile.Create(descr)
	if err != nil {
		return nil, err
	}
	target := membuf.NewTarget(store, xfile.BlockSize)
	return xfbtree.New(xfbtree.Config{
		Target: target, BlockSize: xfile.BlockSize, OwnerTag: 1, Pointer: xfbtree.ShortPointer,
		KeySize: keySize, RecSize: recSize, KeyOf: keyOf,
		MinRecsLeaf: 16, MaxRecsLeaf: 32, MinRecsNode: 16, MaxRecsNode: 32,
	}), nil
}

func geomConfig(ctx *rebuildCtx, maxRecs, minRecs int64) geometry.Config {
	return geometry.Config{
		LeafMaxRecs: maxRecs, LeafMinRecs: minRecs,
		NodeMaxRecs: maxRecs, NodeMinRecs: minRecs,
		LowSpace: ctx.lowSpace,
	}
}
