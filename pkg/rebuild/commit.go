package rebuild

import (
	"sort"

	"github.com/xrepair/xrepair/pkg/bulkload"
	"github.com/xrepair/xrepair/pkg/rmap"
)

// blockRange is a half-open [start, end) block span, used to test AGFL membership in the OWN_AG
// bitmap without building a full bitmap.
type blockRange struct{ start, end int64 }

func ownAGRanges(recs []rmap.Record) []blockRange {
	ranges := make([]blockRange, len(recs))
	for i, r := range recs {
		ranges[i] = blockRange{start: r.StartBlock, end: r.End()}
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	return ranges
}

func covers(ranges []blockRange, block int64) bool {
	lo, hi := 0, len(ranges)
	for lo < hi {
		mid := (lo + hi) / 2
		if ranges[mid].end <= block {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(ranges) && ranges[lo].start <= block && block < ranges[lo].end
}

// CommitAGBtreeMappings implements spec.md §4.7 paragraph 2's rmap_commit_agbtree_mappings for one
// already-rebuilt group: it reads the group's just-written AGFL, diffs it against the in-core
// OWN_AG bitmap recorded while that group's trees were built (res.OwnAGRmaps), and calls insertRmap
// for every AGFL block the bulk loader didn't already account for — so the live rmap allocator
// picks up AGFL slots the loader claimed directly through InMemoryFreeSpace rather than through the
// rmap-tracked reservation protocol.
func CommitAGBtreeMappings(res GroupResult, insertRmap func(r rmap.Record) error) error {
	ranges := ownAGRanges(res.OwnAGRmaps)
	for _, b := range res.AGFL.Bnos {
		block := int64(b)
		if covers(ranges, block) {
			continue
		}
		if err := insertRmap(rmap.Record{
			StartBlock: block,
			BlockCount: 1,
			Owner:      rmap.Owner{Kind: rmap.OwnerAGMeta},
		}); err != nil {
			return err
		}
	}
	return nil
}

// FinishRebuild runs spec.md §4.7 paragraph 2 for the whole filesystem once every group has been
// rebuilt: commits AGFL-vs-OWN_AG rmap mappings for each group in turn, then drains any blocks the
// reservation protocol reserved but couldn't place anywhere (pkg/bulkload.LostBlocks) back into
// free-space via freeBlock.
func FinishRebuild(groups []GroupResult, insertRmap func(r rmap.Record) error, lost *bulkload.LostBlocks, freeBlock func(block int64) error) error {
	for _, g := range groups {
		if err := CommitAGBtreeMappings(g, insertRmap); err != nil {
			return err
		}
	}
	if lost == nil {
		return nil
	}
	return lost.Drain(freeBlock)
}
