package upgrade

import (
	"fmt"

	"github.com/xrepair/xrepair/pkg/bulkload"
	"github.com/xrepair/xrepair/pkg/rmap"
)

const tenGiB = 10 * 1024 * 1024 * 1024

// groupRetentionFloor computes spec.md §4.9 step 4's per-group retention threshold:
// max(10% of group blocks, 10 GiB absolute). The absolute floor is what actually binds for a
// middle-sized group, where 10% of its blocks is smaller than 10 GiB; it falls away for very
// small groups (10% would exceed the group itself, so the percentage term wins trivially) and
// stops mattering for very large ones (10% alone already exceeds it).
func groupRetentionFloor(groupBlocks int64, blockSize uint32) int64 {
	pct := groupBlocks / 10
	if blockSize == 0 {
		return pct
	}
	absBlocks := int64(tenGiB / int64(blockSize))
	if absBlocks > pct {
		return absBlocks
	}
	return pct
}

// dummyReserve runs a scratch copy of a group's free-space index through bulkload.Reserve so the
// reservation's effect on remaining free space can be measured without mutating the real index —
// spec.md §4.9 step 4's "a dummy per-group reservation must succeed." A nil cfg means this
// feature set adds no new per-group metadata tree, so the dummy reservation is a no-op and the
// group's free space is simply its current Remaining().
func dummyReserve(g GroupInput) (remaining int64, err error) {
	if g.DummyGeometry == nil {
		return g.FreeSpace.Remaining(), nil
	}
	scratch := bulkload.NewInMemoryFreeSpace(g.FreeSpace.Extents())
	counter := func(reserved int64) int64 { return g.RecordCount }
	if _, err := bulkload.Reserve(*g.DummyGeometry, scratch, counter, nil, rmap.Owner{}); err != nil {
		return 0, err
	}
	return scratch.Remaining(), nil
}

func preflightGroups(groups []GroupInput, blockSize uint32) string {
	for _, g := range groups {
		remaining, err := dummyReserve(g)
		if err != nil {
			return fmt.Sprintf("group %d: dummy reservation failed: %v", g.SeqNo, err)
		}
		floor := groupRetentionFloor(g.TotalBlocks, blockSize)
		if remaining < floor {
			return fmt.Sprintf("group %d: only %d blocks would remain free, need at least %d", g.SeqNo, remaining, floor)
		}
	}
	return ""
}

func preflightWholeFilesystem(totalBlocks, freeBlocks int64, addingParentPointers bool) string {
	if totalBlocks <= 0 {
		return ""
	}
	pct := freeBlocks * 100 / totalBlocks
	if addingParentPointers && pct < 25 {
		return "not enough space to add parent pointers"
	}
	if pct < 10 {
		return "not enough free space for the requested feature upgrade"
	}
	return ""
}
