package rebuild

import (
	"github.com/xrepair/xrepair/internal/xferrors"
	"github.com/xrepair/xrepair/pkg/bulkload"
)

// fixFreelist implements spec.md §4.7 step 7: top the per-group freelist (AGFL) up to its target
// capacity out of whatever free space remains once every other tree has been built, without
// touching the rmapbt (fixFreelist never calls into rmap bookkeeping — the rmapbt's own storage is
// reconciled separately by rmap_commit_agbtree_mappings, once the AGFL's final contents are known).
//
// Grounded on the same smallest-extent-first claim pattern bulkload.Reserve uses, generalized here
// to a bounded-size buffer instead of an unbounded reservation list.
func fixFreelist(fs *bulkload.InMemoryFreeSpace, capacity int) ([]int64, error) {
	agfl := bulkload.NewAGFL(capacity)
	for len(agfl.Blocks()) < capacity {
		start, _, ok := fs.Smallest()
		if !ok {
			return nil, xferrors.New(xferrors.KindNoSpace, "rebuild: no free space left to fill the AG freelist")
		}
		if err := fs.Claim(start, 1); err != nil {
			return nil, err
		}
		agfl.Offer(start)
	}
	return agfl.Blocks(), nil
}
