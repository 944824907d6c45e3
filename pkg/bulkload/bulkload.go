// Package bulkload implements the bulk btree loader of spec.md §4.3: given a precomputed
// geometry, a reservation of claimed blocks, and a sorted record stream, build a tree bottom-up
// in a single pass and install its root.
//
// Grounded on the teacher's single retry-until-stable convergence loop in
// pkg/xfs/xfs.go's calculateMinimumSize (the `for { ...; if ... { break }; next++ }` pattern
// used there to converge a directory's extent count against its own growing block demand);
// pkg/bulkload/reserve.go generalizes that same shape to free-space reservation instead of
// directory sizing.
package bulkload

import (
	"github.com/xrepair/xrepair/internal/xferrors"
	"github.com/xrepair/xrepair/pkg/geometry"
	"github.com/xrepair/xrepair/pkg/xfbtree"
)

// RecordSource streams records in sorted key order, spec.md §4.3's "record-producing callback".
// Next returns ok=false once every record has been produced.
type RecordSource interface {
	Next() (rec []byte, ok bool, err error)
}

// SliceSource adapts an in-memory, already-sorted record slice to RecordSource.
type SliceSource struct {
	i   int
	raw [][]byte
}

// NewSliceSource wraps a slice of already-encoded, sorted records.
func NewSliceSource(recs [][]byte) *SliceSource {
	return &SliceSource{raw: recs}
}

func (s *SliceSource) Next() ([]byte, bool, error) {
	if s.i >= len(s.raw) {
		return nil, false, nil
	}
	rec := s.raw[s.i]
	s.i++
	return rec, true, nil
}

// BlockClaimer hands out pre-reserved block addresses, spec.md §4.3's "block-claiming callback":
// "Block addresses are obtained by calling claim_block, which in turn consumes the bulk-load
// reservation list."
type BlockClaimer interface {
	ClaimBlock() (int64, error)
}

// BlockClaimerFunc adapts a plain function to BlockClaimer.
type BlockClaimerFunc func() (int64, error)

func (f BlockClaimerFunc) ClaimBlock() (int64, error) { return f() }

// reservationClaimer is the straightforward BlockClaimer backed by the slice Reserve produced.
type reservationClaimer struct {
	blocks []int64
	i      int
}

func (c *reservationClaimer) ClaimBlock() (int64, error) {
	if c.i >= len(c.blocks) {
		return 0, xferrors.New(xferrors.KindNoSpace, "bulkload: reservation exhausted mid-load")
	}
	off := c.blocks[c.i]
	c.i++
	return off, nil
}

// NewReservationClaimer wraps a reservation's claimed blocks as a BlockClaimer, consumed in order.
func NewReservationClaimer(blocks []int64) BlockClaimer {
	return &reservationClaimer{blocks: blocks}
}

// levelBlock is one in-progress block at some level during the bottom-up build.
type levelBlock struct {
	off      int64
	firstKey []byte
	recs     [][]byte // leaf only
	keys     [][]byte // internal only
	children []int64  // internal only
}

// Load builds tree bottom-up from src, per geo, claiming block addresses from claimer, and
// installs the resulting root via tree.SetRoot. It does not use tree.Insert — the whole point of
// the bulk loader is to avoid the one-record-at-a-time split/rebalance path.
func Load(tree *xfbtree.Tree, geo geometry.Geometry, src RecordSource, claimer BlockClaimer, keyOf func(rec []byte) []byte) error {
	if len(geo.Levels) == 0 {
		return xferrors.New(xferrors.KindInvalidArgument, "bulkload: empty geometry")
	}

	leafGeo := geo.Levels[0]
	leaves, err := loadLeafLevel(leafGeo, src, claimer)
	if err != nil {
		return err
	}
	if len(leaves) == 0 {
		// An empty tree: a single empty leaf root, same nr_blocks == 0 case geometry.ComputeGeometry
		// reports for record_count == 0. Allocated from the tree's own pool, not the reservation.
		off, err := tree.AllocBlock()
		if err != nil {
			return err
		}
		tree.WriteLeaf(off, nil, -1, -1)
		tree.SetRoot(off, 1)
		return nil
	}

	for i, lb := range leaves {
		left, right := siblingsOf(leaves, i)
		tree.WriteLeaf(lb.off, lb.recs, left, right)
		leaves[i].firstKey = keyOf(lb.recs[0])
	}

	cur := leaves
	level := 1
	for len(cur) > 1 {
		if level >= len(geo.Levels) {
			return xferrors.New(xferrors.KindCorruption, "bulkload: geometry ran out of levels before convergence")
		}
		nodeGeo := geo.Levels[level]
		nodes, err := buildNodeLevel(tree, nodeGeo, cur, claimer)
		if err != nil {
			return err
		}
		for i, nb := range nodes {
			left, right := siblingsOf(nodes, i)
			tree.WriteNode(nb.off, uint16(level), nb.keys, nb.children, left, right)
			nodes[i].firstKey = nb.keys[0]
		}
		cur = nodes
		level++
	}

	tree.SetRoot(cur[0].off, geo.Height)
	return nil
}

func siblingsOf(blocks []levelBlock, i int) (left, right int64) {
	left, right = -1, -1
	if i > 0 {
		left = blocks[i-1].off
	}
	if i < len(blocks)-1 {
		right = blocks[i+1].off
	}
	return left, right
}

func loadLeafLevel(leafGeo geometry.LevelGeometry, src RecordSource, claimer BlockClaimer) ([]levelBlock, error) {
	var out []levelBlock
	var batch [][]byte

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		off, err := claimer.ClaimBlock()
		if err != nil {
			return err
		}
		out = append(out, levelBlock{off: off, recs: batch})
		batch = nil
		return nil
	}

	for {
		rec, ok, err := src.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		batch = append(batch, rec)
		if int64(len(batch)) >= leafGeo.RecsPerBlock {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// buildNodeLevel batches children into internal blocks. The inline-root level — the single block
// a geometry convergence terminates on — is allocated straight from the tree's own block pool
// rather than the caller's reservation: per spec.md §4.3/Scenario C, that block is counted in
// Height but excluded from nr_blocks, mirroring how an AGF/AGI header embeds its btree's root
// pointer instead of pointing at a separately free-space-accounted block.
func buildNodeLevel(tree *xfbtree.Tree, nodeGeo geometry.LevelGeometry, children []levelBlock, claimer BlockClaimer) ([]levelBlock, error) {
	var out []levelBlock
	var keys [][]byte
	var kids []int64

	claim := claimer.ClaimBlock
	if nodeGeo.Blocks == 1 {
		claim = tree.AllocBlock
	}

	flush := func() error {
		if len(kids) == 0 {
			return nil
		}
		off, err := claim()
		if err != nil {
			return err
		}
		out = append(out, levelBlock{off: off, keys: keys, children: kids})
		keys, kids = nil, nil
		return nil
	}

	for _, c := range children {
		keys = append(keys, c.firstKey)
		kids = append(kids, c.off)
		if int64(len(kids)) >= nodeGeo.RecsPerBlock {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

