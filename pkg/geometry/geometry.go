// Package geometry implements the bulk btree loader's geometry calculator of spec.md §4.3:
// compute_geometry determines, level by level, how many records fit per block and how many
// blocks each level needs for a known total record count and fill-factor policy.
//
// Grounded on the teacher's constants group in pkg/xfs/xfs.go (inodesPerAllocGroup,
// inodeBlocksPerAllocGroup, metadataBlocksPerAllocGroup): the same style of deriving block counts
// from a known item count and a per-block capacity, generalized here from the teacher's one fixed
// inode-btree shape to any leaf/node record size with a configurable slack policy.
package geometry

import "github.com/xrepair/xrepair/internal/xferrors"

// LevelGeometry describes one level of a bulk-loaded btree.
type LevelGeometry struct {
	Level      int
	RecsPerBlock int64
	Blocks     int64
}

// Geometry is the full per-level block-demand plan for one bulk-loaded btree, per spec.md §4.3.
type Geometry struct {
	Levels   []LevelGeometry
	Height   int
	NrBlocks int64
}

// Config supplies the per-level capacities and fill policy compute_geometry needs.
type Config struct {
	LeafMaxRecs int64
	LeafMinRecs int64
	NodeMaxRecs int64
	NodeMinRecs int64

	// LeafSlack/NodeSlack, when set, override the default headroom — the number of empty record
	// slots left in each block below its max — with an explicit value; spec.md §4.3's worked
	// example sets both to 0, meaning blocks are packed to LeafMaxRecs/NodeMaxRecs exactly. Nil
	// selects the default headroom, which yields a target fill of (max_recs+min_recs)/2.
	LeafSlack *int64
	NodeSlack *int64

	// LowSpace forces slack to 2 records per block at every level, to compact the tree when free
	// blocks in the group are below 10%, per spec.md §4.3.
	LowSpace bool
}

func (c Config) leafFill() int64 {
	if c.LowSpace {
		return c.LeafMaxRecs - 2
	}
	if c.LeafSlack != nil {
		return c.LeafMaxRecs - *c.LeafSlack
	}
	return (c.LeafMaxRecs + c.LeafMinRecs) / 2
}

func (c Config) nodeFill() int64 {
	if c.LowSpace {
		return c.NodeMaxRecs - 2
	}
	if c.NodeSlack != nil {
		return c.NodeMaxRecs - *c.NodeSlack
	}
	return (c.NodeMaxRecs + c.NodeMinRecs) / 2
}

// ComputeGeometry determines the level-by-level block demand for a btree holding recordCount
// leaf records, per spec.md §4.3: the leaf level is sized by the leaf fill target, then each
// internal level is sized by the node fill target against the child-pointer count of the level
// below it, iterating bottom-up until a level's child-pointer count fits one block. That final,
// single-block level is the tree's root: like the teacher's AGF/AGI header fields, its pointer is
// carried directly in the surrounding group header rather than costing a reservation of its own,
// so it is counted toward Height but not added to NrBlocks.
func ComputeGeometry(cfg Config, recordCount int64) (Geometry, error) {
	if recordCount < 0 {
		return Geometry{}, xferrors.New(xferrors.KindInvalidArgument, "geometry: negative record count")
	}
	if cfg.LeafMaxRecs <= 0 || cfg.NodeMaxRecs <= 0 {
		return Geometry{}, xferrors.New(xferrors.KindInvalidArgument, "geometry: non-positive capacity")
	}

	leafFill := cfg.leafFill()
	if leafFill <= 0 {
		leafFill = cfg.LeafMaxRecs
	}

	var g Geometry

	if recordCount == 0 {
		g.Levels = []LevelGeometry{{Level: 0, RecsPerBlock: leafFill, Blocks: 1}}
		g.Height = 1
		g.NrBlocks = 0
		return g, nil
	}

	leafBlocks := ceilDiv(recordCount, leafFill)
	g.Levels = append(g.Levels, LevelGeometry{Level: 0, RecsPerBlock: leafFill, Blocks: leafBlocks})
	g.NrBlocks += leafBlocks

	nodeFill := cfg.nodeFill()
	if nodeFill <= 0 {
		nodeFill = cfg.NodeMaxRecs
	}

	childCount := leafBlocks
	level := 1
	for childCount > 1 {
		blocks := ceilDiv(childCount, nodeFill)
		g.Levels = append(g.Levels, LevelGeometry{Level: level, RecsPerBlock: nodeFill, Blocks: blocks})
		if blocks > 1 {
			g.NrBlocks += blocks
		}
		childCount = blocks
		level++
	}

	g.Height = level
	return g, nil
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
