// Package rmap implements the incore rmap accumulator and refcount derivation of spec.md §4.6: a
// per-group reverse-map index built from scanned mappings, merged on insert, then swept to derive
// shared-extent refcounts.
//
// Grounded on the teacher's free-space and btree-building passes in pkg/xfs/compiler.go
// (writeAllocationBtrees, writeFreeSpace), which already accumulate per-AG extent lists before
// bulk-loading them into on-disk trees; this package generalizes that accumulation step to rmap
// records with merge-on-insert semantics, keyed and stored in a pkg/xfbtree index per group.
package rmap

import (
	"bytes"
	"encoding/binary"

	"github.com/xrepair/xrepair/internal/xferrors"
	"github.com/xrepair/xrepair/pkg/membuf"
	"github.com/xrepair/xrepair/pkg/xfbtree"
	"github.com/xrepair/xrepair/pkg/xfile"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// MaxExtentLen is the largest block count a single rmap or refcount record may carry.
const MaxExtentLen = xfsfmt.MaxExtentLen

// OwnerKind distinguishes an rmap's owner: a real inode, or one of the synthetic filesystem-
// internal owner tags spec.md §3 lists.
type OwnerKind uint8

const (
	OwnerInode OwnerKind = iota
	OwnerFSHeaders
	OwnerLog
	OwnerInodes
	OwnerRefc
	OwnerAGMeta
	OwnerUnknown
	// OwnerAG tags blocks allocated during the bulk loader's own reservation protocol
	// (spec.md §4.3: "accounted into the reverse-map index as OWN_AG").
	OwnerAG
)

// Owner is a typed sum: either a real inode number (Kind == OwnerInode) or a synthetic tag.
type Owner struct {
	Kind OwnerKind
	Ino  int64 // meaningful only when Kind == OwnerInode
}

func (o Owner) equal(other Owner) bool {
	if o.Kind != other.Kind {
		return false
	}
	if o.Kind == OwnerInode {
		return o.Ino == other.Ino
	}
	return true
}

// Record is one rmap record: a physical extent, its owner, and its logical placement.
type Record struct {
	StartBlock    int64
	BlockCount    int64
	Owner         Owner
	LogicalOffset int64
	Flags         xfsfmt.RmapFlag
}

// End returns the first physical block past the extent.
func (r Record) End() int64 { return r.StartBlock + r.BlockCount }

// Valid checks the invariants spec.md §3 places on an rmap record.
func (r Record) Valid() error {
	if r.BlockCount < 1 || r.BlockCount > MaxExtentLen {
		return xferrors.New(xferrors.KindCorruption, "rmap: block_count out of range")
	}
	if r.Owner.Kind != OwnerInode {
		if r.LogicalOffset != 0 || r.Flags.Has(xfsfmt.RmapAttrFork) {
			return xferrors.New(xferrors.KindCorruption, "rmap: synthetic owner with offset/attr-fork")
		}
	}
	return nil
}

// Shareable reports whether r is eligible to contribute to a refcount >= 2, per spec.md §4.6: an
// inode owner, not filesystem-internal, and none of ATTR_FORK/BMBT_BLOCK/UNWRITTEN set.
func (r Record) Shareable() bool {
	if r.Owner.Kind != OwnerInode {
		return false
	}
	return !r.Flags.Has(xfsfmt.RmapAttrFork) && !r.Flags.Has(xfsfmt.RmapBMBTBlock) && !r.Flags.Has(xfsfmt.RmapUnwritten)
}

// Mergeable reports whether a and b are eligible to be merged into one rmap record, per spec.md
// §3: identical owner, contiguous physical extent, identical flags, and — for inode owners that
// are not BMBT blocks — contiguous logical offsets, with the merged length not overflowing
// MaxExtentLen.
func Mergeable(a, b Record) bool {
	if !a.Owner.equal(b.Owner) {
		return false
	}
	if a.Flags != b.Flags {
		return false
	}
	if a.End() != b.StartBlock {
		return false
	}
	if a.BlockCount+b.BlockCount > MaxExtentLen {
		return false
	}
	if a.Owner.Kind == OwnerInode && !a.Flags.Has(xfsfmt.RmapBMBTBlock) {
		if a.LogicalOffset+a.BlockCount != b.LogicalOffset {
			return false
		}
	}
	return true
}

// merge combines a and b, which must satisfy Mergeable(a, b), into one record.
func merge(a, b Record) Record {
	return Record{
		StartBlock:    a.StartBlock,
		BlockCount:    a.BlockCount + b.BlockCount,
		Owner:         a.Owner,
		LogicalOffset: a.LogicalOffset,
		Flags:         a.Flags,
	}
}

const recSize = 8 + 8 + 1 + 8 + 8 + 1 // start, count, ownerKind, ownerIno, logicalOffset, flags

func encodeRecord(r Record) []byte {
	buf := make([]byte, recSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.StartBlock))
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.BlockCount))
	buf[16] = byte(r.Owner.Kind)
	binary.BigEndian.PutUint64(buf[17:25], uint64(r.Owner.Ino))
	binary.BigEndian.PutUint64(buf[25:33], uint64(r.LogicalOffset))
	buf[33] = byte(r.Flags)
	return buf
}

func decodeRecord(buf []byte) Record {
	return Record{
		StartBlock:    int64(binary.BigEndian.Uint64(buf[0:8])),
		BlockCount:    int64(binary.BigEndian.Uint64(buf[8:16])),
		Owner:         Owner{Kind: OwnerKind(buf[16]), Ino: int64(binary.BigEndian.Uint64(buf[17:25]))},
		LogicalOffset: int64(binary.BigEndian.Uint64(buf[25:33])),
		Flags:         xfsfmt.RmapFlag(buf[33]),
	}
}

func recordKey(rec []byte) []byte { return rec[0:8] }

// indexOwnerTag marks every block belonging to an rmap Index in the buffer cache, distinguishing
// it from other XfBtree instances (such as the bulk loader's scratch trees) sharing the same
// membuf.Target.
const indexOwnerTag = 0x524d4150 // "RMAP"

// Index is the per-group incore rmap accumulator: an XfBtree of Records keyed by physical start
// block, with merge-on-insert semantics.
type Index struct {
	tree *xfbtree.Tree
}

// NewIndex creates an empty rmap index backed by target, per spec.md §4.1/§4.6.
func NewIndex(target *membuf.Target) *Index {
	tree := xfbtree.New(xfbtree.Config{
		Target:      target,
		BlockSize:   xfile.BlockSize,
		OwnerTag:    indexOwnerTag,
		Pointer:     xfbtree.ShortPointer,
		KeySize:     8,
		RecSize:     recSize,
		KeyOf:       recordKey,
		CompareKeys: bytes.Compare,
		MinRecsLeaf: 16, MaxRecsLeaf: 64,
		MinRecsNode: 16, MaxRecsNode: 64,
	})
	return &Index{tree: tree}
}

// Upsert inserts rec into the index, merging it with an adjacent mergeable record if one exists,
// per spec.md §4.6: "Upsert merges with an adjacent mergeable record."
func (idx *Index) Upsert(rec Record) error {
	if err := rec.Valid(); err != nil {
		return err
	}

	// A record ending exactly at rec's start, or starting exactly at rec's end, is the only
	// possible merge partner given a well-formed (non-overlapping) rmap index.
	if prevBuf, ok, err := idx.tree.Lookup(xfbtree.OpLE, keyOf(rec.StartBlock)); err == nil && ok {
		prev := decodeRecord(prevBuf)
		if Mergeable(prev, rec) {
			if err := idx.tree.Delete(recordKey(prevBuf)); err != nil {
				return err
			}
			rec = merge(prev, rec)
		}
	}
	if nextBuf, ok, err := idx.tree.Lookup(xfbtree.OpGE, keyOf(rec.End())); err == nil && ok {
		next := decodeRecord(nextBuf)
		if next.StartBlock == rec.End() && Mergeable(rec, next) {
			if err := idx.tree.Delete(recordKey(nextBuf)); err != nil {
				return err
			}
			rec = merge(rec, next)
		}
	}

	return idx.tree.Insert(encodeRecord(rec))
}

func keyOf(startBlock int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(startBlock))
	return buf
}

// All returns every record currently in the index, left to right by start block.
func (idx *Index) All() ([]Record, error) {
	var out []Record
	err := idx.tree.VisitBlocks(xfbtree.VisitRecords, func(payload [][]byte) error {
		for _, rec := range payload {
			out = append(out, decodeRecord(rec))
		}
		return nil
	})
	return out, err
}

// Tree exposes the backing XfBtree for the bulk loader's rmapbt input construction
// (spec.md §4.7 step 3).
func (idx *Index) Tree() *xfbtree.Tree { return idx.tree }
