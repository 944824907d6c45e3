// Package xfbtree implements the generic in-memory B+tree (XfBtree) of spec.md §4.2: a
// block-structured btree whose blocks live in a membuf.Target, with a free-space bitmap of its
// own pages, an independent root pointer, and short- or long-pointer formats. The on-disk XFS
// btree block format itself is an external collaborator (spec.md §1, "the on-disk binary format
// of individual records ... consumed via a format-encode/decode interface") — this tree's block
// layout is xrepair's own working representation, not the real on-disk bit pattern.
package xfbtree

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/xrepair/xrepair/internal/xferrors"
	"github.com/xrepair/xrepair/pkg/membuf"
)

// PointerWidth selects how block addresses are stored: short (32-bit, relative to a group — fails
// beyond 2^31-1) or long (64-bit, absolute).
type PointerWidth int

const (
	ShortPointer PointerWidth = iota
	LongPointer
)

// maxShortPointer is the largest block offset a short-pointer tree can address.
const maxShortPointer = (int64(1) << 31) - 1

// blockMagic marks every block header so reads can validate ownership (spec.md §4.2's
// "block ownership is validated on read via an owner_tag stored in the block header").
const blockMagic = 0x58464254 // "XFBT"

// Op selects a lookup direction for Lookup.
type Op int

const (
	OpEQ Op = iota
	OpLE
	OpGE
)

// Config parameterizes a tree instance: its record/key shapes, ordering, and fill targets.
type Config struct {
	Target    *membuf.Target
	BlockSize int64
	OwnerTag  uint64
	Pointer   PointerWidth

	KeySize int
	RecSize int

	// KeyOf extracts the ordering key from a record.
	KeyOf func(rec []byte) []byte
	// CompareKeys orders two keys; defaults to bytes.Compare if nil.
	CompareKeys func(a, b []byte) int

	MinRecsLeaf, MaxRecsLeaf int
	MinRecsNode, MaxRecsNode int
}

// Tree is one XfBtree instance.
type Tree struct {
	cfg    Config
	root   int64 // 0 means empty tree
	height int

	freeBitmap map[int64]bool
	highest    int64
}

// New creates an empty tree over cfg.Target.
func New(cfg Config) *Tree {
	if cfg.CompareKeys == nil {
		cfg.CompareKeys = bytes.Compare
	}
	return &Tree{cfg: cfg, freeBitmap: make(map[int64]bool)}
}

func (t *Tree) cmp(a, b []byte) int { return t.cfg.CompareKeys(a, b) }

// AllocBlock obtains a fresh block offset: popped from the free-space bitmap if one is available,
// otherwise bumping the high-water mark, per spec.md §4.2's allocation policy.
func (t *Tree) AllocBlock() (int64, error) {
	for off, free := range t.freeBitmap {
		if free {
			delete(t.freeBitmap, off)
			return off, nil
		}
	}
	if t.highest == 0 {
		// Offset 0 is reserved to mean "no block" (an empty tree's root); the first real block
		// starts one block size in.
		t.highest = t.cfg.BlockSize
	}
	off := t.highest
	t.highest += t.cfg.BlockSize
	if t.cfg.Pointer == ShortPointer && off > maxShortPointer {
		return 0, xferrors.New(xferrors.KindNoSpace, "short-pointer tree exceeded 2^31-1 blocks")
	}
	return off, nil
}

// FreeBlock returns off to the free-space bitmap.
func (t *Tree) FreeBlock(off int64) {
	t.freeBitmap[off] = true
}

// block is the in-memory decoded form of one tree block.
type block struct {
	level    uint16
	leftSib  int64
	rightSib int64
	owner    uint64
	// leaf: recs holds encoded records sorted by key.
	// internal: keys[i] is the first key of the subtree rooted at children[i].
	recs     [][]byte
	keys     [][]byte
	children []int64
}

func (t *Tree) isLeaf(b *block) bool { return b.level == 0 }

func (t *Tree) readBlock(off int64) (*block, error) {
	buf, err := t.cfg.Target.ReadBuf(off, t.verify)
	if err != nil {
		return nil, err
	}
	return decodeBlock(buf.Data, t.cfg)
}

func (t *Tree) writeBlock(off int64, b *block) {
	buf := t.cfg.Target.GetBuf(off)
	encodeBlock(buf.Data, b, t.cfg)
	t.cfg.Target.MarkDirty(buf)
}

func (t *Tree) verify(off int64, data []byte) error {
	if len(data) < 4 {
		return xferrors.New(xferrors.KindCorruption, "short block")
	}
	magic := binary.BigEndian.Uint32(data)
	if magic != blockMagic {
		return xferrors.New(xferrors.KindCorruption, "bad block magic")
	}
	owner := binary.BigEndian.Uint64(data[24:32])
	if owner != t.cfg.OwnerTag {
		return xferrors.New(xferrors.KindCorruption, "owner tag mismatch")
	}
	return nil
}

// header layout: magic(4) level(2) numrecs(2) leftSib(8) rightSib(8) owner(8) = 32 bytes, followed
// by a uint32 child-count if internal, then the packed keys/children or records.
const blockHeaderSize = 32

func encodeBlock(dst []byte, b *block, cfg Config) {
	for i := range dst {
		dst[i] = 0
	}
	binary.BigEndian.PutUint32(dst[0:4], blockMagic)
	binary.BigEndian.PutUint16(dst[4:6], b.level)
	n := len(b.recs)
	if b.level > 0 {
		n = len(b.children)
	}
	binary.BigEndian.PutUint16(dst[6:8], uint16(n))
	binary.BigEndian.PutUint64(dst[8:16], uint64(b.leftSib))
	binary.BigEndian.PutUint64(dst[16:24], uint64(b.rightSib))
	binary.BigEndian.PutUint64(dst[24:32], b.owner)

	off := blockHeaderSize
	if b.level == 0 {
		for _, r := range b.recs {
			copy(dst[off:off+cfg.RecSize], r)
			off += cfg.RecSize
		}
		return
	}
	ptrSize := 8
	for i, k := range b.keys {
		copy(dst[off:off+cfg.KeySize], k)
		off += cfg.KeySize
		binary.BigEndian.PutUint64(dst[off:off+ptrSize], uint64(b.children[i]))
		off += ptrSize
	}
}

func decodeBlock(src []byte, cfg Config) (*block, error) {
	b := &block{}
	b.level = binary.BigEndian.Uint16(src[4:6])
	n := int(binary.BigEndian.Uint16(src[6:8]))
	b.leftSib = int64(binary.BigEndian.Uint64(src[8:16]))
	b.rightSib = int64(binary.BigEndian.Uint64(src[16:24]))
	b.owner = binary.BigEndian.Uint64(src[24:32])

	off := blockHeaderSize
	if b.level == 0 {
		b.recs = make([][]byte, n)
		for i := 0; i < n; i++ {
			rec := make([]byte, cfg.RecSize)
			copy(rec, src[off:off+cfg.RecSize])
			b.recs[i] = rec
			off += cfg.RecSize
		}
		return b, nil
	}
	ptrSize := 8
	b.keys = make([][]byte, n)
	b.children = make([]int64, n)
	for i := 0; i < n; i++ {
		k := make([]byte, cfg.KeySize)
		copy(k, src[off:off+cfg.KeySize])
		b.keys[i] = k
		off += cfg.KeySize
		b.children[i] = int64(binary.BigEndian.Uint64(src[off : off+ptrSize]))
		off += ptrSize
	}
	return b, nil
}

// Height returns the tree's current height (0 for an empty tree, 1 for a tree with only a leaf
// root).
func (t *Tree) Height() int { return t.height }

// Root returns the current root block offset, or 0 if the tree is empty.
func (t *Tree) Root() int64 { return t.root }

// SetRoot installs an externally-built root (used by the bulk loader, which writes the tree
// bottom-up and then fixes up the header).
func (t *Tree) SetRoot(off int64, height int) {
	t.root = off
	t.height = height
}

// WriteLeaf writes a leaf block directly at off, bypassing Insert's split path. Used by the bulk
// loader (pkg/bulkload), which pre-batches records into leaf-sized groups per spec.md §4.3 rather
// than inserting one record at a time. leftSib/rightSib form the level's left-to-right
// doubly-linked list; -1 marks an edge.
func (t *Tree) WriteLeaf(off int64, recs [][]byte, leftSib, rightSib int64) {
	t.writeBlock(off, &block{level: 0, owner: t.cfg.OwnerTag, leftSib: leftSib, rightSib: rightSib, recs: recs})
}

// WriteNode writes an internal block directly at off, bypassing Insert's split path.
func (t *Tree) WriteNode(off int64, level uint16, keys [][]byte, children []int64, leftSib, rightSib int64) {
	t.writeBlock(off, &block{level: level, owner: t.cfg.OwnerTag, leftSib: leftSib, rightSib: rightSib, keys: keys, children: children})
}

// Insert adds rec, keeping leaves sorted by key. It performs simple node splitting; it does not
// implement key-merging on delete below MinRecs (the repair engine never deletes from a
// freshly-built tree — deletion is exercised only by the deferred-op engine's targeted removals,
// which operate one record at a time and tolerate underfull leaves until the next bulk rebuild).
func (t *Tree) Insert(rec []byte) error {
	if t.root == 0 {
		off, err := t.AllocBlock()
		if err != nil {
			return err
		}
		leaf := &block{level: 0, owner: t.cfg.OwnerTag, leftSib: -1, rightSib: -1, recs: [][]byte{rec}}
		t.writeBlock(off, leaf)
		t.root = off
		t.height = 1
		return nil
	}

	path, err := t.descend(t.cfg.KeyOf(rec))
	if err != nil {
		return err
	}
	leafOff := path[len(path)-1]
	leaf, err := t.readBlock(leafOff)
	if err != nil {
		return err
	}

	key := t.cfg.KeyOf(rec)
	idx := sort.Search(len(leaf.recs), func(i int) bool { return t.cmp(t.cfg.KeyOf(leaf.recs[i]), key) >= 0 })
	leaf.recs = append(leaf.recs, nil)
	copy(leaf.recs[idx+1:], leaf.recs[idx:])
	leaf.recs[idx] = rec
	t.writeBlock(leafOff, leaf)

	if len(leaf.recs) > t.cfg.MaxRecsLeaf {
		return t.splitLeaf(path, leafOff, leaf)
	}
	return nil
}

func (t *Tree) descend(key []byte) ([]int64, error) {
	path := []int64{}
	off := t.root
	for {
		path = append(path, off)
		b, err := t.readBlock(off)
		if err != nil {
			return nil, err
		}
		if b.level == 0 {
			return path, nil
		}
		idx := sort.Search(len(b.keys), func(i int) bool { return t.cmp(b.keys[i], key) > 0 }) - 1
		if idx < 0 {
			idx = 0
		}
		off = b.children[idx]
	}
}

func (t *Tree) splitLeaf(path []int64, leafOff int64, leaf *block) error {
	mid := len(leaf.recs) / 2
	rightRecs := append([][]byte{}, leaf.recs[mid:]...)
	leaf.recs = leaf.recs[:mid]

	rightOff, err := t.AllocBlock()
	if err != nil {
		return err
	}
	right := &block{level: 0, owner: t.cfg.OwnerTag, recs: rightRecs, leftSib: leafOff, rightSib: leaf.rightSib}
	leaf.rightSib = rightOff
	t.writeBlock(leafOff, leaf)
	t.writeBlock(rightOff, right)

	return t.insertUp(path[:len(path)-1], t.cfg.KeyOf(rightRecs[0]), rightOff)
}

func (t *Tree) insertUp(path []int64, splitKey []byte, splitChild int64) error {
	if len(path) == 0 {
		// root split: new internal root with two children.
		newRoot, err := t.AllocBlock()
		if err != nil {
			return err
		}
		oldRoot := t.root
		oldRootBlk, err := t.readBlock(oldRoot)
		if err != nil {
			return err
		}
		firstKey := t.firstKeyOf(oldRootBlk)
		b := &block{
			level:    uint16(t.height),
			owner:    t.cfg.OwnerTag,
			keys:     [][]byte{firstKey, splitKey},
			children: []int64{oldRoot, splitChild},
			leftSib:  -1, rightSib: -1,
		}
		t.writeBlock(newRoot, b)
		t.root = newRoot
		t.height++
		return nil
	}

	parentOff := path[len(path)-1]
	parent, err := t.readBlock(parentOff)
	if err != nil {
		return err
	}
	idx := sort.Search(len(parent.keys), func(i int) bool { return t.cmp(parent.keys[i], splitKey) >= 0 })
	parent.keys = append(parent.keys, nil)
	copy(parent.keys[idx+1:], parent.keys[idx:])
	parent.keys[idx] = splitKey
	parent.children = append(parent.children, 0)
	copy(parent.children[idx+1:], parent.children[idx:])
	parent.children[idx] = splitChild
	t.writeBlock(parentOff, parent)

	if len(parent.children) > t.cfg.MaxRecsNode {
		mid := len(parent.children) / 2
		rightKeys := append([][]byte{}, parent.keys[mid:]...)
		rc := append([]int64{}, parent.children[mid:]...)
		promoted := parent.keys[mid]
		parent.keys = parent.keys[:mid]
		parent.children = parent.children[:mid]

		rightOff, err := t.AllocBlock()
		if err != nil {
			return err
		}
		right := &block{level: parent.level, owner: t.cfg.OwnerTag, keys: rightKeys, children: rc, leftSib: parentOff, rightSib: parent.rightSib}
		parent.rightSib = rightOff
		t.writeBlock(parentOff, parent)
		t.writeBlock(rightOff, right)
		return t.insertUp(path[:len(path)-1], promoted, rightOff)
	}
	return nil
}

func (t *Tree) firstKeyOf(b *block) []byte {
	if b.level == 0 {
		return t.cfg.KeyOf(b.recs[0])
	}
	return b.keys[0]
}

// Lookup finds the record matching key per op (equal, less-or-equal, greater-or-equal).
func (t *Tree) Lookup(op Op, key []byte) ([]byte, bool, error) {
	if t.root == 0 {
		return nil, false, nil
	}
	path, err := t.descend(key)
	if err != nil {
		return nil, false, err
	}
	leaf, err := t.readBlock(path[len(path)-1])
	if err != nil {
		return nil, false, err
	}
	idx := sort.Search(len(leaf.recs), func(i int) bool { return t.cmp(t.cfg.KeyOf(leaf.recs[i]), key) >= 0 })

	switch op {
	case OpEQ:
		if idx < len(leaf.recs) && t.cmp(t.cfg.KeyOf(leaf.recs[idx]), key) == 0 {
			return leaf.recs[idx], true, nil
		}
		return nil, false, nil
	case OpGE:
		if idx < len(leaf.recs) {
			return leaf.recs[idx], true, nil
		}
		return t.nextLeafFirst(leaf)
	case OpLE:
		if idx < len(leaf.recs) && t.cmp(t.cfg.KeyOf(leaf.recs[idx]), key) == 0 {
			return leaf.recs[idx], true, nil
		}
		if idx == 0 {
			return nil, false, nil
		}
		return leaf.recs[idx-1], true, nil
	}
	return nil, false, nil
}

func (t *Tree) nextLeafFirst(leaf *block) ([]byte, bool, error) {
	if leaf.rightSib < 0 {
		return nil, false, nil
	}
	next, err := t.readBlock(leaf.rightSib)
	if err != nil {
		return nil, false, err
	}
	if len(next.recs) == 0 {
		return nil, false, nil
	}
	return next.recs[0], true, nil
}

// GetRec returns the record at key, if present.
func (t *Tree) GetRec(key []byte) ([]byte, bool, error) {
	return t.Lookup(OpEQ, key)
}

// Update overwrites the record matching key's key (key must be unchanged by the update).
func (t *Tree) Update(rec []byte) error {
	key := t.cfg.KeyOf(rec)
	path, err := t.descend(key)
	if err != nil {
		return err
	}
	off := path[len(path)-1]
	leaf, err := t.readBlock(off)
	if err != nil {
		return err
	}
	idx := sort.Search(len(leaf.recs), func(i int) bool { return t.cmp(t.cfg.KeyOf(leaf.recs[i]), key) >= 0 })
	if idx >= len(leaf.recs) || t.cmp(t.cfg.KeyOf(leaf.recs[idx]), key) != 0 {
		return xferrors.New(xferrors.KindCorruption, "update of missing record")
	}
	leaf.recs[idx] = rec
	t.writeBlock(off, leaf)
	return nil
}

// Delete removes the record matching key.
func (t *Tree) Delete(key []byte) error {
	if t.root == 0 {
		return xferrors.New(xferrors.KindCorruption, "delete from empty tree")
	}
	path, err := t.descend(key)
	if err != nil {
		return err
	}
	off := path[len(path)-1]
	leaf, err := t.readBlock(off)
	if err != nil {
		return err
	}
	idx := sort.Search(len(leaf.recs), func(i int) bool { return t.cmp(t.cfg.KeyOf(leaf.recs[i]), key) >= 0 })
	if idx >= len(leaf.recs) || t.cmp(t.cfg.KeyOf(leaf.recs[idx]), key) != 0 {
		return xferrors.New(xferrors.KindCorruption, "delete of missing record")
	}
	leaf.recs = append(leaf.recs[:idx], leaf.recs[idx+1:]...)
	t.writeBlock(off, leaf)
	return nil
}

// VisitKind selects what Visit hands to fn.
type VisitKind int

const (
	VisitRecords VisitKind = iota
	VisitKeys
)

// VisitBlocks walks every leaf block (VisitRecords), or every internal block one level above the
// leaves (VisitKeys), left to right, calling fn with each block's payload. VisitKeys does not
// visit internal levels higher than that.
func (t *Tree) VisitBlocks(kind VisitKind, fn func(payload [][]byte) error) error {
	if t.root == 0 {
		return nil
	}
	off := t.leftEdgeAtLevel(kindLevel(kind, t))
	for off >= 0 {
		b, err := t.readBlock(off)
		if err != nil {
			return err
		}
		var err2 error
		if kind == VisitRecords {
			err2 = fn(b.recs)
		} else {
			err2 = fn(b.keys)
		}
		if err2 != nil {
			return err2
		}
		off = b.rightSib
	}
	return nil
}

func kindLevel(kind VisitKind, t *Tree) int {
	if kind == VisitRecords {
		return 0
	}
	return 1
}

func (t *Tree) leftEdgeAtLevel(level int) int64 {
	off := t.root
	for {
		b, err := t.readBlock(off)
		if err != nil || int(b.level) <= level {
			return off
		}
		off = b.children[0]
	}
}

// Cursor walks leaf records left to right starting from the left edge of the tree.
type Cursor struct {
	t       *Tree
	off     int64
	blk     *block
	idx     int
}

// GotoLeftEdge returns a Cursor positioned at the first record of the leftmost leaf.
func (t *Tree) GotoLeftEdge() (*Cursor, error) {
	c := &Cursor{t: t}
	if t.root == 0 {
		c.off = -1
		return c, nil
	}
	c.off = t.leftEdgeAtLevel(0)
	b, err := t.readBlock(c.off)
	if err != nil {
		return nil, err
	}
	c.blk = b
	return c, nil
}

// HasMoreRecords reports whether Next would succeed.
func (c *Cursor) HasMoreRecords() bool {
	if c.off < 0 || c.blk == nil {
		return false
	}
	return c.idx < len(c.blk.recs) || c.blk.rightSib >= 0
}

// Next returns the next record in key order.
func (c *Cursor) Next() ([]byte, error) {
	for c.blk != nil && c.idx >= len(c.blk.recs) {
		if c.blk.rightSib < 0 {
			c.blk = nil
			return nil, xferrors.New(xferrors.KindCorruption, "cursor exhausted")
		}
		next := c.blk.rightSib
		b, err := c.t.readBlock(next)
		if err != nil {
			return nil, err
		}
		c.blk = b
		c.off = next
		c.idx = 0
	}
	if c.blk == nil {
		return nil, xferrors.New(xferrors.KindCorruption, "cursor exhausted")
	}
	rec := c.blk.recs[c.idx]
	c.idx++
	return rec, nil
}
