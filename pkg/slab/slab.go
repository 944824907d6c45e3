// Package slab implements the external-memory sorted bag (Slab) of spec.md §4.1/§4.8: an
// append-only record array, sortable in place by a caller-supplied comparator, with forward
// cursors for the merge-walk algorithms in pkg/rmap and pkg/pptr.
//
// Grounded on the teacher's dir2HashTable in pkg/xfs/dir.go: a flat append-only slice sorted in
// place with sort.Sort before being walked linearly. A Slab generalizes that one-off pattern to
// fixed-width byte records of any shape, spilled to an xfile.Store once resident memory would be
// exceeded.
package slab

import (
	"sort"

	"github.com/xrepair/xrepair/internal/xferrors"
	"github.com/xrepair/xrepair/pkg/xfile"
)

// Slab is an append-only, in-place-sortable bag of fixed-width records.
type Slab struct {
	recSize int
	store   *xfile.Store
	count   int64

	// resident holds records not yet spilled to store; nil once spilled.
	resident [][]byte
	spillAt  int64 // spill to store once len(resident) reaches this count; 0 disables spilling
	spilled  bool
}

// Config controls a Slab's record width and optional spill threshold.
type Config struct {
	RecSize int
	// SpillAt, if nonzero, moves records out of resident memory into a backing xfile.Store once
	// the resident count reaches this threshold, per spec.md §4's "larger than available memory"
	// framing for the master slabs built during the parent-pointer verifier's pass 1.
	SpillAt int64
	Store   *xfile.Store
}

// New creates an empty Slab.
func New(cfg Config) *Slab {
	return &Slab{recSize: cfg.RecSize, store: cfg.Store, spillAt: cfg.SpillAt}
}

// Len reports the number of records appended so far.
func (s *Slab) Len() int64 { return s.count }

// Append adds rec, which must be exactly RecSize bytes, to the end of the slab.
func (s *Slab) Append(rec []byte) error {
	if len(rec) != s.recSize {
		return xferrors.New(xferrors.KindInvalidArgument, "slab: record size mismatch")
	}
	cp := make([]byte, s.recSize)
	copy(cp, rec)

	// Once a prior Append has spilled this slab, resident is nil and every further record goes
	// straight to the backing store.
	if s.resident == nil && s.spilled {
		if err := s.store.Pwrite(cp, s.count*int64(s.recSize)); err != nil {
			return err
		}
		s.count++
		return nil
	}

	s.resident = append(s.resident, cp)
	s.count++

	if s.spillAt > 0 && int64(len(s.resident)) >= s.spillAt && s.store != nil {
		return s.spill()
	}
	return nil
}

func (s *Slab) spill() error {
	for i, rec := range s.resident {
		if err := s.store.Pwrite(rec, int64(i)*int64(s.recSize)); err != nil {
			return err
		}
	}
	s.resident = nil
	s.spilled = true
	return nil
}

// recordAt returns the record at logical index i, reading through to the backing store if the
// slab has spilled.
func (s *Slab) recordAt(i int64) ([]byte, error) {
	if s.resident != nil {
		return s.resident[i], nil
	}
	buf := make([]byte, s.recSize)
	if err := s.store.Pread(buf, i*int64(s.recSize)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Slab) setRecordAt(i int64, rec []byte) error {
	if s.resident != nil {
		s.resident[i] = rec
		return nil
	}
	return s.store.Pwrite(rec, i*int64(s.recSize))
}

// Less is a strict weak ordering over two records.
type Less func(a, b []byte) bool

// sortView adapts a Slab to sort.Interface for an in-place sort. A resident slab is sorted in
// memory; a spilled slab is sorted through its store, one record read or written at a time.
type sortView struct {
	s    *Slab
	less Less
}

func (v sortView) Len() int { return int(v.s.count) }
func (v sortView) Less(i, j int) bool {
	a, _ := v.s.recordAt(int64(i))
	b, _ := v.s.recordAt(int64(j))
	return v.less(a, b)
}
func (v sortView) Swap(i, j int) {
	a, _ := v.s.recordAt(int64(i))
	b, _ := v.s.recordAt(int64(j))
	_ = v.s.setRecordAt(int64(i), b)
	_ = v.s.setRecordAt(int64(j), a)
}

// Sort reorders the slab's records in place per less, mirroring the teacher's
// sort.Sort(b.hashTable) call in pkg/xfs/dir.go generalized to an arbitrary comparator.
func (s *Slab) Sort(less Less) {
	sort.Sort(sortView{s: s, less: less})
}

// Cursor walks a Slab's records in their current order, left to right.
type Cursor struct {
	s   *Slab
	pos int64
}

// NewCursor returns a cursor positioned before the first record.
func (s *Slab) NewCursor() *Cursor { return &Cursor{s: s, pos: -1} }

// Next advances the cursor and reports whether a record is now available.
func (c *Cursor) Next() (bool, error) {
	c.pos++
	return c.pos < c.s.count, nil
}

// Record returns the record at the cursor's current position.
func (c *Cursor) Record() ([]byte, error) {
	return c.s.recordAt(c.pos)
}

// Rewind resets the cursor to before the first record.
func (c *Cursor) Rewind() { c.pos = -1 }
