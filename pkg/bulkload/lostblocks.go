package bulkload

import (
	"encoding/binary"

	"github.com/xrepair/xrepair/pkg/slab"
)

// LostBlocks is the concrete lost-blocks collector of spec.md §4.3/§4.7: surplus reservation
// blocks the AGFL couldn't absorb, held until phase 5 drains them back to free-space via
// free_extent. Backed by pkg/slab.Slab, the same external-memory sorted-bag primitive the rest of
// the repair engine uses for scratch accumulation too large to keep comfortably resident.
type LostBlocks struct {
	s *slab.Slab
}

// NewLostBlocks creates an empty lost-blocks collector, spilling to cfg.Store once cfg.SpillAt
// blocks have accumulated resident (SpillAt 0 disables spilling). cfg.RecSize is overridden to 8.
func NewLostBlocks(cfg slab.Config) *LostBlocks {
	cfg.RecSize = 8
	return &LostBlocks{s: slab.New(cfg)}
}

// Add implements LostBlocksSlab.
func (l *LostBlocks) Add(b int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(b))
	return l.s.Append(buf)
}

// Len reports how many blocks are pending drain.
func (l *LostBlocks) Len() int64 { return l.s.Len() }

// Drain calls free on every collected block in insertion order — spec.md §4.7's "finally, lost
// blocks are drained into free-space." The blocks stay in the collector: Len is unchanged after
// Drain, and a second Drain calls free on them again.
func (l *LostBlocks) Drain(free func(block int64) error) error {
	c := l.s.NewCursor()
	for {
		ok, err := c.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rec, err := c.Record()
		if err != nil {
			return err
		}
		if err := free(int64(binary.BigEndian.Uint64(rec))); err != nil {
			return err
		}
	}
}
