package bulkload

import (
	"sort"

	"github.com/xrepair/xrepair/internal/xferrors"
)

// extent is one free run of blocks.
type extent struct {
	start, length int64
}

// InMemoryFreeSpace is a FreeSpaceIndex ordered smallest-extent-first, the "bcnt" index spec.md
// §4.3 names. Intended for a single group's reconstructed free-space extent list, small enough to
// keep resident for the duration of one group's rebuild.
type InMemoryFreeSpace struct {
	extents []extent
}

// NewInMemoryFreeSpace builds a free-space index from the group's free extents.
func NewInMemoryFreeSpace(extents []struct{ Start, Length int64 }) *InMemoryFreeSpace {
	fs := &InMemoryFreeSpace{}
	for _, e := range extents {
		fs.extents = append(fs.extents, extent{start: e.Start, length: e.Length})
	}
	fs.resort()
	return fs
}

func (fs *InMemoryFreeSpace) resort() {
	sort.Slice(fs.extents, func(i, j int) bool {
		if fs.extents[i].length != fs.extents[j].length {
			return fs.extents[i].length < fs.extents[j].length
		}
		return fs.extents[i].start < fs.extents[j].start
	})
}

// Smallest implements FreeSpaceIndex.
func (fs *InMemoryFreeSpace) Smallest() (int64, int64, bool) {
	if len(fs.extents) == 0 {
		return 0, 0, false
	}
	e := fs.extents[0]
	return e.start, e.length, true
}

// Claim implements FreeSpaceIndex: removes count blocks from the front of the extent starting at
// start, shrinking or removing it, then restores bcnt order.
func (fs *InMemoryFreeSpace) Claim(start, count int64) error {
	for i, e := range fs.extents {
		if e.start != start {
			continue
		}
		if count > e.length {
			return xferrors.New(xferrors.KindInvalidArgument, "bulkload: claim exceeds extent length")
		}
		if count == e.length {
			fs.extents = append(fs.extents[:i], fs.extents[i+1:]...)
		} else {
			fs.extents[i] = extent{start: e.start + count, length: e.length - count}
		}
		fs.resort()
		return nil
	}
	return xferrors.New(xferrors.KindCorruption, "bulkload: claim against unknown extent")
}

// Remaining returns the total free block count still held by the index.
func (fs *InMemoryFreeSpace) Remaining() int64 {
	var n int64
	for _, e := range fs.extents {
		n += e.length
	}
	return n
}

// Count returns the number of free extents currently held, the bno/cntbt record count.
func (fs *InMemoryFreeSpace) Count() int { return len(fs.extents) }

// Extents returns a copy of the current free extents, sorted by starting block (bnobt order).
func (fs *InMemoryFreeSpace) Extents() []struct{ Start, Length int64 } {
	out := make([]struct{ Start, Length int64 }, len(fs.extents))
	for i, e := range fs.extents {
		out[i] = struct{ Start, Length int64 }{Start: e.start, Length: e.length}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
