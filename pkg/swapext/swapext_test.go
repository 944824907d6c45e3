package swapext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFork is a plain in-memory Fork backed by a flat slice of extents, sorted by FileOffset.
type memFork struct {
	exts []Extent
}

func (f *memFork) MappingAt(off int64) (Extent, bool) {
	for _, e := range f.exts {
		if off >= e.FileOffset && off < e.end() {
			// Return the remainder of this extent starting at off.
			trimmed := e
			trimmed.Length -= off - e.FileOffset
			trimmed.FileOffset = off
			if !trimmed.Hole {
				trimmed.PhysBlock += off - e.FileOffset
			}
			return trimmed, true
		}
		if off < e.FileOffset {
			break
		}
	}
	return Extent{}, false
}

func (f *memFork) Unmap(off, length int64) error {
	var out []Extent
	for _, e := range f.exts {
		if e.end() <= off || e.FileOffset >= off+length {
			out = append(out, e)
			continue
		}
		if e.FileOffset < off {
			out = append(out, Extent{FileOffset: e.FileOffset, PhysBlock: e.PhysBlock, Length: off - e.FileOffset, Hole: e.Hole, Unwritten: e.Unwritten})
		}
		if e.end() > off+length {
			tailOff := off + length
			physAdj := int64(0)
			if !e.Hole {
				physAdj = tailOff - e.FileOffset
			}
			out = append(out, Extent{FileOffset: tailOff, PhysBlock: e.PhysBlock + physAdj, Length: e.end() - tailOff, Hole: e.Hole, Unwritten: e.Unwritten})
		}
	}
	f.exts = out
	return nil
}

func (f *memFork) Map(off int64, ext Extent) error {
	f.exts = append(f.exts, ext)
	// Keep sorted by FileOffset for MappingAt's scan.
	for i := len(f.exts) - 1; i > 0 && f.exts[i].FileOffset < f.exts[i-1].FileOffset; i-- {
		f.exts[i], f.exts[i-1] = f.exts[i-1], f.exts[i]
	}
	return nil
}

func singleExtentInode(startBlock int64, length int64) (*Inode, *memFork) {
	fork := &memFork{exts: []Extent{{FileOffset: 0, PhysBlock: startBlock, Length: length}}}
	return &Inode{Fork: fork, ExtentSize: 1, Size: length}, fork
}

// TestFinishOneScenarioD mirrors spec.md Scenario D: ip1 maps [0..10)->P, ip2 maps [0..10)->Q
// (same length); finish_one reduces block_count from 10 to 0 in one pass, and after commit
// ip1->Q, ip2->P.
func TestFinishOneScenarioD(t *testing.T) {
	ino1, fork1 := singleExtentInode(100 /* P */, 10)
	ino2, fork2 := singleExtentInode(200 /* Q */, 10)

	intent := &Intent{Ino1: ino1, Ino2: ino2, BlockCount: 10}

	result, err := FinishOne(intent)
	require.NoError(t, err)
	assert.Equal(t, ResultOk, result)
	assert.Equal(t, int64(0), intent.BlockCount)

	e1, ok := fork1.MappingAt(0)
	require.True(t, ok)
	assert.Equal(t, int64(200), e1.PhysBlock)
	assert.Equal(t, int64(10), e1.Length)

	e2, ok := fork2.MappingAt(0)
	require.True(t, ok)
	assert.Equal(t, int64(100), e2.PhysBlock)
	assert.Equal(t, int64(10), e2.Length)
}

// TestFinishOneRequeuesAcrossMultipleBatches checks that a swap spanning mismatched extent
// boundaries proceeds in several FinishOne calls, each advancing by the shorter extent, and
// reports Requeue until block_count reaches zero.
func TestFinishOneRequeuesAcrossMultipleBatches(t *testing.T) {
	ino1 := &Inode{Fork: &memFork{exts: []Extent{
		{FileOffset: 0, PhysBlock: 100, Length: 4},
		{FileOffset: 4, PhysBlock: 200, Length: 6},
	}}, ExtentSize: 1}
	ino2 := &Inode{Fork: &memFork{exts: []Extent{
		{FileOffset: 0, PhysBlock: 500, Length: 10},
	}}, ExtentSize: 1}

	intent := &Intent{Ino1: ino1, Ino2: ino2, BlockCount: 10}

	result, err := FinishOne(intent)
	require.NoError(t, err)
	assert.Equal(t, ResultRequeue, result)
	assert.Equal(t, int64(6), intent.BlockCount)

	result, err = FinishOne(intent)
	require.NoError(t, err)
	assert.Equal(t, ResultOk, result)
	assert.Equal(t, int64(0), intent.BlockCount)
}

// TestFinishOneSkipsUnwrittenWhenIno1Written checks the skip-unwritten policy: once ino1 is
// marked fully written, a hole on ino1's side is skipped on both sides without a data exchange.
func TestFinishOneSkipsUnwrittenWhenIno1Written(t *testing.T) {
	ino1 := &Inode{Fork: &memFork{exts: []Extent{
		{FileOffset: 0, Length: 3, Hole: true},
		{FileOffset: 3, PhysBlock: 900, Length: 2},
	}}, ExtentSize: 1}
	ino2 := &Inode{Fork: &memFork{exts: []Extent{
		{FileOffset: 0, PhysBlock: 700, Length: 5},
	}}, ExtentSize: 1}

	intent := &Intent{Ino1: ino1, Ino2: ino2, BlockCount: 5, Flags: FlagINO1Written}

	result, err := FinishOne(intent)
	require.NoError(t, err)
	assert.Equal(t, ResultRequeue, result)
	assert.Equal(t, int64(2), intent.BlockCount)
	assert.Equal(t, int64(3), intent.StartOff1)
	assert.Equal(t, int64(3), intent.StartOff2)

	result, err = FinishOne(intent)
	require.NoError(t, err)
	assert.Equal(t, ResultOk, result)
	assert.Equal(t, int64(0), intent.BlockCount)
}

// TestFinishOneRunsPostopAfterSwapCompletes checks that post-op reflink-clear work only runs once
// swap work is exhausted, and that it is reported via Requeue/Ok correctly either way.
func TestFinishOneRunsPostopAfterSwapCompletes(t *testing.T) {
	ino1, _ := singleExtentInode(1, 1)
	ino2, _ := singleExtentInode(2, 1)
	ino1.ReflinkSet = true
	ino2.ReflinkSet = true

	intent := &Intent{
		Ino1: ino1, Ino2: ino2, BlockCount: 1,
		Flags: FlagClearIno1Reflink | FlagClearIno2Reflink,
	}

	result, err := FinishOne(intent)
	require.NoError(t, err)
	assert.Equal(t, ResultOk, result)
	assert.False(t, ino1.ReflinkSet)
	assert.False(t, ino2.ReflinkSet)
}

// TestFinishOneAppliesQuotaDeltas checks step 3: moving a real extent onto a file and off another
// produces a matched +N/-N pair of deltas, while swapping two equally-real extents nets to zero.
func TestFinishOneAppliesQuotaDeltas(t *testing.T) {
	ino1, _ := singleExtentInode(10, 5)
	ino2, _ := singleExtentInode(20, 5)

	var deltas []int64
	intent := &Intent{
		Ino1: ino1, Ino2: ino2, BlockCount: 5,
		OnQuotaDelta: func(ino *Inode, delta int64) { deltas = append(deltas, delta) },
	}

	_, err := FinishOne(intent)
	require.NoError(t, err)
	// Both sides already held real extents, so the exchange carries no net quota change.
	assert.Empty(t, deltas)
}

// TestFinishOneTracksEOF checks step 4: each inode's size grows to cover the newly mapped range.
func TestFinishOneTracksEOF(t *testing.T) {
	ino1, _ := singleExtentInode(10, 5)
	ino1.Size = 2
	ino2, _ := singleExtentInode(20, 5)
	ino2.Size = 1

	intent := &Intent{Ino1: ino1, Ino2: ino2, BlockCount: 5}
	_, err := FinishOne(intent)
	require.NoError(t, err)
	assert.Equal(t, int64(5), ino1.Size)
	assert.Equal(t, int64(5), ino2.Size)
}

// TestFinishOneAppliesSetSizesOnceSwapDone checks that the explicit Isize1/Isize2 override, when
// requested via FlagSetSizes, only takes effect after all swap work is drained.
func TestFinishOneAppliesSetSizesOnceSwapDone(t *testing.T) {
	ino1, _ := singleExtentInode(10, 5)
	ino2, _ := singleExtentInode(20, 5)

	intent := &Intent{
		Ino1: ino1, Ino2: ino2, BlockCount: 5,
		Flags: FlagSetSizes, Isize1: 4096, Isize2: 8192,
	}
	_, err := FinishOne(intent)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), ino1.Size)
	assert.Equal(t, int64(8192), ino2.Size)
}
