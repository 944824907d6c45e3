package upgrade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrepair/xrepair/internal/repairflags"
	"github.com/xrepair/xrepair/pkg/bulkload"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// v5SB builds a minimal v5 superblock for these tests. BlockSize is left at 0 so
// groupRetentionFloor falls back to the percentage-only threshold: these fixture groups are sized
// in the hundreds of blocks, far below any real AG, and the 10 GiB absolute floor is exercised
// directly (with realistic block counts) by the dedicated groupRetentionFloor tests below instead.
func v5SB() xfsfmt.SuperBlock {
	return xfsfmt.SuperBlock{
		VersionNum: xfsfmt.VersionNumber5,
		RootInode:  128,
	}
}

func roomyGroup(seqNo int64) GroupInput {
	return GroupInput{
		SeqNo:       seqNo,
		TotalBlocks: 1000,
		FreeSpace:   bulkload.NewInMemoryFreeSpace([]struct{ Start, Length int64 }{{Start: 100, Length: 900}}),
	}
}

func baseInput() Input {
	return Input{
		Current:         v5SB(),
		Groups:          []GroupInput{roomyGroup(0), roomyGroup(1)},
		TotalBlocks:     2000,
		TotalFreeBlocks: 1800,
	}
}

func TestPlanRejectsAlreadyEnabledFeature(t *testing.T) {
	in := baseInput()
	in.Current.RoCompatFeatures |= xfsfmt.RoCompatReflink
	in.Request = repairflags.Features{Reflink: true}

	res, err := Plan(in)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Contains(t, res.Reason, "already enabled")
}

func TestPlanRejectsReflinkWithoutV5(t *testing.T) {
	in := baseInput()
	in.Current.VersionNum = xfsfmt.VersionNumber
	in.Request = repairflags.Features{Reflink: true}

	res, err := Plan(in)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Contains(t, res.Reason, "v5")
}

func TestPlanRejectsReflinkWithoutRmapUnlessAlsoRequested(t *testing.T) {
	in := baseInput()
	in.Request = repairflags.Features{Reflink: true}

	res, err := Plan(in)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Contains(t, res.Reason, "reverse-mapping btree")

	in.Request = repairflags.Features{Reflink: true, RmapBtree: true}
	res, err = Plan(in)
	require.NoError(t, err)
	assert.False(t, res.Aborted)
	assert.NotZero(t, res.NewSB.RoCompatFeatures&xfsfmt.RoCompatReflink)
	assert.NotZero(t, res.NewSB.RoCompatFeatures&xfsfmt.RoCompatRmapbt)
}

func TestPlanSetsNeedsRepairOnSuccess(t *testing.T) {
	in := baseInput()
	in.Request = repairflags.Features{FreeInodeBtree: true}

	res, err := Plan(in)
	require.NoError(t, err)
	require.False(t, res.Aborted)
	assert.NotZero(t, res.NewSB.IncompatFeatures&xfsfmt.IncompatNeedsRepair)
	assert.NotZero(t, res.NewSB.RoCompatFeatures&xfsfmt.RoCompatFinobt)
}

// TestPlanScenarioF mirrors spec.md Scenario F: free-space < 25% with add_parent requested aborts
// with "not enough space to add parent pointers" and no superblock write (Aborted stays true, and
// NewSB is left at its zero value).
func TestPlanScenarioF(t *testing.T) {
	in := baseInput()
	in.TotalFreeBlocks = in.TotalBlocks / 5 // 20% free, below the 25% parent-pointer floor
	in.Request = repairflags.Features{ParentPointers: true}

	res, err := Plan(in)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Equal(t, "not enough space to add parent pointers", res.Reason)
	assert.Equal(t, xfsfmt.SuperBlock{}, res.NewSB)
}

func TestPlanAllowsParentPointersAtExactly25PercentFree(t *testing.T) {
	in := baseInput()
	in.TotalBlocks = 1000
	in.TotalFreeBlocks = 250
	in.Request = repairflags.Features{ParentPointers: true}

	res, err := Plan(in)
	require.NoError(t, err)
	assert.False(t, res.Aborted)
}

func TestPlanRejectsWholeFilesystemBelowTenPercentFree(t *testing.T) {
	in := baseInput()
	in.TotalBlocks = 1000
	in.TotalFreeBlocks = 50
	in.Request = repairflags.Features{FreeInodeBtree: true}

	res, err := Plan(in)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Contains(t, res.Reason, "not enough free space")
}

func TestPlanRejectsWhenGroupWouldDropBelowRetentionFloor(t *testing.T) {
	in := baseInput()
	tight := GroupInput{
		SeqNo:       0,
		TotalBlocks: 1000,
		FreeSpace:   bulkload.NewInMemoryFreeSpace([]struct{ Start, Length int64 }{{Start: 0, Length: 50}}),
	}
	in.Groups = []GroupInput{tight, roomyGroup(1)}
	in.Request = repairflags.Features{FreeInodeBtree: true}

	res, err := Plan(in)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Contains(t, res.Reason, "group 0")
}

func TestPlanRejectsLogTooSmall(t *testing.T) {
	in := baseInput()
	in.Request = repairflags.Features{FreeInodeBtree: true}
	in.CurrentLogBlocks = 10
	in.MinLogBlocks = func(sb xfsfmt.SuperBlock, req repairflags.Features) uint32 { return 100 }

	res, err := Plan(in)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Contains(t, res.Reason, "log")
}

func TestPlanRejectsRootInodeMismatch(t *testing.T) {
	in := baseInput()
	in.Request = repairflags.Features{FreeInodeBtree: true}
	in.RootInodeUnderGeometry = func(sb xfsfmt.SuperBlock) uint64 { return sb.RootInode + 1 }

	res, err := Plan(in)
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Contains(t, res.Reason, "root inode")
}

func TestGroupRetentionFloorUsesAbsoluteFloorForMiddleSizedGroups(t *testing.T) {
	// 1,000,000 blocks at 4096 bytes/block is ~3.8 GiB: 10 GiB absolute dominates 10%.
	floor := groupRetentionFloor(1_000_000, 4096)
	assert.Equal(t, int64(tenGiB/4096), floor)
}

func TestGroupRetentionFloorUsesPercentageForHugeGroups(t *testing.T) {
	// 100,000,000 blocks at 4096 bytes/block is ~380 GiB: 10% alone exceeds the 10 GiB floor.
	floor := groupRetentionFloor(100_000_000, 4096)
	assert.Equal(t, int64(10_000_000), floor)
}
