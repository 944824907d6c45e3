// Package upgrade implements the feature-upgrade driver of spec.md §4.9: validate a requested set
// of feature additions against the current superblock, pre-flight every space and geometry
// constraint the new feature set would impose, and either abort with a diagnostic or hand back
// the tentative new superblock with the needs-repair bit set for the caller to write.
//
// Grounded on pkg/bulkload.Reserve's convergence loop, reused unmodified here to run each group's
// dummy reservation, and on pkg/rebuild's per-group driver shape generalized from one rebuild
// pass to one validate-then-commit pass.
package upgrade

import (
	"github.com/xrepair/xrepair/internal/repairflags"
	"github.com/xrepair/xrepair/pkg/bulkload"
	"github.com/xrepair/xrepair/pkg/geometry"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// GroupInput is one allocation group's view for the per-group dummy-reservation check.
type GroupInput struct {
	SeqNo       int64
	TotalBlocks int64
	FreeSpace   *bulkload.InMemoryFreeSpace

	// DummyGeometry is the geometry.Config a new per-group btree the requested features would add
	// (e.g. rmap-btree on a group that has none yet) needs reserved; nil means this feature set
	// adds no new per-group metadata tree for this group.
	DummyGeometry *geometry.Config
	RecordCount   int64
}

// Input is everything Plan needs to validate and build a tentative upgrade.
type Input struct {
	Current xfsfmt.SuperBlock
	Request repairflags.Features

	Groups []GroupInput

	// TotalFreeBlocks/TotalBlocks drive the whole-filesystem retention check.
	TotalBlocks     int64
	TotalFreeBlocks int64

	// CurrentLogBlocks is the log's size today; MinLogBlocks computes the new minimum the
	// requested feature set would impose. A nil MinLogBlocks means the request needs no larger
	// log, and the check always passes.
	CurrentLogBlocks uint32
	MinLogBlocks     func(sb xfsfmt.SuperBlock, req repairflags.Features) uint32

	// RootInodeUnderGeometry computes the root inode number the new geometry would assign, given
	// the tentative superblock; comparing it against Current.RootInode is step 4's "root inode
	// number under the new geometry must equal the current one." Left as an injected function,
	// like pkg/pptr's DiskOps, because the AG-to-inode packing this depends on lives in the
	// broader geometry layer, not in this package. Nil skips the check (no geometry change).
	RootInodeUnderGeometry func(sb xfsfmt.SuperBlock) uint64
}

// Result is what Plan produces: either an aborted diagnostic (no superblock write should follow)
// or the tentative superblock, with the needs-repair incompat bit set per step 5, ready for the
// caller to write.
type Result struct {
	Aborted bool
	Reason  string
	NewSB   xfsfmt.SuperBlock
}

// Plan runs spec.md §4.9 steps 1 through 5. It never mutates in.Current or any of in.Groups'
// free-space indexes; a dummy reservation runs against a scratch copy so a failed upgrade leaves
// every on-disk structure untouched, matching step 5's "abort ... with no change."
func Plan(in Input) (Result, error) {
	// Step 1: reject already-present features or unmet dependencies.
	if err := checkRequest(in.Current, in.Request); err != nil {
		return Result{Aborted: true, Reason: err.Error()}, nil
	}

	// Step 2: the snapshot is simply in.Current, an already-immutable value; callers that need
	// to roll back an aborted Plan just keep using it, since Plan never writes to it.

	// Step 3: tentative superblock with every requested feature bit OR'd in.
	newSB := applyFeatureBits(in.Current, in.Request)

	// Step 4: pre-flight checks, in the order spec.md §4.9 lists them.
	if in.MinLogBlocks != nil {
		if need := in.MinLogBlocks(newSB, in.Request); in.CurrentLogBlocks < need {
			return Result{Aborted: true, Reason: "log is smaller than the new feature set's minimum size"}, nil
		}
	}

	if in.RootInodeUnderGeometry != nil {
		if got := in.RootInodeUnderGeometry(newSB); got != in.Current.RootInode {
			return Result{Aborted: true, Reason: "root inode number would change under the new geometry"}, nil
		}
	}

	if reason := preflightGroups(in.Groups, newSB.BlockSize); reason != "" {
		return Result{Aborted: true, Reason: reason}, nil
	}

	if reason := preflightWholeFilesystem(in.TotalBlocks, in.TotalFreeBlocks, in.Request.ParentPointers); reason != "" {
		return Result{Aborted: true, Reason: reason}, nil
	}

	// Step 5: every check passed; set needs-repair so an interrupted upgrade completes on the
	// next run, per spec.md §4.9.
	newSB.IncompatFeatures |= xfsfmt.IncompatNeedsRepair
	return Result{NewSB: newSB}, nil
}
