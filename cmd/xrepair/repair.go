package main

import (
	"context"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/xrepair/xrepair/pkg/pptr"
	"github.com/xrepair/xrepair/pkg/rebuild"
	"github.com/xrepair/xrepair/pkg/scanpool"
	"github.com/xrepair/xrepair/pkg/slab"
	"github.com/xrepair/xrepair/pkg/xfile"
)

// runRepair drives spec.md §4.7's per-group rebuild and §4.8's two-pass parent-pointer verifier
// across the whole filesystem, per the worker-pool shapes spec.md §5 describes: a bounded pool
// for the AG rebuild (pkg/scanpool.RunPerGroup), one worker per AG for pass 2
// (pkg/scanpool.RunPass2Pool).
func runRepair(cmd *cobra.Command, args []string) error {
	dev, err := xfile.OpenDevice(args[0])
	if err != nil {
		return abortedResult(err)
	}
	defer dev.Close()

	sb, err := readSuperBlock(dev)
	if err != nil {
		return abortedResult(err)
	}

	scanner := Scanner(noScanner{})
	groups := scanpool.GroupRange(int64(sb.AGCount))
	results := make([]rebuild.GroupResult, len(groups))

	err = scanpool.RunPerGroup(context.Background(), groups, runtime.NumCPU(), func(ctx context.Context, seqNo int64) error {
		in, err := scanner.ScanGroup(ctx, seqNo)
		if err != nil {
			return err
		}
		res, err := rebuild.RebuildGroup(in)
		if err != nil {
			return err
		}
		results[seqNo] = res
		return nil
	})
	if err != nil {
		return abortedResult(err)
	}

	globalNames := slab.NewNameStore()
	master := pptr.NewMasterSlab(slab.Config{})
	if err := scanner.ObserveDirents(context.Background(), globalNames, master); err != nil {
		return abortedResult(err)
	}
	globalNames.Freeze()
	pptr.SortMaster(master)

	ops := &loggingDiskOps{}
	err = scanpool.RunPass2Pool(context.Background(), groups, func(ctx context.Context, seqNo int64) error {
		inodes, err := scanner.InodesInGroup(ctx, seqNo)
		if err != nil {
			return err
		}
		readXattrs := func(ino int64) ([]pptr.RawXattr, error) {
			return scanner.ReadXattrs(ctx, ino)
		}
		return pptr.RunPass2(master, inodes, globalNames, readXattrs, ops)
	})
	if err != nil {
		return abortedResult(err)
	}

	// Writing the rebuilt per-group AGF/AGI/AGFL headers and btree blocks back to dev needs the
	// same generic on-disk btree writer Scanner's doc comment calls out as outside this
	// repository's scope; results holds everything RebuildGroup computed, ready for that writer.
	_ = results

	if ops.changed > 0 && !flags.NoModify {
		return repairedResult()
	}
	return cleanResult()
}
