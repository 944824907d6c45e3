package main

import (
	"context"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/xrepair/xrepair/pkg/scanpool"
	"github.com/xrepair/xrepair/pkg/xfile"
)

// runCheck implements spec.md §6's check mode: open the device, read the superblock, scan every
// group, and report whether the filesystem is clean. check issues no writes, regardless of what
// --no-modify was set to; the device itself is opened through xfile.OpenDevice, which opens it
// read-write.
func runCheck(cmd *cobra.Command, args []string) error {
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
	clean := true

	err = scanpool.RunPerGroup(context.Background(), scanpool.GroupRange(int64(sb.AGCount)), runtime.NumCPU(),
		func(ctx context.Context, seqNo int64) error {
			if _, err := scanner.ScanGroup(ctx, seqNo); err != nil {
				clean = false
				log.Warnf("group %d: %v", seqNo, err)
			}
			return nil
		})
	if err != nil {
		return abortedResult(err)
	}

	if !clean {
		return abortedResult(nil)
	}
	return cleanResult()
}
