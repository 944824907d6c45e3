package main

import (
	"github.com/spf13/cobra"

	"github.com/xrepair/xrepair/pkg/upgrade"
	"github.com/xrepair/xrepair/pkg/xfile"
)

// runUpgrade drives spec.md §4.9's feature-upgrade driver: plan against the current superblock
// and free-space totals, and only if the plan isn't aborted, write the new superblock back.
//
// The per-group dummy-reservation pre-flight (upgrade.Input.Groups) needs each group's free-space
// extents, which — like every other raw on-disk decode — comes from the Scanner boundary this
// repository leaves injected; with noScanner wired in, Groups is empty and that check trivially
// passes, same as an empty filesystem would.
func runUpgrade(cmd *cobra.Command, args []string) error {
	dev, err := xfile.OpenDevice(args[0])
	if err != nil {
		return abortedResult(err)
	}
	defer dev.Close()

	sb, err := readSuperBlock(dev)
	if err != nil {
		return abortedResult(err)
	}

	totalBlocks := int64(sb.DataBlocks)
	totalFree := int64(sb.DataFree)

	in := upgrade.Input{
		Current:          sb,
		Request:          flags.Add,
		TotalBlocks:      totalBlocks,
		TotalFreeBlocks:  totalFree,
		CurrentLogBlocks: sb.LogBlocks,
	}

	res, err := upgrade.Plan(in)
	if err != nil {
		return abortedResult(err)
	}
	if res.Aborted {
		log.Errorf("upgrade aborted: %s", res.Reason)
		return abortedResult(nil)
	}

	if flags.NoModify {
		log.Printf("would upgrade: %+v", flags.Add)
		return cleanResult()
	}

	if err := writeSuperBlock(dev, res.NewSB); err != nil {
		return abortedResult(err)
	}
	return repairedResult()
}
