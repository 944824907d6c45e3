package main

import (
	"github.com/xrepair/xrepair/internal/xferrors"
	"github.com/xrepair/xrepair/pkg/xfile"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// readSuperBlock reads and decodes the primary superblock at byte offset 0, per spec.md §6.
func readSuperBlock(dev *xfile.Device) (xfsfmt.SuperBlock, error) {
	buf := make([]byte, xfsfmt.SuperBlockSize)
	if err := dev.ReadAt(buf, 0); err != nil {
		return xfsfmt.SuperBlock{}, err
	}
	sb := xfsfmt.DecodeSuperBlock(buf)
	if sb.MagicNumber != xfsfmt.SBMagicNumber {
		return xfsfmt.SuperBlock{}, xferrors.New(xferrors.KindCorruption, "superblock magic mismatch")
	}
	return sb, nil
}

// writeSuperBlock encodes and writes sb back to byte offset 0, flushing the write-cache
// afterward so a crash between write and flush is visible as a torn sector, not a silent loss.
func writeSuperBlock(dev *xfile.Device, sb xfsfmt.SuperBlock) error {
	if err := dev.WriteAt(xfsfmt.EncodeSuperBlock(sb), 0); err != nil {
		return err
	}
	return dev.Flush()
}
