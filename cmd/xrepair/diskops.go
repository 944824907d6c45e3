package main

import (
	"github.com/xrepair/xrepair/pkg/pptr"
)

// loggingDiskOps is the DiskOps the repair run drives pass 2 through: actually rewriting an
// inode's attr fork requires the same generic on-disk btree writer Scanner's doc comment already
// calls out as outside this repository's scope, so every mutation here is logged as a finding
// rather than applied. A full implementation backs this interface with real attr-fork writes
// against the inode buffer cache once that writer exists.
type loggingDiskOps struct {
	changed int
}

func (d *loggingDiskOps) AddMissingPptr(ino int64, rec pptr.MasterRecord) error {
	d.changed++
	log.Infof("inode %d: add missing parent pointer (dir %d)", ino, rec.DirIno)
	return nil
}

func (d *loggingDiskOps) RemoveExcessPptr(ino int64, rec pptr.PerFileRecord) error {
	d.changed++
	log.Infof("inode %d: remove excess parent pointer", ino)
	return nil
}

func (d *loggingDiskOps) ReplacePptr(ino int64, old pptr.PerFileRecord, new pptr.MasterRecord) error {
	d.changed++
	log.Infof("inode %d: replace stale parent pointer (dir %d)", ino, new.DirIno)
	return nil
}

func (d *loggingDiskOps) DeleteGarbageXattr(ino int64, raw pptr.RawXattr) error {
	d.changed++
	log.Infof("inode %d: delete garbage parent-pointer xattr", ino)
	return nil
}
