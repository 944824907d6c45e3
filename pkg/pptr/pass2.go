package pptr

import "github.com/xrepair/xrepair/pkg/slab"

// RunPass2 drives spec.md §4.8 pass 2 across one AG: inodesAscending lists every inode in the AG
// in ascending order (the scanner's responsibility to enumerate), masterSorted is the global
// master slab after SortMaster, and readXattrs reads every PARENT-flagged xattr off one inode.
//
// The master cursor and the inode list are walked in lockstep, the same two-cursor advance
// pkg/swapext generalizes from the teacher's node-form directory build: inodesAscending never
// backtracks, so master records are grouped for the current inode by simply draining the cursor
// while ChildInoAG matches it.
func RunPass2(masterSorted *slab.Slab, inodesAscending []int64, names globalNameLookup, readXattrs func(ino int64) ([]RawXattr, error), ops DiskOps) error {
	cursor := masterSorted.NewCursor()
	var pending MasterRecord
	havePending := false

	for _, ino := range inodesAscending {
		var group []MasterRecord
		for {
			if !havePending {
				ok, err := cursor.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				rec, err := cursor.Record()
				if err != nil {
					return err
				}
				pending = DecodeMaster(rec)
				havePending = true
			}
			if pending.ChildInoAG != ino {
				break
			}
			group = append(group, pending)
			havePending = false
		}

		xattrs, err := readXattrs(ino)
		if err != nil {
			return err
		}
		if err := VerifyInode(ino, group, xattrs, names, ops); err != nil {
			return err
		}
	}
	return nil
}
