package pptr

import (
	"github.com/xrepair/xrepair/internal/xferrors"
)

// DiskOps is the set of on-disk mutations the merge-walk drives; a real caller backs this with
// actual attr-fork writes against the repair engine's inode buffer cache. Kept as an interface
// (like pkg/swapext's Fork) so the comparison logic here stays independent of how an xattr is
// actually read or written.
type DiskOps interface {
	// AddMissingPptr writes a new parent-pointer xattr the master slab expects but the inode
	// doesn't currently carry.
	AddMissingPptr(ino int64, rec MasterRecord) error
	// RemoveExcessPptr deletes a parent-pointer xattr the inode carries but the master slab
	// doesn't expect.
	RemoveExcessPptr(ino int64, rec PerFileRecord) error
	// ReplacePptr unsets an existing pptr whose key matches the master's but whose generation
	// disagrees, then sets the master's version in its place.
	ReplacePptr(ino int64, old PerFileRecord, new MasterRecord) error
	// DeleteGarbageXattr removes a PARENT-flagged xattr that failed structural validation.
	// VerifyInode calls it during the same pass-2 walk of the inode's xattrs.
	DeleteGarbageXattr(ino int64, raw RawXattr) error
}

// VerifyInode runs spec.md §4.8 pass 2's merge-walk for one inode: masterForInode is this child's
// slice of the (already pass-2-sorted) master slab, and xattrs is every PARENT-flagged xattr read
// off the inode. Structurally invalid xattrs are deleted unconditionally; of the survivors, those
// whose name wasn't found in the global store are unconditional excess (a dirent scan can only ever
// reference a name that pass 1 inserted, so such a pptr has no possible master counterpart); the
// rest are merge-walked against masterForInode by (parent_inode, name_hash, name_cookie).
//
// If masterForInode is empty but at least one xattr survives validation, that is spec.md's "per-
// file has entries for an inode the master doesn't know about" — a fatal inconsistency between the
// incore dirent-derived state and what's actually on disk, since every referenced child inode must
// have produced at least one master record during pass 1.
func VerifyInode(ino int64, masterForInode []MasterRecord, xattrs []RawXattr, names globalNameLookup, ops DiskOps) error {
	var valid []PerFileRecord
	for _, x := range xattrs {
		if !ValidateXattr(x) {
			if err := ops.DeleteGarbageXattr(ino, x); err != nil {
				return err
			}
			continue
		}
		valid = append(valid, ToPerFileRecord(names, x))
	}

	var matchable, excess []PerFileRecord
	for _, rec := range valid {
		if rec.FoundInGlobal {
			matchable = append(matchable, rec)
		} else {
			excess = append(excess, rec)
		}
	}

	if len(masterForInode) == 0 && len(matchable) > 0 {
		return xferrors.New(xferrors.KindCorruption,
			"pptr: inode carries parent pointers the master slab has no record of")
	}

	sortMasterSlice(masterForInode)
	sortPerFileSlice(matchable)

	i, j := 0, 0
	for i < len(masterForInode) && j < len(matchable) {
		m, f := masterForInode[i], matchable[j]
		switch compareKey(m, f) {
		case -1:
			if err := ops.AddMissingPptr(ino, m); err != nil {
				return err
			}
			i++
		case 1:
			if err := ops.RemoveExcessPptr(ino, f); err != nil {
				return err
			}
			j++
		default:
			if m.DirGen != f.ParentGen {
				if err := ops.ReplacePptr(ino, f, m); err != nil {
					return err
				}
			}
			i++
			j++
		}
	}
	// Master still has records this inode carries none of left (file cursor exhausted first):
	// each remaining master entry is missing on disk.
	for ; i < len(masterForInode); i++ {
		if err := ops.AddMissingPptr(ino, masterForInode[i]); err != nil {
			return err
		}
	}
	// Master is exhausted but the inode has records left: each remaining file entry is excess.
	for ; j < len(matchable); j++ {
		if err := ops.RemoveExcessPptr(ino, matchable[j]); err != nil {
			return err
		}
	}

	for _, rec := range excess {
		if err := ops.RemoveExcessPptr(ino, rec); err != nil {
			return err
		}
	}

	return nil
}

func sortMasterSlice(recs []MasterRecord) {
	insertionSort(len(recs), func(i, j int) bool {
		return compareKey(recs[i], dummyFile(recs[j])) < 0
	}, func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })
}

// dummyFile projects a MasterRecord onto PerFileRecord's key fields so sortMasterSlice can reuse
// compareKey for master-against-master ordering.
func dummyFile(m MasterRecord) PerFileRecord {
	return PerFileRecord{ParentIno: m.DirIno, NameHash: m.NameHash, NameCookie: m.NameCookie}
}

func sortPerFileSlice(recs []PerFileRecord) {
	insertionSort(len(recs), func(i, j int) bool {
		return compareKey(dummyMaster(recs[i]), recs[j]) < 0
	}, func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })
}

func dummyMaster(f PerFileRecord) MasterRecord {
	return MasterRecord{DirIno: f.ParentIno, NameHash: f.NameHash, NameCookie: f.NameCookie}
}

// insertionSort is a small in-place sort for the handful of pptrs one inode ever carries — not
// worth pulling in sort.Slice's reflection-based comparator for lists this short.
func insertionSort(n int, less func(i, j int) bool, swap func(i, j int)) {
	for i := 1; i < n; i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			swap(j, j-1)
		}
	}
}
