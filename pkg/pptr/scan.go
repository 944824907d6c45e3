package pptr

import (
	"github.com/xrepair/xrepair/pkg/slab"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// Dirent is one directory entry as the directory walker emits it, the pass-1 input of spec.md
// §4.8: "for every directory entry (dir_inode, name, child_inode)".
type Dirent struct {
	DirIno     int64
	DirGen     uint32
	ChildInoAG int64 // the child inode's ordinal within its AG, the master slab's join key
	Name       []byte
}

// ObserveDirent runs spec.md §4.8 pass 1 for one directory entry: look up or insert Name into the
// global deduplicated name store, then append the resulting master record to master.
//
// Safe to call concurrently across AG-scan workers per spec.md §5's "mutex-guarded slab insertion
// into the incore rmap accumulator for cross-AG rmap evidence (e.g. pptr global name store
// insertion)" — globalNames.InsertOrLookup already serializes itself; master is caller-owned and
// assumed to be this worker's own per-AG slab, not shared.
func ObserveDirent(globalNames *slab.NameStore, master *slab.Slab, d Dirent) error {
	hash := xfsfmt.HashName(d.Name)
	cookie := globalNames.InsertOrLookup(hash, d.Name)

	rec := MasterRecord{
		ChildInoAG: d.ChildInoAG,
		DirIno:     d.DirIno,
		DirGen:     d.DirGen,
		NameHash:   hash,
		NameCookie: cookie,
		NameLen:    uint16(len(d.Name)),
	}
	return master.Append(EncodeMaster(rec))
}

// SortMaster implements spec.md §4.8 pass 2's "sort the master slab by (child_in_ag, dir_inode,
// name_hash, name_cookie)".
func SortMaster(master *slab.Slab) { master.Sort(LessMaster) }

// NewMasterSlab creates an empty per-AG master slab, spilling to cfg.Store once cfg.SpillAt
// records accumulate resident — the AG's directory tree can easily outgrow comfortable residency,
// per spec.md §4's framing for the verifier's master slabs.
func NewMasterSlab(cfg slab.Config) *slab.Slab {
	cfg.RecSize = masterRecSize
	return slab.New(cfg)
}

