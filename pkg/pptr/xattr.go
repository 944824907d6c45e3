package pptr

import (
	"github.com/xrepair/xrepair/pkg/slab"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// RawXattr is one attr-fork entry as read straight off an inode, before structural validation.
type RawXattr struct {
	Flags uint16
	Key   xfsfmt.ParentPointerXattrKey
	Value xfsfmt.ParentPointerXattrValue
}

// IsParent reports whether x carries the PARENT flag bit at all — xattrs without it are ordinary
// extended attributes, outside the verifier's concern.
func (x RawXattr) IsParent() bool { return x.Flags&xfsfmt.AttrFlagParent != 0 }

// ValidateXattr implements spec.md §4.8 pass 2's structural check: discard any PARENT-flagged
// xattr that fails on-disk structural validation, or "whose embedded name-hash disagrees with the
// hash of the value field." The embedded name-hash is the key's NameHash; the value field's hash
// is recomputed from its NameBytes via the same algorithm the dirent scan used, so a tampered or
// truncated value is caught the same way a mismatched dirent name would be.
func ValidateXattr(x RawXattr) bool {
	if int(x.Key.NameLen) != len(x.Value.NameBytes) {
		return false
	}
	if x.Value.HashOfValue != xfsfmt.HashName(x.Value.NameBytes) {
		return false
	}
	return x.Key.NameHash == x.Value.HashOfValue
}

// globalNameLookup is the read-only subset of *slab.NameStore pass 2 needs, per spec.md §5: "the
// global name store is read-only in pass 2 and may be accessed without locking."
type globalNameLookup interface {
	Contains(hash uint32, name []byte) (slab.Cookie, bool)
}

// ToPerFileRecord converts a structurally valid xattr into the per-file record pass 2 stores: the
// cookie and FoundInGlobal flag come from a lookup (not insert) against the frozen global name
// store, per spec.md §4.8's "flag indicating whether the name was found in the global store."
func ToPerFileRecord(names globalNameLookup, x RawXattr) PerFileRecord {
	cookie, found := names.Contains(x.Value.HashOfValue, x.Value.NameBytes)
	return PerFileRecord{
		ParentIno:     int64(x.Key.ParentIno),
		ParentGen:     x.Key.ParentGen,
		NameHash:      x.Key.NameHash,
		NameCookie:    cookie,
		FoundInGlobal: found,
	}
}
