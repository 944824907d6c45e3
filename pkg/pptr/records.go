// Package pptr implements the parent-pointer verifier of spec.md §4.8: a two-pass cross-check
// between directory entries and the parent-pointer xattrs carried on each file, reconciling
// whichever side is out of date.
//
// Grounded on pkg/rmap's merge-walk-over-sorted-slabs pattern (itself grounded on the teacher's
// dir2HashTable sort-then-walk in pkg/xfs/dir.go) and pkg/slab's NameStore/Slab primitives, which
// this package's two passes are built directly on top of rather than reinventing.
package pptr

import (
	"encoding/binary"

	"github.com/xrepair/xrepair/pkg/slab"
)

// MasterRecord is one per-AG master-slab entry from pass 1: spec.md §4.8's
// (child_inode_in_ag, dir_inode, dir_generation, name_cookie, name_hash, name_len), one per
// directory entry seen by the walker.
type MasterRecord struct {
	ChildInoAG int64 // child_inode_in_ag
	DirIno     int64 // the entry's parent directory, spec.md's dir_inode / parent_inode
	DirGen     uint32
	NameHash   uint32
	NameCookie slab.Cookie
	NameLen    uint16
}

const masterRecSize = 32

// EncodeMaster packs a MasterRecord into the master slab's fixed-width record layout.
func EncodeMaster(r MasterRecord) []byte {
	buf := make([]byte, masterRecSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.ChildInoAG))
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.DirIno))
	binary.BigEndian.PutUint32(buf[16:20], r.DirGen)
	binary.BigEndian.PutUint32(buf[20:24], r.NameHash)
	binary.BigEndian.PutUint32(buf[24:28], uint32(r.NameCookie))
	binary.BigEndian.PutUint16(buf[28:30], r.NameLen)
	return buf
}

// DecodeMaster unpacks a master-slab record.
func DecodeMaster(rec []byte) MasterRecord {
	return MasterRecord{
		ChildInoAG: int64(binary.BigEndian.Uint64(rec[0:8])),
		DirIno:     int64(binary.BigEndian.Uint64(rec[8:16])),
		DirGen:     binary.BigEndian.Uint32(rec[16:20]),
		NameHash:   binary.BigEndian.Uint32(rec[20:24]),
		NameCookie: slab.Cookie(binary.BigEndian.Uint32(rec[24:28])),
		NameLen:    binary.BigEndian.Uint16(rec[28:30]),
	}
}

// LessMaster orders master records by spec.md §4.8's pass-2 sort key:
// (child_in_ag, dir_inode, name_hash, name_cookie).
func LessMaster(a, b []byte) bool {
	ra, rb := DecodeMaster(a), DecodeMaster(b)
	if ra.ChildInoAG != rb.ChildInoAG {
		return ra.ChildInoAG < rb.ChildInoAG
	}
	if ra.DirIno != rb.DirIno {
		return ra.DirIno < rb.DirIno
	}
	if ra.NameHash != rb.NameHash {
		return ra.NameHash < rb.NameHash
	}
	return ra.NameCookie < rb.NameCookie
}

// PerFileRecord is one parent-pointer xattr surviving structural validation, as pass 2 reads it
// off a single inode: spec.md's (parent_inode, parent_generation, namehash, name_cookie), plus the
// "name found in the global store" flag the merge-walk needs to separate matchable pptrs from
// unconditional excess.
type PerFileRecord struct {
	ParentIno     int64
	ParentGen     uint32
	NameHash      uint32
	NameCookie    slab.Cookie
	FoundInGlobal bool
}

const perFileRecSize = 24

// EncodePerFile packs a PerFileRecord into the per-file slab's fixed-width record layout.
func EncodePerFile(r PerFileRecord) []byte {
	buf := make([]byte, perFileRecSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.ParentIno))
	binary.BigEndian.PutUint32(buf[8:12], r.ParentGen)
	binary.BigEndian.PutUint32(buf[12:16], r.NameHash)
	binary.BigEndian.PutUint32(buf[16:20], uint32(r.NameCookie))
	if r.FoundInGlobal {
		buf[20] = 1
	}
	return buf
}

// DecodePerFile unpacks a per-file-slab record.
func DecodePerFile(rec []byte) PerFileRecord {
	return PerFileRecord{
		ParentIno:     int64(binary.BigEndian.Uint64(rec[0:8])),
		ParentGen:     binary.BigEndian.Uint32(rec[8:12]),
		NameHash:      binary.BigEndian.Uint32(rec[12:16]),
		NameCookie:    slab.Cookie(binary.BigEndian.Uint32(rec[16:20])),
		FoundInGlobal: rec[20] != 0,
	}
}

// compareKey orders a master record against a per-file record by the merge-walk's shared identity
// key (dir_inode/parent_inode, name_hash, name_cookie) — every field the table's "Master key <
// file key" / "Master key > file key" rows compare on. parent_generation is payload, not key: a
// key match with differing generation is the table's "keys equal but (gen, name) differ" row.
func compareKey(m MasterRecord, f PerFileRecord) int {
	switch {
	case m.DirIno != f.ParentIno:
		return cmpInt64(m.DirIno, f.ParentIno)
	case m.NameHash != f.NameHash:
		return cmpUint32(m.NameHash, f.NameHash)
	case m.NameCookie != f.NameCookie:
		return cmpUint32(uint32(m.NameCookie), uint32(f.NameCookie))
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
