package rebuild

import (
	"encoding/binary"

	"github.com/xrepair/xrepair/pkg/rmap"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// FreeExtent is one in-core free-space run for a group, as the scanner reconstructs it.
type FreeExtent struct {
	Start, Length int64
}

// InodeChunk is one 64-inode chunk of the in-core inode tracking tree, the inobt/finobt loader
// input spec.md §4.7 step 2 names.
type InodeChunk struct {
	StartIno  int64
	FreeCount int64
	FreeMask  uint64
}

const allocRecSize = 16
const inodeChunkRecSize = 24
const refcountRecSize = 20

// allocRecKey orders free-space records by starting block (the bnobt key).
func allocRecKey(rec []byte) []byte { return rec[0:8] }

// allocRecCntKey orders free-space records by (length, start) (the bcntbt key).
func allocRecCntKey(rec []byte) []byte { return rec[8:16] }

func encodeAllocRec(start, length int64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(start))
	binary.BigEndian.PutUint64(buf[8:16], uint64(length))
	return buf
}

func decodeAllocRec(rec []byte) (start, length int64) {
	return int64(binary.BigEndian.Uint64(rec[0:8])), int64(binary.BigEndian.Uint64(rec[8:16]))
}

func encodeAllocRecCnt(start, length int64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(length))
	binary.BigEndian.PutUint64(buf[8:16], uint64(start))
	return buf
}

func inodeChunkKey(rec []byte) []byte { return rec[0:8] }

func encodeInodeChunk(c InodeChunk) []byte {
	buf := make([]byte, 24)
	binary.BigEndian.PutUint64(buf[0:8], uint64(c.StartIno))
	binary.BigEndian.PutUint64(buf[8:16], uint64(c.FreeCount))
	binary.BigEndian.PutUint64(buf[16:24], c.FreeMask)
	return buf
}

// rmapbt record layout: start_block(8) | block_count(8) | offset_packed(8, PackRmapOffset) |
// owner_ino(8) | owner_kind(1) + 7 bytes pad. start_block alone suffices as the bulk loader's key
// since the scanner never emits overlapping rmaps for one group.
const rmapRecSize = 40

func rmapRecKey(rec []byte) []byte { return rec[0:8] }

func encodeRmapRec(r rmap.Record) []byte {
	buf := make([]byte, rmapRecSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.StartBlock))
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.BlockCount))
	binary.BigEndian.PutUint64(buf[16:24], xfsfmt.PackRmapOffset(uint64(r.LogicalOffset), r.Flags))
	binary.BigEndian.PutUint64(buf[24:32], uint64(r.Owner.Ino))
	buf[32] = byte(r.Owner.Kind)
	return buf
}

// refcountbt record layout: start_block_with_domain(4, PackRefcountStart) | block_count(8) |
// refcount(8).
func refcountRecKey(rec []byte) []byte { return rec[0:4] }

func encodeRefcountRec(r rmap.RefcountRecord) []byte {
	buf := make([]byte, refcountRecSize)
	domain := xfsfmt.DomainShared
	if r.Domain == rmap.DomainCOW {
		domain = xfsfmt.DomainCOW
	}
	binary.BigEndian.PutUint32(buf[0:4], xfsfmt.PackRefcountStart(uint32(r.StartBlock), domain))
	binary.BigEndian.PutUint64(buf[4:12], uint64(r.BlockCount))
	binary.BigEndian.PutUint64(buf[12:20], uint64(r.Refcount))
	return buf
}
