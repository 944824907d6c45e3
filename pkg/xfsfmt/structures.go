// Package xfsfmt holds the on-disk wire structures the repair engine consumes and produces,
// bit-exact and big-endian per spec.md §6. It extends vorteil's pkg/xfs/structures.go (SuperBlock,
// AGF, AGI, BTreeSBlock, AllocRecord, InodeBTRecord, InodeCore) with the CRC/rmap/refcount/realtime
// structures a repair engine needs that an image *builder* never touched.
package xfsfmt

const (
	SBMagicNumber  = 0x58465342 // "XFSB"
	SectorSizeLog  = 9
	SectorSize     = 0x1 << SectorSizeLog

	VersionNumber    = 4
	VersionNumber5   = 5
	VersionNumberMask = 0x000f
	VersionAttrBit   = 0x0010
	VersionNlinkBit  = 0x0020
	VersionQuotaBit  = 0x0040
	VersionAlignBit  = 0x0080
	VersionDalignBit = 0x0100
	VersionSharedBit = 0x0200
	VersionLogV2Bit  = 0x0400
	VersionSectorBit = 0x0800
	VersionExtFlgBit = 0x1000
	VersionDirV2Bit  = 0x2000

	Version2LazySBCountBit = 0x00000002
	Version2Attr2Bit       = 0x00000008
	Version2ParentBit      = 0x00000010
	Version2ProjID32Bit    = 0x00000080
	Version2CRCBit         = 0x00000100
	Version2Ftype          = 0x00000200

	// Incompat feature bits (v5, CRC-enabled filesystems).
	IncompatFType      = 0x0001
	IncompatSpinodes   = 0x0002
	IncompatMetaUUID   = 0x0004
	IncompatBigtime    = 0x0008
	IncompatNeedsRepair = 0x0010
	IncompatNRExt64    = 0x0020
	IncompatExchRange  = 0x0040
	IncompatParent     = 0x0080
	IncompatMetadir    = 0x0100

	RoCompatFinobt   = 0x0001
	RoCompatRmapbt   = 0x0002
	RoCompatReflink  = 0x0004
	RoCompatInobtcnt = 0x0008

	AGFMagicNumber = 0x58414746 // "XAGF"
	AGFVersion     = 1
	AGIMagicNumber = 0x58414749 // "XAGI"
	AGIVersion     = 1

	ABTBMagicNumber  = 0x41425442 // "ABTB" short-pointer free-by-offset
	ABTCMagicNumber  = 0x41425443 // "ABTC" short-pointer free-by-count
	ABTBMagicNumberV5 = 0x41423342 // "AB3B" long-pointer, CRC
	ABTCMagicNumberV5 = 0x41423343 // "AB3C"
	IBTMagicNumber   = 0x49414254 // "IABT"
	IBTMagicNumberV5 = 0x49414233 // "IAB3"
	FIBTMagicNumber  = 0x46494254 // "FIBT"
	FIBTMagicNumberV5 = 0x46494233 // "FIB3"
	RMAPMagicNumberV5 = 0x524d4233 // "RMB3"
	REFCMagicNumberV5 = 0x52334643 // "R3FC"

	MaxExtentLen = (1 << 21) - 1 // XFS_MAX_BMBT_EXTLEN
)

// SuperBlock is the primary per-filesystem descriptor, 512 bytes, at byte offset 0 of the device.
type SuperBlock struct {
	MagicNumber                     uint32
	BlockSize                       uint32
	DataBlocks                      uint64
	RealtimeBlocks                  uint64
	RealtimeExtents                 uint64
	UUID                             [16]byte
	LogStart                        uint64
	RootInode                       uint64
	RealtimeBitmapInode             uint64
	RealtimeSummaryInode            uint64
	RealtimeExtentBlocks            uint32
	AGBlocks                        uint32
	AGCount                         uint32
	RealtimeBitmapBlocks            uint32
	LogBlocks                       uint32
	VersionNum                      uint16
	SectorSize                      uint16
	InodeSize                       uint16
	InodesPerBlock                  uint16
	FSName                          [12]byte
	BlockSizeLogarithmic            uint8
	SectorSizeLogarithmic           uint8
	InodeSizeLogarithmic            uint8
	InodesPerBlockLogarithmic       uint8
	AGBlocksLogarithmic             uint8
	RealtimeExtentBlocksLogarithmic uint8
	InProgress                      uint8
	InodesMaxPercentage             uint8
	InodesAllocated                 uint64
	InodesFree                      uint64
	DataFree                        uint64
	RealtimeExtentsFree             uint64
	UserQuotasInode                 uint64
	GroupQuotasInode                uint64
	QuotaFlags                      uint16
	MiscFlags                       uint8
	SharedVN                        uint8
	InodeChunkAlignment             uint32
	StripeUnitBlocks                uint32
	StripeWidthBlocks               uint32
	DirectoryBlocksLogarithmic      uint8
	LogSectorSizeLogarithmic        uint8
	LogSectorSize                   uint16
	LogStripeUnit                   uint32
	MoreFeatures                    uint32
	BadFeatures                     uint32

	// Version 5 (CRC-enabled) fields.
	CompatFeatures    uint32
	RoCompatFeatures  uint32
	IncompatFeatures  uint32
	LogIncompatFeatures uint32
	Checksum          uint32
	SparseInodeAlign  uint32
	ProjectQuotaInode uint64
	LastLogSeqNo      uint64
	MetaUUID          [16]byte
	RmapInode         uint64

	// Realtime group fields (SPEC_FULL §7 supplement).
	RtStartBlock uint64
	RtGroupCount uint32
	RtGroupBlocks uint32
}

// RtSuperBlock mirrors a subset of SuperBlock for a single realtime group, per spec.md §6.
type RtSuperBlock struct {
	MagicNumber   uint32
	Sequence      uint32
	GroupBlocks   uint32
	BitmapBlocks  uint32
	SummaryBlocks uint32
	UUID          [16]byte
}

// AGF is the per-AG free-space header.
type AGF struct {
	Magic       uint32
	Version     uint32
	SeqNo       uint32
	Length      uint32
	Roots       [2]uint32 // bnobt, cntbt
	Spare0      uint32
	Levels      [2]uint32
	Spare1      uint32
	FLFirst     uint32
	FLLast      uint32
	FLCount     uint32
	FreeBlocks  uint32
	Longest     uint32
	BTreeBlocks uint32

	// v5 additions.
	RmapRoot   uint32
	RmapLevel  uint32
	RmapBlocks uint32
	RefcountRoot   uint32
	RefcountLevel  uint32
	RefcountBlocks uint32
	UUID       [16]byte
}

// AGI is the per-AG inode-btree header.
type AGI struct {
	Magic     uint32
	Version   uint32
	SeqNo     uint32
	Length    uint32
	Count     uint32
	Root      uint32
	Level     uint32
	FreeCount uint32
	NewIno    uint32
	DirIno    uint32
	Unlinked  [64]uint32

	// v5 additions.
	FreeRoot  uint32
	FreeLevel uint32
	UUID      [16]byte
}

// AGFL is the per-AG free list: a small circular buffer of blocks reserved for allocator
// forward-progress, stored as a flat array of block numbers between FLFirst and FLLast.
type AGFL struct {
	Magic    uint32 // v5 only; 0 on v4
	SeqNo    uint32
	UUID     [16]byte
	Bnos     []uint32
}

// BTreeSBlock is the short-pointer btree block header (v4, non-CRC).
type BTreeSBlock struct {
	Magic    uint32
	Level    uint16
	NumRecs  uint16
	LeftSIB  uint32
	RightSIB uint32
}

// BTreeLBlockV5 is the long-pointer, CRC-checksummed btree block header used by rmapbt/refcountbt
// and by any v5 short-form tree promoted to long pointers. It is the v5 parallel structure
// SPEC_FULL §5 adds alongside the teacher's v4-only BTreeSBlock.
type BTreeLBlockV5 struct {
	Magic    uint32
	Level    uint16
	NumRecs  uint16
	LeftSIB  uint64
	RightSIB uint64
	BlockNo  uint64
	LSN      uint64
	UUID     [16]byte
	Owner    uint64
	Checksum uint32
}

type AllocRecord struct {
	StartBlock uint32
	BlockCount uint32
}

type InodeBTRecord struct {
	StartIno  uint32
	FreeCount uint32
	Free      uint64
}

// RmapRecordDisk is the on-disk encoding of an rmap record (spec.md §6): the top bits of
// OffsetPacked encode the ATTR_FORK/BMBT_BLOCK/UNWRITTEN flags.
type RmapRecordDisk struct {
	StartBlock   uint32
	BlockCount   uint32
	Owner        uint64
	OffsetPacked uint64
}

const (
	rmapOffsetAttrForkBit  = uint64(1) << 63
	rmapOffsetBMBTBit      = uint64(1) << 62
	rmapOffsetUnwrittenBit = uint64(1) << 61
	rmapOffsetMask         = rmapOffsetUnwrittenBit - 1
)

// RefcountRecordDisk is the on-disk encoding of a refcount record: the top bit of
// StartBlockWithDomain encodes the COW-domain flag (spec.md §6).
type RefcountRecordDisk struct {
	StartBlockWithDomain uint32
	BlockCount           uint32
	Refcount             uint32
}

const refcountDomainCOWBit = uint32(1) << 31

type Timestamp struct {
	Sec  uint32
	NSec uint32
}

// InodeCore is the fixed-size header of every on-disk inode.
type InodeCore struct {
	Magic        uint16
	Mode         uint16
	Version      uint8
	Format       uint8
	Onlink       uint16
	UID          uint32
	GID          uint32
	Nlink        uint32
	ProjID       uint16
	Pad          [8]byte
	FlushIter    uint16
	ATime        Timestamp
	MTime        Timestamp
	CTime        Timestamp
	Size         int64
	NBlocks      uint64
	ExtSize      uint32
	NExtents     int32
	ANExtents    int16
	ForkOff      uint8
	AFormat      int8
	DMevMask     uint32
	DMState      uint16
	Flags        uint16
	Gen          uint32
	NextUnlinked uint32

	// v5 additions.
	Checksum  uint32
	ChangeCnt uint64
	LSN       uint64
	Flags2    uint64
	CowExtSize uint32
	CRTime    Timestamp
	Ino       uint64
	UUID      [16]byte
}

// ParentPointerXattrKey is the attr-fork key half of a PARENT-flagged xattr (spec.md §6).
type ParentPointerXattrKey struct {
	ParentIno uint64
	ParentGen uint32
	NameHash  uint32
	NameLen   uint16
}

// ParentPointerXattrValue is the value half; HashOfValue must equal the hash of NameBytes, or the
// xattr is structurally invalid (spec.md §8 boundary case).
type ParentPointerXattrValue struct {
	HashOfValue uint32
	NameBytes   []byte
}
