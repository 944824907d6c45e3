package xfsfmt

import "encoding/binary"

// SuperBlockSize is the on-disk size of the packed SuperBlock record, per spec.md §6's "512 bytes,
// at byte offset 0 of the device." The fields packed below cover every field Plan/rebuild actually
// read or write; the remainder of the 512-byte sector is reserved padding, as on a real XFS
// superblock.
const SuperBlockSize = 512

// EncodeSuperBlock packs sb into its bit-exact, big-endian on-disk form, per spec.md §6.
// Grounded on pkg/rmap's encodeRecord/decodeRecord byte-offset style, extended here to the wider
// field set a superblock carries.
func EncodeSuperBlock(sb SuperBlock) []byte {
	buf := make([]byte, SuperBlockSize)
	binary.BigEndian.PutUint32(buf[0:4], sb.MagicNumber)
	binary.BigEndian.PutUint32(buf[4:8], sb.BlockSize)
	binary.BigEndian.PutUint64(buf[8:16], sb.DataBlocks)
	binary.BigEndian.PutUint64(buf[16:24], sb.RealtimeBlocks)
	binary.BigEndian.PutUint64(buf[24:32], sb.RealtimeExtents)
	copy(buf[32:48], sb.UUID[:])
	binary.BigEndian.PutUint64(buf[48:56], sb.LogStart)
	binary.BigEndian.PutUint64(buf[56:64], sb.RootInode)
	binary.BigEndian.PutUint64(buf[64:72], sb.RealtimeBitmapInode)
	binary.BigEndian.PutUint64(buf[72:80], sb.RealtimeSummaryInode)
	binary.BigEndian.PutUint32(buf[80:84], sb.RealtimeExtentBlocks)
	binary.BigEndian.PutUint32(buf[84:88], sb.AGBlocks)
	binary.BigEndian.PutUint32(buf[88:92], sb.AGCount)
	binary.BigEndian.PutUint32(buf[92:96], sb.RealtimeBitmapBlocks)
	binary.BigEndian.PutUint32(buf[96:100], sb.LogBlocks)
	binary.BigEndian.PutUint16(buf[100:102], sb.VersionNum)
	binary.BigEndian.PutUint16(buf[102:104], sb.SectorSize)
	binary.BigEndian.PutUint16(buf[104:106], sb.InodeSize)
	binary.BigEndian.PutUint16(buf[106:108], sb.InodesPerBlock)
	copy(buf[108:120], sb.FSName[:])
	buf[120] = sb.BlockSizeLogarithmic
	buf[121] = sb.SectorSizeLogarithmic
	buf[122] = sb.InodeSizeLogarithmic
	buf[123] = sb.InodesPerBlockLogarithmic
	buf[124] = sb.AGBlocksLogarithmic
	buf[125] = sb.RealtimeExtentBlocksLogarithmic
	buf[126] = sb.InProgress
	buf[127] = sb.InodesMaxPercentage
	binary.BigEndian.PutUint64(buf[128:136], sb.InodesAllocated)
	binary.BigEndian.PutUint64(buf[136:144], sb.InodesFree)
	binary.BigEndian.PutUint64(buf[144:152], sb.DataFree)
	binary.BigEndian.PutUint64(buf[152:160], sb.RealtimeExtentsFree)
	binary.BigEndian.PutUint64(buf[160:168], sb.UserQuotasInode)
	binary.BigEndian.PutUint64(buf[168:176], sb.GroupQuotasInode)
	binary.BigEndian.PutUint16(buf[176:178], sb.QuotaFlags)
	buf[178] = sb.MiscFlags
	buf[179] = sb.SharedVN
	binary.BigEndian.PutUint32(buf[180:184], sb.InodeChunkAlignment)
	binary.BigEndian.PutUint32(buf[184:188], sb.StripeUnitBlocks)
	binary.BigEndian.PutUint32(buf[188:192], sb.StripeWidthBlocks)
	buf[192] = sb.DirectoryBlocksLogarithmic
	buf[193] = sb.LogSectorSizeLogarithmic
	binary.BigEndian.PutUint16(buf[194:196], sb.LogSectorSize)
	binary.BigEndian.PutUint32(buf[196:200], sb.LogStripeUnit)
	binary.BigEndian.PutUint32(buf[200:204], sb.MoreFeatures)
	binary.BigEndian.PutUint32(buf[204:208], sb.BadFeatures)
	binary.BigEndian.PutUint32(buf[208:212], sb.CompatFeatures)
	binary.BigEndian.PutUint32(buf[212:216], sb.RoCompatFeatures)
	binary.BigEndian.PutUint32(buf[216:220], sb.IncompatFeatures)
	binary.BigEndian.PutUint32(buf[220:224], sb.LogIncompatFeatures)
	binary.BigEndian.PutUint32(buf[224:228], sb.Checksum)
	binary.BigEndian.PutUint32(buf[228:232], sb.SparseInodeAlign)
	binary.BigEndian.PutUint64(buf[232:240], sb.ProjectQuotaInode)
	binary.BigEndian.PutUint64(buf[240:248], sb.LastLogSeqNo)
	copy(buf[248:264], sb.MetaUUID[:])
	binary.BigEndian.PutUint64(buf[264:272], sb.RmapInode)
	binary.BigEndian.PutUint64(buf[272:280], sb.RtStartBlock)
	binary.BigEndian.PutUint32(buf[280:284], sb.RtGroupCount)
	binary.BigEndian.PutUint32(buf[284:288], sb.RtGroupBlocks)
	return buf
}

// DecodeSuperBlock unpacks buf (at least SuperBlockSize bytes) into a SuperBlock.
func DecodeSuperBlock(buf []byte) SuperBlock {
	var sb SuperBlock
	sb.MagicNumber = binary.BigEndian.Uint32(buf[0:4])
	sb.BlockSize = binary.BigEndian.Uint32(buf[4:8])
	sb.DataBlocks = binary.BigEndian.Uint64(buf[8:16])
	sb.RealtimeBlocks = binary.BigEndian.Uint64(buf[16:24])
	sb.RealtimeExtents = binary.BigEndian.Uint64(buf[24:32])
	copy(sb.UUID[:], buf[32:48])
	sb.LogStart = binary.BigEndian.Uint64(buf[48:56])
	sb.RootInode = binary.BigEndian.Uint64(buf[56:64])
	sb.RealtimeBitmapInode = binary.BigEndian.Uint64(buf[64:72])
	sb.RealtimeSummaryInode = binary.BigEndian.Uint64(buf[72:80])
	sb.RealtimeExtentBlocks = binary.BigEndian.Uint32(buf[80:84])
	sb.AGBlocks = binary.BigEndian.Uint32(buf[84:88])
	sb.AGCount = binary.BigEndian.Uint32(buf[88:92])
	sb.RealtimeBitmapBlocks = binary.BigEndian.Uint32(buf[92:96])
	sb.LogBlocks = binary.BigEndian.Uint32(buf[96:100])
	sb.VersionNum = binary.BigEndian.Uint16(buf[100:102])
	sb.SectorSize = binary.BigEndian.Uint16(buf[102:104])
	sb.InodeSize = binary.BigEndian.Uint16(buf[104:106])
	sb.InodesPerBlock = binary.BigEndian.Uint16(buf[106:108])
	copy(sb.FSName[:], buf[108:120])
	sb.BlockSizeLogarithmic = buf[120]
	sb.SectorSizeLogarithmic = buf[121]
	sb.InodeSizeLogarithmic = buf[122]
	sb.InodesPerBlockLogarithmic = buf[123]
	sb.AGBlocksLogarithmic = buf[124]
	sb.RealtimeExtentBlocksLogarithmic = buf[125]
	sb.InProgress = buf[126]
	sb.InodesMaxPercentage = buf[127]
	sb.InodesAllocated = binary.BigEndian.Uint64(buf[128:136])
	sb.InodesFree = binary.BigEndian.Uint64(buf[136:144])
	sb.DataFree = binary.BigEndian.Uint64(buf[144:152])
	sb.RealtimeExtentsFree = binary.BigEndian.Uint64(buf[152:160])
	sb.UserQuotasInode = binary.BigEndian.Uint64(buf[160:168])
	sb.GroupQuotasInode = binary.BigEndian.Uint64(buf[168:176])
	sb.QuotaFlags = binary.BigEndian.Uint16(buf[176:178])
	sb.MiscFlags = buf[178]
	sb.SharedVN = buf[179]
	sb.InodeChunkAlignment = binary.BigEndian.Uint32(buf[180:184])
	sb.StripeUnitBlocks = binary.BigEndian.Uint32(buf[184:188])
	sb.StripeWidthBlocks = binary.BigEndian.Uint32(buf[188:192])
	sb.DirectoryBlocksLogarithmic = buf[192]
	sb.LogSectorSizeLogarithmic = buf[193]
	sb.LogSectorSize = binary.BigEndian.Uint16(buf[194:196])
	sb.LogStripeUnit = binary.BigEndian.Uint32(buf[196:200])
	sb.MoreFeatures = binary.BigEndian.Uint32(buf[200:204])
	sb.BadFeatures = binary.BigEndian.Uint32(buf[204:208])
	sb.CompatFeatures = binary.BigEndian.Uint32(buf[208:212])
	sb.RoCompatFeatures = binary.BigEndian.Uint32(buf[212:216])
	sb.IncompatFeatures = binary.BigEndian.Uint32(buf[216:220])
	sb.LogIncompatFeatures = binary.BigEndian.Uint32(buf[220:224])
	sb.Checksum = binary.BigEndian.Uint32(buf[224:228])
	sb.SparseInodeAlign = binary.BigEndian.Uint32(buf[228:232])
	sb.ProjectQuotaInode = binary.BigEndian.Uint64(buf[232:240])
	sb.LastLogSeqNo = binary.BigEndian.Uint64(buf[240:248])
	copy(sb.MetaUUID[:], buf[248:264])
	sb.RmapInode = binary.BigEndian.Uint64(buf[264:272])
	sb.RtStartBlock = binary.BigEndian.Uint64(buf[272:280])
	sb.RtGroupCount = binary.BigEndian.Uint32(buf[280:284])
	sb.RtGroupBlocks = binary.BigEndian.Uint32(buf[284:288])
	return sb
}
