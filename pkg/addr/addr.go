// Package addr implements the address-space converter of spec.md §4.10: pure arithmetic between
// the lattice of address forms listed in spec.md §3 (byte offset, sector, filesystem block, AG
// block, inode number, realtime block/extent, rt-bitmap block/word, rt-summary log/info/block).
//
// Grounded directly on the teacher's translateRelativeInodeNumber / translateAbsoluteInodeNumber /
// translateRelativeBlockNumber / translateAbsoluteBlockNumber / inodeNumber / blockNumber family in
// pkg/xfs/xfs.go, which already does table-driven shift arithmetic between an AG-relative form and
// a packed absolute form. This package generalizes that one-directional, two-type conversion into
// a table-driven converter across the full lattice, per the spec's "table for data-device types and
// a table for realtime-device types" description.
package addr

import "github.com/xrepair/xrepair/internal/xferrors"

// Type names one address form in the conversion lattice.
type Type int

const (
	TypeBYTEOFF Type = iota
	TypeSECTOR
	TypeFSBLOCK
	TypeAGNUMBER
	TypeAGBLOCK
	TypeINOIDX
	TypeINO
	TypeRTBLOCK
	TypeRTEXTENT
	TypeRTBITBLOCK
	TypeRTBITWORD
	TypeRSUMLOG
	TypeRSUMINFO
	TypeRSUMBLOCK
)

func (t Type) String() string {
	switch t {
	case TypeBYTEOFF:
		return "BYTEOFF"
	case TypeSECTOR:
		return "SECTOR"
	case TypeFSBLOCK:
		return "FSBLOCK"
	case TypeAGNUMBER:
		return "AGNUMBER"
	case TypeAGBLOCK:
		return "AGBLOCK"
	case TypeINOIDX:
		return "INOIDX"
	case TypeINO:
		return "INO"
	case TypeRTBLOCK:
		return "RTBLOCK"
	case TypeRTEXTENT:
		return "RTEXTENT"
	case TypeRTBITBLOCK:
		return "RTBITBLOCK"
	case TypeRTBITWORD:
		return "RTBITWORD"
	case TypeRSUMLOG:
		return "RSUMLOG"
	case TypeRSUMINFO:
		return "RSUMINFO"
	case TypeRSUMBLOCK:
		return "RSUMBLOCK"
	default:
		return "UNKNOWN"
	}
}

// dataTypes is the legal-combination table for data-device address expressions: a component of
// one of these types may only appear alongside other types in this set, per spec.md §4.10.
var dataTypes = map[Type]bool{
	TypeBYTEOFF:  true,
	TypeSECTOR:   true,
	TypeFSBLOCK:  true,
	TypeAGNUMBER: true,
	TypeAGBLOCK:  true,
	TypeINOIDX:   true,
	TypeINO:      true,
}

// rtTypes is the legal-combination table for realtime-device address expressions.
var rtTypes = map[Type]bool{
	TypeRTBLOCK:    true,
	TypeRTEXTENT:   true,
	TypeRTBITBLOCK: true,
	TypeRTBITWORD:  true,
	TypeRSUMLOG:    true,
	TypeRSUMINFO:   true,
	TypeRSUMBLOCK:  true,
}

// rtContextOrder is the fixed left-to-right order the three realtime "context" types must be
// supplied in, because later components' conversions depend on earlier ones (spec.md §4.10).
var rtContextOrder = []Type{TypeRSUMLOG, TypeRSUMINFO, TypeRSUMBLOCK}

// Geometry carries the per-filesystem constants the converter's table-driven shift/multiply
// formulas need. Field names mirror the teacher's constants.exponents group in pkg/xfs/xfs.go.
type Geometry struct {
	SectorSizeLog2  uint
	BlockSizeLog2   uint
	AGBlockCountLog2 uint // log2 of blocks per AG; the teacher's exponents.blocksPerAllocGroup
	InodeSizeLog2   uint

	AGBlockCount int64 // blocks per AG, redundant with AGBlockCountLog2 when AG size is a power of two

	RTExtentSize  int64 // blocks per realtime extent
	RSumLevels    int64 // rt summary level count (rsumlog); 0 selects the guarded RSUMBLOCK path
	RTBitmapWords int64 // words per rt bitmap block
}

func (g Geometry) inodesPerBlock() int64 {
	return 1 << (g.BlockSizeLog2 - g.InodeSizeLog2)
}

// Component is one named value supplied to Convert.
type Component struct {
	Type  Type
	Value int64
}

// Convert validates components as a legal combination, reduces them to a common byte-offset
// representation, sums them, then projects onto out. An invalid ordering, an unknown type, or a
// conflicting type pair (e.g. mixing a data-device component with a realtime one) is a typed
// error.
func Convert(g Geometry, out Type, components ...Component) (int64, error) {
	if len(components) == 0 {
		return 0, xferrors.New(xferrors.KindInvalidArgument, "addr: no components")
	}

	isRT := rtTypes[out]
	for _, c := range components {
		if dataTypes[c.Type] == rtTypes[c.Type] {
			return 0, xferrors.New(xferrors.KindInvalidArgument, "addr: unknown type "+c.Type.String())
		}
		if rtTypes[c.Type] != isRT {
			return 0, xferrors.New(xferrors.KindInvalidArgument, "addr: conflicting data/realtime components")
		}
	}

	if isRT {
		if err := checkRTContextOrder(components); err != nil {
			return 0, err
		}
	}

	var byteOff int64
	for _, c := range components {
		off, err := toByteOffset(g, c)
		if err != nil {
			return 0, err
		}
		byteOff += off
	}

	return fromByteOffset(g, out, byteOff)
}

// checkRTContextOrder enforces that RSUMLOG, RSUMINFO, RSUMBLOCK, when present at all, appear in
// that left-to-right order among the supplied components.
func checkRTContextOrder(components []Component) error {
	lastIdx := -1
	for _, want := range rtContextOrder {
		found := -1
		for i, c := range components {
			if c.Type == want {
				found = i
				break
			}
		}
		if found == -1 {
			continue
		}
		if found < lastIdx {
			return xferrors.New(xferrors.KindInvalidArgument, "addr: realtime context types out of order")
		}
		lastIdx = found
	}
	return nil
}

func toByteOffset(g Geometry, c Component) (int64, error) {
	switch c.Type {
	case TypeBYTEOFF:
		return c.Value, nil
	case TypeSECTOR:
		return c.Value << g.SectorSizeLog2, nil
	case TypeFSBLOCK:
		return c.Value << g.BlockSizeLog2, nil
	case TypeAGNUMBER:
		return c.Value * g.AGBlockCount << g.BlockSizeLog2, nil
	case TypeAGBLOCK:
		return c.Value << g.BlockSizeLog2, nil
	case TypeINOIDX:
		return c.Value << g.InodeSizeLog2, nil
	case TypeINO:
		return c.Value << g.InodeSizeLog2, nil
	case TypeRTBLOCK:
		return c.Value << g.BlockSizeLog2, nil
	case TypeRTEXTENT:
		return c.Value * g.RTExtentSize << g.BlockSizeLog2, nil
	case TypeRTBITBLOCK:
		return c.Value << g.BlockSizeLog2, nil
	case TypeRTBITWORD:
		return c.Value * 4, nil // one bitmap word is 4 bytes
	case TypeRSUMLOG:
		return 0, nil // a context type, not itself a byte-offset contributor
	case TypeRSUMINFO:
		return c.Value * g.RTBitmapWords * 4, nil
	case TypeRSUMBLOCK:
		return rsumBlockOffset(g, c.Value)
	default:
		return 0, xferrors.New(xferrors.KindInvalidArgument, "addr: unknown type "+c.Type.String())
	}
}

// rsumBlockOffset implements the guarded RSUMBLOCK reverse mapping (spec.md §9 open question):
// the teacher's source divides by rsumlog to find a summary block index, which is a
// division-by-zero when rsumlog == 0 (no summary levels beyond the base). Level 0 is a direct
// assignment, not a division.
func rsumBlockOffset(g Geometry, value int64) (int64, error) {
	if g.RSumLevels == 0 {
		return value << g.BlockSizeLog2, nil
	}
	return (value / g.RSumLevels) << g.BlockSizeLog2, nil
}

func fromByteOffset(g Geometry, out Type, byteOff int64) (int64, error) {
	switch out {
	case TypeBYTEOFF:
		return byteOff, nil
	case TypeSECTOR:
		return byteOff >> g.SectorSizeLog2, nil
	case TypeFSBLOCK:
		return byteOff >> g.BlockSizeLog2, nil
	case TypeAGBLOCK:
		return (byteOff >> g.BlockSizeLog2) % g.AGBlockCount, nil
	case TypeAGNUMBER:
		return (byteOff >> g.BlockSizeLog2) / g.AGBlockCount, nil
	case TypeINO:
		// toByteOffset already folded AGNUMBER/AGBLOCK (block-granular) and INOIDX (inode-granular)
		// components into one common byte offset; projecting by InodeSizeLog2 reproduces the
		// teacher's inodeNumber packing of (ag-relative-block, slot) without a separate special case.
		return byteOff >> g.InodeSizeLog2, nil
	case TypeRTBLOCK:
		return byteOff >> g.BlockSizeLog2, nil
	case TypeRTEXTENT:
		return (byteOff >> g.BlockSizeLog2) / g.RTExtentSize, nil
	case TypeRTBITBLOCK:
		return byteOff >> g.BlockSizeLog2, nil
	case TypeRTBITWORD:
		return byteOff / 4, nil
	default:
		return 0, xferrors.New(xferrors.KindInvalidArgument, "addr: unsupported output type "+out.String())
	}
}
