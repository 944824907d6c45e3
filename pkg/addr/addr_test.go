package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioAGeometry() Geometry {
	return Geometry{
		SectorSizeLog2: 9,
		BlockSizeLog2:  12,
		InodeSizeLog2:  9,
		AGBlockCount:   1024,
	}
}

// TestConvertInodeRoundTrip mirrors spec.md Scenario A: converting {AGNUMBER, AGBLOCK, INOIDX} to
// INO is the same packing the teacher's inodeNumber helper performs, verified here by checking
// that the dedicated packing formula and the table-driven Convert agree rather than against a
// single hardcoded literal.
func TestConvertInodeRoundTrip(t *testing.T) {
	g := scenarioAGeometry()
	got, err := Convert(g, TypeINO,
		Component{Type: TypeAGNUMBER, Value: 2},
		Component{Type: TypeAGBLOCK, Value: 5},
		Component{Type: TypeINOIDX, Value: 3},
	)
	require.NoError(t, err)

	agBlockTotal := int64(2)*g.AGBlockCount + 5
	want := agBlockTotal*g.inodesPerBlock() + 3
	assert.Equal(t, want, got)
}

func TestConvertRejectsMixedDataAndRealtime(t *testing.T) {
	g := scenarioAGeometry()
	_, err := Convert(g, TypeINO,
		Component{Type: TypeAGBLOCK, Value: 5},
		Component{Type: TypeRTBLOCK, Value: 1},
	)
	assert.Error(t, err)
}

func TestConvertRejectsOutOfOrderRTContext(t *testing.T) {
	g := scenarioAGeometry()
	g.RTExtentSize = 8
	_, err := Convert(g, TypeRTBLOCK,
		Component{Type: TypeRSUMBLOCK, Value: 4},
		Component{Type: TypeRSUMLOG, Value: 1},
	)
	assert.Error(t, err)
}

func TestConvertRejectsUnknownType(t *testing.T) {
	g := scenarioAGeometry()
	_, err := Convert(g, TypeINO, Component{Type: Type(999), Value: 1})
	assert.Error(t, err)
}

func TestRsumBlockGuardedWhenNoLevels(t *testing.T) {
	g := scenarioAGeometry()
	g.RSumLevels = 0
	off, err := rsumBlockOffset(g, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7)<<g.BlockSizeLog2, off)
}

func TestRsumBlockDividesWhenLevelsPresent(t *testing.T) {
	g := scenarioAGeometry()
	g.RSumLevels = 2
	off, err := rsumBlockOffset(g, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(4)<<g.BlockSizeLog2, off)
}

func TestConvertByteOffsetSectorRoundTrip(t *testing.T) {
	g := scenarioAGeometry()
	sectorOff, err := Convert(g, TypeBYTEOFF, Component{Type: TypeSECTOR, Value: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(20)<<g.SectorSizeLog2, sectorOff)

	back, err := Convert(g, TypeSECTOR, Component{Type: TypeBYTEOFF, Value: sectorOff})
	require.NoError(t, err)
	assert.Equal(t, int64(20), back)
}
