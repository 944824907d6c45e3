package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zero() *int64 {
	z := int64(0)
	return &z
}

// TestComputeGeometryScenarioC mirrors spec.md Scenario C: leaf_maxrecs=100, node_maxrecs=50,
// leaf_slack=0, node_slack=0, record_count=10000 → 100 leaf blocks, 2 node blocks, total 102
// blocks, height 3.
func TestComputeGeometryScenarioC(t *testing.T) {
	cfg := Config{
		LeafMaxRecs: 100,
		LeafMinRecs: 100,
		LeafSlack:   zero(),
		NodeMaxRecs: 50,
		NodeMinRecs: 50,
		NodeSlack:   zero(),
	}
	g, err := ComputeGeometry(cfg, 10000)
	require.NoError(t, err)

	require.Len(t, g.Levels, 3)
	assert.Equal(t, int64(100), g.Levels[0].Blocks)
	assert.Equal(t, int64(2), g.Levels[1].Blocks)
	assert.Equal(t, int64(1), g.Levels[2].Blocks)
	assert.Equal(t, int64(102), g.NrBlocks)
	assert.Equal(t, 3, g.Height)
}

func TestComputeGeometryLowSpaceForcesSlackOfTwo(t *testing.T) {
	cfg := Config{LeafMaxRecs: 100, LeafMinRecs: 10, NodeMaxRecs: 50, NodeMinRecs: 5, LowSpace: true}
	g, err := ComputeGeometry(cfg, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(98), g.Levels[0].RecsPerBlock)
	assert.Equal(t, int64(1), g.Levels[0].Blocks)
}

func TestComputeGeometryDefaultFillIsMidpoint(t *testing.T) {
	cfg := Config{LeafMaxRecs: 100, LeafMinRecs: 50, NodeMaxRecs: 50, NodeMinRecs: 20}
	g, err := ComputeGeometry(cfg, 750)
	require.NoError(t, err)
	assert.Equal(t, int64(75), g.Levels[0].RecsPerBlock)
	assert.Equal(t, int64(10), g.Levels[0].Blocks)
}

func TestComputeGeometryEmptyTreeIsSingleLeaf(t *testing.T) {
	cfg := Config{LeafMaxRecs: 100, LeafMinRecs: 50, NodeMaxRecs: 50, NodeMinRecs: 20}
	g, err := ComputeGeometry(cfg, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Height)
	assert.Equal(t, int64(0), g.NrBlocks)
}

func TestComputeGeometryRejectsNonPositiveCapacity(t *testing.T) {
	_, err := ComputeGeometry(Config{}, 10)
	assert.Error(t, err)
}
