package xfsfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashNameIsDeterministic(t *testing.T) {
	assert.Equal(t, HashName([]byte("a")), HashName([]byte("a")))
	assert.NotEqual(t, HashName([]byte("a")), HashName([]byte("b")))
}

func TestHashNameHandlesEveryChunkLength(t *testing.T) {
	for _, name := range []string{"", "a", "ab", "abc", "abcd", "abcde", "abcdefgh", "abcdefghi"} {
		assert.NotPanics(t, func() { HashName([]byte(name)) })
	}
	assert.Equal(t, uint32(0), HashName(nil))
}

func TestPackUnpackRmapOffsetRoundTrips(t *testing.T) {
	packed := PackRmapOffset(12345, RmapAttrFork|RmapUnwritten)
	offset, flags := UnpackRmapOffset(packed)
	assert.Equal(t, uint64(12345), offset)
	assert.True(t, flags.Has(RmapAttrFork))
	assert.True(t, flags.Has(RmapUnwritten))
	assert.False(t, flags.Has(RmapBMBTBlock))
}

func TestPackUnpackRefcountStartRoundTrips(t *testing.T) {
	packed := PackRefcountStart(42, DomainCOW)
	start, domain := UnpackRefcountStart(packed)
	assert.Equal(t, uint32(42), start)
	assert.Equal(t, DomainCOW, domain)
}
