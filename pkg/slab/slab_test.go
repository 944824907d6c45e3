package slab

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrepair/xrepair/pkg/xfile"
)

func rec(n byte) []byte { return []byte{n, n, n, n} }

func TestSlabAppendAndCursor(t *testing.T) {
	s := New(Config{RecSize: 4})
	require.NoError(t, s.Append(rec(3)))
	require.NoError(t, s.Append(rec(1)))
	require.NoError(t, s.Append(rec(2)))

	assert.Equal(t, int64(3), s.Len())

	c := s.NewCursor()
	var got []byte
	for {
		more, err := c.Next()
		require.NoError(t, err)
		if !more {
			break
		}
		r, err := c.Record()
		require.NoError(t, err)
		got = append(got, r[0])
	}
	assert.Equal(t, []byte{3, 1, 2}, got)
}

func TestSlabSort(t *testing.T) {
	s := New(Config{RecSize: 4})
	for _, n := range []byte{3, 1, 2} {
		require.NoError(t, s.Append(rec(n)))
	}
	s.Sort(func(a, b []byte) bool { return a[0] < b[0] })

	c := s.NewCursor()
	var got []byte
	for {
		more, err := c.Next()
		require.NoError(t, err)
		if !more {
			break
		}
		r, err := c.Record()
		require.NoError(t, err)
		got = append(got, r[0])
	}
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestSlabRejectsWrongWidth(t *testing.T) {
	s := New(Config{RecSize: 4})
	err := s.Append([]byte{1, 2})
	assert.Error(t, err)
}

func TestSlabSpillsToStore(t *testing.T) {
	store, err := xfile.Create("test-spill")
	require.NoError(t, err)
	defer store.Destroy()

	s := New(Config{RecSize: 4, SpillAt: 2, Store: store})
	for _, n := range []byte{1, 2, 3, 4} {
		require.NoError(t, s.Append(rec(n)))
	}
	assert.Nil(t, s.resident)

	c := s.NewCursor()
	var got []byte
	for {
		more, err := c.Next()
		require.NoError(t, err)
		if !more {
			break
		}
		r, err := c.Record()
		require.NoError(t, err)
		got = append(got, r[0])
	}
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestNameStoreDedups(t *testing.T) {
	ns := NewNameStore()
	c1 := ns.InsertOrLookup(42, []byte("readme.txt"))
	c2 := ns.InsertOrLookup(42, []byte("readme.txt"))
	c3 := ns.InsertOrLookup(42, []byte("other.txt"))

	assert.Equal(t, c1, c2)
	assert.NotEqual(t, c1, c3)
	assert.True(t, bytes.Equal(ns.Lookup(c1), []byte("readme.txt")))
}

func TestNameStoreContainsDoesNotInsert(t *testing.T) {
	ns := NewNameStore()
	_, found := ns.Contains(1, []byte("x"))
	assert.False(t, found)

	ns.InsertOrLookup(1, []byte("x"))
	_, found = ns.Contains(1, []byte("x"))
	assert.True(t, found)
}
