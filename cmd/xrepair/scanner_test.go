package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrepair/xrepair/pkg/slab"
)

func TestNoScannerReportsEmptyFilesystem(t *testing.T) {
	var s Scanner = noScanner{}

	assert.Equal(t, int64(0), s.GroupCount())

	groups, err := s.InodesInGroup(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, groups)

	xattrs, err := s.ReadXattrs(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, xattrs)
}

func TestNoScannerScanGroupEchoesSeqNo(t *testing.T) {
	var s Scanner = noScanner{}
	in, err := s.ScanGroup(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), in.SeqNo)
}

func TestNoScannerObserveDirentsIsNoop(t *testing.T) {
	var s Scanner = noScanner{}
	names := slab.NewNameStore()
	master := slab.New(slab.Config{RecSize: 1})
	require.NoError(t, s.ObserveDirents(context.Background(), names, master))
	assert.Equal(t, int64(0), master.Len())
}
