package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xrepair/xrepair/internal/elog"
	"github.com/xrepair/xrepair/pkg/pptr"
)

func withTestLogger(t *testing.T) {
	t.Helper()
	log = &elog.CLI{DisableTTY: true}
}

func TestLoggingDiskOpsCountsEveryMutation(t *testing.T) {
	withTestLogger(t)

	ops := &loggingDiskOps{}
	assert.NoError(t, ops.AddMissingPptr(7, pptr.MasterRecord{DirIno: 3}))
	assert.NoError(t, ops.RemoveExcessPptr(7, pptr.PerFileRecord{}))
	assert.NoError(t, ops.ReplacePptr(7, pptr.PerFileRecord{}, pptr.MasterRecord{DirIno: 3}))
	assert.NoError(t, ops.DeleteGarbageXattr(7, pptr.RawXattr{}))

	assert.Equal(t, 4, ops.changed)
}
