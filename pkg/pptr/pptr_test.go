package pptr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrepair/xrepair/pkg/slab"
	"github.com/xrepair/xrepair/pkg/xfsfmt"
)

// fixedNames is a globalNameLookup stub that reports found=true only for names given at
// construction, standing in for a frozen pkg/slab.NameStore built from the dirent scan.
type fixedNames map[string]slab.Cookie

func (f fixedNames) Contains(hash uint32, name []byte) (slab.Cookie, bool) {
	c, ok := f[string(name)]
	return c, ok
}

// mockOps records every call the merge-walk makes, for assertion.
type mockOps struct {
	added    []MasterRecord
	removed  []PerFileRecord
	replaced [][2]interface{}
	garbage  []RawXattr
}

func (m *mockOps) AddMissingPptr(ino int64, rec MasterRecord) error {
	m.added = append(m.added, rec)
	return nil
}
func (m *mockOps) RemoveExcessPptr(ino int64, rec PerFileRecord) error {
	m.removed = append(m.removed, rec)
	return nil
}
func (m *mockOps) ReplacePptr(ino int64, old PerFileRecord, new MasterRecord) error {
	m.replaced = append(m.replaced, [2]interface{}{old, new})
	return nil
}
func (m *mockOps) DeleteGarbageXattr(ino int64, raw RawXattr) error {
	m.garbage = append(m.garbage, raw)
	return nil
}

func xattrFor(parentIno int64, parentGen uint32, name string) RawXattr {
	hash := xfsfmt.HashName([]byte(name))
	return RawXattr{
		Flags: xfsfmt.AttrFlagParent,
		Key: xfsfmt.ParentPointerXattrKey{
			ParentIno: uint64(parentIno), ParentGen: parentGen,
			NameHash: hash, NameLen: uint16(len(name)),
		},
		Value: xfsfmt.ParentPointerXattrValue{HashOfValue: hash, NameBytes: []byte(name)},
	}
}

// TestVerifyInodeScenarioE mirrors spec.md Scenario E: dirent (D=100, "a", C=7) exists; inode 7
// carries a stale pptr (D=100, gen=5, "b"); directory 100's generation is 5. Expected outcome:
// remove (D=100, "b") and add (D=100, gen=5, "a").
func TestVerifyInodeScenarioE(t *testing.T) {
	names := fixedNames{"a": 1}

	master := []MasterRecord{
		{ChildInoAG: 7, DirIno: 100, DirGen: 5, NameHash: xfsfmt.HashName([]byte("a")), NameCookie: 1, NameLen: 1},
	}
	xattrs := []RawXattr{xattrFor(100, 5, "b")}

	ops := &mockOps{}
	require.NoError(t, VerifyInode(7, master, xattrs, names, ops))

	require.Len(t, ops.added, 1)
	assert.Equal(t, int64(100), ops.added[0].DirIno)
	assert.Equal(t, uint32(5), ops.added[0].DirGen)

	require.Len(t, ops.removed, 1)
	assert.Equal(t, xfsfmt.HashName([]byte("b")), ops.removed[0].NameHash)

	assert.Empty(t, ops.replaced)
	assert.Empty(t, ops.garbage)
}

// TestVerifyInodeNoOpWhenInSync covers the "keys and payload equal" row: nothing happens.
func TestVerifyInodeNoOpWhenInSync(t *testing.T) {
	names := fixedNames{"a": 1}
	hash := xfsfmt.HashName([]byte("a"))
	master := []MasterRecord{{ChildInoAG: 7, DirIno: 100, DirGen: 5, NameHash: hash, NameCookie: 1, NameLen: 1}}
	xattrs := []RawXattr{xattrFor(100, 5, "a")}

	ops := &mockOps{}
	require.NoError(t, VerifyInode(7, master, xattrs, names, ops))

	assert.Empty(t, ops.added)
	assert.Empty(t, ops.removed)
	assert.Empty(t, ops.replaced)
	assert.Empty(t, ops.garbage)
}

// TestVerifyInodeReplacesOnGenerationMismatch covers the "keys equal but gen differs" row: same
// directory and name, but the xattr's recorded generation is stale.
func TestVerifyInodeReplacesOnGenerationMismatch(t *testing.T) {
	names := fixedNames{"a": 1}
	hash := xfsfmt.HashName([]byte("a"))
	master := []MasterRecord{{ChildInoAG: 7, DirIno: 100, DirGen: 6, NameHash: hash, NameCookie: 1, NameLen: 1}}
	xattrs := []RawXattr{xattrFor(100, 5, "a")}

	ops := &mockOps{}
	require.NoError(t, VerifyInode(7, master, xattrs, names, ops))

	assert.Empty(t, ops.added)
	assert.Empty(t, ops.removed)
	require.Len(t, ops.replaced, 1)
}

// TestVerifyInodeDeletesGarbageXattr covers a PARENT-flagged xattr whose value hash doesn't match
// its name bytes: scheduled for deletion regardless of what the master slab says.
func TestVerifyInodeDeletesGarbageXattr(t *testing.T) {
	names := fixedNames{}
	bad := xattrFor(100, 5, "a")
	bad.Value.HashOfValue ^= 0xff // corrupt the stored hash so it disagrees with NameBytes

	ops := &mockOps{}
	require.NoError(t, VerifyInode(7, nil, []RawXattr{bad}, names, ops))

	require.Len(t, ops.garbage, 1)
	assert.Empty(t, ops.added)
	assert.Empty(t, ops.removed)
}

// TestVerifyInodeFatalWhenMasterHasNoRecord covers spec.md's "per-file has entries for an inode
// the master doesn't know about": a structurally valid, globally-known pptr on an inode with zero
// master records is an inconsistent incore state.
func TestVerifyInodeFatalWhenMasterHasNoRecord(t *testing.T) {
	names := fixedNames{"a": 1}
	ops := &mockOps{}
	err := VerifyInode(7, nil, []RawXattr{xattrFor(100, 5, "a")}, names, ops)
	assert.Error(t, err)
}

// TestVerifyInodeRemovesUnreferencedNameUnconditionally covers a structurally valid pptr whose
// name was never inserted by any dirent: it can never match a master record, so it's always
// excess, even though masterForInode is nonempty for this inode (from an unrelated name).
func TestVerifyInodeRemovesUnreferencedNameUnconditionally(t *testing.T) {
	names := fixedNames{"a": 1} // "ghost" intentionally absent

	master := []MasterRecord{{ChildInoAG: 7, DirIno: 100, DirGen: 5, NameHash: xfsfmt.HashName([]byte("a")), NameCookie: 1, NameLen: 1}}
	xattrs := []RawXattr{xattrFor(100, 5, "a"), xattrFor(100, 5, "ghost")}

	ops := &mockOps{}
	require.NoError(t, VerifyInode(7, master, xattrs, names, ops))

	assert.Empty(t, ops.added)
	require.Len(t, ops.removed, 1)
	assert.Equal(t, xfsfmt.HashName([]byte("ghost")), ops.removed[0].NameHash)
}

func TestObserveDirentProducesConsistentMasterRecord(t *testing.T) {
	store := slab.NewNameStore()
	master := NewMasterSlab(slab.Config{})

	require.NoError(t, ObserveDirent(store, master, Dirent{DirIno: 100, DirGen: 5, ChildInoAG: 7, Name: []byte("a")}))
	require.Equal(t, int64(1), master.Len())

	cursor := master.NewCursor()
	ok, err := cursor.Next()
	require.NoError(t, err)
	require.True(t, ok)
	rec, err := cursor.Record()
	require.NoError(t, err)

	got := DecodeMaster(rec)
	assert.Equal(t, int64(7), got.ChildInoAG)
	assert.Equal(t, int64(100), got.DirIno)
	assert.Equal(t, uint32(5), got.DirGen)
	assert.Equal(t, xfsfmt.HashName([]byte("a")), got.NameHash)
}

func TestRunPass2GroupsMasterRecordsPerInode(t *testing.T) {
	store := slab.NewNameStore()
	master := NewMasterSlab(slab.Config{})

	require.NoError(t, ObserveDirent(store, master, Dirent{DirIno: 100, DirGen: 5, ChildInoAG: 7, Name: []byte("a")}))
	require.NoError(t, ObserveDirent(store, master, Dirent{DirIno: 100, DirGen: 5, ChildInoAG: 9, Name: []byte("c")}))
	SortMaster(master)
	store.Freeze()

	ops := &mockOps{}
	readXattrs := func(ino int64) ([]RawXattr, error) { return nil, nil }

	err := RunPass2(master, []int64{7, 8, 9}, store, readXattrs, ops)
	require.NoError(t, err)

	require.Len(t, ops.added, 2)
	var gotChildren []int64
	for _, r := range ops.added {
		gotChildren = append(gotChildren, r.ChildInoAG)
	}
	assert.ElementsMatch(t, []int64{7, 9}, gotChildren)
}
