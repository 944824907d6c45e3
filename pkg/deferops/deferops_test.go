package deferops

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeItem struct {
	kind      Kind
	sortKey   int64
	groupRef  int64
	cancelled bool
}

func (f *fakeItem) Kind() Kind          { return f.kind }
func (f *fakeItem) SortKey() int64      { return f.sortKey }
func (f *fakeItem) GroupRef() int64     { return f.groupRef }
func (f *fakeItem) Cancelled() bool     { return f.cancelled }
func (f *fakeItem) SetCancelled(c bool) { f.cancelled = c }
func (f *fakeItem) Encode() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(f.sortKey))
	return buf
}

func decodeFakeSwapext(buf []byte) (Item, error) {
	return &fakeItem{kind: KindSwapext, sortKey: int64(binary.BigEndian.Uint64(buf))}, nil
}

func newTestEngine(t *testing.T) (*Engine, *[]int64) {
	dir := t.TempDir()
	var order []int64

	vt := func(kind Kind) *Vtable {
		return &Vtable{
			Name: kind.String(),
			FinishItem: func(it Item) (Result, error) {
				order = append(order, it.SortKey())
				return ResultOk, nil
			},
		}
	}

	swapVt := vt(KindSwapext)
	swapVt.Decode = decodeFakeSwapext

	vtables := map[Kind]*Vtable{
		KindExtentFree: vt(KindExtentFree),
		KindRmap:       vt(KindRmap),
		KindRefcount:   vt(KindRefcount),
		KindBmap:       vt(KindBmap),
		KindAttr:       vt(KindAttr),
		KindSwapext:    swapVt,
	}

	e, err := NewEngine(vtables, dir+string(os.PathSeparator)+"swap")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, &order
}

func TestRunSortsWithinType(t *testing.T) {
	e, order := newTestEngine(t)

	require.NoError(t, e.Enqueue(&fakeItem{kind: KindRmap, sortKey: 3}))
	require.NoError(t, e.Enqueue(&fakeItem{kind: KindRmap, sortKey: 1}))
	require.NoError(t, e.Enqueue(&fakeItem{kind: KindRmap, sortKey: 2}))

	require.NoError(t, e.Run())
	assert.Equal(t, []int64{1, 2, 3}, *order)
}

func TestSwapextRunsAfterEveryOtherType(t *testing.T) {
	e, order := newTestEngine(t)

	require.NoError(t, e.Enqueue(&fakeItem{kind: KindSwapext, sortKey: 100}))
	require.NoError(t, e.Enqueue(&fakeItem{kind: KindExtentFree, sortKey: 1}))
	require.NoError(t, e.Enqueue(&fakeItem{kind: KindAttr, sortKey: 2}))

	require.NoError(t, e.Run())
	require.Len(t, *order, 3)
	assert.Equal(t, int64(100), (*order)[2])
}

func TestFinishItemRequeueRunsAgain(t *testing.T) {
	e, order := newTestEngine(t)

	attempts := 0
	e.vtables[KindBmap].FinishItem = func(it Item) (Result, error) {
		attempts++
		*order = append(*order, it.SortKey())
		if attempts < 2 {
			return ResultRequeue, nil
		}
		return ResultOk, nil
	}

	require.NoError(t, e.Enqueue(&fakeItem{kind: KindBmap, sortKey: 9}))
	require.NoError(t, e.Run())
	assert.Equal(t, 2, attempts)
}

func TestCancelMarksItemsAndInvokesCancelItem(t *testing.T) {
	e, _ := newTestEngine(t)

	var cancelled []int64
	e.vtables[KindRmap].CancelItem = func(it Item) error {
		cancelled = append(cancelled, it.SortKey())
		return nil
	}

	item := &fakeItem{kind: KindRmap, sortKey: 5}
	require.NoError(t, e.Enqueue(item))
	require.NoError(t, e.Cancel())

	assert.True(t, item.Cancelled())
	assert.Equal(t, []int64{5}, cancelled)
}

func TestCancelledItemsAreSkippedOnRun(t *testing.T) {
	e, order := newTestEngine(t)

	item := &fakeItem{kind: KindAttr, sortKey: 7, cancelled: true}
	require.NoError(t, e.Enqueue(item))
	require.NoError(t, e.Run())
	assert.Empty(t, *order)
}
