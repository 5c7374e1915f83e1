package relcore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relgraph/relgraph/internal/relcore"
)

func TestRevalidateAllRebuildsAfterEntityModified(t *testing.T) {
	w := newChildOfWorld()
	rc := relcore.NewReachable(w.index, w.store)
	dc := relcore.NewDownCache(w.index, w.store, 64)
	inv := relcore.NewInvalidator(w.index, w.store, rc, dc)

	before, err := rc.Get(eChildOf, w.gTable)
	require.NoError(t, err)
	_, ok := before.Lookup(w.x)
	require.True(t, ok)

	// Move p to a new table carrying an additional tag y, simulating a
	// component add outside the core's own write surface.
	y := relcore.MakeID(w.store.Spawn(950))
	w.store.RemoveRow(w.p)
	pTableV2 := w.store.TableForType([]relcore.ID{w.x, y})
	w.store.AddRow(pTableV2, w.p, true)
	require.NoError(t, w.index.NoteTableMembership(w.x, pTableV2, true, 0, 1))
	require.NoError(t, w.index.NoteTableMembership(y, pTableV2, true, 1, 1))

	inv.OnEntityModified(w.p)
	require.NoError(t, inv.RevalidateAll())

	after, err := rc.Get(eChildOf, w.gTable)
	require.NoError(t, err)
	_, hasX := after.Lookup(w.x)
	_, hasY := after.Lookup(y)
	assert.True(t, hasX)
	assert.True(t, hasY, "g must see p's newly added tag after revalidation")
}

func TestRevalidateAllNoopWithoutPending(t *testing.T) {
	w := newChildOfWorld()
	rc := relcore.NewReachable(w.index, w.store)
	dc := relcore.NewDownCache(w.index, w.store, 64)
	inv := relcore.NewInvalidator(w.index, w.store, rc, dc)

	assert.NoError(t, inv.RevalidateAll())
}

func TestInvalidateTableRangeReportsObservedRows(t *testing.T) {
	w := newChildOfWorld()
	rc := relcore.NewReachable(w.index, w.store)
	dc := relcore.NewDownCache(w.index, w.store, 64)
	inv := relcore.NewInvalidator(w.index, w.store, rc, dc)

	observed := inv.InvalidateTableRange(w.pTable, 0, 1)
	assert.True(t, observed, "p's row is an acyclic target and must be observed")

	observed = inv.InvalidateTableRange(w.gTable, 0, 1)
	assert.False(t, observed, "g's row is not used as an acyclic target")
}
