package relstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relgraph/relgraph/internal/relcore"
	"github.com/relgraph/relgraph/internal/relstore"
)

func TestSpawnAndIsAlive(t *testing.T) {
	store := relstore.New()
	e := store.Spawn(1)
	assert.True(t, store.IsAlive(e))
}

func TestDespawnBumpsGenerationAndStalesOldHandle(t *testing.T) {
	store := relstore.New()
	e := store.Spawn(1)
	store.Despawn(e)
	assert.False(t, store.IsAlive(e))

	reborn := store.Spawn(1)
	assert.NotEqual(t, e, reborn, "respawning the same numeric id must carry a bumped generation")
	assert.True(t, store.IsAlive(reborn))
}

func TestTableForTypeDedupsByTypeAndRefCounts(t *testing.T) {
	store := relstore.New()
	x := relcore.MakeID(store.Spawn(10))
	y := relcore.MakeID(store.Spawn(11))

	t1 := store.TableForType([]relcore.ID{x, y})
	t2 := store.TableForType([]relcore.ID{y, x}) // order shouldn't matter
	assert.Equal(t, t1, t2)

	store.ReleaseTable(t1)
	assert.NotNil(t, store.TypeOf(t1), "the second TableForType call still holds a reference")
	store.ReleaseTable(t1)
	assert.Nil(t, store.TypeOf(t1), "last reference released on an empty table drops it")
}

func TestAddRowAndRecordOf(t *testing.T) {
	store := relstore.New()
	x := relcore.MakeID(store.Spawn(10))
	tbl := store.TableForType([]relcore.ID{x})
	e := store.Spawn(20)

	row := store.AddRow(tbl, e, true)
	assert.Equal(t, relcore.TableRow(0), row)

	gotTable, gotRow, ok := store.RecordOf(e)
	require.True(t, ok)
	assert.Equal(t, tbl, gotTable)
	assert.Equal(t, row, gotRow)
	assert.True(t, store.IsAcyclicTarget(tbl, row))
	assert.Equal(t, e, store.EntityAt(tbl, row))
	assert.Equal(t, 1, store.RowCount(tbl))
}

func TestRemoveRowSwapsLastRowIntoHole(t *testing.T) {
	store := relstore.New()
	x := relcore.MakeID(store.Spawn(10))
	tbl := store.TableForType([]relcore.ID{x})

	a := store.Spawn(1)
	b := store.Spawn(2)
	c := store.Spawn(3)
	store.AddRow(tbl, a, false)
	store.AddRow(tbl, b, false)
	store.AddRow(tbl, c, false)

	store.RemoveRow(a) // removes row 0, c (the last row) swaps into it
	require.Equal(t, 2, store.RowCount(tbl))

	_, _, ok := store.RecordOf(a)
	assert.False(t, ok)

	cTable, cRow, ok := store.RecordOf(c)
	require.True(t, ok)
	assert.Equal(t, tbl, cTable)
	assert.Equal(t, relcore.TableRow(0), cRow)
	assert.Equal(t, c, store.EntityAt(tbl, 0))
	assert.Equal(t, b, store.EntityAt(tbl, 1))
}

func TestRemoveLastRemainingRow(t *testing.T) {
	store := relstore.New()
	x := relcore.MakeID(store.Spawn(10))
	tbl := store.TableForType([]relcore.ID{x})
	a := store.Spawn(1)
	store.AddRow(tbl, a, false)

	store.RemoveRow(a)
	assert.Equal(t, 0, store.RowCount(tbl))
	_, _, ok := store.RecordOf(a)
	assert.False(t, ok)
}

func TestReleaseTableDropsOnceUnrefAndEmpty(t *testing.T) {
	store := relstore.New()
	x := relcore.MakeID(store.Spawn(10))
	tbl := store.TableForType([]relcore.ID{x})

	store.ReleaseTable(tbl)
	assert.Equal(t, 0, store.RowCount(tbl), "table dropped, TypeOf/RowCount on an unknown id report zero value")
	assert.Nil(t, store.TypeOf(tbl))
}

func TestReleaseTableKeepsTableWithLiveRows(t *testing.T) {
	store := relstore.New()
	x := relcore.MakeID(store.Spawn(10))
	tbl := store.TableForType([]relcore.ID{x})
	e := store.Spawn(1)
	store.AddRow(tbl, e, false)

	store.ReleaseTable(tbl)
	assert.Equal(t, 1, store.RowCount(tbl), "a table with live rows survives a ref-count drop to zero")
}

func TestHasFlagReflectsIsAAndAcyclicMembership(t *testing.T) {
	store := relstore.New()
	base := store.Spawn(1)
	isAPair := relcore.MakePair(relcore.IsA, base)
	tbl := store.TableForType([]relcore.ID{isAPair})

	assert.True(t, store.HasFlag(tbl, relcore.TableHasIsA))
	assert.False(t, store.HasFlag(tbl, relcore.TableHasAcyclic), "hasAcyc is derived from AddRow's isAcyclicTarget flag, not the type")
}
