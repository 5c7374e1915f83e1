package relcore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relgraph/relgraph/internal/relcore"
	"github.com/relgraph/relgraph/internal/relstore"
)

func TestUpCacheFindsAncestorOwner(t *testing.T) {
	w := newChildOfWorld()
	uc := relcore.NewUpCache(w.index, w.store, 64)

	entry, err := uc.Get(eChildOf, w.cTable, w.x)
	require.NoError(t, err)
	assert.Equal(t, w.p, entry.Source)
	assert.Equal(t, w.x, entry.ID)
}

func TestUpCacheTransitiveThroughGrandparent(t *testing.T) {
	w := newChildOfWorld()
	uc := relcore.NewUpCache(w.index, w.store, 64)

	entry, err := uc.Get(eChildOf, w.gTable, w.x)
	require.NoError(t, err)
	assert.Equal(t, w.p, entry.Source, "g must resolve x up through c to p")
}

func TestUpCacheNotReachableWhenRelationAbsent(t *testing.T) {
	w := newChildOfWorld()
	uc := relcore.NewUpCache(w.index, w.store, 64)

	other := relcore.MakeID(w.store.Spawn(910))
	entry, err := uc.Get(relcore.Entity(999), w.cTable, other)
	require.NoError(t, err)
	assert.Equal(t, relcore.Entity(0), entry.Source, "table carries no pair for an unrelated relation")
}

func TestUpCacheIsACrossLink(t *testing.T) {
	store := relstore.New()
	ix := relcore.NewIndex(store)

	base := store.Spawn(920)
	instance := store.Spawn(921)
	tag := relcore.MakeID(store.Spawn(922))

	baseTable := store.TableForType([]relcore.ID{tag})
	store.AddRow(baseTable, base, true)
	mustNote(ix, tag, baseTable, 0, 1)

	isAPair := relcore.MakePair(eIsA, base)
	mustEnsure(ix, isAPair)
	instanceTable := store.TableForType([]relcore.ID{isAPair})
	store.AddRow(instanceTable, instance, false)
	mustNote(ix, isAPair, instanceTable, 0, 1)

	uc := relcore.NewUpCache(ix, store, 64)
	entry, err := uc.Get(eIsA, instanceTable, tag)
	require.NoError(t, err)
	assert.Equal(t, base, entry.Source)
}
