package relcore_test

import (
	"github.com/relgraph/relgraph/internal/relcore"
	"github.com/relgraph/relgraph/internal/relstore"
)

const (
	eChildOf = relcore.ChildOf
	eIsA     = relcore.IsA
)

func spawn(store *relstore.MemStore, id uint32) relcore.Entity {
	return store.Spawn(id)
}

// childOfWorld builds a three-generation ChildOf tree: P owns tag X, C is
// (ChildOf, P), G is (ChildOf, C). Returns the tables and entities so tests
// can extend the tree or mutate it.
type childOfWorld struct {
	store *relstore.MemStore
	index *relcore.Index

	p, c, g    relcore.Entity
	x          relcore.ID
	pTable     relcore.TableID
	cTable     relcore.TableID
	gTable     relcore.TableID
	cPair      relcore.ID
	gPair      relcore.ID
}

func newChildOfWorld() *childOfWorld {
	store := relstore.New()
	ix := relcore.NewIndex(store)

	p := store.Spawn(100)
	c := store.Spawn(101)
	g := store.Spawn(102)
	x := relcore.MakeID(store.Spawn(103))

	pTable := store.TableForType([]relcore.ID{x})
	store.AddRow(pTable, p, true) // p is a ChildOf target
	mustNote(ix, x, pTable, 0, 1)

	mustEnsure(ix, relcore.MakePair(eChildOf, relcore.Wildcard))
	ix.SetFlags(relcore.MakePair(eChildOf, relcore.Wildcard), relcore.FlagAcyclic)

	cPair := relcore.MakePair(eChildOf, p)
	mustEnsure(ix, cPair)
	cTable := store.TableForType([]relcore.ID{cPair})
	store.AddRow(cTable, c, true) // c is itself a ChildOf target (of g)
	mustNote(ix, cPair, cTable, 0, 1)

	gPair := relcore.MakePair(eChildOf, c)
	mustEnsure(ix, gPair)
	gTable := store.TableForType([]relcore.ID{gPair})
	store.AddRow(gTable, g, false)
	mustNote(ix, gPair, gTable, 0, 1)

	return &childOfWorld{
		store: store, index: ix,
		p: p, c: c, g: g, x: x,
		pTable: pTable, cTable: cTable, gTable: gTable,
		cPair: cPair, gPair: gPair,
	}
}

func mustEnsure(ix *relcore.Index, id relcore.ID) {
	if _, err := ix.Ensure(id); err != nil {
		panic(err)
	}
}

func mustNote(ix *relcore.Index, id relcore.ID, t relcore.TableID, column, count int) {
	if err := ix.NoteTableMembership(id, t, true, column, count); err != nil {
		panic(err)
	}
}
