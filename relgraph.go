// Package relgraph provides a minimal public API over the relationship
// traversal and reachability engine in internal/relcore.
//
// Most callers only need World: it wires the id index, the three
// traversal/reachability caches, the invalidator, and the observer index
// into the operations described by the package's design (ensure, emit,
// observer registration, downward/upward traversal, reachable lookup, and
// entity-modified notification). World has no id-record lookup method of
// its own; Index().Get provides it.
//
// For lower-level access — a custom Host implementation backing a real
// table store, or direct use of one cache in isolation — see
// internal/relcore.
package relgraph

import (
	"context"
	"fmt"

	"github.com/relgraph/relgraph/internal/relcore"
	"github.com/relgraph/relgraph/internal/relobserve"
	"github.com/relgraph/relgraph/internal/relstore"
)

// Core types for working with entities and ids.
type (
	Entity  = relcore.Entity
	ID      = relcore.ID
	Flags   = relcore.Flags
	Event   = relcore.Event
	TableID = relcore.TableID
)

// Built-in entities and flags.
const (
	Wildcard = relcore.Wildcard
	Any      = relcore.Any
	IsA      = relcore.IsA
	ChildOf  = relcore.ChildOf
	Union    = relcore.Union

	FlagTag         = relcore.FlagTag
	FlagDontInherit = relcore.FlagDontInherit
	FlagExclusive   = relcore.FlagExclusive
	FlagAcyclic     = relcore.FlagAcyclic
	FlagUnion       = relcore.FlagUnion
	FlagFinal       = relcore.FlagFinal
)

// Event kinds.
const (
	EventAdd      = relcore.EventAdd
	EventRemove   = relcore.EventRemove
	EventSet      = relcore.EventSet
	EventUnset    = relcore.EventUnset
	EventWildcard = relcore.EventWildcard
)

// ReachableSet, DownElem, and UpEntry are the result types of the three
// traversal/reachability queries.
type (
	ReachableSet = relcore.ReachableSet
	DownElem     = relcore.DownElem
	UpEntry      = relcore.UpEntry
)

// ObserverEvent and Observer describe an observer registration.
type (
	ObserverEvent  = relobserve.Context
	Observer       = relobserve.Observer
	ObserverHandle = relobserve.Handle
)

// Host is the storage collaborator World delegates entity/table state to.
// relstore.New returns a ready-to-use in-memory Host.
type Host = relcore.Host

// DefaultCacheCapacity bounds the down/up traversal LRUs when no explicit
// capacity is given to NewWorld.
const DefaultCacheCapacity = 4096

// World is the facade over the relationship engine: one Index, one
// Reachable cache, one DownCache, one UpCache, one Invalidator, one
// Emitter, and one observer Index, wired together over a caller-supplied
// Host (spec §6 external interfaces).
type World struct {
	host      Host
	index     *relcore.Index
	reachable *relcore.Reachable
	down      *relcore.DownCache
	up        *relcore.UpCache
	invalid   *relcore.Invalidator
	emit      *relcore.Emitter
	observers *relobserve.Index
}

// NewWorld wires a World over host, using DefaultCacheCapacity for both
// traversal caches.
func NewWorld(host Host) *World {
	return NewWorldWithCapacity(host, DefaultCacheCapacity)
}

// NewWorldWithCapacity is NewWorld with an explicit down/up cache bound.
func NewWorldWithCapacity(host Host, cacheCapacity int) *World {
	index := relcore.NewIndex(host)
	reachable := relcore.NewReachable(index, host)
	down := relcore.NewDownCache(index, host, cacheCapacity)
	up := relcore.NewUpCache(index, host, cacheCapacity)
	invalid := relcore.NewInvalidator(index, host, reachable, down)
	observers := relobserve.New()
	emitter := relcore.NewEmitter(index, host, reachable, invalid, observers)

	return &World{
		host:      host,
		index:     index,
		reachable: reachable,
		down:      down,
		up:        up,
		invalid:   invalid,
		emit:      emitter,
		observers: observers,
	}
}

// NewMemWorld creates a World over a fresh in-memory relstore.MemStore —
// the quickest way to get a working instance for tests or small programs.
func NewMemWorld() (*World, *relstore.MemStore) {
	store := relstore.New()
	return NewWorld(store), store
}

// EnsureID returns the id record for id, creating it (and its ancestor
// wildcard records) if needed (spec §6 world_ensure_id).
func (w *World) EnsureID(id ID) error {
	_, err := w.index.Ensure(id)
	return err
}

// SetFlags overwrites the flags of id's own record, creating the record if
// needed; an id that Ensure rejects is ignored. To declare a relation's
// schema flags, pass its (Relation, *) id. Callers normally do this once
// per relation at startup, either directly or via internal/relconfig.
func (w *World) SetFlags(id ID, flags Flags) {
	if _, err := w.index.Ensure(id); err != nil {
		return
	}
	w.index.SetFlags(id, flags)
}

// SetOneOf constrains relation's targets to those carrying
// (ChildOf, k) — the Exclusive-parent precondition of spec §4.1 step 6.
func (w *World) SetOneOf(relation, k Entity) { w.index.SetOneOf(relation, k) }

// Reachable returns the memoized reachable-id set a table inherits along
// relation (spec §6 relation_reachable).
func (w *World) Reachable(relation Entity, table TableID) (*ReachableSet, error) {
	return w.reachable.Get(relation, table)
}

// TraverseDown returns the ordered descendant-table list reached by
// following relation from entity, pruned at tables already owning with
// (spec §6 relation_traverse_down).
func (w *World) TraverseDown(relation, entity Entity, with ID) ([]DownElem, error) {
	return w.down.Get(relation, entity, with)
}

// TraverseUp returns the nearest ancestor table owning with, reached by
// following relation (transparently through is-a) from table (spec §6
// relation_traverse_up).
func (w *World) TraverseUp(relation Entity, table TableID, with ID) (UpEntry, error) {
	return w.up.Get(relation, table, with)
}

// OnEntityModified bumps the generation of every acyclic relationship
// record pointing at e and queues the affected relations for reachable-cache
// recomputation (spec §6 on_entity_modified). Callers invoke this once per
// mutated entity at the end of a command batch, then call RevalidateAll.
func (w *World) OnEntityModified(e Entity) { w.invalid.OnEntityModified(e) }

// RevalidateAll drains the invalidation-pending list built up by
// OnEntityModified calls, rebuilding the reachable cache for every
// affected subtree (spec §4.5 revalidate_all). Call this once at the end
// of a command batch, after every OnEntityModified for that batch.
func (w *World) RevalidateAll() error { return w.invalid.RevalidateAll() }

// Emit notifies observers for one occurrence and propagates acyclic
// add/remove events to descendant tables (spec §6 world_emit).
func (w *World) Emit(ctx context.Context, p relcore.EmitParams) error {
	return w.emit.Emit(ctx, p)
}

// Instantiate applies the is-a instancing hook for (instance is-a base),
// rejecting Final bases (spec §4.7 "instantiation hook").
func (w *World) Instantiate(ctx context.Context, instance, base Entity) error {
	return w.emit.Instantiate(ctx, instance, base)
}

// RegisterObserver adds o to the observer index, returning a handle for
// later Unregister calls (spec §6 observer_register). If o.YieldExisting
// is set, historical OnAdd events are synthesized for every row currently
// matching o.Term before Register returns.
func (w *World) RegisterObserver(ctx context.Context, o Observer) (ObserverHandle, error) {
	h := w.observers.Register(o)
	if o.YieldExisting {
		if err := w.emit.ReplayExisting(ctx, o.Term); err != nil {
			return h, fmt.Errorf("relgraph: yield_existing replay: %w", err)
		}
	}
	return h, nil
}

// UnregisterObserver removes a previously registered observer.
func (w *World) UnregisterObserver(h ObserverHandle) bool { return w.observers.Unregister(h) }

// Index exposes the underlying id index for callers that need lower-level
// access (e.g. internal/relconfig schema bootstrap).
func (w *World) Index() *relcore.Index { return w.index }
