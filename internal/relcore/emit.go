package relcore

import "context"

// Event names the kind of mutation an observer reacts to (spec §4.6/§4.7).
type Event int

const (
	EventAdd Event = iota
	EventRemove
	EventSet
	EventUnset
	// EventWildcard is the universal key emit_event also checks alongside
	// the concrete event (spec §4.7 step "for the two event keys
	// {event, Wildcard}").
	EventWildcard
)

func (e Event) String() string {
	switch e {
	case EventAdd:
		return "OnAdd"
	case EventRemove:
		return "OnRemove"
	case EventSet:
		return "OnSet"
	case EventUnset:
		return "OnUnset"
	case EventWildcard:
		return "*"
	default:
		return "unknown"
	}
}

// ObserverEvent is the payload delivered to a matched observer for one
// occurrence. It is defined here, not in the observer package, so the
// emitter can construct it without importing the observer index
// (component G depends on F; F must not depend back on G).
type ObserverEvent struct {
	Event      Event
	ID         ID
	Table      TableID
	Offset     int
	Count      int
	Relation   Entity // relation the match was reached through, 0 for self
	Source     Entity // entity the value came from, if overridden/inherited
	Historical bool   // synthesized by a yield_existing replay (spec SPEC_FULL)
}

// ObserverNotifier is the Observer Index collaborator the emitter fires
// into. internal/relobserve.Index implements this.
type ObserverNotifier interface {
	Notify(ctx context.Context, event Event, id ID, ev ObserverEvent)
	HasTriggers(event Event, id ID) bool
}

// Emitter implements Event Emission & Propagation (spec §4.7, component G):
// observer-chain notification, OnSet/OnUnset synthesis from the reachable
// cache when an acyclic pair is added or removed, and downward propagation
// to acyclic-target descendants. It does no is-a override detection: no
// value is copied from a base, and no OnSet/OnUnset is synthesized for an
// override or for a base value re-exposed by a remove.
//
// Per spec §9's design note, trigger.c's propagate_emit is the authoritative
// propagation algorithm; observable.c's alternate (stubbed) implementation
// is not ported.
type Emitter struct {
	host      Host
	index     *Index
	reachable *Reachable
	invalid   *Invalidator
	observers ObserverNotifier
}

// NewEmitter wires an Emitter over the given collaborators.
func NewEmitter(index *Index, host Host, reachable *Reachable, invalid *Invalidator, observers ObserverNotifier) *Emitter {
	return &Emitter{host: host, index: index, reachable: reachable, invalid: invalid, observers: observers}
}

// EmitParams describes one occurrence to emit (spec §6 world_emit).
type EmitParams struct {
	Event    Event
	ID       ID
	Table    TableID
	Offset   int
	Count    int
	Relation Entity // relation the occurrence was reached through, 0 for a direct one; does not gate propagation
}

// Emit is the spec §6 world_emit entry point: notifies observers for one
// occurrence, then propagates to descendant tables (spec §4.7 "emit").
// Override and re-exposure events are not synthesized. Propagation runs for any
// emitted id, not only pairs on an acyclic relation: trigger.c's
// propagate_emit is called unconditionally for a row carrying
// OBSERVED_ACYCLIC, with relation 0 meaning "every acyclic relation this
// row's entity is a target of" — it is the row's acyclic-target membership,
// not p.ID's own relation, that gates and drives descent.
func (em *Emitter) Emit(ctx context.Context, p EmitParams) error {
	if p.ID == 0 && !p.ID.IsPair() {
		return ErrInvalidParameter
	}
	if err := em.emitEvent(ctx, p, 0, false); err != nil {
		return err
	}
	return em.propagate(ctx, p)
}

// emitEvent notifies every observer matching id at {event, Wildcard}, in
// general-then-entity-filtered order (spec §4.7 step "notify the observer
// chain i -> wildcards -> Any"), and for Add/Remove of an acyclic pair
// hands off to emitReachableIDs, which synthesizes OnSet (for Add) or
// OnUnset (for Remove) on the descendant tables. Overrides and re-exposed
// base values get no synthesized event.
func (em *Emitter) emitEvent(ctx context.Context, p EmitParams, source Entity, historical bool) error {
	ev := ObserverEvent{
		Event:      p.Event,
		ID:         p.ID,
		Table:      p.Table,
		Offset:     p.Offset,
		Count:      p.Count,
		Relation:   p.Relation,
		Source:     source,
		Historical: historical,
	}

	for _, key := range em.observedKeys(p.ID) {
		if em.observers.HasTriggers(p.Event, key) {
			em.observers.Notify(ctx, p.Event, key, ev)
		}
		if em.observers.HasTriggers(EventWildcard, key) {
			em.observers.Notify(ctx, EventWildcard, key, ev)
		}
	}

	if p.Event == EventAdd || p.Event == EventRemove {
		if err := em.emitReachableIDs(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// observedKeys returns the set of observer-index keys a concrete id must be
// checked under: itself, its relation wildcard, its target wildcard, and
// the fully wildcarded id (spec §4.6 "matched at i, wildcards, and Any").
func (em *Emitter) observedKeys(id ID) []ID {
	keys := []ID{id}
	if id.IsPair() {
		if !IsWildcard(id.Relation()) {
			keys = append(keys, id.RelationWildcard())
		}
		if !IsWildcard(id.Target()) {
			keys = append(keys, id.TargetWildcard())
		}
		keys = append(keys, id.AnyWildcard())
	} else {
		keys = append(keys, MakeID(Any))
	}
	return keys
}

// emitReachableIDs synthesizes OnUnset/OnSet events from the reachable
// cache when an acyclic pair is added or removed on a table that has
// descendants (spec §4.7 "emit_reachable_ids"): adding the edge makes the
// whole (rel, childTable) reachable set newly visible to childTable (one
// Set per inherited id); removing it takes that visibility away (one Unset
// per id that was inherited through it).
func (em *Emitter) emitReachableIDs(ctx context.Context, p EmitParams) error {
	if !p.ID.IsPair() {
		return nil
	}
	rel := p.ID.Relation()
	relRec, ok := em.index.Get(MakePair(rel, Wildcard))
	if !ok {
		// p.ID is a concrete pair that was just added/removed on a table,
		// so Ensure must already have created (rel, Wildcard) for it
		// (spec §4.1 step 3, "ensure the relation wildcard record first").
		return internalf("relation wildcard record missing for %s", rel)
	}
	if !relRec.flags.Has(FlagAcyclic) {
		return nil
	}

	if !em.host.HasFlag(p.Table, TableHasAcyclic) {
		return nil
	}

	for row := p.Offset; row < p.Offset+p.Count; row++ {
		if !em.host.IsAcyclicTarget(p.Table, TableRow(row)) {
			continue
		}
		child := em.host.EntityAt(p.Table, TableRow(row))

		for _, childTable := range descendantTables(em.index, rel, child) {
			set, err := em.reachable.Get(rel, childTable)
			if err != nil {
				return err
			}

			var innerErr error
			set.Each(func(id ID, source Entity) {
				if innerErr != nil {
					return
				}
				event := EventSet
				if p.Event == EventRemove {
					event = EventUnset
				}
				innerErr = em.emitEvent(ctx, EmitParams{Event: event, ID: id, Table: childTable, Offset: 0, Count: em.host.RowCount(childTable)}, source, false)
			})
			if innerErr != nil {
				return innerErr
			}
		}
	}
	return nil
}

// descendantTables returns the tables carrying (relation, entity) — the
// direct children of entity through relation — the same index lookup
// travdown.go's BFS uses, not host.RecordOf (which resolves entity's own
// identity table, not who points at it).
func descendantTables(index *Index, relation, entity Entity) []TableID {
	r, ok := index.Get(MakePair(relation, entity))
	if !ok {
		return nil
	}
	var tables []TableID
	index.IterNonEmpty(r.id, func(t TableID) { tables = append(tables, t) })
	index.IterEmpty(r.id, func(t TableID) { tables = append(tables, t) })
	return tables
}

// propagate walks acyclic-target descendants of p.Table and re-emits p's
// event for each, per spec §4.7's propagate_emit algorithm (trigger.c):
// descent is driven purely by which rows are acyclic targets and, for each
// such entity, every acyclic relation it is currently a target of — the
// "relation==0" wildcard walk over the acyclic sub-chain of (*, entity) —
// never by p.ID's own relation. A bare component id therefore propagates
// exactly like a pair: the relation used at each hop comes from the
// descendant edge being walked, not from what's being emitted.
func (em *Emitter) propagate(ctx context.Context, p EmitParams) error {
	visitedTables := make(map[TableID]bool)
	visitedEntities := make(map[Entity]bool)

	var queue []Entity
	seed := func(t TableID) {
		if !em.host.HasFlag(t, TableHasAcyclic) {
			return
		}
		n := em.host.RowCount(t)
		for row := 0; row < n; row++ {
			if em.host.IsAcyclicTarget(t, TableRow(row)) {
				queue = append(queue, em.host.EntityAt(t, TableRow(row)))
			}
		}
	}
	seed(p.Table)

	for len(queue) > 0 {
		entity := queue[0]
		queue = queue[1:]
		if visitedEntities[entity] {
			continue
		}
		visitedEntities[entity] = true

		var relIDs []ID
		em.index.IterAcyclicRelations(entity, func(relID ID) { relIDs = append(relIDs, relID) })

		for _, relID := range relIDs {
			var childTables []TableID
			em.index.IterNonEmpty(relID, func(t TableID) { childTables = append(childTables, t) })
			em.index.IterEmpty(relID, func(t TableID) { childTables = append(childTables, t) })

			for _, childTable := range childTables {
				if visitedTables[childTable] {
					continue
				}
				visitedTables[childTable] = true

				childP := EmitParams{Event: p.Event, ID: p.ID, Table: childTable, Offset: 0, Count: em.host.RowCount(childTable), Relation: relID.Relation()}
				if err := em.emitEvent(ctx, childP, entity, false); err != nil {
					return err
				}
				seed(childTable)
			}
		}
	}
	return nil
}

// ReplayExisting synthesizes historical OnAdd events for every row already
// matching term, so an observer registered with YieldExisting sees the
// current population instead of only future changes (spec SPEC_FULL
// supplement, grounded on flecs trigger.c's yield_existing replay).
func (em *Emitter) ReplayExisting(ctx context.Context, term ID) error {
	var tables []TableID
	em.index.IterNonEmpty(term, func(t TableID) { tables = append(tables, t) })

	for _, t := range tables {
		n := em.host.RowCount(t)
		if n == 0 {
			continue
		}
		if err := em.emitEvent(ctx, EmitParams{Event: EventAdd, ID: term, Table: t, Offset: 0, Count: n}, 0, true); err != nil {
			return err
		}
	}
	return nil
}

// Instantiate handles the (is-a, base) add path (spec §4.7 "instantiation
// hook"): rejects bases marked Final; otherwise it reports instance as
// modified to the Invalidator, which bumps the generation of instance's
// acyclic (R, instance) records and queues them for reachable-cache
// recomputation. It does not copy the base's children onto the instance.
func (em *Emitter) Instantiate(ctx context.Context, instance, base Entity) error {
	baseWild, ok := em.index.Get(MakeID(base))
	if ok && baseWild.flags.Has(FlagFinal) {
		return &ConstraintError{Kind: ConstraintFinal, Entity: instance, ID: MakePair(IsA, base)}
	}
	em.invalid.OnEntityModified(instance)
	return nil
}
