package relcore

// pendingEntry is one entry on the world-scope invalidation-pending list:
// a (Relation, *) record whose acyclic tables may need their reachable-ids
// cache rebuilt, together with the entity whose mutation put it there.
type pendingEntry struct {
	record *idRecord
	entity Entity
}

type pendingList struct {
	entries []pendingEntry
}

func (p *pendingList) add(e pendingEntry) {
	if e.record.pendingInval {
		return
	}
	e.record.pendingInval = true
	p.entries = append(p.entries, e)
}

func (p *pendingList) reset() []pendingEntry {
	out := p.entries
	for _, e := range out {
		e.record.pendingInval = false
	}
	p.entries = nil
	return out
}

// Invalidator implements Generation/Invalidation (spec §4.5, component E):
// monotone counters attached to id records, and edge-marking propagation
// when relationship targets are mutated.
type Invalidator struct {
	host      Host
	index     *Index
	reachable *Reachable
	down      *DownCache
	pending   pendingList
}

// NewInvalidator wires an Invalidator over the given index/caches.
func NewInvalidator(index *Index, host Host, reachable *Reachable, down *DownCache) *Invalidator {
	return &Invalidator{host: host, index: index, reachable: reachable, down: down}
}

// OnEntityModified is the invalidation entry point (spec §4.5, §6
// on_entity_modified): bumps the generation of every concrete (R, e)
// record reached via e's acyclic sub-chain, and queues each one's parent
// (R, *) record for reachable-id recomputation.
func (inv *Invalidator) OnEntityModified(e Entity) {
	tgtWild, ok := inv.index.Get(MakePair(Wildcard, e))
	if !ok {
		return
	}
	walkChain(tgtWild.acyclicHead, chainAcyclic, func(r *idRecord) bool {
		if r.id.IsPair() && r.id.Target() == e.Strip() {
			r.generation++
			relation := r.id.Relation()
			if relWild, ok := inv.index.Get(MakePair(relation, Wildcard)); ok {
				inv.pending.add(pendingEntry{record: relWild, entity: e})
			}
		}
		return true
	})
}

// InvalidateTableRange bumps the down-cache generation of every (R, entity)
// record for rows in [offset, offset+count) whose entity is an acyclic
// target (spec §4.5 "Table-level invalidation"). Returns whether any
// observed row fell in the range, so the row-mutation path knows whether
// propagation events are needed.
func (inv *Invalidator) InvalidateTableRange(t TableID, offset, count int) bool {
	observed := false
	for row := offset; row < offset+count; row++ {
		if !inv.host.IsAcyclicTarget(t, TableRow(row)) {
			continue
		}
		observed = true
		inv.OnEntityModified(inv.host.EntityAt(t, TableRow(row)))
	}
	return observed
}

// RevalidateAll implements spec §4.5's revalidate_all: bump the world
// counter, drop pending entries whose triggering entity has an ancestor
// also pending this round (the ancestor's rebuild recurses down and covers
// it), then rebuild and recurse for everything that survives.
func (inv *Invalidator) RevalidateAll() error {
	inv.reachable.Bump()
	entries := inv.pending.reset()
	if len(entries) == 0 {
		return nil
	}

	dirty := make(map[Entity]bool, len(entries))
	for _, e := range entries {
		dirty[e.entity.Strip()] = true
	}

	var survivors []pendingEntry
	for _, e := range entries {
		if inv.hasDirtyAncestor(e.entity, e.record.id.Relation(), dirty) {
			continue
		}
		survivors = append(survivors, e)
	}

	for _, e := range survivors {
		if err := inv.revalidateRecord(e.record, e.record.id.Relation()); err != nil {
			return err
		}
	}
	return nil
}

// hasDirtyAncestor reports whether entity's table carries a (relation,
// ancestor) pair where ancestor is itself in this round's dirty set.
func (inv *Invalidator) hasDirtyAncestor(entity, relation Entity, dirty map[Entity]bool) bool {
	t, _, ok := inv.host.RecordOf(entity)
	if !ok {
		return false
	}
	for _, id := range inv.host.TypeOf(t) {
		if id.IsPair() && id.Relation() == relation && dirty[id.Target().Strip()] {
			return true
		}
	}
	return false
}

// revalidateRecord rebuilds the reachable cache for every acyclic table
// referencing relWild (spec §4.5 step 3), then recurses into each such
// table's acyclic-target rows.
func (inv *Invalidator) revalidateRecord(relWild *idRecord, relation Entity) error {
	visited := make(map[TableID]bool)
	var walk func(t TableID) error
	walk = func(t TableID) error {
		if visited[t] {
			return nil
		}
		visited[t] = true
		inv.reachable.Invalidate(relation, t)
		if _, err := inv.reachable.Get(relation, t); err != nil {
			return err
		}
		n := inv.host.RowCount(t)
		for row := 0; row < n; row++ {
			if !inv.host.IsAcyclicTarget(t, TableRow(row)) {
				continue
			}
			child := inv.host.EntityAt(t, TableRow(row))
			for _, ct := range descendantTables(inv.index, relation, child) {
				if err := walk(ct); err != nil {
					return err
				}
			}
		}
		return nil
	}

	var tables []TableID
	walkChain(relWild.firstHead, chainFirst, func(r *idRecord) bool {
		inv.index.IterNonEmpty(r.id, func(t TableID) { tables = append(tables, t) })
		return true
	})
	for _, t := range tables {
		if err := walk(t); err != nil {
			return err
		}
	}
	return nil
}
