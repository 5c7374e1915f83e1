package relcore

import (
	"fmt"
)

// Index is the process-wide map from id to id record (spec §4.1, component
// A). It owns wildcard-chain linkage, table registration, and type-info
// inheritance; every other component in this package reads through it.
type Index struct {
	host    Host
	records map[ID]*idRecord

	// Relation-level oneof constraints, bootstrapped by internal/relconfig
	// before first use and consulted by Ensure's oneof check (checkOneOf).
	oneOf map[Entity]Entity // relation -> required (ChildOf, K) target K

	deferredPump func(ID)
}

// NewIndex creates an empty index backed by host.
func NewIndex(host Host) *Index {
	return &Index{
		host:    host,
		records: make(map[ID]*idRecord),
		oneOf:   make(map[Entity]Entity),
	}
}

// SetOneOf declares that relation is constrained to targets having
// (ChildOf, k) — the Exclusive-constraint precondition checked in ensure
// step 6.
func (ix *Index) SetOneOf(relation, k Entity) { ix.oneOf[relation] = k }

// Get performs an O(1) lookup with no side effects.
func (ix *Index) Get(id ID) (*idRecord, bool) {
	r, ok := ix.records[id]
	return r, ok
}

// Ensure returns the existing record for id, or creates one (spec §4.1
// "ensure"). Creation inherits flags and, where possible, component type
// info from the relation wildcard record, then links the new record into
// its wildcard chains and applies the Exclusive constraint.
func (ix *Index) Ensure(id ID) (*idRecord, error) {
	if r, ok := ix.records[id]; ok {
		return r, nil
	}

	if id.IsPair() {
		rel, target := id.Relation(), id.Target()
		if rel == 0 {
			return nil, ErrInvalidParameter
		}
		if !IsWildcard(rel) && !ix.host.IsAlive(rel) {
			return nil, fmt.Errorf("%w: relation %s is not alive", ErrInvalidParameter, rel)
		}
		if !IsWildcard(target) && target != 0 && !ix.host.IsAlive(target) {
			return nil, fmt.Errorf("%w: target %s is not alive", ErrInvalidParameter, target)
		}
	}

	r := newIDRecord(id)

	if id.IsPair() && !IsWildcard(id.Target()) {
		relWild, err := ix.Ensure(id.RelationWildcard())
		if err != nil {
			return nil, err
		}
		r.flags = relWild.flags
		if relWild.info != nil {
			r.info = relWild.info
		} else if ti, ok := ix.typeInfoOf(id.Target()); ok {
			r.info = ti
		}
	}

	ix.records[id] = r
	ix.linkWildcards(r)

	if id.IsPair() && !IsWildcard(id.Target()) {
		if err := ix.checkOneOf(id); err != nil {
			delete(ix.records, id)
			ix.unlinkWildcards(r)
			return nil, err
		}
	}

	return r, nil
}

// typeInfoOf looks up a component type descriptor registered directly on a
// bare-id record for e, used when a pair inherits type info from its
// target rather than its relation (spec §4.1 step 3).
func (ix *Index) typeInfoOf(e Entity) (*ComponentInfo, bool) {
	r, ok := ix.records[MakeID(e)]
	if !ok || r.info == nil {
		return nil, false
	}
	return r.info, true
}

// checkOneOf applies the Exclusive constraint from spec §4.1 step 6: if
// oneof(Relation)=K, the pair's target must carry (ChildOf, K).
func (ix *Index) checkOneOf(id ID) error {
	rel := id.Relation()
	k, constrained := ix.oneOf[rel]
	if !constrained {
		return nil
	}
	target := id.Target()
	want := MakePair(ChildOf, k)
	tr, ok := ix.records[want]
	if !ok {
		return &ConstraintError{Kind: ConstraintOneOf, Entity: target, ID: id}
	}
	for _, t := range tr.nonEmpty {
		for _, row := range ix.rowsOfEntity(t, target) {
			_ = row
			return nil
		}
	}
	return &ConstraintError{Kind: ConstraintOneOf, Entity: target, ID: id}
}

// rowsOfEntity returns the rows in t whose entity equals e. Most tables
// have at most one matching row; this is a host-delegated scan since the
// core does not own row storage.
func (ix *Index) rowsOfEntity(t TableID, e Entity) []TableRow {
	n := ix.host.RowCount(t)
	var out []TableRow
	for row := 0; row < n; row++ {
		if ix.host.EntityAt(t, TableRow(row)) == e {
			out = append(out, TableRow(row))
		}
	}
	return out
}

// linkWildcards threads a freshly created record into the (R,*), (*,T),
// and (if acyclic) acyclic-subchain lists, per spec §4.1 step 4. It does
// not mark the relation or the target as observed; whether a row's entity
// is an acyclic target is reported by the host (Host.IsAcyclicTarget).
func (ix *Index) linkWildcards(r *idRecord) {
	if !r.id.IsPair() {
		return
	}
	rel, target := r.id.Relation(), r.id.Target()

	if !IsWildcard(rel) && !IsWildcard(target) {
		relWild, _ := ix.Ensure(MakePair(rel, Wildcard))
		linkInto(&relWild.firstHead, r, chainFirst)
	}
	if !IsWildcard(target) && !IsWildcard(rel) {
		tgtWild, _ := ix.Ensure(MakePair(Wildcard, target))
		linkInto(&tgtWild.secondHead, r, chainSecond)
		if r.flags.Has(FlagAcyclic) {
			linkInto(&tgtWild.acyclicHead, r, chainAcyclic)
		}
	}
}

func (ix *Index) unlinkWildcards(r *idRecord) {
	if !r.id.IsPair() {
		return
	}
	rel, target := r.id.Relation(), r.id.Target()
	if relWild, ok := ix.records[MakePair(rel, Wildcard)]; ok && !IsWildcard(rel) && !IsWildcard(target) {
		unlinkFrom(&relWild.firstHead, r, chainFirst)
	}
	if tgtWild, ok := ix.records[MakePair(Wildcard, target)]; ok && !IsWildcard(target) && !IsWildcard(rel) {
		unlinkFrom(&tgtWild.secondHead, r, chainSecond)
		if r.flags.Has(FlagAcyclic) {
			unlinkFrom(&tgtWild.acyclicHead, r, chainAcyclic)
		}
	}
}

// IterAcyclicRelations calls fn with every acyclic (relation, entity) id
// whose record exists — the acyclic sub-chain rooted at (*, entity) — for
// every relation entity is currently a target of, not just one. This is
// the "relation==0" wildcard walk spec §4.7's propagate_emit performs: it
// lets propagation descend from any emitted id, not just one sharing the
// id's own relation.
func (ix *Index) IterAcyclicRelations(entity Entity, fn func(id ID)) {
	tgtWild, ok := ix.records[MakePair(Wildcard, entity)]
	if !ok {
		return
	}
	walkChain(tgtWild.acyclicHead, chainAcyclic, func(r *idRecord) bool {
		fn(r.id)
		return true
	})
}

// SetFlags overwrites the flag set on id's record, if it exists — used by
// relconfig to apply a relation's declared schema (Acyclic, Exclusive,
// Union, and so on) after Ensure has created the (Relation,*) record.
func (ix *Index) SetFlags(id ID, flags Flags) {
	if r, ok := ix.records[id]; ok {
		r.flags = flags
	}
}

// FlagsOf returns id's current flag set, if the record exists.
func (ix *Index) FlagsOf(id ID) (Flags, bool) {
	r, ok := ix.records[id]
	if !ok {
		return 0, false
	}
	return r.flags, true
}

// SetTypeInfo switches a record between tag and component status (spec
// §4.1 "set_type_info").
func (ix *Index) SetTypeInfo(r *idRecord, info *ComponentInfo) {
	r.info = info
	if info == nil {
		r.flags |= FlagTag
	} else {
		r.flags &^= FlagTag
	}
}

// NoteTableMembership registers table t as containing id at the given
// column/count, creating the record if necessary. hasRows reflects the
// table's current row count.
func (ix *Index) NoteTableMembership(id ID, t TableID, hasRows bool, column, count int) error {
	r, err := ix.Ensure(id)
	if err != nil {
		return err
	}
	r.noteTable(t, hasRows, column, count)
	return nil
}

// SetTableEmpty flips a table's membership between the empty and
// non-empty lists of id's record (spec §3 state machine).
func (ix *Index) SetTableEmpty(id ID, t TableID, empty bool) {
	if r, ok := ix.records[id]; ok {
		r.setTableEmpty(t, empty)
	}
}

// Remove attempts to free id's record (spec §4.1 "remove"). Returns true
// only if both table lists became empty and no table reference remains
// after releasing any tables the host reports as having zero live rows.
func (ix *Index) Remove(id ID) bool {
	r, ok := ix.records[id]
	if !ok {
		return true
	}
	ix.drainDeferred(r)

	for _, t := range append([]TableID{}, r.empty...) {
		if ix.host.RowCount(t) == 0 {
			ix.host.ReleaseTable(t)
		}
	}
	r.empty = r.empty[:0]

	if !r.isUnreferenced() {
		return false
	}

	ix.unlinkWildcards(r)
	delete(ix.records, id)
	return true
}

// Clear force-deletes every table referencing id, then removes the record
// (spec §4.1 "clear").
func (ix *Index) Clear(id ID) {
	r, ok := ix.records[id]
	if !ok {
		return
	}
	for _, t := range append(append([]TableID{}, r.nonEmpty...), r.empty...) {
		ix.host.ReleaseTable(t)
	}
	r.nonEmpty, r.empty = nil, nil
	ix.Remove(id)
}

// IterNonEmpty and IterEmpty walk an id's table-cache lists, first
// draining the deferred-table-event pump so the walk observes coherent
// state (spec §4.1 "each triggers a deferred-event pump").
func (ix *Index) IterNonEmpty(id ID, out func(TableID)) {
	r, ok := ix.records[id]
	if !ok {
		return
	}
	ix.drainDeferred(r)
	for _, t := range r.nonEmpty {
		out(t)
	}
}

func (ix *Index) IterEmpty(id ID, out func(TableID)) {
	r, ok := ix.records[id]
	if !ok {
		return
	}
	ix.drainDeferred(r)
	for _, t := range r.empty {
		out(t)
	}
}

// drainDeferred runs the idempotent deferred-table-event pump (spec §9
// "Deferred work"). This core has no command queue of its own to drain by
// default; hosts that defer table transitions across a command-phase
// boundary install one via SetDeferredPump.
func (ix *Index) drainDeferred(r *idRecord) {
	if ix.deferredPump != nil {
		ix.deferredPump(r.id)
	}
}

// SetDeferredPump installs the host's idempotent pending-table-event drain
// function, invoked at the start of IterNonEmpty/IterEmpty (spec §5
// "Suspension points"). It must be safe to call re-entrantly.
func (ix *Index) SetDeferredPump(fn func(ID)) { ix.deferredPump = fn }
