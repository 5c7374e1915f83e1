package relcore

// chainKind selects one of the three wildcard chains an id record can be a
// member of (spec §3 "three intrusive list hooks"). Implemented as explicit
// prev/next fields rather than intrusive offsets, per spec §9's design note.
type chainKind int

const (
	chainFirst   chainKind = iota // member of (Relation, *)'s chain
	chainSecond                  // member of (*, Target)'s chain
	chainAcyclic                 // acyclic sub-chain of (*, Target)'s chain
)

type chainLink struct {
	prev, next *idRecord
}

// idRecord is the per-id index entry described in spec §3. One exists per
// distinct id key (stripped of generation bits) that has ever been
// ensure()'d and still has a reason to live.
type idRecord struct {
	id    ID
	flags Flags
	info  *ComponentInfo // non-nil iff this id carries component data

	// Table cache: tables containing this id, split into non-empty (has
	// live rows) and empty-but-reserved (spec §3 invariant on toggling).
	nonEmpty []TableID
	empty    []TableID
	tables   map[TableID]*tableRecord

	// Links into the three wildcard chains. first/secondHead/acyclicHead
	// are only meaningful when this record is itself the (R,*) or (*,T)
	// root of that chain; link holds this record's own membership in
	// whichever chain(s) it participates in as a non-root member.
	firstHead   *idRecord // valid when id == (R, *): head of (R,*) chain
	secondHead  *idRecord // valid when id == (*, T): head of (*,T) chain
	acyclicHead *idRecord // valid when id == (*, T): head of acyclic sub-chain
	link        [3]chainLink

	// generation is bumped on on_entity_modified (spec §4.5) and is the
	// value down-cache entries keyed through this record are validated
	// against; the entries themselves live in DownCache's LRU, keyed by
	// (relation, entity, with), not here — see spec §9's down-cache-key
	// Open Question (resolved: key on all three).
	generation   uint32
	pendingInval bool // already queued on the world's invalidation-pending list
}

func newIDRecord(id ID) *idRecord {
	return &idRecord{
		id:     id,
		tables: make(map[TableID]*tableRecord),
	}
}

// isUnreferenced reports whether the record has no table references at all
// (the condition, combined with no outstanding external holder, under which
// Index.Remove frees it — spec §3 Lifecycle).
func (r *idRecord) isUnreferenced() bool {
	return len(r.nonEmpty) == 0 && len(r.empty) == 0
}

// linkInto inserts r at the head of the chain rooted at head, updating
// *headField to point at r. O(1).
func linkInto(headField **idRecord, r *idRecord, kind chainKind) {
	old := *headField
	r.link[kind].prev = nil
	r.link[kind].next = old
	if old != nil {
		old.link[kind].prev = r
	}
	*headField = r
}

// unlinkFrom removes r from the chain rooted at *headField. O(1).
func unlinkFrom(headField **idRecord, r *idRecord, kind chainKind) {
	prev, next := r.link[kind].prev, r.link[kind].next
	if prev != nil {
		prev.link[kind].next = next
	} else if *headField == r {
		*headField = next
	}
	if next != nil {
		next.link[kind].prev = prev
	}
	r.link[kind].prev = nil
	r.link[kind].next = nil
}

// walkChain calls fn for every record in the chain rooted at head, in
// chain order. fn returning false stops the walk early.
func walkChain(head *idRecord, kind chainKind, fn func(*idRecord) bool) {
	for r := head; r != nil; r = r.link[kind].next {
		if !fn(r) {
			return
		}
	}
}

// noteTable registers (or re-registers) a table in this id record's cache,
// maintaining the empty/non-empty split and the table-cache header's
// column/count back-reference (spec §3 "Table record").
func (r *idRecord) noteTable(t TableID, hasRows bool, column, count int) {
	if tr, ok := r.tables[t]; ok {
		tr.column, tr.count = column, count
		return
	}
	tr := &tableRecord{table: t, column: column, count: count}
	r.tables[t] = tr
	if hasRows {
		r.nonEmpty = append(r.nonEmpty, t)
	} else {
		r.empty = append(r.empty, t)
	}
}

// setTableEmpty moves t between the empty and non-empty lists, the O(1)
// flip spec §3's state machine requires on row insert/last-row-removed.
func (r *idRecord) setTableEmpty(t TableID, empty bool) {
	if empty {
		if removeTableID(&r.nonEmpty, t) {
			r.empty = append(r.empty, t)
		}
	} else {
		if removeTableID(&r.empty, t) {
			r.nonEmpty = append(r.nonEmpty, t)
		}
	}
}

func (r *idRecord) forgetTable(t TableID) {
	removeTableID(&r.nonEmpty, t)
	removeTableID(&r.empty, t)
	delete(r.tables, t)
}

func removeTableID(list *[]TableID, t TableID) bool {
	for i, x := range *list {
		if x == t {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
