package relcore

// TableID is an opaque handle into the host's table storage. The core
// never interprets it beyond equality and the operations below; actual row
// data, column layout, and storage live entirely in the host (spec §1:
// general entity/record storage is an external collaborator).
type TableID uint64

// TableRow identifies a row within a table.
type TableRow int

// Host is the set of abstract operations the core needs from the entity
// and table storage it does not own. A host implementation must guarantee
// that RecordOf and TypeOf observe the most recent mutation visible to the
// calling phase (spec §5).
type Host interface {
	// RecordOf resolves an entity to its (table, row), or ok=false if the
	// entity has no record (deleted or never created).
	RecordOf(e Entity) (table TableID, row TableRow, ok bool)

	// TypeOf returns the ordered sequence of ids that make up a table's
	// type. The returned slice must not be mutated by the caller.
	TypeOf(t TableID) []ID

	// RowCount returns the number of live rows in a table.
	RowCount(t TableID) int

	// EntityAt returns the entity stored at (table, row).
	EntityAt(t TableID, row TableRow) Entity

	// HasFlag reports whether t carries one of the table-level flags
	// described in spec §3 (has-is-a, has-acyclic, observed-as-acyclic
	// membership is queried per-row via IsAcyclicTarget, not here).
	HasFlag(t TableID, flag TableFlag) bool

	// IsAcyclicTarget reports whether the entity at (table, row) is itself
	// used as the target of some acyclic relation — the condition that
	// makes a row a propagation/recursion point in spec §4.3 step 3 and
	// §4.7 step 7.
	IsAcyclicTarget(t TableID, row TableRow) bool

	// TableForType returns (creating if necessary) the canonical table
	// handle for an id set, used by the reachable-ids cache (spec §4.2
	// step 3) to obtain a shared, deduplicated key for identical acyclic
	// projections. ids must already be sorted and deduplicated.
	TableForType(ids []ID) TableID

	// ReleaseTable is a best-effort hint that the core no longer needs a
	// table handle obtained from TableForType. Hosts that reference-count
	// table handles should decrement here; hosts that don't may no-op.
	ReleaseTable(t TableID)

	// IsAlive reports whether e still refers to its original record,
	// resolving against the host's own generation tracking. Used by
	// ensure (spec §4.1 step 1, "resolves live generations") to reject
	// stale handles early rather than silently indexing a dead entity.
	IsAlive(e Entity) bool
}

// TableFlag enumerates table-level flags from spec §3.
type TableFlag int

const (
	// TableHasIsA marks a table with at least one (IsA, X) pair in its type.
	TableHasIsA TableFlag = iota
	// TableHasAcyclic marks a table with at least one row whose entity is the
	// target of an acyclic relation (IsAcyclicTarget true for that row); the
	// core checks it before scanning a table's rows for acyclic targets.
	TableHasAcyclic
)

// tableRecord is the back-reference stored in an id record's table-cache
// header list (spec §3 "Table record").
type tableRecord struct {
	table  TableID
	column int // first occurrence index in the type
	count  int // consecutive occurrences of the id starting at column
}
