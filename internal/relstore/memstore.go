// Package relstore provides an in-memory implementation of
// internal/relcore.Host: row-major tables keyed by their sorted id set,
// grounded on the teacher's internal/storage/memory backend (a map-backed
// reference store used as the simplest correct implementation of a wider
// storage interface).
package relstore

import (
	"sort"
	"strings"
	"sync"

	"github.com/relgraph/relgraph/internal/relcore"
)

type tableData struct {
	id       relcore.TableID
	typ      []relcore.ID
	entities []relcore.Entity
	hasIsA   bool
	hasAcyc  bool
	// acyclicTarget[row] is true if the entity at that row is itself used
	// as an acyclic relation's target somewhere in the store.
	acyclicTarget []bool
	refs          int
}

// MemStore is a simple, non-production map-backed relcore.Host: every
// table is a parallel (types, entities) pair, entity generations are
// tracked in one flat map. Safe for concurrent use, though the core itself
// assumes the single-threaded-with-deferred-writes model of spec §5 and
// does not rely on MemStore's locking.
type MemStore struct {
	mu sync.Mutex

	nextTableID relcore.TableID
	tables      map[relcore.TableID]*tableData
	byType      map[string]relcore.TableID

	generations map[uint32]uint32 // entity numeric id -> current generation
	recordOf    map[relcore.Entity]recordLoc
}

type recordLoc struct {
	table relcore.TableID
	row   relcore.TableRow
}

// New creates an empty store.
func New() *MemStore {
	return &MemStore{
		tables:      make(map[relcore.TableID]*tableData),
		byType:      make(map[string]relcore.TableID),
		generations: make(map[uint32]uint32),
		recordOf:    make(map[relcore.Entity]recordLoc),
	}
}

var _ relcore.Host = (*MemStore)(nil)

// Spawn returns a handle for numericID at its current generation: 0 until
// the id is first despawned, then one higher per Despawn.
func (m *MemStore) Spawn(numericID uint32) relcore.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := m.generations[numericID]
	return relcore.NewEntity(numericID, gen)
}

// Despawn invalidates e by bumping its generation, so held handles with
// the old generation become stale (spec §3 Entity, "high bits carry a
// generation counter").
func (m *MemStore) Despawn(e relcore.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := e.ID()
	m.generations[id]++
	delete(m.recordOf, e.Strip())
}

func (m *MemStore) IsAlive(e relcore.Entity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[e.ID()] == e.Generation()
}

func (m *MemStore) RecordOf(e relcore.Entity) (relcore.TableID, relcore.TableRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.recordOf[e.Strip()]
	return loc.table, loc.row, ok
}

func (m *MemStore) TypeOf(t relcore.TableID) []relcore.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	td, ok := m.tables[t]
	if !ok {
		return nil
	}
	return td.typ
}

func (m *MemStore) RowCount(t relcore.TableID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	td, ok := m.tables[t]
	if !ok {
		return 0
	}
	return len(td.entities)
}

func (m *MemStore) EntityAt(t relcore.TableID, row relcore.TableRow) relcore.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	td, ok := m.tables[t]
	if !ok || int(row) >= len(td.entities) {
		return 0
	}
	return td.entities[row]
}

func (m *MemStore) HasFlag(t relcore.TableID, flag relcore.TableFlag) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	td, ok := m.tables[t]
	if !ok {
		return false
	}
	switch flag {
	case relcore.TableHasIsA:
		return td.hasIsA
	case relcore.TableHasAcyclic:
		return td.hasAcyc
	default:
		return false
	}
}

func (m *MemStore) IsAcyclicTarget(t relcore.TableID, row relcore.TableRow) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	td, ok := m.tables[t]
	if !ok || int(row) >= len(td.acyclicTarget) {
		return false
	}
	return td.acyclicTarget[row]
}

// TableForType returns the canonical table handle for a sorted,
// deduplicated id set, creating an empty table if none exists yet.
func (m *MemStore) TableForType(ids []relcore.ID) relcore.TableID {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := typeKey(ids)
	if t, ok := m.byType[key]; ok {
		m.tables[t].refs++
		return t
	}
	return m.createTableLocked(ids)
}

func (m *MemStore) createTableLocked(ids []relcore.ID) relcore.TableID {
	m.nextTableID++
	id := m.nextTableID
	td := &tableData{id: id, typ: append([]relcore.ID{}, ids...), refs: 1}
	for _, x := range ids {
		if x.IsPair() && x.Relation() == relcore.IsA {
			td.hasIsA = true
		}
	}
	m.tables[id] = td
	m.byType[typeKey(ids)] = id
	return id
}

// ReleaseTable decrements the table's reference count and drops it once it
// has neither rows nor references (spec §3 lifecycle for empty tables).
func (m *MemStore) ReleaseTable(t relcore.TableID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td, ok := m.tables[t]
	if !ok {
		return
	}
	td.refs--
	if td.refs <= 0 && len(td.entities) == 0 {
		delete(m.tables, t)
		delete(m.byType, typeKey(td.typ))
	}
}

// AddRow appends e to table t's row set, recording the caller-supplied
// isAcyclicTarget for the new row and setting the table's has-acyclic flag
// when it is true. This is relstore's
// own mutation API — relcore.Host has no write surface, consistent with
// spec §1's framing of table/row storage as an external collaborator.
func (m *MemStore) AddRow(t relcore.TableID, e relcore.Entity, isAcyclicTarget bool) relcore.TableRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tables[t]
	row := relcore.TableRow(len(td.entities))
	td.entities = append(td.entities, e)
	td.acyclicTarget = append(td.acyclicTarget, isAcyclicTarget)
	if isAcyclicTarget {
		td.hasAcyc = true
	}
	m.recordOf[e.Strip()] = recordLoc{table: t, row: row}
	return row
}

// RemoveRow deletes the row for e from its table via swap-remove, fixing
// up the moved row's back-reference.
func (m *MemStore) RemoveRow(e relcore.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.recordOf[e.Strip()]
	if !ok {
		return
	}
	td := m.tables[loc.table]
	last := len(td.entities) - 1
	moved := td.entities[last]
	td.entities[loc.row] = moved
	td.acyclicTarget[loc.row] = td.acyclicTarget[last]
	td.entities = td.entities[:last]
	td.acyclicTarget = td.acyclicTarget[:last]
	if moved != e {
		m.recordOf[moved.Strip()] = loc
	}
	delete(m.recordOf, e.Strip())
}

func typeKey(ids []relcore.ID) string {
	sorted := append([]relcore.ID{}, ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var b strings.Builder
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(id.String())
	}
	return b.String()
}
