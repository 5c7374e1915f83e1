package relcore

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DownElem is one entry in a down-traversal result: a table reached by
// following a relation from the query root, whether it owns the searched
// id directly ("leaf", descent stops there), and, for a non-leaf table, the
// column of the traversed (relation, entity) pair in its type (-1 for a
// leaf). TravColumn is set for every non-leaf table; whether another
// instance of the same relation in that table also satisfies the search is
// not checked.
type DownElem struct {
	Table      TableID
	Leaf       bool
	TravColumn int
}

type downKey struct {
	relation Entity
	entity   Entity
	with     ID
}

type downCacheEntry struct {
	gen   uint32
	elems []DownElem
}

// DownCache implements the Down-Traversal Cache (spec §4.3, component C):
// for (relation, entity, with), the ordered list of descendant tables
// reached by following relation from entity, pruned at tables that already
// own with. Keyed on all three of (trav, entity, with) per spec §9's Open
// Question, resolved conservatively.
type DownCache struct {
	host  Host
	index *Index
	cache *lru.Cache[downKey, *downCacheEntry]
	group singleflight.Group
}

// NewDownCache creates a down-traversal cache bounded to capacity entries.
func NewDownCache(index *Index, host Host, capacity int) *DownCache {
	c, _ := lru.New[downKey, *downCacheEntry](capacity)
	return &DownCache{host: host, index: index, cache: c}
}

// Get returns the (possibly cached) down-traversal result for
// (relation, entity, with). A nil, nil result means "no match" (spec §4.7
// "Missing entries ... are treated as no match").
func (dc *DownCache) Get(relation, entity Entity, with ID) ([]DownElem, error) {
	key := downKey{relation, entity, with}

	valid := func() (*downCacheEntry, bool) {
		e, ok := dc.cache.Get(key)
		if !ok {
			return nil, false
		}
		rr, has := dc.index.Get(MakePair(relation, entity))
		if has && e.gen != rr.generation {
			return nil, false
		}
		return e, true
	}

	if e, ok := valid(); ok {
		return e.elems, nil
	}

	v, err, _ := dc.group.Do(keyString(key), func() (any, error) {
		if e, ok := valid(); ok {
			return e.elems, nil
		}
		elems, err := dc.build(relation, entity, with)
		if err != nil {
			return nil, err
		}
		gen := uint32(0)
		if rr, has := dc.index.Get(MakePair(relation, entity)); has {
			gen = rr.generation
		}
		dc.cache.Add(key, &downCacheEntry{gen: gen, elems: elems})
		incr(coreMetrics.downCacheBuilds, 1)
		return elems, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]DownElem), nil
}

// Clear drops the cached entry for (relation, entity, with) — the "full
// clear" spec §9 specifies in place of the partially-written
// flecs_trav_down_cache_clear stub.
func (dc *DownCache) Clear(relation, entity Entity, with ID) {
	dc.cache.Remove(downKey{relation, entity, with})
}

// build implements the breadth-first algorithm of spec §4.3.
func (dc *DownCache) build(relation, root Entity, with ID) ([]DownElem, error) {
	type queued struct{ entity Entity }
	visitedTables := make(map[TableID]bool)
	visitedEntities := make(map[Entity]bool)
	queue := []queued{{root}}
	var elems []DownElem

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visitedEntities[cur.entity] {
			continue // acyclicity guarantees termination; guard against re-entry anyway
		}
		visitedEntities[cur.entity] = true

		r, ok := dc.index.Get(MakePair(relation, cur.entity))
		if ok {
			var tables []TableID
			dc.index.IterNonEmpty(r.id, func(t TableID) { tables = append(tables, t) })
			dc.index.IterEmpty(r.id, func(t TableID) { tables = append(tables, t) })

			for _, t := range tables {
				if visitedTables[t] {
					continue
				}
				visitedTables[t] = true

				typ := dc.host.TypeOf(t)
				leaf := containsID(typ, with)
				travCol := -1
				if !leaf {
					travCol = columnOf(typ, MakePair(relation, cur.entity))
				}
				elems = append(elems, DownElem{Table: t, Leaf: leaf, TravColumn: travCol})

				if leaf {
					continue // stop descending at a leaf (spec §4.3)
				}
				if dc.host.HasFlag(t, TableHasAcyclic) {
					n := dc.host.RowCount(t)
					for row := 0; row < n; row++ {
						if dc.host.IsAcyclicTarget(t, TableRow(row)) {
							queue = append(queue, queued{dc.host.EntityAt(t, TableRow(row))})
						}
					}
				}
			}
		}

		if relation != IsA {
			if t, _, ok := dc.host.RecordOf(cur.entity); ok && dc.host.HasFlag(t, TableHasIsA) {
				for _, id := range dc.host.TypeOf(t) {
					if id.IsPair() && id.Relation() == IsA && !visitedEntities[id.Target()] {
						queue = append(queue, queued{id.Target()})
					}
				}
			}
		}
	}
	return elems, nil
}

func containsID(typ []ID, id ID) bool {
	for _, x := range typ {
		if x == id {
			return true
		}
	}
	return false
}

func columnOf(typ []ID, id ID) int {
	for i, x := range typ {
		if x == id {
			return i
		}
	}
	return -1
}

func keyString(k downKey) string {
	return k.relation.String() + "|" + k.entity.String() + "|" + k.with.String()
}
