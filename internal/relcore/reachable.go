package relcore

import (
	"fmt"
	"sort"

	"golang.org/x/sync/singleflight"
)

// ReachableSet is the (id, source-entity) set a table inherits along one
// relation from its ancestors (spec §3 "Reachable-id set", §4.2). It
// doubles as a compact, sorted, deduplicated table-key representation.
type ReachableSet struct {
	table   TableID // canonical table for the id set, from Host.TableForType
	ids     []ID
	sources []Entity
}

// Count returns the number of inherited (id, source) pairs.
func (s *ReachableSet) Count() int { return len(s.ids) }

// Table returns the canonical table handle representing this id set
// (spec §4.2 step 3) — a query engine can use it as a ready-made key.
func (s *ReachableSet) Table() TableID { return s.table }

// Lookup returns the source entity an id was inherited from, if present.
func (s *ReachableSet) Lookup(id ID) (Entity, bool) {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	if i < len(s.ids) && s.ids[i] == id {
		return s.sources[i], true
	}
	return 0, false
}

// Each calls fn for every (id, source) pair in id-sorted order.
func (s *ReachableSet) Each(fn func(id ID, source Entity)) {
	for i, id := range s.ids {
		fn(id, s.sources[i])
	}
}

type reachableKey struct {
	relation Entity
	table    TableID
}

type reachableCacheEntry struct {
	counter uint64
	set     *ReachableSet
}

// Reachable implements the Reachable-Ids Cache (spec §4.2, component B):
// memoized answers to "which ids does this table inherit along relation R,
// and from which entity". Builds are deduplicated per world bump via
// singleflight, matching spec §4.2's "recomputed at most once per world
// bump" requirement without hand-rolled locking.
type Reachable struct {
	host    Host
	index   *Index
	entries map[reachableKey]*reachableCacheEntry
	group   singleflight.Group
	counter uint64 // world-scope reachable_counter
}

// NewReachable creates a Reachable cache over index/host.
func NewReachable(index *Index, host Host) *Reachable {
	return &Reachable{host: host, index: index, entries: make(map[reachableKey]*reachableCacheEntry)}
}

// Bump advances the world-scope reachable_counter, the unit at which a
// cache entry may be recomputed at most once (spec §4.2, §4.5 step 1).
func (rc *Reachable) Bump() uint64 {
	rc.counter++
	return rc.counter
}

// Get returns the memoized reachable set for (relation, table), building
// it if the cached entry predates the current counter. relation must be
// declared Acyclic (spec §4.2 assumes a DAG so the merge in build
// terminates) — using it for a relation that never was is ErrUnsupported,
// not a silently empty set.
func (rc *Reachable) Get(relation Entity, table TableID) (*ReachableSet, error) {
	if relRec, ok := rc.index.Get(MakePair(relation, Wildcard)); !ok || !relRec.flags.Has(FlagAcyclic) {
		return nil, fmt.Errorf("%w: relation %s is not declared acyclic", ErrUnsupported, relation)
	}

	key := reachableKey{relation, table}
	if e, ok := rc.entries[key]; ok && e.counter == rc.counter {
		return e.set, nil
	}

	v, err, _ := rc.group.Do(fmt.Sprintf("%d:%d", relation, table), func() (any, error) {
		if e, ok := rc.entries[key]; ok && e.counter == rc.counter {
			return e.set, nil
		}
		set, err := rc.build(relation, table)
		if err != nil {
			return nil, err
		}
		rc.entries[key] = &reachableCacheEntry{counter: rc.counter, set: set}
		incr(coreMetrics.reachableCacheBuilds, 1)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReachableSet), nil
}

// Invalidate drops the cached entry for (relation, table), forcing a
// rebuild on next Get.
func (rc *Reachable) Invalidate(relation Entity, table TableID) {
	delete(rc.entries, reachableKey{relation, table})
}

// build implements spec §4.2's algorithm: for each (R, t_i) pair in
// table's type, resolve t_i's current table and merge in its type (minus
// pairs starting with R, to bound memory on deep trees) plus its own
// previously-built reachable cache, first-write-wins.
func (rc *Reachable) build(relation Entity, table TableID) (*ReachableSet, error) {
	merged := make(map[ID]Entity)
	var order []ID

	insert := func(id ID, source Entity) {
		if _, exists := merged[id]; exists {
			return
		}
		merged[id] = source
		order = append(order, id)
	}

	typ := rc.host.TypeOf(table)
	for _, pair := range typ {
		if !pair.IsPair() || pair.Relation() != relation {
			continue
		}
		ti := pair.Target()
		childTable, _, ok := rc.host.RecordOf(ti)
		if !ok {
			continue
		}

		for _, id := range rc.host.TypeOf(childTable) {
			if id.IsPair() && id.Relation() == relation {
				continue // bound memory on deep trees, spec §4.2 step 2
			}
			insert(id, ti)
		}

		if childSet, err := rc.Get(relation, childTable); err == nil && childSet != nil {
			childSet.Each(func(id ID, source Entity) {
				insert(id, source)
			})
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	sources := make([]Entity, len(order))
	for i, id := range order {
		sources[i] = merged[id]
	}

	canonical := rc.host.TableForType(order)
	return &ReachableSet{table: canonical, ids: order, sources: sources}, nil
}
