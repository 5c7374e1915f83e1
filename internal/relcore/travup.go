package relcore

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// UpEntry is the result of an up-traversal: the nearest ancestor table
// owning the searched id, the id's storage column there, and the entity it
// was found through. Source == 0 means "not reachable" (spec §4.4,
// §6 relation_traverse_up).
type UpEntry struct {
	Source Entity
	ID     ID
	Column int
}

type upKey struct {
	relation Entity
	table    TableID
	with     ID
}

// UpCache implements the Up-Traversal Cache (spec §4.4, component D): for
// (relation, table, with), the nearest ancestor table owning with,
// transparently traversing is-a.
type UpCache struct {
	host  Host
	index *Index
	cache *lru.Cache[upKey, UpEntry]
}

// NewUpCache creates an up-traversal cache bounded to capacity entries.
func NewUpCache(index *Index, host Host, capacity int) *UpCache {
	c, _ := lru.New[upKey, UpEntry](capacity)
	return &UpCache{host: host, index: index, cache: c}
}

// Get returns the up-traversal result for (relation, table, with). Not
// reachable (Source == 0) is a valid, cacheable answer, not an error.
func (uc *UpCache) Get(relation Entity, table TableID, with ID) (UpEntry, error) {
	with = uc.rewriteUnion(with)
	key := upKey{relation, table, with}
	if e, ok := uc.cache.Get(key); ok {
		return e, nil
	}
	e, err := uc.build(relation, table, with)
	if err != nil {
		return UpEntry{}, err
	}
	uc.cache.Add(key, e)
	incr(coreMetrics.upCacheBuilds, 1)
	return e, nil
}

// Invalidate drops the cached entry for (relation, table, with).
func (uc *UpCache) Invalidate(relation Entity, table TableID, with ID) {
	uc.cache.Remove(upKey{relation, table, with})
}

// rewriteUnion rewrites a (P, X) search for a Union relation P into the
// actual storage encoding (Union, P), per spec §4.4 "Union ids".
func (uc *UpCache) rewriteUnion(with ID) ID {
	if !with.IsPair() {
		return with
	}
	p := with.Relation()
	rec, ok := uc.index.Get(MakePair(p, Wildcard))
	if ok && rec.flags.Has(FlagUnion) {
		return MakePair(Union, p)
	}
	return with
}

// build implements spec §4.4's algorithm.
func (uc *UpCache) build(relation Entity, table TableID, with ID) (UpEntry, error) {
	typ := uc.host.TypeOf(table)
	hasRelation := false
	for _, id := range typ {
		if id.IsPair() && id.Relation() == relation {
			hasRelation = true
			break
		}
	}
	if !hasRelation {
		return UpEntry{}, nil // not reachable: table carries no (R,*) pairs
	}

	for _, id := range typ {
		if !id.IsPair() || id.Relation() != relation {
			continue
		}
		ti := id.Target()
		tiTable, _, ok := uc.host.RecordOf(ti)
		if !ok {
			continue
		}
		tiType := uc.host.TypeOf(tiTable)

		if containsID(tiType, with) {
			return UpEntry{Source: ti, ID: with, Column: columnOf(tiType, with)}, nil
		}

		if relation != IsA && uc.host.HasFlag(tiTable, TableHasIsA) && uc.inheritable(with) && !uc.exclusiveOccupied(tiType, with) {
			if e, err := uc.Get(IsA, tiTable, with); err == nil && e.Source != 0 {
				return e, nil
			}
		}

		if e, err := uc.Get(relation, tiTable, with); err == nil && e.Source != 0 {
			return e, nil
		}
	}
	return UpEntry{}, nil
}

// inheritable reports whether with may be inherited through is-a — false
// if its record carries the DontInherit flag. Ids with no record yet are
// treated as inheritable.
func (uc *UpCache) inheritable(with ID) bool {
	r, ok := uc.index.Get(with)
	if !ok {
		return true
	}
	return !r.flags.Has(FlagDontInherit)
}

// exclusiveOccupied reports whether typ already carries another instance
// of with's Exclusive relation, which blocks is-a from contributing it
// (spec §4.4 "Exclusive with-ids").
func (uc *UpCache) exclusiveOccupied(typ []ID, with ID) bool {
	if !with.IsPair() {
		return false
	}
	p := with.Relation()
	rec, ok := uc.index.Get(MakePair(p, Wildcard))
	if !ok || !rec.flags.Has(FlagExclusive) {
		return false
	}
	for _, id := range typ {
		if id.IsPair() && id.Relation() == p {
			return true
		}
	}
	return false
}
