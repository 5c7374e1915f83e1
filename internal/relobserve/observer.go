// Package relobserve implements the Observer Index (spec §4.6, component
// F): a map (event, id, role) -> observers, partitioned by self / superset
// / entity-filtered occurrence, generalized from the teacher's
// internal/eventbus.Bus (event-type keyed handler dispatch, called in
// priority order) to ECS-style (event, id) keying with relation-superset
// and entity-pinned subscriptions.
package relobserve

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/relgraph/relgraph/internal/relcore"
)

// Event is an alias for relcore.Event: the shared vocabulary of mutation
// kinds the emitter and the observer index both key on.
type Event = relcore.Event

const (
	EventAdd      = relcore.EventAdd
	EventRemove   = relcore.EventRemove
	EventSet      = relcore.EventSet
	EventUnset    = relcore.EventUnset
	EventWildcard = relcore.EventWildcard
)

// Context is an alias for the emitter's occurrence payload — the observer
// index notifies callbacks with exactly what relcore's Emitter builds, so
// there is one shape, not two.
type Context = relcore.ObserverEvent

// Callback is a user-supplied observer function. ctx1 and ctx2 are the two
// opaque context words spec §9's design note calls for, carried verbatim
// rather than interpreted by the index.
type Callback func(ctx context.Context, ev Context, ctx1, ctx2 any)

// Handle is the opaque id returned by Register, used to Unregister later.
type Handle string

// Observer is one registered subscription.
type Observer struct {
	Handle        Handle
	Term          relcore.ID // the id this observer watches
	Events        []Event
	Callback      Callback
	Ctx1, Ctx2    any
	MatchPrefab   bool
	MatchDisabled bool
	Instanced     bool
	YieldExisting bool

	// Subject restricts matches to a concrete entity; zero means
	// unrestricted (spec §4.6 entity/superset_entity partitions).
	Subject relcore.Entity
	// ViaRelation restricts superset matches to one relation; zero means any
	// relation (the `triggers`/`entity` partitions vs
	// `superset[R]`/`superset_entity[subj]`).
	ViaRelation relcore.Entity
}

type bucketKey struct {
	event Event
	id    relcore.ID
}

// bucket holds every observer partition for one (event, id) pair (spec
// §4.6).
type bucket struct {
	triggers       []*Observer // self occurrences, no relation filter
	superset       map[relcore.Entity][]*Observer
	entity         map[relcore.Entity][]*Observer
	supersetEntity map[relcore.Entity][]*Observer
	triggerCount   int
}

// Index is the observer registry (spec §4.6, component F).
type Index struct {
	buckets  map[bucketKey]*bucket
	byHandle map[Handle]*Observer
	// OnTriggerCountChange, if set, is called whenever a (event, id)
	// bucket's trigger_count transitions 0<->1, matching spec's
	// "triggers-for-id / no-triggers-for-id" table events so query
	// planners can skip unused work. Mirrors the teacher's
	// eventbus.Bus.Handlers() introspection idiom.
	OnTriggerCountChange func(event Event, id relcore.ID, hasTriggers bool)

	logger *log.Logger
}

// New creates an empty observer index.
func New() *Index {
	return &Index{
		buckets:  make(map[bucketKey]*bucket),
		byHandle: make(map[Handle]*Observer),
		logger:   log.Default(),
	}
}

func (ix *Index) bucketFor(event Event, id relcore.ID) *bucket {
	key := bucketKey{event, id}
	b, ok := ix.buckets[key]
	if !ok {
		b = &bucket{
			superset:       make(map[relcore.Entity][]*Observer),
			entity:         make(map[relcore.Entity][]*Observer),
			supersetEntity: make(map[relcore.Entity][]*Observer),
		}
		ix.buckets[key] = b
	}
	return b
}

// Register adds an observer for o.Term across each of o.Events, returning
// an opaque handle. Matches spec §6's observer_register; YieldExisting
// replay (spec SPEC_FULL supplement) is the caller's responsibility via
// ReplayExisting, since it requires walking the id index's table cache.
func (ix *Index) Register(o Observer) Handle {
	if o.Handle == "" {
		o.Handle = Handle(uuid.NewString())
	}
	stored := o
	ix.byHandle[stored.Handle] = &stored

	for _, ev := range o.Events {
		b := ix.bucketFor(ev, o.Term)
		ix.addToBucket(b, &stored)
		before := b.triggerCount
		b.triggerCount++
		ix.notifyTriggerCount(ev, o.Term, before, b.triggerCount)
	}
	return stored.Handle
}

func (ix *Index) addToBucket(b *bucket, o *Observer) {
	switch {
	case o.Subject != 0 && o.ViaRelation != 0:
		b.supersetEntity[o.Subject] = append(b.supersetEntity[o.Subject], o)
	case o.Subject != 0:
		b.entity[o.Subject] = append(b.entity[o.Subject], o)
	case o.ViaRelation != 0:
		b.superset[o.ViaRelation] = append(b.superset[o.ViaRelation], o)
	default:
		b.triggers = append(b.triggers, o)
	}
}

// Unregister removes an observer by handle. Returns true if it existed.
func (ix *Index) Unregister(h Handle) bool {
	o, ok := ix.byHandle[h]
	if !ok {
		return false
	}
	delete(ix.byHandle, h)
	for _, ev := range o.Events {
		key := bucketKey{ev, o.Term}
		b, ok := ix.buckets[key]
		if !ok {
			continue
		}
		removeFromBucket(b, o)
		before := b.triggerCount
		if before > 0 {
			b.triggerCount--
		}
		ix.notifyTriggerCount(ev, o.Term, before, b.triggerCount)
	}
	return true
}

func removeFromBucket(b *bucket, o *Observer) {
	b.triggers = removeObserver(b.triggers, o)
	for k, v := range b.superset {
		b.superset[k] = removeObserver(v, o)
	}
	for k, v := range b.entity {
		b.entity[k] = removeObserver(v, o)
	}
	for k, v := range b.supersetEntity {
		b.supersetEntity[k] = removeObserver(v, o)
	}
}

func removeObserver(list []*Observer, o *Observer) []*Observer {
	for i, x := range list {
		if x == o {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (ix *Index) notifyTriggerCount(event Event, id relcore.ID, before, after int) {
	if ix.OnTriggerCountChange == nil {
		return
	}
	if before == 0 && after > 0 {
		ix.OnTriggerCountChange(event, id, true)
	} else if before > 0 && after == 0 {
		ix.OnTriggerCountChange(event, id, false)
	}
}

// HasTriggers reports whether (event, id) has any registered observer —
// query planners use this to skip emitting work nobody listens for.
func (ix *Index) HasTriggers(event Event, id relcore.ID) bool {
	b, ok := ix.buckets[bucketKey{event, id}]
	return ok && b.triggerCount > 0
}

// Notify runs every matching observer for (event, id) against ctx, in the
// order spec §4.6/§4.7 requires: general self-observers (triggers, then
// superset[ev.Relation], or every superset partition when ev.Relation is
// 0), then entity-filtered observers (entity[ev.Source], then
// supersetEntity[ev.Source] narrowed to ev.Relation; supersetEntity is
// skipped when ev.Relation is 0).
func (ix *Index) Notify(c context.Context, event Event, id relcore.ID, ev Context) {
	b, ok := ix.buckets[bucketKey{event, id}]
	if !ok {
		return
	}

	fire := func(list []*Observer) {
		for _, o := range list {
			if err := safeInvoke(o, c, ev); err != nil {
				ix.logger.Printf("relobserve: observer %s panicked: %v", o.Handle, err)
			}
		}
	}

	fire(b.triggers)
	if ev.Relation != 0 {
		fire(b.superset[ev.Relation])
	} else {
		fire(allValues(b.superset))
	}

	fire(b.entity[ev.Source])
	if ev.Relation != 0 {
		// supersetEntity is keyed by Subject (like b.entity), then
		// narrowed to observers whose ViaRelation matches this
		// occurrence's relation.
		for _, o := range b.supersetEntity[ev.Source] {
			if o.ViaRelation != ev.Relation {
				continue
			}
			if err := safeInvoke(o, c, ev); err != nil {
				ix.logger.Printf("relobserve: observer %s panicked: %v", o.Handle, err)
			}
		}
	}
}

func allValues(m map[relcore.Entity][]*Observer) []*Observer {
	var out []*Observer
	keys := make([]relcore.Entity, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		out = append(out, m[k]...)
	}
	return out
}

// safeInvoke calls an observer callback, converting a panic into an error
// so a misbehaving observer never unwinds through the emitter (spec §7
// "Errors never unwind through observer callbacks").
func safeInvoke(o *Observer, c context.Context, ev Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()
	o.Callback(c, ev, o.Ctx1, o.Ctx2)
	return nil
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("observer panic: %v", p.v) }
