// Package spatial implements the in-memory proximity index shared by every
// entity collection: a uniform lat/lon grid over entries that expose an id
// and a geometry. Radius queries walk only the cells overlapping the query
// envelope and rank candidates by exact geodesic distance, so query cost
// scales with local density rather than total entity count.
package spatial

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
)

// Entry is the capability an indexed entity must provide.
type Entry interface {
	SpatialID() string
	Geometry() geodesy.Geometry
}

// Match pairs an entry with its distance from the query center in meters.
type Match[T Entry] struct {
	Item     T
	Distance float64
}

type indexed[T Entry] struct {
	item T
	bbox geodesy.BBox
	seq  uint64
}

// Index is a mutable spatial index over entries of one entity type. Reads
// run concurrently; mutations take the write lock. Note that the dedup
// search-then-insert sequence needs serialization above this lock.
type Index[T Entry] struct {
	mu      sync.RWMutex
	cellDeg float64
	cells   map[cellKey]map[string]struct{}
	items   map[string]indexed[T]
	nextSeq uint64
}

// New creates an index with the given cell edge in degrees. Sizes <= 0 fall
// back to DefaultCellDegrees.
func New[T Entry](cellDegrees float64) *Index[T] {
	if cellDegrees <= 0 {
		cellDegrees = DefaultCellDegrees
	}
	return &Index[T]{
		cellDeg: cellDegrees,
		cells:   make(map[cellKey]map[string]struct{}),
		items:   make(map[string]indexed[T]),
	}
}

// Insert adds the entry, replacing any previous registration under the same
// id. Invalid geometry is rejected and never stored.
func (ix *Index[T]) Insert(item T) error {
	g := item.Geometry()
	if g == nil {
		return eris.Wrap(geodesy.ErrInvalidGeometry, "spatial: entry has no geometry")
	}
	if err := g.Validate(); err != nil {
		return err
	}
	id := item.SpatialID()
	if id == "" {
		return eris.New("spatial: entry has empty id")
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev, existed := ix.items[id]
	seq := ix.nextSeq
	if existed {
		ix.dropCellsLocked(id, prev.bbox)
		seq = prev.seq
	} else {
		ix.nextSeq++
	}

	bbox := g.BBox()
	ix.items[id] = indexed[T]{item: item, bbox: bbox, seq: seq}
	rangeFor(bbox, ix.cellDeg).each(func(k cellKey) {
		set, ok := ix.cells[k]
		if !ok {
			set = make(map[string]struct{})
			ix.cells[k] = set
		}
		set[id] = struct{}{}
	})
	return nil
}

// Remove deletes the entry and reports whether it was present.
func (ix *Index[T]) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	in, ok := ix.items[id]
	if !ok {
		return false
	}
	ix.dropCellsLocked(id, in.bbox)
	delete(ix.items, id)
	return true
}

// Get returns the entry registered under id.
func (ix *Index[T]) Get(id string) (T, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	in, ok := ix.items[id]
	return in.item, ok
}

// Len returns the number of live entries.
func (ix *Index[T]) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

// All returns every entry in insertion order, truncated to limit when
// limit > 0.
func (ix *Index[T]) All(limit int) []T {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ins := make([]indexed[T], 0, len(ix.items))
	for _, in := range ix.items {
		ins = append(ins, in)
	}
	sort.Slice(ins, func(i, j int) bool { return ins[i].seq < ins[j].seq })

	if limit > 0 && len(ins) > limit {
		ins = ins[:limit]
	}
	out := make([]T, len(ins))
	for i, in := range ins {
		out[i] = in.item
	}
	return out
}

// Nearby returns entries within radius meters of center, ascending by
// distance, ties broken by insertion order, truncated to limit when
// limit > 0. keep, when non-nil, filters candidates before ranking.
func (ix *Index[T]) Nearby(center geodesy.Point, radius float64, limit int, keep func(T) bool) []Match[T] {
	if radius <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type scored struct {
		m   Match[T]
		seq uint64
	}
	var hits []scored
	ix.candidatesLocked(center.BBox().Expand(radius), func(in indexed[T]) {
		d := in.item.Geometry().DistanceTo(center)
		if d > radius {
			return
		}
		if keep != nil && !keep(in.item) {
			return
		}
		hits = append(hits, scored{m: Match[T]{Item: in.item, Distance: d}, seq: in.seq})
	})

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].m.Distance != hits[j].m.Distance {
			return hits[i].m.Distance < hits[j].m.Distance
		}
		return hits[i].seq < hits[j].seq
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Match[T], len(hits))
	for i, h := range hits {
		out[i] = h.m
	}
	return out
}

// Nearest returns the closest entry within the given distance, if any.
func (ix *Index[T]) Nearest(center geodesy.Point, within float64) (Match[T], bool) {
	ms := ix.Nearby(center, within, 1, nil)
	if len(ms) == 0 {
		var zero Match[T]
		return zero, false
	}
	return ms[0], true
}

// Along returns entries within buffer meters of any segment of the route,
// in insertion order. Along is a containment filter, not a ranking.
func (ix *Index[T]) Along(route geodesy.Polyline, buffer float64, keep func(T) bool) []T {
	if buffer <= 0 || route.Validate() != nil {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type hit struct {
		item T
		seq  uint64
	}
	var hits []hit
	ix.candidatesLocked(route.BBox().Expand(buffer), func(in indexed[T]) {
		if route.DistanceToGeometry(in.item.Geometry()) > buffer {
			return
		}
		if keep != nil && !keep(in.item) {
			return
		}
		hits = append(hits, hit{item: in.item, seq: in.seq})
	})

	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	out := make([]T, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}

// candidatesLocked visits each entry registered in a cell overlapping the
// envelope exactly once. Callers hold at least the read lock.
func (ix *Index[T]) candidatesLocked(env geodesy.BBox, visit func(indexed[T])) {
	seen := make(map[string]struct{})
	rangeFor(env, ix.cellDeg).each(func(k cellKey) {
		for id := range ix.cells[k] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			visit(ix.items[id])
		}
	})
}

func (ix *Index[T]) dropCellsLocked(id string, bbox geodesy.BBox) {
	rangeFor(bbox, ix.cellDeg).each(func(k cellKey) {
		set, ok := ix.cells[k]
		if !ok {
			return
		}
		delete(set, id)
		if len(set) == 0 {
			delete(ix.cells, k)
		}
	})
}
