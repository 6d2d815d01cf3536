package model

import (
	"fmt"
	"sort"
)

// Graph is the in-memory element/edge store and the single source of
// truth for committed state. Indices by layer and type are maintained on
// every mutation; stale entries are scrubbed before new ones are
// inserted so an index never points at a removed element.
//
// Graph is not safe for concurrent mutation. Mutating entry points are
// serialized by the callers (staging manager, mutation handler).
type Graph struct {
	elements map[string]*Element
	byLayer  map[string]map[string]struct{}
	byType   map[string]map[string]struct{}

	edges    map[string]Edge
	edgesOut map[string]map[string]struct{} // source id -> edge keys
	edgesIn  map[string]map[string]struct{} // target id -> edge keys

	version uint64
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		elements: make(map[string]*Element),
		byLayer:  make(map[string]map[string]struct{}),
		byType:   make(map[string]map[string]struct{}),
		edges:    make(map[string]Edge),
		edgesOut: make(map[string]map[string]struct{}),
		edgesIn:  make(map[string]map[string]struct{}),
	}
}

// Version returns a counter incremented on every mutating call. Dependents
// (layer element views) compare it to detect staleness without rescanning.
func (g *Graph) Version() uint64 {
	return g.version
}

// Len returns the number of elements.
func (g *Graph) Len() int {
	return len(g.elements)
}

// AddElement inserts a copy of the element. If the ID already exists and
// replace is false it fails with [ErrDuplicateElement]. On replace, stale
// layer/type index entries are removed before the new ones are inserted.
func (g *Graph) AddElement(element *Element, replace bool) error {
	if err := element.Validate(); err != nil {
		return err
	}

	existing, exists := g.elements[element.ID]
	if exists && !replace {
		return fmt.Errorf("%w: %s", ErrDuplicateElement, element.ID)
	}

	if exists {
		g.dropIndexEntries(existing)
	}

	stored := element.Clone()
	sortReferences(stored.References)

	g.elements[stored.ID] = stored
	g.indexElement(stored)
	g.version++

	return nil
}

// RemoveElement removes the element and every edge incident to it.
func (g *Graph) RemoveElement(id string) error {
	element, exists := g.elements[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}

	for _, edge := range g.EdgesFrom(id) {
		g.removeEdgeByKey(edge.Key())
	}

	for _, edge := range g.EdgesTo(id) {
		g.removeEdgeByKey(edge.Key())
	}

	g.dropIndexEntries(element)
	delete(g.elements, id)
	g.version++

	return nil
}

// Element returns a copy of the element, or nil if absent.
func (g *Graph) Element(id string) *Element {
	return g.elements[id].Clone()
}

// HasElement reports whether the ID exists.
func (g *Graph) HasElement(id string) bool {
	_, ok := g.elements[id]

	return ok
}

// Elements returns copies of all elements, sorted by ID.
func (g *Graph) Elements() []*Element {
	out := make([]*Element, 0, len(g.elements))
	for _, element := range g.elements {
		out = append(out, element.Clone())
	}

	SortElements(out)

	return out
}

// ElementsByLayer returns copies of the layer's elements sorted by ID.
// A stale or missing index entry yields an empty slice, never a panic.
func (g *Graph) ElementsByLayer(layer string) []*Element {
	return g.collect(g.byLayer[layer])
}

// ElementsByType returns copies of elements of the given type sorted by ID.
func (g *Graph) ElementsByType(typ string) []*Element {
	return g.collect(g.byType[typ])
}

func (g *Graph) collect(ids map[string]struct{}) []*Element {
	out := make([]*Element, 0, len(ids))

	for id := range ids {
		// Skip index entries whose element is gone rather than crash.
		if element, ok := g.elements[id]; ok {
			out = append(out, element.Clone())
		}
	}

	SortElements(out)

	return out
}

// AddEdge inserts a copy of the edge. Both endpoints must already exist;
// a missing endpoint fails with [ErrMissingEndpoint] naming it. Adding an
// edge with an existing (source, target, predicate) replaces its
// properties.
func (g *Graph) AddEdge(edge Edge) error {
	if edge.Predicate == "" {
		return ErrEmptyPredicate
	}

	if !g.HasElement(edge.Source) {
		return fmt.Errorf("%w: source %s", ErrMissingEndpoint, edge.Source)
	}

	if !g.HasElement(edge.Target) {
		return fmt.Errorf("%w: target %s", ErrMissingEndpoint, edge.Target)
	}

	stored := edge.Clone()
	key := stored.Key()

	g.edges[key] = stored
	addToIndex(g.edgesOut, stored.Source, key)
	addToIndex(g.edgesIn, stored.Target, key)
	g.version++

	return nil
}

// RemoveEdge removes the edge identified by (source, target, predicate).
func (g *Graph) RemoveEdge(source, target, predicate string) error {
	key := Edge{Source: source, Target: target, Predicate: predicate}.Key()
	if _, ok := g.edges[key]; !ok {
		return fmt.Errorf("%w: %s -[%s]-> %s", ErrElementNotFound, source, predicate, target)
	}

	g.removeEdgeByKey(key)
	g.version++

	return nil
}

// Edges returns copies of all edges sorted by (source, target, predicate).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, edge := range g.edges {
		out = append(out, edge.Clone())
	}

	SortEdges(out)

	return out
}

// EdgesFrom returns copies of edges whose source is id, sorted.
func (g *Graph) EdgesFrom(id string) []Edge {
	return g.collectEdges(g.edgesOut[id])
}

// EdgesTo returns copies of edges whose target is id, sorted.
func (g *Graph) EdgesTo(id string) []Edge {
	return g.collectEdges(g.edgesIn[id])
}

func (g *Graph) collectEdges(keys map[string]struct{}) []Edge {
	out := make([]Edge, 0, len(keys))

	for key := range keys {
		if edge, ok := g.edges[key]; ok {
			out = append(out, edge.Clone())
		}
	}

	SortEdges(out)

	return out
}

// Layers returns the sorted set of layer names that currently hold elements.
func (g *Graph) Layers() []string {
	out := make([]string, 0, len(g.byLayer))

	for layer, ids := range g.byLayer {
		if len(ids) > 0 {
			out = append(out, layer)
		}
	}

	sort.Strings(out)

	return out
}

// SyncReferenceEdges replaces the element's outgoing reference edges with
// edges derived from its current references. Called after an element
// mutation so relationship-derived state never lags the element.
func (g *Graph) SyncReferenceEdges(id string) error {
	element, exists := g.elements[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}

	// Validate every target before touching edge state so a bad
	// reference never leaves the element half-synced.
	for _, ref := range element.References {
		if ref.Predicate == "" {
			return ErrEmptyPredicate
		}

		if !g.HasElement(ref.Target) {
			return fmt.Errorf("%w: target %s (referenced by %s)", ErrMissingEndpoint, ref.Target, id)
		}
	}

	for _, edge := range g.EdgesFrom(id) {
		if edge.Derived {
			g.removeEdgeByKey(edge.Key())
		}
	}

	for _, ref := range element.References {
		stored := Edge{Source: id, Target: ref.Target, Predicate: ref.Predicate, Derived: true}
		key := stored.Key()
		g.edges[key] = stored
		addToIndex(g.edgesOut, stored.Source, key)
		addToIndex(g.edgesIn, stored.Target, key)
	}

	g.version++

	return nil
}

// Restore replaces the graph's entire contents from the given elements
// and edges. Used by commit rollback to return to the pre-commit state.
// Edges are inserted without endpoint checks; the caller guarantees the
// pair came from a consistent graph.
func (g *Graph) Restore(elements []*Element, edges []Edge) {
	g.elements = make(map[string]*Element, len(elements))
	g.byLayer = make(map[string]map[string]struct{})
	g.byType = make(map[string]map[string]struct{})
	g.edges = make(map[string]Edge, len(edges))
	g.edgesOut = make(map[string]map[string]struct{})
	g.edgesIn = make(map[string]map[string]struct{})

	for _, element := range elements {
		stored := element.Clone()
		g.elements[stored.ID] = stored
		g.indexElement(stored)
	}

	for _, edge := range edges {
		stored := edge.Clone()
		key := stored.Key()
		g.edges[key] = stored
		addToIndex(g.edgesOut, stored.Source, key)
		addToIndex(g.edgesIn, stored.Target, key)
	}

	g.version++
}

func (g *Graph) indexElement(element *Element) {
	addToIndex(g.byLayer, element.Layer, element.ID)
	addToIndex(g.byType, element.Type, element.ID)
}

func (g *Graph) dropIndexEntries(element *Element) {
	dropFromIndex(g.byLayer, element.Layer, element.ID)
	dropFromIndex(g.byType, element.Type, element.ID)
}

func (g *Graph) removeEdgeByKey(key string) {
	edge, ok := g.edges[key]
	if !ok {
		return
	}

	delete(g.edges, key)
	dropFromIndex(g.edgesOut, edge.Source, key)
	dropFromIndex(g.edgesIn, edge.Target, key)
}

func addToIndex(index map[string]map[string]struct{}, bucket, member string) {
	set, ok := index[bucket]
	if !ok {
		set = make(map[string]struct{})
		index[bucket] = set
	}

	set[member] = struct{}{}
}

func dropFromIndex(index map[string]map[string]struct{}, bucket, member string) {
	set, ok := index[bucket]
	if !ok {
		return
	}

	delete(set, member)

	if len(set) == 0 {
		delete(index, bucket)
	}
}
