// Package model holds the in-memory architecture graph: elements, edges,
// per-layer views, and the durable layer/manifest documents.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// Reference is a typed link from one element to another, usually across
// layers. References are persisted with their owning element and are the
// durable source for reference edges in the graph.
type Reference struct {
	Predicate string `json:"predicate"`
	Target    string `json:"target"`
}

// Element is a typed, named unit of architecture content within one layer.
// IDs are layer-prefixed: "business.service.orders" lives in the
// "business" layer with type "service" and name "orders".
type Element struct {
	ID          string            `json:"id"`
	Layer       string            `json:"layer"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
	References  []Reference       `json:"references,omitempty"`
}

// idParts is the number of dot-separated segments in an element ID.
const idParts = 3

// ParseElementID splits a layer-prefixed ID into layer, type, and name.
func ParseElementID(id string) (layer, typ, name string, err error) {
	parts := strings.SplitN(id, ".", idParts)
	if len(parts) != idParts || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: %q (want layer.type.name)", ErrInvalidElementID, id)
	}

	return parts[0], parts[1], parts[2], nil
}

// NewElement builds an element from a layer-prefixed ID.
func NewElement(id string) (*Element, error) {
	layer, typ, name, err := ParseElementID(id)
	if err != nil {
		return nil, err
	}

	return &Element{
		ID:    id,
		Layer: layer,
		Type:  typ,
		Name:  name,
	}, nil
}

// Validate checks that the element's ID agrees with its layer/type/name.
func (e *Element) Validate() error {
	layer, typ, name, err := ParseElementID(e.ID)
	if err != nil {
		return err
	}

	if e.Layer != layer || e.Type != typ || e.Name != name {
		return fmt.Errorf("%w: %q does not match layer=%q type=%q name=%q",
			ErrInvalidElementID, e.ID, e.Layer, e.Type, e.Name)
	}

	return nil
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}

	clone := *e

	if e.Properties != nil {
		clone.Properties = make(map[string]string, len(e.Properties))
		for k, v := range e.Properties {
			clone.Properties[k] = v
		}
	}

	if e.References != nil {
		clone.References = append([]Reference(nil), e.References...)
	}

	return &clone
}

// Equal reports whether two elements have identical content.
func (e *Element) Equal(other *Element) bool {
	if e == nil || other == nil {
		return e == other
	}

	if e.ID != other.ID || e.Layer != other.Layer || e.Type != other.Type ||
		e.Name != other.Name || e.Description != other.Description {
		return false
	}

	if len(e.Properties) != len(other.Properties) {
		return false
	}

	for k, v := range e.Properties {
		if other.Properties[k] != v {
			return false
		}
	}

	if len(e.References) != len(other.References) {
		return false
	}

	for i, ref := range e.References {
		if other.References[i] != ref {
			return false
		}
	}

	return true
}

// sortReferences orders references by (predicate, target) so persisted
// documents and snapshot input never depend on insertion order.
func sortReferences(refs []Reference) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Predicate != refs[j].Predicate {
			return refs[i].Predicate < refs[j].Predicate
		}

		return refs[i].Target < refs[j].Target
	})
}

// Edge is a typed directed link between two elements. Endpoints must
// exist in the graph for the edge's entire lifetime. Derived marks edges
// materialized from an element's references; they are re-synced whenever
// the owning element changes, while explicit (linked) edges persist
// independently.
type Edge struct {
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Predicate  string            `json:"predicate"`
	Derived    bool              `json:"derived,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Key identifies an edge: one edge per (source, target, predicate).
func (e Edge) Key() string {
	return e.Source + "\x00" + e.Target + "\x00" + e.Predicate
}

// Clone returns a deep copy of the edge.
func (e Edge) Clone() Edge {
	clone := e

	if e.Properties != nil {
		clone.Properties = make(map[string]string, len(e.Properties))
		for k, v := range e.Properties {
			clone.Properties[k] = v
		}
	}

	return clone
}

// SortEdges orders edges by (source, target, predicate) so serialization
// and hashing never depend on map iteration order.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}

		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}

		return edges[i].Predicate < edges[j].Predicate
	})
}

// SortElements orders elements by ID.
func SortElements(elements []*Element) {
	sort.Slice(elements, func(i, j int) bool {
		return elements[i].ID < elements[j].ID
	})
}
