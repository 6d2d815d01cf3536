package model

import (
	"encoding/json"
	"fmt"
)

// layerDocument is the persisted shape of one layer's content.
type layerDocument struct {
	Layer    string     `json:"layer"`
	Elements []*Element `json:"elements"`
}

// Layer presents the graph's elements of one layer as a cached view and
// owns serialization of that layer's document. The view is cached
// against [Graph.Version] so repeated reads between mutations are free.
type Layer struct {
	Name  string
	graph *Graph

	cached        []*Element
	cachedVersion uint64
	cacheValid    bool
}

// NewLayer binds a layer view to a graph.
func NewLayer(name string, graph *Graph) *Layer {
	return &Layer{Name: name, graph: graph}
}

// Elements returns the layer's elements sorted by ID. The materialized
// list is recomputed only when the graph version has moved.
func (l *Layer) Elements() []*Element {
	version := l.graph.Version()
	if l.cacheValid && version == l.cachedVersion {
		return l.cached
	}

	l.cached = l.graph.ElementsByLayer(l.Name)
	l.cachedVersion = version
	l.cacheValid = true

	return l.cached
}

// Element returns the element if it belongs to this layer.
func (l *Layer) Element(id string) (*Element, error) {
	element := l.graph.Element(id)
	if element == nil || element.Layer != l.Name {
		return nil, fmt.Errorf("%w: %s in layer %s", ErrElementNotFound, id, l.Name)
	}

	return element, nil
}

// UpdateElement replaces the element's full state and re-derives its
// reference edges. Every mutable facet (properties, references, derived
// edges) persists together; partial application is a correctness defect.
func (l *Layer) UpdateElement(element *Element) error {
	if element.Layer != l.Name {
		return fmt.Errorf("%w: %s is not in layer %s", ErrElementNotFound, element.ID, l.Name)
	}

	if !l.graph.HasElement(element.ID) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, element.ID)
	}

	err := l.graph.AddElement(element, true)
	if err != nil {
		return err
	}

	return l.graph.SyncReferenceEdges(element.ID)
}

// MarshalLayer serializes the layer's current elements as its document.
func (l *Layer) MarshalLayer() ([]byte, error) {
	doc := layerDocument{
		Layer:    l.Name,
		Elements: l.Elements(),
	}

	if doc.Elements == nil {
		doc.Elements = []*Element{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding layer %s: %w", l.Name, err)
	}

	return append(data, '\n'), nil
}

// UnmarshalLayerDocument parses a persisted layer document.
func UnmarshalLayerDocument(data []byte) (string, []*Element, error) {
	var doc layerDocument

	err := json.Unmarshal(data, &doc)
	if err != nil {
		return "", nil, fmt.Errorf("decoding layer document: %w", err)
	}

	if doc.Layer == "" {
		return "", nil, fmt.Errorf("%w: layer document missing layer name", ErrManifestInvalid)
	}

	return doc.Layer, doc.Elements, nil
}
