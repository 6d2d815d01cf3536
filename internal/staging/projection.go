package staging

import (
	"fmt"
	"sort"

	"github.com/archstage/archstage/internal/model"
)

// changeTarget is the surface the shared apply routine mutates. The
// projection overlay and the live graph both implement it, so preview
// and commit replay a change log through one algorithm and can never
// disagree about the result.
type changeTarget interface {
	// has reports whether the element currently resolves.
	has(id string) bool

	// deleted reports whether the element was deleted by an earlier
	// record in this replay.
	deleted(id string) bool

	// put inserts or replaces the element's full state and re-derives
	// its reference edges.
	put(element *model.Element) error

	// drop removes the element and every incident edge.
	drop(id string) error
}

// applyRecord routes one change record onto a target. This is the single
// merge algorithm shared by projection and commit.
func applyRecord(target changeTarget, rec ChangeRecord) error {
	switch rec.Op {
	case OpAdd:
		if target.deleted(rec.ElementID) {
			return fmt.Errorf("%w: %s re-added after delete", ErrConflictingChange, rec.ElementID)
		}

		if target.has(rec.ElementID) {
			return fmt.Errorf("%w: add of existing element %s", ErrConflictingChange, rec.ElementID)
		}

		return target.put(rec.After)

	case OpUpdate:
		if target.deleted(rec.ElementID) {
			return fmt.Errorf("%w: update of %s after delete", ErrConflictingChange, rec.ElementID)
		}

		if !target.has(rec.ElementID) {
			return fmt.Errorf("%w: %s", model.ErrElementNotFound, rec.ElementID)
		}

		return target.put(rec.After)

	case OpDelete:
		if target.deleted(rec.ElementID) {
			return fmt.Errorf("%w: %s deleted twice", ErrConflictingChange, rec.ElementID)
		}

		if !target.has(rec.ElementID) {
			return fmt.Errorf("%w: %s", model.ErrElementNotFound, rec.ElementID)
		}

		return target.drop(rec.ElementID)

	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidChangeRecord, rec.Op)
	}
}

// Projection is a read-only merged view of the base graph plus a change
// log, built as a copy-on-read overlay. The base graph is never mutated.
type Projection struct {
	base *model.Graph

	overlay    map[string]*model.Element
	tombstones map[string]struct{}

	overlayEdges   map[string]model.Edge
	edgeTombstones map[string]struct{}

	deletedLog map[string]struct{}
}

// Project replays records over base in sequence order and returns the
// merged view. Records are sorted by Seq before replay, so an
// out-of-order log cannot produce an out-of-order application.
func Project(base *model.Graph, records []ChangeRecord) (*Projection, error) {
	ordered := append([]ChangeRecord(nil), records...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	proj := &Projection{
		base:           base,
		overlay:        make(map[string]*model.Element),
		tombstones:     make(map[string]struct{}),
		overlayEdges:   make(map[string]model.Edge),
		edgeTombstones: make(map[string]struct{}),
		deletedLog:     make(map[string]struct{}),
	}

	for _, rec := range ordered {
		err := applyRecord(proj, rec)
		if err != nil {
			return nil, fmt.Errorf("seq %d: %w", rec.Seq, err)
		}
	}

	return proj, nil
}

// Apply replays one more record onto an existing projection. Stage uses
// this to reject contradictory records at staging time.
func (p *Projection) Apply(rec ChangeRecord) error {
	return applyRecord(p, rec)
}

// --- changeTarget implementation ---

func (p *Projection) has(id string) bool {
	return p.HasElement(id)
}

func (p *Projection) deleted(id string) bool {
	_, gone := p.deletedLog[id]

	return gone
}

func (p *Projection) put(element *model.Element) error {
	stored := element.Clone()

	delete(p.tombstones, stored.ID)
	delete(p.deletedLog, stored.ID)
	p.overlay[stored.ID] = stored

	// Re-derive the element's reference edges: shadow the base's derived
	// out-edges, then overlay the current references.
	for _, edge := range p.base.EdgesFrom(stored.ID) {
		if edge.Derived {
			p.edgeTombstones[edge.Key()] = struct{}{}
		}
	}

	for key, edge := range p.overlayEdges {
		if edge.Derived && edge.Source == stored.ID {
			delete(p.overlayEdges, key)
		}
	}

	for _, ref := range stored.References {
		edge := model.Edge{Source: stored.ID, Target: ref.Target, Predicate: ref.Predicate, Derived: true}
		p.overlayEdges[edge.Key()] = edge
	}

	return nil
}

func (p *Projection) drop(id string) error {
	element := p.Element(id)
	if element == nil {
		return fmt.Errorf("%w: %s", model.ErrElementNotFound, id)
	}

	delete(p.overlay, id)
	p.tombstones[id] = struct{}{}
	p.deletedLog[id] = struct{}{}

	// Tombstone every incident edge, base and overlay alike.
	for _, edge := range p.base.EdgesFrom(id) {
		p.edgeTombstones[edge.Key()] = struct{}{}
	}

	for _, edge := range p.base.EdgesTo(id) {
		p.edgeTombstones[edge.Key()] = struct{}{}
	}

	for key, edge := range p.overlayEdges {
		if edge.Source == id || edge.Target == id {
			delete(p.overlayEdges, key)
		}
	}

	return nil
}

// --- read-only view ---

// HasElement reports whether the id resolves in the merged view.
func (p *Projection) HasElement(id string) bool {
	if _, gone := p.tombstones[id]; gone {
		return false
	}

	if _, ok := p.overlay[id]; ok {
		return true
	}

	return p.base.HasElement(id)
}

// Element returns a copy of the merged element state, or nil.
func (p *Projection) Element(id string) *model.Element {
	if _, gone := p.tombstones[id]; gone {
		return nil
	}

	if element, ok := p.overlay[id]; ok {
		return element.Clone()
	}

	return p.base.Element(id)
}

// Elements returns the merged element set sorted by ID.
func (p *Projection) Elements() []*model.Element {
	merged := make(map[string]*model.Element)

	for _, element := range p.base.Elements() {
		if _, gone := p.tombstones[element.ID]; gone {
			continue
		}

		merged[element.ID] = element
	}

	for id, element := range p.overlay {
		merged[id] = element.Clone()
	}

	out := make([]*model.Element, 0, len(merged))
	for _, element := range merged {
		out = append(out, element)
	}

	model.SortElements(out)

	return out
}

// ElementsByLayer returns the merged elements of one layer sorted by ID.
func (p *Projection) ElementsByLayer(layer string) []*model.Element {
	var out []*model.Element

	for _, element := range p.Elements() {
		if element.Layer == layer {
			out = append(out, element)
		}
	}

	return out
}

// Edges returns the merged edge set sorted by (source, target, predicate).
func (p *Projection) Edges() []model.Edge {
	merged := make(map[string]model.Edge)

	for _, edge := range p.base.Edges() {
		key := edge.Key()
		if _, gone := p.edgeTombstones[key]; gone {
			continue
		}

		merged[key] = edge
	}

	for key, edge := range p.overlayEdges {
		merged[key] = edge.Clone()
	}

	out := make([]model.Edge, 0, len(merged))
	for _, edge := range merged {
		out = append(out, edge)
	}

	model.SortEdges(out)

	return out
}
