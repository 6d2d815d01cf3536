package staging

import (
	"fmt"

	"github.com/archstage/archstage/internal/model"
)

// Mutator edits an element in place. It is invoked exactly once per
// operation; add and update derive both the change record and the
// written state from that single invocation.
type Mutator func(*model.Element) error

// MutationHandler is the single entry point for element writes. Each
// operation resolves its before-state from the effective view (the
// active changeset's projection when one exists, the base graph
// otherwise), builds a change record, and routes it: into the active
// changeset's log, or directly onto the base model.
type MutationHandler struct {
	Manager *Manager
}

// NewMutationHandler wires a handler to a manager.
func NewMutationHandler(mgr *Manager) *MutationHandler {
	return &MutationHandler{Manager: mgr}
}

// view is what a mutation reads its before-state from.
type view interface {
	HasElement(id string) bool
	Element(id string) *model.Element
}

// resolveView returns the effective view plus the loaded active
// changeset, nil when no changeset is active.
func (h *MutationHandler) resolveView() (view, *Changeset, *Projection, error) {
	cs, err := h.Manager.Active()
	if err != nil {
		return nil, nil, nil, err
	}

	if cs == nil {
		return h.Manager.Model.Graph, nil, nil, nil
	}

	proj, err := Project(h.Manager.Model.Graph, cs.Changes)
	if err != nil {
		return nil, nil, nil, err
	}

	return proj, cs, proj, nil
}

// Add creates a new element. The mutator receives a blank element with
// its identity fields already derived from the id.
func (h *MutationHandler) Add(id string, mutate Mutator) (*ChangeRecord, bool, error) {
	effective, cs, _, err := h.resolveView()
	if err != nil {
		return nil, false, err
	}

	if effective.HasElement(id) {
		return nil, false, fmt.Errorf("%w: %s", model.ErrDuplicateElement, id)
	}

	element, err := model.NewElement(id)
	if err != nil {
		return nil, false, err
	}

	err = mutate(element)
	if err != nil {
		return nil, false, err
	}

	rec, err := NewChangeRecord(OpAdd, nil, element, h.Manager.Now())
	if err != nil {
		return nil, false, err
	}

	return h.route(rec, cs)
}

// Update edits an existing element. The mutator receives a deep copy of
// the effective current state; the record captures before and after.
func (h *MutationHandler) Update(id string, mutate Mutator) (*ChangeRecord, bool, error) {
	effective, cs, proj, err := h.resolveView()
	if err != nil {
		return nil, false, err
	}

	if proj != nil && proj.deleted(id) {
		return nil, false, fmt.Errorf("%w: %s is deleted in the active changeset", ErrConflictingChange, id)
	}

	before := effective.Element(id)
	if before == nil {
		return nil, false, fmt.Errorf("%w: %s", model.ErrElementNotFound, id)
	}

	after := before.Clone()

	err = mutate(after)
	if err != nil {
		return nil, false, err
	}

	if after.ID != id {
		return nil, false, fmt.Errorf("%w: mutation may not change the element id", model.ErrInvalidElementID)
	}

	rec, err := NewChangeRecord(OpUpdate, before, after, h.Manager.Now())
	if err != nil {
		return nil, false, err
	}

	return h.route(rec, cs)
}

// Delete removes an element. The record captures the effective state at
// deletion time so a preview can show what goes away.
func (h *MutationHandler) Delete(id string) (*ChangeRecord, bool, error) {
	effective, cs, proj, err := h.resolveView()
	if err != nil {
		return nil, false, err
	}

	if proj != nil && proj.deleted(id) {
		return nil, false, fmt.Errorf("%w: %s is already deleted in the active changeset", ErrConflictingChange, id)
	}

	before := effective.Element(id)
	if before == nil {
		return nil, false, fmt.Errorf("%w: %s", model.ErrElementNotFound, id)
	}

	rec, err := NewChangeRecord(OpDelete, before, nil, h.Manager.Now())
	if err != nil {
		return nil, false, err
	}

	return h.route(rec, cs)
}

// route sends the record into the active changeset when one exists,
// otherwise applies and persists it directly. The bool reports whether
// the change was staged rather than written through.
func (h *MutationHandler) route(rec ChangeRecord, cs *Changeset) (*ChangeRecord, bool, error) {
	if cs != nil {
		staged, err := h.Manager.Stage(rec)
		if err != nil {
			return nil, false, err
		}

		last := staged.Changes[len(staged.Changes)-1]

		return &last, true, nil
	}

	rec.Seq = 1

	err := h.Manager.applyDirect(rec)
	if err != nil {
		return nil, false, err
	}

	return &rec, false, nil
}
