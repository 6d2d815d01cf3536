package staging_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/archstage/archstage/internal/fs"
	"github.com/archstage/archstage/internal/model"
	"github.com/archstage/archstage/internal/staging"
)

func Test_Mutation_Add_Writes_Through_When_No_Changeset_Active(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)
	handler := staging.NewMutationHandler(mgr)

	rec, staged, err := handler.Add("technology.node.db", func(el *model.Element) error {
		el.Description = "primary database"

		return nil
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if staged {
		t.Fatal("add was staged with no active changeset")
	}

	if rec.Op != staging.OpAdd || rec.After.Description != "primary database" {
		t.Fatalf("record %+v, want add with description", rec)
	}

	if !m.Graph.HasElement("technology.node.db") {
		t.Fatal("direct add did not reach the base graph")
	}

	// The write-through is durable immediately.
	reloaded, err := model.Load(fs.NewReal(), m.Dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	if !reloaded.Graph.HasElement("technology.node.db") {
		t.Fatal("direct add was not persisted")
	}
}

func Test_Mutation_Add_With_Dangling_Reference_Leaves_Graph_Untouched(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)
	handler := staging.NewMutationHandler(mgr)

	before := m.Graph.Elements()
	count := m.Graph.Len()

	// No active changeset: the add applies directly, and reference-edge
	// sync fails because the target does not exist.
	_, _, err := handler.Add("business.service.ghost", func(el *model.Element) error {
		el.Description = "dangling"
		el.References = []model.Reference{{Predicate: "uses", Target: "application.component.missing"}}

		return nil
	})
	if !errors.Is(err, model.ErrMissingEndpoint) {
		t.Fatalf("add = %v, want ErrMissingEndpoint", err)
	}

	if m.Graph.HasElement("business.service.ghost") {
		t.Fatal("failed direct add left the element in the graph")
	}

	if got := m.Graph.Len(); got != count {
		t.Fatalf("graph has %d elements after failed add, want %d", got, count)
	}

	if diff := cmp.Diff(before, m.Graph.Elements()); diff != "" {
		t.Fatalf("graph changed after failed add (-before +after):\n%s", diff)
	}
}

func Test_Mutation_Add_Routes_Into_Active_Changeset(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)
	cs := createActive(t, mgr, "staged add")
	handler := staging.NewMutationHandler(mgr)

	rec, staged, err := handler.Add("technology.node.db", func(el *model.Element) error {
		el.Description = "primary database"

		return nil
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if !staged {
		t.Fatal("add was not staged despite an active changeset")
	}

	if rec.Seq != 1 {
		t.Fatalf("seq = %d, want 1", rec.Seq)
	}

	if m.Graph.HasElement("technology.node.db") {
		t.Fatal("staged add leaked into the base graph")
	}

	loaded, err := mgr.Get(cs.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(loaded.Changes) != 1 || loaded.Changes[0].ElementID != "technology.node.db" {
		t.Fatalf("changeset log %+v, want the staged add", loaded.Changes)
	}
}

func Test_Mutation_Add_Rejects_Existing_ID_In_Effective_View(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)
	createActive(t, mgr, "dup add")
	handler := staging.NewMutationHandler(mgr)

	// Exists in the base.
	_, _, err := handler.Add("business.service.orders", func(*model.Element) error { return nil })
	if !errors.Is(err, model.ErrDuplicateElement) {
		t.Fatalf("add existing = %v, want ErrDuplicateElement", err)
	}

	// Exists only as a staged add.
	_, _, err = handler.Add("technology.node.db", func(*model.Element) error { return nil })
	if err != nil {
		t.Fatalf("first staged add: %v", err)
	}

	_, _, err = handler.Add("technology.node.db", func(*model.Element) error { return nil })
	if !errors.Is(err, model.ErrDuplicateElement) {
		t.Fatalf("second staged add = %v, want ErrDuplicateElement", err)
	}
}

func Test_Mutation_Update_Sees_Staged_State_As_Before(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)
	cs := createActive(t, mgr, "update staged add")
	handler := staging.NewMutationHandler(mgr)

	_, _, err := handler.Add("technology.node.db", func(el *model.Element) error {
		el.Description = "v1"

		return nil
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	rec, staged, err := handler.Update("technology.node.db", func(el *model.Element) error {
		el.Description = "v2"

		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if !staged {
		t.Fatal("update was not staged")
	}

	if rec.Before.Description != "v1" || rec.After.Description != "v2" {
		t.Fatalf("record before/after = %q/%q, want v1/v2", rec.Before.Description, rec.After.Description)
	}

	_, proj, err := mgr.Preview(cs.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	if got := proj.Element("technology.node.db").Description; got != "v2" {
		t.Fatalf("projected description = %q, want v2", got)
	}
}

func Test_Mutation_Update_After_Staged_Delete_Conflicts(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)
	createActive(t, mgr, "delete then update")
	handler := staging.NewMutationHandler(mgr)

	_, _, err := handler.Delete("business.service.orders")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, _, err = handler.Update("business.service.orders", func(*model.Element) error { return nil })
	if !errors.Is(err, staging.ErrConflictingChange) {
		t.Fatalf("update after delete = %v, want ErrConflictingChange", err)
	}

	_, _, err = handler.Delete("business.service.orders")
	if !errors.Is(err, staging.ErrConflictingChange) {
		t.Fatalf("double delete = %v, want ErrConflictingChange", err)
	}
}

func Test_Mutation_Update_Rejects_ID_Change(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)
	handler := staging.NewMutationHandler(mgr)

	_, _, err := handler.Update("business.service.orders", func(el *model.Element) error {
		el.ID = "business.service.renamed"

		return nil
	})
	if !errors.Is(err, model.ErrInvalidElementID) {
		t.Fatalf("update = %v, want ErrInvalidElementID", err)
	}
}

func Test_Mutation_Mutator_Error_Aborts_Without_Side_Effects(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)
	handler := staging.NewMutationHandler(mgr)

	errBoom := errors.New("boom")

	before := m.Graph.Elements()

	_, _, err := handler.Update("business.service.orders", func(*model.Element) error {
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("update = %v, want the mutator's error", err)
	}

	if diff := cmp.Diff(before, m.Graph.Elements()); diff != "" {
		t.Fatalf("failed mutation changed the graph (-want +got):\n%s", diff)
	}
}

func Test_Mutation_Delete_Of_Missing_Element_Fails(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)
	handler := staging.NewMutationHandler(mgr)

	_, _, err := handler.Delete("technology.node.ghost")
	if !errors.Is(err, model.ErrElementNotFound) {
		t.Fatalf("delete = %v, want ErrElementNotFound", err)
	}
}
