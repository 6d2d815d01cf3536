package staging_test

import (
	"testing"
	"time"

	"github.com/archstage/archstage/internal/fs"
	"github.com/archstage/archstage/internal/model"
	"github.com/archstage/archstage/internal/staging"
)

// newTestModel initializes an on-disk model in a temp dir with a small
// seeded graph spanning three layers.
func newTestModel(t *testing.T) *model.Model {
	t.Helper()

	m, err := model.Init(fs.NewReal(), t.TempDir(), "testmodel", model.DefaultLayers,
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("init model: %v", err)
	}

	seedElement(t, m, "motivation.goal.fast-checkout")
	seedElement(t, m, "application.component.billing")
	seedElement(t, m, "business.service.orders",
		model.Reference{Predicate: "realizes", Target: "motivation.goal.fast-checkout"})

	err = m.Persist(m.Manifest.Layers)
	if err != nil {
		t.Fatalf("persist seed: %v", err)
	}

	return m
}

func seedElement(t *testing.T, m *model.Model, id string, refs ...model.Reference) {
	t.Helper()

	el, err := model.NewElement(id)
	if err != nil {
		t.Fatalf("new element %s: %v", id, err)
	}

	el.Description = "seeded"
	el.References = refs

	err = m.Graph.AddElement(el, false)
	if err != nil {
		t.Fatalf("add %s: %v", id, err)
	}

	err = m.Graph.SyncReferenceEdges(id)
	if err != nil {
		t.Fatalf("sync %s: %v", id, err)
	}
}

// newTestManager wires a manager with a deterministic advancing clock.
func newTestManager(t *testing.T, m *model.Model) *staging.Manager {
	t.Helper()

	mgr := staging.NewManager(m)

	now := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	mgr.Now = func() time.Time {
		now = now.Add(time.Second)

		return now
	}

	return mgr
}

func element(t *testing.T, id, description string, refs ...model.Reference) *model.Element {
	t.Helper()

	el, err := model.NewElement(id)
	if err != nil {
		t.Fatalf("new element %s: %v", id, err)
	}

	el.Description = description
	el.References = refs

	return el
}

func record(t *testing.T, op string, before, after *model.Element) staging.ChangeRecord {
	t.Helper()

	rec, err := staging.NewChangeRecord(op, before, after, time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new record: %v", err)
	}

	return rec
}

// createActive makes a changeset and activates it.
func createActive(t *testing.T, mgr *staging.Manager, name string) *staging.Changeset {
	t.Helper()

	cs, err := mgr.Create(name, "", "tester")
	if err != nil {
		t.Fatalf("create changeset: %v", err)
	}

	err = mgr.SetActive(cs.ID)
	if err != nil {
		t.Fatalf("activate changeset: %v", err)
	}

	return cs
}
