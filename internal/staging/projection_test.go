package staging_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/archstage/archstage/internal/model"
	"github.com/archstage/archstage/internal/staging"
)

func Test_Project_Add_Is_Visible_Without_Mutating_Base(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	baseVersion := m.Graph.Version()

	added := element(t, "technology.node.db", "primary database")
	recs := []staging.ChangeRecord{record(t, staging.OpAdd, nil, added)}
	recs[0].Seq = 1

	proj, err := staging.Project(m.Graph, recs)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	if !proj.HasElement("technology.node.db") {
		t.Fatal("projection does not show the staged add")
	}

	if m.Graph.HasElement("technology.node.db") {
		t.Fatal("projection leaked the add into the base graph")
	}

	if m.Graph.Version() != baseVersion {
		t.Fatal("projection mutated the base graph version")
	}
}

func Test_Project_Delete_Hides_Element_And_Incident_Edges(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	before := m.Graph.Element("motivation.goal.fast-checkout")
	recs := []staging.ChangeRecord{record(t, staging.OpDelete, before, nil)}
	recs[0].Seq = 1

	proj, err := staging.Project(m.Graph, recs)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	if proj.HasElement("motivation.goal.fast-checkout") {
		t.Fatal("deleted element still visible in projection")
	}

	// The seeded derived edge orders -> fast-checkout must disappear too.
	for _, edge := range proj.Edges() {
		if edge.Target == "motivation.goal.fast-checkout" || edge.Source == "motivation.goal.fast-checkout" {
			t.Fatalf("projection still shows edge %+v to a deleted element", edge)
		}
	}

	// Base keeps both the element and the edge.
	if !m.Graph.HasElement("motivation.goal.fast-checkout") {
		t.Fatal("base graph lost the element")
	}
}

func Test_Project_Update_Overlays_New_Content(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	before := m.Graph.Element("business.service.orders")
	after := before.Clone()
	after.Description = "projected description"

	recs := []staging.ChangeRecord{record(t, staging.OpUpdate, before, after)}
	recs[0].Seq = 1

	proj, err := staging.Project(m.Graph, recs)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	got := proj.Element("business.service.orders")
	if got.Description != "projected description" {
		t.Fatalf("projection description = %q, want projected description", got.Description)
	}

	if m.Graph.Element("business.service.orders").Description == "projected description" {
		t.Fatal("update leaked into the base graph")
	}
}

func Test_Project_Replays_Records_In_Seq_Order(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	added := element(t, "technology.node.db", "v1")
	updated := added.Clone()
	updated.Description = "v2"

	addRec := record(t, staging.OpAdd, nil, added)
	addRec.Seq = 1
	updateRec := record(t, staging.OpUpdate, added, updated)
	updateRec.Seq = 2

	// Hand the log over out of order; replay must still be add then update.
	proj, err := staging.Project(m.Graph, []staging.ChangeRecord{updateRec, addRec})
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	if got := proj.Element("technology.node.db").Description; got != "v2" {
		t.Fatalf("description = %q, want v2", got)
	}
}

func Test_Project_Rejects_Contradictory_Logs(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	existing := m.Graph.Element("business.service.orders")

	tests := []struct {
		name string
		recs func() []staging.ChangeRecord
	}{
		{
			name: "add of existing element",
			recs: func() []staging.ChangeRecord {
				rec := record(t, staging.OpAdd, nil, element(t, "business.service.orders", "dup"))
				rec.Seq = 1

				return []staging.ChangeRecord{rec}
			},
		},
		{
			name: "update after delete",
			recs: func() []staging.ChangeRecord {
				del := record(t, staging.OpDelete, existing, nil)
				del.Seq = 1
				upd := record(t, staging.OpUpdate, existing, existing.Clone())
				upd.Seq = 2

				return []staging.ChangeRecord{del, upd}
			},
		},
		{
			name: "double delete",
			recs: func() []staging.ChangeRecord {
				first := record(t, staging.OpDelete, existing, nil)
				first.Seq = 1
				second := record(t, staging.OpDelete, existing, nil)
				second.Seq = 2

				return []staging.ChangeRecord{first, second}
			},
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := staging.Project(m.Graph, tt.recs())
			if !errors.Is(err, staging.ErrConflictingChange) {
				t.Fatalf("project = %v, want ErrConflictingChange", err)
			}
		})
	}
}

func Test_Project_Update_Of_Missing_Element_Fails(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	ghost := element(t, "technology.node.ghost", "never added")
	rec := record(t, staging.OpUpdate, ghost, ghost.Clone())
	rec.Seq = 1

	_, err := staging.Project(m.Graph, []staging.ChangeRecord{rec})
	if !errors.Is(err, model.ErrElementNotFound) {
		t.Fatalf("project = %v, want ErrElementNotFound", err)
	}
}

func Test_Project_Update_Rederives_Reference_Edges(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	before := m.Graph.Element("business.service.orders")
	after := before.Clone()
	after.References = []model.Reference{
		{Predicate: "serves", Target: "application.component.billing"},
	}

	rec := record(t, staging.OpUpdate, before, after)
	rec.Seq = 1

	proj, err := staging.Project(m.Graph, []staging.ChangeRecord{rec})
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	var got []string

	for _, edge := range proj.Edges() {
		if edge.Source == "business.service.orders" && edge.Derived {
			got = append(got, edge.Predicate+"->"+edge.Target)
		}
	}

	want := []string{"serves->application.component.billing"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("derived edges mismatch (-want +got):\n%s", diff)
	}
}
