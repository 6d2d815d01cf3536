package staging_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/archstage/archstage/internal/model"
	"github.com/archstage/archstage/internal/staging"
)

func Test_Capture_Is_Deterministic_For_Unchanged_Model(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	first, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	second, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture again: %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("captures of unchanged model differ (-first +second):\n%s", diff)
	}
}

func Test_Capture_Hash_Changes_On_Element_Mutation(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	before, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	el := m.Graph.Element("business.service.orders")
	el.Description = "changed"

	err = m.Graph.AddElement(el, true)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	after, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture after: %v", err)
	}

	if before.Hash == after.Hash {
		t.Fatal("hash unchanged after element mutation")
	}
}

func Test_DetectDrift_Passes_For_Unchanged_Model(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	snap, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	current, err := staging.DetectDrift(snap, m)
	if err != nil {
		t.Fatalf("drift check: %v", err)
	}

	if current.Hash != snap.Hash {
		t.Fatal("current snapshot differs for unchanged model")
	}
}

func Test_DetectDrift_Names_Changed_Layer_And_Element(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	snap, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	el := m.Graph.Element("business.service.orders")
	el.Description = "mutated outside staging"

	err = m.Graph.AddElement(el, true)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	_, err = staging.DetectDrift(snap, m)
	if !errors.Is(err, staging.ErrDrift) {
		t.Fatalf("drift check = %v, want ErrDrift", err)
	}

	var drift *staging.DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("error %T is not a DriftError", err)
	}

	if diff := cmp.Diff([]string{"business"}, drift.Layers); diff != "" {
		t.Fatalf("drift layers mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"business.service.orders"}, drift.Elements); diff != "" {
		t.Fatalf("drift elements mismatch (-want +got):\n%s", diff)
	}
}

func Test_DetectDrift_Reports_Added_And_Removed_Elements(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	snap, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	seedElement(t, m, "technology.node.db")

	err = m.Graph.RemoveElement("application.component.billing")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	var drift *staging.DriftError

	_, err = staging.DetectDrift(snap, m)
	if !errors.As(err, &drift) {
		t.Fatalf("drift check = %v, want DriftError", err)
	}

	if diff := cmp.Diff([]string{"application", "technology"}, drift.Layers); diff != "" {
		t.Fatalf("drift layers mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"application.component.billing", "technology.node.db"}, drift.Elements); diff != "" {
		t.Fatalf("drift elements mismatch (-want +got):\n%s", diff)
	}
}

func Test_DetectDrift_Flags_Pure_Edge_Changes(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	snap, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	err = m.Graph.AddEdge(model.Edge{
		Source:    "business.service.orders",
		Target:    "application.component.billing",
		Predicate: "uses",
	})
	if err != nil {
		t.Fatalf("add edge: %v", err)
	}

	var drift *staging.DriftError

	_, err = staging.DetectDrift(snap, m)
	if !errors.As(err, &drift) {
		t.Fatalf("drift check = %v, want DriftError", err)
	}

	if diff := cmp.Diff([]string{"relationships"}, drift.Layers); diff != "" {
		t.Fatalf("drift layers mismatch (-want +got):\n%s", diff)
	}
}

func Test_DetectDrift_Reports_Edge_Changes_Alongside_Element_Changes(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	snap, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	seedElement(t, m, "technology.node.db")

	err = m.Graph.AddEdge(model.Edge{
		Source:    "business.service.orders",
		Target:    "application.component.billing",
		Predicate: "uses",
	})
	if err != nil {
		t.Fatalf("add edge: %v", err)
	}

	var drift *staging.DriftError

	_, err = staging.DetectDrift(snap, m)
	if !errors.As(err, &drift) {
		t.Fatalf("drift check = %v, want DriftError", err)
	}

	if diff := cmp.Diff([]string{"technology", "relationships"}, drift.Layers); diff != "" {
		t.Fatalf("drift layers mismatch (-want +got):\n%s", diff)
	}
}

func Test_DetectDrift_Flags_Manifest_Changes(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)

	snap, err := staging.Capture(m)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	m.Manifest.AppendHistory(model.CommitEntry{ChangesetID: "someone-else", Name: "concurrent"})

	var drift *staging.DriftError

	_, err = staging.DetectDrift(snap, m)
	if !errors.As(err, &drift) {
		t.Fatalf("drift check = %v, want DriftError", err)
	}

	if diff := cmp.Diff([]string{"manifest"}, drift.Layers); diff != "" {
		t.Fatalf("drift layers mismatch (-want +got):\n%s", diff)
	}
}
