package model_test

import (
	"errors"
	"testing"

	"github.com/archstage/archstage/internal/model"
)

func Test_ParseElementID_Splits_Layer_Type_Name(t *testing.T) {
	t.Parallel()

	layer, typ, name, err := model.ParseElementID("business.service.orders")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if layer != "business" || typ != "service" || name != "orders" {
		t.Fatalf("got %s/%s/%s, want business/service/orders", layer, typ, name)
	}
}

func Test_ParseElementID_Keeps_Dots_In_Name(t *testing.T) {
	t.Parallel()

	_, _, name, err := model.ParseElementID("technology.node.db.primary")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if name != "db.primary" {
		t.Fatalf("name = %q, want db.primary", name)
	}
}

func Test_ParseElementID_Rejects_Malformed_IDs(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "orders", "business.orders", "business..orders", ".service.orders", "business.service."} {
		_, _, _, err := model.ParseElementID(id)
		if !errors.Is(err, model.ErrInvalidElementID) {
			t.Fatalf("ParseElementID(%q) = %v, want ErrInvalidElementID", id, err)
		}
	}
}

func Test_Element_Validate_Rejects_Mismatched_Identity(t *testing.T) {
	t.Parallel()

	el, err := model.NewElement("business.service.orders")
	if err != nil {
		t.Fatalf("new element: %v", err)
	}

	el.Layer = "application"

	if err := el.Validate(); !errors.Is(err, model.ErrInvalidElementID) {
		t.Fatalf("validate = %v, want ErrInvalidElementID", err)
	}
}

func Test_Element_Clone_Is_Deep(t *testing.T) {
	t.Parallel()

	el, err := model.NewElement("business.service.orders")
	if err != nil {
		t.Fatalf("new element: %v", err)
	}

	el.Properties = map[string]string{"owner": "payments"}
	el.References = []model.Reference{{Predicate: "realizes", Target: "motivation.goal.fast-checkout"}}

	clone := el.Clone()
	clone.Properties["owner"] = "platform"
	clone.References[0].Target = "motivation.goal.other"

	if el.Properties["owner"] != "payments" {
		t.Fatal("clone shares property map with original")
	}

	if el.References[0].Target != "motivation.goal.fast-checkout" {
		t.Fatal("clone shares reference slice with original")
	}
}

func Test_Edge_Key_Is_Unique_Per_Source_Target_Predicate(t *testing.T) {
	t.Parallel()

	a := model.Edge{Source: "a.b.c", Target: "d.e.f", Predicate: "uses"}
	b := model.Edge{Source: "a.b.c", Target: "d.e.f", Predicate: "serves"}

	if a.Key() == b.Key() {
		t.Fatal("edges with different predicates share a key")
	}

	if a.Key() != (model.Edge{Source: "a.b.c", Target: "d.e.f", Predicate: "uses", Derived: true}).Key() {
		t.Fatal("derived flag must not change the edge key")
	}
}
