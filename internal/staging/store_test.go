package staging_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/archstage/archstage/internal/staging"
)

func Test_Store_Load_Round_Trips_Meta_Log_And_Snapshot(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)

	cs := createActive(t, mgr, "round-trip")

	_, err := mgr.Stage(record(t, staging.OpAdd, nil, element(t, "technology.node.db", "db")))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	loaded, err := mgr.Store.Load(cs.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Name != "round-trip" || loaded.Status != staging.StatusStaged {
		t.Fatalf("loaded changeset %s/%s, want round-trip/staged", loaded.Name, loaded.Status)
	}

	if len(loaded.Changes) != 1 || loaded.Changes[0].Seq != 1 {
		t.Fatalf("loaded log %+v, want one record with seq 1", loaded.Changes)
	}

	snap, err := mgr.Store.LoadSnapshot(cs.ID)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	if snap.Hash != cs.BaseSnapshot {
		t.Fatalf("snapshot hash %s, want %s", snap.Hash, cs.BaseSnapshot)
	}
}

func Test_Store_Load_Derives_Status_And_Stats_From_Log(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)

	cs := createActive(t, mgr, "stale meta")

	_, err := mgr.Stage(record(t, staging.OpAdd, nil, element(t, "technology.node.db", "db")))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	// Overwrite the metadata document with a stale pre-stage view.
	stale := *cs
	stale.Status = staging.StatusDraft
	stale.Stats = staging.Stats{}

	err = mgr.Store.SaveMeta(&stale)
	if err != nil {
		t.Fatalf("save stale meta: %v", err)
	}

	loaded, err := mgr.Store.Load(cs.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Status != staging.StatusStaged {
		t.Fatalf("status = %s, want staged (derived from log)", loaded.Status)
	}

	if diff := cmp.Diff(staging.Stats{Adds: 1}, loaded.Stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func Test_Store_Load_Fails_For_Unknown_Changeset(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)

	_, err := mgr.Store.Load("0195e240-0000-7000-8000-000000000000")
	if !errors.Is(err, staging.ErrChangesetNotFound) {
		t.Fatalf("load = %v, want ErrChangesetNotFound", err)
	}
}

func Test_Store_Load_Rejects_Log_With_Sequence_Gap(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)

	cs := createActive(t, mgr, "gapped")

	_, err := mgr.Stage(record(t, staging.OpAdd, nil, element(t, "technology.node.db", "db")))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	logPath := filepath.Join(m.ChangesetsDir(), cs.ID, "changes.jsonl")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	// Duplicate the only line so the second record repeats seq 1.
	err = os.WriteFile(logPath, append(data, data...), 0o600)
	if err != nil {
		t.Fatalf("write log: %v", err)
	}

	_, err = mgr.Store.Load(cs.ID)
	if !errors.Is(err, staging.ErrChangesetLogCorrupt) {
		t.Fatalf("load = %v, want ErrChangesetLogCorrupt", err)
	}
}

func Test_Store_List_Returns_Changesets_In_Creation_Order(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)

	first, err := mgr.Create("first", "", "")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}

	second, err := mgr.Create("second", "", "")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	listed, err := mgr.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var ids []string
	for _, cs := range listed {
		ids = append(ids, cs.ID)
	}

	if diff := cmp.Diff([]string{first.ID, second.ID}, ids); diff != "" {
		t.Fatalf("list order mismatch (-want +got):\n%s", diff)
	}
}

func Test_Store_SetActive_Rejects_Second_Active_Changeset(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)

	createActive(t, mgr, "first")

	second, err := mgr.Create("second", "", "")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	err = mgr.SetActive(second.ID)
	if !errors.Is(err, staging.ErrChangesetActive) {
		t.Fatalf("set active = %v, want ErrChangesetActive", err)
	}
}

func Test_Store_ClearActive_Only_Clears_Matching_Changeset(t *testing.T) {
	t.Parallel()

	m := newTestModel(t)
	mgr := newTestManager(t, m)

	active := createActive(t, mgr, "active")

	err := mgr.Store.ClearActive("0195e240-0000-7000-8000-000000000000")
	if err != nil {
		t.Fatalf("clear other: %v", err)
	}

	id, err := mgr.ActiveID()
	if err != nil {
		t.Fatalf("active id: %v", err)
	}

	if id != active.ID {
		t.Fatalf("active pointer cleared by non-matching id, got %q", id)
	}

	err = mgr.Store.ClearActive(active.ID)
	if err != nil {
		t.Fatalf("clear matching: %v", err)
	}

	id, err = mgr.ActiveID()
	if err != nil {
		t.Fatalf("active id after clear: %v", err)
	}

	if id != "" {
		t.Fatalf("active pointer still %q after clear", id)
	}
}
