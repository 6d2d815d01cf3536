package staging

import (
	"fmt"
	"sort"
	"time"

	"github.com/archstage/archstage/internal/fs"
	"github.com/archstage/archstage/internal/model"
	"github.com/archstage/archstage/internal/validation"
)

// Manager orchestrates the changeset lifecycle against one model:
// create, activate, stage, unstage, discard, preview, and commit. It is
// stateless between calls; changeset state lives on disk and the model
// graph lives in memory, so every operation either fully succeeds or
// changes nothing.
type Manager struct {
	Model *model.Model
	Store *Store

	// Validate is the pipeline commit runs against the projected state.
	// Defaults to the built-in structural rules.
	Validate validation.Pipeline

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewManager wires a manager to a loaded model.
func NewManager(m *model.Model) *Manager {
	return &Manager{
		Model:    m,
		Store:    NewStore(m.FS, m.ChangesetsDir()),
		Validate: validation.Run,
		Now:      time.Now,
	}
}

// withLock serializes multi-step mutations of the model directory.
func (mgr *Manager) withLock(fn func() error) error {
	return fs.WithLock(mgr.Model.LockPath(), fn)
}

// Create allocates a changeset: captures the base snapshot, persists
// empty metadata and log, status draft. The base snapshot is immutable
// from here on. Create does not activate the changeset.
func (mgr *Manager) Create(name, description, author string) (*Changeset, error) {
	if name == "" {
		return nil, ErrEmptyChangesetName
	}

	var cs *Changeset

	err := mgr.withLock(func() error {
		id, err := NewChangesetID()
		if err != nil {
			return err
		}

		snap, err := Capture(mgr.Model)
		if err != nil {
			return err
		}

		now := mgr.Now().UTC()

		cs = &Changeset{
			ID:           id,
			Name:         name,
			Description:  description,
			Author:       author,
			Status:       StatusDraft,
			BaseSnapshot: snap.Hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		return mgr.Store.SaveNew(cs, snap)
	})
	if err != nil {
		return nil, err
	}

	return cs, nil
}

// Get loads one changeset with its change log.
func (mgr *Manager) Get(id string) (*Changeset, error) {
	return mgr.Store.Load(id)
}

// List returns all persisted changesets.
func (mgr *Manager) List() ([]*Changeset, error) {
	return mgr.Store.List()
}

// ActiveID returns the active changeset id, or "".
func (mgr *Manager) ActiveID() (string, error) {
	return mgr.Store.Active()
}

// Active loads the active changeset, or nil if none.
func (mgr *Manager) Active() (*Changeset, error) {
	id, err := mgr.Store.Active()
	if err != nil || id == "" {
		return nil, err
	}

	return mgr.Store.Load(id)
}

// SetActive points the persisted active pointer at a draft or staged
// changeset. At most one changeset is active per model root.
func (mgr *Manager) SetActive(id string) error {
	return mgr.withLock(func() error {
		cs, err := mgr.Store.Load(id)
		if err != nil {
			return err
		}

		if cs.Status != StatusDraft && cs.Status != StatusStaged {
			return fmt.Errorf("%w: cannot activate %s changeset %s", ErrInvalidChangesetState, cs.Status, cs.ID)
		}

		return mgr.Store.SetActive(cs.ID)
	})
}

// ClearActive removes the active pointer.
func (mgr *Manager) ClearActive() error {
	return mgr.withLock(func() error {
		return mgr.Store.ClearActive("")
	})
}

// Stage appends a record to the active changeset's log with the next
// sequence number, transitions draft -> staged on the first record, and
// recomputes stats. The record is first replayed onto a projection of
// the log so far, so a contradictory change (update after delete, double
// add) is rejected before anything persists.
func (mgr *Manager) Stage(rec ChangeRecord) (*Changeset, error) {
	var cs *Changeset

	err := mgr.withLock(func() error {
		id, err := mgr.Store.Active()
		if err != nil {
			return err
		}

		if id == "" {
			return ErrNoActiveChangeset
		}

		cs, err = mgr.Store.Load(id)
		if err != nil {
			return err
		}

		if cs.Status != StatusDraft && cs.Status != StatusStaged {
			return fmt.Errorf("%w: cannot stage into %s changeset %s", ErrInvalidChangesetState, cs.Status, cs.ID)
		}

		proj, err := Project(mgr.Model.Graph, cs.Changes)
		if err != nil {
			return err
		}

		err = proj.Apply(rec)
		if err != nil {
			return err
		}

		rec.Seq = cs.NextSeq()
		rec.At = mgr.Now().UTC()
		cs.Changes = append(cs.Changes, rec)

		err = cs.MarkStaged(mgr.Now())
		if err != nil {
			return err
		}

		cs.UpdateStats()

		err = mgr.Store.SaveLog(cs)
		if err != nil {
			return err
		}

		return mgr.Store.SaveMeta(cs)
	})
	if err != nil {
		return nil, err
	}

	return cs, nil
}

// Unstage removes every record for an element from the active changeset,
// renumbers the remaining log so sequence numbers stay gapless, and
// recomputes stats. An empty log reverts the changeset to draft.
func (mgr *Manager) Unstage(elementID string) (*Changeset, int, error) {
	var (
		cs      *Changeset
		removed int
	)

	err := mgr.withLock(func() error {
		id, err := mgr.Store.Active()
		if err != nil {
			return err
		}

		if id == "" {
			return ErrNoActiveChangeset
		}

		cs, err = mgr.Store.Load(id)
		if err != nil {
			return err
		}

		if cs.Status != StatusDraft && cs.Status != StatusStaged {
			return fmt.Errorf("%w: cannot unstage from %s changeset %s", ErrInvalidChangesetState, cs.Status, cs.ID)
		}

		kept := cs.Changes[:0]

		for _, rec := range cs.Changes {
			if rec.ElementID == elementID {
				removed++

				continue
			}

			kept = append(kept, rec)
		}

		if removed == 0 {
			return fmt.Errorf("%w: %s", ErrNothingStaged, elementID)
		}

		cs.Changes = kept
		cs.Renumber()
		cs.UpdateStats()

		if len(cs.Changes) == 0 {
			cs.Status = StatusDraft
		}

		cs.UpdatedAt = mgr.Now().UTC()

		err = mgr.Store.SaveLog(cs)
		if err != nil {
			return err
		}

		return mgr.Store.SaveMeta(cs)
	})
	if err != nil {
		return nil, 0, err
	}

	return cs, removed, nil
}

// Discard marks a changeset discarded. The base model is untouched; the
// active pointer is cleared if it pointed at this changeset.
func (mgr *Manager) Discard(id string) (*Changeset, error) {
	var cs *Changeset

	err := mgr.withLock(func() error {
		var err error

		cs, err = mgr.Store.Load(id)
		if err != nil {
			return err
		}

		err = cs.MarkDiscarded(mgr.Now())
		if err != nil {
			return err
		}

		err = mgr.Store.SaveMeta(cs)
		if err != nil {
			return err
		}

		return mgr.Store.ClearActive(id)
	})
	if err != nil {
		return nil, err
	}

	return cs, nil
}

// Preview returns the read-only projection of a changeset over the
// current base. The base model is not mutated.
func (mgr *Manager) Preview(id string) (*Changeset, *Projection, error) {
	cs, err := mgr.Store.Load(id)
	if err != nil {
		return nil, nil, err
	}

	proj, err := Project(mgr.Model.Graph, cs.Changes)
	if err != nil {
		return nil, nil, err
	}

	return cs, proj, nil
}

// CommitOptions control which commit gates are skipped.
type CommitOptions struct {
	SkipValidation bool
	SkipDriftCheck bool
}

// CommitResult is the structured outcome of a successful commit.
type CommitResult struct {
	ChangesetID  string
	Name         string
	Stats        Stats
	Layers       []string
	PreviousHash string
	NewHash      string
}

// Commit validates, merges, and durably persists a staged changeset:
//
//  1. status must be staged
//  2. drift check against the recorded base snapshot (unless skipped)
//  3. validation pipeline over the projected state (unless skipped)
//  4. replay the log onto the graph in sequence order via the same
//     apply routine projection uses
//  5. persist affected layers + relationships + manifest; any mid-batch
//     failure rolls the in-memory graph back and reports persistence
//     failure
//  6. mark committed, record history, clear the active pointer
func (mgr *Manager) Commit(id string, opts CommitOptions) (*CommitResult, error) {
	var result *CommitResult

	err := mgr.withLock(func() error {
		cs, err := mgr.Store.Load(id)
		if err != nil {
			return err
		}

		if cs.Status != StatusStaged {
			return fmt.Errorf("%w: cannot commit %s changeset %s", ErrInvalidChangesetState, cs.Status, cs.ID)
		}

		if len(cs.Changes) == 0 {
			return fmt.Errorf("%w: %s", ErrCommitNothingToCommit, cs.ID)
		}

		if !opts.SkipDriftCheck {
			base, err := mgr.Store.LoadSnapshot(cs.ID)
			if err != nil {
				return err
			}

			_, err = DetectDrift(base, mgr.Model)
			if err != nil {
				return err
			}
		}

		proj, err := Project(mgr.Model.Graph, cs.Changes)
		if err != nil {
			return err
		}

		if !opts.SkipValidation {
			findings := mgr.Validate(proj, mgr.Model.Manifest.Layers)
			if validation.HasErrors(findings) {
				return &ValidationError{Findings: validation.Errors(findings)}
			}
		}

		// Snapshot in-memory state so a persistence failure can restore it.
		prevElements := mgr.Model.Graph.Elements()
		prevEdges := mgr.Model.Graph.Edges()
		prevManifest := mgr.Model.Manifest.Clone()
		prevHash := cs.BaseSnapshot

		rollback := func() {
			mgr.Model.Graph.Restore(prevElements, prevEdges)
			mgr.Model.Manifest = prevManifest
		}

		target := newGraphTarget(mgr.Model.Graph)

		ordered := append([]ChangeRecord(nil), cs.Changes...)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

		for _, rec := range ordered {
			err = applyRecord(target, rec)
			if err != nil {
				rollback()

				return fmt.Errorf("applying seq %d: %w", rec.Seq, err)
			}
		}

		now := mgr.Now().UTC()
		cs.UpdateStats()

		mgr.Model.Manifest.AppendHistory(model.CommitEntry{
			ChangesetID: cs.ID,
			Name:        cs.Name,
			Author:      cs.Author,
			Adds:        cs.Stats.Adds,
			Updates:     cs.Stats.Updates,
			Deletes:     cs.Stats.Deletes,
			CommittedAt: now,
		})

		layers := affectedLayers(ordered)

		err = mgr.Model.Persist(layers)
		if err != nil {
			rollback()

			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}

		// The base is durable from here; bookkeeping failures below are
		// reported but no longer roll it back.
		err = cs.MarkCommitted(now)
		if err != nil {
			return err
		}

		err = mgr.Store.SaveMeta(cs)
		if err != nil {
			return err
		}

		err = mgr.Store.ClearActive(cs.ID)
		if err != nil {
			return err
		}

		newSnap, err := Capture(mgr.Model)
		if err != nil {
			return err
		}

		result = &CommitResult{
			ChangesetID:  cs.ID,
			Name:         cs.Name,
			Stats:        cs.Stats,
			Layers:       layers,
			PreviousHash: prevHash,
			NewHash:      newSnap.Hash,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Link adds an explicit relationship edge to the base model and persists
// it. Links bypass staging; drift detection flags them for any open
// changeset.
func (mgr *Manager) Link(edge model.Edge) error {
	return mgr.withLock(func() error {
		prevElements := mgr.Model.Graph.Elements()
		prevEdges := mgr.Model.Graph.Edges()

		err := mgr.Model.Graph.AddEdge(edge)
		if err != nil {
			return err
		}

		err = mgr.Model.Persist(nil)
		if err != nil {
			mgr.Model.Graph.Restore(prevElements, prevEdges)

			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}

		return nil
	})
}

// Unlink removes an explicit relationship edge and persists.
func (mgr *Manager) Unlink(source, target, predicate string) error {
	return mgr.withLock(func() error {
		prevElements := mgr.Model.Graph.Elements()
		prevEdges := mgr.Model.Graph.Edges()

		err := mgr.Model.Graph.RemoveEdge(source, target, predicate)
		if err != nil {
			return err
		}

		err = mgr.Model.Persist(nil)
		if err != nil {
			mgr.Model.Graph.Restore(prevElements, prevEdges)

			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}

		return nil
	})
}

// applyDirect applies one record straight to the base model and persists
// the affected layer, relationships, and manifest through the same
// routine commit uses. Used when no changeset is active.
func (mgr *Manager) applyDirect(rec ChangeRecord) error {
	return mgr.withLock(func() error {
		prevElements := mgr.Model.Graph.Elements()
		prevEdges := mgr.Model.Graph.Edges()

		target := newGraphTarget(mgr.Model.Graph)

		err := applyRecord(target, rec)
		if err != nil {
			// put can fail after the element landed (reference sync);
			// restore so the graph still matches disk.
			mgr.Model.Graph.Restore(prevElements, prevEdges)

			return err
		}

		err = mgr.Model.Persist([]string{rec.Layer})
		if err != nil {
			mgr.Model.Graph.Restore(prevElements, prevEdges)

			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}

		return nil
	})
}

// graphTarget adapts the live graph to the shared apply routine.
type graphTarget struct {
	graph      *model.Graph
	deletedLog map[string]struct{}
}

func newGraphTarget(graph *model.Graph) *graphTarget {
	return &graphTarget{
		graph:      graph,
		deletedLog: make(map[string]struct{}),
	}
}

func (t *graphTarget) has(id string) bool {
	return t.graph.HasElement(id)
}

func (t *graphTarget) deleted(id string) bool {
	_, gone := t.deletedLog[id]

	return gone
}

func (t *graphTarget) put(element *model.Element) error {
	delete(t.deletedLog, element.ID)

	err := t.graph.AddElement(element, true)
	if err != nil {
		return err
	}

	return t.graph.SyncReferenceEdges(element.ID)
}

func (t *graphTarget) drop(id string) error {
	t.deletedLog[id] = struct{}{}

	return t.graph.RemoveElement(id)
}

// affectedLayers returns the sorted set of layers a change log touches.
func affectedLayers(records []ChangeRecord) []string {
	set := make(map[string]struct{})
	for _, rec := range records {
		set[rec.Layer] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for layer := range set {
		out = append(out, layer)
	}

	sort.Strings(out)

	return out
}
