package staging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/archstage/archstage/internal/fs"
)

// Files inside one changeset directory, plus the shared active pointer.
const (
	metaFileName   = "changeset.json"
	logFileName    = "changes.jsonl"
	snapFileName   = "snapshot.json"
	activeFileName = "ACTIVE"
)

// Store persists changesets under <changesets dir>/<id>/ as a metadata
// document, an ordered JSONL change log, and the captured base snapshot
// detail. The single active-changeset pointer is a plain file so it
// survives restarts; there is no implicit global.
type Store struct {
	fsys fs.FS
	dir  string
}

// NewStore binds a changeset store to the changesets directory.
func NewStore(fsys fs.FS, dir string) *Store {
	return &Store{fsys: fsys, dir: dir}
}

func (s *Store) changesetDir(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *Store) activePath() string {
	return filepath.Join(s.dir, activeFileName)
}

// Exists reports whether a changeset directory exists.
func (s *Store) Exists(id string) bool {
	_, err := s.fsys.Stat(filepath.Join(s.changesetDir(id), metaFileName))

	return err == nil
}

// SaveNew persists a freshly created changeset: metadata, empty log, and
// snapshot detail. Fails if the directory already exists.
func (s *Store) SaveNew(cs *Changeset, snap *Snapshot) error {
	if s.Exists(cs.ID) {
		return fmt.Errorf("%w: %s", ErrChangesetAlreadyExists, cs.ID)
	}

	dir := s.changesetDir(cs.ID)

	err := s.fsys.MkdirAll(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	err = s.saveSnapshot(cs.ID, snap)
	if err != nil {
		return err
	}

	err = s.SaveLog(cs)
	if err != nil {
		return err
	}

	return s.SaveMeta(cs)
}

// SaveMeta writes the metadata document.
func (s *Store) SaveMeta(cs *Changeset) error {
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding changeset %s: %w", cs.ID, err)
	}

	path := filepath.Join(s.changesetDir(cs.ID), metaFileName)

	err = s.fsys.WriteFileAtomic(path, append(data, '\n'))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}

// SaveLog writes the ordered change log as JSONL, one record per line.
func (s *Store) SaveLog(cs *Changeset) error {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)

	for _, rec := range cs.Changes {
		err := enc.Encode(rec)
		if err != nil {
			return fmt.Errorf("encoding change record seq %d: %w", rec.Seq, err)
		}
	}

	path := filepath.Join(s.changesetDir(cs.ID), logFileName)

	err := s.fsys.WriteFileAtomic(path, buf.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}

func (s *Store) saveSnapshot(id string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot for %s: %w", id, err)
	}

	path := filepath.Join(s.changesetDir(id), snapFileName)

	err = s.fsys.WriteFileAtomic(path, append(data, '\n'))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}

// Load reads a changeset's metadata and change log.
func (s *Store) Load(id string) (*Changeset, error) {
	metaData, err := s.fsys.ReadFile(filepath.Join(s.changesetDir(id), metaFileName))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrChangesetNotFound, id)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrChangesetNotFound, id, err)
	}

	var cs Changeset

	err = json.Unmarshal(metaData, &cs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrChangesetMetaCorrupt, id, err)
	}

	if cs.ID != id {
		return nil, fmt.Errorf("%w: metadata declares id %q", ErrChangesetMetaCorrupt, cs.ID)
	}

	cs.Changes, err = s.loadLog(id)
	if err != nil {
		return nil, err
	}

	// The log and the metadata document are two separate writes, so a
	// failure between them can leave the pair out of step. Stats and the
	// draft/staged split always derive from the log; the metadata copy
	// is only a display cache.
	cs.UpdateStats()

	switch cs.Status {
	case StatusDraft:
		if len(cs.Changes) > 0 {
			cs.Status = StatusStaged
		}
	case StatusStaged:
		if len(cs.Changes) == 0 {
			cs.Status = StatusDraft
		}
	}

	return &cs, nil
}

func (s *Store) loadLog(id string) ([]ChangeRecord, error) {
	data, err := s.fsys.ReadFile(filepath.Join(s.changesetDir(id), logFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrChangesetLogCorrupt, id, err)
	}

	var records []ChangeRecord

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lastSeq := 0

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec ChangeRecord

		err = json.Unmarshal(line, &rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrChangesetLogCorrupt, id, err)
		}

		// The on-disk log must already be gapless and ordered.
		if rec.Seq != lastSeq+1 {
			return nil, fmt.Errorf("%w: %s: seq %d after %d", ErrChangesetLogCorrupt, id, rec.Seq, lastSeq)
		}

		lastSeq = rec.Seq

		records = append(records, rec)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrChangesetLogCorrupt, id, scanErr)
	}

	return records, nil
}

// LoadSnapshot reads a changeset's captured base snapshot detail.
func (s *Store) LoadSnapshot(id string) (*Snapshot, error) {
	data, err := s.fsys.ReadFile(filepath.Join(s.changesetDir(id), snapFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSnapshotDetailMissing, id, err)
	}

	var snap Snapshot

	err = json.Unmarshal(data, &snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSnapshotDetailMissing, id, err)
	}

	return &snap, nil
}

// List returns every persisted changeset, sorted by creation time (the
// UUIDv7 id embeds it, so sorting by id is chronological).
func (s *Store) List() ([]*Changeset, error) {
	entries, err := s.fsys.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing changesets: %w", err)
	}

	var out []*Changeset

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		cs, loadErr := s.Load(entry.Name())
		if loadErr != nil {
			return nil, loadErr
		}

		out = append(out, cs)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// Active returns the persisted active changeset id, or "" if none.
func (s *Store) Active() (string, error) {
	data, err := s.fsys.ReadFile(s.activePath())
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return "", nil
		}

		return "", fmt.Errorf("%w: %w", ErrActivePointerCorrupt, err)
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", nil
	}

	parsed, err := ParseChangesetID(id)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrActivePointerCorrupt, err)
	}

	return parsed, nil
}

// SetActive persists the active pointer. At most one changeset may be
// active; pointing at a second one fails with [ErrChangesetActive].
func (s *Store) SetActive(id string) error {
	current, err := s.Active()
	if err != nil {
		return err
	}

	if current != "" && current != id {
		return fmt.Errorf("%w: %s", ErrChangesetActive, current)
	}

	err = s.fsys.WriteFileAtomic(s.activePath(), []byte(id+"\n"))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}

// ClearActive removes the active pointer if it points at id (or at
// anything, when id is empty).
func (s *Store) ClearActive(id string) error {
	current, err := s.Active()
	if err != nil {
		return err
	}

	if current == "" {
		return nil
	}

	if id != "" && current != id {
		return nil
	}

	err = s.fsys.Remove(s.activePath())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}
