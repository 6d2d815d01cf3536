package staging

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/archstage/archstage/internal/model"
)

// Changeset status constants.
const (
	StatusDraft     = "draft"
	StatusStaged    = "staged"
	StatusCommitted = "committed"
	StatusDiscarded = "discarded"
)

// Change operation constants.
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangeRecord is one staged delta. Seq is assigned only by
// [Manager.Stage]; records are replayed strictly in Seq order.
type ChangeRecord struct {
	Op        string         `json:"op"`
	ElementID string         `json:"element_id"`
	Layer     string         `json:"layer"`
	Seq       int            `json:"seq"`
	Before    *model.Element `json:"before,omitempty"`
	After     *model.Element `json:"after,omitempty"`
	At        time.Time      `json:"at"`
}

// NewChangeRecord builds a record and validates its op-specific required
// fields. add needs After, delete needs Before, update needs both.
func NewChangeRecord(op string, before, after *model.Element, at time.Time) (ChangeRecord, error) {
	var subject *model.Element

	switch op {
	case OpAdd:
		if after == nil {
			return ChangeRecord{}, fmt.Errorf("%w: add requires after state", ErrInvalidChangeRecord)
		}

		if before != nil {
			return ChangeRecord{}, fmt.Errorf("%w: add cannot carry before state", ErrInvalidChangeRecord)
		}

		subject = after

	case OpUpdate:
		if before == nil || after == nil {
			return ChangeRecord{}, fmt.Errorf("%w: update requires before and after state", ErrInvalidChangeRecord)
		}

		if before.ID != after.ID {
			return ChangeRecord{}, fmt.Errorf("%w: update cannot change element id", ErrInvalidChangeRecord)
		}

		subject = after

	case OpDelete:
		if before == nil {
			return ChangeRecord{}, fmt.Errorf("%w: delete requires before state", ErrInvalidChangeRecord)
		}

		if after != nil {
			return ChangeRecord{}, fmt.Errorf("%w: delete cannot carry after state", ErrInvalidChangeRecord)
		}

		subject = before

	default:
		return ChangeRecord{}, fmt.Errorf("%w: unknown op %q", ErrInvalidChangeRecord, op)
	}

	if err := subject.Validate(); err != nil {
		return ChangeRecord{}, fmt.Errorf("%w: %w", ErrInvalidChangeRecord, err)
	}

	return ChangeRecord{
		Op:        op,
		ElementID: subject.ID,
		Layer:     subject.Layer,
		Before:    before.Clone(),
		After:     after.Clone(),
		At:        at.UTC(),
	}, nil
}

// Stats summarizes a change log. Counts are always derived by scanning
// the log, never incremented independently, so they cannot drift.
type Stats struct {
	Adds    int `json:"adds"`
	Updates int `json:"updates"`
	Deletes int `json:"deletes"`
}

// Total returns the record count.
func (s Stats) Total() int {
	return s.Adds + s.Updates + s.Deletes
}

// Changeset is a named, ordered batch of pending changes plus the
// base-state hash it branched from. BaseSnapshot never changes after
// creation.
type Changeset struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Author       string    `json:"author,omitempty"`
	Status       string    `json:"status"`
	BaseSnapshot string    `json:"base_snapshot"`
	Stats        Stats     `json:"stats"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Changes []ChangeRecord `json:"-"`
}

// NewChangesetID generates a time-ordered UUIDv7 changeset id.
func NewChangesetID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate changeset id: %w", err)
	}

	return id.String(), nil
}

// ParseChangesetID validates a changeset id string.
func ParseChangesetID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid changeset id %q: %w", s, err)
	}

	return id.String(), nil
}

// MarkStaged transitions draft -> staged. Staged stays staged.
func (c *Changeset) MarkStaged(now time.Time) error {
	if c.Status != StatusDraft && c.Status != StatusStaged {
		return fmt.Errorf("%w: cannot stage %s changeset %s", ErrInvalidChangesetState, c.Status, c.ID)
	}

	c.Status = StatusStaged
	c.UpdatedAt = now.UTC()

	return nil
}

// MarkCommitted transitions staged -> committed.
func (c *Changeset) MarkCommitted(now time.Time) error {
	if c.Status != StatusStaged {
		return fmt.Errorf("%w: cannot commit %s changeset %s", ErrInvalidChangesetState, c.Status, c.ID)
	}

	c.Status = StatusCommitted
	c.UpdatedAt = now.UTC()

	return nil
}

// MarkDiscarded transitions draft or staged -> discarded.
func (c *Changeset) MarkDiscarded(now time.Time) error {
	if c.Status != StatusDraft && c.Status != StatusStaged {
		return fmt.Errorf("%w: cannot discard %s changeset %s", ErrInvalidChangesetState, c.Status, c.ID)
	}

	c.Status = StatusDiscarded
	c.UpdatedAt = now.UTC()

	return nil
}

// UpdateStats recomputes the add/update/delete counts from the log.
func (c *Changeset) UpdateStats() {
	var stats Stats

	for _, rec := range c.Changes {
		switch rec.Op {
		case OpAdd:
			stats.Adds++
		case OpUpdate:
			stats.Updates++
		case OpDelete:
			stats.Deletes++
		}
	}

	c.Stats = stats
}

// NextSeq returns the sequence number the next staged record receives.
func (c *Changeset) NextSeq() int {
	if len(c.Changes) == 0 {
		return 1
	}

	return c.Changes[len(c.Changes)-1].Seq + 1
}

// Renumber reassigns gapless sequence numbers after records are removed.
func (c *Changeset) Renumber() {
	for i := range c.Changes {
		c.Changes[i].Seq = i + 1
	}
}
