package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ManifestFileName is the model-wide manifest document.
const ManifestFileName = "manifest.json"

// CommitEntry records one committed changeset in the manifest's
// append-only history.
type CommitEntry struct {
	ChangesetID string    `json:"changeset_id"`
	Name        string    `json:"name"`
	Author      string    `json:"author,omitempty"`
	Adds        int       `json:"adds"`
	Updates     int       `json:"updates"`
	Deletes     int       `json:"deletes"`
	CommittedAt time.Time `json:"committed_at"`
}

// Manifest records model metadata, the declared layer set, and the
// committed-changeset history.
type Manifest struct {
	Name      string        `json:"name"`
	Layers    []string      `json:"layers"`
	History   []CommitEntry `json:"history,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// DefaultLayers are scaffolded by `archstage init`.
var DefaultLayers = []string{"application", "business", "motivation", "technology"} //nolint:gochecknoglobals // package-level constant

// NewManifest builds a manifest with sorted layers.
func NewManifest(name string, layers []string, now time.Time) *Manifest {
	sorted := append([]string(nil), layers...)
	sort.Strings(sorted)

	return &Manifest{
		Name:      name,
		Layers:    sorted,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// HasLayer reports whether the manifest declares the layer.
func (m *Manifest) HasLayer(layer string) bool {
	for _, l := range m.Layers {
		if l == layer {
			return true
		}
	}

	return false
}

// AppendHistory records a committed changeset and bumps UpdatedAt.
func (m *Manifest) AppendHistory(entry CommitEntry) {
	m.History = append(m.History, entry)
	m.UpdatedAt = entry.CommittedAt
}

// Clone returns a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	clone := *m
	clone.Layers = append([]string(nil), m.Layers...)
	clone.History = append([]CommitEntry(nil), m.History...)

	return &clone
}

// MarshalManifest serializes a manifest with stable formatting.
func MarshalManifest(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	return append(data, '\n'), nil
}

// UnmarshalManifest parses a manifest document.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest

	err := json.Unmarshal(data, &m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestInvalid, err)
	}

	if m.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrManifestInvalid)
	}

	if len(m.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers declared", ErrManifestInvalid)
	}

	return &m, nil
}
