package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/archstage/archstage/internal/model"
)

// Snapshot is a deterministic fingerprint of model state at one instant:
// an overall content hash plus per-element hashes, kept so drift
// detection can name the exact layers and elements that changed instead
// of reporting a bare mismatch.
//
// Two captures of an unmodified model are byte-identical; any element,
// edge, or manifest mutation changes Hash. All inputs are sorted before
// hashing so iteration order never affects the result.
type Snapshot struct {
	Hash     string                       `json:"hash"`
	Manifest string                       `json:"manifest"`
	Edges    string                       `json:"edges"`
	Layers   map[string]map[string]string `json:"layers"` // layer -> element id -> content hash
}

// Capture fingerprints the model's current state.
func Capture(m *model.Model) (*Snapshot, error) {
	snap := &Snapshot{
		Layers: make(map[string]map[string]string),
	}

	manifestHash, err := hashManifest(m.Manifest)
	if err != nil {
		return nil, err
	}

	snap.Manifest = manifestHash

	for _, layer := range m.Manifest.Layers {
		elements := m.Graph.ElementsByLayer(layer)
		hashes := make(map[string]string, len(elements))

		for _, element := range elements {
			elementHash, hashErr := hashElement(element)
			if hashErr != nil {
				return nil, hashErr
			}

			hashes[element.ID] = elementHash
		}

		snap.Layers[layer] = hashes
	}

	snap.Edges = hashEdges(m.Graph.Edges())
	snap.Hash = snap.overallHash()

	return snap, nil
}

// overallHash folds the manifest hash, every layer's sorted element
// hashes, and the edge hash into one digest.
func (s *Snapshot) overallHash() string {
	var builder strings.Builder

	builder.WriteString("manifest:" + s.Manifest + "\n")

	layers := make([]string, 0, len(s.Layers))
	for layer := range s.Layers {
		layers = append(layers, layer)
	}

	sort.Strings(layers)

	for _, layer := range layers {
		builder.WriteString("layer:" + layer + "\n")

		ids := make([]string, 0, len(s.Layers[layer]))
		for id := range s.Layers[layer] {
			ids = append(ids, id)
		}

		sort.Strings(ids)

		for _, id := range ids {
			builder.WriteString(id + ":" + s.Layers[layer][id] + "\n")
		}
	}

	builder.WriteString("edges:" + s.Edges + "\n")

	return hashBytes([]byte(builder.String()))
}

// hashElement digests an element's full content. References are already
// sorted by the graph; json.Marshal emits map keys sorted, so the
// encoding is canonical.
func hashElement(element *model.Element) (string, error) {
	data, err := json.Marshal(element)
	if err != nil {
		return "", fmt.Errorf("hashing element %s: %w", element.ID, err)
	}

	return hashBytes(data), nil
}

// hashManifest digests the manifest's identity: name, declared layers,
// and committed history. Timestamps are excluded so re-encoding alone
// never changes the hash.
func hashManifest(m *model.Manifest) (string, error) {
	identity := struct {
		Name    string   `json:"name"`
		Layers  []string `json:"layers"`
		History []string `json:"history"`
	}{
		Name:    m.Name,
		Layers:  m.Layers,
		History: make([]string, 0, len(m.History)),
	}

	for _, entry := range m.History {
		identity.History = append(identity.History, entry.ChangesetID)
	}

	data, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("hashing manifest: %w", err)
	}

	return hashBytes(data), nil
}

// hashEdges digests all edges in (source, target, predicate) order.
func hashEdges(edges []model.Edge) string {
	var builder strings.Builder

	for _, edge := range edges {
		builder.WriteString(edge.Source + "|" + edge.Target + "|" + edge.Predicate)

		keys := make([]string, 0, len(edge.Properties))
		for k := range edge.Properties {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		for _, k := range keys {
			builder.WriteString("|" + k + "=" + edge.Properties[k])
		}

		builder.WriteString("\n")
	}

	return hashBytes([]byte(builder.String()))
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// DetectDrift recomputes the model's snapshot and compares it to the
// expected one. On mismatch it returns a [*DriftError] naming every
// affected layer and element id via a layer-by-layer, element-by-element
// diff. No drift returns (currentSnapshot, nil).
func DetectDrift(expected *Snapshot, m *model.Model) (*Snapshot, error) {
	current, err := Capture(m)
	if err != nil {
		return nil, err
	}

	if expected.Hash == current.Hash {
		return current, nil
	}

	drift := &DriftError{
		ExpectedHash: expected.Hash,
		ActualHash:   current.Hash,
	}

	layerSet := make(map[string]struct{})

	for layer := range expected.Layers {
		layerSet[layer] = struct{}{}
	}

	for layer := range current.Layers {
		layerSet[layer] = struct{}{}
	}

	layers := make([]string, 0, len(layerSet))
	for layer := range layerSet {
		layers = append(layers, layer)
	}

	sort.Strings(layers)

	for _, layer := range layers {
		changed := diffLayer(expected.Layers[layer], current.Layers[layer])
		if len(changed) == 0 {
			continue
		}

		drift.Layers = append(drift.Layers, layer)
		drift.Elements = append(drift.Elements, changed...)
	}

	if expected.Manifest != current.Manifest {
		drift.Layers = append(drift.Layers, "manifest")
	}

	if expected.Edges != current.Edges {
		drift.Layers = append(drift.Layers, "relationships")
	}

	return nil, drift
}

// diffLayer returns the sorted ids whose hashes differ between two
// captures of one layer, including added and removed elements.
func diffLayer(expected, current map[string]string) []string {
	var changed []string

	for id, hash := range expected {
		if current[id] != hash {
			changed = append(changed, id)
		}
	}

	for id := range current {
		if _, ok := expected[id]; !ok {
			changed = append(changed, id)
		}
	}

	sort.Strings(changed)

	return changed
}
