package model

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/archstage/archstage/internal/fs"
)

// Persisted layout inside the model directory.
const (
	LayersDirName         = "layers"
	RelationshipsFileName = "relationships.json"
	ChangesetsDirName     = "changesets"
	LockFileName          = ".lock"
)

// relationshipsDocument is the derived document holding every edge.
type relationshipsDocument struct {
	Edges []Edge `json:"edges"`
}

// Model binds a graph, its manifest, and the model directory it
// persists into. All durable writes go through the configured [fs.FS].
type Model struct {
	Dir      string
	FS       fs.FS
	Graph    *Graph
	Manifest *Manifest

	layers map[string]*Layer
}

// ManifestPath returns the manifest document path.
func (m *Model) ManifestPath() string {
	return filepath.Join(m.Dir, ManifestFileName)
}

// LayerPath returns the document path for one layer.
func (m *Model) LayerPath(layer string) string {
	return filepath.Join(m.Dir, LayersDirName, layer+".json")
}

// RelationshipsPath returns the derived relationships document path.
func (m *Model) RelationshipsPath() string {
	return filepath.Join(m.Dir, RelationshipsFileName)
}

// ChangesetsDir returns the changesets subtree path.
func (m *Model) ChangesetsDir() string {
	return filepath.Join(m.Dir, ChangesetsDirName)
}

// LockPath returns the flock guard path.
func (m *Model) LockPath() string {
	return filepath.Join(m.Dir, LockFileName)
}

// Layer returns the view for a declared layer.
func (m *Model) Layer(name string) (*Layer, error) {
	layer, ok := m.layers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
	}

	return layer, nil
}

// Init scaffolds a new model directory: manifest, one empty document per
// layer, an empty relationships document, and the changesets directory.
func Init(fsys fs.FS, dir, name string, layers []string, now time.Time) (*Model, error) {
	if dir == "" {
		return nil, ErrModelDirEmpty
	}

	if len(layers) == 0 {
		layers = DefaultLayers
	}

	model := &Model{
		Dir:      dir,
		FS:       fsys,
		Graph:    NewGraph(),
		Manifest: NewManifest(name, layers, now),
		layers:   make(map[string]*Layer),
	}

	for _, layer := range model.Manifest.Layers {
		model.layers[layer] = NewLayer(layer, model.Graph)
	}

	err := fsys.MkdirAll(filepath.Join(dir, LayersDirName))
	if err != nil {
		return nil, err
	}

	err = fsys.MkdirAll(model.ChangesetsDir())
	if err != nil {
		return nil, err
	}

	err = model.Persist(model.Manifest.Layers)
	if err != nil {
		return nil, err
	}

	return model, nil
}

// Load reads a model directory into memory: manifest, every declared
// layer's elements, reference edges, and standalone relationship edges.
func Load(fsys fs.FS, dir string) (*Model, error) {
	if dir == "" {
		return nil, ErrModelDirEmpty
	}

	manifestData, err := fsys.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}

	manifest, err := UnmarshalManifest(manifestData)
	if err != nil {
		return nil, err
	}

	model := &Model{
		Dir:      dir,
		FS:       fsys,
		Graph:    NewGraph(),
		Manifest: manifest,
		layers:   make(map[string]*Layer),
	}

	// Insert all elements first so cross-layer references resolve no
	// matter which layer loads first.
	for _, layer := range manifest.Layers {
		model.layers[layer] = NewLayer(layer, model.Graph)

		elements, loadErr := loadLayerElements(fsys, model.LayerPath(layer), layer)
		if loadErr != nil {
			return nil, loadErr
		}

		for _, element := range elements {
			addErr := model.Graph.AddElement(element, false)
			if addErr != nil {
				return nil, fmt.Errorf("layer %s: %w", layer, addErr)
			}
		}
	}

	for _, element := range model.Graph.Elements() {
		syncErr := model.Graph.SyncReferenceEdges(element.ID)
		if syncErr != nil {
			return nil, syncErr
		}
	}

	err = loadRelationships(fsys, model)
	if err != nil {
		return nil, err
	}

	return model, nil
}

func loadLayerElements(fsys fs.FS, path, layer string) ([]*Element, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading layer %s: %w", layer, err)
	}

	name, elements, err := UnmarshalLayerDocument(data)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", layer, err)
	}

	if name != layer {
		return nil, fmt.Errorf("%w: document %s declares layer %q", ErrManifestInvalid, path, name)
	}

	return elements, nil
}

func loadRelationships(fsys fs.FS, model *Model) error {
	data, err := fsys.ReadFile(model.RelationshipsPath())
	if err != nil {
		return fmt.Errorf("loading relationships: %w", err)
	}

	var doc relationshipsDocument

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return fmt.Errorf("decoding relationships: %w", err)
	}

	for _, edge := range doc.Edges {
		// Reference-derived edges are already in the graph; AddEdge
		// overwrites by key, so replaying them is harmless.
		addErr := model.Graph.AddEdge(edge)
		if addErr != nil {
			return fmt.Errorf("relationships: %w", addErr)
		}
	}

	return nil
}

// Persist writes the named layer documents, the relationships document,
// and the manifest. This is the single durable-write routine shared by
// direct mutations and changeset commit; callers decide which layers are
// affected. Writes happen in a deterministic order (sorted layers, then
// relationships, then manifest) so failure injection in tests is stable.
func (m *Model) Persist(layers []string) error {
	sorted := append([]string(nil), layers...)
	sort.Strings(sorted)

	for _, layer := range sorted {
		view, err := m.Layer(layer)
		if err != nil {
			return err
		}

		data, err := view.MarshalLayer()
		if err != nil {
			return err
		}

		err = m.FS.WriteFileAtomic(m.LayerPath(layer), data)
		if err != nil {
			return err
		}
	}

	err := m.persistRelationships()
	if err != nil {
		return err
	}

	return m.persistManifest()
}

func (m *Model) persistRelationships() error {
	doc := relationshipsDocument{Edges: m.Graph.Edges()}
	if doc.Edges == nil {
		doc.Edges = []Edge{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding relationships: %w", err)
	}

	return m.FS.WriteFileAtomic(m.RelationshipsPath(), append(data, '\n'))
}

func (m *Model) persistManifest() error {
	data, err := MarshalManifest(m.Manifest)
	if err != nil {
		return err
	}

	return m.FS.WriteFileAtomic(m.ManifestPath(), data)
}
