package bundlr

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	ManifestContentType = "application/x.arweave-manifest+json"
	manifestKind        = "arweave/paths"
	manifestVersion     = "0.1.0"
)

// ManifestPath points a logical path at a content identifier.
type ManifestPath struct {
	ID string `json:"id"`
}

// ManifestIndex names the path served at the manifest root.
type ManifestIndex struct {
	Path string `json:"path"`
}

// Manifest is an arweave/paths manifest. Paths keep insertion order.
type Manifest struct {
	Manifest string                                       `json:"manifest"`
	Version  string                                       `json:"version"`
	Paths    *orderedmap.OrderedMap[string, ManifestPath] `json:"paths"`
	Index    *ManifestIndex                               `json:"index,omitempty"`
}

// NewManifest creates an empty manifest served from index.
func NewManifest(index string) *Manifest {
	m := &Manifest{
		Manifest: manifestKind,
		Version:  manifestVersion,
		Paths:    orderedmap.New[string, ManifestPath](),
	}
	if index != "" {
		m.Index = &ManifestIndex{Path: index}
	}
	return m
}

// Add maps path to id.
func (m *Manifest) Add(path, id string) *Manifest {
	m.Paths.Set(path, ManifestPath{ID: id})
	return m
}

// AssetManifest indexes an uploaded image/metadata pair.
func AssetManifest(imageID, metadataID string) *Manifest {
	return NewManifest("metadata.json").
		Add("image.png", imageID).
		Add("metadata.json", metadataID)
}

// Lookup returns the identifier stored for path.
func (m *Manifest) Lookup(path string) (string, bool) {
	p, ok := m.Paths.Get(path)
	return p.ID, ok
}

// Marshal encodes the manifest as compact JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return b, nil
}
