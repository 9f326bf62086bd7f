package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var ErrInvalidMetadata = errors.New("invalid metadata document")

// Creator is a royalty recipient as written in a metadata document.
type Creator struct {
	Address string `json:"address"`
	Share   int    `json:"share"`
}

// File is an entry of properties.files.
type File struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

type fields = orderedmap.OrderedMap[string, json.RawMessage]

// Document is an off-chain metadata document. Fields the tool does not
// understand are kept, in their original order.
type Document struct {
	fields *fields
}

// ParseDocument decodes a metadata document.
func ParseDocument(data []byte) (*Document, error) {
	f := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return &Document{fields: f}, nil
}

// LoadDocument reads and decodes the metadata document at path.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (d *Document) str(key string) string {
	raw, ok := d.fields.Get(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Name returns the document's name field.
func (d *Document) Name() string { return d.str("name") }

// Symbol returns the document's symbol field.
func (d *Document) Symbol() string { return d.str("symbol") }

// Image returns the document's image field.
func (d *Document) Image() string { return d.str("image") }

// SellerFeeBasisPoints returns seller_fee_basis_points if present and
// non-zero.
func (d *Document) SellerFeeBasisPoints() (uint16, bool) {
	raw, ok := d.fields.Get("seller_fee_basis_points")
	if !ok {
		return 0, false
	}
	var n uint16
	if err := json.Unmarshal(raw, &n); err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

func (d *Document) properties() (*fields, error) {
	props := orderedmap.New[string, json.RawMessage]()
	raw, ok := d.fields.Get("properties")
	if !ok || string(raw) == "null" {
		return props, nil
	}
	if err := json.Unmarshal(raw, props); err != nil {
		return nil, fmt.Errorf("%w: properties: %v", ErrInvalidMetadata, err)
	}
	return props, nil
}

// Creators returns properties.creators. The second result is false when
// the document does not list creators.
func (d *Document) Creators() ([]Creator, bool, error) {
	props, err := d.properties()
	if err != nil {
		return nil, false, err
	}
	raw, ok := props.Get("creators")
	if !ok || string(raw) == "null" {
		return nil, false, nil
	}
	var creators []Creator
	if err := json.Unmarshal(raw, &creators); err != nil {
		return nil, false, fmt.Errorf("%w: properties.creators: %v", ErrInvalidMetadata, err)
	}
	return creators, len(creators) > 0, nil
}

// CreatorsOr returns the document's creators, or fallback if it has none.
func (d *Document) CreatorsOr(fallback []Creator) ([]Creator, error) {
	creators, ok, err := d.Creators()
	if err != nil {
		return nil, err
	}
	if !ok {
		return fallback, nil
	}
	return creators, nil
}

// WithImage returns a copy of the document pointing at imageURL: image and
// properties.files are replaced, and properties.creators is filled from
// fallback when the document has none.
func (d *Document) WithImage(imageURL, contentType string, fallback []Creator) (*Document, error) {
	props, err := d.properties()
	if err != nil {
		return nil, err
	}
	creators, err := d.CreatorsOr(fallback)
	if err != nil {
		return nil, err
	}

	out := orderedmap.New[string, json.RawMessage]()
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	if err := setJSON(out, "image", imageURL); err != nil {
		return nil, err
	}
	if err := setJSON(props, "files", []File{{Type: contentType, URI: imageURL}}); err != nil {
		return nil, err
	}
	if err := setJSON(props, "creators", creators); err != nil {
		return nil, err
	}
	if err := setJSON(out, "properties", props); err != nil {
		return nil, err
	}
	return &Document{fields: out}, nil
}

func setJSON(m *fields, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	m.Set(key, raw)
	return nil
}

// Marshal encodes the document as compact JSON.
func (d *Document) Marshal() ([]byte, error) {
	b, err := json.Marshal(d.fields)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return b, nil
}
