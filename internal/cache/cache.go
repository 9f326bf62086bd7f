package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CollectionName is the reserved entry for the collection token.
const CollectionName = "collection"

// DefaultPath is where the cache lives relative to the working directory.
const DefaultPath = ".cache/data.json"

// Field names used in ConsistencyError.
const (
	FieldImageURL    = "imageURL"
	FieldJSONURL     = "jsonURL"
	FieldManifestURL = "manifestURL"
	FieldMintAddress = "mintAddress"
)

var ErrLocked = errors.New("cache is locked by another process")

// ConsistencyError reports a cache entry, or a field of one, that an
// operation depends on but that is absent.
type ConsistencyError struct {
	Path  string
	Name  string
	Field string
}

func (e *ConsistencyError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cache %s: no entry for %q", e.Path, e.Name)
	}
	return fmt.Sprintf("cache %s: entry %q has no %s", e.Path, e.Name, e.Field)
}

// Entry is the recorded progress of one asset.
type Entry struct {
	ImageURL    string `json:"imageURL,omitempty"`
	JSONURL     string `json:"jsonURL,omitempty"`
	ManifestURL string `json:"manifestURL,omitempty"`
	EditionName string `json:"editionName,omitempty"`
	MintAddress string `json:"mintAddress,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
}

// UnmarshalJSON also accepts pathManifestURL, the key older caches used
// for the manifest.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var aux struct {
		plain
		PathManifestURL string `json:"pathManifestURL,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = Entry(aux.plain)
	if e.ManifestURL == "" {
		e.ManifestURL = aux.PathManifestURL
	}
	return nil
}

// Uploaded reports whether the asset pair and its manifest are stored.
func (e Entry) Uploaded() bool {
	return e.ImageURL != "" && e.JSONURL != "" && e.ManifestURL != ""
}

// Minted reports whether a token was minted for the entry.
func (e Entry) Minted() bool { return e.MintAddress != "" }

// Field returns a field by its JSON name.
func (e Entry) Field(name string) string {
	switch name {
	case FieldImageURL:
		return e.ImageURL
	case FieldJSONURL:
		return e.JSONURL
	case FieldManifestURL:
		return e.ManifestURL
	case FieldMintAddress:
		return e.MintAddress
	case "editionName":
		return e.EditionName
	case "txHash":
		return e.TxHash
	}
	return ""
}

// merge overlays the non-empty fields of next onto e.
func (e Entry) merge(next Entry) Entry {
	pick := func(cur, nv string) string {
		if nv != "" {
			return nv
		}
		return cur
	}
	return Entry{
		ImageURL:    pick(e.ImageURL, next.ImageURL),
		JSONURL:     pick(e.JSONURL, next.JSONURL),
		ManifestURL: pick(e.ManifestURL, next.ManifestURL),
		EditionName: pick(e.EditionName, next.EditionName),
		MintAddress: pick(e.MintAddress, next.MintAddress),
		TxHash:      pick(e.TxHash, next.TxHash),
	}
}

// Item is a named entry.
type Item struct {
	Name string
	Entry
}

// Document is an in-memory copy of the cache file.
type Document struct {
	entries *orderedmap.OrderedMap[string, Entry]
}

func newDocument() *Document {
	return &Document{entries: orderedmap.New[string, Entry]()}
}

// Lookup returns the entry for name.
func (d *Document) Lookup(name string) (Entry, bool) {
	return d.entries.Get(name)
}

// Len returns the number of entries, including the collection.
func (d *Document) Len() int { return d.entries.Len() }

// Items returns every entry except the collection, in insertion order.
func (d *Document) Items() []Item {
	items := make([]Item, 0, d.entries.Len())
	for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == CollectionName {
			continue
		}
		items = append(items, Item{Name: pair.Key, Entry: pair.Value})
	}
	return items
}

func (d *Document) set(name string, e Entry) {
	d.entries.Set(name, e)
}

// Cache is the cache file at a fixed path.
type Cache struct {
	path        string
	lockTimeout time.Duration
}

// Open returns the cache stored at path. The file is not touched until the
// first read or write.
func Open(path string) *Cache {
	if path == "" {
		path = DefaultPath
	}
	return &Cache{path: path, lockTimeout: 30 * time.Second}
}

// Path returns the cache file path.
func (c *Cache) Path() string { return c.path }

// Load reads the whole document. A missing file is an empty document.
func (c *Cache) Load() (*Document, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newDocument(), nil
		}
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	doc := newDocument()
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc.entries); err != nil {
		return nil, fmt.Errorf("parsing cache %s: %w", c.path, err)
	}
	return doc, nil
}

// Lookup returns the entry for name and whether it exists.
func (c *Cache) Lookup(name string) (Entry, bool, error) {
	doc, err := c.Load()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := doc.Lookup(name)
	return e, ok, nil
}

// Get returns the entry for name, or a *ConsistencyError when it is absent
// or any of the required fields is empty.
func (c *Cache) Get(name string, required ...string) (Entry, error) {
	e, ok, err := c.Lookup(name)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, &ConsistencyError{Path: c.path, Name: name}
	}
	for _, f := range required {
		if e.Field(f) == "" {
			return Entry{}, &ConsistencyError{Path: c.path, Name: name, Field: f}
		}
	}
	return e, nil
}

// Items returns every non-collection entry in insertion order.
func (c *Cache) Items() ([]Item, error) {
	doc, err := c.Load()
	if err != nil {
		return nil, err
	}
	return doc.Items(), nil
}

// Update applies fn to the entry for name under the cache lock and writes
// the result. The entry starts empty if absent. Fields fn clears keep their
// previous value. If fn returns an error nothing is written.
func (c *Cache) Update(name string, fn func(*Entry) error) (Entry, error) {
	unlock, err := lockFile(c.path+".lock", c.lockTimeout)
	if err != nil {
		return Entry{}, err
	}
	defer unlock()

	doc, err := c.Load()
	if err != nil {
		return Entry{}, err
	}
	cur, _ := doc.Lookup(name)
	next := cur
	if err := fn(&next); err != nil {
		return Entry{}, err
	}
	merged := cur.merge(next)
	doc.set(name, merged)
	if err := c.write(doc); err != nil {
		return Entry{}, err
	}
	return merged, nil
}

// Merge records the non-empty fields of e under name.
func (c *Cache) Merge(name string, e Entry) (Entry, error) {
	return c.Update(name, func(cur *Entry) error {
		*cur = cur.merge(e)
		return nil
	})
}

func (c *Cache) write(doc *Document) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.MarshalIndent(doc.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating cache temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing cache: %w", err)
	}
	return nil
}

// Stats summarizes cache progress.
type Stats struct {
	Path             string `json:"path"`
	Items            int    `json:"items"`
	Uploaded         int    `json:"uploaded"`
	Minted           int    `json:"minted"`
	CollectionMint   string `json:"collectionMint,omitempty"`
	CollectionUpload bool   `json:"collectionUploaded"`
}

// Stats counts uploaded and minted items.
func (c *Cache) Stats() (Stats, error) {
	doc, err := c.Load()
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Path: c.path}
	for _, it := range doc.Items() {
		s.Items++
		if it.Uploaded() {
			s.Uploaded++
		}
		if it.Minted() {
			s.Minted++
		}
	}
	if col, ok := doc.Lookup(CollectionName); ok {
		s.CollectionMint = col.MintAddress
		s.CollectionUpload = col.Uploaded()
	}
	return s, nil
}
