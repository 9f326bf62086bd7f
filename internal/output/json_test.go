package output

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/dshills/nftdrop/internal/cache"
)

// sampleStatus builds a status from a real cache: a minted collection, one
// minted item, one uploaded item and one partial upload.
func sampleStatus(t *testing.T) *Status {
	t.Helper()
	c := cache.Open(filepath.Join(t.TempDir(), "data.json"))
	uploaded := cache.Entry{
		ImageURL:    "https://arweave.net/img",
		JSONURL:     "https://arweave.net/json",
		ManifestURL: "https://arweave.net/man",
	}
	entries := []struct {
		name  string
		entry cache.Entry
	}{
		{cache.CollectionName, cache.Entry{JSONURL: "https://arweave.net/c", MintAddress: "CoLLmint111"}},
		{"0", cache.Entry{ImageURL: uploaded.ImageURL, JSONURL: uploaded.JSONURL, ManifestURL: uploaded.ManifestURL, EditionName: "Number #0", MintAddress: "Mint000"}},
		{"1", uploaded},
		{"2", cache.Entry{ImageURL: "https://arweave.net/only-image"}},
	}
	for _, e := range entries {
		if _, err := c.Merge(e.name, e.entry); err != nil {
			t.Fatalf("Merge(%s): %v", e.name, err)
		}
	}
	doc, err := c.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return NewStatus(c.Path(), "development", doc)
}

func TestNewStatus(t *testing.T) {
	s := sampleStatus(t)
	if s.Collection == nil || s.Collection.MintAddress != "CoLLmint111" {
		t.Fatalf("Collection = %+v", s.Collection)
	}
	want := Totals{Items: 3, Uploaded: 2, Minted: 1}
	if s.Totals != want {
		t.Errorf("Totals = %+v, want %+v", s.Totals, want)
	}
	if len(s.Items) != 3 || s.Items[0].Name != "0" || s.Items[2].Name != "2" {
		t.Errorf("Items = %+v", s.Items)
	}
	if s.Items[2].Uploaded {
		t.Error("partial upload should not count as uploaded")
	}
}

func TestJSONWriter(t *testing.T) {
	s := sampleStatus(t)

	var buf bytes.Buffer
	w := &JSONWriter{}
	if err := w.Write(&buf, s); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var parsed Status
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if parsed.Network != "development" {
		t.Errorf("Network = %q, want %q", parsed.Network, "development")
	}
	if parsed.Totals.Minted != 1 {
		t.Errorf("Totals.Minted = %d, want 1", parsed.Totals.Minted)
	}
	if parsed.Items[0].EditionName != "Number #0" {
		t.Errorf("EditionName = %q", parsed.Items[0].EditionName)
	}
}

func TestGetWriter(t *testing.T) {
	for _, f := range append(Formats, "", "md") {
		if _, err := GetWriter(f); err != nil {
			t.Errorf("GetWriter(%q): %v", f, err)
		}
	}
	if _, err := GetWriter("sarif"); err == nil {
		t.Error("GetWriter(sarif) should fail")
	}
}
