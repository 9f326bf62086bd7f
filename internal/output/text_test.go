package output

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/nftdrop/internal/cache"
)

func TestTextWriter_Empty(t *testing.T) {
	c := cache.Open(filepath.Join(t.TempDir(), "data.json"))
	doc, err := c.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var buf bytes.Buffer
	w := &TextWriter{}
	if err := w.Write(&buf, NewStatus(c.Path(), "", doc)); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Items: 0 total") {
		t.Error("Output should show zero items")
	}
	if !strings.Contains(out, "(not minted)") {
		t.Error("Output should say the collection is not minted")
	}
	if !strings.Contains(out, "Cache is empty") {
		t.Error("Output should say the cache is empty")
	}
}

func TestTextWriter_WithItems(t *testing.T) {
	var buf bytes.Buffer
	w := &TextWriter{}
	if err := w.Write(&buf, sampleStatus(t)); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Network: development",
		"Collection mint: CoLLmint111",
		"Items: 3 total, 2 uploaded, 1 minted",
		"Number #0",
		"Mint000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	// collection row comes first
	if strings.Index(out, "collection") > strings.Index(out, "Number #0") {
		t.Error("collection row should precede items")
	}
}

func TestMarkdownWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &MarkdownWriter{}
	if err := w.Write(&buf, sampleStatus(t)); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "## Drop status") {
		t.Errorf("Output should start with heading, got %q", out[:min(len(out), 40)])
	}
	if !strings.Contains(out, "| 3 | 2 | 1 |") {
		t.Error("Output should include totals row")
	}
	if !strings.Contains(out, "| Name | Edition | Uploaded | Mint |") {
		t.Errorf("Output should include markdown table header:\n%s", out)
	}
}
