package asset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	ImageExt = ".png"
	JSONExt  = ".json"

	ImageContentType = "image/png"
	JSONContentType  = "application/json"

	// CollectionName is the base name of the collection pair.
	CollectionName = "collection"
)

var ErrUnpaired = errors.New("asset is missing its image or metadata file")

// Pair is one image with its metadata document.
type Pair struct {
	Name      string
	ImagePath string
	JSONPath  string
}

// NameFromPath returns the cache key of an asset file: its base name
// without extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PairFor returns the pair named name in dir without checking that the
// files exist.
func PairFor(dir, name string) Pair {
	return Pair{
		Name:      name,
		ImagePath: filepath.Join(dir, name+ImageExt),
		JSONPath:  filepath.Join(dir, name+JSONExt),
	}
}

// CollectionPair returns the collection pair in dir.
func CollectionPair(dir string) Pair {
	return PairFor(dir, CollectionName)
}

// ScanDir lists the item pairs in dir, skipping the collection pair. Items
// with numeric names sort numerically, ahead of any others. Every image
// needs a metadata file and every metadata file an image.
func ScanDir(dir string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading asset directory: %w", err)
	}

	type halves struct{ image, json bool }
	found := map[string]*halves{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ImageExt && ext != JSONExt {
			continue
		}
		name := NameFromPath(e.Name())
		if name == CollectionName {
			continue
		}
		h := found[name]
		if h == nil {
			h = &halves{}
			found[name] = h
		}
		if ext == ImageExt {
			h.image = true
		} else {
			h.json = true
		}
	}

	names := make([]string, 0, len(found))
	var unpaired []string
	for name, h := range found {
		if !h.image || !h.json {
			unpaired = append(unpaired, name)
			continue
		}
		names = append(names, name)
	}
	if len(unpaired) > 0 {
		sort.Strings(unpaired)
		return nil, fmt.Errorf("%w: %s", ErrUnpaired, strings.Join(unpaired, ", "))
	}

	sort.Slice(names, func(i, j int) bool { return lessName(names[i], names[j]) })
	pairs := make([]Pair, len(names))
	for i, name := range names {
		pairs[i] = PairFor(dir, name)
	}
	return pairs, nil
}

func lessName(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
