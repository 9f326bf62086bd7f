package output

import (
	"github.com/dshills/nftdrop/internal/cache"
)

// Row is one cache entry as shown by status.
type Row struct {
	Name        string `json:"name"`
	EditionName string `json:"editionName,omitempty"`
	Uploaded    bool   `json:"uploaded"`
	JSONURL     string `json:"jsonURL,omitempty"`
	MintAddress string `json:"mintAddress,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
}

// Totals counts items by progress.
type Totals struct {
	Items    int `json:"items"`
	Uploaded int `json:"uploaded"`
	Minted   int `json:"minted"`
}

// Status summarizes a cache.
type Status struct {
	Cache      string `json:"cache"`
	Network    string `json:"network,omitempty"`
	Collection *Row   `json:"collection,omitempty"`
	Items      []Row  `json:"items"`
	Totals     Totals `json:"totals"`
}

func rowFor(name string, e cache.Entry) Row {
	return Row{
		Name:        name,
		EditionName: e.EditionName,
		Uploaded:    e.Uploaded(),
		JSONURL:     e.JSONURL,
		MintAddress: e.MintAddress,
		TxHash:      e.TxHash,
	}
}

// NewStatus summarizes doc, read from the cache at path.
func NewStatus(path, network string, doc *cache.Document) *Status {
	s := &Status{Cache: path, Network: network, Items: []Row{}}
	if e, ok := doc.Lookup(cache.CollectionName); ok {
		r := rowFor(cache.CollectionName, e)
		s.Collection = &r
	}
	for _, it := range doc.Items() {
		r := rowFor(it.Name, it.Entry)
		s.Items = append(s.Items, r)
		s.Totals.Items++
		if r.Uploaded {
			s.Totals.Uploaded++
		}
		if r.MintAddress != "" {
			s.Totals.Minted++
		}
	}
	return s
}

// rows returns the collection row, if any, followed by the items.
func (s *Status) rows() []Row {
	rows := make([]Row, 0, len(s.Items)+1)
	if s.Collection != nil {
		rows = append(rows, *s.Collection)
	}
	return append(rows, s.Items...)
}
