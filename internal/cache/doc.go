// Package cache persists upload and mint progress in a single JSON document.
//
// The document maps asset names to their Arweave URLs and on-chain mint
// address, in insertion order, and is the record of which work is already
// done. The reserved name "collection" holds the collection token. Fields
// only ever go from empty to set: an update may replace a value but never
// clear one.
//
// Every mutation takes an exclusive lock on <path>.lock, re-reads the
// document, applies the change and atomically replaces the file, so two
// runs against the same cache cannot lose each other's writes.
package cache
