// Package asset reads the asset directory: numbered image/metadata pairs
// plus the reserved collection pair, and the metadata documents themselves.
package asset
