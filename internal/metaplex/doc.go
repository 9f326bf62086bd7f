// Package metaplex builds Metaplex token-metadata program instructions and
// decodes metadata accounts.
package metaplex
