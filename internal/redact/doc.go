// Package redact masks key material and endpoint credentials before
// configuration or errors are printed.
//
// Detection uses regex heuristics for the shapes nftdrop handles: Solana
// keypairs as solana-keygen JSON arrays or base58 strings, values assigned
// to *_SECRET variables, and API keys or passwords embedded in RPC and
// bundler URLs.
package redact
