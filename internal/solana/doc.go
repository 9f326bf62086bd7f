// Package solana is the minimal Solana client surface nftdrop needs.
//
// It covers base58 keys and signatures, program-derived addresses, legacy
// transaction compilation and signing, a JSON-RPC client, and instruction
// builders for the system, SPL token and associated token account programs.
// It is intentionally narrow: only the calls used by the upload, mint,
// verify and transfer workflows are implemented.
package solana
