// Nftdrop is a CLI for issuing a single NFT collection on Solana with its
// assets stored on Arweave.
//
// It uploads numbered image/metadata pairs through a Bundlr node, mints each
// as a Metaplex NFT, and verifies the items into a sized collection. Every
// step records its results in a local JSON cache and can be rerun.
//
// Usage:
//
//	nftdrop config init               # write a default nftdrop.yaml
//	nftdrop create-collection         # upload and mint the collection NFT
//	nftdrop upload                    # upload assets/0.png, 0.json, ...
//	nftdrop mint                      # mint every uploaded item
//	nftdrop verify                    # verify items into the collection
//	nftdrop status                    # show progress from the cache
//	nftdrop transfer 10 <wallet>      # move the first 10 items
//
// Secrets and the RPC endpoint are read from the environment or a .env file:
// RPC_URL, ARWEAVE_UPLOADER_KEY_SECRET, UPDATE_AUTHORITY_SECRET and
// COLLECTION_UPDATE_AUTHORITY_SECRET.
package main
