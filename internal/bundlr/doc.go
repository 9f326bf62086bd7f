// Package bundlr creates signed ANS-104 data items and talks to a Bundlr
// node to price, fund and upload them to Arweave.
package bundlr
