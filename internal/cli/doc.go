// Package cli wires together the Cobra command tree for the nftdrop binary.
//
// It defines the root command and all subcommands (upload, create-collection,
// mint, verify, transfer, fund, withdraw, balance, status, config, cache,
// version), binds flags, loads and validates configuration once per
// invocation, runs the workflow, and maps failures to exit codes.
package cli
