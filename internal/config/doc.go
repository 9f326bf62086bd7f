// Package config loads and merges nftdrop configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (RPC_URL, the three *_SECRET keys, NODE_ENV,
//     NFTDROP_*), optionally seeded from a .env file
//  3. Config file (./nftdrop.yaml, or $XDG_CONFIG_HOME/nftdrop/config.yaml)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged [Config], then [Config.Validate] once at
// startup and [Config.Require] for the settings a command needs.
package config
