package redact

import (
	"regexp"

	"github.com/dshills/nftdrop/internal/config"
)

const placeholder = "[REDACTED]"

type pattern struct {
	re   *regexp.Regexp
	repl string
}

// urlPatterns match credentials carried in URLs. Provider RPC endpoints
// commonly embed an API key.
var urlPatterns = []pattern{
	// user:password@host
	{regexp.MustCompile(`(?i)(\b[a-z][a-z0-9+.-]*://[^:/\s@]+:)[^@/\s]+@`), "${1}" + placeholder + "@"},
	// ?api-key=... and friends
	{regexp.MustCompile(`(?i)([?&](?:api[-_]?key|apikey|token|access[-_]?token|key)=)[^&\s"']+`), "${1}" + placeholder},
	// key as a path segment, e.g. https://solana-mainnet.g.alchemy.com/v2/<key>
	{regexp.MustCompile(`(?i)(\b[a-z][a-z0-9+.-]*://[^/\s]+/v[0-9]+/)[A-Za-z0-9_-]{20,}`), "${1}" + placeholder},
}

// secretPatterns match key material.
var secretPatterns = []pattern{
	// solana-keygen JSON keypair files
	{regexp.MustCompile(`\[\s*\d{1,3}(?:\s*,\s*\d{1,3}){31,}\s*\]`), placeholder},
	// values assigned to *_SECRET variables
	{regexp.MustCompile(`(?i)\b([a-z_]*secret[a-z_]*)(\s*[:=]\s*)(["']?)[^\s"']+(["']?)`), "${1}${2}${3}" + placeholder + "${4}"},
	// base58 encoded 64 byte secret keys
	{regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{86,88}\b`), placeholder},
	// Private key blocks
	{regexp.MustCompile(`-----BEGIN\s+([A-Z]+\s+)?PRIVATE KEY-----`), placeholder},
}

func apply(text string, patterns []pattern) string {
	for _, p := range patterns {
		text = p.re.ReplaceAllString(text, p.repl)
	}
	return text
}

// URLs masks credentials embedded in URLs within text. Transaction
// signatures and addresses are left alone, so it is safe for error
// messages.
func URLs(text string) string {
	return apply(text, urlPatterns)
}

// Secrets masks key material and URL credentials in text. It also masks
// anything shaped like a base58 64 byte value, transaction signatures
// included, so use it for configuration output rather than logs.
func Secrets(text string) string {
	return apply(URLs(text), secretPatterns)
}

// Value returns the placeholder for a set secret and "" for an unset one.
func Value(secret string) string {
	if secret == "" {
		return ""
	}
	return placeholder
}

// Config returns a copy of cfg safe to print: secrets are replaced and
// endpoint credentials masked.
func Config(cfg config.Config) config.Config {
	cfg.UploadAuthoritySecret = Value(cfg.UploadAuthoritySecret)
	cfg.UpdateAuthoritySecret = Value(cfg.UpdateAuthoritySecret)
	cfg.CollectionAuthoritySecret = Value(cfg.CollectionAuthoritySecret)
	cfg.RPCEndpoint = URLs(cfg.RPCEndpoint)
	cfg.Bundlr.Node = URLs(cfg.Bundlr.Node)
	cfg.Bundlr.ProviderURL = URLs(cfg.Bundlr.ProviderURL)
	return cfg
}
