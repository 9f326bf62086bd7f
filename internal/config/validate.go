package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dshills/nftdrop/internal/retry"
	"github.com/dshills/nftdrop/internal/solana"
)

// ConfigError reports missing or invalid configuration. It is never
// retried.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ConfigError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// Validate checks option values. Secrets and the RPC endpoint are only
// checked by Require, since not every command needs them.
func (c Config) Validate() error {
	errs := &ConfigError{}

	switch c.NetworkMode {
	case NetworkProduction, NetworkDevelopment:
	default:
		errs.add("networkMode must be %q or %q, got %q", NetworkProduction, NetworkDevelopment, c.NetworkMode)
	}
	if c.RPCEndpoint != "" {
		checkURL(errs, "rpcEndpoint", c.RPCEndpoint)
	}
	checkURL(errs, "bundlr.node", c.Bundlr.Node)
	checkURL(errs, "bundlr.providerUrl", c.Bundlr.ProviderURL)
	if c.Bundlr.PriceBufferPercent < 100 {
		errs.add("bundlr.priceBufferPercent must be at least 100")
	}
	if c.CachePath == "" {
		errs.add("cachePath is required")
	}
	if c.AssetsDir == "" {
		errs.add("assetsDir is required")
	}

	col := c.Collection
	if col.Name == "" {
		errs.add("collection.name is required")
	}
	if col.SellerFeeBasisPoints < 0 || col.SellerFeeBasisPoints > maxSellerFeeBasisPoints {
		errs.add("collection.sellerFeeBasisPoints must be between 0 and %d", maxSellerFeeBasisPoints)
	}
	if len(col.Creators) > maxCreators {
		errs.add("collection.creators has %d entries (max %d)", len(col.Creators), maxCreators)
	}
	total := 0
	for i, cr := range col.Creators {
		if _, err := solana.PublicKeyFromBase58(cr.Address); err != nil {
			errs.add("collection.creators[%d].address: %v", i, err)
		}
		total += cr.Share
	}
	if len(col.Creators) > 0 && total != 100 {
		errs.add("collection.creators shares sum to %d, want 100", total)
	}
	for name, addr := range map[string]string{
		"collection.mintDestination":           col.MintDestination,
		"collection.collectionMintDestination": col.CollectionMintDestination,
	} {
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			errs.add("%s: %v", name, err)
		}
	}

	if c.Retry.MaxAttempts < 0 {
		errs.add("retry.maxAttempts must be 0 (unlimited) or positive")
	}
	if c.Retry.BaseDelay <= 0 {
		errs.add("retry.baseDelay must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs.add("retry.maxDelay must not be less than retry.baseDelay")
	}
	if c.Verify.BatchSize <= 0 || c.Verify.BatchSize > MaxVerifyBatchSize {
		errs.add("verify.batchSize must be between 1 and %d", MaxVerifyBatchSize)
	}
	if c.Transfer.InstructionsPerTx <= 0 {
		errs.add("transfer.instructionsPerTx must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs.add("log.level must be debug, info, warn or error")
	}
	return errs.orNil()
}

func checkURL(errs *ConfigError, name, raw string) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.add("%s must be an http(s) URL, got %q", name, raw)
	}
}

// Requirement names a setting a command cannot run without.
type Requirement int

const (
	NeedRPC Requirement = iota
	NeedUploadKey
	NeedUpdateKey
	NeedCollectionKey
)

// Require checks that every listed requirement is configured and that
// secrets parse.
func (c Config) Require(reqs ...Requirement) error {
	errs := &ConfigError{}
	for _, r := range reqs {
		switch r {
		case NeedRPC:
			if c.RPCEndpoint == "" {
				errs.add("RPC endpoint is required (set RPC_URL or rpcEndpoint)")
			}
		case NeedUploadKey:
			checkSecret(errs, "upload authority", "ARWEAVE_UPLOADER_KEY_SECRET", c.UploadAuthoritySecret)
		case NeedUpdateKey:
			checkSecret(errs, "update authority", "UPDATE_AUTHORITY_SECRET", c.UpdateAuthoritySecret)
		case NeedCollectionKey:
			checkSecret(errs, "collection authority", "COLLECTION_UPDATE_AUTHORITY_SECRET", c.CollectionAuthoritySecret)
		}
	}
	return errs.orNil()
}

func checkSecret(errs *ConfigError, what, env, secret string) {
	if secret == "" {
		errs.add("%s secret is required (set %s)", what, env)
		return
	}
	if _, err := solana.KeypairFromSecret(secret); err != nil {
		errs.add("%s secret: %v", what, err)
	}
}

func keypair(what, secret string) (*solana.Keypair, error) {
	kp, err := solana.KeypairFromSecret(secret)
	if err != nil {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("%s secret: %v", what, err)}}
	}
	return kp, nil
}

// UploadKeypair returns the key that pays for and signs Arweave uploads.
func (c Config) UploadKeypair() (*solana.Keypair, error) {
	return keypair("upload authority", c.UploadAuthoritySecret)
}

// UpdateKeypair returns the key that pays for verification transactions.
func (c Config) UpdateKeypair() (*solana.Keypair, error) {
	return keypair("update authority", c.UpdateAuthoritySecret)
}

// CollectionKeypair returns the key that mints and holds collection
// authority.
func (c Config) CollectionKeypair() (*solana.Keypair, error) {
	return keypair("collection authority", c.CollectionAuthoritySecret)
}

// Destination returns the wallet that receives a newly minted token.
func (c Config) Destination(isCollection bool) (solana.PublicKey, error) {
	addr := c.Collection.MintDestination
	if isCollection {
		addr = c.Collection.CollectionMintDestination
	}
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, &ConfigError{Problems: []string{fmt.Sprintf("mint destination: %v", err)}}
	}
	return pk, nil
}

// PriceBuffer returns the upload price multiplier as a fraction.
func (c Config) PriceBuffer() (num, den uint64) {
	return uint64(c.Bundlr.PriceBufferPercent), 100
}

// RetryPolicy returns the retry bounds for network operations.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay.Std(),
		MaxDelay:    c.Retry.MaxDelay.Std(),
	}
}
