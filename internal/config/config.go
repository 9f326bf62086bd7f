package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"
)

// Network modes.
const (
	NetworkProduction  = "production"
	NetworkDevelopment = "development"
)

// Endpoints selected by network mode when not configured explicitly.
const (
	ProductionBundlrNode   = "https://node1.bundlr.network"
	ProductionProviderURL  = "https://api.metaplex.solana.com"
	DevelopmentBundlrNode  = "https://devnet.bundlr.network"
	DevelopmentProviderURL = "https://metaplex.devnet.rpcpool.com"
	DefaultConfigFile      = "nftdrop.yaml"
	// MaxVerifyBatchSize is the most set-and-verify instructions that fit
	// in one transaction.
	MaxVerifyBatchSize         = 20
	defaultPriceBufferPercent  = 150
	defaultVerifyBatchSize     = MaxVerifyBatchSize
	defaultInstructionsPerTx   = 5
	maxSellerFeeBasisPoints    = 10000
	maxCreators                = 5
	defaultCreatorAddress      = "9JdV5XY6sTESp9NUcx7uVPXG8J1ypPxdr5LNsCTgFtEi"
	defaultCollectionName      = "Numbers Collection"
	defaultCollectionSymbol    = "NB"
	defaultCollectionDesc      = "Collection of 10 numbers on the blockchain."
	defaultSellerFeeBasisPoint = 800
)

// Config is the nftdrop configuration.
type Config struct {
	RPCEndpoint               string           `json:"rpcEndpoint,omitempty"`
	UploadAuthoritySecret     string           `json:"uploadAuthoritySecret,omitempty"`
	UpdateAuthoritySecret     string           `json:"updateAuthoritySecret,omitempty"`
	CollectionAuthoritySecret string           `json:"collectionAuthoritySecret,omitempty"`
	NetworkMode               string           `json:"networkMode"`
	CachePath                 string           `json:"cachePath"`
	AssetsDir                 string           `json:"assetsDir"`
	Bundlr                    BundlrConfig     `json:"bundlr"`
	Collection                CollectionConfig `json:"collection"`
	Retry                     RetryConfig      `json:"retry"`
	Verify                    VerifyConfig     `json:"verify"`
	Transfer                  TransferConfig   `json:"transfer"`
	Log                       LogConfig        `json:"log"`
}

// BundlrConfig selects the upload node and the Solana RPC used to fund it.
type BundlrConfig struct {
	Node               string `json:"node,omitempty"`
	ProviderURL        string `json:"providerUrl,omitempty"`
	PriceBufferPercent int    `json:"priceBufferPercent"`
}

// Creator is a default royalty recipient.
type Creator struct {
	Address string `json:"address"`
	Share   int    `json:"share"`
}

// CollectionConfig holds the static collection settings.
type CollectionConfig struct {
	Name                      string    `json:"name"`
	Symbol                    string    `json:"symbol"`
	Description               string    `json:"description,omitempty"`
	SellerFeeBasisPoints      int       `json:"sellerFeeBasisPoints"`
	IsMutable                 *bool     `json:"isMutable,omitempty"`
	Creators                  []Creator `json:"creators"`
	MintDestination           string    `json:"mintDestination"`
	CollectionMintDestination string    `json:"collectionMintDestination"`
}

// Mutable reports whether minted metadata stays mutable. Defaults to true.
func (c CollectionConfig) Mutable() bool {
	return c.IsMutable == nil || *c.IsMutable
}

// RetryConfig bounds on-chain submission retries.
type RetryConfig struct {
	MaxAttempts int      `json:"maxAttempts"`
	BaseDelay   Duration `json:"baseDelay"`
	MaxDelay    Duration `json:"maxDelay"`
}

// VerifyConfig controls collection verification.
type VerifyConfig struct {
	BatchSize int `json:"batchSize"`
}

// TransferConfig controls bulk transfers.
type TransferConfig struct {
	InstructionsPerTx int `json:"instructionsPerTx"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file,omitempty"`
	JSON  bool   `json:"json,omitempty"`
}

// Duration is a time.Duration written as a string such as "1.5s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		NetworkMode: NetworkProduction,
		CachePath:   ".cache/data.json",
		AssetsDir:   "assets",
		Bundlr: BundlrConfig{
			PriceBufferPercent: defaultPriceBufferPercent,
		},
		Collection: CollectionConfig{
			Name:                 defaultCollectionName,
			Symbol:               defaultCollectionSymbol,
			Description:          defaultCollectionDesc,
			SellerFeeBasisPoints: defaultSellerFeeBasisPoint,
			Creators: []Creator{
				{Address: defaultCreatorAddress, Share: 100},
			},
			MintDestination:           defaultCreatorAddress,
			CollectionMintDestination: defaultCreatorAddress,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   Duration(time.Second),
			MaxDelay:    Duration(30 * time.Second),
		},
		Verify:   VerifyConfig{BatchSize: defaultVerifyBatchSize},
		Transfer: TransferConfig{InstructionsPerTx: defaultInstructionsPerTx},
		Log:      LogConfig{Level: "info"},
	}
}

// ConfigDir returns the platform-appropriate config directory for nftdrop.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nftdrop"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "nftdrop"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "nftdrop"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "nftdrop"), nil
	default:
		return filepath.Join(home, ".config", "nftdrop"), nil
	}
}

// ResolvePath returns the config file to use: explicit if set, else
// nftdrop.yaml in the working directory if present, else the user config
// directory.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadFile loads a YAML or JSON config file. Returns zero Config and nil
// error if the file doesn't exist.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg, yaml.DisallowUnknownFields); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Options selects the sources Load merges.
type Options struct {
	// Path is the config file; empty means ResolvePath("").
	Path string
	// EnvFile is a dotenv file loaded before reading the environment.
	// Variables already set win. Missing files are ignored.
	EnvFile string
	// Overrides come from CLI flags; only non-empty values are applied.
	Overrides map[string]string
}

// Load builds the effective config by merging:
// defaults <- file <- .env/environment <- overrides, then fills network
// dependent endpoints. It does not validate.
func Load(opts Options) (Config, error) {
	cfg := Default()

	path, err := ResolvePath(opts.Path)
	if err != nil {
		return Config{}, err
	}
	fileCfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg)

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("loading %s: %w", opts.EnvFile, err)
		}
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, opts.Overrides); err != nil {
		return Config{}, err
	}
	applyNetworkDefaults(&cfg)
	return cfg, nil
}

func applyNetworkDefaults(cfg *Config) {
	dev := cfg.NetworkMode == NetworkDevelopment
	if cfg.Bundlr.Node == "" {
		cfg.Bundlr.Node = ProductionBundlrNode
		if dev {
			cfg.Bundlr.Node = DevelopmentBundlrNode
		}
	}
	if cfg.Bundlr.ProviderURL == "" {
		cfg.Bundlr.ProviderURL = ProductionProviderURL
		if dev {
			cfg.Bundlr.ProviderURL = DevelopmentProviderURL
		}
	}
}

func mergeFile(dst *Config, src Config) {
	if src.RPCEndpoint != "" {
		dst.RPCEndpoint = src.RPCEndpoint
	}
	if src.UploadAuthoritySecret != "" {
		dst.UploadAuthoritySecret = src.UploadAuthoritySecret
	}
	if src.UpdateAuthoritySecret != "" {
		dst.UpdateAuthoritySecret = src.UpdateAuthoritySecret
	}
	if src.CollectionAuthoritySecret != "" {
		dst.CollectionAuthoritySecret = src.CollectionAuthoritySecret
	}
	if src.NetworkMode != "" {
		dst.NetworkMode = src.NetworkMode
	}
	if src.CachePath != "" {
		dst.CachePath = src.CachePath
	}
	if src.AssetsDir != "" {
		dst.AssetsDir = src.AssetsDir
	}
	if src.Bundlr.Node != "" {
		dst.Bundlr.Node = src.Bundlr.Node
	}
	if src.Bundlr.ProviderURL != "" {
		dst.Bundlr.ProviderURL = src.Bundlr.ProviderURL
	}
	if src.Bundlr.PriceBufferPercent > 0 {
		dst.Bundlr.PriceBufferPercent = src.Bundlr.PriceBufferPercent
	}

	c := src.Collection
	if c.Name != "" {
		dst.Collection.Name = c.Name
	}
	if c.Symbol != "" {
		dst.Collection.Symbol = c.Symbol
	}
	if c.Description != "" {
		dst.Collection.Description = c.Description
	}
	if c.SellerFeeBasisPoints > 0 {
		dst.Collection.SellerFeeBasisPoints = c.SellerFeeBasisPoints
	}
	if c.IsMutable != nil {
		dst.Collection.IsMutable = c.IsMutable
	}
	if len(c.Creators) > 0 {
		dst.Collection.Creators = c.Creators
	}
	if c.MintDestination != "" {
		dst.Collection.MintDestination = c.MintDestination
	}
	if c.CollectionMintDestination != "" {
		dst.Collection.CollectionMintDestination = c.CollectionMintDestination
	}

	if src.Retry.MaxAttempts != 0 {
		dst.Retry.MaxAttempts = src.Retry.MaxAttempts
	}
	if src.Retry.BaseDelay > 0 {
		dst.Retry.BaseDelay = src.Retry.BaseDelay
	}
	if src.Retry.MaxDelay > 0 {
		dst.Retry.MaxDelay = src.Retry.MaxDelay
	}
	if src.Verify.BatchSize > 0 {
		dst.Verify.BatchSize = src.Verify.BatchSize
	}
	if src.Transfer.InstructionsPerTx > 0 {
		dst.Transfer.InstructionsPerTx = src.Transfer.InstructionsPerTx
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.File != "" {
		dst.Log.File = src.Log.File
	}
	dst.Log.JSON = src.Log.JSON || dst.Log.JSON
}

func mergeEnv(cfg *Config) error {
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCEndpoint = v
	}
	if v := os.Getenv("ARWEAVE_UPLOADER_KEY_SECRET"); v != "" {
		cfg.UploadAuthoritySecret = v
	}
	if v := os.Getenv("UPDATE_AUTHORITY_SECRET"); v != "" {
		cfg.UpdateAuthoritySecret = v
	}
	if v := os.Getenv("COLLECTION_UPDATE_AUTHORITY_SECRET"); v != "" {
		cfg.CollectionAuthoritySecret = v
	}
	if v := os.Getenv("NODE_ENV"); v != "" {
		if v == NetworkDevelopment {
			cfg.NetworkMode = NetworkDevelopment
		} else {
			cfg.NetworkMode = NetworkProduction
		}
	}
	if v := os.Getenv("NFTDROP_NETWORK"); v != "" {
		cfg.NetworkMode = v
	}
	if v := os.Getenv("NFTDROP_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("NFTDROP_ASSETS_DIR"); v != "" {
		cfg.AssetsDir = v
	}
	if v := os.Getenv("NFTDROP_BUNDLR_NODE"); v != "" {
		cfg.Bundlr.Node = v
	}
	if v := os.Getenv("NFTDROP_BUNDLR_PROVIDER_URL"); v != "" {
		cfg.Bundlr.ProviderURL = v
	}
	if v := os.Getenv("NFTDROP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NFTDROP_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Problems: []string{"NFTDROP_MAX_ATTEMPTS must be an integer"}}
		}
		cfg.Retry.MaxAttempts = n
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is
// unknown or the value does not parse.
func SetField(cfg *Config, key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return n, nil
	}
	var err error
	switch key {
	case "rpcEndpoint":
		cfg.RPCEndpoint = value
	case "networkMode", "network":
		cfg.NetworkMode = value
	case "cachePath":
		cfg.CachePath = value
	case "assetsDir":
		cfg.AssetsDir = value
	case "bundlr.node":
		cfg.Bundlr.Node = value
	case "bundlr.providerUrl":
		cfg.Bundlr.ProviderURL = value
	case "bundlr.priceBufferPercent":
		cfg.Bundlr.PriceBufferPercent, err = atoi()
	case "collection.name":
		cfg.Collection.Name = value
	case "collection.symbol":
		cfg.Collection.Symbol = value
	case "collection.description":
		cfg.Collection.Description = value
	case "collection.sellerFeeBasisPoints":
		cfg.Collection.SellerFeeBasisPoints, err = atoi()
	case "collection.isMutable":
		b, perr := strconv.ParseBool(value)
		if perr != nil {
			return fmt.Errorf("collection.isMutable must be true or false: %w", perr)
		}
		cfg.Collection.IsMutable = &b
	case "collection.mintDestination":
		cfg.Collection.MintDestination = value
	case "collection.collectionMintDestination":
		cfg.Collection.CollectionMintDestination = value
	case "retry.maxAttempts":
		cfg.Retry.MaxAttempts, err = atoi()
	case "retry.baseDelay", "retry.maxDelay":
		d, perr := time.ParseDuration(value)
		if perr != nil {
			return fmt.Errorf("%s must be a duration: %w", key, perr)
		}
		if key == "retry.baseDelay" {
			cfg.Retry.BaseDelay = Duration(d)
		} else {
			cfg.Retry.MaxDelay = Duration(d)
		}
	case "verify.batchSize", "batchSize":
		cfg.Verify.BatchSize, err = atoi()
	case "transfer.instructionsPerTx":
		cfg.Transfer.InstructionsPerTx, err = atoi()
	case "log.level", "logLevel":
		cfg.Log.Level = value
	case "log.file", "logFile":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON, err = strconv.ParseBool(value)
	default:
		if strings.HasSuffix(strings.ToLower(key), "secret") {
			return fmt.Errorf("%s cannot be set here; use the environment or edit the config file", key)
		}
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}
