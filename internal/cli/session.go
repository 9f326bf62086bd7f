package cli

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dshills/nftdrop/internal/bundlr"
	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/logging"
	"github.com/dshills/nftdrop/internal/mint"
	"github.com/dshills/nftdrop/internal/solana"
	"github.com/dshills/nftdrop/internal/upload"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// buildOverrides maps global flags to config keys. Unset flags are left out.
func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagCache != "" {
		m["cachePath"] = flagCache
	}
	if flagAssets != "" {
		m["assetsDir"] = flagAssets
	}
	if flagNetwork != "" {
		m["networkMode"] = flagNetwork
	}
	if flagLogLevel != "" {
		m["log.level"] = flagLogLevel
	}
	if flagLogFile != "" {
		m["log.file"] = flagLogFile
	}
	if flagLogJSON {
		m["log.json"] = strconv.FormatBool(true)
	}
	return m
}

// loadConfig builds and validates the effective configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.Options{
		Path:      flagConfig,
		EnvFile:   flagEnvFile,
		Overrides: buildOverrides(),
	})
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session holds what a command needs once configuration is settled.
type session struct {
	cfg   config.Config
	log   *zap.Logger
	cache *cache.Cache
}

func newSession(reqs ...config.Requirement) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Require(reqs...); err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		JSON:  cfg.Log.JSON,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("configuration loaded",
		zap.String("network", cfg.NetworkMode),
		zap.String("cache", cfg.CachePath),
		zap.String("bundlr", cfg.Bundlr.Node),
	)
	return &session{cfg: cfg, log: log, cache: cache.Open(cfg.CachePath)}, nil
}

func (s *session) close() {
	_ = s.log.Sync()
}

func (s *session) chain() *solana.Client {
	return solana.NewClient(s.cfg.RPCEndpoint)
}

// bundlrAccount binds the upload key to the configured node. Deposits are
// sent through the node's provider RPC.
func (s *session) bundlrAccount() (*bundlr.Account, error) {
	kp, err := s.cfg.UploadKeypair()
	if err != nil {
		return nil, err
	}
	node := bundlr.NewClient(s.cfg.Bundlr.Node)
	funder := solana.NewClient(s.cfg.Bundlr.ProviderURL)
	return bundlr.NewAccount(node, funder, kp, s.log.Named("bundlr")), nil
}

func (s *session) uploader() (*upload.Uploader, error) {
	acct, err := s.bundlrAccount()
	if err != nil {
		return nil, err
	}
	return upload.New(acct, s.cache, upload.OptionsFromConfig(s.cfg), s.log.Named("upload")), nil
}

func (s *session) minter() (*mint.Minter, error) {
	settings, err := mint.SettingsFromConfig(s.cfg)
	if err != nil {
		return nil, err
	}
	return mint.New(s.chain(), s.cache, settings, s.log.Named("mint")), nil
}

// commandContext is cancelled on interrupt so retry waits stop promptly.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
