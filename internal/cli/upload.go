package cli

import (
	"fmt"
	"os"

	"github.com/dshills/nftdrop/internal/asset"
	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/upload"
	"github.com/spf13/cobra"
)

var (
	flagOverwrite bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload [name]",
	Short: "Upload asset pairs to Arweave",
	Long: "Upload every numbered image/metadata pair in the assets directory, or " +
		"only the named one. Pairs already in the cache are skipped. Use " +
		"\"upload collection\" for the collection pair.",
	Args: cobra.MaximumNArgs(1),
	RunE: handle(runUpload),
}

var createCollectionCmd = &cobra.Command{
	Use:   "create-collection",
	Short: "Upload the collection pair and mint the collection NFT",
	Args:  cobra.NoArgs,
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		s, err := newSession(config.NeedRPC, config.NeedUploadKey, config.NeedCollectionKey)
		if err != nil {
			return err
		}
		defer s.close()
		ctx, cancel := commandContext(cmd)
		defer cancel()

		up, err := s.uploader()
		if err != nil {
			return err
		}
		m, err := s.minter()
		if err != nil {
			return err
		}
		mintAddr, err := m.CreateCollection(ctx, up, s.cfg.AssetsDir, flagOverwrite)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Collection mint: %s\n", mintAddr)
		return nil
	}),
}

func init() {
	uploadCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "Upload again even if the cache has the pair (requires a name)")
	createCollectionCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "Upload and mint again even if cached")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if flagOverwrite && len(args) == 0 {
		return &usageError{msg: "--overwrite needs an item name"}
	}
	s, err := newSession(config.NeedUploadKey)
	if err != nil {
		return err
	}
	defer s.close()
	ctx, cancel := commandContext(cmd)
	defer cancel()

	up, err := s.uploader()
	if err != nil {
		return err
	}

	var results []upload.Result
	switch {
	case len(args) == 0:
		results, err = up.UploadAll(ctx, s.cfg.AssetsDir)
	case args[0] == cache.CollectionName:
		var res upload.Result
		res, err = up.UploadCollection(ctx, s.cfg.AssetsDir, flagOverwrite)
		results = append(results, res)
	default:
		p := asset.PairFor(s.cfg.AssetsDir, args[0])
		var res upload.Result
		res, err = up.UploadPair(ctx, p.ImagePath, p.JSONPath, flagOverwrite)
		results = append(results, res)
	}
	for _, r := range results {
		if r.Name == "" {
			continue
		}
		state := "uploaded"
		if r.Cached {
			state = "cached"
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", r.Name, state, r.JSONURL)
	}
	return err
}
