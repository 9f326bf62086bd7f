package cli

import (
	"fmt"
	"os"

	"github.com/dshills/nftdrop/internal/asset"
	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/mint"
	"github.com/spf13/cobra"
)

var mintCmd = &cobra.Command{
	Use:   "mint [name]",
	Short: "Mint uploaded items as NFTs of the collection",
	Long: "Mint every uploaded item in the assets directory, or only the named " +
		"one. Items with a mint address in the cache are skipped. The " +
		"collection must be created first.",
	Args: cobra.MaximumNArgs(1),
	RunE: handle(runMint),
}

func init() {
	mintCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "Mint again even if the cache has a mint address (requires a name)")
}

func runMint(cmd *cobra.Command, args []string) error {
	if flagOverwrite && len(args) == 0 {
		return &usageError{msg: "--overwrite needs an item name"}
	}
	s, err := newSession(config.NeedRPC, config.NeedCollectionKey)
	if err != nil {
		return err
	}
	defer s.close()
	ctx, cancel := commandContext(cmd)
	defer cancel()

	m, err := s.minter()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		p := asset.PairFor(s.cfg.AssetsDir, args[0])
		opts := mint.Options{IsCollection: p.Name == cache.CollectionName, Overwrite: flagOverwrite}
		addr, err := m.MintItem(ctx, p.JSONPath, p.Name, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\n", p.Name, addr)
		return nil
	}

	minted, err := m.MintAll(ctx, s.cfg.AssetsDir)
	for _, it := range minted {
		fmt.Fprintf(os.Stdout, "%s\t%s\n", it.Name, it.Mint)
	}
	return err
}
