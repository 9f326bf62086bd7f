package cli

import (
	"fmt"
	"os"

	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/verify"
	"github.com/spf13/cobra"
)

var flagBatchSize int

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify minted items into the collection",
	Long: "Fetch the metadata of every minted item and verify it into the " +
		"collection, batching several items per transaction. Items already " +
		"verified are skipped, so the command can be rerun after a failure.",
	Args: cobra.NoArgs,
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		if flagBatchSize > config.MaxVerifyBatchSize {
			return &usageError{msg: fmt.Sprintf("--batch-size must be at most %d, got %d", config.MaxVerifyBatchSize, flagBatchSize)}
		}
		s, err := newSession(config.NeedRPC, config.NeedUpdateKey, config.NeedCollectionKey)
		if err != nil {
			return err
		}
		defer s.close()
		ctx, cancel := commandContext(cmd)
		defer cancel()

		settings, err := verify.SettingsFromConfig(s.cfg)
		if err != nil {
			return err
		}
		size := s.cfg.Verify.BatchSize
		if flagBatchSize > 0 {
			size = flagBatchSize
		}
		v := verify.New(s.chain(), s.cache, settings, s.log.Named("verify"))
		report, err := v.VerifyCollection(ctx, size)
		printVerifyReport(report)
		return err
	}),
}

func init() {
	verifyCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, fmt.Sprintf("Items per transaction, at most %d (default from config)", config.MaxVerifyBatchSize))
}

func printVerifyReport(r verify.Report) {
	if r.Collection.IsZero() {
		return
	}
	fmt.Fprintf(os.Stdout, "Collection: %s\n", r.Collection)
	for i, b := range r.Batches {
		if b.Instructions == 0 {
			fmt.Fprintf(os.Stdout, "batch %d: %d items, nothing to verify\n", i+1, b.Items)
			continue
		}
		fmt.Fprintf(os.Stdout, "batch %d: %d items, %d verified, tx %s\n", i+1, b.Items, b.Instructions, b.Signature)
	}
	for _, name := range r.Unminted {
		fmt.Fprintf(os.Stdout, "skipped %s: not minted\n", name)
	}
	for _, name := range r.Foreign {
		fmt.Fprintf(os.Stdout, "skipped %s: verified in another collection\n", name)
	}
	fmt.Fprintf(os.Stdout, "%d instructions in %d transactions\n", r.Instructions(), r.Transactions())
}
