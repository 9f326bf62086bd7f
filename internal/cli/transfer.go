package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/solana"
	"github.com/dshills/nftdrop/internal/transfer"
	"github.com/spf13/cobra"
)

var transferCmd = &cobra.Command{
	Use:   "transfer <amount> <receiver>",
	Short: "Transfer the first minted items to another wallet",
	Long: "Move the first <amount> minted items from the update authority " +
		"wallet to <receiver>, closing the emptied token accounts. Items the " +
		"sender no longer holds are skipped.",
	Args: cobra.ExactArgs(2),
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.Atoi(args[0])
		if err != nil || amount <= 0 {
			return &usageError{msg: fmt.Sprintf("amount must be a positive integer, got %q", args[0])}
		}
		receiver, err := solana.PublicKeyFromBase58(args[1])
		if err != nil {
			return &usageError{msg: fmt.Sprintf("receiver: %v", err)}
		}

		s, err := newSession(config.NeedRPC, config.NeedUpdateKey)
		if err != nil {
			return err
		}
		defer s.close()

		settings, err := transfer.SettingsFromConfig(s.cfg)
		if err != nil {
			return err
		}
		if err := confirmOrAbort(fmt.Sprintf("Transfer %d items from %s to %s", amount, settings.Sender.PublicKey(), receiver)); err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		t := transfer.New(s.chain(), s.cache, settings, s.log.Named("transfer"))
		report, err := t.Transfer(ctx, amount, receiver)
		for i, b := range report.Batches {
			if len(b.Transferred) == 0 {
				continue
			}
			fmt.Fprintf(os.Stdout, "batch %d: %d transferred, tx %s\n", i+1, len(b.Transferred), b.Signature)
		}
		for _, name := range report.Skipped {
			fmt.Fprintf(os.Stdout, "skipped %s: sender holds no token\n", name)
		}
		fmt.Fprintf(os.Stdout, "%d items transferred to %s\n", report.Transferred(), receiver)
		return err
	}),
}
