package cli

import (
	"fmt"
	"os"

	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/solana"
	"github.com/spf13/cobra"
)

var fundCmd = &cobra.Command{
	Use:   "fund <SOL>",
	Short: "Deposit SOL from the upload wallet to the Bundlr node",
	Args:  cobra.ExactArgs(1),
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		lamports, err := parseSOL(args[0])
		if err != nil || lamports == 0 {
			return &usageError{msg: fmt.Sprintf("amount must be a positive SOL value, got %q", args[0])}
		}
		s, err := newSession(config.NeedUploadKey)
		if err != nil {
			return err
		}
		defer s.close()
		acct, err := s.bundlrAccount()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		tx, err := acct.Fund(ctx, lamports)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Funded %s SOL, tx %s\n", formatSOL(lamports), tx)
		return nil
	}),
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <SOL>",
	Short: "Withdraw loaded balance from the Bundlr node",
	Args:  cobra.ExactArgs(1),
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		lamports, err := parseSOL(args[0])
		if err != nil || lamports == 0 {
			return &usageError{msg: fmt.Sprintf("amount must be a positive SOL value, got %q", args[0])}
		}
		s, err := newSession(config.NeedUploadKey)
		if err != nil {
			return err
		}
		defer s.close()
		acct, err := s.bundlrAccount()
		if err != nil {
			return err
		}
		if err := confirmOrAbort(fmt.Sprintf("Withdraw %s SOL from %s to %s", formatSOL(lamports), s.cfg.Bundlr.Node, acct.Address())); err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		tx, err := acct.Withdraw(ctx, lamports)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Withdrew %s SOL, tx %s\n", formatSOL(lamports), tx)
		return nil
	}),
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the upload wallet and Bundlr node balances",
	Args:  cobra.NoArgs,
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		s, err := newSession(config.NeedUploadKey)
		if err != nil {
			return err
		}
		defer s.close()
		acct, err := s.bundlrAccount()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		loaded, err := acct.LoadedBalance(ctx)
		if err != nil {
			return err
		}
		wallet, err := solana.PublicKeyFromBase58(acct.Address())
		if err != nil {
			return err
		}
		onChain, err := solana.NewClient(s.cfg.Bundlr.ProviderURL).GetBalance(ctx, wallet)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Address: %s\n", wallet)
		fmt.Fprintf(os.Stdout, "Wallet:  %s SOL\n", formatSOL(onChain))
		fmt.Fprintf(os.Stdout, "Bundlr:  %s SOL (%s)\n", formatSOL(loaded), s.cfg.Bundlr.Node)
		return nil
	}),
}
