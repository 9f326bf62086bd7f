package cli

import (
	"github.com/dshills/nftdrop/internal/output"
	"github.com/spf13/cobra"
)

var (
	flagFormat string
	flagOut    string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show upload and mint progress from the cache",
	Args:  cobra.NoArgs,
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		if _, err := output.GetWriter(flagFormat); err != nil {
			return &usageError{msg: err.Error()}
		}
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.close()

		doc, err := s.cache.Load()
		if err != nil {
			return err
		}
		st := output.NewStatus(s.cache.Path(), s.cfg.NetworkMode, doc)
		return output.WriteStatus(st, flagFormat, flagOut)
	}),
}

func init() {
	statusCmd.Flags().StringVar(&flagFormat, "format", "text", "Output format (text, json, markdown)")
	statusCmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
}
