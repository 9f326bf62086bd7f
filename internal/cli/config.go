package cli

import (
	"fmt"
	"os"

	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/redact"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage nftdrop configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	Args:  cobra.NoArgs,
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		path, err := config.ResolvePath(flagConfig)
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "Config file already exists at %s\n", path)
			return nil
		}

		if err := config.Save(path, config.Default()); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Config file created at %s\n", path)
		return nil
	}),
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		path, err := config.ResolvePath(flagConfig)
		if err != nil {
			return err
		}
		cfg := config.Default()
		if _, err := os.Stat(path); err == nil {
			if cfg, err = config.LoadFile(path); err != nil {
				return err
			}
		}

		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return &config.ConfigError{Problems: []string{err.Error()}}
		}

		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Set %s = %s\n", args[0], args[1])
		return nil
	}),
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: handle(func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(redact.Config(cfg))
		if err != nil {
			return err
		}

		fmt.Fprint(os.Stdout, redact.Secrets(string(data)))
		return nil
	}),
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}
