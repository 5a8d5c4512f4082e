package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"waterwise/internal/config"
)

const redacted = "<redacted>"

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect service configuration",
	}

	var configPath string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate configuration, then print the effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			out, err := yaml.Marshal(redact(*cfg))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	validate.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.AddCommand(validate)

	return cmd
}

func redact(cfg config.Config) config.Config {
	if cfg.Session.Secret != "" {
		cfg.Session.Secret = redacted
	}
	if cfg.Session.JWTSecret != "" {
		cfg.Session.JWTSecret = redacted
	}
	if cfg.Session.RedisURL != "" {
		cfg.Session.RedisURL = redacted
	}
	if cfg.Database.URL != "" {
		cfg.Database.URL = redacted
	}
	return cfg
}
