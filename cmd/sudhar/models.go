package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	sudhar "github.com/sudhar-ne/sudhar"
	"github.com/sudhar-ne/sudhar/generate"
	"github.com/sudhar-ne/sudhar/serve"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured models",
	Long: `List the configured models with their resolved paths.

When the daemon is running, "loaded" reports which models it holds in
memory. Otherwise the list comes from the local config and nothing is
loaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := &serve.Client{SockPath: serve.ResolveSocketPath()}
		resp, err := c.Config(cmd.Context(), "models")
		if err == nil && resp.Error == nil {
			return output(cmd.OutOrStdout(), resp.Models)
		}
		slog.Debug("daemon unavailable, listing local config", "error", err)

		cfg, err := sudhar.LoadConfig()
		if err != nil {
			return err
		}
		engine := generate.NewEngineWithConfig(cfg)
		defer engine.Close()
		return output(cmd.OutOrStdout(), engine.Models())
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
