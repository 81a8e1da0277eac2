package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sudhar "github.com/sudhar-ne/sudhar"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Long: `Print the effective configuration: the config file merged with the
built-in defaults. Environment overrides are applied when the config
is used and are not shown here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := sudhar.LoadConfig()
		if err != nil {
			return err
		}
		data, err := sudhar.EncodeConfig(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), sudhar.ConfigPath())
	},
}

var configDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the built-in defaults as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := sudhar.EncodeConfig(sudhar.DefaultConfig())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and print warnings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := sudhar.LoadConfig()
		if err != nil {
			return err
		}
		warnings := sudhar.ValidateConfig(cfg)
		if warnings == nil {
			warnings = []string{}
		}
		return output(cmd.OutOrStdout(), warnings)
	},
}

func init() {
	configCmd.AddCommand(configPathCmd, configDefaultsCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
