package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configDir    string
	envFile      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "sudhar",
	Short: "Nepali grammar correction with mT5, mBART and VartaT5",
	Long: `Sudhar corrects Nepali sentences and paragraphs with fine-tuned
sequence-to-sequence models served by an inference backend.

Models are loaded on first use and kept warm for the configured TTL.
Paragraphs are split on the danda (।), ? and ! and corrected sentence
by sentence.

Examples:
  sudhar correct --model mT5 "म घर जान्छ।"
  echo "म घर जान्छ। तिमी कहाँ?" | sudhar paragraph --model mBART
  sudhar serve --metrics-addr 127.0.0.1:9464`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadDotEnv(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		if configDir != "" {
			if err := os.Setenv("SUDHAR_CONFIG_DIR", configDir); err != nil {
				return err
			}
		}
		setupLogging(cmd.ErrOrStderr(), verbose)
		return setOutputFormat(outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configDir, "config-dir", "", "config directory (default: $SUDHAR_CONFIG_DIR or ~/.config/sudhar)",
	)
	rootCmd.PersistentFlags().StringVar(
		&envFile, "env-file", ".env", "dotenv file loaded before config resolution",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "debug logging, including every request and response",
	)
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
