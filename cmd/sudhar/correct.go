package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	sudhar "github.com/sudhar-ne/sudhar"
	"github.com/sudhar-ne/sudhar/generate"
	"github.com/sudhar-ne/sudhar/serve"
)

var (
	modelLabel    string
	maxCandidates int
	useDaemon     bool
	textOnly      bool
)

var correctCmd = &cobra.Command{
	Use:   "correct [TEXT]",
	Short: "Correct a single sentence",
	Long: `Correct a single sentence and print every unique candidate in beam order
with its probability.

Examples:
  sudhar correct --model mT5 "म घर जान्छ।"
  sudhar correct --model VartaT5 --max 1 -o json "म घर जान्छ।"
  echo "म घर जान्छ।" | sudhar correct --daemon`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		resp, err := correct(cmd.Context(), &sudhar.Request{
			Model:         modelLabel,
			Text:          text,
			Mode:          sudhar.ModeSentence,
			MaxCandidates: maxCandidates,
		})
		if err != nil {
			return err
		}
		if textOnly {
			if len(resp.Candidates) > 0 {
				text = resp.Candidates[0].Text
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		}
		return output(cmd.OutOrStdout(), resp)
	},
}

var paragraphCmd = &cobra.Command{
	Use:   "paragraph [TEXT]",
	Short: "Correct a paragraph sentence by sentence",
	Long: `Split a paragraph on sentence-ending punctuation, correct every sentence
with the same model and join the top candidates with single spaces.

Examples:
  sudhar paragraph --model mBART "म घर जान्छ। तिमी कहाँ?"
  sudhar paragraph --text < essay.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		resp, err := correct(cmd.Context(), &sudhar.Request{
			Model:         modelLabel,
			Text:          text,
			Mode:          sudhar.ModeParagraph,
			MaxCandidates: maxCandidates,
		})
		if err != nil {
			return err
		}
		if textOnly {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), resp.Paragraph)
			return err
		}
		return output(cmd.OutOrStdout(), resp)
	},
}

var splitCmd = &cobra.Command{
	Use:   "split [TEXT]",
	Short: "Split a paragraph into sentences without correcting it",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		sentences := generate.SplitSentences(text)
		if sentences == nil {
			sentences = []string{}
		}
		return output(cmd.OutOrStdout(), sentences)
	},
}

// correct runs req on the daemon when --daemon is set, otherwise in process.
func correct(ctx context.Context, req *sudhar.Request) (*sudhar.Response, error) {
	var resp *sudhar.Response
	if useDaemon {
		c := &serve.Client{SockPath: serve.ResolveSocketPath()}
		var err error
		if resp, err = c.Correct(ctx, req); err != nil {
			return nil, err
		}
	} else {
		engine := generate.NewEngine()
		defer engine.Close()
		resp = engine.Correct(ctx, req)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp, nil
}

func init() {
	for _, cmd := range []*cobra.Command{correctCmd, paragraphCmd} {
		cmd.Flags().StringVarP(&modelLabel, "model", "m", "mT5", "model label: mT5, mBART or VartaT5")
		cmd.Flags().IntVar(&maxCandidates, "max", 0, "maximum candidates per sentence (0 = all)")
		cmd.Flags().BoolVar(&useDaemon, "daemon", false, "send the request to the running daemon")
		cmd.Flags().BoolVar(&textOnly, "text", false, "print only the corrected text")
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(splitCmd)
}
