package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	sudhar "github.com/sudhar-ne/sudhar"
	"github.com/sudhar-ne/sudhar/generate"
	"github.com/sudhar-ne/sudhar/model"
)

const prompt = "> "

var (
	replModel string
	replMode  string
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive correction loop",
	Long: `Read sentences line by line, print a short summary of the candidates
and write a TOML log entry per request to stdout. The prompt and
summaries go to stderr, so stdout can be redirected to a log file.

Commands:
  :model <label>   switch model (mT5, mBART, VartaT5)
  :mode <mode>     switch between sentence and paragraph
  :quit            exit

Examples:
  sudhar repl
  sudhar repl --model mBART > log.toml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := generate.NewEngine()
		defer engine.Close()

		r := &repl{
			corrector: engine,
			in:        cmd.InOrStdin(),
			out:       cmd.OutOrStdout(),
			tty:       cmd.ErrOrStderr(),
			model:     replModel,
			mode:      replMode,
			session:   uuid.NewString(),
		}
		if f, ok := r.in.(*os.File); ok {
			r.interactive = term.IsTerminal(int(f.Fd()))
		}
		return r.run(cmd.Context())
	},
}

// corrector is the part of the engine the REPL drives.
type corrector interface {
	Correct(ctx context.Context, req *sudhar.Request) *sudhar.Response
}

type repl struct {
	corrector   corrector
	in          io.Reader
	out         io.Writer
	tty         io.Writer
	interactive bool
	model       string
	mode        string
	session     string
	reqID       int
}

// logFile is the TOML log layout. Each write appends one [[entries]] table,
// so a redirected log stays a valid TOML document.
type logFile struct {
	Entries []logEntry `toml:"entries"`
}

// logEntry is one request/response pair in the TOML log.
type logEntry struct {
	Time       time.Time      `toml:"time"`
	Session    string         `toml:"session"`
	Request    logRequest     `toml:"request"`
	Paragraph  string         `toml:"paragraph,omitempty"`
	Candidates []logCandidate `toml:"candidates,omitempty"`
	Sentences  []logSentence  `toml:"sentences,omitempty"`
	Error      *logError      `toml:"error,omitempty"`
}

type logRequest struct {
	ID    int    `toml:"id"`
	Model string `toml:"model"`
	Mode  string `toml:"mode"`
	Text  string `toml:"text"`
}

type logCandidate struct {
	Sequence string  `toml:"sequence"`
	Score    float64 `toml:"score"`
}

type logSentence struct {
	Input      string         `toml:"input"`
	Candidates []logCandidate `toml:"candidates"`
}

type logError struct {
	Code    string `toml:"code"`
	Message string `toml:"message"`
}

func (r *repl) run(ctx context.Context) error {
	if r.interactive {
		fmt.Fprintf(r.tty, "sudhar repl (model %s, mode %s)\n", r.model, r.mode)
		fmt.Fprintf(r.tty, "commands: :model <label>  :mode <sentence|paragraph>  :quit\n\n")
	}

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		if r.interactive {
			fmt.Fprint(r.tty, prompt)
		}
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-errc:
				return err
			default:
				return nil
			}
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if text == ":quit" || text == ":q" {
			return nil
		}
		if strings.HasPrefix(text, ":") {
			r.command(text)
			continue
		}

		r.reqID++
		req := &sudhar.Request{
			RequestID: r.reqID,
			SessionID: r.session,
			Model:     r.model,
			Text:      text,
			Mode:      r.mode,
		}
		resp := r.corrector.Correct(ctx, req)
		r.summarize(resp)
		if err := r.writeEntry(req, resp); err != nil {
			return err
		}
	}
}

func (r *repl) command(text string) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ":model":
		if _, err := model.ParseKind(arg); err != nil {
			fmt.Fprintf(r.tty, "error: %v\n", err)
			return
		}
		r.model = arg
		fmt.Fprintf(r.tty, "model: %s\n", r.model)
	case ":mode":
		if arg != sudhar.ModeSentence && arg != sudhar.ModeParagraph {
			fmt.Fprintf(r.tty, "error: unknown mode %q\n", arg)
			return
		}
		r.mode = arg
		fmt.Fprintf(r.tty, "mode: %s\n", r.mode)
	default:
		fmt.Fprintf(r.tty, "error: unknown command %s\n", name)
	}
}

// summarize prints a brief result on the terminal.
func (r *repl) summarize(resp *sudhar.Response) {
	switch {
	case resp.Error != nil:
		fmt.Fprintf(r.tty, "error [%s]: %s\n", resp.Error.Code, resp.Error.Message)
	case resp.Paragraph != "":
		fmt.Fprintf(r.tty, "  %s\n", resp.Paragraph)
	case len(resp.Candidates) == 0:
		fmt.Fprintf(r.tty, "(no candidates)\n")
	default:
		for i, c := range resp.Candidates {
			fmt.Fprintf(r.tty, "  %d. [%.4f] %s\n", i+1, c.Probability, c.Text)
		}
	}
	fmt.Fprintln(r.tty)
}

func (r *repl) writeEntry(req *sudhar.Request, resp *sudhar.Response) error {
	mode := req.Mode
	if mode == "" {
		mode = sudhar.ModeSentence
	}
	entry := logEntry{
		Time:    time.Now().UTC().Truncate(time.Second),
		Session: req.SessionID,
		Request: logRequest{
			ID:    req.RequestID,
			Model: req.Model,
			Mode:  mode,
			Text:  req.Text,
		},
		Paragraph:  resp.Paragraph,
		Candidates: toLogCandidates(resp.Candidates),
	}
	for _, s := range resp.Sentences {
		entry.Sentences = append(entry.Sentences, logSentence{
			Input:      s.Input,
			Candidates: toLogCandidates(s.Candidates),
		})
	}
	if resp.Error != nil {
		entry.Error = &logError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", strings.Repeat("═", 60))
	if err := toml.NewEncoder(&buf).Encode(logFile{Entries: []logEntry{entry}}); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := r.out.Write(buf.Bytes())
	return err
}

func toLogCandidates(candidates []sudhar.Candidate) []logCandidate {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]logCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = logCandidate{Sequence: c.Text, Score: c.Probability}
	}
	return out
}

func init() {
	replCmd.Flags().StringVarP(&replModel, "model", "m", "mT5", "model label: mT5, mBART or VartaT5")
	replCmd.Flags().StringVar(&replMode, "mode", sudhar.ModeSentence, "sentence or paragraph")

	rootCmd.AddCommand(replCmd)
}
