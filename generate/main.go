// Package generate orchestrates model inference to produce grammar corrections.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sudhar "github.com/sudhar-ne/sudhar"
	"github.com/sudhar-ne/sudhar/model"
	"github.com/sudhar-ne/sudhar/model/inference"
)

// Engine dispatches correction requests to the configured models.
type Engine struct {
	config   *sudhar.Config
	loader   inference.Loader
	registry *Registry
}

// healthChecker is implemented by loaders that can reach their backend
// without loading a model.
type healthChecker interface {
	Health(ctx context.Context) error
}

// NewEngine creates an engine from the on-disk config and the HTTP backend.
func NewEngine() *Engine {
	cfg, err := sudhar.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = sudhar.DefaultConfig()
	}
	return NewEngineWithConfig(cfg)
}

// NewEngineWithConfig creates an engine that loads models through the HTTP backend.
func NewEngineWithConfig(cfg *sudhar.Config) *Engine {
	for _, w := range sudhar.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	client := inference.NewClient(inference.Options{
		BaseURL:        sudhar.ResolveBackendBaseURL(cfg),
		APIKey:         sudhar.ResolveBackendAPIKey(cfg),
		Timeout:        sudhar.BackendTimeout(cfg),
		LoadAttempts:   cfg.Backend.LoadAttempts,
		LoadRetryDelay: time.Duration(cfg.Backend.LoadRetryDelayMS) * time.Millisecond,
		VerifyLocal:    sudhar.VerifyLocalEnabled(cfg),
	})
	return NewEngineWithLoader(cfg, client)
}

// NewEngineWithLoader creates an engine with a custom model loader.
func NewEngineWithLoader(cfg *sudhar.Config, loader inference.Loader) *Engine {
	pathFor := func(k model.Kind) string {
		return sudhar.ResolveModelPath(cfg, k)
	}
	return &Engine{
		config:   cfg,
		loader:   loader,
		registry: NewRegistry(loader, pathFor, sudhar.CacheTTL(cfg), cfg.Cache.Capacity),
	}
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *sudhar.Config {
	return e.config
}

// CheckBackend reports whether the inference backend answers. Loaders that
// cannot check report nil.
func (e *Engine) CheckBackend(ctx context.Context) error {
	h, ok := e.loader.(healthChecker)
	if !ok {
		return nil
	}
	return h.Health(ctx)
}

// Close unloads every model.
func (e *Engine) Close() {
	e.registry.Close()
}

// Generate corrects text with the model named by label. An unknown label
// yields a *model.UnknownError whose message names the label.
func (e *Engine) Generate(ctx context.Context, label, text string) ([]sudhar.Candidate, error) {
	k, err := model.ParseKind(label)
	if err != nil {
		generationsTotal.WithLabelValues("unknown", "unknown_model").Inc()
		return nil, err
	}
	return e.GenerateKind(ctx, k, text)
}

// GenerateKind corrects text with model k and returns unique candidates in
// beam order.
func (e *Engine) GenerateKind(ctx context.Context, k model.Kind, text string) ([]sudhar.Candidate, error) {
	slog.Debug("processing", "model", k)

	lease, err := e.registry.Acquire(ctx, k)
	if err != nil {
		generationsTotal.WithLabelValues(k.String(), "load_error").Inc()
		return nil, err
	}
	defer lease.Release()

	// Check for cancellation before expensive inference
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gen := e.config.Generation
	inputChars.Observe(float64(utf8.RuneCountInString(text)))
	start := time.Now()
	out, err := lease.Session().Generate(ctx, inference.Request{
		Input:              gen.Instruction + text,
		MaxLength:          gen.MaxLength,
		NumBeams:           gen.NumBeams,
		NumReturnSequences: gen.NumReturnSequences,
	})
	generationDuration.WithLabelValues(k.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		generationsTotal.WithLabelValues(k.String(), "error").Inc()
		if inference.StaleHandle(err) {
			// The backend lost the model; the next request loads it again.
			slog.Warn("backend dropped model, evicting", "model", k, "error", err)
			e.registry.Evict(k)
		}
		return nil, err
	}
	if len(out.Sequences) != len(out.Scores) {
		generationsTotal.WithLabelValues(k.String(), "error").Inc()
		return nil, &inference.DecodeError{
			Model: k,
			Err:   fmt.Errorf("%d sequences but %d scores", len(out.Sequences), len(out.Scores)),
		}
	}

	generationsTotal.WithLabelValues(k.String(), "ok").Inc()
	return Rank(out.Sequences, out.Scores), nil
}

// ParagraphResult is the outcome of correcting a paragraph sentence by sentence.
type ParagraphResult struct {
	// Text joins the top candidate of each sentence with single spaces.
	Text string
	// Sentences holds every sentence with its candidates, in input order.
	Sentences []sudhar.Sentence
}

// ProcessParagraph splits paragraph into sentences, corrects each one
// independently with the same model and joins the top candidates. A sentence
// without candidates keeps its original text.
func (e *Engine) ProcessParagraph(ctx context.Context, label, paragraph string) (*ParagraphResult, error) {
	k, err := model.ParseKind(label)
	if err != nil {
		generationsTotal.WithLabelValues("unknown", "unknown_model").Inc()
		return nil, err
	}

	fragments := SplitSentences(paragraph)
	result := &ParagraphResult{Sentences: make([]sudhar.Sentence, 0, len(fragments))}
	parts := make([]string, 0, len(fragments))

	for i, s := range fragments {
		candidates, err := e.GenerateKind(ctx, k, s)
		if err != nil {
			return nil, fmt.Errorf("sentence %d: %w", i+1, err)
		}
		top := s
		if len(candidates) > 0 {
			top = candidates[0].Text
		}
		parts = append(parts, top)
		result.Sentences = append(result.Sentences, sudhar.Sentence{Input: s, Candidates: candidates})
	}

	result.Text = strings.Join(parts, " ")
	return result, nil
}

// Models lists the configured models and whether each is loaded.
func (e *Engine) Models() []sudhar.ModelInfo {
	loaded := make(map[model.Kind]bool)
	for _, k := range e.registry.Loaded() {
		loaded[k] = true
	}
	infos := make([]sudhar.ModelInfo, 0, len(model.Kinds()))
	for _, k := range model.Kinds() {
		infos = append(infos, sudhar.ModelInfo{
			Label:  k.String(),
			Path:   sudhar.ResolveModelPath(e.config, k),
			Loaded: loaded[k],
		})
	}
	return infos
}

// Correct processes a correction request and returns a response.
func (e *Engine) Correct(ctx context.Context, req *sudhar.Request) *sudhar.Response {
	resp := &sudhar.Response{Model: req.Model, Candidates: []sudhar.Candidate{}}

	mode := req.Mode
	if mode == "" {
		mode = sudhar.ModeSentence
	}
	if mode != sudhar.ModeSentence && mode != sudhar.ModeParagraph {
		resp.Error = &sudhar.Error{Code: sudhar.CodeInvalidRequest, Message: "unknown mode: " + req.Mode}
		return resp
	}

	// Skip empty or whitespace-only input
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return resp
	}

	if mode == sudhar.ModeParagraph {
		result, err := e.ProcessParagraph(ctx, req.Model, text)
		if err != nil {
			resp.Error = toError(err)
			return resp
		}
		resp.Paragraph = result.Text
		resp.Sentences = result.Sentences
		for i := range resp.Sentences {
			resp.Sentences[i].Candidates = truncate(resp.Sentences[i].Candidates, req.MaxCandidates)
		}
		return resp
	}

	candidates, err := e.Generate(ctx, req.Model, text)
	if err != nil {
		resp.Error = toError(err)
		return resp
	}
	resp.Candidates = truncate(candidates, req.MaxCandidates)
	return resp
}

func truncate(candidates []sudhar.Candidate, max int) []sudhar.Candidate {
	if max > 0 && len(candidates) > max {
		return candidates[:max]
	}
	return candidates
}

// toError maps an engine error to a wire error.
func toError(err error) *sudhar.Error {
	var (
		loadErr   *inference.LoadError
		genErr    *inference.GenerateError
		decodeErr *inference.DecodeError
	)
	code := sudhar.CodeGenerationError
	switch {
	case errors.Is(err, model.ErrUnknown), errors.Is(err, ErrRegistryClosed):
		code = sudhar.CodeModelUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = sudhar.CodeCancelled
	case errors.As(err, &loadErr):
		code = sudhar.CodeLoadError
	case errors.As(err, &decodeErr):
		code = sudhar.CodeDecodeError
	case errors.As(err, &genErr):
		code = sudhar.CodeGenerationError
	}
	if code != sudhar.CodeModelUnavailable && code != sudhar.CodeCancelled {
		slog.Error("correction failed", "error", err)
	}
	return &sudhar.Error{Code: code, Message: err.Error()}
}
