// Package inference talks to the model-serving backend that hosts the
// pretrained seq2seq models and runs beam search.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/sudhar-ne/sudhar/model"
)

// Loader makes a model ready for generation.
type Loader interface {
	Load(ctx context.Context, spec Spec) (Session, error)
}

// Session is a loaded tokenizer/model pair.
type Session interface {
	Generate(ctx context.Context, req Request) (*Output, error)
	Close() error
}

// Spec names the model to load and where its files live.
type Spec struct {
	Kind model.Kind
	Path string
}

// Request holds one generation call. Input already carries the instruction prefix.
type Request struct {
	Input              string
	MaxLength          int
	NumBeams           int
	NumReturnSequences int
}

// Output holds decoded sequences and their log-likelihood scores, in beam order.
type Output struct {
	Sequences []string
	Scores    []float64
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	LoadAttempts   int
	LoadRetryDelay time.Duration
	// VerifyLocal checks the model directory on disk before asking the backend to load it.
	VerifyLocal bool
}

// Client loads models on an HTTP inference backend.
type Client struct {
	baseURL     string
	apiKey      string
	attempts    uint
	retryDelay  time.Duration
	verifyLocal bool
	client      *http.Client
}

// NewClient creates a backend client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.LoadAttempts <= 0 {
		opts.LoadAttempts = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		attempts:    uint(opts.LoadAttempts),
		retryDelay:  opts.LoadRetryDelay,
		verifyLocal: opts.VerifyLocal,
		client:      &http.Client{Timeout: opts.Timeout},
	}
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// remoteError is an error payload returned by the backend with a 200 status.
type remoteError struct {
	apiError
}

func (e *remoteError) Error() string {
	return "API error: " + e.Message
}

type loadRequest struct {
	ModelID      string `json:"model_id"`
	Path         string `json:"path"`
	Architecture string `json:"architecture"`
	Tokenizer    string `json:"tokenizer"`
	SrcLang      string `json:"src_lang,omitempty"`
	TgtLang      string `json:"tgt_lang,omitempty"`
}

type loadResponse struct {
	Handle string    `json:"handle"`
	Error  *apiError `json:"error,omitempty"`
}

type generateRequest struct {
	Handle             string `json:"handle"`
	Inputs             string `json:"inputs"`
	MaxLength          int    `json:"max_length"`
	NumBeams           int    `json:"num_beams"`
	NumReturnSequences int    `json:"num_return_sequences"`
	DecoderStartLang   string `json:"decoder_start_lang,omitempty"`
	SkipSpecialTokens  bool   `json:"skip_special_tokens"`
	OutputScores       bool   `json:"output_scores"`
}

type generateResponse struct {
	Sequences       []string  `json:"sequences"`
	SequencesScores []float64 `json:"sequences_scores"`
	Error           *apiError `json:"error,omitempty"`
}

type unloadRequest struct {
	Handle string `json:"handle"`
}

// Load verifies the model directory (when enabled) and asks the backend to load it.
// Transient failures are retried.
func (c *Client) Load(ctx context.Context, spec Spec) (Session, error) {
	if !spec.Kind.Valid() {
		return nil, &LoadError{Model: spec.Kind, Path: spec.Path, Err: errors.New("invalid model kind")}
	}
	if spec.Path == "" {
		return nil, &LoadError{Model: spec.Kind, Err: errors.New("no model path configured")}
	}
	if c.verifyLocal {
		if err := CheckManifest(spec.Path, spec.Kind); err != nil {
			return nil, &LoadError{Model: spec.Kind, Path: spec.Path, Err: err}
		}
	}

	path := spec.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	profile := spec.Kind.Profile()
	reqBody := loadRequest{
		ModelID:      spec.Kind.String(),
		Path:         path,
		Architecture: profile.Architecture,
		Tokenizer:    profile.Tokenizer,
		SrcLang:      profile.SrcLang,
		TgtLang:      profile.TgtLang,
	}

	var handle string
	err := retry.Do(
		func() error {
			body, err := c.post(ctx, "/v1/models/load", reqBody)
			if err != nil {
				return err
			}
			var result loadResponse
			if err := json.Unmarshal(body, &result); err != nil {
				return &remoteError{apiError{Message: fmt.Sprintf("failed to parse response: %v (body: %s)", err, body)}}
			}
			if result.Error != nil {
				return &remoteError{*result.Error}
			}
			if result.Handle == "" {
				return &remoteError{apiError{Message: "empty model handle"}}
			}
			handle = result.Handle
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("model load failed, retrying", "model", spec.Kind, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, &LoadError{Model: spec.Kind, Path: spec.Path, Err: err}
	}

	slog.Info("model loaded", "model", spec.Kind, "path", path, "handle", handle)
	return &httpSession{c: c, kind: spec.Kind, profile: profile, handle: handle}, nil
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// post sends a JSON body and returns the raw response body of a 200 response.
func (c *Client) post(ctx context.Context, path string, in any) ([]byte, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// setHeaders sets common headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

type httpSession struct {
	c       *Client
	kind    model.Kind
	profile model.Profile
	handle  string
}

// Generate runs beam search on the backend and returns decoded sequences with scores.
func (s *httpSession) Generate(ctx context.Context, req Request) (*Output, error) {
	body, err := s.c.post(ctx, "/v1/generate", generateRequest{
		Handle:             s.handle,
		Inputs:             req.Input,
		MaxLength:          req.MaxLength,
		NumBeams:           req.NumBeams,
		NumReturnSequences: req.NumReturnSequences,
		DecoderStartLang:   s.profile.DecoderStartLang,
		SkipSpecialTokens:  true,
		OutputScores:       true,
	})
	if err != nil {
		return nil, &GenerateError{Model: s.kind, Err: err}
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &DecodeError{Model: s.kind, Err: fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))}
	}
	if result.Error != nil {
		return nil, &GenerateError{Model: s.kind, Err: &remoteError{*result.Error}}
	}
	if len(result.Sequences) == 0 {
		return nil, &DecodeError{Model: s.kind, Err: errors.New("no sequences in response")}
	}
	if len(result.Sequences) != len(result.SequencesScores) {
		return nil, &DecodeError{Model: s.kind, Err: fmt.Errorf("%d sequences but %d scores", len(result.Sequences), len(result.SequencesScores))}
	}

	return &Output{Sequences: result.Sequences, Scores: result.SequencesScores}, nil
}

// Close releases the model on the backend.
func (s *httpSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.c.post(ctx, "/v1/models/unload", unloadRequest{Handle: s.handle}); err != nil {
		return fmt.Errorf("unload %s: %w", s.kind, err)
	}
	slog.Debug("model unloaded", "model", s.kind, "handle", s.handle)
	return nil
}
