// Package sudhar defines the request/response types for sudhar IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line.
package sudhar

// Correction modes accepted in Request.Mode.
const (
	ModeSentence  = "sentence"
	ModeParagraph = "paragraph"
)

// Request is sent from a client to the daemon.
type Request struct {
	// RequestID is a per-session incrementing identifier assigned by the client.
	// The daemon echoes it back in the response for ordering.
	RequestID int `json:"request_id"`
	// SessionID identifies the client session. A newer request from the same
	// session cancels the one still in flight.
	SessionID string `json:"session_id,omitempty"`
	// Model is the model label: "mT5", "mBART" or "VartaT5".
	Model string `json:"model"`
	// Text is the Nepali input to correct.
	Text string `json:"text"`
	// Mode is "sentence" (default) or "paragraph".
	Mode string `json:"mode,omitempty"`
	// MaxCandidates truncates the candidate list. Zero returns every unique candidate.
	MaxCandidates int `json:"max_candidates,omitempty"`
}

// Candidate is one corrected sentence produced by beam search.
type Candidate struct {
	// Text is the corrected sentence.
	Text string `json:"sequence" yaml:"sequence"`
	// Probability is exp(sequence score) as reported by the model.
	Probability float64 `json:"score" yaml:"score"`
}

// Sentence is the correction of a single fragment of a paragraph.
type Sentence struct {
	Input      string      `json:"input" yaml:"input"`
	Candidates []Candidate `json:"candidates" yaml:"candidates"`
}

// Response is sent from the daemon back to the client.
type Response struct {
	// RequestID is echoed from the request for ordering on the client side.
	RequestID int `json:"request_id" yaml:"request_id"`
	// Model is the label that served the request.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// Candidates holds unique corrections in beam-search order (sentence mode).
	Candidates []Candidate `json:"candidates" yaml:"candidates"`
	// Paragraph is the joined top correction per sentence (paragraph mode).
	Paragraph string `json:"paragraph,omitempty" yaml:"paragraph,omitempty"`
	// Sentences holds the per-sentence results (paragraph mode).
	Sentences []Sentence `json:"sentences,omitempty" yaml:"sentences,omitempty"`
	// Error is set when the daemon cannot fulfill the request.
	Error *Error `json:"error,omitempty" yaml:"error,omitempty"`
}

// Error describes a daemon-side error returned to the client.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "model_unavailable", "load_error").
	Code string `json:"code" yaml:"code"`
	// Message is a human-readable error description.
	Message string `json:"message" yaml:"message"`
}

// Error codes.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeModelUnavailable = "model_unavailable"
	CodeLoadError        = "load_error"
	CodeGenerationError  = "generation_error"
	CodeDecodeError      = "decode_error"
	CodeCancelled        = "cancelled"
	CodeConfigError      = "config_error"
	CodeUnknownAction    = "unknown_action"
)

// ModelInfo describes one configured model.
type ModelInfo struct {
	Label  string `json:"label" yaml:"label"`
	Path   string `json:"path" yaml:"path"`
	Loaded bool   `json:"loaded" yaml:"loaded"`
}

// ConfigRequest is sent from a client for configuration operations.
type ConfigRequest struct {
	// Action is the config operation: "get", "reload", "defaults", "validate" or "models".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload", and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Warnings contains configuration warnings (for "validate" action).
	Warnings []string `json:"warnings,omitempty"`
	// Models lists configured models (for "models" action).
	Models []ModelInfo `json:"models,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
