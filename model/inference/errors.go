package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sudhar-ne/sudhar/model"
)

// LoadError reports that a model could not be made ready for generation.
type LoadError struct {
	Model model.Kind
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s from %s: %v", e.Model, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// GenerateError reports a failed generation call.
type GenerateError struct {
	Model model.Kind
	Err   error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("generate with %s: %v", e.Model, e.Err)
}

func (e *GenerateError) Unwrap() error { return e.Err }

// DecodeError reports a generation result that could not be turned into candidates.
type DecodeError struct {
	Model model.Kind
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s output: %v", e.Model, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusError is a non-200 response from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// retryable reports whether a load failure may succeed on a later attempt:
// transport errors and 5xx responses while the backend warms up.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var mErr *ManifestError
	if errors.As(err, &mErr) {
		return false
	}
	var apiErr *remoteError
	if errors.As(err, &apiErr) {
		return false
	}
	var sErr *StatusError
	if errors.As(err, &sErr) {
		return sErr.StatusCode >= 500
	}
	return true
}

// StaleHandle reports whether err means the backend no longer knows the
// session's model handle, as after a backend restart. The model has to be
// loaded again.
func StaleHandle(err error) bool {
	var sErr *StatusError
	if !errors.As(err, &sErr) {
		return false
	}
	return sErr.StatusCode == http.StatusNotFound || sErr.StatusCode == http.StatusGone
}
