package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	sudhar "github.com/sudhar-ne/sudhar"
	"github.com/sudhar-ne/sudhar/model"
	"github.com/sudhar-ne/sudhar/model/inference"
)

// fakeLoader hands out fakeSessions and counts loads per kind.
type fakeLoader struct {
	mu       sync.Mutex
	loads    map[model.Kind]int
	paths    map[model.Kind]string
	sessions []*fakeSession
	loadErr  error
	generate func(req inference.Request) (*inference.Output, error)
	// gate, when set, holds every load until it is closed.
	gate    chan struct{}
	ctxErrs []error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		loads: make(map[model.Kind]int),
		paths: make(map[model.Kind]string),
	}
}

func (l *fakeLoader) Load(ctx context.Context, spec inference.Spec) (inference.Session, error) {
	l.mu.Lock()
	l.loads[spec.Kind]++
	l.paths[spec.Kind] = spec.Path
	gate := l.gate
	l.mu.Unlock()
	if gate != nil {
		<-gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctxErrs = append(l.ctxErrs, ctx.Err())
	if l.loadErr != nil {
		return nil, &inference.LoadError{Model: spec.Kind, Path: spec.Path, Err: l.loadErr}
	}
	s := &fakeSession{kind: spec.Kind, generate: l.generate}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *fakeLoader) loadCount(k model.Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[k]
}

func (l *fakeLoader) loadContextErrors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.ctxErrs...)
}

func (l *fakeLoader) allSessions() []*fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeSession(nil), l.sessions...)
}

// fakeSession echoes the input without the instruction prefix unless a
// custom generate func is set.
type fakeSession struct {
	kind     model.Kind
	calls    atomic.Int32
	closed   atomic.Bool
	mu       sync.Mutex
	inputs   []string
	generate func(req inference.Request) (*inference.Output, error)
}

func (s *fakeSession) Generate(_ context.Context, req inference.Request) (*inference.Output, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.inputs = append(s.inputs, req.Input)
	s.mu.Unlock()
	if s.closed.Load() {
		return nil, &inference.GenerateError{Model: s.kind, Err: errors.New("session closed")}
	}
	if s.generate != nil {
		return s.generate(req)
	}
	text := strings.TrimPrefix(req.Input, "grammar: ")
	return &inference.Output{
		Sequences: []string{"[" + text + "]", "[" + text + "]", text},
		Scores:    []float64{-0.1, -0.2, -1.5},
	}, nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSession) recordedInputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

func testConfig() *sudhar.Config {
	return sudhar.DefaultConfig()
}

func testEngine(l *fakeLoader) *Engine {
	return NewEngineWithLoader(testConfig(), l)
}
