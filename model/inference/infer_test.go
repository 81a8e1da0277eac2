package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudhar-ne/sudhar/model"
)

// fakeBackend serves the load/generate/unload endpoints from canned handlers.
type fakeBackend struct {
	mu        sync.Mutex
	loads     atomic.Int32
	unloads   atomic.Int32
	loadFail  int32 // number of initial loads answered with 503
	lastLoad  loadRequest
	lastGen   generateRequest
	lastAuth  string
	lastReqID string
	generate  func(w http.ResponseWriter, req generateRequest)
}

func (f *fakeBackend) load() loadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLoad
}

func (f *fakeBackend) gen() generateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastGen
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/load", func(w http.ResponseWriter, r *http.Request) {
		n := f.loads.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastAuth = r.Header.Get("Authorization")
		f.lastReqID = r.Header.Get("X-Request-ID")
		if n <= f.loadFail {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&f.lastLoad); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(loadResponse{Handle: "h-" + f.lastLoad.ModelID})
	})
	mux.HandleFunc("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastGen = req
		f.mu.Unlock()
		if f.generate != nil {
			f.generate(w, req)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{
			Sequences:       []string{"म घर जान्छु।", "म घर जान्छु ।"},
			SequencesScores: []float64{-0.1, -0.9},
		})
	})
	mux.HandleFunc("/v1/models/unload", func(w http.ResponseWriter, r *http.Request) {
		f.unloads.Add(1)
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeBackend, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	return NewClient(opts)
}

func writeModelDir(t *testing.T, modelType string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `{"model_type": "` + modelType + `", "architectures": ["X"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0644))
	return dir
}

func TestLoadSendsProfile(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f, Options{APIKey: "secret"})

	sess, err := c.Load(context.Background(), Spec{Kind: model.MBART, Path: "models/mbart"})
	require.NoError(t, err)
	require.NotNil(t, sess)

	lr := f.load()
	assert.Equal(t, "mBART", lr.ModelID)
	assert.Equal(t, "MBartForConditionalGeneration", lr.Architecture)
	assert.Equal(t, "MBartTokenizer", lr.Tokenizer)
	assert.Equal(t, "ne_NP", lr.SrcLang)
	assert.Equal(t, "ne_NP", lr.TgtLang)
	assert.True(t, filepath.IsAbs(lr.Path), "path %q should be absolute", lr.Path)
	f.mu.Lock()
	assert.Equal(t, "Bearer secret", f.lastAuth)
	assert.NotEmpty(t, f.lastReqID)
	f.mu.Unlock()
}

func TestLoadRetriesTransientFailures(t *testing.T) {
	f := &fakeBackend{loadFail: 2}
	c := newTestClient(t, f, Options{LoadAttempts: 3, LoadRetryDelay: time.Millisecond})

	_, err := c.Load(context.Background(), Spec{Kind: model.MT5, Path: "m"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.loads.Load())
}

func TestLoadGivesUpAfterAttempts(t *testing.T) {
	f := &fakeBackend{loadFail: 10}
	c := newTestClient(t, f, Options{LoadAttempts: 2, LoadRetryDelay: time.Millisecond})

	_, err := c.Load(context.Background(), Spec{Kind: model.MT5, Path: "m"})
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, model.MT5, le.Model)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(2), f.loads.Load())
}

func TestLoadVerifyLocalMissingDir(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f, Options{VerifyLocal: true, LoadAttempts: 3})

	_, err := c.Load(context.Background(), Spec{Kind: model.VartaT5, Path: filepath.Join(t.TempDir(), "absent")})
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	var me *ManifestError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, int32(0), f.loads.Load(), "backend must not be called")
}

func TestLoadVerifyLocalWrongFamily(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f, Options{VerifyLocal: true})

	dir := writeModelDir(t, "mbart")
	_, err := c.Load(context.Background(), Spec{Kind: model.MT5, Path: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `model_type "mbart"`)

	dir = writeModelDir(t, "mt5")
	_, err = c.Load(context.Background(), Spec{Kind: model.MT5, Path: dir})
	require.NoError(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:0"})
	_, err := c.Load(context.Background(), Spec{Kind: model.MT5})
	var le *LoadError
	require.True(t, errors.As(err, &le))
}

func TestGenerateRequestShape(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f, Options{})

	sess, err := c.Load(context.Background(), Spec{Kind: model.MBART, Path: "m"})
	require.NoError(t, err)

	out, err := sess.Generate(context.Background(), Request{
		Input:              "grammar: म घर जान्छ।",
		MaxLength:          512,
		NumBeams:           5,
		NumReturnSequences: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"म घर जान्छु।", "म घर जान्छु ।"}, out.Sequences)
	assert.Equal(t, []float64{-0.1, -0.9}, out.Scores)

	gr := f.gen()
	assert.Equal(t, "h-mBART", gr.Handle)
	assert.Equal(t, "grammar: म घर जान्छ।", gr.Inputs)
	assert.Equal(t, 512, gr.MaxLength)
	assert.Equal(t, 5, gr.NumBeams)
	assert.Equal(t, 5, gr.NumReturnSequences)
	assert.Equal(t, "ne_NP", gr.DecoderStartLang)
	assert.True(t, gr.SkipSpecialTokens)
	assert.True(t, gr.OutputScores)
}

func TestGenerateNoDecoderStartForT5(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f, Options{})

	sess, err := c.Load(context.Background(), Spec{Kind: model.VartaT5, Path: "m"})
	require.NoError(t, err)
	_, err = sess.Generate(context.Background(), Request{Input: "x"})
	require.NoError(t, err)
	assert.Empty(t, f.gen().DecoderStartLang)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, req generateRequest)
		decode  bool
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, _ generateRequest) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "error payload",
			handler: func(w http.ResponseWriter, _ generateRequest) {
				w.Write([]byte(`{"error": {"message": "CUDA out of memory"}}`))
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, _ generateRequest) {
				w.Write([]byte(`not json`))
			},
			decode: true,
		},
		{
			name: "length mismatch",
			handler: func(w http.ResponseWriter, _ generateRequest) {
				w.Write([]byte(`{"sequences": ["a", "b"], "sequences_scores": [-1]}`))
			},
			decode: true,
		},
		{
			name: "empty",
			handler: func(w http.ResponseWriter, _ generateRequest) {
				w.Write([]byte(`{"sequences": [], "sequences_scores": []}`))
			},
			decode: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBackend{generate: tt.handler}
			c := newTestClient(t, f, Options{})
			sess, err := c.Load(context.Background(), Spec{Kind: model.MT5, Path: "m"})
			require.NoError(t, err)

			_, err = sess.Generate(context.Background(), Request{Input: "x"})
			require.Error(t, err)

			var de *DecodeError
			var ge *GenerateError
			if tt.decode {
				assert.True(t, errors.As(err, &de), "want DecodeError, got %T: %v", err, err)
			} else {
				assert.True(t, errors.As(err, &ge), "want GenerateError, got %T: %v", err, err)
			}
		})
	}
}

func TestSessionCloseUnloads(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f, Options{})
	sess, err := c.Load(context.Background(), Spec{Kind: model.MT5, Path: "m"})
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	assert.Equal(t, int32(1), f.unloads.Load())
}

func TestHealth(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f, Options{})
	assert.NoError(t, c.Health(context.Background()))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection refused")))
	assert.True(t, retryable(&StatusError{StatusCode: 502}))
	assert.False(t, retryable(&StatusError{StatusCode: 404}))
	assert.False(t, retryable(&remoteError{apiError{Message: "bad"}}))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(nil))
}

func TestStaleHandle(t *testing.T) {
	assert.True(t, StaleHandle(&GenerateError{Model: model.MT5, Err: &StatusError{StatusCode: 404}}))
	assert.True(t, StaleHandle(&StatusError{StatusCode: 410}))
	assert.False(t, StaleHandle(&GenerateError{Model: model.MT5, Err: &StatusError{StatusCode: 500}}))
	assert.False(t, StaleHandle(errors.New("connection refused")))
	assert.False(t, StaleHandle(nil))
}
