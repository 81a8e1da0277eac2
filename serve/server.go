// Package serve exposes the correction engine over a Unix domain socket.
// Each connection carries one JSON request line and receives one JSON
// response line.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	sudhar "github.com/sudhar-ne/sudhar"
	"github.com/sudhar-ne/sudhar/generate"
)

// Corrector processes a correction request and returns a response.
type Corrector interface {
	Correct(ctx context.Context, req *sudhar.Request) *sudhar.Response
	Models() []sudhar.ModelInfo
	Close()
}

// engineRef counts requests in flight on one engine, so a reload can let
// them finish before the engine is closed.
type engineRef struct {
	Corrector
	inflight sync.WaitGroup
}

// sessionEntry tracks a cancellable in-flight request for a session.
type sessionEntry struct {
	requestID int
	cancel    context.CancelFunc
}

// Server listens on a Unix domain socket for correction requests.
type Server struct {
	listener  net.Listener
	sockPath  string
	newEngine func() Corrector
	closeOnce sync.Once

	mu       sync.Mutex
	closed   bool
	engine   *engineRef
	sessions map[string]sessionEntry
}

const backendCheckTimeout = 5 * time.Second

// NewServer creates a new IPC server bound to the given socket path.
func NewServer(sockPath string) (*Server, error) {
	engine := generate.NewEngine()
	ctx, cancel := context.WithTimeout(context.Background(), backendCheckTimeout)
	if err := engine.CheckBackend(ctx); err != nil {
		slog.Warn("inference backend unreachable, models load on first request", "error", err)
	}
	cancel()

	s, err := NewServerWithCorrector(sockPath, engine)
	if err != nil {
		engine.Close()
		return nil, err
	}
	s.newEngine = func() Corrector { return generate.NewEngine() }
	return s, nil
}

// NewServerWithCorrector creates a new IPC server with a custom Corrector.
// A server built this way cannot rebuild its engine on "reload".
func NewServerWithCorrector(sockPath string, corrector Corrector) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		sockPath: sockPath,
		engine:   &engineRef{Corrector: corrector},
		sessions: make(map[string]sessionEntry),
	}, nil
}

// SockPath returns the socket the server listens on.
func (s *Server) SockPath() string {
	return s.sockPath
}

// Serve accepts connections and handles requests. It returns nil once the
// server has been closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server, unloads every model and removes the socket
// file. It is safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.listener.Close()
		s.mu.Lock()
		s.closed = true
		for sid, entry := range s.sessions {
			entry.cancel()
			delete(s.sessions, sid)
		}
		engine := s.engine
		s.mu.Unlock()
		engine.Close()
		os.Remove(s.sockPath)
	})
}

func (s *Server) currentEngine() Corrector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Corrector
}

// acquireEngine returns the current engine with an in-flight slot taken.
// The caller must call inflight.Done.
func (s *Server) acquireEngine() *engineRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := s.engine
	ref.inflight.Add(1)
	return ref
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "data", string(raw))

	// Check if this is a config request (has "action" field)
	var cfgReq sudhar.ConfigRequest
	if err := json.Unmarshal(raw, &cfgReq); err == nil && cfgReq.Action != "" {
		s.handleConfigRequest(conn, &cfgReq)
		return
	}

	var req sudhar.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid request", "error", err)
		writeJSON(conn, &sudhar.Response{
			Candidates: []sudhar.Candidate{},
			Error:      &sudhar.Error{Code: sudhar.CodeInvalidRequest, Message: err.Error()},
		})
		return
	}

	// Cancel any in-flight request for this session and create a new context.
	ctx, cancel := context.WithCancel(context.Background())
	sid := req.SessionID
	reqID := req.RequestID
	if sid != "" {
		s.mu.Lock()
		if prev, ok := s.sessions[sid]; ok {
			prev.cancel()
		}
		s.sessions[sid] = sessionEntry{requestID: reqID, cancel: cancel}
		s.mu.Unlock()
	}
	defer func() {
		cancel()
		if sid != "" {
			s.mu.Lock()
			if cur, ok := s.sessions[sid]; ok && cur.requestID == reqID {
				delete(s.sessions, sid)
			}
			s.mu.Unlock()
		}
	}()

	ref := s.acquireEngine()
	resp := ref.Correct(ctx, &req)
	ref.inflight.Done()

	// A superseded request gets no reply; the client has already moved on.
	if ctx.Err() != nil {
		return
	}

	resp.RequestID = req.RequestID
	writeJSON(conn, resp)
}

func (s *Server) handleConfigRequest(conn net.Conn, req *sudhar.ConfigRequest) {
	var resp sudhar.ConfigResponse

	switch req.Action {
	case "get":
		cfg, err := sudhar.LoadConfig()
		if err != nil {
			resp.Error = &sudhar.Error{Code: sudhar.CodeConfigError, Message: err.Error()}
		} else {
			resp.Config = cfg
		}

	case "reload":
		// Respond immediately; unloading the old models can wait on the backend.
		go s.reloadEngine()
		cfg, err := sudhar.LoadConfig()
		if err != nil {
			resp.Error = &sudhar.Error{Code: sudhar.CodeConfigError, Message: err.Error()}
		} else {
			resp.Config = cfg
		}

	case "defaults":
		resp.Config = sudhar.DefaultConfig()

	case "validate":
		cfg, err := sudhar.LoadConfig()
		if err != nil {
			resp.Error = &sudhar.Error{Code: sudhar.CodeConfigError, Message: err.Error()}
		} else {
			resp.Warnings = sudhar.ValidateConfig(cfg)
		}

	case "models":
		ref := s.acquireEngine()
		resp.Models = ref.Models()
		ref.inflight.Done()

	default:
		resp.Error = &sudhar.Error{
			Code:    sudhar.CodeUnknownAction,
			Message: "unknown config action: " + req.Action,
		}
	}

	writeJSON(conn, &resp)
}

func (s *Server) reloadEngine() {
	if s.newEngine == nil {
		slog.Warn("engine reload not supported")
		return
	}
	next := &engineRef{Corrector: s.newEngine()}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		next.Close()
		return
	}
	prev := s.engine
	s.engine = next
	s.mu.Unlock()

	// Requests already running on the old engine keep their sessions.
	prev.inflight.Wait()
	prev.Close()
	slog.Info("engine reloaded")
}

func writeJSON(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	slog.Debug("response", "data", string(data))

	conn.Write(append(data, '\n'))
}
