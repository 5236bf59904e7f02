// Package web provides an HTTP status and command server for the pfir-bridge daemon.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/sweeney/pfir-bridge/internal/command"
	"github.com/sweeney/pfir-bridge/internal/status"
)

// maxCommandBody bounds POST /command request bodies.
const maxCommandBody = 4096

// Server serves the status page and accepts commands over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	sink       command.Sink
	logger     *zap.SugaredLogger
}

// New creates a Server that reads state from the given tracker and submits
// POSTed commands to sink. A nil sink disables the command endpoint.
func New(addr string, tracker *status.Tracker, sink command.Sink, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{tracker: tracker, sink: sink, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/command", s.handleCommand)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sink == nil {
		http.Error(w, "commands disabled", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd, err := command.DecodeJSON(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.sink.Submit(cmd); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, command.ErrQueueFull) {
			code = http.StatusServiceUnavailable
		}
		s.logger.Warnw("http command dropped", "command", cmd.String(), "error", err)
		http.Error(w, err.Error(), code)
		return
	}

	s.logger.Debugw("http command queued", "command", cmd.String(), "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
}
