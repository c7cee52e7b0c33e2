// Package server exposes one long-lived Guardian over loopback HTTP so
// that port ownership, rate windows and shell history persist across the
// host's individual checks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/torkjacobs/tork-guardian/internal/guardian"
	"github.com/torkjacobs/tork-guardian/internal/interceptor"
	"github.com/torkjacobs/tork-guardian/internal/netaccess"
	"github.com/torkjacobs/tork-guardian/internal/store"
)

const maxBodyBytes = 1 << 20

type Config struct {
	// ListenAddr defaults to "127.0.0.1:0" (random port on loopback).
	ListenAddr string

	Guardian *guardian.Guardian

	// Store, when set, backs GET /v1/activity?source=store and is cleared
	// together with the in-memory log.
	Store *store.Store

	Logger *slog.Logger
}

type Server struct {
	cfg      Config
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

func New(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Handler returns the routing table. It is usable without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/decide", s.handleDecide)
	mux.HandleFunc("POST /v1/llm", s.handleLLM)
	mux.HandleFunc("GET /v1/activity", s.handleActivity)
	mux.HandleFunc("DELETE /v1/activity", s.handleClearActivity)
	mux.HandleFunc("GET /v1/report", s.handleReport)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAddr returns the bound address. Only valid after ListenAndServe
// has been called.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("decision server listening", "addr", "http://"+ln.Addr().String())
	return srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var ev guardian.Event
	if !decodeBody(w, r, &ev) {
		return
	}

	v, err := s.cfg.Guardian.Decide(ev)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleLLM(w http.ResponseWriter, r *http.Request) {
	var req interceptor.LLMRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.cfg.Guardian.GovernLLM(r.Context(), req)
	var denied *interceptor.GovernanceDeniedError
	switch {
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":         denied.Error(),
			"message_index": denied.MessageIndex,
			"response":      denied.Response,
		})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("source") != "store" {
		entries := s.cfg.Guardian.ActivityLog()
		if entries == nil {
			entries = []netaccess.ActivityEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	if s.cfg.Store == nil {
		writeError(w, http.StatusNotFound, "no activity store configured")
		return
	}
	f := store.Filter{
		SkillID:    q.Get("skill"),
		Action:     netaccess.Action(q.Get("action")),
		DeniedOnly: q.Get("denied") == "true",
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	entries, err := s.cfg.Store.List(r.Context(), f)
	if err != nil {
		s.logger.Warn("activity store query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "activity store query failed")
		return
	}
	if entries == nil {
		entries = []netaccess.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearActivity(w http.ResponseWriter, r *http.Request) {
	s.cfg.Guardian.ClearActivityLog()
	if s.cfg.Store != nil {
		if err := s.cfg.Store.Clear(r.Context()); err != nil {
			s.logger.Warn("activity store clear failed", "error", err)
			writeError(w, http.StatusInternalServerError, "activity store clear failed")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Guardian.NetworkReport())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
