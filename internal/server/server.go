// Package server is the HTTP and WebSocket shell: one battle engine per
// session, REST intents, and a snapshot stream per session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/pefman/poke-duel/internal/engine"
	"github.com/pefman/poke-duel/internal/logging"
	"github.com/pefman/poke-duel/internal/models"
	"github.com/pefman/poke-duel/internal/stats"
)

// Provider is the roster provider the shell and its engines need.
type Provider interface {
	engine.Provider
	ListRoster(ctx context.Context) []models.RosterEntry
}

const startTimeout = 15 * time.Second

// Session limits used when none are configured.
const (
	DefaultMaxSessions = 1000
	DefaultSessionTTL  = 30 * time.Minute
)

// Limits bound the number of live sessions. A session that has seen no
// request for TTL and has no open websocket is expired.
type Limits struct {
	MaxSessions int
	SessionTTL  time.Duration
}

type session struct {
	engine   *engine.Engine
	lastSeen time.Time
	conns    int
}

type Server struct {
	provider Provider
	stats    *stats.Recorder
	opts     engine.Options
	limits   Limits
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	validate *validator.Validate
	upgrader websocket.Upgrader
}

// New builds a shell. opts are applied to every session's engine; Name and
// Recorder are filled in per session.
func New(p Provider, rec *stats.Recorder, opts engine.Options) *Server {
	if rec == nil {
		rec = stats.NewRecorder()
	}
	return &Server{
		provider: p,
		stats:    rec,
		opts:     opts,
		limits:   Limits{MaxSessions: DefaultMaxSessions, SessionTTL: DefaultSessionTTL},
		now:      time.Now,
		sessions: make(map[string]*session),
		validate: validator.New(),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// SetLimits replaces the session limits. Non-positive values keep the
// defaults.
func (s *Server) SetLimits(l Limits) {
	if l.MaxSessions <= 0 {
		l.MaxSessions = DefaultMaxSessions
	}
	if l.SessionTTL <= 0 {
		l.SessionTTL = DefaultSessionTTL
	}
	s.mu.Lock()
	s.limits = l
	s.mu.Unlock()
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	api.HandleFunc("/roster", s.handleRoster).Methods(http.MethodGet)
	api.HandleFunc("/stats/today", s.handleStatsToday).Methods(http.MethodGet)
	api.HandleFunc("/stats/today", s.handleResetToday).Methods(http.MethodDelete)
	api.HandleFunc("/stats/{player}", s.handleStats).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.withSession(s.handleGetSession)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/battle", s.withSession(s.handleStartBattle)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/attack", s.withSession(s.handleAttack)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/reset", s.withSession(s.handleReset)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/ws", s.withSession(s.handleWS)).Methods(http.MethodGet)
	return r
}

// Close stops every session engine.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.engine.Close()
		delete(s.sessions, id)
	}
}

// Session returns the engine of session id and marks the session as used.
func (s *Server) Session(id string) (*engine.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess.engine, true
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

var errTooManySessions = errors.New("too many sessions")

func (s *Server) createSession() (string, *engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	if len(s.sessions) >= s.limits.MaxSessions {
		return "", nil, errTooManySessions
	}
	id := uuid.NewString()
	opts := s.opts
	opts.Name = id
	opts.Recorder = s.stats
	e := engine.New(s.provider, opts)
	s.sessions[id] = &session{engine: e, lastSeen: s.now()}
	logging.Info("session created", logging.Fields{logging.FieldSession: id})
	return id, e, nil
}

// expireLocked closes idle sessions without a websocket. Caller holds s.mu.
func (s *Server) expireLocked() {
	cutoff := s.now().Add(-s.limits.SessionTTL)
	for id, sess := range s.sessions {
		if sess.conns == 0 && sess.lastSeen.Before(cutoff) {
			sess.engine.Close()
			delete(s.sessions, id)
			logging.Info("session expired", logging.Fields{logging.FieldSession: id})
		}
	}
}

// attach and detach track open websockets, which keep a session alive.
func (s *Server) attach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.conns++
		sess.lastSeen = s.now()
	}
}

func (s *Server) detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.conns--
		sess.lastSeen = s.now()
	}
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, id string, e *engine.Engine)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		e, ok := s.Session(id)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		h(w, r, id, e)
	}
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.provider.ListRoster(r.Context()))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Get(mux.Vars(r)["player"]))
}

func (s *Server) handleStatsToday(w http.ResponseWriter, r *http.Request) {
	h, ok := s.stats.BiggestHitToday()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleResetToday(w http.ResponseWriter, r *http.Request) {
	s.stats.ResetDaily()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, e, err := s.createSession()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "state": e.Snapshot()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id string, e *engine.Engine) {
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	sess.engine.Close()
	w.WriteHeader(http.StatusNoContent)
}

type startRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleStartBattle(w http.ResponseWriter, r *http.Request, id string, e *engine.Engine) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), startTimeout)
	defer cancel()
	if err := e.StartBattle(ctx, req.Name); err != nil {
		code := startErrorStatus(err)
		logging.Error("start battle failed", err, logging.Fields{logging.FieldSession: id, logging.FieldPlayer: req.Name})
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request, id string, e *engine.Engine) {
	if err := e.AttemptPlayerAttack(); err != nil {
		writeError(w, attackErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, e.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, id string, e *engine.Engine) {
	e.Reset()
	writeJSON(w, http.StatusOK, e.Snapshot())
}

func startErrorStatus(err error) int {
	if errors.Is(err, engine.ErrEmptyName) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func attackErrorStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrNoBattle), errors.Is(err, engine.ErrNotPlayerTurn), errors.Is(err, engine.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
		"status":  code,
	})
}
