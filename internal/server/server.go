// Package server exposes the engine over HTTP and websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datachat/internal/engine"
	"github.com/KaramelBytes/datachat/internal/journal"
	"github.com/KaramelBytes/datachat/internal/respond"
	"github.com/KaramelBytes/datachat/internal/session"
)

// MaxUploadBytes caps one uploaded dataset.
const MaxUploadBytes = 32 << 20

// History lists recorded turns; *journal.Journal satisfies it.
type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]journal.Entry, error)
}

// Server routes chat events to an engine.
type Server struct {
	eng     *engine.Engine
	journal History
	log     *zap.Logger
}

// New returns a Server. j may be nil when no journal is configured.
func New(eng *engine.Engine, j History, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{eng: eng, journal: j, log: log.Named("server")}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Post("/dataset", s.upload)
		r.Post("/query", s.query)
		r.Delete("/", s.evict)
		r.Get("/history", s.history)
		r.Get("/turns", s.turns)
	})
	r.Get("/v1/ws/{userID}", s.serveWS)
	return r
}

// NewHTTPServer wraps h with the timeouts used in production.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// turns can outlast any fixed write deadline
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func userID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "userID"))
}

func parts(p []respond.Part) []respond.Part {
	if p == nil {
		return []respond.Part{}
	}
	return p
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			Error(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		Error(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		Error(w, http.StatusBadRequest, "could not read upload")
		return
	}
	out := s.eng.Handle(r.Context(), engine.Event{
		UserID:   userID(r),
		Kind:     engine.EventFile,
		FileName: hdr.Filename,
		Data:     data,
	})
	JSON(w, http.StatusOK, parts(out))
}

type queryRequest struct {
	Text string `json:"text"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}
	out := s.eng.Handle(r.Context(), textEvent(userID(r), req.Text))
	JSON(w, http.StatusOK, parts(out))
}

func textEvent(user, text string) engine.Event {
	if strings.TrimSpace(text) == "/start" {
		return engine.Event{UserID: user, Kind: engine.EventStart}
	}
	return engine.Event{UserID: user, Kind: engine.EventText, Text: text}
}

func (s *Server) evict(w http.ResponseWriter, r *http.Request) {
	unlock, err := s.eng.Store().Lock(r.Context(), userID(r))
	if err != nil {
		Error(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	defer unlock()
	if !s.eng.Store().Evict(userID(r)) {
		Error(w, http.StatusNotFound, session.ErrNoSession.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyResponse struct {
	SessionID  string            `json:"session_id"`
	SourceName string            `json:"source_name"`
	Rows       int               `json:"rows"`
	Columns    []string          `json:"columns"`
	Turns      int               `json:"turns"`
	History    []session.Message `json:"history"`
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	// the table may be mutated by a running turn
	unlock, err := s.eng.Store().Lock(r.Context(), userID(r))
	if err != nil {
		Error(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	defer unlock()
	sess, ok := s.eng.Store().Get(userID(r))
	if !ok {
		Error(w, http.StatusNotFound, session.ErrNoSession.Error())
		return
	}
	JSON(w, http.StatusOK, historyResponse{
		SessionID:  sess.ID,
		SourceName: sess.SourceName,
		Rows:       sess.Table.NumRows(),
		Columns:    sess.Table.Columns(),
		Turns:      sess.Turns,
		History:    sess.History,
	})
}

func (s *Server) turns(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		Error(w, http.StatusNotFound, "journal is not enabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.journal.Recent(r.Context(), userID(r), limit)
	if err != nil {
		s.log.Error("read journal", zap.Error(err))
		Error(w, http.StatusInternalServerError, "could not read journal")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	JSON(w, http.StatusOK, entries)
}
