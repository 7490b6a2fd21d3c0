// Package web exposes the scheduler as a JSON API for the browser client.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/conorfennell/growfluent/internal/deck"
	"github.com/conorfennell/growfluent/internal/domain"
	"github.com/conorfennell/growfluent/internal/oracle"
	"github.com/conorfennell/growfluent/internal/session"
	"github.com/conorfennell/growfluent/internal/storage"
)

// SourceStore lists and removes deck sources.
type SourceStore interface {
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	DeleteSource(ctx context.Context, sourceID int64) error
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Store        storage.Store
	Orchestrator *session.Orchestrator
	Oracle       oracle.Oracle
	Sources      SourceStore
	Importer     *deck.Importer
	Logger       *slog.Logger
	// AllowedOrigins are the CORS origins of the browser client.
	AllowedOrigins []string
	// RequestTimeout bounds every request. Zero means no timeout.
	RequestTimeout time.Duration
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	store    storage.Store
	orch     *session.Orchestrator
	oracle   oracle.Oracle
	sources  SourceStore
	importer *deck.Importer
	logger   *slog.Logger
	router   chi.Router

	// There is one active session per server; mu also serializes the
	// operations on it.
	mu     sync.Mutex
	active session.Context
}

// NewServer creates and configures a new server.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{
		store:    d.Store,
		orch:     d.Orchestrator,
		oracle:   d.Oracle,
		sources:  d.Sources,
		importer: d.Importer,
		logger:   d.Logger.With("component", "web"),
		router:   chi.NewRouter(),
	}
	s.routes(d)
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the middleware chain and the API routes.
func (s *Server) routes(d Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	s.router.Use(chimiddleware.Recoverer)
	if d.RequestTimeout > 0 {
		s.router.Use(chimiddleware.Timeout(d.RequestTimeout))
	}

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/cards", s.handleGetCards())
		r.Post("/cards", s.handlePostCard())
		r.Delete("/cards/{id}", s.handleDeleteCard())
		r.Get("/due", s.handleGetDue())

		r.Get("/session", s.handleGetSession())
		r.Post("/session/answer", s.handleSessionAnswer())
		r.Post("/session/result", s.handleSessionResult())
		r.Post("/session/finish", s.handleSessionFinish())
		r.Post("/session/abandon", s.handleSessionAbandon())
		r.Post("/session/ack", s.handleSessionAck())
		r.Post("/session/{kind}", s.handleStartSession())

		r.Get("/exams", s.handleGetExams())
		r.Get("/stats", s.handleGetStats())
		r.Post("/sentences", s.handlePostSentence())
		r.Post("/pronunciation", s.handlePostPronunciation())
		r.Post("/audio", s.handlePostAudio())

		// Source management routes
		r.Get("/sources", s.handleGetSources())
		r.Post("/sources", s.handlePostSource())
		r.Delete("/sources/{id}", s.handleDeleteSource())
		r.Post("/sync", s.handlePostSync())
	})
}

// languageParam reads the required ?language= query parameter.
func languageParam(r *http.Request) (domain.Language, error) {
	raw := r.URL.Query().Get("language")
	if raw == "" {
		return "", badRequest("language is required")
	}
	lang, err := domain.ParseLanguage(raw)
	if err != nil {
		return "", badRequest("%v", err)
	}
	return lang, nil
}

// optionalLanguage reads ?language= when present.
func optionalLanguage(r *http.Request) (*domain.Language, error) {
	if r.URL.Query().Get("language") == "" {
		return nil, nil
	}
	lang, err := languageParam(r)
	if err != nil {
		return nil, err
	}
	return &lang, nil
}

type sourceView struct {
	ID          int64           `json:"id"`
	Path        string          `json:"path"`
	Type        string          `json:"type"`
	Language    domain.Language `json:"language"`
	LastScanned *time.Time      `json:"lastScanned,omitempty"`
}

func newSourceView(src storage.Source) sourceView {
	v := sourceView{ID: src.ID, Path: src.Path, Type: src.Type, Language: src.Language}
	if src.LastScanned.Valid {
		t := src.LastScanned.Time
		v.LastScanned = &t
	}
	return v
}

// handleGetSources lists the registered deck sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.sources.GetAllSources(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		views := make([]sourceView, 0, len(sources))
		for _, src := range sources {
			views = append(views, newSourceView(src))
		}
		respondJSON(w, http.StatusOK, views)
	}
}

// handlePostSource registers a deck source and imports it right away.
func (s *Server) handlePostSource() http.HandlerFunc {
	type request struct {
		Path     string `json:"path"`
		Language string `json:"language"`
	}
	type response struct {
		Source sourceView   `json:"source"`
		Result *syncSummary `json:"result,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			s.handleError(w, r, err)
			return
		}
		if req.Path == "" {
			s.handleError(w, r, badRequest("path cannot be empty"))
			return
		}
		lang, err := domain.ParseLanguage(req.Language)
		if err != nil {
			s.handleError(w, r, badRequest("%v", err))
			return
		}

		src, err := s.importer.AddSource(r.Context(), req.Path, lang)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		resp := response{Source: newSourceView(src)}
		res, err := s.importer.SyncSource(r.Context(), src)
		if err != nil {
			s.logger.Warn("Initial import of source failed", "id", src.ID, "error", err)
		} else {
			sum := newSyncSummary(res)
			resp.Result = &sum
		}
		respondJSON(w, http.StatusCreated, resp)
	}
}

// handleDeleteSource removes a source. Its cards stay in the collection.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			s.handleError(w, r, badRequest("invalid source ID"))
			return
		}
		if err := s.sources.DeleteSource(r.Context(), id); err != nil {
			s.handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type syncSummary struct {
	SourceID int64    `json:"sourceId"`
	Path     string   `json:"path"`
	Parsed   int      `json:"parsed"`
	Inserted int      `json:"inserted"`
	Orphaned int      `json:"orphaned"`
	Errors   []string `json:"errors,omitempty"`
}

func newSyncSummary(res deck.Result) syncSummary {
	sum := syncSummary{
		SourceID: res.SourceID,
		Path:     res.Path,
		Parsed:   res.Parsed,
		Inserted: res.Inserted,
		Orphaned: res.Orphaned,
	}
	for _, err := range res.Errors {
		sum.Errors = append(sum.Errors, err.Error())
	}
	return sum
}

// handlePostSync re-imports every source in the foreground.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := s.importer.SyncAll(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		out := make([]syncSummary, 0, len(results))
		for _, res := range results {
			out = append(out, newSyncSummary(res))
		}
		respondJSON(w, http.StatusOK, out)
	}
}
