package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/growfluent/internal/domain"
	"github.com/conorfennell/growfluent/internal/session"
)

// sessionView is the client's view of the active session.
type sessionView struct {
	session.Context
	Current   *session.Item `json:"current,omitempty"`
	Remaining int           `json:"remaining"`
}

func newSessionView(sc session.Context) sessionView {
	v := sessionView{Context: sc, Remaining: sc.Remaining()}
	if item, ok := sc.Current(); ok {
		v.Current = &item
	}
	return v
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		respondJSON(w, http.StatusOK, newSessionView(s.active))
	}
}

// handleStartSession starts a daily, free or exam session for ?language=.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := session.ParseKind(chi.URLParam(r, "kind"))
		if !ok {
			s.handleError(w, r, badRequest("unknown session kind %q", chi.URLParam(r, "kind")))
			return
		}
		lang, err := languageParam(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		sc, err := s.orch.Start(r.Context(), s.active, kind, lang)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		s.active = sc
		respondJSON(w, http.StatusCreated, newSessionView(sc))
	}
}

// handleSessionAnswer grades the answer to the current item.
func (s *Server) handleSessionAnswer() http.HandlerFunc {
	type response struct {
		Session sessionView    `json:"session"`
		Grading domain.Grading `json:"grading"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var answer session.Answer
		if err := decodeJSON(w, r, &answer); err != nil {
			s.handleError(w, r, err)
			return
		}

		// The oracle call runs without the lock, so the session can be read
		// or abandoned meanwhile. Other answers get a conflict.
		s.mu.Lock()
		pending, err := s.orch.BeginGrading(s.active)
		if err != nil {
			s.mu.Unlock()
			s.handleError(w, r, err)
			return
		}
		s.active = pending
		s.mu.Unlock()

		sc, grading, err := s.orch.Grade(r.Context(), pending, answer)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.active.ID != pending.ID || s.active.State != session.Grading {
			s.handleError(w, r, fmt.Errorf("%w: session %s ended while grading", session.ErrInvalidTransition, pending.ID))
			return
		}
		s.active = sc
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, response{Session: newSessionView(sc), Grading: grading})
	}
}

// handleSessionResult records a result the client graded itself.
func (s *Server) handleSessionResult() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var result domain.PracticeResult
		if err := decodeJSON(w, r, &result); err != nil {
			s.handleError(w, r, err)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		sc, err := s.orch.SubmitResult(s.active, result)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		s.active = sc
		respondJSON(w, http.StatusOK, newSessionView(sc))
	}
}

// handleSessionFinish persists a finished session.
func (s *Server) handleSessionFinish() http.HandlerFunc {
	type response struct {
		Session sessionView     `json:"session"`
		Outcome session.Outcome `json:"outcome"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		sc, outcome, err := s.orch.Finish(r.Context(), s.active)
		s.active = sc
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, response{Session: newSessionView(sc), Outcome: outcome})
	}
}

func (s *Server) handleSessionAbandon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		sc, err := s.orch.Abandon(s.active)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		s.active = sc
		respondJSON(w, http.StatusOK, newSessionView(sc))
	}
}

func (s *Server) handleSessionAck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		sc, err := s.orch.Acknowledge(s.active)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		s.active = sc
		respondJSON(w, http.StatusOK, newSessionView(sc))
	}
}
