package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/growfluent/internal/domain"
)

func (s *Server) handleGetCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lang, err := optionalLanguage(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		cards, err := s.store.LoadCards(r.Context(), lang)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		if cards == nil {
			cards = []domain.Card{}
		}
		respondJSON(w, http.StatusOK, cards)
	}
}

// handlePostCard enriches a phrase and adds it to the collection.
func (s *Server) handlePostCard() http.HandlerFunc {
	type request struct {
		Phrase   string `json:"phrase"`
		Language string `json:"language"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			s.handleError(w, r, err)
			return
		}
		if strings.TrimSpace(req.Phrase) == "" {
			s.handleError(w, r, badRequest("phrase cannot be empty"))
			return
		}
		lang, err := domain.ParseLanguage(req.Language)
		if err != nil {
			s.handleError(w, r, badRequest("%v", err))
			return
		}
		card, err := s.orch.AddCard(r.Context(), req.Phrase, lang)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, card)
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.DeleteCard(r.Context(), chi.URLParam(r, "id")); err != nil {
			s.handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetDue() http.HandlerFunc {
	type response struct {
		Language domain.Language `json:"language"`
		Due      int             `json:"due"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		lang, err := languageParam(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		n, err := s.orch.DueCount(r.Context(), lang)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, response{Language: lang, Due: n})
	}
}

func (s *Server) handleGetExams() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := s.store.LoadExamHistory(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		if history == nil {
			history = []domain.ExamReport{}
		}
		respondJSON(w, http.StatusOK, history)
	}
}

func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lang, err := optionalLanguage(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		stats, err := s.orch.Stats(r.Context(), lang)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, stats)
	}
}

// handlePostSentence grades a free sentence written with a card's phrase.
func (s *Server) handlePostSentence() http.HandlerFunc {
	type request struct {
		CardID   string `json:"cardId"`
		Sentence string `json:"sentence"`
	}
	type response struct {
		Evaluation domain.SentenceEvaluation `json:"evaluation"`
		Card       domain.Card               `json:"card"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			s.handleError(w, r, err)
			return
		}
		if req.CardID == "" || strings.TrimSpace(req.Sentence) == "" {
			s.handleError(w, r, badRequest("cardId and sentence are required"))
			return
		}
		eval, card, err := s.orch.PracticeSentence(r.Context(), req.CardID, req.Sentence)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, response{Evaluation: eval, Card: card})
	}
}

// handlePostPronunciation scores a recording against a target phrase. The
// client reports the score back with the practice result.
func (s *Server) handlePostPronunciation() http.HandlerFunc {
	type request struct {
		Target   string `json:"target"`
		Language string `json:"language"`
		Audio    []byte `json:"audio"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			s.handleError(w, r, err)
			return
		}
		if req.Target == "" || len(req.Audio) == 0 {
			s.handleError(w, r, badRequest("target and audio are required"))
			return
		}
		lang, err := domain.ParseLanguage(req.Language)
		if err != nil {
			s.handleError(w, r, badRequest("%v", err))
			return
		}
		eval, err := s.oracle.EvaluatePronunciation(r.Context(), req.Audio, req.Target, lang)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, eval)
	}
}

// handlePostAudio reads text aloud.
func (s *Server) handlePostAudio() http.HandlerFunc {
	type request struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			s.handleError(w, r, err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			s.handleError(w, r, badRequest("text cannot be empty"))
			return
		}
		lang, err := domain.ParseLanguage(req.Language)
		if err != nil {
			s.handleError(w, r, badRequest("%v", err))
			return
		}
		audio, err := s.oracle.SynthesizeAudio(r.Context(), req.Text, lang)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
		w.Write(audio)
	}
}
