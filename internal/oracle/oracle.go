// Package oracle is the boundary to the generative model that enriches new
// phrases, grades answers, writes exam questions and handles audio.
package oracle

import (
	"context"

	"github.com/conorfennell/growfluent/internal/domain"
)

// Oracle is implemented by anything that can answer the language questions
// the scheduler delegates. Every method either returns a validated result or
// an error matching ErrFailed.
type Oracle interface {
	Enrich(ctx context.Context, phrase string, lang domain.Language) (domain.Enrichment, error)
	Grade(ctx context.Context, req GradeRequest) (domain.Grading, error)
	GenerateExam(ctx context.Context, cards []domain.Card, lang domain.Language) ([]domain.Exercise, error)
	EvaluateSentence(ctx context.Context, sentence, target string, lang domain.Language) (domain.SentenceEvaluation, error)
	EvaluatePronunciation(ctx context.Context, audio []byte, target string, lang domain.Language) (domain.PronunciationEvaluation, error)
	SynthesizeAudio(ctx context.Context, text string, lang domain.Language) ([]byte, error)
}

// GradeRequest is a single answer to be judged. Audio, when present, is the
// learner's recorded answer and replaces UserAnswer with its transcript.
type GradeRequest struct {
	Question      string          `json:"question" validate:"required"`
	UserAnswer    string          `json:"userAnswer"`
	CorrectAnswer string          `json:"correctAnswer" validate:"required"`
	Language      domain.Language `json:"language" validate:"required"`
	Audio         []byte          `json:"-"`
}

// Disabled is used when no model is configured. Every call fails with
// ErrNotConfigured.
type Disabled struct{}

var _ Oracle = Disabled{}

func (Disabled) Enrich(context.Context, string, domain.Language) (domain.Enrichment, error) {
	return domain.Enrichment{}, ErrNotConfigured
}

func (Disabled) Grade(context.Context, GradeRequest) (domain.Grading, error) {
	return domain.Grading{}, ErrNotConfigured
}

func (Disabled) GenerateExam(context.Context, []domain.Card, domain.Language) ([]domain.Exercise, error) {
	return nil, ErrNotConfigured
}

func (Disabled) EvaluateSentence(context.Context, string, string, domain.Language) (domain.SentenceEvaluation, error) {
	return domain.SentenceEvaluation{}, ErrNotConfigured
}

func (Disabled) EvaluatePronunciation(context.Context, []byte, string, domain.Language) (domain.PronunciationEvaluation, error) {
	return domain.PronunciationEvaluation{}, ErrNotConfigured
}

func (Disabled) SynthesizeAudio(context.Context, string, domain.Language) ([]byte, error) {
	return nil, ErrNotConfigured
}
