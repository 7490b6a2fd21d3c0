package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/conorfennell/growfluent/internal/domain"
)

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// decode parses a model answer into dst and validates it.
func decode(content string, dst any) error {
	content = strings.TrimSpace(content)
	if m := codeFence.FindStringSubmatch(content); m != nil {
		content = m[1]
	}
	if content == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(content), dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if err := domain.Validate(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}

// The response types below mirror the domain results but use pointers for
// fields the model must always send, so that a missing boolean is not read
// as false.

type pronunciationResponse struct {
	Score             *float64 `json:"score" validate:"required,min=0,max=100"`
	Clarity           float64  `json:"clarity"`
	Intonation        float64  `json:"intonation"`
	Feedback          string   `json:"feedback" validate:"required"`
	SyllabicBreakdown []string `json:"syllabicBreakdown"`
	PhoneticMistakes  []string `json:"phoneticMistakes"`
	IsSuccess         *bool    `json:"isSuccess" validate:"required"`
}

func (p pronunciationResponse) result() domain.PronunciationEvaluation {
	return domain.PronunciationEvaluation{
		Score:             *p.Score,
		Clarity:           p.Clarity,
		Intonation:        p.Intonation,
		Feedback:          p.Feedback,
		SyllabicBreakdown: nonNil(p.SyllabicBreakdown),
		PhoneticMistakes:  nonNil(p.PhoneticMistakes),
		IsSuccess:         *p.IsSuccess,
	}
}

type gradingResponse struct {
	IsCorrect          *bool                  `json:"isCorrect" validate:"required"`
	Feedback           string                 `json:"feedback" validate:"required"`
	ErrorType          domain.ErrorType       `json:"errorType" validate:"omitempty,oneof=translation context pronunciation grammar spelling"`
	Explanation        string                 `json:"explanation"`
	Example            string                 `json:"example"`
	ExampleTranslation string                 `json:"exampleTranslation"`
	Pronunciation      *pronunciationResponse `json:"pronunciation" validate:"omitempty"`
}

func (g gradingResponse) result() domain.Grading {
	out := domain.Grading{
		IsCorrect:          *g.IsCorrect,
		Feedback:           g.Feedback,
		ErrorType:          g.ErrorType,
		Explanation:        g.Explanation,
		Example:            g.Example,
		ExampleTranslation: g.ExampleTranslation,
	}
	if out.IsCorrect {
		out.ErrorType = ""
	}
	if g.Pronunciation != nil {
		p := g.Pronunciation.result()
		out.Pronunciation = &p
	}
	return out
}

type sentenceResponse struct {
	IsCorrect          *bool    `json:"isCorrect" validate:"required"`
	ContainsTargetWord *bool    `json:"containsTargetWord" validate:"required"`
	Feedback           string   `json:"feedback" validate:"required"`
	ImprovedVersion    string   `json:"improvedVersion"`
	GrammarNotes       []string `json:"grammarNotes"`
}

func (s sentenceResponse) result() domain.SentenceEvaluation {
	return domain.SentenceEvaluation{
		IsCorrect:          *s.IsCorrect,
		ContainsTargetWord: *s.ContainsTargetWord,
		Feedback:           s.Feedback,
		ImprovedVersion:    s.ImprovedVersion,
		GrammarNotes:       nonNil(s.GrammarNotes),
	}
}

type examResponse struct {
	Exercises []domain.Exercise `json:"exercises" validate:"required,min=1,dive"`
}

// exercises keeps the generated exercises that refer to one of cards and
// are answerable, at most one per card. Choice questions need at least two
// options.
func (e examResponse) exercises(cards []domain.Card) []domain.Exercise {
	pending := make(map[string]bool, len(cards))
	for _, c := range cards {
		pending[c.ID] = true
	}
	out := make([]domain.Exercise, 0, len(e.Exercises))
	for _, ex := range e.Exercises {
		if !pending[ex.CardID] {
			continue
		}
		if ex.Type == domain.ExerciseChoice && len(ex.Options) < 2 {
			continue
		}
		pending[ex.CardID] = false
		out = append(out, ex)
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
