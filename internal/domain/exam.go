package domain

import "time"

// ErrorType classifies why an answer was judged wrong.
type ErrorType string

const (
	ErrorTranslation   ErrorType = "translation"
	ErrorContext       ErrorType = "context"
	ErrorPronunciation ErrorType = "pronunciation"
	ErrorGrammar       ErrorType = "grammar"
	ErrorSpelling      ErrorType = "spelling"
)

// ExerciseType is the kind of question generated for a card.
type ExerciseType string

const (
	ExerciseTranslation ExerciseType = "translation"
	ExerciseReverse     ExerciseType = "reverse"
	ExerciseVoice       ExerciseType = "voice"
	ExerciseChoice      ExerciseType = "choice"
	ExerciseContext     ExerciseType = "context"
)

// Exercise is a single exam question for a card.
type Exercise struct {
	CardID          string       `json:"cardId" validate:"required"`
	Type            ExerciseType `json:"type" validate:"required,oneof=translation reverse voice choice context"`
	Question        string       `json:"question" validate:"required"`
	CorrectAnswer   string       `json:"correctAnswer" validate:"required"`
	Options         []string     `json:"options,omitempty"`
	ContextSentence string       `json:"contextSentence,omitempty"`
}

// PronunciationEvaluation is the oracle's assessment of a spoken answer.
type PronunciationEvaluation struct {
	Score             float64  `json:"score" validate:"min=0,max=100"`
	Clarity           float64  `json:"clarity"`
	Intonation        float64  `json:"intonation"`
	Feedback          string   `json:"feedback"`
	SyllabicBreakdown []string `json:"syllabicBreakdown"`
	PhoneticMistakes  []string `json:"phoneticMistakes"`
	IsSuccess         bool     `json:"isSuccess"`
}

// Grading is the oracle's verdict on a single answer.
type Grading struct {
	IsCorrect          bool                     `json:"isCorrect"`
	Feedback           string                   `json:"feedback" validate:"required"`
	ErrorType          ErrorType                `json:"errorType,omitempty" validate:"omitempty,oneof=translation context pronunciation grammar spelling"`
	Explanation        string                   `json:"explanation,omitempty"`
	Example            string                   `json:"example,omitempty"`
	ExampleTranslation string                   `json:"exampleTranslation,omitempty"`
	Pronunciation      *PronunciationEvaluation `json:"pronunciation,omitempty" validate:"omitempty"`
}

// SentenceEvaluation is the oracle's verdict on a free sentence.
type SentenceEvaluation struct {
	IsCorrect          bool     `json:"isCorrect"`
	ContainsTargetWord bool     `json:"containsTargetWord"`
	Feedback           string   `json:"feedback" validate:"required"`
	ImprovedVersion    string   `json:"improvedVersion"`
	GrammarNotes       []string `json:"grammarNotes"`
}

// PracticeResult is the outcome of one practice item. It is folded into the
// card state when the session finishes and is never stored on its own.
type PracticeResult struct {
	CardID             string   `json:"cardId" validate:"required"`
	IsCorrect          bool     `json:"isCorrect"`
	ResponseTimeMs     int64    `json:"responseTimeMs" validate:"min=0"`
	PronunciationScore *float64 `json:"pronunciationScore,omitempty"`
}

// ExamQuestionResult is the graded outcome of one exam question.
type ExamQuestionResult struct {
	CardID             string                   `json:"cardId"`
	IsCorrect          bool                     `json:"isCorrect"`
	ResponseTimeMs     int64                    `json:"responseTimeMs"`
	Question           string                   `json:"question"`
	UserAnswer         string                   `json:"userAnswer"`
	CorrectAnswer      string                   `json:"correctAnswer"`
	Type               ExerciseType             `json:"type"`
	ErrorType          ErrorType                `json:"errorType,omitempty"`
	Explanation        string                   `json:"explanation,omitempty"`
	Example            string                   `json:"example,omitempty"`
	ExampleTranslation string                   `json:"exampleTranslation,omitempty"`
	Pronunciation      *PronunciationEvaluation `json:"pronunciation,omitempty"`
}

// ExamReport summarises a finished exam. Reports are append-only.
type ExamReport struct {
	ID               string               `json:"id"`
	Date             time.Time            `json:"date"`
	Language         Language             `json:"language"`
	TotalTimeMs      int64                `json:"totalTimeMs"`
	Accuracy         float64              `json:"accuracy"`
	SpeedScore       float64              `json:"speedScore"`
	Results          []ExamQuestionResult `json:"results"`
	MasteredIDs      []string             `json:"masteredIds"`
	WeakIDs          []string             `json:"weakIds"`
	ForgottenIDs     []string             `json:"forgottenIds"`
	Recommendations  []string             `json:"recommendations"`
	PronunciationAvg float64              `json:"pronunciationAvg"`
}
