package domain

import (
	"slices"
	"time"
)

// Status is the coarse learning stage of a card.
type Status string

const (
	StatusNew      Status = "new"
	StatusLearning Status = "learning"
	StatusMastered Status = "mastered"
)

// InitialEasinessFactor is the easiness factor every new card starts with.
const InitialEasinessFactor = 2.5

// LexicalEntry is a synonym with its usage notes.
type LexicalEntry struct {
	Term               string `json:"term"`
	Translation        string `json:"translation"`
	Nuance             string `json:"nuance"`
	Register           string `json:"register"`
	Frequency          string `json:"frequency"`
	Example            string `json:"example"`
	ExampleTranslation string `json:"exampleTranslation"`
}

// Antonym is an opposite term and its translation.
type Antonym struct {
	Term        string `json:"term"`
	Translation string `json:"translation"`
}

// Variant is a grammatical, regional or colloquial form of the phrase.
type Variant struct {
	Type string `json:"type"`
	Term string `json:"term"`
	Note string `json:"note"`
}

// Derivative is a word derived from the phrase.
type Derivative struct {
	Term        string `json:"term"`
	Type        string `json:"type"`
	Translation string `json:"translation"`
}

// MasteryPrompt is a sentence the learner is asked to produce.
type MasteryPrompt struct {
	Target      string `json:"target"`
	Translation string `json:"translation"`
}

// Enrichment is the linguistic material attached to a phrase when it is added.
type Enrichment struct {
	Translation        string          `json:"translation" validate:"required"`
	Explanation        string          `json:"explanation"`
	Example            string          `json:"example"`
	ExampleTranslation string          `json:"exampleTranslation"`
	Synonyms           []LexicalEntry  `json:"synonyms"`
	Antonyms           []Antonym       `json:"antonyms"`
	Variants           []Variant       `json:"variants"`
	Derivatives        []Derivative    `json:"derivatives"`
	MasteryPrompts     []MasteryPrompt `json:"masteryPrompts"`
}

// SentenceEntry is one attempt at using the card's phrase in a sentence.
type SentenceEntry struct {
	ID              string    `json:"id"`
	UserSentence    string    `json:"userSentence"`
	Feedback        string    `json:"feedback"`
	ImprovedVersion string    `json:"improvedVersion,omitempty"`
	Date            time.Time `json:"date"`
	IsCorrect       bool      `json:"isCorrect"`
}

// Card is a vocabulary item together with its review state.
type Card struct {
	ID       string   `json:"id" validate:"required"`
	Phrase   string   `json:"phrase" validate:"required"`
	Language Language `json:"language" validate:"required,oneof=ENGLISH CATALAN FRENCH"`
	Enrichment

	CreatedAt       time.Time `json:"createdAt"`
	NextReviewAt    time.Time `json:"nextReviewAt"`
	LastInterval    int       `json:"lastInterval" validate:"min=0"`
	RepetitionCount int       `json:"repetitionCount" validate:"min=0"`
	EasinessFactor  float64   `json:"easinessFactor" validate:"min=1.3,max=3.5"`
	Status          Status    `json:"status" validate:"oneof=new learning mastered"`
	TimesReviewed   int       `json:"timesReviewed" validate:"min=0"`
	SuccessCount    int       `json:"successCount" validate:"min=0"`
	FailureCount    int       `json:"failureCount" validate:"min=0"`

	LastExamScore        *float64        `json:"lastExamScore,omitempty"`
	PronunciationHistory []float64       `json:"pronunciationHistory"`
	SentenceHistory      []SentenceEntry `json:"sentenceHistory"`
}

// NewCard returns a card in its initial, never reviewed state.
func NewCard(id, phrase string, lang Language, e Enrichment, now time.Time) Card {
	return Card{
		ID:                   id,
		Phrase:               phrase,
		Language:             lang,
		Enrichment:           e,
		CreatedAt:            now,
		NextReviewAt:         now,
		EasinessFactor:       InitialEasinessFactor,
		Status:               StatusNew,
		PronunciationHistory: []float64{},
		SentenceHistory:      []SentenceEntry{},
	}
}

// Clone returns a deep copy so that callers can mutate the result freely.
func (c Card) Clone() Card {
	out := c
	out.Synonyms = slices.Clone(c.Synonyms)
	out.Antonyms = slices.Clone(c.Antonyms)
	out.Variants = slices.Clone(c.Variants)
	out.Derivatives = slices.Clone(c.Derivatives)
	out.MasteryPrompts = slices.Clone(c.MasteryPrompts)
	out.PronunciationHistory = slices.Clone(c.PronunciationHistory)
	out.SentenceHistory = slices.Clone(c.SentenceHistory)
	if c.LastExamScore != nil {
		v := *c.LastExamScore
		out.LastExamScore = &v
	}
	return out
}

// CloneCards deep copies a card slice.
func CloneCards(cards []Card) []Card {
	out := make([]Card, len(cards))
	for i, c := range cards {
		out[i] = c.Clone()
	}
	return out
}

// IsDue reports whether the card should be reviewed at now.
func (c Card) IsDue(now time.Time) bool {
	return !now.Before(c.NextReviewAt)
}
