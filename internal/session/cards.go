package session

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/conorfennell/growfluent/internal/aggregate"
	"github.com/conorfennell/growfluent/internal/domain"
	"github.com/conorfennell/growfluent/internal/storage"
)

// AddCard enriches phrase with the oracle and stores it as a new card.
func (o *Orchestrator) AddCard(ctx context.Context, phrase string, lang domain.Language) (domain.Card, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return domain.Card{}, fmt.Errorf("phrase is required")
	}
	if !lang.Valid() {
		return domain.Card{}, fmt.Errorf("unknown language %q", lang)
	}
	enrichment, err := o.oracle.Enrich(ctx, phrase, lang)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to enrich %q: %w", phrase, err)
	}

	card := domain.NewCard(o.newID(), phrase, lang, enrichment, o.now())
	if err := domain.Validate(card); err != nil {
		return domain.Card{}, fmt.Errorf("invalid card: %w", err)
	}
	if err := o.store.UpsertCard(ctx, card); err != nil {
		return domain.Card{}, fmt.Errorf("failed to save card %s: %w", card.ID, err)
	}
	o.logger.Info("Card added", "id", card.ID, "language", lang)
	return card, nil
}

// PracticeSentence evaluates a sentence written with a card's phrase and
// appends the attempt to the card's sentence history.
func (o *Orchestrator) PracticeSentence(ctx context.Context, cardID, sentence string) (domain.SentenceEvaluation, domain.Card, error) {
	card, err := o.findCard(ctx, cardID)
	if err != nil {
		return domain.SentenceEvaluation{}, domain.Card{}, err
	}
	eval, err := o.oracle.EvaluateSentence(ctx, sentence, card.Phrase, card.Language)
	if err != nil {
		return domain.SentenceEvaluation{}, domain.Card{}, fmt.Errorf("failed to evaluate sentence for card %s: %w", cardID, err)
	}

	card = card.Clone()
	card.SentenceHistory = append(card.SentenceHistory, domain.SentenceEntry{
		ID:              o.newID(),
		UserSentence:    sentence,
		Feedback:        eval.Feedback,
		ImprovedVersion: eval.ImprovedVersion,
		Date:            o.now(),
		IsCorrect:       eval.IsCorrect,
	})
	if err := o.store.UpsertCard(ctx, card); err != nil {
		return domain.SentenceEvaluation{}, domain.Card{}, fmt.Errorf("failed to save card %s: %w", cardID, err)
	}
	return eval, card, nil
}

// Stats summarises the exam history and card collection, optionally for
// one language.
func (o *Orchestrator) Stats(ctx context.Context, lang *domain.Language) (aggregate.Stats, error) {
	cards, err := o.store.LoadCards(ctx, lang)
	if err != nil {
		return aggregate.Stats{}, fmt.Errorf("failed to load cards: %w", err)
	}
	history, err := o.store.LoadExamHistory(ctx)
	if err != nil {
		return aggregate.Stats{}, fmt.Errorf("failed to load exam history: %w", err)
	}
	if lang != nil {
		history = slices.DeleteFunc(history, func(r domain.ExamReport) bool { return r.Language != *lang })
	}
	return aggregate.Summarize(history, cards), nil
}

func (o *Orchestrator) findCard(ctx context.Context, id string) (domain.Card, error) {
	cards, err := o.store.LoadCards(ctx, nil)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to load cards: %w", err)
	}
	i := slices.IndexFunc(cards, func(c domain.Card) bool { return c.ID == id })
	if i < 0 {
		return domain.Card{}, fmt.Errorf("card %s: %w", id, storage.ErrNotFound)
	}
	return cards[i], nil
}
