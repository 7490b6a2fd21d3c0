package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/growfluent/internal/aggregate"
	"github.com/conorfennell/growfluent/internal/domain"
	"github.com/conorfennell/growfluent/internal/oracle"
	"github.com/conorfennell/growfluent/internal/selector"
	"github.com/conorfennell/growfluent/internal/storage"
)

// DefaultSaveConcurrency bounds the card writes in flight when a session
// finishes.
const DefaultSaveConcurrency = 4

// Orchestrator drives sessions. It holds only collaborators; all session
// state lives in the Context values it is handed.
type Orchestrator struct {
	store  storage.Store
	oracle oracle.Oracle
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	rngMu sync.Mutex
	rng   *rand.Rand

	saveConcurrency int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRand sets the random source used for free practice and exams.
func WithRand(rng *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithIDs replaces the UUID generator used for sessions, reports and cards.
func WithIDs(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// WithSaveConcurrency bounds concurrent card writes at finish.
func WithSaveConcurrency(n int) Option {
	return func(o *Orchestrator) { o.saveConcurrency = n }
}

// New creates an orchestrator over store and oracle.
func New(store storage.Store, orc oracle.Oracle, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:           store,
		oracle:          orc,
		logger:          slog.Default(),
		now:             time.Now,
		newID:           uuid.NewString,
		saveConcurrency: DefaultSaveConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		seed := uint64(time.Now().UnixNano())
		o.rng = rand.New(rand.NewPCG(seed, seed>>32))
	}
	if o.saveConcurrency < 1 {
		o.saveConcurrency = 1
	}
	o.logger = o.logger.With("component", "session")
	return o
}

// StartDaily begins a review of the cards due today.
func (o *Orchestrator) StartDaily(ctx context.Context, lang domain.Language) (Context, error) {
	return o.Start(ctx, Context{}, Daily, lang)
}

// StartFree begins a free practice round over random cards.
func (o *Orchestrator) StartFree(ctx context.Context, lang domain.Language) (Context, error) {
	return o.Start(ctx, Context{}, Free, lang)
}

// StartExam begins a weekly exam. The questions are written by the oracle.
func (o *Orchestrator) StartExam(ctx context.Context, lang domain.Language) (Context, error) {
	return o.Start(ctx, Context{}, Exam, lang)
}

// Start begins a session of the given kind from an idle context. When the
// selection is refused or the exam cannot be generated the returned context
// is idle.
func (o *Orchestrator) Start(ctx context.Context, sc Context, kind Kind, lang domain.Language) (Context, error) {
	if sc.State != Idle {
		return sc, fmt.Errorf("%w: cannot start a session while %s", ErrInvalidTransition, sc.State)
	}
	if !lang.Valid() {
		return sc, fmt.Errorf("unknown language %q", lang)
	}
	sc.State = Selecting

	cards, err := o.store.LoadCards(ctx, &lang)
	if err != nil {
		return Context{}, fmt.Errorf("failed to load cards for %s: %w", lang, err)
	}
	now := o.now()
	selected := o.selectCards(kind, cards, now)
	if len(selected) == 0 {
		o.logger.Info("Session refused", "kind", kind, "language", lang, "cards", len(cards))
		return Context{}, ErrSelectionRefused
	}

	next := Context{
		ID:        o.newID(),
		State:     InSession,
		Kind:      kind,
		Language:  lang,
		StartedAt: now,
		Snapshot:  domain.CloneCards(selected),
	}

	if kind == Exam {
		exercises, err := o.oracle.GenerateExam(ctx, next.Snapshot, lang)
		if err != nil {
			return Context{}, fmt.Errorf("failed to generate exam: %w", err)
		}
		for _, ex := range exercises {
			card, ok := next.card(ex.CardID)
			if !ok {
				continue
			}
			next.Items = append(next.Items, Item{CardID: card.ID, Phrase: card.Phrase, Exercise: &ex})
		}
		if len(next.Items) == 0 {
			return Context{}, fmt.Errorf("failed to generate exam: %w", oracle.ErrInvalidResponse)
		}
	} else {
		for _, c := range next.Snapshot {
			next.Items = append(next.Items, Item{CardID: c.ID, Phrase: c.Phrase})
		}
	}

	o.logger.Info("Session started",
		"id", next.ID,
		"kind", kind,
		"language", lang,
		"items", len(next.Items))
	return next, nil
}

func (o *Orchestrator) selectCards(kind Kind, cards []domain.Card, now time.Time) []domain.Card {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()

	switch kind {
	case Daily:
		return selector.Daily(cards, now)
	case Free:
		if len(cards) < selector.MinFreeCards {
			return nil
		}
		return selector.Free(cards, o.rng)
	case Exam:
		if len(cards) < selector.MinExamCards {
			return nil
		}
		return selector.Exam(cards, o.rng)
	}
	return nil
}

// BeginGrading marks the current item as being graded. Callers that share
// the context publish the result so a second answer is refused until Grade
// returns.
func (o *Orchestrator) BeginGrading(sc Context) (Context, error) {
	if _, ok := sc.Current(); !ok || sc.State != InSession {
		return sc, fmt.Errorf("%w: cannot grade while %s", ErrInvalidTransition, sc.State)
	}
	sc.State = Grading
	return sc, nil
}

// Grade asks the oracle to judge the answer to the current item and records
// the verdict. sc may be in session or already grading. If the oracle fails
// the item stays unanswered and the context goes back to in session.
func (o *Orchestrator) Grade(ctx context.Context, sc Context, answer Answer) (Context, domain.Grading, error) {
	if sc.State == InSession {
		var err error
		if sc, err = o.BeginGrading(sc); err != nil {
			return sc, domain.Grading{}, err
		}
	}
	item, ok := sc.Current()
	if !ok || sc.State != Grading {
		return sc, domain.Grading{}, fmt.Errorf("%w: cannot grade while %s", ErrInvalidTransition, sc.State)
	}
	if err := domain.Validate(answer); err != nil {
		sc.State = InSession
		return sc, domain.Grading{}, fmt.Errorf("invalid answer: %w", err)
	}
	card, _ := sc.card(item.CardID)

	req := oracle.GradeRequest{
		Question:      "Translate: " + card.Phrase,
		UserAnswer:    answer.Text,
		CorrectAnswer: card.Translation,
		Language:      sc.Language,
		Audio:         answer.Audio,
	}
	if item.Exercise != nil {
		req.Question = item.Exercise.Question
		req.CorrectAnswer = item.Exercise.CorrectAnswer
	}

	grading, err := o.oracle.Grade(ctx, req)
	if err != nil {
		o.logger.Warn("Grading failed, item left unanswered",
			"session", sc.ID,
			"card", item.CardID,
			"error", err)
		sc.State = InSession
		return sc, domain.Grading{}, fmt.Errorf("failed to grade card %s: %w", item.CardID, err)
	}

	if sc.Kind == Exam {
		sc.Exam = append(slices.Clip(sc.Exam), domain.ExamQuestionResult{
			CardID:             item.CardID,
			IsCorrect:          grading.IsCorrect,
			ResponseTimeMs:     answer.ResponseTimeMs,
			Question:           req.Question,
			UserAnswer:         answer.Text,
			CorrectAnswer:      req.CorrectAnswer,
			Type:               item.Exercise.Type,
			ErrorType:          grading.ErrorType,
			Explanation:        grading.Explanation,
			Example:            grading.Example,
			ExampleTranslation: grading.ExampleTranslation,
			Pronunciation:      grading.Pronunciation,
		})
	} else {
		result := domain.PracticeResult{
			CardID:         item.CardID,
			IsCorrect:      grading.IsCorrect,
			ResponseTimeMs: answer.ResponseTimeMs,
		}
		if grading.Pronunciation != nil {
			score := grading.Pronunciation.Score
			result.PronunciationScore = &score
		}
		sc.Practice = append(slices.Clip(sc.Practice), result)
	}
	return sc.advance(), grading, nil
}

// SubmitResult records a result graded by the client for the current item
// of a practice session.
func (o *Orchestrator) SubmitResult(sc Context, result domain.PracticeResult) (Context, error) {
	item, ok := sc.Current()
	if !ok || sc.State != InSession || sc.Kind == Exam {
		return sc, fmt.Errorf("%w: cannot submit a result while %s", ErrInvalidTransition, sc.State)
	}
	if result.CardID == "" {
		result.CardID = item.CardID
	}
	if result.CardID != item.CardID {
		return sc, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedCard, item.CardID, result.CardID)
	}
	if err := domain.Validate(result); err != nil {
		return sc, fmt.Errorf("invalid result: %w", err)
	}
	sc.Practice = append(slices.Clip(sc.Practice), result)
	return sc.advance(), nil
}

// Finish folds the recorded results into the snapshot and persists every
// card that was answered, plus the report for exams.
func (o *Orchestrator) Finish(ctx context.Context, sc Context) (Context, Outcome, error) {
	if sc.State != Finished || sc.Committed {
		return sc, Outcome{}, fmt.Errorf("%w: cannot finish while %s", ErrInvalidTransition, sc.State)
	}
	now := o.now()

	var out Outcome
	var answered []string
	if sc.Kind == Exam {
		report, err := aggregate.BuildExamReport(aggregate.ExamInput{
			ID:        o.newID(),
			Language:  sc.Language,
			StartedAt: sc.StartedAt,
			Now:       now,
			Results:   sc.Exam,
		})
		if err != nil {
			return sc, Outcome{}, fmt.Errorf("failed to build exam report: %w", err)
		}
		out.Report = &report
		for _, r := range sc.Exam {
			answered = append(answered, r.CardID)
		}
		out.Cards = aggregate.ApplyExamReport(sc.Snapshot, report, now)
	} else {
		for _, r := range sc.Practice {
			answered = append(answered, r.CardID)
		}
		out.Cards = aggregate.ApplyPracticeResults(sc.Snapshot, sc.Practice, now)
	}
	out.Cards = slices.DeleteFunc(out.Cards, func(c domain.Card) bool {
		return !slices.Contains(answered, c.ID)
	})

	if err := o.saveCards(ctx, out.Cards); err != nil {
		return sc, Outcome{}, err
	}
	if out.Report != nil {
		if err := o.store.AppendExamReport(ctx, *out.Report); err != nil {
			return sc, Outcome{}, fmt.Errorf("failed to save exam report %s: %w", out.Report.ID, err)
		}
	}

	sc.Committed = true
	sc.Outcome = &out
	o.logger.Info("Session finished",
		"id", sc.ID,
		"kind", sc.Kind,
		"cards_updated", len(out.Cards))
	return sc, out, nil
}

// saveCards writes cards concurrently. Each card is written whole.
func (o *Orchestrator) saveCards(ctx context.Context, cards []domain.Card) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.saveConcurrency)
	for _, c := range cards {
		g.Go(func() error {
			if err := o.store.UpsertCard(gctx, c); err != nil {
				return fmt.Errorf("failed to save card %s: %w", c.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Abandon discards an unfinished session. Answers already given are not
// applied.
func (o *Orchestrator) Abandon(sc Context) (Context, error) {
	if sc.State != InSession && sc.State != Grading {
		return sc, fmt.Errorf("%w: cannot abandon while %s", ErrInvalidTransition, sc.State)
	}
	o.logger.Info("Session abandoned",
		"id", sc.ID,
		"answered", sc.Position,
		"discarded", sc.Remaining())
	return Context{}, nil
}

// Acknowledge closes a finished session.
func (o *Orchestrator) Acknowledge(sc Context) (Context, error) {
	if sc.State != Finished {
		return sc, fmt.Errorf("%w: cannot acknowledge while %s", ErrInvalidTransition, sc.State)
	}
	if !sc.Committed {
		o.logger.Warn("Finished session closed without saving", "id", sc.ID)
	}
	return Context{}, nil
}

// DueCount is the number of cards a daily session for lang would hold now.
func (o *Orchestrator) DueCount(ctx context.Context, lang domain.Language) (int, error) {
	cards, err := o.store.LoadCards(ctx, &lang)
	if err != nil {
		return 0, fmt.Errorf("failed to load cards for %s: %w", lang, err)
	}
	return selector.DueCount(cards, lang, o.now()), nil
}
