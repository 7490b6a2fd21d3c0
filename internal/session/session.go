// Package session runs review sessions: it selects cards, collects graded
// answers and, once the last item is answered, folds the results into the
// cards and persists them. Nothing is written before a session finishes.
package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/conorfennell/growfluent/internal/domain"
)

var (
	// ErrSelectionRefused is returned when there are not enough cards to
	// start the requested session. The session stays idle.
	ErrSelectionRefused = errors.New("session: not enough cards for this session")

	// ErrInvalidTransition is returned when an operation is not allowed in
	// the session's current state.
	ErrInvalidTransition = errors.New("session: invalid transition")

	// ErrUnexpectedCard is returned when a result does not belong to the
	// current item.
	ErrUnexpectedCard = errors.New("session: result is for a different card")
)

// State is a step of the session state machine.
type State int

const (
	Idle State = iota
	Selecting
	InSession
	Grading
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case InSession:
		return "in_session"
	case Grading:
		return "grading"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := Idle; st <= Finished; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Kind is the type of session.
type Kind string

const (
	Daily Kind = "daily"
	Free  Kind = "free"
	Exam  Kind = "exam"
)

// ParseKind accepts one of the session kinds.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case Daily, Free, Exam:
		return k, true
	}
	return "", false
}

// Item is one question of a session. Exam items carry the generated
// exercise; practice items ask for the card's translation.
type Item struct {
	CardID   string           `json:"cardId"`
	Phrase   string           `json:"phrase"`
	Exercise *domain.Exercise `json:"exercise,omitempty"`
}

// Context is the complete state of a session. It is passed into and
// returned from every Orchestrator call; the zero value is an idle session.
type Context struct {
	ID        string          `json:"id,omitempty"`
	State     State           `json:"state"`
	Kind      Kind            `json:"kind,omitempty"`
	Language  domain.Language `json:"language,omitempty"`
	StartedAt time.Time       `json:"startedAt"`

	// Snapshot holds copies of the selected cards taken at start. Results
	// are applied to these copies, never to live state.
	Snapshot []domain.Card `json:"snapshot,omitempty"`
	Items    []Item        `json:"items,omitempty"`
	Position int           `json:"position"`

	Practice []domain.PracticeResult     `json:"practice,omitempty"`
	Exam     []domain.ExamQuestionResult `json:"exam,omitempty"`

	// Committed is set once Finish has persisted the results.
	Committed bool     `json:"committed"`
	Outcome   *Outcome `json:"outcome,omitempty"`
}

// Current returns the item awaiting an answer.
func (sc Context) Current() (Item, bool) {
	if sc.State != InSession && sc.State != Grading {
		return Item{}, false
	}
	if sc.Position >= len(sc.Items) {
		return Item{}, false
	}
	return sc.Items[sc.Position], true
}

// Remaining is the number of unanswered items.
func (sc Context) Remaining() int {
	return len(sc.Items) - sc.Position
}

func (sc Context) card(id string) (domain.Card, bool) {
	i := slices.IndexFunc(sc.Snapshot, func(c domain.Card) bool { return c.ID == id })
	if i < 0 {
		return domain.Card{}, false
	}
	return sc.Snapshot[i], true
}

// advance moves past the current item.
func (sc Context) advance() Context {
	sc.Position++
	if sc.Position >= len(sc.Items) {
		sc.State = Finished
	} else {
		sc.State = InSession
	}
	return sc
}

// Outcome is what a finished session wrote.
type Outcome struct {
	Cards  []domain.Card      `json:"cards"`
	Report *domain.ExamReport `json:"report,omitempty"`
}

// Answer is a learner's response to the current item.
type Answer struct {
	Text           string `json:"text"`
	Audio          []byte `json:"audio,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs" validate:"min=0"`
}
