package srs

import (
	"math"
	"time"

	"github.com/conorfennell/growfluent/internal/domain"
)

// Day is the unit review intervals are expressed in.
const Day = 24 * time.Hour

// Params holds the constants of the SM-2 variant used for scheduling.
type Params struct {
	MinEasiness      float64 // lower clamp for the easiness factor
	MaxEasiness      float64 // upper clamp for the easiness factor
	EasinessBonus    float64 // added on a correct answer
	EasinessPenalty  float64 // subtracted on a wrong answer
	GrowthMultiplier float64 // extra interval growth on top of the easiness factor
	FirstInterval    int     // days after the first correct answer
	SecondInterval   int     // days after the second correct answer
	MasteredAfter    int     // intervals strictly above this many days count as mastered
	MaximumInterval  int     // upper bound on any interval, in days
}

// DefaultParams returns the parameters the application schedules with.
func DefaultParams() *Params {
	return &Params{
		MinEasiness:      1.3,
		MaxEasiness:      3.5,
		EasinessBonus:    0.1,
		EasinessPenalty:  0.2,
		GrowthMultiplier: 1.5,
		FirstInterval:    1,
		SecondInterval:   6,
		MasteredAfter:    21,
		MaximumInterval:  36500,
	}
}

var defaultParams = DefaultParams()

// Advance applies a review outcome to card using the default parameters.
func Advance(card domain.Card, isCorrect bool, now time.Time) domain.Card {
	return defaultParams.Advance(card, isCorrect, now)
}

// Advance returns the card's next scheduling state after a review at now.
// The input card is not modified.
func (p *Params) Advance(card domain.Card, isCorrect bool, now time.Time) domain.Card {
	next := card.Clone()
	ef := p.clamp(card.EasinessFactor)

	var interval int
	if isCorrect {
		switch card.RepetitionCount {
		case 0:
			interval = p.FirstInterval
		case 1:
			interval = p.SecondInterval
		default:
			grown := math.Round(float64(card.LastInterval) * ef * p.GrowthMultiplier)
			interval = int(math.Min(grown, float64(p.MaximumInterval)))
		}
		next.RepetitionCount = card.RepetitionCount + 1
		next.EasinessFactor = p.clamp(ef + p.EasinessBonus)
		next.SuccessCount = card.SuccessCount + 1
	} else {
		interval = p.FirstInterval
		next.RepetitionCount = 0
		next.EasinessFactor = p.clamp(ef - p.EasinessPenalty)
		next.FailureCount = card.FailureCount + 1
	}
	// Easiness is kept to three decimals so repeated +0.1/-0.2 steps land
	// exactly on values like 2.6 and on the clamp bounds, instead of
	// drifting to 2.5999999 or 1.2999999.
	next.EasinessFactor = math.Round(next.EasinessFactor*1000) / 1000

	next.TimesReviewed = card.TimesReviewed + 1
	next.LastInterval = interval
	next.NextReviewAt = NextDueDate(interval, now)
	if next.NextReviewAt.Before(next.CreatedAt) {
		next.NextReviewAt = next.CreatedAt
	}
	if interval > p.MasteredAfter {
		next.Status = domain.StatusMastered
	} else {
		next.Status = domain.StatusLearning
	}
	return next
}

// StatusFor derives the status tag from the card's review state.
func (p *Params) StatusFor(card domain.Card) domain.Status {
	switch {
	case card.LastInterval > p.MasteredAfter:
		return domain.StatusMastered
	case card.TimesReviewed > 0:
		return domain.StatusLearning
	default:
		return domain.StatusNew
	}
}

// StatusFor derives the status tag using the default parameters.
func StatusFor(card domain.Card) domain.Status {
	return defaultParams.StatusFor(card)
}

// RecordPronunciation appends a pronunciation score to the card's history.
func RecordPronunciation(card domain.Card, score float64) domain.Card {
	next := card.Clone()
	next.PronunciationHistory = append(next.PronunciationHistory, score)
	return next
}

func (p *Params) clamp(ef float64) float64 {
	if math.IsNaN(ef) {
		return domain.InitialEasinessFactor
	}
	return math.Min(p.MaxEasiness, math.Max(p.MinEasiness, ef))
}

// NextDueDate returns the moment a card with the given interval becomes due.
func NextDueDate(intervalDays int, now time.Time) time.Time {
	return now.Add(time.Duration(intervalDays) * Day)
}
