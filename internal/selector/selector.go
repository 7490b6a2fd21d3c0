// Package selector picks the cards that make up a review session, a free
// practice round or a weekly exam. Every function reads the cards it is
// given and never modifies them; randomness comes from the caller.
package selector

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/conorfennell/growfluent/internal/domain"
)

const (
	DailyLimit = 15
	FreeLimit  = 10

	ExamLimit      = 15
	ExamTarget     = 10
	ExamBucketSize = 5
	WeakEasiness   = 2.2

	// MinExamCards is the smallest collection an exam may be drawn from.
	MinExamCards = 5
	// MinFreeCards is the smallest collection free practice may be drawn from.
	MinFreeCards = 1
)

// ForLanguage returns the cards studied in lang, keeping their order.
func ForLanguage(cards []domain.Card, lang domain.Language) []domain.Card {
	var out []domain.Card
	for _, c := range cards {
		if c.Language == lang {
			out = append(out, c)
		}
	}
	return out
}

// Daily returns the cards due for review at now, most overdue first,
// followed by never-reviewed cards, newest first. At most DailyLimit cards
// are returned.
func Daily(cards []domain.Card, now time.Time) []domain.Card {
	var overdue, brandNew []domain.Card
	for _, c := range cards {
		if c.IsDue(now) {
			overdue = append(overdue, c)
		}
	}
	for _, c := range cards {
		if c.RepetitionCount == 0 && !c.IsDue(now) {
			brandNew = append(brandNew, c)
		}
	}
	slices.SortStableFunc(overdue, func(a, b domain.Card) int {
		return a.NextReviewAt.Compare(b.NextReviewAt)
	})
	slices.SortStableFunc(brandNew, newestFirst)

	return truncate(append(overdue, brandNew...), DailyLimit)
}

// DueCount is the size of the daily session for lang at now.
func DueCount(cards []domain.Card, lang domain.Language, now time.Time) int {
	return len(Daily(ForLanguage(cards, lang), now))
}

// Free returns up to FreeLimit cards sampled uniformly without replacement.
func Free(cards []domain.Card, rng *rand.Rand) []domain.Card {
	return sample(cards, FreeLimit, rng)
}

// Exam composes a weekly challenge: the newest unseen cards, the weakest
// cards and a random handful of mastered ones, topped up with random cards
// when fewer than ExamTarget were found.
func Exam(cards []domain.Card, rng *rand.Rand) []domain.Card {
	var fresh, weak, mastered []domain.Card
	for _, c := range cards {
		if c.Status == domain.StatusNew {
			fresh = append(fresh, c)
		}
		if c.EasinessFactor < WeakEasiness {
			weak = append(weak, c)
		}
		if c.Status == domain.StatusMastered {
			mastered = append(mastered, c)
		}
	}
	slices.SortStableFunc(fresh, newestFirst)
	slices.SortStableFunc(weak, func(a, b domain.Card) int {
		return cmp.Compare(a.EasinessFactor, b.EasinessFactor)
	})

	seen := make(map[string]bool)
	var combined []domain.Card
	add := func(group []domain.Card) {
		for _, c := range group {
			if !seen[c.ID] {
				seen[c.ID] = true
				combined = append(combined, c)
			}
		}
	}
	add(truncate(fresh, ExamBucketSize))
	add(truncate(weak, ExamBucketSize))
	add(sample(mastered, ExamBucketSize, rng))

	if len(combined) < ExamTarget {
		var rest []domain.Card
		for _, c := range cards {
			if !seen[c.ID] {
				rest = append(rest, c)
			}
		}
		add(sample(rest, ExamTarget-len(combined), rng))
	}
	return truncate(combined, ExamLimit)
}

func newestFirst(a, b domain.Card) int {
	return b.CreatedAt.Compare(a.CreatedAt)
}

// sample draws n cards without replacement using a partial Fisher-Yates
// shuffle over a copy of cards.
func sample(cards []domain.Card, n int, rng *rand.Rand) []domain.Card {
	pool := slices.Clone(cards)
	if n > len(pool) {
		n = len(pool)
	}
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

func truncate(cards []domain.Card, n int) []domain.Card {
	if len(cards) > n {
		return cards[:n]
	}
	return cards
}
