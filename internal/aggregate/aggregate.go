package aggregate

import (
	"errors"
	"slices"
	"time"

	"github.com/conorfennell/growfluent/internal/domain"
	"github.com/conorfennell/growfluent/internal/srs"
)

// ErrNoResults is returned when an exam report is requested for an exam
// without any graded question.
var ErrNoResults = errors.New("aggregate: exam has no results")

// Response time thresholds used to categorise exam answers, in milliseconds.
const (
	FastAnswerMs      = 6000
	SlowAnswerMs      = 15000
	ForgottenAnswerMs = 25000

	goodAccuracy = 0.8
	goodSpeedMs  = 10000
)

// Recommendation texts. The first slot reflects accuracy, the second speed.
const (
	RecommendAccuracyHigh = "Excellent! Your command of these phrases is solid."
	RecommendAccuracyLow  = "Practise building sentences with these phrases in the mastery lab."
	RecommendSpeedHigh    = "You process these phrases quickly."
	RecommendSpeedLow     = "Take your time to read each context carefully."
)

// ApplyPracticeResults folds practice outcomes into the matching cards.
// Results are applied in order; cards without a result pass through
// unchanged. The input slice is not modified.
func ApplyPracticeResults(cards []domain.Card, results []domain.PracticeResult, now time.Time) []domain.Card {
	out := domain.CloneCards(cards)
	index := indexByID(out)
	for _, r := range results {
		i, ok := index[r.CardID]
		if !ok {
			continue
		}
		out[i] = srs.Advance(out[i], r.IsCorrect, now)
		if r.PronunciationScore != nil {
			out[i] = srs.RecordPronunciation(out[i], *r.PronunciationScore)
		}
	}
	return out
}

// ExamInput is everything needed to build a report for a finished exam.
type ExamInput struct {
	ID        string
	Language  domain.Language
	StartedAt time.Time
	Now       time.Time
	Results   []domain.ExamQuestionResult
}

// BuildExamReport computes the summary statistics of a finished exam.
func BuildExamReport(in ExamInput) (domain.ExamReport, error) {
	if len(in.Results) == 0 {
		return domain.ExamReport{}, ErrNoResults
	}

	var correct int
	var totalMs int64
	var pronSum float64
	var pronCount int
	mastered := []string{}
	weak := []string{}
	forgotten := []string{}

	for _, r := range in.Results {
		if r.IsCorrect {
			correct++
		}
		totalMs += r.ResponseTimeMs
		if r.Pronunciation != nil {
			pronSum += r.Pronunciation.Score
			pronCount++
		}
		if r.IsCorrect && r.ResponseTimeMs < FastAnswerMs {
			mastered = appendOnce(mastered, r.CardID)
		}
		if !r.IsCorrect || r.ResponseTimeMs > SlowAnswerMs {
			weak = appendOnce(weak, r.CardID)
		}
		if !r.IsCorrect && r.ResponseTimeMs > ForgottenAnswerMs {
			forgotten = appendOnce(forgotten, r.CardID)
		}
	}

	n := float64(len(in.Results))
	accuracy := float64(correct) / n
	speed := float64(totalMs) / n
	var pronAvg float64
	if pronCount > 0 {
		pronAvg = pronSum / float64(pronCount)
	}

	return domain.ExamReport{
		ID:               in.ID,
		Date:             in.Now,
		Language:         in.Language,
		TotalTimeMs:      in.Now.Sub(in.StartedAt).Milliseconds(),
		Accuracy:         accuracy,
		SpeedScore:       speed,
		Results:          append([]domain.ExamQuestionResult(nil), in.Results...),
		MasteredIDs:      mastered,
		WeakIDs:          weak,
		ForgottenIDs:     forgotten,
		Recommendations:  recommendations(accuracy, speed),
		PronunciationAvg: pronAvg,
	}, nil
}

func recommendations(accuracy, speed float64) []string {
	out := make([]string, 2)
	if accuracy > goodAccuracy {
		out[0] = RecommendAccuracyHigh
	} else {
		out[0] = RecommendAccuracyLow
	}
	if speed < goodSpeedMs {
		out[1] = RecommendSpeedHigh
	} else {
		out[1] = RecommendSpeedLow
	}
	return out
}

// ApplyExamReport advances every card that was asked in the exam using the
// same correctness signal as the report, and records the card's last exam
// score. A card asked more than once is advanced once, by its first result.
func ApplyExamReport(cards []domain.Card, report domain.ExamReport, now time.Time) []domain.Card {
	out := domain.CloneCards(cards)
	index := indexByID(out)
	applied := make(map[string]bool, len(report.Results))
	for _, r := range report.Results {
		i, ok := index[r.CardID]
		if !ok || applied[r.CardID] {
			continue
		}
		applied[r.CardID] = true
		next := srs.Advance(out[i], r.IsCorrect, now)
		score := 0.0
		if r.IsCorrect {
			score = 1
		}
		next.LastExamScore = &score
		if r.Pronunciation != nil {
			next = srs.RecordPronunciation(next, r.Pronunciation.Score)
		}
		out[i] = next
	}
	return out
}

func appendOnce(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func indexByID(cards []domain.Card) map[string]int {
	index := make(map[string]int, len(cards))
	for i, c := range cards {
		index[c.ID] = i
	}
	return index
}
