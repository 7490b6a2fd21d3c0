package aggregate

import (
	"github.com/conorfennell/growfluent/internal/domain"
)

// Stats is the historical performance summary shown on the statistics page.
type Stats struct {
	ExamCount        int                      `json:"examCount"`
	AverageAccuracy  float64                  `json:"averageAccuracy"`
	AverageSpeedMs   float64                  `json:"averageSpeedMs"`
	PronunciationAvg float64                  `json:"pronunciationAvg"`
	CardCount        int                      `json:"cardCount"`
	MasteredCount    int                      `json:"masteredCount"`
	LearningCount    int                      `json:"learningCount"`
	NewCount         int                      `json:"newCount"`
	ErrorTypes       map[domain.ErrorType]int `json:"errorTypes"`
}

// Summarize aggregates an exam history and the current card collection.
// Exams without any pronunciation question do not count towards the
// pronunciation average.
func Summarize(history []domain.ExamReport, cards []domain.Card) Stats {
	s := Stats{
		ExamCount:  len(history),
		CardCount:  len(cards),
		ErrorTypes: map[domain.ErrorType]int{},
	}

	var accSum, speedSum, pronSum float64
	var pronExams int
	for _, h := range history {
		accSum += h.Accuracy
		speedSum += h.SpeedScore
		if h.PronunciationAvg > 0 {
			pronSum += h.PronunciationAvg
			pronExams++
		}
		for _, r := range h.Results {
			if !r.IsCorrect && r.ErrorType != "" {
				s.ErrorTypes[r.ErrorType]++
			}
		}
	}
	if len(history) > 0 {
		s.AverageAccuracy = accSum / float64(len(history))
		s.AverageSpeedMs = speedSum / float64(len(history))
	}
	if pronExams > 0 {
		s.PronunciationAvg = pronSum / float64(pronExams)
	}

	for _, c := range cards {
		switch c.Status {
		case domain.StatusMastered:
			s.MasteredCount++
		case domain.StatusLearning:
			s.LearningCount++
		default:
			s.NewCount++
		}
	}
	return s
}
