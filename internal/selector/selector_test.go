package selector

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/conorfennell/growfluent/internal/domain"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func card(id string, created time.Time) domain.Card {
	return domain.NewCard(id, "phrase "+id, domain.English, domain.Enrichment{Translation: id}, created)
}

func reviewed(id string, created, due time.Time, ef float64, status domain.Status) domain.Card {
	c := card(id, created)
	c.NextReviewAt = due
	c.RepetitionCount = 2
	c.TimesReviewed = 2
	c.SuccessCount = 2
	c.LastInterval = 6
	c.EasinessFactor = ef
	c.Status = status
	if status == domain.StatusMastered {
		c.LastInterval = 30
	}
	return c
}

func ids(cards []domain.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestDaily(t *testing.T) {
	day := 24 * time.Hour
	cards := []domain.Card{
		reviewed("later", t0.Add(-10*day), t0.Add(2*day), 2.5, domain.StatusLearning),
		reviewed("due-1d", t0.Add(-10*day), t0.Add(-1*day), 2.5, domain.StatusLearning),
		reviewed("due-3d", t0.Add(-10*day), t0.Add(-3*day), 2.5, domain.StatusLearning),
		card("new-old", t0.Add(-5*day)),
		card("new-fresh", t0.Add(-1*time.Hour)),
	}
	// New cards are due from the moment they are created, so they sort
	// among the overdue ones. A new card pushed into the future is still
	// offered after them.
	future := card("new-future", t0.Add(-2*day))
	future.NextReviewAt = t0.Add(day)
	cards = append(cards, future)

	got := ids(Daily(cards, t0))
	expected := []string{"new-old", "due-3d", "due-1d", "new-fresh", "new-future"}
	if fmt.Sprint(got) != fmt.Sprint(expected) {
		t.Errorf("Expected %v, but got %v", expected, got)
	}
}

func TestDailyOverdueBeforeNew(t *testing.T) {
	cards := []domain.Card{card("n", t0.Add(time.Hour))}
	cards[0].NextReviewAt = t0.Add(time.Hour)
	cards = append(cards, reviewed("o", t0.Add(-48*time.Hour), t0, 2.5, domain.StatusLearning))

	got := Daily(cards, t0)
	if len(got) != 2 || got[0].ID != "o" || got[1].ID != "n" {
		t.Errorf("Expected overdue card first, but got %v", ids(got))
	}
}

func TestDailyLimit(t *testing.T) {
	var cards []domain.Card
	for i := 0; i < 40; i++ {
		cards = append(cards, card(fmt.Sprintf("c%02d", i), t0.Add(-time.Duration(i)*time.Minute)))
	}
	if got := Daily(cards, t0); len(got) != DailyLimit {
		t.Errorf("Expected %d cards, but got %d", DailyLimit, len(got))
	}
}

func TestDailyEmpty(t *testing.T) {
	cards := []domain.Card{reviewed("later", t0.Add(-time.Hour), t0.Add(time.Hour), 2.5, domain.StatusLearning)}
	if got := Daily(cards, t0); len(got) != 0 {
		t.Errorf("Expected no cards, but got %v", ids(got))
	}
}

func TestDailyStableTies(t *testing.T) {
	cards := []domain.Card{card("a", t0), card("b", t0), card("c", t0)}
	got := ids(Daily(cards, t0))
	if fmt.Sprint(got) != "[a b c]" {
		t.Errorf("Expected input order to be kept on ties, but got %v", got)
	}
}

func TestDueCount(t *testing.T) {
	cards := []domain.Card{card("en", t0)}
	fr := card("fr", t0)
	fr.Language = domain.French
	cards = append(cards, fr, card("en2", t0))
	if n := DueCount(cards, domain.English, t0); n != 2 {
		t.Errorf("Expected 2 due English cards, but got %d", n)
	}
	if n := DueCount(cards, domain.Catalan, t0); n != 0 {
		t.Errorf("Expected 0 due Catalan cards, but got %d", n)
	}
}

func TestFree(t *testing.T) {
	t.Run("samples without replacement", func(t *testing.T) {
		var cards []domain.Card
		for i := 0; i < 25; i++ {
			cards = append(cards, card(fmt.Sprintf("c%d", i), t0))
		}
		got := Free(cards, seeded())
		if len(got) != FreeLimit {
			t.Fatalf("Expected %d cards, but got %d", FreeLimit, len(got))
		}
		seen := map[string]bool{}
		for _, c := range got {
			if seen[c.ID] {
				t.Errorf("Card %s selected twice", c.ID)
			}
			seen[c.ID] = true
		}
		if cards[0].ID != "c0" || cards[24].ID != "c24" {
			t.Error("Expected input slice order to be left untouched")
		}
	})

	t.Run("reproducible for a seed", func(t *testing.T) {
		var cards []domain.Card
		for i := 0; i < 25; i++ {
			cards = append(cards, card(fmt.Sprintf("c%d", i), t0))
		}
		a := ids(Free(cards, seeded()))
		b := ids(Free(cards, seeded()))
		if fmt.Sprint(a) != fmt.Sprint(b) {
			t.Errorf("Expected same selection for same seed, got %v and %v", a, b)
		}
	})

	t.Run("small and empty collections", func(t *testing.T) {
		if got := Free(nil, seeded()); len(got) != 0 {
			t.Errorf("Expected empty selection, but got %d", len(got))
		}
		got := Free([]domain.Card{card("a", t0), card("b", t0)}, seeded())
		if len(got) != 2 {
			t.Errorf("Expected both cards, but got %d", len(got))
		}
	})
}

func TestExamComposition(t *testing.T) {
	day := 24 * time.Hour
	var cards []domain.Card
	for i := 0; i < 7; i++ {
		cards = append(cards, card(fmt.Sprintf("new%d", i), t0.Add(time.Duration(i)*day)))
	}
	for i := 0; i < 7; i++ {
		cards = append(cards, reviewed(fmt.Sprintf("weak%d", i), t0, t0, 1.3+float64(i)*0.1, domain.StatusLearning))
	}
	for i := 0; i < 7; i++ {
		cards = append(cards, reviewed(fmt.Sprintf("mast%d", i), t0, t0, 2.8, domain.StatusMastered))
	}

	got := Exam(cards, seeded())
	if len(got) != ExamLimit {
		t.Fatalf("Expected %d cards, but got %d", ExamLimit, len(got))
	}
	expectedPrefix := []string{"new6", "new5", "new4", "new3", "new2", "weak0", "weak1", "weak2", "weak3", "weak4"}
	if fmt.Sprint(ids(got[:10])) != fmt.Sprint(expectedPrefix) {
		t.Errorf("Expected prefix %v, but got %v", expectedPrefix, ids(got[:10]))
	}
	for _, c := range got[10:] {
		if c.Status != domain.StatusMastered {
			t.Errorf("Expected mastered card in the last bucket, but got %s", c.ID)
		}
	}
}

func TestExamDeduplicatesByID(t *testing.T) {
	// A new card with a low easiness factor qualifies for two buckets.
	weakNew := card("both", t0)
	weakNew.EasinessFactor = 1.5
	cards := []domain.Card{weakNew}
	for i := 0; i < 3; i++ {
		cards = append(cards, card(fmt.Sprintf("n%d", i), t0.Add(-time.Duration(i+1)*time.Hour)))
	}
	got := Exam(cards, seeded())
	if len(got) != 4 {
		t.Fatalf("Expected 4 distinct cards, but got %v", ids(got))
	}
	seen := map[string]int{}
	for _, c := range got {
		seen[c.ID]++
	}
	if seen["both"] != 1 {
		t.Errorf("Expected card 'both' once, but got %d", seen["both"])
	}
}

func TestExamFillsToTarget(t *testing.T) {
	var cards []domain.Card
	// Only learning cards with a healthy easiness factor: none of the three
	// buckets match, so the whole exam comes from the random top-up.
	for i := 0; i < 12; i++ {
		cards = append(cards, reviewed(fmt.Sprintf("l%d", i), t0, t0, 2.5, domain.StatusLearning))
	}
	got := Exam(cards, seeded())
	if len(got) != ExamTarget {
		t.Errorf("Expected %d cards, but got %d", ExamTarget, len(got))
	}
}

func TestExamBounds(t *testing.T) {
	for size := 0; size <= 40; size++ {
		var cards []domain.Card
		for i := 0; i < size; i++ {
			switch i % 3 {
			case 0:
				cards = append(cards, card(fmt.Sprintf("c%d", i), t0.Add(time.Duration(i)*time.Minute)))
			case 1:
				cards = append(cards, reviewed(fmt.Sprintf("c%d", i), t0, t0, 2.0, domain.StatusLearning))
			default:
				cards = append(cards, reviewed(fmt.Sprintf("c%d", i), t0, t0, 3.0, domain.StatusMastered))
			}
		}
		got := Exam(cards, rand.New(rand.NewPCG(uint64(size), 7)))
		if len(got) > ExamLimit {
			t.Errorf("size %d: Expected at most %d cards, but got %d", size, ExamLimit, len(got))
		}
		if size >= ExamTarget && len(got) < ExamTarget {
			t.Errorf("size %d: Expected at least %d cards, but got %d", size, ExamTarget, len(got))
		}
		if size < ExamTarget && len(got) != size {
			t.Errorf("size %d: Expected every card, but got %d", size, len(got))
		}
	}
}
