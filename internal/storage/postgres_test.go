package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/growfluent/internal/domain"
)

func TestClassify(t *testing.T) {
	err := classify(&pq.Error{Code: "42P01", Message: `relation "flashcards" does not exist`})
	assert.ErrorIs(t, err, ErrCollectionMissing)

	other := errors.New("boom")
	assert.Equal(t, other, classify(other))
}

// TestPostgresStore runs against a real database when
// GROWFLUENT_TEST_PG_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("GROWFLUENT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("GROWFLUENT_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	suffix := fmt.Sprint(time.Now().UnixNano())
	card := testCard("pg-"+suffix, domain.Catalan, t0)
	require.NoError(t, p.UpsertCard(ctx, card))
	t.Cleanup(func() { p.DeleteCard(ctx, card.ID) })

	cat := domain.Catalan
	cards, err := p.LoadCards(ctx, &cat)
	require.NoError(t, err)
	var found bool
	for _, c := range cards {
		if c.ID == card.ID {
			found = true
			assert.Equal(t, card.Translation, c.Translation)
		}
	}
	assert.True(t, found)

	report := domain.ExamReport{ID: "pg-report-" + suffix, Date: t0, Language: domain.Catalan}
	require.NoError(t, p.AppendExamReport(ctx, report))
	require.NoError(t, p.AppendExamReport(ctx, report))
}
