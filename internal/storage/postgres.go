package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conorfennell/growfluent/internal/domain"
	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS flashcards (
    id TEXT PRIMARY KEY,
    language TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    doc JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS exam_history (
    id TEXT PRIMARY KEY,
    date BIGINT NOT NULL,
    doc JSONB NOT NULL
);
`

// Postgres is the remote document store. Each card and report is kept as a
// single JSON document keyed by id.
type Postgres struct {
	conn *sql.DB
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to the remote store and creates its collections.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to remote store: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply remote schema: %w", err)
	}
	return &Postgres{conn: db}, nil
}

// Close closes the remote connection.
func (p *Postgres) Close() error {
	return p.conn.Close()
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" { // undefined_table
		return fmt.Errorf("%w: %s", ErrCollectionMissing, pqErr.Message)
	}
	return err
}

// LoadCards returns the remote cards of lang (or all), newest first.
func (p *Postgres) LoadCards(ctx context.Context, lang *domain.Language) ([]domain.Card, error) {
	query := `SELECT doc FROM flashcards`
	var args []any
	if lang != nil {
		query += ` WHERE language = $1`
		args = append(args, string(*lang))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load remote cards: %w", classify(err))
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan remote card: %w", err)
		}
		var c domain.Card
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, fmt.Errorf("failed to decode remote card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate remote cards: %w", classify(err))
	}
	return cards, nil
}

// UpsertCard replaces the card document.
func (p *Postgres) UpsertCard(ctx context.Context, card domain.Card) error {
	doc, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to encode card %s: %w", card.ID, err)
	}
	_, err = p.conn.ExecContext(ctx, `
		INSERT INTO flashcards (id, language, created_at, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			language = EXCLUDED.language,
			created_at = EXCLUDED.created_at,
			doc = EXCLUDED.doc
	`, card.ID, string(card.Language), card.CreatedAt.UnixMilli(), doc)
	if err != nil {
		return fmt.Errorf("failed to upsert remote card %s: %w", card.ID, classify(err))
	}
	return nil
}

// DeleteCard removes the card document. Deleting a missing card is not an
// error on the remote side.
func (p *Postgres) DeleteCard(ctx context.Context, id string) error {
	if _, err := p.conn.ExecContext(ctx, `DELETE FROM flashcards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete remote card %s: %w", id, classify(err))
	}
	return nil
}

// LoadExamHistory returns the remote exam reports, newest first.
func (p *Postgres) LoadExamHistory(ctx context.Context) ([]domain.ExamReport, error) {
	rows, err := p.conn.QueryContext(ctx, `SELECT doc FROM exam_history ORDER BY date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load remote exam history: %w", classify(err))
	}
	defer rows.Close()

	var reports []domain.ExamReport
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan remote exam report: %w", err)
		}
		var r domain.ExamReport
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("failed to decode remote exam report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate remote exam history: %w", classify(err))
	}
	return reports, nil
}

// AppendExamReport stores the report document once.
func (p *Postgres) AppendExamReport(ctx context.Context, report domain.ExamReport) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode exam report %s: %w", report.ID, err)
	}
	_, err = p.conn.ExecContext(ctx, `
		INSERT INTO exam_history (id, date, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, report.ID, report.Date.UnixMilli(), doc)
	if err != nil {
		return fmt.Errorf("failed to append remote exam report %s: %w", report.ID, classify(err))
	}
	return nil
}
