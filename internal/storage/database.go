package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/growfluent/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB is the local SQLite store. It is always available and is the
// authoritative copy when the remote store cannot be reached.
type DB struct {
	conn *sql.DB
}

var _ Store = (*DB)(nil)

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const cardColumns = `id, phrase, language, created_at, next_review_at, last_interval,
	repetition_count, easiness_factor, status, times_reviewed, success_count,
	failure_count, last_exam_score, enrichment, pronunciation_history, sentence_history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.Card, error) {
	var (
		c                                  domain.Card
		createdAt, nextReviewAt            int64
		lastExamScore                      sql.NullFloat64
		enrichment, pronHistory, sentences string
	)
	err := row.Scan(
		&c.ID,
		&c.Phrase,
		&c.Language,
		&createdAt,
		&nextReviewAt,
		&c.LastInterval,
		&c.RepetitionCount,
		&c.EasinessFactor,
		&c.Status,
		&c.TimesReviewed,
		&c.SuccessCount,
		&c.FailureCount,
		&lastExamScore,
		&enrichment,
		&pronHistory,
		&sentences,
	)
	if err != nil {
		return domain.Card{}, err
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.NextReviewAt = time.UnixMilli(nextReviewAt).UTC()
	if lastExamScore.Valid {
		v := lastExamScore.Float64
		c.LastExamScore = &v
	}
	if err := json.Unmarshal([]byte(enrichment), &c.Enrichment); err != nil {
		return domain.Card{}, fmt.Errorf("failed to decode enrichment of card %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(pronHistory), &c.PronunciationHistory); err != nil {
		return domain.Card{}, fmt.Errorf("failed to decode pronunciation history of card %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(sentences), &c.SentenceHistory); err != nil {
		return domain.Card{}, fmt.Errorf("failed to decode sentence history of card %s: %w", c.ID, err)
	}
	return c, nil
}

// LoadCards returns the cards of lang (or all cards), newest first.
func (db *DB) LoadCards(ctx context.Context, lang *domain.Language) ([]domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards`
	var args []any
	if lang != nil {
		query += ` WHERE language = ?`
		args = append(args, string(*lang))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate card rows: %w", err)
	}
	return cards, nil
}

// FindCard retrieves a card by its id. It returns ErrNotFound when no such
// card exists.
func (db *DB) FindCard(ctx context.Context, id string) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, ErrNotFound
		}
		return domain.Card{}, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	return c, nil
}

// UpsertCard writes the whole card, replacing any previous version.
func (db *DB) UpsertCard(ctx context.Context, card domain.Card) error {
	return db.upsertCard(ctx, card, sql.NullInt64{})
}

// InsertImportedCard inserts a card that came from a deck source. Existing
// cards keep their review state.
func (db *DB) InsertImportedCard(ctx context.Context, card domain.Card, sourceID int64) (bool, error) {
	if _, err := db.FindCard(ctx, card.ID); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if err := db.upsertCard(ctx, card, sql.NullInt64{Int64: sourceID, Valid: true}); err != nil {
		return false, err
	}
	return true, nil
}

func (db *DB) upsertCard(ctx context.Context, card domain.Card, sourceID sql.NullInt64) error {
	enrichment, err := json.Marshal(card.Enrichment)
	if err != nil {
		return fmt.Errorf("failed to encode enrichment of card %s: %w", card.ID, err)
	}
	pronHistory, err := json.Marshal(nonNil(card.PronunciationHistory))
	if err != nil {
		return fmt.Errorf("failed to encode pronunciation history of card %s: %w", card.ID, err)
	}
	sentences, err := json.Marshal(nonNil(card.SentenceHistory))
	if err != nil {
		return fmt.Errorf("failed to encode sentence history of card %s: %w", card.ID, err)
	}
	var lastExamScore sql.NullFloat64
	if card.LastExamScore != nil {
		lastExamScore = sql.NullFloat64{Float64: *card.LastExamScore, Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phrase = excluded.phrase,
			language = excluded.language,
			created_at = excluded.created_at,
			next_review_at = excluded.next_review_at,
			last_interval = excluded.last_interval,
			repetition_count = excluded.repetition_count,
			easiness_factor = excluded.easiness_factor,
			status = excluded.status,
			times_reviewed = excluded.times_reviewed,
			success_count = excluded.success_count,
			failure_count = excluded.failure_count,
			last_exam_score = excluded.last_exam_score,
			enrichment = excluded.enrichment,
			pronunciation_history = excluded.pronunciation_history,
			sentence_history = excluded.sentence_history,
			source_id = COALESCE(excluded.source_id, cards.source_id)
	`,
		card.ID,
		card.Phrase,
		string(card.Language),
		card.CreatedAt.UnixMilli(),
		card.NextReviewAt.UnixMilli(),
		card.LastInterval,
		card.RepetitionCount,
		card.EasinessFactor,
		string(card.Status),
		card.TimesReviewed,
		card.SuccessCount,
		card.FailureCount,
		lastExamScore,
		string(enrichment),
		string(pronHistory),
		string(sentences),
		sourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", card.ID, err)
	}
	return nil
}

// DeleteCard removes a card from the database by its id.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card with id %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deletion of card %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadExamHistory returns every stored exam report, newest first.
func (db *DB) LoadExamHistory(ctx context.Context) ([]domain.ExamReport, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT body FROM exam_reports ORDER BY date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam history: %w", err)
	}
	defer rows.Close()

	var reports []domain.ExamReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan exam report row: %w", err)
		}
		var r domain.ExamReport
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("failed to decode exam report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exam report rows: %w", err)
	}
	return reports, nil
}

// AppendExamReport stores a finished exam. Appending the same report twice
// is a no-op.
func (db *DB) AppendExamReport(ctx context.Context, report domain.ExamReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode exam report %s: %w", report.ID, err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO exam_reports (id, date, language, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, report.ID, report.Date.UnixMilli(), string(report.Language), string(body))
	if err != nil {
		return fmt.Errorf("failed to append exam report %s: %w", report.ID, err)
	}
	return nil
}

// Source represents a deck source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	Language    domain.Language
	LastScanned sql.NullTime
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType string, lang domain.Language) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type, language, last_scanned)
		VALUES (?, ?, ?, ?)
	`, path, sourceType, string(lang), time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, language, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&s.ID, &s.Path, &s.Type, &s.Language, &s.LastScanned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, language, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.Language, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source. Cards imported from it are kept and
// detached.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE cards SET source_id = NULL WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to detach cards of source ID %d: %w", sourceID, err)
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
	}
	return nil
}

// GetCardIDsBySourceID retrieves the ids of all cards imported from a source.
func (db *DB) GetCardIDsBySourceID(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM cards WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id for source ID %d: %w", sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
