package storage

import (
	"context"
	"errors"

	"github.com/conorfennell/growfluent/internal/domain"
)

var (
	// ErrNotFound is returned when a card or source does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrPersistenceFailed marks a remote write that did not go through.
	ErrPersistenceFailed = errors.New("storage: remote persistence failed")
	// ErrCollectionMissing is returned by the remote store when its backing
	// tables are gone. The fallback store stops using the remote after it.
	ErrCollectionMissing = errors.New("storage: remote collection missing")
)

// Store is the persistence contract the scheduler relies on. Cards are
// always written whole; there are no partial-field updates.
type Store interface {
	// LoadCards returns the cards of lang, or every card when lang is nil,
	// newest first.
	LoadCards(ctx context.Context, lang *domain.Language) ([]domain.Card, error)
	UpsertCard(ctx context.Context, card domain.Card) error
	DeleteCard(ctx context.Context, id string) error
	// LoadExamHistory returns every exam report, newest first.
	LoadExamHistory(ctx context.Context) ([]domain.ExamReport, error)
	AppendExamReport(ctx context.Context, report domain.ExamReport) error
}
