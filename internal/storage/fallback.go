package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/conorfennell/growfluent/internal/domain"
)

// Fallback writes every change to the local store first and then, best
// effort, to the remote store. Reads prefer the remote store and mirror
// what they find locally; when the remote cannot be read the local copy is
// served instead.
type Fallback struct {
	local  Store
	remote Store
	logger *slog.Logger
	active atomic.Bool
	locks  KeyedMutex

	// deleted holds ids removed locally whose remote delete has not gone
	// through yet. Mirroring skips them.
	deletedMu sync.Mutex
	deleted   map[string]bool
}

var _ Store = (*Fallback)(nil)

// NewFallback composes a local and an optional remote store. A nil remote
// makes the fallback a thin wrapper around local.
func NewFallback(local, remote Store, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fallback{local: local, remote: remote, logger: logger, deleted: map[string]bool{}}
	f.active.Store(remote != nil)
	return f
}

// RemoteActive reports whether the remote store is still being used.
func (f *Fallback) RemoteActive() bool {
	return f.active.Load()
}

func (f *Fallback) remoteFailed(op string, err error) {
	f.logger.Warn("Remote store operation failed, using local copy",
		"op", op,
		"error", fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
	if errors.Is(err, ErrCollectionMissing) {
		f.logger.Warn("Remote collection missing, disabling remote store for this process")
		f.active.Store(false)
	}
}

// LoadCards mirrors remote cards into the local store and returns the local
// view. A remote card replaces the local one only when it has been reviewed
// more times, so updates written locally during an outage are kept. Cards
// deleted locally whose remote delete failed are not brought back.
func (f *Fallback) LoadCards(ctx context.Context, lang *domain.Language) ([]domain.Card, error) {
	if f.active.Load() {
		remote, err := f.remote.LoadCards(ctx, lang)
		if err != nil {
			f.remoteFailed("load_cards", err)
		} else if err := f.mirrorCards(ctx, lang, remote); err != nil {
			return nil, err
		}
	}
	return f.local.LoadCards(ctx, lang)
}

func (f *Fallback) mirrorCards(ctx context.Context, lang *domain.Language, remote []domain.Card) error {
	local, err := f.local.LoadCards(ctx, lang)
	if err != nil {
		return err
	}
	known := make(map[string]int, len(local))
	for _, c := range local {
		known[c.ID] = c.TimesReviewed
	}
	for _, c := range remote {
		if f.pendingDelete(c.ID) {
			f.retryDelete(ctx, c.ID)
			continue
		}
		reviewed, ok := known[c.ID]
		if ok && reviewed >= c.TimesReviewed {
			continue
		}
		unlock := f.locks.Lock(c.ID)
		if f.pendingDelete(c.ID) {
			unlock()
			continue
		}
		err := f.local.UpsertCard(ctx, c)
		unlock()
		if err != nil {
			return fmt.Errorf("failed to mirror remote card %s: %w", c.ID, err)
		}
	}
	return nil
}

// UpsertCard stores the full card. Writes for the same id never overlap.
func (f *Fallback) UpsertCard(ctx context.Context, card domain.Card) error {
	unlock := f.locks.Lock(card.ID)
	defer unlock()

	if err := f.local.UpsertCard(ctx, card); err != nil {
		return err
	}
	f.setDeleted(card.ID, false)
	if f.active.Load() {
		if err := f.remote.UpsertCard(ctx, card); err != nil {
			f.remoteFailed("upsert_card", err)
		}
	}
	return nil
}

// DeleteCard removes the card locally and, best effort, remotely.
func (f *Fallback) DeleteCard(ctx context.Context, id string) error {
	unlock := f.locks.Lock(id)
	defer unlock()

	if err := f.local.DeleteCard(ctx, id); err != nil {
		return err
	}
	if f.active.Load() {
		if err := f.remote.DeleteCard(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			f.setDeleted(id, true)
			f.remoteFailed("delete_card", err)
		}
	}
	return nil
}

// retryDelete repeats a remote delete that failed earlier.
func (f *Fallback) retryDelete(ctx context.Context, id string) {
	unlock := f.locks.Lock(id)
	defer unlock()
	if !f.pendingDelete(id) {
		return
	}
	if err := f.remote.DeleteCard(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		f.remoteFailed("delete_card", err)
		return
	}
	f.setDeleted(id, false)
}

func (f *Fallback) pendingDelete(id string) bool {
	f.deletedMu.Lock()
	defer f.deletedMu.Unlock()
	return f.deleted[id]
}

func (f *Fallback) setDeleted(id string, pending bool) {
	f.deletedMu.Lock()
	defer f.deletedMu.Unlock()
	if pending {
		f.deleted[id] = true
	} else {
		delete(f.deleted, id)
	}
}

// LoadExamHistory merges the remote history into the local one.
func (f *Fallback) LoadExamHistory(ctx context.Context) ([]domain.ExamReport, error) {
	if f.active.Load() {
		remote, err := f.remote.LoadExamHistory(ctx)
		if err != nil {
			f.remoteFailed("load_exam_history", err)
		} else {
			for _, r := range remote {
				if err := f.local.AppendExamReport(ctx, r); err != nil {
					return nil, fmt.Errorf("failed to mirror remote exam report %s: %w", r.ID, err)
				}
			}
		}
	}
	return f.local.LoadExamHistory(ctx)
}

// AppendExamReport stores the report locally and, best effort, remotely.
func (f *Fallback) AppendExamReport(ctx context.Context, report domain.ExamReport) error {
	if err := f.local.AppendExamReport(ctx, report); err != nil {
		return err
	}
	if f.active.Load() {
		if err := f.remote.AppendExamReport(ctx, report); err != nil {
			f.remoteFailed("append_exam_report", err)
		}
	}
	return nil
}
