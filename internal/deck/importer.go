// Package deck imports markdown decks from local directories and git
// repositories into the card collection.
package deck

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/growfluent/internal/domain"
	"github.com/conorfennell/growfluent/internal/gitsource"
	"github.com/conorfennell/growfluent/internal/knol"
	"github.com/conorfennell/growfluent/internal/parser"
	"github.com/conorfennell/growfluent/internal/storage"
)

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Sources is the bookkeeping the importer needs from the local database.
type Sources interface {
	InsertSource(ctx context.Context, path, sourceType string, lang domain.Language) (int64, error)
	FindSourceByPath(ctx context.Context, path string) (*storage.Source, error)
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64) error
	GetCardIDsBySourceID(ctx context.Context, sourceID int64) ([]string, error)
	InsertImportedCard(ctx context.Context, card domain.Card, sourceID int64) (bool, error)
}

// Importer reconciles deck sources with the card collection. New entries
// become new cards; cards whose entry disappeared from the deck are
// deleted; existing cards keep their review state.
type Importer struct {
	sources  Sources
	store    storage.Store
	reposDir string
	logger   *slog.Logger
	now      func() time.Time
	sync     func(ctx context.Context, url, localPath string, logger *slog.Logger) error
}

// NewImporter creates an importer. Git sources are checked out under
// reposDir. Card writes and deletions go through store so that they reach
// every configured backend.
func NewImporter(sources Sources, store storage.Store, reposDir string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		sources:  sources,
		store:    store,
		reposDir: reposDir,
		logger:   logger.With("component", "deck"),
		now:      time.Now,
		sync:     gitsource.Sync,
	}
}

// Result describes one reconciled source.
type Result struct {
	SourceID int64
	Path     string
	Parsed   int
	Inserted int
	Orphaned int
	Errors   []error
}

// AddSource registers a local directory or git URL as a deck of lang. Adding
// a known path returns the existing source.
func (im *Importer) AddSource(ctx context.Context, path string, lang domain.Language) (storage.Source, error) {
	if !lang.Valid() {
		return storage.Source{}, fmt.Errorf("unknown language %q", lang)
	}
	sourceType := SourceLocal
	if gitsource.IsURL(path) {
		sourceType = SourceGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return storage.Source{}, fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		path = abs
	}

	existing, err := im.sources.FindSourceByPath(ctx, path)
	if err != nil {
		return storage.Source{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	id, err := im.sources.InsertSource(ctx, path, sourceType, lang)
	if err != nil {
		return storage.Source{}, err
	}
	im.logger.Info("Source added", "id", id, "type", sourceType, "path", path, "language", lang)
	return storage.Source{ID: id, Path: path, Type: sourceType, Language: lang}, nil
}

// SyncAll reconciles every registered source. A failing source is logged
// and skipped.
func (im *Importer) SyncAll(ctx context.Context) ([]Result, error) {
	sources, err := im.sources.GetAllSources(ctx)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		im.logger.Info("No deck sources configured")
		return nil, nil
	}

	var results []Result
	for _, src := range sources {
		res, err := im.SyncSource(ctx, src)
		if err != nil {
			im.logger.Error("Failed to sync source", "id", src.ID, "path", src.Path, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// SyncSource brings one source up to date.
func (im *Importer) SyncSource(ctx context.Context, src storage.Source) (Result, error) {
	dir := src.Path
	if src.Type == SourceGit {
		local, err := gitsource.LocalPath(im.reposDir, src.Path)
		if err != nil {
			return Result{}, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return Result{}, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := im.sync(ctx, src.Path, local, im.logger); err != nil {
			return Result{}, err
		}
		dir = local
	}
	return im.reconcile(ctx, src, dir)
}

func (im *Importer) reconcile(ctx context.Context, src storage.Source, dir string) (Result, error) {
	res := Result{SourceID: src.ID, Path: src.Path}
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		entries, err := parser.ParseFile(path)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("parsing %s: %w", path, err))
		}
		for _, entry := range entries {
			res.Parsed++
			id := knol.Hash(entry, src.Language)
			found[id] = true

			inserted, err := im.importEntry(ctx, src, id, entry)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("importing %q from %s: %w", entry.Phrase, path, err))
				continue
			}
			if inserted {
				res.Inserted++
			}
		}
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("failed to walk %s: %w", dir, walkErr)
	}

	ids, err := im.sources.GetCardIDsBySourceID(ctx, src.ID)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if found[id] {
			continue
		}
		im.logger.Info("Orphaned card, deleting", "id", id, "source_id", src.ID)
		if err := im.store.DeleteCard(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			im.logger.Warn("Failed to delete orphaned card", "id", id, "error", err)
			continue
		}
		res.Orphaned++
	}

	if err := im.sources.UpdateSourceLastScanned(ctx, src.ID); err != nil {
		im.logger.Warn("Failed to update last scanned for source", "source_id", src.ID, "error", err)
	}

	im.logger.Info("Reconciliation complete",
		"path", src.Path,
		"parsed", res.Parsed,
		"inserted", res.Inserted,
		"orphaned_deleted", res.Orphaned,
		"errors", len(res.Errors))
	return res, nil
}

// importEntry inserts the entry's card unless a card with the same id
// exists. New cards are then written through the store as well.
func (im *Importer) importEntry(ctx context.Context, src storage.Source, id string, entry domain.DeckEntry) (bool, error) {
	card := domain.NewCard(id, entry.Phrase, src.Language, entry.Enrichment(), im.now())
	if err := domain.Validate(card); err != nil {
		return false, err
	}
	inserted, err := im.sources.InsertImportedCard(ctx, card, src.ID)
	if err != nil || !inserted {
		return false, err
	}
	if err := im.store.UpsertCard(ctx, card); err != nil {
		return true, fmt.Errorf("failed to publish card %s: %w", id, err)
	}
	return true, nil
}
