package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/repository"
)

// rebuildPageSize — размер страницы чтения из БД при перестроении.
const rebuildPageSize = 500

// FileSource — чтение файлов для индексации.
type FileSource interface {
	List(ctx context.Context, filters repository.FileListFilters, limit, offset int) ([]*model.File, error)
}

// DossierSource — чтение дел для индексации.
type DossierSource interface {
	List(ctx context.Context, query string, limit, offset int) ([]*model.Dossier, error)
}

// UserSource — чтение пользователей для индексации.
type UserSource interface {
	List(ctx context.Context, query string, limit, offset int) ([]*model.User, error)
}

// Indexer перестраивает индекс по данным PostgreSQL.
type Indexer struct {
	index    *Index
	files    FileSource
	dossiers DossierSource
	users    UserSource
	logger   *slog.Logger
}

// NewIndexer создаёт Indexer.
func NewIndexer(index *Index, files FileSource, dossiers DossierSource, users UserSource, logger *slog.Logger) *Indexer {
	return &Indexer{
		index:    index,
		files:    files,
		dossiers: dossiers,
		users:    users,
		logger:   logger.With(slog.String("component", "search_indexer")),
	}
}

// Rebuild индексирует все видимые файлы, дела и пользователей.
// Типы обрабатываются параллельно; первая ошибка отменяет остальные.
func (ix *Indexer) Rebuild(ctx context.Context) error {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	var nFiles, nDossiers, nUsers int

	g.Go(func() error {
		visible := false
		var err error
		nFiles, err = rebuildKind(ctx, ix.index, func(ctx context.Context, offset int) ([]*model.File, error) {
			return ix.files.List(ctx, repository.FileListFilters{Hidden: &visible}, rebuildPageSize, offset)
		}, func(f *model.File) (string, map[string]interface{}) {
			return docID(KindFile, f.ID), fileDocument(f)
		})
		return err
	})
	g.Go(func() error {
		var err error
		nDossiers, err = rebuildKind(ctx, ix.index, func(ctx context.Context, offset int) ([]*model.Dossier, error) {
			return ix.dossiers.List(ctx, "", rebuildPageSize, offset)
		}, func(d *model.Dossier) (string, map[string]interface{}) {
			return docID(KindDossier, d.ID), dossierDocument(d)
		})
		return err
	})
	g.Go(func() error {
		var err error
		nUsers, err = rebuildKind(ctx, ix.index, func(ctx context.Context, offset int) ([]*model.User, error) {
			return ix.users.List(ctx, "", rebuildPageSize, offset)
		}, func(u *model.User) (string, map[string]interface{}) {
			return docID(KindUser, u.ID), userDocument(u)
		})
		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("ошибка перестроения индекса: %w", err)
	}

	ix.logger.Info("Поисковый индекс перестроен",
		slog.Int("files", nFiles),
		slog.Int("dossiers", nDossiers),
		slog.Int("users", nUsers),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// rebuildKind постранично читает сущности и индексирует их пакетами.
func rebuildKind[T any](
	ctx context.Context,
	index *Index,
	page func(ctx context.Context, offset int) ([]T, error),
	toDoc func(T) (string, map[string]interface{}),
) (int, error) {
	total := 0
	for offset := 0; ; offset += rebuildPageSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		items, err := page(ctx, offset)
		if err != nil {
			return total, err
		}

		batch := index.idx.NewBatch()
		for _, item := range items {
			id, doc := toDoc(item)
			if err := batch.Index(id, doc); err != nil {
				return total, fmt.Errorf("ошибка индексации %s: %w", id, err)
			}
		}
		if err := index.idx.Batch(batch); err != nil {
			return total, fmt.Errorf("ошибка записи пакета: %w", err)
		}
		total += len(items)

		if len(items) < rebuildPageSize {
			return total, nil
		}
	}
}
