package repository

import (
	"context"
	"fmt"

	"github.com/rucyang/metadata/internal/domain/model"
)

// TagRepository — интерфейс доступа к таблице tags.
type TagRepository interface {
	// GetOrCreate возвращает тег по имени, создавая его при отсутствии.
	GetOrCreate(ctx context.Context, name string) (*model.Tag, error)
	List(ctx context.Context, query string, limit, offset int) ([]*model.Tag, error)
	Count(ctx context.Context, query string) (int, error)
	Delete(ctx context.Context, id int64) error
}

// tagRepo — реализация TagRepository.
type tagRepo struct {
	db DBTX
}

// NewTagRepository создаёт репозиторий тегов.
func NewTagRepository(db DBTX) TagRepository {
	return &tagRepo{db: db}
}

func (r *tagRepo) GetOrCreate(ctx context.Context, name string) (*model.Tag, error) {
	// DO UPDATE нужен, чтобы RETURNING вернул id и для существующей строки
	tag := &model.Tag{}
	err := r.db.QueryRow(ctx, `
		INSERT INTO tags (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`, name,
	).Scan(&tag.ID, &tag.Name)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тега %q: %w", name, err)
	}
	return tag, nil
}

func (r *tagRepo) List(ctx context.Context, q string, limit, offset int) ([]*model.Tag, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name FROM tags
		WHERE $1::text = '' OR name ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2 OFFSET $3`, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка тегов: %w", err)
	}
	defer rows.Close()

	var result []*model.Tag
	for rows.Next() {
		t := &model.Tag{}
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования тега: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *tagRepo) Count(ctx context.Context, q string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM tags
		WHERE $1::text = '' OR name ILIKE '%' || $1 || '%'`, q).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта тегов: %w", err)
	}
	return count, nil
}

func (r *tagRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления тега: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
