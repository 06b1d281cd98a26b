package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rucyang/metadata/internal/domain/model"
)

// DossierRepository — интерфейс CRUD для таблицы dossiers.
type DossierRepository interface {
	// Create создаёт дело; ErrConflict при занятом имени.
	Create(ctx context.Context, d *model.Dossier) error
	GetByID(ctx context.Context, id int64) (*model.Dossier, error)
	GetByName(ctx context.Context, name string) (*model.Dossier, error)
	// List возвращает дела по имени; query — подстрока имени.
	List(ctx context.Context, query string, limit, offset int) ([]*model.Dossier, error)
	Count(ctx context.Context, query string) (int, error)
	Update(ctx context.Context, d *model.Dossier) error
	Delete(ctx context.Context, id int64) error
}

// dossierRepo — реализация DossierRepository.
type dossierRepo struct {
	db DBTX
}

// NewDossierRepository создаёт репозиторий дел.
func NewDossierRepository(db DBTX) DossierRepository {
	return &dossierRepo{db: db}
}

func (r *dossierRepo) Create(ctx context.Context, d *model.Dossier) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO dossiers (name) VALUES ($1) RETURNING id, created_at`, d.Name,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: дело %q уже существует", ErrConflict, d.Name)
		}
		return fmt.Errorf("ошибка создания дела: %w", err)
	}
	return nil
}

func (r *dossierRepo) getOne(ctx context.Context, query string, arg any) (*model.Dossier, error) {
	d := &model.Dossier{}
	err := r.db.QueryRow(ctx, query, arg).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения дела: %w", err)
	}
	return d, nil
}

func (r *dossierRepo) GetByID(ctx context.Context, id int64) (*model.Dossier, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM dossiers WHERE id = $1`, id)
}

func (r *dossierRepo) GetByName(ctx context.Context, name string) (*model.Dossier, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM dossiers WHERE name = $1`, name)
}

func (r *dossierRepo) List(ctx context.Context, q string, limit, offset int) ([]*model.Dossier, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, created_at FROM dossiers
		WHERE $1::text = '' OR name ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2 OFFSET $3`, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка дел: %w", err)
	}
	defer rows.Close()

	var result []*model.Dossier
	for rows.Next() {
		d := &model.Dossier{}
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования дела: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *dossierRepo) Count(ctx context.Context, q string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM dossiers
		WHERE $1::text = '' OR name ILIKE '%' || $1 || '%'`, q).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта дел: %w", err)
	}
	return count, nil
}

func (r *dossierRepo) Update(ctx context.Context, d *model.Dossier) error {
	tag, err := r.db.Exec(ctx, `UPDATE dossiers SET name = $2 WHERE id = $1`, d.ID, d.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: дело %q уже существует", ErrConflict, d.Name)
		}
		return fmt.Errorf("ошибка обновления дела: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *dossierRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM dossiers WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: в деле есть файлы", ErrConflict)
		}
		return fmt.Errorf("ошибка удаления дела: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
