package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rucyang/metadata/internal/domain/model"
)

// RoleRepository — интерфейс CRUD для таблицы roles.
type RoleRepository interface {
	// Upsert создаёт роль или обновляет права и флаг по умолчанию по имени.
	Upsert(ctx context.Context, role *model.Role) error
	GetByID(ctx context.Context, id int64) (*model.Role, error)
	GetByName(ctx context.Context, name string) (*model.Role, error)
	// GetDefault возвращает роль с is_default = TRUE (наименьший id).
	GetDefault(ctx context.Context) (*model.Role, error)
	List(ctx context.Context) ([]*model.Role, error)
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, id int64) error
}

// roleRepo — реализация RoleRepository.
type roleRepo struct {
	db DBTX
}

// NewRoleRepository создаёт репозиторий ролей.
func NewRoleRepository(db DBTX) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) Upsert(ctx context.Context, role *model.Role) error {
	query := `
		INSERT INTO roles (name, is_default, permissions)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			is_default = EXCLUDED.is_default,
			permissions = EXCLUDED.permissions
		RETURNING id`

	if err := r.db.QueryRow(ctx, query, role.Name, role.IsDefault, role.Permissions).Scan(&role.ID); err != nil {
		return fmt.Errorf("ошибка upsert роли %s: %w", role.Name, err)
	}
	return nil
}

func (r *roleRepo) getOne(ctx context.Context, query string, args ...any) (*model.Role, error) {
	role := &model.Role{}
	err := r.db.QueryRow(ctx, query, args...).Scan(&role.ID, &role.Name, &role.IsDefault, &role.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения роли: %w", err)
	}
	return role, nil
}

func (r *roleRepo) GetByID(ctx context.Context, id int64) (*model.Role, error) {
	return r.getOne(ctx, `SELECT id, name, is_default, permissions FROM roles WHERE id = $1`, id)
}

func (r *roleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	return r.getOne(ctx, `SELECT id, name, is_default, permissions FROM roles WHERE name = $1`, name)
}

func (r *roleRepo) GetDefault(ctx context.Context) (*model.Role, error) {
	return r.getOne(ctx, `
		SELECT id, name, is_default, permissions FROM roles
		WHERE is_default
		ORDER BY id
		LIMIT 1`)
}

func (r *roleRepo) List(ctx context.Context) ([]*model.Role, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, is_default, permissions FROM roles ORDER BY permissions, id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка ролей: %w", err)
	}
	defer rows.Close()

	var result []*model.Role
	for rows.Next() {
		role := &model.Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.IsDefault, &role.Permissions); err != nil {
			return nil, fmt.Errorf("ошибка сканирования роли: %w", err)
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

func (r *roleRepo) Update(ctx context.Context, role *model.Role) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE roles SET name = $2, is_default = $3, permissions = $4 WHERE id = $1`,
		role.ID, role.Name, role.IsDefault, role.Permissions,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: роль с именем %q уже существует", ErrConflict, role.Name)
		}
		return fmt.Errorf("ошибка обновления роли: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *roleRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: роль назначена пользователям", ErrConflict)
		}
		return fmt.Errorf("ошибка удаления роли: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
