package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rucyang/metadata/internal/domain/model"
)

// UserRepository — интерфейс CRUD для таблицы users.
type UserRepository interface {
	// Create создаёт пользователя; ErrConflict при занятом email или username.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// Update перезаписывает профиль, email, username, confirmed и роль.
	Update(ctx context.Context, u *model.User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	// UpdateEmail меняет только email; ErrConflict, если адрес занят.
	UpdateEmail(ctx context.Context, id int64, email string) error
	SetConfirmed(ctx context.Context, id int64) error
	// Touch обновляет last_seen.
	Touch(ctx context.Context, id int64, at time.Time) error
	// List возвращает пользователей; query — подстрока username или email.
	List(ctx context.Context, query string, limit, offset int) ([]*model.User, error)
	Count(ctx context.Context, query string) (int, error)
	Delete(ctx context.Context, id int64) error
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, email, username, password_hash, confirmed, name, location,
	about_me, member_since, last_seen, role_id`

func scanUser(row scanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Confirmed, &u.Name, &u.Location,
		&u.AboutMe, &u.MemberSince, &u.LastSeen, &u.RoleID,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, confirmed, name, location, about_me, role_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, member_since, last_seen`

	err := r.db.QueryRow(ctx, query,
		u.Email, u.Username, u.PasswordHash, u.Confirmed, u.Name, u.Location, u.AboutMe, u.RoleID,
	).Scan(&u.ID, &u.MemberSince, &u.LastSeen)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь с таким email или username уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, where)
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, "id", id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email", email)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "username", username)
}

func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET email = $2, username = $3, confirmed = $4, name = $5,
			location = $6, about_me = $7, role_id = $8
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		u.ID, u.Email, u.Username, u.Confirmed, u.Name, u.Location, u.AboutMe, u.RoleID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email или username уже заняты", ErrConflict)
		}
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) exec(ctx context.Context, what, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ошибка %s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.exec(ctx, "смены пароля",
		`UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
}

func (r *userRepo) UpdateEmail(ctx context.Context, id int64, email string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET email = $2 WHERE id = $1`, id, email)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s уже занят", ErrConflict, email)
		}
		return fmt.Errorf("ошибка смены email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) SetConfirmed(ctx context.Context, id int64) error {
	return r.exec(ctx, "подтверждения пользователя",
		`UPDATE users SET confirmed = TRUE WHERE id = $1`, id)
}

func (r *userRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "обновления last_seen",
		`UPDATE users SET last_seen = $2 WHERE id = $1`, id, at)
}

func (r *userRepo) List(ctx context.Context, q string, limit, offset int) ([]*model.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		WHERE $1::text = '' OR username ILIKE '%%' || $1 || '%%' OR email ILIKE '%%' || $1 || '%%'
		ORDER BY id
		LIMIT $2 OFFSET $3`, userColumns)

	rows, err := r.db.Query(ctx, query, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) Count(ctx context.Context, q string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM users
		WHERE $1::text = '' OR username ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'`, q,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

func (r *userRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: у пользователя есть файлы", ErrConflict)
		}
		return fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
