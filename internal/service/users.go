package service

import (
	"context"
	"log/slog"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/repository"
)

// UserService — профили пользователей и загрузка субъектов доступа.
type UserService struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	lookup forms.Lookup
	index  SearchIndex
	cache  *PrincipalCache
	logger *slog.Logger
}

// NewUserService создаёт UserService.
func NewUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	lookup forms.Lookup,
	index SearchIndex,
	cache *PrincipalCache,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:  users,
		roles:  roles,
		lookup: lookup,
		index:  index,
		cache:  cache,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// Get возвращает пользователя по ID.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "пользователь")
	}
	return u, nil
}

// GetByUsername возвращает пользователя по имени.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, mapRepoErr(err, "пользователь "+username)
	}
	return u, nil
}

// UpdateProfile обновляет имя, местоположение и описание самого пользователя.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, form *forms.ProfileForm) (*model.User, error) {
	errs, err := form.Validate()
	if err != nil {
		return nil, err
	}
	if errs != nil {
		return nil, invalid(errs)
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Name = form.Name
	u.Location = form.Location
	u.AboutMe = form.AboutMe

	if err := s.users.Update(ctx, u); err != nil {
		return nil, mapRepoErr(err, "пользователь")
	}
	s.cache.Invalidate(u.ID)
	return u, nil
}

// AdminUpdate — правка любого профиля администратором.
func (s *UserService) AdminUpdate(ctx context.Context, actor rbac.Principal, id int64, form *forms.AdminProfileForm) (*model.User, error) {
	if !actor.IsAdministrator() {
		return nil, ErrForbidden
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	errs, err := form.Validate(ctx, s.lookup, u)
	if err != nil {
		return nil, err
	}
	if errs != nil {
		return nil, invalid(errs)
	}

	form.Apply(u)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, mapRepoErr(err, "email или имя пользователя заняты")
	}
	s.cache.Invalidate(u.ID)

	if err := s.index.IndexUser(u); err != nil {
		s.logger.Warn("Не удалось переиндексировать пользователя",
			slog.Int64("user_id", u.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Профиль изменён администратором",
		slog.Int64("user_id", u.ID),
		slog.Int64("admin_id", actor.ID()),
	)
	return u, nil
}

// Principal возвращает субъект доступа пользователя (через кэш).
func (s *UserService) Principal(ctx context.Context, userID int64) (*rbac.UserPrincipal, error) {
	if p, ok := s.cache.Get(userID); ok {
		return p, nil
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.GetByID(ctx, u.RoleID)
	if err != nil {
		return nil, mapRepoErr(err, "роль пользователя")
	}

	p := rbac.NewUserPrincipal(u, role)
	s.cache.Set(p)
	return p, nil
}

// Invalidate сбрасывает кэшированный субъект пользователя.
func (s *UserService) Invalidate(userID int64) {
	s.cache.Invalidate(userID)
}
