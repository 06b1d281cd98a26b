package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/repository"
)

// RoleService — встроенные роли и их чтение.
type RoleService struct {
	roles  repository.RoleRepository
	logger *slog.Logger
}

// NewRoleService создаёт RoleService.
func NewRoleService(roles repository.RoleRepository, logger *slog.Logger) *RoleService {
	return &RoleService{
		roles:  roles,
		logger: logger.With(slog.String("component", "role_service")),
	}
}

// Seed создаёт или обновляет встроенные роли. Повторный вызов безопасен.
func (s *RoleService) Seed(ctx context.Context) error {
	for _, tier := range rbac.Tiers() {
		role := &model.Role{
			Name:        tier.Name,
			IsDefault:   tier.IsDefault,
			Permissions: int(tier.Permissions),
		}
		if err := s.roles.Upsert(ctx, role); err != nil {
			return fmt.Errorf("ошибка заполнения роли %s: %w", tier.Name, err)
		}
	}
	s.logger.Info("Роли заполнены", slog.Int("count", len(rbac.Tiers())))
	return nil
}

// List возвращает все роли.
func (s *RoleService) List(ctx context.Context) ([]*model.Role, error) {
	return s.roles.List(ctx)
}

// Get возвращает роль по ID.
func (s *RoleService) Get(ctx context.Context, id int64) (*model.Role, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "роль")
	}
	return role, nil
}
