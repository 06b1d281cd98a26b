package service

import (
	"context"
	"errors"

	"github.com/rucyang/metadata/internal/repository"
)

// Lookup реализует forms.Lookup поверх репозиториев.
type Lookup struct {
	users    repository.UserRepository
	dossiers repository.DossierRepository
	roles    repository.RoleRepository
}

// NewLookup создаёт Lookup.
func NewLookup(users repository.UserRepository, dossiers repository.DossierRepository, roles repository.RoleRepository) *Lookup {
	return &Lookup{users: users, dossiers: dossiers, roles: roles}
}

// exists переводит ErrNotFound в false.
func exists(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (l *Lookup) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := l.users.GetByEmail(ctx, email)
	return exists(err)
}

func (l *Lookup) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := l.users.GetByUsername(ctx, username)
	return exists(err)
}

func (l *Lookup) DossierExists(ctx context.Context, id int64) (bool, error) {
	_, err := l.dossiers.GetByID(ctx, id)
	return exists(err)
}

func (l *Lookup) DossierNameExists(ctx context.Context, name string) (bool, error) {
	_, err := l.dossiers.GetByName(ctx, name)
	return exists(err)
}

func (l *Lookup) RoleExists(ctx context.Context, id int64) (bool, error) {
	_, err := l.roles.GetByID(ctx, id)
	return exists(err)
}
