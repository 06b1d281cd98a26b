package service

import (
	"context"
	"log/slog"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/repository"
)

// maxDossiers — верхняя граница списка дел в форме загрузки.
const maxDossiers = 10000

// DossierService — дела (коллекции файлов).
type DossierService struct {
	dossiers repository.DossierRepository
	lookup   forms.Lookup
	index    SearchIndex
	logger   *slog.Logger
}

// NewDossierService создаёт DossierService.
func NewDossierService(dossiers repository.DossierRepository, lookup forms.Lookup, index SearchIndex, logger *slog.Logger) *DossierService {
	return &DossierService{
		dossiers: dossiers,
		lookup:   lookup,
		index:    index,
		logger:   logger.With(slog.String("component", "dossier_service")),
	}
}

// Create создаёт дело с уникальным непустым именем.
func (s *DossierService) Create(ctx context.Context, actor rbac.Principal, form *forms.DossierForm) (*model.Dossier, error) {
	if !actor.IsAuthenticated() {
		return nil, ErrForbidden
	}

	errs, err := form.Validate(ctx, s.lookup)
	if err != nil {
		return nil, err
	}
	if errs != nil {
		return nil, invalid(errs)
	}

	d := &model.Dossier{Name: form.Name}
	if err := s.dossiers.Create(ctx, d); err != nil {
		return nil, mapRepoErr(err, "дело "+form.Name)
	}

	if err := s.index.IndexDossier(d); err != nil {
		s.logger.Warn("Не удалось проиндексировать дело",
			slog.Int64("dossier_id", d.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Дело создано",
		slog.Int64("dossier_id", d.ID),
		slog.String("name", d.Name),
		slog.Int64("user_id", actor.ID()),
	)
	return d, nil
}

// List возвращает все дела по имени.
func (s *DossierService) List(ctx context.Context) ([]*model.Dossier, error) {
	return s.dossiers.List(ctx, "", maxDossiers, 0)
}

// Get возвращает дело по ID.
func (s *DossierService) Get(ctx context.Context, id int64) (*model.Dossier, error) {
	d, err := s.dossiers.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "дело")
	}
	return d, nil
}
