package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/repository"
	"github.com/rucyang/metadata/internal/search"
	"github.com/rucyang/metadata/internal/service"
)

const timeLayout = "2006-01-02 15:04"

// PrincipalCache — сброс кэша субъектов после изменения прав.
type PrincipalCache interface {
	Invalidate(userID int64)
	Purge()
}

// Deps — зависимости источников консоли.
type Deps struct {
	Users    repository.UserRepository
	Roles    repository.RoleRepository
	Files    repository.FileRepository
	Dossiers repository.DossierRepository
	Tags     repository.TagRepository
	Index    service.SearchIndex
	Lookup   forms.Lookup
	Cache    PrincipalCache
}

// NewDefaultRegistry регистрирует пользователей, роли, файлы, дела и теги.
// Создание записей через консоль отключено; теги только удаляются.
func NewDefaultRegistry(deps Deps, logger *slog.Logger) *Registry {
	log := logger.With(slog.String("component", "admin"))
	r := NewRegistry()

	r.Register(Descriptor{
		Name:  "user",
		Title: "admin.entity.user",
		Columns: []Column{
			{Key: "id", Label: "admin.col.id"},
			{Key: "username", Label: "admin.col.username", Searchable: true, Editable: true},
			{Key: "email", Label: "admin.col.email", Searchable: true, Editable: true},
			{Key: "confirmed", Label: "admin.col.confirmed", Editable: true, Bool: true},
			{Key: "role", Label: "admin.col.role", Editable: true},
			{Key: "name", Label: "admin.col.name", Editable: true},
			{Key: "location", Label: "admin.col.location", Editable: true},
			{Key: "about_me", Label: "admin.col.about_me", Editable: true, Multiline: true},
			{Key: "member_since", Label: "admin.col.member_since"},
			{Key: "last_seen", Label: "admin.col.last_seen"},
		},
		CanEdit:   true,
		CanDelete: true,
	}, &userSource{deps: deps, logger: log})

	r.Register(Descriptor{
		Name:  "role",
		Title: "admin.entity.role",
		Columns: []Column{
			{Key: "id", Label: "admin.col.id"},
			{Key: "name", Label: "admin.col.name", Searchable: true, Editable: true},
			{Key: "is_default", Label: "admin.col.is_default", Editable: true, Bool: true},
			{Key: "permissions", Label: "admin.col.permissions", Editable: true},
			{Key: "permission_names", Label: "admin.col.permission_names"},
		},
		CanEdit:   true,
		CanDelete: true,
	}, &roleSource{deps: deps, logger: log})

	r.Register(Descriptor{
		Name:  "file",
		Title: "admin.entity.file",
		Columns: []Column{
			{Key: "id", Label: "admin.col.id"},
			{Key: "title_proper", Label: "admin.col.title", Searchable: true, Editable: true},
			{Key: "filename", Label: "admin.col.filename", Searchable: true},
			{Key: "archive_num", Label: "admin.col.archive_num", Editable: true},
			{Key: "summary", Label: "admin.col.summary", Editable: true, Multiline: true},
			{Key: "creator_id", Label: "admin.col.creator"},
			{Key: "dossier_id", Label: "admin.col.dossier"},
			{Key: "hidden", Label: "admin.col.hidden"},
			{Key: "created_at", Label: "admin.col.created_at"},
		},
		CanEdit:   true,
		CanDelete: true,
	}, &fileSource{deps: deps, logger: log})

	r.Register(Descriptor{
		Name:  "dossier",
		Title: "admin.entity.dossier",
		Columns: []Column{
			{Key: "id", Label: "admin.col.id"},
			{Key: "name", Label: "admin.col.name", Searchable: true, Editable: true},
			{Key: "created_at", Label: "admin.col.created_at"},
		},
		CanEdit:   true,
		CanDelete: true,
	}, &dossierSource{deps: deps, logger: log})

	r.Register(Descriptor{
		Name:  "tag",
		Title: "admin.entity.tag",
		Columns: []Column{
			{Key: "id", Label: "admin.col.id"},
			{Key: "name", Label: "admin.col.name", Searchable: true},
		},
		CanDelete: true,
	}, &tagSource{deps: deps, logger: log})

	return r
}

func mapErr(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", service.ErrNotFound, what)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s", service.ErrConflict, what)
	default:
		return err
	}
}

func invalid(errs forms.Errors) error {
	return &service.ValidationError{Fields: errs}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "y", "yes":
		return true
	}
	return false
}

// --- user ---

type userSource struct {
	deps   Deps
	logger *slog.Logger
}

func userRow(u *model.User) Row {
	return Row{
		"id":           strconv.FormatInt(u.ID, 10),
		"username":     u.Username,
		"email":        u.Email,
		"confirmed":    strconv.FormatBool(u.Confirmed),
		"role":         strconv.FormatInt(u.RoleID, 10),
		"name":         u.Name,
		"location":     u.Location,
		"about_me":     u.AboutMe,
		"member_since": formatTime(u.MemberSince),
		"last_seen":    formatTime(u.LastSeen),
	}
}

func (s *userSource) List(ctx context.Context, q string, limit, offset int) ([]Row, error) {
	users, err := s.deps.Users.List(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(users))
	for _, u := range users {
		rows = append(rows, userRow(u))
	}
	return rows, nil
}

func (s *userSource) Count(ctx context.Context, q string) (int, error) {
	return s.deps.Users.Count(ctx, q)
}

func (s *userSource) Get(ctx context.Context, id int64) (Row, error) {
	u, err := s.deps.Users.GetByID(ctx, id)
	if err != nil {
		return nil, mapErr(err, "пользователь")
	}
	return userRow(u), nil
}

// Update проверяет значения теми же правилами, что и форма
// профиля администратора: уникальность без учёта самого пользователя.
func (s *userSource) Update(ctx context.Context, id int64, values map[string]string) error {
	u, err := s.deps.Users.GetByID(ctx, id)
	if err != nil {
		return mapErr(err, "пользователь")
	}

	roleID, _ := strconv.ParseInt(strings.TrimSpace(values["role"]), 10, 64)
	form := &forms.AdminProfileForm{
		Email:     strings.TrimSpace(values["email"]),
		Username:  strings.TrimSpace(values["username"]),
		Confirmed: parseBool(values["confirmed"]),
		RoleID:    roleID,
		Name:      strings.TrimSpace(values["name"]),
		Location:  strings.TrimSpace(values["location"]),
		AboutMe:   values["about_me"],
	}
	errs, err := form.Validate(ctx, s.deps.Lookup, u)
	if err != nil {
		return err
	}
	if errs != nil {
		return invalid(errs)
	}

	form.Apply(u)
	if err := s.deps.Users.Update(ctx, u); err != nil {
		return mapErr(err, "email или имя пользователя заняты")
	}
	s.deps.Cache.Invalidate(u.ID)
	if err := s.deps.Index.IndexUser(u); err != nil {
		s.logger.Warn("Не удалось переиндексировать пользователя",
			slog.Int64("user_id", u.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("Пользователь изменён через консоль", slog.Int64("user_id", u.ID))
	return nil
}

func (s *userSource) Delete(ctx context.Context, id int64) error {
	if err := s.deps.Users.Delete(ctx, id); err != nil {
		return mapErr(err, "пользователь")
	}
	s.deps.Cache.Invalidate(id)
	if err := s.deps.Index.Remove(search.KindUser, id); err != nil {
		s.logger.Warn("Не удалось удалить пользователя из индекса",
			slog.Int64("user_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("Пользователь удалён через консоль", slog.Int64("user_id", id))
	return nil
}

// --- role ---

type roleSource struct {
	deps   Deps
	logger *slog.Logger
}

func roleRow(r *model.Role) Row {
	return Row{
		"id":               strconv.FormatInt(r.ID, 10),
		"name":             r.Name,
		"is_default":       strconv.FormatBool(r.IsDefault),
		"permissions":      fmt.Sprintf("0x%02x", r.Permissions),
		"permission_names": strings.Join(rbac.PermissionNames(r.Permissions), ", "),
	}
}

// List фильтрует роли в памяти: их немного.
func (s *roleSource) List(ctx context.Context, q string, limit, offset int) ([]Row, error) {
	roles, err := s.filtered(ctx, q)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(roles))
	for i, r := range roles {
		if i < offset {
			continue
		}
		if len(rows) == limit {
			break
		}
		rows = append(rows, roleRow(r))
	}
	return rows, nil
}

func (s *roleSource) filtered(ctx context.Context, q string) ([]*model.Role, error) {
	roles, err := s.deps.Roles.List(ctx)
	if err != nil {
		return nil, err
	}
	if q == "" {
		return roles, nil
	}
	q = strings.ToLower(q)
	var result []*model.Role
	for _, r := range roles {
		if strings.Contains(strings.ToLower(r.Name), q) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *roleSource) Count(ctx context.Context, q string) (int, error) {
	roles, err := s.filtered(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(roles), nil
}

func (s *roleSource) Get(ctx context.Context, id int64) (Row, error) {
	r, err := s.deps.Roles.GetByID(ctx, id)
	if err != nil {
		return nil, mapErr(err, "роль")
	}
	return roleRow(r), nil
}

// Update принимает маску прав в десятичной или шестнадцатеричной (0x..) записи.
func (s *roleSource) Update(ctx context.Context, id int64, values map[string]string) error {
	r, err := s.deps.Roles.GetByID(ctx, id)
	if err != nil {
		return mapErr(err, "роль")
	}

	errs := forms.Errors{}
	name := strings.TrimSpace(values["name"])
	if name == "" {
		errs.Add("name", forms.MsgRequired)
	} else if len([]rune(name)) > 64 {
		errs.Add("name", forms.MsgTooLong)
	}
	perms, err := strconv.ParseInt(strings.TrimSpace(values["permissions"]), 0, 32)
	if err != nil || perms < 0 || perms > 0xff {
		errs.Add("permissions", forms.MsgInvalid)
	}
	if len(errs) > 0 {
		return invalid(errs)
	}

	r.Name = name
	r.IsDefault = parseBool(values["is_default"])
	r.Permissions = int(perms)
	if err := s.deps.Roles.Update(ctx, r); err != nil {
		return mapErr(err, "имя роли занято")
	}
	// Права роли входят в кэшированные субъекты всех её пользователей
	s.deps.Cache.Purge()
	s.logger.Info("Роль изменена через консоль",
		slog.Int64("role_id", r.ID),
		slog.Int("permissions", r.Permissions),
	)
	return nil
}

func (s *roleSource) Delete(ctx context.Context, id int64) error {
	if err := s.deps.Roles.Delete(ctx, id); err != nil {
		return mapErr(err, "роль")
	}
	s.deps.Cache.Purge()
	s.logger.Info("Роль удалена через консоль", slog.Int64("role_id", id))
	return nil
}

// --- file ---

type fileSource struct {
	deps   Deps
	logger *slog.Logger
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func fileRow(f *model.File) Row {
	return Row{
		"id":           strconv.FormatInt(f.ID, 10),
		"title_proper": f.Title.Proper,
		"filename":     f.Filename,
		"archive_num":  f.ArchiveNum,
		"summary":      f.Summary,
		"creator_id":   strconv.FormatInt(f.CreatorID, 10),
		"dossier_id":   optionalID(f.DossierID),
		"hidden":       strconv.FormatBool(f.Hidden),
		"created_at":   formatTime(f.CreatedAt),
	}
}

func (s *fileSource) List(ctx context.Context, q string, limit, offset int) ([]Row, error) {
	files, err := s.deps.Files.List(ctx, repository.FileListFilters{Query: q}, limit, offset)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(files))
	for _, f := range files {
		rows = append(rows, fileRow(f))
	}
	return rows, nil
}

func (s *fileSource) Count(ctx context.Context, q string) (int, error) {
	return s.deps.Files.Count(ctx, repository.FileListFilters{Query: q})
}

func (s *fileSource) Get(ctx context.Context, id int64) (Row, error) {
	f, err := s.deps.Files.GetByID(ctx, id)
	if err != nil {
		return nil, mapErr(err, "файл")
	}
	return fileRow(f), nil
}

func (s *fileSource) Update(ctx context.Context, id int64, values map[string]string) error {
	f, err := s.deps.Files.GetByID(ctx, id)
	if err != nil {
		return mapErr(err, "файл")
	}

	errs := forms.Errors{}
	title := strings.TrimSpace(values["title_proper"])
	archiveNum := strings.TrimSpace(values["archive_num"])
	if title == "" {
		errs.Add("title_proper", forms.MsgRequired)
	}
	if archiveNum == "" {
		errs.Add("archive_num", forms.MsgRequired)
	}
	if len(errs) > 0 {
		return invalid(errs)
	}

	f.Title.Proper = title
	f.ArchiveNum = archiveNum
	f.Summary = values["summary"]
	if err := s.deps.Files.Update(ctx, f); err != nil {
		return mapErr(err, "файл")
	}
	if !f.Hidden {
		if err := s.deps.Index.IndexFile(f); err != nil {
			s.logger.Warn("Не удалось переиндексировать файл",
				slog.Int64("file_id", f.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.Info("Файл изменён через консоль", slog.Int64("file_id", f.ID))
	return nil
}

// Delete удаляет запись физически; объекты в хранилище остаются.
func (s *fileSource) Delete(ctx context.Context, id int64) error {
	if err := s.deps.Files.Delete(ctx, id); err != nil {
		return mapErr(err, "файл")
	}
	if err := s.deps.Index.Remove(search.KindFile, id); err != nil {
		s.logger.Warn("Не удалось удалить файл из индекса",
			slog.Int64("file_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("Файл удалён через консоль", slog.Int64("file_id", id))
	return nil
}

// --- dossier ---

type dossierSource struct {
	deps   Deps
	logger *slog.Logger
}

func dossierRow(d *model.Dossier) Row {
	return Row{
		"id":         strconv.FormatInt(d.ID, 10),
		"name":       d.Name,
		"created_at": formatTime(d.CreatedAt),
	}
}

func (s *dossierSource) List(ctx context.Context, q string, limit, offset int) ([]Row, error) {
	dossiers, err := s.deps.Dossiers.List(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(dossiers))
	for _, d := range dossiers {
		rows = append(rows, dossierRow(d))
	}
	return rows, nil
}

func (s *dossierSource) Count(ctx context.Context, q string) (int, error) {
	return s.deps.Dossiers.Count(ctx, q)
}

func (s *dossierSource) Get(ctx context.Context, id int64) (Row, error) {
	d, err := s.deps.Dossiers.GetByID(ctx, id)
	if err != nil {
		return nil, mapErr(err, "дело")
	}
	return dossierRow(d), nil
}

func (s *dossierSource) Update(ctx context.Context, id int64, values map[string]string) error {
	d, err := s.deps.Dossiers.GetByID(ctx, id)
	if err != nil {
		return mapErr(err, "дело")
	}

	form := &forms.DossierForm{Name: strings.TrimSpace(values["name"])}
	if form.Name != d.Name {
		errs, err := form.Validate(ctx, s.deps.Lookup)
		if err != nil {
			return err
		}
		if errs != nil {
			return invalid(errs)
		}
	}

	d.Name = form.Name
	if err := s.deps.Dossiers.Update(ctx, d); err != nil {
		return mapErr(err, "имя дела занято")
	}
	if err := s.deps.Index.IndexDossier(d); err != nil {
		s.logger.Warn("Не удалось переиндексировать дело",
			slog.Int64("dossier_id", d.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("Дело изменено через консоль", slog.Int64("dossier_id", d.ID))
	return nil
}

func (s *dossierSource) Delete(ctx context.Context, id int64) error {
	if err := s.deps.Dossiers.Delete(ctx, id); err != nil {
		return mapErr(err, "дело")
	}
	if err := s.deps.Index.Remove(search.KindDossier, id); err != nil {
		s.logger.Warn("Не удалось удалить дело из индекса",
			slog.Int64("dossier_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("Дело удалено через консоль", slog.Int64("dossier_id", id))
	return nil
}

// --- tag ---

type tagSource struct {
	deps   Deps
	logger *slog.Logger
}

func (s *tagSource) List(ctx context.Context, q string, limit, offset int) ([]Row, error) {
	tags, err := s.deps.Tags.List(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, Row{"id": strconv.FormatInt(t.ID, 10), "name": t.Name})
	}
	return rows, nil
}

func (s *tagSource) Count(ctx context.Context, q string) (int, error) {
	return s.deps.Tags.Count(ctx, q)
}

func (s *tagSource) Get(context.Context, int64) (Row, error) {
	return nil, ErrUnsupported
}

func (s *tagSource) Update(context.Context, int64, map[string]string) error {
	return ErrUnsupported
}

func (s *tagSource) Delete(ctx context.Context, id int64) error {
	if err := s.deps.Tags.Delete(ctx, id); err != nil {
		return mapErr(err, "тег")
	}
	s.logger.Info("Тег удалён через консоль", slog.Int64("tag_id", id))
	return nil
}
