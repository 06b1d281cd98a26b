package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/service"
	"github.com/rucyang/metadata/internal/ui/auth"
	"github.com/rucyang/metadata/internal/ui/pages"
)

// UserService — профили пользователей.
type UserService interface {
	Get(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, form *forms.ProfileForm) (*model.User, error)
	AdminUpdate(ctx context.Context, actor rbac.Principal, id int64, form *forms.AdminProfileForm) (*model.User, error)
}

// RoleService — справочник ролей.
type RoleService interface {
	List(ctx context.Context) ([]*model.Role, error)
	Get(ctx context.Context, id int64) (*model.Role, error)
}

// UserHandler — страница пользователя и правка профилей.
type UserHandler struct {
	Base
	users UserService
	roles RoleService
	files FileService
}

// NewUserHandler создаёт обработчик профилей.
func NewUserHandler(base *Base, users UserService, roles RoleService, files FileService) *UserHandler {
	return &UserHandler{Base: base.with("ui.users"), users: users, roles: roles, files: files}
}

// HandleUser — GET /user/{username}: профиль и загруженные файлы.
func (h *UserHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.files.ListByCreator(r.Context(), u.ID, pageParam(r))
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	var roleName string
	if role, err := h.roles.Get(r.Context(), u.RoleID); err == nil {
		roleName = role.Name
	} else if !errors.Is(err, service.ErrNotFound) {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, pages.PageUser, "user.title", &pages.UserData{
		User:     u,
		RoleName: roleName,
		IsSelf:   principal(r).ID() == u.ID,
		Files: &pages.FilesData{
			Heading: "user.files",
			Page:    page,
			BaseURL: "/user/" + u.Username,
		},
	})
}

// HandleEditProfile — GET/POST /edit-profile (требует входа).
func (h *UserHandler) HandleEditProfile(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if r.Method != http.MethodPost {
		u, err := h.users.Get(r.Context(), p.ID())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.form(w, r, pages.ProfileForm(forms.ProfileFormFrom(u), nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	form := forms.ParseProfile(r)
	u, err := h.users.UpdateProfile(r.Context(), p.ID(), form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.ProfileForm(form, service.FieldErrors(err)))
	case err != nil:
		h.fail(w, r, err)
	default:
		h.flash(w, r, auth.FlashSuccess, "profile.edit.done")
		h.redirect(w, r, "/user/"+u.Username)
	}
}

// HandleAdminEditProfile — GET/POST /edit-profile/{id} (администратор).
func (h *UserHandler) HandleAdminEditProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.NotFound(w, r)
		return
	}
	roles, err := h.roles.List(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	if r.Method != http.MethodPost {
		u, err := h.users.Get(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.form(w, r, pages.AdminProfileForm(id, forms.AdminProfileFormFrom(u), roles, nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	form := forms.ParseAdminProfile(r)
	u, err := h.users.AdminUpdate(r.Context(), principal(r), id, form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.AdminProfileForm(id, form, roles, service.FieldErrors(err)))
	case err != nil:
		h.fail(w, r, err)
	default:
		h.flash(w, r, auth.FlashSuccess, "profile.edit.done")
		h.redirect(w, r, fmt.Sprintf("/user/%s", u.Username))
	}
}
