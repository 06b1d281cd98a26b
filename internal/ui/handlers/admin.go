package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rucyang/metadata/internal/admin"
	"github.com/rucyang/metadata/internal/service"
	"github.com/rucyang/metadata/internal/ui/auth"
	"github.com/rucyang/metadata/internal/ui/pages"
)

// AdminPageSize — строк на странице списка консоли.
const AdminPageSize = 20

// AdminHandler — универсальная консоль администратора над admin.Registry.
type AdminHandler struct {
	Base
	registry *admin.Registry
}

// NewAdminHandler создаёт обработчик консоли.
func NewAdminHandler(base *Base, registry *admin.Registry) *AdminHandler {
	return &AdminHandler{Base: base.with("ui.admin"), registry: registry}
}

// entity находит сущность из параметра маршрута; иначе отдаёт 404.
func (h *AdminHandler) entity(w http.ResponseWriter, r *http.Request) (*admin.Entity, bool) {
	e, ok := h.registry.Get(chi.URLParam(r, "entity"))
	if !ok {
		h.NotFound(w, r)
	}
	return e, ok
}

// adminFail — как fail, но отключённая операция даёт 404.
func (h *AdminHandler) adminFail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, admin.ErrUnsupported) {
		h.NotFound(w, r)
		return
	}
	h.fail(w, r, err)
}

// HandleIndex — GET /admin/: список сущностей.
func (h *AdminHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pages.PageAdminIndex, "admin.title", &pages.AdminIndexData{
		Entities: h.registry.List(),
	})
}

// HandleList — GET /admin/{entity}?q=&page=.
func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entity(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	page := pageParam(r)

	total, err := e.Source.Count(r.Context(), q)
	if err != nil {
		h.adminFail(w, r, err)
		return
	}
	pagesCount := (total + AdminPageSize - 1) / AdminPageSize
	rows, err := e.Source.List(r.Context(), q, AdminPageSize, (page-1)*AdminPageSize)
	if err != nil {
		h.adminFail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, pages.PageAdminList, e.Title, &pages.AdminListData{
		Entity: e,
		Rows:   rows,
		Query:  q,
		Page:   page,
		Pages:  pagesCount,
		Total:  total,
	})
}

// HandleEdit — GET/POST /admin/{entity}/{id}/edit.
func (h *AdminHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok || !e.CanEdit {
		h.NotFound(w, r)
		return
	}

	if r.Method != http.MethodPost {
		row, err := e.Source.Get(r.Context(), id)
		if err != nil {
			h.adminFail(w, r, err)
			return
		}
		h.form(w, r, pages.AdminEditForm(e, id, row, nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	values := make(map[string]string)
	for _, c := range e.EditableColumns() {
		v := r.PostForm.Get(c.Key)
		// Снятый флажок в форму не попадает
		if c.Bool && v == "" {
			v = "false"
		}
		values[c.Key] = strings.TrimSpace(v)
	}

	err := e.Source.Update(r.Context(), id, values)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.AdminEditForm(e, id, admin.Row(values), service.FieldErrors(err)))
	case err != nil:
		h.adminFail(w, r, err)
	default:
		h.logger.Info("Запись изменена",
			slog.String("entity", e.Name),
			slog.Int64("id", id),
			slog.Int64("admin_id", principal(r).ID()),
		)
		h.flash(w, r, auth.FlashSuccess, "admin.saved")
		h.redirect(w, r, "/admin/"+e.Name)
	}
}

// HandleDelete — GET /admin/{entity}/{id}/delete: подтверждение,
// POST — удаление.
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entity(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok || !e.CanDelete {
		h.NotFound(w, r)
		return
	}

	if r.Method != http.MethodPost {
		row, err := e.Source.Get(r.Context(), id)
		if err != nil && !errors.Is(err, admin.ErrUnsupported) {
			h.fail(w, r, err)
			return
		}
		h.render(w, r, http.StatusOK, pages.PageAdminDelete, e.Title, &pages.AdminDeleteData{
			Entity: e,
			ID:     id,
			Row:    row,
		})
		return
	}

	if err := e.Source.Delete(r.Context(), id); err != nil {
		h.adminFail(w, r, err)
		return
	}
	h.logger.Info("Запись удалена",
		slog.String("entity", e.Name),
		slog.Int64("id", id),
		slog.Int64("admin_id", principal(r).ID()),
	)
	h.flash(w, r, auth.FlashSuccess, "admin.deleted")
	h.redirect(w, r, "/admin/"+e.Name)
}
