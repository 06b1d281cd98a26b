// Пакет handlers — обработчики страниц веб-интерфейса.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/service"
	"github.com/rucyang/metadata/internal/ui/auth"
	"github.com/rucyang/metadata/internal/ui/i18n"
	"github.com/rucyang/metadata/internal/ui/middleware"
	"github.com/rucyang/metadata/internal/ui/pages"
)

// Base — общие зависимости обработчиков: рендеринг, сессии, флеши.
type Base struct {
	pages    *pages.Renderer
	sessions *auth.SessionManager
	logger   *slog.Logger
}

// NewBase создаёт общую часть обработчиков.
func NewBase(renderer *pages.Renderer, sessions *auth.SessionManager, logger *slog.Logger) *Base {
	return &Base{pages: renderer, sessions: sessions, logger: logger}
}

// with возвращает копию с логгером компонента.
func (b *Base) with(component string) Base {
	return Base{
		pages:    b.pages,
		sessions: b.sessions,
		logger:   b.logger.With(slog.String("component", component)),
	}
}

func principal(r *http.Request) rbac.Principal {
	return middleware.PrincipalFromContext(r.Context())
}

// view собирает общие данные страницы и забирает флеши.
func (b *Base) view(w http.ResponseWriter, r *http.Request, title string, content any) *pages.View {
	v := b.pages.NewView(i18n.LangFromContext(r.Context()), principal(r), b.sessions.PopFlashes(w, r))
	v.Title = title
	v.Content = content
	return v
}

// render отдаёт страницу с кодом status.
func (b *Base) render(w http.ResponseWriter, r *http.Request, status int, name, title string, content any) {
	v := b.view(w, r, title, content)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := b.pages.Page(name, v).Render(r.Context(), w); err != nil {
		b.logger.Error("Ошибка рендеринга страницы",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
	}
}

// form отдаёт страницу формы; при ошибках проверки код 200, как при первом показе.
func (b *Base) form(w http.ResponseWriter, r *http.Request, form *pages.FormData) {
	b.render(w, r, http.StatusOK, pages.PageForm, form.Heading, form)
}

// message отдаёт информационную страницу.
func (b *Base) message(w http.ResponseWriter, r *http.Request, status int, heading, body string, links ...pages.Link) {
	b.render(w, r, status, pages.PageMessage, heading, &pages.MessageData{
		Heading: heading,
		Body:    body,
		Links:   links,
	})
}

func (b *Base) flash(w http.ResponseWriter, r *http.Request, category, message string) {
	b.sessions.AddFlash(w, r, category, message)
}

// redirect — переход после успешного действия.
func (b *Base) redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// NotFound — страница 404.
func (b *Base) NotFound(w http.ResponseWriter, r *http.Request) {
	b.message(w, r, http.StatusNotFound, "error.not_found.title", "error.not_found.body",
		pages.Link{Href: "/scan", Label: "nav.scan"})
}

// Forbidden — страница 403.
func (b *Base) Forbidden(w http.ResponseWriter, r *http.Request) {
	b.message(w, r, http.StatusForbidden, "error.forbidden.title", "error.forbidden.body",
		pages.Link{Href: "/scan", Label: "nav.scan"})
}

// serverError логирует ошибку и отдаёт страницу 500.
func (b *Base) serverError(w http.ResponseWriter, r *http.Request, err error) {
	b.logger.Error("Ошибка обработки запроса",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	b.message(w, r, http.StatusInternalServerError, "error.internal.title", "error.internal.body")
}

// fail отображает ошибку сервиса на страницу.
func (b *Base) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		b.NotFound(w, r)
	case errors.Is(err, service.ErrForbidden):
		b.Forbidden(w, r)
	case errors.Is(err, service.ErrConflict):
		b.message(w, r, http.StatusConflict, "error.conflict.title", "error.conflict.body")
	default:
		b.serverError(w, r, err)
	}
}

// idParam читает числовой параметр маршрута.
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pageParam читает ?page=; некорректное значение даёт 1.
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// safeNext допускает только относительные адреса этого сайта.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// parseForm разбирает тело POST; ошибка — 400.
func (b *Base) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		b.logger.Debug("Некорректное тело формы", slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}
