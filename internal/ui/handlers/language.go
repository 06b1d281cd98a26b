package handlers

import (
	"net/http"
	"net/url"

	"github.com/rucyang/metadata/internal/ui/i18n"
)

const langCookieMaxAge = 365 * 24 * 60 * 60

// LanguageHandler — переключение языка интерфейса.
type LanguageHandler struct {
	Base
	secure bool
}

// NewLanguageHandler создаёт обработчик выбора языка.
func NewLanguageHandler(base *Base, secure bool) *LanguageHandler {
	return &LanguageHandler{Base: base.with("ui.language"), secure: secure}
}

// HandleSetLanguage — POST /set-language: запоминает язык в cookie
// и возвращает на предыдущую страницу.
func (h *LanguageHandler) HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	lang := r.PostForm.Get("lang")
	if i18n.Supported(lang) {
		http.SetCookie(w, &http.Cookie{
			Name:     i18n.LangCookieName,
			Value:    lang,
			Path:     "/",
			MaxAge:   langCookieMaxAge,
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	h.redirect(w, r, refererPath(r))
}

// refererPath оставляет от Referer только путь и запрос этого сайта.
func refererPath(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || (ref.Host != "" && ref.Host != r.Host) {
		return "/"
	}
	return safeNext(ref.RequestURI())
}
