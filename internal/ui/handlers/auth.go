package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/service"
	"github.com/rucyang/metadata/internal/ui/auth"
	"github.com/rucyang/metadata/internal/ui/pages"
)

// AccountService — операции учётной записи.
type AccountService interface {
	Register(ctx context.Context, form *forms.RegistrationForm) (*model.User, error)
	Authenticate(ctx context.Context, form *forms.LoginForm) (*model.User, error)
	Confirm(ctx context.Context, principal rbac.Principal, token string) error
	ResendConfirmation(ctx context.Context, principal rbac.Principal) error
	ChangePassword(ctx context.Context, userID int64, form *forms.ChangePasswordForm) error
	RequestPasswordReset(ctx context.Context, form *forms.PasswordResetRequestForm, next string) error
	ResetPassword(ctx context.Context, token string, form *forms.PasswordResetForm) error
	RequestEmailChange(ctx context.Context, userID int64, form *forms.ChangeEmailForm) error
	ChangeEmail(ctx context.Context, userID int64, token string) error
}

// AuthHandler — вход, регистрация и действия по ссылкам из писем.
type AuthHandler struct {
	Base
	accounts AccountService
}

// NewAuthHandler создаёт обработчик учётных записей.
func NewAuthHandler(base *Base, accounts AccountService) *AuthHandler {
	return &AuthHandler{Base: base.with("ui.auth"), accounts: accounts}
}

// HandleLogin — GET/POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if principal(r).IsAuthenticated() {
		h.redirect(w, r, "/")
		return
	}
	next := r.URL.Query().Get("next")
	if r.Method != http.MethodPost {
		h.form(w, r, pages.LoginForm(next, &forms.LoginForm{}, nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	form := forms.ParseLogin(r)
	u, err := h.accounts.Authenticate(r.Context(), form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.LoginForm(next, form, service.FieldErrors(err)))
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		h.flash(w, r, auth.FlashError, "auth.login.invalid")
		h.form(w, r, pages.LoginForm(next, form, nil))
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	if err := h.sessions.Login(w, u.ID, form.RememberMe); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.logger.Info("Вход выполнен", slog.Int64("user_id", u.ID))
	h.redirect(w, r, safeNext(next))
}

// HandleLogout — POST /auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearSessionCookie(w)
	h.flash(w, r, auth.FlashInfo, "auth.logout.done")
	h.redirect(w, r, "/")
}

// HandleRegister — GET/POST /auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.form(w, r, pages.RegistrationForm(&forms.RegistrationForm{}, nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	form := forms.ParseRegistration(r)
	u, err := h.accounts.Register(r.Context(), form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.RegistrationForm(form, service.FieldErrors(err)))
		return
	case u == nil && err != nil:
		h.fail(w, r, err)
		return
	case err != nil:
		// Пользователь создан, письмо не поставлено в очередь
		h.logger.Warn("Письмо подтверждения не отправлено",
			slog.Int64("user_id", u.ID),
			slog.String("error", err.Error()),
		)
		h.flash(w, r, auth.FlashError, "auth.confirm.send_failed")
	default:
		h.flash(w, r, auth.FlashInfo, "auth.register.sent")
	}
	h.redirect(w, r, "/auth/login")
}

// HandleConfirm — GET /auth/confirm/{token} (требует входа).
func (h *AuthHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p.Confirmed() {
		h.redirect(w, r, "/")
		return
	}
	err := h.accounts.Confirm(r.Context(), p, chi.URLParam(r, "token"))
	switch {
	case err == nil:
		h.flash(w, r, auth.FlashSuccess, "auth.confirm.done")
	case errors.Is(err, service.ErrInvalidToken):
		h.flash(w, r, auth.FlashError, "auth.token.invalid")
	default:
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, "/")
}

// HandleResend — GET /auth/confirm: повторная отправка письма.
func (h *AuthHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.ResendConfirmation(r.Context(), principal(r)); err != nil {
		h.logger.Warn("Повторное письмо подтверждения не отправлено",
			slog.Int64("user_id", principal(r).ID()),
			slog.String("error", err.Error()),
		)
		h.flash(w, r, auth.FlashError, "auth.confirm.send_failed")
	} else {
		h.flash(w, r, auth.FlashInfo, "auth.confirm.resent")
	}
	h.redirect(w, r, "/")
}

// HandleUnconfirmed — GET /auth/unconfirmed.
func (h *AuthHandler) HandleUnconfirmed(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.IsAuthenticated() || p.Confirmed() {
		h.redirect(w, r, "/")
		return
	}
	h.message(w, r, http.StatusOK, "auth.unconfirmed.title", "auth.unconfirmed.body",
		pages.Link{Href: "/auth/confirm", Label: "auth.unconfirmed.resend"})
}

// HandleChangePassword — GET/POST /auth/change-password (требует входа).
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.form(w, r, pages.ChangePasswordForm(nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	err := h.accounts.ChangePassword(r.Context(), principal(r).ID(), forms.ParseChangePassword(r))
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.ChangePasswordForm(service.FieldErrors(err)))
	case err != nil:
		h.fail(w, r, err)
	default:
		h.flash(w, r, auth.FlashSuccess, "auth.change_password.done")
		h.redirect(w, r, "/")
	}
}

// HandleResetRequest — GET/POST /auth/reset: запрос ссылки сброса.
func (h *AuthHandler) HandleResetRequest(w http.ResponseWriter, r *http.Request) {
	if principal(r).IsAuthenticated() {
		h.redirect(w, r, "/")
		return
	}
	if r.Method != http.MethodPost {
		h.form(w, r, pages.ResetRequestForm(&forms.PasswordResetRequestForm{}, nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	form := forms.ParsePasswordResetRequest(r)
	err := h.accounts.RequestPasswordReset(r.Context(), form, r.URL.Query().Get("next"))
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.ResetRequestForm(form, service.FieldErrors(err)))
	case err != nil:
		h.fail(w, r, err)
	default:
		h.flash(w, r, auth.FlashInfo, "auth.reset.sent")
		h.redirect(w, r, "/auth/login")
	}
}

// HandleReset — GET/POST /auth/reset/{token}: новый пароль.
func (h *AuthHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if principal(r).IsAuthenticated() {
		h.redirect(w, r, "/")
		return
	}
	token := chi.URLParam(r, "token")
	if r.Method != http.MethodPost {
		h.form(w, r, pages.ResetForm(token, &forms.PasswordResetForm{}, nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	form := forms.ParsePasswordReset(r)
	err := h.accounts.ResetPassword(r.Context(), token, form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.ResetForm(token, form, service.FieldErrors(err)))
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrNotFound):
		h.flash(w, r, auth.FlashError, "auth.token.invalid")
		h.redirect(w, r, "/")
	case err != nil:
		h.serverError(w, r, err)
	default:
		h.flash(w, r, auth.FlashSuccess, "auth.reset.done")
		h.redirect(w, r, "/auth/login")
	}
}

// HandleChangeEmailRequest — GET/POST /auth/change-email (требует входа).
func (h *AuthHandler) HandleChangeEmailRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.form(w, r, pages.ChangeEmailForm(&forms.ChangeEmailForm{}, nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	form := forms.ParseChangeEmail(r)
	err := h.accounts.RequestEmailChange(r.Context(), principal(r).ID(), form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.ChangeEmailForm(form, service.FieldErrors(err)))
	case err != nil:
		h.fail(w, r, err)
	default:
		h.flash(w, r, auth.FlashInfo, "auth.change_email.sent")
		h.redirect(w, r, "/")
	}
}

// HandleChangeEmail — GET /auth/change-email/{token} (требует входа).
func (h *AuthHandler) HandleChangeEmail(w http.ResponseWriter, r *http.Request) {
	err := h.accounts.ChangeEmail(r.Context(), principal(r).ID(), chi.URLParam(r, "token"))
	switch {
	case err == nil:
		h.flash(w, r, auth.FlashSuccess, "auth.change_email.done")
	case errors.Is(err, service.ErrInvalidToken):
		h.flash(w, r, auth.FlashError, "auth.token.invalid")
	case errors.Is(err, service.ErrConflict):
		h.flash(w, r, auth.FlashError, "auth.change_email.taken")
	default:
		h.serverError(w, r, err)
		return
	}
	h.redirect(w, r, "/")
}
