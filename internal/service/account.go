package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rucyang/metadata/internal/credential"
	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/mail"
	"github.com/rucyang/metadata/internal/repository"
)

// Темы писем (префикс добавляет Renderer).
const (
	subjectConfirm     = "确认账户"
	subjectReset       = "重设密码"
	subjectChangeEmail = "确认邮件"
)

// pingTimeout — таймаут обновления last_seen.
const pingTimeout = 2 * time.Second

// payloadNewEmail — ключ нового адреса в токене смены email.
const payloadNewEmail = "new_email"

// AccountConfig — параметры учётных записей.
type AccountConfig struct {
	// AdminEmail получает роль Administrator при регистрации
	AdminEmail string
	// BaseURL — основа ссылок в письмах
	BaseURL  string
	TokenTTL time.Duration
}

// AccountService — регистрация, вход и действия по ссылкам из писем.
type AccountService struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	lookup   forms.Lookup
	tokens   *credential.Tokens
	notifier Notifier
	index    SearchIndex
	cache    *PrincipalCache
	cfg      AccountConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewAccountService создаёт AccountService.
func NewAccountService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	lookup forms.Lookup,
	tokens *credential.Tokens,
	notifier Notifier,
	index SearchIndex,
	cache *PrincipalCache,
	cfg AccountConfig,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:    users,
		roles:    roles,
		lookup:   lookup,
		tokens:   tokens,
		notifier: notifier,
		index:    index,
		cache:    cache,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "account_service")),
		now:      time.Now,
	}
}

// Register создаёт неподтверждённого пользователя и отправляет письмо
// со ссылкой подтверждения. Адрес AdminEmail получает роль Administrator,
// остальные — роль по умолчанию.
func (s *AccountService) Register(ctx context.Context, form *forms.RegistrationForm) (*model.User, error) {
	errs, err := form.Validate(ctx, s.lookup)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки формы регистрации: %w", err)
	}
	if errs != nil {
		return nil, invalid(errs)
	}

	role, err := s.roleFor(ctx, form.Email)
	if err != nil {
		return nil, err
	}

	hash, err := credential.HashPassword(form.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        form.Email,
		Username:     form.Username,
		PasswordHash: hash,
		RoleID:       role.ID,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, mapRepoErr(err, "email или имя пользователя заняты")
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.Int64("user_id", u.ID),
		slog.String("username", u.Username),
		slog.String("role", role.Name),
	)

	if err := s.index.IndexUser(u); err != nil {
		s.logger.Warn("Не удалось проиндексировать пользователя",
			slog.Int64("user_id", u.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.sendConfirmation(ctx, u); err != nil {
		return u, err
	}
	return u, nil
}

func (s *AccountService) roleFor(ctx context.Context, email string) (*model.Role, error) {
	var (
		role *model.Role
		err  error
	)
	if s.cfg.AdminEmail != "" && email == s.cfg.AdminEmail {
		role, err = s.roles.GetByName(ctx, rbac.RoleAdministrator)
	} else {
		role, err = s.roles.GetDefault(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.New("роли не заполнены: выполните начальное заполнение ролей")
		}
		return nil, err
	}
	return role, nil
}

func (s *AccountService) sendConfirmation(ctx context.Context, u *model.User) error {
	token, err := s.tokens.Issue(credential.KindConfirm, u.ID, nil, s.cfg.TokenTTL)
	if err != nil {
		return err
	}
	return s.notifier.Send(ctx, u.Email, subjectConfirm, mail.TemplateConfirm, mail.Data{
		User:    u,
		Token:   token,
		BaseURL: s.cfg.BaseURL,
	})
}

// Authenticate проверяет email и пароль.
// Неизвестный email и неверный пароль неразличимы: ErrInvalidCredentials.
func (s *AccountService) Authenticate(ctx context.Context, form *forms.LoginForm) (*model.User, error) {
	errs, err := form.Validate()
	if err != nil {
		return nil, err
	}
	if errs != nil {
		return nil, invalid(errs)
	}

	u, err := s.users.GetByEmail(ctx, form.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !credential.VerifyPassword(u.PasswordHash, form.Password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// redeem проверяет токен и что он выпущен для userID.
func (s *AccountService) redeem(token string, kind credential.Kind, userID int64) (*credential.Claims, error) {
	claims, err := s.tokens.Redeem(token, kind)
	if err != nil {
		return nil, ErrInvalidToken
	}
	subject, err := claims.SubjectID()
	if err != nil || subject != userID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Confirm подтверждает email текущего пользователя по токену.
// Токен не одноразовый: повторное подтверждение до истечения срока успешно.
func (s *AccountService) Confirm(ctx context.Context, principal rbac.Principal, token string) error {
	if !principal.IsAuthenticated() {
		return ErrForbidden
	}
	if _, err := s.redeem(token, credential.KindConfirm, principal.ID()); err != nil {
		return err
	}

	u, err := s.users.GetByID(ctx, principal.ID())
	if err != nil {
		return mapRepoErr(err, "пользователь")
	}
	if u.Confirmed {
		return nil
	}

	if err := s.users.SetConfirmed(ctx, u.ID); err != nil {
		return mapRepoErr(err, "пользователь")
	}
	s.cache.Invalidate(u.ID)

	s.logger.Info("Email подтверждён", slog.Int64("user_id", u.ID))
	return nil
}

// ResendConfirmation повторно отправляет письмо подтверждения.
func (s *AccountService) ResendConfirmation(ctx context.Context, principal rbac.Principal) error {
	if !principal.IsAuthenticated() {
		return ErrForbidden
	}
	u, err := s.users.GetByID(ctx, principal.ID())
	if err != nil {
		return mapRepoErr(err, "пользователь")
	}
	return s.sendConfirmation(ctx, u)
}

// ChangePassword меняет пароль после проверки старого.
func (s *AccountService) ChangePassword(ctx context.Context, userID int64, form *forms.ChangePasswordForm) error {
	errs, err := form.Validate()
	if err != nil {
		return err
	}
	if errs != nil {
		return invalid(errs)
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return mapRepoErr(err, "пользователь")
	}
	if !credential.VerifyPassword(u.PasswordHash, form.OldPassword) {
		return invalid(forms.Errors{"old_password": {forms.MsgInvalid}})
	}

	return s.setPassword(ctx, u.ID, form.Password)
}

func (s *AccountService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := credential.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return mapRepoErr(err, "пользователь")
	}
	s.logger.Info("Пароль изменён", slog.Int64("user_id", userID))
	return nil
}

// RequestPasswordReset отправляет ссылку сброса пароля.
// Для неизвестного адреса ничего не происходит, ошибки нет.
func (s *AccountService) RequestPasswordReset(ctx context.Context, form *forms.PasswordResetRequestForm, next string) error {
	errs, err := form.Validate()
	if err != nil {
		return err
	}
	if errs != nil {
		return invalid(errs)
	}

	u, err := s.users.GetByEmail(ctx, form.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("Сброс пароля для неизвестного email")
			return nil
		}
		return err
	}

	token, err := s.tokens.Issue(credential.KindReset, u.ID, nil, s.cfg.TokenTTL)
	if err != nil {
		return err
	}
	return s.notifier.Send(ctx, u.Email, subjectReset, mail.TemplateResetPassword, mail.Data{
		User:    u,
		Token:   token,
		BaseURL: s.cfg.BaseURL,
		Next:    next,
	})
}

// ResetPassword задаёт новый пароль по токену сброса.
// Email формы должен принадлежать владельцу токена.
func (s *AccountService) ResetPassword(ctx context.Context, token string, form *forms.PasswordResetForm) error {
	claims, err := s.tokens.Redeem(token, credential.KindReset)
	if err != nil {
		return ErrInvalidToken
	}

	errs, err := form.Validate(ctx, s.lookup)
	if err != nil {
		return err
	}
	if errs != nil {
		return invalid(errs)
	}

	u, err := s.users.GetByEmail(ctx, form.Email)
	if err != nil {
		return mapRepoErr(err, "пользователь")
	}
	subject, err := claims.SubjectID()
	if err != nil || subject != u.ID {
		return ErrInvalidToken
	}

	if err := s.setPassword(ctx, u.ID, form.Password); err != nil {
		return err
	}
	s.cache.Invalidate(u.ID)
	return nil
}

// RequestEmailChange отправляет на новый адрес ссылку подтверждения смены.
func (s *AccountService) RequestEmailChange(ctx context.Context, userID int64, form *forms.ChangeEmailForm) error {
	errs, err := form.Validate(ctx, s.lookup)
	if err != nil {
		return err
	}
	if errs != nil {
		return invalid(errs)
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return mapRepoErr(err, "пользователь")
	}
	if !credential.VerifyPassword(u.PasswordHash, form.Password) {
		return invalid(forms.Errors{"password": {forms.MsgInvalid}})
	}

	token, err := s.tokens.Issue(credential.KindChangeEmail, u.ID,
		map[string]string{payloadNewEmail: form.Email}, s.cfg.TokenTTL)
	if err != nil {
		return err
	}
	return s.notifier.Send(ctx, form.Email, subjectChangeEmail, mail.TemplateChangeEmail, mail.Data{
		User:    u,
		Token:   token,
		BaseURL: s.cfg.BaseURL,
	})
}

// ChangeEmail применяет смену email по токену.
// ErrConflict, если новый адрес заняли после выпуска токена.
func (s *AccountService) ChangeEmail(ctx context.Context, userID int64, token string) error {
	claims, err := s.redeem(token, credential.KindChangeEmail, userID)
	if err != nil {
		return err
	}
	email := claims.Payload[payloadNewEmail]
	if email == "" {
		return ErrInvalidToken
	}

	taken, err := s.lookup.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: email %s уже занят", ErrConflict, email)
	}

	if err := s.users.UpdateEmail(ctx, userID, email); err != nil {
		return mapRepoErr(err, "email "+email)
	}
	s.cache.Invalidate(userID)

	s.logger.Info("Email изменён", slog.Int64("user_id", userID))
	return nil
}

// Ping обновляет время последнего визита. Ошибки только логируются.
func (s *AccountService) Ping(ctx context.Context, userID int64) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := s.users.Touch(ctx, userID, s.now()); err != nil {
		s.logger.Warn("Не удалось обновить last_seen",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
