package forms

import (
	"context"
	"fmt"
)

// LoginForm — вход по email и паролю.
type LoginForm struct {
	Email      string `form:"email" validate:"required,max=64,email"`
	Password   string `form:"password" validate:"required"`
	RememberMe bool   `form:"remember_me"`
}

// Validate проверяет форму входа.
func (f *LoginForm) Validate() (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	return errs.orNil(), nil
}

// RegistrationForm — регистрация нового пользователя.
// Пароли ограничены 72 байтами: длиннее bcrypt не хэширует.
type RegistrationForm struct {
	Email     string `form:"email" validate:"required,max=64,email"`
	Username  string `form:"username" validate:"required,max=64"`
	Password  string `form:"password" validate:"required,maxbytes=72,eqfield=Password2"`
	Password2 string `form:"password2" validate:"required"`
}

// Validate проверяет поля и уникальность email и username.
func (f *RegistrationForm) Validate(ctx context.Context, lookup Lookup) (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	if err := checkEmailFree(ctx, lookup, errs, f.Email); err != nil {
		return nil, err
	}
	if err := checkUsernameFree(ctx, lookup, errs, f.Username); err != nil {
		return nil, err
	}
	return errs.orNil(), nil
}

// ChangePasswordForm — смена пароля с подтверждением старого.
type ChangePasswordForm struct {
	OldPassword string `form:"old_password" validate:"required"`
	Password    string `form:"password" validate:"required,maxbytes=72,eqfield=Password2"`
	Password2   string `form:"password2" validate:"required"`
}

// Validate проверяет форму смены пароля.
// Правильность старого пароля проверяет сервис.
func (f *ChangePasswordForm) Validate() (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	return errs.orNil(), nil
}

// PasswordResetRequestForm — запрос ссылки на сброс пароля.
type PasswordResetRequestForm struct {
	Email string `form:"email" validate:"required,max=64,email"`
}

// Validate проверяет форму запроса сброса.
func (f *PasswordResetRequestForm) Validate() (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	return errs.orNil(), nil
}

// PasswordResetForm — установка нового пароля по ссылке.
type PasswordResetForm struct {
	Email     string `form:"email" validate:"required,max=64,email"`
	Password  string `form:"password" validate:"required,maxbytes=72,eqfield=Password2"`
	Password2 string `form:"password2" validate:"required"`
}

// Validate проверяет поля и существование адреса.
func (f *PasswordResetForm) Validate(ctx context.Context, lookup Lookup) (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	if !errs.Has("email") {
		exists, err := lookup.EmailExists(ctx, f.Email)
		if err != nil {
			return nil, fmt.Errorf("ошибка проверки email: %w", err)
		}
		if !exists {
			errs.Add("email", MsgEmailUnknown)
		}
	}
	return errs.orNil(), nil
}

// ChangeEmailForm — запрос смены email.
type ChangeEmailForm struct {
	Email    string `form:"email" validate:"required,max=64,email"`
	Password string `form:"password" validate:"required"`
}

// Validate проверяет поля и то, что новый адрес свободен.
func (f *ChangeEmailForm) Validate(ctx context.Context, lookup Lookup) (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	if err := checkEmailFree(ctx, lookup, errs, f.Email); err != nil {
		return nil, err
	}
	return errs.orNil(), nil
}

func checkEmailFree(ctx context.Context, lookup Lookup, errs Errors, email string) error {
	if errs.Has("email") {
		return nil
	}
	taken, err := lookup.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("ошибка проверки email: %w", err)
	}
	if taken {
		errs.Add("email", MsgEmailTaken)
	}
	return nil
}

func checkUsernameFree(ctx context.Context, lookup Lookup, errs Errors, username string) error {
	if errs.Has("username") {
		return nil
	}
	taken, err := lookup.UsernameExists(ctx, username)
	if err != nil {
		return fmt.Errorf("ошибка проверки username: %w", err)
	}
	if taken {
		errs.Add("username", MsgUsernameTaken)
	}
	return nil
}
