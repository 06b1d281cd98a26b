package forms

import (
	"context"
	"fmt"

	"github.com/rucyang/metadata/internal/domain/model"
)

// ProfileForm — редактирование собственного профиля.
type ProfileForm struct {
	Name     string `form:"name" validate:"max=64"`
	Location string `form:"location" validate:"max=64"`
	AboutMe  string `form:"about_me"`
}

// Validate проверяет длины полей профиля.
func (f *ProfileForm) Validate() (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	return errs.orNil(), nil
}

// ProfileFormFrom заполняет форму текущими значениями пользователя.
func ProfileFormFrom(u *model.User) *ProfileForm {
	return &ProfileForm{Name: u.Name, Location: u.Location, AboutMe: u.AboutMe}
}

// AdminProfileForm — редактирование пользователя администратором.
type AdminProfileForm struct {
	Email     string `form:"email" validate:"required,max=64,email"`
	Username  string `form:"username" validate:"required,max=64"`
	Confirmed bool   `form:"confirmed"`
	RoleID    int64  `form:"role" validate:"required"`
	Name      string `form:"name" validate:"max=64"`
	Location  string `form:"location" validate:"max=64"`
	AboutMe   string `form:"about_me"`
}

// AdminProfileFormFrom заполняет форму текущими значениями пользователя.
func AdminProfileFormFrom(u *model.User) *AdminProfileForm {
	return &AdminProfileForm{
		Email:     u.Email,
		Username:  u.Username,
		Confirmed: u.Confirmed,
		RoleID:    u.RoleID,
		Name:      u.Name,
		Location:  u.Location,
		AboutMe:   u.AboutMe,
	}
}

// Validate проверяет поля, существование роли и уникальность
// email и username среди остальных пользователей.
func (f *AdminProfileForm) Validate(ctx context.Context, lookup Lookup, current *model.User) (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	if f.Email != current.Email {
		if err := checkEmailFree(ctx, lookup, errs, f.Email); err != nil {
			return nil, err
		}
	}
	if f.Username != current.Username {
		if err := checkUsernameFree(ctx, lookup, errs, f.Username); err != nil {
			return nil, err
		}
	}
	if !errs.Has("role") {
		exists, err := lookup.RoleExists(ctx, f.RoleID)
		if err != nil {
			return nil, fmt.Errorf("ошибка проверки роли: %w", err)
		}
		if !exists {
			errs.Add("role", MsgRoleMissing)
		}
	}
	return errs.orNil(), nil
}

// Apply переносит значения формы в пользователя.
func (f *AdminProfileForm) Apply(u *model.User) {
	u.Email = f.Email
	u.Username = f.Username
	u.Confirmed = f.Confirmed
	u.RoleID = f.RoleID
	u.Name = f.Name
	u.Location = f.Location
	u.AboutMe = f.AboutMe
}

// DossierForm — создание дела.
type DossierForm struct {
	Name string `form:"name" validate:"required,max=64"`
}

// Validate проверяет имя и его уникальность.
func (f *DossierForm) Validate(ctx context.Context, lookup Lookup) (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	if !errs.Has("name") {
		taken, err := lookup.DossierNameExists(ctx, f.Name)
		if err != nil {
			return nil, fmt.Errorf("ошибка проверки дела: %w", err)
		}
		if taken {
			errs.Add("name", MsgDossierTaken)
		}
	}
	return errs.orNil(), nil
}

// SearchForm — поиск по ключевому слову.
type SearchForm struct {
	Keyword string `form:"keyword" validate:"required,max=128"`
}

// Validate проверяет строку поиска.
func (f *SearchForm) Validate() (Errors, error) {
	errs := Errors{}
	if err := checkStruct(f, errs); err != nil {
		return nil, err
	}
	return errs.orNil(), nil
}
