package forms

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

// MaxUploadMemory — часть multipart-формы, держащаяся в памяти;
// остальное multipart пишет во временные файлы.
const MaxUploadMemory = 32 << 20

func value(r *http.Request, key string) string {
	return strings.TrimSpace(r.PostFormValue(key))
}

func checked(r *http.Request, key string) bool {
	switch r.PostFormValue(key) {
	case "on", "true", "1", "y":
		return true
	}
	return false
}

func int64Value(r *http.Request, key string) int64 {
	n, err := strconv.ParseInt(value(r, key), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseLogin читает форму входа.
func ParseLogin(r *http.Request) *LoginForm {
	return &LoginForm{
		Email:      value(r, "email"),
		Password:   r.PostFormValue("password"),
		RememberMe: checked(r, "remember_me"),
	}
}

// ParseRegistration читает форму регистрации.
func ParseRegistration(r *http.Request) *RegistrationForm {
	return &RegistrationForm{
		Email:     value(r, "email"),
		Username:  value(r, "username"),
		Password:  r.PostFormValue("password"),
		Password2: r.PostFormValue("password2"),
	}
}

// ParseChangePassword читает форму смены пароля.
func ParseChangePassword(r *http.Request) *ChangePasswordForm {
	return &ChangePasswordForm{
		OldPassword: r.PostFormValue("old_password"),
		Password:    r.PostFormValue("password"),
		Password2:   r.PostFormValue("password2"),
	}
}

// ParsePasswordResetRequest читает форму запроса сброса пароля.
func ParsePasswordResetRequest(r *http.Request) *PasswordResetRequestForm {
	return &PasswordResetRequestForm{Email: value(r, "email")}
}

// ParsePasswordReset читает форму нового пароля.
func ParsePasswordReset(r *http.Request) *PasswordResetForm {
	return &PasswordResetForm{
		Email:     value(r, "email"),
		Password:  r.PostFormValue("password"),
		Password2: r.PostFormValue("password2"),
	}
}

// ParseChangeEmail читает форму смены email.
func ParseChangeEmail(r *http.Request) *ChangeEmailForm {
	return &ChangeEmailForm{
		Email:    value(r, "email"),
		Password: r.PostFormValue("password"),
	}
}

// ParseProfile читает форму профиля.
func ParseProfile(r *http.Request) *ProfileForm {
	return &ProfileForm{
		Name:     value(r, "name"),
		Location: value(r, "location"),
		AboutMe:  r.PostFormValue("about_me"),
	}
}

// ParseAdminProfile читает форму профиля для администратора.
func ParseAdminProfile(r *http.Request) *AdminProfileForm {
	return &AdminProfileForm{
		Email:     value(r, "email"),
		Username:  value(r, "username"),
		Confirmed: checked(r, "confirmed"),
		RoleID:    int64Value(r, "role"),
		Name:      value(r, "name"),
		Location:  value(r, "location"),
		AboutMe:   r.PostFormValue("about_me"),
	}
}

// ParseDossier читает форму дела.
func ParseDossier(r *http.Request) *DossierForm {
	return &DossierForm{Name: value(r, "name")}
}

// ParseSearch читает форму поиска.
func ParseSearch(r *http.Request) *SearchForm {
	return &SearchForm{Keyword: value(r, "keyword")}
}

// parseMetadata читает описательные поля по их ключам form.
func parseMetadata(r *http.Request) Metadata {
	var m Metadata
	for name, ptr := range m.textFields() {
		*ptr = value(r, name)
	}
	// Примечания и теги могут содержать значимые переводы строк
	m.Annotation = r.PostFormValue("annotation")
	m.Summary = r.PostFormValue("summary")
	m.DossierID = int64Value(r, "dossier")
	return m
}

// ParseFileForm разбирает multipart-форму загрузки.
// Отсутствие файлов не является ошибкой разбора: его сообщает Validate.
func ParseFileForm(r *http.Request) (*FileForm, error) {
	if err := r.ParseMultipartForm(MaxUploadMemory); err != nil {
		return nil, fmt.Errorf("ошибка разбора multipart-формы: %w", err)
	}
	f := &FileForm{Metadata: parseMetadata(r)}

	var err error
	if f.File, err = formFile(r, "file"); err != nil {
		return nil, err
	}
	if f.Related, err = formFile(r, "related_file"); err != nil {
		return nil, err
	}
	return f, nil
}

// ParseEditFileForm читает форму редактирования описания.
func ParseEditFileForm(r *http.Request) *EditFileForm {
	return &EditFileForm{Metadata: parseMetadata(r)}
}

// formFile возвращает заголовок загруженного файла или nil, если файл не выбран.
// Файл нулевого размера с именем принимается: пустой документ допустим.
func formFile(r *http.Request, key string) (*multipart.FileHeader, error) {
	file, fh, err := r.FormFile(key)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения поля %s: %w", key, err)
	}
	file.Close()
	if fh.Filename == "" {
		return nil, nil
	}
	return fh, nil
}
