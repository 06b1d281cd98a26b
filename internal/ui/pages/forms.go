package pages

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/rucyang/metadata/internal/admin"
	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/forms"
)

// Типы полей формы.
const (
	FieldText     = "text"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldCheckbox = "checkbox"
	FieldTextarea = "textarea"
	FieldSelect   = "select"
	FieldFile     = "file"
)

// Option — вариант выбора; Label выводится без перевода.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Field — поле формы. Label и Errors — ключи перевода.
type Field struct {
	Name     string
	Label    string
	Type     string
	Value    string
	Checked  bool
	Required bool
	Options  []Option
	Errors   []string
}

// FormData — универсальная форма.
type FormData struct {
	// Heading — ключ заголовка формы
	Heading   string
	Action    string
	Submit    string
	Multipart bool
	Fields    []Field
	Links     []Link
}

// withErrors раскладывает ошибки проверки по полям.
func (f *FormData) withErrors(errs forms.Errors) *FormData {
	for i := range f.Fields {
		f.Fields[i].Errors = errs[f.Fields[i].Name]
	}
	return f
}

func text(name, label, value string) Field {
	return Field{Name: name, Label: label, Type: FieldText, Value: value}
}

func required(f Field) Field {
	f.Required = true
	return f
}

func choices(name, label, current string, labels []string) Field {
	f := Field{Name: name, Label: label, Type: FieldSelect, Options: []Option{{Value: "", Label: "—"}}}
	for _, l := range labels {
		f.Options = append(f.Options, Option{Value: l, Label: l, Selected: l == current})
	}
	return f
}

// LoginForm — форма входа; next — адрес возврата после входа.
func LoginForm(next string, f *forms.LoginForm, errs forms.Errors) *FormData {
	action := "/auth/login"
	if next != "" {
		action += "?next=" + url.QueryEscape(next)
	}
	return (&FormData{
		Heading: "auth.login.title",
		Action:  action,
		Submit:  "auth.login.submit",
		Fields: []Field{
			required(Field{Name: "email", Label: "field.email", Type: FieldEmail, Value: f.Email}),
			required(Field{Name: "password", Label: "field.password", Type: FieldPassword}),
			{Name: "remember_me", Label: "field.remember_me", Type: FieldCheckbox, Checked: f.RememberMe},
		},
		Links: []Link{
			{Href: "/auth/reset", Label: "auth.login.forgot"},
			{Href: "/auth/register", Label: "auth.login.register"},
		},
	}).withErrors(errs)
}

// RegistrationForm — форма регистрации.
func RegistrationForm(f *forms.RegistrationForm, errs forms.Errors) *FormData {
	return (&FormData{
		Heading: "auth.register.title",
		Action:  "/auth/register",
		Submit:  "auth.register.submit",
		Fields: []Field{
			required(Field{Name: "email", Label: "field.email", Type: FieldEmail, Value: f.Email}),
			required(text("username", "field.username", f.Username)),
			required(Field{Name: "password", Label: "field.password", Type: FieldPassword}),
			required(Field{Name: "password2", Label: "field.password2", Type: FieldPassword}),
		},
		Links: []Link{{Href: "/auth/login", Label: "auth.register.login"}},
	}).withErrors(errs)
}

// ChangePasswordForm — смена пароля.
func ChangePasswordForm(errs forms.Errors) *FormData {
	return (&FormData{
		Heading: "auth.change_password.title",
		Action:  "/auth/change-password",
		Submit:  "auth.change_password.submit",
		Fields: []Field{
			required(Field{Name: "old_password", Label: "field.old_password", Type: FieldPassword}),
			required(Field{Name: "password", Label: "field.new_password", Type: FieldPassword}),
			required(Field{Name: "password2", Label: "field.password2", Type: FieldPassword}),
		},
	}).withErrors(errs)
}

// ResetRequestForm — запрос ссылки сброса пароля.
func ResetRequestForm(f *forms.PasswordResetRequestForm, errs forms.Errors) *FormData {
	return (&FormData{
		Heading: "auth.reset.title",
		Action:  "/auth/reset",
		Submit:  "auth.reset.request_submit",
		Fields: []Field{
			required(Field{Name: "email", Label: "field.email", Type: FieldEmail, Value: f.Email}),
		},
	}).withErrors(errs)
}

// ResetForm — новый пароль по ссылке сброса.
func ResetForm(token string, f *forms.PasswordResetForm, errs forms.Errors) *FormData {
	return (&FormData{
		Heading: "auth.reset.title",
		Action:  "/auth/reset/" + token,
		Submit:  "auth.reset.submit",
		Fields: []Field{
			required(Field{Name: "email", Label: "field.email", Type: FieldEmail, Value: f.Email}),
			required(Field{Name: "password", Label: "field.new_password", Type: FieldPassword}),
			required(Field{Name: "password2", Label: "field.password2", Type: FieldPassword}),
		},
	}).withErrors(errs)
}

// ChangeEmailForm — запрос смены email.
func ChangeEmailForm(f *forms.ChangeEmailForm, errs forms.Errors) *FormData {
	return (&FormData{
		Heading: "auth.change_email.title",
		Action:  "/auth/change-email",
		Submit:  "auth.change_email.submit",
		Fields: []Field{
			required(Field{Name: "email", Label: "field.new_email", Type: FieldEmail, Value: f.Email}),
			required(Field{Name: "password", Label: "field.password", Type: FieldPassword}),
		},
	}).withErrors(errs)
}

// ProfileForm — редактирование собственного профиля.
func ProfileForm(f *forms.ProfileForm, errs forms.Errors) *FormData {
	return (&FormData{
		Heading: "profile.edit.title",
		Action:  "/edit-profile",
		Submit:  "form.save",
		Fields: []Field{
			text("name", "field.name", f.Name),
			text("location", "field.location", f.Location),
			{Name: "about_me", Label: "field.about_me", Type: FieldTextarea, Value: f.AboutMe},
		},
		Links: []Link{
			{Href: "/auth/change-password", Label: "auth.change_password.title"},
			{Href: "/auth/change-email", Label: "auth.change_email.title"},
		},
	}).withErrors(errs)
}

// AdminProfileForm — редактирование пользователя администратором.
func AdminProfileForm(id int64, f *forms.AdminProfileForm, roles []*model.Role, errs forms.Errors) *FormData {
	role := Field{Name: "role", Label: "field.role", Type: FieldSelect, Required: true}
	for _, r := range roles {
		role.Options = append(role.Options, Option{
			Value:    strconv.FormatInt(r.ID, 10),
			Label:    r.Name,
			Selected: r.ID == f.RoleID,
		})
	}
	return (&FormData{
		Heading: "profile.admin.title",
		Action:  fmt.Sprintf("/edit-profile/%d", id),
		Submit:  "form.save",
		Fields: []Field{
			required(Field{Name: "email", Label: "field.email", Type: FieldEmail, Value: f.Email}),
			required(text("username", "field.username", f.Username)),
			{Name: "confirmed", Label: "field.confirmed", Type: FieldCheckbox, Checked: f.Confirmed},
			role,
			text("name", "field.name", f.Name),
			text("location", "field.location", f.Location),
			{Name: "about_me", Label: "field.about_me", Type: FieldTextarea, Value: f.AboutMe},
		},
	}).withErrors(errs)
}

// DossierForm — создание дела.
func DossierForm(f *forms.DossierForm, errs forms.Errors) *FormData {
	return (&FormData{
		Heading: "dossier.add.title",
		Action:  "/add-dossier",
		Submit:  "dossier.add.submit",
		Fields:  []Field{required(text("name", "field.dossier_name", f.Name))},
	}).withErrors(errs)
}

// SearchForm — поиск по ключевому слову.
func SearchForm(f *forms.SearchForm, errs forms.Errors) *FormData {
	return (&FormData{
		Action: "/search",
		Submit: "search.submit",
		Fields: []Field{required(text("keyword", "field.keyword", f.Keyword))},
	}).withErrors(errs)
}

// metadataLayout — порядок текстовых полей описания в форме.
var metadataLayout = []struct {
	name      string
	multiline bool
}{
	{"title_proper", false}, {"title_parallel", false}, {"title_sub", false},
	{"key_who", false}, {"key_why", false}, {"key_when", false},
	{"key_where", false}, {"key_how", false}, {"key_what", false},
	{"archive_num", false}, {"annotation", true}, {"summary", true},
	{"related_name", false}, {"archive_guide", false}, {"dossier_guide", false},
	{"coverage_note", false}, {"retention_period", false},
	{"creator_of_record", false}, {"publisher", false}, {"contributor", false},
	{"rights", false}, {"date", false}, {"version", false}, {"record_type", false},
	{"quantity", false}, {"specification", false}, {"record_num", false},
	{"identifier", false}, {"tags", false},
}

var uploadRequired = map[string]bool{
	"title_proper": true, "key_who": true, "key_when": true, "key_where": true,
	"key_what": true, "archive_num": true, "creator_of_record": true,
	"date": true, "identifier": true,
}

var editRequired = map[string]bool{"title_proper": true, "archive_num": true}

// FileForm — загрузка файла (upload) или редактирование описания.
func FileForm(action string, upload bool, m *forms.Metadata, opts model.Options, dossiers []*model.Dossier, errs forms.Errors) *FormData {
	req := editRequired
	form := &FormData{
		Heading: "file.edit.title",
		Action:  action,
		Submit:  "form.save",
	}
	if upload {
		req = uploadRequired
		form.Heading = "file.upload.title"
		form.Submit = "file.upload.submit"
		form.Multipart = true
		form.Fields = append(form.Fields,
			required(Field{Name: "file", Label: "field.file", Type: FieldFile}),
			Field{Name: "related_file", Label: "field.related_file", Type: FieldFile},
		)
	}

	dossier := Field{Name: "dossier", Label: "field.dossier", Type: FieldSelect, Required: true,
		Options: []Option{{Value: "", Label: "—"}}}
	for _, d := range dossiers {
		dossier.Options = append(dossier.Options, Option{
			Value:    strconv.FormatInt(d.ID, 10),
			Label:    d.Name,
			Selected: d.ID == m.DossierID,
		})
	}
	form.Fields = append(form.Fields, dossier)

	for _, l := range metadataLayout {
		f := text(l.name, "field."+l.name, m.Value(l.name))
		if l.multiline {
			f.Type = FieldTextarea
		}
		f.Required = req[l.name]
		form.Fields = append(form.Fields, f)
	}
	form.Fields = append(form.Fields,
		choices("language", "field.language", m.Language, opts.Languages),
		choices("classification_level", "field.classification_level", m.Classification, opts.Confidentialities),
		choices("carrier_type", "field.carrier_type", m.CarrierType, opts.FileTypes),
	)
	return form.withErrors(errs)
}

// AdminEditForm — форма редактирования записи консоли.
func AdminEditForm(e *admin.Entity, id int64, row admin.Row, errs forms.Errors) *FormData {
	form := &FormData{
		Heading: e.Title,
		Action:  fmt.Sprintf("/admin/%s/%d/edit", e.Name, id),
		Submit:  "form.save",
		Links:   []Link{{Href: "/admin/" + e.Name, Label: "admin.back"}},
	}
	for _, c := range e.EditableColumns() {
		f := text(c.Key, c.Label, row[c.Key])
		switch {
		case c.Bool:
			f.Type = FieldCheckbox
			f.Checked = row[c.Key] == "true" || row[c.Key] == "on"
		case c.Multiline:
			f.Type = FieldTextarea
		}
		form.Fields = append(form.Fields, f)
	}
	return form.withErrors(errs)
}
