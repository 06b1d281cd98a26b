// Пакет forms — разбор и проверка HTML-форм.
//
// Правила полей задаются тегами validate (go-playground/validator),
// проверки уникальности и существования выполняются через Lookup.
// Проверка всегда возвращает полный набор ошибок по всем полям:
// вызывающий код перерисовывает форму и ничего не меняет в хранилище.
package forms

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rucyang/metadata/internal/domain/model"
)

// Ключи сообщений об ошибках; переводятся каталогами i18n.
const (
	MsgRequired       = "form.required"
	MsgEmail          = "form.email"
	MsgTooLong        = "form.too_long"
	MsgPasswordsMatch = "form.passwords_mismatch"
	MsgEmailTaken     = "form.email_taken"
	MsgUsernameTaken  = "form.username_taken"
	MsgEmailUnknown   = "form.email_unknown"
	MsgDossierTaken   = "form.dossier_taken"
	MsgDossierMissing = "form.dossier_missing"
	MsgRoleMissing    = "form.role_missing"
	MsgChoice         = "form.invalid_choice"
	MsgInvalid        = "form.invalid"
)

// Errors — ошибки проверки формы: имя поля → ключи сообщений.
// Пустой набор означает, что форма корректна.
type Errors map[string][]string

// Add добавляет сообщение к полю.
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Has сообщает, есть ли ошибки у поля.
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// First возвращает первое сообщение поля или пустую строку.
func (e Errors) First(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Error реализует error; поля выводятся в алфавитном порядке.
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e[f], ", ")))
	}
	return "ошибки формы: " + strings.Join(parts, "; ")
}

// orNil возвращает nil для пустого набора.
func (e Errors) orNil() Errors {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Lookup — проверки, требующие обращения к хранилищу.
type Lookup interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	DossierExists(ctx context.Context, id int64) (bool, error)
	DossierNameExists(ctx context.Context, name string) (bool, error)
	RoleExists(ctx context.Context, id int64) (bool, error)
}

var validate = newValidator()

// newValidator создаёт валидатор, который называет поля по тегу form.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	// maxbytes ограничивает длину в байтах, а не в символах (max)
	if err := v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	}); err != nil {
		panic(fmt.Sprintf("forms: регистрация maxbytes: %v", err))
	}
	return v
}

// tagMessages — соответствие тегов validator ключам сообщений.
var tagMessages = map[string]string{
	"required": MsgRequired,
	"email":    MsgEmail,
	"max":      MsgTooLong,
	"maxbytes": MsgTooLong,
	"eqfield":  MsgPasswordsMatch,
}

// checkStruct проверяет теги validate и складывает ошибки в errs.
func checkStruct(s any, errs Errors) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("ошибка проверки формы: %w", err)
	}
	for _, fe := range verrs {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = MsgInvalid
		}
		errs.Add(fe.Field(), msg)
	}
	return nil
}

// checkVar проверяет одно значение правилом validator.
func checkVar(errs Errors, field, value, rule string) {
	if err := validate.Var(value, rule); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if msg, ok := tagMessages[verrs[0].Tag()]; ok {
				errs.Add(field, msg)
				return
			}
		}
		errs.Add(field, MsgInvalid)
	}
}

// checkChoice проверяет, что значение входит в список допустимых меток.
func checkChoice(errs Errors, field, value string, choices []string) {
	if value == "" {
		errs.Add(field, MsgRequired)
		return
	}
	if !model.Contains(choices, value) {
		errs.Add(field, MsgChoice)
	}
}
