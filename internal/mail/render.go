// Пакет mail — шаблонные уведомления и их асинхронная доставка.
package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"strings"
	texttemplate "text/template"

	"github.com/rucyang/metadata/internal/domain/model"
)

//go:embed templates
var templatesFS embed.FS

// Идентификаторы шаблонов писем.
const (
	TemplateConfirm       = "auth/email/confirm"
	TemplateResetPassword = "auth/email/reset_password"
	TemplateChangeEmail   = "auth/email/change_email"
)

// Data — контекст шаблона письма.
type Data struct {
	User    *model.User
	Token   string
	BaseURL string
	// Next — необязательный адрес возврата после перехода по ссылке
	Next string
}

// Message — готовое к отправке письмо.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Renderer рендерит текстовую и HTML-версии письма.
type Renderer struct {
	prefix string
	text   *texttemplate.Template
	html   *htmltemplate.Template
}

// NewRenderer загружает встроенные шаблоны.
// prefix добавляется в начало темы каждого письма.
func NewRenderer(prefix string) (*Renderer, error) {
	r := &Renderer{
		prefix: prefix,
		text:   texttemplate.New("mail"),
		html:   htmltemplate.New("mail"),
	}

	err := fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		body, err := templatesFS.ReadFile(path)
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(path, "templates/")
		switch {
		case strings.HasSuffix(name, ".txt"):
			_, err = r.text.New(name).Parse(string(body))
		case strings.HasSuffix(name, ".html"):
			_, err = r.html.New(name).Parse(string(body))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки шаблонов писем: %w", err)
	}
	return r, nil
}

// Render собирает письмо по идентификатору шаблона.
// Ошибка возвращается, если нет хотя бы одной из версий шаблона.
func (r *Renderer) Render(to, subject, templateID string, data Data) (*Message, error) {
	var text, html bytes.Buffer

	if err := r.text.ExecuteTemplate(&text, templateID+".txt", data); err != nil {
		return nil, fmt.Errorf("ошибка рендеринга %s.txt: %w", templateID, err)
	}
	if err := r.html.ExecuteTemplate(&html, templateID+".html", data); err != nil {
		return nil, fmt.Errorf("ошибка рендеринга %s.html: %w", templateID, err)
	}

	return &Message{
		To:      to,
		Subject: r.prefix + " " + subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
