// Пакет pages — страницы веб-интерфейса.
//
// Разметка хранится во встроенных html/template и отдаётся как
// templ.Component: обработчики рендерят страницы единообразно через
// Render(ctx, w), как и компоненты templ.
package pages

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/ui/auth"
	"github.com/rucyang/metadata/internal/ui/i18n"
)

//go:embed templates/*.html
var templateFS embed.FS

// Имена страниц.
const (
	PageForm        = "form"
	PageFiles       = "files"
	PageFile        = "file"
	PageSearch      = "search"
	PageUser        = "user"
	PageMessage     = "message"
	PageAdminIndex  = "admin_index"
	PageAdminList   = "admin_list"
	PageAdminDelete = "admin_delete"
)

var pageNames = []string{
	PageForm, PageFiles, PageFile, PageSearch, PageUser,
	PageMessage, PageAdminIndex, PageAdminList, PageAdminDelete,
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"join": strings.Join,
	"add":  func(a, b int) int { return a + b },
	"sub":  func(a, b int) int { return a - b },
	"dict": func(pairs ...any) (map[string]any, error) {
		if len(pairs)%2 != 0 {
			return nil, fmt.Errorf("dict: нечётное число аргументов")
		}
		m := make(map[string]any, len(pairs)/2)
		for i := 0; i < len(pairs); i += 2 {
			key, ok := pairs[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: ключ %v не строка", pairs[i])
			}
			m[key] = pairs[i+1]
		}
		return m, nil
	},
	"seq": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i + 1
		}
		return out
	},
}

// Renderer хранит разобранные шаблоны страниц.
type Renderer struct {
	bundle *i18n.Bundle
	pages  map[string]*template.Template
}

// NewRenderer разбирает встроенные шаблоны.
// Каждая страница получает свой набор: layout, partials и сама страница.
func NewRenderer(bundle *i18n.Bundle) (*Renderer, error) {
	r := &Renderer{bundle: bundle, pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора шаблона %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// NewView создаёт данные страницы для языка запроса.
func (r *Renderer) NewView(lang string, principal rbac.Principal, flashes []auth.Flash) *View {
	if principal == nil {
		principal = rbac.Anonymous
	}
	return &View{Lang: lang, Principal: principal, Flashes: flashes, bundle: r.bundle}
}

// Page возвращает компонент страницы name с данными v.
func (r *Renderer) Page(name string, v *View) templ.Component {
	t, ok := r.pages[name]
	if !ok {
		panic(fmt.Sprintf("pages: неизвестная страница %q", name))
	}
	if v.bundle == nil {
		v.bundle = r.bundle
	}
	return templ.FromGoHTML(t, v)
}

// View — общие данные всех страниц.
type View struct {
	Lang      string
	Title     string
	Principal rbac.Principal
	Flashes   []auth.Flash
	// Content — данные конкретной страницы
	Content any

	bundle *i18n.Bundle
}

// T переводит ключ на язык страницы.
func (v *View) T(key string, args ...any) string {
	if v.bundle == nil {
		return key
	}
	return v.bundle.Translatef(v.Lang, key, args...)
}

// Languages — коды языков для переключателя.
func (v *View) Languages() []string { return i18n.Languages }

// Can проверяет право по короткому имени.
func (v *View) Can(name string) bool {
	switch name {
	case "upload":
		return v.Principal.Can(rbac.UploadFile)
	case "download":
		return v.Principal.Can(rbac.DownloadFile)
	case "manage":
		return v.Principal.Can(rbac.ManageUser)
	case "admin":
		return v.Principal.IsAdministrator()
	}
	return false
}

// CarrierSlugs — сегменты меню типов носителя.
func (v *View) CarrierSlugs() []string {
	return model.CarrierSlugs()
}
