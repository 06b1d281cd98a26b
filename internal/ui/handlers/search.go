package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/service"
	"github.com/rucyang/metadata/internal/ui/pages"
)

// SearchHandler — поиск по ключевому слову и точный поиск по полю.
type SearchHandler struct {
	Base
	files FileService
}

// NewSearchHandler создаёт обработчик поиска.
func NewSearchHandler(base *Base, files FileService) *SearchHandler {
	return &SearchHandler{Base: base.with("ui.search"), files: files}
}

// HandleSearch — GET/POST /search.
// GET с ?keyword= выполняет поиск сразу, без формы.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var form *forms.SearchForm
	switch {
	case r.Method == http.MethodPost:
		if !h.parseForm(w, r) {
			return
		}
		form = forms.ParseSearch(r)
	case r.URL.Query().Get("keyword") != "":
		form = &forms.SearchForm{Keyword: strings.TrimSpace(r.URL.Query().Get("keyword"))}
	default:
		h.render(w, r, http.StatusOK, pages.PageSearch, "search.title", &pages.SearchData{
			Form: pages.SearchForm(&forms.SearchForm{}, nil),
		})
		return
	}

	res, err := h.files.Search(r.Context(), form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.render(w, r, http.StatusOK, pages.PageSearch, "search.title", &pages.SearchData{
			Form: pages.SearchForm(form, service.FieldErrors(err)),
		})
	case err != nil:
		h.serverError(w, r, err)
	default:
		h.render(w, r, http.StatusOK, pages.PageSearch, "search.title", &pages.SearchData{
			Form:   pages.SearchForm(form, nil),
			Result: res,
		})
	}
}

// HandleFieldSearch — GET /search-result/{code}-{keyword}: точное
// совпадение значения поля 5W1H.
func (h *SearchHandler) HandleFieldSearch(w http.ResponseWriter, r *http.Request) {
	code, keyword, ok := fieldSearchParam(r)
	if !ok {
		h.NotFound(w, r)
		return
	}

	files, err := h.files.SearchField(r.Context(), code, keyword)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, pages.PageFiles, "search.title", &pages.FilesData{
		Heading:    "search.field.title",
		HeadingArg: keyword,
		Page:       &service.Page{Items: files, Page: 1, PerPage: len(files), Total: len(files), Pages: 1},
		BaseURL:    r.URL.Path,
	})
}

// fieldSearchParam разбирает сегмент "{code}-{keyword}".
// Ключевое слово может само содержать дефисы. Нечисловой код
// ищет по key_what, как и любой код вне 1..5.
func fieldSearchParam(r *http.Request) (int, string, bool) {
	raw := chi.URLParam(r, "query")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			return 0, "", false
		}
		raw = unescaped
	}

	codeStr, keyword, found := strings.Cut(raw, "-")
	if !found || keyword == "" {
		return 0, "", false
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		code = 0
	}
	return code, keyword, true
}
