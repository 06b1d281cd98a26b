package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/service"
	"github.com/rucyang/metadata/internal/ui/i18n"
	"github.com/rucyang/metadata/internal/ui/middleware"
)

func testFile(id, creatorID int64) *model.File {
	return &model.File{
		ID:          id,
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Size:        5,
		CreatorID:   creatorID,
		Title:       model.Title{Proper: "Annual report"},
		CarrierType: "文档",
	}
}

func newFileHandler(t *testing.T, files *mockFiles) *FileHandler {
	t.Helper()
	dossiers := &mockDossiers{items: []*model.Dossier{{ID: 2, Name: "Reports"}}}
	users := &mockUsers{users: map[int64]*model.User{1: {ID: 1, Username: "root"}}}
	return NewFileHandler(newTestBase(t), files, dossiers, users)
}

func TestHandleScan(t *testing.T) {
	var gotPage int
	files := &mockFiles{
		listActiveFn: func(_ context.Context, page int) (*service.Page, error) {
			gotPage = page
			return &service.Page{Items: []*model.File{testFile(7, 1)}, Page: page, PerPage: 5, Total: 6, Pages: 2}, nil
		},
	}
	h := newFileHandler(t, files)

	rec := do(t, http.MethodGet, "/scan", "/scan?page=2", nil, nil, h.HandleScan)
	assertStatus(t, rec, http.StatusOK)
	assertBody(t, rec, "All files", "Annual report", `href="/file/7"`)
	if gotPage != 2 {
		t.Errorf("страница = %d, хотели 2", gotPage)
	}
}

func TestHandleCarrier(t *testing.T) {
	tests := []struct {
		name string
		slug string
		err  error
		want int
	}{
		{"известный тип", "text", nil, http.StatusOK},
		{"неизвестный тип", "sculpture", service.ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := &mockFiles{
				listByCarrierFn: func(_ context.Context, slug string, page int) (*service.Page, error) {
					if slug != tt.slug {
						t.Errorf("slug = %q, хотели %q", slug, tt.slug)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return &service.Page{Page: page, PerPage: 5}, nil
				},
			}
			h := newFileHandler(t, files)
			rec := do(t, http.MethodGet, "/files/{type}", "/files/"+tt.slug, nil, nil, h.HandleCarrier)
			assertStatus(t, rec, tt.want)
		})
	}
}

func TestHandleFile(t *testing.T) {
	files := &mockFiles{
		getFn: func(_ context.Context, id int64) (*model.File, error) {
			if id != 7 {
				return nil, service.ErrNotFound
			}
			f := testFile(7, 1)
			dossierID := int64(2)
			f.DossierID = &dossierID
			return f, nil
		},
	}
	h := newFileHandler(t, files)

	tests := []struct {
		name      string
		target    string
		principal rbac.Principal
		want      int
		body      []string
		absent    string
	}{
		{name: "владелец", target: "/file/7", principal: userPrincipal(1, 0x03), want: http.StatusOK, body: []string{"Reports", `href="/edit-file/7"`}},
		{name: "аноним", target: "/file/7", want: http.StatusOK, body: []string{"Annual report"}, absent: `href="/edit-file/7"`},
		{name: "нет файла", target: "/file/8", want: http.StatusNotFound},
		{name: "некорректный id", target: "/file/abc", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, http.MethodGet, "/file/{id}", tt.target, nil, tt.principal, h.HandleFile)
			assertStatus(t, rec, tt.want)
			assertBody(t, rec, tt.body...)
			if tt.absent != "" && strings.Contains(rec.Body.String(), tt.absent) {
				t.Errorf("в ответе не ожидается %q", tt.absent)
			}
		})
	}
}

func TestHandleDownload(t *testing.T) {
	files := &mockFiles{
		openFn: func(_ context.Context, _ rbac.Principal, id int64, related bool) (*service.Download, error) {
			if id != 7 {
				return nil, service.ErrNotFound
			}
			f := testFile(7, 1)
			f.Filename = "отчёт.pdf"
			name := f.Filename
			if related {
				name = "scan.png"
			}
			return &service.Download{File: f, Name: name, Body: io.NopCloser(strings.NewReader("hello"))}, nil
		},
	}
	h := newFileHandler(t, files)

	t.Run("оригинал", func(t *testing.T) {
		rec := do(t, http.MethodGet, "/download/{id}", "/download/7", nil, userPrincipal(2, 0x03), h.HandleDownload)
		assertStatus(t, rec, http.StatusOK)
		if got := rec.Body.String(); got != "hello" {
			t.Errorf("тело = %q", got)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
			t.Errorf("Content-Type = %q", got)
		}
		cd := rec.Header().Get("Content-Disposition")
		if !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, "filename*=utf-8''") {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if got := rec.Header().Get("Content-Length"); got != "5" {
			t.Errorf("Content-Length = %q, хотели 5", got)
		}
	})

	t.Run("связанный ресурс", func(t *testing.T) {
		rec := do(t, http.MethodGet, "/download/{id}", "/download/7?related=1", nil, userPrincipal(2, 0x03), h.HandleDownload)
		assertStatus(t, rec, http.StatusOK)
		if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename=scan.png` {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if got := rec.Header().Get("Content-Length"); got != "" {
			t.Errorf("Content-Length не ожидается, получили %q", got)
		}
	})

	t.Run("нет файла", func(t *testing.T) {
		rec := do(t, http.MethodGet, "/download/{id}", "/download/9", nil, userPrincipal(2, 0x03), h.HandleDownload)
		assertStatus(t, rec, http.StatusNotFound)
	})
}

func TestHandleEdit(t *testing.T) {
	var updated *forms.EditFileForm
	files := &mockFiles{
		getFn: func(_ context.Context, id int64) (*model.File, error) {
			return testFile(id, 1), nil
		},
		updateFn: func(_ context.Context, _ rbac.Principal, id int64, form *forms.EditFileForm) (*model.File, error) {
			updated = form
			return testFile(id, 1), nil
		},
	}
	h := newFileHandler(t, files)

	t.Run("чужой файл", func(t *testing.T) {
		rec := do(t, http.MethodGet, "/edit-file/{id}", "/edit-file/7", nil, userPrincipal(2, 0x03), h.HandleEdit)
		assertStatus(t, rec, http.StatusForbidden)
	})

	t.Run("модератор видит форму", func(t *testing.T) {
		rec := do(t, http.MethodGet, "/edit-file/{id}", "/edit-file/7", nil, userPrincipal(2, 0x0f), h.HandleEdit)
		assertStatus(t, rec, http.StatusOK)
		assertBody(t, rec, `action="/edit-file/7"`)
	})

	t.Run("сохранение владельцем", func(t *testing.T) {
		body := url.Values{"annotation": {"line1\nline2"}, "dossier": {"2"}}
		rec := do(t, http.MethodPost, "/edit-file/{id}", "/edit-file/7", body, userPrincipal(1, 0x03), h.HandleEdit)
		assertRedirect(t, rec, "/file/7")
		if updated == nil || updated.Annotation != "line1\nline2" || updated.DossierID != 2 {
			t.Errorf("форма разобрана неверно: %+v", updated)
		}
	})
}

func TestHandleDelete(t *testing.T) {
	var deleted int64
	files := &mockFiles{
		softDeleteFn: func(_ context.Context, _ rbac.Principal, id int64) error {
			if id == 9 {
				return service.ErrForbidden
			}
			deleted = id
			return nil
		},
	}
	h := newFileHandler(t, files)

	rec := do(t, http.MethodPost, "/delete-file/{id}", "/delete-file/7", url.Values{}, userPrincipal(1, 0x03), h.HandleDelete)
	assertRedirect(t, rec, "/file-manage")
	if deleted != 7 {
		t.Errorf("удалён %d, хотели 7", deleted)
	}

	rec = do(t, http.MethodPost, "/delete-file/{id}", "/delete-file/9", url.Values{}, userPrincipal(1, 0x03), h.HandleDelete)
	assertStatus(t, rec, http.StatusForbidden)
}

func TestHandleUpload(t *testing.T) {
	tests := []struct {
		name       string
		uploadErr  error
		wantStatus int
	}{
		{"успех", nil, http.StatusSeeOther},
		{"ошибка проверки", validation("title", forms.MsgRequired), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *forms.FileForm
			files := &mockFiles{
				uploadFn: func(_ context.Context, _ rbac.Principal, form *forms.FileForm) (*model.File, error) {
					got = form
					if tt.uploadErr != nil {
						return nil, tt.uploadErr
					}
					return testFile(11, 1), nil
				},
			}
			h := newFileHandler(t, files)

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			_ = mw.WriteField("dossier", "2")
			part, err := mw.CreateFormFile("file", "report.pdf")
			if err != nil {
				t.Fatal(err)
			}
			_, _ = part.Write([]byte("%PDF-1.4"))
			_ = mw.Close()

			router := chi.NewRouter()
			router.Post("/upload-file", h.HandleUpload)
			req := httptest.NewRequest(http.MethodPost, "/upload-file", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			ctx := middleware.WithPrincipal(req.Context(), userPrincipal(1, 0x03))
			req = req.WithContext(i18n.WithLang(ctx, "en"))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assertStatus(t, rec, tt.wantStatus)
			if got == nil || got.File == nil || got.File.Filename != "report.pdf" || got.Related != nil {
				t.Fatalf("форма загрузки разобрана неверно: %+v", got)
			}
			if got.DossierID != 2 {
				t.Errorf("DossierID = %d, хотели 2", got.DossierID)
			}
			if tt.wantStatus == http.StatusSeeOther {
				assertRedirect(t, rec, "/file/11")
			}
		})
	}
}

func TestHandleUpload_BadMultipart(t *testing.T) {
	h := newFileHandler(t, &mockFiles{})
	rec := do(t, http.MethodPost, "/upload-file", "/upload-file", url.Values{"a": {"b"}}, userPrincipal(1, 0x03), func(w http.ResponseWriter, r *http.Request) {
		r.Header.Set("Content-Type", "multipart/form-data")
		h.HandleUpload(w, r)
	})
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestHandleUpload_TooLarge(t *testing.T) {
	tests := []struct {
		name        string
		knownLength bool
	}{
		{"размер известен заранее", true},
		{"размер неизвестен", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			files := &mockFiles{
				uploadFn: func(_ context.Context, _ rbac.Principal, _ *forms.FileForm) (*model.File, error) {
					called = true
					return testFile(11, 1), nil
				},
			}
			h := newFileHandler(t, files).WithMaxUploadSize(1024)

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			part, err := mw.CreateFormFile("file", "big.bin")
			if err != nil {
				t.Fatal(err)
			}
			_, _ = part.Write(bytes.Repeat([]byte("x"), 4096))
			_ = mw.Close()

			var body io.Reader = &buf
			if !tt.knownLength {
				// Для произвольного io.Reader httptest ставит ContentLength = -1.
				body = io.MultiReader(&buf)
			}
			req := httptest.NewRequest(http.MethodPost, "/upload-file", body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			ctx := middleware.WithPrincipal(req.Context(), userPrincipal(1, 0x03))
			req = req.WithContext(i18n.WithLang(ctx, "en"))
			rec := httptest.NewRecorder()

			router := chi.NewRouter()
			router.Post("/upload-file", h.HandleUpload)
			router.ServeHTTP(rec, req)

			assertStatus(t, rec, http.StatusRequestEntityTooLarge)
			if called {
				t.Error("Upload вызван для слишком большого тела")
			}
		})
	}
}

func TestHandleAddDossier(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"успех", nil, http.StatusSeeOther, ""},
		{"имя занято при вставке", service.ErrConflict, http.StatusOK, "Dossier name already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFileHandler(newTestBase(t), &mockFiles{}, &mockDossiers{
				createFn: func(_ context.Context, _ rbac.Principal, form *forms.DossierForm) (*model.Dossier, error) {
					if form.Name != "Reports" {
						t.Errorf("имя дела = %q", form.Name)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Dossier{ID: 3, Name: form.Name}, nil
				},
			}, &mockUsers{})

			rec := do(t, http.MethodPost, "/add-dossier", "/add-dossier", url.Values{"name": {" Reports "}}, userPrincipal(1, 0x03), h.HandleAddDossier)
			assertStatus(t, rec, tt.wantCode)
			if tt.wantCode == http.StatusSeeOther {
				assertRedirect(t, rec, "/upload-file")
			} else {
				assertBody(t, rec, tt.wantBody)
			}
		})
	}
}

func TestHandleFieldSearch(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantField int
		wantValue string
	}{
		{"простое значение", "/search-result/1-Ivanov", http.StatusOK, 1, "Ivanov"},
		{"дефис в значении", "/search-result/3-2023-05", http.StatusOK, 3, "2023-05"},
		{"кириллица", "/search-result/6-%D0%BE%D1%82%D1%87%D1%91%D1%82", http.StatusOK, 6, "отчёт"},
		{"экранированный слеш", "/search-result/6-%D0%BE%D1%82%D1%87%D1%91%D1%82%2F%D0%B8%D1%82%D0%BE%D0%B3%D0%B8", http.StatusOK, 6, "отчёт/итоги"},
		{"без дефиса", "/search-result/abc", http.StatusNotFound, 0, ""},
		{"нечисловой код", "/search-result/what-abc", http.StatusOK, 0, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotField int
			var gotValue string
			files := &mockFiles{
				searchFieldFn: func(_ context.Context, code int, value string) ([]*model.File, error) {
					gotField, gotValue = code, value
					return []*model.File{testFile(7, 1)}, nil
				},
			}
			h := NewSearchHandler(newTestBase(t), files)
			rec := do(t, http.MethodGet, "/search-result/{query}", tt.target, nil, nil, h.HandleFieldSearch)

			assertStatus(t, rec, tt.wantCode)
			if tt.wantCode != http.StatusOK {
				return
			}
			if gotField != tt.wantField || gotValue != tt.wantValue {
				t.Errorf("SearchField(%d, %q), хотели (%d, %q)", gotField, gotValue, tt.wantField, tt.wantValue)
			}
			if tt.wantField == 0 && model.KeyFieldByCode(gotField) != model.KeyWhat {
				t.Errorf("код %d ищет по %v, хотели key_what", gotField, model.KeyFieldByCode(gotField))
			}
			assertBody(t, rec, tt.wantValue, "Annual report")
		})
	}
}

func TestHandleSearch(t *testing.T) {
	var calls int
	files := &mockFiles{
		searchFn: func(_ context.Context, form *forms.SearchForm) (*service.SearchResult, error) {
			calls++
			if form.Keyword == "" {
				return nil, validation("keyword", forms.MsgRequired)
			}
			return &service.SearchResult{Keyword: form.Keyword, Files: []*model.File{testFile(7, 1)}}, nil
		},
	}
	h := NewSearchHandler(newTestBase(t), files)

	rec := do(t, http.MethodGet, "/search", "/search", nil, nil, h.HandleSearch)
	assertStatus(t, rec, http.StatusOK)
	if calls != 0 {
		t.Error("GET без ключевого слова не должен выполнять поиск")
	}

	rec = do(t, http.MethodPost, "/search", "/search", url.Values{"keyword": {"report"}}, nil, h.HandleSearch)
	assertStatus(t, rec, http.StatusOK)
	assertBody(t, rec, "Annual report")

	rec = do(t, http.MethodGet, "/search", "/search?keyword=report", nil, nil, h.HandleSearch)
	assertStatus(t, rec, http.StatusOK)
	assertBody(t, rec, "Annual report")

	rec = do(t, http.MethodPost, "/search", "/search", url.Values{"keyword": {"  "}}, nil, h.HandleSearch)
	assertStatus(t, rec, http.StatusOK)
	assertBody(t, rec, "This field is required")

	if calls != 3 {
		t.Errorf("вызовов Search = %d, хотели 3", calls)
	}
}

func TestHandleUser(t *testing.T) {
	users := &mockUsers{users: map[int64]*model.User{
		1: {ID: 1, Username: "root", Email: "root@example.com", RoleID: 3},
	}}
	roles := &mockRoles{roles: []*model.Role{{ID: 3, Name: "Administrator"}}}
	files := &mockFiles{
		listByCreatorFn: func(_ context.Context, creatorID int64, page int) (*service.Page, error) {
			if creatorID != 1 {
				t.Errorf("creatorID = %d", creatorID)
			}
			return &service.Page{Items: []*model.File{testFile(7, 1)}, Page: page, PerPage: 5, Total: 1, Pages: 1}, nil
		},
	}
	h := NewUserHandler(newTestBase(t), users, roles, files)

	rec := do(t, http.MethodGet, "/user/{username}", "/user/root", nil, userPrincipal(1, 0xff), h.HandleUser)
	assertStatus(t, rec, http.StatusOK)
	assertBody(t, rec, "Administrator", "Annual report", `href="/edit-profile"`)

	rec = do(t, http.MethodGet, "/user/{username}", "/user/ghost", nil, nil, h.HandleUser)
	assertStatus(t, rec, http.StatusNotFound)
}

func TestHandleEditProfile(t *testing.T) {
	users := &mockUsers{
		users: map[int64]*model.User{1: {ID: 1, Username: "root", Name: "Old"}},
		updateProfileFn: func(_ context.Context, userID int64, form *forms.ProfileForm) (*model.User, error) {
			if form.Name == "" {
				return nil, validation("name", forms.MsgRequired)
			}
			return &model.User{ID: userID, Username: "root", Name: form.Name}, nil
		},
	}
	h := NewUserHandler(newTestBase(t), users, &mockRoles{}, &mockFiles{})

	rec := do(t, http.MethodGet, "/edit-profile", "/edit-profile", nil, userPrincipal(1, 0x03), h.HandleEditProfile)
	assertStatus(t, rec, http.StatusOK)
	assertBody(t, rec, `value="Old"`)

	rec = do(t, http.MethodPost, "/edit-profile", "/edit-profile", url.Values{"name": {"New"}}, userPrincipal(1, 0x03), h.HandleEditProfile)
	assertRedirect(t, rec, "/user/root")
}

func TestHandleAdminEditProfile(t *testing.T) {
	var got *forms.AdminProfileForm
	users := &mockUsers{
		users: map[int64]*model.User{5: {ID: 5, Username: "neo", Email: "neo@example.com", RoleID: 1}},
		adminUpdateFn: func(_ context.Context, _ rbac.Principal, id int64, form *forms.AdminProfileForm) (*model.User, error) {
			got = form
			return &model.User{ID: id, Username: form.Username}, nil
		},
	}
	roles := &mockRoles{roles: []*model.Role{{ID: 1, Name: "User"}, {ID: 3, Name: "Administrator"}}}
	h := NewUserHandler(newTestBase(t), users, roles, &mockFiles{})

	rec := do(t, http.MethodGet, "/edit-profile/{id}", "/edit-profile/5", nil, userPrincipal(1, 0xff), h.HandleAdminEditProfile)
	assertStatus(t, rec, http.StatusOK)
	assertBody(t, rec, `value="neo@example.com"`, "Administrator")

	body := url.Values{"email": {"neo@example.com"}, "username": {"trinity"}, "role": {"3"}}
	rec = do(t, http.MethodPost, "/edit-profile/{id}", "/edit-profile/5", body, userPrincipal(1, 0xff), h.HandleAdminEditProfile)
	assertRedirect(t, rec, "/user/trinity")
	if got == nil || got.RoleID != 3 || got.Confirmed {
		t.Errorf("форма разобрана неверно: %+v", got)
	}

	rec = do(t, http.MethodGet, "/edit-profile/{id}", "/edit-profile/77", nil, userPrincipal(1, 0xff), h.HandleAdminEditProfile)
	assertStatus(t, rec, http.StatusNotFound)
}

func TestHandleSetLanguage(t *testing.T) {
	tests := []struct {
		name       string
		lang       string
		referer    string
		wantLoc    string
		wantCookie bool
	}{
		{"возврат на страницу", "ru", "http://example.com/file/7?x=1", "/file/7?x=1", true},
		{"чужой сайт", "en", "http://evil.example/phish", "/", true},
		{"без Referer", "zh", "", "/", true},
		{"неизвестный язык", "de", "/scan", "/scan", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLanguageHandler(newTestBase(t), true)
			rec := do(t, http.MethodPost, "/set-language", "/set-language", url.Values{"lang": {tt.lang}}, nil, func(w http.ResponseWriter, r *http.Request) {
				if tt.referer != "" {
					r.Header.Set("Referer", tt.referer)
				}
				h.HandleSetLanguage(w, r)
			})

			assertRedirect(t, rec, tt.wantLoc)

			var cookie *http.Cookie
			for _, c := range rec.Result().Cookies() {
				if c.Name == i18n.LangCookieName {
					cookie = c
				}
			}
			if (cookie != nil) != tt.wantCookie {
				t.Fatalf("cookie языка: %v, ожидалось %v", cookie != nil, tt.wantCookie)
			}
			if cookie != nil && (cookie.Value != tt.lang || !cookie.Secure || !cookie.HttpOnly) {
				t.Errorf("cookie языка = %+v", cookie)
			}
		})
	}
}
