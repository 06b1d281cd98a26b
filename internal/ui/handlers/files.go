package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/service"
	"github.com/rucyang/metadata/internal/ui/auth"
	"github.com/rucyang/metadata/internal/ui/pages"
)

// FileService — операции над архивными файлами.
type FileService interface {
	Options() model.Options
	Upload(ctx context.Context, actor rbac.Principal, form *forms.FileForm) (*model.File, error)
	Update(ctx context.Context, actor rbac.Principal, id int64, form *forms.EditFileForm) (*model.File, error)
	SoftDelete(ctx context.Context, actor rbac.Principal, id int64) error
	Get(ctx context.Context, id int64) (*model.File, error)
	ListActive(ctx context.Context, page int) (*service.Page, error)
	ListByCarrier(ctx context.Context, slug string, page int) (*service.Page, error)
	ListByCreator(ctx context.Context, creatorID int64, page int) (*service.Page, error)
	Search(ctx context.Context, form *forms.SearchForm) (*service.SearchResult, error)
	SearchField(ctx context.Context, code int, value string) ([]*model.File, error)
	OpenBlob(ctx context.Context, actor rbac.Principal, id int64) (*service.Download, error)
	OpenRelated(ctx context.Context, actor rbac.Principal, id int64) (*service.Download, error)
}

// DossierService — дела.
type DossierService interface {
	Create(ctx context.Context, actor rbac.Principal, form *forms.DossierForm) (*model.Dossier, error)
	List(ctx context.Context) ([]*model.Dossier, error)
	Get(ctx context.Context, id int64) (*model.Dossier, error)
}

// UserReader — чтение пользователей для карточек.
type UserReader interface {
	Get(ctx context.Context, id int64) (*model.User, error)
}

// DefaultMaxUploadSize — лимит тела запроса загрузки по умолчанию (1 GB).
const DefaultMaxUploadSize int64 = 1 << 30

// FileHandler — списки, карточка, загрузка и правка файлов, дела.
type FileHandler struct {
	Base
	files     FileService
	dossiers  DossierService
	users     UserReader
	maxUpload int64
}

// NewFileHandler создаёт обработчик файлов.
func NewFileHandler(base *Base, files FileService, dossiers DossierService, users UserReader) *FileHandler {
	return &FileHandler{
		Base:      base.with("ui.files"),
		files:     files,
		dossiers:  dossiers,
		users:     users,
		maxUpload: DefaultMaxUploadSize,
	}
}

// WithMaxUploadSize задаёт лимит тела запроса загрузки в байтах.
func (h *FileHandler) WithMaxUploadSize(n int64) *FileHandler {
	if n > 0 {
		h.maxUpload = n
	}
	return h
}

// HandleScan — GET /scan: все видимые файлы, новые первыми.
func (h *FileHandler) HandleScan(w http.ResponseWriter, r *http.Request) {
	page, err := h.files.ListActive(r.Context(), pageParam(r))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, pages.PageFiles, "nav.scan", &pages.FilesData{
		Heading: "files.scan.title",
		Page:    page,
		BaseURL: "/scan",
	})
}

// HandleCarrier — GET /files/{type}: файлы одного типа носителя.
func (h *FileHandler) HandleCarrier(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "type")
	page, err := h.files.ListByCarrier(r.Context(), slug, pageParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, pages.PageFiles, "carrier."+slug, &pages.FilesData{
		Heading: "carrier." + slug,
		Page:    page,
		BaseURL: "/files/" + slug,
	})
}

// HandleManage — GET /file-manage: файлы текущего пользователя.
func (h *FileHandler) HandleManage(w http.ResponseWriter, r *http.Request) {
	page, err := h.files.ListByCreator(r.Context(), principal(r).ID(), pageParam(r))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, pages.PageFiles, "nav.my_files", &pages.FilesData{
		Heading: "files.manage.title",
		Page:    page,
		BaseURL: "/file-manage",
	})
}

// HandleFile — GET /file/{id}: карточка, в том числе скрытого файла.
func (h *FileHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.NotFound(w, r)
		return
	}
	f, err := h.files.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var dossier *model.Dossier
	if f.DossierID != nil {
		if dossier, err = h.dossiers.Get(r.Context(), *f.DossierID); err != nil && !errors.Is(err, service.ErrNotFound) {
			h.serverError(w, r, err)
			return
		}
	}
	creator, err := h.users.Get(r.Context(), f.CreatorID)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		h.serverError(w, r, err)
		return
	}

	data := pages.NewFileData(f, dossier, creator, service.CanModify(principal(r), f))
	h.render(w, r, http.StatusOK, pages.PageFile, "file.title", data)
}

// HandleDownload — GET /download/{id}[?related=1] (DOWNLOAD_FILE).
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.NotFound(w, r)
		return
	}

	open := h.files.OpenBlob
	if r.URL.Query().Get("related") != "" {
		open = h.files.OpenRelated
	}
	dl, err := open(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer dl.Body.Close()

	contentType := dl.File.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Name}))
	if dl.Name == dl.File.Filename && dl.File.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.File.Size, 10))
	}

	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Warn("Передача файла прервана",
			slog.Int64("file_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (h *FileHandler) dossierList(ctx context.Context) ([]*model.Dossier, error) {
	return h.dossiers.List(ctx)
}

// HandleUpload — GET/POST /upload-file (UPLOAD_FILE).
func (h *FileHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	dossiers, err := h.dossierList(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	opts := h.files.Options()

	if r.Method != http.MethodPost {
		h.form(w, r, pages.FileForm("/upload-file", true, &forms.Metadata{}, opts, dossiers, nil))
		return
	}

	if r.ContentLength > h.maxUpload {
		h.uploadTooLarge(w, r.ContentLength)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	form, err := forms.ParseFileForm(r)
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.uploadTooLarge(w, -1)
			return
		}
		h.logger.Debug("Некорректная multipart-форма", slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	f, err := h.files.Upload(r.Context(), principal(r), form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.FileForm("/upload-file", true, &form.Metadata, opts, dossiers, service.FieldErrors(err)))
	case err != nil:
		h.fail(w, r, err)
	default:
		h.flash(w, r, auth.FlashSuccess, "file.upload.done")
		h.redirect(w, r, fmt.Sprintf("/file/%d", f.ID))
	}
}

// uploadTooLarge отвечает 413; size == -1, если размер тела заранее неизвестен.
func (h *FileHandler) uploadTooLarge(w http.ResponseWriter, size int64) {
	h.logger.Info("Тело запроса загрузки превышает лимит",
		slog.Int64("size", size),
		slog.Int64("limit", h.maxUpload),
	)
	http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
}

// HandleEdit — GET/POST /edit-file/{id} (владелец или MANAGE_USER).
func (h *FileHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.NotFound(w, r)
		return
	}
	f, err := h.files.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !service.CanModify(principal(r), f) {
		h.Forbidden(w, r)
		return
	}
	dossiers, err := h.dossierList(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	opts := h.files.Options()
	action := fmt.Sprintf("/edit-file/%d", id)

	if r.Method != http.MethodPost {
		m := forms.MetadataFrom(f)
		h.form(w, r, pages.FileForm(action, false, &m, opts, dossiers, nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	form := forms.ParseEditFileForm(r)
	_, err = h.files.Update(r.Context(), principal(r), id, form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.FileForm(action, false, &form.Metadata, opts, dossiers, service.FieldErrors(err)))
	case err != nil:
		h.fail(w, r, err)
	default:
		h.flash(w, r, auth.FlashSuccess, "file.edit.done")
		h.redirect(w, r, fmt.Sprintf("/file/%d", id))
	}
}

// HandleDelete — POST /delete-file/{id}: мягкое удаление.
func (h *FileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		h.NotFound(w, r)
		return
	}
	if err := h.files.SoftDelete(r.Context(), principal(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.flash(w, r, auth.FlashSuccess, "file.delete.done")
	h.redirect(w, r, "/file-manage")
}

// HandleAddDossier — GET/POST /add-dossier.
func (h *FileHandler) HandleAddDossier(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.form(w, r, pages.DossierForm(&forms.DossierForm{}, nil))
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	form := forms.ParseDossier(r)
	_, err := h.dossiers.Create(r.Context(), principal(r), form)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.form(w, r, pages.DossierForm(form, service.FieldErrors(err)))
	case errors.Is(err, service.ErrConflict):
		// Имя заняли между проверкой и вставкой
		h.form(w, r, pages.DossierForm(form, forms.Errors{"name": {forms.MsgDossierTaken}}))
	case err != nil:
		h.fail(w, r, err)
	default:
		h.flash(w, r, auth.FlashSuccess, "dossier.add.done")
		h.redirect(w, r, "/upload-file")
	}
}
