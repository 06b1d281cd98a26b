// api.go — JSON API поиска и метаданных файлов (/api/v1).
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/rucyang/metadata/internal/api/errors"
	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/service"
)

// FileReader — операции FileService, доступные через JSON API.
type FileReader interface {
	Get(ctx context.Context, id int64) (*model.File, error)
	Search(ctx context.Context, form *forms.SearchForm) (*service.SearchResult, error)
}

// APIHandler — обработчик /api/v1.
type APIHandler struct {
	files  FileReader
	logger *slog.Logger
}

// NewAPIHandler создаёт обработчик JSON API.
func NewAPIHandler(files FileReader, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		files:  files,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// fileResponse — публичные метаданные файла.
type fileResponse struct {
	ID              int64     `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Filename        string    `json:"filename"`
	ContentType     string    `json:"content_type,omitempty"`
	Size            int64     `json:"size"`
	Checksum        string    `json:"checksum,omitempty"`
	CreatorID       int64     `json:"creator_id"`
	DossierID       *int64    `json:"dossier_id,omitempty"`
	TitleProper     string    `json:"title_proper"`
	TitleParallel   string    `json:"title_parallel,omitempty"`
	TitleSub        string    `json:"title_sub,omitempty"`
	KeyWho          string    `json:"key_who,omitempty"`
	KeyWhy          string    `json:"key_why,omitempty"`
	KeyWhen         string    `json:"key_when,omitempty"`
	KeyWhere        string    `json:"key_where,omitempty"`
	KeyHow          string    `json:"key_how,omitempty"`
	KeyWhat         string    `json:"key_what,omitempty"`
	ArchiveNum      string    `json:"archive_num"`
	Annotation      string    `json:"annotation,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	Language        string    `json:"language,omitempty"`
	Classification  string    `json:"classification_level,omitempty"`
	CreatorOfRecord string    `json:"creator_of_record,omitempty"`
	Date            string    `json:"date,omitempty"`
	CarrierType     string    `json:"carrier_type,omitempty"`
	Identifier      string    `json:"identifier,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
}

func toFileResponse(f *model.File) fileResponse {
	return fileResponse{
		ID:              f.ID,
		CreatedAt:       f.CreatedAt,
		Filename:        f.Filename,
		ContentType:     f.ContentType,
		Size:            f.Size,
		Checksum:        f.Checksum,
		CreatorID:       f.CreatorID,
		DossierID:       f.DossierID,
		TitleProper:     f.Title.Proper,
		TitleParallel:   f.Title.Parallel,
		TitleSub:        f.Title.Sub,
		KeyWho:          f.Keywords.Who,
		KeyWhy:          f.Keywords.Why,
		KeyWhen:         f.Keywords.When,
		KeyWhere:        f.Keywords.Where,
		KeyHow:          f.Keywords.How,
		KeyWhat:         f.Keywords.What,
		ArchiveNum:      f.ArchiveNum,
		Annotation:      f.Annotation,
		Summary:         f.Summary,
		Language:        f.Language,
		Classification:  f.Classification,
		CreatorOfRecord: f.CreatorOfRecord,
		Date:            f.Date,
		CarrierType:     f.CarrierType,
		Identifier:      f.Identifier,
		Tags:            f.Tags,
	}
}

type dossierResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type searchResponse struct {
	Query    string            `json:"query"`
	Files    []fileResponse    `json:"files"`
	Dossiers []dossierResponse `json:"dossiers"`
	Users    []userResponse    `json:"users"`
}

// Search — GET /api/v1/search?q=.
func (h *APIHandler) Search(w http.ResponseWriter, r *http.Request) {
	var q string
	if err := runtime.BindQueryParameter("form", true, false, "q", r.URL.Query(), &q); err != nil {
		apierrors.ValidationError(w, "некорректный параметр q")
		return
	}

	res, err := h.files.Search(r.Context(), &forms.SearchForm{Keyword: q})
	if err != nil {
		if apierrors.FromService(w, err, "параметр q обязателен и не длиннее 128 символов") {
			return
		}
		h.logger.Error("Ошибка поиска", slog.String("error", err.Error()))
		apierrors.InternalError(w, "ошибка поиска")
		return
	}

	resp := searchResponse{
		Query:    res.Keyword,
		Files:    make([]fileResponse, 0, len(res.Files)),
		Dossiers: make([]dossierResponse, 0, len(res.Dossiers)),
		Users:    make([]userResponse, 0, len(res.Users)),
	}
	for _, f := range res.Files {
		resp.Files = append(resp.Files, toFileResponse(f))
	}
	for _, d := range res.Dossiers {
		resp.Dossiers = append(resp.Dossiers, dossierResponse{ID: d.ID, Name: d.Name})
	}
	for _, u := range res.Users {
		resp.Users = append(resp.Users, userResponse{ID: u.ID, Username: u.Username})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetFile — GET /api/v1/files/{id}. Скрытые файлы не отдаются.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil || id < 1 {
		apierrors.ValidationError(w, "некорректный идентификатор файла")
		return
	}

	f, err := h.files.Get(r.Context(), id)
	if err != nil {
		if apierrors.FromService(w, err, "файл не найден") {
			return
		}
		h.logger.Error("Ошибка получения файла",
			slog.Int64("file_id", id),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "ошибка получения файла")
		return
	}
	if f.Hidden {
		apierrors.NotFound(w, "файл не найден")
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(f))
}
