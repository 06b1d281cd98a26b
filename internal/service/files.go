package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"golang.org/x/sync/errgroup"

	"github.com/rucyang/metadata/internal/blobstore"
	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/forms"
	"github.com/rucyang/metadata/internal/repository"
	"github.com/rucyang/metadata/internal/search"
)

// FileService — загрузка, редактирование, списки и поиск файлов.
type FileService struct {
	files    repository.FileRepository
	dossiers repository.DossierRepository
	users    repository.UserRepository
	blobs    blobstore.Store
	index    SearchIndex
	lookup   forms.Lookup
	tx       FileTx
	opts     model.Options
	perPage  int
	logger   *slog.Logger
}

// FileServiceDeps — зависимости FileService.
type FileServiceDeps struct {
	Files    repository.FileRepository
	Tags     repository.TagRepository
	Dossiers repository.DossierRepository
	Users    repository.UserRepository
	Blobs    blobstore.Store
	Index    SearchIndex
	Lookup   forms.Lookup
	// Tx — транзакции для записи файла вместе с тегами.
	// Если nil, операции выполняются без транзакции.
	Tx FileTx
}

// NewFileService создаёт FileService.
func NewFileService(deps FileServiceDeps, opts model.Options, perPage int, logger *slog.Logger) *FileService {
	if perPage < 1 {
		perPage = 5
	}
	tx := deps.Tx
	if tx == nil {
		tx = directTx{files: deps.Files, tags: deps.Tags}
	}
	return &FileService{
		files:    deps.Files,
		dossiers: deps.Dossiers,
		users:    deps.Users,
		blobs:    deps.Blobs,
		index:    deps.Index,
		lookup:   deps.Lookup,
		tx:       tx,
		opts:     opts,
		perPage:  perPage,
		logger:   logger.With(slog.String("component", "file_service")),
	}
}

// Options возвращает списки выбора для форм.
func (s *FileService) Options() model.Options {
	return s.opts
}

// Upload принимает файл с описанием. Порядок: проверка формы,
// запись оригинала (и связанного ресурса), вставка строки, теги, индекс.
// Запись и теги сохраняются в одной транзакции; при её ошибке
// записанные объекты удаляются.
func (s *FileService) Upload(ctx context.Context, actor rbac.Principal, form *forms.FileForm) (*model.File, error) {
	if !actor.Can(rbac.UploadFile) {
		return nil, ErrForbidden
	}

	errs, err := form.Validate(ctx, s.lookup, s.opts)
	if err != nil {
		return nil, err
	}
	if errs != nil {
		return nil, invalid(errs)
	}

	original, err := s.saveUpload(ctx, form.File)
	if err != nil {
		return nil, err
	}
	saved := []string{original.StoragePath}

	f := &model.File{
		StoragePath: original.StoragePath,
		Filename:    form.File.Filename,
		ContentType: form.File.Header.Get("Content-Type"),
		Size:        original.Size,
		Checksum:    original.Checksum,
		CreatorID:   actor.ID(),
	}
	form.Apply(f)

	if form.Related != nil {
		related, err := s.saveUpload(ctx, form.Related)
		if err != nil {
			s.discard(saved)
			return nil, err
		}
		saved = append(saved, related.StoragePath)
		f.RelatedPath = related.StoragePath
		if f.RelatedName == "" {
			f.RelatedName = form.Related.Filename
		}
	}

	err = s.tx.RunFileTx(ctx, func(files repository.FileRepository, tags repository.TagRepository) error {
		if err := files.Create(ctx, f); err != nil {
			return mapRepoErr(err, "путь хранения занят")
		}
		return setTags(ctx, files, tags, f.ID, f.Tags)
	})
	if err != nil {
		s.discard(saved)
		return nil, err
	}

	s.reindex(f)

	s.logger.Info("Файл загружен",
		slog.Int64("file_id", f.ID),
		slog.String("storage_path", f.StoragePath),
		slog.Int64("size", f.Size),
		slog.Int64("user_id", actor.ID()),
	)
	return f, nil
}

func (s *FileService) saveUpload(ctx context.Context, fh *multipart.FileHeader) (*blobstore.SaveResult, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения загруженного файла: %w", err)
	}
	defer src.Close()

	res, err := s.blobs.Save(ctx, src, fh.Filename)
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения файла %s: %w", fh.Filename, err)
	}
	return res, nil
}

// discard удаляет уже записанные объекты; ошибки только логируются.
func (s *FileService) discard(paths []string) {
	ctx := context.Background()
	for _, p := range paths {
		if err := s.blobs.Delete(ctx, p); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Error("Не удалось удалить файл из хранилища",
				slog.String("storage_path", p),
				slog.String("error", err.Error()),
			)
		}
	}
}

func setTags(ctx context.Context, files repository.FileRepository, tags repository.TagRepository, fileID int64, names []string) error {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		tag, err := tags.GetOrCreate(ctx, name)
		if err != nil {
			return err
		}
		ids = append(ids, tag.ID)
	}
	return files.SetTags(ctx, fileID, ids)
}

func (s *FileService) reindex(f *model.File) {
	if err := s.index.IndexFile(f); err != nil {
		s.logger.Warn("Не удалось проиндексировать файл",
			slog.Int64("file_id", f.ID),
			slog.String("error", err.Error()),
		)
	}
}

// CanModify — правка и удаление доступны автору, MANAGE_USER и администратору.
func CanModify(actor rbac.Principal, f *model.File) bool {
	if !actor.IsAuthenticated() {
		return false
	}
	return f.CreatorID == actor.ID() || actor.Can(rbac.ManageUser) || actor.IsAdministrator()
}

// Update сохраняет изменённое описание и теги файла.
func (s *FileService) Update(ctx context.Context, actor rbac.Principal, id int64, form *forms.EditFileForm) (*model.File, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanModify(actor, f) {
		return nil, ErrForbidden
	}

	errs, err := form.Validate(ctx, s.lookup, s.opts)
	if err != nil {
		return nil, err
	}
	if errs != nil {
		return nil, invalid(errs)
	}

	form.Apply(f)
	err = s.tx.RunFileTx(ctx, func(files repository.FileRepository, tags repository.TagRepository) error {
		if err := files.Update(ctx, f); err != nil {
			return mapRepoErr(err, "файл")
		}
		return setTags(ctx, files, tags, f.ID, f.Tags)
	})
	if err != nil {
		return nil, err
	}

	s.reindex(f)

	s.logger.Info("Описание файла изменено",
		slog.Int64("file_id", f.ID),
		slog.Int64("user_id", actor.ID()),
	)
	return f, nil
}

// SoftDelete скрывает файл: он пропадает из списков и поиска,
// но остаётся доступен по ID.
func (s *FileService) SoftDelete(ctx context.Context, actor rbac.Principal, id int64) error {
	f, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanModify(actor, f) {
		return ErrForbidden
	}

	if err := s.files.SoftDelete(ctx, id); err != nil {
		return mapRepoErr(err, "файл")
	}
	if err := s.index.Remove(search.KindFile, id); err != nil {
		s.logger.Warn("Не удалось удалить файл из индекса",
			slog.Int64("file_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Файл скрыт",
		slog.Int64("file_id", id),
		slog.Int64("user_id", actor.ID()),
	)
	return nil
}

// Get возвращает файл с тегами, в том числе скрытый.
func (s *FileService) Get(ctx context.Context, id int64) (*model.File, error) {
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "файл")
	}
	tags, err := s.files.Tags(ctx, id)
	if err != nil {
		return nil, err
	}
	f.Tags = tags
	return f, nil
}

// Page — страница списка файлов.
type Page struct {
	Items   []*model.File
	Page    int
	PerPage int
	Total   int
	Pages   int
}

// HasPrev — есть предыдущая страница.
func (p *Page) HasPrev() bool { return p.Page > 1 }

// HasNext — есть следующая страница.
func (p *Page) HasNext() bool { return p.Page < p.Pages }

func (s *FileService) list(ctx context.Context, filters repository.FileListFilters, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	hidden := false
	filters.Hidden = &hidden

	total, err := s.files.Count(ctx, filters)
	if err != nil {
		return nil, err
	}
	items, err := s.files.List(ctx, filters, s.perPage, (page-1)*s.perPage)
	if err != nil {
		return nil, err
	}

	return &Page{
		Items:   items,
		Page:    page,
		PerPage: s.perPage,
		Total:   total,
		Pages:   (total + s.perPage - 1) / s.perPage,
	}, nil
}

// ListActive — видимые файлы, новые первыми.
func (s *FileService) ListActive(ctx context.Context, page int) (*Page, error) {
	return s.list(ctx, repository.FileListFilters{}, page)
}

// ListByCarrier — видимые файлы по типу носителя (text, photo, video, audio, other).
func (s *FileService) ListByCarrier(ctx context.Context, slug string, page int) (*Page, error) {
	label, ok := s.opts.CarrierLabel(slug)
	if !ok {
		return nil, fmt.Errorf("%w: тип носителя %s", ErrNotFound, slug)
	}
	return s.list(ctx, repository.FileListFilters{CarrierType: &label}, page)
}

// ListByCreator — видимые файлы пользователя.
func (s *FileService) ListByCreator(ctx context.Context, creatorID int64, page int) (*Page, error) {
	return s.list(ctx, repository.FileListFilters{CreatorID: &creatorID}, page)
}

// SearchResult — результаты поиска по ключевому слову.
type SearchResult struct {
	Keyword  string
	Files    []*model.File
	Dossiers []*model.Dossier
	Users    []*model.User
}

// Search ищет ключевое слово по файлам, делам и пользователям.
// Скрытые файлы в результат не попадают.
func (s *FileService) Search(ctx context.Context, form *forms.SearchForm) (*SearchResult, error) {
	errs, err := form.Validate()
	if err != nil {
		return nil, err
	}
	if errs != nil {
		return nil, invalid(errs)
	}

	res := &SearchResult{Keyword: form.Keyword}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ids, err := s.index.Query(gctx, form.Keyword, search.KindFile)
		if err != nil {
			return err
		}
		res.Files, err = s.files.ListByIDs(gctx, ids, false)
		return err
	})
	g.Go(func() error {
		ids, err := s.index.Query(gctx, form.Keyword, search.KindDossier)
		if err != nil {
			return err
		}
		res.Dossiers, err = collect(gctx, ids, s.dossiers.GetByID)
		return err
	})
	g.Go(func() error {
		ids, err := s.index.Query(gctx, form.Keyword, search.KindUser)
		if err != nil {
			return err
		}
		res.Users, err = collect(gctx, ids, s.users.GetByID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ошибка поиска: %w", err)
	}
	return res, nil
}

// collect загружает сущности по ID в порядке индекса; удалённые пропускаются.
func collect[T any](ctx context.Context, ids []int64, get func(context.Context, int64) (T, error)) ([]T, error) {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		item, err := get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// SearchField — точный поиск по полю 5W1H: 1 — who, 2 — why, 3 — when,
// 4 — where, 5 — how, иначе — what.
func (s *FileService) SearchField(ctx context.Context, code int, value string) ([]*model.File, error) {
	return s.files.FindByField(ctx, model.KeyFieldByCode(code), value, false)
}

// Download — открытый для чтения оригинал файла.
type Download struct {
	File *model.File
	Name string
	Body io.ReadCloser
}

// OpenBlob открывает оригинал файла. Требует DOWNLOAD_FILE.
func (s *FileService) OpenBlob(ctx context.Context, actor rbac.Principal, id int64) (*Download, error) {
	return s.open(ctx, actor, id, func(f *model.File) (string, string) {
		return f.StoragePath, f.Filename
	})
}

// OpenRelated открывает связанный ресурс файла. Требует DOWNLOAD_FILE.
func (s *FileService) OpenRelated(ctx context.Context, actor rbac.Principal, id int64) (*Download, error) {
	return s.open(ctx, actor, id, func(f *model.File) (string, string) {
		return f.RelatedPath, f.RelatedName
	})
}

func (s *FileService) open(ctx context.Context, actor rbac.Principal, id int64, pick func(*model.File) (string, string)) (*Download, error) {
	if !actor.Can(rbac.DownloadFile) {
		return nil, ErrForbidden
	}
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "файл")
	}

	path, name := pick(f)
	if path == "" {
		return nil, fmt.Errorf("%w: у файла %d нет связанного ресурса", ErrNotFound, id)
	}

	body, err := s.blobs.Open(ctx, path)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: объект %s", ErrNotFound, path)
		}
		return nil, err
	}
	return &Download{File: f, Name: name, Body: body}, nil
}
