package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rucyang/metadata/internal/domain/model"
)

// FileRepository — интерфейс CRUD для таблицы files.
type FileRepository interface {
	// Create сохраняет новую запись; ErrConflict при занятом storage_path.
	Create(ctx context.Context, f *model.File) error
	// GetByID возвращает запись по ID, в том числе скрытую.
	GetByID(ctx context.Context, id int64) (*model.File, error)
	GetByStoragePath(ctx context.Context, path string) (*model.File, error)
	// Update перезаписывает описательные поля и дело.
	// Путь хранения, имя файла, автор и флаг скрытия не меняются.
	Update(ctx context.Context, f *model.File) error
	// SoftDelete выставляет hidden = TRUE.
	SoftDelete(ctx context.Context, id int64) error
	// List возвращает записи с фильтрацией, новые первыми.
	List(ctx context.Context, filters FileListFilters, limit, offset int) ([]*model.File, error)
	Count(ctx context.Context, filters FileListFilters) (int, error)
	// FindByField — точное совпадение по полю 5W1H.
	FindByField(ctx context.Context, field model.KeyField, value string, includeHidden bool) ([]*model.File, error)
	// ListByIDs возвращает записи в порядке ids; отсутствующие пропускаются.
	ListByIDs(ctx context.Context, ids []int64, includeHidden bool) ([]*model.File, error)
	// SetTags заменяет набор тегов файла.
	SetTags(ctx context.Context, fileID int64, tagIDs []int64) error
	// Tags возвращает имена тегов файла.
	Tags(ctx context.Context, fileID int64) ([]string, error)
	// Delete физически удаляет запись (только консоль администратора).
	Delete(ctx context.Context, id int64) error
}

// FileListFilters — фильтры для списка файлов.
type FileListFilters struct {
	Hidden      *bool
	CreatorID   *int64
	DossierID   *int64
	CarrierType *string
	// Query — подстрока заглавия или имени файла (консоль администратора)
	Query string
}

// fileRepo — реализация FileRepository.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий архивных файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// fileInsertColumns — колонки, задаваемые при создании (без id и created_at).
var fileInsertColumns = []string{
	"storage_path", "filename", "content_type", "size", "checksum", "hidden", "creator_id",
	"dossier_id", "title_proper", "title_parallel", "title_sub",
	"key_who", "key_why", "key_when", "key_where", "key_how", "key_what",
	"archive_num", "annotation", "summary", "language", "related_path", "related_name",
	"archive_guide", "dossier_guide", "coverage_note", "classification_level", "retention_period",
	"creator_of_record", "publisher", "contributor", "rights",
	"date", "version", "record_type",
	"carrier_type", "quantity", "specification",
	"record_num", "identifier",
}

// fileEditableStart — индекс первой редактируемой колонки (dossier_id).
const fileEditableStart = 7

// fileSelectColumns — полный список колонок для SELECT.
var fileSelectColumns = "id, created_at, " + strings.Join(fileInsertColumns, ", ")

// fileFields возвращает указатели на поля в порядке fileInsertColumns.
func fileFields(f *model.File) []any {
	return []any{
		&f.StoragePath, &f.Filename, &f.ContentType, &f.Size, &f.Checksum, &f.Hidden, &f.CreatorID,
		&f.DossierID, &f.Title.Proper, &f.Title.Parallel, &f.Title.Sub,
		&f.Keywords.Who, &f.Keywords.Why, &f.Keywords.When, &f.Keywords.Where, &f.Keywords.How, &f.Keywords.What,
		&f.ArchiveNum, &f.Annotation, &f.Summary, &f.Language, &f.RelatedPath, &f.RelatedName,
		&f.ArchiveGuide, &f.DossierGuide, &f.CoverageNote, &f.Classification, &f.RetentionPeriod,
		&f.CreatorOfRecord, &f.Publisher, &f.Contributor, &f.Rights,
		&f.Date, &f.Version, &f.RecordType,
		&f.CarrierType, &f.Quantity, &f.Specification,
		&f.RecordNum, &f.Identifier,
	}
}

func scanFile(row scanner) (*model.File, error) {
	f := &model.File{}
	dest := append([]any{&f.ID, &f.CreatedAt}, fileFields(f)...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return f, nil
}

// placeholders возвращает "$start, $start+1, ..." для n аргументов.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func (r *fileRepo) Create(ctx context.Context, f *model.File) error {
	query := fmt.Sprintf(`
		INSERT INTO files (%s)
		VALUES (%s)
		RETURNING id, created_at`,
		strings.Join(fileInsertColumns, ", "), placeholders(1, len(fileInsertColumns)))

	err := r.db.QueryRow(ctx, query, fileFields(f)...).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с путём %q уже существует", ErrConflict, f.StoragePath)
		}
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id int64) (*model.File, error) {
	return r.getOne(ctx, "id", id)
}

func (r *fileRepo) GetByStoragePath(ctx context.Context, path string) (*model.File, error) {
	return r.getOne(ctx, "storage_path", path)
}

func (r *fileRepo) getOne(ctx context.Context, where string, arg any) (*model.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE %s = $1`, fileSelectColumns, where)

	f, err := scanFile(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) Update(ctx context.Context, f *model.File) error {
	editable := fileInsertColumns[fileEditableStart:]
	sets := make([]string, len(editable))
	for i, col := range editable {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+2)
	}
	query := fmt.Sprintf(`UPDATE files SET %s WHERE id = $1`, strings.Join(sets, ", "))

	args := append([]any{f.ID}, fileFields(f)[fileEditableStart:]...)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ошибка обновления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE files SET hidden = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка скрытия файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildFileWhere строит WHERE-условие и аргументы для фильтрации файлов.
func buildFileWhere(filters FileListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.Hidden != nil {
		conditions = append(conditions, fmt.Sprintf("hidden = $%d", argNum))
		args = append(args, *filters.Hidden)
		argNum++
	}
	if filters.CreatorID != nil {
		conditions = append(conditions, fmt.Sprintf("creator_id = $%d", argNum))
		args = append(args, *filters.CreatorID)
		argNum++
	}
	if filters.DossierID != nil {
		conditions = append(conditions, fmt.Sprintf("dossier_id = $%d", argNum))
		args = append(args, *filters.DossierID)
		argNum++
	}
	if filters.CarrierType != nil {
		conditions = append(conditions, fmt.Sprintf("carrier_type = $%d", argNum))
		args = append(args, *filters.CarrierType)
		argNum++
	}
	if filters.Query != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(title_proper ILIKE '%%' || $%d::text || '%%' OR filename ILIKE '%%' || $%d::text || '%%')", argNum, argNum))
		args = append(args, filters.Query)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *fileRepo) List(ctx context.Context, filters FileListFilters, limit, offset int) ([]*model.File, error) {
	where, args := buildFileWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM files
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, fileSelectColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)
	return r.query(ctx, query, args...)
}

func (r *fileRepo) Count(ctx context.Context, filters FileListFilters) (int, error) {
	where, args := buildFileWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM files %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}
	return count, nil
}

func (r *fileRepo) FindByField(ctx context.Context, field model.KeyField, value string, includeHidden bool) ([]*model.File, error) {
	switch field {
	case model.KeyWho, model.KeyWhy, model.KeyWhen, model.KeyWhere, model.KeyHow, model.KeyWhat:
	default:
		return nil, fmt.Errorf("недопустимое поле поиска %q", field)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE %s = $1 AND ($2 OR NOT hidden)
		ORDER BY created_at DESC, id DESC`, fileSelectColumns, field)

	return r.query(ctx, query, value, includeHidden)
}

func (r *fileRepo) ListByIDs(ctx context.Context, ids []int64, includeHidden bool) ([]*model.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE id = ANY($1) AND ($2 OR NOT hidden)`, fileSelectColumns)

	files, err := r.query(ctx, query, ids, includeHidden)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.File, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}
	ordered := make([]*model.File, 0, len(files))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			ordered = append(ordered, f)
		}
	}
	return ordered, nil
}

func (r *fileRepo) query(ctx context.Context, query string, args ...any) ([]*model.File, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *fileRepo) SetTags(ctx context.Context, fileID int64, tagIDs []int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM file_tags WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("ошибка очистки тегов файла: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO file_tags (file_id, tag_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`, fileID, tagIDs)
	if err != nil {
		return fmt.Errorf("ошибка назначения тегов файла: %w", err)
	}
	return nil
}

func (r *fileRepo) Tags(ctx context.Context, fileID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.name FROM tags t
		JOIN file_tags ft ON ft.tag_id = t.id
		WHERE ft.file_id = $1
		ORDER BY t.name`, fileID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тегов файла: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования тега: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *fileRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
