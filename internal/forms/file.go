package forms

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"github.com/rucyang/metadata/internal/domain/model"
)

// Metadata — описательные поля архивной записи, общие для
// форм загрузки и редактирования. Ключи form совпадают с именами колонок.
type Metadata struct {
	TitleProper   string `form:"title_proper"`
	TitleParallel string `form:"title_parallel"`
	TitleSub      string `form:"title_sub"`

	KeyWho   string `form:"key_who"`
	KeyWhy   string `form:"key_why"`
	KeyWhen  string `form:"key_when"`
	KeyWhere string `form:"key_where"`
	KeyHow   string `form:"key_how"`
	KeyWhat  string `form:"key_what"`

	ArchiveNum string `form:"archive_num"`
	Annotation string `form:"annotation"`
	Summary    string `form:"summary"`

	DossierID int64  `form:"dossier"`
	Language  string `form:"language"`

	RelatedName string `form:"related_name"`

	ArchiveGuide    string `form:"archive_guide"`
	DossierGuide    string `form:"dossier_guide"`
	CoverageNote    string `form:"coverage_note"`
	Classification  string `form:"classification_level"`
	RetentionPeriod string `form:"retention_period"`

	CreatorOfRecord string `form:"creator_of_record"`
	Publisher       string `form:"publisher"`
	Contributor     string `form:"contributor"`
	Rights          string `form:"rights"`

	Date       string `form:"date"`
	Version    string `form:"version"`
	RecordType string `form:"record_type"`

	CarrierType   string `form:"carrier_type"`
	Quantity      string `form:"quantity"`
	Specification string `form:"specification"`

	RecordNum  string `form:"record_num"`
	Identifier string `form:"identifier"`

	// Tags — имена тегов через запятую
	Tags string `form:"tags"`
}

// textFields возвращает строковые поля по имени колонки.
func (m *Metadata) textFields() map[string]*string {
	return map[string]*string{
		"title_proper":         &m.TitleProper,
		"title_parallel":       &m.TitleParallel,
		"title_sub":            &m.TitleSub,
		"key_who":              &m.KeyWho,
		"key_why":              &m.KeyWhy,
		"key_when":             &m.KeyWhen,
		"key_where":            &m.KeyWhere,
		"key_how":              &m.KeyHow,
		"key_what":             &m.KeyWhat,
		"archive_num":          &m.ArchiveNum,
		"annotation":           &m.Annotation,
		"summary":              &m.Summary,
		"language":             &m.Language,
		"related_name":         &m.RelatedName,
		"archive_guide":        &m.ArchiveGuide,
		"dossier_guide":        &m.DossierGuide,
		"coverage_note":        &m.CoverageNote,
		"classification_level": &m.Classification,
		"retention_period":     &m.RetentionPeriod,
		"creator_of_record":    &m.CreatorOfRecord,
		"publisher":            &m.Publisher,
		"contributor":          &m.Contributor,
		"rights":               &m.Rights,
		"date":                 &m.Date,
		"version":              &m.Version,
		"record_type":          &m.RecordType,
		"carrier_type":         &m.CarrierType,
		"quantity":             &m.Quantity,
		"specification":        &m.Specification,
		"record_num":           &m.RecordNum,
		"identifier":           &m.Identifier,
		"tags":                 &m.Tags,
	}
}

// Value возвращает значение текстового поля по имени; неизвестное имя даёт "".
func (m *Metadata) Value(name string) string {
	if ptr, ok := m.textFields()[name]; ok {
		return *ptr
	}
	return ""
}

// maxFieldLen — предел длины однострочных полей по умолчанию,
// совпадает с VARCHAR(256) в таблице files.
const maxFieldLen = 256

// fieldLimits — поля с более узкими колонками.
var fieldLimits = map[string]int{
	"archive_num":          128,
	"language":             64,
	"classification_level": 64,
	"retention_period":     128,
	"creator_of_record":    128,
	"publisher":            128,
	"contributor":          128,
	"date":                 128,
	"version":              128,
	"record_type":          128,
	"carrier_type":         64,
	"quantity":             128,
	"specification":        128,
	"record_num":           128,
	"identifier":           128,
}

// longFields хранятся в TEXT; tags проверяются по именам тегов.
var longFields = map[string]bool{"annotation": true, "summary": true, "coverage_note": true, "tags": true}

// Пределы длины, совпадающие с tags.name и files.filename.
const (
	maxTagLen      = 64
	maxFilenameLen = 256
)

func fieldLimit(name string) int {
	if limit, ok := fieldLimits[name]; ok {
		return limit
	}
	return maxFieldLen
}

// check проверяет обязательные поля, длины и списки выбора.
func (m *Metadata) check(ctx context.Context, lookup Lookup, opts model.Options, required []string, errs Errors) error {
	fields := m.textFields()
	for _, name := range required {
		checkVar(errs, name, strings.TrimSpace(*fields[name]), "required")
	}
	for name, value := range fields {
		if !longFields[name] && !errs.Has(name) {
			checkVar(errs, name, *value, fmt.Sprintf("max=%d", fieldLimit(name)))
		}
	}
	for _, tag := range m.TagNames() {
		if utf8.RuneCountInString(tag) > maxTagLen {
			errs.Add("tags", MsgTooLong)
			break
		}
	}

	checkChoice(errs, "language", m.Language, opts.Languages)
	checkChoice(errs, "carrier_type", m.CarrierType, opts.FileTypes)
	checkChoice(errs, "classification_level", m.Classification, opts.Confidentialities)

	if m.DossierID == 0 {
		errs.Add("dossier", MsgRequired)
		return nil
	}
	exists, err := lookup.DossierExists(ctx, m.DossierID)
	if err != nil {
		return fmt.Errorf("ошибка проверки дела: %w", err)
	}
	if !exists {
		errs.Add("dossier", MsgDossierMissing)
	}
	return nil
}

// TagNames разбирает Tags: пробелы обрезаются, пустые и повторы отбрасываются.
func (m *Metadata) TagNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(m.Tags, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Apply переносит описательные поля в запись файла.
func (m *Metadata) Apply(f *model.File) {
	dossierID := m.DossierID
	f.DossierID = &dossierID
	f.Title = model.Title{Proper: m.TitleProper, Parallel: m.TitleParallel, Sub: m.TitleSub}
	f.Keywords = model.Keywords{
		Who: m.KeyWho, Why: m.KeyWhy, When: m.KeyWhen,
		Where: m.KeyWhere, How: m.KeyHow, What: m.KeyWhat,
	}
	f.ArchiveNum = m.ArchiveNum
	f.Annotation = m.Annotation
	f.Summary = m.Summary
	f.Language = m.Language
	f.RelatedName = m.RelatedName
	f.ArchiveGuide = m.ArchiveGuide
	f.DossierGuide = m.DossierGuide
	f.CoverageNote = m.CoverageNote
	f.Classification = m.Classification
	f.RetentionPeriod = m.RetentionPeriod
	f.CreatorOfRecord = m.CreatorOfRecord
	f.Publisher = m.Publisher
	f.Contributor = m.Contributor
	f.Rights = m.Rights
	f.Date = m.Date
	f.Version = m.Version
	f.RecordType = m.RecordType
	f.CarrierType = m.CarrierType
	f.Quantity = m.Quantity
	f.Specification = m.Specification
	f.RecordNum = m.RecordNum
	f.Identifier = m.Identifier
	f.Tags = m.TagNames()
}

// MetadataFrom заполняет поля формы из существующей записи.
func MetadataFrom(f *model.File) Metadata {
	m := Metadata{
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
		RelatedName:     f.RelatedName,
		ArchiveGuide:    f.ArchiveGuide,
		DossierGuide:    f.DossierGuide,
		CoverageNote:    f.CoverageNote,
		Classification:  f.Classification,
		RetentionPeriod: f.RetentionPeriod,
		CreatorOfRecord: f.CreatorOfRecord,
		Publisher:       f.Publisher,
		Contributor:     f.Contributor,
		Rights:          f.Rights,
		Date:            f.Date,
		Version:         f.Version,
		RecordType:      f.RecordType,
		CarrierType:     f.CarrierType,
		Quantity:        f.Quantity,
		Specification:   f.Specification,
		RecordNum:       f.RecordNum,
		Identifier:      f.Identifier,
		Tags:            strings.Join(f.Tags, ", "),
	}
	if f.DossierID != nil {
		m.DossierID = *f.DossierID
	}
	return m
}

// intakeRequired — поля, обязательные при загрузке.
var intakeRequired = []string{
	"title_proper", "key_who", "key_when", "key_where", "key_what",
	"archive_num", "creator_of_record", "date", "identifier",
}

// FileForm — загрузка файла с описанием.
type FileForm struct {
	Metadata
	// File — оригинал (обязателен)
	File *multipart.FileHeader `form:"file"`
	// Related — связанный ресурс (необязателен)
	Related *multipart.FileHeader `form:"related_file"`
}

// Validate проверяет загрузку: наличие файла, дело и обязательные поля.
func (f *FileForm) Validate(ctx context.Context, lookup Lookup, opts model.Options) (Errors, error) {
	errs := Errors{}
	if f.File == nil {
		errs.Add("file", MsgRequired)
	} else if utf8.RuneCountInString(f.File.Filename) > maxFilenameLen {
		errs.Add("file", MsgTooLong)
	}
	if f.Related != nil && utf8.RuneCountInString(f.Related.Filename) > maxFilenameLen {
		errs.Add("related_file", MsgTooLong)
	}
	if err := f.check(ctx, lookup, opts, intakeRequired, errs); err != nil {
		return nil, err
	}
	return errs.orNil(), nil
}

// EditFileForm — редактирование описания файла.
type EditFileForm struct {
	Metadata
}

// editRequired — поля, обязательные при редактировании.
var editRequired = []string{"title_proper", "archive_num"}

// Validate проверяет форму редактирования.
func (f *EditFileForm) Validate(ctx context.Context, lookup Lookup, opts model.Options) (Errors, error) {
	errs := Errors{}
	if err := f.check(ctx, lookup, opts, editRequired, errs); err != nil {
		return nil, err
	}
	return errs.orNil(), nil
}
