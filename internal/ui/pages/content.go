package pages

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/rucyang/metadata/internal/admin"
	"github.com/rucyang/metadata/internal/domain/model"
	"github.com/rucyang/metadata/internal/service"
)

// Link — ссылка; Label — ключ перевода.
type Link struct {
	Href  string
	Label string
}

// FilesData — постраничный список файлов.
type FilesData struct {
	// Heading — ключ заголовка, HeadingArg подставляется в него
	Heading    string
	HeadingArg string
	Page       *service.Page
	// BaseURL — адрес списка без параметра page
	BaseURL string
}

// PageURL возвращает адрес страницы n списка.
func (d *FilesData) PageURL(n int) string {
	return d.BaseURL + "?page=" + strconv.Itoa(n)
}

// Pair — подпись и значение поля карточки.
type Pair struct {
	Label string
	Value string
	// Href — ссылка точного поиска по значению (для 5W1H)
	Href string
}

// FileData — карточка файла.
type FileData struct {
	File      *model.File
	Dossier   *model.Dossier
	Creator   *model.User
	Fields    []Pair
	CanModify bool
}

// keyCodes — коды полей 5W1H в адресах точного поиска.
var keyCodes = []struct {
	code  int
	field model.KeyField
}{
	{1, model.KeyWho}, {2, model.KeyWhy}, {3, model.KeyWhen},
	{4, model.KeyWhere}, {5, model.KeyHow}, {6, model.KeyWhat},
}

// SearchFieldURL строит адрес точного поиска по полю 5W1H.
func SearchFieldURL(code int, value string) string {
	return fmt.Sprintf("/search-result/%d-%s", code, url.PathEscape(value))
}

// NewFileData собирает карточку файла.
func NewFileData(f *model.File, dossier *model.Dossier, creator *model.User, canModify bool) *FileData {
	d := &FileData{File: f, Dossier: dossier, Creator: creator, CanModify: canModify}

	for _, k := range keyCodes {
		value := f.Keywords.Value(k.field)
		p := Pair{Label: "field." + string(k.field), Value: value}
		if value != "" {
			p.Href = SearchFieldURL(k.code, value)
		}
		d.Fields = append(d.Fields, p)
	}

	for _, p := range []Pair{
		{Label: "field.title_parallel", Value: f.Title.Parallel},
		{Label: "field.title_sub", Value: f.Title.Sub},
		{Label: "field.archive_num", Value: f.ArchiveNum},
		{Label: "field.annotation", Value: f.Annotation},
		{Label: "field.summary", Value: f.Summary},
		{Label: "field.language", Value: f.Language},
		{Label: "field.archive_guide", Value: f.ArchiveGuide},
		{Label: "field.dossier_guide", Value: f.DossierGuide},
		{Label: "field.coverage_note", Value: f.CoverageNote},
		{Label: "field.classification_level", Value: f.Classification},
		{Label: "field.retention_period", Value: f.RetentionPeriod},
		{Label: "field.creator_of_record", Value: f.CreatorOfRecord},
		{Label: "field.publisher", Value: f.Publisher},
		{Label: "field.contributor", Value: f.Contributor},
		{Label: "field.rights", Value: f.Rights},
		{Label: "field.date", Value: f.Date},
		{Label: "field.version", Value: f.Version},
		{Label: "field.record_type", Value: f.RecordType},
		{Label: "field.carrier_type", Value: f.CarrierType},
		{Label: "field.quantity", Value: f.Quantity},
		{Label: "field.specification", Value: f.Specification},
		{Label: "field.record_num", Value: f.RecordNum},
		{Label: "field.identifier", Value: f.Identifier},
	} {
		if p.Value != "" {
			d.Fields = append(d.Fields, p)
		}
	}
	return d
}

// SearchData — форма поиска и результаты.
type SearchData struct {
	Form   *FormData
	Result *service.SearchResult
}

// UserData — профиль пользователя.
type UserData struct {
	User     *model.User
	RoleName string
	Files    *FilesData
	IsSelf   bool
}

// MessageData — информационная страница или страница ошибки.
type MessageData struct {
	Heading string
	Body    string
	BodyArg string
	Links   []Link
}

// AdminIndexData — список сущностей консоли.
type AdminIndexData struct {
	Entities []*admin.Entity
}

// AdminListData — таблица записей сущности.
type AdminListData struct {
	Entity *admin.Entity
	Rows   []admin.Row
	Query  string
	Page   int
	Pages  int
	Total  int
}

// PageURL возвращает адрес страницы n с сохранением запроса.
func (d *AdminListData) PageURL(n int) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(n))
	if d.Query != "" {
		v.Set("q", d.Query)
	}
	return "/admin/" + d.Entity.Name + "?" + v.Encode()
}

// AdminDeleteData — подтверждение удаления.
type AdminDeleteData struct {
	Entity *admin.Entity
	ID     int64
	Row    admin.Row
}
