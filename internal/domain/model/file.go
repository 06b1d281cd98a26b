package model

import "time"

// File — архивная запись о файле.
// Хранится в таблице files. Hidden = true означает мягкое удаление:
// запись исключается из списков и поиска, но доступна по ID.
type File struct {
	ID        int64
	CreatedAt time.Time
	// StoragePath — уникальный путь оригинала в хранилище
	StoragePath string
	// Filename — оригинальное имя загруженного файла
	Filename    string
	ContentType string
	Size        int64
	// Checksum — SHA-256 содержимого
	Checksum  string
	Hidden    bool
	CreatorID int64
	// DossierID — дело (nil допустим на уровне схемы)
	DossierID *int64

	Title    Title
	Keywords Keywords

	// ArchiveNum — классификационный номер
	ArchiveNum   string
	Annotation   string
	Summary      string
	Language     string
	RelatedPath  string
	RelatedName  string
	ArchiveGuide string
	DossierGuide string
	CoverageNote string
	// Classification — уровень секретности (метка из списка)
	Classification  string
	RetentionPeriod string

	// CreatorOfRecord — ответственный за документ
	CreatorOfRecord string
	Publisher       string
	Contributor     string
	Rights          string

	Date       string
	Version    string
	RecordType string

	CarrierType string
	// Quantity — количество и единица носителя
	Quantity      string
	Specification string

	RecordNum  string
	Identifier string

	// Tags — имена тегов (заполняется отдельно)
	Tags []string
}

// Title — варианты заглавия.
type Title struct {
	Proper   string
	Parallel string
	Sub      string
}

// Keywords — ключевые слова 5W1H.
type Keywords struct {
	Who   string
	Why   string
	When  string
	Where string
	How   string
	What  string
}

// KeyField — поле 5W1H для точного поиска.
type KeyField string

// Поля 5W1H, доступные для точного поиска.
const (
	KeyWho   KeyField = "key_who"
	KeyWhy   KeyField = "key_why"
	KeyWhen  KeyField = "key_when"
	KeyWhere KeyField = "key_where"
	KeyHow   KeyField = "key_how"
	KeyWhat  KeyField = "key_what"
)

// KeyFieldByCode возвращает поле 5W1H по числовому коду:
// 1 — who, 2 — why, 3 — when, 4 — where, 5 — how, остальные — what.
func KeyFieldByCode(code int) KeyField {
	switch code {
	case 1:
		return KeyWho
	case 2:
		return KeyWhy
	case 3:
		return KeyWhen
	case 4:
		return KeyWhere
	case 5:
		return KeyHow
	default:
		return KeyWhat
	}
}

// Value возвращает значение поля 5W1H.
func (k Keywords) Value(field KeyField) string {
	switch field {
	case KeyWho:
		return k.Who
	case KeyWhy:
		return k.Why
	case KeyWhen:
		return k.When
	case KeyWhere:
		return k.Where
	case KeyHow:
		return k.How
	default:
		return k.What
	}
}
