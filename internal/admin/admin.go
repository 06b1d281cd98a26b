// Пакет admin — консоль администратора.
//
// Каждая сущность описывается декларативно (Descriptor) и получает
// источник данных (Source). Один универсальный обработчик UI строит
// по ним страницы списка, редактирования и удаления.
package admin

import (
	"context"
	"errors"
	"sort"
)

// ErrUnsupported — операция отключена для сущности.
var ErrUnsupported = errors.New("операция недоступна для сущности")

// Column — колонка таблицы и поле формы редактирования.
type Column struct {
	// Key — ключ значения в Row и имя поля формы
	Key string
	// Label — ключ перевода заголовка
	Label string
	// Searchable — колонка участвует в поиске по подстроке
	Searchable bool
	// Editable — поле выводится в форме редактирования
	Editable bool
	// Bool — значение редактируется флажком
	Bool bool
	// Multiline — значение редактируется многострочным полем
	Multiline bool
}

// Descriptor — описание сущности в консоли.
type Descriptor struct {
	Name      string
	Title     string
	Columns   []Column
	CanCreate bool
	CanEdit   bool
	CanDelete bool
}

// EditableColumns возвращает колонки, доступные для редактирования.
func (d *Descriptor) EditableColumns() []Column {
	var cols []Column
	for _, c := range d.Columns {
		if c.Editable {
			cols = append(cols, c)
		}
	}
	return cols
}

// Searchable сообщает, поддерживает ли сущность поиск по подстроке.
func (d *Descriptor) Searchable() bool {
	for _, c := range d.Columns {
		if c.Searchable {
			return true
		}
	}
	return false
}

// Row — строка сущности: ключ колонки → отображаемое значение.
type Row map[string]string

// ID возвращает идентификатор строки.
func (r Row) ID() string { return r["id"] }

// Source — доступ к записям сущности.
type Source interface {
	List(ctx context.Context, q string, limit, offset int) ([]Row, error)
	Count(ctx context.Context, q string) (int, error)
	Get(ctx context.Context, id int64) (Row, error)
	// Update применяет значения редактируемых колонок.
	// Ошибки полей возвращаются как *service.ValidationError.
	Update(ctx context.Context, id int64, values map[string]string) error
	Delete(ctx context.Context, id int64) error
}

// Entity — зарегистрированная сущность.
type Entity struct {
	Descriptor
	Source Source
}

// Registry — реестр сущностей консоли.
type Registry struct {
	entities map[string]*Entity
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register добавляет сущность; повторная регистрация заменяет прежнюю.
func (r *Registry) Register(d Descriptor, src Source) {
	r.entities[d.Name] = &Entity{Descriptor: d, Source: src}
}

// Get возвращает сущность по имени.
func (r *Registry) Get(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// List возвращает сущности в порядке имени.
func (r *Registry) List() []*Entity {
	list := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
