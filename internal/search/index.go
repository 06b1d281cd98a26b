// Пакет search — полнотекстовый индекс файлов, дел и пользователей
// поверх bleve. Индекс производный: источник истины — PostgreSQL.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rucyang/metadata/internal/domain/model"
)

// Kind — тип индексируемой сущности.
type Kind string

const (
	KindFile    Kind = "file"
	KindDossier Kind = "dossier"
	KindUser    Kind = "user"
)

// Поля, индексируемые для каждого типа.
var kindFields = map[Kind][]string{
	KindFile: {
		"title_proper", "title_parallel", "title_sub",
		"key_who", "key_why", "key_when", "key_where", "key_how", "key_what",
	},
	KindDossier: {"name"},
	KindUser:    {"username"},
}

const (
	kindField = "kind"
	// rawSuffix — копия поля целиком в нижнем регистре для поиска подстроки
	rawSuffix = "_raw"
	// rawAnalyzer — анализатор копий: одно значение, нижний регистр
	rawAnalyzer = "raw_lower"
	// MaxResults — предел числа результатов одного запроса
	MaxResults = 100
)

// Prometheus-метрики поиска.
var (
	searchQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "md_search_queries_total",
		Help: "Количество поисковых запросов по типу сущности.",
	}, []string{"kind"})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "md_search_duration_seconds",
		Help:    "Длительность поисковых запросов.",
		Buckets: prometheus.DefBuckets,
	})
)

// Index — поисковый индекс.
type Index struct {
	idx    bleve.Index
	logger *slog.Logger
}

// Open открывает индекс по пути или создаёт новый.
// Пустой путь — индекс в памяти.
func Open(path string, logger *slog.Logger) (*Index, error) {
	logger = logger.With(slog.String("component", "search"))

	im, err := newMapping()
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	switch {
	case path == "":
		idx, err = bleve.NewMemOnly(im)
	default:
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, im)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия поискового индекса: %w", err)
	}

	logger.Info("Поисковый индекс открыт", slog.String("path", path))
	return &Index{idx: idx, logger: logger}, nil
}

// newMapping строит схему: для каждого поля — анализируемая версия
// для нечёткого поиска и копия *_raw для поиска подстроки.
func newMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(rawAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка регистрации анализатора: %w", err)
	}

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(kindField, bleve.NewKeywordFieldMapping())

	seen := make(map[string]bool)
	for _, fields := range kindFields {
		for _, f := range fields {
			if seen[f] {
				continue
			}
			seen[f] = true

			text := bleve.NewTextFieldMapping()
			text.Analyzer = standard.Name
			doc.AddFieldMappingsAt(f, text)

			raw := bleve.NewTextFieldMapping()
			raw.Analyzer = rawAnalyzer
			raw.IncludeInAll = false
			doc.AddFieldMappingsAt(f+rawSuffix, raw)
		}
	}

	im.DefaultMapping = doc
	return im, nil
}

// docID формирует ключ документа "kind:id".
func docID(kind Kind, id int64) string {
	return string(kind) + ":" + strconv.FormatInt(id, 10)
}

// parseDocID разбирает ключ документа.
func parseDocID(s string) (Kind, int64, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("некорректный ключ документа %q", s)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("некорректный ключ документа %q: %w", s, err)
	}
	return Kind(kind), id, nil
}

// newDocument собирает документ из значений полей.
func newDocument(kind Kind, values map[string]string) map[string]interface{} {
	doc := map[string]interface{}{kindField: string(kind)}
	for _, f := range kindFields[kind] {
		v := values[f]
		doc[f] = v
		doc[f+rawSuffix] = v
	}
	return doc
}

func fileDocument(f *model.File) map[string]interface{} {
	return newDocument(KindFile, map[string]string{
		"title_proper":   f.Title.Proper,
		"title_parallel": f.Title.Parallel,
		"title_sub":      f.Title.Sub,
		"key_who":        f.Keywords.Who,
		"key_why":        f.Keywords.Why,
		"key_when":       f.Keywords.When,
		"key_where":      f.Keywords.Where,
		"key_how":        f.Keywords.How,
		"key_what":       f.Keywords.What,
	})
}

func dossierDocument(d *model.Dossier) map[string]interface{} {
	return newDocument(KindDossier, map[string]string{"name": d.Name})
}

func userDocument(u *model.User) map[string]interface{} {
	return newDocument(KindUser, map[string]string{"username": u.Username})
}

// IndexFile добавляет или обновляет файл. Скрытые файлы удаляются из индекса.
func (x *Index) IndexFile(f *model.File) error {
	if f.Hidden {
		return x.Remove(KindFile, f.ID)
	}
	return x.index(docID(KindFile, f.ID), fileDocument(f))
}

// IndexDossier добавляет или обновляет дело.
func (x *Index) IndexDossier(d *model.Dossier) error {
	return x.index(docID(KindDossier, d.ID), dossierDocument(d))
}

// IndexUser добавляет или обновляет пользователя.
func (x *Index) IndexUser(u *model.User) error {
	return x.index(docID(KindUser, u.ID), userDocument(u))
}

func (x *Index) index(id string, doc map[string]interface{}) error {
	if err := x.idx.Index(id, doc); err != nil {
		return fmt.Errorf("ошибка индексации %s: %w", id, err)
	}
	return nil
}

// Remove удаляет документ из индекса; отсутствие документа не ошибка.
func (x *Index) Remove(kind Kind, id int64) error {
	if err := x.idx.Delete(docID(kind, id)); err != nil {
		return fmt.Errorf("ошибка удаления %s:%d из индекса: %w", kind, id, err)
	}
	return nil
}

// Query ищет text в полях сущностей типа kind и возвращает их ID
// в порядке релевантности. Поля объединяются по ИЛИ; каждое поле
// проверяется нечётким совпадением слов и вхождением подстроки.
func (x *Index) Query(ctx context.Context, text string, kind Kind) ([]int64, error) {
	fields, ok := kindFields[kind]
	if !ok {
		return nil, fmt.Errorf("неизвестный тип сущности %q", kind)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	start := time.Now()
	searchQueriesTotal.WithLabelValues(string(kind)).Inc()
	defer func() { searchDuration.Observe(time.Since(start).Seconds()) }()

	pattern := "*" + strings.ToLower(strings.NewReplacer("*", "", "?", "").Replace(text)) + "*"

	fuzziness := fuzzinessFor(text)

	var alternatives []query.Query
	for _, f := range fields {
		match := bleve.NewMatchQuery(text)
		match.SetField(f)
		match.SetFuzziness(fuzziness)
		match.SetOperator(query.MatchQueryOperatorAnd)
		alternatives = append(alternatives, match)

		if pattern != "**" {
			wildcard := bleve.NewWildcardQuery(pattern)
			wildcard.SetField(f + rawSuffix)
			alternatives = append(alternatives, wildcard)
		}
	}

	kindQuery := bleve.NewTermQuery(string(kind))
	kindQuery.SetField(kindField)

	q := bleve.NewConjunctionQuery(kindQuery, bleve.NewDisjunctionQuery(alternatives...))
	req := bleve.NewSearchRequestOptions(q, MaxResults, 0, false)

	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска: %w", err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		_, id, err := parseDocID(hit.ID)
		if err != nil {
			x.logger.Warn("Пропущен документ с некорректным ключом", slog.String("id", hit.ID))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// fuzzinessFor возвращает допустимое расстояние правки для запроса.
// Иероглифы индексируются по одному символу, и расстояние 1
// совпадало бы с любым из них, поэтому для них и коротких слов
// нечёткость отключена.
func fuzzinessFor(text string) int {
	if utf8.RuneCountInString(text) < 4 {
		return 0
	}
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return 0
		}
	}
	return 1
}

// Count возвращает число документов в индексе.
func (x *Index) Count() (uint64, error) {
	return x.idx.DocCount()
}

// CheckReady — проверка готовности для /health/ready.
func (x *Index) CheckReady() (string, string) {
	n, err := x.Count()
	if err != nil {
		return "fail", fmt.Sprintf("индекс недоступен: %v", err)
	}
	return "ok", fmt.Sprintf("документов: %d", n)
}

// Close закрывает индекс.
func (x *Index) Close() error {
	return x.idx.Close()
}
