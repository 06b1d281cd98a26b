package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rucyang/metadata/internal/domain/rbac"
)

// Prometheus-метрики кэша субъектов доступа.
var (
	principalCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_principal_cache_hits_total",
		Help: "Общее количество попаданий в кэш субъектов доступа.",
	})
	principalCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_principal_cache_misses_total",
		Help: "Общее количество промахов кэша субъектов доступа.",
	})
)

// PrincipalCache — LRU-кэш субъектов доступа (пользователь + роль) с TTL.
// Снимает с каждого запроса чтение users и roles. Записи сбрасываются
// при изменениях пользователя, TTL ограничивает устаревание после
// правок роли через консоль администратора.
type PrincipalCache struct {
	cache *expirable.LRU[int64, *rbac.UserPrincipal]
}

// NewPrincipalCache создаёт кэш с максимальным размером и TTL.
func NewPrincipalCache(maxSize int, ttl time.Duration) *PrincipalCache {
	return &PrincipalCache{cache: expirable.NewLRU[int64, *rbac.UserPrincipal](maxSize, nil, ttl)}
}

// Get возвращает субъект по ID пользователя.
func (c *PrincipalCache) Get(userID int64) (*rbac.UserPrincipal, bool) {
	p, ok := c.cache.Get(userID)
	if ok {
		principalCacheHitsTotal.Inc()
		return p, true
	}
	principalCacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись.
func (c *PrincipalCache) Set(p *rbac.UserPrincipal) {
	c.cache.Add(p.ID(), p)
}

// Invalidate удаляет запись пользователя.
func (c *PrincipalCache) Invalidate(userID int64) {
	c.cache.Remove(userID)
}

// Purge очищает кэш (после правки ролей).
func (c *PrincipalCache) Purge() {
	c.cache.Purge()
}
