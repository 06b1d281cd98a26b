// metrics.go — Prometheus HTTP метрики:
// md_http_requests_total, md_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "md_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "md_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware считает запросы и их длительность.
// Лейбл path — шаблон маршрута chi, без него путь нормализуется.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routeLabel(r)
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeLabel возвращает шаблон сработавшего маршрута.
// Вызывается после обработки запроса, когда chi уже заполнил контекст.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && pattern != "/*" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// dynamicPrefixes — маршруты, чей последний сегмент — идентификатор,
// токен или поисковый запрос. Сегмент заменяется шаблоном.
var dynamicPrefixes = []struct {
	prefix string
	result string
}{
	{"/api/v1/files/", "/api/v1/files/{id}"},
	{"/file/", "/file/{id}"},
	{"/download/", "/download/{id}"},
	{"/edit-file/", "/edit-file/{id}"},
	{"/delete-file/", "/delete-file/{id}"},
	{"/edit-profile/", "/edit-profile/{id}"},
	{"/user/", "/user/{username}"},
	{"/files/", "/files/{type}"},
	{"/search-result/", "/search-result/{query}"},
	{"/auth/confirm/", "/auth/confirm/{token}"},
	{"/auth/reset/", "/auth/reset/{token}"},
	{"/auth/change-email/", "/auth/change-email/{token}"},
	{"/static/", "/static/{file}"},
}

// normalizePath заменяет переменные сегменты пути шаблонами,
// чтобы ограничить кардинальность лейблов.
func normalizePath(path string) string {
	for _, p := range dynamicPrefixes {
		if len(path) > len(p.prefix) && strings.HasPrefix(path, p.prefix) {
			return p.result
		}
	}

	// /admin/{entity}/{id}/{action}
	if rest, ok := strings.CutPrefix(path, "/admin/"); ok && rest != "" {
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		switch len(parts) {
		case 1:
			return "/admin/" + parts[0]
		case 3:
			return "/admin/" + parts[0] + "/{id}/" + parts[2]
		default:
			return "/admin/{other}"
		}
	}
	return path
}
