package i18n

import (
	"embed"
	"fmt"
	"log/slog"
	"net/http"
)

//go:embed locales/*.json
var localeFS embed.FS

// LangCookieName — cookie с выбранным языком.
const LangCookieName = "lang"

// Load создаёт Bundle со всеми встроенными каталогами.
func Load(logger *slog.Logger) (*Bundle, error) {
	bundle := NewBundle(logger)
	for _, lang := range Languages {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := localeFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("i18n: не удалось прочитать %s: %w", path, err)
		}
		if err := bundle.LoadMessages(lang, data); err != nil {
			return nil, err
		}
	}
	logger.Info("Каталоги переводов загружены", slog.Int("languages", len(Languages)))
	return bundle, nil
}

// Middleware определяет язык запроса и помещает его в контекст.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLang(r.Context(), detectLanguage(r))))
		})
	}
}

// detectLanguage: cookie "lang" → Accept-Language → "zh".
func detectLanguage(r *http.Request) string {
	if c, err := r.Cookie(LangCookieName); err == nil && Supported(c.Value) {
		return c.Value
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return MatchLanguage(accept)
	}
	return DefaultLang
}
