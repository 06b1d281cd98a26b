// Пакет middleware — HTTP middleware веб-интерфейса:
// субъект доступа из сессии, отметка активности и проверки прав.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rucyang/metadata/internal/domain/rbac"
	"github.com/rucyang/metadata/internal/service"
	"github.com/rucyang/metadata/internal/ui/auth"
)

type contextKey string

const contextKeyPrincipal contextKey = "ui_principal"

// last_seen обновляется не чаще раза в pingInterval на пользователя.
const (
	pingInterval  = time.Minute
	pingCacheSize = 4096
)

// Пути, доступные неподтверждённому пользователю.
var unconfirmedAllowed = []string{"/auth/", "/static/"}

// PrincipalLoader загружает субъект доступа по ID пользователя.
type PrincipalLoader interface {
	Principal(ctx context.Context, userID int64) (*rbac.UserPrincipal, error)
}

// Pinger отмечает время последней активности.
type Pinger interface {
	Ping(ctx context.Context, userID int64)
}

// UIAuth определяет субъект доступа каждого запроса.
type UIAuth struct {
	sessions *auth.SessionManager
	loader   PrincipalLoader
	pinger   Pinger
	pinged   *expirable.LRU[int64, struct{}]
	logger   *slog.Logger
}

// NewUIAuth создаёт middleware сессии.
func NewUIAuth(sessions *auth.SessionManager, loader PrincipalLoader, pinger Pinger, logger *slog.Logger) *UIAuth {
	return &UIAuth{
		sessions: sessions,
		loader:   loader,
		pinger:   pinger,
		pinged:   expirable.NewLRU[int64, struct{}](pingCacheSize, nil, pingInterval),
		logger:   logger.With(slog.String("component", "ui_auth_middleware")),
	}
}

// Middleware помещает субъект в контекст; без сессии это Anonymous.
// Для вошедшего пользователя обновляется last_seen (не чаще раза
// в минуту), а неподтверждённый
// перенаправляется на /auth/unconfirmed (кроме /auth/* и статики).
func (ua *UIAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := ua.resolve(w, r)
			ctx := WithPrincipal(r.Context(), principal)

			if principal.IsAuthenticated() {
				ua.ping(ctx, principal.ID())

				if !principal.Confirmed() && !unconfirmedPath(r.URL.Path) {
					http.Redirect(w, r, "/auth/unconfirmed", http.StatusFound)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ping отмечает активность, если с прошлой отметки прошло больше pingInterval.
func (ua *UIAuth) ping(ctx context.Context, userID int64) {
	if ua.pinged.Contains(userID) {
		return
	}
	ua.pinged.Add(userID, struct{}{})
	ua.pinger.Ping(ctx, userID)
}

func (ua *UIAuth) resolve(w http.ResponseWriter, r *http.Request) rbac.Principal {
	session, err := ua.sessions.GetSessionFromRequest(r)
	if err != nil {
		ua.logger.Debug("Ошибка чтения сессии",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		// Повреждённый или устаревший cookie удаляется
		ua.sessions.ClearSessionCookie(w)
		return rbac.Anonymous
	}
	if session == nil {
		return rbac.Anonymous
	}

	p, err := ua.loader.Principal(r.Context(), session.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			ua.logger.Info("Пользователь сессии не найден",
				slog.Int64("user_id", session.UserID),
			)
			ua.sessions.ClearSessionCookie(w)
		} else {
			ua.logger.Error("Ошибка загрузки субъекта доступа",
				slog.Int64("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
		}
		return rbac.Anonymous
	}
	return p
}

func unconfirmedPath(path string) bool {
	for _, prefix := range unconfirmedAllowed {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// WithPrincipal помещает субъект в контекст.
func WithPrincipal(ctx context.Context, p rbac.Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext возвращает субъект запроса; по умолчанию Anonymous.
func PrincipalFromContext(ctx context.Context) rbac.Principal {
	if p, ok := ctx.Value(contextKeyPrincipal).(rbac.Principal); ok && p != nil {
		return p
	}
	return rbac.Anonymous
}

// LoginURL возвращает адрес входа с возвратом на текущую страницу.
func LoginURL(r *http.Request) string {
	return "/auth/login?next=" + url.QueryEscape(r.URL.RequestURI())
}

// RequireAuth пропускает только вошедших пользователей.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFromContext(r.Context()).IsAuthenticated() {
			http.Redirect(w, r, LoginURL(r), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission пропускает пользователей с правом perm.
// Анонимный пользователь отправляется на вход, остальные получают forbidden.
func RequirePermission(perm rbac.Permission, forbidden http.Handler) func(http.Handler) http.Handler {
	return require(func(p rbac.Principal) bool { return p.Can(perm) }, forbidden)
}

// RequireAdmin пропускает только администраторов.
func RequireAdmin(forbidden http.Handler) func(http.Handler) http.Handler {
	return require(rbac.Principal.IsAdministrator, forbidden)
}

func require(allowed func(rbac.Principal) bool, forbidden http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			switch {
			case !p.IsAuthenticated():
				http.Redirect(w, r, LoginURL(r), http.StatusFound)
			case !allowed(p):
				forbidden.ServeHTTP(w, r)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
