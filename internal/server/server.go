// Пакет server — HTTP-сервер архива метаданных с graceful shutdown.
// Собирает веб-интерфейс, JSON API, health и метрики в один chi-роутер.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	apihandlers "github.com/rucyang/metadata/internal/api/handlers"
	"github.com/rucyang/metadata/internal/api/middleware"
	"github.com/rucyang/metadata/internal/config"
	"github.com/rucyang/metadata/internal/domain/rbac"
	uihandlers "github.com/rucyang/metadata/internal/ui/handlers"
	"github.com/rucyang/metadata/internal/ui/i18n"
	uimiddleware "github.com/rucyang/metadata/internal/ui/middleware"
)

// Components — обработчики, из которых собираются маршруты.
type Components struct {
	Health *apihandlers.HealthHandler
	API    *apihandlers.APIHandler
	Static http.FileSystem

	UIAuth   *uimiddleware.UIAuth
	Base     *uihandlers.Base
	Auth     *uihandlers.AuthHandler
	Files    *uihandlers.FileHandler
	Search   *uihandlers.SearchHandler
	Users    *uihandlers.UserHandler
	Admin    *uihandlers.AdminHandler
	Language *uihandlers.LanguageHandler
}

// Server — HTTP-сервер архива.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, c *Components) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, cfg.CORSOrigins, c),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// NewRouter собирает роутер. Health, метрики, статика и JSON API
// обслуживаются без сессии; веб-интерфейс проходит через UIAuth.
func NewRouter(logger *slog.Logger, corsOrigins []string, c *Components) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	router.Get("/health/live", c.Health.HealthLive)
	router.Get("/health/ready", c.Health.HealthReady)
	router.Get("/metrics", c.Health.GetMetrics)

	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(c.Static)))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         600,
		}).Handler)
		r.Get("/search", c.API.Search)
		r.Get("/files/{id}", c.API.GetFile)
	})

	router.Group(func(r chi.Router) {
		r.Use(i18n.Middleware())
		r.Use(c.UIAuth.Middleware())
		r.NotFound(c.Base.NotFound)
		mountUI(r, c)
	})

	return router
}

// mountUI регистрирует страницы веб-интерфейса.
func mountUI(r chi.Router, c *Components) {
	forbidden := http.HandlerFunc(c.Base.Forbidden)
	requireUpload := uimiddleware.RequirePermission(rbac.UploadFile, forbidden)
	requireDownload := uimiddleware.RequirePermission(rbac.DownloadFile, forbidden)
	requireAdmin := uimiddleware.RequireAdmin(forbidden)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/scan", http.StatusFound)
	})
	r.Post("/set-language", c.Language.HandleSetLanguage)

	// Публичные страницы
	r.Get("/scan", c.Files.HandleScan)
	r.Get("/files/{type}", c.Files.HandleCarrier)
	r.Get("/file/{id}", c.Files.HandleFile)
	r.Get("/search", c.Search.HandleSearch)
	r.Post("/search", c.Search.HandleSearch)
	r.Get("/search-result/{query}", c.Search.HandleFieldSearch)
	r.Get("/user/{username}", c.Users.HandleUser)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", c.Auth.HandleLogin)
		r.Post("/login", c.Auth.HandleLogin)
		r.Get("/register", c.Auth.HandleRegister)
		r.Post("/register", c.Auth.HandleRegister)
		r.Get("/reset", c.Auth.HandleResetRequest)
		r.Post("/reset", c.Auth.HandleResetRequest)
		r.Get("/reset/{token}", c.Auth.HandleReset)
		r.Post("/reset/{token}", c.Auth.HandleReset)

		r.Group(func(r chi.Router) {
			r.Use(uimiddleware.RequireAuth)
			r.Post("/logout", c.Auth.HandleLogout)
			r.Get("/unconfirmed", c.Auth.HandleUnconfirmed)
			r.Get("/confirm", c.Auth.HandleResend)
			r.Get("/confirm/{token}", c.Auth.HandleConfirm)
			r.Get("/change-password", c.Auth.HandleChangePassword)
			r.Post("/change-password", c.Auth.HandleChangePassword)
			r.Get("/change-email", c.Auth.HandleChangeEmailRequest)
			r.Post("/change-email", c.Auth.HandleChangeEmailRequest)
			r.Get("/change-email/{token}", c.Auth.HandleChangeEmail)
		})
	})

	// Требуют входа
	r.Group(func(r chi.Router) {
		r.Use(uimiddleware.RequireAuth)
		r.Get("/file-manage", c.Files.HandleManage)
		r.Get("/edit-file/{id}", c.Files.HandleEdit)
		r.Post("/edit-file/{id}", c.Files.HandleEdit)
		r.Post("/delete-file/{id}", c.Files.HandleDelete)
		r.Get("/add-dossier", c.Files.HandleAddDossier)
		r.Post("/add-dossier", c.Files.HandleAddDossier)
		r.Get("/edit-profile", c.Users.HandleEditProfile)
		r.Post("/edit-profile", c.Users.HandleEditProfile)
	})

	r.With(requireUpload).Get("/upload-file", c.Files.HandleUpload)
	r.With(requireUpload).Post("/upload-file", c.Files.HandleUpload)
	r.With(requireDownload).Get("/download/{id}", c.Files.HandleDownload)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/edit-profile/{id}", c.Users.HandleAdminEditProfile)
		r.Post("/edit-profile/{id}", c.Users.HandleAdminEditProfile)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/", c.Admin.HandleIndex)
			r.Get("/{entity}", c.Admin.HandleList)
			r.Get("/{entity}/{id}/edit", c.Admin.HandleEdit)
			r.Post("/{entity}/{id}/edit", c.Admin.HandleEdit)
			r.Get("/{entity}/{id}/delete", c.Admin.HandleDelete)
			r.Post("/{entity}/{id}/delete", c.Admin.HandleDelete)
		})
	})
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
