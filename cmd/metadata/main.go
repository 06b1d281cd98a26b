// Точка входа сервиса архивных метаданных.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// открывает поисковый индекс и хранилище файлов, запускает почтовый
// диспетчер и topologymetrics, затем HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/rucyang/metadata/internal/admin"
	apihandlers "github.com/rucyang/metadata/internal/api/handlers"
	"github.com/rucyang/metadata/internal/blobstore"
	"github.com/rucyang/metadata/internal/config"
	"github.com/rucyang/metadata/internal/credential"
	"github.com/rucyang/metadata/internal/database"
	"github.com/rucyang/metadata/internal/mail"
	"github.com/rucyang/metadata/internal/repository"
	"github.com/rucyang/metadata/internal/search"
	"github.com/rucyang/metadata/internal/server"
	"github.com/rucyang/metadata/internal/service"
	"github.com/rucyang/metadata/internal/ui/auth"
	uihandlers "github.com/rucyang/metadata/internal/ui/handlers"
	"github.com/rucyang/metadata/internal/ui/i18n"
	uimiddleware "github.com/rucyang/metadata/internal/ui/middleware"
	"github.com/rucyang/metadata/internal/ui/pages"
	"github.com/rucyang/metadata/internal/ui/static"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Сервис архивных метаданных запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	userRepo := repository.NewUserRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	dossierRepo := repository.NewDossierRepository(pool)
	fileRepo := repository.NewFileRepository(pool)
	tagRepo := repository.NewTagRepository(pool)

	// 6. Поисковый индекс (bleve) и его перестроение по данным БД
	index, err := search.Open(cfg.SearchIndexPath, logger)
	if err != nil {
		logger.Error("Ошибка открытия поискового индекса", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer index.Close()

	indexer := search.NewIndexer(index, fileRepo, dossierRepo, userRepo, logger)
	if err := indexer.Rebuild(ctx); err != nil {
		logger.Error("Ошибка перестроения поискового индекса", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Хранилище оригиналов
	var blobs blobstore.Store
	switch cfg.BlobBackend {
	case "s3":
		blobs = blobstore.NewS3Store(blobstore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	default:
		fileStore, fsErr := blobstore.NewFileStore(cfg.UploadDir)
		if fsErr != nil {
			logger.Error("Ошибка создания директории загрузок", slog.String("error", fsErr.Error()))
			os.Exit(1)
		}
		blobs = fileStore
	}
	logger.Info("Хранилище файлов инициализировано", slog.String("backend", cfg.BlobBackend))

	// 8. Почта: рендеринг шаблонов и очередь отправки
	mailRenderer, err := mail.NewRenderer(cfg.MailSubjectPrefix)
	if err != nil {
		logger.Error("Ошибка загрузки шаблонов писем", slog.String("error", err.Error()))
		os.Exit(1)
	}
	var sender mail.Sender
	if cfg.SMTPHost == "" {
		logger.Warn("MD_SMTP_HOST не задан, письма только записываются в лог")
		sender = mail.NewLogSender(logger)
	} else {
		smtpSender, smtpErr := mail.NewSMTPSender(mail.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			TLSPolicy: cfg.SMTPTLSPolicy,
			From:      cfg.MailSender,
		})
		if smtpErr != nil {
			logger.Error("Ошибка настройки SMTP", slog.String("error", smtpErr.Error()))
			os.Exit(1)
		}
		sender = smtpSender
	}
	dispatcher := mail.NewDispatcher(mailRenderer, sender, cfg.MailWorkers, cfg.MailQueueSize, logger)
	dispatcher.Start(ctx)

	// 9. Services
	tokens, err := credential.NewTokens(cfg.SecretKey)
	if err != nil {
		logger.Error("Ошибка инициализации токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	lookup := service.NewLookup(userRepo, dossierRepo, roleRepo)
	principalCache := service.NewPrincipalCache(cfg.PrincipalCacheSize, cfg.PrincipalCacheTTL)

	roleSvc := service.NewRoleService(roleRepo, logger)
	if err := roleSvc.Seed(ctx); err != nil {
		logger.Error("Ошибка создания ролей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	accountSvc := service.NewAccountService(
		userRepo, roleRepo, lookup, tokens, dispatcher, index, principalCache,
		service.AccountConfig{
			AdminEmail: cfg.AdminEmail,
			BaseURL:    cfg.BaseURL,
			TokenTTL:   cfg.TokenTTL,
		},
		logger,
	)
	userSvc := service.NewUserService(userRepo, roleRepo, lookup, index, principalCache, logger)
	dossierSvc := service.NewDossierService(dossierRepo, lookup, index, logger)
	fileSvc := service.NewFileService(service.FileServiceDeps{
		Files:    fileRepo,
		Tags:     tagRepo,
		Dossiers: dossierRepo,
		Users:    userRepo,
		Blobs:    blobs,
		Index:    index,
		Lookup:   lookup,
		Tx:       repository.NewTxRunner(pool),
	}, cfg.Options(), cfg.FilesPerPage, logger)

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL, S3)
	dephealthCfg := service.DephealthConfig{
		ServiceID:     "metadata",
		Group:         cfg.DephealthGroup,
		PGConnURL:     cfg.DatabaseURL(),
		S3HealthPath:  cfg.S3HealthPath,
		CheckInterval: cfg.DephealthCheckInterval,
	}
	if cfg.BlobBackend == "s3" {
		dephealthCfg.S3Endpoint = cfg.S3Endpoint
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(dephealthCfg, pgDB, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	}

	// 11. Веб-интерфейс
	sessionMgr, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SecureCookie)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("MD_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	bundle, err := i18n.Load(logger)
	if err != nil {
		logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	renderer, err := pages.NewRenderer(bundle)
	if err != nil {
		logger.Error("Ошибка разбора шаблонов страниц", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := admin.NewDefaultRegistry(admin.Deps{
		Users:    userRepo,
		Roles:    roleRepo,
		Files:    fileRepo,
		Dossiers: dossierRepo,
		Tags:     tagRepo,
		Index:    index,
		Lookup:   lookup,
		Cache:    principalCache,
	}, logger)

	base := uihandlers.NewBase(renderer, sessionMgr, logger)
	components := &server.Components{
		Health:   apihandlers.NewHealthHandler(database.NewReadinessChecker(pool), index),
		API:      apihandlers.NewAPIHandler(fileSvc, logger),
		Static:   static.FileSystem(),
		UIAuth:   uimiddleware.NewUIAuth(sessionMgr, userSvc, accountSvc, logger),
		Base:     base,
		Auth:     uihandlers.NewAuthHandler(base, accountSvc),
		Files:    uihandlers.NewFileHandler(base, fileSvc, dossierSvc, userSvc).WithMaxUploadSize(cfg.MaxUploadSize),
		Search:   uihandlers.NewSearchHandler(base, fileSvc),
		Users:    uihandlers.NewUserHandler(base, userSvc, roleSvc, fileSvc),
		Admin:    uihandlers.NewAdminHandler(base, registry),
		Language: uihandlers.NewLanguageHandler(base, cfg.SecureCookie),
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, components)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	dispatcher.Stop()

	logger.Info("Сервис остановлен")
}
