// Пакет dbtest — PostgreSQL в контейнере для интеграционных тестов.
// Без переменной TEST_INTEGRATION тесты пропускаются.
//
// Контейнер один на тестовый бинарник; его удаляет reaper testcontainers
// после завершения процесса. Pool очищает таблицы перед каждым тестом.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rucyang/metadata/internal/config"
	"github.com/rucyang/metadata/internal/database"
)

const (
	image    = "docker.io/postgres:17-alpine"
	dbName   = "metadata_test"
	user     = "metadata"
	password = "test-password"
)

var (
	startOnce sync.Once
	shared    config.Config
	startErr  error
)

func start() {
	ctx := context.Background()
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		startErr = err
		return
	}

	host, err := container.Host(ctx)
	if err != nil {
		startErr = err
		return
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		startErr = err
		return
	}
	portNum, err := strconv.Atoi(port.Port())
	if err != nil {
		startErr = err
		return
	}

	shared = config.Config{
		DBHost:            host,
		DBPort:            portNum,
		DBName:            dbName,
		DBUser:            user,
		DBPassword:        password,
		DBSSLMode:         "disable",
		DBMaxConns:        4,
		DBConnMaxLifetime: time.Minute,
	}
}

// Config возвращает параметры подключения к тестовому контейнеру,
// запуская его при первом вызове.
func Config(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	startOnce.Do(start)
	if startErr != nil {
		t.Fatalf("PostgreSQL контейнер не запущен: %v", startErr)
	}
	cfg := shared
	return &cfg
}

// Pool возвращает пул к базе с актуальной схемой и пустыми таблицами.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	cfg := Config(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx,
		`TRUNCATE file_tags, files, tags, dossiers, users, roles RESTART IDENTITY CASCADE`,
	); err != nil {
		t.Fatalf("очистка таблиц: %v", err)
	}
	return pool
}
