// Пакет config — загрузка и валидация конфигурации сервиса архивных метаданных
// из переменных окружения (и, опционально, из .env-файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rucyang/metadata/internal/domain/model"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Значения списков по умолчанию (порядок важен только для отображения).
var (
	defaultFileTypes         = "文档,图片,视频,音频,其他"
	defaultLanguages         = "中文,英语,日语,法语,西班牙语,德语,俄语,其他"
	defaultConfidentialities = "无密级,秘密,机密,绝密"
)

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Базовый URL сервиса для ссылок в письмах (без trailing slash)
	BaseURL string
	// Разрешённые origin для JSON API (CORS)
	CORSOrigins []string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимум соединений в пуле
	DBMaxConns int
	// Время жизни соединения в пуле
	DBConnMaxLifetime time.Duration

	// --- Безопасность ---

	// Секрет подписи токенов действий (confirm, reset, change_email)
	SecretKey string
	// Время жизни токенов действий
	TokenTTL time.Duration
	// Ключ шифрования cookie-сессий (пусто — генерируется при старте)
	SessionSecret string
	// Secure flag для cookie
	SecureCookie bool
	// Email, получающий роль Administrator при регистрации
	AdminEmail string

	// --- Почта ---

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	// Политика TLS: mandatory, opportunistic, none
	SMTPTLSPolicy string
	// Адрес отправителя
	MailSender string
	// Префикс темы письма
	MailSubjectPrefix string
	// Количество воркеров отправки
	MailWorkers int
	// Ёмкость очереди писем
	MailQueueSize int

	// --- Хранилище файлов ---

	// Бэкенд хранения: local или s3
	BlobBackend string
	// Директория загрузок для local
	UploadDir   string
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	// Путь health-проверки S3 endpoint для topologymetrics
	S3HealthPath string

	// --- Поиск и кэш ---

	// Путь к индексу bleve (пусто — индекс в памяти)
	SearchIndexPath string
	// Размер LRU-кэша субъектов доступа
	PrincipalCacheSize int
	// TTL записи в кэше субъектов доступа
	PrincipalCacheTTL time.Duration

	// --- Отображение ---

	// Размер страницы в списках файлов
	FilesPerPage int
	// Максимальный размер тела запроса загрузки файла (байт)
	MaxUploadSize int64
	// Типы носителей
	FileTypes []string
	// Языки документа
	Languages []string
	// Уровни секретности
	Confidentialities []string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Перед чтением окружения подгружается .env-файл (MD_ENV_FILE), если он есть.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvDefault("MD_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("MD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("MD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("MD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.BaseURL = strings.TrimRight(getEnvDefault("MD_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")
	cfg.CORSOrigins = parseCSV(getEnvDefault("MD_CORS_ORIGINS", "*"))

	cfg.ShutdownTimeout, err = getEnvDuration("MD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MD_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("MD_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("MD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MD_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("MD_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("MD_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("MD_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("MD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	cfg.DBMaxConns, err = getEnvInt("MD_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("MD_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 1000 {
		return nil, fmt.Errorf("MD_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-1000", cfg.DBMaxConns)
	}
	cfg.DBConnMaxLifetime, err = getEnvDuration("MD_DB_CONN_MAX_LIFETIME", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MD_DB_CONN_MAX_LIFETIME: %w", err)
	}

	// --- Безопасность ---

	cfg.SecretKey, err = getEnvRequired("MD_SECRET_KEY")
	if err != nil {
		return nil, err
	}
	cfg.TokenTTL, err = getEnvDuration("MD_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MD_TOKEN_TTL: %w", err)
	}
	cfg.SessionSecret = getEnvDefault("MD_SESSION_SECRET", "")
	cfg.SecureCookie, err = getEnvBool("MD_SECURE_COOKIE", strings.HasPrefix(cfg.BaseURL, "https"))
	if err != nil {
		return nil, fmt.Errorf("MD_SECURE_COOKIE: %w", err)
	}
	cfg.AdminEmail = getEnvDefault("MD_ADMIN_EMAIL", "")

	// --- Почта ---

	cfg.SMTPHost = getEnvDefault("MD_SMTP_HOST", "")
	cfg.SMTPPort, err = getEnvInt("MD_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("MD_SMTP_PORT: %w", err)
	}
	cfg.SMTPUsername = getEnvDefault("MD_SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvDefault("MD_SMTP_PASSWORD", "")
	cfg.SMTPTLSPolicy = getEnvDefault("MD_SMTP_TLS", "opportunistic")
	switch cfg.SMTPTLSPolicy {
	case "mandatory", "opportunistic", "none":
	default:
		return nil, fmt.Errorf("MD_SMTP_TLS: недопустимое значение %q, допустимые: mandatory, opportunistic, none", cfg.SMTPTLSPolicy)
	}
	cfg.MailSender = getEnvDefault("MD_MAIL_SENDER", "Archive Admin <archive@localhost>")
	cfg.MailSubjectPrefix = getEnvDefault("MD_MAIL_SUBJECT_PREFIX", "[档案资源知识服务系统]")
	cfg.MailWorkers, err = getEnvInt("MD_MAIL_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("MD_MAIL_WORKERS: %w", err)
	}
	if cfg.MailWorkers < 1 || cfg.MailWorkers > 64 {
		return nil, fmt.Errorf("MD_MAIL_WORKERS: значение %d вне допустимого диапазона 1-64", cfg.MailWorkers)
	}
	cfg.MailQueueSize, err = getEnvInt("MD_MAIL_QUEUE_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("MD_MAIL_QUEUE_SIZE: %w", err)
	}
	if cfg.MailQueueSize < 1 {
		return nil, fmt.Errorf("MD_MAIL_QUEUE_SIZE: значение должно быть положительным, получено %d", cfg.MailQueueSize)
	}

	// --- Хранилище файлов ---

	cfg.BlobBackend = getEnvDefault("MD_BLOB_BACKEND", "local")
	cfg.UploadDir = getEnvDefault("MD_UPLOAD_DIR", "./data/uploads")
	cfg.S3Endpoint = getEnvDefault("MD_S3_ENDPOINT", "")
	cfg.S3Region = getEnvDefault("MD_S3_REGION", "auto")
	cfg.S3Bucket = getEnvDefault("MD_S3_BUCKET", "")
	cfg.S3AccessKey = getEnvDefault("MD_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvDefault("MD_S3_SECRET_KEY", "")
	cfg.S3HealthPath = getEnvDefault("MD_S3_HEALTH_PATH", "/minio/health/live")
	switch cfg.BlobBackend {
	case "local":
	case "s3":
		if cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return nil, errors.New("MD_BLOB_BACKEND=s3: требуются MD_S3_BUCKET, MD_S3_ACCESS_KEY, MD_S3_SECRET_KEY")
		}
	default:
		return nil, fmt.Errorf("MD_BLOB_BACKEND: недопустимое значение %q, допустимые: local, s3", cfg.BlobBackend)
	}

	// --- Поиск и кэш ---

	cfg.SearchIndexPath = getEnvDefault("MD_SEARCH_INDEX_PATH", "")
	cfg.PrincipalCacheSize, err = getEnvInt("MD_PRINCIPAL_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("MD_PRINCIPAL_CACHE_SIZE: %w", err)
	}
	cfg.PrincipalCacheTTL, err = getEnvDuration("MD_PRINCIPAL_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MD_PRINCIPAL_CACHE_TTL: %w", err)
	}

	// --- Отображение ---

	cfg.FilesPerPage, err = getEnvInt("MD_FILES_PER_PAGE", 5)
	if err != nil {
		return nil, fmt.Errorf("MD_FILES_PER_PAGE: %w", err)
	}
	if cfg.FilesPerPage < 1 || cfg.FilesPerPage > 500 {
		return nil, fmt.Errorf("MD_FILES_PER_PAGE: значение %d вне допустимого диапазона 1-500", cfg.FilesPerPage)
	}
	cfg.MaxUploadSize, err = getEnvInt64("MD_MAX_UPLOAD_SIZE", 1073741824) // 1 GB
	if err != nil {
		return nil, fmt.Errorf("MD_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("MD_MAX_UPLOAD_SIZE: значение должно быть положительным, получено %d", cfg.MaxUploadSize)
	}
	cfg.FileTypes = parseCSV(getEnvDefault("MD_FILE_TYPES", defaultFileTypes))
	cfg.Languages = parseCSV(getEnvDefault("MD_LANGUAGES", defaultLanguages))
	cfg.Confidentialities = parseCSV(getEnvDefault("MD_CONFIDENTIALITIES", defaultConfidentialities))
	if len(cfg.FileTypes) == 0 || len(cfg.Languages) == 0 || len(cfg.Confidentialities) == 0 {
		return nil, errors.New("списки MD_FILE_TYPES, MD_LANGUAGES, MD_CONFIDENTIALITIES не могут быть пустыми")
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("MD_DEPHEALTH_GROUP", "metadata")
	cfg.DephealthCheckInterval, err = getEnvDuration("MD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// Options возвращает списки выбора для форм.
func (c *Config) Options() model.Options {
	return model.Options{
		FileTypes:         c.FileTypes,
		Languages:         c.Languages,
		Confidentialities: c.Confidentialities,
	}
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает переменные из .env-файла.
// Отсутствие файла ошибкой не считается; уже заданные переменные не перезаписываются.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("MD_ENV_FILE: ошибка чтения %s: %w", path, err)
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 из переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
