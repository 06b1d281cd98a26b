package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs(t *testing.T) map[string]string {
	return map[string]string{
		"MD_ENV_FILE":    filepath.Join(t.TempDir(), "missing.env"),
		"MD_DB_HOST":     "localhost",
		"MD_DB_NAME":     "metadata",
		"MD_DB_USER":     "metadata",
		"MD_DB_PASSWORD": "secret",
		"MD_SECRET_KEY":  "hard to guess string",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs(t))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.TokenTTL != time.Hour {
		t.Errorf("TokenTTL = %v, ожидается 1h", cfg.TokenTTL)
	}
	if cfg.DBMaxConns != 10 || cfg.DBConnMaxLifetime != time.Hour {
		t.Errorf("пул = %d/%v, ожидается 10/1h", cfg.DBMaxConns, cfg.DBConnMaxLifetime)
	}
	if cfg.FilesPerPage != 5 {
		t.Errorf("FilesPerPage = %d, ожидается 5", cfg.FilesPerPage)
	}
	if cfg.MaxUploadSize != 1<<30 {
		t.Errorf("MaxUploadSize = %d, ожидается 1 GB", cfg.MaxUploadSize)
	}
	if cfg.MailSubjectPrefix != "[档案资源知识服务系统]" {
		t.Errorf("MailSubjectPrefix = %q", cfg.MailSubjectPrefix)
	}
	if cfg.MailWorkers != 4 || cfg.MailQueueSize != 100 {
		t.Errorf("MailWorkers/MailQueueSize = %d/%d, ожидается 4/100", cfg.MailWorkers, cfg.MailQueueSize)
	}
	if cfg.BlobBackend != "local" {
		t.Errorf("BlobBackend = %q, ожидается local", cfg.BlobBackend)
	}
	if len(cfg.FileTypes) != 5 || cfg.FileTypes[0] != "文档" {
		t.Errorf("FileTypes = %v", cfg.FileTypes)
	}
	if len(cfg.Languages) != 8 {
		t.Errorf("Languages = %v, ожидается 8 элементов", cfg.Languages)
	}
	if len(cfg.Confidentialities) != 4 {
		t.Errorf("Confidentialities = %v, ожидается 4 элемента", cfg.Confidentialities)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.SecureCookie {
		t.Error("SecureCookie = true для http BaseURL")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs(t)
	envs["MD_PORT"] = "9000"
	envs["MD_LOG_LEVEL"] = "debug"
	envs["MD_LOG_FORMAT"] = "text"
	envs["MD_BASE_URL"] = "https://archive.example.org/"
	envs["MD_TOKEN_TTL"] = "30m"
	envs["MD_MAIL_WORKERS"] = "2"
	envs["MD_LANGUAGES"] = "中文, 英语 ,"
	envs["MD_CORS_ORIGINS"] = "https://a.example.org, https://b.example.org"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, ожидается 9000", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.BaseURL != "https://archive.example.org" {
		t.Errorf("BaseURL = %q, trailing slash должен быть убран", cfg.BaseURL)
	}
	if !cfg.SecureCookie {
		t.Error("SecureCookie = false для https BaseURL")
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Errorf("TokenTTL = %v, ожидается 30m", cfg.TokenTTL)
	}
	if cfg.MailWorkers != 2 {
		t.Errorf("MailWorkers = %d, ожидается 2", cfg.MailWorkers)
	}
	if len(cfg.Languages) != 2 || cfg.Languages[1] != "英语" {
		t.Errorf("Languages = %v, ожидается [中文 英语]", cfg.Languages)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v, ожидается 2 элемента", cfg.CORSOrigins)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "нет MD_DB_HOST", key: "MD_DB_HOST", value: ""},
		{name: "нет MD_SECRET_KEY", key: "MD_SECRET_KEY", value: ""},
		{name: "некорректный порт", key: "MD_PORT", value: "abc"},
		{name: "порт вне диапазона", key: "MD_PORT", value: "70000"},
		{name: "некорректный уровень логов", key: "MD_LOG_LEVEL", value: "verbose"},
		{name: "некорректный формат логов", key: "MD_LOG_FORMAT", value: "xml"},
		{name: "некорректный SSL", key: "MD_DB_SSL_MODE", value: "maybe"},
		{name: "пул без соединений", key: "MD_DB_MAX_CONNS", value: "0"},
		{name: "некорректный срок соединения", key: "MD_DB_CONN_MAX_LIFETIME", value: "долго"},
		{name: "некорректный TTL", key: "MD_TOKEN_TTL", value: "час"},
		{name: "неизвестный бэкенд", key: "MD_BLOB_BACKEND", value: "ftp"},
		{name: "s3 без bucket", key: "MD_BLOB_BACKEND", value: "s3"},
		{name: "некорректная TLS-политика", key: "MD_SMTP_TLS", value: "always"},
		{name: "ноль воркеров", key: "MD_MAIL_WORKERS", value: "0"},
		{name: "нулевая страница", key: "MD_FILES_PER_PAGE", value: "0"},
		{name: "отрицательный лимит загрузки", key: "MD_MAX_UPLOAD_SIZE", value: "-1"},
		{name: "нечисловой лимит загрузки", key: "MD_MAX_UPLOAD_SIZE", value: "1GB"},
		{name: "некорректный secure cookie", key: "MD_SECURE_COOKIE", value: "yes please"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs(t)
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			if _, err := Load(); err == nil {
				t.Errorf("Load() не вернул ошибку для %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "MD_DB_HOST=db.internal\nMD_ADMIN_EMAIL=admin@example.org\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("запись .env: %v", err)
	}

	envs := minimalEnvs(t)
	delete(envs, "MD_DB_HOST")
	envs["MD_ENV_FILE"] = path
	setEnvs(t, envs)
	// godotenv не перезаписывает заданные переменные, поэтому
	// MD_DB_HOST гарантированно отсутствует в окружении теста.
	t.Setenv("MD_DB_HOST", "")
	os.Unsetenv("MD_DB_HOST")
	t.Setenv("MD_ADMIN_EMAIL", "")
	os.Unsetenv("MD_ADMIN_EMAIL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.DBHost != "db.internal" {
		t.Errorf("DBHost = %q, ожидается значение из .env", cfg.DBHost)
	}
	if cfg.AdminEmail != "admin@example.org" {
		t.Errorf("AdminEmail = %q, ожидается значение из .env", cfg.AdminEmail)
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"a, b ,c", 3},
		{" , ,", 0},
	}
	for _, tt := range tests {
		if got := parseCSV(tt.input); len(got) != tt.want {
			t.Errorf("parseCSV(%q) = %v, ожидается %d элементов", tt.input, got, tt.want)
		}
	}
}
