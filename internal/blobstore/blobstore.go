// Пакет blobstore — хранение загруженных оригиналов файлов.
// Бэкенды: локальный диск (FileStore) и S3-совместимое хранилище (S3Store).
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ErrNotFound — объект отсутствует в хранилище.
var ErrNotFound = errors.New("объект не найден в хранилище")

// Store — хранилище бинарных оригиналов.
type Store interface {
	// Save записывает содержимое под новым уникальным именем.
	Save(ctx context.Context, r io.Reader, originalName string) (*SaveResult, error)
	// Open открывает объект для чтения; ErrNotFound, если его нет.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete удаляет объект; отсутствие объекта не ошибка.
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// SaveResult — результат сохранения.
type SaveResult struct {
	// StoragePath — ключ объекта в хранилище
	StoragePath string
	// Size — размер в байтах
	Size int64
	// Checksum — SHA-256 содержимого в hex
	Checksum string
}

// spool копирует r во временный файл рядом с dir, считая SHA-256 на лету.
// Файл синхронизирован на диск и перемотан в начало.
// Вызывающий код обязан закрыть и удалить файл.
func spool(dir string, r io.Reader) (*os.File, int64, string, error) {
	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return nil, 0, "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	hasher := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(r, hasher))
	if err != nil {
		cleanup()
		return nil, 0, "", fmt.Errorf("ошибка записи данных: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, 0, "", fmt.Errorf("ошибка fsync: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, 0, "", fmt.Errorf("ошибка перемотки временного файла: %w", err)
	}

	return tmp, size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// maxNameRunes — предел длины исходного имени в ключе.
const maxNameRunes = 64

// generateStorageName формирует ключ объекта.
// Формат: {timestamp}_{uuid8}_{имя}{.ext}
// Пример: 20260221150405_a1b2c3d4_会议记录.pdf
func generateStorageName(originalName string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	ext := sanitizeExt(filepath.Ext(base))
	name := sanitize(strings.TrimSuffix(base, filepath.Ext(base)))

	if runes := []rune(name); len(runes) > maxNameRunes {
		name = string(runes[:maxNameRunes])
	}

	ts := now.UTC().Format("20060102150405")
	uid := uuid.New().String()[:8]
	return fmt.Sprintf("%s_%s_%s%s", ts, uid, name, ext)
}

// sanitize оставляет буквы любых алфавитов, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

// sanitizeExt оставляет в расширении только латиницу и цифры.
func sanitizeExt(ext string) string {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(ext, ".") {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	if b.Len() == 0 || b.Len() > 10 {
		return ""
	}
	return "." + b.String()
}
