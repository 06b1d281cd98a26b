package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore — хранение оригиналов на локальном диске.
type FileStore struct {
	// dir — корневая директория (MD_UPLOAD_DIR)
	dir string
	now func() time.Time
}

// NewFileStore создаёт FileStore и при необходимости директорию.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Save пишет содержимое на диск.
// Паттерн: temp файл → запись + SHA-256 → fsync → атомарный rename.
// При ошибке temp файл удаляется.
func (s *FileStore) Save(_ context.Context, r io.Reader, originalName string) (*SaveResult, error) {
	tmp, size, checksum, err := spool(s.dir, r)
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	name := generateStorageName(originalName, s.now())
	fullPath := filepath.Join(s.dir, name)

	// Атомарный rename; uuid в имени исключает перезапись соседней загрузки
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{StoragePath: name, Size: size, Checksum: checksum}, nil
}

// resolve возвращает путь на диске, не выходящий за пределы dir.
func (s *FileStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("недопустимый путь объекта %q", path)
	}
	return filepath.Join(s.dir, clean), nil
}

// Open открывает файл для чтения.
func (s *FileStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	return f, nil
}

// Delete удаляет файл; nil, если файла уже нет.
func (s *FileStore) Delete(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", path, err)
	}
	return nil
}

// Exists проверяет наличие файла.
func (s *FileStore) Exists(_ context.Context, path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("ошибка проверки файла %s: %w", path, err)
	}
}

// Dir возвращает корневую директорию.
func (s *FileStore) Dir() string {
	return s.dir
}
