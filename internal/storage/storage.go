package storage

import (
	"context"
	"io/fs"
	"path"
	"strings"
)

// Режимы доступа к файлам.
const (
	// ModePrivate — режим нового файла.
	ModePrivate fs.FileMode = 0o600

	// ModePublic — файл доступен на чтение всем (после Chmod результата).
	ModePublic fs.FileMode = 0o644

	// ModeDir — режим создаваемых директорий.
	ModeDir fs.FileMode = 0o755
)

// Storage — файловое хранилище с путями в стиле "apps/<appID>/file.png".
type Storage interface {
	// Exists проверяет, существует ли файл или директория.
	Exists(ctx context.Context, path string) (bool, error)

	// Read читает файл целиком.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write записывает файл целиком. Родительская директория должна существовать.
	Write(ctx context.Context, path string, data []byte) error

	// Chmod меняет режим доступа к файлу.
	Chmod(ctx context.Context, path string, mode fs.FileMode) error

	// Mkdir создаёт директорию. При recursive создаются и родительские.
	Mkdir(ctx context.Context, path string, recursive bool) error
}

// ModeReader — хранилище, умеющее сообщить режим доступа к файлу.
type ModeReader interface {
	Mode(ctx context.Context, path string) (fs.FileMode, error)
}

// IsPublic проверяет, что файл существует и доступен на чтение всем.
// Для хранилищ без ModeReader достаточно существования файла.
func IsPublic(ctx context.Context, s Storage, p string) (bool, error) {
	if mr, ok := s.(ModeReader); ok {
		mode, err := mr.Mode(ctx, p)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return mode&0o004 != 0, nil
	}
	return s.Exists(ctx, p)
}

// Clean нормализует путь хранилища: прямые слэши, без ведущего "/".
// Путь, выходящий за корень хранилища, → ErrInvalidPath.
func Clean(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrInvalidPath
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}
	return cleaned, nil
}

// AppDir возвращает директорию приложения.
func AppDir(appID string) string {
	return path.Join("apps", appID)
}

// StatePath возвращает путь снимка состояния выполнения приложения.
func StatePath(appID string) string {
	return path.Join(AppDir(appID), "execution-state.json")
}

// FilePath возвращает путь файла-результата приложения.
func FilePath(appID, filename string) string {
	return path.Join(AppDir(appID), "files", filename)
}

// PublicURL строит публичный URL файла. Без baseURL возвращает сам путь.
func PublicURL(baseURL, p string) string {
	if baseURL == "" {
		return p
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(p, "/")
}
