package provider

import (
	"context"
	"fmt"
	"path"

	"github.com/shaiso/Actionflow/internal/storage"
)

// Provider — сервис генерации. Все методы блокирующие и учитывают ctx.
type Provider interface {
	// Name возвращает имя провайдера для логов и метрик.
	Name() string

	GenerateText(ctx context.Context, req TextRequest) (*Result, error)
	GenerateObject(ctx context.Context, req ObjectRequest) (*Result, error)
	GenerateImage(ctx context.Context, req ImageRequest) (*Result, error)
	GenerateAudio(ctx context.Context, req AudioRequest) (*Result, error)
	GenerateVideo(ctx context.Context, req VideoRequest) (*Result, error)
}

// TextRequest — запрос генерации текста.
type TextRequest struct {
	Prompt      string
	Model       string
	Temperature float64
}

// ObjectRequest — запрос генерации структурированного объекта.
// Schema — JSON Schema результата (может быть nil).
type ObjectRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	Schema      map[string]any
}

// ImageRequest — запрос генерации изображения.
type ImageRequest struct {
	Prompt     string
	Model      string
	Size       string
	OutputPath string
}

// AudioRequest — запрос синтеза речи.
type AudioRequest struct {
	Text       string
	Model      string
	Voice      string
	Format     string
	OutputPath string
}

// VideoRequest — запрос генерации видео.
type VideoRequest struct {
	Prompt          string
	Model           string
	DurationSeconds int
	OutputPath      string
}

// Result — результат генерации.
type Result struct {
	// Text — текстовый результат (для файлов — пусто или описание).
	Text string

	// Object — разобранный JSON объект (generate-json).
	Object any

	// Filepaths — пути созданных файлов в storage.
	Filepaths []string

	// MimeType — тип файлового результата.
	MimeType string
}

// writeFile создаёт директорию и записывает файловый результат.
func writeFile(ctx context.Context, s storage.Storage, p string, data []byte) error {
	if s == nil {
		return ErrNoStorage
	}
	if p == "" {
		return fmt.Errorf("%w: empty output path", storage.ErrInvalidPath)
	}
	if err := s.Mkdir(ctx, path.Dir(p), true); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := s.Write(ctx, p, data); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}

// mimeByExt возвращает MIME тип по расширению пути.
func mimeByExt(p, fallback string) string {
	switch path.Ext(p) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".opus":
		return "audio/opus"
	case ".mp4":
		return "video/mp4"
	default:
		return fallback
	}
}
