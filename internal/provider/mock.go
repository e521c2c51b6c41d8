package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Actionflow/internal/storage"
)

// Mock — провайдер без сети. Используется, когда ключи API не заданы, и в тестах.
//
// Текст: "mock: <prompt>". Объект: {"prompt": <prompt>}.
// Файлы: в storage записывается текст промпта.
type Mock struct {
	// Storage — куда записывать файловые результаты.
	Storage storage.Storage

	// Latency — задержка перед ответом (учитывает отмену ctx).
	Latency time.Duration

	// Err — если задана, возвращается вместо результата.
	Err error

	mu    sync.Mutex
	calls []string
}

// NewMock создаёт Mock с хранилищем s.
func NewMock(s storage.Storage) *Mock {
	return &Mock{Storage: s}
}

// Name возвращает имя провайдера.
func (m *Mock) Name() string { return "mock" }

// Calls возвращает список вызванных операций.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *Mock) begin(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	m.mu.Unlock()

	if m.Latency > 0 {
		timer := time.NewTimer(m.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Err != nil {
		return m.Err
	}
	return nil
}

func (m *Mock) GenerateText(ctx context.Context, req TextRequest) (*Result, error) {
	if err := m.begin(ctx, "text"); err != nil {
		return nil, err
	}
	return &Result{Text: "mock: " + req.Prompt}, nil
}

func (m *Mock) GenerateObject(ctx context.Context, req ObjectRequest) (*Result, error) {
	if err := m.begin(ctx, "object"); err != nil {
		return nil, err
	}
	object := map[string]any{"prompt": req.Prompt}
	return &Result{Text: fmt.Sprintf(`{"prompt":%q}`, req.Prompt), Object: object}, nil
}

func (m *Mock) GenerateImage(ctx context.Context, req ImageRequest) (*Result, error) {
	return m.file(ctx, "image", req.OutputPath, req.Prompt, "image/png")
}

func (m *Mock) GenerateAudio(ctx context.Context, req AudioRequest) (*Result, error) {
	return m.file(ctx, "audio", req.OutputPath, req.Text, "audio/mpeg")
}

func (m *Mock) GenerateVideo(ctx context.Context, req VideoRequest) (*Result, error) {
	return m.file(ctx, "video", req.OutputPath, req.Prompt, "video/mp4")
}

func (m *Mock) file(ctx context.Context, op, outputPath, content, mime string) (*Result, error) {
	if err := m.begin(ctx, op); err != nil {
		return nil, err
	}
	if err := writeFile(ctx, m.Storage, outputPath, []byte(strings.TrimSpace(content))); err != nil {
		return nil, err
	}
	return &Result{
		Filepaths: []string{outputPath},
		MimeType:  mimeByExt(outputPath, mime),
	}, nil
}

var _ Provider = (*Mock)(nil)
