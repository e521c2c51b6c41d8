package domain

import (
	"time"
)

// FileRef — ссылка на файл, созданный action (изображение, аудио, видео)
// или загруженный пользователем.
//
// В Value Bag хранится в виде JSON-объекта (см. ToMap), поэтому
// переживает сохранение и загрузку состояния без потерь.
type FileRef struct {
	// Filepath — путь файла в storage.
	Filepath string `json:"filepath"`

	// Base64 — содержимое файла в base64 (если известно).
	Base64 string `json:"base64,omitempty"`

	// PublicURL — публичный URL файла (после проверки доступности).
	PublicURL string `json:"publicUrl,omitempty"`

	// Content — текстовое содержимое (для текстовых файлов).
	Content string `json:"content,omitempty"`

	// MimeType — MIME тип файла.
	MimeType string `json:"mimeType,omitempty"`
}

// ToMap возвращает представление FileRef для Value Bag.
func (f FileRef) ToMap() map[string]any {
	m := map[string]any{"filepath": f.Filepath}
	if f.Base64 != "" {
		m["base64"] = f.Base64
	}
	if f.PublicURL != "" {
		m["publicUrl"] = f.PublicURL
	}
	if f.Content != "" {
		m["content"] = f.Content
	}
	if f.MimeType != "" {
		m["mimeType"] = f.MimeType
	}
	return m
}

// Text возвращает текстовое представление файла для подстановки в промпт:
// content, затем base64, затем filepath.
func (f FileRef) Text() string {
	switch {
	case f.Content != "":
		return f.Content
	case f.Base64 != "":
		return f.Base64
	default:
		return f.Filepath
	}
}

// AsFileRef распознаёт FileRef в произвольном значении из Value Bag.
// Поддерживает FileRef, *FileRef и map с непустым строковым "filepath".
func AsFileRef(v any) (FileRef, bool) {
	switch f := v.(type) {
	case FileRef:
		return f, f.Filepath != ""
	case *FileRef:
		if f == nil {
			return FileRef{}, false
		}
		return *f, f.Filepath != ""
	case map[string]any:
		path, ok := f["filepath"].(string)
		if !ok || path == "" {
			return FileRef{}, false
		}
		ref := FileRef{Filepath: path}
		ref.Base64, _ = f["base64"].(string)
		ref.PublicURL, _ = f["publicUrl"].(string)
		ref.Content, _ = f["content"].(string)
		ref.MimeType, _ = f["mimeType"].(string)
		return ref, true
	default:
		return FileRef{}, false
	}
}

// ExecutionMeta — метаданные выполнения одного action.
type ExecutionMeta struct {
	// Status — текущий статус выполнения.
	Status ExecStatus `json:"status"`

	// ExecutedAt — время последнего завершения (успех или ошибка).
	ExecutedAt *time.Time `json:"executedAt,omitempty"`

	// Error — сообщение об ошибке, только при Status = error.
	Error string `json:"error,omitempty"`

	// Attempts — счётчик попыток в рамках сессии. Только растёт.
	Attempts int `json:"attempts,omitempty"`

	// DurationMs — длительность последнего выполнения в миллисекундах.
	DurationMs int64 `json:"duration,omitempty"`

	// Extra — неизвестные поля из сохранённого состояния.
	// Сохраняются при повторной записи.
	Extra map[string]RawField `json:"-"`
}

// Duration возвращает длительность последнего выполнения.
func (m ExecutionMeta) Duration() time.Duration {
	return time.Duration(m.DurationMs) * time.Millisecond
}

// Clone возвращает независимую копию метаданных.
func (m ExecutionMeta) Clone() ExecutionMeta {
	out := m
	if m.ExecutedAt != nil {
		t := *m.ExecutedAt
		out.ExecutedAt = &t
	}
	if m.Extra != nil {
		out.Extra = make(map[string]RawField, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = append(RawField(nil), v...)
		}
	}
	return out
}

// IdleMeta возвращает метаданные action, который ещё не выполнялся.
func IdleMeta() ExecutionMeta {
	return ExecutionMeta{Status: ExecStatusIdle}
}

// ExecutionState — сохраняемый снимок состояния выполнения приложения.
//
// Формат JSON:
//
//	{
//	  "values":        { "<filename>": <any> },
//	  "executionMeta": { "<actionId>": {status, executedAt?, error?, attempts?, duration?} },
//	  "timestamp":     "2024-01-01T00:00:00Z"
//	}
//
// Неизвестные поля сохраняются (Extra), отсутствующие — пустые.
type ExecutionState struct {
	// Values — Value Bag.
	Values map[string]any `json:"values"`

	// ExecutionMeta — метаданные по action.
	ExecutionMeta map[string]ExecutionMeta `json:"executionMeta"`

	// Timestamp — время снимка.
	Timestamp time.Time `json:"timestamp"`

	// Extra — неизвестные поля верхнего уровня.
	Extra map[string]RawField `json:"-"`
}

// NewExecutionState создаёт пустое состояние.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		Values:        make(map[string]any),
		ExecutionMeta: make(map[string]ExecutionMeta),
		Timestamp:     time.Now().UTC(),
	}
}
