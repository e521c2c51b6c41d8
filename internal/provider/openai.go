package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/shaiso/Actionflow/internal/storage"
)

// Default configuration values.
const (
	defaultOpenAIBase    = "https://api.openai.com"
	defaultHTTPTimeout   = 120 * time.Second
	defaultMaxRetries    = 3
	defaultRetryBaseWait = 500 * time.Millisecond
)

// OpenAI — клиент HTTP API, совместимого с OpenAI.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	storage    storage.Storage
	maxRetries int
	retryWait  time.Duration
	logger     *slog.Logger
}

// OpenAIConfig — конфигурация клиента OpenAI.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default: https://api.openai.com

	// HTTPClient — клиент для запросов (default: таймаут 120s).
	HTTPClient *http.Client

	// Storage — куда записывать файловые результаты.
	Storage storage.Storage

	// Retry configuration
	MaxRetries int           // попыток на запрос (default: 3)
	RetryWait  time.Duration // базовая пауза, растёт экспоненциально (default: 500ms)

	// Logger
	Logger *slog.Logger
}

// NewOpenAI создаёт клиент OpenAI.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBase
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = defaultRetryBaseWait
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		storage:    cfg.Storage,
		maxRetries: maxRetries,
		retryWait:  retryWait,
		logger:     logger,
	}, nil
}

// Name возвращает имя провайдера.
func (c *OpenAI) Name() string { return "openai" }

// GenerateText вызывает Chat Completions.
func (c *OpenAI) GenerateText(ctx context.Context, req TextRequest) (*Result, error) {
	body := map[string]any{
		"model":       req.Model,
		"messages":    []map[string]string{{"role": "user", "content": req.Prompt}},
		"temperature": req.Temperature,
	}

	resp, err := c.post(ctx, "/v1/chat/completions", body)
	if err != nil {
		return nil, err
	}

	content := gjson.GetBytes(resp, "choices.0.message.content")
	if !content.Exists() {
		return nil, fmt.Errorf("%w: no choices in completion", ErrMalformedResponse)
	}
	return &Result{Text: content.String()}, nil
}

// GenerateObject вызывает Chat Completions в JSON режиме.
// Со схемой используется response_format json_schema, без неё — json_object.
func (c *OpenAI) GenerateObject(ctx context.Context, req ObjectRequest) (*Result, error) {
	format := map[string]any{"type": "json_object"}
	if len(req.Schema) > 0 {
		format = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "result",
				"schema": req.Schema,
			},
		}
	}

	prompt := req.Prompt
	if !strings.Contains(strings.ToLower(prompt), "json") {
		prompt += "\n\nRespond with a JSON object."
	}

	body := map[string]any{
		"model":           req.Model,
		"messages":        []map[string]string{{"role": "user", "content": prompt}},
		"temperature":     req.Temperature,
		"response_format": format,
	}

	resp, err := c.post(ctx, "/v1/chat/completions", body)
	if err != nil {
		return nil, err
	}

	content := gjson.GetBytes(resp, "choices.0.message.content")
	if !content.Exists() {
		return nil, fmt.Errorf("%w: no choices in completion", ErrMalformedResponse)
	}

	object, err := ParseObject(content.String())
	if err != nil {
		return nil, err
	}
	return &Result{Text: content.String(), Object: object}, nil
}

// GenerateImage вызывает Images API и сохраняет изображение в storage.
func (c *OpenAI) GenerateImage(ctx context.Context, req ImageRequest) (*Result, error) {
	body := map[string]any{
		"model":           req.Model,
		"prompt":          req.Prompt,
		"size":            req.Size,
		"n":               1,
		"response_format": "b64_json",
	}

	resp, err := c.post(ctx, "/v1/images/generations", body)
	if err != nil {
		return nil, err
	}

	encoded := gjson.GetBytes(resp, "data.0.b64_json")
	if !encoded.Exists() {
		return nil, fmt.Errorf("%w: no image data", ErrMalformedResponse)
	}
	data, err := base64.StdEncoding.DecodeString(encoded.String())
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrMalformedResponse, err)
	}

	if err := writeFile(ctx, c.storage, req.OutputPath, data); err != nil {
		return nil, err
	}

	return &Result{
		Text:      gjson.GetBytes(resp, "data.0.revised_prompt").String(),
		Filepaths: []string{req.OutputPath},
		MimeType:  mimeByExt(req.OutputPath, "image/png"),
	}, nil
}

// GenerateAudio вызывает Speech API и сохраняет аудио в storage.
func (c *OpenAI) GenerateAudio(ctx context.Context, req AudioRequest) (*Result, error) {
	body := map[string]any{
		"model":           req.Model,
		"input":           req.Text,
		"voice":           req.Voice,
		"response_format": req.Format,
	}

	data, err := c.post(ctx, "/v1/audio/speech", body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrMalformedResponse)
	}

	if err := writeFile(ctx, c.storage, req.OutputPath, data); err != nil {
		return nil, err
	}

	return &Result{
		Filepaths: []string{req.OutputPath},
		MimeType:  mimeByExt(req.OutputPath, "audio/mpeg"),
	}, nil
}

// GenerateVideo не поддерживается OpenAI-совместимым API.
func (c *OpenAI) GenerateVideo(ctx context.Context, req VideoRequest) (*Result, error) {
	return nil, fmt.Errorf("%w: openai video", ErrNotSupported)
}

// post отправляет JSON запрос и возвращает тело ответа.
//
// Повторяет запрос при сетевом таймауте и статусах 408, 429, 5xx
// с экспоненциальной паузой. Пауза прерывается отменой ctx.
func (c *OpenAI) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		data, retry, err := c.do(ctx, path, payload)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if !retry {
			return nil, err
		}

		c.logger.Warn("provider request failed, retrying",
			"provider", c.Name(),
			"path", path,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, lastErr
}

func (c *OpenAI) do(ctx context.Context, path string, payload []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, isTimeout(err), fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, false, nil
	}

	msg := gjson.GetBytes(data, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	retry := resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500
	return nil, retry, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, msg)
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}

// ParseObject разбирает JSON ответ модели. Допускает обёртку в markdown-блок ```json.
func ParseObject(text string) (any, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: invalid JSON object", ErrMalformedResponse)
	}

	var object any
	if err := json.Unmarshal([]byte(text), &object); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return object, nil
}

var _ Provider = (*OpenAI)(nil)
