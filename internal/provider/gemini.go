package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// Gemini — клиент Google Generative AI. Поддерживает только текст и объекты.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// GeminiConfig — конфигурация клиента Gemini.
type GeminiConfig struct {
	APIKey string
	Model  string // default: gemini-1.5-flash
	Logger *slog.Logger
}

// NewGemini создаёт клиент Gemini.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gemini{client: client, model: model, logger: logger}, nil
}

// Name возвращает имя провайдера.
func (g *Gemini) Name() string { return "gemini" }

// Close закрывает клиент.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// modelFor выбирает модель: модели других провайдеров (gpt-4o-mini и т.п.)
// заменяются моделью по умолчанию.
func (g *Gemini) modelFor(requested string, temperature float64) *genai.GenerativeModel {
	name := g.model
	if strings.HasPrefix(requested, "gemini") {
		name = requested
	}
	m := g.client.GenerativeModel(name)
	m.SetTemperature(float32(temperature))
	return m
}

// GenerateText генерирует текст.
func (g *Gemini) GenerateText(ctx context.Context, req TextRequest) (*Result, error) {
	m := g.modelFor(req.Model, req.Temperature)

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	text := firstText(resp)
	if text == "" {
		return nil, fmt.Errorf("%w: empty candidates", ErrMalformedResponse)
	}
	return &Result{Text: text}, nil
}

// GenerateObject генерирует JSON объект. Схема передаётся в промпте.
func (g *Gemini) GenerateObject(ctx context.Context, req ObjectRequest) (*Result, error) {
	m := g.modelFor(req.Model, req.Temperature)
	m.ResponseMIMEType = "application/json"

	prompt := req.Prompt
	if len(req.Schema) > 0 {
		schema, err := json.Marshal(req.Schema)
		if err == nil {
			prompt += "\n\nRespond with JSON matching this schema:\n" + string(schema)
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	text := firstText(resp)
	object, err := ParseObject(text)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Object: object}, nil
}

func (g *Gemini) GenerateImage(ctx context.Context, req ImageRequest) (*Result, error) {
	return nil, fmt.Errorf("%w: gemini image", ErrNotSupported)
}

func (g *Gemini) GenerateAudio(ctx context.Context, req AudioRequest) (*Result, error) {
	return nil, fmt.Errorf("%w: gemini audio", ErrNotSupported)
}

func (g *Gemini) GenerateVideo(ctx context.Context, req VideoRequest) (*Result, error) {
	return nil, fmt.Errorf("%w: gemini video", ErrNotSupported)
}

func firstText(r *genai.GenerateContentResponse) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

var _ Provider = (*Gemini)(nil)
