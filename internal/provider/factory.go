package provider

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/shaiso/Actionflow/internal/storage"
)

// NewFromEnv выбирает провайдера по переменным окружения.
//
//   - LLM_PROVIDER=openai|gemini|mock
//   - OpenAI: OPENAI_API_KEY, OPENAI_API_BASE
//   - Gemini: GOOGLE_API_KEY, LLM_MODEL
//
// Без LLM_PROVIDER провайдер определяется по наличию ключа.
// Если ничего не настроено, возвращается Mock.
func NewFromEnv(ctx context.Context, s storage.Storage, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	openAIKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	googleKey := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))

	newOpenAI := func() (Provider, error) {
		p, err := NewOpenAI(OpenAIConfig{
			APIKey:  openAIKey,
			BaseURL: os.Getenv("OPENAI_API_BASE"),
			Storage: s,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	newGemini := func() (Provider, error) {
		p, err := NewGemini(ctx, GeminiConfig{
			APIKey: googleKey,
			Model:  strings.TrimSpace(os.Getenv("LLM_MODEL")),
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	switch strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER"))) {
	case "openai":
		return newOpenAI()
	case "gemini":
		return newGemini()
	case "mock":
		return NewMock(s), nil
	}

	if openAIKey != "" {
		return newOpenAI()
	}
	if googleKey != "" {
		return newGemini()
	}

	logger.Warn("no generation provider configured, using mock")
	return NewMock(s), nil
}
