package worker

import (
	"context"
	"strconv"
	"strings"

	"github.com/shaiso/Actionflow/internal/provider"
)

// bestValue — значение config, означающее "выбрать по умолчанию".
const bestValue = "Best"

// Параметры генерации по умолчанию.
const (
	defaultTextModel       = "gpt-4o-mini"
	defaultTextTemperature = 0.7
	defaultJSONTemperature = 0.2
	defaultImageModel      = "dall-e-3"
	defaultImageSize       = "1024x1024"
	defaultAudioModel      = "tts-1"
	defaultAudioVoice      = "alloy"
	defaultAudioFormat     = "mp3"
	defaultVideoModel      = "default"
	defaultVideoDuration   = 5
)

// TextExecutor — executor для generate-text.
//
// Config:
//   - model (string). Default: gpt-4o-mini
//   - temperature (number). Default: 0.7
type TextExecutor struct{}

func (TextExecutor) Execute(ctx context.Context, p provider.Provider, req Request) (*provider.Result, error) {
	return p.GenerateText(ctx, provider.TextRequest{
		Prompt:      req.Prompt,
		Model:       getString(req.Config, "model", defaultTextModel),
		Temperature: getFloat(req.Config, "temperature", defaultTextTemperature),
	})
}

// JSONExecutor — executor для generate-json.
//
// Config:
//   - model (string). Default: gpt-4o-mini
//   - temperature (number). Default: 0.2
//   - schema (object): JSON Schema результата
type JSONExecutor struct{}

func (JSONExecutor) Execute(ctx context.Context, p provider.Provider, req Request) (*provider.Result, error) {
	schema, _ := req.Config["schema"].(map[string]any)
	return p.GenerateObject(ctx, provider.ObjectRequest{
		Prompt:      req.Prompt,
		Model:       getString(req.Config, "model", defaultTextModel),
		Temperature: getFloat(req.Config, "temperature", defaultJSONTemperature),
		Schema:      schema,
	})
}

// ImageExecutor — executor для generate-image.
//
// Config:
//   - model (string). Default: dall-e-3
//   - size (string). Default: 1024x1024
type ImageExecutor struct{}

func (ImageExecutor) Execute(ctx context.Context, p provider.Provider, req Request) (*provider.Result, error) {
	return p.GenerateImage(ctx, provider.ImageRequest{
		Prompt:     req.Prompt,
		Model:      getString(req.Config, "model", defaultImageModel),
		Size:       getString(req.Config, "size", defaultImageSize),
		OutputPath: req.OutputPath,
	})
}

// AudioExecutor — executor для generate-audio. Промпт — озвучиваемый текст.
//
// Config:
//   - model (string). Default: tts-1
//   - voice (string). Default: alloy
//   - format (string). Default: mp3
type AudioExecutor struct{}

func (AudioExecutor) Execute(ctx context.Context, p provider.Provider, req Request) (*provider.Result, error) {
	return p.GenerateAudio(ctx, provider.AudioRequest{
		Text:       req.Prompt,
		Model:      getString(req.Config, "model", defaultAudioModel),
		Voice:      getString(req.Config, "voice", defaultAudioVoice),
		Format:     getString(req.Config, "format", defaultAudioFormat),
		OutputPath: req.OutputPath,
	})
}

// VideoExecutor — executor для generate-video.
//
// Config:
//   - model (string). Default: default
//   - duration (number): секунды. Default: 5
type VideoExecutor struct{}

func (VideoExecutor) Execute(ctx context.Context, p provider.Provider, req Request) (*provider.Result, error) {
	return p.GenerateVideo(ctx, provider.VideoRequest{
		Prompt:          req.Prompt,
		Model:           getString(req.Config, "model", defaultVideoModel),
		DurationSeconds: getInt(req.Config, "duration", defaultVideoDuration),
		OutputPath:      req.OutputPath,
	})
}

// getString извлекает строку из config. Пустое значение и "Best" → def.
func getString(config map[string]any, key, def string) string {
	v, ok := config[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	s = strings.TrimSpace(s)
	if s == "" || s == bestValue {
		return def
	}
	return s
}

// getFloat извлекает число из config. Принимает числа и числовые строки.
func getFloat(config map[string]any, key string, def float64) float64 {
	switch v := config[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if v == "" || v == bestValue {
			return def
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// getInt извлекает целое из config. Дробная часть отбрасывается.
func getInt(config map[string]any, key string, def int) int {
	f := getFloat(config, key, float64(def))
	if f <= 0 {
		return def
	}
	return int(f)
}
