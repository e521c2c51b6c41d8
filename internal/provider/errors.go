package provider

import "errors"

// Ошибки провайдеров.
var (
	// ErrNotSupported — провайдер не умеет генерировать этот тип результата.
	ErrNotSupported = errors.New("operation not supported by provider")

	// ErrRequestFailed — запрос к API завершился ошибкой.
	ErrRequestFailed = errors.New("provider request failed")

	// ErrMalformedResponse — ответ API не удалось разобрать.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrMissingAPIKey — не задан ключ API.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrNoStorage — файловый результат, но хранилище не настроено.
	ErrNoStorage = errors.New("provider has no storage for file results")
)
