package session

import "errors"

// Ошибки сессии.
var (
	// ErrBusy — сессия уже выполняет action или проход.
	ErrBusy = errors.New("session is busy")

	// ErrClosed — сессия закрыта.
	ErrClosed = errors.New("session is closed")

	// ErrNoApp — не задано приложение.
	ErrNoApp = errors.New("session: app is required")

	// ErrNoProvider — не задан сервис генерации.
	ErrNoProvider = errors.New("session: provider is required")

	// ErrNoStorage — не задано хранилище.
	ErrNoStorage = errors.New("session: storage is required")
)
