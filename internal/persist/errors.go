package persist

import "errors"

// Ошибки сохранения состояния.
var (
	// ErrNoStorage — не задано хранилище.
	ErrNoStorage = errors.New("persist: storage is required")

	// ErrNoStore — не задан state.Store.
	ErrNoStore = errors.New("persist: store is required")

	// ErrCorruptState — сохранённый снимок не читается как JSON.
	ErrCorruptState = errors.New("corrupt execution state")
)
