package state

import "errors"

// Ошибки хранилища состояния.
var (
	// ErrUnknownAction — action с таким ID нет в приложении.
	ErrUnknownAction = errors.New("unknown action")

	// ErrSerialization — значение невозможно скопировать структурно
	// (цикл ссылок, канал, функция).
	ErrSerialization = errors.New("value serialization failed")

	// ErrNilState — передан пустой снимок состояния.
	ErrNilState = errors.New("execution state is nil")
)
