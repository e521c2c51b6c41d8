package storage

import "errors"

// Ошибки хранилища.
var (
	// ErrNotFound — файл или директория не найдены.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidPath — путь пустой или выходит за пределы хранилища.
	ErrInvalidPath = errors.New("storage: invalid path")

	// ErrParentMissing — родительская директория не существует.
	ErrParentMissing = errors.New("storage: parent directory missing")
)
