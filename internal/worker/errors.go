package worker

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки воркера.
var (
	// ErrMissingDependency — у action нет значений, от которых он зависит.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrCircularDependency — action лежит на цикле зависимостей.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrProviderError — сервис генерации вернул ошибку.
	ErrProviderError = errors.New("provider error")

	// ErrUnsupportedActionType — нет executor'а для данного типа action.
	ErrUnsupportedActionType = errors.New("unsupported action type")

	// ErrFileAvailabilityTimeout — файл не стал доступен по публичному URL
	// за отведённое число проверок.
	ErrFileAvailabilityTimeout = errors.New("file availability timeout")

	// ErrExecutionSuperseded — результат не записан: выполнение было
	// отменено или перезапущено, пока шла генерация.
	ErrExecutionSuperseded = errors.New("execution superseded")

	// ErrNoFileProduced — файловый action завершился без файла.
	ErrNoFileProduced = errors.New("no file produced")
)

// MissingDependencyError — список отсутствующих значений для action.
type MissingDependencyError struct {
	ActionID string
	Keys     []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s: action %s needs %s", ErrMissingDependency, e.ActionID, strings.Join(e.Keys, ", "))
}

func (e *MissingDependencyError) Unwrap() error {
	return ErrMissingDependency
}
