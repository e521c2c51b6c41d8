package engine

import "errors"

// Ошибки валидации описания приложения.
var (
	// ErrNilApp — описание приложения отсутствует.
	ErrNilApp = errors.New("app definition is nil")

	// ErrEmptyActionID — action не имеет ID.
	ErrEmptyActionID = errors.New("action has empty ID")

	// ErrDuplicateActionID — несколько action с одинаковым ID.
	ErrDuplicateActionID = errors.New("duplicate action ID")

	// ErrUnknownActionType — неизвестный тип action.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrUnknownInputType — неизвестный тип поля ввода.
	ErrUnknownInputType = errors.New("unknown input type")

	// ErrEmptyFilename — у action или поля ввода нет filename.
	ErrEmptyFilename = errors.New("empty filename")

	// ErrInvalidFilename — filename содержит символы, недопустимые в ссылках.
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrDuplicateFilename — filename используется несколько раз.
	ErrDuplicateFilename = errors.New("duplicate filename")
)

// Ошибки загрузки описания приложения.
var (
	// ErrParseApp — описание не удалось разобрать.
	ErrParseApp = errors.New("app definition parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	ActionID string // ID action (или filename поля ввода), где произошла ошибка
	Field    string // поле, вызвавшее ошибку
	Message  string // описание ошибки
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.ActionID != "" {
		return "action " + e.ActionID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(actionID, field, message string, err error) *ValidationError {
	return &ValidationError{
		ActionID: actionID,
		Field:    field,
		Message:  message,
		Err:      err,
	}
}
