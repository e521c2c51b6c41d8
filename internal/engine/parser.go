package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v2"

	"github.com/shaiso/Actionflow/internal/domain"
)

// filenamePattern — допустимые символы filename (совпадают с символами ключа ссылки).
var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ParseApp разбирает описание приложения из JSON или YAML и валидирует его.
// Формат определяется по первому значащему символу: '{' — JSON, иначе YAML.
func ParseApp(data []byte) (*domain.App, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParseApp)
	}

	var app domain.App
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &app); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseApp, err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &app); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseApp, err)
		}
		normalizeYAML(&app)
	}

	if err := Validate(&app); err != nil {
		return nil, err
	}

	return &app, nil
}

// LoadAppFile читает и разбирает файл с описанием приложения.
func LoadAppFile(path string) (*domain.App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read app file: %w", err)
	}
	return ParseApp(data)
}

// normalizeYAML приводит вложенные map[interface{}]interface{} (yaml.v2)
// к map[string]any, чтобы конфигурация сериализовалась в JSON.
func normalizeYAML(app *domain.App) {
	for i := range app.Actions {
		if app.Actions[i].Config != nil {
			app.Actions[i].Config = normalizeYAMLValue(app.Actions[i].Config).(map[string]any)
		}
	}
	for i := range app.Inputs {
		app.Inputs[i].DefaultValue = normalizeYAMLValue(app.Inputs[i].DefaultValue)
	}
}

func normalizeYAMLValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAMLValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAMLValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAMLValue(item)
		}
		return out
	default:
		return v
	}
}

// Validate выполняет полную валидацию описания приложения.
//
// Проверяет:
// - Непустые и уникальные ID action
// - Известные типы action и полей ввода
// - Непустые, допустимые и уникальные filename (общее пространство для полей и action)
//
// Циклы не проверяются: это диагностика графа, а не ошибка описания.
func Validate(app *domain.App) error {
	if app == nil {
		return ErrNilApp
	}

	filenames := make(map[string]bool)

	for i := range app.Inputs {
		if err := validateInput(&app.Inputs[i], filenames); err != nil {
			return err
		}
	}

	actionIDs := make(map[string]bool)
	for i := range app.Actions {
		if err := ValidateAction(&app.Actions[i], actionIDs, filenames); err != nil {
			return err
		}
	}

	return nil
}

// ValidateAction валидирует один action.
// actionIDs и filenames — уже встреченные ID и filename (для проверки уникальности).
func ValidateAction(action *domain.Action, actionIDs, filenames map[string]bool) error {
	if action.ID == "" {
		return NewValidationError("", "id", "action has empty ID", ErrEmptyActionID)
	}

	if actionIDs[action.ID] {
		return NewValidationError(action.ID, "id",
			fmt.Sprintf("duplicate action ID: %s", action.ID), ErrDuplicateActionID)
	}
	actionIDs[action.ID] = true

	if action.Type == "" {
		return NewValidationError(action.ID, "type", "action has empty type", ErrUnknownActionType)
	}
	if !action.Type.IsValid() {
		return NewValidationError(action.ID, "type",
			fmt.Sprintf("unknown action type: %s", action.Type), ErrUnknownActionType)
	}

	return validateFilename(action.ID, action.Filename, filenames)
}

// validateInput валидирует поле ввода.
func validateInput(input *domain.InputField, filenames map[string]bool) error {
	if input.Type != "" && !input.Type.IsValid() {
		return NewValidationError(input.Filename, "type",
			fmt.Sprintf("unknown input type: %s", input.Type), ErrUnknownInputType)
	}
	return validateFilename(input.Filename, input.Filename, filenames)
}

func validateFilename(owner, filename string, filenames map[string]bool) error {
	if filename == "" {
		return NewValidationError(owner, "filename", "empty filename", ErrEmptyFilename)
	}
	if !filenamePattern.MatchString(filename) {
		return NewValidationError(owner, "filename",
			fmt.Sprintf("filename %q contains characters not allowed in references", filename), ErrInvalidFilename)
	}
	if filenames[filename] {
		return NewValidationError(owner, "filename",
			fmt.Sprintf("duplicate filename: %s", filename), ErrDuplicateFilename)
	}
	filenames[filename] = true
	return nil
}
