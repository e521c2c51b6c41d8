package domain

import (
	"sort"
)

// ActionType — тип action, определяет, что генерирует шаг.
type ActionType string

const (
	// ActionTypeGenerateText — генерация текста.
	ActionTypeGenerateText ActionType = "generate-text"

	// ActionTypeGenerateJSON — генерация структурированного объекта.
	ActionTypeGenerateJSON ActionType = "generate-json"

	// ActionTypeGenerateImage — генерация изображения (результат — файл).
	ActionTypeGenerateImage ActionType = "generate-image"

	// ActionTypeGenerateAudio — синтез речи/аудио (результат — файл).
	ActionTypeGenerateAudio ActionType = "generate-audio"

	// ActionTypeGenerateVideo — генерация видео (результат — файл).
	ActionTypeGenerateVideo ActionType = "generate-video"
)

// ActionTypes возвращает все известные типы action.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionTypeGenerateText,
		ActionTypeGenerateJSON,
		ActionTypeGenerateImage,
		ActionTypeGenerateAudio,
		ActionTypeGenerateVideo,
	}
}

// IsValid возвращает true, если тип известен движку.
func (t ActionType) IsValid() bool {
	for _, known := range ActionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ProducesFile возвращает true для типов, результат которых — файл в storage.
func (t ActionType) ProducesFile() bool {
	switch t {
	case ActionTypeGenerateImage, ActionTypeGenerateAudio, ActionTypeGenerateVideo:
		return true
	default:
		return false
	}
}

// InputType — тип поля ввода.
type InputType string

const (
	InputTypeText   InputType = "text"
	InputTypeSelect InputType = "select"
	InputTypeImage  InputType = "image"
	InputTypeAudio  InputType = "audio"
	InputTypeFile   InputType = "file"
)

// IsValid возвращает true, если тип поля известен.
func (t InputType) IsValid() bool {
	switch t {
	case InputTypeText, InputTypeSelect, InputTypeImage, InputTypeAudio, InputTypeFile:
		return true
	default:
		return false
	}
}

// AnyLanguage — ключ LocalizedText для текста без указания языка.
const AnyLanguage = "*"

// LocalizedText — текст в нескольких языковых вариантах (язык → текст).
//
// В JSON/YAML может быть задан как объект {"en": "...", "ru": "..."}
// или как обычная строка — тогда она сохраняется под ключом AnyLanguage.
type LocalizedText map[string]string

// Select выбирает вариант текста для языка lang.
//
// Порядок выбора:
//  1. точное совпадение lang
//  2. вариант без языка (AnyLanguage)
//  3. fallback (обычно язык по умолчанию приложения)
//  4. первый доступный язык в отсортированном порядке
//
// Возвращает текст и язык, который был выбран.
func (t LocalizedText) Select(lang, fallback string) (string, string, bool) {
	if len(t) == 0 {
		return "", "", false
	}
	for _, candidate := range []string{lang, AnyLanguage, fallback} {
		if candidate == "" {
			continue
		}
		if text, ok := t[candidate]; ok {
			return text, candidate, true
		}
	}
	langs := t.Languages()
	return t[langs[0]], langs[0], true
}

// Languages возвращает отсортированный список языков.
func (t LocalizedText) Languages() []string {
	langs := make([]string, 0, len(t))
	for lang := range t {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Variants возвращает все варианты текста в порядке Languages().
func (t LocalizedText) Variants() []string {
	langs := t.Languages()
	out := make([]string, 0, len(langs))
	for _, lang := range langs {
		out = append(out, t[lang])
	}
	return out
}

// Action — шаг пайплайна: один вызов генерации, один результат.
type Action struct {
	// ID — стабильный уникальный идентификатор action.
	ID string `json:"id" yaml:"id"`

	// Type — что генерирует action.
	Type ActionType `json:"type" yaml:"type"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Prompt — промпт по языкам. Может содержать ссылки на другие значения
	// (${input.x}, {{input.x}}, {{x}}, @file.ext).
	Prompt LocalizedText `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Config — параметры конкретного типа (model, temperature, size, voice, schema...).
	// Строковые значения тоже могут содержать ссылки.
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// Filename — ключ, под которым результат попадает в Value Bag.
	Filename string `json:"filename" yaml:"filename"`

	// State — кэш последнего известного состояния для UI.
	State ActionState `json:"state,omitempty" yaml:"state,omitempty"`
}

// Clone возвращает копию action. Config копируется на первом уровне.
func (a Action) Clone() Action {
	out := a
	if a.Prompt != nil {
		out.Prompt = make(LocalizedText, len(a.Prompt))
		for k, v := range a.Prompt {
			out.Prompt[k] = v
		}
	}
	if a.Config != nil {
		out.Config = make(map[string]any, len(a.Config))
		for k, v := range a.Config {
			out.Config[k] = v
		}
	}
	return out
}

// InputField — значение, которое вводит пользователь.
type InputField struct {
	// Filename — ключ значения в Value Bag (общее пространство имён с action).
	Filename string `json:"filename" yaml:"filename"`

	// Type — тип поля: text, select, image, audio, file.
	Type InputType `json:"type" yaml:"type"`

	// Label — подпись поля.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Required — обязательное ли поле.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// DefaultValue — значение по умолчанию (попадает в Value Bag при создании сессии).
	DefaultValue any `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`

	// Options — варианты для select.
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// App — приложение: набор полей ввода и action.
type App struct {
	// ID — идентификатор приложения. Определяет путь сохранения состояния.
	ID string `json:"id" yaml:"id"`

	// Name — имя приложения.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// DefaultLanguage — язык промптов по умолчанию.
	DefaultLanguage string `json:"defaultLanguage,omitempty" yaml:"defaultLanguage,omitempty"`

	// Inputs — поля ввода.
	Inputs []InputField `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Actions — шаги пайплайна в порядке отображения.
	Actions []Action `json:"actions" yaml:"actions"`
}

// Action возвращает action по ID или nil.
func (a *App) Action(id string) *Action {
	for i := range a.Actions {
		if a.Actions[i].ID == id {
			return &a.Actions[i]
		}
	}
	return nil
}

// ActionByFilename возвращает action, который производит filename, или nil.
func (a *App) ActionByFilename(filename string) *Action {
	for i := range a.Actions {
		if a.Actions[i].Filename == filename {
			return &a.Actions[i]
		}
	}
	return nil
}

// Input возвращает поле ввода по filename или nil.
func (a *App) Input(filename string) *InputField {
	for i := range a.Inputs {
		if a.Inputs[i].Filename == filename {
			return &a.Inputs[i]
		}
	}
	return nil
}

// Clone возвращает независимую копию приложения.
func (a *App) Clone() *App {
	if a == nil {
		return nil
	}
	out := *a
	out.Inputs = append([]InputField(nil), a.Inputs...)
	out.Actions = make([]Action, len(a.Actions))
	for i := range a.Actions {
		out.Actions[i] = a.Actions[i].Clone()
	}
	return &out
}
