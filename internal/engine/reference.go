package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shaiso/Actionflow/internal/domain"
)

// Syntax — форма записи ссылки в тексте.
type Syntax int

const (
	// SyntaxDollarInput — ${input.key}
	SyntaxDollarInput Syntax = iota + 1

	// SyntaxBracesInput — {{input.key}}
	SyntaxBracesInput

	// SyntaxBraces — {{key}}
	SyntaxBraces

	// SyntaxAt — @key (key обязательно содержит точку)
	SyntaxAt
)

// MissingPlaceholder — формат подстановки для ссылки без значения.
const MissingPlaceholder = "[Missing: %s]"

// referencePattern распознаёт все формы ссылок.
// Порядок альтернатив важен: при совпадении на одной позиции
// выигрывает первая (поэтому {{input.x}} не читается как {{x}} с ключом "input.x").
var referencePattern = regexp.MustCompile(
	`\$\{input\.([A-Za-z0-9._-]+)\}` +
		`|\{\{input\.([A-Za-z0-9._-]+)\}\}` +
		`|\{\{([A-Za-z0-9._-]+)\}\}` +
		`|@([A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)+)`,
)

// Reference — найденная в тексте ссылка.
type Reference struct {
	// Key — ключ значения (filename поля ввода или action).
	Key string

	// Syntax — форма записи.
	Syntax Syntax

	// Start, End — границы ссылки в исходном тексте (байты).
	Start, End int
}

// FindReferences возвращает все ссылки в тексте в порядке появления.
//
// Форма @key не распознаётся, если перед @ стоит буква или цифра
// (например, адрес почты ana@example.com).
func FindReferences(text string) []Reference {
	if text == "" {
		return nil
	}

	matches := referencePattern.FindAllStringSubmatchIndex(text, -1)
	refs := make([]Reference, 0, len(matches))

	for _, m := range matches {
		for group := 1; group <= 4; group++ {
			start, end := m[2*group], m[2*group+1]
			if start < 0 {
				continue
			}

			syntax := Syntax(group)
			if syntax == SyntaxAt && m[0] > 0 && isWordByte(text[m[0]-1]) {
				break
			}

			refs = append(refs, Reference{
				Key:    text[start:end],
				Syntax: syntax,
				Start:  m[0],
				End:    m[1],
			})
			break
		}
	}

	return refs
}

// ExtractReferences возвращает ключи всех ссылок в тексте без повторов,
// в порядке первого появления. Value Bag не требуется.
func ExtractReferences(texts ...string) []string {
	seen := make(map[string]bool)
	keys := make([]string, 0)

	for _, text := range texts {
		for _, ref := range FindReferences(text) {
			if seen[ref.Key] {
				continue
			}
			seen[ref.Key] = true
			keys = append(keys, ref.Key)
		}
	}

	return keys
}

// Resolve подставляет значения вместо ссылок.
// Ссылка без значения (ключ отсутствует или nil) заменяется на "[Missing: key]".
func Resolve(text string, values map[string]any) string {
	refs := FindReferences(text)
	if len(refs) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	last := 0
	for _, ref := range refs {
		b.WriteString(text[last:ref.Start])

		if v, ok := values[ref.Key]; ok && v != nil {
			b.WriteString(ValueToText(v))
		} else {
			b.WriteString(fmt.Sprintf(MissingPlaceholder, ref.Key))
		}

		last = ref.End
	}
	b.WriteString(text[last:])

	return b.String()
}

// ResolveValue подставляет значения во все строки внутри value.
// Рекурсивно обрабатывает map и slice, остальные типы возвращает как есть.
func ResolveValue(value any, values map[string]any) any {
	switch v := value.(type) {
	case nil:
		return nil

	case string:
		return Resolve(v, values)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = ResolveValue(val, values)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = ResolveValue(val, values)
		}
		return result

	case map[string]string:
		result := make(map[string]string, len(v))
		for key, val := range v {
			result[key] = Resolve(val, values)
		}
		return result

	case []string:
		result := make([]string, len(v))
		for i, val := range v {
			result[i] = Resolve(val, values)
		}
		return result

	default:
		return value
	}
}

// ResolveConfig — ResolveValue для конфигурации action.
func ResolveConfig(config map[string]any, values map[string]any) map[string]any {
	if config == nil {
		return make(map[string]any)
	}
	return ResolveValue(config, values).(map[string]any)
}

// ValueToText приводит значение из Value Bag к тексту для подстановки.
//
// Файл (FileRef) → content, base64 или filepath (в этом порядке).
// Строка → как есть. Числа и bool → обычная текстовая форма.
// Остальное → JSON.
func ValueToText(v any) string {
	if ref, ok := domain.AsFileRef(v); ok {
		return ref.Text()
	}

	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
