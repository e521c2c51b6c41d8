package domain

import (
	"encoding/json"
	"fmt"
)

// RawField — сырое JSON значение неизвестного поля.
type RawField = json.RawMessage

var (
	executionMetaFields  = []string{"status", "executedAt", "error", "attempts", "duration"}
	executionStateFields = []string{"values", "executionMeta", "timestamp"}
)

// splitExtra возвращает поля объекта data, не входящие в known.
func splitExtra(data []byte, known []string) (map[string]RawField, error) {
	var raw map[string]RawField
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// mergeExtra добавляет extra поля к сериализованному объекту base.
// Известные поля имеют приоритет.
func mergeExtra(base []byte, extra map[string]RawField) ([]byte, error) {
	if len(extra) == 0 {
		return base, nil
	}
	var obj map[string]RawField
	if err := json.Unmarshal(base, &obj); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := obj[k]; !exists {
			obj[k] = v
		}
	}
	return json.Marshal(obj)
}

type executionMetaJSON ExecutionMeta

// MarshalJSON реализует json.Marshaler с сохранением неизвестных полей.
func (m ExecutionMeta) MarshalJSON() ([]byte, error) {
	if m.Status == "" {
		m.Status = ExecStatusIdle
	}
	base, err := json.Marshal(executionMetaJSON(m))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, m.Extra)
}

// UnmarshalJSON реализует json.Unmarshaler. Отсутствующий статус → idle.
func (m *ExecutionMeta) UnmarshalJSON(data []byte) error {
	var v executionMetaJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	extra, err := splitExtra(data, executionMetaFields)
	if err != nil {
		return err
	}
	*m = ExecutionMeta(v)
	m.Status = ParseExecStatus(string(m.Status))
	m.Extra = extra
	return nil
}

type executionStateJSON ExecutionState

// MarshalJSON реализует json.Marshaler с сохранением неизвестных полей.
func (s ExecutionState) MarshalJSON() ([]byte, error) {
	if s.Values == nil {
		s.Values = map[string]any{}
	}
	if s.ExecutionMeta == nil {
		s.ExecutionMeta = map[string]ExecutionMeta{}
	}
	base, err := json.Marshal(executionStateJSON(s))
	if err != nil {
		return nil, err
	}
	return mergeExtra(base, s.Extra)
}

// UnmarshalJSON реализует json.Unmarshaler. Отсутствующие поля → пустые.
func (s *ExecutionState) UnmarshalJSON(data []byte) error {
	var v executionStateJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	extra, err := splitExtra(data, executionStateFields)
	if err != nil {
		return err
	}
	*s = ExecutionState(v)
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	if s.ExecutionMeta == nil {
		s.ExecutionMeta = make(map[string]ExecutionMeta)
	}
	s.Extra = extra
	return nil
}

// UnmarshalJSON принимает как объект {язык: текст}, так и строку.
func (t *LocalizedText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = LocalizedText{AnyLanguage: s}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("localized text: %w", err)
	}
	*t = LocalizedText(m)
	return nil
}

// UnmarshalYAML реализует yaml.Unmarshaler (gopkg.in/yaml.v2).
func (t *LocalizedText) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		*t = LocalizedText{AnyLanguage: s}
		return nil
	}
	var m map[string]string
	if err := unmarshal(&m); err != nil {
		return fmt.Errorf("localized text: %w", err)
	}
	*t = LocalizedText(m)
	return nil
}
