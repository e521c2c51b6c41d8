package api

import (
	"github.com/shaiso/Actionflow/internal/engine"
	"github.com/shaiso/Actionflow/internal/state"
)

// State DTOs

// StateResponse — текущее состояние выполнения.
type StateResponse struct {
	SessionID string               `json:"session_id"`
	Language  string               `json:"language,omitempty"`
	Busy      bool                 `json:"busy"`
	Values    map[string]any       `json:"values"`
	Actions   []state.ActionStatus `json:"actions"`
}

// GraphResponse — граф зависимостей приложения.
type GraphResponse struct {
	Order        []string            `json:"order"`
	Dependencies map[string][]string `json:"dependencies"`
	Edges        map[string][]string `json:"edges"`
	Unresolved   map[string][]string `json:"unresolved,omitempty"`
	Cycles       [][]string          `json:"cycles,omitempty"`
}

// GraphFromEngine конвертирует engine.Graph в GraphResponse.
func GraphFromEngine(g *engine.Graph) GraphResponse {
	return GraphResponse{
		Order:        g.Order(),
		Dependencies: g.Dependencies,
		Edges:        g.Edges,
		Unresolved:   g.Unresolved,
		Cycles:       g.Cycles,
	}
}

// Value DTOs

// SetValueRequest — запрос на запись значения в Value Bag.
type SetValueRequest struct {
	Value any `json:"value"`
}

// ValueResponse — значение из Value Bag.
type ValueResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Language DTOs

// SetLanguageRequest — запрос на смену языка промптов.
type SetLanguageRequest struct {
	Language string `json:"language"`
}

// Run DTOs

// RunRequest — параметры прохода по всем action.
type RunRequest struct {
	SkipSucceeded bool `json:"skip_succeeded,omitempty"`
}

// RunAcceptedResponse — ответ на асинхронный запуск.
type RunAcceptedResponse struct {
	SessionID string `json:"session_id"`
	ActionID  string `json:"action_id,omitempty"`
}

// CancelResponse — результат отмены.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}
