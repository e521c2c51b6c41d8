package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Actionflow/internal/domain"
	"github.com/shaiso/Actionflow/internal/provider"
)

// Executor — интерфейс для выполнения конкретного типа action.
//
// Реализации: TextExecutor, JSONExecutor, ImageExecutor, AudioExecutor, VideoExecutor.
//
// Request содержит промпт и config с уже подставленными ссылками.
type Executor interface {
	Execute(ctx context.Context, p provider.Provider, req Request) (*provider.Result, error)
}

// Request — вход executor'а.
type Request struct {
	// ActionID — для логов.
	ActionID string

	// Prompt — промпт выбранного языка с подставленными ссылками.
	Prompt string

	// Config — config action с подставленными ссылками.
	Config map[string]any

	// OutputPath — путь файла-результата в storage (для файловых типов).
	OutputPath string
}

// Registry — реестр executor'ов по типу action.
type Registry struct {
	executors map[domain.ActionType]Executor
}

// NewRegistry создаёт реестр с executor'ами для всех типов action.
func NewRegistry() *Registry {
	r := &Registry{executors: make(map[domain.ActionType]Executor)}
	r.Register(domain.ActionTypeGenerateText, TextExecutor{})
	r.Register(domain.ActionTypeGenerateJSON, JSONExecutor{})
	r.Register(domain.ActionTypeGenerateImage, ImageExecutor{})
	r.Register(domain.ActionTypeGenerateAudio, AudioExecutor{})
	r.Register(domain.ActionTypeGenerateVideo, VideoExecutor{})
	return r
}

// Register добавляет executor для типа action.
func (r *Registry) Register(actionType domain.ActionType, executor Executor) {
	r.executors[actionType] = executor
}

// Get возвращает executor для типа action.
func (r *Registry) Get(actionType domain.ActionType) (Executor, error) {
	executor, ok := r.executors[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedActionType, actionType)
	}
	return executor, nil
}
