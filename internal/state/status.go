package state

import (
	"time"

	"github.com/shaiso/Actionflow/internal/domain"
)

// ActionStatus — вычисленный статус action: метаданные выполнения
// плюс диагностика графа зависимостей.
type ActionStatus struct {
	// ActionID — ID action.
	ActionID string `json:"actionId"`

	// Playable — action можно запустить: нет цикла и все зависимости имеют значения.
	Playable bool `json:"playable"`

	// Executed — последнее выполнение завершилось успешно.
	Executed bool `json:"executed"`

	// Status — статус выполнения.
	Status domain.ExecStatus `json:"status"`

	// Error — сообщение об ошибке (только при Status = error).
	Error string `json:"error,omitempty"`

	// Attempts — количество попыток в рамках сессии.
	Attempts int `json:"attempts"`

	// ExecutedAt — время последнего завершения.
	ExecutedAt *time.Time `json:"executedAt,omitempty"`

	// DurationMs — длительность последнего выполнения.
	DurationMs int64 `json:"duration,omitempty"`

	// MissingDependencies — ключи зависимостей без значения.
	MissingDependencies []string `json:"missingDependencies"`

	// HasCircularDependency — action лежит на цикле.
	HasCircularDependency bool `json:"hasCircularDependency"`

	// CyclePath — цикл, через который проходит action ([a, b, a]).
	CyclePath []string `json:"cyclePath,omitempty"`
}

// MetaPatch — частичное обновление метаданных выполнения.
// nil поля не меняются.
type MetaPatch struct {
	Status     *domain.ExecStatus
	ExecutedAt *time.Time
	Error      *string
	Attempts   *int
	DurationMs *int64
}

// apply применяет патч к метаданным.
//
// Attempts не уменьшается. Error сохраняется только при статусе error.
func (p MetaPatch) apply(meta domain.ExecutionMeta) domain.ExecutionMeta {
	if p.Status != nil {
		meta.Status = *p.Status
	}
	if p.ExecutedAt != nil {
		t := *p.ExecutedAt
		meta.ExecutedAt = &t
	}
	if p.Error != nil {
		meta.Error = *p.Error
	}
	if p.Attempts != nil && *p.Attempts > meta.Attempts {
		meta.Attempts = *p.Attempts
	}
	if p.DurationMs != nil {
		meta.DurationMs = *p.DurationMs
	}
	if meta.Status != domain.ExecStatusError {
		meta.Error = ""
	}
	return meta
}

// EventKind — тип изменения в Store.
type EventKind string

const (
	// EventValueSet — значение записано в Value Bag.
	EventValueSet EventKind = "value_set"

	// EventValueDeleted — значение удалено из Value Bag.
	EventValueDeleted EventKind = "value_deleted"

	// EventMetaChanged — изменились метаданные выполнения action.
	EventMetaChanged EventKind = "meta_changed"

	// EventStructureChanged — изменился список action или полей ввода.
	EventStructureChanged EventKind = "structure_changed"

	// EventStateLoaded — состояние загружено из снимка.
	EventStateLoaded EventKind = "state_loaded"
)

// Event — уведомление об изменении состояния.
type Event struct {
	Kind     EventKind         `json:"kind"`
	Key      string            `json:"key,omitempty"`
	ActionID string            `json:"actionId,omitempty"`
	Status   domain.ExecStatus `json:"status,omitempty"`
	Time     time.Time         `json:"time"`
}

// Listener — подписчик на изменения.
type Listener func(Event)

// Ticket — отметка о начатом выполнении action.
//
// Завершить выполнение можно только актуальным тикетом: после отмены,
// сброса или нового запуска старый тикет игнорируется.
type Ticket struct {
	ActionID  string
	StartedAt time.Time
	seq       uint64
}
