package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Actionflow/internal/domain"
	"github.com/shaiso/Actionflow/internal/state"
)

// ResultStatus — исход action в проходе.
type ResultStatus string

const (
	ResultSucceeded ResultStatus = "succeeded"
	ResultFailed    ResultStatus = "failed"
	ResultSkipped   ResultStatus = "skipped"
	ResultCancelled ResultStatus = "cancelled"
)

// ActionResult — исход одного action.
type ActionResult struct {
	ActionID string       `json:"actionId"`
	Status   ResultStatus `json:"status"`

	// Error — сообщение об ошибке (failed, cancelled).
	Error string `json:"error,omitempty"`

	// Reason — почему action пропущен (skipped).
	Reason string `json:"reason,omitempty"`

	// DurationMs — длительность выполнения.
	DurationMs int64 `json:"durationMs,omitempty"`

	// Value — записанное значение (succeeded).
	Value any `json:"value,omitempty"`
}

// Report — отчёт о проходе.
type Report struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Results    []ActionResult `json:"results"`

	// Cancelled — проход прерван отменой ctx.
	Cancelled bool `json:"cancelled,omitempty"`

	mu sync.Mutex
}

func (r *Report) add(res ActionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, res)
}

// Result возвращает исход action.
func (r *Report) Result(actionID string) (ActionResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.Results {
		if res.ActionID == actionID {
			return res, true
		}
	}
	return ActionResult{}, false
}

// Succeeded возвращает ID успешно выполненных action.
func (r *Report) Succeeded() []string { return r.ids(ResultSucceeded) }

// Failed возвращает ID action, завершившихся ошибкой.
func (r *Report) Failed() []string { return r.ids(ResultFailed) }

// Skipped возвращает ID action, которые так и не стали playable.
func (r *Report) Skipped() []string { return r.ids(ResultSkipped) }

func (r *Report) ids(status ResultStatus) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0)
	for _, res := range r.Results {
		if res.Status == status {
			out = append(out, res.ActionID)
		}
	}
	return out
}

// Duration возвращает длительность прохода.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary возвращает краткое описание прохода для логов и CLI.
func (r *Report) Summary() string {
	s := fmt.Sprintf("%d succeeded, %d failed, %d skipped",
		len(r.Succeeded()), len(r.Failed()), len(r.Skipped()))
	if r.Cancelled {
		s += " (cancelled)"
	}
	return s
}

// Progress — уведомление о ходе прохода.
type Progress struct {
	// Index — порядковый номер запущенного action (с 1).
	Index int `json:"index"`

	// Total — число action в приложении.
	Total int `json:"total"`

	ActionID string            `json:"actionId"`
	Status   domain.ExecStatus `json:"status"`
	Error    string            `json:"error,omitempty"`
}

// skipReason объясняет, почему action не был запущен.
func skipReason(st state.ActionStatus) string {
	switch {
	case st.HasCircularDependency:
		return "circular dependency: " + strings.Join(st.CyclePath, " → ")
	case len(st.MissingDependencies) > 0:
		return "missing dependencies: " + strings.Join(st.MissingDependencies, ", ")
	default:
		return "not reached"
	}
}
