package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Actionflow/internal/domain"
	"github.com/shaiso/Actionflow/internal/state"
	"github.com/shaiso/Actionflow/internal/telemetry"
	"github.com/shaiso/Actionflow/internal/worker"
)

// Executor выполняет один action. Реализуется worker.Worker.
type Executor interface {
	Execute(ctx context.Context, actionID string) (*worker.Outcome, error)
}

// Orchestrator выполняет action приложения последовательно.
//
// Orchestrator:
//   - Берёт первый playable action в порядке списка, который ещё не запускался
//   - Выполняет его через Executor
//   - Снова сканирует список сверху: успех мог разблокировать предыдущие action
//   - Продолжает после ошибок, останавливается при отмене ctx
type Orchestrator struct {
	store    *state.Store
	executor Executor

	// running — занят ли оркестратор проходом.
	running sync.Mutex

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Store — состояние выполнения приложения.
	Store *state.Store

	// Executor — исполнитель action (обычно *worker.Worker).
	Executor Executor

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:    cfg.Store,
		executor: cfg.Executor,
		logger:   logger,
	}
}

// RunOptions — параметры прохода.
type RunOptions struct {
	// SkipSucceeded — не запускать action, уже завершившиеся успешно.
	SkipSucceeded bool

	// OnProgress вызывается при старте и завершении каждого action.
	OnProgress func(Progress)
}

// RunAll выполняет все playable action.
//
// Action, которые так и не стали playable, попадают в отчёт как skipped
// с причиной. При отмене ctx выполняемый action возвращается в idle,
// проход останавливается, отчёт возвращается с Cancelled и ошибкой ctx.
func (o *Orchestrator) RunAll(ctx context.Context, opts RunOptions) (*Report, error) {
	if !o.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.running.Unlock()

	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger := telemetry.FromContext(ctx, o.logger).With("run_id", report.RunID)
	ctx = telemetry.WithLogger(ctx, logger)

	total := len(o.store.App().Actions)
	attempted := make(map[string]bool)

	logger.Info("run started", "actions", total)

	index := 0
	for {
		if err := ctx.Err(); err != nil {
			return o.cancelled(report, logger, err)
		}

		next, ok := o.nextPlayable(attempted, opts)
		if !ok {
			break
		}
		attempted[next] = true
		index++

		res, err := o.execute(ctx, next, index, total, opts.OnProgress)
		report.add(res)
		if res.Status == ResultCancelled {
			return o.cancelled(report, logger, err)
		}
	}

	for _, st := range o.store.Statuses() {
		if attempted[st.ActionID] {
			continue
		}
		if opts.SkipSucceeded && st.Status == domain.ExecStatusSuccess {
			continue
		}
		report.add(ActionResult{
			ActionID: st.ActionID,
			Status:   ResultSkipped,
			Reason:   skipReason(st),
		})
	}

	report.FinishedAt = time.Now().UTC()
	logger.Info("run finished",
		"summary", report.Summary(),
		"duration", report.Duration(),
	)
	return report, nil
}

// RunAction выполняет один action с тем же отчётом, что и RunAll.
// Action, который нельзя запустить, → ErrActionNotPlayable.
func (o *Orchestrator) RunAction(ctx context.Context, actionID string, onProgress func(Progress)) (*Report, error) {
	if !o.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.running.Unlock()

	st, err := o.store.GetActionStatus(actionID)
	if err != nil {
		return nil, err
	}
	if !st.Playable {
		return nil, fmt.Errorf("%w: %s: %s", ErrActionNotPlayable, actionID, skipReason(st))
	}

	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	res, err := o.execute(ctx, actionID, 1, 1, onProgress)
	report.add(res)
	report.FinishedAt = time.Now().UTC()

	if res.Status == ResultCancelled {
		report.Cancelled = true
		return report, err
	}
	return report, nil
}

// nextPlayable возвращает первый по списку playable action, который ещё не запускался.
func (o *Orchestrator) nextPlayable(attempted map[string]bool, opts RunOptions) (string, bool) {
	for _, st := range o.store.Statuses() {
		if attempted[st.ActionID] || !st.Playable {
			continue
		}
		if opts.SkipSucceeded && st.Status == domain.ExecStatusSuccess {
			continue
		}
		return st.ActionID, true
	}
	return "", false
}

// execute выполняет action и переводит исход в ActionResult.
func (o *Orchestrator) execute(ctx context.Context, actionID string, index, total int, onProgress func(Progress)) (ActionResult, error) {
	notify := func(status domain.ExecStatus, errMsg string) {
		if onProgress == nil {
			return
		}
		onProgress(Progress{
			Index:    index,
			Total:    total,
			ActionID: actionID,
			Status:   status,
			Error:    errMsg,
		})
	}

	notify(domain.ExecStatusLoading, "")

	start := time.Now()
	outcome, err := o.executor.Execute(ctx, actionID)
	duration := time.Since(start)

	res := ActionResult{ActionID: actionID, DurationMs: duration.Milliseconds()}
	switch {
	case err == nil:
		res.Status = ResultSucceeded
		res.Value = outcome.Value
		notify(domain.ExecStatusSuccess, "")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		res.Status = ResultCancelled
		res.Error = err.Error()
		notify(domain.ExecStatusIdle, res.Error)
	default:
		res.Status = ResultFailed
		res.Error = err.Error()
		notify(domain.ExecStatusError, res.Error)
		telemetry.FromContext(ctx, o.logger).Warn("action failed, continuing run", "action_id", actionID, "error", err)
	}
	return res, err
}

func (o *Orchestrator) cancelled(report *Report, logger *slog.Logger, err error) (*Report, error) {
	report.Cancelled = true
	report.FinishedAt = time.Now().UTC()
	logger.Info("run cancelled", "summary", report.Summary())
	return report, err
}
