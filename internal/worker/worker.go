package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Actionflow/internal/domain"
	"github.com/shaiso/Actionflow/internal/engine"
	"github.com/shaiso/Actionflow/internal/provider"
	"github.com/shaiso/Actionflow/internal/state"
	"github.com/shaiso/Actionflow/internal/storage"
	"github.com/shaiso/Actionflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultAvailabilityInterval = time.Second
	defaultAvailabilityAttempts = 10
)

// Исходы выполнения для метрик.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// Worker выполняет отдельные action приложения.
//
// Worker:
//   - Выбирает промпт для активного языка и подставляет ссылки
//   - Проверяет, что все зависимости action имеют значения
//   - Вызывает сервис генерации через executor типа action
//   - Для файлов открывает публичный доступ и ждёт доступности URL
//   - Записывает результат в Value Bag под filename action
//
// Состояние хранится в state.Store; Worker не хранит результатов.
type Worker struct {
	store    *state.Store
	provider provider.Provider
	storage  storage.Storage
	registry *Registry
	checker  AvailabilityChecker

	publicBaseURL        string
	availabilityInterval time.Duration
	availabilityAttempts int

	language   string
	languageMu sync.RWMutex

	newID  func() string
	logger *slog.Logger
}

// Config — конфигурация Worker.
type Config struct {
	// Store — состояние выполнения приложения (обязательно).
	Store *state.Store

	// Provider — сервис генерации (обязательно).
	Provider provider.Provider

	// Storage — хранилище файловых результатов.
	Storage storage.Storage

	// Executor registry (опционально; если nil — используется NewRegistry())
	Registry *Registry

	// Checker — проверка доступности файлов
	// (опционально; если nil — StorageChecker по Storage).
	Checker AvailabilityChecker

	// PublicBaseURL — префикс публичных URL файлов.
	PublicBaseURL string

	// Availability polling
	AvailabilityInterval time.Duration // интервал проверок (default: 1s)
	AvailabilityAttempts int           // максимум проверок (default: 10)

	// Language — активный язык промптов.
	// Пусто — язык по умолчанию приложения.
	Language string

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	interval := cfg.AvailabilityInterval
	if interval <= 0 {
		interval = defaultAvailabilityInterval
	}

	attempts := cfg.AvailabilityAttempts
	if attempts <= 0 {
		attempts = defaultAvailabilityAttempts
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	checker := cfg.Checker
	if checker == nil {
		checker = StorageChecker{Storage: cfg.Storage}
	}

	return &Worker{
		store:                cfg.Store,
		provider:             cfg.Provider,
		storage:              cfg.Storage,
		registry:             registry,
		checker:              checker,
		publicBaseURL:        cfg.PublicBaseURL,
		availabilityInterval: interval,
		availabilityAttempts: attempts,
		language:             cfg.Language,
		newID:                uuid.NewString,
		logger:               logger,
	}
}

// Outcome — результат выполнения action.
type Outcome struct {
	ActionID string

	// Text — текстовый результат (generate-text, generate-json).
	Text string

	// Filepath — путь файла в storage (файловые типы).
	Filepath string

	// PublicURL — публичный URL файла (файловые типы).
	PublicURL string

	// Files — все файлы результата. Первый записывается в Value Bag.
	Files []domain.FileRef

	// Value — значение, записанное в Value Bag.
	Value any

	// Duration — длительность выполнения.
	Duration time.Duration
}

// SetLanguage меняет активный язык промптов.
func (w *Worker) SetLanguage(lang string) {
	w.languageMu.Lock()
	defer w.languageMu.Unlock()
	w.language = lang
}

// Language возвращает активный язык промптов.
func (w *Worker) Language() string {
	w.languageMu.RLock()
	defer w.languageMu.RUnlock()
	return w.language
}

// Execute выполняет action.
//
// Статус action: idle/success/error → loading → success | error.
// При отмене ctx action возвращается в idle, результат не записывается,
// ошибка оборачивает ctx.Err().
func (w *Worker) Execute(ctx context.Context, actionID string) (*Outcome, error) {
	action, ok := w.store.Action(actionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownAction, actionID)
	}

	logger := telemetry.WithActionID(telemetry.FromContext(ctx, w.logger), actionID)
	ctx = telemetry.WithLogger(ctx, logger)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("execute %s: %w", actionID, err)
	}

	ticket, err := w.store.BeginExecution(actionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger.Info("action started", "type", action.Type, "attempt", w.store.Meta(actionID).Attempts)

	outcome, err := w.run(ctx, action)
	duration := time.Since(start)

	switch {
	case err == nil && ctx.Err() == nil:
		outcome.Duration = duration
		if !w.store.CompleteExecution(ticket, outcome.Value, duration) {
			logger.Warn("action result discarded", "reason", "superseded")
			return nil, fmt.Errorf("%w: %s", ErrExecutionSuperseded, actionID)
		}
		w.record(action.Type, outcomeSuccess, duration)
		logger.Info("action succeeded", "duration", duration)
		return outcome, nil

	case ctx.Err() != nil:
		w.store.AbortExecution(ticket)
		w.record(action.Type, outcomeCancelled, duration)
		logger.Info("action cancelled", "duration", duration)
		return nil, fmt.Errorf("execute %s: %w", actionID, ctx.Err())

	default:
		w.store.FailExecution(ticket, err, duration)
		w.record(action.Type, outcomeError, duration)
		logger.Warn("action failed", "duration", duration, "error", err)
		return nil, err
	}
}

// run выполняет action и строит значение для Value Bag. Ничего не записывает в Store.
func (w *Worker) run(ctx context.Context, action domain.Action) (*Outcome, error) {
	status, err := w.store.GetActionStatus(action.ID)
	if err != nil {
		return nil, err
	}
	if status.HasCircularDependency {
		return nil, fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(status.CyclePath, " -> "))
	}
	if len(status.MissingDependencies) > 0 {
		return nil, &MissingDependencyError{ActionID: action.ID, Keys: status.MissingDependencies}
	}

	executor, err := w.registry.Get(action.Type)
	if err != nil {
		return nil, err
	}

	values := w.store.Values()
	app := w.store.App()

	prompt, lang, _ := action.Prompt.Select(w.Language(), app.DefaultLanguage)

	req := Request{
		ActionID: action.ID,
		Prompt:   engine.Resolve(prompt, values),
		Config:   engine.ResolveConfig(action.Config, values),
	}
	if action.Type.ProducesFile() {
		req.OutputPath = storage.FilePath(app.ID, w.newID()+"/"+action.Filename)
	}

	telemetry.FromContext(ctx, w.logger).Debug("calling provider",
		"provider", w.provider.Name(),
		"language", lang,
	)

	res, err := executor.Execute(ctx, w.provider, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderError, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch {
	case action.Type.ProducesFile():
		return w.fileOutcome(ctx, action, res)
	case action.Type == domain.ActionTypeGenerateJSON:
		value := res.Object
		if value == nil {
			if value, err = provider.ParseObject(res.Text); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrProviderError, err)
			}
		}
		return &Outcome{ActionID: action.ID, Text: res.Text, Value: value}, nil
	default:
		return &Outcome{ActionID: action.ID, Text: res.Text, Value: res.Text}, nil
	}
}

// fileOutcome открывает публичный доступ к файлам результата и ждёт их доступности.
// Таймаут ожидания не считается ошибкой: возвращается последний известный URL.
// В Value Bag записывается первый файл, остальные доступны в Outcome.Files.
func (w *Worker) fileOutcome(ctx context.Context, action domain.Action, res *provider.Result) (*Outcome, error) {
	var files []domain.FileRef
	for _, path := range res.Filepaths {
		if path == "" {
			continue
		}
		ref, err := w.publishFile(ctx, action.ID, path)
		if err != nil {
			return nil, err
		}
		ref.MimeType = res.MimeType
		files = append(files, ref)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %w: %s", ErrProviderError, ErrNoFileProduced, action.ID)
	}

	first := files[0]
	return &Outcome{
		ActionID:  action.ID,
		Text:      res.Text,
		Filepath:  first.Filepath,
		PublicURL: first.PublicURL,
		Files:     files,
		Value:     first.ToMap(),
	}, nil
}

// publishFile делает файл публичным и ждёт его доступности по URL.
func (w *Worker) publishFile(ctx context.Context, actionID, path string) (domain.FileRef, error) {
	if w.storage != nil {
		if err := w.storage.Chmod(ctx, path, storage.ModePublic); err != nil {
			return domain.FileRef{}, fmt.Errorf("make file public: %w", err)
		}
	}

	publicURL := storage.PublicURL(w.publicBaseURL, path)

	if err := w.waitAvailable(ctx, path, publicURL); err != nil {
		if !errors.Is(err, ErrFileAvailabilityTimeout) {
			return domain.FileRef{}, err
		}
		telemetry.FromContext(ctx, w.logger).Warn("file not yet available, returning last known url",
			"action_id", actionID,
			"url", publicURL,
			"error", err,
		)
	}

	return domain.FileRef{Filepath: path, PublicURL: publicURL}, nil
}

// record обновляет метрики выполнения.
func (w *Worker) record(actionType domain.ActionType, outcome string, duration time.Duration) {
	telemetry.ActionExecutions.WithLabelValues(string(actionType), outcome).Inc()
	telemetry.ActionDuration.WithLabelValues(string(actionType)).Observe(duration.Seconds())
}
