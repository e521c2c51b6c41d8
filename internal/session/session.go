package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Actionflow/internal/domain"
	"github.com/shaiso/Actionflow/internal/engine"
	"github.com/shaiso/Actionflow/internal/mq"
	"github.com/shaiso/Actionflow/internal/orchestrator"
	"github.com/shaiso/Actionflow/internal/persist"
	"github.com/shaiso/Actionflow/internal/provider"
	"github.com/shaiso/Actionflow/internal/state"
	"github.com/shaiso/Actionflow/internal/storage"
	"github.com/shaiso/Actionflow/internal/telemetry"
	"github.com/shaiso/Actionflow/internal/worker"
)

// Session — рабочая сессия приложения.
type Session struct {
	id       string
	restored bool

	store   *state.Store
	worker  *worker.Worker
	orch    *orchestrator.Orchestrator
	persist *persist.Adapter
	bridge  *mq.Bridge

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	logger *slog.Logger
}

// Config — конфигурация Session.
type Config struct {
	App      *domain.App
	Storage  storage.Storage
	Provider provider.Provider

	// Publisher — публикация событий в брокер (опционально).
	Publisher mq.EventPublisher

	// Language — активный язык промптов.
	Language string

	// File availability
	PublicBaseURL        string
	Checker              worker.AvailabilityChecker
	AvailabilityInterval time.Duration
	AvailabilityAttempts int

	// Debounce — окно записи состояния (default: 500ms).
	Debounce time.Duration

	// Logger
	Logger *slog.Logger
}

// Open создаёт сессию и восстанавливает сохранённое состояние приложения.
// Повреждённый снимок не мешает открытию: сессия стартует с пустым состоянием.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	switch {
	case cfg.App == nil:
		return nil, ErrNoApp
	case cfg.Provider == nil:
		return nil, ErrNoProvider
	case cfg.Storage == nil:
		return nil, ErrNoStorage
	}

	if err := engine.Validate(cfg.App); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	logger = telemetry.WithSessionID(telemetry.WithAppID(logger, cfg.App.ID), id)

	s := &Session{id: id, logger: logger}
	s.store = state.New(cfg.App, state.Config{Logger: logger})

	if cfg.Publisher != nil {
		s.bridge = mq.NewBridge(mq.BridgeConfig{
			Publisher: cfg.Publisher,
			Store:     s.store,
			AppID:     cfg.App.ID,
			SessionID: id,
			Logger:    logger,
		})
	}

	adapter, err := persist.New(persist.Config{
		Store:    s.store,
		Storage:  cfg.Storage,
		AppID:    cfg.App.ID,
		Debounce: cfg.Debounce,
		OnSave:   s.onSave,
		Logger:   logger,
	})
	if err != nil {
		s.closeBridge()
		return nil, err
	}
	s.persist = adapter

	s.restored, err = adapter.Load(ctx)
	if err != nil {
		if !errors.Is(err, persist.ErrCorruptState) {
			s.closeBridge()
			return nil, fmt.Errorf("load execution state: %w", err)
		}
		logger.Warn("ignoring corrupt execution state", "path", adapter.Path(), "error", err)
	}
	adapter.Start()

	s.worker = worker.New(worker.Config{
		Store:                s.store,
		Provider:             cfg.Provider,
		Storage:              cfg.Storage,
		Checker:              cfg.Checker,
		PublicBaseURL:        cfg.PublicBaseURL,
		AvailabilityInterval: cfg.AvailabilityInterval,
		AvailabilityAttempts: cfg.AvailabilityAttempts,
		Language:             cfg.Language,
		Logger:               logger,
	})
	s.orch = orchestrator.New(orchestrator.Config{
		Store:    s.store,
		Executor: s.worker,
		Logger:   logger,
	})

	logger.Info("session opened",
		"actions", len(cfg.App.Actions),
		"provider", cfg.Provider.Name(),
		"restored", s.restored,
	)
	return s, nil
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string { return s.id }

// Restored возвращает true, если при открытии загружен сохранённый снимок.
func (s *Session) Restored() bool { return s.restored }

// Store возвращает состояние выполнения.
func (s *Session) Store() *state.Store { return s.store }

// SetLanguage меняет активный язык промптов.
func (s *Session) SetLanguage(lang string) { s.worker.SetLanguage(lang) }

// Language возвращает активный язык промптов.
func (s *Session) Language() string { return s.worker.Language() }

// Busy возвращает true, если сессия выполняет операцию.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// begin занимает сессию. finish нужно вызвать по завершении операции.
func (s *Session) begin(ctx context.Context) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, ErrClosed
	}
	if s.busy {
		return nil, nil, ErrBusy
	}

	runCtx, cancel := context.WithCancel(telemetry.WithLogger(ctx, s.logger))
	done := make(chan struct{})
	s.busy = true
	s.cancel = cancel
	s.done = done

	finish := func() {
		cancel()
		s.mu.Lock()
		s.busy = false
		s.cancel = nil
		s.done = nil
		s.mu.Unlock()
		close(done)
	}
	return runCtx, finish, nil
}

// Execute выполняет один action.
func (s *Session) Execute(ctx context.Context, actionID string) (*worker.Outcome, error) {
	runCtx, finish, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer finish()

	return s.worker.Execute(runCtx, actionID)
}

// Run — операция, для которой сессия уже занята.
// Должна быть вызвана ровно один раз: по её завершении сессия освобождается.
type Run func() (*orchestrator.Report, error)

// StartAction занимает сессию под запуск action и возвращает операцию.
// Занятая сессия → ErrBusy сразу, до выполнения.
func (s *Session) StartAction(ctx context.Context, actionID string, onProgress func(orchestrator.Progress)) (Run, error) {
	runCtx, finish, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return func() (*orchestrator.Report, error) {
		defer finish()
		return s.orch.RunAction(runCtx, actionID, onProgress)
	}, nil
}

// StartAll занимает сессию под проход RunAll и возвращает операцию.
func (s *Session) StartAll(ctx context.Context, opts orchestrator.RunOptions) (Run, error) {
	runCtx, finish, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return func() (*orchestrator.Report, error) {
		defer finish()

		report, err := s.orch.RunAll(runCtx, opts)
		if report != nil && s.bridge != nil {
			s.bridge.RunFinished(report.RunID, report.Summary(), report.Cancelled)
		}
		return report, err
	}, nil
}

// RunAction выполняет один playable action с отчётом.
func (s *Session) RunAction(ctx context.Context, actionID string, onProgress func(orchestrator.Progress)) (*orchestrator.Report, error) {
	run, err := s.StartAction(ctx, actionID, onProgress)
	if err != nil {
		return nil, err
	}
	return run()
}

// RunAll выполняет все playable action.
func (s *Session) RunAll(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Report, error) {
	run, err := s.StartAll(ctx, opts)
	if err != nil {
		return nil, err
	}
	return run()
}

// Cancel прерывает текущую операцию. Возвращает false, если сессия свободна.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.logger.Info("execution cancel requested")
	return true
}

// Reset сбрасывает выполнение action: статус idle, значение удаляется.
func (s *Session) Reset(actionID string) error {
	return s.store.ResetActionExecution(actionID)
}

// ResetAll сбрасывает выполнение всех action.
func (s *Session) ResetAll() error {
	for _, a := range s.store.App().Actions {
		if err := s.store.ResetActionExecution(a.ID); err != nil {
			return err
		}
	}
	return nil
}

// Flush немедленно записывает отложенные изменения состояния.
func (s *Session) Flush(ctx context.Context) error {
	return s.persist.Flush(ctx)
}

// Close прерывает текущую операцию, дожидается её завершения
// и записывает отложенные изменения.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	done := s.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := s.persist.Close(ctx)
	s.closeBridge()

	s.logger.Info("session closed")
	return err
}

func (s *Session) onSave(res persist.SaveResult) {
	if s.bridge != nil {
		s.bridge.StateSaved(res.Path, res.Bytes, res.Err)
	}
}

func (s *Session) closeBridge() {
	if s.bridge != nil {
		s.bridge.Close()
	}
}
