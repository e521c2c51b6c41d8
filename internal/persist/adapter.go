package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Actionflow/internal/domain"
	"github.com/shaiso/Actionflow/internal/state"
	"github.com/shaiso/Actionflow/internal/storage"
	"github.com/shaiso/Actionflow/internal/telemetry"
)

// Default configuration values.
const (
	DefaultDebounce     = 500 * time.Millisecond
	defaultWriteTimeout = 30 * time.Second
)

// SaveResult — исход одной записи снимка.
type SaveResult struct {
	AppID string
	Path  string
	Bytes int
	Err   error
}

// Adapter сохраняет снимки state.Store с debounce.
type Adapter struct {
	store    *state.Store
	storage  storage.Storage
	appID    string
	debounce time.Duration
	onSave   func(SaveResult)

	mu          sync.Mutex
	timer       *time.Timer
	pending     bool
	closed      bool
	unsubscribe func()

	// writeMu — записи снимка идут строго по одной.
	writeMu sync.Mutex

	logger *slog.Logger
}

// Config — конфигурация Adapter.
type Config struct {
	Store   *state.Store
	Storage storage.Storage

	// AppID — идентификатор приложения (default: ID приложения в Store).
	AppID string

	// Debounce — окно объединения записей (default: 500ms).
	Debounce time.Duration

	// OnSave вызывается после каждой фоновой записи.
	OnSave func(SaveResult)

	// Logger
	Logger *slog.Logger
}

// New создаёт Adapter. Подписка на изменения включается методом Start.
func New(cfg Config) (*Adapter, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.Storage == nil {
		return nil, ErrNoStorage
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	appID := cfg.AppID
	if appID == "" {
		appID = cfg.Store.App().ID
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		store:    cfg.Store,
		storage:  cfg.Storage,
		appID:    appID,
		debounce: debounce,
		onSave:   cfg.OnSave,
		logger:   telemetry.WithAppID(logger, appID),
	}, nil
}

// Path возвращает путь снимка в storage.
func (a *Adapter) Path() string {
	return storage.StatePath(a.appID)
}

// Start подписывает адаптер на изменения Store.
// Повторный вызов ничего не делает.
func (a *Adapter) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.unsubscribe != nil {
		return
	}
	a.unsubscribe = a.store.Subscribe(func(e state.Event) {
		if e.Kind == state.EventStateLoaded {
			return
		}
		a.schedule()
	})
}

// Load читает сохранённый снимок и загружает его в Store.
// Возвращает false, если снимка нет.
func (a *Adapter) Load(ctx context.Context) (bool, error) {
	data, err := a.storage.Read(ctx, a.Path())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read execution state: %w", err)
	}

	var st domain.ExecutionState
	if err := json.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if st.Values == nil {
		st.Values = make(map[string]any)
	}
	if st.ExecutionMeta == nil {
		st.ExecutionMeta = make(map[string]domain.ExecutionMeta)
	}

	if err := a.store.LoadFromState(&st); err != nil {
		return false, err
	}

	a.logger.Info("execution state loaded",
		"path", a.Path(),
		"values", len(st.Values),
		"actions", len(st.ExecutionMeta),
	)
	return true, nil
}

// Save немедленно записывает снимок.
func (a *Adapter) Save(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	res := SaveResult{AppID: a.appID, Path: a.Path()}
	res.Bytes, res.Err = a.write(ctx)

	if res.Err != nil {
		telemetry.StatePersists.WithLabelValues("error").Inc()
	} else {
		telemetry.StatePersists.WithLabelValues("success").Inc()
	}
	if a.onSave != nil {
		a.onSave(res)
	}
	return res.Err
}

func (a *Adapter) write(ctx context.Context) (int, error) {
	data, err := json.MarshalIndent(a.snapshot(), "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal execution state: %w", err)
	}

	if err := a.storage.Mkdir(ctx, storage.AppDir(a.appID), true); err != nil {
		return 0, fmt.Errorf("create app dir: %w", err)
	}
	if err := a.storage.Write(ctx, a.Path(), data); err != nil {
		return 0, fmt.Errorf("write execution state: %w", err)
	}
	return len(data), nil
}

// snapshot возвращает снимок Store без значений, которые не кодируются в JSON.
// Такие значения пропускаются с предупреждением, остальной снимок пишется.
func (a *Adapter) snapshot() *domain.ExecutionState {
	st := a.store.ExecutionState()
	for key, value := range st.Values {
		if _, err := json.Marshal(value); err != nil {
			a.logger.Warn("value is not serializable, skipped in snapshot",
				"key", key,
				"type", fmt.Sprintf("%T", value),
				"error", err,
			)
			delete(st.Values, key)
		}
	}
	return st
}

// schedule откладывает запись на окно debounce.
// Каждое новое изменение сдвигает запись.
func (a *Adapter) schedule() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.pending = true
	if a.timer == nil {
		a.timer = time.AfterFunc(a.debounce, a.fire)
		return
	}
	a.timer.Reset(a.debounce)
}

// fire выполняет отложенную запись. Ошибка только логируется.
func (a *Adapter) fire() {
	a.mu.Lock()
	if !a.pending {
		a.mu.Unlock()
		return
	}
	a.pending = false
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	if err := a.Save(ctx); err != nil {
		a.logger.Warn("failed to persist execution state", "path", a.Path(), "error", err)
		return
	}
	a.logger.Debug("execution state persisted", "path", a.Path())
}

// Pending возвращает true, если есть незаписанные изменения.
func (a *Adapter) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Flush записывает отложенные изменения немедленно.
func (a *Adapter) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	pending := a.pending
	a.pending = false
	a.mu.Unlock()

	if !pending {
		return nil
	}
	return a.Save(ctx)
}

// Close отписывается от Store и записывает отложенные изменения.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return a.Flush(ctx)
}
