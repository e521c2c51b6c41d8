package mq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Actionflow/internal/state"
)

// Default bridge configuration values.
const (
	defaultBridgeBuffer  = 256
	defaultPublishTimeout = 5 * time.Second
)

// EventPublisher публикует событие приложения. Реализуется *Publisher.
type EventPublisher interface {
	PublishEvent(ctx context.Context, appID, sessionID string, key RoutingKey, msgType MessageType, payload any) error
}

var _ EventPublisher = (*Publisher)(nil)

// Bridge транслирует изменения state.Store в события RabbitMQ.
//
// Публикация идёт в отдельной горутине через буфер: подписчик Store
// никогда не блокируется брокером. При переполнении буфера события
// отбрасываются с предупреждением в логе.
type Bridge struct {
	pub       EventPublisher
	appID     string
	sessionID string

	queue       chan outgoing
	unsubscribe func()

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	logger *slog.Logger
}

type outgoing struct {
	key     RoutingKey
	msgType MessageType
	payload any
}

// BridgeConfig — конфигурация Bridge.
type BridgeConfig struct {
	Publisher EventPublisher
	Store     *state.Store

	// AppID — идентификатор приложения (default: ID приложения в Store).
	AppID     string
	SessionID string

	// Buffer — размер очереди публикации (default: 256).
	Buffer int

	// Logger
	Logger *slog.Logger
}

// NewBridge создаёт Bridge и подписывает его на Store.
func NewBridge(cfg BridgeConfig) *Bridge {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBridgeBuffer
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appID := cfg.AppID
	if appID == "" && cfg.Store != nil {
		appID = cfg.Store.App().ID
	}

	b := &Bridge{
		pub:       cfg.Publisher,
		appID:     appID,
		sessionID: cfg.SessionID,
		queue:     make(chan outgoing, buffer),
		logger:    logger,
	}

	b.wg.Add(1)
	go b.loop()

	if cfg.Store != nil {
		store := cfg.Store
		b.unsubscribe = store.Subscribe(func(e state.Event) {
			b.handleStoreEvent(store, e)
		})
	}
	return b
}

// handleStoreEvent переводит событие Store в сообщение.
func (b *Bridge) handleStoreEvent(store *state.Store, e state.Event) {
	switch e.Kind {
	case state.EventMetaChanged:
		meta := store.Meta(e.ActionID)
		b.enqueue(RoutingKeyActionStatus, MessageTypeActionStatus, ActionStatusPayload{
			ActionID: e.ActionID,
			Status:   string(e.Status),
			Error:    meta.Error,
			Attempts: meta.Attempts,
		})
	case state.EventValueSet:
		b.enqueue(RoutingKeyValue, MessageTypeValueChanged, ValueChangedPayload{Key: e.Key})
	case state.EventValueDeleted:
		b.enqueue(RoutingKeyValue, MessageTypeValueChanged, ValueChangedPayload{Key: e.Key, Deleted: true})
	case state.EventStructureChanged:
		b.enqueue(RoutingKeyStructure, MessageTypeAppChanged, map[string]any{"actions": len(store.App().Actions)})
	case state.EventStateLoaded:
		b.enqueue(RoutingKeyStateLoaded, MessageTypeStateLoaded, map[string]any{"values": len(store.ValueKeys())})
	}
}

// StateSaved публикует результат записи снимка.
func (b *Bridge) StateSaved(path string, bytes int, err error) {
	payload := StateSavedPayload{Path: path, Bytes: bytes}
	if err != nil {
		payload.Error = err.Error()
	}
	b.enqueue(RoutingKeyStateSaved, MessageTypeStateSaved, payload)
}

// RunFinished публикует итог прохода.
func (b *Bridge) RunFinished(runID, summary string, cancelled bool) {
	b.enqueue(RoutingKeyRunFinished, MessageTypeRunFinished, RunFinishedPayload{
		RunID:     runID,
		Summary:   summary,
		Cancelled: cancelled,
	})
}

func (b *Bridge) enqueue(key RoutingKey, msgType MessageType, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	select {
	case b.queue <- outgoing{key: key, msgType: msgType, payload: payload}:
	default:
		b.logger.Warn("event queue full, dropping event", "type", msgType)
	}
}

func (b *Bridge) loop() {
	defer b.wg.Done()

	for o := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
		err := b.pub.PublishEvent(ctx, b.appID, b.sessionID, o.key, o.msgType, o.payload)
		cancel()

		if err != nil {
			b.logger.Warn("failed to publish event", "type", o.msgType, "error", err)
		}
	}
}

// Close отписывается от Store и дожидается публикации буфера.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.wg.Wait()
}
