package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип события.
type MessageType string

// Типы событий.
const (
	MessageTypeActionStatus MessageType = "action.status"
	MessageTypeValueChanged MessageType = "value.changed"
	MessageTypeAppChanged   MessageType = "app.changed"
	MessageTypeStateLoaded  MessageType = "state.loaded"
	MessageTypeStateSaved   MessageType = "state.saved"
	MessageTypeRunFinished  MessageType = "run.finished"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип события.
	Type MessageType `json:"type"`

	// AppID, SessionID — источник события.
	AppID     string `json:"app_id"`
	SessionID string `json:"session_id,omitempty"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время события.
	Timestamp time.Time `json:"timestamp"`
}

// ActionStatusPayload — изменение статуса выполнения action.
type ActionStatusPayload struct {
	ActionID string `json:"action_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// ValueChangedPayload — запись или удаление значения Value Bag.
type ValueChangedPayload struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted,omitempty"`
}

// StateSavedPayload — результат записи снимка состояния.
type StateSavedPayload struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes,omitempty"`
	Error string `json:"error,omitempty"`
}

// RunFinishedPayload — итог прохода RunAll.
type RunFinishedPayload struct {
	RunID     string `json:"run_id"`
	Summary   string `json:"summary"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// Publisher публикует события в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange событий.
// Сообщение не persistent: события — уведомления, а не источник истины.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeEvents),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Transient,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				AppId:        msg.AppID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeEvents, routingKey, err)
		}

		p.logger.Debug("published event",
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishEvent собирает Message и публикует его с ключом <appID>.<key>.
func (p *Publisher) PublishEvent(ctx context.Context, appID, sessionID string, key RoutingKey, msgType MessageType, payload any) error {
	return p.Publish(ctx, AppRoutingKey(appID, key), NewMessage(appID, sessionID, msgType, payload))
}

// NewMessage создаёт сообщение с новым ID и текущим временем.
func NewMessage(appID, sessionID string, msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		AppID:     appID,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
