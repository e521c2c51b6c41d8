package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// ExchangeEvents — topic exchange событий движка.
const ExchangeEvents Exchange = "actionflow.events"

// QueueEventsLog — durable очередь со всеми событиями (для внешних потребителей).
const QueueEventsLog Queue = "actionflow.events.log"

// Routing keys. Полный ключ события: <appID>.<key>.
const (
	RoutingKeyActionStatus RoutingKey = "action.status"
	RoutingKeyValue        RoutingKey = "value.changed"
	RoutingKeyStructure    RoutingKey = "app.changed"
	RoutingKeyStateLoaded  RoutingKey = "state.loaded"
	RoutingKeyStateSaved   RoutingKey = "state.saved"
	RoutingKeyRunFinished  RoutingKey = "run.finished"

	// RoutingKeyAll — все события всех приложений.
	RoutingKeyAll RoutingKey = "#"
)

// AppRoutingKey возвращает полный ключ события приложения.
func AppRoutingKey(appID string, key RoutingKey) RoutingKey {
	return RoutingKey(appID + "." + string(key))
}

// AppBindingKey возвращает ключ привязки ко всем событиям приложения.
func AppBindingKey(appID string) RoutingKey {
	if appID == "" {
		return RoutingKeyAll
	}
	return RoutingKey(appID + ".#")
}

// SetupTopology объявляет exchange событий и durable очередь-журнал.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchange(ch); err != nil {
			return err
		}

		_, err := ch.QueueDeclare(
			string(QueueEventsLog), // name
			true,                   // durable
			false,                  // delete when unused
			false,                  // exclusive
			false,                  // no-wait
			amqp.Table{"x-max-length": int32(10000)},
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueEventsLog, err)
		}

		if err := ch.QueueBind(string(QueueEventsLog), string(RoutingKeyAll), string(ExchangeEvents), false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueEventsLog, err)
		}
		return nil
	})
}

func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeEvents), // name
		"topic",                // type
		true,                   // durable
		false,                  // auto-deleted
		false,                  // internal
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
	}
	return nil
}

// declareWatchQueue объявляет временную exclusive очередь и привязывает её к exchange.
// Очередь удаляется вместе с соединением, поэтому после reconnect объявляется заново.
func declareWatchQueue(ch *amqp.Channel, binding RoutingKey) (string, error) {
	if err := declareExchange(ch); err != nil {
		return "", err
	}

	q, err := ch.QueueDeclare(
		"",    // имя выдаёт сервер
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("declare watch queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, string(binding), string(ExchangeEvents), false, nil); err != nil {
		return "", fmt.Errorf("bind watch queue: %w", err)
	}
	return q.Name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Actionflow RabbitMQ Topology:

    actionflow.events (topic)
    ├── actionflow.events.log [routing: #]
    │       Durable journal, max 10000 messages
    └── <exclusive> [routing: <app>.#]
            Consumer: actionflow watch
  `
}
