// Package mq транслирует события движка в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchange событий, очередь-журнал, временные очереди
//   - publisher.go  — публикация событий
//   - bridge.go     — подписка на state.Store и асинхронная публикация
//   - consumer.go   — потребление событий (actionflow watch)
//
// Ключи маршрутизации имеют вид <appID>.<событие>:
//   - action.status  — изменился статус выполнения action
//   - value.changed  — записано или удалено значение
//   - app.changed    — изменился список action
//   - state.loaded   — состояние загружено из снимка
//   - state.saved    — снимок записан в storage
//   - run.finished   — завершён проход RunAll
//
// Exchange: actionflow.events (topic).
package mq
