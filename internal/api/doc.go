// Package api содержит HTTP API сервер сессии приложения.
//
// Структура:
//   - handler.go      — Handler с DI (session, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — middleware (logging, recovery)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — Data Transfer Objects (request/response)
//   - app_handler.go  — чтение приложения, состояния и графа, запись значений
//   - exec_handler.go — запуск, сброс и отмена выполнения
//   - events.go       — поток изменений состояния (Server-Sent Events)
//
// Запуск выполняется асинхронно (202 Accepted); с ?wait=true обработчик
// дожидается завершения и возвращает отчёт.
package api
