// Package orchestrator выполняет все action приложения за один проход.
//
// Orchestrator отвечает за:
//   - Выбор следующего playable action в порядке списка
//   - Повторную проверку playability после каждого выполнения
//   - Продолжение прохода после ошибок отдельных action
//   - Отчёт о проходе (succeeded/failed/skipped/cancelled)
//   - Уведомления о прогрессе
//
// Action выполняются строго последовательно; каждый — не более одного раза за проход.
package orchestrator
