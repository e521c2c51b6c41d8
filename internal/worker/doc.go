// Package worker выполняет отдельные action приложения.
//
// # Обзор
//
// Worker берёт action из state.Store, готовит запрос к сервису генерации
// и записывает результат обратно в Value Bag:
//
//   - Выбор промпта для активного языка (точный язык, "*", язык приложения,
//     первый по алфавиту)
//   - Подстановка ссылок в промпт и config (engine.Resolve)
//   - Проверка зависимостей: без значений action завершается ErrMissingDependency
//   - Вызов провайдера через executor типа action
//   - Для файлов: открытие публичного доступа и ожидание доступности URL
//
//	w := worker.New(worker.Config{
//	    Store:    store,
//	    Provider: p,
//	    Storage:  files,
//	    Logger:   logger,
//	})
//
//	outcome, err := w.Execute(ctx, "summary")
//
// ## Executor
//
// Интерфейс для выполнения конкретного типа action:
//
//	type Executor interface {
//	    Execute(ctx context.Context, p provider.Provider, req Request) (*provider.Result, error)
//	}
//
// Реализации:
//   - TextExecutor — generate-text (gpt-4o-mini, temperature 0.7)
//   - JSONExecutor — generate-json (gpt-4o-mini, temperature 0.2, schema)
//   - ImageExecutor — generate-image (dall-e-3, 1024x1024)
//   - AudioExecutor — generate-audio (tts-1, alloy, mp3)
//   - VideoExecutor — generate-video (default, 5s)
//
// Пустое значение config или "Best" означает значение по умолчанию.
//
// # Доступность файлов
//
// Файловый результат проверяется AvailabilityChecker'ом с фиксированным
// интервалом (default: 1s, 10 проверок). Если файл так и не стал доступен,
// это логируется, а action всё равно завершается успешно с последним
// известным URL.
//
// # Отмена
//
// При отмене ctx action возвращается в idle через AbortExecution,
// запоздавший результат провайдера отбрасывается.
// Ошибка оборачивает context.Canceled или context.DeadlineExceeded.
package worker
