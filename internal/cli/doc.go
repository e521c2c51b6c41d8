// Package cli реализует инструмент командной строки Actionflow.
//
// # Обзор
//
// CLI — клиентская утилита для сервера actionflow-server. Команды
// управления работают через HTTP API и не импортируют внутренние пакеты
// движка. Исключение — watch: он читает события напрямую из RabbitMQ.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Actionflow API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ErrorResponse) и обработку ошибок.
// Запуски с ожиданием идут без таймаута клиента.
//
//	client := cli.NewClient("http://localhost:8080")
//	report, err := client.RunAll(ctx, cli.RunRequest{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.Encoder с отступами) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: actionflow status --json | jq .
//
// ## Commands
//
//   - run, exec, cancel — выполнение
//   - status, graph — просмотр состояния
//   - set, unset, reset, language — изменение состояния
//   - watch — поток событий из брокера
//
// Команды создаются фабричными функциями (NewRunCmd и т.д.),
// принимающими clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
