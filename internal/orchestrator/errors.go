package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunInProgress — проход уже выполняется.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrActionNotPlayable — action нельзя запустить: нет значений зависимостей
	// или action в цикле.
	ErrActionNotPlayable = errors.New("action is not playable")
)
