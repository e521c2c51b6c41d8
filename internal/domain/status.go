package domain

// ExecStatus — статус выполнения action в рамках сессии.
//
// Жизненный цикл:
//
//	idle → loading → success
//	               ↘ error
//	error   → loading (retry)
//	success → loading (повторный запуск)
//	loading → idle    (отмена)
type ExecStatus string

const (
	// ExecStatusIdle — action ещё не запускался или был сброшен/отменён.
	ExecStatusIdle ExecStatus = "idle"

	// ExecStatusLoading — action выполняется.
	ExecStatusLoading ExecStatus = "loading"

	// ExecStatusSuccess — последнее выполнение завершилось успешно.
	ExecStatusSuccess ExecStatus = "success"

	// ExecStatusError — последнее выполнение завершилось ошибкой.
	ExecStatusError ExecStatus = "error"
)

// IsTerminal возвращает true для финальных статусов (success, error).
// Оба финальных статуса допускают повторный запуск.
func (s ExecStatus) IsTerminal() bool {
	switch s {
	case ExecStatusSuccess, ExecStatusError:
		return true
	default:
		return false
	}
}

// ParseExecStatus парсит строку в ExecStatus. Неизвестное значение → idle.
func ParseExecStatus(s string) ExecStatus {
	switch s {
	case "loading":
		return ExecStatusLoading
	case "success":
		return ExecStatusSuccess
	case "error":
		return ExecStatusError
	default:
		return ExecStatusIdle
	}
}

// ActionState — состояние action для UI (кэш последнего исхода).
type ActionState string

const (
	ActionStateIdle    ActionState = "idle"
	ActionStateLoading ActionState = "loading"
	ActionStateError   ActionState = "error"
)

// StateFromStatus переводит статус выполнения в состояние для UI.
// Успешный action отображается как idle.
func StateFromStatus(s ExecStatus) ActionState {
	switch s {
	case ExecStatusLoading:
		return ActionStateLoading
	case ExecStatusError:
		return ActionStateError
	default:
		return ActionStateIdle
	}
}
