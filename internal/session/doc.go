// Package session — рабочая сессия одного приложения.
//
// Session владеет state.Store, worker.Worker, orchestrator.Orchestrator,
// persist.Adapter и, если настроен брокер, mq.Bridge.
//
// Гарантии:
//   - Одновременно выполняется не больше одной операции (Execute, RunAll,
//     RunAction); вторая получает ErrBusy
//   - Cancel прерывает текущую операцию, action возвращается в idle
//   - Open восстанавливает сохранённое состояние, Close дописывает
//     отложенные изменения
package session
