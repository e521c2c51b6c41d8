// Package persist сохраняет состояние выполнения приложения в storage.
//
// Adapter подписывается на изменения state.Store и записывает снимок
// в apps/<appID>/execution-state.json не чаще одного раза за окно
// debounce (default: 500ms). Запись идёт в фоне: ошибки логируются
// и учитываются в метриках, но не возвращаются вызывающему коду.
//
//	a, err := persist.New(persist.Config{Store: store, Storage: files})
//	if _, err := a.Load(ctx); err != nil { ... }
//	a.Start()
//	defer a.Close(ctx)
package persist
