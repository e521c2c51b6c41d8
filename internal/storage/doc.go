// Package storage — файловое хранилище для результатов action и снимков состояния.
//
// Реализации:
//   - Local — локальная файловая система (корневая директория DATA_DIR)
//   - Mem — в памяти (тесты, одноразовые сессии)
//
// PostgreSQL-реализация находится в пакете repo (FileRepo).
package storage
