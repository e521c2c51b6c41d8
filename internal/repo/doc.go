// Package repo — доступ к PostgreSQL.
//
// FileRepo хранит файлы (результаты action и снимки состояния) в таблице
// stored_files и реализует storage.Storage для STORAGE_BACKEND=postgres.
package repo
