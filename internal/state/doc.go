// Package state хранит состояние выполнения приложения в рамках сессии.
//
// Store — единственный источник правды о том:
//   - Какие значения уже есть в Value Bag (поля ввода и результаты action)
//   - В каком статусе выполнение каждого action
//   - Можно ли запустить action (playable)
//
// Все изменения проходят через методы Store и сериализуются мьютексом.
// Подписчики получают уведомление синхронно после каждого изменения.
package state
