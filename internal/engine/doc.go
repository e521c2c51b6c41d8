// Package engine содержит движок зависимостей приложения.
//
// Включает:
//   - reference.go — поиск и подстановка ссылок (${input.x}, {{input.x}}, {{x}}, @file.ext)
//   - graph.go     — построение графа зависимостей action и поиск циклов
//   - parser.go    — загрузка описания приложения из JSON/YAML и валидация
//
// Engine отвечает за понимание структуры приложения: какие значения
// нужны каждому action и какие action образуют циклы. Сам engine
// ничего не выполняет и не хранит состояние.
package engine
