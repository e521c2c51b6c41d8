// Package provider — клиенты внешнего сервиса генерации.
//
// Provider скрывает конкретный API: движок формирует типизированный запрос
// (текст, объект, изображение, аудио, видео) и получает Result. Файловые
// результаты провайдер сам записывает в storage по OutputPath запроса.
//
// Реализации:
//   - OpenAI — HTTP API, совместимый с OpenAI (OPENAI_API_KEY, OPENAI_API_BASE)
//   - Gemini — Google Generative AI SDK (GOOGLE_API_KEY), только текст и объекты
//   - Mock — детерминированные ответы без сети
package provider
