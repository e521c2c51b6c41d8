package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shaiso/Actionflow/internal/storage"
	"github.com/shaiso/Actionflow/internal/telemetry"
)

const defaultCheckTimeout = 10 * time.Second

// AvailabilityChecker проверяет, что файловый результат доступен публично.
type AvailabilityChecker interface {
	Available(ctx context.Context, path, publicURL string) (bool, error)
}

// StorageChecker проверяет доступность по режиму файла в storage.
type StorageChecker struct {
	Storage storage.Storage
}

// Available возвращает true, если файл существует и доступен на чтение всем.
// Без Storage проверять нечего: файл считается доступным.
func (c StorageChecker) Available(ctx context.Context, path, _ string) (bool, error) {
	if c.Storage == nil {
		return true, nil
	}
	return storage.IsPublic(ctx, c.Storage, path)
}

// HTTPChecker проверяет доступность HEAD-запросом на публичный URL.
//
// 2xx → доступен, 403/404 → ещё нет, остальные коды → ошибка проверки.
type HTTPChecker struct {
	// Client — HTTP клиент (default: таймаут 10s).
	Client *http.Client
}

// Available выполняет HEAD-запрос.
func (c HTTPChecker) Available(ctx context.Context, _, publicURL string) (bool, error) {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: defaultCheckTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, publicURL, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// waitAvailable опрашивает checker с фиксированным интервалом.
//
// Возвращает ErrFileAvailabilityTimeout после maxAttempts неудачных проверок.
// Ошибка отдельной проверки не прерывает опрос. Ожидание прерывается отменой ctx.
func (w *Worker) waitAvailable(ctx context.Context, path, publicURL string) error {
	for attempt := 1; attempt <= w.availabilityAttempts; attempt++ {
		ok, err := w.checker.Available(ctx, path, publicURL)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case err != nil:
			telemetry.AvailabilityPolls.WithLabelValues("error").Inc()
			w.logger.Debug("availability check failed",
				"path", path,
				"attempt", attempt,
				"error", err,
			)
		case ok:
			telemetry.AvailabilityPolls.WithLabelValues("available").Inc()
			return nil
		default:
			telemetry.AvailabilityPolls.WithLabelValues("pending").Inc()
		}

		if attempt == w.availabilityAttempts {
			break
		}

		timer := time.NewTimer(w.availabilityInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %s after %d checks", ErrFileAvailabilityTimeout, publicURL, w.availabilityAttempts)
}
