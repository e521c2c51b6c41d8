package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shaiso/Actionflow/internal/state"
)

// Default configuration values.
const (
	eventsBuffer    = 64
	eventsKeepAlive = 15 * time.Second
)

// Events отдаёт изменения состояния потоком Server-Sent Events.
// GET /api/v1/events
//
// Каждое событие: "event: <kind>" и JSON state.Event в "data:".
// Медленный клиент теряет события (в лог пишется предупреждение),
// актуальное состояние всегда доступно через /state.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, h.logger, fmt.Errorf("streaming not supported"))
		return
	}

	events := make(chan state.Event, eventsBuffer)
	unsubscribe := h.session.Store().Subscribe(func(e state.Event) {
		select {
		case events <- e:
		default:
			h.logger.Warn("sse client too slow, dropping event", "kind", e.Kind)
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, ": session %s\n\n", h.session.ID())
	flusher.Flush()

	keepAlive := time.NewTicker(eventsKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e := <-events:
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
