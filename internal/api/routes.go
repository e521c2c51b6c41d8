package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// App и состояние
	mux.Handle("GET /api/v1/app", chain(http.HandlerFunc(h.GetApp)))
	mux.Handle("GET /api/v1/state", chain(http.HandlerFunc(h.GetState)))
	mux.Handle("GET /api/v1/graph", chain(http.HandlerFunc(h.GetGraph)))
	mux.Handle("PUT /api/v1/language", chain(http.HandlerFunc(h.SetLanguage)))

	// Values
	mux.Handle("PUT /api/v1/values/{key}", chain(http.HandlerFunc(h.SetValue)))
	mux.Handle("DELETE /api/v1/values/{key}", chain(http.HandlerFunc(h.DeleteValue)))

	// Actions
	mux.Handle("GET /api/v1/actions", chain(http.HandlerFunc(h.ListActions)))
	mux.Handle("GET /api/v1/actions/{id}/status", chain(http.HandlerFunc(h.GetActionStatus)))
	mux.Handle("POST /api/v1/actions/{id}/run", chain(http.HandlerFunc(h.RunAction)))
	mux.Handle("POST /api/v1/actions/{id}/reset", chain(http.HandlerFunc(h.ResetAction)))

	// Runs
	mux.Handle("POST /api/v1/run", chain(http.HandlerFunc(h.RunAll)))
	mux.Handle("POST /api/v1/cancel", chain(http.HandlerFunc(h.Cancel)))

	// Events (SSE)
	mux.Handle("GET /api/v1/events", chain(http.HandlerFunc(h.Events)))
}
