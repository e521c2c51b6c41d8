package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// GetApp возвращает определение приложения.
// GET /api/v1/app
func (h *Handler) GetApp(w http.ResponseWriter, r *http.Request) {
	Success(w, h.session.Store().App())
}

// GetState возвращает Value Bag и статусы всех action.
// GET /api/v1/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	store := h.session.Store()

	Success(w, StateResponse{
		SessionID: h.session.ID(),
		Language:  h.session.Language(),
		Busy:      h.session.Busy(),
		Values:    store.Values(),
		Actions:   store.Statuses(),
	})
}

// ListActions возвращает статусы action в порядке списка.
// GET /api/v1/actions
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	statuses := h.session.Store().Statuses()
	List(w, statuses, len(statuses))
}

// GetGraph возвращает граф зависимостей.
// GET /api/v1/graph
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	Success(w, GraphFromEngine(h.session.Store().Graph()))
}

// GetActionStatus возвращает статус action.
// GET /api/v1/actions/{id}/status
func (h *Handler) GetActionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.session.Store().GetActionStatus(r.PathValue("id"))
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, st)
}

// SetValue записывает значение в Value Bag.
// PUT /api/v1/values/{key}
func (h *Handler) SetValue(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))
	if key == "" {
		BadRequest(w, "key is required")
		return
	}

	var req SetValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	h.session.Store().SetValue(key, req.Value)
	Success(w, ValueResponse{Key: key, Value: req.Value})
}

// DeleteValue удаляет значение из Value Bag.
// DELETE /api/v1/values/{key}
func (h *Handler) DeleteValue(w http.ResponseWriter, r *http.Request) {
	h.session.Store().DeleteValue(r.PathValue("key"))
	NoContent(w)
}

// SetLanguage меняет активный язык промптов.
// PUT /api/v1/language
func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req SetLanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	h.session.SetLanguage(req.Language)
	Success(w, req)
}
