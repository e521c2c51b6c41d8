package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shaiso/Actionflow/internal/orchestrator"
	"github.com/shaiso/Actionflow/internal/session"
)

// RunAction запускает один action.
// POST /api/v1/actions/{id}/run[?wait=true]
func (h *Handler) RunAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	st, err := h.session.Store().GetActionStatus(id)
	if HandleError(w, h.logger, err) {
		return
	}
	if !st.Playable {
		InvalidState(w, "action is not playable: "+id)
		return
	}

	h.start(w, r, id, func(ctx context.Context) (session.Run, error) {
		return h.session.StartAction(ctx, id, nil)
	})
}

// RunAll запускает проход по всем playable action.
// POST /api/v1/run[?wait=true]
func (h *Handler) RunAll(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	h.start(w, r, "", func(ctx context.Context) (session.Run, error) {
		return h.session.StartAll(ctx, orchestrator.RunOptions{SkipSucceeded: req.SkipSucceeded})
	})
}

// start занимает сессию и выполняет операцию синхронно (wait=true) или в фоне.
//
// Сессия занимается до ответа: занятая сессия → 409 в обоих режимах.
// Фоновое выполнение не зависит от запроса: отмена только через /cancel.
func (h *Handler) start(w http.ResponseWriter, r *http.Request, actionID string, begin func(context.Context) (session.Run, error)) {
	if r.URL.Query().Get("wait") == "true" {
		run, err := begin(r.Context())
		if HandleError(w, h.logger, err) {
			return
		}
		report, err := run()
		if report != nil && (err == nil || report.Cancelled) {
			Success(w, report)
			return
		}
		HandleError(w, h.logger, err)
		return
	}

	run, err := begin(context.WithoutCancel(r.Context()))
	if HandleError(w, h.logger, err) {
		return
	}

	go func() {
		report, err := run()
		if err != nil && (report == nil || !report.Cancelled) {
			h.logger.Warn("background run failed", "action_id", actionID, "error", err)
		}
	}()

	Accepted(w, RunAcceptedResponse{SessionID: h.session.ID(), ActionID: actionID})
}

// ResetAction сбрасывает выполнение action.
// POST /api/v1/actions/{id}/reset
func (h *Handler) ResetAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if HandleError(w, h.logger, h.session.Reset(id)) {
		return
	}

	st, err := h.session.Store().GetActionStatus(id)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, st)
}

// Cancel прерывает текущее выполнение.
// POST /api/v1/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	Success(w, CancelResponse{Cancelled: h.session.Cancel()})
}
