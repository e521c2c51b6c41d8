package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Actionflow/internal/domain"
	"github.com/shaiso/Actionflow/internal/orchestrator"
	"github.com/shaiso/Actionflow/internal/provider"
	"github.com/shaiso/Actionflow/internal/session"
	"github.com/shaiso/Actionflow/internal/state"
	"github.com/shaiso/Actionflow/internal/storage"
	"github.com/shaiso/Actionflow/internal/worker"
)

func newTestMux(t *testing.T) (*http.ServeMux, *session.Session) {
	t.Helper()

	mem := storage.NewMem()
	s, err := session.Open(context.Background(), session.Config{
		App: &domain.App{
			ID:     "app1",
			Inputs: []domain.InputField{{Filename: "topic", Type: domain.InputTypeText}},
			Actions: []domain.Action{
				{ID: "outline", Type: domain.ActionTypeGenerateText, Filename: "outline.md", Prompt: domain.LocalizedText{"en": "Outline ${input.topic}"}},
				{ID: "post", Type: domain.ActionTypeGenerateText, Filename: "post.md", Prompt: domain.LocalizedText{"en": "Write @outline.md"}},
			},
		},
		Storage:  mem,
		Provider: provider.NewMock(mem),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })

	mux := http.NewServeMux()
	NewHandler(Config{Session: s}).RegisterRoutes(mux)
	return mux, s
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func TestValuesAndState(t *testing.T) {
	mux, s := newTestMux(t)

	rec := do(t, mux, http.MethodPut, "/api/v1/values/topic", `{"value":"cats"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body)
	}
	if v, _ := s.Store().GetValue("topic"); v != "cats" {
		t.Errorf("value not stored: %v", v)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/state", "")
	st := decode[StateResponse](t, rec)
	if st.SessionID != s.ID() || st.Values["topic"] != "cats" || len(st.Actions) != 2 {
		t.Errorf("unexpected state: %+v", st)
	}
	if !st.Actions[0].Playable || st.Actions[1].Playable {
		t.Errorf("unexpected playability: %+v", st.Actions)
	}

	rec = do(t, mux, http.MethodDelete, "/api/v1/values/topic", "")
	if rec.Code != http.StatusNoContent || s.Store().HasValue("topic") {
		t.Errorf("delete failed: %d", rec.Code)
	}

	rec = do(t, mux, http.MethodPut, "/api/v1/values/topic", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetActionStatus(t *testing.T) {
	mux, _ := newTestMux(t)

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/actions/outline/status", http.StatusOK},
		{"/api/v1/actions/missing/status", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, mux, http.MethodGet, tt.path, "")
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body)
			}
		})
	}

	rec := do(t, mux, http.MethodGet, "/api/v1/actions/post/status", "")
	st := decode[state.ActionStatus](t, rec)
	if len(st.MissingDependencies) != 1 || st.MissingDependencies[0] != "outline.md" {
		t.Errorf("unexpected missing dependencies: %v", st.MissingDependencies)
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown action", fmt.Errorf("%w: x", state.ErrUnknownAction), http.StatusNotFound},
		{"busy", session.ErrBusy, http.StatusConflict},
		{"circular dependency", fmt.Errorf("%w: a -> b -> a", worker.ErrCircularDependency), http.StatusUnprocessableEntity},
		{"missing dependency", &worker.MissingDependencyError{ActionID: "a", Keys: []string{"b.txt"}}, http.StatusUnprocessableEntity},
		{"closed", session.ErrClosed, http.StatusServiceUnavailable},
		{"provider", fmt.Errorf("%w: quota", worker.ErrProviderError), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if !HandleError(rec, slog.Default(), tt.err) {
				t.Fatal("expected error to be handled")
			}
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}

	if HandleError(httptest.NewRecorder(), slog.Default(), nil) {
		t.Error("nil error must not be handled")
	}
}

func TestGetGraph(t *testing.T) {
	mux, _ := newTestMux(t)

	g := decode[GraphResponse](t, do(t, mux, http.MethodGet, "/api/v1/graph", ""))
	if strings.Join(g.Order, ",") != "outline,post" {
		t.Errorf("unexpected order: %v", g.Order)
	}
	if len(g.Edges["post"]) != 1 || g.Edges["post"][0] != "outline" {
		t.Errorf("unexpected edges: %v", g.Edges)
	}
}

func TestRunAction_Wait(t *testing.T) {
	mux, s := newTestMux(t)
	s.Store().SetValue("topic", "cats")

	rec := do(t, mux, http.MethodPost, "/api/v1/actions/post/run?wait=true", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for blocked action, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/actions/outline/run?wait=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body)
	}
	report := decode[struct {
		Results []orchestrator.ActionResult `json:"results"`
	}](t, rec)
	if len(report.Results) != 1 || report.Results[0].Value != "mock: Outline cats" {
		t.Errorf("unexpected report: %+v", report.Results)
	}

	rec = do(t, mux, http.MethodPost, "/api/v1/actions/outline/reset", "")
	st := decode[state.ActionStatus](t, rec)
	if st.Status != domain.ExecStatusIdle || s.Store().HasValue("outline.md") {
		t.Errorf("unexpected status after reset: %+v", st)
	}
}

func TestRunAll_Async(t *testing.T) {
	mux, s := newTestMux(t)
	s.Store().SetValue("topic", "cats")

	rec := do(t, mux, http.MethodPost, "/api/v1/run", `{"skip_succeeded":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !s.Store().HasValue("post.md") {
		if time.Now().After(deadline) {
			t.Fatal("run did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if v, _ := s.Store().GetValue("post.md"); v != "mock: Write mock: Outline cats" {
		t.Errorf("unexpected post: %v", v)
	}
}

func TestRunAll_Busy(t *testing.T) {
	mem := storage.NewMem()
	mock := provider.NewMock(mem)
	mock.Latency = time.Hour

	s, err := session.Open(context.Background(), session.Config{
		App: &domain.App{ID: "app1", Actions: []domain.Action{
			{ID: "a", Type: domain.ActionTypeGenerateText, Filename: "a.txt", Prompt: domain.LocalizedText{"en": "hi"}},
		}},
		Storage:  mem,
		Provider: mock,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(context.Background())

	mux := http.NewServeMux()
	NewHandler(Config{Session: s}).RegisterRoutes(mux)

	if rec := do(t, mux, http.MethodPost, "/api/v1/run", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	for !s.Busy() {
		time.Sleep(time.Millisecond)
	}

	if rec := do(t, mux, http.MethodPost, "/api/v1/run?wait=true", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	rec := do(t, mux, http.MethodPost, "/api/v1/cancel", "")
	if c := decode[CancelResponse](t, rec); !c.Cancelled {
		t.Error("expected running operation to be cancelled")
	}
}

func TestRunAll_BackToBackAsync(t *testing.T) {
	mem := storage.NewMem()
	mock := provider.NewMock(mem)
	mock.Latency = time.Hour

	s, err := session.Open(context.Background(), session.Config{
		App: &domain.App{ID: "app1", Actions: []domain.Action{
			{ID: "a", Type: domain.ActionTypeGenerateText, Filename: "a.txt", Prompt: domain.LocalizedText{"en": "hi"}},
		}},
		Storage:  mem,
		Provider: mock,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(context.Background())

	mux := http.NewServeMux()
	NewHandler(Config{Session: s}).RegisterRoutes(mux)

	if rec := do(t, mux, http.MethodPost, "/api/v1/run", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !s.Busy() {
		t.Fatal("session must be claimed before the response")
	}

	tests := []struct {
		name string
		path string
	}{
		{"run all", "/api/v1/run"},
		{"run action", "/api/v1/actions/a/run"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, mux, http.MethodPost, tt.path, ""); rec.Code != http.StatusConflict {
				t.Errorf("expected 409, got %d", rec.Code)
			}
		})
	}

	do(t, mux, http.MethodPost, "/api/v1/cancel", "")
	deadline := time.Now().Add(2 * time.Second)
	for s.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("session still busy after cancel")
		}
		time.Sleep(time.Millisecond)
	}

	if rec := do(t, mux, http.MethodPost, "/api/v1/run", ""); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202 after cancel, got %d", rec.Code)
	}
	s.Cancel()
}

func TestEvents(t *testing.T) {
	mux, s := newTestMux(t)
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	// Комментарий с ID сессии приходит сразу после подписки.
	if line, err := reader.ReadString('\n'); err != nil || !strings.Contains(line, s.ID()) {
		t.Fatalf("unexpected greeting %q: %v", line, err)
	}

	s.Store().SetValue("topic", "dogs")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if strings.HasPrefix(line, "event: ") {
			if kind := strings.TrimSpace(strings.TrimPrefix(line, "event: ")); kind != string(state.EventValueSet) {
				t.Errorf("unexpected event kind: %s", kind)
			}
			return
		}
	}
}
