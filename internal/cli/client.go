package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ActionStatusResponse — статус action из API.
type ActionStatusResponse struct {
	ActionID              string   `json:"actionId"`
	Playable              bool     `json:"playable"`
	Executed              bool     `json:"executed"`
	Status                string   `json:"status"`
	Error                 string   `json:"error,omitempty"`
	Attempts              int      `json:"attempts"`
	ExecutedAt            string   `json:"executedAt,omitempty"`
	DurationMs            int64    `json:"duration,omitempty"`
	MissingDependencies   []string `json:"missingDependencies"`
	HasCircularDependency bool     `json:"hasCircularDependency"`
	CyclePath             []string `json:"cyclePath,omitempty"`
}

// StateResponse — состояние сессии из API.
type StateResponse struct {
	SessionID string                 `json:"session_id"`
	Language  string                 `json:"language,omitempty"`
	Busy      bool                   `json:"busy"`
	Values    map[string]any         `json:"values"`
	Actions   []ActionStatusResponse `json:"actions"`
}

// GraphResponse — граф зависимостей из API.
type GraphResponse struct {
	Order        []string            `json:"order"`
	Dependencies map[string][]string `json:"dependencies"`
	Edges        map[string][]string `json:"edges"`
	Unresolved   map[string][]string `json:"unresolved,omitempty"`
	Cycles       [][]string          `json:"cycles,omitempty"`
}

// ActionResultResponse — итог action в отчёте.
type ActionResultResponse struct {
	ActionID   string `json:"actionId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Reason     string `json:"reason,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Value      any    `json:"value,omitempty"`
}

// ReportResponse — отчёт о проходе.
type ReportResponse struct {
	RunID      string                 `json:"runId"`
	StartedAt  string                 `json:"startedAt"`
	FinishedAt string                 `json:"finishedAt"`
	Results    []ActionResultResponse `json:"results"`
	Cancelled  bool                   `json:"cancelled,omitempty"`
}

// RunAcceptedResponse — ответ на фоновый запуск.
type RunAcceptedResponse struct {
	SessionID string `json:"session_id"`
	ActionID  string `json:"action_id,omitempty"`
}

// --- Request types ---

// RunRequest — параметры прохода.
type RunRequest struct {
	SkipSucceeded bool `json:"skip_succeeded,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Actionflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// runClient — без таймаута: запуск с ожиданием длится столько, сколько генерация.
	runClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		runClient: &http.Client{},
	}
}

// --- State ---

// GetState возвращает состояние сессии.
func (c *Client) GetState(ctx context.Context) (*StateResponse, error) {
	var st StateResponse
	err := c.get(ctx, "/api/v1/state", &st)
	return &st, err
}

// GetGraph возвращает граф зависимостей.
func (c *Client) GetGraph(ctx context.Context) (*GraphResponse, error) {
	var g GraphResponse
	err := c.get(ctx, "/api/v1/graph", &g)
	return &g, err
}

// GetActionStatus возвращает статус action.
func (c *Client) GetActionStatus(ctx context.Context, id string) (*ActionStatusResponse, error) {
	var st ActionStatusResponse
	err := c.get(ctx, "/api/v1/actions/"+url.PathEscape(id)+"/status", &st)
	return &st, err
}

// SetValue записывает значение в Value Bag.
func (c *Client) SetValue(ctx context.Context, key string, value any) error {
	body := map[string]any{"value": value}
	return c.doData(ctx, c.httpClient, http.MethodPut, "/api/v1/values/"+url.PathEscape(key), body, nil)
}

// DeleteValue удаляет значение из Value Bag.
func (c *Client) DeleteValue(ctx context.Context, key string) error {
	return c.doData(ctx, c.httpClient, http.MethodDelete, "/api/v1/values/"+url.PathEscape(key), nil, nil)
}

// SetLanguage меняет активный язык промптов.
func (c *Client) SetLanguage(ctx context.Context, lang string) error {
	body := map[string]string{"language": lang}
	return c.doData(ctx, c.httpClient, http.MethodPut, "/api/v1/language", body, nil)
}

// --- Execution ---

// RunAll запускает проход и ждёт отчёт.
func (c *Client) RunAll(ctx context.Context, req RunRequest) (*ReportResponse, error) {
	var report ReportResponse
	err := c.doData(ctx, c.runClient, http.MethodPost, "/api/v1/run?wait=true", req, &report)
	return &report, err
}

// StartAll запускает проход в фоне.
func (c *Client) StartAll(ctx context.Context, req RunRequest) (*RunAcceptedResponse, error) {
	var accepted RunAcceptedResponse
	err := c.post(ctx, "/api/v1/run", req, &accepted)
	return &accepted, err
}

// RunAction выполняет один action и ждёт отчёт.
func (c *Client) RunAction(ctx context.Context, id string) (*ReportResponse, error) {
	var report ReportResponse
	err := c.doData(ctx, c.runClient, http.MethodPost, "/api/v1/actions/"+url.PathEscape(id)+"/run?wait=true", nil, &report)
	return &report, err
}

// ResetAction сбрасывает выполнение action.
func (c *Client) ResetAction(ctx context.Context, id string) (*ActionStatusResponse, error) {
	var st ActionStatusResponse
	err := c.post(ctx, "/api/v1/actions/"+url.PathEscape(id)+"/reset", nil, &st)
	return &st, err
}

// Cancel прерывает текущее выполнение. Возвращает false, если сервер свободен.
func (c *Client) Cancel(ctx context.Context) (bool, error) {
	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.post(ctx, "/api/v1/cancel", nil, &resp)
	return resp.Cancelled, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, c.httpClient, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, c.httpClient, http.MethodPost, path, body, result)
}

func (c *Client) doData(ctx context.Context, hc *http.Client, method, path string, body any, result any) error {
	resp, err := c.do(ctx, hc, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return hc.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
