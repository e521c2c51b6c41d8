package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Actionflow/internal/domain"
	"github.com/shaiso/Actionflow/internal/provider"
	"github.com/shaiso/Actionflow/internal/state"
	"github.com/shaiso/Actionflow/internal/storage"
)

func newTestWorker(t *testing.T, app *domain.App, p provider.Provider, mem *storage.Mem) (*Worker, *state.Store) {
	t.Helper()
	store := state.New(app, state.Config{})
	w := New(Config{
		Store:                store,
		Provider:             p,
		Storage:              mem,
		PublicBaseURL:        "https://cdn.example.com",
		AvailabilityInterval: time.Millisecond,
		AvailabilityAttempts: 3,
	})
	w.newID = func() string { return "fixed" }
	return w, store
}

func singleAction(action domain.Action) *domain.App {
	return &domain.App{
		ID:              "app1",
		DefaultLanguage: "en",
		Inputs:          []domain.InputField{{Filename: "name", Type: domain.InputTypeText}},
		Actions:         []domain.Action{action},
	}
}

func greetAction() domain.Action {
	return domain.Action{
		ID:       "greet",
		Type:     domain.ActionTypeGenerateText,
		Filename: "greeting.txt",
		Prompt:   domain.LocalizedText{"en": "Hello ${input.name}"},
	}
}

func TestWorker_ExecuteText(t *testing.T) {
	mem := storage.NewMem()
	w, store := newTestWorker(t, singleAction(greetAction()), provider.NewMock(mem), mem)
	store.SetValue("name", "Ana")

	outcome, err := w.Execute(context.Background(), "greet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Text != "mock: Hello Ana" {
		t.Errorf("unexpected text: %q", outcome.Text)
	}

	value, ok := store.GetValue("greeting.txt")
	if !ok || value != "mock: Hello Ana" {
		t.Errorf("value not stored: %v", value)
	}

	meta := store.Meta("greet")
	if meta.Status != domain.ExecStatusSuccess || meta.Attempts != 1 || meta.ExecutedAt == nil {
		t.Errorf("unexpected meta: %+v", meta)
	}
}

func TestWorker_MissingDependency(t *testing.T) {
	mem := storage.NewMem()
	mock := provider.NewMock(mem)
	w, store := newTestWorker(t, singleAction(greetAction()), mock, mem)

	_, err := w.Execute(context.Background(), "greet")
	if !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency, got %v", err)
	}

	var missing *MissingDependencyError
	if !errors.As(err, &missing) || len(missing.Keys) != 1 || missing.Keys[0] != "name" {
		t.Errorf("unexpected missing keys: %+v", missing)
	}

	meta := store.Meta("greet")
	if meta.Status != domain.ExecStatusError || !strings.Contains(meta.Error, "name") {
		t.Errorf("unexpected meta: %+v", meta)
	}
	if len(mock.Calls()) != 0 {
		t.Errorf("provider must not be called, got %v", mock.Calls())
	}
}

func TestWorker_ProviderErrorThenRetry(t *testing.T) {
	mem := storage.NewMem()
	mock := provider.NewMock(mem)
	mock.Err = errors.New("quota exceeded")
	w, store := newTestWorker(t, singleAction(greetAction()), mock, mem)
	store.SetValue("name", "Ana")

	_, err := w.Execute(context.Background(), "greet")
	if !errors.Is(err, ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
	if meta := store.Meta("greet"); meta.Status != domain.ExecStatusError || !strings.Contains(meta.Error, "quota exceeded") {
		t.Errorf("unexpected meta: %+v", meta)
	}
	if store.HasValue("greeting.txt") {
		t.Error("failed action must not write a value")
	}

	mock.Err = nil
	if _, err := w.Execute(context.Background(), "greet"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	meta := store.Meta("greet")
	if meta.Status != domain.ExecStatusSuccess || meta.Attempts != 2 || meta.Error != "" {
		t.Errorf("unexpected meta after retry: %+v", meta)
	}
}

func TestWorker_CancelDuringProviderCall(t *testing.T) {
	mem := storage.NewMem()
	mock := provider.NewMock(mem)
	mock.Latency = time.Hour
	w, store := newTestWorker(t, singleAction(greetAction()), mock, mem)
	store.SetValue("name", "Ana")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for store.Meta("greet").Status != domain.ExecStatusLoading {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := w.Execute(ctx, "greet")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	meta := store.Meta("greet")
	if meta.Status != domain.ExecStatusIdle || meta.Error != "" {
		t.Errorf("cancelled action must be idle, got %+v", meta)
	}
	if store.HasValue("greeting.txt") {
		t.Error("cancelled action must not write a value")
	}
}

func TestWorker_CancelBeforeStart(t *testing.T) {
	mem := storage.NewMem()
	mock := provider.NewMock(mem)
	w, store := newTestWorker(t, singleAction(greetAction()), mock, mem)
	store.SetValue("name", "Ana")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Execute(ctx, "greet"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if meta := store.Meta("greet"); meta.Status != domain.ExecStatusIdle || meta.Attempts != 0 {
		t.Errorf("unexpected meta: %+v", meta)
	}
	if len(mock.Calls()) != 0 {
		t.Errorf("provider must not be called, got %v", mock.Calls())
	}
}

func TestWorker_UnknownAction(t *testing.T) {
	mem := storage.NewMem()
	w, _ := newTestWorker(t, singleAction(greetAction()), provider.NewMock(mem), mem)

	if _, err := w.Execute(context.Background(), "nope"); !errors.Is(err, state.ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestWorker_UnsupportedActionType(t *testing.T) {
	mem := storage.NewMem()
	store := state.New(&domain.App{
		ID:      "app1",
		Actions: []domain.Action{{ID: "x", Type: domain.ActionTypeGenerateText, Filename: "x.txt"}},
	}, state.Config{})
	w := New(Config{
		Store:    store,
		Provider: provider.NewMock(mem),
		Storage:  mem,
		Registry: &Registry{executors: map[domain.ActionType]Executor{}},
	})

	if _, err := w.Execute(context.Background(), "x"); !errors.Is(err, ErrUnsupportedActionType) {
		t.Fatalf("expected ErrUnsupportedActionType, got %v", err)
	}
	if store.Meta("x").Status != domain.ExecStatusError {
		t.Error("unsupported type must be recorded as error")
	}
}

func TestWorker_ExecuteJSON(t *testing.T) {
	mem := storage.NewMem()
	action := domain.Action{
		ID:       "facts",
		Type:     domain.ActionTypeGenerateJSON,
		Filename: "facts.json",
		Prompt:   domain.LocalizedText{"*": "Facts about {{name}}"},
	}
	w, store := newTestWorker(t, singleAction(action), provider.NewMock(mem), mem)
	store.SetValue("name", "cats")

	if _, err := w.Execute(context.Background(), "facts"); err != nil {
		t.Fatal(err)
	}

	value, _ := store.GetValue("facts.json")
	obj, ok := value.(map[string]any)
	if !ok || obj["prompt"] != "Facts about cats" {
		t.Errorf("unexpected object: %#v", value)
	}
}

func TestWorker_ExecuteImage(t *testing.T) {
	mem := storage.NewMem()
	action := domain.Action{
		ID:       "cover",
		Type:     domain.ActionTypeGenerateImage,
		Filename: "cover.png",
		Prompt:   domain.LocalizedText{"en": "A cover"},
	}
	w, store := newTestWorker(t, singleAction(action), provider.NewMock(mem), mem)

	outcome, err := w.Execute(context.Background(), "cover")
	if err != nil {
		t.Fatal(err)
	}

	wantPath := "apps/app1/files/fixed/cover.png"
	if outcome.Filepath != wantPath {
		t.Errorf("unexpected filepath: %s", outcome.Filepath)
	}
	if outcome.PublicURL != "https://cdn.example.com/"+wantPath {
		t.Errorf("unexpected url: %s", outcome.PublicURL)
	}

	public, err := storage.IsPublic(context.Background(), mem, wantPath)
	if err != nil || !public {
		t.Errorf("file should be public: %v %v", public, err)
	}

	value, _ := store.GetValue("cover.png")
	ref, ok := domain.AsFileRef(value)
	if !ok || ref.Filepath != wantPath || ref.MimeType != "image/png" {
		t.Errorf("unexpected value: %#v", value)
	}
}

// multiFileProvider дописывает к результату изображения второй файл.
type multiFileProvider struct {
	*provider.Mock
	extra string
}

func (p *multiFileProvider) GenerateImage(ctx context.Context, req provider.ImageRequest) (*provider.Result, error) {
	res, err := p.Mock.GenerateImage(ctx, req)
	if err != nil {
		return nil, err
	}
	if p.extra != "" {
		if err := p.Mock.Storage.Write(ctx, p.extra, []byte("thumb")); err != nil {
			return nil, err
		}
	}
	res.Filepaths = append(res.Filepaths, "", p.extra)
	return res, nil
}

func TestWorker_ExecuteImage_AllFilesPublished(t *testing.T) {
	mem := storage.NewMem()
	action := domain.Action{
		ID:       "cover",
		Type:     domain.ActionTypeGenerateImage,
		Filename: "cover.png",
		Prompt:   domain.LocalizedText{"en": "A cover"},
	}
	extra := "apps/app1/files/fixed/cover-thumb.png"
	w, store := newTestWorker(t, singleAction(action), &multiFileProvider{Mock: provider.NewMock(mem), extra: extra}, mem)

	outcome, err := w.Execute(context.Background(), "cover")
	if err != nil {
		t.Fatal(err)
	}

	if len(outcome.Files) != 2 {
		t.Fatalf("expected 2 files, got %+v", outcome.Files)
	}
	for _, f := range outcome.Files {
		public, err := storage.IsPublic(context.Background(), mem, f.Filepath)
		if err != nil || !public {
			t.Errorf("%s should be public: %v %v", f.Filepath, public, err)
		}
		if f.PublicURL != "https://cdn.example.com/"+f.Filepath || f.MimeType != "image/png" {
			t.Errorf("unexpected file: %+v", f)
		}
	}
	if outcome.Files[1].Filepath != extra {
		t.Errorf("unexpected second file: %+v", outcome.Files[1])
	}

	value, _ := store.GetValue("cover.png")
	if ref, ok := domain.AsFileRef(value); !ok || ref.Filepath != outcome.Files[0].Filepath {
		t.Errorf("value bag must hold the first file: %#v", value)
	}
}

// pathOnlyProvider возвращает путь файла, ничего не записывая.
type pathOnlyProvider struct {
	*provider.Mock
}

func (p *pathOnlyProvider) GenerateImage(ctx context.Context, req provider.ImageRequest) (*provider.Result, error) {
	return &provider.Result{Filepaths: []string{req.OutputPath}, MimeType: "image/png"}, nil
}

func TestWorker_NoStorageTreatsFilesAsAvailable(t *testing.T) {
	store := state.New(singleAction(domain.Action{
		ID: "cover", Type: domain.ActionTypeGenerateImage, Filename: "cover.png",
		Prompt: domain.LocalizedText{"en": "A cover"},
	}), state.Config{})
	w := New(Config{
		Store:                store,
		Provider:             &pathOnlyProvider{Mock: provider.NewMock(nil)},
		AvailabilityInterval: time.Millisecond,
	})

	outcome, err := w.Execute(context.Background(), "cover")
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Filepath == "" || store.Meta("cover").Status != domain.ExecStatusSuccess {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestWorker_RejectsCircularDependency(t *testing.T) {
	mem := storage.NewMem()
	mock := provider.NewMock(mem)
	app := &domain.App{
		ID: "app1",
		Actions: []domain.Action{
			{ID: "a", Type: domain.ActionTypeGenerateText, Filename: "a.txt", Prompt: domain.LocalizedText{"en": "From @b.txt"}},
			{ID: "b", Type: domain.ActionTypeGenerateText, Filename: "b.txt", Prompt: domain.LocalizedText{"en": "From @a.txt"}},
		},
	}
	w, store := newTestWorker(t, app, mock, mem)
	store.SetValue("a.txt", "restored a")
	store.SetValue("b.txt", "restored b")

	_, err := w.Execute(context.Background(), "a")
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("expected ErrCircularDependency, got %v", err)
	}
	if len(mock.Calls()) != 0 {
		t.Errorf("provider must not be called, got %v", mock.Calls())
	}
	if v, _ := store.GetValue("a.txt"); v != "restored a" {
		t.Errorf("value must be kept, got %v", v)
	}
}

type fakeChecker struct {
	calls  atomic.Int32
	readyN int32
}

func (c *fakeChecker) Available(ctx context.Context, _, _ string) (bool, error) {
	n := c.calls.Add(1)
	return c.readyN > 0 && n >= c.readyN, nil
}

func TestWorker_AvailabilityTimeoutStillSucceeds(t *testing.T) {
	mem := storage.NewMem()
	checker := &fakeChecker{}
	store := state.New(singleAction(domain.Action{
		ID: "voice", Type: domain.ActionTypeGenerateAudio, Filename: "voice.mp3",
		Prompt: domain.LocalizedText{"en": "Say hi"},
	}), state.Config{})
	w := New(Config{
		Store:                store,
		Provider:             provider.NewMock(mem),
		Storage:              mem,
		Checker:              checker,
		AvailabilityInterval: time.Millisecond,
		AvailabilityAttempts: 3,
	})

	outcome, err := w.Execute(context.Background(), "voice")
	if err != nil {
		t.Fatalf("timeout must not fail the action: %v", err)
	}
	if checker.calls.Load() != 3 {
		t.Errorf("expected 3 checks, got %d", checker.calls.Load())
	}
	if outcome.PublicURL == "" || store.Meta("voice").Status != domain.ExecStatusSuccess {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestWorker_AvailabilityBecomesReady(t *testing.T) {
	mem := storage.NewMem()
	checker := &fakeChecker{readyN: 2}
	store := state.New(singleAction(domain.Action{
		ID: "cover", Type: domain.ActionTypeGenerateImage, Filename: "cover.png",
	}), state.Config{})
	w := New(Config{
		Store:                store,
		Provider:             provider.NewMock(mem),
		Storage:              mem,
		Checker:              checker,
		AvailabilityInterval: time.Millisecond,
	})

	if _, err := w.Execute(context.Background(), "cover"); err != nil {
		t.Fatal(err)
	}
	if checker.calls.Load() != 2 {
		t.Errorf("expected polling to stop after ready, got %d checks", checker.calls.Load())
	}
}

func TestHTTPChecker(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		switch r.URL.Path {
		case "/ready.png":
			w.WriteHeader(http.StatusOK)
		case "/broken.png":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			hits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	tests := []struct {
		name    string
		path    string
		want    bool
		wantErr bool
	}{
		{"ready", "/ready.png", true, false},
		{"not yet", "/missing.png", false, false},
		{"server error", "/broken.png", false, true},
	}

	checker := HTTPChecker{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.Available(context.Background(), "", server.URL+tt.path)
			if got != tt.want || (err != nil) != tt.wantErr {
				t.Errorf("got %v, %v", got, err)
			}
		})
	}
}

func TestWorker_LanguageSelection(t *testing.T) {
	action := domain.Action{
		ID:       "hi",
		Type:     domain.ActionTypeGenerateText,
		Filename: "hi.txt",
		Prompt:   domain.LocalizedText{"en": "Hi", "ru": "Привет"},
	}

	tests := []struct {
		lang string
		want string
	}{
		{"ru", "mock: Привет"},
		{"en", "mock: Hi"},
		{"de", "mock: Hi"},
		{"", "mock: Hi"},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			mem := storage.NewMem()
			w, _ := newTestWorker(t, singleAction(action), provider.NewMock(mem), mem)
			w.SetLanguage(tt.lang)

			outcome, err := w.Execute(context.Background(), "hi")
			if err != nil {
				t.Fatal(err)
			}
			if outcome.Text != tt.want {
				t.Errorf("got %q, want %q", outcome.Text, tt.want)
			}
		})
	}
}

// recordingProvider запоминает последние запросы.
type recordingProvider struct {
	*provider.Mock

	mu     sync.Mutex
	text   provider.TextRequest
	object provider.ObjectRequest
	image  provider.ImageRequest
	audio  provider.AudioRequest
	video  provider.VideoRequest
}

func (p *recordingProvider) GenerateText(ctx context.Context, req provider.TextRequest) (*provider.Result, error) {
	p.mu.Lock()
	p.text = req
	p.mu.Unlock()
	return p.Mock.GenerateText(ctx, req)
}

func (p *recordingProvider) GenerateObject(ctx context.Context, req provider.ObjectRequest) (*provider.Result, error) {
	p.mu.Lock()
	p.object = req
	p.mu.Unlock()
	return p.Mock.GenerateObject(ctx, req)
}

func (p *recordingProvider) GenerateImage(ctx context.Context, req provider.ImageRequest) (*provider.Result, error) {
	p.mu.Lock()
	p.image = req
	p.mu.Unlock()
	return p.Mock.GenerateImage(ctx, req)
}

func (p *recordingProvider) GenerateAudio(ctx context.Context, req provider.AudioRequest) (*provider.Result, error) {
	p.mu.Lock()
	p.audio = req
	p.mu.Unlock()
	return p.Mock.GenerateAudio(ctx, req)
}

func (p *recordingProvider) GenerateVideo(ctx context.Context, req provider.VideoRequest) (*provider.Result, error) {
	p.mu.Lock()
	p.video = req
	p.mu.Unlock()
	return p.Mock.GenerateVideo(ctx, req)
}

func TestExecutors_Defaults(t *testing.T) {
	mem := storage.NewMem()
	p := &recordingProvider{Mock: provider.NewMock(mem)}
	ctx := context.Background()
	out := "apps/a/files/x/out.bin"

	TextExecutor{}.Execute(ctx, p, Request{Config: map[string]any{"model": "Best"}})
	if p.text.Model != "gpt-4o-mini" || p.text.Temperature != 0.7 {
		t.Errorf("text defaults: %+v", p.text)
	}

	schema := map[string]any{"type": "object"}
	JSONExecutor{}.Execute(ctx, p, Request{Config: map[string]any{"schema": schema}})
	if p.object.Model != "gpt-4o-mini" || p.object.Temperature != 0.2 || p.object.Schema == nil {
		t.Errorf("json defaults: %+v", p.object)
	}

	ImageExecutor{}.Execute(ctx, p, Request{OutputPath: out})
	if p.image.Model != "dall-e-3" || p.image.Size != "1024x1024" || p.image.OutputPath != out {
		t.Errorf("image defaults: %+v", p.image)
	}

	AudioExecutor{}.Execute(ctx, p, Request{Prompt: "hi", OutputPath: out, Config: map[string]any{"voice": ""}})
	if p.audio.Model != "tts-1" || p.audio.Voice != "alloy" || p.audio.Format != "mp3" || p.audio.Text != "hi" {
		t.Errorf("audio defaults: %+v", p.audio)
	}

	VideoExecutor{}.Execute(ctx, p, Request{OutputPath: out})
	if p.video.Model != "default" || p.video.DurationSeconds != 5 {
		t.Errorf("video defaults: %+v", p.video)
	}
}

func TestExecutors_ExplicitConfig(t *testing.T) {
	mem := storage.NewMem()
	p := &recordingProvider{Mock: provider.NewMock(mem)}
	ctx := context.Background()

	TextExecutor{}.Execute(ctx, p, Request{Config: map[string]any{"model": "gpt-4o", "temperature": "0.1"}})
	if p.text.Model != "gpt-4o" || p.text.Temperature != 0.1 {
		t.Errorf("text config: %+v", p.text)
	}

	VideoExecutor{}.Execute(ctx, p, Request{OutputPath: "v/clip.mp4", Config: map[string]any{"duration": 12.0}})
	if p.video.DurationSeconds != 12 {
		t.Errorf("video duration: %+v", p.video)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	for _, typ := range domain.ActionTypes() {
		if _, err := r.Get(typ); err != nil {
			t.Errorf("%s: %v", typ, err)
		}
	}
	if _, err := r.Get("generate-hologram"); !errors.Is(err, ErrUnsupportedActionType) {
		t.Errorf("expected ErrUnsupportedActionType, got %v", err)
	}
}
