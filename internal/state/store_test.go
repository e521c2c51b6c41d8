package state

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Actionflow/internal/domain"
)

func textAction(id, filename, prompt string) domain.Action {
	return domain.Action{
		ID:       id,
		Type:     domain.ActionTypeGenerateText,
		Filename: filename,
		Prompt:   domain.LocalizedText{"en": prompt},
	}
}

// chainApp — A (без зависимостей) → B → C.
func chainApp() *domain.App {
	return &domain.App{
		ID: "chain",
		Actions: []domain.Action{
			textAction("A", "a.txt", "Start"),
			textAction("B", "b.txt", "Continue @a.txt"),
			textAction("C", "c.txt", "Finish {{b.txt}}"),
		},
	}
}

func mustStatus(t *testing.T, s *Store, id string) ActionStatus {
	t.Helper()
	st, err := s.GetActionStatus(id)
	if err != nil {
		t.Fatalf("status %s: %v", id, err)
	}
	return st
}

func complete(t *testing.T, s *Store, id string, value any) {
	t.Helper()
	ticket, err := s.BeginExecution(id)
	if err != nil {
		t.Fatalf("begin %s: %v", id, err)
	}
	if !s.CompleteExecution(ticket, value, 10*time.Millisecond) {
		t.Fatalf("complete %s: stale ticket", id)
	}
}

func TestStore_ChainPlayability(t *testing.T) {
	s := New(chainApp(), Config{})

	if !mustStatus(t, s, "A").Playable {
		t.Error("A should be playable")
	}
	if mustStatus(t, s, "B").Playable {
		t.Error("B should not be playable before A")
	}
	if mustStatus(t, s, "C").Playable {
		t.Error("C should not be playable before B")
	}

	complete(t, s, "A", "alpha")

	if !mustStatus(t, s, "B").Playable {
		t.Error("B should be playable after A")
	}
	c := mustStatus(t, s, "C")
	if c.Playable {
		t.Error("C should not be playable before B")
	}
	if !reflect.DeepEqual(c.MissingDependencies, []string{"b.txt"}) {
		t.Errorf("C missing: %v", c.MissingDependencies)
	}

	complete(t, s, "B", "beta")

	if !mustStatus(t, s, "C").Playable {
		t.Error("C should be playable after B")
	}
}

func TestStore_PlayableIffDependenciesHaveValues(t *testing.T) {
	app := &domain.App{
		Inputs: []domain.InputField{
			{Filename: "topic", Type: domain.InputTypeText},
			{Filename: "tone", Type: domain.InputTypeSelect},
		},
		Actions: []domain.Action{
			textAction("A", "a.txt", "${input.topic} in {{tone}}"),
		},
	}
	s := New(app, Config{})

	tests := []struct {
		name     string
		values   map[string]any
		playable bool
		missing  []string
	}{
		{"none", nil, false, []string{"topic", "tone"}},
		{"one", map[string]any{"topic": "cats"}, false, []string{"tone"}},
		{"nil value", map[string]any{"topic": "cats", "tone": nil}, false, []string{"tone"}},
		{"all", map[string]any{"topic": "cats", "tone": "dry"}, true, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.DeleteValue("topic")
			s.DeleteValue("tone")
			for k, v := range tt.values {
				s.SetValue(k, v)
			}

			st := mustStatus(t, s, "A")
			if st.Playable != tt.playable {
				t.Errorf("expected playable=%v, got %v", tt.playable, st.Playable)
			}
			if !reflect.DeepEqual(st.MissingDependencies, tt.missing) {
				t.Errorf("expected missing %v, got %v", tt.missing, st.MissingDependencies)
			}
		})
	}
}

func TestStore_CycleNotPlayable(t *testing.T) {
	app := &domain.App{
		Actions: []domain.Action{
			textAction("a", "a.txt", "{{b.txt}}"),
			textAction("b", "b.txt", "{{a.txt}}"),
			textAction("c", "c.txt", "independent"),
		},
	}
	s := New(app, Config{})

	// даже при наличии значений action на цикле не запускается
	s.SetValue("a.txt", "x")
	s.SetValue("b.txt", "y")

	for _, id := range []string{"a", "b"} {
		st := mustStatus(t, s, id)
		if !st.HasCircularDependency {
			t.Errorf("%s should have circular dependency", id)
		}
		if st.Playable {
			t.Errorf("%s should not be playable", id)
		}
		if len(st.CyclePath) == 0 {
			t.Errorf("%s should report cycle path", id)
		}
	}

	c := mustStatus(t, s, "c")
	if c.HasCircularDependency || !c.Playable {
		t.Errorf("c should be unaffected: %+v", c)
	}
}

func TestStore_UnresolvedReference(t *testing.T) {
	app := &domain.App{
		Actions: []domain.Action{textAction("D", "d.txt", "Summarize @report.md")},
	}
	s := New(app, Config{})

	st := mustStatus(t, s, "D")
	if st.Playable {
		t.Error("D should not be playable")
	}
	if !reflect.DeepEqual(st.MissingDependencies, []string{"report.md"}) {
		t.Errorf("missing: %v", st.MissingDependencies)
	}
}

func TestStore_SetValueCopies(t *testing.T) {
	s := New(&domain.App{}, Config{})

	original := map[string]any{"title": "first", "tags": []any{"a"}}
	s.SetValue("obj", original)

	original["title"] = "changed"
	original["tags"].([]any)[0] = "changed"

	got, ok := s.GetValue("obj")
	if !ok {
		t.Fatal("value should exist")
	}
	m := got.(map[string]any)
	if m["title"] != "first" || m["tags"].([]any)[0] != "a" {
		t.Errorf("stored value aliases caller data: %v", m)
	}

	// возвращённое значение тоже не связано с хранилищем
	m["title"] = "mutated"
	again, _ := s.GetValue("obj")
	if again.(map[string]any)["title"] != "first" {
		t.Error("returned value aliases stored data")
	}
}

func TestStore_SetValueUncopyableFallsBack(t *testing.T) {
	s := New(&domain.App{}, Config{})

	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	s.SetValue("loop", cyclic)

	if !s.HasValue("loop") {
		t.Fatal("value should be stored despite copy failure")
	}
	got, _ := s.GetValue("loop")
	if reflect.ValueOf(got).Pointer() != reflect.ValueOf(cyclic).Pointer() {
		t.Error("expected original reference to be stored")
	}
}

func TestStore_SubscriberPanicDoesNotStopOthers(t *testing.T) {
	s := New(&domain.App{}, Config{})

	var calls atomic.Int32
	s.Subscribe(func(Event) { panic("boom") })
	s.Subscribe(func(Event) { calls.Add(1) })

	s.SetValue("k", "v")

	if calls.Load() != 1 {
		t.Errorf("expected healthy subscriber to be called once, got %d", calls.Load())
	}
	if v, _ := s.GetValue("k"); v != "v" {
		t.Errorf("store corrupted: %v", v)
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := New(&domain.App{}, Config{})

	var calls atomic.Int32
	unsubscribe := s.Subscribe(func(Event) { calls.Add(1) })

	s.SetValue("a", 1)
	unsubscribe()
	unsubscribe()
	s.SetValue("b", 2)

	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestStore_SubscriberCanReadStore(t *testing.T) {
	s := New(chainApp(), Config{})

	var seen domain.ExecStatus
	s.Subscribe(func(e Event) {
		if e.Kind == EventMetaChanged {
			seen = s.Meta(e.ActionID).Status
		}
	})

	if _, err := s.BeginExecution("A"); err != nil {
		t.Fatal(err)
	}
	if seen != domain.ExecStatusLoading {
		t.Errorf("expected loading, got %s", seen)
	}
}

func TestStore_ExecutionLifecycle(t *testing.T) {
	s := New(chainApp(), Config{})

	ticket, err := s.BeginExecution("A")
	if err != nil {
		t.Fatal(err)
	}
	if s.Meta("A").Status != domain.ExecStatusLoading {
		t.Errorf("expected loading, got %s", s.Meta("A").Status)
	}
	if s.App().Action("A").State != domain.ActionStateLoading {
		t.Error("action state cache should be loading")
	}

	if !s.FailExecution(ticket, errors.New("provider down"), time.Second) {
		t.Fatal("fail should apply")
	}

	st := mustStatus(t, s, "A")
	if st.Status != domain.ExecStatusError || st.Error != "provider down" || st.Attempts != 1 {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.ExecutedAt == nil || st.DurationMs != 1000 {
		t.Errorf("expected executedAt and duration: %+v", st)
	}

	// retry из error
	complete(t, s, "A", "ok")
	st = mustStatus(t, s, "A")
	if st.Status != domain.ExecStatusSuccess || st.Error != "" || st.Attempts != 2 || !st.Executed {
		t.Errorf("unexpected status after retry: %+v", st)
	}
	if v, _ := s.GetValue("a.txt"); v != "ok" {
		t.Errorf("value: %v", v)
	}

	// повторный запуск из success
	complete(t, s, "A", "again")
	if s.Meta("A").Attempts != 3 {
		t.Errorf("attempts should grow monotonically, got %d", s.Meta("A").Attempts)
	}
}

func TestStore_StaleTicketIgnored(t *testing.T) {
	s := New(chainApp(), Config{})

	ticket, _ := s.BeginExecution("A")
	if !s.AbortExecution(ticket) {
		t.Fatal("abort should apply")
	}
	if s.Meta("A").Status != domain.ExecStatusIdle {
		t.Errorf("expected idle after abort, got %s", s.Meta("A").Status)
	}

	// поздний результат после отмены не записывается
	if s.CompleteExecution(ticket, "late", time.Second) {
		t.Error("stale complete should be ignored")
	}
	if s.FailExecution(ticket, errors.New("late"), time.Second) {
		t.Error("stale fail should be ignored")
	}
	if s.HasValue("a.txt") {
		t.Error("late value must not be written")
	}
	if s.Meta("A").Status != domain.ExecStatusIdle {
		t.Errorf("status changed by stale ticket: %s", s.Meta("A").Status)
	}

	// новый запуск делает предыдущий тикет неактуальным
	first, _ := s.BeginExecution("A")
	second, _ := s.BeginExecution("A")
	if s.IsCurrent(first) || !s.IsCurrent(second) {
		t.Error("only the latest ticket should be current")
	}
}

func TestStore_MarkActionFailed(t *testing.T) {
	s := New(chainApp(), Config{})

	if err := s.MarkActionFailed("A", errors.New("bad")); err != nil {
		t.Fatal(err)
	}
	if m := s.Meta("A"); m.Status != domain.ExecStatusError || m.Attempts != 1 || m.Error != "bad" {
		t.Errorf("unexpected meta: %+v", m)
	}

	// во время выполнения попытка уже учтена
	ticket, _ := s.BeginExecution("A")
	if err := s.MarkActionFailed("A", errors.New("worse")); err != nil {
		t.Fatal(err)
	}
	if m := s.Meta("A"); m.Attempts != 2 || m.Error != "worse" {
		t.Errorf("unexpected meta: %+v", m)
	}
	if s.IsCurrent(ticket) {
		t.Error("ticket should be invalidated")
	}

	if err := s.MarkActionFailed("missing", nil); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestStore_UpdateExecutionMeta(t *testing.T) {
	s := New(chainApp(), Config{})

	status := domain.ExecStatusError
	msg := "oops"
	attempts := 5
	if err := s.UpdateExecutionMeta("A", MetaPatch{Status: &status, Error: &msg, Attempts: &attempts}); err != nil {
		t.Fatal(err)
	}

	m := s.Meta("A")
	if m.Status != domain.ExecStatusError || m.Error != "oops" || m.Attempts != 5 {
		t.Errorf("unexpected meta: %+v", m)
	}

	// attempts не уменьшается, error очищается вне статуса error
	success := domain.ExecStatusSuccess
	lower := 1
	if err := s.UpdateExecutionMeta("A", MetaPatch{Status: &success, Attempts: &lower}); err != nil {
		t.Fatal(err)
	}
	m = s.Meta("A")
	if m.Attempts != 5 || m.Error != "" {
		t.Errorf("unexpected meta: %+v", m)
	}

	if err := s.UpdateExecutionMeta("nope", MetaPatch{}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestStore_ResetIdempotent(t *testing.T) {
	s := New(chainApp(), Config{})
	complete(t, s, "A", "alpha")

	if err := s.ResetActionExecution("A"); err != nil {
		t.Fatal(err)
	}
	first := s.Meta("A")
	firstValues := s.Values()

	if err := s.ResetActionExecution("A"); err != nil {
		t.Fatal(err)
	}
	second := s.Meta("A")

	if first.Status != domain.ExecStatusIdle || second.Status != domain.ExecStatusIdle {
		t.Errorf("expected idle, got %s / %s", first.Status, second.Status)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reset not idempotent: %+v vs %+v", first, second)
	}
	if s.HasValue("a.txt") {
		t.Error("value should be removed")
	}
	if !reflect.DeepEqual(firstValues, s.Values()) {
		t.Error("values changed on second reset")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := New(chainApp(), Config{})
	s.SetValue("topic", "cats")
	s.SetValue("obj", map[string]any{"n": float64(1), "list": []any{"x", true}})
	s.SetValue("img.png", domain.FileRef{Filepath: "apps/chain/img.png", PublicURL: "http://cdn/img.png"}.ToMap())
	complete(t, s, "A", "alpha")
	_ = s.MarkActionFailed("B", errors.New("nope"))

	snapshot := s.ExecutionState()

	// через JSON, как при реальном сохранении
	data, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatal(err)
	}
	var decoded domain.ExecutionState
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	restored := New(chainApp(), Config{})
	if err := restored.LoadFromState(&decoded); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(restored.Values(), s.Values()) {
		t.Errorf("values differ:\n%v\n%v", restored.Values(), s.Values())
	}
	for _, id := range []string{"A", "B", "C"} {
		a, b := restored.Meta(id), s.Meta(id)
		if a.Status != b.Status || a.Error != b.Error || a.Attempts != b.Attempts || a.DurationMs != b.DurationMs {
			t.Errorf("%s meta differs: %+v vs %+v", id, a, b)
		}
		if (a.ExecutedAt == nil) != (b.ExecutedAt == nil) ||
			(a.ExecutedAt != nil && !a.ExecutedAt.Equal(*b.ExecutedAt)) {
			t.Errorf("%s executedAt differs", id)
		}
	}
}

func TestStore_LoadResetsLoading(t *testing.T) {
	s := New(chainApp(), Config{})

	st := domain.NewExecutionState()
	st.ExecutionMeta["A"] = domain.ExecutionMeta{Status: domain.ExecStatusLoading, Attempts: 2}

	if err := s.LoadFromState(st); err != nil {
		t.Fatal(err)
	}
	if m := s.Meta("A"); m.Status != domain.ExecStatusIdle || m.Attempts != 2 {
		t.Errorf("unexpected meta: %+v", m)
	}

	if err := s.LoadFromState(nil); !errors.Is(err, ErrNilState) {
		t.Errorf("expected ErrNilState, got %v", err)
	}
}

func TestStore_PreservesExtraFields(t *testing.T) {
	raw := `{"values":{"k":"v"},"executionMeta":{"A":{"status":"success","attempts":1,"model":"x"}},"timestamp":"2024-01-01T00:00:00Z","version":2}`

	var st domain.ExecutionState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		t.Fatal(err)
	}

	s := New(chainApp(), Config{})
	if err := s.LoadFromState(&st); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(s.ExecutionState())
	if err != nil {
		t.Fatal(err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out["version"] != float64(2) {
		t.Errorf("top-level extra field lost: %v", out)
	}
	meta := out["executionMeta"].(map[string]any)["A"].(map[string]any)
	if meta["model"] != "x" {
		t.Errorf("meta extra field lost: %v", meta)
	}
}

func TestStore_SeedsDefaults(t *testing.T) {
	app := &domain.App{
		Inputs: []domain.InputField{
			{Filename: "tone", Type: domain.InputTypeSelect, DefaultValue: "dry"},
			{Filename: "topic", Type: domain.InputTypeText},
		},
	}
	s := New(app, Config{})

	if v, ok := s.GetValue("tone"); !ok || v != "dry" {
		t.Errorf("default not seeded: %v", v)
	}
	if s.HasValue("topic") {
		t.Error("input without default should stay absent")
	}
}

func TestStore_StructuralChanges(t *testing.T) {
	s := New(chainApp(), Config{})
	complete(t, s, "A", "alpha")
	complete(t, s, "B", "beta")

	// C больше не зависит от B
	c := textAction("C", "c.txt", "Standalone")
	s.UpsertAction(c)
	if deps := s.Graph().Dependencies["C"]; len(deps) != 0 {
		t.Errorf("graph not rebuilt: %v", deps)
	}

	// новый action D зависит от C
	s.UpsertAction(textAction("D", "d.txt", "{{c.txt}}"))
	if mustStatus(t, s, "D").Playable {
		t.Error("D should not be playable without c.txt")
	}

	if err := s.RemoveAction("B"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetActionStatus("B"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
	if !s.HasValue("b.txt") {
		t.Error("removing an action keeps its value")
	}
	if err := s.RemoveAction("B"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}

	s.SetApp(&domain.App{Actions: []domain.Action{textAction("A", "a.txt", "Start")}})
	if len(s.Statuses()) != 1 {
		t.Errorf("expected 1 status, got %d", len(s.Statuses()))
	}
	if s.Meta("A").Status != domain.ExecStatusSuccess {
		t.Error("meta of kept actions should survive SetApp")
	}
}
