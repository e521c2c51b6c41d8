package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/Actionflow/internal/domain"
)

func TestValidate_NilApp(t *testing.T) {
	if err := Validate(nil); !errors.Is(err, ErrNilApp) {
		t.Errorf("expected ErrNilApp, got %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		app     *domain.App
		wantErr error
	}{
		{
			name: "empty action ID",
			app: &domain.App{Actions: []domain.Action{
				{ID: "", Type: domain.ActionTypeGenerateText, Filename: "a.txt"},
			}},
			wantErr: ErrEmptyActionID,
		},
		{
			name: "duplicate action ID",
			app: &domain.App{Actions: []domain.Action{
				{ID: "a", Type: domain.ActionTypeGenerateText, Filename: "a.txt"},
				{ID: "a", Type: domain.ActionTypeGenerateText, Filename: "b.txt"},
			}},
			wantErr: ErrDuplicateActionID,
		},
		{
			name: "empty type",
			app: &domain.App{Actions: []domain.Action{
				{ID: "a", Filename: "a.txt"},
			}},
			wantErr: ErrUnknownActionType,
		},
		{
			name: "unknown type",
			app: &domain.App{Actions: []domain.Action{
				{ID: "a", Type: "generate-hologram", Filename: "a.txt"},
			}},
			wantErr: ErrUnknownActionType,
		},
		{
			name: "empty filename",
			app: &domain.App{Actions: []domain.Action{
				{ID: "a", Type: domain.ActionTypeGenerateText},
			}},
			wantErr: ErrEmptyFilename,
		},
		{
			name: "invalid filename",
			app: &domain.App{Actions: []domain.Action{
				{ID: "a", Type: domain.ActionTypeGenerateText, Filename: "my file.txt"},
			}},
			wantErr: ErrInvalidFilename,
		},
		{
			name: "filename shared by input and action",
			app: &domain.App{
				Inputs: []domain.InputField{{Filename: "topic", Type: domain.InputTypeText}},
				Actions: []domain.Action{
					{ID: "a", Type: domain.ActionTypeGenerateText, Filename: "topic"},
				},
			},
			wantErr: ErrDuplicateFilename,
		},
		{
			name: "unknown input type",
			app: &domain.App{
				Inputs: []domain.InputField{{Filename: "topic", Type: "slider"}},
			},
			wantErr: ErrUnknownInputType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.app)
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_CycleIsNotAnError(t *testing.T) {
	app := &domain.App{Actions: []domain.Action{
		textAction("a", "a.txt", "{{b.txt}}"),
		textAction("b", "b.txt", "{{a.txt}}"),
	}}

	if err := Validate(app); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("gen", "type", "unknown action type: x", ErrUnknownActionType)
	if err.Error() != "action gen: unknown action type: x" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	err = NewValidationError("", "id", "action has empty ID", ErrEmptyActionID)
	if err.Error() != "action has empty ID" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestParseApp_JSON(t *testing.T) {
	data := []byte(`{
		"id": "app-1",
		"defaultLanguage": "en",
		"inputs": [{"filename": "topic", "type": "text", "defaultValue": "cats"}],
		"actions": [
			{
				"id": "A",
				"type": "generate-text",
				"filename": "a.txt",
				"prompt": {"en": "Write about {{topic}}", "ru": "Напиши о {{topic}}"},
				"config": {"model": "Best", "temperature": 0.5}
			},
			{
				"id": "B",
				"type": "generate-image",
				"filename": "b.png",
				"prompt": "Illustrate @a.txt"
			}
		]
	}`)

	app, err := ParseApp(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if app.ID != "app-1" || len(app.Actions) != 2 || len(app.Inputs) != 1 {
		t.Fatalf("unexpected app: %+v", app)
	}
	if app.Actions[0].Prompt["ru"] != "Напиши о {{topic}}" {
		t.Errorf("ru prompt: %q", app.Actions[0].Prompt["ru"])
	}
	// строковый промпт сохраняется как вариант без языка
	if app.Actions[1].Prompt[domain.AnyLanguage] != "Illustrate @a.txt" {
		t.Errorf("plain prompt: %v", app.Actions[1].Prompt)
	}
	if app.Actions[0].Config["temperature"] != 0.5 {
		t.Errorf("temperature: %v", app.Actions[0].Config["temperature"])
	}
}

func TestParseApp_YAML(t *testing.T) {
	data := []byte(`
id: app-2
inputs:
  - filename: style
    type: select
    options: [noir, pastel]
    defaultValue: noir
actions:
  - id: A
    type: generate-json
    filename: a.json
    prompt:
      en: Describe in {{style}}
    config:
      schema:
        type: object
        properties:
          title:
            type: string
`)

	app, err := ParseApp(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	schema, ok := app.Actions[0].Config["schema"].(map[string]any)
	if !ok {
		t.Fatalf("schema should be normalized to map[string]any, got %T", app.Actions[0].Config["schema"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("nested maps should be normalized, got %T", schema["properties"])
	}
	if _, ok := props["title"].(map[string]any); !ok {
		t.Errorf("title should be map[string]any, got %T", props["title"])
	}
	if app.Inputs[0].DefaultValue != "noir" {
		t.Errorf("default value: %v", app.Inputs[0].DefaultValue)
	}
	if len(app.Inputs[0].Options) != 2 {
		t.Errorf("options: %v", app.Inputs[0].Options)
	}
}

func TestParseApp_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"empty", "   ", ErrParseApp},
		{"broken json", `{"id": `, ErrParseApp},
		{"broken yaml", "actions: [", ErrParseApp},
		{"invalid app", `{"actions": [{"id": "a", "type": "x", "filename": "a"}]}`, ErrUnknownActionType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseApp([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadAppFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	content := "id: demo\nactions:\n  - id: A\n    type: generate-text\n    filename: a.txt\n    prompt: hi\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := LoadAppFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if app.ID != "demo" || app.Actions[0].Prompt[domain.AnyLanguage] != "hi" {
		t.Errorf("unexpected app: %+v", app)
	}

	if _, err := LoadAppFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
