package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestFromContext(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	stored := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		name     string
		ctx      context.Context
		fallback *slog.Logger
		want     *slog.Logger
	}{
		{"stored logger wins", WithLogger(context.Background(), stored), fallback, stored},
		{"fallback without stored", context.Background(), fallback, fallback},
		{"default without both", context.Background(), nil, slog.Default()},
		{"nil stored uses fallback", WithLogger(context.Background(), nil), fallback, fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromContext(tt.ctx, tt.fallback); got != tt.want {
				t.Errorf("unexpected logger for %s", tt.name)
			}
		})
	}
}

func TestFromContext_CarriesAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), WithSessionID(base, "s1"))
	FromContext(ctx, nil).With("run_id", "r1").Info("run started")

	out := buf.String()
	for _, want := range []string{"session_id=s1", "run_id=r1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}
