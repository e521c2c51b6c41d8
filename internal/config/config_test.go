package config

import (
	"errors"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"APP_FILE", "APP_LANGUAGE", "STORAGE_BACKEND", "DATA_DIR", "PUBLIC_BASE_URL",
		"RABBITMQ_URL", "SERVER_PORT", "CORS_ORIGIN", "ACTIONFLOW_API_URL",
		"PERSIST_DEBOUNCE_MS", "AVAILABILITY_INTERVAL_MS", "AVAILABILITY_MAX_ATTEMPTS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.AppFile != "app.yaml" || cfg.StorageBackend != StorageLocal || cfg.ServerPort != "8080" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.PersistDebounce != 500*time.Millisecond || cfg.AvailabilityInterval != time.Second || cfg.AvailabilityAttempts != 10 {
		t.Errorf("unexpected timing defaults: %+v", cfg)
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(Config) bool
		wantErr bool
	}{
		{
			name:  "debounce",
			env:   map[string]string{"PERSIST_DEBOUNCE_MS": "50"},
			check: func(c Config) bool { return c.PersistDebounce == 50*time.Millisecond },
		},
		{
			name:  "zero debounce allowed",
			env:   map[string]string{"PERSIST_DEBOUNCE_MS": "0"},
			check: func(c Config) bool { return c.PersistDebounce == 0 },
		},
		{
			name:  "backend case-insensitive",
			env:   map[string]string{"STORAGE_BACKEND": "Postgres"},
			check: func(c Config) bool { return c.StorageBackend == StoragePostgres },
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"STORAGE_BACKEND": "s3"},
			wantErr: true,
		},
		{
			name:    "bad attempts",
			env:     map[string]string{"AVAILABILITY_MAX_ATTEMPTS": "0"},
			wantErr: true,
		},
		{
			name:    "bad interval",
			env:     map[string]string{"AVAILABILITY_INTERVAL_MS": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := FromEnv()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Errorf("expected ErrInvalidValue, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !tt.check(cfg) {
				t.Errorf("unexpected config: %+v", cfg)
			}
		})
	}
}
