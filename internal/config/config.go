package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageLocal    = "local"
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Default configuration values.
const (
	defaultAppFile              = "app.yaml"
	defaultDataDir              = "./data"
	defaultServerPort           = "8080"
	defaultAPIURL               = "http://localhost:8080"
	defaultPersistDebounce      = 500 * time.Millisecond
	defaultAvailabilityInterval = time.Second
	defaultAvailabilityAttempts = 10
)

// Config — конфигурация сервера и CLI.
type Config struct {
	// AppFile — файл определения приложения (JSON или YAML).
	AppFile string

	// Language — активный язык промптов.
	Language string

	// Storage
	StorageBackend string
	DataDir        string

	// PublicBaseURL — префикс публичных URL файлов.
	PublicBaseURL string

	// RabbitMQURL — брокер событий; пусто — события не публикуются.
	RabbitMQURL string

	// Persistence и доступность файлов
	PersistDebounce      time.Duration
	AvailabilityInterval time.Duration
	AvailabilityAttempts int

	// HTTP
	ServerPort string
	CORSOrigin string

	// APIURL — адрес сервера для CLI.
	APIURL string
}

// Load подгружает .env и читает конфигурацию из окружения.
func Load() (Config, error) {
	// .env необязателен
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv читает конфигурацию из окружения без .env.
func FromEnv() (Config, error) {
	cfg := Config{
		AppFile:        envString("APP_FILE", defaultAppFile),
		Language:       os.Getenv("APP_LANGUAGE"),
		StorageBackend: strings.ToLower(envString("STORAGE_BACKEND", StorageLocal)),
		DataDir:        envString("DATA_DIR", defaultDataDir),
		PublicBaseURL:  os.Getenv("PUBLIC_BASE_URL"),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		ServerPort:     envString("SERVER_PORT", defaultServerPort),
		CORSOrigin:     os.Getenv("CORS_ORIGIN"),
		APIURL:         envString("ACTIONFLOW_API_URL", defaultAPIURL),
	}

	var err error
	if cfg.PersistDebounce, err = envMillis("PERSIST_DEBOUNCE_MS", defaultPersistDebounce); err != nil {
		return cfg, err
	}
	if cfg.AvailabilityInterval, err = envMillis("AVAILABILITY_INTERVAL_MS", defaultAvailabilityInterval); err != nil {
		return cfg, err
	}
	if cfg.AvailabilityAttempts, err = envInt("AVAILABILITY_MAX_ATTEMPTS", defaultAvailabilityAttempts); err != nil {
		return cfg, err
	}

	switch cfg.StorageBackend {
	case StorageLocal, StorageMemory, StoragePostgres:
	default:
		return cfg, fmt.Errorf("%w: STORAGE_BACKEND=%q", ErrInvalidValue, cfg.StorageBackend)
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	return n, nil
}

func envMillis(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	return time.Duration(n) * time.Millisecond, nil
}
