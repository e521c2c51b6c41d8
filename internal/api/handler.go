package api

import (
	"log/slog"

	"github.com/shaiso/Actionflow/internal/session"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	session *session.Session
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Session *session.Session
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		session: cfg.Session,
		logger:  logger,
	}
}
