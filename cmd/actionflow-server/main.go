// Actionflow Server — HTTP сервер сессии приложения.
//
// Server:
//   - Загружает определение приложения из APP_FILE
//   - Открывает сессию: восстанавливает сохранённое состояние выполнения
//   - Отдаёт HTTP API, поток событий (SSE) и метрики
//   - Публикует события выполнения в RabbitMQ, если задан RABBITMQ_URL
//
// Хранилище выбирается через STORAGE_BACKEND: local (DATA_DIR), memory, postgres (DB_URL).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Actionflow/internal/api"
	"github.com/shaiso/Actionflow/internal/config"
	"github.com/shaiso/Actionflow/internal/engine"
	"github.com/shaiso/Actionflow/internal/mq"
	"github.com/shaiso/Actionflow/internal/provider"
	"github.com/shaiso/Actionflow/internal/repo"
	"github.com/shaiso/Actionflow/internal/session"
	"github.com/shaiso/Actionflow/internal/storage"
	"github.com/shaiso/Actionflow/internal/telemetry"
	"github.com/shaiso/Actionflow/internal/worker"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting actionflow-server")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := engine.LoadAppFile(cfg.AppFile)
	if err != nil {
		logger.Error("failed to load app", "file", cfg.AppFile, "error", err)
		os.Exit(1)
	}
	logger = telemetry.WithAppID(logger, app.ID)

	// Storage
	store, closeStore, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Provider
	gen, err := provider.NewFromEnv(ctx, store, logger)
	if err != nil {
		logger.Error("failed to create provider", "error", err)
		os.Exit(1)
	}
	if c, ok := gen.(io.Closer); ok {
		defer c.Close()
	}

	sessCfg := session.Config{
		App:                  app,
		Storage:              store,
		Provider:             gen,
		Language:             cfg.Language,
		PublicBaseURL:        cfg.PublicBaseURL,
		AvailabilityInterval: cfg.AvailabilityInterval,
		AvailabilityAttempts: cfg.AvailabilityAttempts,
		Debounce:             cfg.PersistDebounce,
		Logger:               logger,
	}
	// Внешний CDN проверяется HEAD-запросом, иначе — по режиму файла в storage.
	if cfg.PublicBaseURL != "" {
		sessCfg.Checker = worker.HTTPChecker{}
	}

	// RabbitMQ (опционально)
	var mqConn *mq.Connection
	if cfg.RabbitMQURL != "" {
		mqConn, err = mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			mqConn = nil
			logger.Warn("RabbitMQ not available, events are not published", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			} else {
				logger.Debug("RabbitMQ topology ready", "topology", mq.TopologyInfo())
			}
			sessCfg.Publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	sess, err := session.Open(ctx, sessCfg)
	if err != nil {
		logger.Error("failed to open session", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(api.Config{
		Session: sess,
		Logger:  logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	// Брокер опционален: его отсутствие не делает сервер нездоровым.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
		switch {
		case mqConn == nil:
			fmt.Fprint(w, " rabbitmq=disabled")
		case mqConn.IsConnected():
			fmt.Fprint(w, " rabbitmq=connected")
		default:
			fmt.Fprint(w, " rabbitmq=reconnecting")
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:              addr,
		Handler:           api.CORS(cfg.CORSOrigin)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr, "session_id", sess.ID())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Отменяет текущее выполнение и дописывает состояние
	if err := sess.Close(shutdownCtx); err != nil {
		logger.Error("session close error", "error", err)
	}

	logger.Info("stopped")
}

// openStorage открывает хранилище по STORAGE_BACKEND.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Storage, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, state is lost on exit")
		return storage.NewMem(), func() {}, nil

	case config.StoragePostgres:
		pool, err := repo.NewPool(ctx)
		if err != nil {
			return nil, nil, err
		}
		files := repo.NewFileRepo(pool)
		if err := files.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("database connected")
		return files, pool.Close, nil

	default:
		local, err := storage.NewLocal(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using local storage", "root", local.Root())
		return local, func() {}, nil
	}
}
