package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"board-sync/api"
	"board-sync/auth"
	"board-sync/boardsync"
	"board-sync/internal/config"
	"board-sync/internal/tracelog"
	"board-sync/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		defer rotated.Close()
		logger.SetFormatter(&log.JSONFormatter{})
		logger.SetOutput(io.MultiWriter(os.Stderr, rotated))
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(tracelog.New(logger)))
	otel.SetTracerProvider(tp)

	store, closeStore := newStore(cfg, logger)
	identity, closeIdentity := newIdentity(cfg)

	path := storage.Path{AppID: cfg.AppID, BoardID: cfg.BoardID}
	ctrl := boardsync.New(store, identity, logger, boardsync.Config{
		Path:            path,
		IdentityTimeout: cfg.IdentityTimeout,
		WriteWorkers:    cfg.WriteWorkers,
		WriteBuffer:     cfg.WriteBuffer,
		WriteTimeout:    cfg.WriteTimeout,
		HandoffTimeout:  cfg.HandoffTimeout,
		TracerProvider:  tp,
	})
	ctrl.Start()
	logger.WithFields(log.Fields{
		"path":     path.String(),
		"backend":  cfg.Backend,
		"identity": cfg.IdentityMode,
	}).Info("board sync starting")

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	api.Register(e, ctrl, logger)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	ctrl.Close()
	closeIdentity()
	closeStore()
	if err := tp.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("tracer shutdown")
	}
}

func newStore(cfg config.Config, logger *log.Logger) (storage.Store, func()) {
	switch cfg.Backend {
	case config.BackendTables:
		store, err := storage.NewTableStore(cfg.StorageConnection, cfg.BoardsTable, cfg.EventsQueue, cfg.TablesPollInterval, logger)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		return store, func() {}
	case config.BackendFile:
		store, err := storage.NewFileStore(cfg.BoardsDir, logger)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		return store, func() {}
	case config.BackendMemory:
		logger.Warn("using in-memory store, boards are not persisted")
		return storage.NewMemoryStore(), func() {}
	default:
		rc := redis.NewClient(config.RedisOptions(cfg.RedisConnectionString))
		return storage.NewRedisStore(rc, cfg.UpdatesChannel, logger), func() {
			if err := rc.Close(); err != nil {
				logger.WithError(err).Warn("redis close")
			}
		}
	}
}

func newIdentity(cfg config.Config) (auth.Identity, func()) {
	if cfg.IdentityMode == config.IdentityJWKS {
		b := auth.NewBearer(cfg.Auth0Domain, cfg.Auth0Audience, cfg.BearerToken)
		return b, b.Close
	}
	return auth.NewAnonymous([]byte(cfg.LocalAuthSecret), 0), func() {}
}
