package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mesabook/chat-service/config"
	"github.com/mesabook/chat-service/internal/auth"
	"github.com/mesabook/chat-service/internal/memstore"
	"github.com/mesabook/chat-service/internal/postgres"
	"github.com/mesabook/chat-service/internal/presence"
	"github.com/mesabook/chat-service/internal/service"
	httpx "github.com/mesabook/chat-service/internal/transport/http"
	"github.com/mesabook/chat-service/internal/transport/ws"
	"github.com/mesabook/chat-service/pkg/logger"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx := context.Background()

	// --- storage ---
	var (
		roomRepo service.RoomRepository
		msgRepo  service.MessageRepository
	)
	switch cfg.Storage.Driver {
	case "memory":
		store := memstore.New(uuid.NewString)
		roomRepo, msgRepo = store, store
	default:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:             cfg.Storage.DSN,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		roomRepo = postgres.NewRoomRepository(pool)
		msgRepo = postgres.NewMessageRepository(pool)
	}

	// --- services ---
	guard := service.NewGuard(roomRepo)
	tracker := presence.NewTracker()

	hub := ws.NewHub()
	broadcaster := ws.NewBroadcaster(hub)

	roomSvc := service.NewRoomService(roomRepo, guard)
	msgSvc := service.NewMessageService(msgRepo, guard, tracker, broadcaster, service.MessageConfig{
		MaxBodyLen:  cfg.Chat.MaxBodyLen,
		PageLimit:   cfg.Chat.PageLimit,
		DedupWindow: cfg.Chat.DedupWindowOr(10 * time.Minute),
	}, logger.L())
	typingSvc := service.NewTypingService(guard, tracker, broadcaster, cfg.Chat.TypingTTLOr(5*time.Second))

	// --- transports ---
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	wsServer := ws.NewServer(hub, verifier, roomSvc, msgSvc, typingSvc, ws.Config{
		QueueSize:   cfg.Chat.SendQueueSize,
		IdleTimeout: cfg.Chat.IdleTimeoutOr(60 * time.Second),
		PageLimit:   cfg.Chat.PageLimit,
	})

	handler := httpx.NewHandler(roomSvc, msgSvc)
	router := httpx.NewRouter(handler, verifier, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
