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

	"github.com/meethub/meeting-service/config"
	"github.com/meethub/meeting-service/internal/logger"
	"github.com/meethub/meeting-service/internal/postgres"
	"github.com/meethub/meeting-service/internal/security"
	"github.com/meethub/meeting-service/internal/service"
	httpx "github.com/meethub/meeting-service/internal/transport/http"
	"github.com/meethub/meeting-service/internal/transport/ws"
)

func main() {
	// --- config ---
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
	slog.Info("starting meeting-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	signingKey, err := cfg.SigningKey()
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	verifier := security.NewVerifier(signingKey, cfg.Auth.Issuer)

	// --- postgres ---
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- repos ---
	meetingRepo := postgres.NewMeetingRepository(db.Pool)
	partRepo := postgres.NewParticipantRepository(db.Pool)
	chatRepo := postgres.NewChatRepository(db.Pool)

	// --- WS hub first: services broadcast through it ---
	hub := ws.NewHub()

	// --- services ---
	presenceSvc := service.NewPresence(meetingRepo, partRepo, hub, cfg.Meeting.Capacity, cfg.JoinLockTimeout())
	lifecycleSvc := service.NewLifecycle(meetingRepo, partRepo, presenceSvc, hub, cfg.Meeting.Capacity, cfg.SweepInterval())
	chatSvc := service.NewChat(meetingRepo, chatRepo, hub, cfg.Meeting.MaxMessageLen)

	wsServer := ws.NewServer(hub, lifecycleSvc, presenceSvc, chatSvc, verifier)

	// --- HTTP ---
	handler := httpx.NewHandler(lifecycleSvc, presenceSvc, chatSvc)
	router := httpx.NewRouter(handler, verifier, wsServer, cfg.HTTP.CORSOrigins)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- expiry sweep ---
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go lifecycleSvc.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	stopSweep()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
