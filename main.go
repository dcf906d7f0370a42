package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JoelGonzalez08/TerraWeb/internal/config"
	"github.com/JoelGonzalez08/TerraWeb/internal/identity"
	"github.com/JoelGonzalez08/TerraWeb/internal/ingest"
	"github.com/JoelGonzalez08/TerraWeb/internal/live"
	"github.com/JoelGonzalez08/TerraWeb/internal/observability"
	"github.com/JoelGonzalez08/TerraWeb/internal/router"
	"github.com/JoelGonzalez08/TerraWeb/internal/session"
	"github.com/JoelGonzalez08/TerraWeb/internal/store"
)

func main() {
	cfgPath := "config/server.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("config loaded", "listen", cfg.ListenAddr, "environment", cfg.Environment)

	shutdownObs, promHandler, tracer := observability.Setup()
	defer shutdownObs()

	redisClient := setupRedisClient(cfg)
	defer redisClient.Close()

	st, err := store.Open(cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	if !cfg.IsProduction() {
		if err := store.SeedDefaultUsers(context.Background(), st, false); err != nil {
			slog.Error("failed to seed default accounts", "error", err)
			os.Exit(1)
		}
	}

	sessions := session.NewStore(redisClient, cfg.SessionTTL)
	verifier := setupVerifier(cfg, st)
	hub := live.NewHub()

	var sub *ingest.Subscriber
	if cfg.MQTT.Broker != "" {
		sub, err = ingest.NewSubscriber(cfg.MQTT, st, st, hub)
		if err != nil {
			slog.Error("failed to start mqtt ingest", "error", err)
			os.Exit(1)
		}
		defer sub.Close()
	}

	r := router.New(router.Deps{
		Cfg:         cfg,
		Sessions:    sessions,
		Store:       st,
		Verifier:    verifier,
		Redis:       redisClient,
		Hub:         hub,
		PromHandler: promHandler,
		Tracer:      tracer,
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("terraweb server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", "error", err)
		}
	}()

	<-stopCh
	slog.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	} else {
		slog.Info("server shut down gracefully")
	}
}

func setupRedisClient(cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if pong, err := client.Ping(context.Background()).Result(); err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	} else {
		slog.Info("connected to redis", "pong", pong)
	}
	return client
}

// setupVerifier wires the external identity collaborator, or the local
// bcrypt fallback outside production.
func setupVerifier(cfg *config.Config, st *store.Store) identity.Verifier {
	if cfg.GeoServiceURL != "" {
		return identity.NewRemoteVerifier(cfg.GeoServiceURL, cfg.IdentityPath, cfg.UpstreamTimeout)
	}
	if cfg.IsProduction() {
		// Load already rejects this combination; keep the invariant visible.
		slog.Error("no identity service configured in production")
		os.Exit(1)
	}
	slog.Warn("using local credential verification with seeded accounts")
	return identity.NewLocalVerifier(st)
}
