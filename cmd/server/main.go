package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	redis_adapter "zeroone.host/internal/adapters/events/redis"
	http_handler "zeroone.host/internal/adapters/handler/http"
	"zeroone.host/internal/adapters/repository/pg"
	"zeroone.host/internal/config"
	"zeroone.host/internal/core/crypto"
	"zeroone.host/internal/core/logger"
	"zeroone.host/internal/core/services"
	"zeroone.host/internal/core/tracing"
	"zeroone.host/internal/docker"
	"zeroone.host/internal/zeroclaw"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting ZeroOne Server", "version", version, "topology", cfg.Topology)

	var shutdownTracing func(context.Context) error
	if cfg.EnableTracing {
		shutdownTracing, err = tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Error("Failed to shutdown tracing", "error", err)
				}
			}()
		}
	}

	box, err := crypto.NewBox(cfg.EncryptionKey, cfg.EncryptionSalt)
	if err != nil {
		logger.Error("Failed to init crypto", "error", err)
		log.Fatalf("failed to init crypto: %v", err)
	}

	repo, err := pg.NewRepository(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to init postgres", "error", err)
		log.Fatalf("failed to init postgres: %v", err)
	}

	bus, redisClient, err := redis_adapter.NewRedisAdapter(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to init redis", "error", err)
		log.Fatalf("failed to init redis: %v", err)
	}

	engine, err := docker.NewEngine(docker.Options{
		Image:       cfg.Image,
		NetworkName: cfg.NetworkName,
		Domain:      cfg.Domain,
		PortMin:     cfg.PortMin,
		PortMax:     cfg.PortMax,
	})
	if err != nil {
		logger.Error("Failed to init docker client", "error", err)
		log.Fatalf("failed to init docker client: %v", err)
	}

	ctx := context.Background()
	if err := engine.Ping(ctx); err != nil {
		logger.Error("Docker daemon unreachable", "error", err)
		log.Fatalf("docker daemon unreachable: %v", err)
	}

	// Preflight: the shared network and agent image are needed by every
	// deploy; pulling the image at startup keeps first deploys fast.
	if err := engine.EnsureNetwork(ctx); err != nil {
		logger.Error("Failed to ensure network", "network", cfg.NetworkName, "error", err)
		log.Fatalf("failed to ensure network: %v", err)
	}
	if err := engine.EnsureImage(ctx); err != nil {
		logger.Warn("Failed to pull agent image, deploys will retry", "image", cfg.Image, "error", err)
	}

	resolver := zeroclaw.NewResolver(cfg.Topology)
	gateway := zeroclaw.NewClient()

	agentService := services.NewAgentService(repo, repo, engine, gateway, resolver, bus, box, cfg.Domain)
	healthService := services.NewHealthService(repo.DB(), redisClient, engine, version)

	monitor := services.NewAgentMonitor(repo, engine, gateway, resolver, bus)
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	go monitor.Start(monitorCtx)

	hub := http_handler.NewHub(bus)
	go hub.Run()
	go hub.EventConsumer(monitorCtx)

	httpServer := http_handler.NewServer(agentService, healthService, hub, cfg.EnableMetrics)

	go func() {
		logger.Info("HTTP Server starting", "port", cfg.HTTPPort)
		if err := httpServer.Run(":" + cfg.HTTPPort); err != nil {
			logger.Error("HTTP server failed", "error", err)
			log.Fatalf("failed to serve http: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	stopMonitor()
	if shutdownTracing != nil {
		shutdownTracing(context.Background())
	}
}
