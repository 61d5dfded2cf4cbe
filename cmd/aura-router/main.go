package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aura-assistant/aura-core/internal/database"
	"github.com/aura-assistant/aura-core/internal/interpreter"
	"github.com/aura-assistant/aura-core/internal/logging"
	"github.com/aura-assistant/aura-core/internal/metrics"
	"github.com/aura-assistant/aura-core/internal/model"
	"github.com/aura-assistant/aura-core/internal/resolver"
	"github.com/aura-assistant/aura-core/internal/router"
	"github.com/aura-assistant/aura-core/internal/server"
)

var (
	libsqlURL   = flag.String("libsql-url", "", "libSQL database URL (default: file:./aura.db)")
	authToken   = flag.String("auth-token", "", "Authentication token for remote databases")
	transport   = flag.String("transport", "stdio", "Transport to use: stdio or sse")
	addr        = flag.String("addr", ":8080", "Address to listen on when using SSE transport")
	sseEndpoint = flag.String("sse-endpoint", "/sse", "SSE endpoint path when using SSE transport")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal, closing server")
		cancel()
	}()

	config, err := database.NewConfig()
	if err != nil {
		log.Fatalf("Failed to read database config: %v", err)
	}
	if *libsqlURL != "" {
		config.URL = *libsqlURL
	}
	if *authToken != "" {
		config.AuthToken = *authToken
	}

	metrics.InitFromEnv()

	store, err := database.NewStore(config, database.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to open entity store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("error closing store", zap.Error(err))
		}
	}()

	provider, err := model.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to configure model provider: %v", err)
	}

	rt := router.New(
		store,
		interpreter.New(provider, interpreter.WithLogger(logger)),
		resolver.New(store, resolver.WithLogger(logger)),
		router.WithLogger(logger),
	)
	mcpServer := server.NewMCPServer(store, rt, server.WithLogger(logger))

	logger.Info("starting aura action router")
	switch *transport {
	case "stdio":
		go func() {
			if err := mcpServer.Run(ctx); err != nil {
				logger.Error("server error", zap.Error(err))
			}
		}()
	case "sse":
		go func() {
			if err := mcpServer.RunSSE(ctx, *addr, *sseEndpoint); err != nil {
				logger.Error("sse server error", zap.Error(err))
			}
		}()
	default:
		log.Fatalf("unknown transport: %s (expected: stdio or sse)", *transport)
	}

	<-ctx.Done()
	logger.Info("server stopped")
}
