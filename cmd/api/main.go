package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dofollow-checker/internal/api"
	"dofollow-checker/internal/batch"
	"dofollow-checker/internal/config"
	"dofollow-checker/internal/tabular"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to checker configuration")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := batch.BuildLogger(cfg.Logging, os.Stdout)
	if err != nil {
		log.Fatalf("failed to initialise logger: %v", err)
	}

	runner, err := batch.NewRunnerFromConfig(*cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialise runner: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(runner, tabular.NewReader(cfg.Input.Separators), cfg.Server, logger)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}()

	logger.Info("api server listening", "addr", *addr, "max_rows", cfg.Server.MaxRows)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Println("API server stopped")
}
