package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CaseChat/internal/casestore"
	"CaseChat/internal/chat"
	"CaseChat/internal/config"
	"CaseChat/internal/gateway"
	"CaseChat/internal/identity"
	"CaseChat/internal/review"
	"CaseChat/internal/server"
	"CaseChat/internal/store"
	"CaseChat/internal/telemetry"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "casechat.toml", "Path to TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.InitLogger(cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	_, _, telemetryCleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	defer telemetryCleanup()

	sessions, err := store.New(cfg.SessionsPath, cfg.SessionsTextPath, logger)
	if err != nil {
		logger.Error("failed to open session store", "path", cfg.SessionsPath, "error", err)
		os.Exit(1)
	}

	cases, err := casestore.Open(cfg.CasesDBPath)
	if err != nil {
		logger.Error("failed to open case database", "path", cfg.CasesDBPath, "error", err)
		os.Exit(1)
	}
	defer cases.Close()

	gw := gateway.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.RequestTimeout, logger)
	ident := identity.NewManager(cfg.Users)
	reviews := review.NewGenerator(gw, sessions, cfg.GuidelinesPath, cfg.Model, cfg.Temperature, logger)
	params := chat.ModelParams{Model: cfg.Model, Temperature: cfg.Temperature}

	srv := server.New(server.Options{
		Sessions:  sessions,
		Cases:     cases,
		Proxy:     gw,
		APIKeySet: cfg.OpenAIAPIKey != "",
		Reviews:   reviews,
		Identity:  ident,
		NewChat: func(sp chat.Speaker) *chat.Controller {
			engine := chat.NewEngine(gw, params, sp, logger)
			return chat.NewController(engine, sessions, ident, logger)
		},
		StaticDir: cfg.StaticDir,
		Logger:    logger,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server starting", "addr", addr, "model", cfg.Model)
		if err := srv.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down gracefully", "error", err)
	}
	logger.Info("server stopped")
}
