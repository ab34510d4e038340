package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"knite_oms/internal/api"
	"knite_oms/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	// 4. Scheduler loop (The Hotpath)
	go bootstrap.Manager.Run(ctx)
	slog.InfoContext(ctx, "✅ Order manager (Hotpath) started")

	// 5. Venue push stream (LIVE only)
	if err := bootstrap.StartStream(ctx); err != nil {
		// Poll-based reconciliation keeps working without it.
		slog.Error("Failed to start push stream", slog.Any("error", err))
	}

	// 6. Admin/control surface
	admin := api.NewServer(bootstrap.Config.Admin.Listen, bootstrap.Manager, bootstrap.Registry)
	go func() {
		if err := admin.Start(); err != nil {
			slog.Error("Admin server failed", slog.Any("error", err))
		}
	}()

	slog.InfoContext(ctx, "✨ Knite OMS fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Admin server shutdown failed", slog.Any("error", err))
	}
}
