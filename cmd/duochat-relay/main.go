package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/duochat/internal/feed"
	"github.com/matheus3301/duochat/internal/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:7420", "listen address")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zapcore.InfoLevel
	if *debugFlag {
		level = zapcore.DebugLevel
	}
	logger := logging.NewConsole("relay", level)
	defer func() { _ = logger.Sync() }()

	hub := feed.NewHub(logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	srv := &http.Server{
		Addr:              *addrFlag,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("relay listening", zap.String("addr", *addrFlag))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("relay server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("relay shutting down", zap.Int64s("online", hub.Online()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("relay shutdown", zap.Error(err))
	}
}
