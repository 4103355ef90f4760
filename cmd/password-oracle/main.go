// Command password-oracle serves the HTTP password quality oracle
// described in spec.md: "available", "entropy", and "all" queries plus an
// "add" mutator, backed by a deprecating counting Bloom filter and an
// optional character n-gram language model.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naclave/password-oracle/internal/config"
	"github.com/naclave/password-oracle/internal/httpapi"
	"github.com/naclave/password-oracle/internal/oracle"
	"github.com/naclave/password-oracle/internal/persist"
	"github.com/naclave/password-oracle/internal/sketch"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)

	sk, err := persist.LoadSketch(logger, cfg.BloomFilter, cfg.Slots, cfg.Items, cfg.PerItem)
	if err != nil {
		var pErr error
		sk, pErr = sketch.New(cfg.Slots, cfg.Items, cfg.PerItem)
		if pErr != nil {
			logger.Error("fatal: cannot construct sketch", "error", pErr)
			return 1
		}
	}

	model, err := persist.LoadModel(cfg.LanguageModel)
	if err != nil {
		logger.Warn("could not load language model, entropy queries will return 503", "path", cfg.LanguageModel, "error", err)
		model = nil
	}

	o := oracle.New(logger, sk, model)
	handler := httpapi.New(logger, o, cfg.Path)

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "path", cfg.Path)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete cleanly", "error", err)
		}
	}

	// On graceful termination, perform one final serialization of the
	// sketch before exiting. A save failure is logged, not fatal: the
	// process continues toward exit either way.
	if err := persist.SaveSketch(o.Sketch(), cfg.BloomFilter); err != nil {
		logger.Error("final sketch save failed", "error", err)
	}

	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
