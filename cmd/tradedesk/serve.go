package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gw/tradedesk/internal/api"
	"github.com/gw/tradedesk/internal/config"
	"github.com/gw/tradedesk/internal/desk"
	"github.com/gw/tradedesk/internal/prices"
	"github.com/gw/tradedesk/internal/realtime"
	"github.com/gw/tradedesk/internal/recorder"
)

func runServe(cfg *config.Config) {
	slog.Info("tradedesk starting",
		"api", cfg.APIURL,
		"listen", cfg.ListenAddr,
		"poll", cfg.PollInterval,
		"db", cfg.DBPath,
		"tape", cfg.OutputDir,
	)

	client := newClient(cfg)
	store := openStore(cfg)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	book := prices.NewBook()
	hub := realtime.NewHub()
	d := desk.New(client, book, store, hub)

	// Initial load, retrying with backoff while the backend comes up.
	const maxLoadAttempts = 5
	for attempt := 1; ; attempt++ {
		err := d.Load(ctx)
		if err == nil {
			break
		}
		if attempt == maxLoadAttempts {
			slog.Error("portfolio load failed, giving up", "err", err, "attempts", attempt)
			os.Exit(1)
		}
		backoff := time.Duration(attempt*attempt) * 2 * time.Second
		slog.Warn("portfolio load failed, retrying", "err", err, "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			slog.Error("shutdown during initial load")
			os.Exit(1)
		case <-time.After(backoff):
		}
	}
	slog.Info("portfolio loaded", "positions", len(d.Ledger().Symbols()), "transactions", len(d.History(0)))

	var tape *recorder.Writer
	if cfg.OutputDir != "" {
		w, err := recorder.NewWriter(cfg.OutputDir, "prices")
		if err != nil {
			slog.Error("writer init failed", "err", err)
			os.Exit(1)
		}
		defer w.Close()
		tape = w
	}

	poller := prices.NewPoller(client, book, cfg.PollInterval)
	poller.OnUpdate = func(snap *prices.Snapshot) {
		if tape != nil {
			if err := tape.Record(snap); err != nil {
				slog.Warn("tape: write failed", "err", err)
			}
		}
		d.PricesUpdated(snap)
	}
	poller.OnError = func(err error) {
		hub.BroadcastJSON(map[string]string{"type": "error", "error": desk.UserMessage("fetch stock prices", err)})
	}

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("poller error", "err", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(d, hub).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	slog.Info("listening", "addr", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		cancel()
	}

	<-pollDone
	slog.Info("tradedesk stopped")
}
