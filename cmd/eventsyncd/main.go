// Command eventsyncd serves the calendar sync API consumed by the display
// front end.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vtekvtek/caldav-eventsync/caldav"
	"github.com/vtekvtek/caldav-eventsync/internal/config"
	"github.com/vtekvtek/caldav-eventsync/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		listen     = flag.String("listen", "", "override the listen address from the config")
	)
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config_path", *configPath)
		os.Exit(1)
	}
	if *listen != "" {
		conf.Listen = *listen
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(conf.LogLevel),
	}))

	logger.Info("eventsyncd starting",
		"listen", conf.Listen,
		"add_uid_policy", conf.AddUIDPolicy,
		"default_calendar", conf.DefaultCalendar != nil)

	syncer := caldav.NewSyncer(caldav.Options{
		Logger:       logger,
		AddUIDPolicy: caldav.AddUIDPolicy(conf.AddUIDPolicy),
	})
	srv := server.New(syncer, conf.DefaultCalendar, logger)

	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
