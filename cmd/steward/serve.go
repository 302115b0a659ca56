package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stewardlabs/meeting-steward/internal/config"
	"github.com/stewardlabs/meeting-steward/internal/server"
	"github.com/stewardlabs/meeting-steward/internal/telemetry"
	"github.com/stewardlabs/meeting-steward/pkg/steward"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the meeting analysis HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	watcher, err := config.NewWatcher(configPath, logger)
	if err != nil {
		return err
	}
	cfg, err := watcher.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.Telemetry.Tracing {
		shutdown, err := telemetry.Init("meeting-steward", logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("tracer shutdown failed", slog.Any("error", err))
			}
		}()
	}

	st, err := steward.New(cfg, steward.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("assemble pipeline: %w", err)
	}
	defer st.Close()

	srv := server.New(cfg.Server, st.Runner(), st.Store(), logger, Version)

	// The server and collaborators are built once; of the settings a
	// reload can change, only the default chat model swaps in place.
	current := cfg
	if err := watcher.Watch(ctx, func(next *config.Config) {
		if next.Ollama.Model != current.Ollama.Model {
			st.Runner().SetModel(next.Ollama.Model)
			logger.Info("default chat model swapped",
				slog.String("model", next.Ollama.Model))
		}
		if restartRequired(current, next) {
			logger.Warn("config sections changed that only apply after a restart")
		}
		current = next
	}); err != nil {
		logger.Warn("config watch unavailable", slog.Any("error", err))
	}
	defer watcher.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// restartRequired reports whether a reload touched settings that are
// fixed at startup, which is everything except the default chat model.
func restartRequired(old, next *config.Config) bool {
	o, n := *old, *next
	o.Ollama.Model = ""
	n.Ollama.Model = ""
	return !reflect.DeepEqual(o, n)
}
