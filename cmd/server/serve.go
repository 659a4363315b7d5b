package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrowin/chatgate/internal/auth"
	"github.com/Tyrowin/chatgate/internal/cluster"
	"github.com/Tyrowin/chatgate/internal/logging"
	"github.com/Tyrowin/chatgate/internal/server"
	"github.com/Tyrowin/chatgate/internal/store/fixture"
)

const flagFixture = "fixture"

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	cmd.Flags().String(flagFixture, "", "YAML fixture of actors and conversations to load at startup")
	_ = v.BindPFlag(flagFixture, cmd.Flags().Lookup(flagFixture))
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg := server.LoadConfig(v)
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
	}()

	if path := v.GetString(flagFixture); path != "" {
		fx, err := fixture.LoadFile(path)
		if err != nil {
			return err
		}
		if err := fx.Apply(ctx, store); err != nil {
			return fmt.Errorf("apply fixture %s: %w", path, err)
		}
		logger.Info("fixture_loaded", "path", path, "actors", len(fx.Actors), "conversations", len(fx.Conversations))
	}

	deps := server.Deps{Verifier: verifier, Store: store, Logger: logger}
	if cfg.NATSURL != "" {
		bus, err := cluster.Connect(cfg.NATSURL, "chatgate", logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := bus.Close(); err != nil {
				logger.Warn("nats_close_failed", "error", err)
			}
		}()
		deps.Bus = bus
	}

	gw, err := server.NewGateway(*cfg, deps)
	if err != nil {
		return err
	}
	httpServer := server.CreateServer(cfg.Port, gw.Routes())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.StartServer(httpServer) }()

	logger.Info("gateway_started", "addr", cfg.Port, "store", cfg.Store, "cluster", cfg.NATSURL != "")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown_signal_received")
	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		logger.Warn("http_shutdown_incomplete", "error", err)
	}
	if err := gw.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("gateway_shutdown_incomplete", "error", err)
	}
	slog.Info("bye")
	return nil
}
