package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"corrade/internal/api"
	"corrade/internal/config"
	mcpbridge "corrade/internal/mcp"
	"corrade/internal/obs"
	"corrade/internal/service"
	"corrade/internal/session"
	"corrade/internal/session/bridge"
	"corrade/internal/storage"
	"corrade/internal/storage/repos"
)

func newServerCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Log the agent in and serve commands until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return &exitError{code: config.Default().ExitCodes.Abnormal, err: err}
			}
			if err := runServer(cfg); err != nil {
				return &exitError{code: cfg.ExitCodes.Abnormal, err: err}
			}
			if cfg.ExitCodes.Expected != 0 {
				return &exitError{code: cfg.ExitCodes.Expected}
			}
			return nil
		},
	}
}

func newMCPCommand(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "mcp", Short: "Model Context Protocol transports"}
	cmd.AddCommand(&cobra.Command{
		Use:   "stdio",
		Short: "Serve the command tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			// stdout carries the protocol, so logs always go to stderr or the file.
			logger, closer, err := obs.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app, cleanup, err := startAgent(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			return mcpbridge.New(mcpbridge.Options{App: app, Identifier: "stdio"}).ServeStdio()
		},
	})
	return cmd
}

func runServer(cfg config.Config) error {
	logger, closer, err := obs.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := startAgent(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var mcpHandler http.Handler
	if cfg.MCP.Enabled {
		mcpHandler = mcpbridge.New(mcpbridge.Options{App: app}).HTTPHandler()
	}
	httpServer := &http.Server{
		Addr:         config.Addr(cfg),
		Handler:      api.NewRouter(app, mcpHandler),
		ReadTimeout:  config.ReadTimeout(cfg),
		WriteTimeout: config.WriteTimeout(cfg),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr, "prefix", cfg.Server.Prefix)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err = <-serveErr:
		logger.Error("http server failed", "error", err)
	}

	grace := config.Duration(cfg.Limits.ShutdownGrace, 5*time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http server shutdown", "error", serr)
	}
	return err
}

// startAgent opens storage and the session, then builds and starts the
// agent. cleanup shuts everything down in reverse order.
func startAgent(ctx context.Context, cfg config.Config, logger *slog.Logger) (*service.App, func(), error) {
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	sess, closeSession, err := openSession(ctx, cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	app, err := service.New(ctx, service.Options{
		Config:  cfg,
		Store:   repos.New(db),
		Session: sess,
		Logger:  logger,
		Metrics: obs.NewMetrics(),
	})
	if err == nil {
		err = app.Start(ctx)
	}
	if err != nil {
		closeSession()
		_ = db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		app.Shutdown(context.Background())
		closeSession()
		if err := db.Close(); err != nil {
			logger.Warn("close database", "error", err)
		}
	}
	return app, cleanup, nil
}

func openSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (session.Session, func(), error) {
	switch cfg.Session.Driver {
	case "bridge":
		client, err := bridge.Dial(ctx, bridge.Options{
			URL:        cfg.Session.BridgeURL,
			Timeout:    config.ServicesTimeout(cfg),
			BackoffMax: config.Duration(cfg.Session.ReconnectBackoffMax, 30*time.Second),
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect session bridge: %w", err)
		}
		self := client.Self()
		logger.Info("session connected", "driver", "bridge", "agent", self.FirstName+" "+self.LastName, "region", self.Region)
		return client, func() { _ = client.Close() }, nil
	default:
		mem := session.NewMemory(session.Self{FirstName: cfg.Agent.FirstName, LastName: cfg.Agent.LastName})
		groups, err := config.Groups(cfg)
		if err != nil {
			return nil, nil, err
		}
		for _, g := range groups {
			mem.AddGroup(g.UUID, g.Name, true)
		}
		logger.Info("session connected", "driver", "memory", "agent", cfg.Agent.FirstName+" "+cfg.Agent.LastName)
		return mem, func() {}, nil
	}
}
