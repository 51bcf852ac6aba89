package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/btmgen/internal/core/api"
	"github.com/solatis/btmgen/internal/core/auth"
	"github.com/solatis/btmgen/internal/core/config"
	"github.com/solatis/btmgen/internal/core/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC generator service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	d := config.DefaultServeConfig()
	serveCmd.Flags().String("host", d.Host, "gRPC server host")
	serveCmd.Flags().Int("port", d.Port, "gRPC server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var store api.RunStore
	database, err := openDB(false)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
		s, err := runStore(ctx, database)
		if err != nil {
			return err
		}
		store = s
	}

	secrets, err := config.ServeSecrets()
	if err != nil {
		return fmt.Errorf("failed to load serve secrets: %w", err)
	}
	var authenticator *auth.Authenticator
	if len(secrets) > 0 {
		authenticator = auth.NewAuthenticator(secrets)
	}

	service, err := api.NewGeneratorService(cfg.Serve, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.Serve, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting btmgen generator service", "version", Version, "host", cfg.Serve.Host, "port", cfg.Serve.Port, "auth", authenticator != nil, "history", store != nil)
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		return grpcServer.Shutdown(shutdownCtx)
	}
}
