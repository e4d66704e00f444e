package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langchou/carnote/internal/api/handlers"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger
	logger.Info("Starting CarNote", zap.String("port", cfg.ServerPort))

	if parent == nil {
		parent = context.Background()
	}
	// 等待退出信号
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		return err
	}
	defer a.Close()

	go a.hub.Run(ctx)

	handler := handlers.NewHandler(logger.Named("http"), a.svc, a.hub)
	router := handlers.NewRouter(logger.Named("http"), handler, cfg.Debug)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Failed to start server", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				opts.logger.Error("Failed to migrate database", zap.Error(err))
				return err
			}
			return st.Close()
		},
	}
}

func newRecalculateCommand(opts *rootOptions) *cobra.Command {
	var vehicleID int64

	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Rebuild derived mileage and consumption fields",
		Long:  "Recomputes mileage_diff and consumption_per_100km from the full log of one vehicle, or of every vehicle when --vehicle is omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				opts.logger.Error("Failed to initialize", zap.Error(err))
				return err
			}
			defer a.Close()

			start := time.Now()
			if vehicleID > 0 {
				err = a.svc.Recalculate(ctx, vehicleID)
			} else {
				err = a.svc.RecalculateAll(ctx)
			}
			if err != nil {
				opts.logger.Error("Recalculation failed", zap.Error(err))
				return err
			}
			opts.logger.Info("Recalculation finished",
				zap.Int64("vehicle_id", vehicleID),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		},
	}
	cmd.Flags().Int64Var(&vehicleID, "vehicle", 0, "vehicle id to rebuild (all vehicles when 0)")
	return cmd
}
