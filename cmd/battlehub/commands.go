package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/battlehub/internal/app"
	"github.com/park285/battlehub/internal/config"
	"github.com/park285/battlehub/internal/obslog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "battlehub",
		Short:         "Multiplayer daily-challenge room service.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE:          runServe,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (default).",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "reap",
		Short: "Delete expired rooms once and exit.",
		Args:  cobra.NoArgs,
		RunE:  runReap,
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "battlehub v%s\n", releaseVersion)
		},
	})

	root.CompletionOptions.HiddenDefaultCmd = true
	root.SetVersionTemplate("battlehub v{{.Version}}\n")
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	bg, cancelBG := context.WithCancel(context.Background())
	deps.Start(bg)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           deps.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("http_listen",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreBackend),
			zap.String("notify", cfg.NotifyMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		obslog.L().Info("http_shutdown", zap.String("reason", "signal"))
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obslog.L().Warn("http_shutdown_error", zap.Error(err))
	}
	cancelBG()
	if err := deps.Close(); err != nil {
		obslog.L().Warn("deps_close_error", zap.Error(err))
	}
	return serveErr
}

func runReap(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	deps, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	n, err := deps.Rooms.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("reap: %w", err)
	}
	obslog.L().Info("room_reap", zap.String("store", cfg.StoreBackend), zap.Int("evicted", n))
	fmt.Fprintf(cmd.OutOrStdout(), "evicted %d expired rooms\n", n)
	return nil
}
