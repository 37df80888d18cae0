package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-agent/api"
	"github.com/nixxel-company-limited/escpos-print-agent/server"
)

// shutdownTimeout bounds how long in-flight requests may take on shutdown
const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP print API",
		Long: `Run the HTTP print API and, when raw.address is set, the raw TCP
passthrough listener. Stops gracefully on SIGINT or SIGTERM.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts)
		},
	}

	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := opts.setup(false)
	if err != nil {
		return err
	}
	defer e.teardown()

	return serve(ctx, e)
}

// serve runs the listeners until ctx is cancelled or the HTTP server fails
func serve(ctx context.Context, e *env) error {
	logger := e.logger

	if err := e.session.Open(""); err != nil {
		if !e.cfg.Printer.LazyOpen {
			return fmt.Errorf("printer unavailable: %w", err)
		}
		logger.Warn("Printer not available yet, will retry on first job", zap.Error(err))
	}

	if e.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(e.session, logger.Named("api"))
	httpServer := api.NewServer(
		e.cfg.Server.Address,
		router,
		e.cfg.Server.ReadTimeout,
		e.cfg.Server.WriteTimeout,
		logger.Named("api"),
	)

	if e.cfg.Raw.Address != "" {
		raw := server.NewWithLogger(e.session, e.cfg.Raw.Address, logger.Named("server"))
		if err := raw.StartAsync(); err != nil {
			return err
		}
		defer raw.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}
