package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snapvault/snapvault/internal/api"
	"github.com/snapvault/snapvault/internal/app"
	"github.com/snapvault/snapvault/internal/archive"
	"github.com/snapvault/snapvault/internal/browser"
	"github.com/snapvault/snapvault/internal/dispatcher"
	"github.com/snapvault/snapvault/internal/progress"
	queuememory "github.com/snapvault/snapvault/internal/queue/memory"
	"github.com/snapvault/snapvault/internal/worker"
)

// newServeCmd creates the 'serve' subcommand: the HTTP API plus the worker
// pool, running until SIGINT/SIGTERM.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the screenshot service",
		Long: `Starts the HTTP API and the capture worker pool. Submitted jobs are
queued in memory and processed by the configured number of workers, each
owning its own headless Chrome process.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.Config
	logger := a.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := queuememory.NewQueue(cfg.Worker.QueueDepth)
	bundler := archive.NewBundler(a.Blobs, a.Clock, logger.Named("archive"))
	reporter := progress.NewReporter(a.Jobs, a.Clock, logger.Named("progress"))

	workers := make([]*worker.Worker, 0, cfg.Worker.Count)
	for i := 0; i < cfg.Worker.Count; i++ {
		sessions := app.BrowserSessions{
			Manager: browser.NewManager(cfg.Browser, logger.Named("browser")),
		}
		workers = append(workers, worker.New(
			queue,
			a.Blobs,
			sessions,
			bundler,
			reporter,
			a.Notifier,
			a.Clock,
			cfg.Capture.Options(),
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(a.Jobs, a.Blobs, dispatch, a.IDGen, a.Clock, cfg.Ingest.MaxRows, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatcherDone := make(chan struct{})
	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Worker.Count))
		dispatch.Run(ctx)
		close(dispatcherDone)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	<-dispatcherDone
	logger.Info("shutdown complete")
	return nil
}
