package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapvault/snapvault/internal/app"
	"github.com/snapvault/snapvault/internal/archive"
	"github.com/snapvault/snapvault/internal/browser"
	"github.com/snapvault/snapvault/internal/capture"
	"github.com/snapvault/snapvault/internal/ingest"
	"github.com/snapvault/snapvault/internal/jobstore"
	"github.com/snapvault/snapvault/internal/progress"
	queuememory "github.com/snapvault/snapvault/internal/queue/memory"
	"github.com/snapvault/snapvault/internal/worker"
)

// newCaptureCmd creates the 'capture' subcommand: one job, run to completion
// in the foreground.
func newCaptureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture <file>",
		Short: "Run one screenshot job synchronously",
		Long: `Reads a URL list (txt, csv, or xlsx), captures every page, bundles the
screenshots into a zip archive, and prints the job outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: runCaptureCommand,
	}
}

func runCaptureCommand(cmd *cobra.Command, args []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.Config
	logger := a.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	urls, err := ingest.ParseLimit(f, args[0], cfg.Ingest.MaxRows)
	if err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	valid := capture.FilterValid(urls)
	if len(valid) == 0 {
		return fmt.Errorf("no valid urls in %s", args[0])
	}
	if skipped := len(urls) - len(valid); skipped > 0 {
		cmd.Printf("skipping %d invalid url(s)\n", skipped)
	}

	jobID, err := a.IDGen.NewID()
	if err != nil {
		return fmt.Errorf("generate job id: %w", err)
	}
	if err := a.Jobs.Create(ctx, jobstore.Record{
		ID:        jobID,
		Status:    jobstore.StatusPending,
		URLsCount: len(valid),
		CreatedAt: a.Clock.Now(),
	}); err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	queue := queuememory.NewQueue(1)
	w := worker.New(
		queue,
		a.Blobs,
		app.BrowserSessions{Manager: browser.NewManager(cfg.Browser, logger.Named("browser"))},
		archive.NewBundler(a.Blobs, a.Clock, logger.Named("archive")),
		progress.NewReporter(a.Jobs, a.Clock, logger.Named("progress")),
		a.Notifier,
		a.Clock,
		cfg.Capture.Options(),
		logger.Named("worker"),
	)
	if err := queue.Enqueue(ctx, worker.JobRequest{JobID: jobID, URLs: valid}); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	queue.Close()
	w.Run(ctx)

	rec, err := a.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("read job result: %w", err)
	}

	cmd.Printf("job       %s\n", rec.ID)
	cmd.Printf("status    %s\n", rec.Status)
	cmd.Printf("captured  %d/%d\n", rec.Completed, rec.URLsCount)
	if rec.ArchiveKey != "" {
		cmd.Printf("archive   %s\n", rec.ArchiveKey)
		if url, err := a.Blobs.SignedURL(rec.ArchiveKey, time.Hour); err == nil {
			cmd.Printf("download  %s\n", url)
		}
	}

	if rec.Status != jobstore.StatusCompleted {
		return fmt.Errorf("job %s ended %s", rec.ID, rec.Status)
	}
	return nil
}
