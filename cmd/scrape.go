package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrapekit/scrapper/internal/id/uuid"
	"github.com/scrapekit/scrapper/internal/scrape"
)

var scrapeWait time.Duration

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <slug>",
		Short: "Runs a single scrape for a registered project",
		Long: `Executes one fetch-extract-store cycle for the named project and waits
for it to finish. Useful for testing extraction rules without starting
the full service.`,
		Args: cobra.ExactArgs(1),

		RunE: runScrapeCommand,
	}
	cmd.Flags().DurationVar(&scrapeWait, "wait", 10*time.Minute, "maximum time to wait for the run to finish")
	return cmd
}

func runScrapeCommand(cmd *cobra.Command, args []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	slug := args[0]

	ctx, cancel := context.WithTimeout(cmd.Context(), scrapeWait)
	defer cancel()

	pipe, err := buildPipeline(ctx, a)
	if err != nil {
		return err
	}
	defer pipe.close()

	project, err := a.projects.GetProject(ctx, slug)
	if err != nil {
		return fmt.Errorf("load project %q: %w", slug, err)
	}
	if project.Status != scrape.ProjectStatusActive {
		return fmt.Errorf("project %q is %s", slug, project.Status)
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	now := time.Now().UTC()
	if err := a.results.CreateRun(ctx, scrape.Run{
		ID:        runID,
		ProjectID: project.ID,
		Status:    scrape.RunStatusQueued,
		Trigger:   scrape.TriggerManual,
		Submitted: now,
	}); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if err := pipe.queue.Enqueue(ctx, scrape.QueueItem{
		RunID:     runID,
		Project:   project,
		Trigger:   scrape.TriggerManual,
		Submitted: now.Unix(),
	}); err != nil {
		return fmt.Errorf("enqueue run: %w", err)
	}

	go pipe.dispatcher.Run(ctx)
	a.logger.Info("run submitted", zap.String("slug", slug), zap.String("run_id", runID))

	run, err := waitForRun(ctx, a, runID)
	if err != nil {
		return err
	}

	a.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("pages_fetched", run.Counters.PagesFetched),
		zap.Int("records_new", run.Counters.RecordsNew),
		zap.Int("records_duplicate", run.Counters.RecordsDuplicate),
	)
	if run.Status == scrape.RunStatusFailed {
		return fmt.Errorf("run failed: %s", run.ErrorText)
	}
	return nil
}

func waitForRun(ctx context.Context, a *app, runID string) (scrape.Run, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return scrape.Run{}, fmt.Errorf("wait for run %s: %w", runID, ctx.Err())
		case <-ticker.C:
			run, err := a.results.GetRun(ctx, runID)
			if err != nil {
				return scrape.Run{}, fmt.Errorf("poll run %s: %w", runID, err)
			}
			if run.Status.Terminal() {
				return run, nil
			}
		}
	}
}
