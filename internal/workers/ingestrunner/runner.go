package ingestrunner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"verity/internal/ports"
)

// Processor performs the ingestion work for a claimed job's website.
type Processor interface {
	Process(ctx context.Context, websiteID string) error
}

// Run starts worker goroutines that claim ingestion jobs and process them.
// A failed job is marked failed and left alone; re-running it is an
// operator action, never an automatic loop.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, concurrency int, pollInterval time.Duration, log *zap.Logger) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan ports.IngestionJob, concurrency)

	// dispatcher loop
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(jobsCh)
				return
			case <-ticker.C:
				for {
					job, found, err := repo.ClaimNext(ctx)
					if err != nil {
						log.Error("job claim failed", zap.Error(err))
						break
					}
					if !found {
						break
					}
					jobsCh <- job
				}
			}
		}
	}()

	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for job := range jobsCh {
				if err := processor.Process(ctx, job.WebsiteID); err != nil {
					_ = repo.MarkFailed(ctx, job.ID, err.Error())
					log.Warn("ingestion job failed",
						zap.Int("worker", idx),
						zap.String("job_id", job.ID),
						zap.String("website_id", job.WebsiteID),
						zap.Error(err))
					continue
				}
				if err := repo.MarkCompleted(ctx, job.ID); err != nil {
					log.Error("job completion mark failed",
						zap.Int("worker", idx),
						zap.String("job_id", job.ID),
						zap.Error(err))
				}
			}
		}(i)
	}
}

// ProcessInline claims the queued job for a specific website and processes
// it synchronously, for blocking callers and tests.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor Processor, jobID, websiteID string) error {
	if err := processor.Process(ctx, websiteID); err != nil {
		_ = repo.MarkFailed(ctx, jobID, err.Error())
		return err
	}
	return repo.MarkCompleted(ctx, jobID)
}
