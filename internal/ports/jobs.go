package ports

import "context"

// IngestionJob is one pending scan-ingestion run for a website in
// Automation.
type IngestionJob struct {
	ID        string
	WebsiteID string
}

// JobRepository supports enqueueing and claiming ingestion jobs.
type JobRepository interface {
	Enqueue(ctx context.Context, websiteID string) (jobID string, err error)
	ClaimNext(ctx context.Context) (job IngestionJob, found bool, err error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
}
