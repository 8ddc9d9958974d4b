package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"verity/internal/ports"
)

func (db *DB) Enqueue(ctx context.Context, websiteID string) (string, error) {
	jobID := uuid.NewString()
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO ingestion_jobs (id, website_id, status, queued_at)
		VALUES ($1, $2, 'queued', now())
	`, jobID, websiteID)
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// ClaimNext selects the next queued job with SKIP LOCKED and marks it
// running, so concurrent workers never claim the same job twice.
func (db *DB) ClaimNext(ctx context.Context) (job ports.IngestionJob, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		SELECT id, website_id FROM ingestion_jobs
		WHERE status = 'queued'
		ORDER BY queued_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&job.ID, &job.WebsiteID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE ingestion_jobs
		SET status = 'running', started_at = now(), attempts = attempts + 1
		WHERE id = $1
	`, job.ID); err != nil {
		return job, false, err
	}
	return job, true, nil
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
		UPDATE ingestion_jobs SET status = 'completed', finished_at = now() WHERE id = $1
	`, jobID)
	return err
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
		UPDATE ingestion_jobs SET status = 'failed', finished_at = now(), failure_reason = $2 WHERE id = $1
	`, jobID, reason)
	return err
}
