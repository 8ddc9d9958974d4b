package ports

import (
	"context"
	"time"

	"verity/internal/domain"
)

// ScanService is the upstream ML collaborator. It returns raw candidate
// findings for a website: finite, possibly empty, at-least-once (the
// ingestion layer de-duplicates).
type ScanService interface {
	Scan(ctx context.Context, websiteID, baseURL string) ([]domain.Candidate, error)
}

// KPICache is an optional read-side cache for the dashboard aggregate.
type KPICache interface {
	Get(ctx context.Context) (*domain.KPI, bool, error)
	Set(ctx context.Context, kpi *domain.KPI, ttl time.Duration) error
}
