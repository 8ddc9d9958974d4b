package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"verity/internal/domain"
	"verity/internal/ports"
	"verity/internal/services/workflow"
)

// Service is the scan ingestion adapter: it turns raw scanner candidates
// into Proposed pattern records and signals the workflow engine when the
// batch has landed. The scanner delivers at-least-once, so candidates are
// de-duplicated by exact text against the website's existing Proposed
// findings and within the batch itself. The insert is all-or-nothing.
type Service struct {
	websites ports.WebsiteRepository
	patterns ports.PatternRepository
	scanner  ports.ScanService
	workflow *workflow.Service
	timeout  time.Duration
	log      *zap.Logger
}

func New(websites ports.WebsiteRepository, patterns ports.PatternRepository, scanner ports.ScanService, wf *workflow.Service, timeout time.Duration, log *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Service{
		websites: websites,
		patterns: patterns,
		scanner:  scanner,
		workflow: wf,
		timeout:  timeout,
		log:      log,
	}
}

// Process runs one ingestion for a website in Automation. It is the worker
// pool's processor. A website already past Automation means a duplicate job;
// that is a no-op, not an error.
func (s *Service) Process(ctx context.Context, websiteID string) error {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return err
	}
	switch w.Phase {
	case domain.PhaseAutomation:
	case domain.PhaseInitial:
		return &domain.PreconditionError{WebsiteID: w.ID, Missing: "automation-not-started"}
	default:
		s.log.Debug("duplicate ingestion job skipped",
			zap.String("website_id", w.ID),
			zap.String("phase", string(w.Phase)))
		return nil
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	candidates, err := s.scanner.Scan(scanCtx, w.ID, w.BaseURL)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded)
		s.log.Warn("scan failed",
			zap.String("website_id", w.ID),
			zap.Bool("timeout", timeout),
			zap.Error(err))
		return &domain.IngestionError{WebsiteID: w.ID, Timeout: timeout, Err: err}
	}

	batch, err := s.dedupe(ctx, w.ID, candidates)
	if err != nil {
		return err
	}
	if len(batch) > 0 {
		if err := s.patterns.InsertBatch(ctx, batch); err != nil {
			return &domain.IngestionError{WebsiteID: w.ID, Err: err}
		}
	}
	s.log.Info("scan candidates ingested",
		zap.String("website_id", w.ID),
		zap.Int("received", len(candidates)),
		zap.Int("inserted", len(batch)))

	return s.workflow.CompleteIngestion(ctx, w.ID)
}

// dedupe drops candidates whose text already exists as a Proposed pattern of
// the website, and collapses repeats within the batch.
func (s *Service) dedupe(ctx context.Context, websiteID string, candidates []domain.Candidate) ([]*domain.Pattern, error) {
	existing, err := s.patterns.ListByWebsite(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, p := range existing {
		if p.Phase == domain.PatternProposed {
			seen[p.Description] = true
		}
	}

	now := time.Now().UTC()
	batch := make([]*domain.Pattern, 0, len(candidates))
	for _, c := range candidates {
		if c.Text == "" || seen[c.Text] {
			continue
		}
		seen[c.Text] = true
		batch = append(batch, &domain.Pattern{
			ID:            uuid.NewString(),
			WebsiteID:     websiteID,
			PatternType:   c.PatternType,
			Description:   c.Text,
			AutoGenerated: true,
			Phase:         domain.PatternProposed,
			CreatedAt:     now,
		})
	}
	return batch, nil
}
