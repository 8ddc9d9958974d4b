package workflow

import (
	"context"

	"go.uber.org/zap"

	"verity/internal/domain"
	"verity/internal/ports"
)

// Service is the phase transition engine. Every transition names the phase
// it expects to leave and either commits whole or fails without touching the
// website; the repository enforces first-committer-wins on the edge itself.
type Service struct {
	websites ports.WebsiteRepository
	patterns ports.PatternRepository
	jobs     ports.JobRepository
	log      *zap.Logger
}

func New(websites ports.WebsiteRepository, patterns ports.PatternRepository, jobs ports.JobRepository, log *zap.Logger) *Service {
	return &Service{websites: websites, patterns: patterns, jobs: jobs, log: log}
}

// guard rejects any edge that is not the immediate successor, with enough
// context for the caller to decide what to do next.
func guard(w *domain.Website, requested domain.WebsitePhase) error {
	if !w.Phase.CanAdvanceTo(requested) {
		return &domain.InvalidTransitionError{WebsiteID: w.ID, Current: w.Phase, Requested: requested}
	}
	return nil
}

// StartAutomation moves Initial -> Automation and enqueues the ingestion
// job. The assignment coordinator is the only caller; the panel must already
// be installed.
func (s *Service) StartAutomation(ctx context.Context, websiteID string) error {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return err
	}
	if err := guard(w, domain.PhaseAutomation); err != nil {
		return err
	}
	if w.PanelSize() == 0 || w.PrimaryExpertID == "" {
		return &domain.PreconditionError{WebsiteID: w.ID, Missing: "no-primary-expert"}
	}
	if err := s.websites.AdvancePhase(ctx, w.ID, domain.PhaseInitial, domain.PhaseAutomation); err != nil {
		return err
	}
	jobID, err := s.jobs.Enqueue(ctx, w.ID)
	if err != nil {
		return err
	}
	s.log.Info("automation started",
		zap.String("website_id", w.ID),
		zap.String("job_id", jobID))
	return nil
}

// CompleteIngestion moves Automation -> Manual once the ingestion batch has
// landed. Success and empty-result both count as complete; failures never
// reach here, the website stays in Automation for operator retry.
func (s *Service) CompleteIngestion(ctx context.Context, websiteID string) error {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return err
	}
	if err := guard(w, domain.PhaseManual); err != nil {
		return err
	}
	if err := s.websites.AdvancePhase(ctx, w.ID, domain.PhaseAutomation, domain.PhaseManual); err != nil {
		return err
	}
	s.log.Info("ingestion complete, manual review open", zap.String("website_id", w.ID))
	return nil
}

// AdvanceToFeedback moves Manual -> Feedback when no pattern is left in
// Proposed or UnderDiscussion. Competing callers race on the CAS; the loser
// gets StaleStateError.
func (s *Service) AdvanceToFeedback(ctx context.Context, websiteID string) error {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return err
	}
	if err := guard(w, domain.PhaseFeedback); err != nil {
		return err
	}
	blocking, err := s.patterns.CountBlocking(ctx, w.ID)
	if err != nil {
		return err
	}
	if blocking > 0 {
		return &domain.PreconditionError{WebsiteID: w.ID, Missing: "patterns-under-review"}
	}
	if err := s.websites.AdvancePhase(ctx, w.ID, domain.PhaseManual, domain.PhaseFeedback); err != nil {
		return err
	}
	s.log.Info("review settled, feedback open", zap.String("website_id", w.ID))
	return nil
}

// CompleteReview is the explicit panel action declaring the Manual review
// done. It exists for websites whose scan produced nothing to verify: no
// verification ever fires the lazy gate there, so a panel member closes the
// review by hand. Open patterns still block it.
func (s *Service) CompleteReview(ctx context.Context, caller domain.Caller, websiteID string) (*domain.Website, error) {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleExpert || !w.HasExpert(caller.ID) {
		return nil, &domain.AuthorizationError{CallerID: caller.ID, Reason: "not assigned to website " + w.ID}
	}
	if err := s.AdvanceToFeedback(ctx, websiteID); err != nil {
		return nil, err
	}
	return s.websites.Get(ctx, websiteID)
}

// MaybeAdvanceToFeedback is the lazy gate evaluated after each mutating
// pattern operation. Nothing happens while the review is still open. Losing
// the CAS to a concurrent trigger is fine here as long as the website ended
// up in Feedback anyway.
func (s *Service) MaybeAdvanceToFeedback(ctx context.Context, websiteID string) error {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return err
	}
	if w.Phase != domain.PhaseManual {
		return nil
	}
	blocking, err := s.patterns.CountBlocking(ctx, w.ID)
	if err != nil {
		return err
	}
	if blocking > 0 {
		return nil
	}
	err = s.websites.AdvancePhase(ctx, w.ID, domain.PhaseManual, domain.PhaseFeedback)
	if domain.IsStale(err) {
		cur, gerr := s.websites.Get(ctx, websiteID)
		if gerr == nil && cur.Phase != domain.PhaseManual {
			return nil
		}
		return err
	}
	if err == nil {
		s.log.Info("review settled, feedback open", zap.String("website_id", websiteID))
	}
	return err
}

// SignOff is the explicit primary-expert action closing the workflow:
// Feedback -> Finished with the written feedback and the computed
// isDarkPatternFree outcome.
func (s *Service) SignOff(ctx context.Context, caller domain.Caller, websiteID, feedback string) (*domain.Website, error) {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	if caller.ID != w.PrimaryExpertID {
		return nil, &domain.AuthorizationError{CallerID: caller.ID, Reason: "only the primary expert may sign off"}
	}
	if err := guard(w, domain.PhaseFinished); err != nil {
		return nil, err
	}

	patterns, err := s.patterns.ListByWebsite(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	free := true
	for _, p := range patterns {
		if p.Phase.Present() {
			free = false
			break
		}
	}

	if err := s.websites.Finish(ctx, w.ID, feedback, free); err != nil {
		return nil, err
	}
	s.log.Info("website signed off",
		zap.String("website_id", w.ID),
		zap.Bool("dark_pattern_free", free))
	return s.websites.Get(ctx, w.ID)
}

// RetryIngestion re-enqueues the ingestion job for a website stuck in
// Automation after an upstream failure. Operator (Admin) action only; the
// engine never retries on its own.
func (s *Service) RetryIngestion(ctx context.Context, caller domain.Caller, websiteID string) error {
	if caller.Role != domain.RoleAdmin {
		return &domain.AuthorizationError{CallerID: caller.ID, Reason: "Admin role required"}
	}
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return err
	}
	if w.Phase != domain.PhaseAutomation {
		return &domain.PreconditionError{WebsiteID: w.ID, Missing: "website-not-in-automation"}
	}
	jobID, err := s.jobs.Enqueue(ctx, w.ID)
	if err != nil {
		return err
	}
	s.log.Info("ingestion retry enqueued",
		zap.String("website_id", w.ID),
		zap.String("job_id", jobID))
	return nil
}
