package assignment

import (
	"context"

	"go.uber.org/zap"

	"verity/internal/domain"
	"verity/internal/ports"
	"verity/internal/services/workflow"
)

// Service is the assignment coordinator: it validates and installs the
// expert panel and is the sole external trigger for Initial -> Automation.
type Service struct {
	websites ports.WebsiteRepository
	workflow *workflow.Service
	maxLoad  int
	log      *zap.Logger
}

func New(websites ports.WebsiteRepository, wf *workflow.Service, maxLoad int, log *zap.Logger) *Service {
	if maxLoad < 1 {
		maxLoad = 1
	}
	return &Service{websites: websites, workflow: wf, maxLoad: maxLoad, log: log}
}

// AssignExperts replaces the website's panel atomically and kicks off
// automation. Any composition violation fails with InvalidAssignmentError
// and leaves the website untouched.
func (s *Service) AssignExperts(ctx context.Context, caller domain.Caller, websiteID string, expertIDs []string, primaryExpertID string) error {
	if caller.Role != domain.RoleAdmin {
		return &domain.AuthorizationError{CallerID: caller.ID, Reason: "Admin role required"}
	}
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return err
	}
	if w.Assigned() {
		return &domain.InvalidAssignmentError{WebsiteID: w.ID, Reason: "experts already assigned"}
	}
	if len(expertIDs) == 0 {
		return &domain.InvalidAssignmentError{WebsiteID: w.ID, Reason: "empty expert panel"}
	}

	seen := make(map[string]bool, len(expertIDs))
	for _, id := range expertIDs {
		if id == "" {
			return &domain.InvalidAssignmentError{WebsiteID: w.ID, Reason: "empty expert id"}
		}
		if seen[id] {
			return &domain.InvalidAssignmentError{WebsiteID: w.ID, Reason: "duplicate expert " + id}
		}
		seen[id] = true
	}
	if !seen[primaryExpertID] {
		return &domain.InvalidAssignmentError{WebsiteID: w.ID, Reason: "primary expert not in panel"}
	}

	for _, id := range expertIDs {
		open, err := s.websites.CountOpenByExpert(ctx, id)
		if err != nil {
			return err
		}
		if open >= s.maxLoad {
			return &domain.InvalidAssignmentError{WebsiteID: w.ID, Reason: "expert " + id + " at capacity"}
		}
	}

	if err := s.websites.ReplacePanel(ctx, w.ID, domain.PhaseInitial, expertIDs, primaryExpertID); err != nil {
		return err
	}
	s.log.Info("expert panel assigned",
		zap.String("website_id", w.ID),
		zap.Int("panel_size", len(expertIDs)),
		zap.String("primary_expert_id", primaryExpertID))

	return s.workflow.StartAutomation(ctx, w.ID)
}

// Unassigned reports whether a website still waits for its panel, for the
// admin view deciding between offering assignment and showing the panel.
func (s *Service) Unassigned(ctx context.Context, caller domain.Caller, websiteID string) (bool, error) {
	if caller.Role != domain.RoleAdmin {
		return false, &domain.AuthorizationError{CallerID: caller.ID, Reason: "Admin role required"}
	}
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return false, err
	}
	return !w.Assigned(), nil
}
