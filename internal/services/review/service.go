package review

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"verity/internal/domain"
	"verity/internal/ports"
	"verity/internal/services/workflow"
)

// casRetries bounds the re-evaluate loop after a lost pattern-phase CAS.
// Evaluation is a pure function of the verification set, so a couple of
// re-reads always converge.
const casRetries = 3

// Service drives the pattern finding lifecycle during Manual review:
// expert-created findings, verification verdicts with consensus
// re-evaluation, and the append-only comment threads.
type Service struct {
	websites ports.WebsiteRepository
	patterns ports.PatternRepository
	comments ports.CommentRepository
	workflow *workflow.Service
	policy   domain.ConsensusPolicy
	log      *zap.Logger
}

func New(websites ports.WebsiteRepository, patterns ports.PatternRepository, comments ports.CommentRepository, wf *workflow.Service, policy domain.ConsensusPolicy, log *zap.Logger) *Service {
	return &Service{
		websites: websites,
		patterns: patterns,
		comments: comments,
		workflow: wf,
		policy:   policy,
		log:      log,
	}
}

// panelMember loads the website and checks the caller sits on its panel.
func (s *Service) panelMember(ctx context.Context, caller domain.Caller, websiteID string) (*domain.Website, error) {
	if caller.Role != domain.RoleExpert {
		return nil, &domain.AuthorizationError{CallerID: caller.ID, Reason: "Expert role required"}
	}
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	if !w.HasExpert(caller.ID) {
		return nil, &domain.AuthorizationError{CallerID: caller.ID, Reason: "not assigned to website " + w.ID}
	}
	return w, nil
}

type PatternInput struct {
	PatternType string
	DetectedURL string
	Description string
}

// AddPattern records an expert-created finding. It starts Confirmed: the
// author vouches for it, and consensus counts that vouch until they submit
// an explicit verdict.
func (s *Service) AddPattern(ctx context.Context, caller domain.Caller, websiteID string, in PatternInput) (*domain.Pattern, error) {
	w, err := s.panelMember(ctx, caller, websiteID)
	if err != nil {
		return nil, err
	}
	if w.Phase != domain.PhaseManual {
		return nil, &domain.PreconditionError{WebsiteID: w.ID, Missing: "website-not-in-manual"}
	}
	if strings.TrimSpace(in.PatternType) == "" {
		return nil, &domain.ValidationError{Field: "patternType", Reason: "required"}
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, &domain.ValidationError{Field: "description", Reason: "required"}
	}

	p := &domain.Pattern{
		ID:                uuid.NewString(),
		WebsiteID:         w.ID,
		PatternType:       in.PatternType,
		DetectedURL:       in.DetectedURL,
		Description:       in.Description,
		CreatedByExpertID: caller.ID,
		AutoGenerated:     false,
		Phase:             domain.PatternConfirmed,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.patterns.Insert(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("expert pattern added",
		zap.String("website_id", w.ID),
		zap.String("pattern_id", p.ID),
		zap.String("expert_id", caller.ID))
	return p, nil
}

// SubmitVerification records the caller's verdict on a pattern, overwriting
// any earlier verdict of theirs, then re-runs consensus and the
// Manual -> Feedback gate. Submitting the same verdict twice lands in the
// same place as submitting it once.
func (s *Service) SubmitVerification(ctx context.Context, caller domain.Caller, patternID string, verdict domain.Verdict) (*domain.Pattern, error) {
	if !verdict.Valid() {
		return nil, &domain.ValidationError{Field: "verdict", Reason: "unknown value"}
	}
	p, err := s.patterns.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	w, err := s.panelMember(ctx, caller, p.WebsiteID)
	if err != nil {
		return nil, err
	}
	if w.Phase != domain.PhaseManual {
		return nil, &domain.PreconditionError{WebsiteID: w.ID, Missing: "website-not-in-manual"}
	}

	// Double-submits from two sessions of the same expert race on the
	// verification row version; distinct experts never conflict here.
	var expectedVersion int64
	if prior, err := s.patterns.GetVerification(ctx, patternID, caller.ID); err == nil {
		expectedVersion = prior.Version
	} else if !domain.IsNotFound(err) {
		return nil, err
	}
	v := &domain.Verification{
		PatternID:   patternID,
		ExpertID:    caller.ID,
		Verdict:     verdict,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.patterns.SubmitVerification(ctx, v, expectedVersion); err != nil {
		return nil, err
	}

	if err := s.reevaluate(ctx, patternID, w.PanelSize()); err != nil {
		return nil, err
	}
	if err := s.workflow.MaybeAdvanceToFeedback(ctx, w.ID); err != nil {
		return nil, err
	}
	return s.patterns.GetPattern(ctx, patternID)
}

// reevaluate recomputes the consensus phase from the current verification
// set. It is order-independent, so losing the CAS to a concurrent submitter
// just means re-reading and recomputing.
func (s *Service) reevaluate(ctx context.Context, patternID string, panelSize int) error {
	for attempt := 0; ; attempt++ {
		p, err := s.patterns.GetPattern(ctx, patternID)
		if err != nil {
			return err
		}
		verifications, err := s.patterns.ListVerifications(ctx, patternID)
		if err != nil {
			return err
		}
		next := s.policy.Evaluate(p, verifications, panelSize)
		if next == p.Phase {
			return nil
		}
		err = s.patterns.UpdatePhase(ctx, patternID, p.Version, next)
		if err == nil {
			s.log.Info("pattern phase updated",
				zap.String("pattern_id", patternID),
				zap.String("phase", string(next)))
			return nil
		}
		if !domain.IsStale(err) || attempt >= casRetries {
			return err
		}
	}
}

// AddComment appends to a pattern's discussion thread. Comments are
// non-blocking discussion: they never trigger the feedback gate.
func (s *Service) AddComment(ctx context.Context, caller domain.Caller, patternID, content string) (*domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &domain.ValidationError{Field: "content", Reason: "required"}
	}
	p, err := s.patterns.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	w, err := s.panelMember(ctx, caller, p.WebsiteID)
	if err != nil {
		return nil, err
	}
	if w.Phase != domain.PhaseManual && w.Phase != domain.PhaseFeedback {
		return nil, &domain.PreconditionError{WebsiteID: w.ID, Missing: "review-not-open"}
	}
	c := &domain.Comment{
		ID:        uuid.NewString(),
		PatternID: p.ID,
		WebsiteID: w.ID,
		ExpertID:  caller.ID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.comments.Append(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddReply appends to an existing comment.
func (s *Service) AddReply(ctx context.Context, caller domain.Caller, commentID, content string) (*domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &domain.ValidationError{Field: "content", Reason: "required"}
	}
	c, err := s.comments.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.panelMember(ctx, caller, c.WebsiteID); err != nil {
		return nil, err
	}
	r := domain.Reply{ExpertID: caller.ID, Content: content, CreatedAt: time.Now().UTC()}
	if err := s.comments.AppendReply(ctx, commentID, r); err != nil {
		return nil, err
	}
	return s.comments.GetComment(ctx, commentID)
}

// PatternDetail is the read projection of one finding with its review state.
type PatternDetail struct {
	Pattern       *domain.Pattern
	Verifications []domain.Verification
	Comments      []*domain.Comment
}

// GetPattern returns a finding with verifications and comment threads.
// Panel members, the website owner, and admins may read.
func (s *Service) GetPattern(ctx context.Context, caller domain.Caller, patternID string) (*PatternDetail, error) {
	p, err := s.patterns.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	w, err := s.websites.Get(ctx, p.WebsiteID)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(caller, w); err != nil {
		return nil, err
	}
	verifications, err := s.patterns.ListVerifications(ctx, patternID)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	return &PatternDetail{Pattern: p, Verifications: verifications, Comments: comments}, nil
}

// ListPatterns returns all findings of a website, auto-generated and
// expert-created alike. Rejected ones remain queryable.
func (s *Service) ListPatterns(ctx context.Context, caller domain.Caller, websiteID string) ([]*domain.Pattern, error) {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	if err := s.canRead(caller, w); err != nil {
		return nil, err
	}
	return s.patterns.ListByWebsite(ctx, websiteID)
}

func (s *Service) canRead(caller domain.Caller, w *domain.Website) error {
	switch {
	case caller.Role == domain.RoleAdmin:
		return nil
	case caller.Role == domain.RoleClient && caller.ID == w.OwnerID:
		return nil
	case caller.Role == domain.RoleExpert && w.HasExpert(caller.ID):
		return nil
	}
	return &domain.AuthorizationError{CallerID: caller.ID, Reason: "no access to website " + w.ID}
}
