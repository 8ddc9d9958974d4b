package ports

import (
	"context"

	"verity/internal/domain"
)

// WebsiteRepository stores website records. Phase writes are
// compare-and-swap on (websiteID, expectedPhase): a mismatch returns
// *domain.StaleStateError and leaves the record untouched.
type WebsiteRepository interface {
	Create(ctx context.Context, w *domain.Website) error
	Get(ctx context.Context, websiteID string) (*domain.Website, error)

	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Website, error)
	ListByExpert(ctx context.Context, expertID string) ([]*domain.Website, error)
	ListByPhase(ctx context.Context, phase *domain.WebsitePhase) ([]*domain.Website, error)

	// CountOpenByExpert counts unfinished websites an expert sits on,
	// for the capacity check during assignment.
	CountOpenByExpert(ctx context.Context, expertID string) (int, error)

	// AdvancePhase moves the website from expected to next. First
	// committer wins; the loser gets *domain.StaleStateError.
	AdvancePhase(ctx context.Context, websiteID string, expected, next domain.WebsitePhase) error

	// ReplacePanel atomically installs the expert panel while the website
	// still sits in expected phase.
	ReplacePanel(ctx context.Context, websiteID string, expected domain.WebsitePhase, expertIDs []string, primaryExpertID string) error

	// Finish is the Feedback -> Finished sign-off write: phase, feedback,
	// outcome, and the completed flag land in one commit or not at all.
	Finish(ctx context.Context, websiteID string, feedback string, darkPatternFree bool) error

	// Archive soft-archives a website; records referenced by patterns are
	// never physically deleted.
	Archive(ctx context.Context, websiteID string) error
}

// PatternRepository stores findings and their verifications.
type PatternRepository interface {
	// InsertBatch writes every pattern or none of them.
	InsertBatch(ctx context.Context, patterns []*domain.Pattern) error
	Insert(ctx context.Context, p *domain.Pattern) error
	GetPattern(ctx context.Context, patternID string) (*domain.Pattern, error)
	ListByWebsite(ctx context.Context, websiteID string) ([]*domain.Pattern, error)

	// CountBlocking counts patterns still in Proposed or UnderDiscussion,
	// the gate for Manual -> Feedback.
	CountBlocking(ctx context.Context, websiteID string) (int, error)

	// UpdatePhase is compare-and-swap on the pattern version.
	UpdatePhase(ctx context.Context, patternID string, expectedVersion int64, phase domain.PatternPhase) error

	// SubmitVerification upserts the expert's verdict. expectedVersion 0
	// asserts no prior verdict exists; otherwise it must match the live
	// row. Last write wins per expert, never an append.
	SubmitVerification(ctx context.Context, v *domain.Verification, expectedVersion int64) error
	GetVerification(ctx context.Context, patternID, expertID string) (*domain.Verification, error)
	ListVerifications(ctx context.Context, patternID string) ([]domain.Verification, error)
}

// CommentRepository is append-only. Append assigns Comment.Seq from the
// per-pattern counter.
type CommentRepository interface {
	Append(ctx context.Context, c *domain.Comment) error
	AppendReply(ctx context.Context, commentID string, r domain.Reply) error
	ListByPattern(ctx context.Context, patternID string) ([]*domain.Comment, error)
	GetComment(ctx context.Context, commentID string) (*domain.Comment, error)
}
