package domain

import "time"

// Core domain models. API request/response shapes live in the HTTP adapter;
// keep these decoupled where helpful.

// WebsitePhase is the certification workflow state of a website.
type WebsitePhase string

const (
	PhaseInitial    WebsitePhase = "Initial"
	PhaseAutomation WebsitePhase = "Automation"
	PhaseManual     WebsitePhase = "Manual"
	PhaseFeedback   WebsitePhase = "Feedback"
	PhaseFinished   WebsitePhase = "Finished"
)

// phaseOrder fixes the only legal forward sequence. No edge skips a state
// and nothing regresses.
var phaseOrder = []WebsitePhase{
	PhaseInitial,
	PhaseAutomation,
	PhaseManual,
	PhaseFeedback,
	PhaseFinished,
}

func (p WebsitePhase) Valid() bool {
	for _, q := range phaseOrder {
		if p == q {
			return true
		}
	}
	return false
}

// Next returns the phase that follows p, and false when p is terminal or
// unknown.
func (p WebsitePhase) Next() (WebsitePhase, bool) {
	for i, q := range phaseOrder {
		if p == q && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return "", false
}

// CanAdvanceTo reports whether requested is the immediate successor of p.
func (p WebsitePhase) CanAdvanceTo(requested WebsitePhase) bool {
	next, ok := p.Next()
	return ok && next == requested
}

// Role is the closed set of caller capabilities.
type Role string

const (
	RoleClient Role = "Client"
	RoleExpert Role = "Expert"
	RoleAdmin  Role = "Admin"
)

// Caller identifies the authenticated principal behind an operation. The
// auth collaborator resolves it; core code only checks it.
type Caller struct {
	ID   string
	Role Role
}

type Website struct {
	ID                string
	BaseURL           string
	RegistrableDomain string
	AdditionalURLs    []string
	Name              string
	Description       string
	OwnerID           string

	Phase           WebsitePhase
	ExpertIDs       []string
	PrimaryExpertID string
	Completed       bool
	DarkPatternFree bool
	ExpertFeedback  string
	Archived        bool

	// Version increments on every committed mutation and backs the
	// compare-and-swap guards in the repositories.
	Version   int64
	CreatedAt time.Time
}

func (w *Website) HasExpert(expertID string) bool {
	for _, id := range w.ExpertIDs {
		if id == expertID {
			return true
		}
	}
	return false
}

func (w *Website) PanelSize() int { return len(w.ExpertIDs) }

// Assigned reports whether an expert panel has been attached yet. The
// dashboard uses it to decide between offering assignment and showing
// "Assigned".
func (w *Website) Assigned() bool { return len(w.ExpertIDs) > 0 }

// PatternPhase is the review state of a single finding.
type PatternPhase string

const (
	PatternProposed        PatternPhase = "Proposed"
	PatternConfirmed       PatternPhase = "Confirmed"
	PatternRejected        PatternPhase = "Rejected"
	PatternUnderDiscussion PatternPhase = "UnderDiscussion"
	PatternVerified        PatternPhase = "Verified"
)

// Blocking reports whether a pattern in this phase still gates the
// Manual -> Feedback transition of its website.
func (p PatternPhase) Blocking() bool {
	return p == PatternProposed || p == PatternUnderDiscussion
}

// Present reports whether a pattern in this phase counts as a standing
// finding for the final isDarkPatternFree outcome.
func (p PatternPhase) Present() bool {
	return p == PatternConfirmed || p == PatternVerified
}

type Pattern struct {
	ID          string
	WebsiteID   string
	PatternType string
	DetectedURL string
	Description string

	// CreatedByExpertID is empty for scanner-generated findings.
	CreatedByExpertID string
	AutoGenerated     bool
	Phase             PatternPhase

	Version   int64
	CreatedAt time.Time
}

// Verdict is one expert's position on one pattern.
type Verdict string

const (
	VerdictConfirmFound Verdict = "ConfirmFound"
	VerdictDenyFound    Verdict = "DenyFound"
	VerdictAbstain      Verdict = "Abstain"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictConfirmFound, VerdictDenyFound, VerdictAbstain:
		return true
	}
	return false
}

// Verification is the live verdict of one expert on one pattern. At most one
// exists per (PatternID, ExpertID); resubmission overwrites it.
type Verification struct {
	PatternID   string
	ExpertID    string
	Verdict     Verdict
	Version     int64
	SubmittedAt time.Time
}

// Comment is an append-only discussion entry on a pattern. Seq is a
// monotonically increasing per-pattern counter assigned by the store; it
// gives a creation total order that does not depend on wall clocks.
type Comment struct {
	ID        string
	PatternID string
	WebsiteID string
	ExpertID  string
	Content   string
	Seq       int64
	CreatedAt time.Time
	Replies   []Reply
}

type Reply struct {
	ExpertID  string
	Content   string
	CreatedAt time.Time
}

// Candidate is one raw finding produced by the upstream scan service.
type Candidate struct {
	PatternType string
	Text        string
}

// KPI is the dashboard aggregate over all websites.
type KPI struct {
	TotalWebsites      int `json:"totalWebsites"`
	WebsitesCertified  int `json:"websitesCertified"`
	WebsitesInProgress int `json:"websitesInProgress"`
	WebsitesRejected   int `json:"websitesRejected"`
}
