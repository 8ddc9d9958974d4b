package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"verity/internal/domain"
	"verity/internal/ports"
)

// Store is an in-process implementation of the repository ports with the
// same compare-and-swap semantics as the Postgres adapter. It backs tests
// and local runs without a database.
type Store struct {
	mu sync.Mutex

	websites map[string]*domain.Website
	patterns map[string]*domain.Pattern
	// verifications keyed by patternID then expertID; one live row per pair.
	verifications map[string]map[string]*domain.Verification
	comments      map[string]*domain.Comment
	commentOrder  map[string][]string // patternID -> comment IDs in append order
	commentSeq    map[string]int64    // patternID -> last assigned seq

	jobs   []*jobRecord
	jobSeq int
}

type jobRecord struct {
	id        string
	websiteID string
	status    string // queued|running|completed|failed
	reason    string
}

func New() *Store {
	return &Store{
		websites:      make(map[string]*domain.Website),
		patterns:      make(map[string]*domain.Pattern),
		verifications: make(map[string]map[string]*domain.Verification),
		comments:      make(map[string]*domain.Comment),
		commentOrder:  make(map[string][]string),
		commentSeq:    make(map[string]int64),
	}
}

var (
	_ ports.WebsiteRepository = (*Store)(nil)
	_ ports.PatternRepository = (*Store)(nil)
	_ ports.CommentRepository = (*Store)(nil)
	_ ports.JobRepository     = (*Store)(nil)
)

// --- WebsiteRepository ---

func (s *Store) Create(ctx context.Context, w *domain.Website) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.websites[w.ID]; ok {
		return fmt.Errorf("website %s already exists", w.ID)
	}
	cp := cloneWebsite(w)
	cp.Version = 1
	s.websites[w.ID] = cp
	w.Version = 1
	return nil
}

func (s *Store) Get(ctx context.Context, websiteID string) (*domain.Website, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.websites[websiteID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "website", ID: websiteID}
	}
	return cloneWebsite(w), nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Website, error) {
	return s.listWebsites(func(w *domain.Website) bool { return w.OwnerID == ownerID })
}

func (s *Store) ListByExpert(ctx context.Context, expertID string) ([]*domain.Website, error) {
	return s.listWebsites(func(w *domain.Website) bool { return w.HasExpert(expertID) })
}

func (s *Store) ListByPhase(ctx context.Context, phase *domain.WebsitePhase) ([]*domain.Website, error) {
	return s.listWebsites(func(w *domain.Website) bool {
		return phase == nil || w.Phase == *phase
	})
}

func (s *Store) listWebsites(keep func(*domain.Website) bool) ([]*domain.Website, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Website
	for _, w := range s.websites {
		if !w.Archived && keep(w) {
			out = append(out, cloneWebsite(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountOpenByExpert(ctx context.Context, expertID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.websites {
		if w.HasExpert(expertID) && w.Phase != domain.PhaseFinished {
			n++
		}
	}
	return n, nil
}

func (s *Store) AdvancePhase(ctx context.Context, websiteID string, expected, next domain.WebsitePhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.websites[websiteID]
	if !ok {
		return &domain.NotFoundError{Kind: "website", ID: websiteID}
	}
	if w.Phase != expected {
		return &domain.StaleStateError{
			Entity: "website", ID: websiteID,
			Detail: fmt.Sprintf("expected phase %s, found %s", expected, w.Phase),
		}
	}
	w.Phase = next
	w.Version++
	return nil
}

func (s *Store) ReplacePanel(ctx context.Context, websiteID string, expected domain.WebsitePhase, expertIDs []string, primaryExpertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.websites[websiteID]
	if !ok {
		return &domain.NotFoundError{Kind: "website", ID: websiteID}
	}
	if w.Phase != expected {
		return &domain.StaleStateError{
			Entity: "website", ID: websiteID,
			Detail: fmt.Sprintf("expected phase %s, found %s", expected, w.Phase),
		}
	}
	w.ExpertIDs = append([]string(nil), expertIDs...)
	w.PrimaryExpertID = primaryExpertID
	w.Version++
	return nil
}

func (s *Store) Finish(ctx context.Context, websiteID string, feedback string, darkPatternFree bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.websites[websiteID]
	if !ok {
		return &domain.NotFoundError{Kind: "website", ID: websiteID}
	}
	if w.Phase != domain.PhaseFeedback {
		return &domain.StaleStateError{
			Entity: "website", ID: websiteID,
			Detail: fmt.Sprintf("expected phase %s, found %s", domain.PhaseFeedback, w.Phase),
		}
	}
	w.Phase = domain.PhaseFinished
	w.Completed = true
	w.DarkPatternFree = darkPatternFree
	w.ExpertFeedback = feedback
	w.Version++
	return nil
}

func (s *Store) Archive(ctx context.Context, websiteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.websites[websiteID]
	if !ok {
		return &domain.NotFoundError{Kind: "website", ID: websiteID}
	}
	w.Archived = true
	w.Version++
	return nil
}

// --- PatternRepository ---

func (s *Store) InsertBatch(ctx context.Context, patterns []*domain.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patterns {
		if _, ok := s.patterns[p.ID]; ok {
			return fmt.Errorf("pattern %s already exists", p.ID)
		}
	}
	for _, p := range patterns {
		// Same skip as the partial unique index on Proposed candidates.
		if p.Phase == domain.PatternProposed && s.hasProposed(p.WebsiteID, p.Description) {
			continue
		}
		cp := clonePattern(p)
		cp.Version = 1
		s.patterns[p.ID] = cp
		p.Version = 1
	}
	return nil
}

func (s *Store) hasProposed(websiteID, description string) bool {
	for _, q := range s.patterns {
		if q.WebsiteID == websiteID && q.Phase == domain.PatternProposed && q.Description == description {
			return true
		}
	}
	return false
}

func (s *Store) Insert(ctx context.Context, p *domain.Pattern) error {
	return s.InsertBatch(ctx, []*domain.Pattern{p})
}

func (s *Store) GetPattern(ctx context.Context, patternID string) (*domain.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[patternID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "pattern", ID: patternID}
	}
	return clonePattern(p), nil
}

func (s *Store) ListByWebsite(ctx context.Context, websiteID string) ([]*domain.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Pattern
	for _, p := range s.patterns {
		if p.WebsiteID == websiteID {
			out = append(out, clonePattern(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CountBlocking(ctx context.Context, websiteID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.patterns {
		if p.WebsiteID == websiteID && p.Phase.Blocking() {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdatePhase(ctx context.Context, patternID string, expectedVersion int64, phase domain.PatternPhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[patternID]
	if !ok {
		return &domain.NotFoundError{Kind: "pattern", ID: patternID}
	}
	if p.Version != expectedVersion {
		return &domain.StaleStateError{
			Entity: "pattern", ID: patternID,
			Detail: fmt.Sprintf("expected version %d, found %d", expectedVersion, p.Version),
		}
	}
	p.Phase = phase
	p.Version++
	return nil
}

func (s *Store) SubmitVerification(ctx context.Context, v *domain.Verification, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[v.PatternID]; !ok {
		return &domain.NotFoundError{Kind: "pattern", ID: v.PatternID}
	}
	byExpert := s.verifications[v.PatternID]
	if byExpert == nil {
		byExpert = make(map[string]*domain.Verification)
		s.verifications[v.PatternID] = byExpert
	}
	existing := byExpert[v.ExpertID]
	switch {
	case existing == nil && expectedVersion != 0:
		return &domain.StaleStateError{
			Entity: "verification", ID: v.PatternID + "/" + v.ExpertID,
			Detail: fmt.Sprintf("expected version %d, found none", expectedVersion),
		}
	case existing != nil && existing.Version != expectedVersion:
		return &domain.StaleStateError{
			Entity: "verification", ID: v.PatternID + "/" + v.ExpertID,
			Detail: fmt.Sprintf("expected version %d, found %d", expectedVersion, existing.Version),
		}
	}
	cp := *v
	cp.Version = expectedVersion + 1
	byExpert[v.ExpertID] = &cp
	v.Version = cp.Version
	return nil
}

func (s *Store) GetVerification(ctx context.Context, patternID, expertID string) (*domain.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.verifications[patternID][expertID]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, &domain.NotFoundError{Kind: "verification", ID: patternID + "/" + expertID}
}

func (s *Store) ListVerifications(ctx context.Context, patternID string) ([]domain.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Verification
	for _, v := range s.verifications[patternID] {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpertID < out[j].ExpertID })
	return out, nil
}

// --- CommentRepository ---

func (s *Store) Append(ctx context.Context, c *domain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[c.PatternID]; !ok {
		return &domain.NotFoundError{Kind: "pattern", ID: c.PatternID}
	}
	s.commentSeq[c.PatternID]++
	cp := cloneComment(c)
	cp.Seq = s.commentSeq[c.PatternID]
	s.comments[c.ID] = cp
	s.commentOrder[c.PatternID] = append(s.commentOrder[c.PatternID], c.ID)
	c.Seq = cp.Seq
	return nil
}

func (s *Store) AppendReply(ctx context.Context, commentID string, r domain.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return &domain.NotFoundError{Kind: "comment", ID: commentID}
	}
	c.Replies = append(c.Replies, r)
	return nil
}

func (s *Store) ListByPattern(ctx context.Context, patternID string) ([]*domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.commentOrder[patternID]
	out := make([]*domain.Comment, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneComment(s.comments[id]))
	}
	return out, nil
}

func (s *Store) GetComment(ctx context.Context, commentID string) (*domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "comment", ID: commentID}
	}
	return cloneComment(c), nil
}

// --- JobRepository ---

func (s *Store) Enqueue(ctx context.Context, websiteID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobSeq++
	j := &jobRecord{id: fmt.Sprintf("job-%d", s.jobSeq), websiteID: websiteID, status: "queued"}
	s.jobs = append(s.jobs, j)
	return j.id, nil
}

func (s *Store) ClaimNext(ctx context.Context) (ports.IngestionJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.status == "queued" {
			j.status = "running"
			return ports.IngestionJob{ID: j.id, WebsiteID: j.websiteID}, true, nil
		}
	}
	return ports.IngestionJob{}, false, nil
}

func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	return s.setJobStatus(jobID, "completed", "")
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return s.setJobStatus(jobID, "failed", reason)
}

func (s *Store) setJobStatus(jobID, status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.id == jobID {
			j.status = status
			j.reason = reason
			return nil
		}
	}
	return &domain.NotFoundError{Kind: "job", ID: jobID}
}

// JobStatus exposes the job state for tests.
func (s *Store) JobStatus(jobID string) (status, reason string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.id == jobID {
			return j.status, j.reason, true
		}
	}
	return "", "", false
}

// PendingJobs counts queued jobs, for tests.
func (s *Store) PendingJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.status == "queued" {
			n++
		}
	}
	return n
}

// --- clone helpers; callers never see store-owned memory ---

func cloneWebsite(w *domain.Website) *domain.Website {
	cp := *w
	cp.AdditionalURLs = append([]string(nil), w.AdditionalURLs...)
	cp.ExpertIDs = append([]string(nil), w.ExpertIDs...)
	return &cp
}

func clonePattern(p *domain.Pattern) *domain.Pattern {
	cp := *p
	return &cp
}

func cloneComment(c *domain.Comment) *domain.Comment {
	cp := *c
	cp.Replies = append([]domain.Reply(nil), c.Replies...)
	return &cp
}
