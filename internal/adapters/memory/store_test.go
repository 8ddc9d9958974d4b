package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verity/internal/domain"
)

func seedWebsite(t *testing.T, s *Store, phase domain.WebsitePhase) *domain.Website {
	t.Helper()
	w := &domain.Website{
		ID: "w1", Name: "n", BaseURL: "https://x.example", OwnerID: "c1",
		Phase: phase, ExpertIDs: []string{"e1"}, PrimaryExpertID: "e1",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Create(context.Background(), w))
	return w
}

func seedPattern(t *testing.T, s *Store, id string) *domain.Pattern {
	t.Helper()
	p := &domain.Pattern{
		ID: id, WebsiteID: "w1", PatternType: "Urgency",
		Description: "d-" + id, Phase: domain.PatternProposed,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Insert(context.Background(), p))
	return p
}

func TestAdvancePhaseCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWebsite(t, s, domain.PhaseInitial)

	require.NoError(t, s.AdvancePhase(ctx, "w1", domain.PhaseInitial, domain.PhaseAutomation))

	// A second racer carrying the same expectation loses.
	err := s.AdvancePhase(ctx, "w1", domain.PhaseInitial, domain.PhaseAutomation)
	assert.True(t, domain.IsStale(err))

	w, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAutomation, w.Phase)
	assert.Equal(t, int64(2), w.Version)
}

func TestPatternVersionCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWebsite(t, s, domain.PhaseManual)
	p := seedPattern(t, s, "p1")

	require.NoError(t, s.UpdatePhase(ctx, "p1", p.Version, domain.PatternUnderDiscussion))
	err := s.UpdatePhase(ctx, "p1", p.Version, domain.PatternVerified)
	assert.True(t, domain.IsStale(err), "stale version loses")

	got, err := s.GetPattern(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PatternUnderDiscussion, got.Phase)
}

func TestSubmitVerificationCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWebsite(t, s, domain.PhaseManual)
	seedPattern(t, s, "p1")

	v := &domain.Verification{PatternID: "p1", ExpertID: "e1", Verdict: domain.VerdictConfirmFound}

	// Expected version 0 asserts no prior row.
	require.NoError(t, s.SubmitVerification(ctx, v, 0))
	assert.Equal(t, int64(1), v.Version)

	// A second insert-if-absent from another session of the same expert
	// loses to the row that now exists.
	dup := &domain.Verification{PatternID: "p1", ExpertID: "e1", Verdict: domain.VerdictDenyFound}
	assert.True(t, domain.IsStale(s.SubmitVerification(ctx, dup, 0)))

	// Overwrite with the right version succeeds.
	over := &domain.Verification{PatternID: "p1", ExpertID: "e1", Verdict: domain.VerdictDenyFound}
	require.NoError(t, s.SubmitVerification(ctx, over, 1))

	got, err := s.GetVerification(ctx, "p1", "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictDenyFound, got.Verdict)
	assert.Equal(t, int64(2), got.Version)

	vs, err := s.ListVerifications(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, vs, 1, "one live row per expert per pattern")
}

func TestInsertBatch_SkipsDuplicateProposed(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWebsite(t, s, domain.PhaseAutomation)

	// Two jobs for the same website raced; the second batch carries the
	// same candidate text under a fresh ID.
	require.NoError(t, s.InsertBatch(ctx, []*domain.Pattern{{
		ID: "p1", WebsiteID: "w1", PatternType: "Urgency",
		Description: "countdown timer", Phase: domain.PatternProposed,
	}}))
	require.NoError(t, s.InsertBatch(ctx, []*domain.Pattern{{
		ID: "p2", WebsiteID: "w1", PatternType: "Urgency",
		Description: "countdown timer", Phase: domain.PatternProposed,
	}}))

	patterns, err := s.ListByWebsite(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "p1", patterns[0].ID)

	// Expert findings never hit the guard even with matching text.
	require.NoError(t, s.Insert(ctx, &domain.Pattern{
		ID: "p3", WebsiteID: "w1", PatternType: "Urgency",
		Description: "countdown timer", Phase: domain.PatternConfirmed,
	}))
	patterns, _ = s.ListByWebsite(ctx, "w1")
	assert.Len(t, patterns, 2)
}

func TestCommentSeq(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWebsite(t, s, domain.PhaseManual)
	seedPattern(t, s, "p1")
	seedPattern(t, s, "p2")

	add := func(id, patternID string) *domain.Comment {
		c := &domain.Comment{ID: id, PatternID: patternID, WebsiteID: "w1", ExpertID: "e1", Content: "c"}
		require.NoError(t, s.Append(ctx, c))
		return c
	}
	c1 := add("c1", "p1")
	c2 := add("c2", "p1")
	other := add("c3", "p2")

	assert.Equal(t, int64(1), c1.Seq)
	assert.Equal(t, int64(2), c2.Seq)
	assert.Equal(t, int64(1), other.Seq, "sequence is per pattern")

	list, err := s.ListByPattern(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)
}

func TestClonesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWebsite(t, s, domain.PhaseInitial)

	w, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	w.ExpertIDs[0] = "mutated"
	w.Phase = domain.PhaseFinished

	fresh, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "e1", fresh.ExpertIDs[0])
	assert.Equal(t, domain.PhaseInitial, fresh.Phase)
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Enqueue(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.PendingJobs())

	job, ok, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "w1", job.WebsiteID)
	assert.Zero(t, s.PendingJobs())

	// Nothing left to claim while the job runs.
	_, ok, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkFailed(ctx, id, "scan timed out"))
	status, reason, ok := s.JobStatus(id)
	require.True(t, ok)
	assert.Equal(t, "failed", status)
	assert.Equal(t, "scan timed out", reason)
}
