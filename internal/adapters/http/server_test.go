package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"verity/internal/adapters/memory"
	"verity/internal/domain"
	"verity/internal/services/assignment"
	"verity/internal/services/dashboard"
	"verity/internal/services/review"
	"verity/internal/services/websites"
	"verity/internal/services/workflow"
)

const testSecret = "test-secret"

func newServer(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	log := zap.NewNop()
	wf := workflow.New(store, store, store, log)
	srv := New(
		websites.New(store, store, log),
		assignment.New(store, wf, 5, log),
		review.New(store, store, store, wf, domain.DefaultConsensusPolicy(), log),
		wf,
		dashboard.New(store, nil, log),
		testSecret,
		log,
	)
	return srv.Routes(), store
}

func token(t *testing.T, subject string, role domain.Role) string {
	t.Helper()
	claims := authClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h, _ := newServer(t)
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	h, _ := newServer(t)

	t.Run("missing token", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/websites/", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/websites/", "not.a.jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		claims := authClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "c1"},
			Role:             string(domain.RoleClient),
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
		require.NoError(t, err)
		rec := do(t, h, http.MethodGet, "/websites/", forged, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown role", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/websites/", token(t, "x", domain.Role("Superuser")), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestCreateAndGetWebsite(t *testing.T) {
	h, _ := newServer(t)
	client := token(t, "c1", domain.RoleClient)

	rec := do(t, h, http.MethodPost, "/websites/", client, map[string]any{
		"baseUrl":     "https://shop.example.com",
		"websiteName": "Example Shop",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created websiteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, string(domain.PhaseInitial), created.Phase)
	assert.Equal(t, "c1", created.UserID)
	assert.False(t, created.Assigned)

	rec = do(t, h, http.MethodGet, "/websites/"+created.WebsiteID+"/", client, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Strangers get a 403, missing IDs a 404.
	rec = do(t, h, http.MethodGet, "/websites/"+created.WebsiteID+"/", token(t, "c2", domain.RoleClient), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodGet, "/websites/nope/", client, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignExpertsEndpoint(t *testing.T) {
	h, store := newServer(t)
	admin := token(t, "a1", domain.RoleAdmin)
	seedSite(t, store, "w1", domain.PhaseInitial, nil)

	rec := do(t, h, http.MethodPut, "/websites/w1/experts", admin, map[string]any{
		"expertIds":       []string{"e1", "e2", "e3"},
		"primaryExpertId": "e1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	w, err := store.Get(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAutomation, w.Phase, "assignment kicks off automation")

	// Primary outside the panel maps to a 400.
	seedSite(t, store, "w2", domain.PhaseInitial, nil)
	rec = do(t, h, http.MethodPut, "/websites/w2/experts", admin, map[string]any{
		"expertIds":       []string{"e1"},
		"primaryExpertId": "e9",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Non-admin callers may not assign.
	rec = do(t, h, http.MethodPut, "/websites/w2/experts", token(t, "e1", domain.RoleExpert), map[string]any{
		"expertIds":       []string{"e1"},
		"primaryExpertId": "e1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerificationFlowEndpoint(t *testing.T) {
	h, store := newServer(t)
	seedSite(t, store, "w1", domain.PhaseManual, []string{"e1", "e2", "e3"})
	seedFinding(t, store, "p1")

	rec := do(t, h, http.MethodPut, "/patterns/p1/verification", token(t, "e1", domain.RoleExpert), map[string]any{
		"expertVerificationPhase": "ConfirmFound",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p patternResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, string(domain.PatternUnderDiscussion), p.PatternPhase)

	rec = do(t, h, http.MethodPut, "/patterns/p1/verification", token(t, "e2", domain.RoleExpert), map[string]any{
		"expertVerificationPhase": "ConfirmFound",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, string(domain.PatternVerified), p.PatternPhase)

	// Unknown verdict value is a 400, outsider a 403.
	rec = do(t, h, http.MethodPut, "/patterns/p1/verification", token(t, "e1", domain.RoleExpert), map[string]any{
		"expertVerificationPhase": "Maybe",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPut, "/patterns/p1/verification", token(t, "e9", domain.RoleExpert), map[string]any{
		"expertVerificationPhase": "ConfirmFound",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCommentEndpoints(t *testing.T) {
	h, store := newServer(t)
	seedSite(t, store, "w1", domain.PhaseManual, []string{"e1", "e2"})
	seedFinding(t, store, "p1")
	expert := token(t, "e1", domain.RoleExpert)

	rec := do(t, h, http.MethodPost, "/patterns/p1/comments", expert, map[string]any{
		"content": "timer resets on reload",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c commentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	rec = do(t, h, http.MethodPost, "/patterns/p1/comments/"+c.ID+"/replies", token(t, "e2", domain.RoleExpert), map[string]any{
		"content": "confirmed on staging",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	require.Len(t, c.Replies, 1)
	assert.Equal(t, "e2", c.Replies[0].ExpertID)

	rec = do(t, h, http.MethodGet, "/patterns/p1/", expert, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail patternResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Len(t, detail.Comments, 1)
}

func TestCleanSiteCertification(t *testing.T) {
	h, store := newServer(t)
	// Manual phase, empty scan: no patterns exist, so only the explicit
	// review-complete action can open feedback.
	seedSite(t, store, "w1", domain.PhaseManual, []string{"e1", "e2"})
	primary := token(t, "e1", domain.RoleExpert)

	rec := do(t, h, http.MethodPost, "/websites/w1/review/complete", token(t, "c1", domain.RoleClient), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "panel members only")

	rec = do(t, h, http.MethodPost, "/websites/w1/review/complete", primary, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var site websiteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &site))
	assert.Equal(t, string(domain.PhaseFeedback), site.Phase)

	rec = do(t, h, http.MethodPost, "/websites/w1/signoff", primary, map[string]any{
		"expertFeedback": "no deceptive flows found",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &site))
	assert.Equal(t, string(domain.PhaseFinished), site.Phase)
	assert.True(t, site.DarkPatternFree)
}

func TestCheckAssignmentEndpoint(t *testing.T) {
	h, store := newServer(t)
	admin := token(t, "a1", domain.RoleAdmin)
	seedSite(t, store, "w1", domain.PhaseInitial, nil)
	seedSite(t, store, "w2", domain.PhaseManual, []string{"e1"})

	var body map[string]bool
	rec := do(t, h, http.MethodGet, "/websites/w1/experts", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body["assigned"])

	rec = do(t, h, http.MethodGet, "/websites/w2/experts", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["assigned"])

	rec = do(t, h, http.MethodGet, "/websites/w1/experts", token(t, "c1", domain.RoleClient), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSignOffEndpoint(t *testing.T) {
	h, store := newServer(t)
	seedSite(t, store, "w1", domain.PhaseFeedback, []string{"e1", "e2"})
	seedFinding(t, store, "p1")
	require.NoError(t, store.UpdatePhase(context.Background(), "p1", 1, domain.PatternRejected))

	// Only the primary expert signs off.
	rec := do(t, h, http.MethodPost, "/websites/w1/signoff", token(t, "e2", domain.RoleExpert), map[string]any{
		"expertFeedback": "nothing left",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/websites/w1/signoff", token(t, "e1", domain.RoleExpert), map[string]any{
		"expertFeedback": "no deceptive flows remain",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var site websiteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &site))
	assert.Equal(t, string(domain.PhaseFinished), site.Phase)
	assert.True(t, site.IsCompleted)
	assert.True(t, site.DarkPatternFree)
}

func TestErrorMapping(t *testing.T) {
	h, store := newServer(t)
	seedSite(t, store, "w1", domain.PhaseManual, []string{"e1"})

	// Sign-off before Feedback surfaces the transition conflict as a 409.
	rec := do(t, h, http.MethodPost, "/websites/w1/signoff", token(t, "e1", domain.RoleExpert), map[string]any{
		"expertFeedback": "too early",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(domain.PhaseManual), body.Details["currentPhase"])
}

func TestKPIEndpoint(t *testing.T) {
	h, store := newServer(t)
	seedSite(t, store, "w1", domain.PhaseInitial, nil)

	rec := do(t, h, http.MethodGet, "/dashboard/kpi", token(t, "a1", domain.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var kpi domain.KPI
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kpi))
	assert.Equal(t, 1, kpi.TotalWebsites)
	assert.Equal(t, 1, kpi.WebsitesInProgress)

	rec = do(t, h, http.MethodGet, "/dashboard/kpi", token(t, "c1", domain.RoleClient), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func seedSite(t *testing.T, store *memory.Store, id string, phase domain.WebsitePhase, experts []string) {
	t.Helper()
	primary := ""
	if len(experts) > 0 {
		primary = experts[0]
	}
	require.NoError(t, store.Create(context.Background(), &domain.Website{
		ID: id, Name: id, BaseURL: "https://" + id + ".example", OwnerID: "c1",
		Phase: phase, ExpertIDs: experts, PrimaryExpertID: primary,
		CreatedAt: time.Now().UTC(),
	}))
}

func seedFinding(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), &domain.Pattern{
		ID: id, WebsiteID: "w1", PatternType: "Urgency",
		Description: "countdown timer", AutoGenerated: true,
		Phase: domain.PatternProposed, CreatedAt: time.Now().UTC(),
	}))
}
