package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verity/internal/domain"
	"verity/internal/services/review"
	"verity/internal/services/websites"
)

// websiteResponse is the read projection of a website record. Assigned is
// the dashboard probe for "do experts exist yet".
type websiteResponse struct {
	WebsiteID       string   `json:"websiteId"`
	BaseURL         string   `json:"baseUrl"`
	WebsiteName     string   `json:"websiteName"`
	AdditionalURLs  []string `json:"additionalUrls"`
	Description     string   `json:"description"`
	UserID          string   `json:"userId"`
	Phase           string   `json:"phase"`
	ExpertIDs       []string `json:"expertIds"`
	PrimaryExpertID string   `json:"primaryExpertId"`
	IsCompleted     bool     `json:"isCompleted"`
	DarkPatternFree bool     `json:"isDarkPatternFree"`
	ExpertFeedback  string   `json:"expertFeedback"`
	Assigned        bool     `json:"assigned"`
}

func toWebsiteResponse(w *domain.Website) websiteResponse {
	return websiteResponse{
		WebsiteID:       w.ID,
		BaseURL:         w.BaseURL,
		WebsiteName:     w.Name,
		AdditionalURLs:  w.AdditionalURLs,
		Description:     w.Description,
		UserID:          w.OwnerID,
		Phase:           string(w.Phase),
		ExpertIDs:       w.ExpertIDs,
		PrimaryExpertID: w.PrimaryExpertID,
		IsCompleted:     w.Completed,
		DarkPatternFree: w.DarkPatternFree,
		ExpertFeedback:  w.ExpertFeedback,
		Assigned:        w.Assigned(),
	}
}

type patternResponse struct {
	ID                string                 `json:"id"`
	WebsiteID         string                 `json:"websiteId"`
	PatternType       string                 `json:"patternType"`
	DetectedURL       string                 `json:"detectedUrl"`
	Description       string                 `json:"description"`
	CreatedByExpertID string                 `json:"createdByExpertId"`
	IsAutoGenerated   bool                   `json:"isAutoGenerated"`
	PatternPhase      string                 `json:"patternPhase"`
	CreatedAt         string                 `json:"createdAt"`
	Verifications     []verificationResponse `json:"expertVerifications,omitempty"`
	Comments          []commentResponse      `json:"comments,omitempty"`
}

type verificationResponse struct {
	ExpertID                string `json:"expertId"`
	ExpertVerificationPhase string `json:"expertVerificationPhase"`
}

type commentResponse struct {
	ID        string          `json:"id"`
	PatternID string          `json:"patternId"`
	WebsiteID string          `json:"websiteId"`
	ExpertID  string          `json:"expertId"`
	Content   string          `json:"content"`
	CreatedAt string          `json:"createdAt"`
	Replies   []replyResponse `json:"replies"`
}

type replyResponse struct {
	ExpertID  string `json:"expertId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func toPatternResponse(p *domain.Pattern) patternResponse {
	return patternResponse{
		ID:                p.ID,
		WebsiteID:         p.WebsiteID,
		PatternType:       p.PatternType,
		DetectedURL:       p.DetectedURL,
		Description:       p.Description,
		CreatedByExpertID: p.CreatedByExpertID,
		IsAutoGenerated:   p.AutoGenerated,
		PatternPhase:      string(p.Phase),
		CreatedAt:         p.CreatedAt.Format(timeLayout),
	}
}

func toCommentResponse(c *domain.Comment) commentResponse {
	out := commentResponse{
		ID:        c.ID,
		PatternID: c.PatternID,
		WebsiteID: c.WebsiteID,
		ExpertID:  c.ExpertID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt.Format(timeLayout),
		Replies:   []replyResponse{},
	}
	for _, r := range c.Replies {
		out.Replies = append(out.Replies, replyResponse{
			ExpertID:  r.ExpertID,
			Content:   r.Content,
			CreatedAt: r.CreatedAt.Format(timeLayout),
		})
	}
	return out
}

// --- website handlers ---

func (s *Server) handleCreateWebsite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BaseURL        string   `json:"baseUrl"`
		AdditionalURLs []string `json:"additionalUrls"`
		WebsiteName    string   `json:"websiteName"`
		Description    string   `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	site, err := s.websites.Create(r.Context(), callerFrom(r), websites.CreateInput{
		BaseURL:        body.BaseURL,
		AdditionalURLs: body.AdditionalURLs,
		Name:           body.WebsiteName,
		Description:    body.Description,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWebsiteResponse(site))
}

func (s *Server) handleListWebsites(w http.ResponseWriter, r *http.Request) {
	var phase *domain.WebsitePhase
	if q := r.URL.Query().Get("phase"); q != "" {
		p := domain.WebsitePhase(q)
		if !p.Valid() {
			writeError(w, http.StatusBadRequest, "unknown phase", nil)
			return
		}
		phase = &p
	}
	sites, err := s.websites.List(r.Context(), callerFrom(r), phase)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]websiteResponse, 0, len(sites))
	for _, site := range sites {
		out = append(out, toWebsiteResponse(site))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWebsite(w http.ResponseWriter, r *http.Request) {
	site, err := s.websites.Get(r.Context(), callerFrom(r), chi.URLParam(r, "websiteID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWebsiteResponse(site))
}

func (s *Server) handleAssignExperts(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExpertIDs       []string `json:"expertIds"`
		PrimaryExpertID string   `json:"primaryExpertId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	err := s.assignment.AssignExperts(r.Context(), callerFrom(r), chi.URLParam(r, "websiteID"), body.ExpertIDs, body.PrimaryExpertID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (s *Server) handleCheckAssignment(w http.ResponseWriter, r *http.Request) {
	unassigned, err := s.assignment.Unassigned(r.Context(), callerFrom(r), chi.URLParam(r, "websiteID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"assigned": !unassigned})
}

func (s *Server) handleCompleteReview(w http.ResponseWriter, r *http.Request) {
	site, err := s.workflow.CompleteReview(r.Context(), callerFrom(r), chi.URLParam(r, "websiteID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWebsiteResponse(site))
}

func (s *Server) handleRetryIngestion(w http.ResponseWriter, r *http.Request) {
	err := s.workflow.RetryIngestion(r.Context(), callerFrom(r), chi.URLParam(r, "websiteID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleSignOff(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExpertFeedback string `json:"expertFeedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	site, err := s.workflow.SignOff(r.Context(), callerFrom(r), chi.URLParam(r, "websiteID"), body.ExpertFeedback)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWebsiteResponse(site))
}

// --- pattern handlers ---

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.review.ListPatterns(r.Context(), callerFrom(r), chi.URLParam(r, "websiteID"))
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]patternResponse, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, toPatternResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PatternType string `json:"patternType"`
		DetectedURL string `json:"detectedUrl"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	p, err := s.review.AddPattern(r.Context(), callerFrom(r), chi.URLParam(r, "websiteID"), review.PatternInput{
		PatternType: body.PatternType,
		DetectedURL: body.DetectedURL,
		Description: body.Description,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatternResponse(p))
}

func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	detail, err := s.review.GetPattern(r.Context(), callerFrom(r), chi.URLParam(r, "patternID"))
	if err != nil {
		respondError(w, err)
		return
	}
	out := toPatternResponse(detail.Pattern)
	for _, v := range detail.Verifications {
		out.Verifications = append(out.Verifications, verificationResponse{
			ExpertID:                v.ExpertID,
			ExpertVerificationPhase: string(v.Verdict),
		})
	}
	for _, c := range detail.Comments {
		out.Comments = append(out.Comments, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmitVerification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Verdict string `json:"expertVerificationPhase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	p, err := s.review.SubmitVerification(r.Context(), callerFrom(r), chi.URLParam(r, "patternID"), domain.Verdict(body.Verdict))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatternResponse(p))
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	c, err := s.review.AddComment(r.Context(), callerFrom(r), chi.URLParam(r, "patternID"), body.Content)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(c))
}

func (s *Server) handleAddReply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	c, err := s.review.AddReply(r.Context(), callerFrom(r), chi.URLParam(r, "commentID"), body.Content)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(c))
}

func (s *Server) handleKPI(w http.ResponseWriter, r *http.Request) {
	kpi, err := s.dashboard.KPI(r.Context(), callerFrom(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kpi)
}
