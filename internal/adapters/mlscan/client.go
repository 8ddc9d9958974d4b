package mlscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"verity/internal/domain"
)

// Client talks to the ML scanning service. The service takes a website and
// its URL and answers with raw candidate findings; everything past that
// shape is its business.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Timeouts come from the caller's context; the ingestion layer
		// owns the deadline.
		http: &http.Client{},
	}
}

type scanRequest struct {
	WebsiteURL string `json:"websiteUrl"`
}

type scanResponse struct {
	Patterns []struct {
		PatternType string `json:"patternType"`
		Text        string `json:"text"`
	} `json:"patterns"`
}

func (c *Client) Scan(ctx context.Context, websiteID, baseURL string) ([]domain.Candidate, error) {
	body, err := json.Marshal(scanRequest{WebsiteURL: baseURL})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/darkPattern/"+websiteID, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scan service returned %s", resp.Status)
	}

	var out scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("scan service response: %w", err)
	}
	candidates := make([]domain.Candidate, 0, len(out.Patterns))
	for _, p := range out.Patterns {
		candidates = append(candidates, domain.Candidate{PatternType: p.PatternType, Text: p.Text})
	}
	return candidates, nil
}
