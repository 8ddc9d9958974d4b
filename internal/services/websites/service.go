package websites

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"verity/internal/domain"
	"verity/internal/ports"
)

// Service is the website record boundary: creation by owners, role-scoped
// reads. All workflow mutation goes through the workflow engine and the
// assignment coordinator, never through here.
type Service struct {
	websites ports.WebsiteRepository
	patterns ports.PatternRepository
	log      *zap.Logger
}

func New(websites ports.WebsiteRepository, patterns ports.PatternRepository, log *zap.Logger) *Service {
	return &Service{websites: websites, patterns: patterns, log: log}
}

type CreateInput struct {
	BaseURL        string
	AdditionalURLs []string
	Name           string
	Description    string
}

// Create registers a website for certification, phase Initial.
func (s *Service) Create(ctx context.Context, caller domain.Caller, in CreateInput) (*domain.Website, error) {
	if caller.Role != domain.RoleClient {
		return nil, &domain.AuthorizationError{CallerID: caller.ID, Reason: "Client role required"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, &domain.ValidationError{Field: "websiteName", Reason: "required"}
	}
	u, err := url.Parse(in.BaseURL)
	if err != nil || u.Hostname() == "" {
		return nil, &domain.ValidationError{Field: "baseUrl", Reason: "not a valid URL"}
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
	if err != nil {
		registrable = u.Hostname()
	}

	w := &domain.Website{
		ID:                uuid.NewString(),
		BaseURL:           in.BaseURL,
		RegistrableDomain: strings.ToLower(registrable),
		AdditionalURLs:    in.AdditionalURLs,
		Name:              in.Name,
		Description:       in.Description,
		OwnerID:           caller.ID,
		Phase:             domain.PhaseInitial,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.websites.Create(ctx, w); err != nil {
		return nil, err
	}
	s.log.Info("website registered",
		zap.String("website_id", w.ID),
		zap.String("domain", w.RegistrableDomain),
		zap.String("owner_id", w.OwnerID))
	return w, nil
}

// Get returns a website to its owner, its panel, or an admin.
func (s *Service) Get(ctx context.Context, caller domain.Caller, websiteID string) (*domain.Website, error) {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	switch {
	case caller.Role == domain.RoleAdmin:
	case caller.Role == domain.RoleClient && caller.ID == w.OwnerID:
	case caller.Role == domain.RoleExpert && w.HasExpert(caller.ID):
	default:
		return nil, &domain.AuthorizationError{CallerID: caller.ID, Reason: "no access to website " + websiteID}
	}
	return w, nil
}

// List is the role-scoped dashboard listing: clients see their own sites,
// experts the ones they sit on, admins everything (optionally by phase).
func (s *Service) List(ctx context.Context, caller domain.Caller, phase *domain.WebsitePhase) ([]*domain.Website, error) {
	switch caller.Role {
	case domain.RoleClient:
		return s.websites.ListByOwner(ctx, caller.ID)
	case domain.RoleExpert:
		return s.websites.ListByExpert(ctx, caller.ID)
	case domain.RoleAdmin:
		return s.websites.ListByPhase(ctx, phase)
	}
	return nil, &domain.AuthorizationError{CallerID: caller.ID, Reason: "unknown role"}
}

// Archive soft-archives a website. Records stay behind their patterns'
// audit trail; nothing is physically deleted.
func (s *Service) Archive(ctx context.Context, caller domain.Caller, websiteID string) error {
	w, err := s.websites.Get(ctx, websiteID)
	if err != nil {
		return err
	}
	if caller.Role != domain.RoleAdmin && caller.ID != w.OwnerID {
		return &domain.AuthorizationError{CallerID: caller.ID, Reason: "owner or Admin required"}
	}
	return s.websites.Archive(ctx, websiteID)
}
