package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"verity/internal/domain"
	"verity/internal/ports"
)

const cacheTTL = 30 * time.Second

// Service computes the KPI read projection over website records. Pure read
// side, no workflow logic. A cache may be plugged in; a nil cache means
// every call hits the store.
type Service struct {
	websites ports.WebsiteRepository
	cache    ports.KPICache
	log      *zap.Logger
}

func New(websites ports.WebsiteRepository, cache ports.KPICache, log *zap.Logger) *Service {
	return &Service{websites: websites, cache: cache, log: log}
}

func (s *Service) KPI(ctx context.Context, caller domain.Caller) (*domain.KPI, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, &domain.AuthorizationError{CallerID: caller.ID, Reason: "Admin role required"}
	}
	if s.cache != nil {
		if kpi, ok, err := s.cache.Get(ctx); err == nil && ok {
			return kpi, nil
		} else if err != nil {
			s.log.Warn("kpi cache read failed", zap.Error(err))
		}
	}

	all, err := s.websites.ListByPhase(ctx, nil)
	if err != nil {
		return nil, err
	}
	kpi := &domain.KPI{}
	for _, w := range all {
		kpi.TotalWebsites++
		switch {
		case w.Phase == domain.PhaseFinished && w.DarkPatternFree:
			kpi.WebsitesCertified++
		case w.Phase == domain.PhaseFinished:
			kpi.WebsitesRejected++
		default:
			kpi.WebsitesInProgress++
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, kpi, cacheTTL); err != nil {
			s.log.Warn("kpi cache write failed", zap.Error(err))
		}
	}
	return kpi, nil
}
