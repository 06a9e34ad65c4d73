package catalog

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/apperrors"
	"storefront/internal/models"
)

// RegisterSite returns the site for domain, creating it on first use.
func (s *Service) RegisterSite(ctx context.Context, domain string) (*models.Site, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, apperrors.Validation("Missing domain")
	}

	site, err := s.store.FindSiteByDomain(ctx, domain)
	if err == nil {
		return site, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	site = &models.Site{Domain: domain}
	if err := s.store.CreateSite(ctx, site); err != nil {
		// Lost a race with a concurrent registration of the same domain.
		if existing, findErr := s.store.FindSiteByDomain(ctx, domain); findErr == nil {
			return existing, nil
		}
		return nil, err
	}

	s.logger.Info("Registered site %s for domain %s", site.ID, domain)
	return site, nil
}
