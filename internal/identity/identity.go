// Package identity answers authorization and tier questions from external identity records.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/record"
	"github.com/exodusfi/exodus/internal/source"
	"github.com/exodusfi/exodus/internal/tier"
)

// RestrictedJurisdiction is always rejected.
const RestrictedJurisdiction uint8 = 1

// AuthorizationRef returns the record reference of a user's whitelist entry.
func AuthorizationRef(user string) string { return "authorization/" + user }

// IdentityRef returns the record reference of a user's identity.
func IdentityRef(user string) string { return "identity/" + user }

// Service reads authorization and identity records.
type Service struct {
	fetcher source.Fetcher
}

// NewService creates a new Service.
func NewService(fetcher source.Fetcher) *Service {
	return &Service{fetcher: fetcher}
}

// Authorize checks that user holds an active, unexpired, unrestricted authorization at now.
func (s *Service) Authorize(ctx context.Context, user string, now time.Time) error {
	data, err := s.fetcher.Fetch(ctx, AuthorizationRef(user))
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return domain.ErrAuthorizationRequired
		}
		return fmt.Errorf("fetching authorization: %w", err)
	}

	auth, err := record.DecodeAuthorization(data)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAuthorizationRequired, err)
	}
	if auth.Owner != record.KeyOf(user) || !auth.Active {
		return domain.ErrAuthorizationRequired
	}
	if auth.Jurisdiction == RestrictedJurisdiction {
		return domain.ErrJurisdictionRestricted
	}
	if !auth.ExpiresAt.After(now) {
		return domain.ErrAuthorizationExpired
	}
	return nil
}

// Tier returns the user's tier code.
func (s *Service) Tier(ctx context.Context, user string) (uint8, error) {
	data, err := s.fetcher.Fetch(ctx, IdentityRef(user))
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return tier.Unverified, domain.ErrIdentityNotFound
		}
		return tier.Unverified, fmt.Errorf("fetching identity: %w", err)
	}

	id, err := record.DecodeIdentity(data)
	if err != nil {
		return tier.Unverified, fmt.Errorf("%w: %w", domain.ErrIdentityNotFound, err)
	}
	if id.Owner != record.KeyOf(user) {
		return tier.Unverified, domain.ErrIdentityNotFound
	}
	return id.Tier, nil
}
