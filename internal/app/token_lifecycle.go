/**
 * @description
 * Upstream credential lifecycle. Access tokens issued by the provider are
 * short-lived; when one expires the refresh token is exchanged for a new
 * pair, the rotated pair is persisted atomically, and a fresh session token
 * is issued to the principal. The transition runs under per-principal
 * single-flight collapsing so concurrent requests inside one validity gap
 * produce exactly one upstream refresh call.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/truestack/aggregator-service/internal/domain"
	"github.com/truestack/aggregator-service/internal/token"
)

// EnsureValid returns a principal whose access token is usable. If the
// current token is still valid it is returned as-is. Otherwise the refresh
// credential is exchanged upstream, the rotated pair and a newly issued
// session token are persisted, and the updated principal is returned with
// rotated set to true.
//
// Failure modes:
//   - ErrTokenRefresh: the upstream rejected the refresh credential. The
//     rejection is permanent (e.g. revoked consent), so callers surface a
//     gateway error rather than retrying.
//   - ErrCredentialPersist: the upstream accepted the exchange but the store
//     write failed. The provider has already rotated the refresh credential,
//     so the stored pair is now dead; this is logged as a data-loss risk.
func (s *Service) EnsureValid(ctx context.Context, principal *domain.Principal) (*domain.Principal, bool, error) {
	if s.accessTokenValid(principal.AccessToken) {
		return principal, false, nil
	}

	log.Printf("level=info component=token_lifecycle msg=\"access token expired\" principal_id=%s", principal.ID)

	v, err, _ := s.refreshGroup.Do(principal.ID.String(), func() (interface{}, error) {
		return s.refreshCredential(ctx, principal)
	})
	if err != nil {
		return nil, false, err
	}
	refreshed := v.(*domain.Principal)

	// A caller that joined an in-flight refresh observes the same rotated
	// credential as the caller that triggered it.
	return refreshed, refreshed.SessionToken != principal.SessionToken, nil
}

// refreshCredential runs inside the single-flight group. It re-reads the
// stored credential first: a caller that waited on a previous flight may
// find the pair already rotated and valid, in which case no upstream call
// is made.
func (s *Service) refreshCredential(ctx context.Context, principal *domain.Principal) (*domain.Principal, error) {
	stored, err := s.repo.FindPrincipalByID(ctx, principal.ID)
	if err == nil {
		if current, openErr := s.openCredential(stored); openErr == nil && s.accessTokenValid(current.AccessToken) {
			return current, nil
		} else if openErr == nil {
			principal = current
		}
	}

	refreshCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancel()

	pair, err := s.bank.RefreshToken(refreshCtx, principal.RefreshToken)
	if err != nil {
		log.Printf("level=error component=token_lifecycle msg=\"upstream refresh rejected\" principal_id=%s err=%v", principal.ID, err)
		return nil, ErrTokenRefresh
	}
	log.Printf("level=info component=token_lifecycle msg=\"access token renewed\" principal_id=%s", principal.ID)

	sessionToken, err := s.codec.Issue(principal.ID)
	if err != nil {
		return nil, s.persistFailure(principal.ID, err)
	}
	sealedAccess, err := s.sealer.Seal(pair.AccessToken)
	if err != nil {
		return nil, s.persistFailure(principal.ID, err)
	}
	sealedRefresh, err := s.sealer.Seal(pair.RefreshToken)
	if err != nil {
		return nil, s.persistFailure(principal.ID, err)
	}

	if err := s.repo.ReplaceCredential(ctx, principal.ID, sealedAccess, sealedRefresh, sessionToken); err != nil {
		return nil, s.persistFailure(principal.ID, err)
	}
	log.Printf("level=info component=token_lifecycle msg=\"session token rotated\" principal_id=%s", principal.ID)

	rotated := *principal
	rotated.SessionToken = sessionToken
	rotated.AccessToken = pair.AccessToken
	rotated.RefreshToken = pair.RefreshToken
	return &rotated, nil
}

// persistFailure reports a post-exchange failure. The upstream pair has
// already rotated, so the stored credential is unrecoverable without a new
// consent flow.
func (s *Service) persistFailure(principalID uuid.UUID, err error) error {
	log.Printf("level=error component=token_lifecycle msg=\"DATA LOSS RISK: rotated credential not persisted; stored refresh token is dead\" principal_id=%s err=%v", principalID, err)
	return ErrCredentialPersist
}

// accessTokenValid checks the access token's embedded expiry without a
// network call. Malformed tokens count as invalid, and a token inside the
// leeway window counts as expired so it cannot die mid-request.
func (s *Service) accessTokenValid(accessToken string) bool {
	exp, err := token.AccessTokenExpiry(accessToken)
	if err != nil {
		return false
	}
	return time.Until(exp) > s.opts.ExpiryLeeway
}
