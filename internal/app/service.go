/**
 * @description
 * This file contains the core business logic for the aggregator-service. The
 * `Service` struct orchestrates the credential lifecycle and the transaction
 * sync pipeline, coordinating between the database repository, the upstream
 * Open-Banking client, the Redis transaction cache, and the message broker.
 *
 * Key features:
 * - Resolves session tokens to principals and opens their sealed upstream
 *   credentials for use within a request.
 * - Creates principals on first successful upstream authorization.
 * - Transparently refreshes expired upstream access tokens (token_lifecycle.go).
 * - Fetches, deduplicates, and persists transactions per account (sync.go).
 * - Computes per-category statistics over the aggregated set (statistics.go).
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - github.com/google/uuid: Principal identifiers.
 * - golang.org/x/sync/singleflight: Per-principal refresh collapsing.
 * - internal/domain, internal/store, internal/token: Models, storage, credential material.
 * - pkg/bankclient, pkg/rabbitmq: External service communication.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/truestack/aggregator-service/internal/domain"
	"github.com/truestack/aggregator-service/internal/store"
	"github.com/truestack/aggregator-service/internal/token"
	"github.com/truestack/aggregator-service/pkg/bankclient"
	"github.com/truestack/aggregator-service/pkg/rabbitmq"
)

// BankAPI is the slice of the upstream provider client the service depends
// on. *bankclient.Client satisfies it; tests substitute fakes.
type BankAPI interface {
	ListAccounts(ctx context.Context, accessToken string) ([]bankclient.Account, error)
	ListTransactions(ctx context.Context, accessToken, accountID string) ([]bankclient.Transaction, error)
	RefreshToken(ctx context.Context, refreshToken string) (*bankclient.TokenPair, error)
	ExchangeCode(ctx context.Context, code string) (*bankclient.TokenPair, error)
	GetInfo(ctx context.Context, accessToken string) (*bankclient.Info, error)
	AuthURL(state string) string
}

// Cache is the transaction cache consumed by the sync and statistics paths.
type Cache interface {
	Get(ctx context.Context, principalID uuid.UUID) ([]domain.Transaction, bool, error)
	Put(ctx context.Context, principalID uuid.UUID, txns []domain.Transaction, ttl time.Duration) error
}

// Options tunes timeouts and cache behavior. Zero values fall back to the
// defaults applied in NewService.
type Options struct {
	CacheTTL        time.Duration
	UpstreamTimeout time.Duration
	DedupTimeout    time.Duration
	ExpiryLeeway    time.Duration
	EventExchange   string
}

// Service provides the core business logic for transaction aggregation.
type Service struct {
	repo     store.Repository
	bank     BankAPI
	cache    Cache
	producer rabbitmq.Publisher
	codec    *token.Codec
	sealer   *token.Sealer
	opts     Options

	// refreshGroup serializes concurrent refreshes per principal: all
	// callers inside one validity gap share a single upstream exchange.
	refreshGroup singleflight.Group
}

// NewService creates a new aggregator service instance.
func NewService(repo store.Repository, bank BankAPI, cache Cache, producer rabbitmq.Publisher, codec *token.Codec, sealer *token.Sealer, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 30 * time.Second
	}
	if opts.DedupTimeout <= 0 {
		opts.DedupTimeout = 5 * time.Second
	}
	if opts.ExpiryLeeway <= 0 {
		opts.ExpiryLeeway = 30 * time.Second
	}
	if opts.EventExchange == "" {
		opts.EventExchange = "aggregator.events"
	}
	return &Service{
		repo:     repo,
		bank:     bank,
		cache:    cache,
		producer: producer,
		codec:    codec,
		sealer:   sealer,
		opts:     opts,
	}
}

// AuthURL returns the upstream consent-flow URL the customer is redirected to.
func (s *Service) AuthURL(state string) string {
	return s.bank.AuthURL(state)
}

// Authenticate resolves a session token to its principal. The token must
// verify against the codec, and must equal the principal's current stored
// session token: a rotated-out token no longer resolves. The returned
// principal carries its upstream tokens unsealed for use in this request.
func (s *Service) Authenticate(ctx context.Context, sessionToken string) (*domain.Principal, error) {
	principalID, err := s.codec.PrincipalID(sessionToken)
	if err != nil {
		return nil, ErrAuth
	}

	p, err := s.repo.FindPrincipalByID(ctx, principalID)
	if err != nil {
		if err == store.ErrPrincipalNotFound {
			return nil, ErrAuth
		}
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	if p.SessionToken != sessionToken {
		log.Printf("level=warn component=auth msg=\"stale session token presented\" principal_id=%s", principalID)
		return nil, ErrAuth
	}

	return s.openCredential(p)
}

// Authorize completes the consent callback: it exchanges the authorization
// code for an upstream token pair, validates the pair, and creates the
// principal owning it. The principal's first session token is issued here.
func (s *Service) Authorize(ctx context.Context, code string) (*domain.Principal, *bankclient.Info, error) {
	exchangeCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancel()

	pair, err := s.bank.ExchangeCode(exchangeCtx, code)
	if err != nil {
		log.Printf("level=error component=authorize msg=\"code exchange failed\" err=%v", err)
		return nil, nil, ErrTokenExchange
	}
	if !s.accessTokenValid(pair.AccessToken) {
		log.Printf("level=error component=authorize msg=\"exchanged access token failed validation\"")
		return nil, nil, ErrInvalidUpstreamToken
	}

	principalID := uuid.New()
	sessionToken, err := s.codec.Issue(principalID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPrincipalCreate, err)
	}
	sealedAccess, err := s.sealer.Seal(pair.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPrincipalCreate, err)
	}
	sealedRefresh, err := s.sealer.Seal(pair.RefreshToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPrincipalCreate, err)
	}

	if err := s.repo.CreatePrincipal(ctx, &domain.Principal{
		ID:           principalID,
		SessionToken: sessionToken,
		AccessToken:  sealedAccess,
		RefreshToken: sealedRefresh,
	}); err != nil {
		log.Printf("level=error component=authorize msg=\"principal insert failed\" principal_id=%s err=%v", principalID, err)
		return nil, nil, ErrPrincipalCreate
	}
	log.Printf("level=info component=authorize msg=\"principal created\" principal_id=%s", principalID)

	principal := &domain.Principal{
		ID:           principalID,
		SessionToken: sessionToken,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}

	infoCtx, cancelInfo := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancelInfo()
	info, err := s.bank.GetInfo(infoCtx, pair.AccessToken)
	if err != nil {
		log.Printf("level=error component=authorize msg=\"identity info fetch failed\" principal_id=%s err=%v", principalID, err)
		return principal, nil, ErrInfoFetch
	}

	return principal, info, nil
}

// openCredential replaces the sealed upstream tokens on a stored principal
// with their plaintext for in-memory use.
func (s *Service) openCredential(p *domain.Principal) (*domain.Principal, error) {
	access, err := s.sealer.Open(p.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored access token: %w", err)
	}
	refresh, err := s.sealer.Open(p.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored refresh token: %w", err)
	}
	opened := *p
	opened.AccessToken = access
	opened.RefreshToken = refresh
	return &opened, nil
}
