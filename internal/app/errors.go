package app

import "errors"

// Failure taxonomy surfaced to the HTTP boundary. Per-account fetch and
// ingestion failures are contained inside the sync pipeline and only logged,
// so they have no sentinel here.
var (
	// ErrAuth covers an unresolvable or missing session token.
	ErrAuth = errors.New("authentication failed")
	// ErrTokenRefresh means the upstream rejected the refresh credential.
	// Not transient, never retried.
	ErrTokenRefresh = errors.New("upstream token refresh rejected")
	// ErrCredentialPersist means the store write failed after the upstream
	// already rotated the refresh credential. The old pair is unusable, so
	// this is logged as a data-loss risk.
	ErrCredentialPersist = errors.New("credential persist failed after upstream rotation")
	// ErrAccountList means the upstream account listing failed; with no
	// accounts known there is nothing to fetch, so the whole sync fails.
	ErrAccountList = errors.New("upstream account listing failed")
	// ErrTokenExchange means the authorization-code exchange failed.
	ErrTokenExchange = errors.New("upstream code exchange failed")
	// ErrInvalidUpstreamToken means the exchanged token pair did not pass
	// validation.
	ErrInvalidUpstreamToken = errors.New("upstream token pair invalid")
	// ErrPrincipalCreate means the principal row could not be written.
	ErrPrincipalCreate = errors.New("principal creation failed")
	// ErrInfoFetch means the identity info request after authorization failed.
	ErrInfoFetch = errors.New("upstream identity fetch failed")
	// ErrEmptyDataset means statistics were requested before any sync stored
	// transactions for the principal.
	ErrEmptyDataset = errors.New("no transactions stored for principal")
)
