/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the aggregator-service. The
 * interface decouples the business logic from the PostgreSQL implementation
 * and lets tests substitute in-memory fakes.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For principal identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/truestack/aggregator-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Principal and credential methods. The stored access/refresh tokens are
	// sealed ciphertext; sealing and opening is the caller's concern.
	CreatePrincipal(ctx context.Context, p *domain.Principal) error
	FindPrincipalByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error)
	// ReplaceCredential atomically swaps the principal's upstream token pair
	// and session token in a single row update.
	ReplaceCredential(ctx context.Context, principalID uuid.UUID, accessToken, refreshToken, sessionToken string) error

	// Transaction methods. transaction_id carries a uniqueness constraint,
	// so an insert of an already-stored id is a no-op.
	FilterNewTransactionIDs(ctx context.Context, ids []string) ([]string, error)
	InsertTransactions(ctx context.Context, rows []domain.Transaction) (int64, error)
	FindTransactionsByPrincipalID(ctx context.Context, principalID uuid.UUID) ([]domain.Transaction, error)
}
