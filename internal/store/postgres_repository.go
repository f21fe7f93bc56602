/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL queries for the `principals` table (the
 * durable credential store) and the `transactions` table (the append-only
 * transaction ledger with a uniqueness constraint on transaction_id).
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/truestack/aggregator-service/internal/domain"
)

var (
	ErrPrincipalNotFound = errors.New("principal not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreatePrincipal inserts a new principal with its sealed upstream token
// pair and its first session token.
func (r *PostgresRepository) CreatePrincipal(ctx context.Context, p *domain.Principal) error {
	query := `
		INSERT INTO principals (id, session_token, access_token, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.SessionToken, p.AccessToken, p.RefreshToken)
	return err
}

// FindPrincipalByID retrieves a principal and its current credential row.
func (r *PostgresRepository) FindPrincipalByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	var p domain.Principal
	query := `
		SELECT id, session_token, access_token, refresh_token, created_at, updated_at
		FROM principals
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.SessionToken,
		&p.AccessToken,
		&p.RefreshToken,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPrincipalNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ReplaceCredential swaps the principal's upstream token pair and session
// token in one UPDATE. Exactly one row is mutated per successful refresh.
func (r *PostgresRepository) ReplaceCredential(ctx context.Context, principalID uuid.UUID, accessToken, refreshToken, sessionToken string) error {
	query := `
		UPDATE principals
		SET access_token = $2, refresh_token = $3, session_token = $4, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, principalID, accessToken, refreshToken, sessionToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// FilterNewTransactionIDs returns the subset of ids that are not yet present
// in the transactions table, preserving input order.
func (r *PostgresRepository) FilterNewTransactionIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `SELECT transaction_id FROM transactions WHERE transaction_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fresh := make([]string, 0, len(ids)-len(existing))
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

// InsertTransactions bulk-inserts the given rows and returns the number of
// rows actually written. ON CONFLICT DO NOTHING backstops the dedup query,
// so two concurrent syncs submitting overlapping ids cannot double-insert.
func (r *PostgresRepository) InsertTransactions(ctx context.Context, txns []domain.Transaction) (int64, error) {
	if len(txns) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO transactions
			(transaction_id, account_id, principal_id, timestamp, description, transaction_type, transaction_category, amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (transaction_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, t := range txns {
		batch.Queue(query,
			t.TransactionID,
			t.AccountID,
			t.PrincipalID,
			t.Timestamp,
			t.Description,
			t.Type,
			t.Category,
			t.Amount,
			t.Currency,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range txns {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// FindTransactionsByPrincipalID returns all stored transactions for a
// principal, oldest first.
func (r *PostgresRepository) FindTransactionsByPrincipalID(ctx context.Context, principalID uuid.UUID) ([]domain.Transaction, error) {
	query := `
		SELECT transaction_id, account_id, principal_id, timestamp, description, transaction_type, transaction_category, amount, currency
		FROM transactions
		WHERE principal_id = $1
		ORDER BY timestamp ASC, transaction_id ASC
	`
	rows, err := r.db.Query(ctx, query, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.TransactionID,
			&t.AccountID,
			&t.PrincipalID,
			&t.Timestamp,
			&t.Description,
			&t.Type,
			&t.Category,
			&t.Amount,
			&t.Currency,
		); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
