/**
 * @description
 * This file defines the core domain models for the aggregator-service.
 * These structs represent the main entities used throughout the service's
 * business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are signed decimals (github.com/shopspring/decimal) because the
 *   upstream provider reports fractional currency amounts; statistics are
 *   accumulated in decimal form and only converted to floats for display.
 * - JSON field names mirror the upstream provider's transaction payload so
 *   fetched batches round-trip through the API response unchanged.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are rendered as JSON numbers, matching the upstream payload.
	decimal.MarshalJSONWithoutQuotes = true
}

// Transaction is a single bank transaction fetched from the upstream
// provider. `transaction_id` is upstream-assigned and globally unique; a
// transaction is a write-once fact and re-ingestion of the same id is a no-op.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id,omitempty"`
	PrincipalID   uuid.UUID       `json:"-"`
	Timestamp     time.Time       `json:"timestamp"`
	Description   string          `json:"description"`
	Type          string          `json:"transaction_type"`
	Category      string          `json:"transaction_category"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// Account is an upstream bank account scoped to a principal. Accounts are
// ephemeral: they are refetched from the provider per request and never
// persisted independently.
type Account struct {
	AccountID string `json:"account_id"`
}

// AccountTransactions is one account's slice of a sync result. A failed
// fetch for the account degrades to Count 0 with an empty list rather than
// failing the whole sync.
type AccountTransactions struct {
	AccountID    string        `json:"account_id"`
	Count        int           `json:"count"`
	Transactions []Transaction `json:"transactions"`
}

// SyncResult is the outcome of a full transaction sync, one entry per
// upstream account in the original listing order.
type SyncResult struct {
	Accounts []AccountTransactions `json:"accounts"`
}

// All flattens the per-account results into a single transaction list,
// preserving account listing order.
func (r SyncResult) All() []Transaction {
	var all []Transaction
	for _, acct := range r.Accounts {
		all = append(all, acct.Transactions...)
	}
	return all
}

// Principal is the authenticated subject owning one upstream credential pair
// and a collection of transactions. Created on first successful upstream
// authorization, never deleted in normal operation.
type Principal struct {
	ID           uuid.UUID `json:"id"`
	SessionToken string    `json:"-"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CategoryStats holds the derived {min, max, average} of absolute amounts
// for one transaction category. Values are accumulated exactly and rounded
// only when rendered.
type CategoryStats struct {
	Category string
	Min      decimal.Decimal
	Max      decimal.Decimal
	Average  decimal.Decimal
}

// AmountStats is the display form of one category's statistics.
type AmountStats struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
}

// Display converts exact decimal statistics to the float form used in API
// responses.
func (s CategoryStats) Display() AmountStats {
	return AmountStats{
		Min:     s.Min.InexactFloat64(),
		Max:     s.Max.InexactFloat64(),
		Average: s.Average.InexactFloat64(),
	}
}
