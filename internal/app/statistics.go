/**
 * @description
 * Per-category transaction statistics and the read path that serves them.
 * ComputeCategoryStats is a pure function; CategoryStatistics wires it to
 * the read-through cache with the durable store as fallback.
 */

package app

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/truestack/aggregator-service/internal/domain"
)

// ComputeCategoryStats groups transactions by category and computes
// {min, max, average} over the absolute amount of each group. Accumulation
// is exact decimal arithmetic, so the result does not depend on input
// order; categories are reported in first-seen order to keep a given input
// mapping to a stable output. Empty input yields an empty slice.
func ComputeCategoryStats(txns []domain.Transaction) []domain.CategoryStats {
	type bucket struct {
		index int
		min   decimal.Decimal
		max   decimal.Decimal
		sum   decimal.Decimal
		count int64
	}

	buckets := make(map[string]*bucket)
	order := make([]string, 0)

	for _, t := range txns {
		amount := t.Amount.Abs()
		b, ok := buckets[t.Category]
		if !ok {
			buckets[t.Category] = &bucket{
				index: len(order),
				min:   amount,
				max:   amount,
				sum:   amount,
				count: 1,
			}
			order = append(order, t.Category)
			continue
		}
		if amount.LessThan(b.min) {
			b.min = amount
		}
		if amount.GreaterThan(b.max) {
			b.max = amount
		}
		b.sum = b.sum.Add(amount)
		b.count++
	}

	stats := make([]domain.CategoryStats, len(order))
	for _, category := range order {
		b := buckets[category]
		stats[b.index] = domain.CategoryStats{
			Category: category,
			Min:      b.min,
			Max:      b.max,
			Average:  b.sum.Div(decimal.NewFromInt(b.count)),
		}
	}
	return stats
}

// CategoryStatistics serves the statistics read path: the cache is consulted
// first, the durable store on a miss. A miss never populates the cache; only
// a completed sync does. Requesting statistics before any transactions exist
// yields ErrEmptyDataset.
func (s *Service) CategoryStatistics(ctx context.Context, principalID uuid.UUID) ([]domain.CategoryStats, error) {
	txns, hit, err := s.cache.Get(ctx, principalID)
	if err != nil {
		// The cache is disposable; fall through to the store.
		hit = false
	}
	if hit {
		log.Printf("level=info component=statistics msg=\"transactions served from cache\" principal_id=%s count=%d", principalID, len(txns))
	} else {
		txns, err = s.repo.FindTransactionsByPrincipalID(ctx, principalID)
		if err != nil {
			return nil, err
		}
		log.Printf("level=info component=statistics msg=\"transactions served from store\" principal_id=%s count=%d", principalID, len(txns))
	}

	if len(txns) == 0 {
		return nil, ErrEmptyDataset
	}
	return ComputeCategoryStats(txns), nil
}
