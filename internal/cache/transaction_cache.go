/**
 * @description
 * This package implements the short-TTL transaction cache backed by Redis.
 * The cache holds a principal's last-known aggregated transaction set as a
 * serialized JSON list under the key "{principalID}_transactions". It is a
 * derived, disposable projection: entries may be dropped at any time and the
 * authoritative store rebuilds the view.
 *
 * Population is write-only from the sync path. The statistics read path
 * consults the cache but never writes back on a miss, so a stale snapshot
 * can never be repopulated from a read.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/redis/go-redis/v9: The Redis client.
 * - internal/domain: Transaction model for serialization.
 */

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/truestack/aggregator-service/internal/domain"
)

// TransactionCache is the read-through/write-through view of a principal's
// aggregated transactions.
type TransactionCache struct {
	client redis.UniversalClient
}

// NewTransactionCache creates a cache over the given Redis client. A nil
// client yields a disabled cache: every Get misses and every Put is a no-op,
// so the rest of the service degrades to reading the durable store.
func NewTransactionCache(client redis.UniversalClient) *TransactionCache {
	return &TransactionCache{client: client}
}

func cacheKey(principalID uuid.UUID) string {
	return fmt.Sprintf("%s_transactions", principalID)
}

// Get returns the cached transaction set for a principal. The second return
// reports presence; a transport error counts as absent since the cache is
// disposable.
func (c *TransactionCache) Get(ctx context.Context, principalID uuid.UUID) ([]domain.Transaction, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}

	raw, err := c.client.Get(ctx, cacheKey(principalID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		log.Printf("level=warn component=transaction_cache op=get principal_id=%s err=%v", principalID, err)
		return nil, false, err
	}

	var txns []domain.Transaction
	if err := json.Unmarshal([]byte(raw), &txns); err != nil {
		// A corrupt entry is dropped; the durable store remains authoritative.
		log.Printf("level=warn component=transaction_cache op=get principal_id=%s msg=\"corrupt cache entry discarded\" err=%v", principalID, err)
		c.client.Del(ctx, cacheKey(principalID))
		return nil, false, nil
	}
	return txns, true, nil
}

// Put fully replaces the principal's cached transaction set. There is no
// merge; the entry expires after ttl.
func (c *TransactionCache) Put(ctx context.Context, principalID uuid.UUID, txns []domain.Transaction, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}

	raw, err := json.Marshal(txns)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(principalID), raw, ttl).Err()
}
