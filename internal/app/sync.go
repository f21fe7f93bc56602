/**
 * @description
 * Transaction ingestion pipeline. Accounts are listed upstream, then each
 * account's transactions are fetched, deduplicated against durable storage,
 * and persisted in an independent parallel branch. One account's failure
 * never affects its siblings: the branch degrades to an empty entry and the
 * caller always receives a well-formed result covering every listed account.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/truestack/aggregator-service/internal/domain"
	"github.com/truestack/aggregator-service/pkg/bankclient"
	"github.com/truestack/aggregator-service/pkg/rabbitmq"
)

// Sync fetches and ingests the principal's transactions across all upstream
// accounts. The returned result lists one entry per account in the original
// listing order regardless of fetch completion order.
//
// An account-listing failure is fatal (ErrAccountList); everything after it
// is contained per account. The assembled set is written through to the
// cache only when every account fetched cleanly: a degraded sync must not
// cache a partial snapshot that would shadow the durable store until the
// entry expires. The sync-completed audit event is published either way,
// fire-and-forget.
func (s *Service) Sync(ctx context.Context, principal *domain.Principal) (domain.SyncResult, error) {
	listCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancel()

	accounts, err := s.bank.ListAccounts(listCtx, principal.AccessToken)
	if err != nil {
		log.Printf("level=error component=sync msg=\"account listing failed\" principal_id=%s err=%v", principal.ID, err)
		return domain.SyncResult{}, fmt.Errorf("%w: %v", ErrAccountList, err)
	}
	log.Printf("level=info component=sync msg=\"accounts listed\" principal_id=%s accounts=%d", principal.ID, len(accounts))

	// Fixed-index collection keeps output order deterministic; branches
	// never return an error, so a failure cannot cancel siblings.
	results := make([]domain.AccountTransactions, len(accounts))
	fetched := make([]bool, len(accounts))
	g := new(errgroup.Group)
	for i, account := range accounts {
		i, accountID := i, account.AccountID
		g.Go(func() error {
			results[i], fetched[i] = s.syncAccount(ctx, principal, accountID)
			return nil
		})
	}
	_ = g.Wait()

	fullSuccess := true
	for _, ok := range fetched {
		if !ok {
			fullSuccess = false
			break
		}
	}

	result := domain.SyncResult{Accounts: results}
	s.publishSyncArtifacts(ctx, principal, result, fullSuccess)
	return result, nil
}

// syncAccount runs one account's fetch-dedup-persist branch. The fetch and
// the subsequent store work are sequential relative to each other; only
// branches for different accounts run concurrently. The second return
// reports whether the upstream fetch succeeded.
func (s *Service) syncAccount(ctx context.Context, principal *domain.Principal, accountID string) (domain.AccountTransactions, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancel()

	fetched, err := s.bank.ListTransactions(fetchCtx, principal.AccessToken, accountID)
	if err != nil {
		log.Printf("level=warn component=sync msg=\"account fetch failed; continuing with remaining accounts\" principal_id=%s account_id=%s err=%v", principal.ID, accountID, err)
		return domain.AccountTransactions{
			AccountID:    accountID,
			Count:        0,
			Transactions: make([]domain.Transaction, 0),
		}, false
	}

	txns := make([]domain.Transaction, len(fetched))
	for i, t := range fetched {
		txns[i] = fromUpstream(t, accountID, principal)
	}

	s.ingest(ctx, principal, accountID, txns)

	return domain.AccountTransactions{
		AccountID:    accountID,
		Count:        len(txns),
		Transactions: txns,
	}, true
}

// ingest persists the batch's not-yet-stored rows. Failures here are logged
// only: the fetched data is already part of the response, and the next sync
// re-fetches idempotently.
func (s *Service) ingest(ctx context.Context, principal *domain.Principal, accountID string, txns []domain.Transaction) {
	if len(txns) == 0 {
		return
	}

	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.TransactionID
	}

	dedupCtx, cancel := context.WithTimeout(ctx, s.opts.DedupTimeout)
	defer cancel()

	freshIDs, err := s.repo.FilterNewTransactionIDs(dedupCtx, ids)
	if err != nil {
		log.Printf("level=warn component=sync msg=\"dedup query failed; batch not persisted\" principal_id=%s account_id=%s err=%v", principal.ID, accountID, err)
		return
	}
	if len(freshIDs) == 0 {
		return
	}

	fresh := make(map[string]struct{}, len(freshIDs))
	for _, id := range freshIDs {
		fresh[id] = struct{}{}
	}
	rows := make([]domain.Transaction, 0, len(freshIDs))
	for _, t := range txns {
		if _, ok := fresh[t.TransactionID]; ok {
			rows = append(rows, t)
		}
	}

	inserted, err := s.repo.InsertTransactions(ctx, rows)
	if err != nil {
		log.Printf("level=warn component=sync msg=\"batch insert failed\" principal_id=%s account_id=%s rows=%d err=%v", principal.ID, accountID, len(rows), err)
		return
	}
	log.Printf("level=info component=sync msg=\"transactions persisted\" principal_id=%s account_id=%s inserted=%d", principal.ID, accountID, inserted)
}

// publishSyncArtifacts writes the assembled set through to the cache and
// emits the sync-completed audit event. Both are derived artifacts that are
// acceptable to lose, so errors are logged and swallowed. The cache write
// only happens for a fully successful fan-out: the statistics read path is
// cache-first and never repopulates from reads, so caching a degraded
// snapshot would hide the durable store until the entry expires.
func (s *Service) publishSyncArtifacts(ctx context.Context, principal *domain.Principal, result domain.SyncResult, fullSuccess bool) {
	all := result.All()

	if fullSuccess {
		if err := s.cache.Put(ctx, principal.ID, all, s.opts.CacheTTL); err != nil {
			log.Printf("level=warn component=sync msg=\"cache write-through failed\" principal_id=%s err=%v", principal.ID, err)
		}
	} else {
		log.Printf("level=info component=sync msg=\"degraded sync; cache write skipped\" principal_id=%s", principal.ID)
	}

	if s.producer != nil {
		event := rabbitmq.SyncCompletedEvent{
			PrincipalID:      principal.ID,
			AccountCount:     len(result.Accounts),
			TransactionCount: len(all),
			Timestamp:        time.Now().UTC(),
		}
		if err := s.producer.PublishSyncCompletedEvent(ctx, s.opts.EventExchange, event); err != nil {
			log.Printf("level=warn component=sync msg=\"sync event publish failed\" principal_id=%s err=%v", principal.ID, err)
		}
	}
}

// fromUpstream tags an upstream transaction with the account and principal
// that own it.
func fromUpstream(t bankclient.Transaction, accountID string, principal *domain.Principal) domain.Transaction {
	return domain.Transaction{
		TransactionID: t.TransactionID,
		AccountID:     accountID,
		PrincipalID:   principal.ID,
		Timestamp:     t.Timestamp,
		Description:   t.Description,
		Type:          t.Type,
		Category:      t.Category,
		Amount:        t.Amount,
		Currency:      t.Currency,
	}
}
