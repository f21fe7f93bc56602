package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/truestack/aggregator-service/internal/domain"
	"github.com/truestack/aggregator-service/internal/store"
	"github.com/truestack/aggregator-service/internal/token"
	"github.com/truestack/aggregator-service/pkg/bankclient"
	"github.com/truestack/aggregator-service/pkg/rabbitmq"
)

// fakeRepository is an in-memory store.Repository used across service tests.
type fakeRepository struct {
	mu sync.Mutex

	principals map[uuid.UUID]*domain.Principal
	rows       []domain.Transaction
	rowIndex   map[string]struct{}

	filterErr  error
	insertErr  error
	replaceErr error

	replaceCalls int
	insertCalls  int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		principals: map[uuid.UUID]*domain.Principal{},
		rowIndex:   map[string]struct{}{},
	}
}

func (r *fakeRepository) CreatePrincipal(ctx context.Context, p *domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *p
	r.principals[p.ID] = &stored
	return nil
}

func (r *fakeRepository) FindPrincipalByID(ctx context.Context, id uuid.UUID) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return nil, store.ErrPrincipalNotFound
	}
	found := *p
	return &found, nil
}

func (r *fakeRepository) ReplaceCredential(ctx context.Context, principalID uuid.UUID, accessToken, refreshToken, sessionToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceCalls++
	if r.replaceErr != nil {
		return r.replaceErr
	}
	p, ok := r.principals[principalID]
	if !ok {
		return store.ErrPrincipalNotFound
	}
	p.AccessToken = accessToken
	p.RefreshToken = refreshToken
	p.SessionToken = sessionToken
	return nil
}

func (r *fakeRepository) FilterNewTransactionIDs(ctx context.Context, ids []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filterErr != nil {
		return nil, r.filterErr
	}
	var fresh []string
	for _, id := range ids {
		if _, ok := r.rowIndex[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

func (r *fakeRepository) InsertTransactions(ctx context.Context, rows []domain.Transaction) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	var inserted int64
	for _, row := range rows {
		if _, ok := r.rowIndex[row.TransactionID]; ok {
			continue
		}
		r.rowIndex[row.TransactionID] = struct{}{}
		r.rows = append(r.rows, row)
		inserted++
	}
	return inserted, nil
}

func (r *fakeRepository) FindTransactionsByPrincipalID(ctx context.Context, principalID uuid.UUID) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, row := range r.rows {
		if row.PrincipalID == principalID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeRepository) storedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// fakeBank is an in-memory BankAPI.
type fakeBank struct {
	mu sync.Mutex

	accounts      []bankclient.Account
	accountsErr   error
	txnsByAccount map[string][]bankclient.Transaction
	fetchErrs     map[string]error

	exchangePair *bankclient.TokenPair
	exchangeErr  error
	refreshPair  *bankclient.TokenPair
	refreshErr   error
	refreshDelay time.Duration
	info         *bankclient.Info
	infoErr      error

	refreshCalls int
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		txnsByAccount: map[string][]bankclient.Transaction{},
		fetchErrs:     map[string]error{},
	}
}

func (b *fakeBank) ListAccounts(ctx context.Context, accessToken string) ([]bankclient.Account, error) {
	if b.accountsErr != nil {
		return nil, b.accountsErr
	}
	return b.accounts, nil
}

func (b *fakeBank) ListTransactions(ctx context.Context, accessToken, accountID string) ([]bankclient.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.fetchErrs[accountID]; ok {
		return nil, err
	}
	return b.txnsByAccount[accountID], nil
}

func (b *fakeBank) RefreshToken(ctx context.Context, refreshToken string) (*bankclient.TokenPair, error) {
	b.mu.Lock()
	b.refreshCalls++
	delay := b.refreshDelay
	b.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if b.refreshErr != nil {
		return nil, b.refreshErr
	}
	return b.refreshPair, nil
}

func (b *fakeBank) ExchangeCode(ctx context.Context, code string) (*bankclient.TokenPair, error) {
	if b.exchangeErr != nil {
		return nil, b.exchangeErr
	}
	return b.exchangePair, nil
}

func (b *fakeBank) GetInfo(ctx context.Context, accessToken string) (*bankclient.Info, error) {
	if b.infoErr != nil {
		return nil, b.infoErr
	}
	return b.info, nil
}

func (b *fakeBank) AuthURL(state string) string {
	return "https://auth.example.test/?state=" + state
}

func (b *fakeBank) refreshCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// fakeCache is an in-memory Cache that records writes.
type fakeCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]domain.Transaction
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[uuid.UUID][]domain.Transaction{}}
}

func (c *fakeCache) Get(ctx context.Context, principalID uuid.UUID) ([]domain.Transaction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	txns, ok := c.entries[principalID]
	return txns, ok, nil
}

func (c *fakeCache) Put(ctx context.Context, principalID uuid.UUID, txns []domain.Transaction, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.entries[principalID] = txns
	return nil
}

func (c *fakeCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

// fakeProducer records sync-completed events.
type fakeProducer struct {
	mu     sync.Mutex
	events []rabbitmq.SyncCompletedEvent
}

func (p *fakeProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *fakeProducer) PublishSyncCompletedEvent(ctx context.Context, exchange string, event rabbitmq.SyncCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakeProducer) Close() {}

func (p *fakeProducer) eventCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

var testSealKey = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T, repo *fakeRepository, bank *fakeBank, cache *fakeCache, producer *fakeProducer) *Service {
	t.Helper()
	sealer, err := token.NewSealer(testSealKey)
	if err != nil {
		t.Fatalf("failed to build sealer: %v", err)
	}
	return NewService(
		repo,
		bank,
		cache,
		producer,
		token.NewCodec([]byte("test-session-secret")),
		sealer,
		Options{},
	)
}

// seedPrincipal stores a principal with sealed upstream tokens and returns
// the opened form callers work with.
func seedPrincipal(t *testing.T, s *Service, repo *fakeRepository, accessToken, refreshToken string) *domain.Principal {
	t.Helper()
	id := uuid.New()
	sessionToken, err := s.codec.Issue(id)
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	sealedAccess, err := s.sealer.Seal(accessToken)
	if err != nil {
		t.Fatalf("failed to seal access token: %v", err)
	}
	sealedRefresh, err := s.sealer.Seal(refreshToken)
	if err != nil {
		t.Fatalf("failed to seal refresh token: %v", err)
	}
	if err := repo.CreatePrincipal(context.Background(), &domain.Principal{
		ID:           id,
		SessionToken: sessionToken,
		AccessToken:  sealedAccess,
		RefreshToken: sealedRefresh,
	}); err != nil {
		t.Fatalf("failed to seed principal: %v", err)
	}
	return &domain.Principal{
		ID:           id,
		SessionToken: sessionToken,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
}

// makeAccessToken builds an upstream-style JWT with the given expiry. Only
// the exp claim matters; validity checks never verify the signature.
func makeAccessToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": expiresAt.Unix(),
	}).SignedString([]byte("upstream-signing-secret"))
	if err != nil {
		t.Fatalf("failed to sign upstream token: %v", err)
	}
	return signed
}
