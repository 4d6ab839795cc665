package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/notifier"
	"settlement-service/internal/provider"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// fakeStore satisfies repository.TxManager by running the callback with a nil
// pgx.Tx; the in-memory repositories below ignore the tx parameter and apply
// their own locking per call.
type fakeStore struct{}

func (fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type fakeWalletRepo struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{balances: make(map[string]decimal.Decimal)}
}

func (r *fakeWalletRepo) Get(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.balances[userID]
	if !ok {
		bal = decimal.Zero
		r.balances[userID] = bal
	}
	return &domain.Wallet{UserID: userID, Balance: bal}, nil
}

func (r *fakeWalletRepo) Credit(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] = r.balances[userID].Add(amount)
	return nil
}

// Debit keeps the check and the subtraction under one lock, mirroring the
// row-lock semantics of the SQL implementation.
func (r *fakeWalletRepo) Debit(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal := r.balances[userID]
	if bal.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	r.balances[userID] = bal.Sub(amount)
	return nil
}

func (r *fakeWalletRepo) balance(userID string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[userID]
}

type fakeTxRepo struct {
	mu    sync.Mutex
	seq   int64
	byRef map[string]*domain.Transaction
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{byRef: make(map[string]*domain.Transaction)}
}

func (r *fakeTxRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRef[t.TransactionRef]; exists {
		return domain.ErrDuplicateReference
	}
	r.seq++
	t.ID = r.seq
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	stored := *t
	r.byRef[t.TransactionRef] = &stored
	return nil
}

func (r *fakeTxRepo) GetByRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byRef[ref]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTxRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byRef {
		if t.ID == id {
			clone := *t
			return &clone, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *fakeTxRepo) UpdateRef(ctx context.Context, id int64, newRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ref, t := range r.byRef {
		if t.ID == id {
			delete(r.byRef, ref)
			t.TransactionRef = newRef
			t.UpdatedAt = time.Now()
			r.byRef[newRef] = t
			return nil
		}
	}
	return domain.ErrTransactionNotFound
}

// TransitionStatus matches the SQL behavior: an unknown ref or a status
// outside `from` is not an error, just applied == false.
func (r *fakeTxRepo) TransitionStatus(ctx context.Context, tx pgx.Tx, ref string, from []domain.TransactionStatus, to domain.TransactionStatus, description string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byRef[ref]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if t.Status == s {
			t.Status = to
			if description != "" {
				t.Description = description
			}
			t.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTxRepo) all() []*domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Transaction, 0, len(r.byRef))
	for _, t := range r.byRef {
		clone := *t
		out = append(out, &clone)
	}
	return out
}

func (r *fakeTxRepo) ListStuckWithdrawals(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range r.byRef {
		if t.Type != domain.TxTypeWithdrawal || t.Status != domain.TxStatusProcessing {
			continue
		}
		if !t.UpdatedAt.Before(cutoff) {
			continue
		}
		clone := *t
		out = append(out, &clone)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeShipmentRepo struct {
	mu        sync.Mutex
	shipments map[string]*domain.Shipment
}

func newFakeShipmentRepo(shipments ...*domain.Shipment) *fakeShipmentRepo {
	r := &fakeShipmentRepo{shipments: make(map[string]*domain.Shipment)}
	for _, s := range shipments {
		clone := *s
		r.shipments[s.ID] = &clone
	}
	return r
}

func (r *fakeShipmentRepo) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shipments[id]
	if !ok {
		return nil, domain.ErrShipmentNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *fakeShipmentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Shipment, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeShipmentRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id string, status domain.ShipmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shipments[id]
	if !ok {
		return domain.ErrShipmentNotFound
	}
	s.Status = status
	s.DepositStatus = domain.DepositStatusSecured
	s.PaymentTiming = domain.PaymentTimingPaid
	s.UpdatedAt = time.Now()
	return nil
}

func (r *fakeShipmentRepo) get(id string) *domain.Shipment {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *r.shipments[id]
	return &clone
}

// fakeGateway answers every call with success unless the matching function
// field is set. Payout calls are counted for the concurrency assertions.
type fakeGateway struct {
	initiatePayment    func(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error)
	verifyPayment      func(ctx context.Context, chargeID string) (*provider.VerifyResult, error)
	initiatePayout     func(ctx context.Context, req *provider.PayoutRequest) (*provider.PayoutResult, error)
	initiateBankPayout func(ctx context.Context, req *provider.BankPayoutRequest) (*provider.PayoutResult, error)
	listOperators      func(ctx context.Context) ([]provider.Operator, error)
	listBanks          func(ctx context.Context) ([]provider.Bank, error)

	mu          sync.Mutex
	payoutCalls int
}

func (g *fakeGateway) InitiatePayment(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	if g.initiatePayment != nil {
		return g.initiatePayment(ctx, req)
	}
	return &provider.ChargeResult{ChargeID: "CHG-" + req.Reference, Status: provider.ChargeStatusPending}, nil
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, chargeID string) (*provider.VerifyResult, error) {
	if g.verifyPayment != nil {
		return g.verifyPayment(ctx, chargeID)
	}
	return &provider.VerifyResult{ChargeID: chargeID, Status: provider.ChargeStatusSuccess}, nil
}

func (g *fakeGateway) InitiatePayout(ctx context.Context, req *provider.PayoutRequest) (*provider.PayoutResult, error) {
	g.countPayout()
	if g.initiatePayout != nil {
		return g.initiatePayout(ctx, req)
	}
	return &provider.PayoutResult{TransactionID: "PO-" + req.ChargeID, Status: provider.ChargeStatusSuccess}, nil
}

func (g *fakeGateway) InitiateBankPayout(ctx context.Context, req *provider.BankPayoutRequest) (*provider.PayoutResult, error) {
	g.countPayout()
	if g.initiateBankPayout != nil {
		return g.initiateBankPayout(ctx, req)
	}
	return &provider.PayoutResult{TransactionID: "PO-" + req.ChargeID, Status: provider.ChargeStatusSuccess}, nil
}

func (g *fakeGateway) ListOperators(ctx context.Context) ([]provider.Operator, error) {
	if g.listOperators != nil {
		return g.listOperators(ctx)
	}
	return nil, fmt.Errorf("not configured")
}

func (g *fakeGateway) ListBanks(ctx context.Context) ([]provider.Bank, error) {
	if g.listBanks != nil {
		return g.listBanks(ctx)
	}
	return nil, fmt.Errorf("not configured")
}

func (g *fakeGateway) AccountBalance(ctx context.Context) ([]provider.Balance, error) {
	return []provider.Balance{{Currency: "MWK", Available: decimal.NewFromInt(100000)}}, nil
}

func (g *fakeGateway) countPayout() {
	g.mu.Lock()
	g.payoutCalls++
	g.mu.Unlock()
}

func (g *fakeGateway) payoutCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payoutCalls
}

type fakePublisher struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (p *fakePublisher) Publish(ctx context.Context, event notifier.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// waitFor polls for an event of the given type; publishing happens on a
// goroutine after commit, so assertions have to wait briefly.
func (p *fakePublisher) waitFor(eventType string) *notifier.Event {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		for i := range p.events {
			if p.events[i].Type == eventType {
				e := p.events[i]
				p.mu.Unlock()
				return &e
			}
		}
		p.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (c *fakeCache) Set(ctx context.Context, key string, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	c.sets++
	return nil
}
