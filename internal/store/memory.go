package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

type candleKey struct {
	symbol string
	bucket int64
}

type balanceKey struct {
	account  uuid.UUID
	currency string
}

// Memory implements every store interface on plain maps. Transactions take a
// deep snapshot up front and restore it when the callback fails, giving the
// same commit-or-nothing behavior the database provides.
type Memory struct {
	mu sync.Mutex

	candles  map[candleKey]model.Candle
	pending  map[uuid.UUID]model.PendingOrder
	accounts map[uuid.UUID]model.Account
	balances map[balanceKey]model.Balance
	txns     []model.Transaction
	orders   []model.Order
	contract map[uuid.UUID]model.Contract
	outbox   []model.OutboxEvent

	orderSeq int64
	txnSeq   int64
	conSeq   int64
}

func NewMemory() *Memory {
	return &Memory{
		candles:  make(map[candleKey]model.Candle),
		pending:  make(map[uuid.UUID]model.PendingOrder),
		accounts: make(map[uuid.UUID]model.Account),
		balances: make(map[balanceKey]model.Balance),
		contract: make(map[uuid.UUID]model.Contract),
	}
}

// SeedAccount registers an account with opening balances, for tests and
// local runs.
func (m *Memory) SeedAccount(account model.Account, amounts map[string]decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	for currency, amount := range amounts {
		m.balances[balanceKey{account.ID, currency}] = model.Balance{
			ID:        uuid.New(),
			AccountID: account.ID,
			Currency:  currency,
			Amount:    amount,
			UpdatedAt: time.Now(),
		}
	}
}

func (m *Memory) InsertCandles(_ context.Context, candles []*model.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		m.candles[candleKey{c.Symbol, c.Bucket.UnixMilli()}] = *c
	}
	return nil
}

func (m *Memory) CandlesRange(_ context.Context, symbol string, from, to time.Time) ([]*model.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Candle
	for key, c := range m.candles {
		if key.symbol != symbol {
			continue
		}
		if c.Bucket.Before(from) || c.Bucket.After(to) {
			continue
		}
		copied := c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	return out, nil
}

func (m *Memory) InsertPending(_ context.Context, order *model.PendingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[order.ID] = *order
	return nil
}

func (m *Memory) UpdatePending(_ context.Context, order *model.PendingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[order.ID] = *order
	return nil
}

func (m *Memory) ListPending(_ context.Context, status enum.PendingStatus) ([]*model.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PendingOrder
	for _, order := range m.pending {
		if order.Status != status {
			continue
		}
		copied := order
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) NextOrderNumber(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderSeq++
	return fmt.Sprintf("ORD-%08d", m.orderSeq), nil
}

func (m *Memory) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&memTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) FetchUnsent(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.OutboxEvent
	for i := range m.outbox {
		if m.outbox[i].SentAt != nil {
			continue
		}
		copied := m.outbox[i]
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i := range m.outbox {
		if m.outbox[i].ID == id {
			m.outbox[i].SentAt = &now
			return nil
		}
	}
	return nil
}

// Test accessors. Each returns copies; mutating them has no effect on state.

func (m *Memory) BalanceOf(accountID uuid.UUID, currency string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[balanceKey{accountID, currency}]; ok {
		return b.Amount
	}
	return decimal.Zero
}

func (m *Memory) Transactions() []model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Transaction, len(m.txns))
	copy(out, m.txns)
	return out
}

func (m *Memory) Orders() []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, len(m.orders))
	copy(out, m.orders)
	return out
}

func (m *Memory) Contracts() []model.Contract {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Contract, 0, len(m.contract))
	for _, c := range m.contract {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractNumber < out[j].ContractNumber })
	return out
}

func (m *Memory) OutboxEvents() []model.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.OutboxEvent, len(m.outbox))
	copy(out, m.outbox)
	return out
}

func (m *Memory) PendingByID(id uuid.UUID) (model.PendingOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.pending[id]
	return order, ok
}

type memSnapshot struct {
	accounts map[uuid.UUID]model.Account
	balances map[balanceKey]model.Balance
	txns     []model.Transaction
	orders   []model.Order
	contract map[uuid.UUID]model.Contract
	outbox   []model.OutboxEvent
	txnSeq   int64
	conSeq   int64
}

func (m *Memory) snapshot() memSnapshot {
	snap := memSnapshot{
		accounts: make(map[uuid.UUID]model.Account, len(m.accounts)),
		balances: make(map[balanceKey]model.Balance, len(m.balances)),
		txns:     make([]model.Transaction, len(m.txns)),
		orders:   make([]model.Order, len(m.orders)),
		contract: make(map[uuid.UUID]model.Contract, len(m.contract)),
		outbox:   make([]model.OutboxEvent, len(m.outbox)),
		txnSeq:   m.txnSeq,
		conSeq:   m.conSeq,
	}
	for k, v := range m.accounts {
		snap.accounts[k] = v
	}
	for k, v := range m.balances {
		snap.balances[k] = v
	}
	copy(snap.txns, m.txns)
	copy(snap.orders, m.orders)
	for k, v := range m.contract {
		snap.contract[k] = v
	}
	copy(snap.outbox, m.outbox)
	return snap
}

func (m *Memory) restore(snap memSnapshot) {
	m.accounts = snap.accounts
	m.balances = snap.balances
	m.txns = snap.txns
	m.orders = snap.orders
	m.contract = snap.contract
	m.outbox = snap.outbox
	m.txnSeq = snap.txnSeq
	m.conSeq = snap.conSeq
}

// memTx mutates the parent state directly; WithinTx already holds the lock
// and restores the snapshot on failure.
type memTx struct {
	m *Memory
}

func (t *memTx) AccountForUpdate(id uuid.UUID) (*model.Account, error) {
	account, ok := t.m.accounts[id]
	if !ok {
		return nil, exception.ErrAccountNotFound
	}
	return &account, nil
}

func (t *memTx) BalanceForUpdate(accountID uuid.UUID, currency string) (*model.Balance, error) {
	balance, ok := t.m.balances[balanceKey{accountID, currency}]
	if !ok {
		return nil, exception.ErrInsufficientFunds
	}
	return &balance, nil
}

func (t *memTx) AdjustBalance(accountID uuid.UUID, currency string, delta decimal.Decimal) error {
	key := balanceKey{accountID, currency}
	balance, ok := t.m.balances[key]
	if !ok {
		if delta.IsNegative() {
			return exception.ErrInsufficientFunds
		}
		t.m.balances[key] = model.Balance{
			ID:        uuid.New(),
			AccountID: accountID,
			Currency:  currency,
			Amount:    delta,
			UpdatedAt: time.Now(),
		}
		return nil
	}
	balance.Amount = balance.Amount.Add(delta)
	balance.UpdatedAt = time.Now()
	t.m.balances[key] = balance
	return nil
}

func (t *memTx) InsertTransaction(txn *model.Transaction) error {
	t.m.txns = append(t.m.txns, *txn)
	return nil
}

func (t *memTx) InsertOrder(order *model.Order) error {
	t.m.orders = append(t.m.orders, *order)
	return nil
}

func (t *memTx) InsertContracts(contracts ...*model.Contract) error {
	for _, c := range contracts {
		t.m.contract[c.ID] = *c
	}
	return nil
}

func (t *memTx) ContractForUpdate(id uuid.UUID) (*model.Contract, error) {
	contract, ok := t.m.contract[id]
	if !ok {
		return nil, exception.ErrContractNotFound
	}
	return &contract, nil
}

func (t *memTx) ContractsByPairForUpdate(pairID uuid.UUID) ([]*model.Contract, error) {
	var out []*model.Contract
	for _, c := range t.m.contract {
		if c.PairID != nil && *c.PairID == pairID {
			copied := c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractNumber < out[j].ContractNumber })
	return out, nil
}

func (t *memTx) UpdateContract(contract *model.Contract) error {
	if _, ok := t.m.contract[contract.ID]; !ok {
		return exception.ErrContractNotFound
	}
	t.m.contract[contract.ID] = *contract
	return nil
}

func (t *memTx) InsertOutboxEvent(event *model.OutboxEvent) error {
	t.m.outbox = append(t.m.outbox, *event)
	return nil
}

func (t *memTx) NextTransactionNumber() (string, error) {
	t.m.txnSeq++
	return fmt.Sprintf("TXN-%08d", t.m.txnSeq), nil
}

func (t *memTx) NextContractNumber() (string, error) {
	t.m.conSeq++
	return fmt.Sprintf("CON-%08d", t.m.conSeq), nil
}
