// Package store isolates durable state behind narrow interfaces so the
// aggregation, trigger and ledger layers can run against PostgreSQL in
// production and against the in-memory implementation in tests.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

// CandleStore persists sealed bars.
type CandleStore interface {
	// InsertCandles writes a flush batch. Re-flushing a bucket overwrites
	// the previous row.
	InsertCandles(ctx context.Context, candles []*model.Candle) error
	// CandlesRange reads bars with buckets in [from, to], oldest first.
	CandlesRange(ctx context.Context, symbol string, from, to time.Time) ([]*model.Candle, error)
}

// PendingOrderStore persists the conditional working set.
type PendingOrderStore interface {
	InsertPending(ctx context.Context, order *model.PendingOrder) error
	UpdatePending(ctx context.Context, order *model.PendingOrder) error
	// ListPending returns every order in the given status, creation order.
	ListPending(ctx context.Context, status enum.PendingStatus) ([]*model.PendingOrder, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// LedgerStore runs financial mutations inside a single transaction. The
// callback either commits as a whole or leaves no trace.
type LedgerStore interface {
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the surface available inside a ledger transaction. Row reads
// marked ForUpdate hold their locks until commit.
type LedgerTx interface {
	AccountForUpdate(id uuid.UUID) (*model.Account, error)
	BalanceForUpdate(accountID uuid.UUID, currency string) (*model.Balance, error)
	// AdjustBalance applies a signed delta, creating the row on first credit.
	AdjustBalance(accountID uuid.UUID, currency string, delta decimal.Decimal) error

	InsertTransaction(txn *model.Transaction) error
	InsertOrder(order *model.Order) error
	InsertContracts(contracts ...*model.Contract) error

	ContractForUpdate(id uuid.UUID) (*model.Contract, error)
	ContractsByPairForUpdate(pairID uuid.UUID) ([]*model.Contract, error)
	UpdateContract(contract *model.Contract) error

	InsertOutboxEvent(event *model.OutboxEvent) error

	NextTransactionNumber() (string, error)
	NextContractNumber() (string, error)
}

// OutboxStore is the dispatcher's view of the outbox table.
type OutboxStore interface {
	FetchUnsent(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}
