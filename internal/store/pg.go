package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

const (
	txTimeout       = 30 * time.Second
	insertBatchSize = 500

	orderNumberSeq       = "order_number_seq"
	transactionNumberSeq = "transaction_number_seq"
	contractNumberSeq    = "contract_number_seq"
)

// PG implements every store interface on a single gorm pool.
type PG struct {
	db *gorm.DB
}

func NewPG(db *gorm.DB) *PG {
	return &PG{db: db}
}

// Migrate creates tables and number sequences. Safe to run on every boot.
func (s *PG) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&model.Candle{},
		&model.PendingOrder{},
		&model.Order{},
		&model.Contract{},
		&model.Account{},
		&model.Balance{},
		&model.Transaction{},
		&model.OutboxEvent{},
	); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	for _, seq := range []string{orderNumberSeq, transactionNumberSeq, contractNumberSeq} {
		if err := db.Exec(fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s", seq)).Error; err != nil {
			return errors.Wrap(err, "create sequence "+seq)
		}
	}
	return nil
}

func (s *PG) InsertCandles(ctx context.Context, candles []*model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "bucket"}},
			UpdateAll: true,
		}).
		CreateInBatches(candles, insertBatchSize).Error
	if err != nil {
		return errors.Wrap(err, "insert candles")
	}
	return nil
}

func (s *PG) CandlesRange(ctx context.Context, symbol string, from, to time.Time) ([]*model.Candle, error) {
	var out []*model.Candle
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND bucket BETWEEN ? AND ?", symbol, from, to).
		Order("bucket ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "range candles")
	}
	return out, nil
}

func (s *PG) InsertPending(ctx context.Context, order *model.PendingOrder) error {
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return errors.Wrap(err, "insert pending order")
	}
	return nil
}

func (s *PG) UpdatePending(ctx context.Context, order *model.PendingOrder) error {
	if err := s.db.WithContext(ctx).Save(order).Error; err != nil {
		return errors.Wrap(err, "update pending order")
	}
	return nil
}

func (s *PG) ListPending(ctx context.Context, status enum.PendingStatus) ([]*model.PendingOrder, error) {
	var out []*model.PendingOrder
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "list pending orders")
	}
	return out, nil
}

func (s *PG) NextOrderNumber(ctx context.Context) (string, error) {
	n, err := nextSeq(s.db.WithContext(ctx), orderNumberSeq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%08d", n), nil
}

// WithinTx runs fn inside one database transaction under a hard deadline so
// a wedged lock cannot hold row locks forever.
func (s *PG) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgTx{db: tx})
	})
}

func (s *PG) FetchUnsent(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	var out []*model.OutboxEvent
	err := s.db.WithContext(ctx).
		Where("sent_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "fetch unsent events")
	}
	return out, nil
}

func (s *PG) MarkSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Update("sent_at", now).Error
	if err != nil {
		return errors.Wrap(err, "mark event sent")
	}
	return nil
}

type pgTx struct {
	db *gorm.DB
}

func (t *pgTx) AccountForUpdate(id uuid.UUID) (*model.Account, error) {
	var account model.Account
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, exception.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "lock account")
	}
	return &account, nil
}

func (t *pgTx) BalanceForUpdate(accountID uuid.UUID, currency string) (*model.Balance, error) {
	var balance model.Balance
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND currency = ?", accountID, currency).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, exception.ErrInsufficientFunds
		}
		return nil, errors.Wrap(err, "lock balance")
	}
	return &balance, nil
}

func (t *pgTx) AdjustBalance(accountID uuid.UUID, currency string, delta decimal.Decimal) error {
	var balance model.Balance
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND currency = ?", accountID, currency).
		First(&balance).Error
	switch {
	case err == nil:
		balance.Amount = balance.Amount.Add(delta)
		balance.UpdatedAt = time.Now()
		if err := t.db.Save(&balance).Error; err != nil {
			return errors.Wrap(err, "update balance")
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if delta.IsNegative() {
			return exception.ErrInsufficientFunds
		}
		balance = model.Balance{
			ID:        uuid.New(),
			AccountID: accountID,
			Currency:  currency,
			Amount:    delta,
			UpdatedAt: time.Now(),
		}
		if err := t.db.Create(&balance).Error; err != nil {
			return errors.Wrap(err, "create balance")
		}
		return nil
	default:
		return errors.Wrap(err, "lock balance")
	}
}

func (t *pgTx) InsertTransaction(txn *model.Transaction) error {
	if err := t.db.Create(txn).Error; err != nil {
		return errors.Wrap(err, "insert transaction")
	}
	return nil
}

func (t *pgTx) InsertOrder(order *model.Order) error {
	if err := t.db.Create(order).Error; err != nil {
		return errors.Wrap(err, "insert order")
	}
	return nil
}

func (t *pgTx) InsertContracts(contracts ...*model.Contract) error {
	if len(contracts) == 0 {
		return nil
	}
	if err := t.db.Create(contracts).Error; err != nil {
		return errors.Wrap(err, "insert contracts")
	}
	return nil
}

func (t *pgTx) ContractForUpdate(id uuid.UUID) (*model.Contract, error) {
	var contract model.Contract
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&contract).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, exception.ErrContractNotFound
		}
		return nil, errors.Wrap(err, "lock contract")
	}
	return &contract, nil
}

func (t *pgTx) ContractsByPairForUpdate(pairID uuid.UUID) ([]*model.Contract, error) {
	var contracts []*model.Contract
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pair_id = ?", pairID).
		Order("created_at ASC").
		Find(&contracts).Error
	if err != nil {
		return nil, errors.Wrap(err, "lock pair contracts")
	}
	return contracts, nil
}

func (t *pgTx) UpdateContract(contract *model.Contract) error {
	if err := t.db.Save(contract).Error; err != nil {
		return errors.Wrap(err, "update contract")
	}
	return nil
}

func (t *pgTx) InsertOutboxEvent(event *model.OutboxEvent) error {
	if err := t.db.Create(event).Error; err != nil {
		return errors.Wrap(err, "insert outbox event")
	}
	return nil
}

func (t *pgTx) NextTransactionNumber() (string, error) {
	n, err := nextSeq(t.db, transactionNumberSeq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TXN-%08d", n), nil
}

func (t *pgTx) NextContractNumber() (string, error) {
	n, err := nextSeq(t.db, contractNumberSeq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CON-%08d", n), nil
}

func nextSeq(db *gorm.DB, name string) (int64, error) {
	var n int64
	if err := db.Raw(fmt.Sprintf("SELECT nextval('%s')", name)).Scan(&n).Error; err != nil {
		return 0, errors.Wrap(err, "next sequence value")
	}
	return n, nil
}
