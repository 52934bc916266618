// Package ledger settles fills, transfers and position closes. Every public
// operation runs inside one store transaction: it either commits every row
// it touches or leaves the books untouched.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/store"
	"main/pkg/exception"
)

var (
	feeRate     = decimal.RequireFromString("0.001")
	liqFraction = decimal.RequireFromString("0.9")
	two         = decimal.NewFromInt(2)
)

// NumberSource allocates order numbers for fills that did not come through
// the pending working set.
type NumberSource interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// Service owns settlement. It holds no state of its own; everything lives in
// the store.
type Service struct {
	store    store.LedgerStore
	numbers  NumberSource
	registry *model.Registry
}

func NewService(ledgerStore store.LedgerStore, numbers NumberSource, registry *model.Registry) *Service {
	return &Service{store: ledgerStore, numbers: numbers, registry: registry}
}

// FillRequest describes one fill to settle at a known price.
type FillRequest struct {
	AccountID   uuid.UUID
	OrderNumber string // allocated when empty
	Symbol      string
	Side        enum.OrderSide
	Kind        enum.OrderKind
	Product     enum.ProductType
	Quantity    decimal.Decimal
	Leverage    int
	Price       decimal.Decimal
}

// Execute settles a fill atomically and returns the immutable order record.
func (s *Service) Execute(ctx context.Context, req FillRequest) (*model.Order, error) {
	ins, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	if req.OrderNumber == "" {
		number, err := s.numbers.NextOrderNumber(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "allocate order number")
		}
		req.OrderNumber = number
	}

	var order *model.Order
	err = s.store.WithinTx(ctx, func(tx store.LedgerTx) error {
		account, err := tx.AccountForUpdate(req.AccountID)
		if err != nil {
			return err
		}
		if account.Status == enum.AccountStatusSuspended {
			return exception.ErrAccountSuspended
		}

		switch {
		case req.Product == enum.ProductTypeSpot:
			order, err = s.settleSpot(tx, req, ins)
		case req.Product == enum.ProductTypeMargin:
			order, err = s.settleMargin(tx, req, ins)
		case req.Product == enum.ProductTypeHedged:
			order, err = s.settleHedged(tx, req, ins)
		default:
			err = exception.ErrOrderInvalidRequest
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ExecutePending adapts a triggered order into a fill request.
func (s *Service) ExecutePending(ctx context.Context, order *model.PendingOrder, fillPrice decimal.Decimal) error {
	_, err := s.Execute(ctx, FillRequest{
		AccountID:   order.AccountID,
		OrderNumber: order.OrderNumber,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Kind:        order.Kind,
		Product:     order.Product,
		Quantity:    order.Quantity,
		Leverage:    order.Leverage,
		Price:       fillPrice,
	})
	return err
}

func (s *Service) validate(req FillRequest) (model.Instrument, error) {
	if !req.Side.IsAvailable() || !req.Product.IsAvailable() {
		return model.Instrument{}, exception.ErrOrderInvalidRequest
	}
	if req.Quantity.IsZero() || req.Quantity.IsNegative() || req.Price.IsZero() || req.Price.IsNegative() {
		return model.Instrument{}, exception.ErrOrderInvalidRequest
	}

	ins, err := s.registry.Instrument(req.Symbol)
	if err != nil {
		return model.Instrument{}, err
	}
	if !ins.Tradeable {
		return model.Instrument{}, exception.ErrOrderNotTradeable
	}
	if req.Quantity.LessThan(ins.MinOrderSize) || req.Quantity.GreaterThan(ins.MaxOrderSize) {
		return model.Instrument{}, exception.ErrOrderSizeOutOfRange
	}
	if req.Product.IsLeveraged() && (req.Leverage < 1 || req.Leverage > ins.MaxLeverage) {
		return model.Instrument{}, exception.ErrOrderLeverageExceeded
	}
	return ins, nil
}

func (s *Service) settleSpot(tx store.LedgerTx, req FillRequest, ins model.Instrument) (*model.Order, error) {
	notional := req.Price.Mul(req.Quantity)
	fee := notional.Mul(feeRate)

	if req.Side == enum.OrderSideBuy {
		cost := notional.Add(fee)
		if err := debit(tx, req.AccountID, ins.QuoteCurrency, cost,
			fmt.Sprintf("buy %s %s @ %s", req.Quantity, req.Symbol, req.Price)); err != nil {
			return nil, err
		}
		if err := credit(tx, req.AccountID, ins.BaseCurrency, req.Quantity,
			fmt.Sprintf("buy %s fill", req.Symbol)); err != nil {
			return nil, err
		}
	} else {
		if err := debit(tx, req.AccountID, ins.BaseCurrency, req.Quantity,
			fmt.Sprintf("sell %s %s @ %s", req.Quantity, req.Symbol, req.Price)); err != nil {
			return nil, err
		}
		proceeds := notional.Sub(fee)
		if err := credit(tx, req.AccountID, ins.QuoteCurrency, proceeds,
			fmt.Sprintf("sell %s fill", req.Symbol)); err != nil {
			return nil, err
		}
	}

	return s.recordOrder(tx, req, nil)
}

func (s *Service) settleMargin(tx store.LedgerTx, req FillRequest, ins model.Instrument) (*model.Order, error) {
	notional := req.Price.Mul(req.Quantity)
	fee := notional.Mul(feeRate)
	margin := notional.Div(decimal.NewFromInt(int64(req.Leverage)))

	cost := margin.Add(fee)
	if err := debit(tx, req.AccountID, ins.QuoteCurrency, cost,
		fmt.Sprintf("open %s %s x%d", contractSide(req.Side), req.Symbol, req.Leverage)); err != nil {
		return nil, err
	}

	if _, err := s.openContract(tx, req, margin, fee, contractSide(req.Side), nil); err != nil {
		return nil, err
	}

	return s.recordOrder(tx, req, nil)
}

func (s *Service) settleHedged(tx store.LedgerTx, req FillRequest, ins model.Instrument) (*model.Order, error) {
	notional := req.Price.Mul(req.Quantity)
	fee := notional.Mul(feeRate)
	margin := notional.Div(decimal.NewFromInt(int64(req.Leverage)))

	// Both legs lock margin; one commission covers the pair.
	cost := margin.Mul(two).Add(fee)
	if err := debit(tx, req.AccountID, ins.QuoteCurrency, cost,
		fmt.Sprintf("open hedged %s x%d", req.Symbol, req.Leverage)); err != nil {
		return nil, err
	}

	pairID := uuid.New()
	halfFee := fee.Div(two)
	if _, err := s.openContract(tx, req, margin, halfFee, enum.ContractSideLong, &pairID); err != nil {
		return nil, err
	}
	if _, err := s.openContract(tx, req, margin, halfFee, enum.ContractSideShort, &pairID); err != nil {
		return nil, err
	}

	return s.recordOrder(tx, req, &pairID)
}

func (s *Service) openContract(tx store.LedgerTx, req FillRequest, margin, commission decimal.Decimal, side enum.ContractSide, pairID *uuid.UUID) (*model.Contract, error) {
	number, err := tx.NextContractNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	contract := &model.Contract{
		ID:               uuid.New(),
		AccountID:        req.AccountID,
		Symbol:           req.Symbol,
		ContractNumber:   number,
		Side:             side,
		Status:           enum.ContractStatusOpen,
		Quantity:         req.Quantity,
		EntryPrice:       req.Price,
		MarginUsed:       margin,
		Leverage:         req.Leverage,
		Commission:       commission,
		LiquidationPrice: liquidationPrice(req.Price, side, req.Leverage),
		PairID:           pairID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.InsertContracts(contract); err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *Service) recordOrder(tx store.LedgerTx, req FillRequest, pairID *uuid.UUID) (*model.Order, error) {
	now := time.Now()
	price := req.Price
	order := &model.Order{
		ID:             uuid.New(),
		AccountID:      req.AccountID,
		OrderNumber:    req.OrderNumber,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Kind:           req.Kind,
		Product:        req.Product,
		Status:         enum.OrderStatusFilled,
		Quantity:       req.Quantity,
		FilledQuantity: req.Quantity,
		AvgFillPrice:   &price,
		PairID:         pairID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.InsertOrder(order); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"order_number": order.OrderNumber,
		"account_id":   order.AccountID,
		"symbol":       order.Symbol,
		"side":         order.Side.String(),
		"product":      order.Product.String(),
		"quantity":     order.Quantity,
		"price":        price,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal fill event")
	}
	if err := tx.InsertOutboxEvent(&model.OutboxEvent{
		ID:        uuid.New(),
		Kind:      model.OutboxKindFill,
		Payload:   payload,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// debit checks funds under the row lock before applying the negative delta.
func debit(tx store.LedgerTx, accountID uuid.UUID, currency string, amount decimal.Decimal, description string) error {
	balance, err := tx.BalanceForUpdate(accountID, currency)
	if err != nil {
		return err
	}
	if balance.Amount.LessThan(amount) {
		return exception.ErrInsufficientFunds
	}
	if err := tx.AdjustBalance(accountID, currency, amount.Neg()); err != nil {
		return err
	}
	_, err = insertMovement(tx, accountID, currency, amount.Neg(), enum.TransactionTypeTrade, description, nil, nil)
	return err
}

// credit applies a positive delta, creating the balance row when absent.
func credit(tx store.LedgerTx, accountID uuid.UUID, currency string, amount decimal.Decimal, description string) error {
	if err := tx.AdjustBalance(accountID, currency, amount); err != nil {
		return err
	}
	_, err := insertMovement(tx, accountID, currency, amount, enum.TransactionTypeTrade, description, nil, nil)
	return err
}

func insertMovement(tx store.LedgerTx, accountID uuid.UUID, currency string, amount decimal.Decimal, kind enum.TransactionType, description string, target *uuid.UUID, contractID *uuid.UUID) (*model.Transaction, error) {
	number, err := tx.NextTransactionNumber()
	if err != nil {
		return nil, err
	}
	movement := &model.Transaction{
		ID:              uuid.New(),
		AccountID:       accountID,
		Number:          number,
		Type:            kind,
		Currency:        currency,
		Amount:          amount,
		TargetAccountID: target,
		ContractID:      contractID,
		Description:     description,
		CreatedAt:       time.Now(),
	}
	if err := tx.InsertTransaction(movement); err != nil {
		return nil, err
	}
	return movement, nil
}

func contractSide(side enum.OrderSide) enum.ContractSide {
	if side == enum.OrderSideBuy {
		return enum.ContractSideLong
	}
	return enum.ContractSideShort
}

// liquidationPrice is the mark at which losses reach 90% of locked margin.
func liquidationPrice(entry decimal.Decimal, side enum.ContractSide, leverage int) decimal.Decimal {
	frac := liqFraction.Div(decimal.NewFromInt(int64(leverage)))
	if side == enum.ContractSideLong {
		return entry.Mul(decimal.NewFromInt(1).Sub(frac))
	}
	return entry.Mul(decimal.NewFromInt(1).Add(frac))
}
