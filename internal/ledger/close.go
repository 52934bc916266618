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

// CloseResult reports what a close released back to the account.
type CloseResult struct {
	Contracts []*model.Contract
	PnL       decimal.Decimal
	Released  decimal.Decimal
}

// CloseContract closes one open leg at the given price, releasing margin
// plus realized P&L minus the close commission.
func (s *Service) CloseContract(ctx context.Context, accountID, contractID uuid.UUID, closePrice decimal.Decimal) (*CloseResult, error) {
	if closePrice.IsZero() || closePrice.IsNegative() {
		return nil, exception.ErrOrderInvalidRequest
	}

	var result *CloseResult
	err := s.store.WithinTx(ctx, func(tx store.LedgerTx) error {
		account, err := tx.AccountForUpdate(accountID)
		if err != nil {
			return err
		}
		if account.Status == enum.AccountStatusSuspended {
			return exception.ErrAccountSuspended
		}

		contract, err := tx.ContractForUpdate(contractID)
		if err != nil {
			return err
		}
		if contract.AccountID != accountID {
			return exception.ErrContractNotFound
		}

		released, pnl, err := s.closeLeg(tx, contract, closePrice)
		if err != nil {
			return err
		}

		result = &CloseResult{
			Contracts: []*model.Contract{contract},
			PnL:       pnl,
			Released:  released,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ClosePair closes both hedge legs in one transaction and reports the
// combined result. A pair with a missing or already-closed leg is refused.
func (s *Service) ClosePair(ctx context.Context, accountID, pairID uuid.UUID, closePrice decimal.Decimal) (*CloseResult, error) {
	if closePrice.IsZero() || closePrice.IsNegative() {
		return nil, exception.ErrOrderInvalidRequest
	}

	var result *CloseResult
	err := s.store.WithinTx(ctx, func(tx store.LedgerTx) error {
		account, err := tx.AccountForUpdate(accountID)
		if err != nil {
			return err
		}
		if account.Status == enum.AccountStatusSuspended {
			return exception.ErrAccountSuspended
		}

		contracts, err := tx.ContractsByPairForUpdate(pairID)
		if err != nil {
			return err
		}
		if len(contracts) != 2 {
			return exception.ErrPairIncomplete
		}
		for _, contract := range contracts {
			if contract.AccountID != accountID {
				return exception.ErrContractNotFound
			}
			if contract.Status != enum.ContractStatusOpen {
				return exception.ErrPairIncomplete
			}
		}

		totalPnL := decimal.Zero
		totalReleased := decimal.Zero
		for _, contract := range contracts {
			released, pnl, err := s.closeLeg(tx, contract, closePrice)
			if err != nil {
				return err
			}
			totalPnL = totalPnL.Add(pnl)
			totalReleased = totalReleased.Add(released)
		}

		payload, err := json.Marshal(map[string]any{
			"pair_id":     pairID,
			"account_id":  accountID,
			"close_price": closePrice,
			"pnl":         totalPnL,
		})
		if err != nil {
			return errors.Wrap(err, "marshal pair close event")
		}
		if err := tx.InsertOutboxEvent(&model.OutboxEvent{
			ID:        uuid.New(),
			Kind:      model.OutboxKindPairClosed,
			Payload:   payload,
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}

		result = &CloseResult{Contracts: contracts, PnL: totalPnL, Released: totalReleased}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// closeLeg settles one leg: marks it closed and credits margin + P&L minus
// the close commission. The settlement row may be negative when losses
// exceed the released margin.
func (s *Service) closeLeg(tx store.LedgerTx, contract *model.Contract, closePrice decimal.Decimal) (released, pnl decimal.Decimal, err error) {
	if contract.Status != enum.ContractStatusOpen {
		return decimal.Zero, decimal.Zero, exception.ErrContractNotOpen
	}

	ins, err := s.registry.Instrument(contract.Symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	pnl = contract.UnrealizedPnL(closePrice)
	closeFee := closePrice.Mul(contract.Quantity).Mul(feeRate)
	released = contract.MarginUsed.Add(pnl).Sub(closeFee)

	if err := tx.AdjustBalance(contract.AccountID, ins.QuoteCurrency, released); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if _, err := insertMovement(tx, contract.AccountID, ins.QuoteCurrency, released,
		enum.TransactionTypePositionClose,
		fmt.Sprintf("close %s %s @ %s", contract.Side, contract.ContractNumber, closePrice),
		nil, &contract.ID); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	now := time.Now()
	contract.Status = enum.ContractStatusClosed
	contract.ClosePrice = &closePrice
	contract.PnL = &pnl
	contract.ClosedAt = &now
	contract.UpdatedAt = now
	if err := tx.UpdateContract(contract); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return released, pnl, nil
}
