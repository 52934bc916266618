package ledger

import (
	"bytes"
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

// TransferResult carries the two signed movement rows a transfer wrote.
type TransferResult struct {
	Debit  *model.Transaction
	Credit *model.Transaction
}

// Transfer moves amount between two same-currency accounts on behalf of
// ownerID, who must own the source. The two signed movement rows net to
// zero; both commit or neither does.
func (s *Service) Transfer(ctx context.Context, ownerID int64, fromID, toID uuid.UUID, amount decimal.Decimal, description string) (*TransferResult, error) {
	if fromID == toID {
		return nil, exception.ErrSameAccount
	}
	if amount.IsZero() || amount.IsNegative() {
		return nil, exception.ErrInvalidAmount
	}

	var result *TransferResult
	err := s.store.WithinTx(ctx, func(tx store.LedgerTx) error {
		from, to, err := lockAccountPair(tx, fromID, toID)
		if err != nil {
			return err
		}
		// A foreign source reads as absent; existence is not leaked.
		if from.OwnerID != ownerID {
			return exception.ErrAccountNotFound
		}
		if from.Status == enum.AccountStatusSuspended || to.Status == enum.AccountStatusSuspended {
			return exception.ErrAccountSuspended
		}
		if from.Currency != to.Currency {
			return exception.ErrCurrencyMismatch
		}
		currency := from.Currency

		balance, err := tx.BalanceForUpdate(fromID, currency)
		if err != nil {
			return err
		}
		if balance.Amount.LessThan(amount) {
			return exception.ErrInsufficientFunds
		}

		if err := tx.AdjustBalance(fromID, currency, amount.Neg()); err != nil {
			return err
		}
		if err := tx.AdjustBalance(toID, currency, amount); err != nil {
			return err
		}

		debitRow, err := insertMovement(tx, fromID, currency, amount.Neg(), enum.TransactionTypeTransfer,
			fmt.Sprintf("transfer to %d: %s", to.Number, description), &toID, nil)
		if err != nil {
			return err
		}
		creditRow, err := insertMovement(tx, toID, currency, amount, enum.TransactionTypeTransfer,
			fmt.Sprintf("transfer from %d: %s", from.Number, description), &fromID, nil)
		if err != nil {
			return err
		}
		result = &TransferResult{Debit: debitRow, Credit: creditRow}

		payload, err := json.Marshal(map[string]any{
			"from_account": fromID,
			"to_account":   toID,
			"currency":     currency,
			"amount":       amount,
		})
		if err != nil {
			return errors.Wrap(err, "marshal transfer event")
		}
		return tx.InsertOutboxEvent(&model.OutboxEvent{
			ID:        uuid.New(),
			Kind:      model.OutboxKindTransfer,
			Payload:   payload,
			CreatedAt: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// lockAccountPair takes both account locks in id order so two opposing
// transfers cannot deadlock.
func lockAccountPair(tx store.LedgerTx, fromID, toID uuid.UUID) (from, to *model.Account, err error) {
	first, second := fromID, toID
	if bytes.Compare(toID[:], fromID[:]) < 0 {
		first, second = toID, fromID
	}

	a, err := tx.AccountForUpdate(first)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.AccountForUpdate(second)
	if err != nil {
		return nil, nil, err
	}

	if a.ID == fromID {
		return a, b, nil
	}
	return b, a, nil
}
