package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/store"
	"main/pkg/exception"
)

const testOwner = int64(77)

func seedAccount(mem *store.Memory, number int64, currency, amount string) uuid.UUID {
	id := uuid.New()
	mem.SeedAccount(model.Account{
		ID:       id,
		OwnerID:  testOwner,
		Number:   number,
		Currency: currency,
		Status:   enum.AccountStatusActive,
	}, map[string]decimal.Decimal{currency: dec(amount)})
	return id
}

func TestTransferMovesFundsAndNetsToZero(t *testing.T) {
	svc, mem := newTestService()
	a := seedAccount(mem, 10001, "USD", "100")
	b := seedAccount(mem, 10002, "USD", "5")

	result, err := svc.Transfer(context.Background(), testOwner, a, b, dec("20"), "monthly sweep")
	require.NoError(t, err)

	assert.True(t, mem.BalanceOf(a, "USD").Equal(dec("80")))
	assert.True(t, mem.BalanceOf(b, "USD").Equal(dec("25")))

	require.NotNil(t, result.Debit)
	require.NotNil(t, result.Credit)
	assert.Equal(t, a, result.Debit.AccountID)
	assert.Equal(t, b, result.Credit.AccountID)
	assert.True(t, result.Debit.Amount.Equal(dec("-20")))
	assert.True(t, result.Credit.Amount.Equal(dec("20")))

	txns := mem.Transactions()
	require.Len(t, txns, 2)
	assert.Equal(t, result.Debit.Number, txns[0].Number)
	assert.Equal(t, result.Credit.Number, txns[1].Number)
	assert.True(t, txns[0].Amount.Equal(dec("-20")))
	assert.True(t, txns[1].Amount.Equal(dec("20")))
	assert.True(t, txns[0].Amount.Add(txns[1].Amount).IsZero(), "rows net to zero")
	assert.Equal(t, enum.TransactionTypeTransfer, txns[0].Type)
	require.NotNil(t, txns[0].TargetAccountID)
	assert.Equal(t, b, *txns[0].TargetAccountID)
	require.NotNil(t, txns[1].TargetAccountID)
	assert.Equal(t, a, *txns[1].TargetAccountID)
	assert.NotEqual(t, txns[0].Number, txns[1].Number)

	events := mem.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxKindTransfer, events[0].Kind)
}

func TestTransferPreChecks(t *testing.T) {
	svc, mem := newTestService()
	usd := seedAccount(mem, 10001, "USD", "100")
	eur := seedAccount(mem, 10002, "EUR", "100")
	poor := seedAccount(mem, 10003, "USD", "1")

	suspended := uuid.New()
	mem.SeedAccount(model.Account{ID: suspended, Number: 10004, Currency: "USD", Status: enum.AccountStatusSuspended},
		map[string]decimal.Decimal{"USD": dec("100")})

	ctx := context.Background()
	testCases := []struct {
		desc   string
		from   uuid.UUID
		to     uuid.UUID
		amount decimal.Decimal
		err    error
	}{
		{"same account", usd, usd, dec("10"), exception.ErrSameAccount},
		{"zero amount", usd, poor, decimal.Zero, exception.ErrInvalidAmount},
		{"negative amount", usd, poor, dec("-5"), exception.ErrInvalidAmount},
		{"unknown source", uuid.New(), usd, dec("10"), exception.ErrAccountNotFound},
		{"unknown destination", usd, uuid.New(), dec("10"), exception.ErrAccountNotFound},
		{"currency mismatch", usd, eur, dec("10"), exception.ErrCurrencyMismatch},
		{"suspended destination", usd, suspended, dec("10"), exception.ErrAccountSuspended},
		{"insufficient funds", poor, usd, dec("10"), exception.ErrInsufficientFunds},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			result, err := svc.Transfer(ctx, testOwner, tc.from, tc.to, tc.amount, "")
			assert.ErrorIs(t, err, tc.err)
			assert.Nil(t, result)
		})
	}

	t.Run("foreign owner", func(t *testing.T) {
		result, err := svc.Transfer(ctx, testOwner+1, usd, poor, dec("10"), "")
		assert.ErrorIs(t, err, exception.ErrAccountNotFound)
		assert.Nil(t, result)
	})

	// No partial writes from any refused transfer.
	assert.True(t, mem.BalanceOf(usd, "USD").Equal(dec("100")))
	assert.True(t, mem.BalanceOf(poor, "USD").Equal(dec("1")))
	assert.Empty(t, mem.Transactions())
}

func TestTransferExactBalanceSucceeds(t *testing.T) {
	svc, mem := newTestService()
	a := seedAccount(mem, 10001, "USD", "20")
	b := seedAccount(mem, 10002, "USD", "0")

	_, err := svc.Transfer(context.Background(), testOwner, a, b, dec("20"), "")
	require.NoError(t, err)
	assert.True(t, mem.BalanceOf(a, "USD").IsZero())
	assert.True(t, mem.BalanceOf(b, "USD").Equal(dec("20")))
}
