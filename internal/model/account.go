package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// Account owns one balance per currency. The engine never mutates accounts;
// it only reads ownership, status and settlement currency.
type Account struct {
	ID        uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   int64              `gorm:"index" json:"owner_id"`
	Number    int64              `gorm:"uniqueIndex" json:"number"`
	Currency  string             `gorm:"size:8" json:"currency"`
	Status    enum.AccountStatus `gorm:"not null" json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

// Balance rows are the only cross-component shared mutable state; they are
// touched exclusively inside ledger transactions.
type Balance struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_balance_account_currency" json:"account_id"`
	Currency  string          `gorm:"size:8;uniqueIndex:idx_balance_account_currency" json:"currency"`
	Amount    decimal.Decimal `gorm:"type:numeric(24,8)" json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is one side of a balance movement: immutable, append-only,
// signed so that the two rows of a transfer net to zero.
type Transaction struct {
	ID              uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID       uuid.UUID            `gorm:"type:uuid;index" json:"account_id"`
	Number          string               `gorm:"size:32;uniqueIndex" json:"number"`
	Type            enum.TransactionType `gorm:"not null" json:"type"`
	Currency        string               `gorm:"size:8" json:"currency"`
	Amount          decimal.Decimal      `gorm:"type:numeric(24,8)" json:"amount"`
	TargetAccountID *uuid.UUID           `gorm:"type:uuid" json:"target_account_id,omitempty"`
	ContractID      *uuid.UUID           `gorm:"type:uuid" json:"contract_id,omitempty"`
	Description     string               `gorm:"size:512" json:"description"`
	CreatedAt       time.Time            `json:"created_at"`
}
