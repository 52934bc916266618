package exception

import "errors"

var (
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds")
	ErrAccountNotFound    = errors.New("ledger: account not found")
	ErrAccountSuspended   = errors.New("ledger: account suspended")
	ErrCurrencyMismatch   = errors.New("ledger: currency mismatch")
	ErrSameAccount        = errors.New("ledger: source and destination are the same account")
	ErrContractNotFound   = errors.New("ledger: contract not found")
	ErrContractNotOpen    = errors.New("ledger: contract not open")
	ErrPairIncomplete     = errors.New("ledger: hedge pair is not fully open")
	ErrTransientStorage   = errors.New("ledger: storage unavailable, retry")
	ErrInvalidAmount      = errors.New("ledger: amount must be positive")
	ErrInstrumentNotFound = errors.New("ledger: instrument not found")
)
