package enum

// TransactionType trade, transfer, position close
type TransactionType uint8

const (
	_transaction_type_beg TransactionType = iota
	TransactionTypeTrade
	TransactionTypeTransfer
	TransactionTypePositionClose
	_transaction_type_end
)

func (t TransactionType) IsAvailable() bool {
	return t > _transaction_type_beg && t < _transaction_type_end
}

func (t TransactionType) String() string {
	switch t {
	case TransactionTypeTrade:
		return "trade"
	case TransactionTypeTransfer:
		return "transfer"
	case TransactionTypePositionClose:
		return "position_close"
	default:
		return "unknown"
	}
}
