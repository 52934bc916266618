package enum

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderKind market, limit, stop limit
type OrderKind uint8

const (
	_order_kind_beg OrderKind = iota
	OrderKindMarket
	OrderKindLimit
	OrderKindStopLimit
	_order_kind_end
)

func (k OrderKind) IsAvailable() bool {
	return k > _order_kind_beg && k < _order_kind_end
}

// IsConditional reports whether the kind belongs in the pending working set.
func (k OrderKind) IsConditional() bool {
	return k == OrderKindLimit || k == OrderKindStopLimit
}

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "market"
	case OrderKindLimit:
		return "limit"
	case OrderKindStopLimit:
		return "stop_limit"
	default:
		return "unknown"
	}
}

// OrderStatus filled, partial filled, rejected
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusFilled
	OrderStatusPartialFilled
	OrderStatusRejected
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusFilled:
		return "filled"
	case OrderStatusPartialFilled:
		return "partially_filled"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// PendingStatus pending, executed, cancelled, failed
type PendingStatus uint8

const (
	_pending_status_beg PendingStatus = iota
	PendingStatusPending
	PendingStatusExecuted
	PendingStatusCancelled
	PendingStatusFailed
	_pending_status_end
)

func (s PendingStatus) IsAvailable() bool {
	return s > _pending_status_beg && s < _pending_status_end
}

func (s PendingStatus) String() string {
	switch s {
	case PendingStatusPending:
		return "pending"
	case PendingStatusExecuted:
		return "executed"
	case PendingStatusCancelled:
		return "cancelled"
	case PendingStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProductType spot, margin, hedged
type ProductType uint8

const (
	_product_type_beg ProductType = iota
	ProductTypeSpot
	ProductTypeMargin
	ProductTypeHedged
	_product_type_end
)

func (p ProductType) IsAvailable() bool {
	return p > _product_type_beg && p < _product_type_end
}

// IsLeveraged reports whether settlement locks margin instead of notional.
func (p ProductType) IsLeveraged() bool {
	return p == ProductTypeMargin || p == ProductTypeHedged
}

func (p ProductType) String() string {
	switch p {
	case ProductTypeSpot:
		return "spot"
	case ProductTypeMargin:
		return "margin"
	case ProductTypeHedged:
		return "hedged"
	default:
		return "unknown"
	}
}
