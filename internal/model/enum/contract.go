package enum

// ContractSide long, short
type ContractSide uint8

const (
	_contract_side_beg ContractSide = iota
	ContractSideLong
	ContractSideShort
	_contract_side_end
)

func (s ContractSide) IsAvailable() bool {
	return s > _contract_side_beg && s < _contract_side_end
}

func (s ContractSide) String() string {
	switch s {
	case ContractSideLong:
		return "long"
	case ContractSideShort:
		return "short"
	default:
		return "unknown"
	}
}

// ContractStatus open, closed
type ContractStatus uint8

const (
	_contract_status_beg ContractStatus = iota
	ContractStatusOpen
	ContractStatusClosed
	_contract_status_end
)

func (s ContractStatus) IsAvailable() bool {
	return s > _contract_status_beg && s < _contract_status_end
}

func (s ContractStatus) String() string {
	switch s {
	case ContractStatusOpen:
		return "open"
	case ContractStatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// AccountStatus active, suspended
type AccountStatus uint8

const (
	_account_status_beg AccountStatus = iota
	AccountStatusActive
	AccountStatusSuspended
	_account_status_end
)

func (s AccountStatus) IsAvailable() bool {
	return s > _account_status_beg && s < _account_status_end
}

func (s AccountStatus) String() string {
	switch s {
	case AccountStatusActive:
		return "active"
	case AccountStatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}
