package model

import (
	"time"

	"github.com/google/uuid"
)

// Outbox event kinds.
const (
	OutboxKindFill       = "fill"
	OutboxKindTransfer   = "transfer"
	OutboxKindPairClosed = "pair_closed"
)

// OutboxEvent is written in the same transaction as the financial writes it
// describes and delivered after commit by the dispatcher. Delivery is
// at-least-once; consumers key on the event id.
type OutboxEvent struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      string     `gorm:"size:32;index:idx_outbox_unsent" json:"kind"`
	Payload   []byte     `gorm:"type:jsonb" json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `gorm:"index:idx_outbox_unsent" json:"sent_at,omitempty"`
}
