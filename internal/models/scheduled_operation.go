package models

import (
	"time"

	"github.com/google/uuid"
)

// Виды отложенных операций планировщика.
const (
	ScheduledOpAutoConfirm = "auto_confirm"
)

// ScheduledOperation — отложенная идемпотентная операция над заказом.
// Планировщик исполняет её после run_at; операция конкурирует с ручными
// действиями за per-order блокировку и при проигрыше становится no-op.
type ScheduledOperation struct {
	ID         int64      `db:"id" json:"id"`
	OrderID    uuid.UUID  `db:"order_id" json:"order_id"`
	Kind       string     `db:"kind" json:"kind"`
	RunAt      time.Time  `db:"run_at" json:"run_at"`
	ExecutedAt *time.Time `db:"executed_at" json:"executed_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
