package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatusChange — одна запись журнала переходов заказа. ActorID пуст для
// переходов, сделанных системой (webhook, автоподтверждение).
type OrderStatusChange struct {
	ID         int64      `db:"id" json:"id"`
	OrderID    uuid.UUID  `db:"order_id" json:"order_id"`
	ActorID    *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	FromStatus string     `db:"from_status" json:"from_status"`
	ToStatus   string     `db:"to_status" json:"to_status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
