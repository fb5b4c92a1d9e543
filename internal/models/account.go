package models

import (
	"time"

	"github.com/google/uuid"
)

// Роли владельцев счетов.
const (
	AccountRoleBuyer    = "buyer"
	AccountRoleSeller   = "seller"
	AccountRolePlatform = "platform"
)

// Виды записей в леджере.
const (
	LedgerKindHold       = "hold"
	LedgerKindRelease    = "release"
	LedgerKindRefund     = "refund"
	LedgerKindFee        = "fee"
	LedgerKindDeposit    = "deposit"
	LedgerKindWithdrawal = "withdrawal"
)

// Account представляет денежный счёт пользователя или платформы.
// Балансы хранятся в копейках и никогда не уходят в минус.
type Account struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Role      string    `db:"role" json:"role"`
	Available int64     `db:"available" json:"available"`
	Held      int64     `db:"held" json:"held"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerEntry — неизменяемая запись о движении средств.
// Сумма всех дельт по счёту всегда равна его текущим балансам.
type LedgerEntry struct {
	ID             int64      `db:"id" json:"id"`
	AccountID      uuid.UUID  `db:"account_id" json:"account_id"`
	OrderID        *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	DisputeID      *uuid.UUID `db:"dispute_id" json:"dispute_id,omitempty"`
	Kind           string     `db:"kind" json:"kind"`
	AvailableDelta int64      `db:"available_delta" json:"available_delta"`
	HeldDelta      int64      `db:"held_delta" json:"held_delta"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	Description    *string    `db:"description" json:"description,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Balance — снимок балансов счёта, отдаётся наружу вместо всей модели.
type Balance struct {
	UserID    uuid.UUID `json:"user_id"`
	Available int64     `json:"available"`
	Held      int64     `json:"held"`
}
