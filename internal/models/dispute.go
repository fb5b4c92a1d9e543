package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы спора.
const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
)

// Решения арбитража. Зеркалят кнопки админ-панели.
const (
	ResolutionRefundBuyer   = "refund_buyer"
	ResolutionPartialRefund = "partial_refund"
	ResolutionCloseNoRefund = "close_no_refund"
)

// Dispute представляет спор по заказу. На заказ приходится максимум один спор.
type Dispute struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	OrderID          uuid.UUID  `db:"order_id" json:"order_id"`
	OpenedBy         uuid.UUID  `db:"opened_by" json:"opened_by"`
	Reason           string     `db:"reason" json:"reason"`
	Status           string     `db:"status" json:"status"`
	Resolution       *string    `db:"resolution" json:"resolution,omitempty"`
	ResolutionAmount *int64     `db:"resolution_amount" json:"resolution_amount,omitempty"`
	ResolvedBy       *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt       *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`

	Evidence []DisputeEvidence `json:"evidence,omitempty"`
}

// DisputeEvidence — файл-доказательство, приложенный к спору.
type DisputeEvidence struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DisputeID  uuid.UUID `db:"dispute_id" json:"dispute_id"`
	UploadedBy uuid.UUID `db:"uploaded_by" json:"uploaded_by"`
	FilePath   string    `db:"file_path" json:"file_path"`
	FileSize   int64     `db:"file_size" json:"file_size"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ValidResolution проверяет, что решение входит в известный набор.
func ValidResolution(resolution string) bool {
	switch resolution {
	case ResolutionRefundBuyer, ResolutionPartialRefund, ResolutionCloseNoRefund:
		return true
	}
	return false
}
