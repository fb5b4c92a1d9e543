package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы заказа. Completed и Cancelled терминальные: из них выходов нет.
const (
	OrderStatusCreated          = "created"
	OrderStatusAwaitingPayment  = "awaiting_payment"
	OrderStatusHeld             = "held"
	OrderStatusDeliveredPending = "delivered_pending_confirmation"
	OrderStatusDisputed         = "disputed"
	OrderStatusCompleted        = "completed"
	OrderStatusCancelled        = "cancelled"
)

// orderTransitions описывает допустимые переходы жизненного цикла заказа.
// Сама таблица — чистая логика без побочных эффектов; движения по леджеру
// выполняет вызывающий сервис.
var orderTransitions = map[string][]string{
	OrderStatusCreated:          {OrderStatusAwaitingPayment, OrderStatusCancelled},
	OrderStatusAwaitingPayment:  {OrderStatusHeld, OrderStatusCancelled},
	OrderStatusHeld:             {OrderStatusDeliveredPending, OrderStatusDisputed},
	OrderStatusDeliveredPending: {OrderStatusCompleted, OrderStatusDisputed},
	OrderStatusDisputed:         {OrderStatusCompleted},
	OrderStatusCompleted:        {},
	OrderStatusCancelled:        {},
}

// CanTransitionOrder проверяет, допустим ли переход заказа из from в to.
func CanTransitionOrder(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalOrderStatus сообщает, достиг ли заказ терминального состояния.
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusCancelled
}

// IsDisputableOrderStatus сообщает, можно ли открыть спор в текущем статусе.
func IsDisputableOrderStatus(status string) bool {
	return status == OrderStatusHeld || status == OrderStatusDeliveredPending
}

// Order описывает заказ на цифровой товар. Суммы в копейках.
// Escrow-сумма покупателя равна Amount + FeeAmount.
type Order struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	BuyerID         uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	SellerID        uuid.UUID  `db:"seller_id" json:"seller_id"`
	ProductRef      string     `db:"product_ref" json:"product_ref"`
	Amount          int64      `db:"amount" json:"amount"`
	FeeAmount       int64      `db:"fee_amount" json:"fee_amount"`
	Status          string     `db:"status" json:"status"`
	IdempotencyKey  *string    `db:"idempotency_key" json:"-"`
	DeliveredAt     *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ConfirmDeadline *time.Time `db:"confirm_deadline" json:"confirm_deadline,omitempty"`
	DisputeDeadline *time.Time `db:"dispute_deadline" json:"dispute_deadline,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// EscrowTotal возвращает сумму, замораживаемую у покупателя.
func (o *Order) EscrowTotal() int64 {
	return o.Amount + o.FeeAmount
}
