package dto

import "github.com/google/uuid"

// CreateOrderRequest — запрос на создание заказа. Суммы в копейках.
type CreateOrderRequest struct {
	SellerID   uuid.UUID `json:"seller_id" binding:"required"`
	ProductRef string    `json:"product_ref" binding:"required"`
	Amount     int64     `json:"amount" binding:"required,gt=0"`
}

// OpenDisputeRequest — запрос на открытие спора по заказу.
type OpenDisputeRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=2000"`
}

// ResolveDisputeRequest — решение арбитра по спору.
type ResolveDisputeRequest struct {
	Decision string `json:"decision" binding:"required"`
	Amount   *int64 `json:"amount"`
}

// DepositRequest — пополнение баланса.
type DepositRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description"`
}

// CreateWithdrawalRequest — заявка на вывод средств.
type CreateWithdrawalRequest struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	CardLast4 string `json:"card_last4" binding:"required,len=4"`
	BankName  string `json:"bank_name" binding:"required"`
}

// RejectWithdrawalRequest — отклонение заявки администратором.
type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// GatewayCaptureEvent — тело webhook от платёжного шлюза.
type GatewayCaptureEvent struct {
	OrderID   uuid.UUID `json:"order_id" binding:"required"`
	EventID   string    `json:"event_id" binding:"required"`
	Status    string    `json:"status" binding:"required"`
	Timestamp int64     `json:"timestamp"`
}
