package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/metrics"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/orderlock"
)

var (
	ErrInvalidOrderState = errors.New("order is not in a valid state for this operation")
	ErrNotParticipant    = errors.New("user is not a participant of this order")
	ErrPaymentCapture    = errors.New("payment capture failed")
)

// LedgerRepository — контракт леджера для расчётного ядра.
type LedgerRepository interface {
	GetOrCreateAccount(ctx context.Context, userID uuid.UUID, role string) (*models.Account, error)
	BalanceOf(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount int64, description, idemKey string) (*models.LedgerEntry, error)
	Hold(ctx context.Context, buyerID uuid.UUID, total int64, orderID uuid.UUID, idemKey string) error
	Settle(ctx context.Context, orderID uuid.UUID, disputeID *uuid.UUID, buyerID, sellerID uuid.UUID, split models.SettlementSplit, idemKey string) error
	ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error)
}

// OrderRepository — контракт хранилища заказов.
type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, actor *uuid.UUID) error
	MarkDelivered(ctx context.Context, id, sellerID uuid.UUID, deliveredAt, confirmDeadline, disputeDeadline time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error)
}

// ScheduleRepository — контракт планировщика отложенных операций.
type ScheduleRepository interface {
	Schedule(ctx context.Context, orderID uuid.UUID, kind string, runAt time.Time) error
}

// Notifier отправляет события слою уведомлений. Доставка fire-and-forget:
// расчёт не зависит от её успеха.
type Notifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// SettlementConfig — параметры расчётного ядра.
type SettlementConfig struct {
	FeeBps          int64
	ConfirmDeadline time.Duration
	DisputeWindow   time.Duration
}

// SettlementService — единственная точка входа для мутаций заказов.
// Гарантирует не более одной одновременной мутации на заказ: каждый метод
// сначала берёт per-order блокировку и отпускает её на любом пути выхода.
type SettlementService struct {
	orders   OrderRepository
	ledger   LedgerRepository
	schedule ScheduleRepository
	locks    *orderlock.Registry
	hub      Notifier
	metrics  *metrics.Metrics
	cfg      SettlementConfig
}

func NewSettlementService(orders OrderRepository, ledger LedgerRepository, schedule ScheduleRepository, locks *orderlock.Registry, cfg SettlementConfig) *SettlementService {
	return &SettlementService{
		orders:   orders,
		ledger:   ledger,
		schedule: schedule,
		locks:    locks,
		cfg:      cfg,
	}
}

// SetHub устанавливает слой уведомлений.
func (s *SettlementService) SetHub(hub Notifier) {
	s.hub = hub
}

// SetMetrics устанавливает счётчики Prometheus.
func (s *SettlementService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// CreateOrder создаёт заказ в ожидании оплаты. Комиссия фиксируется при
// создании по текущей ставке; escrow-сумма — amount + fee.
func (s *SettlementService) CreateOrder(ctx context.Context, buyerID, sellerID uuid.UUID, productRef string, amount int64, idemKey string) (*models.Order, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("сумма заказа должна быть положительной")
	}
	if buyerID == sellerID {
		return nil, fmt.Errorf("покупатель и продавец должны различаться")
	}

	if _, err := s.ledger.GetOrCreateAccount(ctx, buyerID, models.AccountRoleBuyer); err != nil {
		return nil, err
	}
	if _, err := s.ledger.GetOrCreateAccount(ctx, sellerID, models.AccountRoleSeller); err != nil {
		return nil, err
	}

	order := &models.Order{
		BuyerID:    buyerID,
		SellerID:   sellerID,
		ProductRef: productRef,
		Amount:     amount,
		FeeAmount:  models.FeeFor(amount, s.cfg.FeeBps),
		Status:     models.OrderStatusAwaitingPayment,
	}
	if idemKey != "" {
		order.IdempotencyKey = &idemKey
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersCreated.Inc()
	}
	s.notify(order.SellerID, "order.created", order)

	return order, nil
}

// HandleCapture обрабатывает callback платёжного шлюза. Шлюз шлёт его
// at-least-once, поэтому повтор по уже оплаченному заказу — успешный no-op.
// Неуспешный capture — единственная ошибка, которая сама двигает состояние:
// заказ уходит в cancelled.
func (s *SettlementService) HandleCapture(ctx context.Context, orderID uuid.UUID, success bool, idemKey string) (*models.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusAwaitingPayment {
		// Любой статус после оплаты означает, что capture уже применён:
		// повторная доставка webhook — успешный no-op.
		return order, nil
	}

	if !success {
		if err := s.orders.UpdateStatus(ctx, orderID, models.OrderStatusAwaitingPayment, models.OrderStatusCancelled, nil); err != nil {
			return nil, err
		}
		order.Status = models.OrderStatusCancelled
		s.notify(order.BuyerID, "order.cancelled", order)
		s.logFailure(order.ID, idemKey, ErrPaymentCapture)
		return order, ErrPaymentCapture
	}

	if err := s.ledger.Hold(ctx, order.BuyerID, order.EscrowTotal(), orderID, idemKey); err != nil {
		// Перевод отменяется целиком: заказ остаётся в прежнем статусе,
		// вызывающий может повторить с тем же ключом.
		s.logFailure(order.ID, idemKey, err)
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, orderID, models.OrderStatusAwaitingPayment, models.OrderStatusHeld, nil); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusHeld

	s.notify(order.BuyerID, "order.held", order)
	s.notify(order.SellerID, "order.held", order)

	return order, nil
}

// MarkDelivered фиксирует доставку продавцом и ставит таймер автоподтверждения.
func (s *SettlementService) MarkDelivered(ctx context.Context, orderID, sellerID uuid.UUID, idemKey string) (*models.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != sellerID {
		return nil, ErrNotParticipant
	}
	if order.Status == models.OrderStatusDeliveredPending {
		return order, nil
	}
	if order.Status != models.OrderStatusHeld {
		return nil, s.failTransition(order, "invalid_state", ErrInvalidOrderState)
	}

	now := time.Now()
	confirmDeadline := now.Add(s.cfg.ConfirmDeadline)
	disputeDeadline := now.Add(s.cfg.DisputeWindow)
	if err := s.orders.MarkDelivered(ctx, orderID, sellerID, now, confirmDeadline, disputeDeadline); err != nil {
		return nil, err
	}

	if err := s.schedule.Schedule(ctx, orderID, models.ScheduledOpAutoConfirm, confirmDeadline); err != nil {
		return nil, err
	}

	order.Status = models.OrderStatusDeliveredPending
	order.DeliveredAt = &now
	order.ConfirmDeadline = &confirmDeadline
	order.DisputeDeadline = &disputeDeadline

	s.notify(order.BuyerID, "order.delivered", order)

	return order, nil
}

// ConfirmDelivery закрывает заказ выплатой продавцу. auto=true — вызов
// таймера автоподтверждения: для него неподходящее состояние (спор уже
// открыт, заказ уже закрыт) — штатный no-op, а не ошибка.
func (s *SettlementService) ConfirmDelivery(ctx context.Context, orderID, actorID uuid.UUID, auto bool, idemKey string) (*models.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCompleted {
		return order, nil
	}
	if order.Status != models.OrderStatusDeliveredPending {
		if auto {
			return order, nil
		}
		return nil, s.failTransition(order, "invalid_state", ErrInvalidOrderState)
	}
	if !auto && order.BuyerID != actorID {
		return nil, ErrNotParticipant
	}

	var actor *uuid.UUID
	if !auto {
		actor = &actorID
	}

	split := models.ReleaseSplit(order.Amount, order.FeeAmount)
	if err := s.ledger.Settle(ctx, orderID, nil, order.BuyerID, order.SellerID, split, idemKey); err != nil {
		s.logFailure(order.ID, idemKey, err)
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, orderID, models.OrderStatusDeliveredPending, models.OrderStatusCompleted, actor); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusCompleted

	if s.metrics != nil {
		s.metrics.Settlements.WithLabelValues("released").Inc()
	}
	s.notify(order.BuyerID, "order.completed", order)
	s.notify(order.SellerID, "order.completed", order)

	return order, nil
}

// CancelOrder отменяет ещё не оплаченный заказ. После заморозки средств
// отмена возможна только через спор.
func (s *SettlementService) CancelOrder(ctx context.Context, orderID, actorID uuid.UUID, idemKey string) (*models.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID && order.SellerID != actorID {
		return nil, ErrNotParticipant
	}
	if order.Status == models.OrderStatusCancelled {
		return order, nil
	}
	if !models.CanTransitionOrder(order.Status, models.OrderStatusCancelled) {
		return nil, s.failTransition(order, "invalid_state", ErrInvalidOrderState)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, order.Status, models.OrderStatusCancelled, &actorID); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusCancelled

	s.notify(order.BuyerID, "order.cancelled", order)
	s.notify(order.SellerID, "order.cancelled", order)

	return order, nil
}

// GetOrder возвращает снимок заказа участнику или администратору.
func (s *SettlementService) GetOrder(ctx context.Context, orderID, actorID uuid.UUID, isAdmin bool) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.BuyerID != actorID && order.SellerID != actorID {
		return nil, ErrNotParticipant
	}
	return order, nil
}

// ListOrders возвращает заказы пользователя.
func (s *SettlementService) ListOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

// notify шлёт событие пользователю, игнорируя сбои доставки.
func (s *SettlementService) notify(userID uuid.UUID, event string, data any) {
	if s.hub == nil {
		return
	}
	if err := s.hub.BroadcastToUser(userID, event, data); err != nil && logger.Log != nil {
		logger.Log.WithField("event", event).Warnf("settlement: не удалось отправить уведомление: %v", err)
	}
}

// failTransition считает отклонённый переход и возвращает исходную ошибку.
func (s *SettlementService) failTransition(order *models.Order, reason string, err error) error {
	if s.metrics != nil {
		s.metrics.FailedTransitions.WithLabelValues(reason).Inc()
	}
	s.logFailure(order.ID, "", err)
	return err
}

// logFailure пишет неуспешный переход в аудит-лог с ключом идемпотентности.
func (s *SettlementService) logFailure(orderID uuid.UUID, idemKey string, err error) {
	if logger.Log == nil {
		return
	}
	entry := logger.Log.WithField("order_id", orderID)
	if idemKey != "" {
		entry = entry.WithField("idempotency_key", idemKey)
	}
	entry.Warnf("settlement: переход отклонён: %v", err)
}
