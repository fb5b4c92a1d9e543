package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/metrics"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/orderlock"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

var (
	ErrDisputeAlreadyOpen      = errors.New("dispute already open for this order")
	ErrDisputeAlreadyResolved  = errors.New("dispute already resolved")
	ErrInvalidResolution       = errors.New("unknown dispute resolution")
	ErrInvalidResolutionAmount = errors.New("partial refund amount out of range")
	ErrDisputeWindowClosed     = errors.New("dispute window has closed")
	ErrEvidenceNotAllowed      = errors.New("evidence can be attached to open disputes only")
)

// DisputeRepository — контракт хранилища споров.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	Resolve(ctx context.Context, id uuid.UUID, resolution string, resolutionAmount *int64, resolvedBy uuid.UUID) error
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	AddEvidence(ctx context.Context, e *models.DisputeEvidence) error
	ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeEvidence, error)
}

// DisputeService — движок арбитража: открывает споры, применяет решения и
// проводит терминальные движения по леджеру. Разделяет per-order блокировки
// с SettlementService, поэтому спор и расчёт по одному заказу не пересекаются.
type DisputeService struct {
	disputes DisputeRepository
	orders   OrderRepository
	ledger   LedgerRepository
	locks    *orderlock.Registry
	hub      Notifier
	metrics  *metrics.Metrics
	feeBps   int64
}

func NewDisputeService(disputes DisputeRepository, orders OrderRepository, ledger LedgerRepository, locks *orderlock.Registry, feeBps int64) *DisputeService {
	return &DisputeService{
		disputes: disputes,
		orders:   orders,
		ledger:   ledger,
		locks:    locks,
		feeBps:   feeBps,
	}
}

// SetHub устанавливает слой уведомлений.
func (s *DisputeService) SetHub(hub Notifier) {
	s.hub = hub
}

// SetMetrics устанавливает счётчики Prometheus.
func (s *DisputeService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Open открывает спор по заказу. Повторное открытие возвращает существующий
// спор: дубликаты сабмитов клиента не плодят споров. Открытый спор
// замораживает таймер автоподтверждения — он увидит статус disputed и выйдет.
func (s *DisputeService) Open(ctx context.Context, orderID, openedBy uuid.UUID, reason string) (*models.Dispute, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != openedBy && order.SellerID != openedBy {
		return nil, ErrNotParticipant
	}

	existing, err := s.disputes.GetByOrderID(ctx, orderID)
	if err == nil {
		// Идемпотентный повтор. Если предыдущий вызов упал между созданием
		// спора и сменой статуса заказа, доводим переход до конца.
		if order.Status != models.OrderStatusDisputed && models.IsDisputableOrderStatus(order.Status) {
			if err := s.orders.UpdateStatus(ctx, orderID, order.Status, models.OrderStatusDisputed, &openedBy); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrDisputeNotFound) {
		return nil, err
	}

	if !models.IsDisputableOrderStatus(order.Status) {
		return nil, ErrInvalidOrderState
	}
	if order.DisputeDeadline != nil && time.Now().After(*order.DisputeDeadline) {
		return nil, ErrDisputeWindowClosed
	}

	dispute := &models.Dispute{
		OrderID:  orderID,
		OpenedBy: openedBy,
		Reason:   reason,
		Status:   models.DisputeStatusOpen,
	}
	if err := s.disputes.Create(ctx, dispute); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, orderID, order.Status, models.OrderStatusDisputed, &openedBy); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DisputesOpened.Inc()
	}
	s.notify(order.BuyerID, "dispute.opened", dispute)
	s.notify(order.SellerID, "dispute.opened", dispute)

	return dispute, nil
}

// Resolve применяет решение арбитра и проводит терминальный расчёт.
// Решение — дорога в один конец: повтор с тем же решением возвращает успех
// без повторных проводок, повтор с другим — ErrDisputeAlreadyResolved.
// Откат возможен только новой корректирующей транзакцией, не пере-решением.
func (s *DisputeService) Resolve(ctx context.Context, disputeID uuid.UUID, decision string, partialAmount *int64, resolvedBy uuid.UUID, idemKey string) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(dispute.OrderID)
	defer unlock()

	// Перечитываем под блокировкой: спор мог быть разрешён конкурентом.
	dispute, err = s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	if !models.ValidResolution(decision) {
		return nil, ErrInvalidResolution
	}

	if dispute.Status == models.DisputeStatusResolved {
		if dispute.Resolution != nil && *dispute.Resolution == decision && equalAmounts(dispute.ResolutionAmount, partialAmount) {
			return dispute, nil
		}
		return nil, ErrDisputeAlreadyResolved
	}

	order, err := s.orders.GetByID(ctx, dispute.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusDisputed {
		return nil, ErrInvalidOrderState
	}

	var split models.SettlementSplit
	var storedAmount *int64
	switch decision {
	case models.ResolutionRefundBuyer:
		split = models.RefundSplit(order.Amount, order.FeeAmount)
	case models.ResolutionCloseNoRefund:
		split = models.ReleaseSplit(order.Amount, order.FeeAmount)
	case models.ResolutionPartialRefund:
		if partialAmount == nil || *partialAmount <= 0 || *partialAmount >= order.Amount {
			return nil, ErrInvalidResolutionAmount
		}
		split = models.PartialSplit(order.Amount, order.FeeAmount, *partialAmount, s.feeBps)
		storedAmount = partialAmount
	}

	if err := s.ledger.Settle(ctx, order.ID, &dispute.ID, order.BuyerID, order.SellerID, split, idemKey); err != nil {
		if logger.Log != nil {
			logger.Log.WithField("order_id", order.ID).WithField("idempotency_key", idemKey).
				Warnf("dispute: расчёт по решению не прошёл: %v", err)
		}
		return nil, err
	}
	if err := s.disputes.Resolve(ctx, disputeID, decision, storedAmount, resolvedBy); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, models.OrderStatusDisputed, models.OrderStatusCompleted, &resolvedBy); err != nil {
		return nil, err
	}

	now := time.Now()
	dispute.Status = models.DisputeStatusResolved
	dispute.Resolution = &decision
	dispute.ResolutionAmount = storedAmount
	dispute.ResolvedBy = &resolvedBy
	dispute.ResolvedAt = &now

	if s.metrics != nil {
		s.metrics.DisputesResolved.WithLabelValues(decision).Inc()
		s.metrics.Settlements.WithLabelValues(decision).Inc()
	}
	s.notify(order.BuyerID, "dispute.resolved", dispute)
	s.notify(order.SellerID, "dispute.resolved", dispute)

	return dispute, nil
}

// GetByOrder возвращает спор по заказу вместе с доказательствами.
// Доступен только участникам заказа и администраторам.
func (s *DisputeService) GetByOrder(ctx context.Context, orderID, actorID uuid.UUID, isAdmin bool) (*models.Dispute, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.BuyerID != actorID && order.SellerID != actorID {
		return nil, ErrNotParticipant
	}

	dispute, err := s.disputes.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	evidence, err := s.disputes.ListEvidence(ctx, dispute.ID)
	if err != nil {
		return nil, err
	}
	dispute.Evidence = evidence
	return dispute, nil
}

// ListOpen возвращает открытые споры для админ-панели.
func (s *DisputeService) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	return s.disputes.ListOpen(ctx, limit, offset)
}

// ListUserDisputes возвращает споры пользователя.
func (s *DisputeService) ListUserDisputes(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}

// AttachEvidence прикладывает файл к открытому спору участника.
func (s *DisputeService) AttachEvidence(ctx context.Context, disputeID, uploadedBy uuid.UUID, filePath string, fileSize int64) (*models.DisputeEvidence, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeStatusOpen {
		return nil, ErrEvidenceNotAllowed
	}

	order, err := s.orders.GetByID(ctx, dispute.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != uploadedBy && order.SellerID != uploadedBy {
		return nil, ErrNotParticipant
	}

	evidence := &models.DisputeEvidence{
		DisputeID:  disputeID,
		UploadedBy: uploadedBy,
		FilePath:   filePath,
		FileSize:   fileSize,
	}
	if err := s.disputes.AddEvidence(ctx, evidence); err != nil {
		return nil, err
	}
	return evidence, nil
}

func (s *DisputeService) notify(userID uuid.UUID, event string, data any) {
	if s.hub == nil {
		return
	}
	if err := s.hub.BroadcastToUser(userID, event, data); err != nil && logger.Log != nil {
		logger.Log.WithField("event", event).Warnf("dispute: не удалось отправить уведомление: %v", err)
	}
}

func equalAmounts(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
