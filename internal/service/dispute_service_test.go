package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/orderlock"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

func newDisputeService(disputes *mockDisputeRepo, orders *mockOrderRepo, ledger *mockLedgerRepo) *DisputeService {
	return NewDisputeService(disputes, orders, ledger, orderlock.NewRegistry(), 500)
}

func TestDisputeService_Open(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := newDisputeService(disputes, orders, new(mockLedgerRepo))
	ctx := context.Background()

	orderID := uuid.New()
	buyerID := uuid.New()
	stored := &models.Order{ID: orderID, BuyerID: buyerID, SellerID: uuid.New(), Status: models.OrderStatusHeld}

	orders.On("GetByID", ctx, orderID).Return(stored, nil)
	disputes.On("GetByOrderID", ctx, orderID).Return(nil, repository.ErrDisputeNotFound)
	disputes.On("Create", ctx, mock.AnythingOfType("*models.Dispute")).Return(nil)
	orders.On("UpdateStatus", ctx, orderID, models.OrderStatusHeld, models.OrderStatusDisputed, &buyerID).Return(nil)

	dispute, err := svc.Open(ctx, orderID, buyerID, "товар не получен")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
	assert.Equal(t, buyerID, dispute.OpenedBy)
	orders.AssertExpectations(t)
}

func TestDisputeService_Open_DuplicateReturnsExisting(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := newDisputeService(disputes, orders, new(mockLedgerRepo))
	ctx := context.Background()

	orderID := uuid.New()
	buyerID := uuid.New()
	stored := &models.Order{ID: orderID, BuyerID: buyerID, SellerID: uuid.New(), Status: models.OrderStatusDisputed}
	existing := &models.Dispute{ID: uuid.New(), OrderID: orderID, OpenedBy: buyerID, Status: models.DisputeStatusOpen}

	orders.On("GetByID", ctx, orderID).Return(stored, nil)
	disputes.On("GetByOrderID", ctx, orderID).Return(existing, nil)

	dispute, err := svc.Open(ctx, orderID, buyerID, "повторная отправка формы")
	assert.NoError(t, err)
	assert.Equal(t, existing.ID, dispute.ID)
	disputes.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDisputeService_Open_NotParticipant(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := newDisputeService(disputes, orders, new(mockLedgerRepo))
	ctx := context.Background()

	orderID := uuid.New()
	stored := &models.Order{ID: orderID, BuyerID: uuid.New(), SellerID: uuid.New(), Status: models.OrderStatusHeld}
	orders.On("GetByID", ctx, orderID).Return(stored, nil)

	_, err := svc.Open(ctx, orderID, uuid.New(), "чужой заказ")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestDisputeService_Open_WindowClosed(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := newDisputeService(disputes, orders, new(mockLedgerRepo))
	ctx := context.Background()

	orderID := uuid.New()
	buyerID := uuid.New()
	expired := time.Now().Add(-time.Hour)
	stored := &models.Order{
		ID: orderID, BuyerID: buyerID, SellerID: uuid.New(),
		Status: models.OrderStatusDeliveredPending, DisputeDeadline: &expired,
	}

	orders.On("GetByID", ctx, orderID).Return(stored, nil)
	disputes.On("GetByOrderID", ctx, orderID).Return(nil, repository.ErrDisputeNotFound)

	_, err := svc.Open(ctx, orderID, buyerID, "слишком поздно")
	assert.ErrorIs(t, err, ErrDisputeWindowClosed)
}

func TestDisputeService_Open_TerminalOrder(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := newDisputeService(disputes, orders, new(mockLedgerRepo))
	ctx := context.Background()

	orderID := uuid.New()
	buyerID := uuid.New()
	stored := &models.Order{ID: orderID, BuyerID: buyerID, SellerID: uuid.New(), Status: models.OrderStatusCompleted}

	orders.On("GetByID", ctx, orderID).Return(stored, nil)
	disputes.On("GetByOrderID", ctx, orderID).Return(nil, repository.ErrDisputeNotFound)

	_, err := svc.Open(ctx, orderID, buyerID, "заказ уже закрыт")
	assert.ErrorIs(t, err, ErrInvalidOrderState)
}

func TestDisputeService_Resolve_FullRefund(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	ledger := new(mockLedgerRepo)
	svc := newDisputeService(disputes, orders, ledger)
	ctx := context.Background()

	orderID := uuid.New()
	disputeID := uuid.New()
	buyerID := uuid.New()
	sellerID := uuid.New()
	adminID := uuid.New()

	dispute := &models.Dispute{ID: disputeID, OrderID: orderID, Status: models.DisputeStatusOpen}
	order := &models.Order{
		ID: orderID, BuyerID: buyerID, SellerID: sellerID,
		Amount: 10000, FeeAmount: 500, Status: models.OrderStatusDisputed,
	}

	// Полный возврат: покупатель получает всю замороженную сумму с комиссией.
	expectedSplit := models.SettlementSplit{BuyerCredit: 10500}

	disputes.On("GetByID", ctx, disputeID).Return(dispute, nil)
	orders.On("GetByID", ctx, orderID).Return(order, nil)
	ledger.On("Settle", ctx, orderID, &disputeID, buyerID, sellerID, expectedSplit, "idem").Return(nil)
	disputes.On("Resolve", ctx, disputeID, models.ResolutionRefundBuyer, (*int64)(nil), adminID).Return(nil)
	orders.On("UpdateStatus", ctx, orderID, models.OrderStatusDisputed, models.OrderStatusCompleted, &adminID).Return(nil)

	resolved, err := svc.Resolve(ctx, disputeID, models.ResolutionRefundBuyer, nil, adminID, "idem")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, resolved.Status)
	ledger.AssertExpectations(t)
}

func TestDisputeService_Resolve_PartialRefund(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	ledger := new(mockLedgerRepo)
	svc := newDisputeService(disputes, orders, ledger)
	ctx := context.Background()

	orderID := uuid.New()
	disputeID := uuid.New()
	buyerID := uuid.New()
	sellerID := uuid.New()
	adminID := uuid.New()
	partial := int64(2000)

	dispute := &models.Dispute{ID: disputeID, OrderID: orderID, Status: models.DisputeStatusOpen}
	order := &models.Order{
		ID: orderID, BuyerID: buyerID, SellerID: sellerID,
		Amount: 10000, FeeAmount: 500, Status: models.OrderStatusDisputed,
	}

	// Покупателю ровно 2000; продавцу 8000 минус комиссия 400; остаток платформе.
	expectedSplit := models.SettlementSplit{BuyerCredit: 2000, SellerCredit: 7600, PlatformCredit: 900}

	disputes.On("GetByID", ctx, disputeID).Return(dispute, nil)
	orders.On("GetByID", ctx, orderID).Return(order, nil)
	ledger.On("Settle", ctx, orderID, &disputeID, buyerID, sellerID, expectedSplit, "idem").Return(nil)
	disputes.On("Resolve", ctx, disputeID, models.ResolutionPartialRefund, &partial, adminID).Return(nil)
	orders.On("UpdateStatus", ctx, orderID, models.OrderStatusDisputed, models.OrderStatusCompleted, &adminID).Return(nil)

	resolved, err := svc.Resolve(ctx, disputeID, models.ResolutionPartialRefund, &partial, adminID, "idem")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, resolved.Status)
	assert.Equal(t, partial, *resolved.ResolutionAmount)
	ledger.AssertExpectations(t)
}

func TestDisputeService_Resolve_InvalidPartialAmount(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := newDisputeService(disputes, orders, new(mockLedgerRepo))
	ctx := context.Background()

	orderID := uuid.New()
	disputeID := uuid.New()
	dispute := &models.Dispute{ID: disputeID, OrderID: orderID, Status: models.DisputeStatusOpen}
	order := &models.Order{ID: orderID, Amount: 10000, FeeAmount: 500, Status: models.OrderStatusDisputed}

	disputes.On("GetByID", ctx, disputeID).Return(dispute, nil)
	orders.On("GetByID", ctx, orderID).Return(order, nil)

	for _, amount := range []int64{0, -100, 10000, 20000} {
		a := amount
		_, err := svc.Resolve(ctx, disputeID, models.ResolutionPartialRefund, &a, uuid.New(), "idem")
		assert.ErrorIs(t, err, ErrInvalidResolutionAmount, "amount=%d", amount)
	}

	_, err := svc.Resolve(ctx, disputeID, models.ResolutionPartialRefund, nil, uuid.New(), "idem")
	assert.ErrorIs(t, err, ErrInvalidResolutionAmount)
}

func TestDisputeService_Resolve_UnknownDecision(t *testing.T) {
	disputes := new(mockDisputeRepo)
	svc := newDisputeService(disputes, new(mockOrderRepo), new(mockLedgerRepo))
	ctx := context.Background()

	disputeID := uuid.New()
	dispute := &models.Dispute{ID: disputeID, OrderID: uuid.New(), Status: models.DisputeStatusOpen}
	disputes.On("GetByID", ctx, disputeID).Return(dispute, nil)

	_, err := svc.Resolve(ctx, disputeID, "split_the_difference", nil, uuid.New(), "idem")
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestDisputeService_Resolve_IdempotentReplay(t *testing.T) {
	disputes := new(mockDisputeRepo)
	ledger := new(mockLedgerRepo)
	svc := newDisputeService(disputes, new(mockOrderRepo), ledger)
	ctx := context.Background()

	disputeID := uuid.New()
	resolution := models.ResolutionRefundBuyer
	dispute := &models.Dispute{
		ID: disputeID, OrderID: uuid.New(),
		Status: models.DisputeStatusResolved, Resolution: &resolution,
	}
	disputes.On("GetByID", ctx, disputeID).Return(dispute, nil)

	// Повтор с тем же решением — успех без повторных проводок.
	resolved, err := svc.Resolve(ctx, disputeID, models.ResolutionRefundBuyer, nil, uuid.New(), "idem")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, resolved.Status)
	ledger.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// Повтор с другим решением — конфликт: решение не пере-принимается.
	_, err = svc.Resolve(ctx, disputeID, models.ResolutionCloseNoRefund, nil, uuid.New(), "idem")
	assert.ErrorIs(t, err, ErrDisputeAlreadyResolved)
}

func TestDisputeService_AttachEvidence(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := newDisputeService(disputes, orders, new(mockLedgerRepo))
	ctx := context.Background()

	orderID := uuid.New()
	disputeID := uuid.New()
	buyerID := uuid.New()
	dispute := &models.Dispute{ID: disputeID, OrderID: orderID, Status: models.DisputeStatusOpen}
	order := &models.Order{ID: orderID, BuyerID: buyerID, SellerID: uuid.New()}

	disputes.On("GetByID", ctx, disputeID).Return(dispute, nil)
	orders.On("GetByID", ctx, orderID).Return(order, nil)
	disputes.On("AddEvidence", ctx, mock.AnythingOfType("*models.DisputeEvidence")).Return(nil)

	evidence, err := svc.AttachEvidence(ctx, disputeID, buyerID, "dispute/file.png", 1024)
	assert.NoError(t, err)
	assert.Equal(t, buyerID, evidence.UploadedBy)

	// Посторонний не может прикладывать доказательства.
	_, err = svc.AttachEvidence(ctx, disputeID, uuid.New(), "dispute/file.png", 1024)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestDisputeService_AttachEvidence_ResolvedDispute(t *testing.T) {
	disputes := new(mockDisputeRepo)
	svc := newDisputeService(disputes, new(mockOrderRepo), new(mockLedgerRepo))
	ctx := context.Background()

	disputeID := uuid.New()
	dispute := &models.Dispute{ID: disputeID, OrderID: uuid.New(), Status: models.DisputeStatusResolved}
	disputes.On("GetByID", ctx, disputeID).Return(dispute, nil)

	_, err := svc.AttachEvidence(ctx, disputeID, uuid.New(), "dispute/file.png", 1024)
	assert.ErrorIs(t, err, ErrEvidenceNotAllowed)
}

func TestDisputeService_GetByOrder_Access(t *testing.T) {
	disputes := new(mockDisputeRepo)
	orders := new(mockOrderRepo)
	svc := newDisputeService(disputes, orders, new(mockLedgerRepo))
	ctx := context.Background()

	orderID := uuid.New()
	buyerID := uuid.New()
	order := &models.Order{ID: orderID, BuyerID: buyerID, SellerID: uuid.New(), Status: models.OrderStatusDisputed}
	dispute := &models.Dispute{ID: uuid.New(), OrderID: orderID, OpenedBy: buyerID, Status: models.DisputeStatusOpen}

	orders.On("GetByID", ctx, orderID).Return(order, nil)
	disputes.On("GetByOrderID", ctx, orderID).Return(dispute, nil)
	disputes.On("ListEvidence", ctx, dispute.ID).Return([]models.DisputeEvidence{}, nil)

	got, err := svc.GetByOrder(ctx, orderID, buyerID, false)
	assert.NoError(t, err)
	assert.Equal(t, dispute.ID, got.ID)

	_, err = svc.GetByOrder(ctx, orderID, uuid.New(), false)
	assert.ErrorIs(t, err, ErrNotParticipant)
	disputes.AssertNumberOfCalls(t, "GetByOrderID", 1)

	_, err = svc.GetByOrder(ctx, orderID, uuid.New(), true)
	assert.NoError(t, err)
}
