package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

type mockLedgerRepo struct {
	mock.Mock
}

func (m *mockLedgerRepo) GetOrCreateAccount(ctx context.Context, userID uuid.UUID, role string) (*models.Account, error) {
	args := m.Called(ctx, userID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *mockLedgerRepo) BalanceOf(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Balance), args.Error(1)
}

func (m *mockLedgerRepo) Deposit(ctx context.Context, userID uuid.UUID, amount int64, description, idemKey string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, userID, amount, description, idemKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *mockLedgerRepo) Hold(ctx context.Context, buyerID uuid.UUID, total int64, orderID uuid.UUID, idemKey string) error {
	args := m.Called(ctx, buyerID, total, orderID, idemKey)
	return args.Error(0)
}

func (m *mockLedgerRepo) Settle(ctx context.Context, orderID uuid.UUID, disputeID *uuid.UUID, buyerID, sellerID uuid.UUID, split models.SettlementSplit, idemKey string) error {
	args := m.Called(ctx, orderID, disputeID, buyerID, sellerID, split, idemKey)
	return args.Error(0)
}

func (m *mockLedgerRepo) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) Create(ctx context.Context, o *models.Order) error {
	args := m.Called(ctx, o)
	if args.Error(0) == nil && o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, actor *uuid.UUID) error {
	args := m.Called(ctx, id, from, to, actor)
	return args.Error(0)
}

func (m *mockOrderRepo) MarkDelivered(ctx context.Context, id, sellerID uuid.UUID, deliveredAt, confirmDeadline, disputeDeadline time.Time) error {
	args := m.Called(ctx, id, sellerID, deliveredAt, confirmDeadline, disputeDeadline)
	return args.Error(0)
}

func (m *mockOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

type mockScheduleRepo struct {
	mock.Mock
}

func (m *mockScheduleRepo) Schedule(ctx context.Context, orderID uuid.UUID, kind string, runAt time.Time) error {
	args := m.Called(ctx, orderID, kind, runAt)
	return args.Error(0)
}

type mockDisputeRepo struct {
	mock.Mock
}

func (m *mockDisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	args := m.Called(ctx, d)
	if args.Error(0) == nil && d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) Resolve(ctx context.Context, id uuid.UUID, resolution string, resolutionAmount *int64, resolvedBy uuid.UUID) error {
	args := m.Called(ctx, id, resolution, resolutionAmount, resolvedBy)
	return args.Error(0)
}

func (m *mockDisputeRepo) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) AddEvidence(ctx context.Context, e *models.DisputeEvidence) error {
	args := m.Called(ctx, e)
	if args.Error(0) == nil && e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockDisputeRepo) ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeEvidence, error) {
	args := m.Called(ctx, disputeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DisputeEvidence), args.Error(1)
}

type mockWithdrawalRepo struct {
	mock.Mock
}

func (m *mockWithdrawalRepo) Create(ctx context.Context, userID uuid.UUID, amount int64, cardLast4, bankName, idemKey string) (*models.Withdrawal, error) {
	args := m.Called(ctx, userID, amount, cardLast4, bankName, idemKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) ListPending(ctx context.Context, limit, offset int) ([]models.Withdrawal, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Withdrawal), args.Error(1)
}

func (m *mockWithdrawalRepo) Complete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockWithdrawalRepo) Reject(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}
