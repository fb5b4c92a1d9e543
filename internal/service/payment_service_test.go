package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

func TestPaymentService_GetBalance(t *testing.T) {
	ledger := new(mockLedgerRepo)
	svc := NewPaymentService(ledger)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.Balance{Available: 100000, Held: 10500}
	ledger.On("BalanceOf", ctx, userID).Return(expected, nil)

	balance, err := svc.GetBalance(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, expected, balance)
}

func TestPaymentService_Deposit(t *testing.T) {
	ledger := new(mockLedgerRepo)
	svc := NewPaymentService(ledger)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.LedgerEntry{AvailableDelta: 50000}
	ledger.On("GetOrCreateAccount", ctx, userID, models.AccountRoleBuyer).Return(&models.Account{UserID: userID}, nil)
	ledger.On("Deposit", ctx, userID, int64(50000), "Пополнение баланса", mock.AnythingOfType("string")).Return(expected, nil)

	entry, err := svc.Deposit(ctx, userID, 50000, "", "")
	assert.NoError(t, err)
	assert.Equal(t, expected, entry)
}

// Переданный клиентом ключ идемпотентности доходит до леджера без изменений:
// повтор запроса с тем же ключом попадает в ту же запись idempotency_keys.
func TestPaymentService_Deposit_ForwardsIdempotencyKey(t *testing.T) {
	ledger := new(mockLedgerRepo)
	svc := NewPaymentService(ledger)
	ctx := context.Background()
	userID := uuid.New()

	stored := &models.LedgerEntry{AvailableDelta: 50000}
	ledger.On("GetOrCreateAccount", ctx, userID, models.AccountRoleBuyer).Return(&models.Account{UserID: userID}, nil)
	ledger.On("Deposit", ctx, userID, int64(50000), "Пополнение баланса", "dep-42").Return(stored, nil).Twice()

	first, err := svc.Deposit(ctx, userID, 50000, "", "dep-42")
	assert.NoError(t, err)
	second, err := svc.Deposit(ctx, userID, 50000, "", "dep-42")
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	ledger.AssertExpectations(t)
}

func TestPaymentService_Deposit_InvalidAmount(t *testing.T) {
	ledger := new(mockLedgerRepo)
	svc := NewPaymentService(ledger)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, uuid.New(), 0, "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Deposit(ctx, uuid.New(), -100, "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	ledger.AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_ListTransactions_ClampsPagination(t *testing.T) {
	ledger := new(mockLedgerRepo)
	svc := NewPaymentService(ledger)
	ctx := context.Background()
	userID := uuid.New()

	ledger.On("ListEntries", ctx, userID, 50, 0).Return([]models.LedgerEntry{}, nil)

	_, err := svc.ListTransactions(ctx, userID, 1000, -5)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}
