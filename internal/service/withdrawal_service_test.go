package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

func TestWithdrawalService_Request(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	svc := NewWithdrawalService(repo, 10000)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.Withdrawal{ID: uuid.New(), UserID: userID, Amount: 50000}
	repo.On("Create", ctx, userID, int64(50000), "1234", "Сбербанк", mock.AnythingOfType("string")).Return(expected, nil)

	w, err := svc.Request(ctx, userID, 50000, "1234", "Сбербанк", "")
	assert.NoError(t, err)
	assert.Equal(t, expected, w)
}

// Повтор запроса с тем же ключом идемпотентности доходит до хранилища с тем
// же ключом и возвращает ту же заявку вместо второго списания.
func TestWithdrawalService_Request_IdempotentReplay(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	svc := NewWithdrawalService(repo, 10000)
	ctx := context.Background()
	userID := uuid.New()

	stored := &models.Withdrawal{ID: uuid.New(), UserID: userID, Amount: 50000}
	repo.On("Create", ctx, userID, int64(50000), "1234", "Сбербанк", "wd-7").Return(stored, nil).Twice()

	first, err := svc.Request(ctx, userID, 50000, "1234", "Сбербанк", "wd-7")
	assert.NoError(t, err)
	second, err := svc.Request(ctx, userID, 50000, "1234", "Сбербанк", "wd-7")
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	repo.AssertExpectations(t)
}

func TestWithdrawalService_Request_BelowMinimum(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	svc := NewWithdrawalService(repo, 10000)

	_, err := svc.Request(context.Background(), uuid.New(), 9999, "1234", "Сбербанк", "")
	assert.ErrorIs(t, err, ErrWithdrawalTooSmall)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdrawalService_Request_BadCard(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	svc := NewWithdrawalService(repo, 10000)

	_, err := svc.Request(context.Background(), uuid.New(), 50000, "12", "Сбербанк", "")
	assert.ErrorIs(t, err, ErrInvalidCard)
}

func TestWithdrawalService_ApproveAndReject(t *testing.T) {
	repo := new(mockWithdrawalRepo)
	svc := NewWithdrawalService(repo, 10000)
	ctx := context.Background()
	id := uuid.New()

	completed := &models.Withdrawal{ID: id, Status: models.WithdrawalStatusCompleted}
	repo.On("Complete", ctx, id).Return(nil)
	repo.On("GetByID", ctx, id).Return(completed, nil).Once()

	w, err := svc.Approve(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, w.Status)

	rejected := &models.Withdrawal{ID: id, Status: models.WithdrawalStatusRejected}
	repo.On("Reject", ctx, id, "неверные реквизиты").Return(nil)
	repo.On("GetByID", ctx, id).Return(rejected, nil).Once()

	w, err = svc.Reject(ctx, id, "неверные реквизиты")
	assert.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusRejected, w.Status)
}
