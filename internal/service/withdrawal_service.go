package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

var (
	ErrWithdrawalTooSmall = errors.New("withdrawal amount below minimum")
	ErrInvalidCard        = errors.New("card details are invalid")
)

// WithdrawalRepository — контракт хранилища заявок на вывод.
type WithdrawalRepository interface {
	Create(ctx context.Context, userID uuid.UUID, amount int64, cardLast4, bankName, idemKey string) (*models.Withdrawal, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.Withdrawal, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Reject(ctx context.Context, id uuid.UUID, reason string) error
}

// WithdrawalService — вывод средств с доступного баланса. Заявка создаётся
// сразу со списанием: средства не могут быть потрачены дважды, отклонение
// возвращает их обратно.
type WithdrawalService struct {
	withdrawals WithdrawalRepository
	minAmount   int64
}

func NewWithdrawalService(withdrawals WithdrawalRepository, minAmount int64) *WithdrawalService {
	return &WithdrawalService{withdrawals: withdrawals, minAmount: minAmount}
}

// Request создаёт заявку на вывод и списывает сумму с доступного баланса.
// Повтор с тем же ключом идемпотентности возвращает существующую заявку.
func (s *WithdrawalService) Request(ctx context.Context, userID uuid.UUID, amount int64, cardLast4, bankName, idemKey string) (*models.Withdrawal, error) {
	if amount < s.minAmount {
		return nil, ErrWithdrawalTooSmall
	}
	if len(cardLast4) != 4 {
		return nil, ErrInvalidCard
	}
	if idemKey == "" {
		idemKey = uuid.NewString()
	}
	return s.withdrawals.Create(ctx, userID, amount, cardLast4, bankName, idemKey)
}

// Approve помечает заявку исполненной. Вызывается админом после фактического
// перевода на карту.
func (s *WithdrawalService) Approve(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	if err := s.withdrawals.Complete(ctx, id); err != nil {
		return nil, err
	}
	return s.withdrawals.GetByID(ctx, id)
}

// Reject отклоняет заявку и возвращает сумму на доступный баланс.
func (s *WithdrawalService) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Withdrawal, error) {
	if err := s.withdrawals.Reject(ctx, id, reason); err != nil {
		return nil, err
	}
	return s.withdrawals.GetByID(ctx, id)
}

// ListByUser возвращает заявки пользователя.
func (s *WithdrawalService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	return s.withdrawals.ListByUser(ctx, userID, limit, offset)
}

// ListPending возвращает заявки в ожидании для админ-панели.
func (s *WithdrawalService) ListPending(ctx context.Context, limit, offset int) ([]models.Withdrawal, error) {
	return s.withdrawals.ListPending(ctx, limit, offset)
}
