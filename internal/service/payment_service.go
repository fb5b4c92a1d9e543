package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

var ErrInvalidAmount = errors.New("amount must be positive")

// PaymentService — баланс и история движений по счёту пользователя.
type PaymentService struct {
	ledger LedgerRepository
}

func NewPaymentService(ledger LedgerRepository) *PaymentService {
	return &PaymentService{ledger: ledger}
}

// GetBalance возвращает доступный и замороженный балансы пользователя.
func (s *PaymentService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	return s.ledger.BalanceOf(ctx, userID)
}

// Deposit пополняет доступный баланс. Суммы в копейках. Повтор с тем же
// ключом идемпотентности не создаёт второго зачисления.
func (s *PaymentService) Deposit(ctx context.Context, userID uuid.UUID, amount int64, description, idemKey string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = "Пополнение баланса"
	}
	if idemKey == "" {
		idemKey = uuid.NewString()
	}
	if _, err := s.ledger.GetOrCreateAccount(ctx, userID, models.AccountRoleBuyer); err != nil {
		return nil, err
	}
	return s.ledger.Deposit(ctx, userID, amount, description, idemKey)
}

// ListTransactions возвращает историю проводок пользователя, новые сверху.
func (s *PaymentService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.ListEntries(ctx, userID, limit, offset)
}
