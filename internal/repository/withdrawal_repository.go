package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var ErrWithdrawalNotFound = errors.New("withdrawal not found")

type WithdrawalRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create списывает сумму с доступного баланса и создаёт заявку на вывод.
// Списание и заявка — одна транзакция с записью в леджер. Повтор с тем же
// ключом возвращает ранее созданную заявку без второго списания.
func (r *WithdrawalRepository) Create(ctx context.Context, userID uuid.UUID, amount int64, cardLast4, bankName, idemKey string) (*models.Withdrawal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	applied, err := claimIdempotencyKey(ctx, tx, idemKey, "withdrawal.create", nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		var existing models.Withdrawal
		err := r.db.GetContext(ctx, &existing, `SELECT * FROM withdrawals WHERE idempotency_key = $1`, idemKey)
		if err != nil {
			return nil, fmt.Errorf("withdrawal repository: replay lookup %w", err)
		}
		return &existing, nil
	}

	accountID, err := lockAccount(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	var available int64
	if err := tx.GetContext(ctx, &available, `SELECT available FROM accounts WHERE id = $1`, accountID); err != nil {
		return nil, err
	}
	if available < amount {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET available = available - $2, updated_at = NOW() WHERE id = $1
	`, accountID, amount)
	if err != nil {
		return nil, err
	}

	var w models.Withdrawal
	err = tx.GetContext(ctx, &w, `
		INSERT INTO withdrawals (user_id, amount, card_last4, bank_name, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, userID, amount, cardLast4, bankName, idemKey)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, kind, available_delta, idempotency_key, description)
		VALUES ($1, 'withdrawal', $2, $3, 'Вывод средств')
	`, accountID, -amount, w.ID.String())
	if err != nil {
		return nil, err
	}

	return &w, tx.Commit()
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return common.GetByID[models.Withdrawal](ctx, r.db, "withdrawals", id, ErrWithdrawalNotFound)
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	err := r.db.SelectContext(ctx, &withdrawals, `
		SELECT * FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return withdrawals, err
}

// ListPending возвращает заявки, ожидающие решения администратора.
func (r *WithdrawalRepository) ListPending(ctx context.Context, limit, offset int) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	err := r.db.SelectContext(ctx, &withdrawals, `
		SELECT * FROM withdrawals WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, models.WithdrawalStatusPending, limit, offset)
	return withdrawals, err
}

// Complete отмечает заявку выполненной. Средства уже списаны при создании.
func (r *WithdrawalRepository) Complete(ctx context.Context, id uuid.UUID) error {
	return r.updatePending(ctx, id, models.WithdrawalStatusCompleted, nil)
}

// Reject отклоняет заявку и возвращает средства на доступный баланс.
func (r *WithdrawalRepository) Reject(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var w models.Withdrawal
	err = tx.GetContext(ctx, &w, `SELECT * FROM withdrawals WHERE id = $1 AND status = $2 FOR UPDATE`, id, models.WithdrawalStatusPending)
	if err != nil {
		return ErrWithdrawalNotFound
	}

	accountID, err := lockAccount(ctx, tx, w.UserID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET available = available + $2, updated_at = NOW() WHERE id = $1
	`, accountID, w.Amount)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, kind, available_delta, idempotency_key, description)
		VALUES ($1, 'withdrawal', $2, $3, 'Возврат средств за отклонённый вывод')
	`, accountID, w.Amount, w.ID.String()+":reject")
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE withdrawals SET status = $2, rejection_reason = $3, processed_at = $4 WHERE id = $1
	`, id, models.WithdrawalStatusRejected, reason, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *WithdrawalRepository) updatePending(ctx context.Context, id uuid.UUID, status string, reason *string) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = $2, rejection_reason = $3, processed_at = $4
		WHERE id = $1 AND status = $5
	`, id, status, reason, now, models.WithdrawalStatusPending)
	if err != nil {
		return fmt.Errorf("withdrawal repository: update status %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}
