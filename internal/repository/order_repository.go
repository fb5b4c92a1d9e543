package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrConcurrencyConflict = errors.New("order was modified concurrently")
)

type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create сохраняет новый заказ и заполняет сгенерированные поля. Повтор с
// тем же ключом идемпотентности возвращает уже созданный заказ.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	if o.IdempotencyKey != nil {
		existing, err := r.GetByIdempotencyKey(ctx, *o.IdempotencyKey)
		if err == nil {
			*o = *existing
			return nil
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return err
		}
	}

	query := `
		INSERT INTO orders (buyer_id, seller_id, product_ref, amount, fee_amount, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, o.BuyerID, o.SellerID, o.ProductRef, o.Amount, o.FeeAmount, o.Status, o.IdempotencyKey).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) && o.IdempotencyKey != nil {
		// Гонка двух одинаковых запросов: заказ уже вставлен конкурентом.
		existing, getErr := r.GetByIdempotencyKey(ctx, *o.IdempotencyKey)
		if getErr != nil {
			return getErr
		}
		*o = *existing
		return nil
	}
	if err != nil {
		return fmt.Errorf("order repository: create %w", err)
	}
	return nil
}

// GetByIdempotencyKey находит заказ по ключу идемпотентности создания.
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return common.GetByField[models.Order](ctx, r.db, "orders", "idempotency_key", key, ErrOrderNotFound)
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return common.GetByID[models.Order](ctx, r.db, "orders", id, ErrOrderNotFound)
}

// UpdateStatus переводит заказ из from в to и пишет переход в журнал одной
// транзакцией. Условие на старый статус — защитная проверка: при гонке
// затрагивается ноль строк и возвращается ErrConcurrencyConflict, а не
// молчаливая потеря перехода. actor пуст для системных переходов.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, actor *uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("order repository: begin tx %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("order repository: update status %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConcurrencyConflict
	}

	if err := recordTransition(ctx, tx, id, actor, from, to); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkDelivered фиксирует доставку и запускает дедлайны подтверждения и спора.
func (r *OrderRepository) MarkDelivered(ctx context.Context, id, sellerID uuid.UUID, deliveredAt, confirmDeadline, disputeDeadline time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("order repository: begin tx %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, delivered_at = $3, confirm_deadline = $4, dispute_deadline = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6
	`, id, models.OrderStatusDeliveredPending, deliveredAt, confirmDeadline, disputeDeadline, models.OrderStatusHeld)
	if err != nil {
		return fmt.Errorf("order repository: mark delivered %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConcurrencyConflict
	}

	if err := recordTransition(ctx, tx, id, &sellerID, models.OrderStatusHeld, models.OrderStatusDeliveredPending); err != nil {
		return err
	}
	return tx.Commit()
}

func recordTransition(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, actor *uuid.UUID, from, to string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, actor_id, from_status, to_status)
		VALUES ($1, $2, $3, $4)
	`, orderID, actor, from, to)
	if err != nil {
		return fmt.Errorf("order repository: record transition %w", err)
	}
	return nil
}

// ListByUser возвращает заказы, где пользователь — покупатель или продавец.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return orders, err
}
