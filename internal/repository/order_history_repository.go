package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// OrderHistoryRepository ведёт журнал переходов статусов заказа.
type OrderHistoryRepository struct {
	db *sqlx.DB
}

func NewOrderHistoryRepository(db *sqlx.DB) *OrderHistoryRepository {
	return &OrderHistoryRepository{db: db}
}

// Add записывает переход статуса. Журнал append-only.
func (r *OrderHistoryRepository) Add(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID, from, to string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, actor_id, from_status, to_status)
		VALUES ($1, $2, $3, $4)
	`, orderID, actorID, from, to)
	if err != nil {
		return fmt.Errorf("order history repository: add %w", err)
	}
	return nil
}

// ListByOrder возвращает переходы заказа в хронологическом порядке.
func (r *OrderHistoryRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusChange, error) {
	var history []models.OrderStatusChange
	err := r.db.SelectContext(ctx, &history, `
		SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order history repository: list %w", err)
	}
	return history, nil
}
