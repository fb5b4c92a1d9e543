package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// ScheduleRepository хранит отложенные операции планировщика. Таблица
// переживает рестарты: таймеры не теряются вместе с процессом.
type ScheduleRepository struct {
	db *sqlx.DB
}

func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Schedule ставит операцию на время runAt. Повторная постановка той же
// операции для заказа сдвигает время, а не создаёт дубликат.
func (r *ScheduleRepository) Schedule(ctx context.Context, orderID uuid.UUID, kind string, runAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_operations (order_id, kind, run_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id, kind) DO UPDATE SET run_at = EXCLUDED.run_at, executed_at = NULL
	`, orderID, kind, runAt)
	if err != nil {
		return fmt.Errorf("schedule repository: schedule %w", err)
	}
	return nil
}

// Due возвращает операции, чьё время пришло и которые ещё не исполнялись.
func (r *ScheduleRepository) Due(ctx context.Context, now time.Time, limit int) ([]models.ScheduledOperation, error) {
	var ops []models.ScheduledOperation
	err := r.db.SelectContext(ctx, &ops, `
		SELECT * FROM scheduled_operations
		WHERE executed_at IS NULL AND run_at <= $1
		ORDER BY run_at ASC LIMIT $2
	`, now, limit)
	return ops, err
}

// MarkExecuted фиксирует исполнение операции.
func (r *ScheduleRepository) MarkExecuted(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_operations SET executed_at = NOW() WHERE id = $1 AND executed_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("schedule repository: mark executed %w", err)
	}
	return nil
}
