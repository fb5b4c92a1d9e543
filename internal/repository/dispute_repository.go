package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var ErrDisputeNotFound = errors.New("dispute not found")

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (order_id, opened_by, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query, d.OrderID, d.OpenedBy, d.Reason, d.Status).
		Scan(&d.ID, &d.CreatedAt)
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

func (r *DisputeRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT * FROM disputes WHERE order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// Resolve закрывает спор решением арбитра. Условие на открытый статус —
// защита от повторного разрешения на уровне хранилища.
func (r *DisputeRepository) Resolve(ctx context.Context, id uuid.UUID, resolution string, resolutionAmount *int64, resolvedBy uuid.UUID) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, resolution = $3, resolution_amount = $4, resolved_by = $5, resolved_at = $6
		WHERE id = $1 AND status = $7
	`, id, models.DisputeStatusResolved, resolution, resolutionAmount, resolvedBy, now, models.DisputeStatusOpen)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

// ListOpen возвращает открытые споры для админ-панели.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status = $1
		ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, models.DisputeStatusOpen, limit, offset)
	return disputes, err
}

// ListByUser возвращает споры по заказам, в которых участвует пользователь.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN orders o ON d.order_id = o.id
		WHERE o.buyer_id = $1 OR o.seller_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}

// AddEvidence прикладывает файл-доказательство к спору.
func (r *DisputeRepository) AddEvidence(ctx context.Context, e *models.DisputeEvidence) error {
	query := `
		INSERT INTO dispute_evidence (dispute_id, uploaded_by, file_path, file_size)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query, e.DisputeID, e.UploadedBy, e.FilePath, e.FileSize).
		Scan(&e.ID, &e.CreatedAt)
}

// ListEvidence возвращает доказательства спора в порядке загрузки.
func (r *DisputeRepository) ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeEvidence, error) {
	var evidence []models.DisputeEvidence
	err := r.db.SelectContext(ctx, &evidence, `
		SELECT * FROM dispute_evidence WHERE dispute_id = $1 ORDER BY created_at ASC
	`, disputeID)
	return evidence, err
}
