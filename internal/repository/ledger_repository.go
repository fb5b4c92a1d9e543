package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientHeldFunds = errors.New("insufficient held funds")
	ErrAccountNotFound       = errors.New("account not found")
)

// PlatformUserID — фиксированный владелец счёта платформы, на который
// собираются комиссии. Строка создаётся миграцией.
var PlatformUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// LedgerRepository — единственный источник истины по балансам. Все движения
// средств проходят через него: баланс счёта равен сумме дельт его записей.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetOrCreateAccount возвращает счёт пользователя, создаёт если не существует.
func (r *LedgerRepository) GetOrCreateAccount(ctx context.Context, userID uuid.UUID, role string) (*models.Account, error) {
	var account models.Account
	query := `
		INSERT INTO accounts (user_id, role)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING id, user_id, role, available, held, active, created_at, updated_at
	`
	if err := r.db.GetContext(ctx, &account, query, userID, role); err != nil {
		return nil, fmt.Errorf("ledger repository: get or create account %w", err)
	}
	return &account, nil
}

// BalanceOf возвращает текущие балансы счёта пользователя.
func (r *LedgerRepository) BalanceOf(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	var account models.Account
	err := r.db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("ledger repository: balance of %w", err)
	}
	return &models.Balance{UserID: userID, Available: account.Available, Held: account.Held}, nil
}

// Deposit пополняет доступный баланс и пишет запись о внешнем поступлении.
// Повтор с тем же ключом возвращает ранее созданную запись без второго зачисления.
func (r *LedgerRepository) Deposit(ctx context.Context, userID uuid.UUID, amount int64, description, idemKey string) (*models.LedgerEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	applied, err := claimIdempotencyKey(ctx, tx, idemKey, "ledger.deposit", nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		var entry models.LedgerEntry
		err := r.db.GetContext(ctx, &entry, `
			SELECT e.* FROM ledger_entries e
			JOIN accounts a ON a.id = e.account_id
			WHERE a.user_id = $1 AND e.kind = 'deposit' AND e.idempotency_key = $2
		`, userID, idemKey)
		if err != nil {
			return nil, fmt.Errorf("ledger repository: deposit replay lookup %w", err)
		}
		return &entry, nil
	}

	accountID, err := lockAccount(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET available = available + $2, updated_at = NOW() WHERE id = $1
	`, accountID, amount)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: deposit update balance %w", err)
	}

	var entry models.LedgerEntry
	err = tx.GetContext(ctx, &entry, `
		INSERT INTO ledger_entries (account_id, kind, available_delta, idempotency_key, description)
		VALUES ($1, 'deposit', $2, $3, $4)
		RETURNING *
	`, accountID, amount, idemKey, description)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: deposit create entry %w", err)
	}

	return &entry, tx.Commit()
}

// Hold замораживает escrow-сумму покупателя под заказ: total уходит из
// available в held одной транзакцией. Повтор с тем же ключом — no-op.
func (r *LedgerRepository) Hold(ctx context.Context, buyerID uuid.UUID, total int64, orderID uuid.UUID, idemKey string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	applied, err := claimIdempotencyKey(ctx, tx, idemKey, "ledger.hold", &orderID)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	accountID, err := lockAccount(ctx, tx, buyerID)
	if err != nil {
		return err
	}

	var available int64
	if err := tx.GetContext(ctx, &available, `SELECT available FROM accounts WHERE id = $1`, accountID); err != nil {
		return fmt.Errorf("ledger repository: hold read balance %w", err)
	}
	if available < total {
		return ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET available = available - $2, held = held + $2, updated_at = NOW() WHERE id = $1
	`, accountID, total)
	if err != nil {
		return fmt.Errorf("ledger repository: hold update balance %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, order_id, kind, available_delta, held_delta, idempotency_key, description)
		VALUES ($1, $2, 'hold', $3, $4, $5, 'Заморозка средств для заказа')
	`, accountID, orderID, -total, total, idemKey)
	if err != nil {
		return fmt.Errorf("ledger repository: hold create entry %w", err)
	}

	return tx.Commit()
}

// Settle распределяет замороженную escrow-сумму заказа по раскладке split:
// покупателю возврат, продавцу выплата, платформе комиссия. Все записи
// фиксируются одной транзакцией или не фиксируются вовсе.
func (r *LedgerRepository) Settle(ctx context.Context, orderID uuid.UUID, disputeID *uuid.UUID, buyerID, sellerID uuid.UUID, split models.SettlementSplit, idemKey string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	applied, err := claimIdempotencyKey(ctx, tx, idemKey, "ledger.settle", &orderID)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	ids, err := lockAccounts(ctx, tx, buyerID, sellerID, PlatformUserID)
	if err != nil {
		return err
	}
	buyerAcc, sellerAcc, platformAcc := ids[buyerID], ids[sellerID], ids[PlatformUserID]

	total := split.Total()

	var held int64
	if err := tx.GetContext(ctx, &held, `SELECT held FROM accounts WHERE id = $1`, buyerAcc); err != nil {
		return fmt.Errorf("ledger repository: settle read held %w", err)
	}
	if held < total {
		return ErrInsufficientHeldFunds
	}

	// Покупатель: снимаем заморозку целиком, возвращаем его долю.
	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET held = held - $2, available = available + $3, updated_at = NOW() WHERE id = $1
	`, buyerAcc, total, split.BuyerCredit)
	if err != nil {
		return fmt.Errorf("ledger repository: settle update buyer %w", err)
	}

	buyerKind := models.LedgerKindRelease
	if split.BuyerCredit > 0 {
		buyerKind = models.LedgerKindRefund
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, order_id, dispute_id, kind, available_delta, held_delta, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, buyerAcc, orderID, disputeID, buyerKind, split.BuyerCredit, -total, idemKey)
	if err != nil {
		return fmt.Errorf("ledger repository: settle buyer entry %w", err)
	}

	if split.SellerCredit > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE accounts SET available = available + $2, updated_at = NOW() WHERE id = $1
		`, sellerAcc, split.SellerCredit)
		if err != nil {
			return fmt.Errorf("ledger repository: settle update seller %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (account_id, order_id, dispute_id, kind, available_delta, idempotency_key, description)
			VALUES ($1, $2, $3, 'release', $4, $5, 'Получение оплаты за заказ')
		`, sellerAcc, orderID, disputeID, split.SellerCredit, idemKey)
		if err != nil {
			return fmt.Errorf("ledger repository: settle seller entry %w", err)
		}
	}

	if split.PlatformCredit > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE accounts SET available = available + $2, updated_at = NOW() WHERE id = $1
		`, platformAcc, split.PlatformCredit)
		if err != nil {
			return fmt.Errorf("ledger repository: settle update platform %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (account_id, order_id, dispute_id, kind, available_delta, idempotency_key, description)
			VALUES ($1, $2, $3, 'fee', $4, $5, 'Комиссия площадки')
		`, platformAcc, orderID, disputeID, split.PlatformCredit, idemKey)
		if err != nil {
			return fmt.Errorf("ledger repository: settle platform entry %w", err)
		}
	}

	return tx.Commit()
}

// ListEntries возвращает историю движений по счёту пользователя.
func (r *LedgerRepository) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT e.* FROM ledger_entries e
		JOIN accounts a ON a.id = e.account_id
		WHERE a.user_id = $1
		ORDER BY e.created_at DESC, e.id DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return entries, err
}

// claimIdempotencyKey пытается захватить ключ операции. false означает, что
// операция уже была применена и повтор не должен иметь эффекта.
func claimIdempotencyKey(ctx context.Context, tx *sqlx.Tx, key, operation string, orderID *uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, operation, order_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (key, operation) DO NOTHING
	`, key, operation, orderID)
	if err != nil {
		return false, fmt.Errorf("ledger repository: claim idempotency key %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// lockAccount блокирует счёт пользователя строкой FOR UPDATE.
func lockAccount(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (uuid.UUID, error) {
	var accountID uuid.UUID
	err := tx.GetContext(ctx, &accountID, `SELECT id FROM accounts WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrAccountNotFound
		}
		return uuid.Nil, fmt.Errorf("ledger repository: lock account %w", err)
	}
	return accountID, nil
}

// lockAccounts блокирует несколько счетов в фиксированном порядке user_id,
// чтобы параллельные расчёты не ловили взаимные блокировки.
func lockAccounts(ctx context.Context, tx *sqlx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	unique := make([]uuid.UUID, 0, len(userIDs))
	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].String() < unique[j].String() })

	ids := make(map[uuid.UUID]uuid.UUID, len(unique))
	for _, userID := range unique {
		accountID, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		ids[userID] = accountID
	}
	return ids, nil
}
