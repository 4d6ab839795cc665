package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	GetByRef(ctx context.Context, ref string) (*domain.Transaction, error)
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)
	UpdateRef(ctx context.Context, id int64, newRef string) error

	// TransitionStatus conditionally moves the transaction identified by ref
	// from any status in `from` to `to`, and reports whether the transition
	// was actually applied. This conditional update is the sole idempotency
	// guard: of N concurrent confirmation attempts for one ref, exactly one
	// observes applied == true.
	TransitionStatus(ctx context.Context, tx pgx.Tx, ref string, from []domain.TransactionStatus, to domain.TransactionStatus, description string) (bool, error)

	// ListStuckWithdrawals returns withdrawals still processing whose last
	// update is older than cutoff; input to the reconciliation sweep.
	ListStuckWithdrawals(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Transaction, error)
}

type transactionRepo struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) TransactionRepository {
	return &transactionRepo{db: db}
}

const transactionColumns = `
	id, user_id, shipment_id, gross_amount, net_amount, commission_amount,
	type, status, transaction_ref, method, description, created_at, updated_at
`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.ShipmentID,
		&t.GrossAmount,
		&t.NetAmount,
		&t.CommissionAmount,
		&t.Type,
		&t.Status,
		&t.TransactionRef,
		&t.Method,
		&t.Description,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			user_id, shipment_id, gross_amount, net_amount, commission_amount,
			type, status, transaction_ref, method, description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	var row pgx.Row
	if tx != nil {
		row = tx.QueryRow(ctx, query,
			t.UserID, t.ShipmentID, t.GrossAmount, t.NetAmount, t.CommissionAmount,
			t.Type, t.Status, t.TransactionRef, t.Method, t.Description)
	} else {
		row = r.db.QueryRow(ctx, query,
			t.UserID, t.ShipmentID, t.GrossAmount, t.NetAmount, t.CommissionAmount,
			t.Type, t.Status, t.TransactionRef, t.Method, t.Description)
	}

	if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) GetByRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_ref = $1`

	t, err := scanTransaction(r.db.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by ref: %w", err)
	}
	return t, nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}
	return t, nil
}

func (r *transactionRepo) UpdateRef(ctx context.Context, id int64, newRef string) error {
	query := `
		UPDATE transactions
		SET transaction_ref = $1, updated_at = NOW()
		WHERE id = $2
	`
	tag, err := r.db.Exec(ctx, query, newRef, id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("failed to update transaction ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *transactionRepo) TransitionStatus(ctx context.Context, tx pgx.Tx, ref string, from []domain.TransactionStatus, to domain.TransactionStatus, description string) (bool, error) {
	query := `
		UPDATE transactions
		SET status = $1,
		    description = CASE WHEN $2 <> '' THEN $2 ELSE description END,
		    updated_at = NOW()
		WHERE transaction_ref = $3
		  AND status = ANY($4)
	`

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	var affected int64
	if tx != nil {
		tag, err := tx.Exec(ctx, query, to, description, ref, statuses)
		if err != nil {
			return false, fmt.Errorf("failed to transition transaction status: %w", err)
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := r.db.Exec(ctx, query, to, description, ref, statuses)
		if err != nil {
			return false, fmt.Errorf("failed to transition transaction status: %w", err)
		}
		affected = tag.RowsAffected()
	}
	return affected > 0, nil
}

func (r *transactionRepo) ListStuckWithdrawals(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE type = $1 AND status = $2 AND updated_at < $3
		ORDER BY updated_at
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, domain.TxTypeWithdrawal, domain.TxStatusProcessing, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck withdrawals: %w", err)
	}
	defer rows.Close()

	var stuck []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stuck withdrawal: %w", err)
		}
		stuck = append(stuck, t)
	}
	return stuck, rows.Err()
}
