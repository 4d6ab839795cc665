package repository

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type WalletRepository interface {
	// Get returns the wallet for userID, creating it with a zero balance on
	// first access. Creation is idempotent under concurrent first reads.
	Get(ctx context.Context, userID string) (*domain.Wallet, error)

	// Credit adds amount to the wallet inside tx, creating the wallet if it
	// does not exist yet. Never fails on balance grounds.
	Credit(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error

	// Debit subtracts amount inside tx. The row is locked, the balance check
	// and the update happen in one indivisible step; a balance below amount
	// fails with domain.ErrInsufficientFunds and mutates nothing.
	Debit(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error
}

type walletRepo struct {
	db *pgxpool.Pool
}

func NewWalletRepository(db *pgxpool.Pool) WalletRepository {
	return &walletRepo{db: db}
}

func (r *walletRepo) Get(ctx context.Context, userID string) (*domain.Wallet, error) {
	// Upsert-style lazy creation: concurrent first access never creates two rows.
	insert := `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insert, userID); err != nil {
		return nil, fmt.Errorf("failed to ensure wallet exists: %w", err)
	}

	query := `
		SELECT user_id, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`

	var w domain.Wallet
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&w.UserID,
		&w.Balance,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &w, nil
}

func (r *walletRepo) Credit(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error {
	if tx == nil {
		return errors.New("transaction cannot be nil for wallet credit")
	}

	query := `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance,
		    updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, query, userID, amount); err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}
	return nil
}

func (r *walletRepo) Debit(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error {
	if tx == nil {
		return errors.New("transaction cannot be nil for wallet debit")
	}

	lockQuery := `
		SELECT balance
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`

	var balance decimal.Decimal
	err := tx.QueryRow(ctx, lockQuery, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No wallet means a zero balance; any positive debit fails.
			return domain.ErrInsufficientFunds
		}
		return fmt.Errorf("failed to lock wallet: %w", err)
	}

	if balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}

	update := `
		UPDATE wallets
		SET balance = balance - $2,
		    updated_at = NOW()
		WHERE user_id = $1
	`
	if _, err := tx.Exec(ctx, update, userID, amount); err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	return nil
}
