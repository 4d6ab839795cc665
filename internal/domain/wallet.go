package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's available funds. One wallet per user, created lazily
// on first access with a zero balance. The balance never goes negative: every
// debit checks and mutates under the same row lock.
type Wallet struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
