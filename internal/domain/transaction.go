package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string
type TransactionStatus string
type PaymentMethod string

const (
	TxTypeRidePayment TransactionType = "ride_payment"
	TxTypePayout      TransactionType = "payout"
	TxTypeWithdrawal  TransactionType = "withdrawal"
)

const (
	TxStatusPending    TransactionStatus = "pending"
	TxStatusProcessing TransactionStatus = "processing"
	TxStatusCompleted  TransactionStatus = "completed"
	TxStatusFailed     TransactionStatus = "failed"
)

const (
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// Transaction is a durable record of one money movement attempt. It is never
// deleted; a row in a terminal status (completed/failed) is the audit trail.
// TransactionRef is globally unique and is the idempotency key correlating a
// local transaction with the external gateway charge or payout.
type Transaction struct {
	ID               int64             `json:"id" db:"id"`
	UserID           string            `json:"user_id" db:"user_id"`
	ShipmentID       *string           `json:"shipment_id,omitempty" db:"shipment_id"`
	GrossAmount      decimal.Decimal   `json:"gross_amount" db:"gross_amount"`
	NetAmount        decimal.Decimal   `json:"net_amount" db:"net_amount"`
	CommissionAmount decimal.Decimal   `json:"commission_amount" db:"commission_amount"`
	Type             TransactionType   `json:"type" db:"type"`
	Status           TransactionStatus `json:"status" db:"status"`
	TransactionRef   string            `json:"transaction_ref" db:"transaction_ref"`
	Method           PaymentMethod     `json:"method" db:"method"`
	Description      string            `json:"description" db:"description"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// RidePaymentRequest starts a "collect from payer" flow.
type RidePaymentRequest struct {
	UserID        string          `json:"user_id"`
	ShipmentID    string          `json:"shipment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Mobile        string          `json:"mobile"`
	OperatorRefID string          `json:"mobile_money_operator_ref_id"`
}

func (r *RidePaymentRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if r.ShipmentID == "" {
		return errors.New("shipment_id is required")
	}
	if !r.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	if r.Mobile == "" {
		return errors.New("mobile is required")
	}
	if r.OperatorRefID == "" {
		return errors.New("mobile_money_operator_ref_id is required")
	}
	return nil
}

// WithdrawalRequest starts a "pay out from wallet" flow. Details depend on the
// method: mobile money needs Mobile+OperatorRefID, bank transfer needs
// BankCode+AccountNumber+AccountName.
type WithdrawalRequest struct {
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	Mobile        string          `json:"mobile,omitempty"`
	OperatorRefID string          `json:"mobile_money_operator_ref_id,omitempty"`
	BankCode      string          `json:"bank_code,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	AccountName   string          `json:"account_name,omitempty"`
}

func (r *WithdrawalRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if !r.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	switch r.Method {
	case MethodMobileMoney:
		if r.Mobile == "" {
			return errors.New("mobile is required for mobile money")
		}
		if r.OperatorRefID == "" {
			return errors.New("mobile_money_operator_ref_id is required for mobile money")
		}
	case MethodBankTransfer:
		if r.BankCode == "" {
			return errors.New("bank_code is required for bank transfer")
		}
		if r.AccountNumber == "" {
			return errors.New("account_number is required for bank transfer")
		}
		if r.AccountName == "" {
			return errors.New("account_name is required for bank transfer")
		}
	default:
		return errors.New("method must be mobile_money or bank_transfer")
	}
	return nil
}
