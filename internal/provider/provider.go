package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ChargeStatus is the gateway's view of a charge, normalized to three values.
type ChargeStatus string

const (
	ChargeStatusPending ChargeStatus = "pending"
	ChargeStatusSuccess ChargeStatus = "success"
	ChargeStatusFailed  ChargeStatus = "failed"
)

// NormalizeStatus maps the provider's status vocabulary onto the three
// ChargeStatus values. The HTTP client and the webhook receiver share it so
// both recognize the same success synonyms.
func NormalizeStatus(s string) ChargeStatus {
	switch s {
	case "success", "successful", "completed", "paid":
		return ChargeStatusSuccess
	case "failed", "cancelled", "rejected":
		return ChargeStatusFailed
	default:
		return ChargeStatusPending
	}
}

// Gateway is the contract with the external mobile-money/bank provider. Pure
// request/response; every failure is a *GatewayError, never an unclassified
// error, so callers can decide between retry and compensation.
type Gateway interface {
	InitiatePayment(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	VerifyPayment(ctx context.Context, chargeID string) (*VerifyResult, error)
	InitiatePayout(ctx context.Context, req *PayoutRequest) (*PayoutResult, error)
	InitiateBankPayout(ctx context.Context, req *BankPayoutRequest) (*PayoutResult, error)
	ListOperators(ctx context.Context) ([]Operator, error)
	ListBanks(ctx context.Context) ([]Bank, error)
	AccountBalance(ctx context.Context) ([]Balance, error)
}

type ChargeRequest struct {
	Mobile        string
	Amount        decimal.Decimal
	OperatorRefID string
	Reference     string
}

type ChargeResult struct {
	ChargeID string
	Status   ChargeStatus
}

type VerifyResult struct {
	ChargeID string
	Status   ChargeStatus
	Message  string
}

type PayoutRequest struct {
	Mobile        string
	Amount        decimal.Decimal
	OperatorRefID string
	ChargeID      string
	PayeeName     string
}

type BankPayoutRequest struct {
	BankCode      string
	AccountNumber string
	AccountName   string
	Amount        decimal.Decimal
	ChargeID      string
}

type PayoutResult struct {
	TransactionID string
	Status        ChargeStatus
	Message       string
}

type Operator struct {
	RefID     string `json:"ref_id"`
	Name      string `json:"name"`
	ShortCode string `json:"short_code"`
}

type Bank struct {
	Code string `json:"uuid"`
	Name string `json:"name"`
}

type Balance struct {
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available_balance"`
}

// GatewayError is the structured failure for every gateway operation. Timeout
// marks a network-level failure where the provider's outcome is unknown, as
// opposed to a provider-reported business rejection.
type GatewayError struct {
	Code    string
	Message string
	Timeout bool
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("gateway timeout: %s", e.Message)
	}
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// IsTimeout reports whether err is a gateway network timeout, i.e. the
// provider may or may not have processed the request.
func IsTimeout(err error) bool {
	var gerr *GatewayError
	return errors.As(err, &gerr) && gerr.Timeout
}
