package domain

import "errors"

// Expected business outcomes. Callers match on these instead of parsing
// messages; infrastructure faults travel as wrapped errors alongside them.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateReference  = errors.New("duplicate transaction reference")
	ErrShipmentNotFound    = errors.New("shipment not found")
	ErrWalletNotFound      = errors.New("wallet not found")
)
