package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/notifier"
	"settlement-service/internal/provider"
	"settlement-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const eventPublishTimeout = 5 * time.Second

var decimalZero = decimal.Zero

// WithdrawUsecase drives self-service payouts: debit the wallet first, then
// attempt the external payout, compensating with a refund when the payout
// fails. The debit and the Processing transaction are committed before any
// network call, so funds are "in flight" rather than a lock being held across
// gateway I/O.
type WithdrawUsecase struct {
	store      repository.TxManager
	walletRepo repository.WalletRepository
	txRepo     repository.TransactionRepository
	gateway    provider.Gateway
	events     notifier.Publisher
	logger     *zap.Logger
}

func NewWithdrawUsecase(
	store repository.TxManager,
	walletRepo repository.WalletRepository,
	txRepo repository.TransactionRepository,
	gateway provider.Gateway,
	events notifier.Publisher,
	logger *zap.Logger,
) *WithdrawUsecase {
	return &WithdrawUsecase{
		store:      store,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		gateway:    gateway,
		events:     events,
		logger:     logger,
	}
}

// WithdrawalResult tells the caller how the request ended. Refunded is true
// when the payout failed and the debited amount was restored; Pending is true
// when the gateway timed out and the reconciliation sweep will resolve the
// outcome.
type WithdrawalResult struct {
	Transaction    *domain.Transaction
	Payout         *provider.PayoutResult
	Refunded       bool
	Pending        bool
	GatewayMessage string
}

// Wallet returns the user's wallet, creating an empty one on first access.
func (uc *WithdrawUsecase) Wallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return uc.walletRepo.Get(ctx, userID)
}

func (uc *WithdrawUsecase) Request(ctx context.Context, req *domain.WithdrawalRequest) (*WithdrawalResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	txn := &domain.Transaction{
		UserID:           req.UserID,
		GrossAmount:      req.Amount,
		NetAmount:        req.Amount,
		CommissionAmount: decimalZero,
		Type:             domain.TxTypeWithdrawal,
		Status:           domain.TxStatusProcessing,
		TransactionRef:   newLocalRef("WD-"),
		Method:           req.Method,
		Description:      fmt.Sprintf("Withdrawal via %s", req.Method),
	}

	// Debit and transaction creation share one atomic scope: a concurrent
	// withdrawal for the same user sees the already-reduced balance and
	// cannot double-spend.
	err := uc.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := uc.walletRepo.Debit(ctx, tx, req.UserID, req.Amount); err != nil {
			return err
		}
		return uc.txRepo.Create(ctx, tx, txn)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			uc.logger.Info("withdrawal rejected, insufficient funds",
				zap.String("user_id", req.UserID),
				zap.String("amount", req.Amount.String()))
		} else {
			uc.logger.Error("failed to reserve withdrawal",
				zap.String("user_id", req.UserID),
				zap.Error(err))
		}
		return nil, err
	}

	uc.logger.Info("withdrawal reserved",
		zap.String("transaction_ref", txn.TransactionRef),
		zap.String("user_id", req.UserID),
		zap.String("amount", req.Amount.String()),
		zap.String("method", string(req.Method)))

	payout, payoutErr := uc.sendPayout(ctx, req, txn.TransactionRef)
	if payoutErr == nil {
		if _, err := uc.txRepo.TransitionStatus(ctx, nil, txn.TransactionRef,
			[]domain.TransactionStatus{domain.TxStatusProcessing},
			domain.TxStatusCompleted, ""); err != nil {
			// The payout went through; a failed status write is left for the
			// reconciliation sweep rather than reported as a payout failure.
			uc.logger.Error("failed to complete withdrawal transaction",
				zap.String("transaction_ref", txn.TransactionRef),
				zap.Error(err))
		} else {
			txn.Status = domain.TxStatusCompleted
		}

		uc.logger.Info("withdrawal payout completed",
			zap.String("transaction_ref", txn.TransactionRef),
			zap.String("payout_tx_id", payout.TransactionID))

		go uc.publishEvent(notifier.Event{
			Type:           notifier.EventWithdrawalCompleted,
			TransactionRef: txn.TransactionRef,
			UserID:         txn.UserID,
			Amount:         txn.GrossAmount.String(),
		})

		return &WithdrawalResult{Transaction: txn, Payout: payout}, nil
	}

	if provider.IsTimeout(payoutErr) {
		// Outcome unknown: leaving the transaction Processing is deliberate,
		// the reconciliation sweep resolves it to Completed or Failed+refund.
		uc.logger.Warn("withdrawal payout timed out, leaving for reconciliation",
			zap.String("transaction_ref", txn.TransactionRef),
			zap.Error(payoutErr))
		return &WithdrawalResult{Transaction: txn, Pending: true},
			fmt.Errorf("payout outcome pending: %w", payoutErr)
	}

	// Provider rejected the payout: compensate before surfacing the failure.
	if err := uc.refund(ctx, txn, payoutErr.Error()); err != nil {
		uc.logger.Error("withdrawal compensation failed",
			zap.String("transaction_ref", txn.TransactionRef),
			zap.Error(err))
		return nil, fmt.Errorf("payout failed and refund did not apply: %w", err)
	}
	txn.Status = domain.TxStatusFailed

	uc.logger.Info("withdrawal payout failed, wallet refunded",
		zap.String("transaction_ref", txn.TransactionRef),
		zap.String("user_id", txn.UserID),
		zap.String("amount", txn.GrossAmount.String()))

	go uc.publishEvent(notifier.Event{
		Type:           notifier.EventWithdrawalFailed,
		TransactionRef: txn.TransactionRef,
		UserID:         txn.UserID,
		Amount:         txn.GrossAmount.String(),
		Description:    payoutErr.Error(),
	})

	return &WithdrawalResult{
		Transaction:    txn,
		Refunded:       true,
		GatewayMessage: payoutErr.Error(),
	}, fmt.Errorf("payout failed: %w", payoutErr)
}

func (uc *WithdrawUsecase) sendPayout(ctx context.Context, req *domain.WithdrawalRequest, ref string) (*provider.PayoutResult, error) {
	switch req.Method {
	case domain.MethodBankTransfer:
		return uc.gateway.InitiateBankPayout(ctx, &provider.BankPayoutRequest{
			BankCode:      req.BankCode,
			AccountNumber: req.AccountNumber,
			AccountName:   req.AccountName,
			Amount:        req.Amount,
			ChargeID:      ref,
		})
	default:
		return uc.gateway.InitiatePayout(ctx, &provider.PayoutRequest{
			Mobile:        req.Mobile,
			Amount:        req.Amount,
			OperatorRefID: req.OperatorRefID,
			ChargeID:      ref,
			PayeeName:     req.AccountName,
		})
	}
}

// refund restores the debited amount and marks the transaction Failed with
// the gateway's failure description, in one transactional scope.
func (uc *WithdrawUsecase) refund(ctx context.Context, txn *domain.Transaction, reason string) error {
	return uc.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		applied, err := uc.txRepo.TransitionStatus(ctx, tx, txn.TransactionRef,
			[]domain.TransactionStatus{domain.TxStatusProcessing},
			domain.TxStatusFailed, "payout failed: "+reason)
		if err != nil {
			return err
		}
		if !applied {
			// Someone else already resolved this withdrawal; do not refund twice.
			return nil
		}
		return uc.walletRepo.Credit(ctx, tx, txn.UserID, txn.GrossAmount)
	})
}

func (uc *WithdrawUsecase) publishEvent(event notifier.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
	defer cancel()

	if err := uc.events.Publish(ctx, event); err != nil {
		uc.logger.Warn("failed to publish withdrawal event",
			zap.String("transaction_ref", event.TransactionRef),
			zap.String("type", event.Type),
			zap.Error(err))
	}
}
