package usecase

import (
	"context"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/provider"

	"go.uber.org/zap"
)

// ResolveStuckWithdrawals re-checks withdrawals left Processing for longer
// than maxAge, typically because the payout call timed out with no response.
// Each charge is re-verified with the gateway: a reported success completes
// the withdrawal, a reported failure refunds it, anything else waits for the
// next sweep. Returns how many withdrawals were resolved.
func (uc *WithdrawUsecase) ResolveStuckWithdrawals(ctx context.Context, maxAge time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	stuck, err := uc.txRepo.ListStuckWithdrawals(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	uc.logger.Info("reconciling stuck withdrawals", zap.Int("count", len(stuck)))

	resolved := 0
	for _, txn := range stuck {
		result, err := uc.gateway.VerifyPayment(ctx, txn.TransactionRef)
		if err != nil {
			uc.logger.Warn("reconciliation verify failed",
				zap.String("transaction_ref", txn.TransactionRef),
				zap.Error(err))
			continue
		}

		switch result.Status {
		case provider.ChargeStatusSuccess:
			applied, err := uc.txRepo.TransitionStatus(ctx, nil, txn.TransactionRef,
				[]domain.TransactionStatus{domain.TxStatusProcessing},
				domain.TxStatusCompleted, "")
			if err != nil {
				uc.logger.Error("reconciliation failed to complete withdrawal",
					zap.String("transaction_ref", txn.TransactionRef),
					zap.Error(err))
				continue
			}
			if applied {
				resolved++
				uc.logger.Info("stuck withdrawal resolved as completed",
					zap.String("transaction_ref", txn.TransactionRef))
			}

		case provider.ChargeStatusFailed:
			reason := result.Message
			if reason == "" {
				reason = "payout reported failed by gateway"
			}
			if err := uc.refund(ctx, txn, reason); err != nil {
				uc.logger.Error("reconciliation refund failed",
					zap.String("transaction_ref", txn.TransactionRef),
					zap.Error(err))
				continue
			}
			resolved++
			uc.logger.Info("stuck withdrawal resolved as failed, wallet refunded",
				zap.String("transaction_ref", txn.TransactionRef))

		default:
			// Still pending at the provider; leave it for the next sweep.
		}
	}

	return resolved, nil
}

// RunReconciliationLoop runs the sweep on a fixed cadence until ctx is done.
func (uc *WithdrawUsecase) RunReconciliationLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := uc.ResolveStuckWithdrawals(ctx, maxAge, 100); err != nil {
				uc.logger.Error("withdrawal reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}
