package usecase

import (
	"context"
	"fmt"

	"settlement-service/internal/domain"
	"settlement-service/internal/notifier"
	"settlement-service/internal/provider"
	"settlement-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementUsecase drives the ride-payment collection flow: collect money
// from the payer through the gateway, then credit the driver's wallet and
// unlock the shipment once the charge is confirmed. The explicit verify call
// and the provider webhook both land in Confirm, which applies side effects
// at most once per transaction ref.
type SettlementUsecase struct {
	store          repository.TxManager
	walletRepo     repository.WalletRepository
	txRepo         repository.TransactionRepository
	shipmentRepo   repository.ShipmentRepository
	gateway        provider.Gateway
	events         notifier.Publisher
	commissionRate decimal.Decimal
	logger         *zap.Logger
}

func NewSettlementUsecase(
	store repository.TxManager,
	walletRepo repository.WalletRepository,
	txRepo repository.TransactionRepository,
	shipmentRepo repository.ShipmentRepository,
	gateway provider.Gateway,
	events notifier.Publisher,
	commissionRate decimal.Decimal,
	logger *zap.Logger,
) *SettlementUsecase {
	return &SettlementUsecase{
		store:          store,
		walletRepo:     walletRepo,
		txRepo:         txRepo,
		shipmentRepo:   shipmentRepo,
		gateway:        gateway,
		events:         events,
		commissionRate: commissionRate,
		logger:         logger,
	}
}

func newLocalRef(prefix string) string {
	return prefix + ulid.Make().String()
}

// InitiateRidePayment creates a Pending transaction and asks the gateway to
// collect from the payer's mobile wallet. On gateway success the local
// placeholder ref is replaced with the gateway charge id, which becomes the
// idempotency key for confirmation. A gateway failure leaves the transaction
// Pending; a later verify or webhook can still complete it.
func (uc *SettlementUsecase) InitiateRidePayment(ctx context.Context, req *domain.RidePaymentRequest) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if _, err := uc.shipmentRepo.GetByID(ctx, req.ShipmentID); err != nil {
		return nil, err
	}

	commission := req.Amount.Mul(uc.commissionRate).Round(2)
	net := req.Amount.Sub(commission)
	shipmentID := req.ShipmentID

	txn := &domain.Transaction{
		UserID:           req.UserID,
		ShipmentID:       &shipmentID,
		GrossAmount:      req.Amount,
		NetAmount:        net,
		CommissionAmount: commission,
		Type:             domain.TxTypeRidePayment,
		Status:           domain.TxStatusPending,
		TransactionRef:   newLocalRef("RP-"),
		Method:           domain.MethodMobileMoney,
		Description:      fmt.Sprintf("Ride payment for shipment %s", req.ShipmentID),
	}

	if err := uc.txRepo.Create(ctx, nil, txn); err != nil {
		uc.logger.Error("failed to create ride payment transaction",
			zap.String("shipment_id", req.ShipmentID),
			zap.Error(err))
		return nil, err
	}

	uc.logger.Info("ride payment transaction created",
		zap.Int64("transaction_id", txn.ID),
		zap.String("transaction_ref", txn.TransactionRef),
		zap.String("shipment_id", req.ShipmentID),
		zap.String("gross_amount", txn.GrossAmount.String()))

	result, err := uc.gateway.InitiatePayment(ctx, &provider.ChargeRequest{
		Mobile:        req.Mobile,
		Amount:        req.Amount,
		OperatorRefID: req.OperatorRefID,
		Reference:     txn.TransactionRef,
	})
	if err != nil {
		// Transaction stays Pending: a later verify attempt can still succeed.
		uc.logger.Error("gateway payment initiation failed",
			zap.String("transaction_ref", txn.TransactionRef),
			zap.Bool("timeout", provider.IsTimeout(err)),
			zap.Error(err))
		return nil, fmt.Errorf("payment initiation failed: %w", err)
	}

	if result.ChargeID != txn.TransactionRef {
		if err := uc.txRepo.UpdateRef(ctx, txn.ID, result.ChargeID); err != nil {
			uc.logger.Error("failed to store gateway charge id",
				zap.String("transaction_ref", txn.TransactionRef),
				zap.String("charge_id", result.ChargeID),
				zap.Error(err))
			return nil, err
		}
		txn.TransactionRef = result.ChargeID
	}

	uc.logger.Info("gateway payment initiated",
		zap.String("charge_id", result.ChargeID),
		zap.String("gateway_status", string(result.Status)))

	return txn, nil
}

// Confirm finalizes the ride payment identified by chargeID. It is the single
// completion routine shared by the verify endpoint and the webhook receiver,
// and is idempotent: the conditional status transition admits exactly one
// caller, all others return applied == false with no mutation.
func (uc *SettlementUsecase) Confirm(ctx context.Context, chargeID string) (bool, error) {
	txn, err := uc.txRepo.GetByRef(ctx, chargeID)
	if err != nil {
		return false, err
	}

	if txn.Type != domain.TxTypeRidePayment {
		uc.logger.Warn("confirm called for non ride-payment transaction",
			zap.String("transaction_ref", chargeID),
			zap.String("type", string(txn.Type)))
		return false, nil
	}

	var (
		applied  bool
		shipment *domain.Shipment
	)

	err = uc.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		ok, err := uc.txRepo.TransitionStatus(ctx, tx, chargeID,
			[]domain.TransactionStatus{domain.TxStatusPending, domain.TxStatusProcessing},
			domain.TxStatusCompleted, "")
		if err != nil {
			return err
		}
		if !ok {
			// Already completed (or failed) by another path: nothing to do.
			return nil
		}
		applied = true

		if txn.ShipmentID == nil {
			return domain.ErrShipmentNotFound
		}

		shipment, err = uc.shipmentRepo.GetByIDForUpdate(ctx, tx, *txn.ShipmentID)
		if err != nil {
			return err
		}

		next := domain.NextStatusAfterPayment(shipment)
		if err := uc.shipmentRepo.MarkPaid(ctx, tx, shipment.ID, next); err != nil {
			return err
		}

		// Driver share is the net amount; commission stays with the platform.
		if err := uc.walletRepo.Credit(ctx, tx, shipment.DriverID, txn.NetAmount); err != nil {
			return err
		}

		shipment.Status = next
		return nil
	})
	if err != nil {
		uc.logger.Error("settlement confirmation failed",
			zap.String("transaction_ref", chargeID),
			zap.Error(err))
		return false, err
	}

	if !applied {
		uc.logger.Info("settlement already confirmed, skipping",
			zap.String("transaction_ref", chargeID))
		return false, nil
	}

	uc.logger.Info("settlement confirmed",
		zap.String("transaction_ref", chargeID),
		zap.String("driver_id", shipment.DriverID),
		zap.String("driver_share", txn.NetAmount.String()),
		zap.String("shipment_status", string(shipment.Status)))

	// Best-effort notification; never blocks or rolls back the commit.
	go uc.publishEvent(notifier.Event{
		Type:           notifier.EventSettlementCompleted,
		TransactionRef: chargeID,
		UserID:         shipment.DriverID,
		ShipmentID:     shipment.ID,
		Amount:         txn.NetAmount.String(),
	})

	return true, nil
}

// VerifyAndConfirm asks the gateway for the charge's current status and, when
// it reports success, runs Confirm. Returns the gateway status and whether
// this call applied the settlement.
func (uc *SettlementUsecase) VerifyAndConfirm(ctx context.Context, chargeID string) (provider.ChargeStatus, bool, error) {
	result, err := uc.gateway.VerifyPayment(ctx, chargeID)
	if err != nil {
		return "", false, fmt.Errorf("payment verification failed: %w", err)
	}

	if result.Status != provider.ChargeStatusSuccess {
		return result.Status, false, nil
	}

	applied, err := uc.Confirm(ctx, chargeID)
	if err != nil {
		return result.Status, false, err
	}
	return result.Status, applied, nil
}

func (uc *SettlementUsecase) GetTransaction(ctx context.Context, ref string) (*domain.Transaction, error) {
	return uc.txRepo.GetByRef(ctx, ref)
}

func (uc *SettlementUsecase) publishEvent(event notifier.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
	defer cancel()

	if err := uc.events.Publish(ctx, event); err != nil {
		uc.logger.Warn("failed to publish settlement event",
			zap.String("transaction_ref", event.TransactionRef),
			zap.String("type", event.Type),
			zap.Error(err))
	}
}
