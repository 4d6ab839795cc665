package usecase

import (
	"context"
	"sync"
	"testing"

	"settlement-service/internal/domain"
	"settlement-service/internal/notifier"
	"settlement-service/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type settlementFixture struct {
	uc      *SettlementUsecase
	wallets *fakeWalletRepo
	txns    *fakeTxRepo
	ships   *fakeShipmentRepo
	gateway *fakeGateway
	events  *fakePublisher
}

func newSettlementFixture(t *testing.T, shipments ...*domain.Shipment) *settlementFixture {
	t.Helper()

	f := &settlementFixture{
		wallets: newFakeWalletRepo(),
		txns:    newFakeTxRepo(),
		ships:   newFakeShipmentRepo(shipments...),
		gateway: &fakeGateway{},
		events:  &fakePublisher{},
	}
	f.uc = NewSettlementUsecase(
		fakeStore{},
		f.wallets,
		f.txns,
		f.ships,
		f.gateway,
		f.events,
		decimal.RequireFromString("0.05"),
		zap.NewNop(),
	)
	return f
}

func cargoShipment(id, driverID string) *domain.Shipment {
	return &domain.Shipment{
		ID:            id,
		DriverID:      driverID,
		CargoKind:     domain.CargoKindGoods,
		Status:        domain.ShipmentStatusWaitingForDriver,
		DepositStatus: domain.DepositStatusUnsecured,
		PaymentTiming: domain.PaymentTimingUnpaid,
	}
}

func ridePaymentReq(shipmentID string, amount int64) *domain.RidePaymentRequest {
	return &domain.RidePaymentRequest{
		UserID:        "payer-1",
		ShipmentID:    shipmentID,
		Amount:        decimal.NewFromInt(amount),
		Mobile:        "265888123456",
		OperatorRefID: "op-airtel",
	}
}

func TestInitiateRidePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending transaction with commission split", func(t *testing.T) {
		f := newSettlementFixture(t, cargoShipment("ship-1", "driver-1"))

		txn, err := f.uc.InitiateRidePayment(ctx, ridePaymentReq("ship-1", 10000))
		require.NoError(t, err)

		assert.Equal(t, domain.TxStatusPending, txn.Status)
		assert.Equal(t, domain.TxTypeRidePayment, txn.Type)
		assert.True(t, txn.GrossAmount.Equal(decimal.NewFromInt(10000)))
		assert.True(t, txn.CommissionAmount.Equal(decimal.NewFromInt(500)), "commission: %s", txn.CommissionAmount)
		assert.True(t, txn.NetAmount.Equal(decimal.NewFromInt(9500)), "net: %s", txn.NetAmount)

		// Ref was replaced with the gateway charge id.
		stored, err := f.txns.GetByRef(ctx, txn.TransactionRef)
		require.NoError(t, err)
		assert.Equal(t, txn.ID, stored.ID)
	})

	t.Run("unknown shipment is rejected before any writes", func(t *testing.T) {
		f := newSettlementFixture(t)

		_, err := f.uc.InitiateRidePayment(ctx, ridePaymentReq("missing", 10000))
		assert.ErrorIs(t, err, domain.ErrShipmentNotFound)
		assert.Empty(t, f.txns.all())
	})

	t.Run("gateway failure leaves the transaction pending", func(t *testing.T) {
		f := newSettlementFixture(t, cargoShipment("ship-1", "driver-1"))
		f.gateway.initiatePayment = func(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
			return nil, &provider.GatewayError{Code: "timeout", Message: "no response", Timeout: true}
		}

		_, err := f.uc.InitiateRidePayment(ctx, ridePaymentReq("ship-1", 2500))
		require.Error(t, err)
		assert.True(t, provider.IsTimeout(err))

		// The row still exists under its local ref and stays Pending so a
		// later verify can complete it.
		all := f.txns.all()
		require.Len(t, all, 1)
		assert.Equal(t, domain.TxStatusPending, all[0].Status)
	})

	t.Run("validation failures never reach the gateway", func(t *testing.T) {
		f := newSettlementFixture(t, cargoShipment("ship-1", "driver-1"))
		called := false
		f.gateway.initiatePayment = func(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
			called = true
			return nil, nil
		}

		req := ridePaymentReq("ship-1", 10000)
		req.Amount = decimal.Zero
		_, err := f.uc.InitiateRidePayment(ctx, req)
		require.Error(t, err)
		assert.False(t, called)
	})
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()

	// Mirrors a full collection round: initiate, confirm, then confirm again.
	t.Run("settles exactly once", func(t *testing.T) {
		f := newSettlementFixture(t, cargoShipment("ship-1", "driver-1"))

		txn, err := f.uc.InitiateRidePayment(ctx, ridePaymentReq("ship-1", 10000))
		require.NoError(t, err)

		applied, err := f.uc.Confirm(ctx, txn.TransactionRef)
		require.NoError(t, err)
		assert.True(t, applied)

		// Driver got the net share, not the gross amount.
		assert.True(t, f.wallets.balance("driver-1").Equal(decimal.NewFromInt(9500)),
			"driver balance: %s", f.wallets.balance("driver-1"))

		ship := f.ships.get("ship-1")
		assert.Equal(t, domain.ShipmentStatusReadyForPickup, ship.Status)
		assert.Equal(t, domain.DepositStatusSecured, ship.DepositStatus)
		assert.Equal(t, domain.PaymentTimingPaid, ship.PaymentTiming)

		stored, err := f.txns.GetByRef(ctx, txn.TransactionRef)
		require.NoError(t, err)
		assert.Equal(t, domain.TxStatusCompleted, stored.Status)

		// Second delivery of the same confirmation is a no-op.
		applied, err = f.uc.Confirm(ctx, txn.TransactionRef)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.True(t, f.wallets.balance("driver-1").Equal(decimal.NewFromInt(9500)))

		event := f.events.waitFor(notifier.EventSettlementCompleted)
		require.NotNil(t, event)
		assert.Equal(t, txn.TransactionRef, event.TransactionRef)
		assert.Equal(t, "driver-1", event.UserID)
	})

	t.Run("concurrent confirmations credit the driver once", func(t *testing.T) {
		f := newSettlementFixture(t, cargoShipment("ship-1", "driver-1"))

		txn, err := f.uc.InitiateRidePayment(ctx, ridePaymentReq("ship-1", 10000))
		require.NoError(t, err)

		const attempts = 10
		var (
			wg          sync.WaitGroup
			mu          sync.Mutex
			appliedSeen int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				applied, err := f.uc.Confirm(ctx, txn.TransactionRef)
				assert.NoError(t, err)
				if applied {
					mu.Lock()
					appliedSeen++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, appliedSeen, "exactly one confirmation wins")
		assert.True(t, f.wallets.balance("driver-1").Equal(decimal.NewFromInt(9500)),
			"driver balance after %d confirms: %s", attempts, f.wallets.balance("driver-1"))
	})

	t.Run("unknown charge id", func(t *testing.T) {
		f := newSettlementFixture(t)
		_, err := f.uc.Confirm(ctx, "CHG-nope")
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	})

	t.Run("non ride-payment ref is ignored", func(t *testing.T) {
		f := newSettlementFixture(t)
		require.NoError(t, f.txns.Create(ctx, nil, &domain.Transaction{
			UserID:         "user-1",
			GrossAmount:    decimal.NewFromInt(500),
			NetAmount:      decimal.NewFromInt(500),
			Type:           domain.TxTypeWithdrawal,
			Status:         domain.TxStatusProcessing,
			TransactionRef: "WD-1",
			Method:         domain.MethodMobileMoney,
		}))

		applied, err := f.uc.Confirm(ctx, "WD-1")
		require.NoError(t, err)
		assert.False(t, applied)
	})
}

func TestConfirmShipmentStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		cargoKind  domain.CargoKind
		status     domain.ShipmentStatus
		sharedRide bool
		want       domain.ShipmentStatus
	}{
		{
			name:      "cargo waiting for driver unlocks pickup",
			cargoKind: domain.CargoKindGoods,
			status:    domain.ShipmentStatusWaitingForDriver,
			want:      domain.ShipmentStatusReadyForPickup,
		},
		{
			name:      "passenger ride completes on payment",
			cargoKind: domain.CargoKindPassengers,
			status:    domain.ShipmentStatusInTransit,
			want:      domain.ShipmentStatusCompleted,
		},
		{
			name:       "shared ride completes on payment",
			cargoKind:  domain.CargoKindGoods,
			status:     domain.ShipmentStatusInTransit,
			sharedRide: true,
			want:       domain.ShipmentStatusCompleted,
		},
		{
			name:      "cargo already in transit keeps its status",
			cargoKind: domain.CargoKindGoods,
			status:    domain.ShipmentStatusInTransit,
			want:      domain.ShipmentStatusInTransit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ship := &domain.Shipment{
				ID:            "ship-1",
				DriverID:      "driver-1",
				CargoKind:     tt.cargoKind,
				Status:        tt.status,
				DepositStatus: domain.DepositStatusUnsecured,
				PaymentTiming: domain.PaymentTimingUnpaid,
				SharedRide:    tt.sharedRide,
			}
			f := newSettlementFixture(t, ship)

			txn, err := f.uc.InitiateRidePayment(ctx, ridePaymentReq("ship-1", 4000))
			require.NoError(t, err)

			applied, err := f.uc.Confirm(ctx, txn.TransactionRef)
			require.NoError(t, err)
			require.True(t, applied)

			got := f.ships.get("ship-1")
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, domain.DepositStatusSecured, got.DepositStatus)
			assert.Equal(t, domain.PaymentTimingPaid, got.PaymentTiming)
		})
	}
}

func TestVerifyAndConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("pending charge settles nothing", func(t *testing.T) {
		f := newSettlementFixture(t, cargoShipment("ship-1", "driver-1"))
		f.gateway.verifyPayment = func(ctx context.Context, chargeID string) (*provider.VerifyResult, error) {
			return &provider.VerifyResult{ChargeID: chargeID, Status: provider.ChargeStatusPending}, nil
		}

		txn, err := f.uc.InitiateRidePayment(ctx, ridePaymentReq("ship-1", 10000))
		require.NoError(t, err)

		status, applied, err := f.uc.VerifyAndConfirm(ctx, txn.TransactionRef)
		require.NoError(t, err)
		assert.Equal(t, provider.ChargeStatusPending, status)
		assert.False(t, applied)
		assert.True(t, f.wallets.balance("driver-1").IsZero())
	})

	t.Run("successful charge settles and repeats are no-ops", func(t *testing.T) {
		f := newSettlementFixture(t, cargoShipment("ship-1", "driver-1"))

		txn, err := f.uc.InitiateRidePayment(ctx, ridePaymentReq("ship-1", 10000))
		require.NoError(t, err)

		status, applied, err := f.uc.VerifyAndConfirm(ctx, txn.TransactionRef)
		require.NoError(t, err)
		assert.Equal(t, provider.ChargeStatusSuccess, status)
		assert.True(t, applied)

		status, applied, err = f.uc.VerifyAndConfirm(ctx, txn.TransactionRef)
		require.NoError(t, err)
		assert.Equal(t, provider.ChargeStatusSuccess, status)
		assert.False(t, applied)
		assert.True(t, f.wallets.balance("driver-1").Equal(decimal.NewFromInt(9500)))
	})
}
