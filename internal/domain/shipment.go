package domain

import "time"

type ShipmentStatus string
type CargoKind string
type DepositStatus string
type PaymentTiming string

const (
	ShipmentStatusWaitingForDriver ShipmentStatus = "waiting_for_driver_commitment"
	ShipmentStatusReadyForPickup   ShipmentStatus = "ready_for_pickup"
	ShipmentStatusInTransit        ShipmentStatus = "in_transit"
	ShipmentStatusCompleted        ShipmentStatus = "completed"
)

const (
	CargoKindGoods      CargoKind = "goods"
	CargoKindPassengers CargoKind = "passengers"
)

const (
	DepositStatusUnsecured DepositStatus = "unsecured"
	DepositStatusSecured   DepositStatus = "secured"
)

const (
	PaymentTimingUnpaid PaymentTiming = "unpaid"
	PaymentTimingPaid   PaymentTiming = "paid"
)

// Shipment is owned by the logistics subsystem; settlement only reads
// DriverID/CargoKind/Status and writes Status, DepositStatus and PaymentTiming
// when a ride payment completes.
type Shipment struct {
	ID            string         `json:"id" db:"id"`
	DriverID      string         `json:"driver_id" db:"driver_id"`
	CargoKind     CargoKind      `json:"cargo_kind" db:"cargo_kind"`
	Status        ShipmentStatus `json:"status" db:"status"`
	DepositStatus DepositStatus  `json:"deposit_status" db:"deposit_status"`
	PaymentTiming PaymentTiming  `json:"payment_timing" db:"payment_timing"`
	SharedRide    bool           `json:"shared_ride" db:"shared_ride"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// NextStatusAfterPayment applies the post-payment status rule: passenger and
// shared-ride shipments are done once paid, cargo shipments waiting on a
// driver commitment unlock pickup, anything else keeps its current status.
func NextStatusAfterPayment(s *Shipment) ShipmentStatus {
	if s.CargoKind == CargoKindPassengers || s.SharedRide {
		return ShipmentStatusCompleted
	}
	if s.Status == ShipmentStatusWaitingForDriver {
		return ShipmentStatusReadyForPickup
	}
	return s.Status
}
