package repository

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ShipmentRepository touches only the shipment fields settlement owns. The
// rest of the shipment entity belongs to the logistics subsystem.
type ShipmentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Shipment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Shipment, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, id string, status domain.ShipmentStatus) error
}

type shipmentRepo struct {
	db *pgxpool.Pool
}

func NewShipmentRepository(db *pgxpool.Pool) ShipmentRepository {
	return &shipmentRepo{db: db}
}

const shipmentColumns = `
	id, driver_id, cargo_kind, status, deposit_status, payment_timing, shared_ride, updated_at
`

func scanShipment(row pgx.Row) (*domain.Shipment, error) {
	var s domain.Shipment
	err := row.Scan(
		&s.ID,
		&s.DriverID,
		&s.CargoKind,
		&s.Status,
		&s.DepositStatus,
		&s.PaymentTiming,
		&s.SharedRide,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *shipmentRepo) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = $1`

	s, err := scanShipment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrShipmentNotFound
		}
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}
	return s, nil
}

func (r *shipmentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Shipment, error) {
	if tx == nil {
		return nil, errors.New("transaction cannot be nil for locked shipment query")
	}

	query := `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = $1 FOR UPDATE`

	s, err := scanShipment(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrShipmentNotFound
		}
		return nil, fmt.Errorf("failed to lock shipment: %w", err)
	}
	return s, nil
}

func (r *shipmentRepo) MarkPaid(ctx context.Context, tx pgx.Tx, id string, status domain.ShipmentStatus) error {
	if tx == nil {
		return errors.New("transaction cannot be nil for shipment update")
	}

	query := `
		UPDATE shipments
		SET status = $1,
		    deposit_status = $2,
		    payment_timing = $3,
		    updated_at = NOW()
		WHERE id = $4
	`
	tag, err := tx.Exec(ctx, query, status, domain.DepositStatusSecured, domain.PaymentTimingPaid, id)
	if err != nil {
		return fmt.Errorf("failed to mark shipment paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrShipmentNotFound
	}
	return nil
}
