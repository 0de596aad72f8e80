package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/graphuraprojects/agrirent/internal/model"
)

// AvailabilityRepo stores the manual availability override of a machine.
// The override row is created lazily on the first write.
type AvailabilityRepo struct{ db *sql.DB }

// NewAvailabilityRepo returns a new AvailabilityRepo bound to the given database.
func NewAvailabilityRepo(db *sql.DB) *AvailabilityRepo { return &AvailabilityRepo{db: db} }

// Get returns the override for a machine or ErrNotFound when none was ever
// written.
func (r *AvailabilityRepo) Get(ctx context.Context, machineID uint64) (model.Availability, error) {
	var a model.Availability
	var from, until sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT machine_id, is_available, reason, unavailable_from, unavailable_until, updated_at
		   FROM machine_availability WHERE machine_id=?`, machineID).
		Scan(&a.MachineID, &a.IsAvailable, &a.Reason, &from, &until, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if from.Valid {
		t := from.Time
		a.From = &t
	}
	if until.Valid {
		t := until.Time
		a.Until = &t
	}
	return a, nil
}

// Upsert writes the override and mirrors the flag onto
// machines.availability_status in one transaction.  The machine must belong
// to ownerID.
func (r *AvailabilityRepo) Upsert(ctx context.Context, ownerID uint64, a model.Availability) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var actualOwner uint64
	err = tx.QueryRowContext(ctx, "SELECT owner_id FROM machines WHERE id=? FOR UPDATE", a.MachineID).Scan(&actualOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if actualOwner != ownerID {
		return ErrForbidden
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO machine_availability (machine_id, is_available, reason, unavailable_from, unavailable_until)
		 VALUES (?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE is_available=VALUES(is_available), reason=VALUES(reason),
		   unavailable_from=VALUES(unavailable_from), unavailable_until=VALUES(unavailable_until)`,
		a.MachineID, a.IsAvailable, a.Reason, a.From, a.Until); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE machines SET availability_status=? WHERE id=?", a.IsAvailable, a.MachineID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
