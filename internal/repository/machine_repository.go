package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/graphuraprojects/agrirent/internal/database"
	"github.com/graphuraprojects/agrirent/internal/model"
)

// MachineRepo provides persistence for machine listings.
type MachineRepo struct {
	db *sql.DB
}

// NewMachineRepo returns a new MachineRepo bound to the given database.
func NewMachineRepo(db *sql.DB) *MachineRepo { return &MachineRepo{db: db} }

// MachineFilter narrows the public browse listing.
type MachineFilter struct {
	Category model.Category
	Search   string
	Limit    int
	Offset   int
}

const machineColumns = `id, owner_id, name, model, model_year, registration_number, fuel_type, category,
	price_per_hour, transport_rate_per_km, lat, lng, address, images, ownership_proof_url,
	availability_status, is_approved, rejection_reason, created_at, updated_at`

func scanMachine(s scanner) (model.Machine, error) {
	var m model.Machine
	var lat, lng sql.NullFloat64
	var images []byte
	var proof, reason sql.NullString
	var fuel, category string
	err := s.Scan(&m.ID, &m.OwnerID, &m.Name, &m.Model, &m.ModelYear, &m.RegistrationNumber, &fuel, &category,
		&m.PricePerHour, &m.TransportRatePerKm, &lat, &lng, &m.Address, &images, &proof,
		&m.AvailabilityStatus, &m.IsApproved, &reason, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, ErrNotFound
		}
		return m, err
	}
	m.FuelType = model.FuelType(fuel)
	m.Category = model.Category(category)
	if lat.Valid {
		v := lat.Float64
		m.Lat = &v
	}
	if lng.Valid {
		v := lng.Float64
		m.Lng = &v
	}
	if proof.Valid {
		p := proof.String
		m.OwnershipProofURL = &p
	}
	if reason.Valid {
		rr := reason.String
		m.RejectionReason = &rr
	}
	m.Images = []string{}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &m.Images); err != nil {
			return m, err
		}
	}
	return m, nil
}

func (r *MachineRepo) list(ctx context.Context, where string, args ...any) ([]model.Machine, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+machineColumns+" FROM machines "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Machine, 0)
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Create inserts a machine in the pending approval state and fills in its ID.
func (r *MachineRepo) Create(ctx context.Context, m *model.Machine) error {
	images, err := json.Marshal(m.Images)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO machines
		(owner_id, name, model, model_year, registration_number, fuel_type, category,
		 price_per_hour, transport_rate_per_km, lat, lng, address, images, ownership_proof_url,
		 availability_status, is_approved)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0)`,
		m.OwnerID, m.Name, m.Model, m.ModelYear, m.RegistrationNumber, string(m.FuelType), string(m.Category),
		m.PricePerHour, m.TransportRatePerKm, m.Lat, m.Lng, m.Address, images, m.OwnershipProofURL,
		m.AvailabilityStatus)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	m.IsApproved = false
	return nil
}

// GetByID fetches a machine regardless of its approval state.
func (r *MachineRepo) GetByID(ctx context.Context, id uint64) (model.Machine, error) {
	return scanMachine(r.db.QueryRowContext(ctx, "SELECT "+machineColumns+" FROM machines WHERE id=?", id))
}

// ListBookable returns approved and available machines for the public
// catalogue, newest first.
func (r *MachineRepo) ListBookable(ctx context.Context, f MachineFilter) ([]model.Machine, error) {
	where := "WHERE is_approved=1 AND availability_status=1"
	var args []any
	if f.Category != "" {
		where += " AND category=?"
		args = append(args, string(f.Category))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where += " AND (name LIKE ? OR model LIKE ?)"
		like := "%" + s + "%"
		args = append(args, like, like)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	where += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)
	return r.list(ctx, where, args...)
}

// ListByOwner returns every machine of an owner.
func (r *MachineRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Machine, error) {
	return r.list(ctx, "WHERE owner_id=? ORDER BY created_at DESC", ownerID)
}

// ListPendingApproval returns machines waiting for an admin decision.
func (r *MachineRepo) ListPendingApproval(ctx context.Context) ([]model.Machine, error) {
	return r.list(ctx, "WHERE is_approved=0 AND (rejection_reason IS NULL OR rejection_reason='') ORDER BY created_at")
}

// Update overwrites the editable fields of an owner's machine.  Editing a
// rejected listing clears the rejection reason, which moves it back to
// pending review.
func (r *MachineRepo) Update(ctx context.Context, m *model.Machine) error {
	images, err := json.Marshal(m.Images)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE machines SET
		name=?, model=?, model_year=?, registration_number=?, fuel_type=?, category=?,
		price_per_hour=?, transport_rate_per_km=?, lat=?, lng=?, address=?, images=?,
		ownership_proof_url=COALESCE(NULLIF(?, ''), ownership_proof_url),
		rejection_reason = CASE WHEN is_approved=0 THEN NULL ELSE rejection_reason END
		WHERE id=? AND owner_id=?`,
		m.Name, m.Model, m.ModelYear, m.RegistrationNumber, string(m.FuelType), string(m.Category),
		m.PricePerHour, m.TransportRatePerKm, m.Lat, m.Lng, m.Address, images,
		m.OwnershipProofURL, m.ID, m.OwnerID)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return err
	}
	return expectOneRow(res)
}

// Approve marks the machine approved and clears any rejection reason.  The
// proof check is repeated in SQL so a concurrent edit removing the proof
// cannot slip through; zero rows affected yields ErrConflict.
func (r *MachineRepo) Approve(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE machines SET is_approved=1, rejection_reason=NULL
		WHERE id=? AND ownership_proof_url IS NOT NULL AND ownership_proof_url<>''`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrConflict
	}
	return nil
}

// Reject marks the machine rejected with the given reason.
func (r *MachineRepo) Reject(ctx context.Context, id uint64, reason string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE machines SET is_approved=0, rejection_reason=? WHERE id=?", reason, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// Delete removes a machine.  ownerID of 0 means an admin delete.  Machines
// with bookings cannot be removed (ErrConflict).
func (r *MachineRepo) Delete(ctx context.Context, id, ownerID uint64) error {
	q := "DELETE FROM machines WHERE id=?"
	args := []any{id}
	if ownerID != 0 {
		q += " AND owner_id=?"
		args = append(args, ownerID)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrConflict
		}
		return err
	}
	return expectOneRow(res)
}
