package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/graphuraprojects/agrirent/internal/model"
)

// BookingRepo provides persistence for bookings.  Status changes are
// conditional updates on the expected prior status: when another request
// won the race the update matches no row and ErrConflict is returned
// instead of silently overwriting.  All timestamps are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookingQuery filters List.  Zero values mean "no filter".
type BookingQuery struct {
	FarmerID uint64
	OwnerID  uint64
	Status   model.BookingStatus
}

const bookingColumns = `id, farmer_id, machine_id, owner_id, start_time, end_time, total_hours, distance_km,
	rent_amount, transport_fee, total_amount, booking_status, payment_status, rejection_reason,
	decided_at, created_at, updated_at`

func scanBooking(s scanner) (model.Booking, error) {
	var b model.Booking
	var bs, ps string
	var reason sql.NullString
	var decided sql.NullTime
	err := s.Scan(&b.ID, &b.FarmerID, &b.MachineID, &b.OwnerID, &b.StartTime, &b.EndTime, &b.TotalHours, &b.DistanceKm,
		&b.RentAmount, &b.TransportFee, &b.TotalAmount, &bs, &ps, &reason,
		&decided, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, ErrNotFound
		}
		return b, err
	}
	b.BookingStatus = model.BookingStatus(bs)
	b.PaymentStatus = model.PaymentStatus(ps)
	if reason.Valid {
		r := reason.String
		b.RejectionReason = &r
	}
	if decided.Valid {
		t := decided.Time.UTC()
		b.DecidedAt = &t
	}
	return b, nil
}

// Create inserts a booking as pending/pending and populates ID and
// timestamps on the provided record.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (farmer_id, machine_id, owner_id, start_time, end_time, total_hours, distance_km,
		rent_amount, transport_fee, total_amount, booking_status, payment_status)
		VALUES (?,?,?,?,?,?,?,?,?,?,'pending','pending')`
	res, err := r.db.ExecContext(ctx, q, b.FarmerID, b.MachineID, b.OwnerID, b.StartTime.UTC(), b.EndTime.UTC(),
		b.TotalHours, b.DistanceKm, b.RentAmount, b.TransportFee, b.TotalAmount)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*b = created
	return nil
}

// GetByID fetches a single booking.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id=?", id))
}

// List returns bookings matching q, newest first.
func (r *BookingRepo) List(ctx context.Context, q BookingQuery) ([]model.Booking, error) {
	var conds []string
	var args []any
	if q.FarmerID != 0 {
		conds = append(conds, "farmer_id=?")
		args = append(args, q.FarmerID)
	}
	if q.OwnerID != 0 {
		conds = append(conds, "owner_id=?")
		args = append(args, q.OwnerID)
	}
	if q.Status != "" {
		conds = append(conds, "booking_status=?")
		args = append(args, string(q.Status))
	}
	query := "SELECT " + bookingColumns + " FROM bookings"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Decide moves a pending booking to accepted or rejected and stamps the
// decision time.  Only a booking that is still pending is updated.
func (r *BookingRepo) Decide(ctx context.Context, id uint64, to model.BookingStatus, reason *string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET booking_status=?, rejection_reason=?, decided_at=?
		  WHERE id=? AND booking_status='pending'`,
		string(to), reason, at.UTC(), id)
	if err != nil {
		return err
	}
	return expectTransition(res)
}

// Transition moves a booking from one status to another.  When unpaidOnly
// is set the booking's payment must not be paid either.
func (r *BookingRepo) Transition(ctx context.Context, id uint64, from, to model.BookingStatus, unpaidOnly bool) error {
	q := "UPDATE bookings SET booking_status=? WHERE id=? AND booking_status=?"
	if unpaidOnly {
		q += " AND payment_status<>'paid'"
	}
	res, err := r.db.ExecContext(ctx, q, string(to), id, string(from))
	if err != nil {
		return err
	}
	return expectTransition(res)
}

// expectTransition maps a conditional update that matched nothing to
// ErrConflict.
func expectTransition(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
