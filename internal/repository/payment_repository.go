package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/graphuraprojects/agrirent/internal/database"
	"github.com/graphuraprojects/agrirent/internal/model"
)

// PaymentRepo provides persistence for payment attempts.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// PaymentQuery filters List.  Zero values mean "no filter".
type PaymentQuery struct {
	FarmerID uint64
	OwnerID  uint64
}

// Confirmation carries a verified gateway callback together with the
// invoice to record for it.
type Confirmation struct {
	OrderID   string
	PaymentID string
	Signature string
	BookingID uint64
	Invoice   model.Invoice
}

const paymentColumns = `id, booking_id, farmer_id, owner_id, total_amount, admin_commission, owner_amount, currency,
	razorpay_order_id, razorpay_payment_id, razorpay_signature, payment_status, payment_method, created_at, updated_at`

func scanPayment(s scanner) (model.Payment, error) {
	var p model.Payment
	var pid, sig sql.NullString
	var status string
	err := s.Scan(&p.ID, &p.BookingID, &p.FarmerID, &p.OwnerID, &p.TotalAmount, &p.AdminCommission, &p.OwnerAmount, &p.Currency,
		&p.GatewayOrderID, &pid, &sig, &status, &p.PaymentMethod, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	p.PaymentStatus = model.PaymentStatus(status)
	if pid.Valid {
		v := pid.String
		p.GatewayPaymentID = &v
	}
	if sig.Valid {
		v := sig.String
		p.GatewaySignature = &v
	}
	return p, nil
}

// Create inserts a pending payment attempt.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO payments
		(booking_id, farmer_id, owner_id, total_amount, admin_commission, owner_amount, currency,
		 razorpay_order_id, payment_status, payment_method)
		VALUES (?,?,?,?,?,?,?,?,'pending',?)`,
		p.BookingID, p.FarmerID, p.OwnerID, p.TotalAmount, p.AdminCommission, p.OwnerAmount, p.Currency,
		p.GatewayOrderID, p.PaymentMethod)
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
	p.ID = uint64(id)
	p.PaymentStatus = model.PaymentPending
	return nil
}

// GetByOrderID fetches the payment attempt for a gateway order.
func (r *PaymentRepo) GetByOrderID(ctx context.Context, orderID string) (model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE razorpay_order_id=?", orderID))
}

// List returns payment attempts newest first.
func (r *PaymentRepo) List(ctx context.Context, q PaymentQuery) ([]model.Payment, error) {
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
	query := "SELECT " + paymentColumns + " FROM payments"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Confirm records a verified payment.  Within one transaction it flips the
// payment attempt to paid, flips the booking's payment_status to paid and
// inserts the invoice.  booking_status is not touched.  If the attempt is no
// longer pending, or the booking was already paid through another attempt,
// nothing is written and ErrConflict is returned.
func (r *PaymentRepo) Confirm(ctx context.Context, c Confirmation) (model.Invoice, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Invoice{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE payments
		SET payment_status='paid', razorpay_payment_id=?, razorpay_signature=?
		WHERE razorpay_order_id=? AND booking_id=? AND payment_status='pending'`,
		c.PaymentID, c.Signature, c.OrderID, c.BookingID)
	if err != nil {
		return model.Invoice{}, err
	}
	if err := expectTransition(res); err != nil {
		return model.Invoice{}, err
	}

	res, err = tx.ExecContext(ctx,
		"UPDATE bookings SET payment_status='paid' WHERE id=? AND payment_status<>'paid'", c.BookingID)
	if err != nil {
		return model.Invoice{}, err
	}
	if err := expectTransition(res); err != nil {
		return model.Invoice{}, err
	}

	inv, err := insertInvoiceTx(ctx, tx, c.Invoice)
	if err != nil {
		return model.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Invoice{}, err
	}
	committed = true
	return inv, nil
}

// MarkFailed records a failed attempt reported by the client.  The booking's
// payment_status becomes failed unless it was already paid.
func (r *PaymentRepo) MarkFailed(ctx context.Context, orderID string, farmerID uint64) (model.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Payment{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	p, err := scanPayment(tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE razorpay_order_id=? FOR UPDATE", orderID))
	if err != nil {
		return p, err
	}
	if p.FarmerID != farmerID {
		return p, ErrForbidden
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE payments SET payment_status='failed' WHERE id=? AND payment_status='pending'", p.ID)
	if err != nil {
		return p, err
	}
	if err := expectTransition(res); err != nil {
		return p, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE bookings SET payment_status='failed' WHERE id=? AND payment_status='pending'", p.BookingID); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	committed = true
	p.PaymentStatus = model.PaymentFailed
	return p, nil
}
