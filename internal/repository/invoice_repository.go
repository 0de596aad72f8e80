package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/graphuraprojects/agrirent/internal/model"
)

// InvoiceRepo reads invoices.  Invoices are only ever inserted by
// PaymentRepo.Confirm and never updated.
type InvoiceRepo struct{ db *sql.DB }

// NewInvoiceRepo returns a new InvoiceRepo bound to the given database.
func NewInvoiceRepo(db *sql.DB) *InvoiceRepo { return &InvoiceRepo{db: db} }

const invoiceColumns = `id, invoice_number, booking_id, payment_id, farmer_id, owner_id, machine_name, hours,
	subtotal, transport_fee, platform_fee, tax, owner_payout, grand_total, created_at`

// GetByBookingID returns the invoice of a paid booking.
func (r *InvoiceRepo) GetByBookingID(ctx context.Context, bookingID uint64) (model.Invoice, error) {
	var inv model.Invoice
	err := r.db.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE booking_id=?", bookingID).Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.BookingID, &inv.PaymentID, &inv.FarmerID, &inv.OwnerID, &inv.MachineName, &inv.Hours,
		&inv.Subtotal, &inv.TransportFee, &inv.PlatformFee, &inv.Tax, &inv.OwnerPayout, &inv.GrandTotal, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return inv, ErrNotFound
	}
	return inv, err
}

func insertInvoiceTx(ctx context.Context, tx *sql.Tx, inv model.Invoice) (model.Invoice, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO invoices
		(invoice_number, booking_id, payment_id, farmer_id, owner_id, machine_name, hours,
		 subtotal, transport_fee, platform_fee, tax, owner_payout, grand_total)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		inv.InvoiceNumber, inv.BookingID, inv.PaymentID, inv.FarmerID, inv.OwnerID, inv.MachineName, inv.Hours,
		inv.Subtotal, inv.TransportFee, inv.PlatformFee, inv.Tax, inv.OwnerPayout, inv.GrandTotal)
	if err != nil {
		return inv, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return inv, err
	}
	inv.ID = uint64(id)
	return inv, nil
}
