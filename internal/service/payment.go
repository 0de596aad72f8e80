package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/graphuraprojects/agrirent/internal/gateway"
	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/pricing"
	"github.com/graphuraprojects/agrirent/internal/queue"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

// PaymentGateway opens orders and checks callback signatures.
// *gateway.Razorpay satisfies it.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (gateway.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

// PaymentStore is the persistence PaymentService needs.
type PaymentStore interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByOrderID(ctx context.Context, orderID string) (model.Payment, error)
	List(ctx context.Context, q repository.PaymentQuery) ([]model.Payment, error)
	Confirm(ctx context.Context, c repository.Confirmation) (model.Invoice, error)
	MarkFailed(ctx context.Context, orderID string, farmerID uint64) (model.Payment, error)
}

// BookingReader loads a booking by id.
type BookingReader interface {
	GetByID(ctx context.Context, id uint64) (model.Booking, error)
}

// InvoiceReader loads the invoice of a booking.
type InvoiceReader interface {
	GetByBookingID(ctx context.Context, bookingID uint64) (model.Invoice, error)
}

// PaymentSettings are the money rules applied to every payment.
type PaymentSettings struct {
	CommissionRate decimal.Decimal
	TaxRate        decimal.Decimal
	Currency       string
}

// PaymentService runs the two-phase payment flow: order creation, then
// verification of the gateway's signed callback.
type PaymentService struct {
	payments PaymentStore
	bookings BookingReader
	machines MachineReader
	users    UserReader
	invoices InvoiceReader
	gw       PaymentGateway
	settings PaymentSettings
	notifier Notifier
	log      Logger
	now      clock
}

// NewPaymentService wires the service.  It panics on nil dependencies other
// than the notifier.
func NewPaymentService(payments PaymentStore, bookings BookingReader, machines MachineReader, users UserReader,
	invoices InvoiceReader, gw PaymentGateway, settings PaymentSettings, notifier Notifier, log Logger) *PaymentService {
	if payments == nil || bookings == nil || machines == nil || users == nil || invoices == nil || gw == nil || log == nil {
		panic("nil dependency")
	}
	if settings.Currency == "" {
		settings.Currency = "INR"
	}
	return &PaymentService{
		payments: payments,
		bookings: bookings,
		machines: machines,
		users:    users,
		invoices: invoices,
		gw:       gw,
		settings: settings,
		notifier: notifier,
		log:      log,
		now:      utcNow,
	}
}

// CreateOrderInput asks for a gateway order covering a booking.  The amount
// must repeat the booking total; it guards against a client paying a stale
// price.
type CreateOrderInput struct {
	BookingID   uint64          `json:"booking_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// OrderResult is what the client-side checkout needs.  Amount is in minor
// units.
type OrderResult struct {
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	KeyID     string `json:"key_id"`
	BookingID uint64 `json:"booking_id"`
	PaymentID uint64 `json:"payment_id"`
}

// CreateOrder opens a gateway order for the farmer's booking and records a
// pending payment attempt with its commission split.
func (s *PaymentService) CreateOrder(ctx context.Context, farmerID uint64, in CreateOrderInput) (OrderResult, error) {
	if in.BookingID == 0 {
		return OrderResult{}, fail(ErrValidation, "booking_id is required")
	}
	if !in.TotalAmount.IsPositive() {
		return OrderResult{}, fail(ErrValidation, "total_amount must be positive")
	}
	b, err := s.bookings.GetByID(ctx, in.BookingID)
	if err != nil {
		return OrderResult{}, notFound(err, "booking")
	}
	if b.FarmerID != farmerID {
		return OrderResult{}, fail(ErrForbidden, "booking belongs to another farmer")
	}
	if b.BookingStatus == model.BookingRejected || b.BookingStatus == model.BookingCancelled {
		return OrderResult{}, fail(ErrConflict, "a %s booking cannot be paid", b.BookingStatus)
	}
	if b.PaymentStatus == model.PaymentPaid {
		return OrderResult{}, fail(ErrConflict, "booking is already paid")
	}
	if !in.TotalAmount.Equal(b.TotalAmount) {
		return OrderResult{}, fail(ErrValidation, "total_amount %s does not match booking total %s",
			in.TotalAmount.StringFixed(2), b.TotalAmount.StringFixed(2))
	}

	minor := pricing.ToMinorUnits(b.TotalAmount)
	receipt := fmt.Sprintf("bk%d-%s", b.ID, uuid.NewString()[:8])
	order, err := s.gw.CreateOrder(ctx, minor, s.settings.Currency, receipt)
	if err != nil {
		s.log.Errorf("gateway order for booking %d: %v", b.ID, err)
		return OrderResult{}, fail(ErrGateway, "could not create payment order")
	}

	split := pricing.SplitCommission(b.TotalAmount, s.settings.CommissionRate)
	p := model.Payment{
		BookingID:       b.ID,
		FarmerID:        b.FarmerID,
		OwnerID:         b.OwnerID,
		TotalAmount:     b.TotalAmount,
		AdminCommission: split.Commission,
		OwnerAmount:     split.OwnerAmount,
		Currency:        s.settings.Currency,
		GatewayOrderID:  order.ID,
		PaymentMethod:   "razorpay",
	}
	if err := s.payments.Create(ctx, &p); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{
		OrderID:   order.ID,
		Amount:    minor,
		Currency:  s.settings.Currency,
		KeyID:     s.gw.KeyID(),
		BookingID: b.ID,
		PaymentID: p.ID,
	}, nil
}

// VerifyInput is the checkout callback relayed by the client.
type VerifyInput struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
	BookingID uint64 `json:"booking_id"`
}

// VerifyResult is the settled payment and the invoice issued for it.
// RefundRequired is set when the booking had been cancelled or rejected by
// the time the gateway captured the money.
type VerifyResult struct {
	Payment        model.Payment `json:"payment"`
	Invoice        model.Invoice `json:"invoice"`
	RefundRequired bool          `json:"refund_required"`
}

// Verify checks the callback signature and, if it matches, settles the
// payment: the attempt and the booking's payment_status become paid and an
// invoice is issued, all in one transaction.  booking_status is left alone;
// the owner's decision stays the only gate on the rental itself.  A capture
// on a booking that is already cancelled or rejected is still recorded, and
// flagged for a refund.
func (s *PaymentService) Verify(ctx context.Context, farmerID uint64, in VerifyInput) (VerifyResult, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	if in.OrderID == "" || in.PaymentID == "" || in.Signature == "" || in.BookingID == 0 {
		return VerifyResult{}, fail(ErrValidation,
			"razorpay_order_id, razorpay_payment_id, razorpay_signature and booking_id are required")
	}
	if !s.gw.VerifySignature(in.OrderID, in.PaymentID, in.Signature) {
		s.log.Warnf("signature mismatch for order %s (booking %d)", in.OrderID, in.BookingID)
		return VerifyResult{}, fail(ErrInvalidSignature, "payment signature does not match")
	}

	p, err := s.payments.GetByOrderID(ctx, in.OrderID)
	if err != nil {
		return VerifyResult{}, notFound(err, "payment order")
	}
	if p.FarmerID != farmerID {
		return VerifyResult{}, fail(ErrForbidden, "payment belongs to another farmer")
	}
	if p.BookingID != in.BookingID {
		return VerifyResult{}, fail(ErrValidation, "order does not belong to booking %d", in.BookingID)
	}
	if p.PaymentStatus != model.PaymentPending {
		return VerifyResult{}, fail(ErrConflict, "payment is already %s", p.PaymentStatus)
	}

	b, err := s.bookings.GetByID(ctx, p.BookingID)
	if err != nil {
		return VerifyResult{}, notFound(err, "booking")
	}
	machineName := ""
	if m, err := s.machines.GetByID(ctx, b.MachineID); err == nil {
		machineName = m.Name
	}
	amounts := pricing.Invoice(b.RentAmount, b.TransportFee, s.settings.CommissionRate, s.settings.TaxRate)
	now := s.now()
	inv, err := s.payments.Confirm(ctx, repository.Confirmation{
		OrderID:   in.OrderID,
		PaymentID: in.PaymentID,
		Signature: in.Signature,
		BookingID: b.ID,
		Invoice: model.Invoice{
			InvoiceNumber: InvoiceNumber(now, b.ID),
			BookingID:     b.ID,
			PaymentID:     p.ID,
			FarmerID:      b.FarmerID,
			OwnerID:       b.OwnerID,
			MachineName:   machineName,
			Hours:         b.TotalHours,
			Subtotal:      amounts.Subtotal,
			TransportFee:  amounts.TransportFee,
			PlatformFee:   amounts.PlatformFee,
			Tax:           amounts.Tax,
			OwnerPayout:   amounts.OwnerPayout,
			GrandTotal:    amounts.GrandTotal,
			CreatedAt:     now,
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return VerifyResult{}, fail(ErrConflict, "payment was already settled")
		}
		return VerifyResult{}, err
	}

	paid, err := s.payments.GetByOrderID(ctx, in.OrderID)
	if err != nil {
		return VerifyResult{}, err
	}
	s.log.Infof("booking %d paid: order=%s payment=%s amount=%s", b.ID, in.OrderID, in.PaymentID, p.TotalAmount.StringFixed(2))
	res := VerifyResult{Payment: paid, Invoice: inv}

	// the booking may have been cancelled or rejected while the order was open
	if current, err := s.bookings.GetByID(ctx, b.ID); err == nil {
		b = current
	}
	if b.BookingStatus == model.BookingCancelled || b.BookingStatus == model.BookingRejected {
		res.RefundRequired = true
		s.log.Warnf("booking %d is %s but payment %s of %s was captured; refund required",
			b.ID, b.BookingStatus, in.PaymentID, p.TotalAmount.StringFixed(2))
		notifyAdmins(ctx, s.users, s.notifier, s.log, queue.KindRefundRequired,
			fmt.Sprintf("Refund required for booking #%d", b.ID),
			fmt.Sprintf("Payment %s of %s %s was captured for booking #%d, which is already %s.",
				in.PaymentID, p.TotalAmount.StringFixed(2), p.Currency, b.ID, b.BookingStatus))
	}
	for _, uid := range []uint64{b.FarmerID, b.OwnerID} {
		if u, err := s.users.GetByID(ctx, uid); err == nil {
			notify(ctx, s.notifier, s.log, queue.NewNotification(queue.KindPaymentReceived, u.Email,
				fmt.Sprintf("Payment received for booking #%d", b.ID),
				fmt.Sprintf("Payment of %s %s for booking #%d was received. Invoice %s.",
					p.TotalAmount.StringFixed(2), p.Currency, b.ID, inv.InvoiceNumber)))
		}
	}
	return res, nil
}

// InvoiceNumber formats the number of a booking's invoice.  A booking has at
// most one invoice, so the booking id keeps the number unique.
func InvoiceNumber(at time.Time, bookingID uint64) string {
	return fmt.Sprintf("INV-%s-%06d", at.Format("20060102"), bookingID)
}

// MarkFailedInput reports a checkout the client saw fail.
type MarkFailedInput struct {
	OrderID string `json:"razorpay_order_id"`
}

// MarkFailed records a failed payment attempt.  A booking already paid
// through another attempt keeps its paid status.
func (s *PaymentService) MarkFailed(ctx context.Context, farmerID uint64, in MarkFailedInput) (model.Payment, error) {
	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		return model.Payment{}, fail(ErrValidation, "razorpay_order_id is required")
	}
	p, err := s.payments.MarkFailed(ctx, orderID, farmerID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return p, fail(ErrNotFound, "payment order not found")
	case errors.Is(err, repository.ErrForbidden):
		return p, fail(ErrForbidden, "payment belongs to another farmer")
	case errors.Is(err, repository.ErrConflict):
		return p, fail(ErrConflict, "payment is already settled")
	}
	return p, err
}

// ListPayments returns the payment history visible to actor.
func (s *PaymentService) ListPayments(ctx context.Context, actor model.Actor) ([]model.Payment, error) {
	var q repository.PaymentQuery
	switch actor.Role {
	case model.RoleFarmer:
		q.FarmerID = actor.ID
	case model.RoleOwner:
		q.OwnerID = actor.ID
	case model.RoleAdmin:
	default:
		return nil, fail(ErrForbidden, "unknown role")
	}
	return s.payments.List(ctx, q)
}

// Invoice returns the invoice of a paid booking to its farmer, its owner or
// an admin.
func (s *PaymentService) Invoice(ctx context.Context, actor model.Actor, bookingID uint64) (model.Invoice, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.Invoice{}, notFound(err, "booking")
	}
	if !b.VisibleTo(actor) {
		return model.Invoice{}, fail(ErrForbidden, "you cannot view this invoice")
	}
	inv, err := s.invoices.GetByBookingID(ctx, bookingID)
	if err != nil {
		return model.Invoice{}, notFound(err, "invoice")
	}
	return inv, nil
}
