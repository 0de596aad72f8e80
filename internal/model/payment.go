package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Payment is one payment attempt for a booking.  It is created pending when
// the gateway order is opened and flipped exactly once by the verified
// callback.  AdminCommission + OwnerAmount == TotalAmount.
type Payment struct {
    ID               uint64          `json:"id"`
    BookingID        uint64          `json:"booking_id"`
    FarmerID         uint64          `json:"farmer_id"`
    OwnerID          uint64          `json:"owner_id"`
    TotalAmount      decimal.Decimal `json:"total_amount"`
    AdminCommission  decimal.Decimal `json:"admin_commission"`
    OwnerAmount      decimal.Decimal `json:"owner_amount"`
    Currency         string          `json:"currency"`
    GatewayOrderID   string          `json:"razorpay_order_id"`
    GatewayPaymentID *string         `json:"razorpay_payment_id,omitempty"`
    GatewaySignature *string         `json:"-"`
    PaymentStatus    PaymentStatus   `json:"payment_status"`
    PaymentMethod    string          `json:"payment_method"`
    CreatedAt        time.Time       `json:"created_at"`
    UpdatedAt        time.Time       `json:"updated_at"`
}

// Invoice is generated once when a booking is paid.  Figures are computed at
// that moment and not synced afterwards.
type Invoice struct {
    ID            uint64          `json:"id"`
    InvoiceNumber string          `json:"invoice_number"`
    BookingID     uint64          `json:"booking_id"`
    PaymentID     uint64          `json:"payment_id"`
    FarmerID      uint64          `json:"farmer_id"`
    OwnerID       uint64          `json:"owner_id"`
    MachineName   string          `json:"machine_name"`
    Hours         decimal.Decimal `json:"hours"`
    Subtotal      decimal.Decimal `json:"subtotal"`
    TransportFee  decimal.Decimal `json:"transport_fee"`
    PlatformFee   decimal.Decimal `json:"platform_fee"`
    Tax           decimal.Decimal `json:"tax"`
    OwnerPayout   decimal.Decimal `json:"owner_payout"`
    GrandTotal    decimal.Decimal `json:"grand_total"`
    CreatedAt     time.Time       `json:"created_at"`
}

// Coupon is an admin-managed discount code.  Redemption is not wired into the
// booking flow.
type Coupon struct {
    ID         uint64     `json:"id"`
    Code       string     `json:"code"`
    Percentage int        `json:"percentage"`
    IsActive   bool       `json:"is_active"`
    ExpiresAt  *time.Time `json:"expires_at,omitempty"`
    CreatedAt  time.Time  `json:"created_at"`
}

// Usable reports whether the coupon is active and unexpired at now.
func (c Coupon) Usable(now time.Time) bool {
    return c.IsActive && (c.ExpiresAt == nil || now.Before(*c.ExpiresAt))
}
