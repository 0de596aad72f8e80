package model

import (
    "fmt"
    "time"

    "github.com/shopspring/decimal"
)

// BookingStatus is the owner-facing lifecycle of a booking.  It is an
// independent axis from PaymentStatus: a paid booking may still be pending.
type BookingStatus string

const (
    BookingPending   BookingStatus = "pending"
    BookingAccepted  BookingStatus = "accepted"
    BookingRejected  BookingStatus = "rejected"
    BookingCancelled BookingStatus = "cancelled"
    BookingCompleted BookingStatus = "completed"
)

// PaymentStatus is shared by bookings and payment attempts.
type PaymentStatus string

const (
    PaymentPending PaymentStatus = "pending"
    PaymentPaid    PaymentStatus = "paid"
    PaymentFailed  PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
    return s == PaymentPending || s == PaymentPaid || s == PaymentFailed
}

// RevenueStatuses are the booking statuses counted as revenue by both the
// earnings summary and the dashboard.
var RevenueStatuses = []BookingStatus{BookingAccepted, BookingCompleted}

// Actor is the authenticated caller of an operation.
type Actor struct {
    ID   uint64
    Role Role
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// transition describes one legal edge of the booking graph.
type transition struct {
    to    BookingStatus
    roles []Role
}

// bookingTransitions lists every legal edge.  Nothing leads back into
// pending and the last three states have no outgoing edges.
var bookingTransitions = map[BookingStatus][]transition{
    BookingPending: {
        {BookingAccepted, []Role{RoleOwner, RoleAdmin}},
        {BookingRejected, []Role{RoleOwner, RoleAdmin}},
        {BookingCancelled, []Role{RoleFarmer}},
    },
    BookingAccepted: {
        {BookingCompleted, []Role{RoleOwner, RoleAdmin}},
        {BookingCancelled, []Role{RoleFarmer}},
    },
    BookingRejected:  {},
    BookingCancelled: {},
    BookingCompleted: {},
}

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
    _, ok := bookingTransitions[s]
    return ok
}

// IsTerminal reports whether no transition leaves s.
func (s BookingStatus) IsTerminal() bool {
    return len(bookingTransitions[s]) == 0
}

// CanTransition reports whether role may move a booking from s to target.
func (s BookingStatus) CanTransition(target BookingStatus, role Role) bool {
    for _, t := range bookingTransitions[s] {
        if t.to != target {
            continue
        }
        for _, r := range t.roles {
            if r == role {
                return true
            }
        }
    }
    return false
}

// ParseBookingStatus converts a query value into a BookingStatus.
func ParseBookingStatus(s string) (BookingStatus, error) {
    st := BookingStatus(s)
    if !st.Valid() {
        return "", fmt.Errorf("invalid booking status: %q", s)
    }
    return st, nil
}

// Booking links a farmer, a machine and (denormalized) its owner.
type Booking struct {
    ID              uint64          `json:"id"`
    FarmerID        uint64          `json:"farmer_id"`
    MachineID       uint64          `json:"machine_id"`
    OwnerID         uint64          `json:"owner_id"`
    StartTime       time.Time       `json:"start_time"`
    EndTime         time.Time       `json:"end_time"`
    TotalHours      decimal.Decimal `json:"total_hours"`
    DistanceKm      decimal.Decimal `json:"distance_km"`
    RentAmount      decimal.Decimal `json:"rent_amount"`
    TransportFee    decimal.Decimal `json:"transport_fee"`
    TotalAmount     decimal.Decimal `json:"total_amount"`
    BookingStatus   BookingStatus   `json:"booking_status"`
    PaymentStatus   PaymentStatus   `json:"payment_status"`
    RejectionReason *string         `json:"rejection_reason,omitempty"`
    DecidedAt       *time.Time      `json:"decided_at,omitempty"`
    CreatedAt       time.Time       `json:"created_at"`
    UpdatedAt       time.Time       `json:"updated_at"`
}

// VisibleTo reports whether the actor may read the booking.
func (b Booking) VisibleTo(a Actor) bool {
    switch a.Role {
    case RoleAdmin:
        return true
    case RoleOwner:
        return b.OwnerID == a.ID
    case RoleFarmer:
        return b.FarmerID == a.ID
    }
    return false
}
