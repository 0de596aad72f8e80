package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/graphuraprojects/agrirent/internal/geo"
	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/pricing"
	"github.com/graphuraprojects/agrirent/internal/queue"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

// BookingStore is the persistence BookingService needs.  *repository.BookingRepo
// satisfies it.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (model.Booking, error)
	List(ctx context.Context, q repository.BookingQuery) ([]model.Booking, error)
	Decide(ctx context.Context, id uint64, to model.BookingStatus, reason *string, at time.Time) error
	Transition(ctx context.Context, id uint64, from, to model.BookingStatus, unpaidOnly bool) error
}

// MachineReader loads a machine by id.
type MachineReader interface {
	GetByID(ctx context.Context, id uint64) (model.Machine, error)
}

// UserReader loads users, for ownership checks and notification addresses.
type UserReader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	List(ctx context.Context, role model.Role) ([]model.User, error)
}

// AddressReader resolves a user's default address.
type AddressReader interface {
	DefaultForUser(ctx context.Context, userID uint64) (model.Address, error)
}

// BookingService runs the booking state machine.
type BookingService struct {
	bookings  BookingStore
	machines  MachineReader
	users     UserReader
	addresses AddressReader
	notifier  Notifier
	log       Logger
	now       clock
}

// NewBookingService wires the service.  It panics on nil dependencies;
// the notifier may be nil, which disables notifications.
func NewBookingService(bookings BookingStore, machines MachineReader, users UserReader, addresses AddressReader, notifier Notifier, log Logger) *BookingService {
	if bookings == nil || machines == nil || users == nil || addresses == nil || log == nil {
		panic("nil dependency")
	}
	return &BookingService{
		bookings:  bookings,
		machines:  machines,
		users:     users,
		addresses: addresses,
		notifier:  notifier,
		log:       log,
		now:       utcNow,
	}
}

// CreateBookingInput is a farmer's booking request.  EndTime defaults to
// StartTime + Hours.
type CreateBookingInput struct {
	MachineID uint64     `json:"machine_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Hours     float64    `json:"hours"`
}

func (in CreateBookingInput) validate() error {
	if in.MachineID == 0 {
		return fail(ErrValidation, "machine_id is required")
	}
	if in.StartTime.IsZero() {
		return fail(ErrValidation, "start_time is required")
	}
	if math.IsNaN(in.Hours) || math.IsInf(in.Hours, 0) || in.Hours <= 0 {
		return fail(ErrValidation, "hours must be a positive number")
	}
	if in.EndTime != nil && !in.EndTime.After(in.StartTime) {
		return fail(ErrValidation, "end_time must be after start_time")
	}
	return nil
}

// Create books a machine for a farmer.  The price is computed from the
// machine's hourly rate and the distance between the farmer's default
// address and the machine.  The booking starts pending/pending.
func (s *BookingService) Create(ctx context.Context, farmerID uint64, in CreateBookingInput) (model.Booking, error) {
	if err := in.validate(); err != nil {
		return model.Booking{}, err
	}
	farmer, err := s.users.GetByID(ctx, farmerID)
	if err != nil {
		return model.Booking{}, notFound(err, "farmer")
	}
	m, err := s.machines.GetByID(ctx, in.MachineID)
	if err != nil {
		return model.Booking{}, notFound(err, "machine")
	}
	if !m.Bookable() {
		return model.Booking{}, fail(ErrConflict, "machine is not available for booking")
	}
	addr, err := s.addresses.DefaultForUser(ctx, farmer.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, fail(ErrPrecondition, "a default address is required to book")
	}
	if err != nil {
		return model.Booking{}, err
	}
	if !addr.HasCoordinates() {
		return model.Booking{}, fail(ErrPrecondition, "default address has no location")
	}
	if !m.HasCoordinates() {
		return model.Booking{}, fail(ErrPrecondition, "machine has no location")
	}

	dist := geo.DistanceKm(geo.Point{Lat: *addr.Lat, Lng: *addr.Lng}, geo.Point{Lat: *m.Lat, Lng: *m.Lng})
	q := pricing.Quote(in.Hours, m.PricePerHour, dist, m.TransportRatePerKm)

	start := in.StartTime.UTC()
	end := start.Add(time.Duration(in.Hours * float64(time.Hour)))
	if in.EndTime != nil {
		end = in.EndTime.UTC()
	}
	b := model.Booking{
		FarmerID:     farmer.ID,
		MachineID:    m.ID,
		OwnerID:      m.OwnerID,
		StartTime:    start,
		EndTime:      end,
		TotalHours:   q.Hours,
		DistanceKm:   q.DistanceKm,
		RentAmount:   q.RentAmount,
		TransportFee: q.TransportFee,
		TotalAmount:  q.TotalAmount,
	}
	if err := s.bookings.Create(ctx, &b); err != nil {
		return model.Booking{}, err
	}

	if owner, err := s.users.GetByID(ctx, m.OwnerID); err == nil {
		notify(ctx, s.notifier, s.log, queue.NewNotification(queue.KindBookingCreated, owner.Email,
			"New booking request for "+m.Name,
			fmt.Sprintf("%s requested %s for %s hours starting %s. Total: %s.",
				farmer.Name, m.Name, q.Hours, start.Format(time.RFC1123), q.TotalAmount.StringFixed(2))))
	}
	return b, nil
}

// DecisionInput is an owner's or admin's answer to a pending booking.
type DecisionInput struct {
	Action          string `json:"action"`
	RejectionReason string `json:"rejection_reason"`
}

// DecisionResult reports the decided booking.  RefundRequired is set when a
// booking that was already paid got rejected; the refund itself is handled
// by an operator.
type DecisionResult struct {
	Booking        model.Booking `json:"booking"`
	RefundRequired bool          `json:"refund_required"`
}

// Decide accepts or rejects a pending booking.  Only the machine's owner or
// an admin may decide, and only once: the update is conditional on the
// booking still being pending, so of two concurrent decisions exactly one
// succeeds and the other gets ErrConflict.
func (s *BookingService) Decide(ctx context.Context, actor model.Actor, bookingID uint64, in DecisionInput) (DecisionResult, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return DecisionResult{}, notFound(err, "booking")
	}
	if !actor.IsAdmin() && !(actor.Role == model.RoleOwner && b.OwnerID == actor.ID) {
		return DecisionResult{}, fail(ErrForbidden, "only the machine owner or an admin can decide on this booking")
	}

	var target model.BookingStatus
	var reason *string
	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "accept":
		target = model.BookingAccepted
	case "reject":
		target = model.BookingRejected
		r := strings.TrimSpace(in.RejectionReason)
		if r == "" {
			return DecisionResult{}, fail(ErrValidation, "rejection_reason is required")
		}
		reason = &r
	default:
		return DecisionResult{}, fail(ErrValidation, `action must be "accept" or "reject"`)
	}
	if !b.BookingStatus.CanTransition(target, actor.Role) {
		return DecisionResult{}, fail(ErrConflict, "booking is already %s", b.BookingStatus)
	}

	if err := s.bookings.Decide(ctx, b.ID, target, reason, s.now()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return DecisionResult{}, fail(ErrConflict, "booking was already decided")
		}
		return DecisionResult{}, err
	}
	updated, err := s.bookings.GetByID(ctx, b.ID)
	if err != nil {
		return DecisionResult{}, err
	}

	res := DecisionResult{Booking: updated}
	if target == model.BookingRejected && updated.PaymentStatus == model.PaymentPaid {
		res.RefundRequired = true
		s.log.Warnf("booking %d rejected after payment of %s; refund required", updated.ID, updated.TotalAmount.StringFixed(2))
		notifyAdmins(ctx, s.users, s.notifier, s.log, queue.KindRefundRequired,
			fmt.Sprintf("Refund required for booking #%d", updated.ID),
			fmt.Sprintf("Booking #%d was rejected after the farmer paid %s. Reason: %s",
				updated.ID, updated.TotalAmount.StringFixed(2), *reason))
	}

	if farmer, err := s.users.GetByID(ctx, updated.FarmerID); err == nil {
		body := fmt.Sprintf("Your booking #%d was %s.", updated.ID, updated.BookingStatus)
		if reason != nil {
			body += " Reason: " + *reason
		}
		notify(ctx, s.notifier, s.log, queue.NewNotification(queue.KindBookingDecided, farmer.Email,
			fmt.Sprintf("Booking #%d %s", updated.ID, updated.BookingStatus), body))
	}
	return res, nil
}

// Cancel lets the farmer withdraw a booking that is pending, or accepted
// but not yet paid.
func (s *BookingService) Cancel(ctx context.Context, actor model.Actor, bookingID uint64) (model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, notFound(err, "booking")
	}
	if actor.Role != model.RoleFarmer || b.FarmerID != actor.ID {
		return model.Booking{}, fail(ErrForbidden, "only the farmer who booked can cancel")
	}
	if !b.BookingStatus.CanTransition(model.BookingCancelled, actor.Role) {
		return model.Booking{}, fail(ErrConflict, "a %s booking cannot be cancelled", b.BookingStatus)
	}
	unpaidOnly := b.BookingStatus == model.BookingAccepted
	if unpaidOnly && b.PaymentStatus == model.PaymentPaid {
		return model.Booking{}, fail(ErrConflict, "a paid booking cannot be cancelled")
	}
	if err := s.bookings.Transition(ctx, b.ID, b.BookingStatus, model.BookingCancelled, unpaidOnly); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Booking{}, fail(ErrConflict, "booking changed while cancelling; reload and retry")
		}
		return model.Booking{}, err
	}
	updated, err := s.bookings.GetByID(ctx, b.ID)
	if err != nil {
		return model.Booking{}, err
	}
	if owner, err := s.users.GetByID(ctx, updated.OwnerID); err == nil {
		notify(ctx, s.notifier, s.log, queue.NewNotification(queue.KindBookingCancelled, owner.Email,
			fmt.Sprintf("Booking #%d cancelled", updated.ID),
			fmt.Sprintf("The farmer cancelled booking #%d.", updated.ID)))
	}
	return updated, nil
}

// Complete closes an accepted booking once the rental is over.
func (s *BookingService) Complete(ctx context.Context, actor model.Actor, bookingID uint64) (model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, notFound(err, "booking")
	}
	if !actor.IsAdmin() && !(actor.Role == model.RoleOwner && b.OwnerID == actor.ID) {
		return model.Booking{}, fail(ErrForbidden, "only the machine owner or an admin can complete this booking")
	}
	if !b.BookingStatus.CanTransition(model.BookingCompleted, actor.Role) {
		return model.Booking{}, fail(ErrConflict, "a %s booking cannot be completed", b.BookingStatus)
	}
	if err := s.bookings.Transition(ctx, b.ID, model.BookingAccepted, model.BookingCompleted, false); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Booking{}, fail(ErrConflict, "booking changed while completing; reload and retry")
		}
		return model.Booking{}, err
	}
	return s.bookings.GetByID(ctx, b.ID)
}

// List returns the bookings visible to actor: a farmer's own bookings, the
// bookings on an owner's machines, or everything for an admin.  status
// optionally filters by booking status.
func (s *BookingService) List(ctx context.Context, actor model.Actor, status string) ([]model.Booking, error) {
	var q repository.BookingQuery
	if status != "" {
		st, err := model.ParseBookingStatus(strings.ToLower(status))
		if err != nil {
			return nil, fail(ErrValidation, "%v", err)
		}
		q.Status = st
	}
	switch actor.Role {
	case model.RoleFarmer:
		q.FarmerID = actor.ID
	case model.RoleOwner:
		q.OwnerID = actor.ID
	case model.RoleAdmin:
	default:
		return nil, fail(ErrForbidden, "unknown role")
	}
	return s.bookings.List(ctx, q)
}

// Get returns one booking if actor may see it.
func (s *BookingService) Get(ctx context.Context, actor model.Actor, bookingID uint64) (model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, notFound(err, "booking")
	}
	if !b.VisibleTo(actor) {
		return model.Booking{}, fail(ErrForbidden, "you cannot view this booking")
	}
	return b, nil
}
