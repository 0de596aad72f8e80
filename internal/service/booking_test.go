package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/queue"
)

// tenKmNorth is the latitude offset of a point 10 km north of the equator.
const tenKmNorth = 0.0899321606

type bookingWorld struct {
	*fixture
	farmer, owner, otherOwner, admin model.User
	machine                          model.Machine
}

func newBookingWorld(t *testing.T) *bookingWorld {
	t.Helper()
	fx := newFixture()
	w := &bookingWorld{fixture: fx}
	w.farmer = fx.addUser(model.RoleFarmer, "farmer@example.com")
	w.owner = fx.addUser(model.RoleOwner, "owner@example.com")
	w.otherOwner = fx.addUser(model.RoleOwner, "other@example.com")
	w.admin = fx.addUser(model.RoleAdmin, "admin@example.com")
	w.machine = fx.addMachine(w.owner.ID, "100", "5", tenKmNorth, 0)
	fx.addAddress(w.farmer.ID, ptr(0.0), ptr(0.0))
	return w
}

func (w *bookingWorld) book(t *testing.T) model.Booking {
	t.Helper()
	b, err := w.booking.Create(context.Background(), w.farmer.ID, CreateBookingInput{
		MachineID: w.machine.ID,
		StartTime: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		Hours:     3,
	})
	require.NoError(t, err)
	return b
}

func actorOf(u model.User) model.Actor { return model.Actor{ID: u.ID, Role: u.Role} }

func TestCreateBooking_PricesRentAndTransport(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)

	assert.Equal(t, model.BookingPending, b.BookingStatus)
	assert.Equal(t, model.PaymentPending, b.PaymentStatus)
	assert.Equal(t, w.owner.ID, b.OwnerID)
	assert.True(t, b.RentAmount.Equal(decimal.NewFromInt(300)), "rent %s", b.RentAmount)
	assert.True(t, b.TransportFee.Equal(decimal.NewFromInt(50)), "transport %s", b.TransportFee)
	assert.True(t, b.TotalAmount.Equal(decimal.NewFromInt(350)), "total %s", b.TotalAmount)
	assert.Equal(t, b.StartTime.Add(3*time.Hour), b.EndTime)

	sent := w.notifier.ofKind(queue.KindBookingCreated)
	require.Len(t, sent, 1)
	assert.Equal(t, w.owner.Email, sent[0].To)
}

func TestCreateBooking_Rejections(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("non-positive hours", func(t *testing.T) {
		w := newBookingWorld(t)
		_, err := w.booking.Create(ctx, w.farmer.ID, CreateBookingInput{MachineID: w.machine.ID, StartTime: start, Hours: 0})
		assert.ErrorIs(t, err, ErrValidation)
	})
	t.Run("end before start", func(t *testing.T) {
		w := newBookingWorld(t)
		end := start.Add(-time.Hour)
		_, err := w.booking.Create(ctx, w.farmer.ID, CreateBookingInput{MachineID: w.machine.ID, StartTime: start, EndTime: &end, Hours: 1})
		assert.ErrorIs(t, err, ErrValidation)
	})
	t.Run("unknown machine", func(t *testing.T) {
		w := newBookingWorld(t)
		_, err := w.booking.Create(ctx, w.farmer.ID, CreateBookingInput{MachineID: 999, StartTime: start, Hours: 1})
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("unknown farmer", func(t *testing.T) {
		w := newBookingWorld(t)
		_, err := w.booking.Create(ctx, 999, CreateBookingInput{MachineID: w.machine.ID, StartTime: start, Hours: 1})
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("machine not approved", func(t *testing.T) {
		w := newBookingWorld(t)
		m := w.db.machines[w.machine.ID]
		m.IsApproved = false
		w.db.machines[m.ID] = m
		_, err := w.booking.Create(ctx, w.farmer.ID, CreateBookingInput{MachineID: m.ID, StartTime: start, Hours: 1})
		assert.ErrorIs(t, err, ErrConflict)
	})
	t.Run("machine switched off", func(t *testing.T) {
		w := newBookingWorld(t)
		m := w.db.machines[w.machine.ID]
		m.AvailabilityStatus = false
		w.db.machines[m.ID] = m
		_, err := w.booking.Create(ctx, w.farmer.ID, CreateBookingInput{MachineID: m.ID, StartTime: start, Hours: 1})
		assert.ErrorIs(t, err, ErrConflict)
	})
	t.Run("no address", func(t *testing.T) {
		w := newBookingWorld(t)
		delete(w.db.addresses, w.farmer.ID)
		_, err := w.booking.Create(ctx, w.farmer.ID, CreateBookingInput{MachineID: w.machine.ID, StartTime: start, Hours: 1})
		assert.ErrorIs(t, err, ErrPrecondition)
	})
	t.Run("address without location", func(t *testing.T) {
		w := newBookingWorld(t)
		w.fixture.addAddress(w.farmer.ID, nil, nil)
		_, err := w.booking.Create(ctx, w.farmer.ID, CreateBookingInput{MachineID: w.machine.ID, StartTime: start, Hours: 1})
		assert.ErrorIs(t, err, ErrPrecondition)
	})
	t.Run("machine without location", func(t *testing.T) {
		w := newBookingWorld(t)
		m := w.db.machines[w.machine.ID]
		m.Lat, m.Lng = nil, nil
		w.db.machines[m.ID] = m
		_, err := w.booking.Create(ctx, w.farmer.ID, CreateBookingInput{MachineID: m.ID, StartTime: start, Hours: 1})
		assert.ErrorIs(t, err, ErrPrecondition)
	})
}

func TestDecide_AcceptNotifiesFarmer(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)

	res, err := w.booking.Decide(context.Background(), actorOf(w.owner), b.ID, DecisionInput{Action: "accept"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingAccepted, res.Booking.BookingStatus)
	assert.False(t, res.RefundRequired)
	require.NotNil(t, res.Booking.DecidedAt)

	sent := w.notifier.ofKind(queue.KindBookingDecided)
	require.Len(t, sent, 1)
	assert.Equal(t, w.farmer.Email, sent[0].To)
}

func TestDecide_RejectNeedsReason(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)

	_, err := w.booking.Decide(context.Background(), actorOf(w.owner), b.ID, DecisionInput{Action: "reject", RejectionReason: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	res, err := w.booking.Decide(context.Background(), actorOf(w.owner), b.ID, DecisionInput{Action: "reject", RejectionReason: " busy that week "})
	require.NoError(t, err)
	assert.Equal(t, model.BookingRejected, res.Booking.BookingStatus)
	require.NotNil(t, res.Booking.RejectionReason)
	assert.Equal(t, "busy that week", *res.Booking.RejectionReason)
}

func TestDecide_UnknownAction(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)
	_, err := w.booking.Decide(context.Background(), actorOf(w.owner), b.ID, DecisionInput{Action: "confirm"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDecide_OnlyOwningOwnerOrAdmin(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)
	ctx := context.Background()

	_, err := w.booking.Decide(ctx, actorOf(w.otherOwner), b.ID, DecisionInput{Action: "accept"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = w.booking.Decide(ctx, actorOf(w.farmer), b.ID, DecisionInput{Action: "accept"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, model.BookingPending, w.db.bookings[b.ID].BookingStatus)

	res, err := w.booking.Decide(ctx, actorOf(w.admin), b.ID, DecisionInput{Action: "accept"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingAccepted, res.Booking.BookingStatus)
}

func TestDecide_SecondDecisionConflicts(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)
	ctx := context.Background()

	_, err := w.booking.Decide(ctx, actorOf(w.owner), b.ID, DecisionInput{Action: "accept"})
	require.NoError(t, err)
	_, err = w.booking.Decide(ctx, actorOf(w.owner), b.ID, DecisionInput{Action: "reject", RejectionReason: "changed my mind"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, model.BookingAccepted, w.db.bookings[b.ID].BookingStatus)
}

func TestDecide_LosesRaceToConcurrentDecision(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)

	// the admin rejects between the owner's read and the owner's update
	w.bookings.beforeUpdate = func() {
		w.bookings.set(b.ID, func(x *model.Booking) { x.BookingStatus = model.BookingRejected })
	}
	_, err := w.booking.Decide(context.Background(), actorOf(w.owner), b.ID, DecisionInput{Action: "accept"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, model.BookingRejected, w.db.bookings[b.ID].BookingStatus)
}

func TestNoTransitionBackToPending(t *testing.T) {
	for _, from := range []model.BookingStatus{model.BookingAccepted, model.BookingRejected, model.BookingCancelled, model.BookingCompleted} {
		for _, role := range []model.Role{model.RoleFarmer, model.RoleOwner, model.RoleAdmin} {
			assert.False(t, from.CanTransition(model.BookingPending, role), "%s -> pending by %s", from, role)
		}
	}
}

func TestDecide_RejectAfterPaymentRequiresRefund(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)
	w.bookings.set(b.ID, func(x *model.Booking) { x.PaymentStatus = model.PaymentPaid })

	res, err := w.booking.Decide(context.Background(), actorOf(w.owner), b.ID, DecisionInput{Action: "reject", RejectionReason: "engine failure"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingRejected, res.Booking.BookingStatus)
	assert.Equal(t, model.PaymentPaid, res.Booking.PaymentStatus)
	assert.True(t, res.RefundRequired)

	refunds := w.notifier.ofKind(queue.KindRefundRequired)
	require.Len(t, refunds, 1)
	assert.Equal(t, w.admin.Email, refunds[0].To)
	require.NotEmpty(t, w.log.warns)
	assert.Contains(t, w.log.warns[0], "refund required")
}

func TestDecide_NotificationFailureDoesNotUndoDecision(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)
	w.notifier.err = assert.AnError

	res, err := w.booking.Decide(context.Background(), actorOf(w.owner), b.ID, DecisionInput{Action: "accept"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingAccepted, res.Booking.BookingStatus)
	assert.NotEmpty(t, w.log.warns)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending by farmer", func(t *testing.T) {
		w := newBookingWorld(t)
		b := w.book(t)
		got, err := w.booking.Cancel(ctx, actorOf(w.farmer), b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BookingCancelled, got.BookingStatus)
		assert.Len(t, w.notifier.ofKind(queue.KindBookingCancelled), 1)
	})
	t.Run("accepted and unpaid", func(t *testing.T) {
		w := newBookingWorld(t)
		b := w.book(t)
		w.bookings.set(b.ID, func(x *model.Booking) { x.BookingStatus = model.BookingAccepted })
		got, err := w.booking.Cancel(ctx, actorOf(w.farmer), b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BookingCancelled, got.BookingStatus)
	})
	t.Run("accepted and paid", func(t *testing.T) {
		w := newBookingWorld(t)
		b := w.book(t)
		w.bookings.set(b.ID, func(x *model.Booking) {
			x.BookingStatus = model.BookingAccepted
			x.PaymentStatus = model.PaymentPaid
		})
		_, err := w.booking.Cancel(ctx, actorOf(w.farmer), b.ID)
		assert.ErrorIs(t, err, ErrConflict)
	})
	t.Run("paid while cancelling", func(t *testing.T) {
		w := newBookingWorld(t)
		b := w.book(t)
		w.bookings.set(b.ID, func(x *model.Booking) { x.BookingStatus = model.BookingAccepted })
		w.bookings.beforeUpdate = func() {
			w.bookings.set(b.ID, func(x *model.Booking) { x.PaymentStatus = model.PaymentPaid })
		}
		_, err := w.booking.Cancel(ctx, actorOf(w.farmer), b.ID)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, model.BookingAccepted, w.db.bookings[b.ID].BookingStatus)
	})
	t.Run("someone else", func(t *testing.T) {
		w := newBookingWorld(t)
		b := w.book(t)
		_, err := w.booking.Cancel(ctx, actorOf(w.owner), b.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})
	t.Run("terminal", func(t *testing.T) {
		w := newBookingWorld(t)
		b := w.book(t)
		w.bookings.set(b.ID, func(x *model.Booking) { x.BookingStatus = model.BookingRejected })
		_, err := w.booking.Cancel(ctx, actorOf(w.farmer), b.ID)
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestComplete(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)
	ctx := context.Background()

	_, err := w.booking.Complete(ctx, actorOf(w.owner), b.ID)
	assert.ErrorIs(t, err, ErrConflict, "pending cannot complete")

	_, err = w.booking.Decide(ctx, actorOf(w.owner), b.ID, DecisionInput{Action: "accept"})
	require.NoError(t, err)
	_, err = w.booking.Complete(ctx, actorOf(w.otherOwner), b.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := w.booking.Complete(ctx, actorOf(w.owner), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, got.BookingStatus)
}

func TestListAndGet_Visibility(t *testing.T) {
	w := newBookingWorld(t)
	b := w.book(t)
	ctx := context.Background()

	mine, err := w.booking.List(ctx, actorOf(w.farmer), "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := w.booking.List(ctx, actorOf(w.otherOwner), "")
	require.NoError(t, err)
	assert.Empty(t, theirs)

	all, err := w.booking.List(ctx, actorOf(w.admin), "PENDING")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = w.booking.List(ctx, actorOf(w.admin), "confirmed")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = w.booking.Get(ctx, actorOf(w.otherOwner), b.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	got, err := w.booking.Get(ctx, actorOf(w.owner), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}
