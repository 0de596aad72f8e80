package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/pricing"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

func TestCommissionSplitAddsUp(t *testing.T) {
	rate := dec("0.10")
	for _, total := range []string{"0", "0.01", "0.05", "350", "999.99", "1234.57", "100000"} {
		s := pricing.SplitCommission(dec(total), rate)
		assert.True(t, s.Commission.Add(s.OwnerAmount).Equal(dec(total)), "total %s", total)
	}
}

func TestResolveRange(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	for _, tc := range []struct {
		name     string
		from, to time.Time
	}{
		{"", day(2025, 3, 1), day(2025, 4, 1)},
		{"month", day(2025, 3, 1), day(2025, 4, 1)},
		{"last", day(2025, 2, 1), day(2025, 3, 1)},
		{"YTD", day(2025, 1, 1), now},
	} {
		r, err := ResolveRange(tc.name, now)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.from, r.From, tc.name)
		assert.Equal(t, tc.to, r.To, tc.name)
	}

	jan := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	r, err := ResolveRange("last", jan)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 12, 1), r.From)

	_, err = ResolveRange("decade", now)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBucketRevenue(t *testing.T) {
	rng := Range{Name: "ytd", From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	points := []repository.RevenuePoint{
		{CreatedAt: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), Amount: dec("100")},
		{CreatedAt: time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC), Amount: dec("50")},
		{CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Amount: dec("25.5")},
		{CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Amount: dec("999")},
	}
	got := BucketRevenue(points, rng, ByMonth)
	require.Len(t, got, 12)
	assert.Equal(t, "2025-01", got[0].Label)
	assert.Equal(t, int64(2), got[0].Bookings)
	assert.True(t, got[0].Revenue.Equal(dec("150")))
	assert.True(t, got[1].Revenue.Equal(decimal.Zero))
	assert.True(t, got[2].Revenue.Equal(dec("25.5")))
	assert.Equal(t, "2025-12", got[11].Label)
}

func TestBucketRevenue_ISOWeeks(t *testing.T) {
	// March 2025 starts on a Saturday, so the first bucket is the week of Monday 24 February.
	rng := Range{Name: "month", From: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}
	points := []repository.RevenuePoint{
		{CreatedAt: time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC), Amount: dec("10")},
		{CreatedAt: time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC), Amount: dec("20")},
	}
	got := BucketRevenue(points, rng, ByWeek)
	require.Len(t, got, 6)
	assert.Equal(t, "2025-W09", got[0].Label)
	assert.Equal(t, time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC), got[0].Start)
	assert.True(t, got[0].Revenue.Equal(dec("10")))
	assert.Equal(t, "2025-W10", got[1].Label)
	assert.True(t, got[1].Revenue.Equal(dec("20")))
}

func TestEarnings_ScopedByRole(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	owner := fx.addUser(model.RoleOwner, "a@example.com")
	other := fx.addUser(model.RoleOwner, "b@example.com")
	admin := fx.addUser(model.RoleAdmin, "admin@example.com")
	farmer := fx.addUser(model.RoleFarmer, "f@example.com")
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	add := func(id uint64, ownerID uint64, st model.BookingStatus, amount string, at time.Time) {
		fx.db.bookings[id] = model.Booking{ID: id, OwnerID: ownerID, BookingStatus: st, TotalAmount: dec(amount), CreatedAt: at}
	}
	add(1, owner.ID, model.BookingAccepted, "350", now.AddDate(0, 0, -3))
	add(2, owner.ID, model.BookingCompleted, "650", now.AddDate(0, -1, 0))
	add(3, owner.ID, model.BookingPending, "1000", now)
	add(4, owner.ID, model.BookingRejected, "1000", now)
	add(5, other.ID, model.BookingCompleted, "200", now)

	s, err := fx.earnings.Summary(ctx, actorOf(owner))
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.TotalBookings)
	assert.True(t, s.TotalRevenue.Equal(dec("1000")))
	assert.True(t, s.Commission.Equal(dec("100")))
	assert.True(t, s.OwnerEarnings.Equal(dec("900")))

	all, err := fx.earnings.Summary(ctx, actorOf(admin))
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.TotalBookings)
	assert.True(t, all.TotalRevenue.Equal(dec("1200")))

	_, err = fx.earnings.Summary(ctx, actorOf(farmer))
	assert.ErrorIs(t, err, ErrForbidden)

	month, err := fx.earnings.TotalRevenue(ctx, actorOf(owner), "month", now)
	require.NoError(t, err)
	assert.True(t, month.TotalRevenue.Equal(dec("350")))
	last, err := fx.earnings.TotalRevenue(ctx, actorOf(owner), "last", now)
	require.NoError(t, err)
	assert.True(t, last.TotalRevenue.Equal(dec("650")))

	trend, err := fx.earnings.Trend(ctx, actorOf(owner), "ytd", "", now)
	require.NoError(t, err)
	assert.Equal(t, ByMonth, trend.Granularity)
	assert.Equal(t, now, trend.To)
	require.Len(t, trend.Points, 3, "no buckets after the current month")
	assert.Equal(t, "2025-03", trend.Points[2].Label)
	assert.True(t, trend.Points[1].Revenue.Equal(dec("650")))
	assert.True(t, trend.Points[1].Commission.Equal(dec("65")))
	assert.True(t, trend.Points[2].OwnerEarnings.Equal(dec("315")))

	_, err = fx.earnings.Trend(ctx, actorOf(owner), "month", "daily", now)
	assert.ErrorIs(t, err, ErrValidation)
}
