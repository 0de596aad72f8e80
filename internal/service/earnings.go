package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/pricing"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

// EarningsStore runs the revenue aggregates.
type EarningsStore interface {
	Totals(ctx context.Context, ownerID uint64, from, to time.Time) (repository.Totals, error)
	Points(ctx context.Context, ownerID uint64, from, to time.Time) ([]repository.RevenuePoint, error)
}

// EarningsService reports revenue and commission.  Figures are always
// computed from live data.
type EarningsService struct {
	store EarningsStore
	rate  decimal.Decimal
}

// NewEarningsService uses commissionRate, the same rate payments are split
// with, to derive commission from revenue.
func NewEarningsService(store EarningsStore, commissionRate decimal.Decimal) *EarningsService {
	if store == nil {
		panic("nil earnings store")
	}
	return &EarningsService{store: store, rate: commissionRate}
}

// Summary is an earnings breakdown.
type Summary struct {
	TotalBookings  int64           `json:"total_bookings"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	Commission     decimal.Decimal `json:"commission"`
	OwnerEarnings  decimal.Decimal `json:"owner_earnings"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

func (s *EarningsService) summarize(t repository.Totals) Summary {
	split := pricing.SplitCommission(t.Revenue, s.rate)
	return Summary{
		TotalBookings:  t.Bookings,
		TotalRevenue:   t.Revenue,
		Commission:     split.Commission,
		OwnerEarnings:  split.OwnerAmount,
		CommissionRate: s.rate,
	}
}

// scope maps the actor to an owner filter: owners see their own machines,
// admins see everything.
func scope(actor model.Actor) (uint64, error) {
	switch actor.Role {
	case model.RoleOwner:
		return actor.ID, nil
	case model.RoleAdmin:
		return 0, nil
	}
	return 0, fail(ErrForbidden, "earnings are available to owners and admins only")
}

// Summary returns all-time earnings for actor.
func (s *EarningsService) Summary(ctx context.Context, actor model.Actor) (Summary, error) {
	owner, err := scope(actor)
	if err != nil {
		return Summary{}, err
	}
	t, err := s.store.Totals(ctx, owner, time.Time{}, time.Time{})
	if err != nil {
		return Summary{}, err
	}
	return s.summarize(t), nil
}

// Range is a half-open reporting window [From, To).
type Range struct {
	Name string    `json:"range"`
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ResolveRange turns a range name into a window relative to now (UTC):
// "month" (the default) is the current calendar month, "last" the previous
// one and "ytd" runs from January 1 up to now.
func ResolveRange(name string, now time.Time) (Range, error) {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "month":
		return Range{Name: "month", From: monthStart, To: monthStart.AddDate(0, 1, 0)}, nil
	case "last":
		return Range{Name: "last", From: monthStart.AddDate(0, -1, 0), To: monthStart}, nil
	case "ytd":
		yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return Range{Name: "ytd", From: yearStart, To: now}, nil
	}
	return Range{}, fail(ErrValidation, "range must be one of month, last, ytd")
}

// RevenueReport is the revenue of one window.
type RevenueReport struct {
	Range
	Summary
}

// TotalRevenue returns the revenue of the named window.
func (s *EarningsService) TotalRevenue(ctx context.Context, actor model.Actor, rangeName string, now time.Time) (RevenueReport, error) {
	owner, err := scope(actor)
	if err != nil {
		return RevenueReport{}, err
	}
	rng, err := ResolveRange(rangeName, now)
	if err != nil {
		return RevenueReport{}, err
	}
	t, err := s.store.Totals(ctx, owner, rng.From, rng.To)
	if err != nil {
		return RevenueReport{}, err
	}
	return RevenueReport{Range: rng, Summary: s.summarize(t)}, nil
}

// Granularity of trend buckets.
type Granularity string

const (
	ByMonth Granularity = "month"
	ByWeek  Granularity = "week"
)

// TrendPoint is one bucket of the earnings trend.
type TrendPoint struct {
	Label         string          `json:"label"`
	Start         time.Time       `json:"start"`
	Bookings      int64           `json:"bookings"`
	Revenue       decimal.Decimal `json:"revenue"`
	Commission    decimal.Decimal `json:"commission"`
	OwnerEarnings decimal.Decimal `json:"owner_earnings"`
}

// TrendReport is the bucketed revenue of one window.
type TrendReport struct {
	Range
	Granularity Granularity  `json:"granularity"`
	Points      []TrendPoint `json:"points"`
}

// ParseGranularity defaults to weekly buckets for single-month windows and
// monthly buckets for the year.
func ParseGranularity(s string, rng Range) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		if rng.Name == "ytd" {
			return ByMonth, nil
		}
		return ByWeek, nil
	case "month":
		return ByMonth, nil
	case "week":
		return ByWeek, nil
	}
	return "", fail(ErrValidation, "granularity must be month or week")
}

// Trend returns revenue bucketed by calendar month or ISO week.
func (s *EarningsService) Trend(ctx context.Context, actor model.Actor, rangeName, granularity string, now time.Time) (TrendReport, error) {
	owner, err := scope(actor)
	if err != nil {
		return TrendReport{}, err
	}
	rng, err := ResolveRange(rangeName, now)
	if err != nil {
		return TrendReport{}, err
	}
	g, err := ParseGranularity(granularity, rng)
	if err != nil {
		return TrendReport{}, err
	}
	points, err := s.store.Points(ctx, owner, rng.From, rng.To)
	if err != nil {
		return TrendReport{}, err
	}
	buckets := BucketRevenue(points, rng, g)
	for i := range buckets {
		split := pricing.SplitCommission(buckets[i].Revenue, s.rate)
		buckets[i].Commission = split.Commission
		buckets[i].OwnerEarnings = split.OwnerAmount
	}
	return TrendReport{Range: rng, Granularity: g, Points: buckets}, nil
}

// bucketStart returns the start of the bucket containing t.  Weeks start on
// Monday (ISO 8601).
func bucketStart(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	if g == ByMonth {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func bucketLabel(start time.Time, g Granularity) string {
	if g == ByMonth {
		return start.Format("2006-01")
	}
	y, w := start.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

func nextBucket(start time.Time, g Granularity) time.Time {
	if g == ByMonth {
		return start.AddDate(0, 1, 0)
	}
	return start.AddDate(0, 0, 7)
}

// BucketRevenue groups points into consecutive buckets covering rng,
// including empty ones, so a chart has no gaps.  Points outside rng are
// ignored.
func BucketRevenue(points []repository.RevenuePoint, rng Range, g Granularity) []TrendPoint {
	out := make([]TrendPoint, 0)
	index := map[time.Time]int{}
	for start := bucketStart(rng.From, g); start.Before(rng.To); start = nextBucket(start, g) {
		index[start] = len(out)
		out = append(out, TrendPoint{Label: bucketLabel(start, g), Start: start, Revenue: decimal.Zero})
	}
	for _, p := range points {
		if p.CreatedAt.Before(rng.From) || !p.CreatedAt.Before(rng.To) {
			continue
		}
		i, ok := index[bucketStart(p.CreatedAt, g)]
		if !ok {
			continue
		}
		out[i].Bookings++
		out[i].Revenue = out[i].Revenue.Add(p.Amount)
	}
	return out
}
