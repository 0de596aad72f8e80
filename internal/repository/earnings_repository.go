package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/graphuraprojects/agrirent/internal/model"
)

// EarningsRepo runs the revenue aggregates behind the earnings summary and
// the dashboard.  Only bookings in model.RevenueStatuses count as revenue.
// Results are always read live.
type EarningsRepo struct{ db *sql.DB }

// NewEarningsRepo returns a new EarningsRepo bound to the given database.
func NewEarningsRepo(db *sql.DB) *EarningsRepo { return &EarningsRepo{db: db} }

// Totals is a booking count with the summed total_amount.
type Totals struct {
	Bookings int64
	Revenue  decimal.Decimal
}

// RevenuePoint is one revenue-counting booking.
type RevenuePoint struct {
	CreatedAt time.Time
	Amount    decimal.Decimal
}

// revenueWhere builds the shared filter.  ownerID 0 means every owner; a
// zero from/to leaves that side of the window open.
func revenueWhere(ownerID uint64, from, to time.Time) (string, []any) {
	marks := make([]string, len(model.RevenueStatuses))
	args := make([]any, 0, len(model.RevenueStatuses)+3)
	for i, s := range model.RevenueStatuses {
		marks[i] = "?"
		args = append(args, string(s))
	}
	where := " WHERE booking_status IN (" + strings.Join(marks, ",") + ")"
	if ownerID != 0 {
		where += " AND owner_id=?"
		args = append(args, ownerID)
	}
	if !from.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		where += " AND created_at < ?"
		args = append(args, to.UTC())
	}
	return where, args
}

// Totals sums revenue for ownerID (0 = platform wide) within [from, to).
func (r *EarningsRepo) Totals(ctx context.Context, ownerID uint64, from, to time.Time) (Totals, error) {
	where, args := revenueWhere(ownerID, from, to)
	var t Totals
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(total_amount), 0) FROM bookings"+where, args...).
		Scan(&t.Bookings, &t.Revenue)
	return t, err
}

// Points lists revenue-counting bookings in [from, to) in creation order,
// for bucketing by the caller.
func (r *EarningsRepo) Points(ctx context.Context, ownerID uint64, from, to time.Time) ([]RevenuePoint, error) {
	where, args := revenueWhere(ownerID, from, to)
	rows, err := r.db.QueryContext(ctx,
		"SELECT created_at, total_amount FROM bookings"+where+" ORDER BY created_at", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]RevenuePoint, 0)
	for rows.Next() {
		var p RevenuePoint
		if err := rows.Scan(&p.CreatedAt, &p.Amount); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
