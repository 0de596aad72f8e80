package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/graphuraprojects/agrirent/internal/database"
	"github.com/graphuraprojects/agrirent/internal/model"
)

// CouponRepo manages admin discount codes.
type CouponRepo struct{ db *sql.DB }

// NewCouponRepo returns a new CouponRepo bound to the given database.
func NewCouponRepo(db *sql.DB) *CouponRepo { return &CouponRepo{db: db} }

// CouponPatch holds the fields an admin may change.  Nil means unchanged.
type CouponPatch struct {
	Percentage *int
	IsActive   *bool
	ExpiresAt  *time.Time
}

func scanCoupon(s scanner) (model.Coupon, error) {
	var c model.Coupon
	var exp sql.NullTime
	if err := s.Scan(&c.ID, &c.Code, &c.Percentage, &c.IsActive, &exp, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	if exp.Valid {
		t := exp.Time.UTC()
		c.ExpiresAt = &t
	}
	return c, nil
}

// Create inserts a coupon.  Codes are stored upper-cased.
func (r *CouponRepo) Create(ctx context.Context, c *model.Coupon) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO coupons (code, percentage, is_active, expires_at) VALUES (?,?,?,?)",
		c.Code, c.Percentage, c.IsActive, c.ExpiresAt)
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
	c.ID = uint64(id)
	return nil
}

// GetByID fetches one coupon.
func (r *CouponRepo) GetByID(ctx context.Context, id uint64) (model.Coupon, error) {
	return scanCoupon(r.db.QueryRowContext(ctx,
		"SELECT id, code, percentage, is_active, expires_at, created_at FROM coupons WHERE id=?", id))
}

// List returns all coupons, newest first.
func (r *CouponRepo) List(ctx context.Context) ([]model.Coupon, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, code, percentage, is_active, expires_at, created_at FROM coupons ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update applies p to coupon id.
func (r *CouponRepo) Update(ctx context.Context, id uint64, p CouponPatch) error {
	var sets []string
	var args []any
	if p.Percentage != nil {
		sets = append(sets, "percentage=?")
		args = append(args, *p.Percentage)
	}
	if p.IsActive != nil {
		sets = append(sets, "is_active=?")
		args = append(args, *p.IsActive)
	}
	if p.ExpiresAt != nil {
		sets = append(sets, "expires_at=?")
		args = append(args, p.ExpiresAt.UTC())
	}
	if len(sets) == 0 {
		_, err := r.GetByID(ctx, id)
		return err
	}
	args = append(args, id)
	res, err := r.db.ExecContext(ctx, "UPDATE coupons SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// Delete removes coupon id.
func (r *CouponRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM coupons WHERE id=?", id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}
