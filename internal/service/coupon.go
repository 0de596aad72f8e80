package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

// CouponStore persists coupons.
type CouponStore interface {
	Create(ctx context.Context, c *model.Coupon) error
	GetByID(ctx context.Context, id uint64) (model.Coupon, error)
	List(ctx context.Context) ([]model.Coupon, error)
	Update(ctx context.Context, id uint64, p repository.CouponPatch) error
	Delete(ctx context.Context, id uint64) error
}

// CouponService is the admin's coupon catalogue.
type CouponService struct {
	store CouponStore
}

func NewCouponService(store CouponStore) *CouponService {
	if store == nil {
		panic("nil coupon store")
	}
	return &CouponService{store: store}
}

var couponCode = regexp.MustCompile(`^[A-Z0-9_-]{3,40}$`)

// CouponInput creates a coupon.  IsActive defaults to true.
type CouponInput struct {
	Code       string     `json:"code"`
	Percentage int        `json:"percentage"`
	IsActive   *bool      `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

// CouponPatchInput changes a coupon.  Omitted fields are left unchanged.
type CouponPatchInput struct {
	Percentage *int       `json:"percentage"`
	IsActive   *bool      `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func validPercentage(p int) bool { return p >= 1 && p <= 100 }

// Create adds a coupon.
func (s *CouponService) Create(ctx context.Context, in CouponInput) (model.Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if !couponCode.MatchString(code) {
		return model.Coupon{}, fail(ErrValidation, "code must be 3-40 letters, digits, '-' or '_'")
	}
	if !validPercentage(in.Percentage) {
		return model.Coupon{}, fail(ErrValidation, "percentage must be between 1 and 100")
	}
	c := model.Coupon{Code: code, Percentage: in.Percentage, IsActive: true, ExpiresAt: in.ExpiresAt}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if err := s.store.Create(ctx, &c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Coupon{}, fail(ErrConflict, "coupon %s already exists", code)
		}
		return model.Coupon{}, err
	}
	return s.store.GetByID(ctx, c.ID)
}

// List returns every coupon.
func (s *CouponService) List(ctx context.Context) ([]model.Coupon, error) {
	return s.store.List(ctx)
}

// Update applies a partial change.
func (s *CouponService) Update(ctx context.Context, id uint64, in CouponPatchInput) (model.Coupon, error) {
	if in.Percentage != nil && !validPercentage(*in.Percentage) {
		return model.Coupon{}, fail(ErrValidation, "percentage must be between 1 and 100")
	}
	err := s.store.Update(ctx, id, repository.CouponPatch{
		Percentage: in.Percentage,
		IsActive:   in.IsActive,
		ExpiresAt:  in.ExpiresAt,
	})
	if err != nil {
		return model.Coupon{}, notFound(err, "coupon")
	}
	c, err := s.store.GetByID(ctx, id)
	return c, notFound(err, "coupon")
}

// Delete removes a coupon.
func (s *CouponService) Delete(ctx context.Context, id uint64) error {
	return notFound(s.store.Delete(ctx, id), "coupon")
}
