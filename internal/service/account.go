package service

import (
	"context"
	"errors"
	"strings"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

// AddressStore persists saved addresses.
type AddressStore interface {
	AddressReader
	ListByUser(ctx context.Context, userID uint64) ([]model.Address, error)
	Create(ctx context.Context, a *model.Address) error
	SetDefault(ctx context.Context, userID, addressID uint64) error
	Delete(ctx context.Context, userID, addressID uint64) error
}

// AccountService manages a user's addresses and the admin's user list.
type AccountService struct {
	users     UserStore
	addresses AddressStore
	tokens    TokenStore
	log       Logger
}

func NewAccountService(users UserStore, addresses AddressStore, tokens TokenStore, log Logger) *AccountService {
	if users == nil || addresses == nil || tokens == nil || log == nil {
		panic("nil dependency")
	}
	return &AccountService{users: users, addresses: addresses, tokens: tokens, log: log}
}

// AddressInput is a new saved address.
type AddressInput struct {
	Label     string   `json:"label"`
	Line1     string   `json:"line1"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	Pincode   string   `json:"pincode"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	IsDefault bool     `json:"is_default"`
}

// AddAddress saves an address.  A user's first address becomes the default.
func (s *AccountService) AddAddress(ctx context.Context, userID uint64, in AddressInput) (model.Address, error) {
	a := model.Address{
		UserID:    userID,
		Label:     strings.TrimSpace(in.Label),
		Line1:     strings.TrimSpace(in.Line1),
		City:      strings.TrimSpace(in.City),
		State:     strings.TrimSpace(in.State),
		Pincode:   strings.TrimSpace(in.Pincode),
		Lat:       in.Lat,
		Lng:       in.Lng,
		IsDefault: in.IsDefault,
	}
	switch {
	case a.Line1 == "" || a.City == "" || a.Pincode == "":
		return model.Address{}, fail(ErrValidation, "line1, city and pincode are required")
	case (a.Lat == nil) != (a.Lng == nil):
		return model.Address{}, fail(ErrValidation, "lat and lng must be given together")
	case a.Lat != nil && (*a.Lat < -90 || *a.Lat > 90 || *a.Lng < -180 || *a.Lng > 180):
		return model.Address{}, fail(ErrValidation, "coordinates out of range")
	}
	if a.Label == "" {
		a.Label = "home"
	}
	existing, err := s.addresses.ListByUser(ctx, userID)
	if err != nil {
		return model.Address{}, err
	}
	if len(existing) == 0 {
		a.IsDefault = true
	}
	if err := s.addresses.Create(ctx, &a); err != nil {
		return model.Address{}, err
	}
	return a, nil
}

// Addresses lists a user's addresses.
func (s *AccountService) Addresses(ctx context.Context, userID uint64) ([]model.Address, error) {
	return s.addresses.ListByUser(ctx, userID)
}

// SetDefaultAddress makes addressID the user's only default address.
func (s *AccountService) SetDefaultAddress(ctx context.Context, userID, addressID uint64) error {
	err := s.addresses.SetDefault(ctx, userID, addressID)
	if errors.Is(err, repository.ErrForbidden) {
		return fail(ErrForbidden, "address belongs to another user")
	}
	return notFound(err, "address")
}

// DeleteAddress removes one of the user's addresses.
func (s *AccountService) DeleteAddress(ctx context.Context, userID, addressID uint64) error {
	return notFound(s.addresses.Delete(ctx, userID, addressID), "address")
}

// Users lists accounts, optionally by role.
func (s *AccountService) Users(ctx context.Context, role string) ([]model.User, error) {
	r := model.Role(strings.ToLower(strings.TrimSpace(role)))
	if r != "" && !r.Valid() {
		return nil, fail(ErrValidation, "invalid role %q", role)
	}
	return s.users.List(ctx, r)
}

// SetBlocked blocks or unblocks a non-admin user.  Blocking also revokes the
// user's refresh tokens so existing sessions end when their access token
// expires.
func (s *AccountService) SetBlocked(ctx context.Context, userID uint64, blocked bool) (model.User, error) {
	if err := s.users.SetBlocked(ctx, userID, blocked); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, fail(ErrNotFound, "user not found or is an admin")
		}
		return model.User{}, err
	}
	if blocked {
		if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
			s.log.Warnf("revoking tokens of blocked user %d: %v", userID, err)
		}
	}
	u, err := s.users.GetByID(ctx, userID)
	return u, notFound(err, "user")
}

// DeleteUser removes a non-admin user without booking history.
func (s *AccountService) DeleteUser(ctx context.Context, userID uint64) error {
	err := s.users.Delete(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrConflict):
		return fail(ErrConflict, "user has bookings and cannot be deleted; block the account instead")
	case errors.Is(err, repository.ErrNotFound):
		return fail(ErrNotFound, "user not found or is an admin")
	}
	return err
}
