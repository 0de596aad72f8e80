package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/queue"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

// MachineStore is the persistence MachineService needs.
type MachineStore interface {
	Create(ctx context.Context, m *model.Machine) error
	GetByID(ctx context.Context, id uint64) (model.Machine, error)
	ListBookable(ctx context.Context, f repository.MachineFilter) ([]model.Machine, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]model.Machine, error)
	ListPendingApproval(ctx context.Context) ([]model.Machine, error)
	Update(ctx context.Context, m *model.Machine) error
	Approve(ctx context.Context, id uint64) error
	Reject(ctx context.Context, id uint64, reason string) error
	Delete(ctx context.Context, id, ownerID uint64) error
}

// AvailabilityStore keeps the manual availability override of machines.
type AvailabilityStore interface {
	Get(ctx context.Context, machineID uint64) (model.Availability, error)
	Upsert(ctx context.Context, ownerID uint64, a model.Availability) error
}

// MachineService manages listings and their admin approval.
type MachineService struct {
	machines     MachineStore
	availability AvailabilityStore
	users        UserReader
	notifier     Notifier
	log          Logger
}

// NewMachineService wires the service.
func NewMachineService(machines MachineStore, availability AvailabilityStore, users UserReader, notifier Notifier, log Logger) *MachineService {
	if machines == nil || availability == nil || users == nil || log == nil {
		panic("nil dependency")
	}
	return &MachineService{machines: machines, availability: availability, users: users, notifier: notifier, log: log}
}

// MachineInput is the editable part of a listing.
type MachineInput struct {
	Name               string          `json:"name"`
	Model              string          `json:"model"`
	ModelYear          int             `json:"model_year"`
	RegistrationNumber string          `json:"registration_number"`
	FuelType           model.FuelType  `json:"fuel_type"`
	Category           model.Category  `json:"category"`
	PricePerHour       decimal.Decimal `json:"price_per_hour"`
	TransportRatePerKm decimal.Decimal `json:"transport_rate_per_km"`
	Lat                *float64        `json:"lat"`
	Lng                *float64        `json:"lng"`
	Address            string          `json:"address"`
	Images             []string        `json:"images"`
	OwnershipProofURL  *string         `json:"ownership_proof_url"`
	AvailabilityStatus *bool           `json:"availability_status"`
}

func (in *MachineInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Model = strings.TrimSpace(in.Model)
	in.RegistrationNumber = strings.ToUpper(strings.TrimSpace(in.RegistrationNumber))
	in.Address = strings.TrimSpace(in.Address)
	imgs := in.Images[:0]
	for _, u := range in.Images {
		if u = strings.TrimSpace(u); u != "" {
			imgs = append(imgs, u)
		}
	}
	in.Images = imgs
	if in.OwnershipProofURL != nil {
		p := strings.TrimSpace(*in.OwnershipProofURL)
		in.OwnershipProofURL = &p
	}
}

func (in MachineInput) validate(now time.Time) error {
	switch {
	case in.Name == "":
		return fail(ErrValidation, "name is required")
	case in.RegistrationNumber == "":
		return fail(ErrValidation, "registration_number is required")
	case !in.FuelType.Valid():
		return fail(ErrValidation, "invalid fuel_type %q", in.FuelType)
	case !in.Category.Valid():
		return fail(ErrValidation, "invalid category %q", in.Category)
	case !in.PricePerHour.IsPositive():
		return fail(ErrValidation, "price_per_hour must be positive")
	case in.TransportRatePerKm.IsNegative():
		return fail(ErrValidation, "transport_rate_per_km cannot be negative")
	case len(in.Images) == 0 || len(in.Images) > model.MaxMachineImages:
		return fail(ErrValidation, "between 1 and %d images are required", model.MaxMachineImages)
	case (in.Lat == nil) != (in.Lng == nil):
		return fail(ErrValidation, "lat and lng must be given together")
	case in.Lat != nil && (*in.Lat < -90 || *in.Lat > 90 || *in.Lng < -180 || *in.Lng > 180):
		return fail(ErrValidation, "coordinates out of range")
	case in.ModelYear != 0 && (in.ModelYear < 1950 || in.ModelYear > now.Year()+1):
		return fail(ErrValidation, "model_year out of range")
	}
	return nil
}

func (in MachineInput) apply(m *model.Machine) {
	m.Name = in.Name
	m.Model = in.Model
	m.ModelYear = in.ModelYear
	m.RegistrationNumber = in.RegistrationNumber
	m.FuelType = in.FuelType
	m.Category = in.Category
	m.PricePerHour = in.PricePerHour
	m.TransportRatePerKm = in.TransportRatePerKm
	m.Lat, m.Lng = in.Lat, in.Lng
	m.Address = in.Address
	m.Images = in.Images
	// the proof can be replaced but never removed
	if in.OwnershipProofURL != nil && *in.OwnershipProofURL != "" {
		m.OwnershipProofURL = in.OwnershipProofURL
	}
}

// Create lists a new machine for an owner.  It starts pending review.
func (s *MachineService) Create(ctx context.Context, ownerID uint64, in MachineInput) (model.Machine, error) {
	in.normalize()
	if err := in.validate(utcNow()); err != nil {
		return model.Machine{}, err
	}
	if in.OwnershipProofURL == nil || *in.OwnershipProofURL == "" {
		return model.Machine{}, fail(ErrValidation, "ownership_proof_url is required")
	}
	m := model.Machine{OwnerID: ownerID, AvailabilityStatus: true}
	in.apply(&m)
	if in.AvailabilityStatus != nil {
		m.AvailabilityStatus = *in.AvailabilityStatus
	}
	if err := s.machines.Create(ctx, &m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Machine{}, fail(ErrConflict, "registration number %s is already listed", m.RegistrationNumber)
		}
		return model.Machine{}, err
	}
	return s.machines.GetByID(ctx, m.ID)
}

// Update edits an owner's listing.  Editing a rejected listing sends it back
// to pending review.  An omitted ownership proof keeps the stored one.
func (s *MachineService) Update(ctx context.Context, ownerID, machineID uint64, in MachineInput) (model.Machine, error) {
	m, err := s.owned(ctx, ownerID, machineID)
	if err != nil {
		return model.Machine{}, err
	}
	in.normalize()
	if err := in.validate(utcNow()); err != nil {
		return model.Machine{}, err
	}
	in.apply(&m)
	if err := s.machines.Update(ctx, &m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Machine{}, fail(ErrConflict, "registration number %s is already listed", m.RegistrationNumber)
		}
		return model.Machine{}, notFound(err, "machine")
	}
	return s.machines.GetByID(ctx, m.ID)
}

func (s *MachineService) owned(ctx context.Context, ownerID, machineID uint64) (model.Machine, error) {
	m, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return model.Machine{}, notFound(err, "machine")
	}
	if m.OwnerID != ownerID {
		return model.Machine{}, fail(ErrForbidden, "machine belongs to another owner")
	}
	return m, nil
}

// Delete removes a listing.  Owners may delete their own machines, admins
// any machine; machines with booking history are kept.
func (s *MachineService) Delete(ctx context.Context, actor model.Actor, machineID uint64) error {
	var ownerID uint64
	if !actor.IsAdmin() {
		if _, err := s.owned(ctx, actor.ID, machineID); err != nil {
			return err
		}
		ownerID = actor.ID
	}
	err := s.machines.Delete(ctx, machineID, ownerID)
	if errors.Is(err, repository.ErrConflict) {
		return fail(ErrConflict, "machine has bookings and cannot be deleted")
	}
	return notFound(err, "machine")
}

// Browse lists bookable machines.
func (s *MachineService) Browse(ctx context.Context, f repository.MachineFilter) ([]model.Machine, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, fail(ErrValidation, "invalid category %q", f.Category)
	}
	return s.machines.ListBookable(ctx, f)
}

// Public returns a bookable machine.  Listings that are not approved or not
// available are reported as missing.
func (s *MachineService) Public(ctx context.Context, machineID uint64) (model.Machine, error) {
	m, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return model.Machine{}, notFound(err, "machine")
	}
	if !m.Bookable() {
		return model.Machine{}, fail(ErrNotFound, "machine not found")
	}
	return m, nil
}

// Mine lists an owner's machines in every approval state.
func (s *MachineService) Mine(ctx context.Context, ownerID uint64) ([]model.Machine, error) {
	return s.machines.ListByOwner(ctx, ownerID)
}

// PendingApproval lists machines awaiting an admin decision.
func (s *MachineService) PendingApproval(ctx context.Context) ([]model.Machine, error) {
	return s.machines.ListPendingApproval(ctx)
}

// ApprovalInput is an admin's verdict on a listing.
type ApprovalInput struct {
	Action          string `json:"action"`
	RejectionReason string `json:"rejection_reason"`
}

// Decide approves or rejects a listing.  Approval needs the ownership proof
// and clears any earlier rejection reason; rejection needs a reason.  The
// owner is told either way, best effort.
func (s *MachineService) Decide(ctx context.Context, machineID uint64, in ApprovalInput) (model.Machine, error) {
	m, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return model.Machine{}, notFound(err, "machine")
	}
	var reason string
	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "approve":
		if !m.HasOwnershipProof() {
			return model.Machine{}, fail(ErrPrecondition, "ownership proof must be uploaded before approval")
		}
		if err := s.machines.Approve(ctx, m.ID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return model.Machine{}, fail(ErrPrecondition, "ownership proof must be uploaded before approval")
			}
			return model.Machine{}, err
		}
	case "reject":
		reason = strings.TrimSpace(in.RejectionReason)
		if reason == "" {
			return model.Machine{}, fail(ErrValidation, "rejection_reason is required")
		}
		if err := s.machines.Reject(ctx, m.ID, reason); err != nil {
			return model.Machine{}, notFound(err, "machine")
		}
	default:
		return model.Machine{}, fail(ErrValidation, `action must be "approve" or "reject"`)
	}

	updated, err := s.machines.GetByID(ctx, m.ID)
	if err != nil {
		return model.Machine{}, err
	}
	if owner, err := s.users.GetByID(ctx, updated.OwnerID); err == nil {
		body := fmt.Sprintf("Your listing %q was %s.", updated.Name, updated.Approval())
		if reason != "" {
			body += " Reason: " + reason
		}
		notify(ctx, s.notifier, s.log, queue.NewNotification(queue.KindMachineReviewed, owner.Email,
			fmt.Sprintf("Listing %s", updated.Approval()), body))
	}
	return updated, nil
}

// AvailabilityInput sets or clears a manual unavailability window.
type AvailabilityInput struct {
	IsAvailable bool       `json:"is_available"`
	Reason      string     `json:"reason"`
	From        *time.Time `json:"from"`
	Until       *time.Time `json:"until"`
}

// SetAvailability records the owner's availability override.  The row is
// created on first use.
func (s *MachineService) SetAvailability(ctx context.Context, ownerID, machineID uint64, in AvailabilityInput) (model.Availability, error) {
	if in.From != nil && in.Until != nil && !in.Until.After(*in.From) {
		return model.Availability{}, fail(ErrValidation, "until must be after from")
	}
	a := model.Availability{
		MachineID:   machineID,
		IsAvailable: in.IsAvailable,
		Reason:      strings.TrimSpace(in.Reason),
		From:        in.From,
		Until:       in.Until,
	}
	if err := s.availability.Upsert(ctx, ownerID, a); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return model.Availability{}, fail(ErrForbidden, "machine belongs to another owner")
		}
		return model.Availability{}, notFound(err, "machine")
	}
	return s.Availability(ctx, machineID)
}

// Availability returns the override of a machine, or one derived from the
// listing when none was ever set.
func (s *MachineService) Availability(ctx context.Context, machineID uint64) (model.Availability, error) {
	a, err := s.availability.Get(ctx, machineID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return a, err
	}
	m, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return model.Availability{}, notFound(err, "machine")
	}
	return model.Availability{MachineID: m.ID, IsAvailable: m.AvailabilityStatus, UpdatedAt: m.UpdatedAt}, nil
}
