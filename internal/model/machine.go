package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// FuelType enumerates machine fuel types.
type FuelType string

const (
    FuelDiesel   FuelType = "diesel"
    FuelPetrol   FuelType = "petrol"
    FuelElectric FuelType = "electric"
    FuelCNG      FuelType = "cng"
)

// Valid reports whether f is a known fuel type.
func (f FuelType) Valid() bool {
    switch f {
    case FuelDiesel, FuelPetrol, FuelElectric, FuelCNG:
        return true
    }
    return false
}

// Category enumerates machine categories.
type Category string

const (
    CategoryTractor   Category = "tractor"
    CategoryHarvester Category = "harvester"
    CategoryRotavator Category = "rotavator"
    CategorySeeder    Category = "seeder"
    CategorySprayer   Category = "sprayer"
    CategoryBaler     Category = "baler"
    CategoryPlough    Category = "plough"
    CategoryOther     Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
    switch c {
    case CategoryTractor, CategoryHarvester, CategoryRotavator, CategorySeeder,
        CategorySprayer, CategoryBaler, CategoryPlough, CategoryOther:
        return true
    }
    return false
}

// MaxMachineImages bounds the images attached to a listing.
const MaxMachineImages = 5

// ApprovalState is derived from IsApproved and RejectionReason; it is not
// stored separately.
type ApprovalState string

const (
    ApprovalPending  ApprovalState = "pending"
    ApprovalApproved ApprovalState = "approved"
    ApprovalRejected ApprovalState = "rejected"
)

// Machine is a rental listing owned by exactly one owner.  Images and the
// ownership proof are URLs to the media store.
type Machine struct {
    ID                 uint64          `json:"id"`
    OwnerID            uint64          `json:"owner_id"`
    Name               string          `json:"name"`
    Model              string          `json:"model"`
    ModelYear          int             `json:"model_year"`
    RegistrationNumber string          `json:"registration_number"`
    FuelType           FuelType        `json:"fuel_type"`
    Category           Category        `json:"category"`
    PricePerHour       decimal.Decimal `json:"price_per_hour"`
    TransportRatePerKm decimal.Decimal `json:"transport_rate_per_km"`
    Lat                *float64        `json:"lat,omitempty"`
    Lng                *float64        `json:"lng,omitempty"`
    Address            string          `json:"address"`
    Images             []string        `json:"images"`
    OwnershipProofURL  *string         `json:"ownership_proof_url,omitempty"`
    AvailabilityStatus bool            `json:"availability_status"`
    IsApproved         bool            `json:"is_approved"`
    RejectionReason    *string         `json:"rejection_reason,omitempty"`
    CreatedAt          time.Time       `json:"created_at"`
    UpdatedAt          time.Time       `json:"updated_at"`
}

// Approval returns the machine's position in the approval workflow.
func (m Machine) Approval() ApprovalState {
    switch {
    case m.IsApproved:
        return ApprovalApproved
    case m.RejectionReason != nil && *m.RejectionReason != "":
        return ApprovalRejected
    default:
        return ApprovalPending
    }
}

// Bookable reports whether farmers may book the machine.
func (m Machine) Bookable() bool { return m.IsApproved && m.AvailabilityStatus }

// HasCoordinates reports whether the machine location is known.
func (m Machine) HasCoordinates() bool { return m.Lat != nil && m.Lng != nil }

// HasOwnershipProof reports whether the proof document is attached.
func (m Machine) HasOwnershipProof() bool {
    return m.OwnershipProofURL != nil && *m.OwnershipProofURL != ""
}

// Availability is the 1:1 manual unavailability override of a machine.  The
// row is created on first write only.
type Availability struct {
    MachineID   uint64     `json:"machine_id"`
    IsAvailable bool       `json:"is_available"`
    Reason      string     `json:"reason"`
    From        *time.Time `json:"from,omitempty"`
    Until       *time.Time `json:"until,omitempty"`
    UpdatedAt   time.Time  `json:"updated_at"`
}
