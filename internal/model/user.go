package model

import "time"

// Role is one of the three mutually exclusive account roles.
type Role string

const (
    RoleFarmer Role = "farmer"
    RoleOwner  Role = "owner"
    RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
    return r == RoleFarmer || r == RoleOwner || r == RoleAdmin
}

// SelfAssignable reports whether a user may pick r at registration.  The
// admin role is only created by the bootstrap account.
func (r Role) SelfAssignable() bool {
    return r == RoleFarmer || r == RoleOwner
}

// User mirrors a row of the `users` table.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Name         – display name.
//  Email        – unique, normalized to lower case.
//  Phone        – optional, unique when present.
//  PasswordHash – bcrypt hash; never serialized.
//  Role         – farmer, owner or admin.
//  IsVerified   – set once the registration OTP is confirmed.
//  IsBlocked    – blocked users cannot log in.
type User struct {
    ID           uint64    `json:"id"`
    Name         string    `json:"name"`
    Email        string    `json:"email"`
    Phone        *string   `json:"phone,omitempty"`
    PasswordHash string    `json:"-"`
    Role         Role      `json:"role"`
    IsVerified   bool      `json:"is_verified"`
    IsBlocked    bool      `json:"is_blocked"`
    CreatedAt    time.Time `json:"created_at"`
    UpdatedAt    time.Time `json:"updated_at"`
}

// Address is a saved location of a user.  At most one address per user has
// IsDefault set; when none does, the oldest address is the default.
type Address struct {
    ID        uint64    `json:"id"`
    UserID    uint64    `json:"user_id"`
    Label     string    `json:"label"`
    Line1     string    `json:"line1"`
    City      string    `json:"city"`
    State     string    `json:"state"`
    Pincode   string    `json:"pincode"`
    Lat       *float64  `json:"lat,omitempty"`
    Lng       *float64  `json:"lng,omitempty"`
    IsDefault bool      `json:"is_default"`
    CreatedAt time.Time `json:"created_at"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (a Address) HasCoordinates() bool { return a.Lat != nil && a.Lng != nil }

// DefaultAddress picks the flagged default from addrs, falling back to the
// first entry.  It returns false when addrs is empty.
func DefaultAddress(addrs []Address) (Address, bool) {
    if len(addrs) == 0 {
        return Address{}, false
    }
    for _, a := range addrs {
        if a.IsDefault {
            return a, true
        }
    }
    return addrs[0], true
}

// PendingRegistration is a sign-up waiting for OTP confirmation.  It lives
// in Redis with a TTL and is never written to MySQL.
type PendingRegistration struct {
    Name         string    `json:"name"`
    Email        string    `json:"email"`
    Phone        *string   `json:"phone,omitempty"`
    PasswordHash string    `json:"password_hash"`
    Role         Role      `json:"role"`
    OTPHash      string    `json:"otp_hash"`
    Attempts     int       `json:"-"`
    CreatedAt    time.Time `json:"created_at"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the token is stored.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
