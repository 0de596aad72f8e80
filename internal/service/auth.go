package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/queue"
	"github.com/graphuraprojects/agrirent/internal/repository"
	"github.com/graphuraprojects/agrirent/internal/utils"
)

// maxOTPAttempts bounds code guesses per pending registration.
const maxOTPAttempts = 5

// UserStore is the user persistence AuthService and AccountService need.
type UserStore interface {
	UserReader
	Create(ctx context.Context, u model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	EmailOrPhoneTaken(ctx context.Context, email string, phone *string) (bool, error)
	SetBlocked(ctx context.Context, id uint64, blocked bool) error
	Delete(ctx context.Context, id uint64) error
	EnsureAdmin(ctx context.Context, email, passwordHash string) (bool, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// PendingStore keeps registrations awaiting OTP confirmation.
type PendingStore interface {
	Save(ctx context.Context, p model.PendingRegistration, ttl time.Duration) error
	Get(ctx context.Context, email string) (model.PendingRegistration, error)
	RecordAttempt(ctx context.Context, email string) (int, error)
	Consume(ctx context.Context, email string) error
	Discard(ctx context.Context, email string) error
}

// AuthSettings configure token lifetimes and hashing.
type AuthSettings struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
	PendingTTL     time.Duration
}

// AuthService registers users and issues tokens.
type AuthService struct {
	users    UserStore
	tokens   TokenStore
	pending  PendingStore
	settings AuthSettings
	notifier Notifier
	log      Logger
}

// NewAuthService wires the service.
func NewAuthService(users UserStore, tokens TokenStore, pending PendingStore, settings AuthSettings, notifier Notifier, log Logger) *AuthService {
	if users == nil || tokens == nil || pending == nil || log == nil {
		panic("nil dependency")
	}
	if settings.PendingTTL <= 0 {
		settings.PendingTTL = 10 * time.Minute
	}
	return &AuthService{users: users, tokens: tokens, pending: pending, settings: settings, notifier: notifier, log: log}
}

// RegisterInput is a self sign-up.
type RegisterInput struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Phone    *string    `json:"phone"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// RegisterResult tells the client where the code went and how long it is
// valid.
type RegisterResult struct {
	Email     string `json:"email"`
	ExpiresIn int    `json:"expires_in"`
}

// AuthResult is returned by every flow that signs a user in.
type AuthResult struct {
	User         model.User `json:"user"`
	AccessToken  string     `json:"access_token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	RefreshToken string     `json:"refresh_token"`
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register stores a pending sign-up and emails a one-time code.  Nothing is
// written to the user table until the code is confirmed.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Role = model.Role(strings.ToLower(string(in.Role)))
	if in.Phone != nil {
		p := strings.TrimSpace(*in.Phone)
		in.Phone = &p
		if p == "" {
			in.Phone = nil
		}
	}
	switch {
	case in.Name == "":
		return RegisterResult{}, fail(ErrValidation, "name is required")
	case in.Email == "":
		return RegisterResult{}, fail(ErrValidation, "email is required")
	case len(in.Password) < utils.MinPasswordLen:
		return RegisterResult{}, fail(ErrValidation, "password must be at least %d characters", utils.MinPasswordLen)
	case len(in.Password) > utils.MaxPasswordBytes:
		return RegisterResult{}, fail(ErrValidation, "password must be at most %d bytes", utils.MaxPasswordBytes)
	case !in.Role.SelfAssignable():
		return RegisterResult{}, fail(ErrValidation, "role must be farmer or owner")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return RegisterResult{}, fail(ErrValidation, "invalid email")
	}
	taken, err := s.users.EmailOrPhoneTaken(ctx, in.Email, in.Phone)
	if err != nil {
		return RegisterResult{}, err
	}
	if taken {
		return RegisterResult{}, fail(ErrConflict, "email or phone already registered")
	}

	pwHash, err := utils.HashPassword(in.Password, s.settings.BcryptCost)
	if err != nil {
		return RegisterResult{}, err
	}
	otp, err := utils.NewOTP()
	if err != nil {
		return RegisterResult{}, err
	}
	otpHash, err := utils.HashPassword(otp, s.settings.BcryptCost)
	if err != nil {
		return RegisterResult{}, err
	}
	p := model.PendingRegistration{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: pwHash,
		Role:         in.Role,
		OTPHash:      otpHash,
		CreatedAt:    utcNow(),
	}
	if err := s.pending.Save(ctx, p, s.settings.PendingTTL); err != nil {
		return RegisterResult{}, err
	}
	minutes := int(s.settings.PendingTTL / time.Minute)
	notify(ctx, s.notifier, s.log, queue.NewNotification(queue.KindOTP, in.Email,
		"Your AgriRent verification code",
		fmt.Sprintf("Hello %s,\n\nYour verification code is %s. It expires in %d minutes.", in.Name, otp, minutes)))
	return RegisterResult{Email: in.Email, ExpiresIn: int(s.settings.PendingTTL / time.Second)}, nil
}

// VerifyOTPInput confirms a pending sign-up.
type VerifyOTPInput struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTP creates the user once the emailed code matches and signs them
// in.
func (s *AuthService) VerifyOTP(ctx context.Context, in VerifyOTPInput) (AuthResult, error) {
	email := normalizeEmail(in.Email)
	code := strings.TrimSpace(in.OTP)
	if email == "" || code == "" {
		return AuthResult{}, fail(ErrValidation, "email and otp are required")
	}
	p, err := s.pending.Get(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, fail(ErrNotFound, "no pending registration for this email; register again")
	}
	if err != nil {
		return AuthResult{}, err
	}
	// Count the guess before checking it.
	n, err := s.pending.RecordAttempt(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, fail(ErrNotFound, "no pending registration for this email; register again")
	}
	if err != nil {
		return AuthResult{}, err
	}
	if n > maxOTPAttempts {
		_ = s.pending.Discard(ctx, email)
		return AuthResult{}, fail(ErrUnauthorized, "too many wrong codes; register again")
	}
	if !utils.VerifyPassword(p.OTPHash, code) {
		return AuthResult{}, fail(ErrUnauthorized, "invalid verification code")
	}
	if err := s.pending.Consume(ctx, email); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return AuthResult{}, fail(ErrConflict, "registration already verified")
		}
		return AuthResult{}, err
	}
	id, err := s.users.Create(ctx, model.User{
		Name:         p.Name,
		Email:        p.Email,
		Phone:        p.Phone,
		PasswordHash: p.PasswordHash,
		Role:         p.Role,
		IsVerified:   true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return AuthResult{}, fail(ErrConflict, "email or phone already registered")
		}
		return AuthResult{}, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(ctx, u)
}

// LoginInput is an email/password sign-in.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks credentials.  Blocked users are refused.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return AuthResult{}, fail(ErrValidation, "email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, fail(ErrUnauthorized, "invalid credentials")
	}
	if err != nil {
		return AuthResult{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, in.Password) {
		return AuthResult{}, fail(ErrUnauthorized, "invalid credentials")
	}
	if u.IsBlocked {
		return AuthResult{}, fail(ErrForbidden, "account is blocked")
	}
	return s.issue(ctx, u)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(ctx context.Context, raw string) (AuthResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AuthResult{}, fail(ErrValidation, "refresh_token is required")
	}
	hash := utils.HashRefreshRaw(raw)
	uid, err := s.tokens.ValidateRefresh(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, fail(ErrUnauthorized, "invalid or expired refresh token")
	}
	if err != nil {
		return AuthResult{}, err
	}
	// the conditional revoke makes a replayed token lose against the first use
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return AuthResult{}, fail(ErrUnauthorized, "invalid or expired refresh token")
		}
		return AuthResult{}, err
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return AuthResult{}, notFound(err, "user")
	}
	if u.IsBlocked {
		return AuthResult{}, fail(ErrForbidden, "account is blocked")
	}
	return s.issue(ctx, u)
}

// Logout revokes a refresh token.  Revoking an unknown or already revoked
// token is not an error.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fail(ErrValidation, "refresh_token is required")
	}
	err := s.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw))
	if errors.Is(err, repository.ErrConflict) {
		return nil
	}
	return err
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	return u, notFound(err, "user")
}

// EnsureAdmin creates the bootstrap admin account when configured and
// missing.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	hash, err := utils.HashPassword(password, s.settings.BcryptCost)
	if err != nil {
		return err
	}
	created, err := s.users.EnsureAdmin(ctx, email, hash)
	if err != nil {
		return err
	}
	if created {
		s.log.Infof("bootstrap admin %s created", email)
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, u model.User) (AuthResult, error) {
	at, err := utils.NewAccessToken(s.settings.JWTSecret, u.ID, u.Role, s.settings.AccessTTLMin)
	if err != nil {
		return AuthResult{}, err
	}
	rt, err := utils.NewRefreshToken(s.settings.RefreshTTLDays)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(rt.Raw), rt.Exp); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: u, AccessToken: at.Token, ExpiresAt: at.Exp, RefreshToken: rt.Raw}, nil
}
