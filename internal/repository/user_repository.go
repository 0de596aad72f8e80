package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/graphuraprojects/agrirent/internal/database"
	"github.com/graphuraprojects/agrirent/internal/model"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email or phone already registered")

const userColumns = "id,name,email,phone,password_hash,role,is_verified,is_blocked,created_at,updated_at"

func scanUser(s scanner) (model.User, error) {
	var u model.User
	var phone sql.NullString
	var role string
	err := s.Scan(&u.ID, &u.Name, &u.Email, &phone, &u.PasswordHash, &role, &u.IsVerified, &u.IsBlocked, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, ErrNotFound
		}
		return u, err
	}
	if phone.Valid {
		p := phone.String
		u.Phone = &p
	}
	u.Role = model.Role(role)
	return u, nil
}

// Create inserts a user with an already hashed password and returns its ID.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, phone, password_hash, role, is_verified) VALUES (?,?,?,?,?,?)",
		u.Name, email, u.Phone, u.PasswordHash, string(u.Role), u.IsVerified)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// EmailOrPhoneTaken reports whether a registered user already uses the email
// or phone.  Pending registrations are checked against it before an OTP is sent.
func (r *UserRepo) EmailOrPhoneTaken(ctx context.Context, email string, phone *string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE email=? OR (phone IS NOT NULL AND phone=?)",
		email, phone).Scan(&n)
	return n > 0, err
}

// List returns users newest first, optionally filtered by role.
func (r *UserRepo) List(ctx context.Context, role model.Role) ([]model.User, error) {
	q := "SELECT " + userColumns + " FROM users"
	var args []any
	if role != "" {
		q += " WHERE role=?"
		args = append(args, string(role))
	}
	q += " ORDER BY created_at DESC"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetBlocked flips the block flag.  Admin accounts cannot be blocked.
func (r *UserRepo) SetBlocked(ctx context.Context, id uint64, blocked bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_blocked=? WHERE id=? AND role<>'admin'", blocked, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// Delete removes a user.  Addresses, machines and tokens cascade; a user
// with booking history cannot be deleted and ErrConflict is returned.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=? AND role<>'admin'", id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrConflict
		}
		return err
	}
	return expectOneRow(res)
}

// EnsureAdmin creates the bootstrap admin when no user with that email
// exists.  It reports whether a row was inserted.
func (r *UserRepo) EnsureAdmin(ctx context.Context, email, passwordHash string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	_, err = r.Create(ctx, model.User{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: passwordHash,
		Role:         model.RoleAdmin,
		IsVerified:   true,
	})
	if errors.Is(err, ErrEmailExists) {
		return false, nil
	}
	return err == nil, err
}

// expectOneRow maps "no row affected" to ErrNotFound.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
