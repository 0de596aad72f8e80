package repository

import (
	"context"
	"database/sql"

	"github.com/graphuraprojects/agrirent/internal/model"
)

// AddressRepo stores user addresses.  Writes that touch the default flag
// run in a transaction so that at most one address per user is default.
type AddressRepo struct{ db *sql.DB }

// NewAddressRepo returns a new AddressRepo bound to the given database.
func NewAddressRepo(db *sql.DB) *AddressRepo { return &AddressRepo{db: db} }

const addressColumns = "id,user_id,label,line1,city,state,pincode,lat,lng,is_default,created_at"

func scanAddress(s scanner) (model.Address, error) {
	var a model.Address
	var lat, lng sql.NullFloat64
	if err := s.Scan(&a.ID, &a.UserID, &a.Label, &a.Line1, &a.City, &a.State, &a.Pincode, &lat, &lng, &a.IsDefault, &a.CreatedAt); err != nil {
		return a, err
	}
	if lat.Valid {
		v := lat.Float64
		a.Lat = &v
	}
	if lng.Valid {
		v := lng.Float64
		a.Lng = &v
	}
	return a, nil
}

// ListByUser returns the user's addresses, oldest first.
func (r *AddressRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Address, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+addressColumns+" FROM addresses WHERE user_id=? ORDER BY created_at, id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Address, 0)
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DefaultForUser returns the flagged default address, or the oldest one when
// none is flagged.  ErrNotFound means the user has no address at all.
func (r *AddressRepo) DefaultForUser(ctx context.Context, userID uint64) (model.Address, error) {
	addrs, err := r.ListByUser(ctx, userID)
	if err != nil {
		return model.Address{}, err
	}
	a, ok := model.DefaultAddress(addrs)
	if !ok {
		return model.Address{}, ErrNotFound
	}
	return a, nil
}

// Create inserts an address.  When a.IsDefault is set, any other default of
// the same user is cleared in the same transaction.
func (r *AddressRepo) Create(ctx context.Context, a *model.Address) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if a.IsDefault {
		if _, err := tx.ExecContext(ctx, "UPDATE addresses SET is_default=0 WHERE user_id=?", a.UserID); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO addresses (user_id,label,line1,city,state,pincode,lat,lng,is_default) VALUES (?,?,?,?,?,?,?,?,?)",
		a.UserID, a.Label, a.Line1, a.City, a.State, a.Pincode, a.Lat, a.Lng, a.IsDefault)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	a.ID = uint64(id)
	return nil
}

// SetDefault makes addressID the only default address of userID.
func (r *AddressRepo) SetDefault(ctx context.Context, userID, addressID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var owner uint64
	err = tx.QueryRowContext(ctx, "SELECT user_id FROM addresses WHERE id=? FOR UPDATE", addressID).Scan(&owner)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != userID {
		return ErrForbidden
	}
	if _, err := tx.ExecContext(ctx, "UPDATE addresses SET is_default = (id = ?) WHERE user_id=?", addressID, userID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Delete removes one of the user's addresses.
func (r *AddressRepo) Delete(ctx context.Context, userID, addressID uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM addresses WHERE id=? AND user_id=?", addressID, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}
