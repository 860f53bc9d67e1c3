package viewer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("viewer not found")

func Create(ctx context.Context, db sqlx.ExtContext, v Viewer) error {
	const q = `
	INSERT INTO profiles (user_id, full_name, email, avatar_url, password_hash, created_at, updated_at)
	VALUES (:user_id, :full_name, :email, :avatar_url, :password_hash, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, v); err != nil {
		return fmt.Errorf("inserting viewer: %w", err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Viewer, error) {
	const q = `SELECT * FROM profiles WHERE user_id = $1`

	var v Viewer
	if err := sqlx.GetContext(ctx, db, &v, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Viewer{}, ErrNotFound
		}
		return Viewer{}, fmt.Errorf("selecting viewer[%s]: %w", id, err)
	}
	return v, nil
}

func FetchByEmail(ctx context.Context, db sqlx.ExtContext, email string) (Viewer, error) {
	const q = `SELECT * FROM profiles WHERE email = $1`

	var v Viewer
	if err := sqlx.GetContext(ctx, db, &v, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Viewer{}, ErrNotFound
		}
		return Viewer{}, fmt.Errorf("selecting viewer by email: %w", err)
	}
	return v, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]Viewer, error) {
	const q = `SELECT * FROM profiles ORDER BY full_name`

	vs := []Viewer{}
	if err := sqlx.SelectContext(ctx, db, &vs, q); err != nil {
		return nil, fmt.Errorf("selecting viewers: %w", err)
	}
	return vs, nil
}

// IsAdmin reports whether the viewer appears in the administrators list.
func IsAdmin(ctx context.Context, db sqlx.ExtContext, id string) (bool, error) {
	const q = `SELECT true FROM admins WHERE user_id = $1`

	var ok bool
	if err := sqlx.GetContext(ctx, db, &ok, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking admin membership[%s]: %w", id, err)
	}
	return ok, nil
}
