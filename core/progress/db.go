package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("progress not found")

func Fetch(ctx context.Context, db sqlx.ExtContext, userID, sopID string) (Progress, error) {
	const q = `SELECT * FROM sop_video_progress WHERE user_id = $1 AND sop_id = $2`

	var p Progress
	if err := sqlx.GetContext(ctx, db, &p, q, userID, sopID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Progress{}, ErrNotFound
		}
		return Progress{}, fmt.Errorf("selecting progress[%s/%s]: %w", userID, sopID, err)
	}
	return p, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]Progress, error) {
	const q = `SELECT * FROM sop_video_progress ORDER BY last_updated DESC`

	ps := []Progress{}
	if err := sqlx.SelectContext(ctx, db, &ps, q); err != nil {
		return nil, fmt.Errorf("selecting progress records: %w", err)
	}
	return ps, nil
}

// Upsert writes a progress snapshot, keyed on (user_id, sop_id). The
// insert-or-update is atomic so concurrent writers degrade to
// last-write-wins.
func Upsert(ctx context.Context, db sqlx.ExtContext, p Progress) error {
	const q = `
	INSERT INTO sop_video_progress (user_id, sop_id, position, duration, percentage, last_updated)
	VALUES (:user_id, :sop_id, :position, :duration, :percentage, :last_updated)
	ON CONFLICT (user_id, sop_id) DO UPDATE SET
		position = EXCLUDED.position,
		duration = EXCLUDED.duration,
		percentage = EXCLUDED.percentage,
		last_updated = EXCLUDED.last_updated`

	if _, err := sqlx.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("upserting progress[%s/%s]: %w", p.UserID, p.SOPID, err)
	}
	return nil
}

// NewStore adapts a database handle to the Store consumed by sessions.
func NewStore(db *sqlx.DB) Store {
	return dbStore{db: db}
}

type dbStore struct {
	db *sqlx.DB
}

func (s dbStore) Fetch(ctx context.Context, userID, sopID string) (Progress, error) {
	return Fetch(ctx, s.db, userID, sopID)
}

func (s dbStore) Upsert(ctx context.Context, p Progress) error {
	return Upsert(ctx, s.db, p)
}
