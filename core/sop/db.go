package sop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("sop not found")

func Create(ctx context.Context, db sqlx.ExtContext, s SOP) error {
	const q = `
	INSERT INTO sops (sop_id, title, description, content, video_url, platform, category, created_at, updated_at, version)
	VALUES (:sop_id, :title, :description, :content, :video_url, :platform, :category, :created_at, :updated_at, :version)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, s); err != nil {
		return fmt.Errorf("inserting sop: %w", err)
	}
	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, s SOP) error {
	const q = `
	UPDATE sops SET
		title = :title,
		description = :description,
		content = :content,
		video_url = :video_url,
		platform = :platform,
		category = :category,
		updated_at = :updated_at,
		version = version + 1
	WHERE sop_id = :sop_id`

	if _, err := sqlx.NamedExecContext(ctx, db, q, s); err != nil {
		return fmt.Errorf("updating sop[%s]: %w", s.ID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (SOP, error) {
	const q = `SELECT * FROM sops WHERE sop_id = $1`

	var s SOP
	if err := sqlx.GetContext(ctx, db, &s, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SOP{}, ErrNotFound
		}
		return SOP{}, fmt.Errorf("selecting sop[%s]: %w", id, err)
	}
	return s, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]SOP, error) {
	const q = `SELECT * FROM sops ORDER BY sop_id`

	ss := []SOP{}
	if err := sqlx.SelectContext(ctx, db, &ss, q); err != nil {
		return nil, fmt.Errorf("selecting sops: %w", err)
	}
	return ss, nil
}

// FetchAllWithStatus returns every SOP together with the viewer's
// completion flag in one round trip.
func FetchAllWithStatus(ctx context.Context, db sqlx.ExtContext, userID string) ([]Status, error) {
	const q = `
	SELECT s.*, c.user_id IS NOT NULL AS completed
	FROM sops s
	LEFT JOIN sop_completions c ON c.sop_id = s.sop_id AND c.user_id = $1
	ORDER BY s.sop_id`

	ss := []Status{}
	if err := sqlx.SelectContext(ctx, db, &ss, q, userID); err != nil {
		return nil, fmt.Errorf("selecting sops with completion status: %w", err)
	}
	return ss, nil
}
