package completion

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func Upsert(ctx context.Context, db sqlx.ExtContext, c Completion) error {
	const q = `
	INSERT INTO sop_completions (user_id, sop_id, completed_at)
	VALUES (:user_id, :sop_id, :completed_at)
	ON CONFLICT (user_id, sop_id) DO UPDATE SET
		completed_at = EXCLUDED.completed_at`

	if _, err := sqlx.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("upserting completion[%s/%s]: %w", c.UserID, c.SOPID, err)
	}
	return nil
}

func FetchByViewer(ctx context.Context, db sqlx.ExtContext, userID string) ([]Completion, error) {
	const q = `SELECT * FROM sop_completions WHERE user_id = $1 ORDER BY completed_at DESC`

	cs := []Completion{}
	if err := sqlx.SelectContext(ctx, db, &cs, q, userID); err != nil {
		return nil, fmt.Errorf("selecting completions for viewer[%s]: %w", userID, err)
	}
	return cs, nil
}
