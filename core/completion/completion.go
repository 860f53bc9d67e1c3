package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotWatched rejects a completion attempt before the watched
// threshold was reached. A business-rule denial, not a fault.
var ErrNotWatched = errors.New("training video not watched past the threshold")

// Completion marks a SOP as finished by a viewer. Written once, never
// deleted; re-completing overwrites the same logical fact.
type Completion struct {
	UserID      string    `json:"userId" db:"user_id"`
	SOPID       string    `json:"sopId" db:"sop_id"`
	CompletedAt time.Time `json:"completedAt" db:"completed_at"`
}

// TryComplete is the completion gate. The watched flag must already hold;
// if it does not, nothing is written. The upsert keeps the operation
// idempotent on the (viewer, sop) key.
func TryComplete(ctx context.Context, db sqlx.ExtContext, userID, sopID string, watched bool) (Completion, error) {
	if !watched {
		return Completion{}, ErrNotWatched
	}

	c := Completion{
		UserID:      userID,
		SOPID:       sopID,
		CompletedAt: time.Now().UTC(),
	}

	if err := Upsert(ctx, db, c); err != nil {
		return Completion{}, fmt.Errorf("recording completion[%s/%s]: %w", userID, sopID, err)
	}
	return c, nil
}
