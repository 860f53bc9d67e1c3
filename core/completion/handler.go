package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/happyhome/crm/api/web"
	"github.com/happyhome/crm/api/weberr"
	"github.com/happyhome/crm/core/claims"
	"github.com/happyhome/crm/core/progress"
	"github.com/jmoiron/sqlx"
)

// HandleComplete marks a SOP as finished for the calling viewer, provided
// the watched threshold holds. The session carries the flag; a fresh
// session seeds it from the stored progress record.
func HandleComplete(db *sqlx.DB, t *progress.Tracker) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		sopID := web.Param(r, "id")
		watched := t.Session(ctx, clm.UserID, sopID).Watched()

		c, err := TryComplete(ctx, db, clm.UserID, sopID, watched)
		if err != nil {
			if errors.Is(err, ErrNotWatched) {
				fields := map[string]interface{}{"sop_id": sopID, "user_id": clm.UserID}
				return weberr.NotEligible(err,
					"you must watch the entire video before marking this SOP as complete",
					weberr.WithFields(fields))
			}
			return fmt.Errorf("completing sop[%s]: %w", sopID, err)
		}

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

// HandleList returns the calling viewer's completions.
func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		cs, err := FetchByViewer(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing completions: %w", err)
		}

		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}
