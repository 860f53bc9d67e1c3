package progress

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/happyhome/crm/api/web"
	"github.com/happyhome/crm/api/weberr"
	"github.com/happyhome/crm/core/claims"
	"github.com/happyhome/crm/validate"
	"github.com/jmoiron/sqlx"
)

// HandlePlayback feeds one playback surface event into the viewer's
// session for the SOP. Save failures are not surfaced here; the response
// simply reports saved=false.
func HandlePlayback(t *Tracker) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var ev Event
		if err := web.Decode(w, r, &ev); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(ev); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		s := t.Session(ctx, clm.UserID, web.Param(r, "id"))
		res := s.Dispatch(ctx, ev)

		return web.Respond(ctx, w, res, http.StatusOK)
	}
}

// HandleShow returns the viewer's stored progress for a SOP, used to seed
// the player and resume from the last position.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		p, err := Fetch(ctx, db, clm.UserID, web.Param(r, "id"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching progress: %w", err)
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}
