package viewer

import (
	"context"
	"errors"
	"net/http"

	"github.com/happyhome/crm/api/web"
	"github.com/happyhome/crm/api/weberr"
	"github.com/happyhome/crm/core/claims"
	"github.com/jmoiron/sqlx"
)

type currentResponse struct {
	Viewer
	IsAdmin bool `json:"isAdmin"`
}

// HandleShowCurrent returns the logged-in viewer together with the admin
// flag the frontend uses to expose the monitoring dashboard.
func HandleShowCurrent(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		v, err := Fetch(ctx, db, clm.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		res := currentResponse{Viewer: v, IsAdmin: claims.IsAdmin(ctx)}
		return web.Respond(ctx, w, res, http.StatusOK)
	}
}
