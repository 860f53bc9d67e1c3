package admin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/happyhome/crm/api/web"
	"github.com/happyhome/crm/api/weberr"
)

type listResponse struct {
	Rows        []Row     `json:"rows"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// HandleListProgress serves the denormalized progress table, filtered by
// the optional search query.
func HandleListProgress(m *Monitor) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		rows, refreshedAt := m.Rows(web.Query(r, "search"))

		return web.Respond(ctx, w, listResponse{Rows: rows, RefreshedAt: refreshedAt}, http.StatusOK)
	}
}

// HandleRefresh forces a rebuild, for the dashboard's manual refresh
// affordance. Unlike passive saves a failure here is surfaced.
func HandleRefresh(m *Monitor) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := m.Refresh(ctx); err != nil {
			return weberr.InternalError(fmt.Errorf("refreshing monitor snapshot: %w", err))
		}

		rows, refreshedAt := m.Rows(web.Query(r, "search"))
		return web.Respond(ctx, w, listResponse{Rows: rows, RefreshedAt: refreshedAt}, http.StatusOK)
	}
}

type refreshEvent struct {
	RefreshedAt time.Time `json:"refreshedAt"`
	Count       int       `json:"count"`
}

// HandleStream pushes a server-sent event every time the snapshot is
// rebuilt, so dashboards can refetch without polling.
func HandleStream(m *Monitor) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		send, err := web.EventStream(w)
		if err != nil {
			return err
		}

		updates, cancel := m.Subscribe()
		defer cancel()

		rows, refreshedAt := m.Rows("")
		if err := send("refresh", refreshEvent{RefreshedAt: refreshedAt, Count: len(rows)}); err != nil {
			return nil
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case ts := <-updates:
				rows, _ := m.Rows("")
				if err := send("refresh", refreshEvent{RefreshedAt: ts, Count: len(rows)}); err != nil {
					// Client went away.
					return nil
				}
			}
		}
	}
}
