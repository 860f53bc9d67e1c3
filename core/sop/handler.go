package sop

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/happyhome/crm/api/web"
	"github.com/happyhome/crm/api/weberr"
	"github.com/happyhome/crm/core/claims"
	"github.com/happyhome/crm/validate"
	"github.com/jmoiron/sqlx"
)

// HandleList returns every SOP decorated with the calling viewer's
// completion flag, the data behind the dashboard.
func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ss, err := FetchAllWithStatus(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing sops: %w", err)
		}

		return web.Respond(ctx, w, ss, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")

		s, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching sop[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, s, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var sn SOPNew
		if err := web.Decode(w, r, &sn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(sn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		s := SOP{
			ID:          sn.ID,
			Title:       sn.Title,
			Description: sn.Description,
			Content:     sn.Content,
			VideoURL:    sn.VideoURL,
			Platform:    sn.Platform,
			Category:    sn.Category,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		}

		if err := Create(ctx, db, s); err != nil {
			return fmt.Errorf("creating sop: %w", err)
		}

		return web.Respond(ctx, w, s, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")

		var su SOPUp
		if err := web.Decode(w, r, &su); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(su); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		s, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching sop[%s]: %w", id, err)
		}

		if su.Title != nil {
			s.Title = *su.Title
		}
		if su.Description != nil {
			s.Description = *su.Description
		}
		if su.Content != nil {
			s.Content = *su.Content
		}
		if su.VideoURL != nil {
			s.VideoURL = *su.VideoURL
		}
		if su.Platform != nil {
			s.Platform = *su.Platform
		}
		if su.Category != nil {
			s.Category = *su.Category
		}
		s.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, db, s); err != nil {
			return fmt.Errorf("updating sop[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, s, http.StatusOK)
	}
}
