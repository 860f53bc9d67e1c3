package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/happyhome/crm/api/web"
	"github.com/happyhome/crm/api/weberr"
	"github.com/happyhome/crm/core/claims"
	"github.com/happyhome/crm/core/viewer"
	"github.com/happyhome/crm/validate"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// login stamps the session with a fresh token and the viewer's identity.
// The admin role is resolved here, once, by the existence check.
func login(ctx context.Context, db *sqlx.DB, session *scs.SessionManager, v viewer.Viewer) error {
	admin, err := viewer.IsAdmin(ctx, db, v.ID)
	if err != nil {
		return fmt.Errorf("resolving role for viewer[%s]: %w", v.ID, err)
	}

	role := claims.RoleUser
	if admin {
		role = claims.RoleAdmin
	}

	if err := session.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}

	session.Put(ctx, userIDKey, v.ID)
	session.Put(ctx, roleKey, role)
	return nil
}

func HandleSignup(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var vn viewer.ViewerNew
		if err := web.Decode(w, r, &vn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(vn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(vn.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		now := time.Now().UTC()
		v := viewer.Viewer{
			ID:           validate.GenerateID(),
			FullName:     vn.FullName,
			Email:        vn.Email,
			PasswordHash: string(hash),
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := viewer.Create(ctx, db, v); err != nil {
			return fmt.Errorf("creating viewer: %w", err)
		}

		if err := login(ctx, db, session, v); err != nil {
			return err
		}

		return web.Respond(ctx, w, v, http.StatusCreated)
	}
}

func HandleLogin(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var creds credentials
		if err := web.Decode(w, r, &creds); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(creds); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		v, err := viewer.FetchByEmail(ctx, db, creds.Email)
		if err != nil {
			if errors.Is(err, viewer.ErrNotFound) {
				return weberr.NotAuthorized(err)
			}
			return fmt.Errorf("fetching viewer by email: %w", err)
		}

		if err := bcrypt.CompareHashAndPassword([]byte(v.PasswordHash), []byte(creds.Password)); err != nil {
			return weberr.NotAuthorized(errors.New("wrong email or password"))
		}

		if err := login(ctx, db, session, v); err != nil {
			return err
		}

		return web.Respond(ctx, w, v, http.StatusOK)
	}
}

func HandleLogout(session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := session.Destroy(ctx); err != nil {
			return fmt.Errorf("destroying session: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
