package api

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/happyhome/crm/api/middleware"
	"github.com/happyhome/crm/api/web"
	"github.com/happyhome/crm/core/admin"
	"github.com/happyhome/crm/core/auth"
	"github.com/happyhome/crm/core/completion"
	"github.com/happyhome/crm/core/progress"
	"github.com/happyhome/crm/core/sop"
	"github.com/happyhome/crm/core/viewer"
	"github.com/happyhome/crm/rate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type APIConfig struct {
	CorsOrigin       string
	Log              logrus.FieldLogger
	DB               *sqlx.DB
	Session          *scs.SessionManager
	Tracker          *progress.Tracker
	Monitor          *admin.Monitor
	AuthLimiter      *rate.Limiter
	Providers        map[string]auth.Provider
	LoginRedirectURL string
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, auth.LoadAndSave(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Session)
	admn := auth.Admin(cfg.Session)
	limited := middleware.RateLimit(cfg.AuthLimiter)

	a.Handle(http.MethodPost, "/auth/signup", auth.HandleSignup(cfg.DB, cfg.Session), limited)
	a.Handle(http.MethodPost, "/auth/login", auth.HandleLogin(cfg.DB, cfg.Session), limited)
	a.Handle(http.MethodPost, "/auth/logout", auth.HandleLogout(cfg.Session))
	a.Handle(http.MethodGet, "/auth/oauth-login/{provider}", auth.HandleOauthLogin(cfg.Session, cfg.Providers), limited)
	a.Handle(http.MethodGet, "/auth/oauth-callback/{provider}", auth.HandleOauthCallback(cfg.DB, cfg.Session, cfg.Providers, cfg.LoginRedirectURL), limited)

	a.Handle(http.MethodGet, "/viewers/current", viewer.HandleShowCurrent(cfg.DB), authen)

	a.Handle(http.MethodGet, "/sops", sop.HandleList(cfg.DB), authen)
	a.Handle(http.MethodGet, "/sops/{id}", sop.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodPost, "/sops", sop.HandleCreate(cfg.DB), admn)
	a.Handle(http.MethodPut, "/sops/{id}", sop.HandleUpdate(cfg.DB), admn)

	a.Handle(http.MethodGet, "/sops/{id}/progress", progress.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodPost, "/sops/{id}/playback", progress.HandlePlayback(cfg.Tracker), authen)
	a.Handle(http.MethodPost, "/sops/{id}/complete", completion.HandleComplete(cfg.DB, cfg.Tracker), authen)
	a.Handle(http.MethodGet, "/completions", completion.HandleList(cfg.DB), authen)

	a.Handle(http.MethodGet, "/admin/progress", admin.HandleListProgress(cfg.Monitor), admn)
	a.Handle(http.MethodPost, "/admin/progress/refresh", admin.HandleRefresh(cfg.Monitor), admn)
	a.Handle(http.MethodGet, "/admin/progress/stream", admin.HandleStream(cfg.Monitor), admn)

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
