package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexedwards/scs/v2"
	"github.com/ardanlabs/conf/v3"
	"github.com/happyhome/crm/api"
	"github.com/happyhome/crm/api/background"
	"github.com/happyhome/crm/config"
	"github.com/happyhome/crm/core/admin"
	"github.com/happyhome/crm/core/auth"
	"github.com/happyhome/crm/core/progress"
	"github.com/happyhome/crm/database"
	"github.com/happyhome/crm/notify"
	"github.com/happyhome/crm/rate"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	// Missing .env is fine, the environment may carry everything.
	_ = godotenv.Load()

	const prefix = "HAPPYHOME"
	var cfg config.Config
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate the db schema: %w", err)
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.Auth.SessionLifetime

	var oauthProvs map[string]auth.Provider
	if cfg.Oauth.Google.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Oauth.DiscoveryTimeout)
		defer cancel()

		google := cfg.Oauth.Google
		oauthProvs, err = auth.MakeProviders(ctx, []auth.ProviderConfig{
			{Name: "google", Client: google.Client, Secret: google.Secret, URL: google.URL, RedirectURL: google.RedirectURL},
		})
		if err != nil {
			return fmt.Errorf("failed to discover oauth providers: %w", err)
		}
	}

	feed, err := notify.Listen(database.DSN(cfg.DB), cfg.Monitor.EventBuffer, logger)
	if err != nil {
		return fmt.Errorf("failed to open the progress change feed: %w", err)
	}
	defer feed.Close()

	tracker := progress.NewTracker(progress.NewStore(db), logger)
	monitor := admin.NewMonitor(db, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	bg := background.New(logger)
	bg.Go(func() { tracker.Sweep(bgCtx) })
	bg.Go(func() { monitor.Run(bgCtx, feed) })

	limiter := rate.NewLimiter(cfg.Limiter.Burst, cfg.Limiter.ExpiryMins, rate.Every(cfg.Limiter.Interval))

	mux := api.APIMux(api.APIConfig{
		CorsOrigin:       cfg.Cors.Origin,
		Log:              logger,
		DB:               db,
		Session:          sessionManager,
		Tracker:          tracker,
		Monitor:          monitor,
		AuthLimiter:      limiter,
		Providers:        oauthProvs,
		LoginRedirectURL: cfg.Oauth.LoginRedirectURL,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		bgCancel()
		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}
