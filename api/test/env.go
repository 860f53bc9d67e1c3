package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/happyhome/crm/api"
	"github.com/happyhome/crm/config"
	"github.com/happyhome/crm/core/admin"
	"github.com/happyhome/crm/core/progress"
	"github.com/happyhome/crm/core/viewer"
	"github.com/happyhome/crm/database"
	"github.com/happyhome/crm/notify"
	"github.com/happyhome/crm/rate"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/sirupsen/logrus"
)

// TestEnv boots a throwaway postgres container, migrates the schema and
// serves the full API over it, together with two known accounts.
type TestEnv struct {
	DB     *sqlx.DB
	Server *httptest.Server
	URL    string

	UserID    string
	UserEmail string
	UserPass  string

	AdminID    string
	AdminEmail string
	AdminPass  string
}

func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}
	pool.MaxWait = 2 * time.Minute

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=" + name,
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres container: %v", err)
		}
	})

	dbCfg := config.DB{
		User:       "postgres",
		Password:   "postgres",
		Host:       net.JoinHostPort("localhost", res.GetPort("5432/tcp")),
		Name:       name,
		DisableTLS: true,
	}

	var db *sqlx.DB
	if err := pool.Retry(func() error {
		db, err = database.Open(dbCfg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return database.StatusCheck(ctx, db)
	}); err != nil {
		return nil, fmt.Errorf("waiting for postgres: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	session := scs.New()
	session.Lifetime = time.Hour

	feed, err := notify.Listen(database.DSN(dbCfg), 16, log)
	if err != nil {
		return nil, fmt.Errorf("starting change feed listener: %w", err)
	}
	t.Cleanup(func() { feed.Close() })

	tracker := progress.NewTracker(progress.NewStore(db), log)
	monitor := admin.NewMonitor(db, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go monitor.Run(ctx, feed)

	mux := api.APIMux(api.APIConfig{
		Log:         log,
		DB:          db,
		Session:     session,
		Tracker:     tracker,
		Monitor:     monitor,
		AuthLimiter: rate.NewLimiter(100, 1, 100),
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	srv.Client().Jar = jar

	env := &TestEnv{
		DB:     db,
		Server: srv,
		URL:    srv.URL,

		UserEmail: "user@test.io",
		UserPass:  "gopher123",

		AdminEmail: "admin@test.io",
		AdminPass:  "gopher123",
	}

	if env.UserID, err = env.signup("Regular User", env.UserEmail, env.UserPass); err != nil {
		return nil, err
	}
	if env.AdminID, err = env.signup("Admin User", env.AdminEmail, env.AdminPass); err != nil {
		return nil, err
	}

	// Role is derived from the admins table at login time, so promoting
	// here is enough for the next Login.
	if _, err := db.Exec("INSERT INTO admins (user_id) VALUES ($1)", env.AdminID); err != nil {
		return nil, fmt.Errorf("promoting admin account: %w", err)
	}

	return env, nil
}

func (e *TestEnv) Client() *http.Client {
	return e.Server.Client()
}

func (e *TestEnv) signup(fullName, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	r, err := http.NewRequest(http.MethodPost, e.URL+"/auth/signup", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	r.Header.Set("Content-Type", "application/json")

	w, err := e.Client().Do(r)
	if err != nil {
		return "", err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("can't sign up %s: status code %s", email, w.Status)
	}

	var v viewer.Viewer
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		return "", fmt.Errorf("cannot unmarshal viewer: %w", err)
	}

	if err := Logout(e.Server); err != nil {
		return "", err
	}
	return v.ID, nil
}

// Login authenticates the shared client's cookie jar as the given account.
func Login(srv *httptest.Server, email, password string) error {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}

	r, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json")

	w, err := srv.Client().Do(r)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		return fmt.Errorf("can't login as %s: status code %s", email, w.Status)
	}
	return nil
}

func Logout(srv *httptest.Server) error {
	r, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/logout", nil)
	if err != nil {
		return err
	}

	w, err := srv.Client().Do(r)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		return fmt.Errorf("can't logout: status code %s", w.Status)
	}
	return nil
}
