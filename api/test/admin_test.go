package test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/happyhome/crm/core/admin"
	"github.com/happyhome/crm/core/progress"
)

type adminTest struct {
	*TestEnv
}

type progressListing struct {
	Rows        []admin.Row `json:"rows"`
	RefreshedAt time.Time   `json:"refreshedAt"`
}

func TestAdminMonitor(t *testing.T) {
	env, err := NewTestEnv(t, "admin_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	st := &sopTest{env}
	pt := &progressTest{env}
	at := &adminTest{env}

	s := st.createSopOK(t)

	if err := Login(env.Server, env.UserEmail, env.UserPass); err != nil {
		t.Fatal(err)
	}
	pt.dispatchOK(t, s.ID, progress.Event{Type: progress.EventMetadata, Duration: 100})
	pt.dispatchOK(t, s.ID, progress.Event{Type: progress.EventPosition, Position: 30})
	if err := Logout(env.Server); err != nil {
		t.Fatal(err)
	}

	if err := Login(env.Server, env.AdminEmail, env.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(env.Server)

	// The save above fired the change feed; the monitor picks it up
	// asynchronously, so poll for the rebuilt snapshot.
	row, ok := at.waitForRow(t, env.UserID, s.ID, 10*time.Second)
	if !ok {
		t.Fatal("progress row never showed up in the monitor snapshot")
	}
	if row.FullName != "Regular User" {
		t.Errorf("row full name = %q, want Regular User", row.FullName)
	}
	if row.SOPTitle != s.Title {
		t.Errorf("row sop title = %q, want %q", row.SOPTitle, s.Title)
	}
	if row.Percentage != 30 {
		t.Errorf("row percentage = %d, want 30", row.Percentage)
	}

	// Search filters on name, email and title, case-insensitively.
	if got := at.listRowsOK(t, "REGULAR"); len(got.Rows) != 1 {
		t.Errorf("search REGULAR returned %d rows, want 1", len(got.Rows))
	}
	if got := at.listRowsOK(t, s.Title); len(got.Rows) != 1 {
		t.Errorf("search by title returned %d rows, want 1", len(got.Rows))
	}
	if got := at.listRowsOK(t, "no-such-thing"); len(got.Rows) != 0 {
		t.Errorf("search no-such-thing returned %d rows, want 0", len(got.Rows))
	}

	// The manual refresh endpoint rebuilds on demand.
	got := at.refreshOK(t)
	if len(got.Rows) != 1 {
		t.Errorf("forced refresh returned %d rows, want 1", len(got.Rows))
	}
	if got.RefreshedAt.IsZero() {
		t.Error("forced refresh returned a zero refreshedAt")
	}
}

func TestAdminMonitorForbidden(t *testing.T) {
	env, err := NewTestEnv(t, "admin_forbidden_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	if err := Login(env.Server, env.UserEmail, env.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(env.Server)

	r, err := http.NewRequest(http.MethodGet, env.URL+"/admin/progress", nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := env.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	w.Body.Close()

	if w.StatusCode != http.StatusForbidden {
		t.Errorf("non-admin monitor access: status code %s, want 403", w.Status)
	}
}

func (at *adminTest) listRowsOK(t *testing.T, search string) progressListing {
	t.Helper()

	target := at.URL + "/admin/progress"
	if search != "" {
		target += "?search=" + url.QueryEscape(search)
	}

	r, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := at.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't list monitor rows: status code %s", w.Status)
	}

	var got progressListing
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("cannot unmarshal monitor listing: %v", err)
	}
	return got
}

func (at *adminTest) refreshOK(t *testing.T) progressListing {
	t.Helper()

	r, err := http.NewRequest(http.MethodPost, at.URL+"/admin/progress/refresh", nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := at.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't refresh monitor: status code %s", w.Status)
	}

	var got progressListing
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("cannot unmarshal monitor listing: %v", err)
	}
	return got
}

func (at *adminTest) waitForRow(t *testing.T, userID, sopID string, wait time.Duration) (admin.Row, bool) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		got := at.listRowsOK(t, "")
		for _, row := range got.Rows {
			if row.UserID == userID && row.SOPID == sopID {
				return row, true
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return admin.Row{}, false
}
