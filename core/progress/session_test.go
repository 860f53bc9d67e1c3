package progress

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
)

// fakeStore is an in-memory Store recording every upsert. When block is
// set, Upsert waits on it, which lets tests hold a save in flight.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]Progress
	upserts   []Progress
	upsertErr error

	block   chan struct{}
	entered chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]Progress)}
}

func (f *fakeStore) seed(p Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[p.UserID+"/"+p.SOPID] = p
}

func (f *fakeStore) Fetch(ctx context.Context, userID, sopID string) (Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[userID+"/"+sopID]
	if !ok {
		return Progress{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) Upsert(ctx context.Context, p Progress) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, p)
	f.records[p.UserID+"/"+p.SOPID] = p
	return nil
}

func (f *fakeStore) saved() []Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Progress(nil), f.upserts...)
}

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testSession(t *testing.T, store Store) *Session {
	t.Helper()
	return newSession(context.Background(), store, testLog(), "user1", "sop1")
}

var ignoreUpdatedAt = cmpopts.IgnoreFields(Progress{}, "UpdatedAt")

func TestPercentage(t *testing.T) {
	tests := []struct {
		name     string
		position float64
		duration float64
		want     int
	}{
		{"zero duration", 10, 0, 0},
		{"negative duration", 10, -1, 0},
		{"negative position", -3, 100, 0},
		{"start", 0, 120, 0},
		{"floors", 6, 120, 5},
		{"floors fraction", 1, 3, 33},
		{"near threshold", 94.9, 100, 94},
		{"at threshold", 95, 100, 95},
		{"full", 120, 120, 100},
		{"past end clamps", 150, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percentage(tt.position, tt.duration); got != tt.want {
				t.Errorf("Percentage(%v, %v) = %d, want %d", tt.position, tt.duration, got, tt.want)
			}
		})
	}
}

func TestSessionThrottlesSaves(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)

	s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 120})

	for _, pos := range []float64{0, 3} {
		res := s.Dispatch(ctx, Event{Type: EventPosition, Position: pos})
		if res.Saved {
			t.Errorf("sample at %v saved before the 5 second delta elapsed", pos)
		}
	}

	res := s.Dispatch(ctx, Event{Type: EventPosition, Position: 6})
	if !res.Saved {
		t.Fatal("sample at 6 not saved, want save 5 seconds past the last report")
	}

	res = s.Dispatch(ctx, Event{Type: EventPosition, Position: 9})
	if res.Saved {
		t.Error("sample at 9 saved, want throttled (3 seconds since last report)")
	}

	want := []Progress{{
		UserID:     "user1",
		SOPID:      "sop1",
		Position:   6,
		Duration:   120,
		Percentage: 5,
	}}
	if diff := cmp.Diff(want, store.saved(), ignoreUpdatedAt); diff != "" {
		t.Errorf("saved snapshots mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionWatchedThresholdBypassesThrottle(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)

	s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})

	res := s.Dispatch(ctx, Event{Type: EventPosition, Position: 92})
	if !res.Saved || res.Watched {
		t.Fatalf("sample at 92: saved=%t watched=%t, want saved and not watched", res.Saved, res.Watched)
	}

	// Only 4 seconds since the last report, but the sample crosses the
	// watched threshold, which always persists.
	res = s.Dispatch(ctx, Event{Type: EventPosition, Position: 96})
	if !res.Saved {
		t.Fatal("threshold-crossing sample at 96 not saved")
	}
	if !res.Watched {
		t.Error("session not watched after crossing 95%")
	}
	if res.Percentage != 96 {
		t.Errorf("percentage = %d, want 96", res.Percentage)
	}
}

func TestSessionWatchedIsSticky(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)

	s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})
	s.Dispatch(ctx, Event{Type: EventPosition, Position: 96})

	// Once watched, samples above the threshold fall back to the normal
	// 5 second throttle.
	res := s.Dispatch(ctx, Event{Type: EventPosition, Position: 97})
	if res.Saved {
		t.Error("sample at 97 saved, want throttled once already watched")
	}
	if !res.Watched {
		t.Error("watched flag dropped")
	}
}

func TestSessionEnded(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)

	s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 50})
	s.Dispatch(ctx, Event{Type: EventPosition, Position: 10})

	res := s.Dispatch(ctx, Event{Type: EventEnded})
	if !res.Saved {
		t.Fatal("ended event not saved")
	}
	if res.State != "ended" {
		t.Errorf("state = %q, want ended", res.State)
	}
	if !res.Watched {
		t.Error("session not watched after ended")
	}

	saves := store.saved()
	last := saves[len(saves)-1]
	want := Progress{
		UserID:     "user1",
		SOPID:      "sop1",
		Position:   50,
		Duration:   50,
		Percentage: 100,
	}
	if diff := cmp.Diff(want, last, ignoreUpdatedAt); diff != "" {
		t.Errorf("terminal snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionEndedCarriesDuration(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)

	// No metadata arrived, the ended event itself carries the duration.
	res := s.Dispatch(ctx, Event{Type: EventEnded, Duration: 50})
	if !res.Saved {
		t.Fatal("ended event not saved")
	}
	if res.Percentage != 100 {
		t.Errorf("percentage = %d, want 100", res.Percentage)
	}
}

func TestSessionIgnoresSamplesWithoutDuration(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)

	res := s.Dispatch(ctx, Event{Type: EventPosition, Position: 30})
	if res.Saved {
		t.Error("sample without a known duration saved")
	}
	if res.State != "idle" {
		t.Errorf("state = %q, want idle", res.State)
	}
	if got := store.saved(); len(got) != 0 {
		t.Errorf("store received %d writes, want none", len(got))
	}
}

func TestSessionResumesFromStoredPosition(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seed(Progress{UserID: "user1", SOPID: "sop1", Position: 42.5, Duration: 100, Percentage: 42})

	s := testSession(t, store)

	res := s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})
	if res.ResumeFrom == nil || *res.ResumeFrom != 42.5 {
		t.Fatalf("ResumeFrom = %v, want 42.5", res.ResumeFrom)
	}

	// The resume hint is delivered once.
	res = s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})
	if res.ResumeFrom != nil {
		t.Errorf("second metadata event repeated ResumeFrom = %v", *res.ResumeFrom)
	}

	// The stored position also seeds the throttle window.
	res = s.Dispatch(ctx, Event{Type: EventPosition, Position: 45})
	if res.Saved {
		t.Error("sample at 45 saved, want throttled against stored position 42.5")
	}
	res = s.Dispatch(ctx, Event{Type: EventPosition, Position: 47.5})
	if !res.Saved {
		t.Error("sample at 47.5 not saved, want save 5 seconds past stored position")
	}
}

func TestSessionSeedsWatchedFromStore(t *testing.T) {
	store := newFakeStore()
	store.seed(Progress{UserID: "user1", SOPID: "sop1", Position: 97, Duration: 100, Percentage: 97})

	s := testSession(t, store)
	if !s.Watched() {
		t.Error("session seeded from a 97% record is not watched")
	}
}

func TestSessionBlocksSeek(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)

	s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})
	s.Dispatch(ctx, Event{Type: EventPosition, Position: 10})

	res := s.Dispatch(ctx, Event{Type: EventSeek, Position: 80})
	if !res.Suppressed {
		t.Error("seek not suppressed")
	}
	if res.ResetTo == nil || *res.ResetTo != 10 {
		t.Fatalf("ResetTo = %v, want the pre-seek position 10", res.ResetTo)
	}
}

func TestSessionSuppressesGuardedKeys(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)
	s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})

	for _, key := range []string{"ArrowRight", "ArrowLeft", " ", "f", "m", "k"} {
		res := s.Dispatch(ctx, Event{Type: EventKey, Key: key})
		if !res.Suppressed {
			t.Errorf("key %q not suppressed", key)
		}
	}

	for _, key := range []string{"a", "Escape", "Tab"} {
		res := s.Dispatch(ctx, Event{Type: EventKey, Key: key})
		if res.Suppressed {
			t.Errorf("key %q suppressed, want passed through", key)
		}
	}
}

func TestSessionClampsPositionToDuration(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)

	s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})
	res := s.Dispatch(ctx, Event{Type: EventPosition, Position: 150})
	if !res.Saved {
		t.Fatal("clamped sample not saved")
	}

	saves := store.saved()
	if got := saves[len(saves)-1].Position; got != 100 {
		t.Errorf("saved position = %v, want clamped to 100", got)
	}
}

func TestSessionRetriesAfterFailedSave(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.upsertErr = errors.New("connection refused")
	s := testSession(t, store)

	s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})
	res := s.Dispatch(ctx, Event{Type: EventPosition, Position: 6})
	if res.Saved {
		t.Fatal("failed save reported as saved")
	}

	// The throttle window must not advance on failure, so the very next
	// qualifying sample retries.
	store.mu.Lock()
	store.upsertErr = nil
	store.mu.Unlock()

	res = s.Dispatch(ctx, Event{Type: EventPosition, Position: 7})
	if !res.Saved {
		t.Error("sample after recovered store not saved")
	}
}

func TestSessionDropsSampleWhileSaveInFlight(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.block = make(chan struct{})
	store.entered = make(chan struct{}, 2)
	s := testSession(t, store)

	s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})

	done := make(chan Result, 1)
	go func() {
		done <- s.Dispatch(ctx, Event{Type: EventPosition, Position: 10})
	}()
	<-store.entered // first save now held in flight

	res := s.Dispatch(ctx, Event{Type: EventPosition, Position: 20})
	if res.Saved {
		t.Error("sample dispatched during an in-flight save was saved")
	}

	close(store.block)
	first := <-done
	if !first.Saved {
		t.Error("in-flight save not reported as saved")
	}

	if got := store.saved(); len(got) != 1 {
		t.Fatalf("store received %d writes, want 1", len(got))
	}
}

func TestSessionPlayPauseTransitions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	s := testSession(t, store)

	res := s.Dispatch(ctx, Event{Type: EventMetadata, Duration: 100})
	if res.State != "loaded" {
		t.Errorf("state after metadata = %q, want loaded", res.State)
	}

	res = s.Dispatch(ctx, Event{Type: EventPlay})
	if res.State != "playing" {
		t.Errorf("state after play = %q, want playing", res.State)
	}

	res = s.Dispatch(ctx, Event{Type: EventPause})
	if res.State != "paused" {
		t.Errorf("state after pause = %q, want paused", res.State)
	}
}

func TestTrackerReusesSessions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	tr := NewTracker(store, testLog())

	a := tr.Session(ctx, "user1", "sop1")
	b := tr.Session(ctx, "user1", "sop1")
	if a != b {
		t.Error("same (viewer, sop) pair produced distinct sessions")
	}

	c := tr.Session(ctx, "user1", "sop2")
	if a == c {
		t.Error("distinct sops share a session")
	}
}
