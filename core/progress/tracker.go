package progress

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Tracker holds the live playback sessions, one per (viewer, sop) pair.
// Sessions idle beyond the expiry are swept; a fresh one re-seeds itself
// from the store, so nothing is lost.
type Tracker struct {
	store  Store
	log    logrus.FieldLogger
	expiry time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewTracker(store Store, log logrus.FieldLogger) *Tracker {
	return &Tracker{
		store:    store,
		log:      log,
		expiry:   30 * time.Minute,
		sessions: make(map[string]*Session),
	}
}

// Session returns the live session for the pair, creating and seeding it
// from the store on first use.
func (t *Tracker) Session(ctx context.Context, userID, sopID string) *Session {
	key := userID + "/" + sopID

	t.mu.Lock()
	s, ok := t.sessions[key]
	t.mu.Unlock()
	if ok {
		return s
	}

	// Seeding reads the store, so it happens outside the registry lock.
	// A concurrent create for the same pair keeps the first one in.
	fresh := newSession(ctx, t.store, t.log, userID, sopID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[key]; ok {
		return s
	}
	t.sessions[key] = fresh
	return fresh
}

// Sweep drops idle sessions until the context is cancelled.
func (t *Tracker) Sweep(ctx context.Context) {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.mu.Lock()
			for key, s := range t.sessions {
				if time.Since(s.idleSince()) > t.expiry {
					delete(t.sessions, key)
				}
			}
			t.mu.Unlock()
		}
	}
}
