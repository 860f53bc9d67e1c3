package admin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/happyhome/crm/core/progress"
	"github.com/happyhome/crm/core/sop"
	"github.com/happyhome/crm/core/viewer"
	"github.com/happyhome/crm/notify"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Monitor keeps the denormalized progress table the admin dashboard
// shows. Every change-feed event triggers a full re-fetch and re-join;
// correctness over efficiency at this data volume.
type Monitor struct {
	db  *sqlx.DB
	log logrus.FieldLogger

	mu          sync.RWMutex
	rows        []Row
	refreshedAt time.Time

	subMu sync.Mutex
	subs  map[chan time.Time]struct{}
}

func NewMonitor(db *sqlx.DB, log logrus.FieldLogger) *Monitor {
	return &Monitor{
		db:   db,
		log:  log,
		subs: make(map[chan time.Time]struct{}),
	}
}

// Refresh rebuilds the snapshot from scratch.
func (m *Monitor) Refresh(ctx context.Context) error {
	ps, err := progress.FetchAll(ctx, m.db)
	if err != nil {
		return fmt.Errorf("fetching progress records: %w", err)
	}

	vs, err := viewer.FetchAll(ctx, m.db)
	if err != nil {
		return fmt.Errorf("fetching viewers: %w", err)
	}

	ss, err := sop.FetchAll(ctx, m.db)
	if err != nil {
		return fmt.Errorf("fetching sops: %w", err)
	}

	rows := BuildRows(ps, vs, ss)
	now := time.Now().UTC()

	m.mu.Lock()
	m.rows = rows
	m.refreshedAt = now
	m.mu.Unlock()

	m.subMu.Lock()
	for ch := range m.subs {
		select {
		case ch <- now:
		default:
		}
	}
	m.subMu.Unlock()

	return nil
}

// Rows returns the current snapshot filtered by the search query,
// together with the time it was built.
func (m *Monitor) Rows(query string) ([]Row, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return FilterRows(m.rows, query), m.refreshedAt
}

// Subscribe registers for refresh notifications. The returned cancel
// must be called when the subscriber goes away.
func (m *Monitor) Subscribe() (<-chan time.Time, func()) {
	ch := make(chan time.Time, 1)

	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		delete(m.subs, ch)
		m.subMu.Unlock()
	}
	return ch, cancel
}

// Run builds the initial snapshot and then rebuilds on every change-feed
// event until the context is cancelled. A failed rebuild keeps the stale
// snapshot; the next event or a manual refresh retries.
func (m *Monitor) Run(ctx context.Context, feed notify.Feed) {
	if err := m.Refresh(ctx); err != nil {
		m.log.WithFields(logrus.Fields{"message": err}).Error("cannot build initial monitor snapshot")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-feed.Events():
			if !ok {
				return
			}
			if err := m.Refresh(ctx); err != nil {
				m.log.WithFields(logrus.Fields{"message": err}).Error("cannot refresh monitor snapshot")
			}
		}
	}
}
