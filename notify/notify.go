// Package notify exposes the progress table's change feed. A trigger on
// sop_video_progress emits pg_notify payloads; Listener turns them into
// typed events. Delivery is at-least-once with no ordering guarantee.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const channel = "sop_progress_changes"

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event describes one change to the progress collection. A zero UserID
// and SOPID marks a synthetic event (listener reconnect), which consumers
// should treat as "anything may have changed".
type Event struct {
	Op     Op     `json:"op"`
	UserID string `json:"user_id"`
	SOPID  string `json:"sop_id"`
}

// Feed is a stream of change events.
type Feed interface {
	Events() <-chan Event
	Close() error
}

// Listener adapts pq's LISTEN/NOTIFY support to a Feed. A dropped
// connection is re-established by pq; the reconnect surfaces as a
// synthetic event so consumers re-sync whatever they may have missed.
type Listener struct {
	pl     *pq.Listener
	log    logrus.FieldLogger
	events chan Event
	done   chan struct{}
}

func Listen(dsn string, buffer int, log logrus.FieldLogger) (*Listener, error) {
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithFields(logrus.Fields{"message": err}).Warn("change feed connection problem")
		}
	}

	pl := pq.NewListener(dsn, 10*time.Second, time.Minute, report)
	if err := pl.Listen(channel); err != nil {
		pl.Close()
		return nil, fmt.Errorf("listening on channel[%s]: %w", channel, err)
	}

	l := &Listener{
		pl:     pl,
		log:    log,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go l.forward()
	return l, nil
}

func (l *Listener) forward() {
	defer close(l.events)

	for {
		select {
		case <-l.done:
			return
		case n, ok := <-l.pl.Notify:
			if !ok {
				return
			}

			var ev Event
			if n == nil {
				// pq signals a re-established connection with a nil
				// notification. Surface it so consumers re-sync.
				ev = Event{}
			} else if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				l.log.WithFields(logrus.Fields{"message": err}).Warn("cannot decode change feed payload")
				continue
			}

			select {
			case l.events <- ev:
			default:
				// Consumer is behind; dropping is fine since every
				// event triggers the same full re-sync.
			}
		}
	}
}

func (l *Listener) Events() <-chan Event {
	return l.events
}

func (l *Listener) Close() error {
	close(l.done)
	return l.pl.Close()
}
