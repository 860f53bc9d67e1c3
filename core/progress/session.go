package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State of a playback session. Transitions:
// Idle -> Loaded (metadata) -> Playing <-> Paused -> Ended.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	}
	return "idle"
}

type EventType string

const (
	EventMetadata EventType = "metadata"
	EventPlay     EventType = "play"
	EventPause    EventType = "pause"
	EventPosition EventType = "position"
	EventSeek     EventType = "seek"
	EventKey      EventType = "key"
	EventEnded    EventType = "ended"
)

// Event is one playback surface notification. Position and Duration are
// in seconds; Key carries the pressed key for key events.
type Event struct {
	Type     EventType `json:"type" validate:"required,oneof=metadata play pause position seek key ended"`
	Position float64   `json:"position" validate:"gte=0"`
	Duration float64   `json:"duration" validate:"gte=0"`
	Key      string    `json:"key"`
}

// Result tells the playback surface what happened to its event. ResetTo
// carries the forced position after a blocked seek; ResumeFrom is set
// once, when metadata arrives and a prior position exists to resume from.
type Result struct {
	State      string   `json:"state"`
	Percentage int      `json:"percentage"`
	Watched    bool     `json:"watched"`
	Saved      bool     `json:"saved"`
	Suppressed bool     `json:"suppressed,omitempty"`
	ResetTo    *float64 `json:"resetTo,omitempty"`
	ResumeFrom *float64 `json:"resumeFrom,omitempty"`
}

// keys the anti-skip guard suppresses: seek arrows plus the conventional
// play/pause, fullscreen, mute and skip bindings.
var guardedKeys = map[string]bool{
	"ArrowRight": true,
	"ArrowLeft":  true,
	" ":          true,
	"f":          true,
	"m":          true,
	"k":          true,
}

// Session tracks one viewer's playback of one SOP video and decides when
// a snapshot is worth persisting. All events go through Dispatch; the
// store write happens with the lock released so slow writes never block
// event handling, with saveInFlight bounding writes to one at a time.
type Session struct {
	userID string
	sopID  string
	store  Store
	log    logrus.FieldLogger

	mu            sync.Mutex
	state         State
	duration      float64
	position      float64
	lastReported  float64
	watched       bool
	saveInFlight  bool
	resume        float64
	resumePending bool
	lastAccess    time.Time
}

func newSession(ctx context.Context, store Store, log logrus.FieldLogger, userID, sopID string) *Session {
	s := &Session{
		userID:     userID,
		sopID:      sopID,
		store:      store,
		log:        log,
		state:      StateIdle,
		lastAccess: time.Now(),
	}

	prior, err := store.Fetch(ctx, userID, sopID)
	switch {
	case err == nil:
		s.position = prior.Position
		s.lastReported = prior.Position
		if prior.Percentage >= WatchedThreshold {
			s.watched = true
		}
		if prior.Position > 0 {
			s.resume = prior.Position
			s.resumePending = true
		}
	case !errors.Is(err, ErrNotFound):
		log.WithFields(logrus.Fields{
			"user_id": userID,
			"sop_id":  sopID,
			"message": err,
		}).Warn("cannot seed playback session from store")
	}

	return s
}

// Dispatch applies one playback event and returns the session's view of
// the world afterwards.
func (s *Session) Dispatch(ctx context.Context, ev Event) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()

	var res Result

	switch ev.Type {
	case EventMetadata:
		if ev.Duration > 0 {
			s.duration = ev.Duration
			if s.state == StateIdle {
				s.state = StateLoaded
			}
		}
		if s.resumePending && s.duration > 0 {
			r := s.resume
			res.ResumeFrom = &r
			s.resumePending = false
		}

	case EventPlay:
		if s.state == StateLoaded || s.state == StatePaused {
			s.state = StatePlaying
		}

	case EventPause:
		if s.state == StatePlaying {
			s.state = StatePaused
		}

	case EventPosition:
		s.handleSample(ctx, ev, &res)

	case EventSeek:
		// Anti-skip: force the playhead back to where it was before
		// the interaction. A deterrent, not a security boundary.
		p := s.position
		res.Suppressed = true
		res.ResetTo = &p

	case EventKey:
		if guardedKeys[ev.Key] {
			res.Suppressed = true
		}

	case EventEnded:
		s.handleEnded(ctx, ev, &res)
	}

	res.State = s.state.String()
	res.Percentage = Percentage(s.position, s.duration)
	res.Watched = s.watched
	return res
}

// handleSample runs with the session lock held and releases it only
// around the store write.
func (s *Session) handleSample(ctx context.Context, ev Event, res *Result) {
	if ev.Duration > 0 {
		s.duration = ev.Duration
	}
	if s.duration <= 0 {
		// No usable duration yet, the sample is ignored.
		return
	}
	if s.state == StateIdle || s.state == StateLoaded {
		s.state = StatePlaying
	}

	pos := ev.Position
	if pos > s.duration {
		pos = s.duration
	}
	s.position = pos

	pct := Percentage(pos, s.duration)
	qualifies := pos-s.lastReported >= saveDelta || (pct >= WatchedThreshold && !s.watched)
	if !qualifies {
		return
	}

	if s.saveInFlight {
		// One outstanding write at a time, later samples retry.
		return
	}
	s.saveInFlight = true

	snap := Progress{
		UserID:     s.userID,
		SOPID:      s.sopID,
		Position:   pos,
		Duration:   s.duration,
		Percentage: pct,
		UpdatedAt:  time.Now().UTC(),
	}

	s.mu.Unlock()
	err := s.store.Upsert(ctx, snap)
	s.mu.Lock()
	s.saveInFlight = false

	if err != nil {
		// Passive saves are not surfaced, the next qualifying sample
		// retries naturally.
		s.log.WithFields(logrus.Fields{
			"user_id": s.userID,
			"sop_id":  s.sopID,
			"message": err,
		}).Warn("cannot save watch progress")
		return
	}

	s.lastReported = snap.Position
	if snap.Percentage >= WatchedThreshold {
		s.watched = true
	}
	res.Saved = true
}

// handleEnded persists the terminal snapshot, bypassing the 5-second
// throttle. It is still dropped when a save is in flight; the store keeps
// the last successful write either way.
func (s *Session) handleEnded(ctx context.Context, ev Event, res *Result) {
	if ev.Duration > 0 {
		s.duration = ev.Duration
	}
	s.state = StateEnded
	if s.duration <= 0 {
		return
	}
	s.position = s.duration

	if s.saveInFlight {
		return
	}
	s.saveInFlight = true

	snap := Progress{
		UserID:     s.userID,
		SOPID:      s.sopID,
		Position:   s.duration,
		Duration:   s.duration,
		Percentage: 100,
		UpdatedAt:  time.Now().UTC(),
	}

	s.mu.Unlock()
	err := s.store.Upsert(ctx, snap)
	s.mu.Lock()
	s.saveInFlight = false

	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id": s.userID,
			"sop_id":  s.sopID,
			"message": err,
		}).Warn("cannot save final watch progress")
		return
	}

	s.lastReported = snap.Position
	s.watched = true
	res.Saved = true
}

// Watched reports whether the session has crossed the watched threshold.
func (s *Session) Watched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watched
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}
