package progress

import (
	"context"
	"math"
	"time"
)

// WatchedThreshold is the percentage at which a training video counts as
// watched and completion unlocks.
const WatchedThreshold = 95

// saveDelta is how many seconds of playback must elapse between persisted
// snapshots. Crossing the watched threshold always persists regardless.
const saveDelta = 5.0

// Progress records how far a viewer got into a SOP's training video.
// Exactly one record exists per (viewer, sop) pair.
type Progress struct {
	UserID     string    `json:"userId" db:"user_id"`
	SOPID      string    `json:"sopId" db:"sop_id"`
	Position   float64   `json:"position" db:"position"`
	Duration   float64   `json:"duration" db:"duration"`
	Percentage int       `json:"percentage" db:"percentage"`
	UpdatedAt  time.Time `json:"lastUpdated" db:"last_updated"`
}

// Store is the persistence needed by playback sessions. *sqlx.DB backs it
// in production; tests substitute an in-memory fake.
type Store interface {
	Fetch(ctx context.Context, userID, sopID string) (Progress, error)
	Upsert(ctx context.Context, p Progress) error
}

// Percentage derives the watched percentage from a position within a
// duration, clamped to [0, 100]. A non-positive duration yields 0.
func Percentage(position, duration float64) int {
	if duration <= 0 {
		return 0
	}
	if position < 0 {
		position = 0
	}
	if position > duration {
		position = duration
	}
	return int(math.Floor(position / duration * 100))
}
