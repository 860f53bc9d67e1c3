package completion

import (
	"context"
	"errors"
	"testing"
)

func TestTryCompleteRejectsUnwatched(t *testing.T) {
	// The gate must refuse before touching storage, hence the nil db.
	_, err := TryComplete(context.Background(), nil, "user1", "sop1", false)
	if !errors.Is(err, ErrNotWatched) {
		t.Fatalf("TryComplete with watched=false: err = %v, want ErrNotWatched", err)
	}
}
