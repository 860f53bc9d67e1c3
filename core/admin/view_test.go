package admin

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/happyhome/crm/core/progress"
	"github.com/happyhome/crm/core/sop"
	"github.com/happyhome/crm/core/viewer"
)

func TestBuildRows(t *testing.T) {
	updated := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	ps := []progress.Progress{
		{UserID: "u1", SOPID: "s1", Position: 30, Duration: 120, Percentage: 25, UpdatedAt: updated},
		{UserID: "ghost", SOPID: "orphan", Position: 5, Duration: 50, Percentage: 10, UpdatedAt: updated},
	}
	vs := []viewer.Viewer{
		{ID: "u1", FullName: "Dana Smith", Email: "dana@happyhome.test", AvatarURL: "https://cdn/avatar.png"},
	}
	ss := []sop.SOP{
		{ID: "s1", Title: "Lead Intake"},
	}

	want := []Row{
		{
			UserID:      "u1",
			FullName:    "Dana Smith",
			Email:       "dana@happyhome.test",
			AvatarURL:   "https://cdn/avatar.png",
			SOPID:       "s1",
			SOPTitle:    "Lead Intake",
			Position:    30,
			Duration:    120,
			Percentage:  25,
			LastUpdated: updated,
		},
		{
			UserID:      "ghost",
			FullName:    "Unknown User",
			Email:       "unknown@example.com",
			SOPID:       "orphan",
			SOPTitle:    "orphan",
			Position:    5,
			Duration:    50,
			Percentage:  10,
			LastUpdated: updated,
		},
	}

	got := BuildRows(ps, vs, ss)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildRows mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterRows(t *testing.T) {
	rows := []Row{
		{FullName: "Dana Smith", Email: "dana@happyhome.test", SOPTitle: "Lead Intake"},
		{FullName: "Unknown User", Email: "unknown@example.com", SOPTitle: "Billing Basics"},
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"empty keeps all", "", 2},
		{"name match is case-insensitive", "DANA", 1},
		{"email substring", "happyhome", 1},
		{"title substring", "billing", 1},
		{"no match", "zzz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterRows(rows, tt.query); len(got) != tt.want {
				t.Errorf("FilterRows(%q) returned %d rows, want %d", tt.query, len(got), tt.want)
			}
		})
	}
}
