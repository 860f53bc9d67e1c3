package admin

import (
	"strings"
	"time"

	"github.com/happyhome/crm/core/progress"
	"github.com/happyhome/crm/core/sop"
	"github.com/happyhome/crm/core/viewer"
)

// Placeholders for progress records whose viewer or SOP cannot be
// resolved. Such rows are kept, not dropped.
const (
	unknownName  = "Unknown User"
	unknownEmail = "unknown@example.com"
)

// Row is one denormalized entry of the monitoring table: a progress
// record joined with viewer identity and SOP title.
type Row struct {
	UserID      string    `json:"userId"`
	FullName    string    `json:"fullName"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatarUrl"`
	SOPID       string    `json:"sopId"`
	SOPTitle    string    `json:"sopTitle"`
	Position    float64   `json:"position"`
	Duration    float64   `json:"duration"`
	Percentage  int       `json:"percentage"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// BuildRows joins every progress record with its viewer and SOP by id.
// Missing references fall back to placeholders so partial data still
// shows up.
func BuildRows(ps []progress.Progress, vs []viewer.Viewer, ss []sop.SOP) []Row {
	viewers := make(map[string]viewer.Viewer, len(vs))
	for _, v := range vs {
		viewers[v.ID] = v
	}
	sops := make(map[string]sop.SOP, len(ss))
	for _, s := range ss {
		sops[s.ID] = s
	}

	rows := make([]Row, 0, len(ps))
	for _, p := range ps {
		row := Row{
			UserID:      p.UserID,
			FullName:    unknownName,
			Email:       unknownEmail,
			SOPID:       p.SOPID,
			SOPTitle:    p.SOPID,
			Position:    p.Position,
			Duration:    p.Duration,
			Percentage:  p.Percentage,
			LastUpdated: p.UpdatedAt,
		}

		if v, ok := viewers[p.UserID]; ok {
			row.FullName = v.FullName
			row.Email = v.Email
			row.AvatarURL = v.AvatarURL
		}
		if s, ok := sops[p.SOPID]; ok {
			row.SOPTitle = s.Title
		}

		rows = append(rows, row)
	}
	return rows
}

// FilterRows keeps the rows matching the query as a case-insensitive
// substring of the viewer's name, email, or the SOP title. An empty
// query keeps everything.
func FilterRows(rows []Row, query string) []Row {
	if query == "" {
		return rows
	}
	q := strings.ToLower(query)

	matched := make([]Row, 0, len(rows))
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.FullName), q) ||
			strings.Contains(strings.ToLower(row.Email), q) ||
			strings.Contains(strings.ToLower(row.SOPTitle), q) {
			matched = append(matched, row)
		}
	}
	return matched
}
