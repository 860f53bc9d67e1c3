package sop

import "time"

// Category tells which GoHighLevel surface a SOP trains for.
const (
	CategoryMobile = "mobile"
	CategoryWeb    = "web"
)

// SOP is one unit of training content. Authored by admins, read-only to
// everyone else.
type SOP struct {
	ID          string    `json:"id" db:"sop_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Content     string    `json:"content" db:"content"`
	VideoURL    string    `json:"videoUrl" db:"video_url"`
	Platform    string    `json:"platform" db:"platform"`
	Category    string    `json:"category" db:"category"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
	Version     int       `json:"-" db:"version"`
}

type SOPNew struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Content     string `json:"content"`
	VideoURL    string `json:"videoUrl" validate:"omitempty,url"`
	Platform    string `json:"platform" validate:"required"`
	Category    string `json:"category" validate:"required,oneof=mobile web"`
}

type SOPUp struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Content     *string `json:"content"`
	VideoURL    *string `json:"videoUrl" validate:"omitempty,url"`
	Platform    *string `json:"platform"`
	Category    *string `json:"category" validate:"omitempty,oneof=mobile web"`
}

// Status is a SOP decorated with the requesting viewer's completion flag,
// used by the dashboard listing.
type Status struct {
	SOP
	Completed bool `json:"completed" db:"completed"`
}
