package models

import "time"

// RecentImageEntry is a previously searched image kept in the local history.
// ImageData is a data URL ("data:image/png;base64,...").
type RecentImageEntry struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	ImageData  string    `json:"image_data"`
	CapturedAt time.Time `json:"captured_at"`
	Digest     string    `json:"digest,omitempty"`
}
