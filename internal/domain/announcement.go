package domain

import "time"

// Announcement describes one forecast snapshot that was just stored, for
// publication to downstream consumers.
type Announcement struct {
	Kind       string    `json:"kind"` // "wind" or "precipitation"
	RunName    string    `json:"runName"`
	DataTime   time.Time `json:"dataTime"`
	Index      uint32    `json:"index"`
	DataPoints int       `json:"dataPoints"`
	StoredAt   time.Time `json:"storedAt"`
}
