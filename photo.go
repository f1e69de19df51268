package rovercore

import (
	"encoding/json"
	"time"
)

// ImageURLs holds the up-to-four size-class image URLs a photo may carry.
type ImageURLs struct {
	Thumbnail string `json:"thumbnail,omitempty"`
	Small     string `json:"small,omitempty"`
	Medium    string `json:"medium,omitempty"`
	Full      string `json:"full,omitempty"`
}

// Location is the rover's position at the time a photo was taken, when the
// upstream record carries one.
type Location struct {
	Site  *int        `json:"site,omitempty"`
	Drive *int        `json:"drive,omitempty"`
	XYZ   *[3]float64 `json:"xyz,omitempty"`
}

// Telemetry is optional instrument pointing/metadata carried by some upstream
// feeds.
type Telemetry struct {
	MastAz  *float64 `json:"mast_az,omitempty"`
	MastEl  *float64 `json:"mast_el,omitempty"`
	Filter  string   `json:"filter,omitempty"`
	Title   string   `json:"title,omitempty"`
	Caption string   `json:"caption,omitempty"`
	Credit  string   `json:"credit,omitempty"`
}

// Photo is one rover image, indexed plus a verbatim raw copy of the upstream
// record. Inserted exactly once; the scraper never updates a photo after
// insert (append-only from ingestion's point of view).
type Photo struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`
	RoverID    int64  `json:"rover_id"`
	CameraID   int64  `json:"camera_id"`

	Sol            int        `json:"sol"`
	EarthDate      time.Time  `json:"earth_date"`
	TakenUTC       time.Time  `json:"taken_utc"`
	MarsLocalTime  string     `json:"mars_local_time,omitempty"`
	ReceivedUTC    *time.Time `json:"received_utc,omitempty"`

	Images     ImageURLs `json:"images"`
	Width      *int      `json:"width,omitempty"`
	Height     *int      `json:"height,omitempty"`
	SampleType string    `json:"sample_type,omitempty"`

	Location
	Telemetry

	// Raw is the verbatim upstream record, preserved byte-for-byte (including
	// original key casing) so it can be stored in the opaque raw column and
	// returned under the "full" field-set's raw_data key. It always contains
	// at least the fields the indexed columns above were derived from.
	Raw json.RawMessage `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
