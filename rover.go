package rovercore

import "time"

// RoverStatus is the operational state of a rover mission.
type RoverStatus string

const (
	RoverActive   RoverStatus = "active"
	RoverComplete RoverStatus = "complete"
)

// MarsSolSeconds is the length of one Martian solar day in seconds.
const MarsSolSeconds = 88775.244

// Rover is a mission. Created once by seed data; never deleted in production.
type Rover struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	LandingDate time.Time   `json:"landing_date"`
	LaunchDate  time.Time   `json:"launch_date"`
	Status      RoverStatus `json:"status"`
	MaxSol      int         `json:"max_sol"`
	TotalPhotos int64       `json:"total_photos"`
}

// EarthDateForSol derives the calendar earth date for a sol relative to this
// rover's landing date. An upstream-supplied earth date always takes
// precedence over this derivation when one is available.
func (r Rover) EarthDateForSol(sol int) time.Time {
	seconds := float64(sol) * MarsSolSeconds
	return r.LandingDate.Add(time.Duration(seconds) * time.Second).Truncate(24 * time.Hour)
}
