package pdsindex

import "strings"

// cameraNames reduces PDS instrument-id variants to the canonical short
// names the rest of the repository expects. Entries not present here fall
// through to the caller's unknown-camera policy (auto-create a camera row,
// logging a warning).
var cameraNames = map[string]string{
	"PANCAM_LEFT":        "PANCAM",
	"PANCAM_RIGHT":       "PANCAM",
	"FRONT_HAZCAM_LEFT":  "FHAZ",
	"FRONT_HAZCAM_RIGHT": "FHAZ",
	"REAR_HAZCAM_LEFT":   "RHAZ",
	"REAR_HAZCAM_RIGHT":  "RHAZ",
	"NAVCAM_LEFT":        "NAVCAM",
	"NAVCAM_RIGHT":       "NAVCAM",
	"MI":                 "MINITES",
	"DESCAM":             "ENTRY",
}

// MapCamera looks up the canonical short name for a raw PDS instrument id.
// An unrecognized id is returned unchanged (uppercased), letting the
// caller's unknown-camera policy decide whether to auto-create it.
func MapCamera(instrumentID string) string {
	key := strings.ToUpper(strings.TrimSpace(instrumentID))
	if short, ok := cameraNames[key]; ok {
		return short
	}
	return key
}
