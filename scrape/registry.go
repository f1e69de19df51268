package scrape

import (
	"fmt"
	"strings"

	"github.com/marsphotos/rovercore"
)

// ErrExists is returned when a scraper is registered under a name that is
// already taken.
type ErrExists struct {
	Name string
}

func (e ErrExists) Error() string {
	return fmt.Sprintf("scraper already registered: %s", e.Name)
}

// Registry is a deduplicated, case-insensitive, keyed set of Scrapers.
type Registry struct {
	set map[string]Scraper
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{set: make(map[string]Scraper)}
}

// Add registers s under its lowercased RoverName, failing if that name is
// already taken.
func (r *Registry) Add(s Scraper) error {
	key := strings.ToLower(s.RoverName())
	if _, ok := r.set[key]; ok {
		return ErrExists{Name: key}
	}
	r.set[key] = s
	return nil
}

// Get looks up the scraper for roverName (case-insensitive).
func (r *Registry) Get(roverName string) (Scraper, error) {
	s, ok := r.set[strings.ToLower(roverName)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rovercore.ErrUnknownRover, roverName)
	}
	return s, nil
}

// All returns every registered scraper, in no particular order.
func (r *Registry) All() []Scraper {
	out := make([]Scraper, 0, len(r.set))
	for _, s := range r.set {
		out = append(out, s)
	}
	return out
}
