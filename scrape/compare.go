package scrape

import (
	"context"
	"fmt"
	"sort"

	"github.com/marsphotos/rovercore"
)

// ErrCompareRangeTooWide marks a CompareRange request spanning more than
// maxCompareRangeSols sols; the HTTP layer maps it to 400.
var ErrCompareRangeTooWide = fmt.Errorf("%w: compare range exceeds %d sols", rovercore.ErrInvalidQuery, maxCompareRangeSols)

// Comparer is implemented by scrapers that can list the upstream external
// ids for a sol without persisting anything, powering the compare
// diagnostics. Not every Scraper implements it: the PDS volume walker has no
// sol-keyed upstream listing to compare against, only a per-volume one.
type Comparer interface {
	Scraper
	FetchExternalIDs(ctx context.Context, sol int) (map[string]bool, error)
}

// compareListCap bounds how many ids a single comparison enumerates, so a
// badly divergent sol doesn't return an unbounded response body.
const compareListCap = 100

// maxCompareRangeSols is the widest range CompareRange accepts in one call.
const maxCompareRangeSols = 50

// CompareResult is the outcome of comparing local storage against a live
// upstream fetch for one (rover, sol).
type CompareResult struct {
	RoverName string `json:"rover_name"`
	Sol       int    `json:"sol"`

	NASACount int `json:"nasa_count"`
	OurCount  int `json:"our_count"`

	Missing          []string `json:"missing,omitempty"` // present upstream, absent locally
	Extra            []string `json:"extra,omitempty"`   // present locally, absent upstream
	MissingTruncated bool     `json:"missing_truncated,omitempty"`
	ExtraTruncated   bool     `json:"extra_truncated,omitempty"`

	MatchPercent float64 `json:"match_percent"`
	Status       string  `json:"status"` // match, missing, extra, divergent
}

// CompareSol fetches comparer's upstream listing for sol and compares it
// against what rover has stored locally at that sol.
func CompareSol(ctx context.Context, store Store, comparer Comparer, rover rovercore.Rover, sol int) (CompareResult, error) {
	res := CompareResult{RoverName: rover.Name, Sol: sol}

	upstream, err := comparer.FetchExternalIDs(ctx, sol)
	if err != nil {
		return res, fmt.Errorf("fetch upstream ids: %w", err)
	}
	local, err := store.ExternalIDsForSol(ctx, rover.ID, sol)
	if err != nil {
		return res, fmt.Errorf("query local ids: %w", err)
	}

	res.NASACount = len(upstream)
	res.OurCount = len(local)

	var missing, extra []string
	for id := range upstream {
		if !local[id] {
			missing = append(missing, id)
		}
	}
	for id := range local {
		if !upstream[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	switch {
	case len(missing) == 0 && len(extra) == 0:
		res.Status = "match"
	case len(missing) > 0 && len(extra) == 0:
		res.Status = "missing"
	case len(missing) == 0 && len(extra) > 0:
		res.Status = "extra"
	default:
		res.Status = "divergent"
	}

	switch {
	case res.NASACount == 0 && res.OurCount == 0:
		res.MatchPercent = 100
	case res.NASACount == 0:
		res.MatchPercent = 0
	default:
		res.MatchPercent = float64(res.NASACount-len(missing)) / float64(res.NASACount) * 100
	}

	if len(missing) > compareListCap {
		missing = missing[:compareListCap]
		res.MissingTruncated = true
	}
	if len(extra) > compareListCap {
		extra = extra[:compareListCap]
		res.ExtraTruncated = true
	}
	res.Missing, res.Extra = missing, extra

	return res, nil
}

// RangeCompareResult aggregates CompareSol across a sol range.
type RangeCompareResult struct {
	RoverName string          `json:"rover_name"`
	StartSol  int             `json:"start_sol"`
	EndSol    int             `json:"end_sol"`
	PerSol    []CompareResult `json:"per_sol"`
}

// CompareRange runs CompareSol over every sol in [start, end]. The range is
// capped at maxCompareRangeSols sols; a wider request is rejected outright
// rather than silently truncated, since a truncated comparison could hide a
// divergent sol just past the cutoff.
func CompareRange(ctx context.Context, store Store, comparer Comparer, rover rovercore.Rover, start, end int) (RangeCompareResult, error) {
	if end < start {
		return RangeCompareResult{}, fmt.Errorf("%w: end sol %d before start sol %d", rovercore.ErrInvalidQuery, end, start)
	}
	if end-start+1 > maxCompareRangeSols {
		return RangeCompareResult{}, ErrCompareRangeTooWide
	}

	result := RangeCompareResult{RoverName: rover.Name, StartSol: start, EndSol: end}
	for sol := start; sol <= end; sol++ {
		cr, err := CompareSol(ctx, store, comparer, rover, sol)
		if err != nil {
			return result, fmt.Errorf("compare sol %d: %w", sol, err)
		}
		result.PerSol = append(result.PerSol, cr)
	}
	return result, nil
}

// PhotoCompareResult is the outcome of comparing one external_id against a
// live upstream fetch for its sol.
type PhotoCompareResult struct {
	RoverName  string `json:"rover_name"`
	ExternalID string `json:"external_id"`
	Sol        int    `json:"sol"`

	InLocal    bool   `json:"in_local"`
	InUpstream bool   `json:"in_upstream"`
	Status     string `json:"status"` // match, missing, extra, not_found
}

// ComparePhoto checks whether nasaID is present locally and in a live
// upstream fetch of sol. The caller supplies sol since the upstream feeds
// are sol-keyed, not id-keyed, and no by-external-id lookup exists to
// derive it from nasaID alone.
func ComparePhoto(ctx context.Context, store Store, comparer Comparer, rover rovercore.Rover, nasaID string, sol int) (PhotoCompareResult, error) {
	res := PhotoCompareResult{RoverName: rover.Name, ExternalID: nasaID, Sol: sol}

	local, err := store.ExistingExternalIDs(ctx, rover.ID, []string{nasaID})
	if err != nil {
		return res, fmt.Errorf("query local id: %w", err)
	}
	res.InLocal = local[nasaID]

	upstream, err := comparer.FetchExternalIDs(ctx, sol)
	if err != nil {
		return res, fmt.Errorf("fetch upstream ids: %w", err)
	}
	res.InUpstream = upstream[nasaID]

	switch {
	case res.InLocal && res.InUpstream:
		res.Status = "match"
	case res.InUpstream && !res.InLocal:
		res.Status = "missing"
	case res.InLocal && !res.InUpstream:
		res.Status = "extra"
	default:
		res.Status = "not_found"
	}
	return res, nil
}
