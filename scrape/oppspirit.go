package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/quay/zlog"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/internal/resilience"
	"github.com/marsphotos/rovercore/pkg/fastesturl"
	"github.com/marsphotos/rovercore/pkg/pdsindex"
)

// Volume names one PDS camera-class volume to walk for a rover. PDS archives
// are commonly mirrored across multiple institutions (WUSTL, JPL); Mirrors
// lists alternate full URLs to the same edrindex.tab, raced via fastesturl
// so a slow or unreachable mirror doesn't stall the whole volume. Mirrors
// may be left empty for a single-source volume, which falls back to URL
// fetched through the ordinary resilience client.
type Volume struct {
	Name    string
	URL     string // full URL to the volume's edrindex.tab
	Mirrors []string
}

// PDSScraper ingests a fixed set of PDS volumes for a retired rover
// (Opportunity or Spirit). Both share this implementation since their PDS
// archives have the same per-camera-volume shape; only the rover name and
// the volume list differ.
type PDSScraper struct {
	roverName string
	store     Store
	client    *resilience.Client
	volumes   []Volume
}

// NewPDSScraper returns a scraper that walks volumes for roverName.
func NewPDSScraper(roverName string, store Store, client *resilience.Client, volumes []Volume) *PDSScraper {
	return &PDSScraper{roverName: roverName, store: store, client: client, volumes: volumes}
}

func (s *PDSScraper) RoverName() string { return s.roverName }

// VolumeByName looks up a configured volume by its exact name, for API
// callers that target one volume directly rather than by list index.
func (s *PDSScraper) VolumeByName(name string) (Volume, bool) {
	for _, v := range s.volumes {
		if v.Name == name {
			return v, true
		}
	}
	return Volume{}, false
}

// ScrapeSol treats sol as a 1-based index into the volume list: the PDS
// archive has no sol-keyed endpoint, so "scraping sol N" for this scraper
// means "ingest the Nth volume". API callers targeting a specific volume by
// name should use ScrapeVolume directly.
func (s *PDSScraper) ScrapeSol(ctx context.Context, sol int) (SolResult, error) {
	if sol < 1 || sol > len(s.volumes) {
		return SolResult{RoverName: s.roverName, Sol: sol}, fmt.Errorf("no such volume index: %d", sol)
	}
	return s.ScrapeVolume(ctx, s.volumes[sol-1])
}

// ScrapeVolume downloads one volume's edrindex.tab via the resilience
// layer, streams it through the PDS index parser, and ingests one photo
// per row.
func (s *PDSScraper) ScrapeVolume(ctx context.Context, vol Volume) (SolResult, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "scrape/PDSScraper.ScrapeVolume", "volume", vol.Name)
	res := SolResult{RoverName: s.roverName}

	rover, err := s.store.GetRoverByName(ctx, s.roverName)
	if err != nil {
		return res, fmt.Errorf("lookup rover: %w", err)
	}

	resp, err := s.fetchVolume(ctx, vol)
	if err != nil {
		res.Err = err
		return res, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		res.Success = true
		return res, nil
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("pds volume %s returned status %s", vol.Name, resp.Status)
		res.Err = err
		return res, err
	}

	var skipCount int
	parser := pdsindex.New(resp.Body, func(lineNo int, reason string) {
		skipCount++
		zlog.Warn(ctx).Int("line", lineNo).Str("reason", reason).Msg("skipping pds index row")
	})

	// A streamed volume's candidate ids aren't known until the rows are
	// read, so the skip-set is seeded from every external id already
	// stored for the rover rather than a candidate-scoped lookup.
	skipSet, err := loadAllExternalIDs(ctx, s.store, rover.ID)
	if err != nil {
		res.Err = err
		return res, err
	}

	ch := make(chan Candidate)
	errCh := make(chan error, 1)
	go func() {
		defer close(ch)
		for {
			row, ok, perr := parser.Next()
			if perr != nil {
				errCh <- perr
				return
			}
			if !ok {
				return
			}
			c := candidateFromPDSRow(row, vol.Name)
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	inserted, skipped, err := runPipeline(ctx, s.store, rover, ch, skipSet)
	select {
	case perr := <-errCh:
		if perr != nil && err == nil {
			err = perr
		}
	default:
	}

	res.Inserted, res.Skipped = inserted, skipped+skipCount
	if err != nil {
		res.Err = err
		return res, err
	}
	res.Success = true
	return res, nil
}

// fetchVolume fetches vol's index, trying every mirror concurrently and
// returning whichever responds first with a usable status when Mirrors is
// populated; otherwise it falls back to a single resilience-wrapped GET of
// URL so retry/breaker/rate-limit behavior is unchanged for single-source
// volumes.
func (s *PDSScraper) fetchVolume(ctx context.Context, vol Volume) (*http.Response, error) {
	if len(vol.Mirrors) == 0 {
		u, err := url.Parse(vol.URL)
		if err != nil {
			return nil, fmt.Errorf("parse volume url: %w", err)
		}
		return s.client.Get(ctx, vol.URL, u.Host)
	}

	urls := make([]*url.URL, 0, len(vol.Mirrors))
	for _, raw := range vol.Mirrors {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse mirror url %q: %w", raw, err)
		}
		urls = append(urls, u)
	}

	req, err := http.NewRequest(http.MethodGet, vol.Mirrors[0], nil)
	if err != nil {
		return nil, fmt.Errorf("build mirror request: %w", err)
	}
	race := fastesturl.New(&http.Client{Timeout: 30 * time.Second}, req, func(resp *http.Response) bool {
		return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound
	}, urls)

	resp := race.Do(ctx)
	if resp == nil {
		return nil, fmt.Errorf("pds volume %s: no mirror responded", vol.Name)
	}
	return resp, nil
}

func candidateFromPDSRow(row *pdsindex.Row, volumeName string) Candidate {
	raw := fmt.Sprintf(`{"product_id":%q,"instrument_id":%q,"sol":%d,"start_time":%q,"volume":%q}`,
		row.ProductID, row.InstrumentID, row.Sol, row.StartTime.Format(time.RFC3339), volumeName)
	return Candidate{
		ExternalID:  row.ProductID,
		Sol:         row.Sol,
		EarthDate:   row.StartTime,
		TakenUTC:    row.StartTime,
		CameraShort: row.CameraShortName,
		Telemetry: rovercore.Telemetry{
			MastAz: row.MastAz,
			MastEl: row.MastEl,
			Filter: row.FilterName,
		},
		Images: rovercore.ImageURLs{Full: row.BrowseURL},
		Raw:    []byte(raw),
	}
}

func loadAllExternalIDs(ctx context.Context, store Store, roverID int64) (map[string]bool, error) {
	return store.AllExternalIDs(ctx, roverID)
}

// BulkScrape implements Scraper: ingest every configured volume in order.
// start/end select a sub-range of the volume list by 1-based index; end ==
// 0 means "all remaining volumes".
func (s *PDSScraper) BulkScrape(ctx context.Context, start, end int) (BulkResult, error) {
	startTime := time.Now()
	if start < 1 {
		start = 1
	}
	if end == 0 || end > len(s.volumes) {
		end = len(s.volumes)
	}
	result := BulkResult{RoverName: s.roverName, StartSol: start, EndSol: end}

	for i := start; i <= end; i++ {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			return result, ctx.Err()
		default:
		}
		sr, err := s.ScrapeVolume(ctx, s.volumes[i-1])
		result.PerSol = append(result.PerSol, sr)
		result.SolsAttempted++
		result.Inserted += sr.Inserted
		result.Skipped += sr.Skipped
		if err != nil || !sr.Success {
			result.FailedSols = append(result.FailedSols, i)
			continue
		}
		result.SolsSucceeded++
	}
	result.Duration = time.Since(startTime)
	return result, nil
}
