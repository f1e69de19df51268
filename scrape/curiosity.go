package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/quay/zlog"

	"github.com/marsphotos/rovercore"
	"github.com/marsphotos/rovercore/internal/resilience"
)

// curiosityFeed mirrors the top-level shape of the Curiosity JSON feed.
type curiosityFeed struct {
	Images []curiosityImage `json:"images"`
}

type curiosityImage struct {
	ID     int64  `json:"id"`
	Sol    int    `json:"sol"`
	Camera struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
	} `json:"camera"`
	DateTaken  string `json:"date_taken"`
	EarthDate  string `json:"earth_date"`
	ImgSrc     string `json:"img_src"`
	SampleType string `json:"sample_type"`
	URLList    []string `json:"url_list,omitempty"`
}

// CuriosityScraper ingests the Curiosity JSON feed.
type CuriosityScraper struct {
	store   Store
	client  *resilience.Client
	baseURL string
	host    string
}

// NewCuriosityScraper returns a scraper for Curiosity's sol-keyed JSON feed
// at baseURL (e.g. "https://mars.example.com/curiosity").
func NewCuriosityScraper(store Store, client *resilience.Client, baseURL string) (*CuriosityScraper, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("curiosity scraper: parse base url: %w", err)
	}
	return &CuriosityScraper{store: store, client: client, baseURL: baseURL, host: u.Host}, nil
}

func (s *CuriosityScraper) RoverName() string { return "Curiosity" }

// ScrapeSol implements Scraper. The feed is keyed by a zero-padded 5-digit
// sol.
func (s *CuriosityScraper) ScrapeSol(ctx context.Context, sol int) (SolResult, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "scrape/CuriosityScraper.ScrapeSol", "sol", fmt.Sprintf("%d", sol))
	res := SolResult{RoverName: s.RoverName(), Sol: sol}

	rover, err := s.store.GetRoverByName(ctx, s.RoverName())
	if err != nil {
		return res, fmt.Errorf("lookup rover: %w", err)
	}

	candidates, found, err := s.fetchCandidates(ctx, sol)
	if err != nil {
		res.Err = err
		return res, err
	}
	if !found || len(candidates) == 0 {
		res.Success = true
		return res, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ExternalID
	}

	skipSet, err := loadSkipSet(ctx, s.store, rover.ID, ids)
	if err != nil {
		res.Err = err
		return res, err
	}

	ch := make(chan Candidate, len(candidates))
	for _, c := range candidates {
		ch <- c
	}
	close(ch)

	inserted, skipped, err := runPipeline(ctx, s.store, rover, ch, skipSet)
	res.Inserted, res.Skipped = inserted, skipped
	if err != nil {
		res.Err = err
		return res, err
	}
	res.Success = true
	return res, nil
}

// fetchCandidates downloads and normalizes sol's feed without persisting
// anything. found is false when the upstream has no data for sol (404).
func (s *CuriosityScraper) fetchCandidates(ctx context.Context, sol int) (candidates []Candidate, found bool, err error) {
	feedURL := fmt.Sprintf("%s/%05d/images.json", s.baseURL, sol)
	resp, err := s.client.Get(ctx, feedURL, s.host)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("curiosity feed returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read curiosity feed body: %w", err)
	}
	var feed curiosityFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, false, fmt.Errorf("decode curiosity feed: %w", err)
	}

	out := make([]Candidate, 0, len(feed.Images))
	for _, img := range feed.Images {
		c, ok := normalizeCuriosityImage(img)
		if !ok {
			zlog.Warn(ctx).Int64("id", img.ID).Msg("skipping malformed curiosity row")
			continue
		}
		out = append(out, c)
	}
	return out, true, nil
}

// FetchExternalIDs implements Comparer: it lists the upstream external ids
// for sol without persisting anything, for the compare diagnostics.
func (s *CuriosityScraper) FetchExternalIDs(ctx context.Context, sol int) (map[string]bool, error) {
	candidates, _, err := s.fetchCandidates(ctx, sol)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		out[c.ExternalID] = true
	}
	return out, nil
}

func normalizeCuriosityImage(img curiosityImage) (Candidate, bool) {
	if img.ID == 0 || img.Camera.Name == "" || img.ImgSrc == "" {
		return Candidate{}, false
	}
	earthDate, err := time.Parse("2006-01-02", img.EarthDate)
	if err != nil {
		return Candidate{}, false
	}
	taken := earthDate
	if img.DateTaken != "" {
		if t, err := time.Parse(time.RFC3339, img.DateTaken); err == nil {
			taken = t
		}
	}
	raw, _ := json.Marshal(img)
	c := Candidate{
		ExternalID:  fmt.Sprintf("%d", img.ID),
		Sol:         img.Sol,
		EarthDate:   earthDate,
		TakenUTC:    taken,
		CameraShort: img.Camera.Name,
		Images:      rovercore.ImageURLs{Full: img.ImgSrc},
		SampleType:  img.SampleType,
		Raw:         raw,
	}
	if len(img.URLList) > 0 {
		c.Images.Thumbnail = img.URLList[0]
	}
	return c, true
}

// BulkScrape implements Scraper. end == 0 is rejected for Curiosity: unlike
// Perseverance, the feed has no "latest sol" discovery endpoint, so callers
// must supply an explicit range.
func (s *CuriosityScraper) BulkScrape(ctx context.Context, start, end int) (BulkResult, error) {
	startTime := time.Now()
	if end == 0 {
		return BulkResult{}, fmt.Errorf("curiosity bulk scrape: end sol required")
	}
	var result BulkResult
	result.RoverName = s.RoverName()
	result.StartSol = start
	result.EndSol = end
	for sol := start; sol <= end; sol++ {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			return result, ctx.Err()
		default:
		}
		sr, err := s.ScrapeSol(ctx, sol)
		result.PerSol = append(result.PerSol, sr)
		result.SolsAttempted++
		result.Inserted += sr.Inserted
		result.Skipped += sr.Skipped
		if err != nil || !sr.Success {
			result.FailedSols = append(result.FailedSols, sol)
			continue
		}
		result.SolsSucceeded++
	}
	result.Duration = time.Since(startTime)
	return result, nil
}
