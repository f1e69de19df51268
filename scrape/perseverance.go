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

type perseveranceLatestResponse struct {
	LatestSol int `json:"latest_sol"`
	Total     int `json:"total"`
}

type perseveranceFeed struct {
	Images []perseveranceImage `json:"images"`
}

type perseveranceImage struct {
	ImageID    string `json:"imageid"`
	Sol        int    `json:"sol"`
	Camera     struct {
		Instrument string `json:"instrument"`
	} `json:"camera"`
	ImageFiles struct {
		Small    string `json:"small"`
		Medium   string `json:"medium"`
		Large    string `json:"large"`
		FullRes  string `json:"full_res"`
	} `json:"image_files"`
	SampleType    string `json:"sample_type"`
	DateTakenUTC  string `json:"date_taken_utc"`
	DateTakenMars string `json:"date_taken_mars"`
	Extended      struct {
		MastAz    *float64   `json:"mastAz"`
		MastEl    *float64   `json:"mastEl"`
		XYZ       *[3]float64 `json:"xyz"`
	} `json:"extended"`
}

// PerseveranceScraper ingests the Perseverance "raw images" feed.
type PerseveranceScraper struct {
	store   Store
	client  *resilience.Client
	baseURL string
	host    string
}

// NewPerseveranceScraper returns a scraper for Perseverance's raw-images
// feed at baseURL.
func NewPerseveranceScraper(store Store, client *resilience.Client, baseURL string) (*PerseveranceScraper, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("perseverance scraper: parse base url: %w", err)
	}
	return &PerseveranceScraper{store: store, client: client, baseURL: baseURL, host: u.Host}, nil
}

func (s *PerseveranceScraper) RoverName() string { return "Perseverance" }

func (s *PerseveranceScraper) latestSol(ctx context.Context) (int, error) {
	feedURL := fmt.Sprintf("%s?feed=raw_images&category=mars2020&feedtype=json&latest=true", s.baseURL)
	resp, err := s.client.Get(ctx, feedURL, s.host)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("perseverance latest-sol query returned status %s", resp.Status)
	}
	var latest perseveranceLatestResponse
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return 0, fmt.Errorf("decode latest-sol response: %w", err)
	}
	return latest.LatestSol, nil
}

// ScrapeSol implements Scraper.
func (s *PerseveranceScraper) ScrapeSol(ctx context.Context, sol int) (SolResult, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "scrape/PerseveranceScraper.ScrapeSol", "sol", fmt.Sprintf("%d", sol))
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

// fetchCandidates downloads and normalizes sol's feed, keeping only "Full"
// sample_type images, without persisting anything. found is false when the
// upstream has no data for sol (404).
func (s *PerseveranceScraper) fetchCandidates(ctx context.Context, sol int) (candidates []Candidate, found bool, err error) {
	feedURL := fmt.Sprintf("%s?feed=raw_images&category=mars2020&feedtype=json&sol=%d", s.baseURL, sol)
	resp, err := s.client.Get(ctx, feedURL, s.host)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("perseverance feed returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read perseverance feed body: %w", err)
	}
	var feed perseveranceFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, false, fmt.Errorf("decode perseverance feed: %w", err)
	}

	out := make([]Candidate, 0, len(feed.Images))
	for _, img := range feed.Images {
		// Only "Full" sample_type images are ingested, matching the
		// downstream photo contract.
		if img.SampleType != "Full" {
			continue
		}
		c, ok := normalizePerseveranceImage(img)
		if !ok {
			zlog.Warn(ctx).Str("image_id", img.ImageID).Msg("skipping malformed perseverance row")
			continue
		}
		out = append(out, c)
	}
	return out, true, nil
}

// FetchExternalIDs implements Comparer.
func (s *PerseveranceScraper) FetchExternalIDs(ctx context.Context, sol int) (map[string]bool, error) {
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

func normalizePerseveranceImage(img perseveranceImage) (Candidate, bool) {
	if img.ImageID == "" || img.Camera.Instrument == "" || img.ImageFiles.FullRes == "" {
		return Candidate{}, false
	}
	taken, err := time.Parse(time.RFC3339, img.DateTakenUTC)
	if err != nil {
		return Candidate{}, false
	}
	raw, _ := json.Marshal(img)
	received := taken
	return Candidate{
		ExternalID:    img.ImageID,
		Sol:           img.Sol,
		EarthDate:     taken,
		TakenUTC:      taken,
		CameraShort:   img.Camera.Instrument,
		MarsLocalTime: img.DateTakenMars,
		ReceivedUTC:   &received,
		Images: rovercore.ImageURLs{
			Small:  img.ImageFiles.Small,
			Medium: img.ImageFiles.Medium,
			Full:   img.ImageFiles.FullRes,
		},
		SampleType: img.SampleType,
		Telemetry: rovercore.Telemetry{
			MastAz: img.Extended.MastAz,
			MastEl: img.Extended.MastEl,
		},
		Location: rovercore.Location{XYZ: img.Extended.XYZ},
		Raw:      raw,
	}, true
}

// BulkScrape implements Scraper. end == 0 triggers "latest sol available"
// discovery; start defaults to the rover's stored max(sol) + 1 when the
// caller passes start == 0.
func (s *PerseveranceScraper) BulkScrape(ctx context.Context, start, end int) (BulkResult, error) {
	startTime := time.Now()
	var result BulkResult
	result.RoverName = s.RoverName()

	if end == 0 {
		latest, err := s.latestSol(ctx)
		if err != nil {
			return BulkResult{}, fmt.Errorf("discover latest sol: %w", err)
		}
		end = latest
	}
	if start == 0 {
		rover, err := s.store.GetRoverByName(ctx, s.RoverName())
		if err != nil {
			return BulkResult{}, fmt.Errorf("lookup rover: %w", err)
		}
		maxSol, any, err := s.store.MaxSol(ctx, rover.ID)
		if err != nil {
			return BulkResult{}, fmt.Errorf("lookup max sol: %w", err)
		}
		if any {
			start = maxSol + 1
		}
	}
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
