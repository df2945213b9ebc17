// Package firms implements the NASA FIRMS area API client for satellite
// thermal-anomaly data.
//
// VIIRS (SNPP, NOAA-20, NOAA-21) and MODIS NRT sources are supported. CSV
// responses are parsed into domain Detections with confidence and brightness
// filters applied at the edge, so the pipeline only ever sees plausible
// fire pixels.
package firms

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

const (
	defaultBaseURL = "https://firms.modaps.eosdis.nasa.gov/api/area/csv"

	// MODIS confidence is an integer percentage.
	modisMinConfidence = 30

	backoffBase       = time.Second
	backoffMaxRetries = 3
)

// viirsValidConfidence lists acceptable VIIRS confidence classes.
var viirsValidConfidence = map[string]bool{"nominal": true, "high": true}

// Client fetches hotspot CSV data from the FIRMS area API.
type Client struct {
	mapKey        string
	minBrightness float64 // Kelvin floor; cooler pixels are noise
	httpClient    *http.Client
	baseURL       string
	backoff       time.Duration
	logger        *slog.Logger
}

// NewClient creates a FIRMS client.
func NewClient(mapKey string, minBrightness float64, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		mapKey:        mapKey,
		minBrightness: minBrightness,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		backoff: backoffBase,
		logger:  logger,
	}
}

// FetchAll fetches every source concurrently. A failing source does not
// block the others; its error lands in the failed map.
func (c *Client) FetchAll(ctx context.Context, region domain.BoundingBox, dayRange int) ([]domain.Detection, map[domain.Source]error) {
	results := make([][]domain.Detection, len(domain.AllSources))
	errs := make([]error, len(domain.AllSources))

	var wg sync.WaitGroup
	for i, source := range domain.AllSources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Fetch(ctx, source, region, dayRange)
		}()
	}
	wg.Wait()

	var combined []domain.Detection
	var failed map[domain.Source]error
	for i, source := range domain.AllSources {
		if errs[i] != nil {
			c.logger.Error("source fetch failed", "source", source, "error", errs[i])
			if failed == nil {
				failed = make(map[domain.Source]error)
			}
			failed[source] = errs[i]
			continue
		}
		c.logger.Info("source fetched", "source", source, "detections", len(results[i]))
		combined = append(combined, results[i]...)
	}
	return combined, failed
}

// Fetch fetches and parses one source. Malformed rows are skipped and
// counted, never fatal.
func (c *Client) Fetch(ctx context.Context, source domain.Source, region domain.BoundingBox, dayRange int) ([]domain.Detection, error) {
	url := fmt.Sprintf("%s/%s/%s/%.4f,%.4f,%.4f,%.4f/%d",
		c.baseURL, c.mapKey, source, region.West, region.South, region.East, region.North, dayRange)

	body, err := c.getWithBackoff(ctx, url, source)
	if err != nil {
		return nil, err
	}
	return c.parseCSV(body, source)
}

// getWithBackoff issues the GET, retrying 429 responses with exponential
// backoff. The map key is a path segment, so the URL never goes in errors.
func (c *Client) getWithBackoff(ctx context.Context, url string, source domain.Source) (string, error) {
	for attempt := 0; attempt <= backoffMaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("fetching %s: %w", source, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			wait := c.backoff * (1 << attempt)
			c.logger.Warn("FIRMS rate limited, backing off",
				"source", source, "wait", wait, "attempt", attempt+1, "max_attempts", backoffMaxRetries)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return "", fmt.Errorf("FIRMS API error for %s: status %d", source, resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("reading %s response: %w", source, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("exhausted retries for %s after persistent 429 responses", source)
}

func (c *Client) parseCSV(text string, source domain.Source) ([]domain.Detection, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s CSV header: %w", source, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	var dets []domain.Detection
	skipped := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		det, ok, err := c.parseRow(row, cols, source)
		if err != nil {
			skipped++
			continue
		}
		if ok {
			dets = append(dets, det)
		}
	}

	if skipped > 0 {
		c.logger.Debug("skipped malformed CSV rows", "source", source, "skipped", skipped)
	}
	return dets, nil
}

// parseRow parses one CSV record. ok is false when the row is valid but
// filtered out by confidence or brightness.
func (c *Client) parseRow(row []string, cols map[string]int, source domain.Source) (domain.Detection, bool, error) {
	field := func(name string) (string, error) {
		i, present := cols[name]
		if !present || i >= len(row) {
			return "", fmt.Errorf("missing column %q", name)
		}
		return strings.TrimSpace(row[i]), nil
	}
	floatField := func(name string) (float64, error) {
		s, err := field(name)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(s, 64)
	}

	confidence, err := field("confidence")
	if err != nil {
		return domain.Detection{}, false, err
	}
	if source.IsVIIRS() {
		if !viirsValidConfidence[strings.ToLower(confidence)] {
			return domain.Detection{}, false, nil
		}
	} else {
		conf, err := strconv.Atoi(confidence)
		if err != nil {
			return domain.Detection{}, false, err
		}
		if conf < modisMinConfidence {
			return domain.Detection{}, false, nil
		}
	}

	brightCol, bright2Col := "bright_ti4", "bright_ti5"
	if !source.IsVIIRS() {
		brightCol, bright2Col = "brightness", "bright_t31"
	}
	brightness, err := floatField(brightCol)
	if err != nil {
		return domain.Detection{}, false, err
	}
	if brightness <= c.minBrightness {
		return domain.Detection{}, false, nil
	}
	brightness2, err := floatField(bright2Col)
	if err != nil {
		return domain.Detection{}, false, err
	}

	lat, err := floatField("latitude")
	if err != nil {
		return domain.Detection{}, false, err
	}
	lon, err := floatField("longitude")
	if err != nil {
		return domain.Detection{}, false, err
	}

	// FRP is occasionally absent.
	frp := 0.0
	if s, err := field("frp"); err == nil && s != "" {
		if frp, err = strconv.ParseFloat(s, 64); err != nil {
			return domain.Detection{}, false, err
		}
	}

	acquiredAt, err := parseAcquisition(row, cols)
	if err != nil {
		return domain.Detection{}, false, err
	}

	dayNight, err := field("daynight")
	if err != nil {
		return domain.Detection{}, false, err
	}
	satellite, err := field("satellite")
	if err != nil {
		return domain.Detection{}, false, err
	}

	geo := domain.Geo{Lat: lat, Lon: lon}
	return domain.Detection{
		ID:          domain.DetectionID(source, geo, acquiredAt),
		Source:      source,
		Geo:         geo,
		Brightness:  brightness,
		Brightness2: brightness2,
		FRP:         frp,
		Confidence:  confidence,
		AcquiredAt:  acquiredAt,
		DayNight:    domain.DayNight(dayNight),
		Satellite:   satellite,
		IngestedAt:  domain.Now(),
	}, true, nil
}

// parseAcquisition combines acq_date (YYYY-MM-DD) and acq_time (HHMM,
// possibly unpadded) into a UTC instant.
func parseAcquisition(row []string, cols map[string]int) (time.Time, error) {
	dateIdx, ok := cols["acq_date"]
	timeIdx, ok2 := cols["acq_time"]
	if !ok || !ok2 || dateIdx >= len(row) || timeIdx >= len(row) {
		return time.Time{}, errors.New("missing acquisition columns")
	}

	rawTime := strings.TrimSpace(row[timeIdx])
	for len(rawTime) < 4 {
		rawTime = "0" + rawTime
	}
	return time.Parse("2006-01-02 1504", strings.TrimSpace(row[dateIdx])+" "+rawTime)
}
