// Package weather implements an Open-Meteo client used to enrich hotspot
// detections with atmospheric context: CAPE, thunderstorm activity, humidity
// and rolling precipitation totals.
//
// Lookups are snapped to a 0.25 degree grid and cached for an hour, so a
// satellite pass that drops dozens of nearby pixels costs one API call.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

const (
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	defaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"

	hourlyVars = "cape,convective_inhibition,weather_code,temperature_2m,wind_speed_10m,relative_humidity_2m,precipitation"

	gridDegrees = 0.25
	cacheTTL    = 60 * time.Minute

	// Detections older than this cannot be served by the forecast API.
	archiveCutoff = 24 * time.Hour

	// Window before the acquisition instant scanned for thunderstorm codes
	// and the short precipitation total.
	stormWindowHours = 6
)

// thunderstormCodes are the WMO 4677 codes treated as storm activity.
var thunderstormCodes = map[int]bool{95: true, 96: true, 99: true}

// Client queries Open-Meteo for hourly conditions around a detection.
type Client struct {
	httpClient  *http.Client
	forecastURL string
	archiveURL  string
	cache       *gridCache
	logger      *slog.Logger
}

// NewClient creates an Open-Meteo client.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		forecastURL: defaultForecastURL,
		archiveURL:  defaultArchiveURL,
		cache:       newGridCache(cacheTTL),
		logger:      logger,
	}
}

// Context returns the weather around a location at the acquisition instant.
// Detections more than a day old are served from the archive API, everything
// else from the forecast API with a few past hours included.
func (c *Client) Context(ctx context.Context, geo domain.Geo, acquiredAt time.Time) (*domain.WeatherContext, error) {
	gridLat := snapToGrid(geo.Lat)
	gridLon := snapToGrid(geo.Lon)
	key := fmt.Sprintf("%.2f,%.2f", gridLat, gridLon)

	if wc, ok := c.cache.get(key); ok {
		c.logger.Debug("weather cache hit", "cell", key)
		return &wc, nil
	}

	wc, err := c.fetch(ctx, gridLat, gridLon, acquiredAt.UTC())
	if err != nil {
		return nil, err
	}
	c.cache.clearExpired()
	c.cache.put(key, *wc)
	return wc, nil
}

func (c *Client) fetch(ctx context.Context, gridLat, gridLon float64, acquiredAt time.Time) (*domain.WeatherContext, error) {
	historical := domain.Now().Sub(acquiredAt) > archiveCutoff

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(gridLat, 'f', 2, 64))
	params.Set("longitude", strconv.FormatFloat(gridLon, 'f', 2, 64))
	params.Set("hourly", hourlyVars)
	params.Set("timezone", "UTC")

	endpoint := c.forecastURL
	if historical {
		endpoint = c.archiveURL
		params.Set("start_date", acquiredAt.AddDate(0, 0, -3).Format("2006-01-02"))
		params.Set("end_date", acquiredAt.Format("2006-01-02"))
	} else {
		params.Set("past_hours", "72")
		params.Set("forecast_hours", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API error: status %d", resp.StatusCode)
	}

	var payload struct {
		Hourly hourlyBlock `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding weather response: %w", err)
	}
	return parseHourly(payload.Hourly, acquiredAt)
}

// hourlyBlock mirrors Open-Meteo's column-oriented hourly response. Pointer
// slices keep JSON nulls distinguishable from zeros.
type hourlyBlock struct {
	Time                 []string   `json:"time"`
	CAPE                 []*float64 `json:"cape"`
	ConvectiveInhibition []*float64 `json:"convective_inhibition"`
	WeatherCode          []*int     `json:"weather_code"`
	Temperature2m        []*float64 `json:"temperature_2m"`
	WindSpeed10m         []*float64 `json:"wind_speed_10m"`
	RelativeHumidity2m   []*float64 `json:"relative_humidity_2m"`
	Precipitation        []*float64 `json:"precipitation"`
}

func parseHourly(hourly hourlyBlock, acquiredAt time.Time) (*domain.WeatherContext, error) {
	if len(hourly.Time) == 0 {
		return nil, fmt.Errorf("weather response has no hourly time entries")
	}

	times := make([]time.Time, len(hourly.Time))
	for i, raw := range hourly.Time {
		t, err := time.Parse("2006-01-02T15:04", raw)
		if err != nil {
			return nil, fmt.Errorf("parsing hourly timestamp %q: %w", raw, err)
		}
		times[i] = t
	}

	idx := closestIndex(times, acquiredAt)

	wc := &domain.WeatherContext{
		CAPE:                 floatAt(hourly.CAPE, idx),
		ConvectiveInhibition: floatAt(hourly.ConvectiveInhibition, idx),
		WeatherCode:          intAt(hourly.WeatherCode, idx),
		TemperatureC:         floatAt(hourly.Temperature2m, idx),
		WindSpeedKmh:         floatAt(hourly.WindSpeed10m, idx),
		HumidityPct:          floatAt(hourly.RelativeHumidity2m, idx),
		PrecipitationMM6h:    sumPrecipitation(times, hourly.Precipitation, acquiredAt, stormWindowHours),
		PrecipitationMM72h:   sumPrecipitation(times, hourly.Precipitation, acquiredAt, 72),
	}

	start := acquiredAt.Add(-stormWindowHours * time.Hour)
	for i, t := range times {
		if t.Before(start) || t.After(acquiredAt) {
			continue
		}
		if i < len(hourly.WeatherCode) && hourly.WeatherCode[i] != nil && thunderstormCodes[*hourly.WeatherCode[i]] {
			wc.HasThunderstorm = true
			break
		}
	}
	return wc, nil
}

// closestIndex returns the hourly slot nearest the target instant.
func closestIndex(times []time.Time, target time.Time) int {
	best := 0
	bestDelta := absDuration(times[0].Sub(target))
	for i := 1; i < len(times); i++ {
		if d := absDuration(times[i].Sub(target)); d < bestDelta {
			bestDelta = d
			best = i
		}
	}
	return best
}

// sumPrecipitation totals precipitation over the window ending at end. For
// near-real-time queries the window is clipped to the hours actually
// returned by the forecast API.
func sumPrecipitation(times []time.Time, values []*float64, end time.Time, hours int) float64 {
	start := end.Add(-time.Duration(hours) * time.Hour)
	total := 0.0
	for i, t := range times {
		if t.Before(start) || t.After(end) {
			continue
		}
		if i < len(values) && values[i] != nil {
			total += *values[i]
		}
	}
	return math.Round(total*100) / 100
}

func floatAt(values []*float64, idx int) float64 {
	if idx < len(values) && values[idx] != nil {
		return *values[idx]
	}
	return 0
}

func intAt(values []*int, idx int) int {
	if idx < len(values) && values[idx] != nil {
		return *values[idx]
	}
	return 0
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func snapToGrid(v float64) float64 {
	return math.Round(v/gridDegrees) * gridDegrees
}
