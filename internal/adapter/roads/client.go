// Package roads implements an OpenStreetMap Overpass client for road
// proximity context.
//
// Overpass responses are cached per 0.1 degree grid cell for a day; roads do
// not move, and Overpass rate limits aggressively. Distances are computed
// point-to-segment over way geometries, so a hotspot beside a long straight
// road measures its true perpendicular distance rather than the distance to
// the nearest surveyed node.
package roads

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

const (
	defaultOverpassURL = "https://overpass-api.de/api/interpreter"

	searchRadiusM = 10_000
	gridCellDeg   = 0.1
	cacheTTL      = 24 * time.Hour
	cacheEntries  = 512

	// NoRoadDistanceM is reported when no road exists within the search
	// radius. It exceeds every scoring tier, so "no road" scores zero.
	NoRoadDistanceM = 10_000.0

	highwayRegex = "^(track|path|tertiary|unclassified|secondary|primary|trunk|motorway)$"
)

const queryTemplate = `[out:json][timeout:25];
(
  way["highway"~"%s"](around:%d,%.4f,%.4f);
);
out geom;`

// Client queries the Overpass API for roads near a point.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      *wayCache
	logger     *slog.Logger
}

// NewClient creates an Overpass client.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultOverpassURL,
		cache:   newWayCache(cacheEntries, cacheTTL),
		logger:  logger,
	}
}

// way is a road parsed from the Overpass response.
type way struct {
	id       int64
	highway  string
	ref      string
	geometry []domain.Geo
}

// Context returns the nearest road to the point. The Overpass query runs per
// grid cell; the distance is computed against the cached geometry for the
// exact point, so two hotspots in one cell get different distances from a
// single API call.
func (c *Client) Context(ctx context.Context, geo domain.Geo) (*domain.RoadContext, error) {
	cellLat := snapToGrid(geo.Lat)
	cellLon := snapToGrid(geo.Lon)
	key := fmt.Sprintf("%.1f,%.1f", cellLat, cellLon)

	ways, ok := c.cache.get(key)
	if !ok {
		var err error
		ways, err = c.query(ctx, cellLat, cellLon)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, ways)
	} else {
		c.logger.Debug("road cache hit", "cell", key)
	}

	return nearestRoad(geo, ways), nil
}

func (c *Client) query(ctx context.Context, lat, lon float64) ([]way, error) {
	q := fmt.Sprintf(queryTemplate, highwayRegex, searchRadiusM, lat, lon)

	form := url.Values{}
	form.Set("data", q)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("overpass rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("overpass API error: status %d", resp.StatusCode)
	}

	var payload struct {
		Elements []struct {
			Type     string            `json:"type"`
			ID       int64             `json:"id"`
			Tags     map[string]string `json:"tags"`
			Geometry []struct {
				Lat float64 `json:"lat"`
				Lon float64 `json:"lon"`
			} `json:"geometry"`
		} `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding overpass response: %w", err)
	}

	var ways []way
	for _, el := range payload.Elements {
		if el.Type != "way" || el.Tags["highway"] == "" || len(el.Geometry) < 2 {
			continue
		}
		geom := make([]domain.Geo, len(el.Geometry))
		for i, n := range el.Geometry {
			geom[i] = domain.Geo{Lat: n.Lat, Lon: n.Lon}
		}
		ways = append(ways, way{
			id:       el.ID,
			highway:  el.Tags["highway"],
			ref:      el.Tags["ref"],
			geometry: geom,
		})
	}
	return ways, nil
}

// nearestRoad scans every segment of every way for the closest approach.
func nearestRoad(geo domain.Geo, ways []way) *domain.RoadContext {
	if len(ways) == 0 {
		return &domain.RoadContext{
			NearestDistanceM: NoRoadDistanceM,
			NearestRoadType:  "none",
		}
	}

	best := math.Inf(1)
	var bestWay way
	for _, w := range ways {
		if d := minDistanceToWay(geo, w.geometry); d < best {
			best = d
			bestWay = w
		}
	}

	return &domain.RoadContext{
		NearestDistanceM: best,
		NearestRoadType:  bestWay.highway,
		NearestRoadRef:   bestWay.ref,
	}
}

func minDistanceToWay(geo domain.Geo, geometry []domain.Geo) float64 {
	best := math.Inf(1)
	for i := 0; i < len(geometry)-1; i++ {
		if d := domain.PointToSegment(geo, geometry[i], geometry[i+1]); d < best {
			best = d
		}
	}
	return best
}

func snapToGrid(v float64) float64 {
	return math.Round(v/gridCellDeg) * gridCellDeg
}
