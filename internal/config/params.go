package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

// Duration wraps time.Duration so it can be written as "15m" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Params holds the monitoring parameters read from monitoring.yml. Every
// threshold that shapes detection, clustering, scoring, or alerting lives
// here so that tuning is a config change rather than a code change.
type Params struct {
	Monitoring MonitoringParams `yaml:"monitoring"`
	Dedup      DedupParams      `yaml:"dedup"`
	Clustering ClusteringParams `yaml:"clustering"`
	Intent     IntentParams     `yaml:"intent_scoring"`
	Alerts     AlertParams      `yaml:"alerts"`
	Enrichment EnrichmentParams `yaml:"enrichment"`
	Zones      map[string]Zone  `yaml:"zones"`
}

type MonitoringParams struct {
	PollInterval  Duration           `yaml:"poll_interval"`
	DayRange      int                `yaml:"day_range"`
	Region        domain.BoundingBox `yaml:"region"`
	MinBrightness float64            `yaml:"min_brightness_k"`
}

type DedupParams struct {
	SpatialToleranceM float64  `yaml:"spatial_tolerance_m"`
	TemporalTolerance Duration `yaml:"temporal_tolerance"`
}

type ClusteringParams struct {
	SpatialRadiusM float64  `yaml:"spatial_radius_m"`
	TemporalWindow Duration `yaml:"temporal_window"`
	Staleness      Duration `yaml:"staleness"`
	CriticalFRPMW  float64  `yaml:"critical_frp_mw"`
}

type IntentParams struct {
	Weights       SignalWeights    `yaml:"weights"`
	RoadDistanceM RoadTiers        `yaml:"road_distance_m"`
	Night         NightParams      `yaml:"night_hours_local"`
	CAPE          CAPEParams       `yaml:"cape_jkg"`
	Dryness       DrynessParams    `yaml:"dryness"`
	History       HistoryParams    `yaml:"history"`
	MultiPoint    MultiPointParams `yaml:"multi_point"`
}

// SignalWeights are the per-signal maximum contributions. They must sum
// to 100 so that a fully-observed event scores on the same scale as a
// renormalized partial one.
type SignalWeights struct {
	LightningAbsence float64 `yaml:"lightning_absence"`
	RoadProximity    float64 `yaml:"road_proximity"`
	Nighttime        float64 `yaml:"nighttime_ignition"`
	HistoricalRepeat float64 `yaml:"historical_repeat"`
	MultiPoint       float64 `yaml:"multi_point_ignition"`
	DryConditions    float64 `yaml:"dry_conditions"`
}

// Sum returns the total of all six weights.
func (w SignalWeights) Sum() float64 {
	return w.LightningAbsence + w.RoadProximity + w.Nighttime +
		w.HistoricalRepeat + w.MultiPoint + w.DryConditions
}

type RoadTiers struct {
	VeryClose float64 `yaml:"very_close"`
	Close     float64 `yaml:"close"`
	Near      float64 `yaml:"near"`
	Moderate  float64 `yaml:"moderate"`
}

// HourRange is a local-time hour range, start inclusive, end exclusive.
// Start > End wraps midnight (22-5 covers 22,23,0..4).
type HourRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Contains reports whether the hour falls in the range.
func (r HourRange) Contains(hour int) bool {
	if r.Start <= r.End {
		return r.Start <= hour && hour < r.End
	}
	return hour >= r.Start || hour < r.End
}

type NightParams struct {
	UTCOffsetHours  int       `yaml:"utc_offset_hours"`
	Peak            HourRange `yaml:"peak"`
	ShoulderMorning HourRange `yaml:"shoulder_morning"`
	ShoulderEvening HourRange `yaml:"shoulder_evening"`
}

type CAPEParams struct {
	High     float64 `yaml:"high"`     // at or above: natural ignition plausible, zero score
	Moderate float64 `yaml:"moderate"` // at or above: partial score
}

type DrynessParams struct {
	SevereHumidityPct   float64 `yaml:"severe_humidity_pct"`
	SevereMaxPrecipMM   float64 `yaml:"severe_max_precip_mm_72h"`
	ModerateHumidityPct float64 `yaml:"moderate_humidity_pct"`
	ModerateMaxPrecipMM float64 `yaml:"moderate_max_precip_mm_72h"`
}

type HistoryParams struct {
	LookbackYears int `yaml:"lookback_years"`
	RecentMonths  int `yaml:"recent_months"` // last fire under this: full weight
	MidMonths     int `yaml:"mid_months"`
	OldMonths     int `yaml:"old_months"` // beyond this: no score
}

type MultiPointParams struct {
	NearKm float64  `yaml:"near_km"` // 2+ other ignitions inside: full weight
	FarKm  float64  `yaml:"far_km"`  // 1 other ignition inside: half weight
	Window Duration `yaml:"window"`
}

type AlertParams struct {
	MaxPerEventPerSubscriber int      `yaml:"max_per_event_per_subscriber"`
	Window                   Duration `yaml:"window"`
	DefaultMinSeverity       string   `yaml:"default_min_severity"`
}

type EnrichmentParams struct {
	Concurrency  int      `yaml:"concurrency"`
	CallTimeout  Duration `yaml:"call_timeout"`
	StageTimeout Duration `yaml:"stage_timeout"`
}

// Zone is a named circular area of interest used to match subscriptions.
type Zone struct {
	Lat      float64 `yaml:"lat"`
	Lon      float64 `yaml:"lon"`
	RadiusKm float64 `yaml:"radius_km"`
}

// LoadParams reads and validates the monitoring parameters file.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading params file: %w", err)
	}
	p := DefaultParams()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing params file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validating params: %w", err)
	}
	return p, nil
}

// DefaultParams returns the built-in parameter set tuned for the Comarca
// Andina region. A monitoring.yml overrides individual values.
func DefaultParams() *Params {
	return &Params{
		Monitoring: MonitoringParams{
			PollInterval: Duration(15 * time.Minute),
			DayRange:     2,
			Region: domain.BoundingBox{
				West: -72.5, South: -43.5, East: -70.5, North: -41.0,
			},
			MinBrightness: 300,
		},
		Dedup: DedupParams{
			SpatialToleranceM: 750,
			TemporalTolerance: Duration(30 * time.Minute),
		},
		Clustering: ClusteringParams{
			SpatialRadiusM: 1000,
			TemporalWindow: Duration(2 * time.Hour),
			Staleness:      Duration(24 * time.Hour),
			CriticalFRPMW:  100,
		},
		Intent: IntentParams{
			Weights: SignalWeights{
				LightningAbsence: 25,
				RoadProximity:    20,
				Nighttime:        20,
				HistoricalRepeat: 15,
				MultiPoint:       10,
				DryConditions:    10,
			},
			RoadDistanceM: RoadTiers{
				VeryClose: 200,
				Close:     500,
				Near:      1000,
				Moderate:  2000,
			},
			Night: NightParams{
				UTCOffsetHours:  -3,
				Peak:            HourRange{Start: 22, End: 5},
				ShoulderMorning: HourRange{Start: 5, End: 7},
				ShoulderEvening: HourRange{Start: 20, End: 22},
			},
			CAPE: CAPEParams{
				High:     1000,
				Moderate: 500,
			},
			Dryness: DrynessParams{
				SevereHumidityPct:   25,
				SevereMaxPrecipMM:   0,
				ModerateHumidityPct: 35,
				ModerateMaxPrecipMM: 2,
			},
			History: HistoryParams{
				LookbackYears: 5,
				RecentMonths:  12,
				MidMonths:     24,
				OldMonths:     36,
			},
			MultiPoint: MultiPointParams{
				NearKm: 5,
				FarKm:  10,
				Window: Duration(2 * time.Hour),
			},
		},
		Alerts: AlertParams{
			MaxPerEventPerSubscriber: 3,
			Window:                   Duration(6 * time.Hour),
			DefaultMinSeverity:       "medium",
		},
		Enrichment: EnrichmentParams{
			Concurrency:  10,
			CallTimeout:  Duration(15 * time.Second),
			StageTimeout: Duration(5 * time.Minute),
		},
		Zones: map[string]Zone{
			"el_bolson":  {Lat: -41.9608, Lon: -71.5336, RadiusKm: 30},
			"bariloche":  {Lat: -41.1335, Lon: -71.3103, RadiusKm: 40},
			"el_hoyo":    {Lat: -42.0667, Lon: -71.5167, RadiusKm: 25},
			"epuyen":     {Lat: -42.2333, Lon: -71.3667, RadiusKm: 25},
			"lago_puelo": {Lat: -42.0833, Lon: -71.6000, RadiusKm: 25},
		},
	}
}

// Validate rejects parameter sets that would corrupt scoring or scheduling.
func (p *Params) Validate() error {
	if sum := p.Intent.Weights.Sum(); sum != 100 {
		return fmt.Errorf("intent signal weights must sum to 100, got %.1f", sum)
	}
	if p.Monitoring.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if p.Monitoring.DayRange < 1 || p.Monitoring.DayRange > 10 {
		return fmt.Errorf("day_range must be between 1 and 10, got %d", p.Monitoring.DayRange)
	}
	if p.Dedup.SpatialToleranceM <= 0 || p.Dedup.TemporalTolerance <= 0 {
		return fmt.Errorf("dedup tolerances must be positive")
	}
	if p.Clustering.SpatialRadiusM <= 0 || p.Clustering.TemporalWindow <= 0 {
		return fmt.Errorf("clustering radius and window must be positive")
	}
	if p.Clustering.Staleness <= 0 {
		return fmt.Errorf("staleness must be positive")
	}
	if p.Alerts.MaxPerEventPerSubscriber < 1 {
		return fmt.Errorf("max_per_event_per_subscriber must be at least 1")
	}
	if p.Alerts.Window <= 0 {
		return fmt.Errorf("alert window must be positive")
	}
	switch p.Alerts.DefaultMinSeverity {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("unknown default_min_severity %q", p.Alerts.DefaultMinSeverity)
	}
	if p.Enrichment.Concurrency < 1 {
		return fmt.Errorf("enrichment concurrency must be at least 1")
	}
	if t := p.Intent.RoadDistanceM; !(t.VeryClose < t.Close && t.Close < t.Near && t.Near < t.Moderate) {
		return fmt.Errorf("road distance tiers must be strictly increasing")
	}
	if h := p.Intent.History; !(h.RecentMonths < h.MidMonths && h.MidMonths < h.OldMonths) {
		return fmt.Errorf("history month tiers must be strictly increasing")
	}
	if mp := p.Intent.MultiPoint; !(mp.NearKm < mp.FarKm) || mp.Window <= 0 {
		return fmt.Errorf("multi_point thresholds must satisfy near_km < far_km with a positive window")
	}
	for name, z := range p.Zones {
		if z.RadiusKm <= 0 {
			return fmt.Errorf("zone %q radius must be positive", name)
		}
		if !p.Monitoring.Region.Contains(domain.Geo{Lat: z.Lat, Lon: z.Lon}) {
			return fmt.Errorf("zone %q lies outside the monitored region", name)
		}
	}
	return nil
}
