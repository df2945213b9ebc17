package domain

import (
	"time"
)

// Source identifies a FIRMS satellite feed.
type Source string

const (
	SourceVIIRSSNPP   Source = "VIIRS_SNPP_NRT"
	SourceVIIRSNOAA20 Source = "VIIRS_NOAA20_NRT"
	SourceVIIRSNOAA21 Source = "VIIRS_NOAA21_NRT"
	SourceMODIS       Source = "MODIS_NRT"
)

// AllSources lists every feed polled per cycle, in fetch order.
var AllSources = []Source{SourceVIIRSSNPP, SourceVIIRSNOAA20, SourceVIIRSNOAA21, SourceMODIS}

// IsVIIRS reports whether the source uses the VIIRS CSV column layout.
func (s Source) IsVIIRS() bool {
	return s != SourceMODIS
}

// DayNight is the satellite acquisition day/night flag.
type DayNight string

const (
	Day   DayNight = "D"
	Night DayNight = "N"
)

// Severity classifies a fire event by detection count and peak FRP.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of the severity for comparisons.
// Unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// IntentLabel is the intentionality classification tier.
type IntentLabel string

const (
	IntentNatural           IntentLabel = "natural"
	IntentUncertain         IntentLabel = "uncertain"
	IntentSuspicious        IntentLabel = "suspicious"
	IntentLikelyIntentional IntentLabel = "likely_intentional"
)

// Rank returns the ordinal position of the label for escalation comparisons.
func (l IntentLabel) Rank() int {
	switch l {
	case IntentNatural:
		return 0
	case IntentUncertain:
		return 1
	case IntentSuspicious:
		return 2
	case IntentLikelyIntentional:
		return 3
	default:
		return -1
	}
}

// LabelForScore maps a 0-100 intentionality total to its label.
// Boundaries belong to the lower band: 25 is natural, 26 is uncertain.
func LabelForScore(total int) IntentLabel {
	switch {
	case total <= 25:
		return IntentNatural
	case total <= 50:
		return IntentUncertain
	case total <= 75:
		return IntentSuspicious
	default:
		return IntentLikelyIntentional
	}
}

// Geo is a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Detection is one satellite thermal-anomaly record. Immutable once stored.
// Identified by (Source, Geo, AcquiredAt).
type Detection struct {
	ID          string    `json:"id"`
	Source      Source    `json:"source"`
	Geo         Geo       `json:"geo"`
	Brightness  float64   `json:"brightness"`   // primary channel, Kelvin
	Brightness2 float64   `json:"brightness_2"` // secondary channel, Kelvin
	FRP         float64   `json:"frp"`          // fire radiative power, MW
	Confidence  string    `json:"confidence"`
	AcquiredAt  time.Time `json:"acquired_at"` // satellite capture instant, UTC
	DayNight    DayNight  `json:"daynight"`
	Satellite   string    `json:"satellite"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// WeatherContext holds conditions at a detection location around the
// acquisition instant.
type WeatherContext struct {
	CAPE                 float64 `json:"cape"` // J/kg
	ConvectiveInhibition float64 `json:"convective_inhibition"`
	WeatherCode          int     `json:"weather_code"` // WMO code table 4677
	TemperatureC         float64 `json:"temperature_c"`
	WindSpeedKmh         float64 `json:"wind_speed_kmh"`
	HumidityPct          float64 `json:"humidity_pct"`
	PrecipitationMM6h    float64 `json:"precipitation_mm_6h"`
	PrecipitationMM72h   float64 `json:"precipitation_mm_72h"`
	HasThunderstorm      bool    `json:"has_thunderstorm"` // code 95/96/99 in the 6h pre-detection window
}

// RoadContext holds the nearest road found around a detection location.
type RoadContext struct {
	NearestDistanceM float64 `json:"nearest_distance_m"`
	NearestRoadType  string  `json:"nearest_road_type"` // OSM highway tag
	NearestRoadRef   string  `json:"nearest_road_ref,omitempty"`
}

// EnrichedDetection is a Detection plus optional weather and road context.
// Either context is nil when its collaborator failed; the pipeline continues
// with whatever is available.
type EnrichedDetection struct {
	Detection Detection       `json:"detection"`
	Weather   *WeatherContext `json:"weather,omitempty"`
	Road      *RoadContext    `json:"road,omitempty"`
}

// IntentBreakdown is the per-signal intentionality score for a fire event.
// Each signal score is raw, bounded by its configured weight; Total is the
// renormalized 0-100 value computed over active signals only.
type IntentBreakdown struct {
	LightningScore     int         `json:"lightning"`
	RoadScore          int         `json:"road"`
	NightScore         int         `json:"night"`
	HistoryScore       int         `json:"history"`
	MultiPointScore    int         `json:"multi_point"`
	DryConditionsScore int         `json:"dry_conditions"`
	ActiveSignals      int         `json:"active_signals"`
	TotalSignals       int         `json:"total_signals"`
	Total              int         `json:"total"`
	Label              IntentLabel `json:"label"`
}

// FireEvent is a mutable aggregate of clustered detections believed to
// represent one fire. Centroid and severity are recomputed on every merge;
// events grow or resolve, never split.
type FireEvent struct {
	ID             string              `json:"id"`
	Centroid       Geo                 `json:"centroid"`
	Detections     []EnrichedDetection `json:"detections,omitempty"`
	DetectionCount int                 `json:"detection_count"`
	Severity       Severity            `json:"severity"`
	MaxFRP         float64             `json:"max_frp"`
	FirstDetected  time.Time           `json:"first_detected"`
	LastDetected   time.Time           `json:"last_detected"`
	Intent         *IntentBreakdown    `json:"intent,omitempty"` // nil until scored
	Active         bool                `json:"active"`
}

// AlertChannel is a supported alert delivery channel.
type AlertChannel string

const (
	ChannelTelegram AlertChannel = "telegram"
	ChannelWhatsApp AlertChannel = "whatsapp"
)

// Subscription is a standing request for alerts on a channel, scoped to an
// area of interest and a minimum severity.
type Subscription struct {
	ID          string       `json:"id"`
	Channel     AlertChannel `json:"channel"`
	Address     string       `json:"address"` // chat ID, phone number, etc.
	Zone        string       `json:"zone"`    // predefined zone name, or "custom"
	CustomLat   float64      `json:"custom_lat,omitempty"`
	CustomLon   float64      `json:"custom_lon,omitempty"`
	CustomKm    float64      `json:"custom_radius_km,omitempty"`
	MinSeverity Severity     `json:"min_severity"`
	Active      bool         `json:"active"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AlertRecord links one fire event to one subscription at one point in time.
// Immutable once written; the record history for an (event, subscription)
// pair is the sole source of truth for rate-limit and escalation decisions.
type AlertRecord struct {
	ID             string       `json:"id"`
	FireEventID    string       `json:"fire_event_id"`
	SubscriptionID string       `json:"subscription_id"`
	Channel        AlertChannel `json:"channel"`
	Message        string       `json:"message"`
	SentAt         time.Time    `json:"sent_at"`
	Delivered      bool         `json:"delivered"`
	IsEscalation   bool         `json:"is_escalation"`
	EventSeverity  Severity     `json:"event_severity"` // severity snapshot at send time
	IntentLabel    IntentLabel  `json:"intent_label,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// CycleStatus is the completion status of one pipeline cycle.
type CycleStatus string

const (
	CycleSuccess CycleStatus = "success"
	CyclePartial CycleStatus = "partial"
	CycleFailed  CycleStatus = "failed"
)

// CycleRecord captures the outcome of a single pipeline cycle.
type CycleRecord struct {
	ID               string                   `json:"id"`
	StartedAt        time.Time                `json:"started_at"`
	CompletedAt      time.Time                `json:"completed_at"`
	Status           CycleStatus              `json:"status"`
	FetchedBySource  map[Source]int           `json:"fetched_by_source,omitempty"`
	NewDetections    int                      `json:"new_detections"`
	EventsCreated    int                      `json:"events_created"`
	EventsUpdated    int                      `json:"events_updated"`
	EventsScored     int                      `json:"events_scored"`
	EventsUnscored   int                      `json:"events_unscored"` // insufficient data
	AlertsSent       int                      `json:"alerts_sent"`
	AlertsSuppressed int                      `json:"alerts_suppressed"`
	AlertsFailed     int                      `json:"alerts_failed"`
	StageDurations   map[string]time.Duration `json:"stage_durations,omitempty"`
	Errors           []string                 `json:"errors,omitempty"`
}
