package alert

import (
	"fmt"
	"strings"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

// All subscriber-facing text is Spanish; the monitored region is Argentine
// Patagonia.

const dashboardURLTemplate = "https://firesentinel.app/event/%s"

const localUTCOffsetHours = -3

var severityLabels = map[domain.Severity]string{
	domain.SeverityLow:      "BAJA",
	domain.SeverityMedium:   "MEDIA",
	domain.SeverityHigh:     "ALTA",
	domain.SeverityCritical: "CRITICA",
}

var intentLabels = map[domain.IntentLabel]string{
	domain.IntentNatural:           "NATURAL",
	domain.IntentUncertain:         "INCIERTO",
	domain.IntentSuspicious:        "SOSPECHOSO",
	domain.IntentLikelyIntentional: "PROBABLE INTENCIONAL",
}

var severityEmojis = map[domain.Severity]string{
	domain.SeverityLow:      "\U0001f7e2",
	domain.SeverityMedium:   "\U0001f7e1",
	domain.SeverityHigh:     "\U0001f7e0",
	domain.SeverityCritical: "\U0001f534",
}

var roadTypesSpanish = map[string]string{
	"track":        "camino rural",
	"path":         "sendero",
	"tertiary":     "camino terciario",
	"unclassified": "camino sin clasificar",
	"secondary":    "ruta secundaria",
	"primary":      "ruta principal",
	"trunk":        "ruta troncal",
	"motorway":     "autopista",
}

var satelliteNames = map[domain.Source]string{
	domain.SourceVIIRSSNPP:   "VIIRS (Suomi NPP)",
	domain.SourceVIIRSNOAA20: "VIIRS (NOAA-20)",
	domain.SourceVIIRSNOAA21: "VIIRS (NOAA-21)",
	domain.SourceMODIS:       "MODIS (Terra/Aqua)",
}

func severityLabel(s domain.Severity) string {
	if l, ok := severityLabels[s]; ok {
		return l
	}
	return string(s)
}

func intentLabel(l domain.IntentLabel) string {
	if s, ok := intentLabels[l]; ok {
		return s
	}
	return string(l)
}

func roadTypeSpanish(highwayTag string) string {
	if s, ok := roadTypesSpanish[highwayTag]; ok {
		return s
	}
	return highwayTag
}

// signalDescriptions returns one Spanish line per scoring signal that
// contributed, for the alert body.
func signalDescriptions(ev *domain.FireEvent) []string {
	b := ev.Intent
	if b == nil {
		return nil
	}

	var weather *domain.WeatherContext
	var road *domain.RoadContext
	if len(ev.Detections) > 0 {
		weather = ev.Detections[0].Weather
		road = ev.Detections[0].Road
	}

	var out []string
	if b.LightningScore > 0 {
		out = append(out, "Sin actividad de rayos en las ultimas 6h")
	}
	if b.RoadScore > 0 && road != nil {
		name := roadTypeSpanish(road.NearestRoadType)
		if road.NearestRoadRef != "" {
			out = append(out, fmt.Sprintf("A %.0fm de %s (%s)", road.NearestDistanceM, name, road.NearestRoadRef))
		} else {
			out = append(out, fmt.Sprintf("A %.0fm de %s", road.NearestDistanceM, name))
		}
	}
	if b.NightScore > 0 {
		local := ev.FirstDetected.UTC()
		hour := (local.Hour() + localUTCOffsetHours + 24) % 24
		out = append(out, fmt.Sprintf("Detectado de noche (%02d:%02d hora local)", hour, local.Minute()))
	}
	if b.HistoryScore > 0 {
		out = append(out, "Incendio previo en la misma zona")
	}
	if b.MultiPointScore > 0 {
		out = append(out, fmt.Sprintf("%d focos simultaneos detectados en un radio de 5km", ev.DetectionCount))
	}
	if b.DryConditionsScore > 0 {
		if weather != nil {
			out = append(out, fmt.Sprintf("Condiciones secas: %.0f%% humedad, sin lluvia en 72h", weather.HumidityPct))
		} else {
			out = append(out, "Condiciones secas: sin lluvia en 72h")
		}
	}
	return out
}

// FormatTelegram renders the Markdown alert for Telegram.
func FormatTelegram(ev *domain.FireEvent) string {
	label := severityLabel(ev.Severity)
	var b strings.Builder

	fmt.Fprintf(&b, "%s ALERTA %s - Incendio detectado\n\n", severityEmojis[ev.Severity], label)
	fmt.Fprintf(&b, "\U0001f4cd Ubicacion: %.4f, %.4f\n", ev.Centroid.Lat, ev.Centroid.Lon)
	fmt.Fprintf(&b, "\U0001f5fa Mapa: https://www.google.com/maps?q=%.4f,%.4f\n\n", ev.Centroid.Lat, ev.Centroid.Lon)
	fmt.Fprintf(&b, "\U0001f525 Severidad: %s (%d detecciones, FRP max: %.1f MW)\n\n",
		label, ev.DetectionCount, ev.MaxFRP)

	if ev.Intent != nil {
		fmt.Fprintf(&b, "⚠️ Intencionalidad: %d/100 - %s\n", ev.Intent.Total, intentLabel(ev.Intent.Label))
		if signals := signalDescriptions(ev); len(signals) > 0 {
			b.WriteString("Senales principales:\n")
			for _, s := range signals {
				fmt.Fprintf(&b, "• %s\n", s)
			}
		}
		fmt.Fprintf(&b, "Basado en %d/%d senales\n\n", ev.Intent.ActiveSignals, ev.Intent.TotalSignals)
	}

	fmt.Fprintf(&b, "\U0001f6f0 Fuente: %s | Detectado: %s\n\n",
		satelliteSource(ev), ev.FirstDetected.UTC().Format("2006-01-02 15:04 UTC"))
	b.WriteString("⚠️ Modelo basado en patrones 2025-2026. No reemplaza investigacion oficial.\n\n")
	fmt.Fprintf(&b, "[Ver en dashboard]("+dashboardURLTemplate+")", ev.ID)
	return b.String()
}

// FormatWhatsApp renders the plain-text alert. Same content as Telegram but
// WhatsApp has no Markdown, so URLs stay bare.
func FormatWhatsApp(ev *domain.FireEvent) string {
	label := severityLabel(ev.Severity)
	var b strings.Builder

	fmt.Fprintf(&b, "%s ALERTA %s - Incendio detectado\n", severityEmojis[ev.Severity], label)
	fmt.Fprintf(&b, "Ubicacion: %.4f, %.4f\n", ev.Centroid.Lat, ev.Centroid.Lon)
	fmt.Fprintf(&b, "Mapa: https://www.google.com/maps?q=%.4f,%.4f\n", ev.Centroid.Lat, ev.Centroid.Lon)
	fmt.Fprintf(&b, "Severidad: %s (%d detecciones, FRP max: %.1f MW)\n",
		label, ev.DetectionCount, ev.MaxFRP)

	if ev.Intent != nil {
		fmt.Fprintf(&b, "Intencionalidad: %d/100 - %s\n", ev.Intent.Total, intentLabel(ev.Intent.Label))
		if signals := signalDescriptions(ev); len(signals) > 0 {
			b.WriteString("Senales:\n")
			for _, s := range signals {
				fmt.Fprintf(&b, "- %s\n", s)
			}
		}
		fmt.Fprintf(&b, "Basado en %d/%d senales\n", ev.Intent.ActiveSignals, ev.Intent.TotalSignals)
	}

	fmt.Fprintf(&b, "Fuente: %s | Detectado: %s\n",
		satelliteSource(ev), ev.FirstDetected.UTC().Format("2006-01-02 15:04 UTC"))
	b.WriteString("Modelo basado en patrones 2025-2026. No reemplaza investigacion oficial.\n")
	fmt.Fprintf(&b, "Dashboard: "+dashboardURLTemplate, ev.ID)
	return b.String()
}

// FormatEscalation renders the follow-up alert, leading with what changed
// since the previous one.
func FormatEscalation(ev *domain.FireEvent, prev *domain.AlertRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ACTUALIZACION - Incendio en seguimiento\n\n", severityEmojis[ev.Severity])

	var changes []string
	if ev.Severity != prev.EventSeverity {
		changes = append(changes, fmt.Sprintf("Severidad: %s → %s",
			severityLabel(prev.EventSeverity), severityLabel(ev.Severity)))
	}
	if ev.Intent != nil && prev.IntentLabel != "" && ev.Intent.Label != prev.IntentLabel {
		changes = append(changes, fmt.Sprintf("Intencionalidad: %s → %s",
			intentLabel(prev.IntentLabel), intentLabel(ev.Intent.Label)))
	}
	if len(changes) > 0 {
		b.WriteString("Cambios detectados:\n")
		for _, c := range changes {
			fmt.Fprintf(&b, "• %s\n", c)
		}
		b.WriteString("\n")
	}

	b.WriteString(FormatTelegram(ev))
	return b.String()
}

func satelliteSource(ev *domain.FireEvent) string {
	if len(ev.Detections) == 0 {
		return "Desconocido"
	}
	src := ev.Detections[0].Detection.Source
	if name, ok := satelliteNames[src]; ok {
		return name
	}
	return string(src)
}
