package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DetectionID produces a deterministic ID from a detection's identity fields.
// Deterministic IDs enable idempotent upserts (ON CONFLICT DO NOTHING) and
// replay safety — re-ingesting the same FIRMS row produces the same ID.
func DetectionID(source Source, geo Geo, acquiredAt time.Time) string {
	input := fmt.Sprintf("%s|%.5f|%.5f|%s", source, geo.Lat, geo.Lon, acquiredAt.UTC().Format(time.RFC3339))
	hash := sha256.Sum256([]byte(input))
	return "det-" + hex.EncodeToString(hash[:8])
}
