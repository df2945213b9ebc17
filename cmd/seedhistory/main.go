// Command seedhistory loads a FIRMS archive CSV into the historical fire
// table, backing the repeat-location scoring signal. Archive exports are
// available from https://firms.modaps.eosdis.nasa.gov/download/ for any
// region and date range.
//
// Usage:
//
//	go run ./cmd/seedhistory -csv fire_archive_SV-C2_2019_2024.csv
//
// DATABASE_URL must point at the production store; the in-memory store has
// nothing to seed.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/patagonialabs/firesentinel/internal/domain"
	"github.com/patagonialabs/firesentinel/internal/store/pgstore"
)

func main() {
	csvPath := flag.String("csv", "", "path to a FIRMS archive CSV export")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "FATAL: DATABASE_URL is not set")
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := pgstore.New(ctx, databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: connect to postgres: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	inserted, skipped, err := seed(ctx, st, *csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d historical fires (%d rows skipped).\n", inserted, skipped)
}

type historyStore interface {
	AddHistoricalFire(ctx context.Context, cell string, occurredAt time.Time) error
}

// seed streams the archive CSV into the store. Rows in the same grid cell on
// the same day collapse to one record: the signal counts fire occurrences,
// not satellite pixels.
func seed(ctx context.Context, st historyStore, path string) (inserted, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"latitude", "longitude", "acq_date"} {
		if _, ok := col[required]; !ok {
			return 0, 0, fmt.Errorf("missing column %q", required)
		}
	}

	seen := make(map[string]bool)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return inserted, skipped, fmt.Errorf("reading row: %w", err)
		}

		lat, latErr := strconv.ParseFloat(row[col["latitude"]], 64)
		lon, lonErr := strconv.ParseFloat(row[col["longitude"]], 64)
		day, dayErr := time.Parse("2006-01-02", row[col["acq_date"]])
		if latErr != nil || lonErr != nil || dayErr != nil {
			skipped++
			continue
		}

		cell := domain.GridCell(domain.Geo{Lat: lat, Lon: lon})
		key := cell + "|" + row[col["acq_date"]]
		if seen[key] {
			skipped++
			continue
		}
		seen[key] = true

		if err := st.AddHistoricalFire(ctx, cell, day); err != nil {
			return inserted, skipped, fmt.Errorf("inserting %s: %w", key, err)
		}
		inserted++
	}
	return inserted, skipped, nil
}
