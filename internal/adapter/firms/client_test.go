package firms

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

const viirsHeader = "latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_ti5,frp,daynight"

const modisHeader = "latitude,longitude,brightness,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_t31,frp,daynight"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("testkey", 300, 5*time.Second, testLogger())
	c.baseURL = srv.URL
	c.backoff = time.Millisecond
	return c
}

var patagonia = domain.BoundingBox{West: -73.0, South: -46.0, East: -70.0, North: -40.0}

func TestFetchVIIRS(t *testing.T) {
	body := viirsHeader + "\n" +
		"-41.9608,-71.5336,330.5,0.39,0.36,2026-01-15,0432,N,VIIRS,nominal,2.0NRT,290.1,12.4,N\n" +
		// high confidence, early-morning pass with single-digit HHMM padding
		"-42.1000,-71.4000,345.0,0.39,0.36,2026-01-15,15,N21,VIIRS,high,2.0NRT,295.5,8.0,N\n" +
		// low confidence, dropped
		"-42.2000,-71.3000,340.0,0.39,0.36,2026-01-15,0432,N,VIIRS,low,2.0NRT,293.0,5.0,N\n" +
		// too cool, dropped
		"-42.3000,-71.2000,299.9,0.39,0.36,2026-01-15,0432,N,VIIRS,nominal,2.0NRT,280.0,3.0,N\n" +
		// malformed brightness, skipped
		"-42.4000,-71.1000,hot,0.39,0.36,2026-01-15,0432,N,VIIRS,nominal,2.0NRT,290.0,4.0,N\n"

	var gotPath string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, body)
	}))

	dets, err := c.Fetch(context.Background(), domain.SourceVIIRSSNPP, patagonia, 1)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, "/testkey/VIIRS_SNPP_NRT/-73.0000,-46.0000,-70.0000,-40.0000/1", gotPath)

	first := dets[0]
	assert.Equal(t, domain.SourceVIIRSSNPP, first.Source)
	assert.InDelta(t, -41.9608, first.Geo.Lat, 1e-9)
	assert.InDelta(t, 330.5, first.Brightness, 1e-9)
	assert.InDelta(t, 290.1, first.Brightness2, 1e-9)
	assert.InDelta(t, 12.4, first.FRP, 1e-9)
	assert.Equal(t, "nominal", first.Confidence)
	assert.Equal(t, domain.Night, first.DayNight)
	assert.Equal(t, "N", first.Satellite)
	assert.Equal(t, time.Date(2026, 1, 15, 4, 32, 0, 0, time.UTC), first.AcquiredAt)
	assert.True(t, strings.HasPrefix(first.ID, "det-"))

	assert.Equal(t, time.Date(2026, 1, 15, 0, 15, 0, 0, time.UTC), dets[1].AcquiredAt)
}

func TestFetchMODIS(t *testing.T) {
	body := modisHeader + "\n" +
		"-41.5000,-71.8000,325.0,1.1,1.0,2026-01-15,1830,Terra,MODIS,85,6.1NRT,300.2,22.0,D\n" +
		// confidence below threshold, dropped
		"-41.6000,-71.7000,320.0,1.1,1.0,2026-01-15,1830,Terra,MODIS,25,6.1NRT,298.0,10.0,D\n" +
		// FRP missing defaults to zero
		"-41.7000,-71.6000,315.0,1.1,1.0,2026-01-15,1830,Aqua,MODIS,40,6.1NRT,297.0,,D\n"

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))

	dets, err := c.Fetch(context.Background(), domain.SourceMODIS, patagonia, 1)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.InDelta(t, 325.0, dets[0].Brightness, 1e-9)
	assert.InDelta(t, 300.2, dets[0].Brightness2, 1e-9)
	assert.Equal(t, "85", dets[0].Confidence)
	assert.Equal(t, domain.Day, dets[0].DayNight)

	assert.Zero(t, dets[1].FRP)
	assert.Equal(t, "Aqua", dets[1].Satellite)
}

func TestFetchEmptyBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	dets, err := c.Fetch(context.Background(), domain.SourceVIIRSSNPP, patagonia, 1)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestFetchRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, viirsHeader+"\n-41.9608,-71.5336,330.5,0.39,0.36,2026-01-15,0432,N,VIIRS,nominal,2.0NRT,290.1,12.4,N\n")
	}))

	dets, err := c.Fetch(context.Background(), domain.SourceVIIRSSNPP, patagonia, 1)
	require.NoError(t, err)
	assert.Len(t, dets, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchExhaustsRateLimitRetries(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.Fetch(context.Background(), domain.SourceVIIRSSNPP, patagonia, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted retries")
	assert.Equal(t, int32(backoffMaxRetries+1), calls.Load())
}

func TestFetchServerError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Fetch(context.Background(), domain.SourceVIIRSSNPP, patagonia, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestFetchAllIsolatesFailingSource(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, string(domain.SourceMODIS)) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, viirsHeader+"\n-41.9608,-71.5336,330.5,0.39,0.36,2026-01-15,0432,N,VIIRS,nominal,2.0NRT,290.1,12.4,N\n")
	}))

	dets, failed := c.FetchAll(context.Background(), patagonia, 1)
	assert.Len(t, dets, 3)
	require.Len(t, failed, 1)
	assert.Error(t, failed[domain.SourceMODIS])
}
