package ingest_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/config"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/gtfsrt"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/gtfsrt/gtfsrttest"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/ingest"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/internal"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/store"
)

// scriptedFetcher replays one response per call; the last one repeats.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []fetchResponse
	calls     int
}

type fetchResponse struct {
	body []byte
	err  error
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.responses[min(f.calls, len(f.responses)-1)]
	f.calls++
	return r.body, r.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingStore struct {
	mu      sync.Mutex
	batches []gtfsrt.DeltaBatch
	err     error
	panics  bool
}

func (s *countingStore) UpsertVehiclePositions(ctx context.Context, batch gtfsrt.DeltaBatch) error {
	if s.panics {
		panic("store exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return s.err
}

func (s *countingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func unavailable() fetchResponse {
	return fetchResponse{err: &gtfsrt.FetchError{URL: "http://feed", StatusCode: http.StatusServiceUnavailable}}
}

func newTestPoller(t *testing.T, f ingest.Fetcher, s ingest.PositionStore, delay time.Duration) *ingest.Poller {
	t.Helper()
	reg, err := gtfsrt.NewRegistry()
	require.NoError(t, err)
	return ingest.NewPoller(f, gtfsrt.NewDecoder(reg), s, ingest.PollerOptions{
		MaxRetryAttempts: 3,
		RetryDelay:       delay,
		Logger:           internal.DiscardLogger(),
	})
}

func twoVehicles(t *testing.T) []byte {
	return gtfsrttest.Marshal(t, 1700000000,
		gtfsrttest.Vehicle{TripID: "T1", RouteID: "R1", VehicleID: "V1", Lat: 42.1, Lon: 23.1},
		gtfsrttest.Vehicle{TripID: "T2", RouteID: "R2", VehicleID: "V2", Lat: 42.2, Lon: 23.2},
	)
}

func TestPoller_RetriesTransientFailures(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{unavailable(), unavailable(), {body: twoVehicles(t)}}}
	st := &countingStore{}

	out := newTestPoller(t, fetcher, st, time.Millisecond).FetchAndStore(context.Background(), "http://feed")

	require.True(t, out.Success, out.ErrorMessage)
	assert.Equal(t, 2, out.ItemsProcessed)
	assert.Empty(t, out.ErrorMessage)
	assert.False(t, out.CompletedAt.IsZero())
	assert.Equal(t, 3, fetcher.Calls())
	assert.Equal(t, 1, st.Calls(), "exactly one store write per cycle")
}

func TestPoller_ExhaustsRetries(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{unavailable()}}
	st := &countingStore{}

	out := newTestPoller(t, fetcher, st, time.Millisecond).FetchAndStore(context.Background(), "http://feed")

	require.False(t, out.Success)
	var exhausted *gtfsrt.FetchExhaustedError
	require.ErrorAs(t, out.Err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.NotEmpty(t, out.ErrorMessage)
	assert.Equal(t, 3, fetcher.Calls())
	assert.Zero(t, st.Calls())
}

func TestPoller_PermanentStatusNotRetried(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{err: &gtfsrt.FetchError{URL: "http://feed", StatusCode: http.StatusNotFound}},
	}}
	st := &countingStore{}

	out := newTestPoller(t, fetcher, st, time.Millisecond).FetchAndStore(context.Background(), "http://feed")

	require.False(t, out.Success)
	var fe *gtfsrt.FetchError
	require.ErrorAs(t, out.Err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, 1, fetcher.Calls())
	assert.Zero(t, st.Calls())
}

func TestPoller_CancelDuringRetryDelay(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{unavailable()}}
	st := &countingStore{}
	p := newTestPoller(t, fetcher, st, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := p.FetchAndStore(ctx, "http://feed")

	assert.Less(t, time.Since(start), 5*time.Second)
	require.False(t, out.Success)
	assert.True(t, errors.Is(out.Err, ingest.ErrCancelled))
	assert.True(t, ingest.IsCancelled(out))
	assert.Equal(t, 1, fetcher.Calls())
	assert.Zero(t, st.Calls())
}

func TestPoller_DecodeErrorSkipsStore(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{{body: []byte{0x0a, 0x05, 0x01}}}}
	st := &countingStore{}

	out := newTestPoller(t, fetcher, st, time.Millisecond).FetchAndStore(context.Background(), "http://feed")

	require.False(t, out.Success)
	var de *gtfsrt.DecodeError
	assert.ErrorAs(t, out.Err, &de)
	assert.Equal(t, 1, fetcher.Calls(), "decode errors are not retried")
	assert.Zero(t, st.Calls())
}

func TestPoller_StoreFailure(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{{body: twoVehicles(t)}}}
	storeErr := &store.Error{Op: "upsert", Table: "vehicle_positions", Err: errors.New("disk full")}
	st := &countingStore{err: storeErr}

	out := newTestPoller(t, fetcher, st, time.Millisecond).FetchAndStore(context.Background(), "http://feed")

	require.False(t, out.Success)
	assert.ErrorIs(t, out.Err, storeErr)
	assert.Zero(t, out.ItemsProcessed)
}

func TestPoller_PanicBecomesOutcome(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{{body: twoVehicles(t)}}}
	out := newTestPoller(t, fetcher, &countingStore{panics: true}, time.Millisecond).
		FetchAndStore(context.Background(), "http://feed")

	require.False(t, out.Success)
	assert.Contains(t, out.ErrorMessage, "store exploded")
}

func TestPoller_RoundTrip(t *testing.T) {
	ctx := context.Background()
	payload := gtfsrttest.Marshal(t, 1700000000,
		gtfsrttest.Vehicle{TripID: "T1", RouteID: "R1", VehicleID: "V1", Lat: 42.5, Lon: 23.25,
			Bearing: gtfsrttest.Float32(45), Speed: gtfsrttest.Float32(10), Timestamp: 1700000001},
		gtfsrttest.Vehicle{TripID: "T2", RouteID: "R2", VehicleID: "V2", Lat: 42.75, Lon: 23.5},
		gtfsrttest.Vehicle{RouteID: "R3", Lat: 1, Lon: 1},
	)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	db, err := store.Open(ctx, config.StoreConfig{Driver: "duckdb"}, store.Options{Logger: internal.DiscardLogger()})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.EnsureSchema(ctx))

	client := gtfsrt.NewClient(gtfsrt.ClientOptions{Timeout: 5 * time.Second})
	out := newTestPoller(t, client, db, time.Millisecond).FetchAndStore(ctx, srv.URL)

	require.True(t, out.Success, out.ErrorMessage)
	assert.Equal(t, 2, out.ItemsProcessed)
	assert.Equal(t, int32(2), hits.Load())

	positions, err := db.VehiclePositions(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "R1", positions[0].RouteID)
	assert.Equal(t, "V1", positions[0].VehicleID)
	assert.InDelta(t, 42.5, positions[0].Latitude, 1e-6)
	assert.InDelta(t, 23.25, positions[0].Longitude, 1e-6)
	require.NotNil(t, positions[0].Bearing)
	assert.Equal(t, float32(45), *positions[0].Bearing)
	assert.Equal(t, int64(1700000001), positions[0].Timestamp)

	positions, err = db.VehiclePositions(ctx, "T2")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(1700000000), positions[0].Timestamp)

	trips, err := db.CountRows(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, 2, trips)
}

func TestPoller_InvalidCoordinatesDoNotFailTheBatch(t *testing.T) {
	ctx := context.Background()
	payload := gtfsrttest.Marshal(t, 1700000000,
		gtfsrttest.Vehicle{TripID: "T1", RouteID: "R1", VehicleID: "V1", Lat: 42.5, Lon: 23.25},
		gtfsrttest.Vehicle{TripID: "T2", RouteID: "R2", VehicleID: "V2", Lat: float32(math.NaN()), Lon: 23.25},
		gtfsrttest.Vehicle{TripID: "T3", RouteID: "R3", VehicleID: "V3", Lat: 200, Lon: 23.25},
	)

	db, err := store.Open(ctx, config.StoreConfig{Driver: "duckdb"}, store.Options{Logger: internal.DiscardLogger()})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.EnsureSchema(ctx))

	f := &scriptedFetcher{responses: []fetchResponse{{body: payload}}}
	for range 3 {
		out := newTestPoller(t, f, db, time.Millisecond).FetchAndStore(ctx, "http://feed")
		require.True(t, out.Success, out.ErrorMessage)
		assert.Equal(t, 1, out.ItemsProcessed)
	}

	rows, err := db.CountRows(ctx, "vehicle_positions")
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
	_, err = db.Trip(ctx, "T2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
