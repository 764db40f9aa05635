package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/gtfsrt"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/store"
)

func f32(f float32) *float32 { return &f }

func TestUpsertVehiclePositions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)

	batch := gtfsrt.DeltaBatch{
		HeaderTimestamp: 100,
		Records: []gtfsrt.DeltaRecord{
			{TripID: "T1", RouteID: "R1", VehicleID: "V1", Latitude: 42.69, Longitude: 23.32, Bearing: f32(180), Speed: f32(8.5), Timestamp: 100},
			{TripID: "T2", RouteID: "R2", VehicleID: "V2", Latitude: 42.7, Longitude: 23.33, Timestamp: 101},
		},
	}
	require.NoError(t, s.UpsertVehiclePositions(ctx, batch))

	trips, err := s.CountRows(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, 2, trips)

	got, err := s.VehiclePositions(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "R1", got[0].RouteID)
	assert.Equal(t, "V1", got[0].VehicleID)
	assert.InDelta(t, 42.69, got[0].Latitude, 1e-9)
	require.NotNil(t, got[0].Bearing)
	assert.Equal(t, float32(180), *got[0].Bearing)
	require.NotNil(t, got[0].Speed)
	assert.Equal(t, float32(8.5), *got[0].Speed)
	assert.Equal(t, int64(100), got[0].Timestamp)

	got, err = s.VehiclePositions(ctx, "T2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Bearing)
	assert.Nil(t, got[0].Speed)
}

func TestUpsertVehiclePositions_FirstAssociationWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 0)

	require.NoError(t, s.UpsertVehiclePositions(ctx, gtfsrt.DeltaBatch{Records: []gtfsrt.DeltaRecord{
		{TripID: "T1", RouteID: "R1", VehicleID: "V1", Latitude: 1, Longitude: 1, Timestamp: 1},
		{TripID: "T1", RouteID: "R9", VehicleID: "V9", Latitude: 2, Longitude: 2, Timestamp: 2},
	}}))
	require.NoError(t, s.UpsertVehiclePositions(ctx, gtfsrt.DeltaBatch{Records: []gtfsrt.DeltaRecord{
		{TripID: "T1", RouteID: "R5", VehicleID: "V5", Latitude: 3, Longitude: 3, Timestamp: 3},
	}}))

	trip, err := s.Trip(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, store.Trip{TripID: "T1", RouteID: "R1", VehicleID: "V1"}, trip)

	trips, err := s.CountRows(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, 1, trips)

	positions, err := s.VehiclePositions(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, positions, 3)
	for i, p := range positions {
		assert.Equal(t, int64(i+1), p.Timestamp)
	}
}

func TestUpsertVehiclePositions_AtomicOnFailure(t *testing.T) {
	ctx := context.Background()
	// small batches so trips are written in several statements before the failure
	s := newTestStore(t, 2)

	const n = 10
	records := make([]gtfsrt.DeltaRecord, n)
	for i := range records {
		records[i] = gtfsrt.DeltaRecord{
			TripID:    fmt.Sprintf("T%d", i),
			RouteID:   "R1",
			Latitude:  10,
			Longitude: 20,
			Timestamp: int64(i),
		}
	}
	records[n/2].Latitude = 200 // violates the latitude range check

	err := s.UpsertVehiclePositions(ctx, gtfsrt.DeltaBatch{Records: records})
	require.Error(t, err)
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "upsert", se.Op)

	for _, table := range []string{"trip", "vehicle_positions"} {
		count, err := s.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Zero(t, count, table)
	}
}

func TestUpsertVehiclePositions_EmptyBatch(t *testing.T) {
	s := newTestStore(t, 0)
	require.NoError(t, s.UpsertVehiclePositions(context.Background(), gtfsrt.DeltaBatch{}))
}

func TestTrip_NotFound(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.Trip(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
