package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/gtfsrt"
)

const (
	tripTable      = "trip"
	positionsTable = "vehicle_positions"
)

var (
	tripColumns     = []string{"trip_id", "route_id", "vehicle_id"}
	positionColumns = []string{"trip_id", "latitude", "longitude", "bearing", "speed", "timestamp"}
)

// UpsertVehiclePositions writes batch in a single transaction. Each trip keeps its
// first known route and vehicle; positions are appended in feed order. Either
// every row of the batch is stored or none is.
func (s *Store) UpsertVehiclePositions(ctx context.Context, batch gtfsrt.DeltaBatch) error {
	if batch.Len() == 0 {
		return nil
	}
	unlock := s.lock(tripTable, positionsTable)
	defer unlock()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		trips := newInserter(tx, tripTable, tripColumns, s.batchSize)
		trips.suffix = " ON CONFLICT (trip_id) DO NOTHING"
		seen := make(map[string]struct{}, batch.Len())
		for _, r := range batch.Records {
			if _, ok := seen[r.TripID]; ok {
				continue
			}
			seen[r.TripID] = struct{}{}
			if err := trips.add(ctx, r.TripID, r.RouteID, r.VehicleID); err != nil {
				return fmt.Errorf("insert trips: %w", err)
			}
		}
		if err := trips.flush(ctx); err != nil {
			return fmt.Errorf("insert trips: %w", err)
		}

		positions := newInserter(tx, positionsTable, positionColumns, s.batchSize)
		for _, r := range batch.Records {
			if err := positions.add(ctx, r.TripID, r.Latitude, r.Longitude,
				nullFloat(r.Bearing), nullFloat(r.Speed), r.Timestamp); err != nil {
				return fmt.Errorf("insert positions: %w", err)
			}
		}
		if err := positions.flush(ctx); err != nil {
			return fmt.Errorf("insert positions: %w", err)
		}
		return nil
	})
	if err != nil {
		return &Error{Op: "upsert", Table: positionsTable, Err: err}
	}
	return nil
}

// nullFloat binds an optional measurement as NULL or float64.
func nullFloat(f *float32) any {
	if f == nil {
		return nil
	}
	return float64(*f)
}

// Trip is a stored trip association.
type Trip struct {
	TripID    string
	RouteID   string
	VehicleID string
}

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Trip returns the association stored for tripID.
func (s *Store) Trip(ctx context.Context, tripID string) (Trip, error) {
	var t Trip
	var route, vehicle sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT trip_id, route_id, vehicle_id FROM trip WHERE trip_id = $1`, tripID,
	).Scan(&t.TripID, &route, &vehicle)
	if errors.Is(err, sql.ErrNoRows) {
		return Trip{}, fmt.Errorf("trip %s: %w", tripID, ErrNotFound)
	}
	if err != nil {
		return Trip{}, fmt.Errorf("trip %s: %w", tripID, err)
	}
	t.RouteID, t.VehicleID = route.String, vehicle.String
	return t, nil
}

// VehiclePositions returns the positions recorded for tripID, oldest first,
// joined with the trip's route and vehicle.
func (s *Store) VehiclePositions(ctx context.Context, tripID string) ([]gtfsrt.DeltaRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.trip_id, t.route_id, t.vehicle_id, p.latitude, p.longitude, p.bearing, p.speed, p."timestamp"
		FROM vehicle_positions p
		LEFT JOIN trip t ON t.trip_id = p.trip_id
		WHERE p.trip_id = $1
		ORDER BY p."timestamp"`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []gtfsrt.DeltaRecord
	for rows.Next() {
		var (
			r              gtfsrt.DeltaRecord
			route, vehicle sql.NullString
			bearing, speed sql.NullFloat64
		)
		if err := rows.Scan(&r.TripID, &route, &vehicle, &r.Latitude, &r.Longitude, &bearing, &speed, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		r.RouteID, r.VehicleID = route.String, vehicle.String
		r.Bearing = float32Ptr(bearing)
		r.Speed = float32Ptr(speed)
		out = append(out, r)
	}
	return out, rows.Err()
}

func float32Ptr(n sql.NullFloat64) *float32 {
	if !n.Valid {
		return nil
	}
	f := float32(n.Float64)
	return &f
}
