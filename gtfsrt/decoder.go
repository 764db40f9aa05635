package gtfsrt

import (
	"errors"
	"fmt"
	"math"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// Decoder turns raw GTFS-RT protobuf bytes into a DeltaBatch.
type Decoder struct {
	registry *Registry
}

// NewDecoder creates a decoder backed by registry.
func NewDecoder(registry *Registry) *Decoder {
	return &Decoder{registry: registry}
}

// Decode parses b as a FeedMessage and extracts its vehicle positions in entity order.
// Truncated or corrupt input, including an empty payload, yields a *DecodeError.
func (d *Decoder) Decode(b []byte) (DeltaBatch, error) {
	msg, err := d.registry.New(FeedMessageName)
	if err != nil {
		return DeltaBatch{}, &DecodeError{Size: len(b), Err: err}
	}
	if err := proto.Unmarshal(b, msg); err != nil {
		return DeltaBatch{}, &DecodeError{Size: len(b), Err: err}
	}
	fm, ok := msg.(*gtfsrtpb.FeedMessage)
	if !ok {
		return DeltaBatch{}, &DecodeError{Size: len(b), Err: fmt.Errorf("registry returned %T", msg)}
	}
	if fm.Header == nil {
		return DeltaBatch{}, &DecodeError{Size: len(b), Err: errors.New("feed header missing")}
	}
	return batchFromFeed(fm), nil
}

func batchFromFeed(fm *gtfsrtpb.FeedMessage) DeltaBatch {
	batch := DeltaBatch{
		HeaderTimestamp: int64(fm.GetHeader().GetTimestamp()),
		Records:         make([]DeltaRecord, 0, len(fm.Entity)),
	}
	for _, e := range fm.Entity {
		v := e.GetVehicle()
		if v == nil || v.GetTrip().GetTripId() == "" || !validPosition(v.Position) {
			batch.Skipped++
			continue
		}
		rec := DeltaRecord{
			TripID:    v.GetTrip().GetTripId(),
			RouteID:   v.GetTrip().GetRouteId(),
			VehicleID: v.GetVehicle().GetId(),
			Latitude:  float64(v.Position.GetLatitude()),
			Longitude: float64(v.Position.GetLongitude()),
			Timestamp: int64(v.GetTimestamp()),
		}
		if v.Position.Bearing != nil {
			b := *v.Position.Bearing
			rec.Bearing = &b
		}
		if v.Position.Speed != nil {
			s := *v.Position.Speed
			rec.Speed = &s
		}
		// Vehicles without their own timestamp were observed at feed creation time
		if v.Timestamp == nil {
			rec.Timestamp = batch.HeaderTimestamp
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch
}

// validPosition rejects missing, non-finite and out-of-range coordinates.
func validPosition(p *gtfsrtpb.Position) bool {
	if p == nil {
		return false
	}
	lat, lon := float64(p.GetLatitude()), float64(p.GetLongitude())
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
