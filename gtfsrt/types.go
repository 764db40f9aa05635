package gtfsrt

// DeltaRecord is one observed vehicle state taken from a VehiclePosition entity.
// TripID is the upsert identity; Bearing and Speed are nil when the feed omits them.
type DeltaRecord struct {
	TripID    string
	RouteID   string
	VehicleID string
	Latitude  float64
	Longitude float64
	Bearing   *float32
	Speed     *float32
	Timestamp int64 // unix seconds
}

// DeltaBatch is the decoded form of one feed fetch, in feed entity order.
type DeltaBatch struct {
	HeaderTimestamp int64
	Records         []DeltaRecord
	Skipped         int // entities without a vehicle, trip id or valid position
}

// Len returns the number of records in the batch.
func (b DeltaBatch) Len() int { return len(b.Records) }
