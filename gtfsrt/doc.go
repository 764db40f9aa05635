// Package gtfsrt fetches and decodes GTFS-Realtime vehicle position feeds.
//
// The Client performs single HTTP attempts and classifies failures as transient
// or permanent. The Decoder resolves the FeedMessage type through an explicit
// Registry and flattens VehiclePosition entities into a DeltaBatch:
//
//	registry, _ := gtfsrt.NewRegistry()
//	dec := gtfsrt.NewDecoder(registry)
//	raw, _ := gtfsrt.NewClient(gtfsrt.ClientOptions{}).Fetch(ctx, url)
//	batch, err := dec.Decode(raw)
//
// Entities without a vehicle, a trip id or a usable position (missing, NaN or
// outside the WGS84 range) are counted in DeltaBatch.Skipped and left out of
// Records.
package gtfsrt
