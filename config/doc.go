// Package config handles application configuration loading and validation.
//
// Configuration is loaded from config.yml (or the file named by GTFS_INGEST_CONFIG)
// and validated using struct tags. Zero values are replaced by defaults before
// validation, so a minimal file only needs gtfsrt.vehiclePositionsURL.
package config
