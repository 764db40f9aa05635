package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtfs_ingest_cycles_total",
		Help: "Completed ingest cycles by pipeline and result",
	}, []string{"pipeline", "result"})
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gtfs_ingest_cycle_duration_seconds",
		Help:    "Wall time of one ingest cycle",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"pipeline"})
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtfs_ingest_fetch_attempts_total",
		Help: "Delta feed fetch attempts by result",
	}, []string{"result"})
	RecordsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gtfs_ingest_records_stored_total",
		Help: "Vehicle position records committed",
	})
	RecordsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gtfs_ingest_records_skipped_total",
		Help: "Feed entities without a vehicle, trip id or position",
	})
	RowsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtfs_ingest_rows_loaded_total",
		Help: "Static bundle rows committed by table",
	}, []string{"table"})
	TableLoadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtfs_ingest_table_load_errors_total",
		Help: "Static bundle tables whose load was rolled back",
	}, []string{"table"})
)

const (
	pipelineDelta  = "delta"
	pipelineBundle = "bundle"
)

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
