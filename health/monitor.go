package health

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/ingest"
)

// Pipeline names used as keys of Status.Pipelines.
const (
	PipelineDelta  = "delta"
	PipelineBundle = "bundle"
)

// Status is an immutable snapshot of service health.
type Status struct {
	Healthy         bool                      `json:"healthy"`
	LastSuccessTime time.Time                 `json:"lastSuccessTime"`
	LastError       string                    `json:"lastError,omitempty"`
	LastCheckTime   time.Time                 `json:"lastCheckTime"`
	Pipelines       map[string]ingest.Outcome `json:"pipelines,omitempty"`
}

// Monitor holds the latest Status. Readers never block writers.
type Monitor struct {
	mu      sync.Mutex // serialises Report
	current atomic.Pointer[Status]
}

// NewMonitor returns a monitor that reports healthy until the first failure.
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.current.Store(&Status{Healthy: true})
	return m
}

// Report records the outcome of one pipeline cycle. Health follows the most
// recent outcome of any pipeline.
func (m *Monitor) Report(pipeline string, o ingest.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current.Load()
	next := &Status{
		Healthy:         o.Success,
		LastSuccessTime: prev.LastSuccessTime,
		LastError:       prev.LastError,
		LastCheckTime:   o.CompletedAt,
		Pipelines:       maps.Clone(prev.Pipelines),
	}
	if next.LastCheckTime.IsZero() {
		next.LastCheckTime = time.Now()
	}
	if next.Pipelines == nil {
		next.Pipelines = make(map[string]ingest.Outcome, 2)
	}
	next.Pipelines[pipeline] = o
	if o.Success {
		next.LastSuccessTime = next.LastCheckTime
		next.LastError = ""
	} else {
		next.LastError = o.ErrorMessage
	}
	m.current.Store(next)
}

// Current returns the latest snapshot. Callers must not modify it.
func (m *Monitor) Current() *Status {
	return m.current.Load()
}
