package health

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/ingest"
)

func TestMonitor_InitialStatus(t *testing.T) {
	st := NewMonitor().Current()
	assert.True(t, st.Healthy)
	assert.True(t, st.LastCheckTime.IsZero())
	assert.Empty(t, st.Pipelines)
}

func TestMonitor_Report(t *testing.T) {
	m := NewMonitor()
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	m.Report(PipelineDelta, ingest.Outcome{Success: true, ItemsProcessed: 12, CompletedAt: t0})
	st := m.Current()
	require.True(t, st.Healthy)
	assert.Equal(t, t0, st.LastSuccessTime)
	assert.Equal(t, 12, st.Pipelines[PipelineDelta].ItemsProcessed)

	t1 := t0.Add(time.Minute)
	m.Report(PipelineDelta, ingest.Outcome{Success: false, ErrorMessage: "HTTP 503", CompletedAt: t1, Err: errors.New("HTTP 503")})
	st = m.Current()
	assert.False(t, st.Healthy)
	assert.Equal(t, "HTTP 503", st.LastError)
	assert.Equal(t, t0, st.LastSuccessTime, "last success is kept")
	assert.Equal(t, t1, st.LastCheckTime)

	t2 := t1.Add(time.Minute)
	m.Report(PipelineBundle, ingest.Outcome{Success: true, ItemsProcessed: 500, CompletedAt: t2})
	st = m.Current()
	assert.True(t, st.Healthy)
	assert.Empty(t, st.LastError)
	assert.Len(t, st.Pipelines, 2)
	assert.False(t, st.Pipelines[PipelineDelta].Success)
}

func TestMonitor_SnapshotsAreImmutable(t *testing.T) {
	m := NewMonitor()
	m.Report(PipelineDelta, ingest.Outcome{Success: true, ItemsProcessed: 1})
	before := m.Current()

	m.Report(PipelineDelta, ingest.Outcome{Success: false, ErrorMessage: "boom"})
	assert.True(t, before.Healthy)
	assert.Equal(t, 1, before.Pipelines[PipelineDelta].ItemsProcessed)
	assert.False(t, before.LastCheckTime.IsZero(), "zero CompletedAt is stamped")
}

func TestMonitor_ConcurrentReports(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			m.Report(PipelineDelta, ingest.Outcome{Success: i%2 == 0, ItemsProcessed: i})
		}(i)
		go func() {
			defer wg.Done()
			_ = m.Current().Healthy
		}()
	}
	wg.Wait()
	assert.Len(t, m.Current().Pipelines, 1)
}
