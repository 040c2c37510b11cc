package profiler

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
)

type staticCollector map[string]float64

func (c staticCollector) CollectMetrics() map[string]float64 { return c }

func TestOperationStats(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 2})
	rp.recordOperationTime("compose", 30*time.Millisecond)
	rp.recordOperationTime("compose", 10*time.Millisecond)
	rp.recordOperationTime("compose", 20*time.Millisecond)
	rp.recordOperationTime("write", time.Millisecond)
	rp.AddMetricsCollector(staticCollector{"predictions_total": 3})

	s := rp.Snapshot()
	require.Len(t, s.Operations, 2)

	compose := s.Operations[0]
	assert.Equal(t, "compose", compose.Name)
	assert.Equal(t, int64(3), compose.Count)
	assert.Equal(t, 15*time.Millisecond, compose.Avg, "only the last two samples are averaged")
	assert.Equal(t, 10*time.Millisecond, compose.Min)
	assert.Equal(t, 30*time.Millisecond, compose.Max)
	assert.Equal(t, "write", s.Operations[1].Name)
	assert.Equal(t, float64(3), s.Metrics["predictions_total"])
	assert.Positive(t, s.Goroutines)
}

func TestStartOperation(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{})
	done := rp.StartOperation("load")
	done()

	s := rp.Snapshot()
	require.Len(t, s.Operations, 1)
	assert.Equal(t, int64(1), s.Operations[0].Count)
}

func TestStartReportsAndStops(t *testing.T) {
	var buf syncBuffer
	ctx := log.NewContext(context.Background(), log.New(&buf))

	rp := NewRuntimeProfiler(ProfilingOptions{ReportInterval: 5 * time.Millisecond})
	rp.Start(ctx)
	rp.Start(ctx)
	assert.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte("status report"))
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, rp.Shutdown())
	rp.Stop()
}
