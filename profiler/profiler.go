// Package profiler - Stage timings and runtime statistics of the prediction pipeline.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/tuhinmallick/grounded-sam-replicate/log"
)

// Timer times named operations.
type Timer interface {
	// StartOperation begins timing name and returns the function that ends it.
	StartOperation(name string) func()
}

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// TimeTracker tracks operation timing statistics over a bounded window.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats summarizes a tracked operation.
type OperationStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Snapshot is a point-in-time report.
type Snapshot struct {
	Uptime     time.Duration      `json:"uptime"`
	Goroutines int                `json:"goroutines"`
	CgoCalls   int64              `json:"cgo_calls"`
	HeapAlloc  uint64             `json:"heap_alloc"`
	Sys        uint64             `json:"sys"`
	NumGC      uint32             `json:"num_gc"`
	Operations []OperationStats   `json:"operations"`
	Metrics    map[string]float64 `json:"metrics"`
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often Start logs a snapshot (default: 1m).
	ReportInterval time.Duration
	// MaxSamples bounds the timing window of each operation (default: 600).
	MaxSamples int
}

// RuntimeProfiler records stage timings and reports them with runtime
// statistics. It is safe for concurrent use.
type RuntimeProfiler struct {
	reportInterval time.Duration
	maxSamples     int
	startTime      time.Time

	mu             sync.RWMutex
	operationTimes map[string]*TimeTracker
	collectors     []MetricsCollector

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Timer = (*RuntimeProfiler)(nil)

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = time.Minute
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		startTime:      time.Now(),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// AddMetricsCollector registers a collector sampled by every Snapshot.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.recordOperationTime(name, time.Since(start))
	}
}

func (rp *RuntimeProfiler) recordOperationTime(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		rp.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > rp.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++
	tracker.minTime = min(tracker.minTime, duration)
	tracker.maxTime = max(tracker.maxTime, duration)
}

// Snapshot reports the tracked operations, collector metrics and runtime
// memory statistics.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.RLock()
	defer rp.mu.RUnlock()

	s := Snapshot{
		Uptime:     time.Since(rp.startTime).Truncate(time.Millisecond),
		Goroutines: runtime.NumGoroutine(),
		CgoCalls:   runtime.NumCgoCall(),
		HeapAlloc:  mem.HeapAlloc,
		Sys:        mem.Sys,
		NumGC:      mem.NumGC,
		Operations: make([]OperationStats, 0, len(rp.operationTimes)),
		Metrics:    map[string]float64{},
	}
	for name, tracker := range rp.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		s.Operations = append(s.Operations, OperationStats{
			Name:  name,
			Count: tracker.count,
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
		})
	}
	sort.Slice(s.Operations, func(i, j int) bool { return s.Operations[i].Name < s.Operations[j].Name })

	for _, collector := range rp.collectors {
		for name, value := range collector.CollectMetrics() {
			s.Metrics[name] = value
		}
	}
	return s
}

// Start logs a snapshot every report interval until Stop is called or ctx
// is done. It is a no-op when already running.
func (rp *RuntimeProfiler) Start(ctx context.Context) {
	rp.mu.Lock()
	if rp.cancel != nil {
		rp.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	rp.cancel = cancel
	rp.mu.Unlock()

	logger := log.FromContextOrDiscard(ctx).WithGroup("profiler")
	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()

		ticker := time.NewTicker(rp.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := rp.Snapshot()
				logger.Info("status report",
					"uptime", s.Uptime,
					"goroutines", s.Goroutines,
					"heap_alloc", s.HeapAlloc,
					"operations", s.Operations,
					"metrics", s.Metrics)
			}
		}
	}()
}

// Stop ends the reporting loop and waits for it to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	cancel := rp.cancel
	rp.cancel = nil
	rp.mu.Unlock()

	if cancel != nil {
		cancel()
		rp.wg.Wait()
	}
}

// Shutdown implements do.Shutdownable.
func (rp *RuntimeProfiler) Shutdown() error {
	rp.Stop()
	return nil
}
