// Package profiler collects operation timings and counters across a batch run
// and reports them through slog.
package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Profiler tracks named operation timings and metric samples.
//
// It is the only component shared by the recording workers, so every method
// is safe for concurrent use.
type Profiler struct {
	logger         *slog.Logger
	reportInterval time.Duration
	maxSamples     int

	mu        sync.Mutex
	startTime time.Time
	metrics   map[string]*MetricTracker
	ops       map[string]*TimeTracker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// MetricTracker tracks statistics for a recorded metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Options configures the profiler.
type Options struct {
	// Logger receives the reports. Default: slog.Default().
	Logger *slog.Logger
	// ReportInterval enables periodic reports while running. Zero disables them.
	ReportInterval time.Duration
	// MaxSamples bounds the samples kept per metric or operation (default: 1000).
	MaxSamples int
}

// Stats summarizes one metric or operation. Durations are reported in
// seconds.
type Stats struct {
	Name  string
	Count int64
	Avg   float64
	Min   float64
	Max   float64
}

// New creates a profiler.
func New(opts Options) *Profiler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 1000
	}
	return &Profiler{
		logger:         opts.Logger,
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		startTime:      time.Now(),
		metrics:        make(map[string]*MetricTracker),
		ops:            make(map[string]*TimeTracker),
	}
}

// Start begins periodic reporting if a report interval is set. It stops when
// ctx is done or Stop is called.
func (p *Profiler) Start(ctx context.Context) {
	if p.reportInterval <= 0 {
		return
	}
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Report()
			}
		}
	}()
}

// Stop ends periodic reporting and waits for the reporter to exit.
func (p *Profiler) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		p.wg.Wait()
	}
}

// RecordMetric records a metric sample.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (p *Profiler) RecordMetric(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.metrics[name]
	if !exists {
		tracker = &MetricTracker{min: value, max: value}
		p.metrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > p.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++
	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.recordOperationTime(name, time.Since(start))
	}
}

func (p *Profiler) recordOperationTime(name string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.ops[name]
	if !exists {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		p.ops[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > p.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++
	tracker.minTime = min(tracker.minTime, duration)
	tracker.maxTime = max(tracker.maxTime, duration)
}

// Operations returns the timing statistics of every operation, sorted by name.
// Averages cover the retained samples, counts cover every call.
func (p *Profiler) Operations() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := lo.Keys(p.ops)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) Stats {
		t := p.ops[name]
		avg := t.totalTime / time.Duration(len(t.durations))
		return Stats{
			Name:  name,
			Count: t.count,
			Avg:   avg.Seconds(),
			Min:   t.minTime.Seconds(),
			Max:   t.maxTime.Seconds(),
		}
	})
}

// Metrics returns the statistics of every metric, sorted by name.
func (p *Profiler) Metrics() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := lo.Keys(p.metrics)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) Stats {
		t := p.metrics[name]
		return Stats{
			Name:  name,
			Count: t.count,
			Avg:   t.sum / float64(len(t.values)),
			Min:   t.min,
			Max:   t.max,
		}
	})
}

// Report logs the current statistics.
func (p *Profiler) Report() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.Lock()
	uptime := time.Since(p.startTime)
	p.mu.Unlock()

	p.logger.Info("profiler: status",
		"uptime", uptime.Truncate(time.Millisecond),
		"goroutines", runtime.NumGoroutine(),
		"heap_alloc", formatBytes(mem.HeapAlloc),
		"gc_cycles", mem.NumGC)

	for _, s := range p.Metrics() {
		p.logger.Info("profiler: metric",
			"name", s.Name, "avg", s.Avg, "min", s.Min, "max", s.Max, "count", s.Count)
	}
	for _, s := range p.Operations() {
		p.logger.Info("profiler: operation",
			"name", s.Name,
			"avg", seconds(s.Avg),
			"min", seconds(s.Min),
			"max", seconds(s.Max),
			"count", s.Count)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Truncate(time.Microsecond)
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
