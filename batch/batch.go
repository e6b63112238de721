// Package batch runs a processor over many recordings with bounded
// parallelism. A failing recording is reported and never stops the others.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Processor processes one recording.
type Processor[R any] interface {
	Process(ctx context.Context, path string) (R, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc[R any] func(ctx context.Context, path string) (R, error)

// Process calls f.
func (f ProcessorFunc[R]) Process(ctx context.Context, path string) (R, error) {
	return f(ctx, path)
}

// Failure is a recording that could not be processed.
type Failure struct {
	Path string
	Err  error
}

// Summary is the outcome of a batch. Reports and Failures keep the order of
// the input paths.
type Summary[R any] struct {
	Reports  []R
	Failures []Failure
	Elapsed  time.Duration
}

// Runner dispatches recordings to a fixed number of workers.
type Runner[R any] struct {
	// Workers is the number of recordings processed in parallel. Values
	// below one mean one.
	Workers int
	// Logger receives per-recording progress. Default: slog.Default().
	Logger *slog.Logger
}

type outcome[R any] struct {
	path   string
	report R
	err    error
}

// Run processes every path and returns once all workers are done. Once ctx is
// cancelled, recordings that have not started are reported as failures with
// the context error.
func (r *Runner[R]) Run(ctx context.Context, paths []string, proc Processor[R]) Summary[R] {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := max(1, min(r.Workers, len(paths)))
	start := time.Now()

	outcomes := make([]outcome[R], len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = r.process(ctx, logger, worker, paths[i], proc)
			}
		}(w)
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	summary := Summary[R]{Elapsed: time.Since(start)}
	summary.Reports = lo.FilterMap(outcomes, func(o outcome[R], _ int) (R, bool) {
		return o.report, o.err == nil
	})
	summary.Failures = lo.FilterMap(outcomes, func(o outcome[R], _ int) (Failure, bool) {
		return Failure{Path: o.path, Err: o.err}, o.err != nil
	})
	return summary
}

// process runs one recording, turning a panic into an error so the worker
// survives.
func (r *Runner[R]) process(ctx context.Context, logger *slog.Logger, worker int, path string, proc Processor[R]) (out outcome[R]) {
	out.path = path
	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			out.err = errors.Errorf("panic: %v", p)
		}
		if out.err != nil {
			logger.Error("batch: recording failed",
				"path", path,
				"worker", worker,
				"error", out.err)
			return
		}
		logger.Info("batch: recording processed",
			"path", path,
			"worker", worker,
			"elapsed", time.Since(start).Truncate(time.Millisecond))
	}()

	out.report, out.err = proc.Process(ctx, path)
	return out
}
