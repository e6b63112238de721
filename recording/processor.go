package recording

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-motion/batch"
	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/controller"
	"github.com/nvr-ai/go-motion/images"
	"github.com/nvr-ai/go-motion/motion"
	"github.com/nvr-ai/go-motion/util"
	"github.com/nvr-ai/go-motion/video"
)

// Processor turns recordings into trimmed videos and event logs. One
// Processor serves a whole batch; every call to Process builds its own
// detector, source and sink, so calls may run concurrently.
type Processor struct {
	cfg        config.Config
	logger     *slog.Logger
	timer      controller.Timer
	metrics    MetricRecorder
	publishers []Publisher
	now        func() time.Time
}

// MetricRecorder records per-recording counters. profiler.Profiler
// implements it.
type MetricRecorder interface {
	RecordMetric(name string, value float64)
}

// Option customizes a Processor.
type Option func(*Processor)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithTimer times detection and writing.
func WithTimer(timer controller.Timer) Option {
	return func(p *Processor) { p.timer = timer }
}

// WithMetrics records counters for every processed recording.
func WithMetrics(metrics MetricRecorder) Option {
	return func(p *Processor) { p.metrics = metrics }
}

// WithPublishers adds publishers that receive every summary.
func WithPublishers(publishers ...Publisher) Option {
	return func(p *Processor) { p.publishers = append(p.publishers, publishers...) }
}

// NewProcessor creates a processor. cfg must be valid.
func NewProcessor(cfg config.Config, opts ...Option) *Processor {
	p := &Processor{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// outputDir is where logs and snapshots go. It may be unset when recordings
// are replaced in place.
func (p *Processor) outputDir() string {
	if p.cfg.OutputDir == "" {
		return "."
	}
	return p.cfg.OutputDir
}

// LogPath returns where the event log of the recording at path is written.
func (p *Processor) LogPath(path string) string {
	return filepath.Join(p.outputDir(), util.Stem(path)+"_log.json")
}

// OutputPath returns where the trimmed video of the recording at path is
// written. Image sequences are encoded as <dir>.mp4.
func (p *Processor) OutputPath(path string, sequence bool) string {
	if sequence {
		return filepath.Join(p.outputDir(), filepath.Base(path)+".mp4")
	}
	if p.cfg.ReplaceSource {
		return path
	}
	return filepath.Join(p.outputDir(), filepath.Base(path))
}

// SnapshotPath returns the path of the snapshot of event seq (1-based).
func (p *Processor) SnapshotPath(path string, seq int) string {
	return filepath.Join(p.outputDir(), fmt.Sprintf("%s_event_%d.jpg", util.Stem(path), seq))
}

// Targets returns the trimmed video and event log paths of the recording at
// path. Snapshots share the log's stem and are covered by it.
func (p *Processor) Targets(path string, sequence bool) []string {
	return []string{p.OutputPath(path, sequence), p.LogPath(path)}
}

// Claim splits paths into the recordings that can run in one batch and the
// ones that cannot. A recording fails with ErrOutputConflict when one of its
// targets is a source of the batch (other than itself in replace mode) or was
// already claimed by an earlier path. Targets are compared case-insensitively.
func (p *Processor) Claim(paths []string) ([]string, []batch.Failure) {
	sources := lo.SliceToMap(paths, func(path string) (string, string) {
		return targetKey(path), path
	})
	claimed := map[string]string{}

	var (
		accepted []string
		rejected []batch.Failure
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			// Process reports the missing source.
			accepted = append(accepted, path)
			continue
		}
		targets := p.Targets(path, info.IsDir())

		err = p.conflict(path, targets, sources, claimed)
		if err != nil {
			rejected = append(rejected, batch.Failure{Path: path, Err: err})
			continue
		}
		for _, target := range targets {
			claimed[targetKey(target)] = path
		}
		accepted = append(accepted, path)
	}
	return accepted, rejected
}

func (p *Processor) conflict(path string, targets []string, sources, claimed map[string]string) error {
	self := targetKey(path)
	for _, target := range targets {
		key := targetKey(target)
		if src, ok := sources[key]; ok && !(key == self && p.cfg.ReplaceSource) {
			return errors.Wrapf(motion.ErrOutputConflict, "%s would overwrite source %s", target, src)
		}
		if owner, ok := claimed[key]; ok {
			return errors.Wrapf(motion.ErrOutputConflict, "%s is already written by %s", target, owner)
		}
	}
	return nil
}

// targetKey normalizes a path for collision checks. Case is folded so that
// cam.mp4 and cam.MP4 collide on case-insensitive file systems too.
func targetKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return strings.ToLower(filepath.Clean(path))
}

// Process runs the recording at path, which is a video file or a directory of
// frame images.
//
// The event log is written even when processing fails part way, holding the
// events committed so far. Publishing failures are logged and do not fail the
// recording.
//
// Returns:
//   - *Summary: The outputs and counters of the recording.
//   - error: A source, detection, sink or log error.
func (p *Processor) Process(ctx context.Context, path string) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID, "recording", filepath.Base(path))

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(motion.ErrSourceUnavailable, "%s: %v", path, err)
	}
	sequence := info.IsDir()

	output := p.OutputPath(path, sequence)
	if !p.cfg.ReplaceSource && targetKey(output) == targetKey(path) {
		return nil, errors.Wrapf(motion.ErrOutputConflict, "output %s is the source itself", output)
	}

	source, err := p.open(path, sequence)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	if err := os.MkdirAll(p.outputDir(), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create output directory %s", p.outputDir())
	}

	sink, err := p.create(output, sequence, source)
	if err != nil {
		return nil, err
	}
	sinkClosed := false
	defer func() {
		if !sinkClosed {
			abort(sink)
		}
	}()

	detector := images.NewMotionDetector(p.cfg.Detection)
	defer detector.Close()

	var snapshots []string
	opts := []controller.Option[*gocv.Mat]{controller.WithLogger[*gocv.Mat](logger)}
	if p.timer != nil {
		opts = append(opts, controller.WithTimer[*gocv.Mat](p.timer))
	}
	if p.cfg.Snapshots.Enabled {
		opts = append(opts, controller.WithSegmentHook[*gocv.Mat](func(seq int, seg *motion.Segment[*gocv.Mat]) error {
			snapshot := p.SnapshotPath(path, seq)
			if err := p.snapshot(seg, snapshot); err != nil {
				return err
			}
			snapshots = append(snapshots, snapshot)
			return nil
		}))
	}

	logger.Info("recording: processing",
		"fps", source.FPS(),
		"width", source.Width(),
		"height", source.Height(),
		"output", output)

	result, runErr := controller.New[*gocv.Mat](p.cfg.Detection, detector, opts...).Run(source, sink)
	if runErr == nil {
		sinkClosed = true
		runErr = errors.Wrap(sink.Close(), "failed to finalize output")
	}

	logPath := p.LogPath(path)
	if result != nil {
		if err := writeLog(logPath, result.Events); err != nil {
			if runErr == nil {
				return nil, err
			}
			logger.Error("recording: failed to write partial log", "error", err)
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	summary := &Summary{
		RunID:         runID,
		Recording:     filepath.Base(path),
		Source:        path,
		Output:        output,
		LogPath:       logPath,
		Snapshots:     snapshots,
		FPS:           result.FPS,
		FramesRead:    result.FramesRead,
		FramesWritten: result.FramesWritten,
		MotionFrames:  result.MotionFrames,
		Events:        result.Events.Events(),
		ProcessedAt:   p.now().UTC(),
	}
	p.record(summary)

	logger.Info("recording: done",
		"events", len(summary.Events),
		"motion_seconds", motion.Round3(summary.MotionSeconds()),
		"frames_read", summary.FramesRead,
		"frames_written", summary.FramesWritten)

	p.publish(ctx, logger, summary)
	return summary, nil
}

func (p *Processor) open(path string, sequence bool) (video.Source, error) {
	if !sequence {
		return video.OpenFile(path)
	}
	if p.cfg.SequenceFPS <= 0 {
		return nil, errors.Wrapf(motion.ErrInvalidFrameRate, "%s is an image sequence and sequence_fps is not set", path)
	}
	return video.OpenSequence(path, p.cfg.SequenceFPS)
}

func (p *Processor) create(output string, sequence bool, source video.Source) (video.Sink, error) {
	fps := source.FPS()
	if !motion.ValidFrameRate(fps) {
		return nil, errors.Wrapf(motion.ErrInvalidFrameRate, "%v", fps)
	}
	if p.cfg.ReplaceSource && !sequence {
		return video.NewReplaceSink(output, p.cfg.Codec, fps, source.Width(), source.Height())
	}
	return video.CreateFile(output, p.cfg.Codec, fps, source.Width(), source.Height())
}

// snapshot writes a thumbnail of the first frame of seg.
func (p *Processor) snapshot(seg *motion.Segment[*gocv.Mat], path string) error {
	if len(seg.Frames) == 0 {
		return nil
	}
	img, err := images.Snapshot(*seg.Frames[0], p.cfg.Snapshots.Width, images.FormatJPEG)
	if err != nil {
		return errors.Wrap(err, "failed to create snapshot")
	}
	return img.WriteFile(path)
}

func (p *Processor) record(summary *Summary) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordMetric("events", float64(len(summary.Events)))
	p.metrics.RecordMetric("motion_seconds", summary.MotionSeconds())
	p.metrics.RecordMetric("frames_read", float64(summary.FramesRead))
	p.metrics.RecordMetric("frames_written", float64(summary.FramesWritten))
}

func (p *Processor) publish(ctx context.Context, logger *slog.Logger, summary *Summary) {
	failed := lo.Filter(p.publishers, func(pub Publisher, _ int) bool {
		if err := pub.Publish(ctx, summary); err != nil {
			logger.Error("recording: publish failed", "publisher", pub.Name(), "error", err)
			return true
		}
		logger.Debug("recording: published", "publisher", pub.Name())
		return false
	})
	if p.metrics != nil {
		p.metrics.RecordMetric("publish_failures", float64(len(failed)))
	}
}

// abort discards a sink after a failure. A replacing sink leaves the source
// untouched.
func abort(sink video.Sink) {
	if r, ok := sink.(*video.ReplaceSink); ok {
		_ = r.Abort()
		return
	}
	_ = sink.Close()
}

func writeLog(path string, events *motion.EventLog) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create log %s", path)
	}
	if err := events.WriteJSON(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write log %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close log %s", path)
}
