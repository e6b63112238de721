// Command go-motion trims stored CCTV recordings down to their motion events.
//
// Every recording in the input directory is run through background
// subtraction, long interval differencing and blob filtering; frames that
// belong to a motion event are written to a trimmed copy, and the event
// intervals are written to <stem>_log.json.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/nvr-ai/go-motion/batch"
	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/database"
	"github.com/nvr-ai/go-motion/kafka"
	"github.com/nvr-ai/go-motion/profiler"
	"github.com/nvr-ai/go-motion/recording"
	"github.com/nvr-ai/go-motion/s3"
	"github.com/nvr-ai/go-motion/util"
)

// options holds the command line flags.
type options struct {
	configPath  string
	input       string
	output      string
	workers     int
	replace     bool
	extensions  string
	sequenceFPS float64
	snapshots   bool
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("go-motion", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&opts.input, "input", "", "Directory of recordings (overrides input_dir)")
	fs.StringVar(&opts.output, "output", "", "Directory for trimmed videos and logs (overrides output_dir)")
	fs.IntVar(&opts.workers, "workers", 0, "Recordings processed in parallel (overrides workers)")
	fs.BoolVar(&opts.replace, "replace", false, "Replace each recording with its trimmed version")
	fs.StringVar(&opts.extensions, "ext", "", "Comma separated recording extensions, e.g. .mp4,.avi")
	fs.Float64Var(&opts.sequenceFPS, "sequence-fps", 0, "Frame rate of frame image directories (0 skips them)")
	fs.BoolVar(&opts.snapshots, "snapshots", false, "Write a JPEG snapshot of every event")
	fs.BoolVar(&opts.verbose, "v", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(fs, opts)
	if err != nil {
		logger.Error("main: invalid configuration", "error", err)
		return 1
	}

	paths, err := listInputs(cfg)
	if err != nil {
		logger.Error("main: cannot list recordings", "input_dir", cfg.InputDir, "error", err)
		return 1
	}
	if len(paths) == 0 {
		logger.Warn("main: no recordings found", "input_dir", cfg.InputDir, "extensions", cfg.Extensions)
		return 0
	}

	prof := profiler.New(profiler.Options{Logger: logger})
	publishers, closeAll := connectPublishers(ctx, cfg, logger)
	defer closeAll()

	proc := recording.NewProcessor(cfg,
		recording.WithLogger(logger),
		recording.WithTimer(prof),
		recording.WithMetrics(prof),
		recording.WithPublishers(publishers...),
	)

	paths, conflicts := proc.Claim(paths)
	for _, f := range conflicts {
		logger.Error("main: recording skipped", "path", f.Path, "error", f.Err)
	}

	logger.Info("main: starting batch",
		"recordings", len(paths),
		"workers", cfg.Workers,
		"output_dir", cfg.OutputDir,
		"replace_source", cfg.ReplaceSource)

	runner := &batch.Runner[*recording.Summary]{Workers: cfg.Workers, Logger: logger}
	summary := runner.Run(ctx, paths, proc)
	summary.Failures = append(summary.Failures, conflicts...)

	events := lo.SumBy(summary.Reports, func(s *recording.Summary) int { return len(s.Events) })
	logger.Info("main: batch finished",
		"processed", len(summary.Reports),
		"failed", len(summary.Failures),
		"events", events,
		"elapsed", summary.Elapsed)
	for _, f := range summary.Failures {
		logger.Warn("main: recording failed", "path", f.Path, "error", f.Err)
	}
	prof.Report()
	return 0
}

// loadConfig loads the configuration and applies the flags that were set on
// the command line.
func loadConfig(fs *flag.FlagSet, opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.InputDir = opts.input
		case "output":
			cfg.OutputDir = opts.output
		case "workers":
			cfg.Workers = opts.workers
		case "replace":
			cfg.ReplaceSource = opts.replace
		case "ext":
			cfg.Extensions = splitExtensions(opts.extensions)
		case "sequence-fps":
			cfg.SequenceFPS = opts.sequenceFPS
		case "snapshots":
			cfg.Snapshots.Enabled = opts.snapshots
		}
	})
	return cfg, cfg.Validate()
}

// splitExtensions parses "mp4, .AVI" into [".mp4" ".avi"].
func splitExtensions(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		return p
	})
	return lo.Uniq(lo.Compact(parts))
}

// listInputs returns the recordings to process: video files, followed by
// frame image directories when a sequence frame rate is configured.
func listInputs(cfg config.Config) ([]string, error) {
	info, err := os.Stat(cfg.InputDir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", cfg.InputDir)
	}

	paths, err := util.ListRecordings(cfg.InputDir, cfg.Extensions)
	if err != nil {
		return nil, err
	}
	if cfg.SequenceFPS > 0 {
		dirs, err := util.ListSequenceDirs(cfg.InputDir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, dirs...)
	}
	return paths, nil
}

// connectPublishers creates the publishers enabled in cfg. A publisher that
// cannot connect is logged and left out.
func connectPublishers(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]recording.Publisher, func()) {
	var (
		publishers []recording.Publisher
		closers    []func() error
	)

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Error("main: kafka publisher disabled", "error", err)
		} else {
			publishers = append(publishers, p)
			closers = append(closers, p.Close)
		}
	}

	if cfg.Minio.Endpoint != "" {
		c, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.Secure)
		if err != nil {
			logger.Error("main: object storage publisher disabled", "error", err)
		} else {
			publishers = append(publishers, c)
		}
	}

	if cfg.Postgres.DSN != "" {
		db, err := connectDatabase(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Error("main: postgres publisher disabled", "error", err)
		} else {
			publishers = append(publishers, db)
			closers = append(closers, db.Close)
		}
	}

	logger.Debug("main: publishers", "enabled", lo.Map(publishers, func(p recording.Publisher, _ int) string {
		return p.Name()
	}))
	return publishers, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Error("main: failed to close publisher", "error", err)
			}
		}
	}
}

func connectDatabase(ctx context.Context, dsn string) (*database.Database, error) {
	db, err := database.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Init(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return db, nil
}
