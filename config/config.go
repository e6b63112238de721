// Package config - Configuration for the motion trimming pipeline.
//
// A Config is built once per process from defaults, an optional YAML file and
// MOTION_* environment variables, validated, and then passed by value to
// every component that needs it. Nothing in the pipeline mutates it.
package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-motion/motion"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MOTION_"

// frameEpsilon absorbs float representation error when converting seconds
// to whole frames, so that 2.3s at 10 fps is 23 frames and not 22.
const frameEpsilon = 1e-9

// MaxSeconds bounds every duration option. A day of warm-up or hysteresis is
// already longer than any recording this tool is meant for.
const MaxSeconds = 86400

// maxFrames caps duration conversions so they never overflow int.
const maxFrames = math.MaxInt32

// Detection holds the thresholds of the per-frame detector and the event
// state machine.
type Detection struct {
	// MinContourArea is the blob area in pixels that must be exceeded to count as motion.
	MinContourArea int `yaml:"min_contour_area" env:"MIN_CONTOUR_AREA"`
	// NoMotionBufferSeconds is how long motion may be absent before an event closes.
	NoMotionBufferSeconds float64 `yaml:"no_motion_buffer_seconds" env:"NO_MOTION_BUFFER_SECONDS"`
	// IgnoreInitialSeconds is the warm-up during which the background model
	// learns but detection output is discarded.
	IgnoreInitialSeconds float64 `yaml:"ignore_initial_seconds" env:"IGNORE_INITIAL_SECONDS"`
	// LongDiffGap is the frame offset of the long interval difference signal.
	LongDiffGap int `yaml:"long_diff_gap" env:"LONG_DIFF_GAP"`
	// ThresholdValue binarizes the background subtraction response.
	ThresholdValue float64 `yaml:"threshold_value" env:"THRESHOLD_VALUE"`
	// LongDiffThreshold binarizes the long interval difference.
	LongDiffThreshold float64 `yaml:"long_diff_threshold" env:"LONG_DIFF_THRESHOLD"`
	// BlurKernelSize is the Gaussian blur kernel, must be odd.
	BlurKernelSize int `yaml:"blur_kernel_size" env:"BLUR_KERNEL_SIZE"`
	// MorphKernelSize is the opening kernel applied to the background mask.
	MorphKernelSize int `yaml:"morph_kernel_size" env:"MORPH_KERNEL_SIZE"`
	// History is the number of frames the background model remembers.
	History int `yaml:"history" env:"HISTORY"`
	// VarThreshold is the background model variance threshold.
	VarThreshold float64 `yaml:"var_threshold" env:"VAR_THRESHOLD"`
	// DetectShadows marks shadows with a separate, lower mask value.
	DetectShadows bool `yaml:"detect_shadows" env:"DETECT_SHADOWS"`
	// EndOfStream decides what happens to an event still open at the last frame.
	EndOfStream motion.EndPolicy `yaml:"end_of_stream" env:"END_OF_STREAM"`
}

// Snapshots configures the per-event thumbnail.
type Snapshots struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	Width   int  `yaml:"width" env:"WIDTH"`
}

// Kafka configures the event summary publisher. Empty brokers disable it.
type Kafka struct {
	Brokers []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"TOPIC"`
}

// Minio configures the object storage publisher. An empty endpoint disables it.
type Minio struct {
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	Secure    bool   `yaml:"secure" env:"SECURE"`
}

// Postgres configures the event store. An empty DSN disables it.
type Postgres struct {
	DSN string `yaml:"dsn" env:"DSN"`
}

// Config is the complete configuration of a batch run.
type Config struct {
	InputDir      string   `yaml:"input_dir" env:"INPUT_DIR"`
	OutputDir     string   `yaml:"output_dir" env:"OUTPUT_DIR"`
	Extensions    []string `yaml:"extensions" env:"EXTENSIONS" envSeparator:","`
	Workers       int      `yaml:"workers" env:"WORKERS"`
	ReplaceSource bool     `yaml:"replace_source" env:"REPLACE_SOURCE"`
	Codec         string   `yaml:"codec" env:"CODEC"`
	// SequenceFPS is the frame rate assumed for directories of frame images.
	// Zero disables image sequence input.
	SequenceFPS float64 `yaml:"sequence_fps" env:"SEQUENCE_FPS"`

	Detection Detection `yaml:"detection" envPrefix:"DETECTION_"`
	Snapshots Snapshots `yaml:"snapshots" envPrefix:"SNAPSHOTS_"`
	Kafka     Kafka     `yaml:"kafka" envPrefix:"KAFKA_"`
	Minio     Minio     `yaml:"minio" envPrefix:"MINIO_"`
	Postgres  Postgres  `yaml:"postgres" envPrefix:"POSTGRES_"`
}

// DefaultDetection returns the detection thresholds tuned for fixed CCTV cameras.
func DefaultDetection() Detection {
	return Detection{
		MinContourArea:        1000,
		NoMotionBufferSeconds: 1.5,
		IgnoreInitialSeconds:  2,
		LongDiffGap:           3,
		ThresholdValue:        140,
		LongDiffThreshold:     20,
		BlurKernelSize:        21,
		MorphKernelSize:       3,
		History:               500,
		VarThreshold:          50,
		DetectShadows:         true,
		EndOfStream:           motion.FlushOnEnd,
	}
}

// Default returns a configuration that processes ./cctv/*.mp4 into ./processed.
func Default() Config {
	return Config{
		InputDir:   "cctv",
		OutputDir:  "processed",
		Extensions: []string{".mp4"},
		Workers:    1,
		Codec:      "mp4v",
		Detection:  DefaultDetection(),
		Snapshots:  Snapshots{Width: 320},
		Kafka:      Kafka{Topic: "motion-events"},
		Minio:      Minio{Bucket: "motion"},
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, in increasing priority.
//
// Arguments:
//   - path: Optional YAML file.
//
// Returns:
//   - Config: The validated configuration.
//   - error: An error if the file cannot be read or parsed, or validation fails.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every option and names the first offending key.
func (c Config) Validate() error {
	if c.InputDir == "" {
		return errors.New("input_dir must be set")
	}
	if c.OutputDir == "" && !c.ReplaceSource {
		return errors.New("output_dir must be set unless replace_source is enabled")
	}
	if !c.ReplaceSource && sameDir(c.InputDir, c.OutputDir) {
		return errors.Errorf("output_dir must differ from input_dir unless replace_source is enabled, got %q", c.OutputDir)
	}
	if len(c.Extensions) == 0 {
		return errors.New("extensions must list at least one extension")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return errors.Errorf("extensions: %q must start with a dot", ext)
		}
	}
	if c.Workers < 1 {
		return errors.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if len(c.Codec) != 4 {
		return errors.Errorf("codec must be a four character code, got %q", c.Codec)
	}
	if c.SequenceFPS < 0 || (c.SequenceFPS > 0 && !motion.ValidFrameRate(c.SequenceFPS)) {
		return errors.Errorf("sequence_fps must be zero or a positive frame rate, got %v", c.SequenceFPS)
	}
	if c.Snapshots.Enabled && c.Snapshots.Width <= 0 {
		return errors.Errorf("snapshots.width must be positive, got %d", c.Snapshots.Width)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic must be set when kafka.brokers is set")
	}
	if c.Minio.Endpoint != "" && c.Minio.Bucket == "" {
		return errors.New("minio.bucket must be set when minio.endpoint is set")
	}
	return errors.Wrap(c.Detection.Validate(), "detection")
}

// Validate checks the detection thresholds.
func (d Detection) Validate() error {
	switch {
	case d.MinContourArea < 0:
		return errors.Errorf("min_contour_area must not be negative, got %d", d.MinContourArea)
	case !validSeconds(d.NoMotionBufferSeconds):
		return errors.Errorf("no_motion_buffer_seconds must be within [0, %v], got %v", MaxSeconds, d.NoMotionBufferSeconds)
	case !validSeconds(d.IgnoreInitialSeconds):
		return errors.Errorf("ignore_initial_seconds must be within [0, %v], got %v", MaxSeconds, d.IgnoreInitialSeconds)
	case d.LongDiffGap < 1:
		return errors.Errorf("long_diff_gap must be at least 1, got %d", d.LongDiffGap)
	case d.ThresholdValue < 0 || d.ThresholdValue > 255:
		return errors.Errorf("threshold_value must be within [0, 255], got %v", d.ThresholdValue)
	case d.LongDiffThreshold < 0 || d.LongDiffThreshold > 255:
		return errors.Errorf("long_diff_threshold must be within [0, 255], got %v", d.LongDiffThreshold)
	case d.BlurKernelSize < 1 || d.BlurKernelSize%2 == 0:
		return errors.Errorf("blur_kernel_size must be a positive odd number, got %d", d.BlurKernelSize)
	case d.MorphKernelSize < 1:
		return errors.Errorf("morph_kernel_size must be positive, got %d", d.MorphKernelSize)
	case d.History < 1:
		return errors.Errorf("history must be positive, got %d", d.History)
	case d.VarThreshold <= 0:
		return errors.Errorf("var_threshold must be positive, got %v", d.VarThreshold)
	case !d.EndOfStream.Valid():
		return errors.Errorf("end_of_stream must be %q or %q, got %q", motion.FlushOnEnd, motion.DropOnEnd, d.EndOfStream)
	}
	return nil
}

// HysteresisFrames converts NoMotionBufferSeconds to whole frames at fps.
func (d Detection) HysteresisFrames(fps float64) int {
	return secondsToFrames(d.NoMotionBufferSeconds, fps)
}

// WarmupFrames converts IgnoreInitialSeconds to whole frames at fps. Frames
// with an index below this value are warm-up frames.
func (d Detection) WarmupFrames(fps float64) int {
	return secondsToFrames(d.IgnoreInitialSeconds, fps)
}

// validSeconds rejects NaN, negative and infinite durations.
func validSeconds(v float64) bool {
	return v >= 0 && v <= MaxSeconds
}

func secondsToFrames(seconds, fps float64) int {
	if !motion.ValidFrameRate(fps) || seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	frames := math.Floor(seconds*fps + frameEpsilon)
	if frames >= maxFrames {
		return maxFrames
	}
	return int(frames)
}

// sameDir reports whether a and b name the same directory.
func sameDir(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if ai, err := os.Stat(a); err == nil {
		if bi, err := os.Stat(b); err == nil {
			return os.SameFile(ai, bi)
		}
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
