// Command preview plays a recording next to its foreground mask, to tune the
// detection thresholds of a camera before running a batch.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/images"
	"github.com/nvr-ai/go-motion/video"
)

func main() {
	var (
		configPath string
		delay      int
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.IntVar(&delay, "delay", 1, "Milliseconds to wait between frames")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: preview [-config motion.yaml] recording.mp4")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("preview: invalid configuration", "error", err)
		os.Exit(1)
	}

	source, err := video.OpenFile(path)
	if err != nil {
		slog.Error("preview: cannot open recording", "path", path, "error", err)
		os.Exit(1)
	}
	defer source.Close()

	detector := images.NewMotionDetector(cfg.Detection)
	defer detector.Close()

	// open display windows
	frameWindow := gocv.NewWindow("Recording")
	defer frameWindow.Close()
	maskWindow := gocv.NewWindow("Foreground mask")
	defer maskWindow.Close()

	red := color.RGBA{255, 0, 0, 0}
	green := color.RGBA{0, 255, 0, 0}
	warmup := cfg.Detection.WarmupFrames(source.FPS())

	// FPS tracking variables
	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	slog.Info("preview: playing", "path", path, "fps", source.FPS(), "warmup_frames", warmup)
	for index := 0; ; index++ {
		frame, ok, err := source.Read()
		if err != nil {
			slog.Error("preview: read failed", "frame", index, "error", err)
			return
		}
		if !ok {
			return
		}

		frameCount++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		label, labelColor := "warm-up", green
		if index < warmup {
			err = detector.Learn(frame)
		} else {
			var moving bool
			moving, err = detector.DetectMotion(frame)
			label = "no motion"
			if moving {
				label, labelColor = fmt.Sprintf("MOTION iou=%.2f", detector.Overlap()), red
			}
		}
		if err != nil {
			frame.Close()
			slog.Error("preview: detection failed", "frame", index, "error", err)
			return
		}

		// Draw on a copy so the decoded frame stays untouched.
		display := frame.Clone()
		frame.Close()
		if region := detector.Region(); index >= warmup && !region.Empty() {
			gocv.Rectangle(&display, region.Image(), red, 2)
		}
		text := fmt.Sprintf("%.2fs %s | %.1f fps", float64(index)/source.FPS(), label, fps)
		gocv.PutText(&display, text, image.Pt(10, 30), gocv.FontHersheyPlain, 1.5, labelColor, 2)
		frameWindow.IMShow(display)
		display.Close()

		if index >= warmup {
			mask := detector.Mask()
			maskWindow.IMShow(mask)
			mask.Close()
		}

		if frameWindow.WaitKey(delay) == 27 {
			return
		}
	}
}
